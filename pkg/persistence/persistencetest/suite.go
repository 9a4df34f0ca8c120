// Package persistencetest holds the behaviour every report backend must share.
package persistencetest

import (
	"sync"
	"testing"
	"time"

	"github.com/Layr-Labs/ink-verifier/pkg/persistence"
	"github.com/Layr-Labs/ink-verifier/pkg/testutil"
	"github.com/Layr-Labs/ink-verifier/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) persistence.IReportPersistence

// Run exercises a backend against the IReportPersistence contract.
func Run(t *testing.T, newBackend Factory) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		p := newBackend(t)
		defer func() { _ = p.Close() }()

		report := testutil.SampleReport(time.Now())
		require.NoError(t, p.SaveReport(report))

		loaded, err := p.LoadReport(report.RunID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, report.RunID, loaded.RunID)
		assert.Equal(t, report.Signer, loaded.Signer)
		assert.Equal(t, report.Root, loaded.Root)
		require.Len(t, loaded.Steps, len(report.Steps))
		assert.Equal(t, report.Steps[1].Fault, loaded.Steps[1].Fault)
	})

	t.Run("LoadMissing", func(t *testing.T) {
		p := newBackend(t)
		defer func() { _ = p.Close() }()

		loaded, err := p.LoadReport(uuid.NewString())
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("SaveRejectsInvalid", func(t *testing.T) {
		p := newBackend(t)
		defer func() { _ = p.Close() }()

		require.Error(t, p.SaveReport(nil))

		report := testutil.SampleReport(time.Now())
		report.RunID = "not-a-uuid"
		require.Error(t, p.SaveReport(report))
	})

	t.Run("StoredCopyIsIsolated", func(t *testing.T) {
		p := newBackend(t)
		defer func() { _ = p.Close() }()

		report := testutil.SampleReport(time.Now())
		require.NoError(t, p.SaveReport(report))
		report.Steps[0].Name = "mutated"

		loaded, err := p.LoadReport(report.RunID)
		require.NoError(t, err)
		assert.Equal(t, "check_sign", loaded.Steps[0].Name)
	})

	t.Run("ListSortedByStart", func(t *testing.T) {
		p := newBackend(t)
		defer func() { _ = p.Close() }()

		base := time.Now()
		later := testutil.SampleReport(base.Add(time.Minute))
		earlier := testutil.SampleReport(base)
		require.NoError(t, p.SaveReport(later))
		require.NoError(t, p.SaveReport(earlier))

		reports, err := p.ListReports()
		require.NoError(t, err)
		require.Len(t, reports, 2)
		assert.Equal(t, earlier.RunID, reports[0].RunID)
		assert.Equal(t, later.RunID, reports[1].RunID)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		p := newBackend(t)
		defer func() { _ = p.Close() }()

		report := testutil.SampleReport(time.Now())
		require.NoError(t, p.SaveReport(report))

		require.NoError(t, p.DeleteReport(report.RunID))
		require.NoError(t, p.DeleteReport(report.RunID))

		loaded, err := p.LoadReport(report.RunID)
		require.NoError(t, err)
		assert.Nil(t, loaded)

		reports, err := p.ListReports()
		require.NoError(t, err)
		assert.Empty(t, reports)
	})

	t.Run("LatestRunID", func(t *testing.T) {
		p := newBackend(t)
		defer func() { _ = p.Close() }()

		latest, err := p.GetLatestRunID()
		require.NoError(t, err)
		assert.Empty(t, latest)

		id := uuid.NewString()
		require.NoError(t, p.SetLatestRunID(id))
		latest, err = p.GetLatestRunID()
		require.NoError(t, err)
		assert.Equal(t, id, latest)

		require.Error(t, p.SetLatestRunID("latest"))
	})

	t.Run("ConcurrentSaves", func(t *testing.T) {
		p := newBackend(t)
		defer func() { _ = p.Close() }()

		const n = 20
		base := time.Now()
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- p.SaveReport(testutil.SampleReport(base.Add(time.Duration(i) * time.Second)))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		reports, err := p.ListReports()
		require.NoError(t, err)
		assert.Len(t, reports, n)
	})

	t.Run("ClosedRejectsOperations", func(t *testing.T) {
		p := newBackend(t)
		require.NoError(t, p.HealthCheck())

		require.NoError(t, p.Close())
		require.NoError(t, p.Close())

		assert.ErrorIs(t, p.SaveReport(testutil.SampleReport(time.Now())), persistence.ErrClosed)
		_, err := p.LoadReport(uuid.NewString())
		assert.ErrorIs(t, err, persistence.ErrClosed)
		_, err = p.ListReports()
		assert.ErrorIs(t, err, persistence.ErrClosed)
		assert.ErrorIs(t, p.DeleteReport(uuid.NewString()), persistence.ErrClosed)
		_, err = p.GetLatestRunID()
		assert.ErrorIs(t, err, persistence.ErrClosed)
		assert.ErrorIs(t, p.HealthCheck(), persistence.ErrClosed)
	})
}

// Report is a convenience for backend-specific tests.
func Report() *types.RunReport {
	return testutil.SampleReport(time.Now())
}
