package persistence_test

import (
	"testing"
	"time"

	"github.com/Layr-Labs/ink-verifier/pkg/persistence"
	"github.com/Layr-Labs/ink-verifier/pkg/testutil"
	"github.com/Layr-Labs/ink-verifier/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRunReport_RoundTrip(t *testing.T) {
	original := testutil.SampleReport(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	data, err := persistence.MarshalRunReport(original)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	restored, err := persistence.UnmarshalRunReport(data)
	require.NoError(t, err)

	assert.Equal(t, original.RunID, restored.RunID)
	assert.True(t, original.StartedAt.Equal(restored.StartedAt))
	assert.Equal(t, original.Node, restored.Node)
	require.Len(t, restored.Steps, 2)
	assert.Equal(t, types.OutcomeRemoteFault, restored.Steps[1].Outcome)
	assert.JSONEq(t, `true`, string(restored.Steps[0].Output))
	assert.Equal(t, original.Steps[0].GasRequired, restored.Steps[0].GasRequired)
	assert.Equal(t, original.Root, restored.Root)
	assert.Equal(t, 1, restored.Failed())
}

func TestMarshalRunReport_NilInput(t *testing.T) {
	_, err := persistence.MarshalRunReport(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil RunReport")
}

func TestUnmarshalRunReport_InvalidInput(t *testing.T) {
	_, err := persistence.UnmarshalRunReport(nil)
	require.Error(t, err)

	_, err = persistence.UnmarshalRunReport([]byte(`{"runId": 7}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestCloneRunReport_IsIndependent(t *testing.T) {
	original := testutil.SampleReport(time.Now())

	clone, err := persistence.CloneRunReport(original)
	require.NoError(t, err)

	clone.Steps[0].Name = "changed"
	clone.Root[0] = 0xff
	assert.Equal(t, "check_sign", original.Steps[0].Name)
	assert.Equal(t, byte(0), original.Root[0])
}

func TestValidateRunID(t *testing.T) {
	require.NoError(t, persistence.ValidateRunID(uuid.NewString()))

	for _, id := range []string{"", "latest", "report:abc", "{" + uuid.NewString() + "}"} {
		assert.Error(t, persistence.ValidateRunID(id), id)
	}
}

func TestSortReports(t *testing.T) {
	base := time.Now()
	a := testutil.SampleReport(base.Add(2 * time.Second))
	b := testutil.SampleReport(base)
	c := testutil.SampleReport(base.Add(time.Second))

	reports := []*types.RunReport{a, b, c}
	persistence.SortReports(reports)
	assert.Equal(t, []*types.RunReport{b, c, a}, reports)
}
