package persistence

import "github.com/Layr-Labs/ink-verifier/pkg/types"

// IReportPersistence stores signed run reports so that past verification runs
// can be listed and re-checked. Implementations must be safe for concurrent use.
type IReportPersistence interface {
	// SaveReport persists a report keyed by its RunID, overwriting any report
	// with the same id.
	SaveReport(report *types.RunReport) error

	// LoadReport returns nil if the report doesn't exist, error only on storage failure.
	LoadReport(runID string) (*types.RunReport, error)

	// ListReports returns every report sorted by start time (ascending).
	ListReports() ([]*types.RunReport, error)

	// DeleteReport is idempotent.
	DeleteReport(runID string) error

	// SetLatestRunID records the most recent completed run.
	SetLatestRunID(runID string) error

	// GetLatestRunID returns "" if no run has been recorded.
	GetLatestRunID() (string, error)

	// Close is idempotent. After Close, all other operations return ErrClosed.
	Close() error

	HealthCheck() error
}
