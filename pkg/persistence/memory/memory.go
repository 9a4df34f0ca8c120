package memory

import (
	"fmt"
	"sync"

	"github.com/Layr-Labs/ink-verifier/pkg/persistence"
	"github.com/Layr-Labs/ink-verifier/pkg/types"
	"go.uber.org/zap"
)

// MemoryPersistence keeps run reports in process memory. Reports are lost
// when the process exits, so it only suits one-off runs and tests.
//
// Reports are deep copied on the way in and out.
type MemoryPersistence struct {
	mu sync.RWMutex

	reports map[string]*types.RunReport

	latestRunID string

	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
func NewMemoryPersistence(logger *zap.Logger) *MemoryPersistence {
	if logger != nil {
		logger.Sugar().Warnw("Using in-memory report persistence; reports are lost on exit",
			"hint", "set persistence.type to badger or redis to keep them")
	}

	return &MemoryPersistence{
		reports: make(map[string]*types.RunReport),
	}
}

func (m *MemoryPersistence) SaveReport(report *types.RunReport) error {
	if report == nil {
		return fmt.Errorf("cannot save nil RunReport")
	}
	if err := persistence.ValidateRunID(report.RunID); err != nil {
		return err
	}
	clone, err := persistence.CloneRunReport(report)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}
	m.reports[report.RunID] = clone
	return nil
}

func (m *MemoryPersistence) LoadReport(runID string) (*types.RunReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	report, exists := m.reports[runID]
	if !exists {
		return nil, nil
	}
	return persistence.CloneRunReport(report)
}

func (m *MemoryPersistence) ListReports() ([]*types.RunReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	reports := make([]*types.RunReport, 0, len(m.reports))
	for _, report := range m.reports {
		clone, err := persistence.CloneRunReport(report)
		if err != nil {
			return nil, err
		}
		reports = append(reports, clone)
	}
	persistence.SortReports(reports)
	return reports, nil
}

func (m *MemoryPersistence) DeleteReport(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}
	delete(m.reports, runID)
	return nil
}

func (m *MemoryPersistence) SetLatestRunID(runID string) error {
	if err := persistence.ValidateRunID(runID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}
	m.latestRunID = runID
	return nil
}

func (m *MemoryPersistence) GetLatestRunID() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", persistence.ErrClosed
	}
	return m.latestRunID, nil
}

func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}
