package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Layr-Labs/ink-verifier/pkg/persistence"
	"github.com/Layr-Labs/ink-verifier/pkg/types"
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

const (
	keyPrefixReport      = "report:"
	keyLatestRun         = "latest:run"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "reports/v1"

	gcInterval     = 5 * time.Minute
	gcDiscardRatio = 0.5
)

// BadgerPersistence stores run reports in an embedded Badger database so
// that they survive restarts of the verifier.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence opens (or creates) the database at dataPath with
// SyncWrites enabled and starts the background value log GC.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger.Named("badger")}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger report store initialized", "path", absPath)

	return bp, nil
}

func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		existing, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}
		if string(existing) != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existing, currentSchemaVersion)
		}
		return nil
	})
}

func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(gcDiscardRatio)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func reportKey(runID string) []byte {
	return []byte(keyPrefixReport + runID)
}

func (b *BadgerPersistence) SaveReport(report *types.RunReport) error {
	if report == nil {
		return fmt.Errorf("cannot save nil RunReport")
	}
	if err := persistence.ValidateRunID(report.RunID); err != nil {
		return err
	}

	data, err := persistence.MarshalRunReport(report)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	err = b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(reportKey(report.RunID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", report.RunID, err)
	}

	b.logger.Sugar().Debugw("Saved run report", "runId", report.RunID, "steps", len(report.Steps))
	return nil
}

func (b *BadgerPersistence) LoadReport(runID string) (*types.RunReport, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(reportKey(runID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", runID, err)
	}

	return persistence.UnmarshalRunReport(data)
}

func (b *BadgerPersistence) ListReports() ([]*types.RunReport, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	reports := make([]*types.RunReport, 0)
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixReport)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", item.Key(), err)
			}
			report, err := persistence.UnmarshalRunReport(data)
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", item.Key(), err)
			}
			reports = append(reports, report)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	persistence.SortReports(reports)
	return reports, nil
}

func (b *BadgerPersistence) DeleteReport(runID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(reportKey(runID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete report %s: %w", runID, err)
	}
	return nil
}

func (b *BadgerPersistence) SetLatestRunID(runID string) error {
	if err := persistence.ValidateRunID(runID); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keyLatestRun), []byte(runID))
	})
	if err != nil {
		return fmt.Errorf("failed to set latest run id: %w", err)
	}
	return nil
}

func (b *BadgerPersistence) GetLatestRunID() (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return "", persistence.ErrClosed
	}

	var runID string
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyLatestRun))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		runID = string(val)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest run id: %w", err)
	}
	return runID, nil
}

func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger report store closed")
	return nil
}

func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
