package verifier

import (
	"fmt"

	"github.com/Layr-Labs/ink-verifier/pkg/config"
	"github.com/Layr-Labs/ink-verifier/pkg/persistence"
	"github.com/Layr-Labs/ink-verifier/pkg/persistence/badger"
	"github.com/Layr-Labs/ink-verifier/pkg/persistence/memory"
	"github.com/Layr-Labs/ink-verifier/pkg/persistence/redis"
	"go.uber.org/zap"
)

// NewPersistence opens the report store selected by cfg.
func NewPersistence(cfg config.PersistenceConfig, logger *zap.Logger) (persistence.IReportPersistence, error) {
	switch cfg.Type {
	case config.PersistenceTypeMemory, "":
		return memory.NewMemoryPersistence(logger), nil
	case config.PersistenceTypeBadger:
		store, err := badger.NewBadgerPersistence(cfg.DataPath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.PersistenceTypeRedis:
		store, err := redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password.Reveal(),
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", cfg.Type)
	}
}
