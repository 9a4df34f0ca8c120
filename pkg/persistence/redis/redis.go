package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/ink-verifier/pkg/persistence"
	"github.com/Layr-Labs/ink-verifier/pkg/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefixReport      = "verifier:report:"
	keyLatestRun         = "verifier:latest:run"
	keySchemaVersion     = "verifier:metadata:schema_version"
	currentSchemaVersion = "reports/v1"

	// Redis has no prefix iteration, so report ids are indexed in a set
	keySetReports = "verifier:reports:index"

	connectTimeout   = 5 * time.Second
	operationTimeout = 10 * time.Second
)

// RedisPersistence stores run reports in Redis, so several verifier
// instances can share one report history.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "staging:" gives
	// "staging:verifier:report:<id>".
	KeyPrefix string
}

// NewRedisPersistence connects to Redis and checks the schema version.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis report store initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisPersistence) reportKey(runID string) string {
	return r.prefixKey(keyPrefixReport + runID)
}

func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	// SETNX keeps two verifiers starting together from racing
	if err := r.client.SetNX(ctx, schemaKey, currentSchemaVersion, 0).Err(); err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}
	return nil
}

func (r *RedisPersistence) SaveReport(report *types.RunReport) error {
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

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.reportKey(report.RunID), data, 0)
		pipe.SAdd(ctx, r.prefixKey(keySetReports), report.RunID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", report.RunID, err)
	}

	r.logger.Sugar().Debugw("Saved run report", "runId", report.RunID, "steps", len(report.Steps))
	return nil
}

func (r *RedisPersistence) LoadReport(runID string) (*types.RunReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.reportKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", runID, err)
	}

	return persistence.UnmarshalRunReport(data)
}

func (r *RedisPersistence) ListReports() ([]*types.RunReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	ids, err := r.client.SMembers(ctx, r.prefixKey(keySetReports)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read report index: %w", err)
	}

	reports := make([]*types.RunReport, 0, len(ids))
	if len(ids) == 0 {
		return reports, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.reportKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reports: %w", err)
	}

	for i, val := range values {
		// index entries can outlive their report if a delete was interrupted
		if val == nil {
			continue
		}
		str, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected value type %T for report %s", val, ids[i])
		}
		report, err := persistence.UnmarshalRunReport([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("failed to decode report %s: %w", ids[i], err)
		}
		reports = append(reports, report)
	}

	persistence.SortReports(reports)
	return reports, nil
}

func (r *RedisPersistence) DeleteReport(runID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.reportKey(runID))
		pipe.SRem(ctx, r.prefixKey(keySetReports), runID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete report %s: %w", runID, err)
	}
	return nil
}

func (r *RedisPersistence) SetLatestRunID(runID string) error {
	if err := persistence.ValidateRunID(runID); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.Set(ctx, r.prefixKey(keyLatestRun), runID, 0).Err(); err != nil {
		return fmt.Errorf("failed to set latest run id: %w", err)
	}
	return nil
}

func (r *RedisPersistence) GetLatestRunID() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return "", persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	runID, err := r.client.Get(ctx, r.prefixKey(keyLatestRun)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest run id: %w", err)
	}
	return runID, nil
}

func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis report store closed")
	return nil
}

func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
