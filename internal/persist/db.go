package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/l1jgo/roster/internal/config"
	"go.uber.org/zap"
)

// DB wraps the pgx pool shared by the account, character and audit repos.
type DB struct {
	Pool *pgxpool.Pool
	log  *zap.Logger
}

// PoolConfig turns the [database] section into a pool config. appName shows
// up as application_name in pg_stat_activity, so several servers sharing one
// database can be told apart.
func PoolConfig(cfg config.DatabaseConfig, appName string) (*pgxpool.Config, error) {
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max_open_conns must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 || cfg.MaxIdleConns > cfg.MaxOpenConns {
		return nil, fmt.Errorf("max_idle_conns must be between 0 and max_open_conns (%d), got %d",
			cfg.MaxOpenConns, cfg.MaxIdleConns)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if appName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = appName
	}
	return poolCfg, nil
}

func NewDB(ctx context.Context, cfg config.DatabaseConfig, appName string, log *zap.Logger) (*DB, error) {
	poolCfg, err := PoolConfig(cfg, appName)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	log.Info("database connected",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.String("application", appName),
		zap.Int32("max_conns", poolCfg.MaxConns),
	)
	return &DB{Pool: pool, log: log}, nil
}

// Close logs how busy the pool was over the server's lifetime and closes it.
func (db *DB) Close() {
	st := db.Pool.Stat()
	db.log.Info("database closed",
		zap.Int64("acquires", st.AcquireCount()),
		zap.Duration("acquire_wait", st.AcquireDuration()),
		zap.Int64("empty_acquires", st.EmptyAcquireCount()),
		zap.Int32("max_conns", st.MaxConns()),
	)
	db.Pool.Close()
}
