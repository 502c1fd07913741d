// Package postgres mirrors uploaded Nightscout entries into PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName identifies mirror sessions in pg_stat_activity.
const ApplicationName = "carelink-bridge"

// MaxMirrorConns caps the pool. The runner writes one batch per cycle and the
// status endpoints read occasionally.
const MaxMirrorConns = 4

// Pool is the connection pool shared by the entry mirror and its migrations.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects to the mirror database and verifies it is reachable.
// A DSN that sets application_name or pool_max_conns keeps its own values.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	cfg, err := poolConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres mirror: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres mirror: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

func poolConfig(dsn string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}
	if cfg.MaxConns > MaxMirrorConns && !strings.Contains(dsn, "pool_max_conns") {
		cfg.MaxConns = MaxMirrorConns
	}
	return cfg, nil
}

// isNotFoundError reports an empty single-row query.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
