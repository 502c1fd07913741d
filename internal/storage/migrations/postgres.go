package migrations

import (
	"context"
	"fmt"

	"carelink-bridge/internal/storage/postgres"
)

// RunPostgresMigrations creates the entries table if needed.
// Every script uses IF NOT EXISTS, so reruns are no-ops.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	scripts, err := loadScripts(postgresFS, "postgres")
	if err != nil {
		return err
	}
	for _, s := range scripts {
		if _, err := pool.Exec(ctx, s.body); err != nil {
			return fmt.Errorf("apply migration %s: %w", s.name, err)
		}
	}
	return nil
}
