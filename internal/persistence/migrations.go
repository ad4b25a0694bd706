package persistence

import (
	"context"
	"embed"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// The identity and permission-override schema ships with the binary; there is
// no external migrations directory to deploy alongside it.
//
//go:embed migrations/*.sql
var schemaFS embed.FS

// RunMigrations applies the embedded schema files in lexical order. Every
// statement is idempotent (CREATE IF NOT EXISTS), so re-running on boot is
// safe.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	if pool == nil {
		logger.Warn("no postgres pool, identity schema not applied")
		return nil
	}

	entries, err := schemaFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("list schema files: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		ddl, err := schemaFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(ddl)); err != nil {
			return fmt.Errorf("apply schema %s: %w", name, err)
		}
		logger.Info("schema applied", zap.String("file", name))
	}
	return nil
}
