package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	"github.com/stratadb/strata/pkg/adapter"
	"github.com/stratadb/strata/pkg/observability/logger"
)

const metadataTable = "schema_migrations"

// Runner applies migrations through an adapter's raw statement surface.
// Each migration runs inside an adapter transaction together with its
// metadata record, so a failed script leaves no trace.
type Runner struct {
	adapter    adapter.Adapter
	logger     logger.Logger
	migrations []Migration
}

// NewRunner loads migrations from dir and binds them to the adapter.
func NewRunner(a adapter.Adapter, files fs.FS, dir string, log logger.Logger) (*Runner, error) {
	if a == nil {
		return nil, fmt.Errorf("adapter is required")
	}
	migrations, err := LoadMigrations(files, dir)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{adapter: a, logger: log, migrations: migrations}, nil
}

// Up applies every pending migration in version order and returns how
// many were applied.
func (r *Runner) Up(ctx context.Context) (int, error) {
	if err := r.ensureMetadataTable(ctx); err != nil {
		return 0, err
	}
	applied, err := r.appliedSet(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, migration := range r.migrations {
		if _, done := applied[migration.Version]; done {
			continue
		}

		err := r.adapter.Transaction(ctx, adapter.TxOptions{}, func(txCtx context.Context) error {
			if err := r.adapter.Execute(txCtx, migration.UpSQL); err != nil {
				return fmt.Errorf("apply migration %d_%s: %w", migration.Version, migration.Name, err)
			}
			insert := fmt.Sprintf("INSERT INTO %s (version) VALUES (%d)", metadataTable, migration.Version)
			if err := r.adapter.Execute(txCtx, insert); err != nil {
				return fmt.Errorf("record migration %d: %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return count, err
		}

		r.logger.Info("migration applied", "version", migration.Version, "name", migration.Name)
		count++
	}

	return count, nil
}

// Down rolls back up to steps applied migrations, newest first, and
// returns how many were reverted.
func (r *Runner) Down(ctx context.Context, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	if err := r.ensureMetadataTable(ctx); err != nil {
		return 0, err
	}
	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i] > applied[j] })
	if steps > len(applied) {
		steps = len(applied)
	}

	count := 0
	for _, version := range applied[:steps] {
		migration, ok := r.migrationByVersion(version)
		if !ok {
			return count, fmt.Errorf("migration definition not found for applied version %d", version)
		}
		if migration.DownSQL == "" {
			return count, fmt.Errorf("down migration missing for version %d", version)
		}

		err := r.adapter.Transaction(ctx, adapter.TxOptions{}, func(txCtx context.Context) error {
			if err := r.adapter.Execute(txCtx, migration.DownSQL); err != nil {
				return fmt.Errorf("rollback migration %d_%s: %w", migration.Version, migration.Name, err)
			}
			remove := fmt.Sprintf("DELETE FROM %s WHERE version = %d", metadataTable, migration.Version)
			if err := r.adapter.Execute(txCtx, remove); err != nil {
				return fmt.Errorf("delete migration record %d: %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return count, err
		}

		r.logger.Info("migration reverted", "version", migration.Version, "name", migration.Name)
		count++
	}

	return count, nil
}

// Status reports applied and pending migrations.
func (r *Runner) Status(ctx context.Context) (*Status, error) {
	if err := r.ensureMetadataTable(ctx); err != nil {
		return nil, err
	}
	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i] < applied[j] })

	appliedSet := make(map[int64]struct{}, len(applied))
	for _, version := range applied {
		appliedSet[version] = struct{}{}
	}

	pending := make([]PendingMigration, 0)
	for _, migration := range r.migrations {
		if _, done := appliedSet[migration.Version]; !done {
			pending = append(pending, PendingMigration{Version: migration.Version, Name: migration.Name})
		}
	}

	return &Status{Applied: applied, Pending: pending}, nil
}

func (r *Runner) ensureMetadataTable(ctx context.Context) error {
	create := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (version BIGINT PRIMARY KEY, applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)",
		metadataTable,
	)
	if err := r.adapter.Execute(ctx, create); err != nil {
		return fmt.Errorf("ensure %s table: %w", metadataTable, err)
	}
	return nil
}

func (r *Runner) appliedSet(ctx context.Context) (map[int64]struct{}, error) {
	versions, err := r.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[int64]struct{}, len(versions))
	for _, version := range versions {
		set[version] = struct{}{}
	}
	return set, nil
}

func (r *Runner) appliedVersions(ctx context.Context) ([]int64, error) {
	records, err := r.adapter.Fetch(ctx, fmt.Sprintf("SELECT version FROM %s", metadataTable))
	if err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}

	versions := make([]int64, 0, len(records))
	for _, record := range records {
		version, err := versionValue(record["version"])
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, nil
}

func (r *Runner) migrationByVersion(version int64) (Migration, bool) {
	for _, migration := range r.migrations {
		if migration.Version == version {
			return migration, true
		}
	}
	return Migration{}, false
}

// versionValue normalizes the driver-dependent scan type of the version
// column. MySQL's text protocol hands integers back as strings.
func versionValue(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return parseVersion(n)
	case []byte:
		return parseVersion(string(n))
	default:
		return 0, fmt.Errorf("unexpected migration version type %T", v)
	}
}

func parseVersion(s string) (int64, error) {
	var version int64
	if _, err := fmt.Sscanf(s, "%d", &version); err != nil {
		return 0, fmt.Errorf("parse migration version %q: %w", s, err)
	}
	return version, nil
}
