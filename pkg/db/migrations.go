package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed migrations
var embeddedMigrations embed.FS

// Migration represents a single database migration file.
type Migration struct {
	Version string
	Name    string
}

// MigrationResult holds the result of a migration run.
type MigrationResult struct {
	Applied []string
	Skipped []string
	Errors  []error
}

// MigrationStatusEntry represents a single migration in a status report.
type MigrationStatusEntry struct {
	Version   string
	Name      string
	AppliedAt *time.Time // nil for pending
}

// MigrationStatus represents the complete status of migrations.
type MigrationStatus struct {
	Applied []MigrationStatusEntry // applied and has file
	Pending []MigrationStatusEntry // has file but not applied
	Drift   []MigrationStatusEntry // applied but no file
}

// MigrationsFS returns the embedded migrations for a dialect.
func MigrationsFS(dialect Dialect) (fs.FS, error) {
	return fs.Sub(embeddedMigrations, path.Join("migrations", string(dialect)))
}

// Migrate applies every embedded migration for the database's dialect.
func Migrate(ctx context.Context, db *DB) (*MigrationResult, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	fsys, err := MigrationsFS(db.Dialect)
	if err != nil {
		return nil, err
	}
	return RunMigrations(ctx, db, fsys)
}

// RunMigrations executes all .sql migration files found at the root of fsys.
// Files are executed in alphabetical order (use numeric prefixes like 001_, 002_).
// A migrations tracking table is created to prevent re-running migrations.
func RunMigrations(ctx context.Context, db *DB, fsys fs.FS) (*MigrationResult, error) {
	return runMigrations(ctx, db, fsys, "")
}

// RunMigrationsToTarget executes migrations up to and including targetVersion.
func RunMigrationsToTarget(ctx context.Context, db *DB, fsys fs.FS, targetVersion string) (*MigrationResult, error) {
	if targetVersion == "" {
		return nil, fmt.Errorf("target version is required")
	}
	return runMigrations(ctx, db, fsys, normalizeVersion(targetVersion))
}

func runMigrations(ctx context.Context, db *DB, fsys fs.FS, target string) (*MigrationResult, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}

	result := &MigrationResult{}

	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := findMigrations(fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to find migrations: %w", err)
	}

	if target != "" {
		idx := -1
		for i, m := range migrations {
			if m.Version == target || versionPrefix(m.Version) == target {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("target version %s not found in migrations", target)
		}
		migrations = migrations[:idx+1]
	}

	if len(migrations) == 0 {
		return result, nil
	}

	applied, err := getAppliedMigrations(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if _, ok := applied[m.Version]; ok {
			result.Skipped = append(result.Skipped, m.Version)
			continue
		}

		if err := applyMigration(ctx, db, fsys, m); err != nil {
			err = fmt.Errorf("migration %s failed: %w", m.Version, err)
			result.Errors = append(result.Errors, err)
			return result, err
		}

		result.Applied = append(result.Applied, m.Version)
	}

	return result, nil
}

// ensureMigrationsTable creates the schema migrations tracking table if it doesn't exist.
func ensureMigrationsTable(ctx context.Context, db *DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`
	_, err := db.ExecContext(ctx, query)
	return err
}

// findMigrations discovers all .sql files at the root of fsys.
func findMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".sql") {
			continue
		}

		migrations = append(migrations, Migration{
			Version: normalizeVersion(name),
			Name:    name,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// normalizeVersion removes the .sql suffix from a version string for comparison.
func normalizeVersion(v string) string {
	if len(v) > 4 && strings.ToLower(v[len(v)-4:]) == ".sql" {
		return v[:len(v)-4]
	}
	return v
}

// versionPrefix returns the numeric prefix of a version ("002" for "002_meetings").
func versionPrefix(v string) string {
	prefix, _, _ := strings.Cut(v, "_")
	return prefix
}

// getAppliedMigrations returns applied migration versions with their timestamps.
func getAppliedMigrations(ctx context.Context, db *DB) (map[string]time.Time, error) {
	applied := make(map[string]time.Time)

	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var version, appliedAt string
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, err
		}
		ts, _ := time.Parse(time.RFC3339Nano, appliedAt)
		applied[normalizeVersion(version)] = ts
	}

	return applied, rows.Err()
}

// splitStatements splits a migration file on semicolons that end a line.
func splitStatements(sql string) []string {
	var stmts []string
	var cur strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(cur.String()); stmt != ";" {
				stmts = append(stmts, stmt)
			}
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
}

// applyMigration executes a single migration file in a transaction.
func applyMigration(ctx context.Context, db *DB, fsys fs.FS, m Migration) error {
	content, err := fs.ReadFile(fsys, m.Name)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	stmts := splitStatements(string(content))
	if len(stmts) == 0 {
		return fmt.Errorf("migration file is empty")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint: errcheck

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, db.Rebind("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)"),
		m.Name, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// GetPendingMigrations returns the migrations in fsys that have not been applied yet.
func GetPendingMigrations(ctx context.Context, db *DB, fsys fs.FS) ([]Migration, error) {
	status, err := GetMigrationStatus(ctx, db, fsys)
	if err != nil {
		return nil, err
	}

	pending := make([]Migration, 0, len(status.Pending))
	for _, e := range status.Pending {
		pending = append(pending, Migration{Version: e.Version, Name: e.Name})
	}
	return pending, nil
}

// GetMigrationStatus categorizes migrations into applied, pending and drift
// (applied but no longer present in fsys).
func GetMigrationStatus(ctx context.Context, db *DB, fsys fs.FS) (*MigrationStatus, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}

	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to ensure migrations table: %w", err)
	}

	migrations, err := findMigrations(fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to find migrations: %w", err)
	}

	appliedMap, err := getAppliedMigrations(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	fileVersions := make(map[string]bool, len(migrations))
	status := &MigrationStatus{
		Applied: []MigrationStatusEntry{},
		Pending: []MigrationStatusEntry{},
		Drift:   []MigrationStatusEntry{},
	}

	for _, m := range migrations {
		fileVersions[m.Version] = true
		if appliedAt, ok := appliedMap[m.Version]; ok {
			status.Applied = append(status.Applied, MigrationStatusEntry{
				Version:   m.Version,
				Name:      m.Name,
				AppliedAt: &appliedAt,
			})
		} else {
			status.Pending = append(status.Pending, MigrationStatusEntry{
				Version: m.Version,
				Name:    m.Name,
			})
		}
	}

	for version, appliedAt := range appliedMap {
		if !fileVersions[version] {
			status.Drift = append(status.Drift, MigrationStatusEntry{
				Version:   version,
				Name:      version + ".sql",
				AppliedAt: &appliedAt,
			})
		}
	}
	sort.Slice(status.Drift, func(i, j int) bool {
		return status.Drift[i].Version < status.Drift[j].Version
	})

	return status, nil
}
