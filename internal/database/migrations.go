package database

import (
	"context"
	"fmt"

	"deliverus/internal/storage"
	"deliverus/migrations"
)

// RunMigrations applies the embedded PostgreSQL migrations that are not yet
// recorded in schema_migrations, in version order.
func (db *DB) RunMigrations(ctx context.Context) error {
	// Create migrations table if it doesn't exist
	err := db.createMigrationsTable(ctx)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	pending, err := migrations.Load(migrations.DialectPostgres)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	// Get already applied migrations
	appliedMigrations, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, m := range pending {
		if appliedMigrations[m.Name] {
			continue
		}

		if err := db.runMigration(ctx, m); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", m.Name, err)
		}

		db.logger.Info("migration_applied", fmt.Sprintf("Applied migration: %s", m.Name), "startup", map[string]interface{}{
			"version": m.Version.String(),
		})
	}

	return nil
}

// createMigrationsTable creates the migrations tracking table
func (db *DB) createMigrationsTable(ctx context.Context) error {
	sql := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			migration_name VARCHAR(255) NOT NULL UNIQUE,
			version VARCHAR(64) NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`
	return db.Exec(ctx, sql)
}

// getAppliedMigrations returns a set of already applied migrations
func (db *DB) getAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	applied := make(map[string]bool)

	rows, err := db.Pool.Query(ctx, "SELECT migration_name FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var migrationName string
		if err := rows.Scan(&migrationName); err != nil {
			return nil, err
		}
		applied[migrationName] = true
	}

	return applied, rows.Err()
}

// runMigration executes a single migration and records it in one transaction
func (db *DB) runMigration(ctx context.Context, m migrations.Migration) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (migration_name, version) VALUES ($1, $2)",
		m.Name, m.Version.String(),
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit(ctx)
}

// VerifySchema checks that every column the queries reference exists.
func (db *DB) VerifySchema(ctx context.Context) error {
	rows, err := db.Pool.Query(ctx, GetSchemaColumnsSQL)
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return fmt.Errorf("failed to read schema: %w", err)
		}
		present[table+"."+column] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	return storage.CheckColumns(present)
}
