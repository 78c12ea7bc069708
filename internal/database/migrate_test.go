//go:build integration

package database_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saturnino-fabrica-de-software/proctor/internal/database"
)

func startPostgres(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "proctor_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://test:test@%s:%s/proctor_test?sslmode=disable", host, port.Port())
}

// TestMigratorIntegration tests the migration functionality
func TestMigratorIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	dsn := startPostgres(t)
	db, err := database.NewPool(database.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	t.Run("Up runs migrations successfully", func(t *testing.T) {
		migrator, err := database.NewMigrator(db, "proctor_test")
		require.NoError(t, err)
		defer func() { _ = migrator.Close() }()

		require.NoError(t, migrator.Up())
		// Second run is a no-op
		require.NoError(t, migrator.Up())

		assertTableExists(t, db, "violations")
	})

	t.Run("Version returns current version", func(t *testing.T) {
		migrator, err := database.NewMigrator(db, "proctor_test")
		require.NoError(t, err)
		defer func() { _ = migrator.Close() }()

		version, dirty, err := migrator.Version()
		require.NoError(t, err)
		assert.False(t, dirty, "migration should not be dirty")
		assert.Equal(t, uint(1), version, "should be at version 1")
	})

	t.Run("violations table has correct columns", func(t *testing.T) {
		columns := getTableColumns(t, db, "violations")
		for _, col := range []string{"id", "student_id", "exam_id", "violation_type", "confidence", "timestamp", "details"} {
			assert.Contains(t, columns, col, "violations should have column %s", col)
		}
	})

	t.Run("Down drops the table", func(t *testing.T) {
		migrator, err := database.NewMigrator(db, "proctor_test")
		require.NoError(t, err)
		defer func() { _ = migrator.Close() }()

		require.NoError(t, migrator.Steps(-1))

		var exists bool
		require.NoError(t, db.QueryRow(tableExistsQuery, "violations").Scan(&exists))
		assert.False(t, exists)
	})
}

func TestNewPgxPoolIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	dsn := startPostgres(t)
	ctx := context.Background()

	pool, err := database.NewPgxPool(ctx, database.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	defer pool.Close()

	assert.NoError(t, database.HealthCheck(ctx, pool))
	assert.Equal(t, int32(25), pool.Config().MaxConns)
}

const tableExistsQuery = `
	SELECT EXISTS (
		SELECT FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_name = $1
	)
`

func assertTableExists(t *testing.T, db *sql.DB, tableName string) {
	t.Helper()

	var exists bool
	err := db.QueryRow(tableExistsQuery, tableName).Scan(&exists)

	require.NoError(t, err)
	assert.True(t, exists, "table %s should exist", tableName)
}

func getTableColumns(t *testing.T, db *sql.DB, tableName string) []string {
	t.Helper()

	rows, err := db.Query(`
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = 'public'
		AND table_name = $1
		ORDER BY ordinal_position
	`, tableName)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var columns []string
	for rows.Next() {
		var col string
		require.NoError(t, rows.Scan(&col))
		columns = append(columns, col)
	}

	return columns
}
