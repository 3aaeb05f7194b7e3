// Package dbtest starts a throwaway Postgres for integration tests and
// applies the project migrations to it.
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dejobratic/orderflow/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	testpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const image = "postgres:16-alpine"

// Database is a migrated container database.
type Database struct {
	URL            string
	MigrationsPath string
	Pool           *pgxpool.Pool
}

// Start launches the container and migrates it. Everything is torn down
// when the test ends.
func Start(t testing.TB) *Database {
	t.Helper()
	ctx := context.Background()

	container, err := testpostgres.Run(ctx, image,
		testpostgres.WithDatabase("orderflow"),
		testpostgres.WithUsername("test"),
		testpostgres.WithPassword("test"),
		testpostgres.BasicWaitStrategies(),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	migrations := filepath.Join(ProjectRoot(t), "migrations")
	if err := database.RunMigrations(url, migrations); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := database.NewPool(ctx, url, database.WithMaxConns(4))
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return &Database{URL: url, MigrationsPath: migrations, Pool: pool}
}

// NewPool is Start for tests that only need the pool.
func NewPool(t testing.TB) *pgxpool.Pool {
	t.Helper()
	return Start(t).Pool
}

// ProjectRoot walks up from the working directory to the directory holding
// go.mod.
func ProjectRoot(t testing.TB) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("working directory: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("go.mod not found above working directory")
		}
		dir = parent
	}
}
