//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/opdflow/internal/domain/visitflow"
	"github.com/ehr/opdflow/internal/platform/db"
)

type testDB struct {
	Pool       *pgxpool.Pool
	ConnStr    string
	Migrations *db.Migrator
}

// globalDB is the package-level test database, initialized once in TestMain.
var globalDB *testDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr, cleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "create pool: %v\n", err)
		os.Exit(1)
	}

	globalDB = &testDB{
		Pool:       pool,
		ConnStr:    connStr,
		Migrations: db.NewMigrator(pool, os.DirFS(findMigrationsDir())),
	}
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// findMigrationsDir locates the migrations directory relative to this file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

func createTenantSchema(t *testing.T, ctx context.Context, tenantID string) {
	t.Helper()
	if err := db.CreateTenantSchema(ctx, globalDB.Pool, tenantID, globalDB.Migrations); err != nil {
		t.Fatalf("create tenant schema %s: %v", tenantID, err)
	}
}

func dropTenantSchema(t *testing.T, ctx context.Context, tenantID string) {
	t.Helper()
	schema := fmt.Sprintf("tenant_%s", tenantID)
	if _, err := globalDB.Pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
		t.Logf("warning: failed to drop schema %s: %v", schema, err)
	}
}

// withTenantConn acquires a connection bound to the tenant schema and
// passes it to fn on the context, the way TenantMiddleware does.
func withTenantConn(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	conn, err := globalDB.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	schema := fmt.Sprintf("tenant_%s", tenantID)
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", schema)); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	return fn(db.WithConn(db.WithTenant(ctx, tenantID), conn))
}

// uniqueTenantID generates a unique tenant ID for test isolation.
func uniqueTenantID(prefix string) string {
	short := strings.ReplaceAll(uuid.New().String()[:8], "-", "")
	return fmt.Sprintf("%s_%s", prefix, short)
}

func newService() *visitflow.Service {
	return visitflow.NewService(visitflow.NewRepo(globalDB.Pool))
}

func actorFor(tenantID, userID string) visitflow.Actor {
	return visitflow.Actor{UserID: userID, TenantID: tenantID, FacilityID: "fac-1"}
}
