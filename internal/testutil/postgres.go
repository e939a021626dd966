// Package testutil provides test helpers including container management.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dropforge/dropforge/internal/config"
	"github.com/dropforge/dropforge/internal/storage/postgres"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	container testcontainers.Container
	Pool      *postgres.Pool
	RawPool   *pgxpool.Pool
	Config    config.DatabaseConfig
}

// NewPostgresContainer starts a PostgreSQL test container and returns
// a connected Pool.
//
// Precondition: Docker must be available.
// Postcondition: Returns a running container with a connected pool,
// or fails the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("getting container host: %v", err)
	}

	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("getting mapped port: %v", err)
	}

	dbCfg := config.DatabaseConfig{
		Host:            host,
		Port:            mappedPort.Int(),
		User:            "test",
		Password:        "test",
		Name:            "test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	pool, err := postgres.NewPool(ctx, dbCfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v [%s]", err, time.Since(start))
	}

	t.Logf("postgres container started [%s]", time.Since(start))

	pc := &PostgresContainer{
		container: container,
		Pool:      pool,
		RawPool:   pool.DB(),
		Config:    dbCfg,
	}

	t.Cleanup(func() {
		pool.Close()
		_ = container.Terminate(ctx)
	})

	return pc
}

// ApplyMigrations runs the schema creation SQL directly for tests.
// This avoids requiring the migrate tool in the test environment.
//
// Precondition: Pool must be connected.
// Postcondition: All application tables exist in the test database.
func (pc *PostgresContainer) ApplyMigrations(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	schema := `
		CREATE TABLE IF NOT EXISTS balances (
			user_id    VARCHAR(64)  PRIMARY KEY,
			balance    BIGINT       NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS pity_states (
			user_id    VARCHAR(64)  NOT NULL,
			scope_id   VARCHAR(128) NOT NULL,
			tier       VARCHAR(16)  NOT NULL,
			since_last INT          NOT NULL DEFAULT 0,
			threshold  INT          NOT NULL,
			updated_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, scope_id, tier)
		);

		CREATE TABLE IF NOT EXISTS outcomes (
			id             UUID         PRIMARY KEY,
			user_id        VARCHAR(64)  NOT NULL,
			case_id        VARCHAR(128) NOT NULL,
			item_name      VARCHAR(128) NOT NULL,
			item_value     BIGINT       NOT NULL,
			item_weight    INT          NOT NULL,
			tier           VARCHAR(16)  NOT NULL,
			forced_by_pity BOOLEAN      NOT NULL DEFAULT FALSE,
			throttled      BOOLEAN      NOT NULL DEFAULT FALSE,
			committed_at   TIMESTAMPTZ  NOT NULL,
			decision       VARCHAR(8),
			payout         BIGINT,
			settled_at     TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_outcomes_user ON outcomes (user_id, committed_at);

		CREATE TABLE IF NOT EXISTS inventory (
			id             BIGSERIAL    PRIMARY KEY,
			user_id        VARCHAR(64)  NOT NULL,
			item_name      VARCHAR(128) NOT NULL,
			item_value     BIGINT       NOT NULL,
			tier           VARCHAR(16)  NOT NULL,
			source_case_id VARCHAR(128) NOT NULL,
			acquired_at    TIMESTAMPTZ  NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_inventory_user ON inventory (user_id, acquired_at);

		CREATE TABLE IF NOT EXISTS house_revenue (
			bracket    VARCHAR(64)  PRIMARY KEY,
			net        BIGINT       NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);
	`

	_, err := pc.RawPool.Exec(ctx, schema)
	if err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	t.Logf("migrations applied [%s]", time.Since(start))
}

var (
	sharedMu   sync.Mutex
	sharedPool *pgxpool.Pool
)

// NewPool returns a migrated connection pool backed by a PostgreSQL
// container shared across tests in the process. The container is started
// on first use and reaped by testcontainers when the process exits.
//
// Precondition: Docker must be available.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedPool != nil {
		return sharedPool
	}

	pc := newSharedContainer(t)
	pc.ApplyMigrations(t)
	sharedPool = pc.RawPool
	return sharedPool
}

// newSharedContainer is NewPostgresContainer without the per-test cleanup,
// so the pool survives for the rest of the test binary.
func newSharedContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("getting container host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("getting mapped port: %v", err)
	}

	dbCfg := config.DatabaseConfig{
		Host:            host,
		Port:            mappedPort.Int(),
		User:            "test",
		Password:        "test",
		Name:            "test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	pool, err := postgres.NewPool(ctx, dbCfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v [%s]", err, time.Since(start))
	}

	return &PostgresContainer{
		container: container,
		Pool:      pool,
		RawPool:   pool.DB(),
		Config:    dbCfg,
	}
}

// DSN returns the connection string for the test database.
func (pc *PostgresContainer) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		pc.Config.User, pc.Config.Password,
		pc.Config.Host, pc.Config.Port,
		pc.Config.Name, pc.Config.SSLMode,
	)
}
