// Package testutil provides test helpers including container management.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ludoteca/ludoteca/internal/config"
	"github.com/ludoteca/ludoteca/internal/storage/postgres"
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
// Postcondition: The room and session tables exist in the test database.
func (pc *PostgresContainer) ApplyMigrations(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id            UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
			email         VARCHAR(255) NOT NULL UNIQUE,
			username      VARCHAR(50)  NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			display_name  VARCHAR(100),
			created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS games (
			id          UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
			slug        VARCHAR(100) NOT NULL UNIQUE,
			name        VARCHAR(200) NOT NULL,
			description TEXT,
			category    VARCHAR(50)  NOT NULL DEFAULT '',
			min_players INTEGER      NOT NULL DEFAULT 1,
			max_players INTEGER      NOT NULL DEFAULT 4,
			is_active   BOOLEAN      DEFAULT TRUE,
			created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS rooms (
			id          UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
			code        VARCHAR(8)   NOT NULL UNIQUE,
			game_slug   VARCHAR(100) NOT NULL,
			host_id     UUID         NOT NULL REFERENCES users (id),
			config      JSONB,
			status      VARCHAR(20)  NOT NULL DEFAULT 'waiting',
			max_players INTEGER      NOT NULL,
			created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS game_sessions (
			id          UUID        PRIMARY KEY DEFAULT gen_random_uuid(),
			game_id     UUID        NOT NULL REFERENCES games (id),
			room_id     UUID        REFERENCES rooms (id),
			config      JSONB,
			final_state JSONB,
			started_at  TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS player_results (
			id         UUID        PRIMARY KEY DEFAULT gen_random_uuid(),
			session_id UUID        NOT NULL REFERENCES game_sessions (id),
			user_id    UUID        NOT NULL REFERENCES users (id),
			score      INTEGER     NOT NULL DEFAULT 0,
			rank       INTEGER     NOT NULL,
			stats      JSONB,
			xp_earned  INTEGER     NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS player_results_unique
			ON player_results (session_id, user_id);
	`

	_, err := pc.RawPool.Exec(ctx, schema)
	if err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	t.Logf("migrations applied [%s]", time.Since(start))
}

// CreateUser inserts a user row and returns its id. Room and result rows
// reference users, so tests seed them here.
func CreateUser(t *testing.T, db *pgxpool.Pool, username string) string {
	t.Helper()
	var id string
	err := db.QueryRow(context.Background(),
		`INSERT INTO users (email, username, password_hash, display_name)
		 VALUES ($1, $2, 'x', $3)
		 RETURNING id`,
		username+"@test.local", username, username,
	).Scan(&id)
	if err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return id
}

// NewPool starts a disposable database with the schema applied and returns
// its pool. The container is terminated via t.Cleanup.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pc := NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return pc.RawPool
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
