//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"shopfront/internal/domain"
	"shopfront/internal/repository/postgres"
	"shopfront/internal/security"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a PostgreSQL container and returns a connection
// plus the connection string for the notification listener.
func setupPostgres(t *testing.T) (*sql.DB, string, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connStr := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err, "failed to connect to PostgreSQL")

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS browser_states (
			id VARCHAR(64) PRIMARY KEY,
			token TEXT NOT NULL,
			role VARCHAR(16) NOT NULL,
			profile JSONB,
			pending_product_id BIGINT,
			pending_quantity INTEGER,
			updated_at TIMESTAMPTZ NOT NULL
		);
	`)
	require.NoError(t, err, "failed to create schema")

	cleanup := func() {
		db.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return db, connStr, cleanup
}

func TestStateRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, connStr, cleanup := setupPostgres(t)
	defer cleanup()

	sealer := security.NewSealer("integration-secret")
	repo, err := postgres.NewStateRepository(db, sealer)
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("save_load_round_trip", func(t *testing.T) {
		state := &domain.BrowserState{
			ID: "ctx-round-trip",
			Session: domain.Session{
				Token:   "tok-1",
				Role:    domain.RoleUser,
				Profile: &domain.Profile{ID: 1, Name: "Alice", Email: "alice@example.com"},
			},
			Intent: &domain.DeferredIntent{ProductID: 7, Quantity: 3},
		}
		require.NoError(t, repo.Save(ctx, state))

		loaded, err := repo.Load(ctx, "ctx-round-trip")
		require.NoError(t, err)
		assert.Equal(t, state.Session.Token, loaded.Session.Token)
		assert.Equal(t, state.Session.Role, loaded.Session.Role)
		require.NotNil(t, loaded.Session.Profile)
		assert.Equal(t, "Alice", loaded.Session.Profile.Name)
		require.NotNil(t, loaded.Intent)
		assert.Equal(t, *state.Intent, *loaded.Intent)
	})

	t.Run("token_is_not_stored_in_clear", func(t *testing.T) {
		state := &domain.BrowserState{
			ID:      "ctx-sealed",
			Session: domain.Session{Token: "super-secret-token", Role: domain.RoleUser},
		}
		require.NoError(t, repo.Save(ctx, state))

		var stored string
		require.NoError(t, db.QueryRow(
			`SELECT token FROM browser_states WHERE id = $1`, "ctx-sealed").Scan(&stored))
		assert.NotContains(t, stored, "super-secret-token")
	})

	t.Run("save_overwrites_previous_state", func(t *testing.T) {
		id := "ctx-overwrite"
		require.NoError(t, repo.Save(ctx, &domain.BrowserState{
			ID:      id,
			Session: domain.Session{Token: "tok-old", Role: domain.RoleUser},
			Intent:  &domain.DeferredIntent{ProductID: 1, Quantity: 1},
		}))
		require.NoError(t, repo.Save(ctx, &domain.BrowserState{
			ID:      id,
			Session: domain.Session{Token: "tok-new", Role: domain.RoleAdmin},
		}))

		loaded, err := repo.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "tok-new", loaded.Session.Token)
		assert.Equal(t, domain.RoleAdmin, loaded.Session.Role)
		assert.Nil(t, loaded.Intent)
	})

	t.Run("delete_then_load_not_found", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, &domain.BrowserState{
			ID:      "ctx-deleted",
			Session: domain.Session{Token: "tok", Role: domain.RoleUser},
		}))
		require.NoError(t, repo.Delete(ctx, "ctx-deleted"))

		_, err := repo.Load(ctx, "ctx-deleted")
		assert.ErrorIs(t, err, domain.ErrStateNotFound)
	})

	t.Run("save_notifies_listeners", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		listener, err := postgres.NewStateChangeListener(connStr, logger)
		require.NoError(t, err)
		defer listener.Close()

		// give LISTEN a moment to take effect
		time.Sleep(500 * time.Millisecond)

		require.NoError(t, repo.Save(ctx, &domain.BrowserState{
			ID:      "ctx-notify",
			Session: domain.Session{Token: "tok", Role: domain.RoleUser},
		}))

		select {
		case id := <-listener.Changes():
			assert.Equal(t, "ctx-notify", id)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for state change notification")
		}
	})
}
