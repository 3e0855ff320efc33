//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/authapi/pkg/storage"
	"github.com/platinummonkey/authapi/pkg/storage/storagetest"
)

// setupPostgresContainer starts a throwaway PostgreSQL and returns its URL
func setupPostgresContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	provider.Close()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("authapi_test"),
		tcpostgres.WithUsername("authapi"),
		tcpostgres.WithPassword("authapi_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return url
}

func TestStore_PostgresIntegration(t *testing.T) {
	url := setupPostgresContainer(t)

	storagetest.Run(t, func(t *testing.T) storage.Store {
		ctx := context.Background()
		cfg := storage.DefaultConfig()
		cfg.Type = "postgres"
		cfg.PostgresURL = url

		s, err := New(ctx, cfg, nil)
		require.NoError(t, err)

		// each subtest starts from empty tables
		_, err = s.Connections().Primary().ExecContext(ctx,
			"TRUNCATE organizations, users, teams, permissions, organization_members, team_members RESTART IDENTITY CASCADE")
		require.NoError(t, err)

		t.Cleanup(func() { s.Close() })
		return s
	})
}
