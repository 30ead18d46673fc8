package calendar_provider

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/tradiedesk/tradiedesk/internal/test_utils"
	"github.com/tradiedesk/tradiedesk/pkg/calendar"
)

var pgContainer *postgres.PostgresContainer
var openDb func() *pgxpool.Pool

func TestMain(m *testing.M) {
	pgContainer, openDb = test_utils.TestWithDB()
	code := m.Run()
	if err := testcontainers.TerminateContainer(pgContainer); err != nil {
		log.Errorf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func setupStateRepository(t *testing.T) (context.Context, *StateRepositoryImpl) {
	ctx := context.Background()
	db := openDb()
	t.Cleanup(func() {
		db.Close()
		err := pgContainer.Restore(ctx)
		require.NoError(t, err)
	})
	return ctx, NewStateRepository(db)
}

func TestStateRepositoryImpl(t *testing.T) {
	createdAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should consume a stored state once", func(t *testing.T) {
		// given
		ctx, repo := setupStateRepository(t)
		err := repo.StoreState(ctx, OAuthState{Nonce: "n1", UserId: "u1", Provider: calendar.ProviderGoogle, FinalUrl: "/settings", CreatedAt: createdAt})
		require.NoError(t, err)

		// when
		first, err := repo.ConsumeState(ctx, "n1")
		require.NoError(t, err)
		second, err := repo.ConsumeState(ctx, "n1")
		require.NoError(t, err)

		// then
		require.NotNil(t, first)
		assert.Equal(t, "u1", first.UserId)
		assert.Equal(t, calendar.ProviderGoogle, first.Provider)
		assert.Equal(t, "/settings", first.FinalUrl)
		assert.True(t, createdAt.Equal(first.CreatedAt))
		assert.Nil(t, second)
	})

	t.Run("should return nil for an unknown nonce", func(t *testing.T) {
		ctx, repo := setupStateRepository(t)

		state, err := repo.ConsumeState(ctx, "missing")

		require.NoError(t, err)
		assert.Nil(t, state)
	})

	t.Run("should keep one pending state per user and provider", func(t *testing.T) {
		// given
		ctx, repo := setupStateRepository(t)
		require.NoError(t, repo.StoreState(ctx, OAuthState{Nonce: "old", UserId: "u1", Provider: calendar.ProviderGoogle, FinalUrl: "/", CreatedAt: createdAt}))
		require.NoError(t, repo.StoreState(ctx, OAuthState{Nonce: "outlook", UserId: "u1", Provider: calendar.ProviderOutlook, FinalUrl: "/", CreatedAt: createdAt}))
		require.NoError(t, repo.StoreState(ctx, OAuthState{Nonce: "other", UserId: "u2", Provider: calendar.ProviderGoogle, FinalUrl: "/", CreatedAt: createdAt}))

		// when
		err := repo.StoreState(ctx, OAuthState{Nonce: "new", UserId: "u1", Provider: calendar.ProviderGoogle, FinalUrl: "/", CreatedAt: createdAt})

		// then
		require.NoError(t, err)
		for nonce, present := range map[string]bool{"old": false, "new": true, "outlook": true, "other": true} {
			state, err := repo.ConsumeState(ctx, nonce)
			require.NoError(t, err)
			assert.Equal(t, present, state != nil, nonce)
		}
	})
}
