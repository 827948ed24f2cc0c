package authstate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-gate/authstate"
	"github.com/jrsteele09/go-auth-gate/internal/errors"
	"github.com/jrsteele09/go-auth-gate/kvstore"
)

func TestRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("create then consume round-trip", func(t *testing.T) {
		store := kvstore.NewMemoryStore()
		defer store.Close()
		repo := authstate.NewRepo(store, 10*time.Minute)

		token, err := repo.Create(ctx, "/protected/page?tab=2")
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(token), 16)

		returnURL, err := repo.Consume(ctx, token)
		require.NoError(t, err)
		require.Equal(t, "/protected/page?tab=2", returnURL)
	})

	t.Run("second consume returns not found", func(t *testing.T) {
		store := kvstore.NewMemoryStore()
		defer store.Close()
		repo := authstate.NewRepo(store, 10*time.Minute)

		token, err := repo.Create(ctx, "/somewhere")
		require.NoError(t, err)

		_, err = repo.Consume(ctx, token)
		require.NoError(t, err)

		_, err = repo.Consume(ctx, token)
		require.ErrorIs(t, err, errors.ErrStateNotFound)
	})

	t.Run("unknown token", func(t *testing.T) {
		store := kvstore.NewMemoryStore()
		defer store.Close()
		repo := authstate.NewRepo(store, 10*time.Minute)

		_, err := repo.Consume(ctx, "never-issued")
		require.ErrorIs(t, err, errors.ErrStateNotFound)
	})

	t.Run("empty token", func(t *testing.T) {
		store := kvstore.NewMemoryStore()
		defer store.Close()
		repo := authstate.NewRepo(store, 10*time.Minute)

		_, err := repo.Consume(ctx, "")
		require.ErrorIs(t, err, errors.ErrStateNotFound)
	})

	t.Run("state expires after ttl", func(t *testing.T) {
		store := kvstore.NewMemoryStore()
		defer store.Close()
		repo := authstate.NewRepo(store, 10*time.Minute)

		now := time.Now()
		kvstore.NowTimeFunc = func() time.Time { return now }
		defer func() { kvstore.NowTimeFunc = time.Now }()

		token, err := repo.Create(ctx, "/somewhere")
		require.NoError(t, err)

		now = now.Add(10*time.Minute + time.Second)
		_, err = repo.Consume(ctx, token)
		require.ErrorIs(t, err, errors.ErrStateNotFound)
	})

	t.Run("tokens are unique", func(t *testing.T) {
		store := kvstore.NewMemoryStore()
		defer store.Close()
		repo := authstate.NewRepo(store, 10*time.Minute)

		seen := map[string]bool{}
		for range 50 {
			token, err := repo.Create(ctx, "/x")
			require.NoError(t, err)
			require.False(t, seen[token])
			seen[token] = true
		}
	})
}
