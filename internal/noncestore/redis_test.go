package noncestore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pagware/payment-gateway/internal/noncestore"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	client := setupRedis(t)
	store := noncestore.NewRedisStore(client)
	ctx := context.Background()

	t.Run("first use is unique, replay is not", func(t *testing.T) {
		ok, err := store.IsUnique(ctx, "provider:pix", "nonce-1")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, store.Store(ctx, "provider:pix", "nonce-1", time.Hour))

		ok, err = store.IsUnique(ctx, "provider:pix", "nonce-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("scopes are independent", func(t *testing.T) {
		require.NoError(t, store.Store(ctx, "provider:card", "shared-nonce", time.Hour))

		ok, err := store.IsUnique(ctx, "provider:boleto", "shared-nonce")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("entries expire after the TTL", func(t *testing.T) {
		require.NoError(t, store.Store(ctx, "provider:pix", "short-lived", 100*time.Millisecond))

		time.Sleep(300 * time.Millisecond)

		ok, err := store.IsUnique(ctx, "provider:pix", "short-lived")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("check-and-store admits exactly one concurrent caller", func(t *testing.T) {
		const workers = 16
		var wg sync.WaitGroup
		admitted := make(chan bool, workers)

		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.CheckAndStore(ctx, "provider:pix", "racy-nonce", time.Hour)
				assert.NoError(t, err)
				admitted <- ok
			}()
		}
		wg.Wait()
		close(admitted)

		var winners int
		for ok := range admitted {
			if ok {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
	})
}
