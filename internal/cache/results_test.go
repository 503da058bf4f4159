package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestResultCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	c, err := NewResultCache(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()), time.Minute, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	_, ok, err := c.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "job-1", "A B C"))
	v, ok, err := c.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "A B C", v)

	ttl, err := c.client.TTL(ctx, keyPrefix+"job-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, c.Delete(ctx, "job-1"))
	_, ok, err = c.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewResultCacheRejectsBadURL(t *testing.T) {
	_, err := NewResultCache(context.Background(), "not-a-url", time.Minute, zerolog.Nop())
	assert.Error(t, err)
}
