package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestS3Storage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:RELEASE.2024-01-16T16-07-38Z",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     "minioadmin",
				"MINIO_ROOT_PASSWORD": "minioadmin",
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	s, err := NewS3Storage(ctx, S3Config{
		Endpoint:  fmt.Sprintf("%s:%s", host, port.Port()),
		Bucket:    "deliveries",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	require.NoError(t, err)

	key := "deliveries/2026-03-04/job-1.json"
	require.NoError(t, s.Put(ctx, key, []byte(`{"job_id":"job-1"}`), &Metadata{ContentType: "application/json", JobID: "job-1"}))

	content, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"job_id":"job-1"}`, string(content))

	keys, err := s.List(ctx, "deliveries/")
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)

	require.NoError(t, s.Delete(ctx, key))
	keys, err = s.List(ctx, "deliveries/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}
