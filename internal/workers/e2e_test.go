package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kosarica/chunk-service/internal/aggregator"
	"github.com/kosarica/chunk-service/internal/callbacks"
	"github.com/kosarica/chunk-service/internal/database"
	"github.com/kosarica/chunk-service/internal/generation"
	apphttp "github.com/kosarica/chunk-service/internal/http"
	"github.com/kosarica/chunk-service/internal/http/ratelimit"
	"github.com/kosarica/chunk-service/internal/settings"
	"github.com/kosarica/chunk-service/internal/storage"
	"github.com/kosarica/chunk-service/internal/sweepers"
	"github.com/kosarica/chunk-service/internal/taskqueue"
	"github.com/kosarica/chunk-service/internal/testdb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchFlowsFromEnqueueToWebhook(t *testing.T) {
	pool := testdb.New(t)
	logger := zerolog.Nop()

	// uppercases the single user message
	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generation.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": strings.ToUpper(req.Messages[0].Content)}},
		})
	}))
	defer service.Close()

	received := make(chan callbacks.Payload, 4)
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p callbacks.Payload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		received <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	queue := taskqueue.New(pool, taskqueue.Config{MaxSize: 100, ChunkSizeLimit: 100}, logger)
	agg := aggregator.New(pool, logger)
	provider := settings.NewProvider(settings.NewPostgresStore(pool), settings.APIConfig{
		APIKey: "sk-test", BaseURL: service.URL, Model: "m", TokenLimit: 64,
	}, logger)
	client := apphttp.NewClient("chunk-service-test")

	archive, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	callbackDispatcher := callbacks.NewDispatcher(queue, agg, client, callbacks.Config{
		AllowedDomains: []string{"*"},
		AuthToken:      "shared",
		RetryLimit:     2,
		RetryDelay:     10 * time.Millisecond,
		Timeout:        time.Second,
	}, logger)
	sweeper := sweepers.NewCallbackSweeper(queue, callbackDispatcher, archive, logger, time.Hour, 2)

	dispatcher := NewDispatcher(Deps{
		Queue:     queue,
		Results:   agg,
		Limiter:   ratelimit.NewLimiter(ratelimit.Config{MaxRPM: 100, MaxRPH: 1000}, logger),
		Settings:  provider,
		Generator: generation.NewClient(client, time.Second),
	}, Config{MaxRetries: 3, BackoffFactor: 1.5, BackoffUnit: 10 * time.Millisecond, PollInterval: time.Hour}, logger).
		WithSweepTrigger(sweeper)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Start(ctx)
	go dispatcher.Start(ctx)

	jobID, err := queue.EnqueueBatch(ctx, []taskqueue.BatchItem{
		{Text: "a", Priority: 1}, {Text: "b", Priority: 1}, {Text: "c", Priority: 1},
	}, webhook.URL+"/done")
	require.NoError(t, err)

	select {
	case p := <-received:
		assert.Equal(t, jobID, p.JobID)
		assert.Equal(t, "A B C", p.FinalResult)
		assert.Equal(t, "shared", p.AuthToken)
	case <-time.After(20 * time.Second):
		t.Fatal("webhook was not called")
	}

	assert.Eventually(t, func() bool {
		job, err := queue.GetJob(ctx, jobID)
		return err == nil && job.Status == database.JobCallbackDispatched
	}, 10*time.Second, 20*time.Millisecond)

	result, ok, err := agg.FinalResult(ctx, jobID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A B C", result)

	assert.Eventually(t, func() bool {
		keys, err := archive.List(ctx, "deliveries/")
		return err == nil && len(keys) == 1
	}, 5*time.Second, 20*time.Millisecond)

	// the webhook is called exactly once
	select {
	case p := <-received:
		t.Fatalf("unexpected second delivery for %s", p.JobID)
	case <-time.After(200 * time.Millisecond):
	}
}
