package settings

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kosarica/chunk-service/internal/testdb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
	loads  int
	err    error
}

func (m *memoryStore) Load(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *memoryStore) Save(ctx context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func TestAPIConfigIncomplete(t *testing.T) {
	store := &memoryStore{values: map[string]string{KeyAPIKey: "key"}}
	p := NewProvider(store, APIConfig{BaseURL: "https://api.example.com/v1/messages"}, zerolog.Nop())

	_, err := p.APIConfig(context.Background())
	require.ErrorIs(t, err, ErrConfigurationIncomplete)
	assert.Contains(t, err.Error(), KeyModel)
}

func TestAPIConfigReloadsUntilComplete(t *testing.T) {
	store := &memoryStore{values: map[string]string{KeyAPIKey: "key", KeyBaseURL: "https://api.example.com"}}
	p := NewProvider(store, APIConfig{}, zerolog.Nop())
	ctx := context.Background()

	_, err := p.APIConfig(ctx)
	require.ErrorIs(t, err, ErrConfigurationIncomplete)

	// a value written behind the provider's back is picked up on the next call
	require.NoError(t, store.Save(ctx, map[string]string{KeyModel: "claude-3-haiku"}))

	cfg, err := p.APIConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "claude-3-haiku", cfg.Model)
	assert.Equal(t, DefaultTokenLimit, cfg.TokenLimit)

	loads := store.loads
	_, err = p.APIConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, loads, store.loads, "complete config is served from cache")
}

func TestStoredValuesOverrideDefaults(t *testing.T) {
	store := &memoryStore{values: map[string]string{KeyModel: "stored-model", KeyTokenLimit: "2048"}}
	p := NewProvider(store, APIConfig{APIKey: "seed", BaseURL: "https://seed", Model: "seed-model", TokenLimit: 10}, zerolog.Nop())

	cfg, err := p.APIConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "seed", cfg.APIKey)
	assert.Equal(t, "stored-model", cfg.Model)
	assert.Equal(t, 2048, cfg.TokenLimit)
}

func TestUpdate(t *testing.T) {
	store := &memoryStore{}
	p := NewProvider(store, APIConfig{}, zerolog.Nop())
	ctx := context.Background()

	key, base, model, limit := "sk-ant-123456789", "https://api.example.com/v1/messages", "claude", 512
	view, err := p.Update(ctx, UpdateInput{APIKey: &key, BaseURL: &base, Model: &model, TokenLimit: &limit})
	require.NoError(t, err)

	assert.True(t, view.Complete)
	assert.Empty(t, view.Missing)
	assert.Equal(t, "********6789", view.APIKey)
	assert.Equal(t, 512, view.TokenLimit)
	assert.Equal(t, "512", store.values[KeyTokenLimit])

	cfg, err := p.APIConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, key, cfg.APIKey)
}

func TestUpdateRejectsInvalidValues(t *testing.T) {
	p := NewProvider(&memoryStore{}, APIConfig{}, zerolog.Nop())

	bad := "ftp://nowhere"
	_, err := p.Update(context.Background(), UpdateInput{BaseURL: &bad})
	assert.Error(t, err)

	zero := 0
	_, err = p.Update(context.Background(), UpdateInput{TokenLimit: &zero})
	assert.Error(t, err)
}

func TestStoreErrorsPropagate(t *testing.T) {
	p := NewProvider(&memoryStore{err: errors.New("db down")}, APIConfig{}, zerolog.Nop())

	_, err := p.APIConfig(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConfigurationIncomplete)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "********cdef", MaskSecret("abcdef"))
}

func TestPostgresStore(t *testing.T) {
	pool := testdb.New(t)
	ctx := context.Background()
	store := NewPostgresStore(pool)

	values, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, values)

	require.NoError(t, store.Save(ctx, map[string]string{KeyModel: "a", KeyAPIKey: "k"}))
	require.NoError(t, store.Save(ctx, map[string]string{KeyModel: "b"}))

	values, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{KeyModel: "b", KeyAPIKey: "k"}, values)
}
