package settings

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrConfigurationIncomplete is returned when a required API setting is missing
var ErrConfigurationIncomplete = errors.New("api configuration incomplete")

// ErrInvalidSetting is returned by Update for values that cannot be stored
var ErrInvalidSetting = errors.New("invalid setting")

// Keys of the configuration table
const (
	KeyAPIKey     = "CLAUDE_API_KEY"
	KeyBaseURL    = "CLAUDE_BASE_URL"
	KeyModel      = "CLAUDE_MODEL"
	KeyTokenLimit = "CLAUDE_TOKEN_LIMIT"
)

// DefaultTokenLimit is used when no token limit is configured
const DefaultTokenLimit = 1024

// APIConfig holds what the dispatcher needs to call the text-generation service
type APIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	TokenLimit int
}

// Missing lists the required settings that are empty
func (c APIConfig) Missing() []string {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, KeyAPIKey)
	}
	if c.BaseURL == "" {
		missing = append(missing, KeyBaseURL)
	}
	if c.Model == "" {
		missing = append(missing, KeyModel)
	}
	return missing
}

// Complete reports whether every required setting is present
func (c APIConfig) Complete() bool {
	return len(c.Missing()) == 0
}

// Store persists configuration key/value pairs
type Store interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, values map[string]string) error
}

// UpdateInput carries the settings to change; nil fields are left alone
type UpdateInput struct {
	APIKey     *string `json:"api_key,omitempty"`
	BaseURL    *string `json:"base_url,omitempty" binding:"omitempty,url"`
	Model      *string `json:"model,omitempty"`
	TokenLimit *int    `json:"token_limit,omitempty" binding:"omitempty,min=1"`
}

// View is the configuration as shown to administrators, with the key masked
type View struct {
	APIKey     string   `json:"api_key"`
	BaseURL    string   `json:"base_url"`
	Model      string   `json:"model"`
	TokenLimit int      `json:"token_limit"`
	Complete   bool     `json:"complete"`
	Missing    []string `json:"missing,omitempty"`
}

// Provider serves the API configuration from a cache backed by a Store.
// Stored values override the seed defaults.
type Provider struct {
	store    Store
	defaults APIConfig
	logger   zerolog.Logger

	mu     sync.RWMutex
	cached *APIConfig
}

// NewProvider creates a provider; defaults fill in keys absent from the store
func NewProvider(store Store, defaults APIConfig, logger zerolog.Logger) *Provider {
	return &Provider{
		store:    store,
		defaults: defaults,
		logger:   logger.With().Str("component", "settings").Logger(),
	}
}

// APIConfig returns the current configuration, reloading it from the store
// when the cached copy is missing or incomplete
func (p *Provider) APIConfig(ctx context.Context) (APIConfig, error) {
	p.mu.RLock()
	cached := p.cached
	p.mu.RUnlock()

	if cached != nil && cached.Complete() {
		return *cached, nil
	}

	cfg, err := p.Refresh(ctx)
	if err != nil {
		return APIConfig{}, err
	}
	if missing := cfg.Missing(); len(missing) > 0 {
		return cfg, fmt.Errorf("%w: missing %s", ErrConfigurationIncomplete, strings.Join(missing, ", "))
	}
	return cfg, nil
}

// Refresh reloads the configuration from the store
func (p *Provider) Refresh(ctx context.Context) (APIConfig, error) {
	values, err := p.store.Load(ctx)
	if err != nil {
		return APIConfig{}, fmt.Errorf("load configuration: %w", err)
	}

	cfg := p.defaults
	if v := values[KeyAPIKey]; v != "" {
		cfg.APIKey = v
	}
	if v := values[KeyBaseURL]; v != "" {
		cfg.BaseURL = v
	}
	if v := values[KeyModel]; v != "" {
		cfg.Model = v
	}
	if v := values[KeyTokenLimit]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			p.logger.Warn().Str("value", v).Msg("Ignoring invalid stored token limit")
		} else {
			cfg.TokenLimit = n
		}
	}
	if cfg.TokenLimit <= 0 {
		cfg.TokenLimit = DefaultTokenLimit
	}

	p.mu.Lock()
	p.cached = &cfg
	p.mu.Unlock()

	p.logger.Debug().Bool("complete", cfg.Complete()).Msg("API configuration loaded")
	return cfg, nil
}

// Update stores the given settings and refreshes the cache
func (p *Provider) Update(ctx context.Context, in UpdateInput) (View, error) {
	values := make(map[string]string)
	if in.APIKey != nil {
		values[KeyAPIKey] = strings.TrimSpace(*in.APIKey)
	}
	if in.BaseURL != nil {
		u, err := url.Parse(strings.TrimSpace(*in.BaseURL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return View{}, fmt.Errorf("%w: base url %q", ErrInvalidSetting, *in.BaseURL)
		}
		values[KeyBaseURL] = u.String()
	}
	if in.Model != nil {
		values[KeyModel] = strings.TrimSpace(*in.Model)
	}
	if in.TokenLimit != nil {
		if *in.TokenLimit <= 0 {
			return View{}, fmt.Errorf("%w: token limit must be positive", ErrInvalidSetting)
		}
		values[KeyTokenLimit] = strconv.Itoa(*in.TokenLimit)
	}

	if len(values) > 0 {
		if err := p.store.Save(ctx, values); err != nil {
			return View{}, fmt.Errorf("save configuration: %w", err)
		}
		p.logger.Info().Int("keys", len(values)).Msg("API configuration updated")
	}

	cfg, err := p.Refresh(ctx)
	if err != nil {
		return View{}, err
	}
	return viewOf(cfg), nil
}

// Current returns the masked configuration after a fresh load
func (p *Provider) Current(ctx context.Context) (View, error) {
	cfg, err := p.Refresh(ctx)
	if err != nil {
		return View{}, err
	}
	return viewOf(cfg), nil
}

func viewOf(cfg APIConfig) View {
	return View{
		APIKey:     MaskSecret(cfg.APIKey),
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		TokenLimit: cfg.TokenLimit,
		Complete:   cfg.Complete(),
		Missing:    cfg.Missing(),
	}
}

// MaskSecret keeps the last four characters of a secret
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 8) + s[len(s)-4:]
}
