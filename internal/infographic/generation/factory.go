package generation

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mauripsale/infographic-agent-pro/config"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
)

// ProviderFunc builds a provider for one API key.
type ProviderFunc func(ctx context.Context, apiKey string) (Provider, error)

// Factory builds request-scoped clients. The limiter is shared by every
// client it creates.
type Factory struct {
	opts        Options
	newProvider ProviderFunc
}

// NewFactory returns a Factory backed by Gemini.
func NewFactory(cfg config.GenerationConfig) *Factory {
	return NewFactoryWithProvider(cfg, func(ctx context.Context, apiKey string) (Provider, error) {
		return NewGeminiProvider(ctx, apiKey)
	})
}

func NewFactoryWithProvider(cfg config.GenerationConfig, fn ProviderFunc) *Factory {
	opts := Options{
		TextModel:   cfg.TextModel,
		ImageModel:  cfg.ImageModel,
		MaxAttempts: cfg.MaxAttempts,
		BackoffBase: cfg.BackoffBase,
	}
	if cfg.RequestsPerM > 0 {
		opts.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerM)), cfg.RequestsPerM)
	}
	return &Factory{opts: opts, newProvider: fn}
}

// ForKey returns a client bound to apiKey. An empty key is rejected before
// any provider is contacted.
func (f *Factory) ForKey(ctx context.Context, apiKey string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, domain.Wrap(domain.CategoryAuth, "generation client", domain.ErrMissingCredential)
	}
	p, err := f.newProvider(ctx, apiKey)
	if err != nil {
		return nil, domain.Wrap(domain.CategoryAuth, "generation client", err)
	}
	return NewClient(p, f.opts), nil
}
