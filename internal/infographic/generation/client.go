package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
	"github.com/mauripsale/infographic-agent-pro/internal/observability"
)

// Provider is the raw model transport. Implementations classify their
// failures by wrapping the sentinels in this package.
type Provider interface {
	Text(ctx context.Context, model, prompt string) (string, error)
	Image(ctx context.Context, model, prompt, aspectRatio string) ([]byte, error)
}

// Options control retries and fallbacks.
type Options struct {
	TextModel   string
	ImageModel  string
	MaxAttempts int
	BackoffBase time.Duration
	Limiter     *rate.Limiter
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Client implements domain.GenerationClient on top of a Provider.
type Client struct {
	provider Provider
	opts     Options
}

var _ domain.GenerationClient = (*Client)(nil)

func NewClient(p Provider, opts Options) *Client {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Client{provider: p, opts: opts}
}

// GenerateText returns the model's text output. An empty model selects the
// default text model.
func (c *Client) GenerateText(ctx context.Context, prompt, model string) (string, error) {
	var out string
	err := c.withFallback(ctx, "generate text", model, c.opts.TextModel, func(m string) error {
		text, err := c.provider.Text(ctx, m, prompt)
		if err != nil {
			return err
		}
		if text == "" {
			return ErrEmptyOutput
		}
		out = text
		return nil
	})
	return out, err
}

// GenerateImage returns PNG bytes for prompt.
func (c *Client) GenerateImage(ctx context.Context, prompt, aspectRatio, model string) ([]byte, error) {
	var raw []byte
	err := c.withFallback(ctx, "generate image", model, c.opts.ImageModel, func(m string) error {
		data, err := c.provider.Image(ctx, m, prompt, aspectRatio)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return ErrEmptyOutput
		}
		raw = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	img, err := NormalizePNG(raw)
	if err != nil {
		return nil, domain.Wrap(domain.CategoryTransient, "generate image", err)
	}
	return img, nil
}

func (c *Client) withFallback(ctx context.Context, op, model, fallback string, call func(model string) error) error {
	if model == "" {
		model = fallback
	}

	err := c.retry(ctx, model, call)
	if err != nil && isUnknownModel(err) && model != fallback && fallback != "" {
		observability.LoggerFromContext(ctx).Warn("model unavailable, falling back",
			slog.String("op", op),
			slog.String("model", model),
			slog.String("fallback", fallback),
			slog.Any("error", err),
		)
		err = c.retry(ctx, fallback, call)
	}
	if err != nil {
		return domain.Wrap(categorize(err), op, err)
	}
	return nil
}

// retry calls fn up to MaxAttempts times, sleeping BackoffBase, 2*BackoffBase,
// ... between attempts. Only transient errors are retried.
func (c *Client) retry(ctx context.Context, model string, fn func(model string) error) error {
	var err error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if c.opts.Limiter != nil {
			if werr := c.opts.Limiter.Wait(ctx); werr != nil {
				return fmt.Errorf("rate limiter: %w", werr)
			}
		}

		err = fn(model)
		if err == nil {
			return nil
		}
		if !isTransient(err) || attempt == c.opts.MaxAttempts {
			break
		}

		delay := c.opts.BackoffBase << (attempt - 1)
		observability.LoggerFromContext(ctx).Info("provider call failed, retrying",
			slog.String("model", model),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.Any("error", err),
		)
		if serr := c.opts.Sleep(ctx, delay); serr != nil {
			return errors.Join(err, serr)
		}
	}
	return err
}

func categorize(err error) domain.Category {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return domain.CategoryAuth
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrUnknownModel):
		return domain.CategoryValidation
	}
	return domain.CategoryTransient
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
