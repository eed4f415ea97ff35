// Package generator is the LLM invocation proxy. It turns a normalized
// GenerateRequest into one terminal outcome: a normalized GenerateResponse or
// a classified error, retrying transient failures with exponential backoff.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	apierrors "github.com/zhengjr9/genrelay/internal/errors"
	"github.com/zhengjr9/genrelay/internal/gemini"
	"github.com/zhengjr9/genrelay/internal/logging"
	"github.com/zhengjr9/genrelay/internal/retry"
)

// Backend performs exactly one call against a concrete LLM transport.
type Backend interface {
	Generate(ctx context.Context, apiKey string, req *gemini.GenerateRequest) (*gemini.GenerateResponse, error)
}

// Options configures a Generator.
type Options struct {
	// APIKey is the server-side credential, used when the call context does
	// not carry a per-request key.
	APIKey       string
	DefaultModel string
	Retry        retry.Policy

	// RequestsPerSecond and Burst shape a token bucket shared by every call
	// chain; zero disables it.
	RequestsPerSecond float64
	Burst             int
	// MaxConcurrent caps in-flight backend calls across chains; zero
	// disables the cap.
	MaxConcurrent int64

	// ValidateSchema checks JSON responses against the requested schema.
	ValidateSchema bool

	Logger *slog.Logger
	// Sleep overrides the backoff sleep; tests use it to observe delays.
	Sleep retry.SleepFunc
}

// Caller is anything that runs a request to a terminal outcome.
type Caller interface {
	Generate(ctx context.Context, req *gemini.GenerateRequest) (*gemini.GenerateResponse, error)
}

// Generator is safe for concurrent use. Call chains share only the limiter.
type Generator struct {
	backend Backend
	opts    Options
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

// New validates opts and returns a Generator.
func New(backend Backend, opts Options) (*Generator, error) {
	if backend == nil {
		return nil, errors.New("generator: backend must not be nil")
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = gemini.DefaultModel
	}
	if opts.Retry == (retry.Policy{}) {
		opts.Retry = retry.DefaultPolicy()
	}
	if err := opts.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	g := &Generator{backend: backend, opts: opts}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	if opts.MaxConcurrent > 0 {
		g.sem = semaphore.NewWeighted(opts.MaxConcurrent)
	}
	return g, nil
}

type apiKeyContextKey struct{}

// WithAPIKey returns a context carrying a per-request credential that takes
// precedence over the configured one.
func WithAPIKey(ctx context.Context, apiKey string) context.Context {
	return context.WithValue(ctx, apiKeyContextKey{}, apiKey)
}

func (g *Generator) apiKey(ctx context.Context) string {
	if v, ok := ctx.Value(apiKeyContextKey{}).(string); ok && v != "" {
		return v
	}
	return g.opts.APIKey
}

// Generate runs req to a terminal outcome. The request is not mutated.
func (g *Generator) Generate(ctx context.Context, req *gemini.GenerateRequest) (*gemini.GenerateResponse, error) {
	if err := gemini.Validate(req); err != nil {
		return nil, apierrors.Wrap(apierrors.KindInvalidRequest, err)
	}
	call := *req
	if call.Model == "" {
		call.Model = g.opts.DefaultModel
	}

	key := g.apiKey(ctx)
	if key == "" {
		return nil, apierrors.Wrap(apierrors.KindMissingCredential, apierrors.ErrMissingAPIKey)
	}

	log := logging.FromContextOr(ctx, g.opts.Logger).With("model", call.Model)
	start := time.Now()
	attempts := 0

	resp, err := retry.Do(ctx, g.opts.Retry, func(ctx context.Context) (*gemini.GenerateResponse, error) {
		attempts++
		return g.attempt(ctx, key, &call)
	},
		retry.WithSleep(g.opts.Sleep),
		retry.WithNotify(func(attempt int, err error, delay time.Duration) {
			log.WarnContext(ctx, "generation attempt failed, retrying",
				"attempt", attempt,
				"delay", delay.String(),
				"error", err)
		}),
	)
	if err != nil {
		log.ErrorContext(ctx, "generation failed",
			"attempts", attempts,
			"kind", apierrors.KindOf(err),
			"duration", time.Since(start).String(),
			"error", err)
		return nil, err
	}

	log.InfoContext(ctx, "generation succeeded",
		"attempts", attempts,
		"duration", time.Since(start).String())
	return resp, nil
}

// attempt is one Attempting step: acquire the shared limiter, make exactly
// one backend call, classify, normalize, validate.
func (g *Generator) attempt(ctx context.Context, key string, req *gemini.GenerateRequest) (*gemini.GenerateResponse, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, apierrors.Wrap(apierrors.KindUnknown, fmt.Errorf("rate limiter: %w", err))
		}
	}
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, apierrors.Wrap(apierrors.KindUnknown, fmt.Errorf("concurrency limiter: %w", err))
		}
		defer g.sem.Release(1)
	}

	resp, err := g.backend.Generate(ctx, key, req)
	if err != nil {
		return nil, apierrors.Classify(err)
	}
	resp = resp.Normalize()

	if g.opts.ValidateSchema && req.Config != nil && req.Config.ResponseSchema != nil {
		if err := gemini.ValidateJSON(req.Config.ResponseSchema, resp.Text); err != nil {
			return nil, apierrors.Wrap(apierrors.KindMalformedResponse, err)
		}
	}
	return resp, nil
}

// GenerateJSON runs req and decodes the response text into T. Empty or
// unparseable text is a MalformedResponse failure.
func GenerateJSON[T any](ctx context.Context, c Caller, req *gemini.GenerateRequest) (T, error) {
	var out T
	resp, err := c.Generate(ctx, req)
	if err != nil {
		return out, err
	}
	if resp.Text == "" {
		return out, apierrors.New(apierrors.KindMalformedResponse, "empty response text")
	}
	if err := json.Unmarshal([]byte(resp.Text), &out); err != nil {
		return out, apierrors.Wrap(apierrors.KindMalformedResponse, fmt.Errorf("decode response text: %w", err))
	}
	return out, nil
}
