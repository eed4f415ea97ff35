package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/volcengine/veadk-go/apps"
	"github.com/volcengine/veadk-go/apps/a2a_app"
	"google.golang.org/adk/agent"

	"github.com/zhengjr9/genrelay/internal/a2a"
	"github.com/zhengjr9/genrelay/internal/config"
	"github.com/zhengjr9/genrelay/internal/direct"
	"github.com/zhengjr9/genrelay/internal/generator"
	"github.com/zhengjr9/genrelay/internal/logging"
	"github.com/zhengjr9/genrelay/internal/proxy"
	"github.com/zhengjr9/genrelay/internal/relay"
	"github.com/zhengjr9/genrelay/internal/studio"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "genrelay",
		Short:         "Resilient Gemini relay for the résumé and lesson-plan studios",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			slog.SetDefault(logger)
			if err := run(cmd.Context(), cfg, logger); err != nil {
				logger.Error("server exited", "error", err)
				return err
			}
			return nil
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func newBackend(cfg *config.Config) generator.Backend {
	if cfg.Backend == config.BackendDirect {
		return direct.New(cfg.GeminiBaseURL, cfg.RequestTimeout)
	}
	return relay.NewClient(cfg.GeminiBaseURL, cfg.RequestTimeout, cfg.UpstreamProxyURL)
}

func agentConfig(cfg *config.Config, p a2a.Polisher) a2a.AgentConfig {
	return a2a.AgentConfig{
		Name:        cfg.AgentName,
		Description: cfg.AgentDesc,
		Polisher:    p,
		Tone:        cfg.AgentTone,
	}
}

func run(parent context.Context, cfg *config.Config, logger *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	logger.Info("starting genrelay",
		"listen", cfg.ListenAddr,
		"backend", cfg.Backend,
		"model", cfg.Model,
		"server_key", cfg.GeminiAPIKey != "",
		"a2a_enabled", cfg.A2AEnabled,
	)
	if cfg.GeminiAPIKey == "" {
		logger.Warn("no GEMINI_API_KEY configured; callers must send their own key")
	}

	gen, err := generator.New(newBackend(cfg), generator.Options{
		APIKey:            cfg.GeminiAPIKey,
		DefaultModel:      cfg.Model,
		Retry:             cfg.Retry,
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
		MaxConcurrent:     cfg.MaxConcurrent,
		ValidateSchema:    cfg.ValidateSchema,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	svc := studio.New(gen, studio.WithSpeechModel(cfg.SpeechModel))

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Always start the proxy server.
	srv := proxy.New(cfg, gen, svc, logger)
	proxyErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			proxyErr <- err
		}
	}()

	// Optionally start the A2A server.
	a2aErr := make(chan error, 1)
	if cfg.A2AEnabled {
		polishAgent, err := a2a.New(agentConfig(cfg, svc))
		if err != nil {
			return fmt.Errorf("create A2A agent: %w", err)
		}

		logger.Info("starting A2A server", "port", cfg.A2APort, "agent_name", cfg.AgentName, "agent_tone", cfg.AgentTone)

		// Wrap the standard A2A app to inject an HTTP middleware that extracts
		// the caller's Bearer token and stores it in the request context before
		// the JSON-RPC handler sees the request.
		inner := a2a_app.NewAgentkitA2AServerApp(
			apps.DefaultApiConfig().SetPort(cfg.A2APort),
		)
		wrapped := &authMiddlewareApp{BasicApp: inner}

		go func() {
			if err := wrapped.Run(ctx, &apps.RunConfig{
				AgentLoader: agent.NewSingleLoader(polishAgent),
			}); err != nil {
				a2aErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout/4)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Error("proxy shutdown error", "error", err)
		}
	case err := <-proxyErr:
		return fmt.Errorf("proxy server: %w", err)
	case err := <-a2aErr:
		return fmt.Errorf("A2A server: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// authMiddlewareApp wraps a BasicApp and installs an HTTP middleware on the
// Gorilla mux router that extracts "Authorization: Bearer <token>" from every
// incoming request and injects the token into the request context via
// generator.WithAPIKey, where the agent's generation call picks it up.
type authMiddlewareApp struct {
	apps.BasicApp
}

// Run overrides the embedded Run so that apps.Run receives `w` as the app
// argument. Without this, the embedded Run calls apps.Run with the inner app,
// meaning apps.Run would invoke SetupRouters on the inner app and our
// middleware override would never be registered.
func (w *authMiddlewareApp) Run(ctx context.Context, config *apps.RunConfig) error {
	return apps.Run(ctx, config, w)
}

func (w *authMiddlewareApp) SetupRouters(router *mux.Router, config *apps.RunConfig) error {
	if err := w.BasicApp.SetupRouters(router, config); err != nil {
		return err
	}
	router.Use(bearerTokenMiddleware)
	return nil
}

// bearerTokenMiddleware is a Gorilla mux middleware that reads
// "Authorization: Bearer <token>" and stores the token in the request context.
func bearerTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
				r = r.WithContext(generator.WithAPIKey(r.Context(), strings.TrimSpace(token)))
			}
		}
		next.ServeHTTP(w, r)
	})
}
