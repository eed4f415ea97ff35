package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/zhengjr9/genrelay/internal/config"
	apierrors "github.com/zhengjr9/genrelay/internal/errors"
	"github.com/zhengjr9/genrelay/internal/generator"
	"github.com/zhengjr9/genrelay/internal/retry"
	"github.com/zhengjr9/genrelay/internal/studio"
)

// Server is the HTTP front end for the generator and the studio features.
type Server struct {
	httpServer *http.Server
}

// New constructs a Server. callTimeout bounds one whole call chain, retries
// and backoff included.
func New(cfg *config.Config, caller generator.Caller, svc *studio.Service, logger *slog.Logger) *Server {
	callTimeout := cfg.Retry.ChainTimeout(cfg.RequestTimeout)
	h := &handlers{caller: caller, timeout: callTimeout}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apierrors.WriteJSONError(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apierrors.WriteJSONError(w, http.StatusMethodNotAllowed, r.Method+" not allowed on "+r.URL.Path)
	})

	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	router.HandleFunc("/api/generate", h.generate).Methods(http.MethodPost)
	// Gemini REST shape, so one relay can chain to another.
	router.HandleFunc("/v1beta/models/{model}:generateContent", h.generateContent).Methods(http.MethodPost)

	api := router.PathPrefix("/api/studio").Methods(http.MethodPost).Subrouter()
	api.Handle("/resume-analysis", feature(h, svc.AnalyzeResume))
	api.Handle("/interview-questions", feature(h, svc.GenerateInterviewQuestions))
	api.Handle("/lesson-plan", feature(h, svc.GenerateLessonPlan))
	api.Handle("/homework-correction", feature(h, svc.CorrectHomework))
	api.Handle("/polish", feature(h, svc.PolishContent))
	api.Handle("/speech", feature(h, svc.SynthesizeSpeech))

	var handler http.Handler = router
	handler = bodyLimitMiddleware(cfg.MaxBodyBytes)(handler)
	handler = loggingMiddleware(handler)
	handler = recoveryMiddleware(handler)
	handler = requestIDMiddleware(logger)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      retry.AddDurations(callTimeout, 10*time.Second),
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start begins listening and blocks until the server is stopped.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the underlying http.Handler (for use in tests with httptest.NewServer).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
