package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	apierrors "github.com/zhengjr9/genrelay/internal/errors"
	"github.com/zhengjr9/genrelay/internal/gemini"
	"github.com/zhengjr9/genrelay/internal/generator"
	"github.com/zhengjr9/genrelay/internal/httputil"
	"github.com/zhengjr9/genrelay/internal/logging"
)

type handlers struct {
	caller  generator.Caller
	timeout time.Duration
}

// callContext bounds the chain and carries the caller's key, when sent.
func (h *handlers) callContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	if creds := httputil.ExtractCredentials(r); creds.APIKey != "" {
		ctx = generator.WithAPIKey(ctx, creds.APIKey)
	}
	return ctx, cancel
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// generate serves POST /api/generate: a normalized request in, a normalized
// response with the flattened text field out.
func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var req gemini.GenerateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		apierrors.WriteError(w, err)
		return
	}
	h.respond(w, r, &req)
}

// generateContent serves POST /v1beta/models/{model}:generateContent.
func (h *handlers) generateContent(w http.ResponseWriter, r *http.Request) {
	var rest gemini.RESTRequest
	if err := httputil.DecodeJSON(r, &rest); err != nil {
		apierrors.WriteError(w, err)
		return
	}
	h.respond(w, r, gemini.FromREST(mux.Vars(r)["model"], &rest))
}

func (h *handlers) respond(w http.ResponseWriter, r *http.Request, req *gemini.GenerateRequest) {
	ctx, cancel := h.callContext(r)
	defer cancel()

	resp, err := h.caller.Generate(ctx, req)
	if err != nil {
		apierrors.WriteError(w, err)
		return
	}
	if err := httputil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logging.FromContext(r.Context()).Warn("failed to write response", "error", err)
	}
}

// feature adapts a studio function to an HTTP handler: JSON input in, JSON
// result out.
func feature[In, Out any](h *handlers, fn func(context.Context, In) (*Out, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in In
		if err := httputil.DecodeJSON(r, &in); err != nil {
			apierrors.WriteError(w, err)
			return
		}

		ctx, cancel := h.callContext(r)
		defer cancel()

		out, err := fn(ctx, in)
		if err != nil {
			apierrors.WriteError(w, err)
			return
		}
		if err := httputil.WriteJSON(w, http.StatusOK, out); err != nil {
			logging.FromContext(r.Context()).Warn("failed to write response", "error", err)
		}
	})
}
