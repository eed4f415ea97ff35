package errors

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
)

const maxMessageLen = 512

// FromHTTP classifies a non-success upstream response. A kind relayed by
// another genrelay instance is taken as is, since that instance already
// classified and retried; a relayed final failure is not retried again.
// Otherwise the status code is the primary signal and the body (JSON error
// fields, then raw text) only refines the kind when the status alone does
// not decide it.
func FromHTTP(status int, body []byte) *ClassifiedError {
	msg, upstreamStatus, relayed, final := parseErrorBody(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	if relayed != "" {
		return &ClassifiedError{Kind: relayed, Status: status, Message: msg, Final: final}
	}

	kind := kindFromStatus(status)
	if kind == KindUnknown {
		kind = kindFromRPCStatus(upstreamStatus)
	}
	if kind == KindUnknown {
		kind = ClassifyMessage(msg)
	}
	if kind == KindUnknown && status == http.StatusBadRequest {
		kind = KindInvalidRequest
	}

	return &ClassifiedError{Kind: kind, Status: status, Message: msg}
}

// FromAPIError classifies an error reported by an SDK with an HTTP code, an
// RPC status string and a message.
func FromAPIError(code int, rpcStatus, message string) *ClassifiedError {
	kind := kindFromStatus(code)
	if kind == KindUnknown {
		kind = kindFromRPCStatus(rpcStatus)
	}
	if kind == KindUnknown {
		kind = ClassifyMessage(message)
	}
	if kind == KindUnknown && code == http.StatusBadRequest {
		kind = KindInvalidRequest
	}
	if message == "" {
		message = http.StatusText(code)
	}
	return &ClassifiedError{Kind: kind, Status: code, Message: message}
}

// Classify returns err as a ClassifiedError. Errors that are already
// classified are returned unchanged; anything else is classified from its
// message, falling back to KindUnknown.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	if ce, ok := As(err); ok {
		return ce
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Wrap(KindUnavailable, err)
	}
	return Wrap(ClassifyMessage(err.Error()), err)
}

var messageRules = []struct {
	kind    Kind
	needles []string
}{
	{KindPayloadTooLarge, []string{"payload too large", "request entity too large", "too large"}},
	{KindUnauthorized, []string{"unauthorized", "unauthenticated", "api key not valid", "invalid api key"}},
	{KindForbidden, []string{"forbidden", "permission denied", "permission_denied"}},
	{KindQuotaExceeded, []string{"quota", "resource_exhausted", "resource exhausted"}},
	{KindUnavailable, []string{"overloaded", "rpc failed", "deadline", "unavailable", "internal error"}},
}

// ClassifyMessage is a best-effort refinement over human-readable error
// text. It is only consulted when no status code decides the kind.
func ClassifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	for _, rule := range messageRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return rule.kind
			}
		}
	}
	return KindUnknown
}

func kindFromStatus(status int) Kind {
	switch status {
	case http.StatusRequestEntityTooLarge:
		return KindPayloadTooLarge
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusTooManyRequests:
		return KindQuotaExceeded
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindUnavailable
	}
	return KindUnknown
}

func kindFromRPCStatus(s string) Kind {
	switch strings.ToUpper(s) {
	case "UNAUTHENTICATED":
		return KindUnauthorized
	case "PERMISSION_DENIED":
		return KindForbidden
	case "RESOURCE_EXHAUSTED":
		return KindQuotaExceeded
	case "UNAVAILABLE", "DEADLINE_EXCEEDED", "INTERNAL":
		return KindUnavailable
	}
	return KindUnknown
}

// upstreamError matches both the Gemini error envelope
// ({"error":{"code","message","status"}}) and the flat body this service
// writes itself ({"error","message","kind"}).
type upstreamError struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Kind    string          `json:"kind"`
	Final   bool            `json:"final"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func parseErrorBody(body []byte) (msg, rpcStatus string, relayed Kind, final bool) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", "", "", false
	}

	var env upstreamError
	if err := json.Unmarshal([]byte(trimmed), &env); err == nil {
		if k, ok := ParseKind(env.Kind); ok {
			relayed, final = k, env.Final
		}
		var rpc rpcError
		if len(env.Error) > 0 && json.Unmarshal(env.Error, &rpc) == nil && (rpc.Message != "" || rpc.Status != "") {
			return truncate(rpc.Message), rpc.Status, relayed, final
		}
		if env.Message != "" {
			return truncate(env.Message), "", relayed, final
		}
		var s string
		if len(env.Error) > 0 && json.Unmarshal(env.Error, &s) == nil && s != "" {
			return truncate(s), "", relayed, final
		}
	}
	return truncate(trimmed), "", relayed, final
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	return s[:maxMessageLen] + "..."
}
