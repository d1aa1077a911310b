package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/99degreesdevs/emuna-back/internal/apperr"
	"github.com/99degreesdevs/emuna-back/internal/logging"
	"github.com/go-chi/chi/v5/middleware"
)

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidState, apperr.KindInsufficientResource:
		return http.StatusConflict
	case apperr.KindPolicyViolation:
		return http.StatusUnprocessableEntity
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind == apperr.KindUnknown {
		logging.OrDefault(log).Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "INTERNAL", Message: "internal error"})
		return
	}
	if e.Kind == apperr.KindTransient {
		logging.OrDefault(log).Warn("transient failure", "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "err", err)
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, statusOf(e.Kind), errorBody{Error: e.Reason, Message: e.Msg, Retryable: e.Kind == apperr.KindTransient})
}

// decodeJSON reads a single JSON document from r into v. Failures are
// reported as invalid input.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return apperr.ErrInvalidInput.Withf("invalid json: %v", err)
	}
	return nil
}

func badRequest(format string, args ...any) error {
	return apperr.ErrInvalidInput.Withf(format, args...)
}
