package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/medivault/internal/access"
	"github.com/hackgods/medivault/internal/appointment"
	"github.com/hackgods/medivault/internal/apperr"
	"github.com/hackgods/medivault/internal/payment"
	redisclient "github.com/hackgods/medivault/internal/redis"
)

// specific error codes, checked before the generic kinds
var errorCodes = []struct {
	err  error
	code string
}{
	{access.ErrOTPExpired, "otp_expired"},
	{access.ErrOTPMismatch, "invalid_otp"},
	{access.ErrAccessDenied, "access_request_denied"},
	{payment.ErrSignatureMismatch, "signature_mismatch"},
	{appointment.ErrDirectApproval, "direct_approval_forbidden"},
	{appointment.ErrAppointmentBusy, "appointment_busy"},
}

type errorWriter struct {
	logger *zap.Logger
}

func (e errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	var limit *redisclient.LimitError
	if errors.As(err, &limit) {
		secs := int(math.Ceil(limit.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeError(w, http.StatusTooManyRequests, "rate_limited", limit.Reason)
		return
	}

	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, apperr.ErrInvalidRequest):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, apperr.ErrAuthentication):
		status, code = http.StatusUnauthorized, "authentication_failed"
	case errors.Is(err, apperr.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	default:
		if e.logger != nil {
			e.logger.Error("request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", GetRequestID(r.Context())),
				zap.Error(err))
		}
		writeError(w, status, code, "an unexpected error occurred")
		return
	}

	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			code = c.code
			break
		}
	}
	writeError(w, status, code, apperr.Reason(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// parseID parses a UUID and writes a 400 naming field when it is malformed.
func parseID(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request, param, field string) (uuid.UUID, bool) {
	return parseID(w, chi.URLParam(r, param), field)
}

func writeAccessDenied(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "access_denied", "no approved access request for this provider and patient")
}
