package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"quiz-leaderboard-service/internal/domain"
)

// errorBody is the JSON shape of every error response and WebSocket error
// message.
type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Field   string            `json:"field,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Count   *int              `json:"count,omitempty"`
	Limit   *int              `json:"limit,omitempty"`
	Reason  string            `json:"reason,omitempty"`
}

// describeError maps a use-case error onto an HTTP status and body.
func describeError(err error) (int, errorBody) {
	body := errorBody{Message: err.Error()}

	var (
		limitErr     *domain.AttemptLimitError
		notActiveErr *domain.NotActiveError
		validErr     *domain.ValidationError
		fieldErrs    validator.ValidationErrors
	)
	switch {
	case errors.As(err, &fieldErrs):
		body.Error = "validation_failed"
		body.Message = "request payload is invalid"
		body.Fields = make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			// drop the struct name, keep the JSON path
			ns := fe.Namespace()
			if i := strings.IndexByte(ns, '.'); i >= 0 {
				ns = ns[i+1:]
			}
			body.Fields[ns] = fe.Tag()
		}
		return http.StatusBadRequest, body
	case errors.As(err, &validErr):
		body.Error = "validation_failed"
		body.Field = validErr.Field
		return http.StatusBadRequest, body
	case errors.Is(err, domain.ErrQuizNotFound):
		body.Error = "quiz_not_found"
		return http.StatusNotFound, body
	case errors.Is(err, domain.ErrAttemptNotFound):
		body.Error = "attempt_not_found"
		return http.StatusNotFound, body
	case errors.Is(err, domain.ErrNotRegistered):
		body.Error = "not_registered"
		return http.StatusForbidden, body
	case errors.Is(err, domain.ErrNotParticipant):
		body.Error = "not_participant"
		return http.StatusForbidden, body
	case errors.As(err, &notActiveErr):
		body.Error = "quiz_not_active"
		body.Reason = notActiveErr.Reason
		return http.StatusConflict, body
	case errors.Is(err, domain.ErrRegistrationClosed):
		body.Error = "registration_closed"
		return http.StatusConflict, body
	case errors.As(err, &limitErr):
		body.Error = "attempt_limit_exceeded"
		body.Count, body.Limit = &limitErr.Count, &limitErr.Limit
		return http.StatusConflict, body
	case errors.Is(err, domain.ErrTransient):
		body.Error = "temporarily_unavailable"
		return http.StatusServiceUnavailable, body
	}
	body.Error = "internal_error"
	body.Message = "internal server error"
	return http.StatusInternalServerError, body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
