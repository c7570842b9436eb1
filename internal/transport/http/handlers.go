package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"quiz-leaderboard-service/internal/app"
	"quiz-leaderboard-service/internal/auth"
	"quiz-leaderboard-service/internal/domain"
)

const maxBodyBytes = 1 << 20

// Service is the part of app.QuizService exposed over HTTP and WebSocket.
type Service interface {
	Submit(ctx context.Context, req app.SubmitRequest) (domain.SubmitResult, error)
	GetResult(ctx context.Context, quizID, userID, attemptID string) (domain.ResultView, error)
	GetReview(ctx context.Context, quizID, userID, attemptID string) (domain.ReviewView, error)
	Register(ctx context.Context, quizID, userID, displayName string) (domain.RegistrationResult, error)
	GetLeaderboard(ctx context.Context, quizID, viewerID string) (domain.LeaderboardView, error)
}

type registerPayload struct {
	DisplayName string `json:"displayName" validate:"max=100"`
}

type responsePayload struct {
	QuestionID      string   `json:"questionId" validate:"required"`
	SelectedOptions []string `json:"selectedOptions" validate:"max=50,dive,required"`
}

type submitPayload struct {
	Responses []responsePayload `json:"responses" validate:"max=500,dive"`
	TimeSpent int               `json:"timeSpent" validate:"gte=0"`
}

type resultPayload struct {
	AttemptID string `json:"attemptId" validate:"required"`
}

// Handler serves the REST endpoints. The WebSocket handler reuses its
// payload validation and use-case calls.
type Handler struct {
	service  Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{service: service, validate: v, logger: logger}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var p registerPayload
	if err := decodeBody(r, w, &p, true); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.register(r.Context(), identity(r), chi.URLParam(r, "quizID"), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var p submitPayload
	if err := decodeBody(r, w, &p, false); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.submit(r.Context(), identity(r), chi.URLParam(r, "quizID"), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	res, err := h.result(r.Context(), identity(r), chi.URLParam(r, "quizID"),
		resultPayload{AttemptID: chi.URLParam(r, "attemptID")})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	res, err := h.review(r.Context(), identity(r), chi.URLParam(r, "quizID"),
		resultPayload{AttemptID: chi.URLParam(r, "attemptID")})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetLeaderboard(r.Context(), chi.URLParam(r, "quizID"), identity(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) register(ctx context.Context, id auth.Identity, quizID string, p registerPayload) (domain.RegistrationResult, error) {
	if err := h.validate.Struct(p); err != nil {
		return domain.RegistrationResult{}, err
	}
	name := p.DisplayName
	if name == "" {
		name = id.DisplayName
	}
	return h.service.Register(ctx, quizID, id.UserID, name)
}

func (h *Handler) submit(ctx context.Context, id auth.Identity, quizID string, p submitPayload) (domain.SubmitResult, error) {
	if err := h.validate.Struct(p); err != nil {
		return domain.SubmitResult{}, err
	}
	responses := make([]domain.Response, len(p.Responses))
	for i, r := range p.Responses {
		responses[i] = domain.Response{QuestionID: r.QuestionID, SelectedOptionIDs: r.SelectedOptions}
	}
	return h.service.Submit(ctx, app.SubmitRequest{
		QuizID:           quizID,
		UserID:           id.UserID,
		DisplayName:      id.DisplayName,
		Responses:        responses,
		TimeSpentSeconds: p.TimeSpent,
	})
}

func (h *Handler) result(ctx context.Context, id auth.Identity, quizID string, p resultPayload) (domain.ResultView, error) {
	if err := h.validate.Struct(p); err != nil {
		return domain.ResultView{}, err
	}
	return h.service.GetResult(ctx, quizID, id.UserID, p.AttemptID)
}

func (h *Handler) review(ctx context.Context, id auth.Identity, quizID string, p resultPayload) (domain.ReviewView, error) {
	if err := h.validate.Struct(p); err != nil {
		return domain.ReviewView{}, err
	}
	return h.service.GetReview(ctx, quizID, id.UserID, p.AttemptID)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := describeError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

func decodeBody(r *http.Request, w http.ResponseWriter, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewValidationError("body", "malformed JSON payload")
	}
	return nil
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}
