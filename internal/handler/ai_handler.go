package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/baghchal/api/internal/auth"
	"github.com/freeeve/baghchal/api/internal/bot"
	"github.com/freeeve/baghchal/api/internal/model"
	"github.com/freeeve/baghchal/api/internal/service"
	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

// AIService is the part of service.AnalysisService the handlers use.
type AIService interface {
	RunAnalysis(ctx context.Context, difficulty string) (*model.AnalysisResponse, error)
	GetQTable(ctx context.Context, player string) (model.QTableResponse, error)
	StartTraining(ctx context.Context, req model.TrainingRequest) (model.TrainingStatus, error)
	CancelTraining(ctx context.Context, player string) (model.TrainingStatus, error)
	TrainingStatus(ctx context.Context, player string) (model.TrainingStatus, error)
	ListPolicies(ctx context.Context) (model.PolicyListResponse, error)
}

// AIHandler handles the AI analysis endpoints.
type AIHandler struct {
	svc AIService
}

// NewAIHandler creates an AIHandler.
func NewAIHandler(svc AIService) *AIHandler {
	return &AIHandler{svc: svc}
}

// RunAnalysis handles POST /api/v1/ai/analysis
func (h *AIHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	var req model.AnalysisRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GuestAIDifficulty == "" {
		writeError(w, http.StatusBadRequest, "guest_ai_difficulty is required")
		return
	}

	resp, err := h.svc.RunAnalysis(r.Context(), req.GuestAIDifficulty)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetQTable handles GET /api/v1/ai/q-table/{player}
func (h *AIHandler) GetQTable(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.GetQTable(r.Context(), r.PathValue("player"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// StartTraining handles POST /api/v1/ai/training
func (h *AIHandler) StartTraining(w http.ResponseWriter, r *http.Request) {
	var req model.TrainingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	st, err := h.svc.StartTraining(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	log.Info().
		Str("userId", auth.UserIDFromContext(r.Context())).
		Str("player", st.Player).
		Msg("Training requested")
	writeJSON(w, http.StatusAccepted, st)
}

// TrainingStatus handles GET /api/v1/ai/training/{player}
func (h *AIHandler) TrainingStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.TrainingStatus(r.Context(), r.PathValue("player"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// CancelTraining handles DELETE /api/v1/ai/training/{player}
func (h *AIHandler) CancelTraining(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.CancelTraining(r.Context(), r.PathValue("player"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListPolicies handles GET /api/v1/ai/policies
func (h *AIHandler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.ListPolicies(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeServiceError maps service errors to HTTP responses. Bad input is
// echoed back; anything else is logged and reported generically.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, bot.ErrUnknownDifficulty),
		errors.Is(err, baghchal.ErrUnknownSide),
		errors.Is(err, service.ErrInvalidEpisodes):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrTrainingInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNoTrainingJob):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNoPolicyStore):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, context.Canceled):
		log.Debug().Str("path", r.URL.Path).Msg("Request cancelled")
		writeError(w, http.StatusRequestTimeout, "request cancelled")
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "operation failed")
	}
}
