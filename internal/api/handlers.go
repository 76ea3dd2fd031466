// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/wayfarerhq/wayfarer/internal/logging"
	"github.com/wayfarerhq/wayfarer/internal/metrics"
	"github.com/wayfarerhq/wayfarer/internal/recommend"
)

// handlerTimeout bounds a single recommendation request.
const handlerTimeout = 10 * time.Second

// maxInteractionBody caps the size of an interaction POST body.
const maxInteractionBody = 1 << 16

// Handler serves the recommendation API.
type Handler struct {
	service *recommend.Service
	trainer *recommend.Trainer
}

// NewHandler creates the API handler. trainer may be nil when training is
// managed externally; the /train endpoint then reports unavailable.
func NewHandler(service *recommend.Service, trainer *recommend.Trainer) *Handler {
	return &Handler{service: service, trainer: trainer}
}

// Recommendations handles GET /api/v1/recommendations/{userID}.
// Query parameters: k (result count), exclude_seen (default true).
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_USER_ID", "User ID is required", nil)
		return
	}

	req := recommend.Request{
		UserID:      userID,
		TopK:        getIntParam(r, "k", 0),
		ExcludeSeen: getBoolParam(r, "exclude_seen", true),
		RequestID:   logging.RequestIDFromContext(r.Context()),
	}

	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	resp, err := h.service.Recommend(ctx, req)
	if err != nil {
		if errors.Is(err, recommend.ErrModelNotTrained) {
			respondError(w, http.StatusServiceUnavailable, "MODEL_NOT_READY", "No trained model is available yet", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "RECOMMENDATION_ERROR", "Failed to generate recommendations", err)
		return
	}

	metrics.RecordCacheLookup(resp.Metadata.CacheHit)
	if resp.Metadata.CacheHit {
		metrics.RecordRecommendation("cache")
	} else {
		metrics.RecordRecommendation(resp.Algorithm)
	}

	respondJSON(w, http.StatusOK, &APIResponse{
		Status: "success",
		Data:   resp,
		Metadata: Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: resp.Metadata.LatencyMS,
		},
	})
}

// Similar handles GET /api/v1/experiences/{itemID}/similar.
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	if itemID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_ITEM_ID", "Item ID is required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	resp, err := h.service.SimilarExperiences(ctx, itemID, getIntParam(r, "k", 0))
	if err != nil {
		if errors.Is(err, recommend.ErrModelNotTrained) {
			respondError(w, http.StatusServiceUnavailable, "MODEL_NOT_READY", "No trained model is available yet", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "SIMILAR_ERROR", "Failed to find similar experiences", err)
		return
	}

	respondJSON(w, http.StatusOK, &APIResponse{
		Status: "success",
		Data:   resp,
		Metadata: Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: resp.Metadata.LatencyMS,
		},
	})
}

// CreateInteraction handles POST /api/v1/interactions.
func (h *Handler) CreateInteraction(w http.ResponseWriter, r *http.Request) {
	var in recommend.Interaction
	body := http.MaxBytesReader(w, r.Body, maxInteractionBody)
	if err := json.NewDecoder(body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not a valid interaction", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	if err := h.service.RecordInteraction(ctx, in); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INTERACTION", "Interaction failed validation", err)
		return
	}

	metrics.RecordInteraction(string(in.Type))
	respondJSON(w, http.StatusCreated, &APIResponse{
		Status:   "success",
		Metadata: Metadata{Timestamp: time.Now()},
	})
}

// TriggerTraining handles POST /api/v1/train. Training runs asynchronously;
// the response reports acceptance, not completion.
func (h *Handler) TriggerTraining(w http.ResponseWriter, r *http.Request) {
	if h.trainer == nil {
		respondError(w, http.StatusServiceUnavailable, "TRAINING_UNAVAILABLE", "Training is not managed by this instance", nil)
		return
	}
	if h.trainer.Running() {
		respondError(w, http.StatusConflict, "TRAINING_IN_PROGRESS", "A training run is already in progress", nil)
		return
	}

	go func() {
		// Detached from the request context: training outlives the HTTP call.
		if _, err := h.trainer.Run(context.Background()); err != nil &&
			!errors.Is(err, recommend.ErrTrainingInProgress) {
			logging.Error().Err(err).Msg("manual training run failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, &APIResponse{
		Status:   "success",
		Data:     map[string]string{"state": "training_started"},
		Metadata: Metadata{Timestamp: time.Now()},
	})
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	snapshot := h.service.Metrics()

	training := false
	if h.trainer != nil {
		training = h.trainer.Running()
	}

	respondJSON(w, http.StatusOK, &APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"ready":         h.service.Ready(),
			"model_version": h.service.ModelVersion(),
			"training":      training,
			"metrics":       snapshot,
		},
		Metadata: Metadata{Timestamp: time.Now()},
	})
}

// HealthLive handles GET /healthz/live.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &APIResponse{
		Status:   "success",
		Data:     map[string]string{"state": "alive"},
		Metadata: Metadata{Timestamp: time.Now()},
	})
}

// HealthReady handles GET /healthz/ready. Ready means a model or fallback
// is live and able to serve.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if !h.service.Ready() {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "No model or fallback is serving yet", nil)
		return
	}
	respondJSON(w, http.StatusOK, &APIResponse{
		Status:   "success",
		Data:     map[string]string{"state": "ready"},
		Metadata: Metadata{Timestamp: time.Now()},
	})
}
