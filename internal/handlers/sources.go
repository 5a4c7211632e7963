package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/wayfarer/backend/internal/logging"
	"github.com/wayfarer/backend/internal/models"
	"github.com/wayfarer/backend/internal/repositories"
	"github.com/wayfarer/backend/internal/sources"
)

// SourceHandler accepts URLs for ingestion and reports their progress.
type SourceHandler struct {
	Sources SourceService
}

type submitSourceRequest struct {
	URL         string `json:"url"`
	SubmittedBy string `json:"submittedBy"`
}

// Submit handles POST /api/v1/sources. Instagram submissions complete
// asynchronously and answer 202; everything else is fetched inline.
func (h SourceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Sources == nil {
		logger.Error("source dependencies unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "source services unavailable")
		return
	}

	var req submitSourceRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid source payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		respondError(ctx, w, http.StatusBadRequest, "url is required")
		return
	}

	record, err := h.Sources.Submit(ctx, sources.SubmitRequest{URL: req.URL, SubmittedBy: req.SubmittedBy})
	switch {
	case err == nil:
	case errors.Is(err, sources.ErrInvalidURL):
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, sources.ErrIngestFailed):
		respondJSON(ctx, w, http.StatusBadGateway, envelope{
			Success: false,
			Message: "We couldn't fetch that link right now.",
			Data:    record,
		})
		return
	default:
		logger.Error("submit source", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to submit source")
		return
	}

	if record.Status == models.SourceStatusPending {
		respondOK(ctx, w, http.StatusAccepted, "Source accepted, content will arrive shortly.", record)
		return
	}
	respondOK(ctx, w, http.StatusCreated, "Source ingested.", record)
}

// Get handles GET /api/v1/sources/{id}.
func (h SourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Sources == nil {
		respondError(ctx, w, http.StatusInternalServerError, "source services unavailable")
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		respondError(ctx, w, http.StatusBadRequest, "source id is required")
		return
	}

	record, err := h.Sources.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "source not found")
			return
		}
		logging.FromContext(ctx).Error("get source", "sourceId", id, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to load source")
		return
	}
	respondOK(ctx, w, http.StatusOK, "", record)
}
