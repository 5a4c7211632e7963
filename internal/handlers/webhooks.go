package handlers

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/wayfarer/backend/internal/logging"
	"github.com/wayfarer/backend/internal/repositories"
	"github.com/wayfarer/backend/internal/scrape"
)

const maxWebhookBytes = 10 << 20

// WebhookHandler receives scraping provider callbacks.
type WebhookHandler struct {
	Reconciler CallbackReconciler
	Secret     string
}

// Initial handles the first-stage callback carrying reel or profile items.
func (h WebhookHandler) Initial(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, scrape.StageInitial)
}

// Profiles handles the enrichment callback for accounts mentioned in a reel.
func (h WebhookHandler) Profiles(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, scrape.StageProfiles)
}

func (h WebhookHandler) handle(w http.ResponseWriter, r *http.Request, stage scrape.Stage) {
	ctx := r.Context()

	if h.Reconciler == nil {
		logging.FromContext(ctx).Error("webhook dependencies unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "webhook services unavailable")
		return
	}

	if h.Secret != "" {
		got := r.Header.Get(scrape.WebhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			respondError(ctx, w, http.StatusUnauthorized, "invalid webhook secret")
			return
		}
	}

	sourceID := strings.TrimSpace(r.PathValue("sourceID"))
	if sourceID == "" {
		sourceID = strings.TrimSpace(r.URL.Query().Get("sourceId"))
	}
	if sourceID == "" {
		respondError(ctx, w, http.StatusPreconditionFailed, "source id is required")
		return
	}

	ctx = logging.With(ctx, "sourceId", sourceID, "stage", string(stage))
	logger := logging.FromContext(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("webhook body too large", "limit", tooLarge.Limit)
			respondError(ctx, w, http.StatusRequestEntityTooLarge, "callback body too large")
			return
		}
		logger.Warn("read webhook body", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "unable to read body")
		return
	}

	outcome, err := h.Reconciler.HandleCallback(ctx, scrape.Callback{SourceID: sourceID, Stage: stage, Payload: body})
	if err != nil {
		switch {
		case errors.Is(err, scrape.ErrUnknownPayload):
			respondError(ctx, w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repositories.ErrNotFound):
			respondError(ctx, w, http.StatusNotFound, "source not found")
		case errors.Is(err, scrape.ErrNoContent), errors.Is(err, scrape.ErrNotReel):
			respondError(ctx, w, http.StatusConflict, err.Error())
		case errors.Is(err, scrape.ErrTriggerFailed):
			logger.Error("profile scrape trigger failed", "error", err)
			respondError(ctx, w, http.StatusBadGateway, "failed to start profile scrape")
		default:
			logger.Error("reconcile callback", "error", err)
			respondError(ctx, w, http.StatusInternalServerError, "failed to process callback")
		}
		return
	}

	respondOK(ctx, w, http.StatusOK, "", outcome)
}
