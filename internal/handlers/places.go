package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/wayfarer/backend/internal/logging"
	"github.com/wayfarer/backend/internal/places"
)

// PlacesHandler proxies place search so the mapping key stays server side.
type PlacesHandler struct {
	Places PlaceProvider
}

type placeDetailsRequest struct {
	PlaceID string `json:"placeId"`
}

// Search handles POST /api/v1/places/search.
func (h PlacesHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var q places.Query
	if err := decodeJSON(r, &q); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		respondError(ctx, w, http.StatusBadRequest, "query is required")
		return
	}
	if h.Places == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, "place search is not configured")
		return
	}

	results, err := h.Places.Search(ctx, q)
	if err != nil {
		h.respondPlacesError(w, r, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "", results)
}

// Details handles POST /api/v1/places/details.
func (h PlacesHandler) Details(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req placeDetailsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.PlaceID = strings.TrimSpace(req.PlaceID)
	if req.PlaceID == "" {
		respondError(ctx, w, http.StatusBadRequest, "placeId is required")
		return
	}
	if h.Places == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, "place search is not configured")
		return
	}

	place, err := h.Places.Details(ctx, req.PlaceID)
	if err != nil {
		h.respondPlacesError(w, r, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "", place)
}

func (h PlacesHandler) respondPlacesError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, places.ErrDisabled):
		respondError(ctx, w, http.StatusServiceUnavailable, "place search is not configured")
	case errors.Is(err, places.ErrNotFound):
		respondError(ctx, w, http.StatusNotFound, "place not found")
	default:
		logging.FromContext(ctx).Error("places provider", "error", err)
		respondError(ctx, w, http.StatusBadGateway, "place search failed")
	}
}
