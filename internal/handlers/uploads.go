package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/wayfarer/backend/internal/logging"
	"github.com/wayfarer/backend/internal/storage"
)

// UploadHandler hands out presigned URLs so clients upload media straight to the bucket.
type UploadHandler struct {
	Storage UploadPresigner
	Prefix  string
}

type presignRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

// Presign handles POST /api/v1/uploads/presign.
func (h UploadHandler) Presign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Storage == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}

	var req presignRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid presign payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "video/") {
		respondError(ctx, w, http.StatusBadRequest, "only image and video uploads are supported")
		return
	}

	key := storage.UploadKey(h.Prefix, req.FileName, time.Now())
	upload, err := h.Storage.PresignUpload(ctx, key, contentType)
	if err != nil {
		logger.Error("presign upload", "key", key, "error", err)
		respondError(ctx, w, http.StatusBadGateway, "failed to prepare upload")
		return
	}

	respondOK(ctx, w, http.StatusOK, "", upload)
}
