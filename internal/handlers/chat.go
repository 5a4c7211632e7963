package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/wayfarer/backend/internal/chat"
	"github.com/wayfarer/backend/internal/logging"
)

// chatStreamTimeout replaces the server-wide write timeout for streamed replies.
const chatStreamTimeout = 5 * time.Minute

// ChatHandler relays a conversation to the language model and streams the reply
// back unmodified.
type ChatHandler struct {
	Chat ChatStreamer
}

// Stream handles POST /api/v1/chat.
func (h ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req chat.Request
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}
	if h.Chat == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}

	body, contentType, err := h.Chat.Stream(ctx, req)
	if err != nil {
		var upstream *chat.UpstreamError
		switch {
		case errors.Is(err, chat.ErrDisabled):
			respondError(ctx, w, http.StatusServiceUnavailable, "chat is not configured")
		case errors.As(err, &upstream):
			logger.Error("chat upstream rejected request", "status", upstream.Status)
			respondError(ctx, w, http.StatusBadGateway, "chat is temporarily unavailable")
		default:
			logger.Error("open chat stream", "error", err)
			respondError(ctx, w, http.StatusBadGateway, "chat is temporarily unavailable")
		}
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "text/event-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Now().Add(chatStreamTimeout))
	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				logger.Warn("client went away during chat stream", "error", err)
				return
			}
			_ = rc.Flush()
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				logger.Warn("chat stream interrupted", "error", readErr)
			}
			return
		}
	}
}
