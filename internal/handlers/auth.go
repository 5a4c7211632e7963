package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/wayfarer/backend/internal/auth"
	"github.com/wayfarer/backend/internal/identity"
	"github.com/wayfarer/backend/internal/logging"
)

// AuthHandler implements one-time-code sign-in endpoints.
type AuthHandler struct {
	Auth AuthService
}

type requestCodeRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	ClientID    string `json:"clientId"`
	AccessToken string `json:"accessToken,omitempty"`
}

type logoutRequest struct {
	ClientID string `json:"clientId"`
}

// RequestCode handles POST /api/v1/auth/otp.
func (h AuthHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Auth == nil {
		logger.Error("authentication dependencies unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	var req requestCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid otp payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Auth.RequestCode(ctx, req.Email); err != nil {
		h.respondAuthError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "Check your inbox for a sign-in code.", nil)
}

// Verify handles POST /api/v1/auth/verify. A freshly re-issued code is reported
// with 202 and success=false so clients prompt for the new code.
func (h AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Auth == nil {
		logger.Error("authentication dependencies unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid verify payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = strings.TrimSpace(r.Header.Get("X-Client-ID"))
	}
	accessToken := strings.TrimSpace(req.AccessToken)
	if accessToken == "" {
		accessToken = bearerToken(r)
	}

	session, err := h.Auth.Verify(ctx, auth.VerifyRequest{
		ClientID:    clientID,
		Email:       req.Email,
		Code:        req.Code,
		AccessToken: accessToken,
	})
	if err != nil {
		if errors.Is(err, auth.ErrCodeResent) {
			respondJSON(ctx, w, http.StatusAccepted, envelope{
				Success: false,
				Message: "We couldn't confirm that code, so we sent you a new one. Please check your email.",
				Data:    map[string]bool{"codeResent": true},
			})
			return
		}
		h.respondAuthError(ctx, w, err)
		return
	}

	respondOK(ctx, w, http.StatusOK, "Signed in.", session)
}

// Logout handles POST /api/v1/auth/logout.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Auth == nil {
		logger.Error("authentication dependencies unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	var req logoutRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid logout payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ClientID) == "" {
		respondError(ctx, w, http.StatusBadRequest, "clientId is required")
		return
	}

	if err := h.Auth.Logout(ctx, req.ClientID); err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			respondError(ctx, w, http.StatusNotFound, "no active session")
			return
		}
		logger.Error("logout failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to sign out")
		return
	}
	respondOK(ctx, w, http.StatusOK, "Signed out.", nil)
}

func (h AuthHandler) respondAuthError(ctx context.Context, w http.ResponseWriter, err error) {
	var authErr *auth.AuthError
	switch {
	case errors.As(err, &authErr):
		status := authErr.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		respondError(ctx, w, status, authErr.Message)
	case identity.IsTransient(err):
		logging.FromContext(ctx).Error("identity provider unavailable", "error", err)
		respondError(ctx, w, http.StatusBadGateway, "Sign-in is temporarily unavailable. Please try again shortly.")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		respondError(ctx, w, http.StatusGatewayTimeout, "Sign-in timed out. Please try again.")
	default:
		logging.FromContext(ctx).Error("authentication failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "Something went wrong signing you in.")
	}
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
