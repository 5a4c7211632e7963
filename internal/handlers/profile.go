package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wayfarer/backend/internal/logging"
	"github.com/wayfarer/backend/internal/models"
	"github.com/wayfarer/backend/internal/repositories"
)

const maxBioLength = 500

// ProfileHandler lets a signed-in traveller edit their public profile.
type ProfileHandler struct {
	Users  ProfileStore
	Tokens TokenVerifier
}

type socialInput struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
}

type updateProfileRequest struct {
	DisplayName string        `json:"displayName"`
	Bio         string        `json:"bio"`
	HomeBase    string        `json:"homeBase"`
	Socials     []socialInput `json:"socials"`
}

// Update handles POST /api/v1/profile. The caller is identified by bearer token.
func (h ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Tokens == nil {
		logger.Error("profile dependencies unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "profile services unavailable")
		return
	}

	token := bearerToken(r)
	if token == "" {
		respondError(ctx, w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	sessionUser, err := h.Tokens.GetUser(ctx, token)
	if err != nil {
		logger.Warn("token rejected", "error", err)
		respondError(ctx, w, http.StatusUnauthorized, "session expired, please sign in again")
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid profile payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	bio := strings.TrimSpace(req.Bio)
	if len([]rune(bio)) > maxBioLength {
		respondError(ctx, w, http.StatusBadRequest, "bio is too long")
		return
	}

	socials, err := buildSocials(req.Socials)
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.Users.UpdateProfile(ctx, models.User{
		Email:       strings.ToLower(strings.TrimSpace(sessionUser.Email)),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Bio:         bio,
		HomeBase:    strings.TrimSpace(req.HomeBase),
		Socials:     socials,
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "profile not found")
			return
		}
		logger.Error("update profile", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	respondOK(ctx, w, http.StatusOK, "Profile updated.", updated)
}

func buildSocials(in []socialInput) ([]models.SocialLink, error) {
	seen := make(map[models.SocialPlatform]struct{}, len(in))
	links := make([]models.SocialLink, 0, len(in))
	for _, s := range in {
		platform, err := models.ParseSocialPlatform(s.Platform)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[platform]; dup {
			return nil, errors.New("each social platform may only be linked once")
		}
		seen[platform] = struct{}{}

		profileURL, err := platform.ProfileURL(s.Handle)
		if err != nil {
			return nil, err
		}
		links = append(links, models.SocialLink{
			Platform: platform,
			Handle:   strings.TrimPrefix(strings.TrimSpace(s.Handle), "@"),
			URL:      profileURL,
		})
	}
	return links, nil
}
