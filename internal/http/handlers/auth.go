package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/mt-platform/admission-service/internal/http/httperr"
	"github.com/mt-platform/admission-service/internal/http/middleware"
	"github.com/mt-platform/admission-service/internal/models"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	RefreshToken    string `json:"refreshToken"`
}

type tokensPayload struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresIn — срок жизни access-токена в секундах.
	ExpiresIn int64 `json:"expiresIn"`
}

type tokensResponse struct {
	Tokens tokensPayload `json:"tokens"`
}

type okResponse struct {
	Ok bool `json:"ok"`
}

func tokensFromPair(pair *models.TokenPair) tokensResponse {
	return tokensResponse{
		Tokens: tokensPayload{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresIn:    int64(time.Until(pair.AccessExpiresAt).Seconds()),
		},
	}
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(r, &in); err != nil {
		httperr.WriteError(w, r, httperr.ErrInvalidArgument)
		return
	}

	pair, _, err := h.Auth.RegisterUser(r.Context(), in.Email, in.Password)
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokensFromPair(pair))
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		httperr.WriteError(w, r, httperr.ErrInvalidArgument)
		return
	}

	pair, _, err := h.Auth.LoginUser(r.Context(), in.Email, in.Password)
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokensFromPair(pair))
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(r, &in); err != nil || in.RefreshToken == "" {
		httperr.WriteError(w, r, httperr.ErrInvalidArgument)
		return
	}

	pair, _, err := h.Auth.Rotate(r.Context(), in.RefreshToken)
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokensFromPair(pair))
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	// Тело опционально: logout без refresh-токена отзывает только access.
	var in logoutRequest
	if err := decodeStrict(r, &in); err != nil && !errors.Is(err, io.EOF) {
		httperr.WriteError(w, r, httperr.ErrInvalidArgument)
		return
	}

	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		httperr.WriteError(w, r, httperr.ErrUnauthenticated)
		return
	}

	if err := h.Auth.Logout(r.Context(), claims, in.RefreshToken); err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{Ok: true})
}

func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in changePasswordRequest
	if err := decodeStrict(r, &in); err != nil {
		httperr.WriteError(w, r, httperr.ErrInvalidArgument)
		return
	}

	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		httperr.WriteError(w, r, httperr.ErrUnauthenticated)
		return
	}

	err := h.Auth.ChangePassword(r.Context(), claims, in.RefreshToken, in.CurrentPassword, in.NewPassword)
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{Ok: true})
}
