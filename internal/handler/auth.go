package handler

import (
	"net/http"

	"github.com/efreitasn/finance/internal/domain"
	"github.com/efreitasn/finance/internal/service"
)

// AuthHandler handles HTTP requests for account and session endpoints.
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// registerRequest is the JSON request body for POST /register.
type registerRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
}

// loginRequest is the JSON request body for POST /login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// sessionResponse is the JSON response for POST /register and POST /login.
type sessionResponse struct {
	UserID    int64  `json:"user_id"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// profileResponse is the JSON response for GET /profile.
type profileResponse struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	Cash        string `json:"cash"`
	CashDisplay string `json:"cash_display"`
	CreatedAt   string `json:"created_at"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	Confirmation    string `json:"confirmation"`
}

type deleteAccountRequest struct {
	Password string `json:"password"`
}

// Register handles POST /register. A new account is logged in right away.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	user, err := h.authSvc.Register(r.Context(), service.RegisterRequest{
		Username:     req.Username,
		Password:     req.Password,
		Confirmation: req.Confirmation,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.writeSession(w, http.StatusCreated, user.ID)
}

// Login handles POST /login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	id, err := h.authSvc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.writeSession(w, http.StatusOK, id)
}

// Logout handles POST /logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authSvc.EndSession(sessionToken(r))
	w.WriteHeader(http.StatusNoContent)
}

// Profile handles GET /profile.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.authSvc.Profile(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, profileResponse{
		UserID:      user.ID,
		Username:    user.Username,
		Cash:        formatAmount(user.Cash),
		CashDisplay: domain.FormatUSD(user.Cash),
		CreatedAt:   user.CreatedAt.UTC().Format(timeFormat),
	})
}

// ChangePassword handles POST /profile/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	err := h.authSvc.ChangePassword(r.Context(), userID(r), service.ChangePasswordRequest{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		Confirmation:    req.Confirmation,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteAccount handles DELETE /profile. Every session of the user,
// including the caller's, ends with the account.
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req deleteAccountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.authSvc.DeleteAccount(r.Context(), userID(r), req.Password); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, status int, id int64) {
	sess := h.authSvc.StartSession(id)
	WriteJSON(w, status, sessionResponse{
		UserID:    sess.UserID,
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt.UTC().Format(timeFormat),
	})
}
