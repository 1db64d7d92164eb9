package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nexlify/user-accounts/internal/domain"
	"github.com/nexlify/user-accounts/internal/http/response"
	"github.com/nexlify/user-accounts/pkg/logger"
)

const operationSuccessful = "Operation Successfull"

// Signup registers a new account.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}

	if _, err := h.authService.Signup(r.Context(), &req); err != nil {
		response.Error(w, r, err, h.config.IsDevelopment())
		return
	}

	response.Success(w, http.StatusCreated, operationSuccessful, nil)
}

type loginResult struct {
	Status string `json:"status"`
	Token  string `json:"token"`
	Data   struct {
		User *domain.UserInfo `json:"user"`
	} `json:"data"`
}

// Login verifies credentials and issues a session token, both in the body and
// as an httpOnly cookie.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}

	resp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		response.Error(w, r, err, h.config.IsDevelopment())
		return
	}

	h.setSessionCookie(w, resp.Token)

	out := loginResult{Status: response.StatusSuccess, Token: resp.Token}
	out.Data.User = resp.User
	response.JSON(w, http.StatusOK, out)
}

// Logout instructs the client to discard its token. No server state changes.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearSessionCookie(w)
	response.Success(w, http.StatusOK, operationSuccessful, nil)
}

// Protected is a sample gated endpoint behind Authenticate.
func (h *Handlers) Protected(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, operationSuccessful, nil)
}

// ForgotPassword issues a reset code and emails it.
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		response.BadRequest(w, "email is required")
		return
	}

	email := domain.NormalizeEmail(req.Email)
	if !h.allowResetRequest(r, "email:"+email) {
		response.RateLimited(w)
		return
	}

	if err := h.authService.RequestPasswordReset(r.Context(), email); err != nil {
		response.Error(w, r, err, h.config.IsDevelopment())
		return
	}

	response.Success(w, http.StatusOK, "reset code sent to email", nil)
}

// ForgotPasswordSMS issues a reset code and texts it.
func (h *Handlers) ForgotPasswordSMS(w http.ResponseWriter, r *http.Request) {
	var req domain.ForgotPasswordSMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" {
		response.BadRequest(w, "phone is required")
		return
	}

	phone := domain.NormalizePhone(req.Phone)
	if !h.allowResetRequest(r, "phone:"+phone) {
		response.RateLimited(w)
		return
	}

	if err := h.authService.RequestPasswordResetSMS(r.Context(), phone); err != nil {
		response.Error(w, r, err, h.config.IsDevelopment())
		return
	}

	response.Success(w, http.StatusOK, "reset code sent to phone", nil)
}

// ResetPassword consumes an emailed reset code.
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	h.completeReset(w, r)
}

// ResetPasswordSMS consumes a texted reset code.
func (h *Handlers) ResetPasswordSMS(w http.ResponseWriter, r *http.Request) {
	h.completeReset(w, r)
}

func (h *Handlers) completeReset(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req domain.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}

	if _, err := h.authService.CompletePasswordReset(r.Context(), code, req.Password, req.PasswordConfirm); err != nil {
		response.Error(w, r, err, h.config.IsDevelopment())
		return
	}

	response.Success(w, http.StatusOK, "password reset successfully", nil)
}

func (h *Handlers) allowResetRequest(r *http.Request, key string) bool {
	allowed, err := h.rateLimitRepo.CheckRateLimit(r.Context(), "pwreset:"+key, 3, 15*time.Minute)
	if err != nil {
		logger.ErrorContext(r.Context(), "rate limit check failed", "error", err)
		return true
	}
	return allowed
}
