package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexlify/user-accounts/internal/domain"
	"github.com/nexlify/user-accounts/internal/http/response"
)

// ListUsers returns all user records, sanitized, with a count.
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.authService.ListUsers(r.Context())
	if err != nil {
		response.Error(w, r, err, h.config.IsDevelopment())
		return
	}

	result := make([]*domain.UserInfo, 0, len(users))
	for i := range users {
		result = append(result, users[i].ToUserInfo())
	}

	response.SuccessList(w, operationSuccessful, len(result), map[string]interface{}{
		"result": result,
	})
}

// GetUser returns a single sanitized record by id.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := h.authService.GetUser(r.Context(), id)
	if err != nil {
		response.Error(w, r, err, h.config.IsDevelopment())
		return
	}

	response.Success(w, http.StatusOK, operationSuccessful, map[string]interface{}{
		"result": user.ToUserInfo(),
	})
}

// UpdateUser applies a partial update to name and phone fields.
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req domain.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}

	user, err := h.authService.UpdateUser(r.Context(), id, &req)
	if err != nil {
		response.Error(w, r, err, h.config.IsDevelopment())
		return
	}

	response.Success(w, http.StatusOK, operationSuccessful, map[string]interface{}{
		"result": user.ToUserInfo(),
	})
}

// DeleteUser removes a record by id.
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.authService.DeleteUser(r.Context(), id); err != nil {
		response.Error(w, r, err, h.config.IsDevelopment())
		return
	}

	response.Success(w, http.StatusOK, operationSuccessful, nil)
}
