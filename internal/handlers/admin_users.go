package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vnshop/api/internal/platform/httpx"
	"github.com/vnshop/api/internal/services"
)

func (h *AdminHandlers) userRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Post("/", h.createUser)
	r.Get("/{userID}", h.getUser)
	r.Patch("/{userID}", h.updateUser)
	r.Delete("/{userID}", h.deleteUser)
}

func (h *AdminHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFromQuery(w, r, adminUserPageSize, userSortFields)
	if !ok {
		return
	}
	result, err := h.users.AdminList(r.Context(), services.UserFilter{
		Query: queryValue(r.URL.Query(), "q"),
		Page:  page,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writePage(w, mapSlice(result.Items, buildUserPayload), page, result.Total)
}

type adminCreateUserRequest struct {
	FirebaseUID string  `json:"firebase_uid"`
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Avatar      string  `json:"avatar"`
	PhoneNumber string  `json:"phone_number"`
	BirthDate   *string `json:"birth_date"`
	Gender      string  `json:"gender"`
}

func (h *AdminHandlers) createUser(w http.ResponseWriter, r *http.Request) {
	var req adminCreateUserRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	birthDate, err := parseOptionalTime(req.BirthDate)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "birth_date must be YYYY-MM-DD", http.StatusBadRequest).WithField("birth_date"))
		return
	}
	user, err := h.users.AdminCreate(r.Context(), services.RegisterUserCommand{
		UID:         req.FirebaseUID,
		Username:    req.Username,
		Email:       req.Email,
		Avatar:      req.Avatar,
		PhoneNumber: req.PhoneNumber,
		BirthDate:   birthDate,
		Gender:      req.Gender,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "User created", buildUserPayload(user))
}

func (h *AdminHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), pathParam(r, "userID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildUserPayload(user))
}

type adminUpdateUserRequest struct {
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	Avatar      *string `json:"avatar"`
	PhoneNumber *string `json:"phone_number"`
	BirthDate   *string `json:"birth_date"`
	Gender      *string `json:"gender"`
}

func (h *AdminHandlers) updateUser(w http.ResponseWriter, r *http.Request) {
	var req adminUpdateUserRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	birthDate, err := parseOptionalTime(req.BirthDate)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "birth_date must be YYYY-MM-DD", http.StatusBadRequest).WithField("birth_date"))
		return
	}
	user, err := h.users.AdminUpdate(r.Context(), pathParam(r, "userID"), services.UserPatch{
		Username:    req.Username,
		Email:       req.Email,
		Avatar:      req.Avatar,
		PhoneNumber: req.PhoneNumber,
		BirthDate:   birthDate,
		Gender:      req.Gender,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "User updated", buildUserPayload(user))
}

func (h *AdminHandlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), pathParam(r, "userID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "User deleted", nil)
}
