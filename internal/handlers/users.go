package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vnshop/api/internal/platform/auth"
	"github.com/vnshop/api/internal/platform/httpx"
	pstorage "github.com/vnshop/api/internal/platform/storage"
	"github.com/vnshop/api/internal/services"
)

const maxProfileBodySize = 16 * 1024

// UserHandlers exposes registration, public profiles and the caller's own profile.
type UserHandlers struct {
	authn   *auth.Authenticator
	users   services.UserService
	uploads services.UploadService
}

// NewUserHandlers constructs user handlers. uploads may be nil when no bucket is configured.
func NewUserHandlers(authn *auth.Authenticator, users services.UserService, uploads services.UploadService) *UserHandlers {
	return &UserHandlers{authn: authn, users: users, uploads: uploads}
}

// UserRoutes registers the /users endpoints.
func (h *UserHandlers) UserRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{userID}", h.getPublicUser)
	r.Group(func(authed chi.Router) {
		if h.authn != nil {
			authed.Use(h.authn.RequireFirebaseAuth())
		}
		authed.Post("/", h.register)
	})
}

// ProfileRoutes registers the /profile endpoints.
func (h *UserHandlers) ProfileRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Put("/", h.updateProfile)
	r.Put("/avatar", h.updateAvatar)
	if h.uploads != nil {
		r.Post("/avatar/upload-url", h.avatarUploadURL)
	}
}

type registerUserRequest struct {
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Avatar      string  `json:"avatar"`
	PhoneNumber string  `json:"phone_number"`
	BirthDate   *string `json:"birth_date"`
	Gender      string  `json:"gender"`
}

// register creates the profile of the token holder. The email falls back to the token claim.
func (h *UserHandlers) register(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req registerUserRequest
	if !decodeBody(w, r, maxProfileBodySize, &req) {
		return
	}
	birthDate, err := parseOptionalTime(req.BirthDate)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "birth_date must be YYYY-MM-DD", http.StatusBadRequest).WithField("birth_date"))
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = identity.Email
	}
	user, err := h.users.Register(r.Context(), services.RegisterUserCommand{
		UID:         identity.UID,
		Username:    req.Username,
		Email:       email,
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

func (h *UserHandlers) getPublicUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), pathParam(r, "userID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, publicUserPayload{ID: user.ID, Username: user.Username, Avatar: user.Avatar})
}

func (h *UserHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	user, err := h.users.Get(r.Context(), identity.UID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildUserPayload(user))
}

type updateProfileRequest struct {
	Username    *string `json:"username"`
	PhoneNumber *string `json:"phone_number"`
	BirthDate   *string `json:"birth_date"`
	Gender      *string `json:"gender"`
}

func (h *UserHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if !decodeBody(w, r, maxProfileBodySize, &req) {
		return
	}
	birthDate, err := parseOptionalTime(req.BirthDate)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "birth_date must be YYYY-MM-DD", http.StatusBadRequest).WithField("birth_date"))
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), identity.UID, services.ProfilePatch{
		Username:    req.Username,
		PhoneNumber: req.PhoneNumber,
		BirthDate:   birthDate,
		Gender:      req.Gender,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Profile updated", buildUserPayload(user))
}

type updateAvatarRequest struct {
	Avatar string `json:"avatar"`
}

func (h *UserHandlers) updateAvatar(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req updateAvatarRequest
	if !decodeBody(w, r, maxProfileBodySize, &req) {
		return
	}
	user, err := h.users.UpdateAvatar(r.Context(), identity.UID, req.Avatar)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Avatar updated", buildUserPayload(user))
}

type uploadURLRequest struct {
	ContentType string `json:"content_type"`
	ProductID   string `json:"product_id"`
}

func (h *UserHandlers) avatarUploadURL(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req uploadURLRequest
	if !decodeBody(w, r, maxProfileBodySize, &req) {
		return
	}
	upload, err := h.uploads.IssueUpload(r.Context(), services.UploadCommand{
		Purpose:     pstorage.PurposeAvatar,
		OwnerID:     identity.UID,
		ContentType: req.ContentType,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildUploadPayload(upload))
}
