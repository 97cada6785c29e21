package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vnshop/api/internal/platform/auth"
	"github.com/vnshop/api/internal/platform/httpx"
	"github.com/vnshop/api/internal/services"
)

const maxAddressBodySize = 8 * 1024

// AddressHandlers manages the caller's saved addresses.
type AddressHandlers struct {
	authn     *auth.Authenticator
	addresses services.AddressService
}

// NewAddressHandlers constructs address handlers.
func NewAddressHandlers(authn *auth.Authenticator, addresses services.AddressService) *AddressHandlers {
	return &AddressHandlers{authn: authn, addresses: addresses}
}

// Routes registers the /addresses endpoints.
func (h *AddressHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.addAddress)
	r.Get("/", h.listAddresses)
	r.Put("/{addressID}/default", h.setDefault)
	r.Delete("/{addressID}", h.deleteAddress)
}

type addAddressRequest struct {
	Type      string `json:"type"`
	Street    string `json:"street"`
	Province  string `json:"province"`
	District  string `json:"district"`
	Ward      string `json:"ward"`
	IsDefault bool   `json:"is_default"`
}

func (h *AddressHandlers) addAddress(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req addAddressRequest
	if !decodeBody(w, r, maxAddressBodySize, &req) {
		return
	}
	address, err := h.addresses.Add(r.Context(), services.AddAddressCommand{
		UserID:    identity.UID,
		Type:      req.Type,
		Street:    req.Street,
		Province:  req.Province,
		District:  req.District,
		Ward:      req.Ward,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "Address added", buildAddressPayload(address))
}

func (h *AddressHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	addresses, err := h.addresses.List(r.Context(), identity.UID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, mapSlice(addresses, buildAddressPayload))
}

func (h *AddressHandlers) setDefault(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.addresses.SetDefault(r.Context(), identity.UID, pathParam(r, "addressID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Default address updated", nil)
}

func (h *AddressHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.addresses.Delete(r.Context(), identity.UID, pathParam(r, "addressID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Address deleted", nil)
}
