package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/services"
)

type stubAddressService struct {
	added      services.AddAddressCommand
	list       []services.Address
	defaultErr error
	calls      []string
}

func (s *stubAddressService) Add(_ context.Context, cmd services.AddAddressCommand) (services.Address, error) {
	s.added = cmd
	return services.Address{ID: "a1", UserID: cmd.UserID, Type: domain.AddressType(cmd.Type), Street: cmd.Street, Province: cmd.Province, IsDefault: true}, nil
}

func (s *stubAddressService) List(_ context.Context, uid string) ([]services.Address, error) {
	s.calls = append(s.calls, "list:"+uid)
	return s.list, nil
}

func (s *stubAddressService) SetDefault(_ context.Context, uid, id string) error {
	s.calls = append(s.calls, "default:"+uid+":"+id)
	return s.defaultErr
}

func (s *stubAddressService) Delete(_ context.Context, uid, id string) error {
	s.calls = append(s.calls, "delete:"+uid+":"+id)
	return nil
}

func addressRouter(svc services.AddressService) chi.Router {
	router := chi.NewRouter()
	router.Route("/addresses", NewAddressHandlers(nil, svc).Routes)
	return router
}

func TestAddressHandlersAdd(t *testing.T) {
	svc := &stubAddressService{}
	body := `{"type":"home","street":"12 Nguyễn Huệ","province":"Hồ Chí Minh","district":"1","ward":"Bến Nghé"}`
	rr := httptest.NewRecorder()
	addressRouter(svc).ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPost, "/addresses", strings.NewReader(body)), "u1"))

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, services.AddAddressCommand{UserID: "u1", Type: "home", Street: "12 Nguyễn Huệ", Province: "Hồ Chí Minh", District: "1", Ward: "Bến Nghé"}, svc.added)
	envelope := decodeEnvelope(t, rr)
	assert.Equal(t, "Address added", envelope["message"])
	assert.Equal(t, true, envelope["data"].(map[string]any)["is_default"])
}

func TestAddressHandlersListAndDelete(t *testing.T) {
	svc := &stubAddressService{list: []services.Address{{ID: "a1", UserID: "u1", IsDefault: true}, {ID: "a2", UserID: "u1"}}}
	router := addressRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodGet, "/addresses", nil), "u1"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeEnvelope(t, rr)["data"].([]any), 2)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodDelete, "/addresses/a2", nil), "u1"))
	assert.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, []string{"list:u1", "delete:u1:a2"}, svc.calls)
}

func TestAddressHandlersSetDefaultNotFound(t *testing.T) {
	svc := &stubAddressService{defaultErr: &services.FieldError{Kind: services.ErrNotFound, Message: "Address not found"}}
	rr := httptest.NewRecorder()
	addressRouter(svc).ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPut, "/addresses/other/default", nil), "u1"))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Address not found", decodeEnvelope(t, rr)["message"])
	assert.Equal(t, []string{"default:u1:other"}, svc.calls)
}
