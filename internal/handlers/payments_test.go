package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/services"
)

type stubPaymentService struct {
	createFn func(context.Context, services.CreatePaymentURLCommand) (string, error)
	returnFn func(context.Context, url.Values) (services.PaymentResult, error)
}

func (s *stubPaymentService) CreatePaymentURL(ctx context.Context, cmd services.CreatePaymentURLCommand) (string, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubPaymentService) HandleReturn(ctx context.Context, params url.Values) (services.PaymentResult, error) {
	return s.returnFn(ctx, params)
}

func TestPaymentHandlersCreateURL(t *testing.T) {
	var captured services.CreatePaymentURLCommand
	svc := &stubPaymentService{
		createFn: func(_ context.Context, cmd services.CreatePaymentURLCommand) (string, error) {
			captured = cmd
			return "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?vnp_TxnRef=ord-1", nil
		},
	}
	router := chi.NewRouter()
	router.Route("/payments", NewPaymentHandlers(nil, svc).Routes)

	req := withUser(httptest.NewRequest(http.MethodPost, "/payments/vnpay", strings.NewReader(`{"order_id":"ord-1"}`)), "user-1")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord-1" || captured.Actor.UserID != "user-1" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.ClientIP != "203.0.113.9" {
		t.Fatalf("expected forwarded client ip, got %q", captured.ClientIP)
	}
	data := decodeEnvelope(t, rr)["data"].(map[string]any)
	if !strings.HasPrefix(data["payment_url"].(string), "https://sandbox.vnpayment.vn/") {
		t.Fatalf("unexpected payload %v", data)
	}
}

func TestPaymentHandlersCreateURLValidation(t *testing.T) {
	svc := &stubPaymentService{
		createFn: func(context.Context, services.CreatePaymentURLCommand) (string, error) {
			return "", &services.FieldError{Kind: services.ErrValidation, Field: "order_id", Message: "orderId is required"}
		},
	}
	router := chi.NewRouter()
	router.Route("/payments", NewPaymentHandlers(nil, svc).Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPost, "/payments/vnpay", strings.NewReader(`{}`)), "user-1"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	body := decodeEnvelope(t, rr)
	if body["message"] != "orderId is required" || body["field"] != "order_id" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestPaymentHandlersReturn(t *testing.T) {
	tests := []struct {
		name        string
		result      services.PaymentResult
		err         error
		wantStatus  int
		wantSuccess bool
		wantMessage string
	}{
		{
			name:        "paid",
			result:      services.PaymentResult{OrderID: "ord-1", Status: domain.OrderStatusPaid, ResponseCode: "00", Message: "Payment successful"},
			wantStatus:  http.StatusOK,
			wantSuccess: true,
			wantMessage: "Payment successful",
		},
		{
			name:        "failed",
			result:      services.PaymentResult{OrderID: "ord-1", Status: domain.OrderStatusFailed, ResponseCode: "24", Message: "Payment failed"},
			wantStatus:  http.StatusOK,
			wantSuccess: true,
			wantMessage: "Payment failed",
		},
		{
			name:        "tampered",
			err:         &services.FieldError{Kind: services.ErrInvalidSignature, Message: "Invalid signature"},
			wantStatus:  http.StatusBadRequest,
			wantSuccess: false,
			wantMessage: "Invalid signature",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var params url.Values
			svc := &stubPaymentService{
				returnFn: func(_ context.Context, values url.Values) (services.PaymentResult, error) {
					params = values
					return tc.result, tc.err
				},
			}
			router := chi.NewRouter()
			router.Route("/payments", NewPaymentHandlers(nil, svc).Routes)

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payments/vnpay/return?vnp_TxnRef=ord-1&vnp_ResponseCode=00", nil))

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if params.Get("vnp_TxnRef") != "ord-1" {
				t.Fatalf("expected query params to reach the service, got %v", params)
			}
			body := decodeEnvelope(t, rr)
			if body["success"] != tc.wantSuccess || body["message"] != tc.wantMessage {
				t.Fatalf("unexpected body %v", body)
			}
			if tc.err == nil {
				data, _ := body["data"].(map[string]any)
				if data["status"] != string(tc.result.Status) {
					t.Fatalf("expected data.status %q, got %v", tc.result.Status, data["status"])
				}
			}
		})
	}
}
