package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/payments"
	"github.com/vnshop/api/internal/repositories"
)

const (
	paymentDuplicateLog      = "payment.callback.duplicate"
	paymentAmountMismatchLog = "payment.callback.amount_mismatch"
)

// PaymentGateway signs redirects and verifies callbacks. *payments.VNPay satisfies it.
type PaymentGateway interface {
	BuildURL(req payments.PaymentRequest) (string, error)
	Verify(query url.Values) (payments.Callback, error)
}

// PaymentServiceDeps wires the payment service.
type PaymentServiceDeps struct {
	Orders   OrderService
	Payments repositories.PaymentRepository
	Gateway  PaymentGateway
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders   OrderService
	payments repositories.PaymentRepository
	gateway  PaymentGateway
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentService{
		orders:   deps.Orders,
		payments: deps.Payments,
		gateway:  deps.Gateway,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *paymentService) CreatePaymentURL(ctx context.Context, cmd CreatePaymentURLCommand) (string, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return "", invalidField("order_id", "orderId is required")
	}
	order, err := s.orders.Get(ctx, cmd.Actor, orderID)
	if err != nil {
		return "", err
	}
	if order.Status != domain.OrderStatusPending {
		return "", failure(ErrInvalidTransition, "Only pending orders can be paid")
	}
	redirect, err := s.gateway.BuildURL(payments.PaymentRequest{
		TxnRef:   order.ID,
		Amount:   order.TotalAmount,
		ClientIP: cmd.ClientIP,
	})
	if err != nil {
		return "", err
	}
	return redirect, nil
}

// HandleReturn verifies the callback, records it in the ledger and moves the order to paid or
// failed. A success code whose amount differs from the order total is treated as failed. A
// callback already in the ledger is a Duplicate once the order has left pending; while the order
// is still pending the status is applied again, so a retry completes an interrupted callback.
func (s *paymentService) HandleReturn(ctx context.Context, params url.Values) (PaymentResult, error) {
	callback, err := s.gateway.Verify(params)
	switch {
	case errors.Is(err, payments.ErrInvalidSignature):
		return PaymentResult{}, failure(ErrInvalidSignature, "Invalid signature")
	case errors.Is(err, payments.ErrMissingParameter):
		return PaymentResult{}, invalidField("vnp_TxnRef", "Missing transaction reference")
	case err != nil:
		return PaymentResult{}, invalidField("", "Malformed callback")
	}

	order, err := s.orders.Get(ctx, Actor{Admin: true}, callback.TxnRef)
	if err != nil {
		return PaymentResult{}, err
	}

	result := PaymentResult{
		OrderID:      callback.TxnRef,
		ResponseCode: callback.ResponseCode,
		Status:       domain.OrderStatusFailed,
		Message:      "Payment failed",
	}
	switch {
	case !callback.Paid():
	case callback.Amount != order.TotalAmount:
		s.logger(ctx, paymentAmountMismatchLog, map[string]any{
			"orderID":  order.ID,
			"expected": order.TotalAmount,
			"received": callback.Amount,
		})
		result.Message = "Payment amount does not match the order total"
	default:
		result.Status = domain.OrderStatusPaid
		result.Message = "Payment successful"
	}

	record := PaymentRecord{
		ID:            callback.TxnRef + ":" + callback.TransactionNo,
		OrderID:       callback.TxnRef,
		Provider:      payments.ProviderVNPay,
		TransactionNo: callback.TransactionNo,
		ResponseCode:  callback.ResponseCode,
		Amount:        callback.Amount,
		BankCode:      callback.BankCode,
		Status:        result.Status,
		Raw:           callback.Params,
		CreatedAt:     s.clock(),
	}
	if err := s.payments.Record(ctx, record); err != nil {
		if !isRepositoryConflict(err) {
			return PaymentResult{}, mapRepositoryError(err, "")
		}
		if order.Status != domain.OrderStatusPending {
			s.logger(ctx, paymentDuplicateLog, map[string]any{
				"orderID": callback.TxnRef,
				"record":  record.ID,
				"status":  string(order.Status),
			})
			result.Duplicate = true
			return result, nil
		}
	}

	if _, err := s.orders.UpdateStatus(ctx, callback.TxnRef, result.Status); err != nil {
		return PaymentResult{}, err
	}
	return result, nil
}
