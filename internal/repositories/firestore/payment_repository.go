package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vnshop/api/internal/domain"
	pfirestore "github.com/vnshop/api/internal/platform/firestore"
	"github.com/vnshop/api/internal/repositories"
)

const paymentCollection = "payments"

// PaymentRepository is the append-only ledger of verified gateway callbacks. The document id is
// chosen by the caller so a replayed callback collides on Create.
type PaymentRepository struct {
	base *pfirestore.Collection[paymentDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment ledger.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{base: pfirestore.NewCollection[paymentDocument](provider, paymentCollection)}, nil
}

func (r *PaymentRepository) Record(ctx context.Context, record domain.PaymentRecord) error {
	if strings.TrimSpace(record.ID) == "" {
		return errors.New("payment repository: record id is required")
	}
	return r.base.Create(ctx, record.ID, paymentDocument{
		OrderID:       record.OrderID,
		Provider:      record.Provider,
		TransactionNo: record.TransactionNo,
		ResponseCode:  record.ResponseCode,
		Amount:        record.Amount,
		BankCode:      record.BankCode,
		Status:        string(record.Status),
		Raw:           record.Raw,
		CreatedAt:     record.CreatedAt.UTC(),
	})
}

func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentRecord, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("order_id", "==", strings.TrimSpace(orderID)).OrderBy(fieldCreatedAt, firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.PaymentRecord, 0, len(docs))
	for _, doc := range docs {
		d := doc.Data
		out = append(out, domain.PaymentRecord{
			ID:            doc.ID,
			OrderID:       d.OrderID,
			Provider:      d.Provider,
			TransactionNo: d.TransactionNo,
			ResponseCode:  d.ResponseCode,
			Amount:        d.Amount,
			BankCode:      d.BankCode,
			Status:        domain.OrderStatus(d.Status),
			Raw:           d.Raw,
			CreatedAt:     d.CreatedAt,
		})
	}
	return out, nil
}

type paymentDocument struct {
	OrderID       string            `firestore:"order_id"`
	Provider      string            `firestore:"provider"`
	TransactionNo string            `firestore:"transaction_no"`
	ResponseCode  string            `firestore:"response_code"`
	Amount        int64             `firestore:"amount"`
	BankCode      string            `firestore:"bank_code,omitempty"`
	Status        string            `firestore:"status"`
	Raw           map[string]string `firestore:"raw"`
	CreatedAt     time.Time         `firestore:"created_at"`
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)
