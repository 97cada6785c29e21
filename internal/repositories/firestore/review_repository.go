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

const (
	reviewCollection = "reviews"

	reviewFieldRootID = "root_id"
)

// ReviewRepository persists product reviews. Replies share the root_id of their thread so a
// whole thread is one equality query.
type ReviewRepository struct {
	base     *pfirestore.Collection[reviewDocument]
	provider *pfirestore.Provider
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	return &ReviewRepository{
		base:     pfirestore.NewCollection[reviewDocument](provider, reviewCollection),
		provider: provider,
	}, nil
}

func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) error {
	return r.base.Create(ctx, review.ID, fromDomainReview(review))
}

func (r *ReviewRepository) Get(ctx context.Context, id string) (domain.Review, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Review{}, err
	}
	return toDomainReview(doc), nil
}

// ListByProduct returns every review and reply of a product, oldest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string) ([]domain.Review, error) {
	return r.list(ctx, "product_id", productID)
}

// ListThread returns the replies of a thread, oldest first.
func (r *ReviewRepository) ListThread(ctx context.Context, rootID string) ([]domain.Review, error) {
	return r.list(ctx, reviewFieldRootID, rootID)
}

func (r *ReviewRepository) list(ctx context.Context, field, value string) ([]domain.Review, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", strings.TrimSpace(value)).OrderBy(fieldCreatedAt, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainReview(doc))
	}
	return out, nil
}

// DeleteTree removes review and every reply that descends from it. Descendants are found by
// walking parent links inside the thread, all in one transaction.
func (r *ReviewRepository) DeleteTree(ctx context.Context, review domain.Review) (int, error) {
	coll, err := r.base.Ref(ctx)
	if err != nil {
		return 0, err
	}
	rootID := review.RootID
	if rootID == "" {
		rootID = review.ID
	}

	var deleted int
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		deleted = 0
		self, err := tx.Get(coll.Doc(review.ID))
		if err != nil {
			return err
		}
		thread, err := tx.Documents(coll.Where(reviewFieldRootID, "==", rootID)).GetAll()
		if err != nil {
			return err
		}
		parents := make(map[string]string, len(thread))
		refs := make(map[string]*firestore.DocumentRef, len(thread))
		for _, snap := range thread {
			var doc reviewDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			parents[snap.Ref.ID] = doc.ParentID
			refs[snap.Ref.ID] = snap.Ref
		}

		doomed := []*firestore.DocumentRef{self.Ref}
		for _, id := range descendants(review.ID, parents) {
			doomed = append(doomed, refs[id])
		}
		for _, ref := range doomed {
			if err := tx.Delete(ref); err != nil {
				return err
			}
		}
		deleted = len(doomed)
		return nil
	}, pfirestore.WithTxName("review.delete_tree"))
	if err != nil {
		return 0, pfirestore.WrapError("reviews.delete_tree", err)
	}
	return deleted, nil
}

// descendants returns every id whose parent chain reaches id.
func descendants(id string, parents map[string]string) []string {
	children := make(map[string][]string, len(parents))
	for child, parent := range parents {
		children[parent] = append(children[parent], child)
	}
	var out []string
	queue := []string{id}
	seen := map[string]bool{id: true}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range children[current] {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

type reviewDocument struct {
	ProductID string    `firestore:"product_id"`
	UserID    string    `firestore:"user_id"`
	Content   string    `firestore:"content"`
	Rating    int64     `firestore:"rating,omitempty"`
	ParentID  string    `firestore:"parent_id,omitempty"`
	RootID    string    `firestore:"root_id,omitempty"`
	Level     int64     `firestore:"level"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func fromDomainReview(rv domain.Review) reviewDocument {
	return reviewDocument{
		ProductID: rv.ProductID,
		UserID:    rv.UserID,
		Content:   rv.Content,
		Rating:    int64(rv.Rating),
		ParentID:  rv.ParentID,
		RootID:    rv.RootID,
		Level:     int64(rv.Level),
		CreatedAt: rv.CreatedAt.UTC(),
		UpdatedAt: rv.UpdatedAt.UTC(),
	}
}

func toDomainReview(doc pfirestore.Document[reviewDocument]) domain.Review {
	d := doc.Data
	return domain.Review{
		ID:        doc.ID,
		ProductID: d.ProductID,
		UserID:    d.UserID,
		Content:   d.Content,
		Rating:    int(d.Rating),
		ParentID:  d.ParentID,
		RootID:    d.RootID,
		Level:     int(d.Level),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)
