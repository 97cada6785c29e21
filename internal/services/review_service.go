package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vnshop/api/internal/platform/textutil"
	"github.com/vnshop/api/internal/repositories"
)

const (
	minReviewRating = 1
	maxReviewRating = 5
)

// ReviewServiceDeps wires the review service.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Products    repositories.ProductRepository
	Users       repositories.UserRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type reviewService struct {
	reviews  repositories.ReviewRepository
	products repositories.ProductRepository
	users    repositories.UserRepository
	clock    func() time.Time
	newID    func() string
}

// NewReviewService constructs a ReviewService.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("review service: product repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("review service: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &reviewService{
		reviews:  deps.Reviews,
		products: deps.Products,
		users:    deps.Users,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
	}, nil
}

// Create stores a review, or a reply when ParentID is set. Replies sit one level below their
// parent and share its thread root.
func (s *reviewService) Create(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Review{}, invalidField("user_id", "User is required")
	}
	content := textutil.Plain(cmd.Content)
	if content == "" {
		return Review{}, invalidField("content", "Content is required")
	}
	if cmd.Rating != 0 && (cmd.Rating < minReviewRating || cmd.Rating > maxReviewRating) {
		return Review{}, invalidField("rating", "Rating must be between 1 and 5")
	}

	review := Review{
		ID:        s.newID(),
		ProductID: strings.TrimSpace(cmd.ProductID),
		UserID:    userID,
		Content:   content,
		Rating:    cmd.Rating,
	}

	if parentID := strings.TrimSpace(cmd.ParentID); parentID != "" {
		parent, err := s.reviews.Get(ctx, parentID)
		if err != nil {
			return Review{}, mapRepositoryError(err, "Parent review not found")
		}
		if review.ProductID == "" {
			review.ProductID = parent.ProductID
		}
		if review.ProductID != parent.ProductID {
			return Review{}, invalidField("parent_id", "Parent review belongs to another product")
		}
		review.ParentID = parent.ID
		review.RootID = parent.RootID
		if review.RootID == "" {
			review.RootID = parent.ID
		}
		review.Level = parent.Level + 1
	} else {
		if review.ProductID == "" {
			return Review{}, invalidField("product_id", "product_id is required")
		}
		if _, err := s.products.Get(ctx, review.ProductID); err != nil {
			return Review{}, mapRepositoryError(err, "Product not found")
		}
	}

	now := s.clock()
	review.CreatedAt = now
	review.UpdatedAt = now
	if err := s.reviews.Insert(ctx, review); err != nil {
		return Review{}, mapRepositoryError(err, "")
	}
	return review, nil
}

func (s *reviewService) ListByProduct(ctx context.Context, productID string) ([]ReviewView, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, invalidField("product_id", "product_id is required")
	}
	reviews, err := s.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return nil, mapRepositoryError(err, "")
	}
	return s.withAuthors(ctx, reviews)
}

func (s *reviewService) ListThread(ctx context.Context, rootID string) ([]ReviewView, error) {
	rootID = strings.TrimSpace(rootID)
	if rootID == "" {
		return nil, invalidField("root_id", "root_id is required")
	}
	reviews, err := s.reviews.ListThread(ctx, rootID)
	if err != nil {
		return nil, mapRepositoryError(err, "")
	}
	return s.withAuthors(ctx, reviews)
}

// Delete removes a review owned by the actor together with every reply below it.
func (s *reviewService) Delete(ctx context.Context, actor Actor, reviewID string) (int, error) {
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return 0, invalidField("id", "Review id is required")
	}
	review, err := s.reviews.Get(ctx, reviewID)
	if err != nil {
		return 0, mapRepositoryError(err, "Review not found")
	}
	if !actor.Admin && (actor.UserID == "" || actor.UserID != review.UserID) {
		return 0, failure(ErrForbidden, "Not allowed")
	}
	deleted, err := s.reviews.DeleteTree(ctx, review)
	if err != nil {
		return 0, mapRepositoryError(err, "Review not found")
	}
	return deleted, nil
}

// withAuthors joins each review with its author's username and avatar. Missing users leave the
// fields empty.
func (s *reviewService) withAuthors(ctx context.Context, reviews []Review) ([]ReviewView, error) {
	out := make([]ReviewView, 0, len(reviews))
	if len(reviews) == 0 {
		return out, nil
	}
	seen := make(map[string]struct{}, len(reviews))
	uids := make([]string, 0, len(reviews))
	for _, r := range reviews {
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		uids = append(uids, r.UserID)
	}
	users, err := s.users.GetMany(ctx, uids)
	if err != nil {
		return nil, mapRepositoryError(err, "")
	}
	for _, r := range reviews {
		view := ReviewView{Review: r}
		if u, ok := users[r.UserID]; ok {
			view.Username = u.Username
			view.Avatar = u.Avatar
		}
		out = append(out, view)
	}
	return out, nil
}
