package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vnshop/api/internal/domain"
	pfirestore "github.com/vnshop/api/internal/platform/firestore"
	"github.com/vnshop/api/internal/repositories"
)

const (
	addressCollectionPattern = "users/%s/addresses"
	addressFieldIsDefault    = "is_default"
)

// AddressRepository persists saved addresses under users/{uid}/addresses. Default flags are
// maintained transactionally so a user has at most one default.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// Insert stores a new address. The first address becomes the default; a new default clears the
// flag on the others.
func (r *AddressRepository) Insert(ctx context.Context, addr domain.Address) (domain.Address, error) {
	coll, err := r.collection(ctx, addr.UserID)
	if err != nil {
		return domain.Address{}, err
	}
	if strings.TrimSpace(addr.ID) == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}
	ref := coll.Doc(addr.ID)

	saved := addr
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(coll.Where(addressFieldIsDefault, "==", true)).GetAll()
		if err != nil {
			return err
		}
		first, err := tx.Documents(coll.Limit(1)).GetAll()
		if err != nil {
			return err
		}
		saved.IsDefault = addr.IsDefault || len(first) == 0
		if saved.IsDefault {
			for _, snap := range existing {
				if err := tx.Update(snap.Ref, []firestore.Update{
					{Path: addressFieldIsDefault, Value: false},
					{Path: fieldUpdatedAt, Value: addr.UpdatedAt.UTC()},
				}); err != nil {
					return err
				}
			}
		}
		return tx.Create(ref, fromDomainAddress(saved))
	}, pfirestore.WithTxName("address.insert"))
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.insert", err)
	}
	return saved, nil
}

// List returns the user's addresses with the default first, then most recently created.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}
	query := coll.OrderBy(addressFieldIsDefault, firestore.Desc).OrderBy(fieldCreatedAt, firestore.Desc)
	docs, err := pfirestore.Collect[addressDocument](ctx, query)
	if err != nil {
		return nil, pfirestore.WrapError("addresses.list", err)
	}
	out := make([]domain.Address, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainAddress(doc, userID))
	}
	return out, nil
}

// SetDefault marks addressID as the default and clears every other default in one transaction.
func (r *AddressRepository) SetDefault(ctx context.Context, userID, addressID string, now time.Time) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return errors.New("address repository: address id is required")
	}
	target := coll.Doc(addressID)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(target)
		if err != nil {
			return err
		}
		defaults, err := tx.Documents(coll.Where(addressFieldIsDefault, "==", true)).GetAll()
		if err != nil {
			return err
		}
		for _, other := range defaults {
			if other.Ref.ID == addressID {
				continue
			}
			if err := tx.Update(other.Ref, []firestore.Update{
				{Path: addressFieldIsDefault, Value: false},
				{Path: fieldUpdatedAt, Value: now.UTC()},
			}); err != nil {
				return err
			}
		}
		return tx.Update(snap.Ref, []firestore.Update{
			{Path: addressFieldIsDefault, Value: true},
			{Path: fieldUpdatedAt, Value: now.UTC()},
		})
	}, pfirestore.WithTxName("address.set_default"))
	return pfirestore.WrapError("addresses.set_default", err)
}

// Delete removes the address. Removing the default promotes the most recent remaining address.
func (r *AddressRepository) Delete(ctx context.Context, userID, addressID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return errors.New("address repository: address id is required")
	}
	target := coll.Doc(addressID)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(target)
		if err != nil {
			return err
		}
		var doc addressDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode address %s: %w", addressID, err)
		}
		var successor *firestore.DocumentSnapshot
		if doc.IsDefault {
			rest, err := tx.Documents(coll.OrderBy(fieldCreatedAt, firestore.Desc).Limit(2)).GetAll()
			if err != nil {
				return err
			}
			for _, candidate := range rest {
				if candidate.Ref.ID != addressID {
					successor = candidate
					break
				}
			}
		}
		if err := tx.Delete(target); err != nil {
			return err
		}
		if successor != nil {
			return tx.Update(successor.Ref, []firestore.Update{{Path: addressFieldIsDefault, Value: true}})
		}
		return nil
	}, pfirestore.WithTxName("address.delete"))
	return pfirestore.WrapError("addresses.delete", err)
}

func (r *AddressRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("address repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(addressCollectionPattern, uid)), nil
}

type addressDocument struct {
	Type      string    `firestore:"type"`
	Street    string    `firestore:"street"`
	Province  string    `firestore:"province"`
	District  string    `firestore:"district"`
	Ward      string    `firestore:"ward"`
	IsDefault bool      `firestore:"is_default"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func fromDomainAddress(a domain.Address) addressDocument {
	return addressDocument{
		Type:      string(a.Type),
		Street:    a.Street,
		Province:  a.Province,
		District:  a.District,
		Ward:      a.Ward,
		IsDefault: a.IsDefault,
		CreatedAt: a.CreatedAt.UTC(),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
}

func toDomainAddress(doc pfirestore.Document[addressDocument], userID string) domain.Address {
	d := doc.Data
	return domain.Address{
		ID:        doc.ID,
		UserID:    strings.TrimSpace(userID),
		Type:      domain.AddressType(d.Type),
		Street:    d.Street,
		Province:  d.Province,
		District:  d.District,
		Ward:      d.Ward,
		IsDefault: d.IsDefault,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)
