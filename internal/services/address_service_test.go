package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vnshop/api/internal/domain"
)

// memAddressRepo mirrors the Firestore rules: the first address becomes default and only one
// address per user is default.
type memAddressRepo struct {
	byUser map[string][]domain.Address
}

func (m *memAddressRepo) Insert(_ context.Context, address domain.Address) (domain.Address, error) {
	existing := m.byUser[address.UserID]
	if len(existing) == 0 {
		address.IsDefault = true
	}
	if address.IsDefault {
		for i := range existing {
			existing[i].IsDefault = false
		}
	}
	m.byUser[address.UserID] = append(existing, address)
	return address, nil
}

func (m *memAddressRepo) List(_ context.Context, userID string) ([]domain.Address, error) {
	return m.byUser[userID], nil
}

func (m *memAddressRepo) SetDefault(_ context.Context, userID, addressID string, _ time.Time) error {
	list := m.byUser[userID]
	found := false
	for i := range list {
		if list[i].ID == addressID {
			found = true
		}
	}
	if !found {
		return errRepoNotFound
	}
	for i := range list {
		list[i].IsDefault = list[i].ID == addressID
	}
	return nil
}

func (m *memAddressRepo) Delete(_ context.Context, userID, addressID string) error {
	list := m.byUser[userID]
	for i := range list {
		if list[i].ID == addressID {
			m.byUser[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return errRepoNotFound
}

func defaultCount(addresses []domain.Address) int {
	n := 0
	for _, a := range addresses {
		if a.IsDefault {
			n++
		}
	}
	return n
}

func TestAddressServiceAddAndSetDefault(t *testing.T) {
	repo := &memAddressRepo{byUser: map[string][]domain.Address{}}
	svc, err := NewAddressService(AddressServiceDeps{
		Addresses:   repo,
		Clock:       fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		IDGenerator: sequenceIDs("a1", "a2"),
	})
	if err != nil {
		t.Fatalf("new address service: %v", err)
	}
	ctx := context.Background()
	cmd := AddAddressCommand{UserID: "u1", Street: "1 Le Loi", Province: "HCM", District: "Q1", Ward: "Ben Nghe"}

	first, err := svc.Add(ctx, cmd)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !first.IsDefault || first.Type != domain.AddressTypeHome {
		t.Fatalf("first address must be the default home address: %+v", first)
	}
	cmd.Type = "Office"
	if _, err := svc.Add(ctx, cmd); err != nil {
		t.Fatalf("add second: %v", err)
	}

	if err := svc.SetDefault(ctx, "u1", "a2"); err != nil {
		t.Fatalf("set default: %v", err)
	}
	list, _ := svc.List(ctx, "u1")
	if defaultCount(list) != 1 || !list[1].IsDefault {
		t.Fatalf("expected a2 to be the only default: %+v", list)
	}

	if err := svc.SetDefault(ctx, "u1", "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := svc.Delete(ctx, "u2", "a1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected foreign address to be hidden, got %v", err)
	}
}

func TestAddressServiceValidation(t *testing.T) {
	svc, err := NewAddressService(AddressServiceDeps{Addresses: &memAddressRepo{byUser: map[string][]domain.Address{}}})
	if err != nil {
		t.Fatalf("new address service: %v", err)
	}
	_, err = svc.Add(context.Background(), AddAddressCommand{UserID: "u1", Street: "x"})
	requireMessage(t, err, ErrValidation, "Missing required fields: street, province, district, ward")
	_, err = svc.Add(context.Background(), AddAddressCommand{UserID: "u1", Type: "villa", Street: "x", Province: "p", District: "d", Ward: "w"})
	requireMessage(t, err, ErrValidation, "Invalid address type")
}
