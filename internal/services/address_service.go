package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/repositories"
)

// AddressServiceDeps wires the address service.
type AddressServiceDeps struct {
	Addresses   repositories.AddressRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type addressService struct {
	addresses repositories.AddressRepository
	clock     func() time.Time
	newID     func() string
}

// NewAddressService constructs an AddressService.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Addresses == nil {
		return nil, errors.New("address service: address repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &addressService{
		addresses: deps.Addresses,
		clock:     func() time.Time { return clock().UTC() },
		newID:     idGen,
	}, nil
}

func (s *addressService) Add(ctx context.Context, cmd AddAddressCommand) (Address, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Address{}, invalidField("user_id", "User is required")
	}
	addrType := domain.AddressType(strings.ToLower(strings.TrimSpace(cmd.Type)))
	switch addrType {
	case "":
		addrType = domain.AddressTypeHome
	case domain.AddressTypeHome, domain.AddressTypeOffice:
	default:
		return Address{}, invalidField("type", "Invalid address type")
	}
	address := Address{
		ID:        s.newID(),
		UserID:    userID,
		Type:      addrType,
		Street:    strings.TrimSpace(cmd.Street),
		Province:  strings.TrimSpace(cmd.Province),
		District:  strings.TrimSpace(cmd.District),
		Ward:      strings.TrimSpace(cmd.Ward),
		IsDefault: cmd.IsDefault,
	}
	if address.Street == "" || address.Province == "" || address.District == "" || address.Ward == "" {
		return Address{}, invalidField("", "Missing required fields: street, province, district, ward")
	}
	now := s.clock()
	address.CreatedAt = now
	address.UpdatedAt = now

	saved, err := s.addresses.Insert(ctx, address)
	if err != nil {
		return Address{}, mapRepositoryError(err, "")
	}
	return saved, nil
}

func (s *addressService) List(ctx context.Context, userID string) ([]Address, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, invalidField("user_id", "User is required")
	}
	addresses, err := s.addresses.List(ctx, userID)
	if err != nil {
		return nil, mapRepositoryError(err, "")
	}
	return addresses, nil
}

// SetDefault marks addressID as the default and clears the flag on every other address.
func (s *addressService) SetDefault(ctx context.Context, userID, addressID string) error {
	userID, addressID = strings.TrimSpace(userID), strings.TrimSpace(addressID)
	if userID == "" || addressID == "" {
		return invalidField("id", "Address id is required")
	}
	return mapRepositoryError(s.addresses.SetDefault(ctx, userID, addressID, s.clock()), "Address not found")
}

func (s *addressService) Delete(ctx context.Context, userID, addressID string) error {
	userID, addressID = strings.TrimSpace(userID), strings.TrimSpace(addressID)
	if userID == "" || addressID == "" {
		return invalidField("id", "Address id is required")
	}
	return mapRepositoryError(s.addresses.Delete(ctx, userID, addressID), "Address not found")
}
