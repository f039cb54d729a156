package library

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jarq/jarq/internal/models"
	"github.com/jarq/jarq/internal/storage"
	"github.com/jarq/jarq/internal/storage/sqldb"
)

// AddressFields are the editable fields of an address. Nil fields are left
// unchanged by UpdateAddress. ApartmentNo may be set to "" to clear it.
type AddressFields struct {
	PostalCode  *string
	City        *string
	Street      *string
	HouseNo     *string
	ApartmentNo *string
}

// apply validates the set fields and copies them into a.
func (f *AddressFields) apply(op string, a *models.Address) error {
	required := []struct {
		what string
		src  *string
		dst  *string
	}{
		{"postal code", f.PostalCode, &a.PostalCode},
		{"city", f.City, &a.City},
		{"street", f.Street, &a.Street},
		{"house number", f.HouseNo, &a.HouseNo},
	}
	for _, r := range required {
		if r.src == nil {
			continue
		}
		v, err := checkName(op, r.what, *r.src)
		if err != nil {
			return err
		}
		*r.dst = v
	}
	if f.ApartmentNo != nil {
		a.ApartmentNo = ""
		if strings.TrimSpace(*f.ApartmentNo) != "" {
			v, err := checkName(op, "apartment number", *f.ApartmentNo)
			if err != nil {
				return err
			}
			a.ApartmentNo = v
		}
	}
	return nil
}

// CreateAddress sets the address of userID. Every field but ApartmentNo is
// required and a user has at most one address.
func (s *Service) CreateAddress(ctx context.Context, userID int, f AddressFields) (*models.Address, error) {
	const op = "create address"
	if f.PostalCode == nil || f.City == nil || f.Street == nil || f.HouseNo == nil {
		return nil, invalidArg(op, "postal code, city, street and house number are required")
	}
	a := &models.Address{UserID: userID}
	if err := f.apply(op, a); err != nil {
		return nil, err
	}
	err := s.db.InTx(ctx, func(q *sqldb.Queries) error {
		if _, err := q.GetUser(ctx, userID); err != nil {
			return err
		}
		if _, err := q.GetAddressByUser(ctx, userID); err == nil {
			return invalidArg(op, "user %d already has an address", userID)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return q.CreateAddress(ctx, a, s.now())
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Created address", "user", userID, "id", a.ID)
	return a, nil
}

// GetAddress returns the address of userID.
func (s *Service) GetAddress(ctx context.Context, userID int) (*models.Address, error) {
	return s.db.GetAddressByUser(ctx, userID)
}

// UpdateAddress changes the set fields of the address of userID.
func (s *Service) UpdateAddress(ctx context.Context, userID int, f AddressFields) (*models.Address, error) {
	const op = "update address"
	var a *models.Address
	err := s.db.InTx(ctx, func(q *sqldb.Queries) error {
		var err error
		if a, err = q.GetAddressByUser(ctx, userID); err != nil {
			return err
		}
		if err := f.apply(op, a); err != nil {
			return err
		}
		a.Modified = s.now()
		_, err = q.UpdateAddress(ctx, a)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// RemoveAddress deletes the address of userID.
func (s *Service) RemoveAddress(ctx context.Context, userID int) error {
	ok, err := s.db.DeleteAddressByUser(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("remove address", "user %d has no address", userID)
	}
	slog.InfoContext(ctx, "Removed address", "user", userID)
	return nil
}
