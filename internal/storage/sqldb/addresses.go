package sqldb

import (
	"context"
	"time"

	"github.com/jarq/jarq/internal/models"
)

const addressColumns = "id, user_id, postal_code, city, street, house_no, apartment_no, creation_date, last_modification_date"

func scanAddress(s scanner) (*models.Address, error) {
	var a models.Address
	var created, modified string
	if err := s.Scan(&a.ID, &a.UserID, &a.PostalCode, &a.City, &a.Street, &a.HouseNo, &a.ApartmentNo, &created, &modified); err != nil {
		return nil, err
	}
	var err error
	if a.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if a.Modified, err = parseTime(modified); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAddress inserts the address of a.UserID with the lowest free
// identifier. a.ID, a.Created and a.Modified are set.
func (q *Queries) CreateAddress(ctx context.Context, a *models.Address, now time.Time) error {
	id, err := LowestFreeID(ctx, q.db, "addresses")
	if err != nil {
		return err
	}
	a.ID, a.Created, a.Modified = id, now, now
	_, err = exec(ctx, q.db, "create address", "addresses",
		"INSERT INTO addresses ("+addressColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		a.ID, a.UserID, a.PostalCode, a.City, a.Street, a.HouseNo, a.ApartmentNo, formatTime(now), formatTime(now))
	return err
}

// GetAddressByUser returns the address of a user.
func (q *Queries) GetAddressByUser(ctx context.Context, userID int) (*models.Address, error) {
	return queryOne(ctx, q.db, "get address", "addresses", scanAddress,
		"SELECT "+addressColumns+" FROM addresses WHERE user_id = ?", userID)
}

// UpdateAddress writes the address fields and modification date of a. It
// returns false if the row does not exist.
func (q *Queries) UpdateAddress(ctx context.Context, a *models.Address) (bool, error) {
	n, err := exec(ctx, q.db, "update address", "addresses",
		"UPDATE addresses SET postal_code = ?, city = ?, street = ?, house_no = ?, apartment_no = ?, last_modification_date = ? WHERE id = ?",
		a.PostalCode, a.City, a.Street, a.HouseNo, a.ApartmentNo, formatTime(a.Modified), a.ID)
	return n != 0, err
}

// DeleteAddressByUser deletes the address of a user.
func (q *Queries) DeleteAddressByUser(ctx context.Context, userID int) (bool, error) {
	n, err := exec(ctx, q.db, "delete address", "addresses", "DELETE FROM addresses WHERE user_id = ?", userID)
	return n != 0, err
}
