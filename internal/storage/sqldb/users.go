package sqldb

import (
	"context"
	"time"

	"github.com/jarq/jarq/internal/models"
)

const userColumns = "id, name, email, password_hash, creation_date"

func scanUser(s scanner) (*models.User, error) {
	var u models.User
	var created string
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &created); err != nil {
		return nil, err
	}
	var err error
	if u.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user with the lowest free identifier.
func (q *Queries) CreateUser(ctx context.Context, name, email string, passwordHash []byte, now time.Time) (*models.User, error) {
	id, err := LowestFreeID(ctx, q.db, "users")
	if err != nil {
		return nil, err
	}
	u := &models.User{ID: id, Name: name, Email: email, PasswordHash: passwordHash, Created: now}
	_, err = exec(ctx, q.db, "create user", "users",
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?)",
		u.ID, u.Name, u.Email, u.PasswordHash, formatTime(now))
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser returns the user with the given id.
func (q *Queries) GetUser(ctx context.Context, id int) (*models.User, error) {
	return queryOne(ctx, q.db, "get user", "users", scanUser,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// GetUserByName returns the user with the given name.
func (q *Queries) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	return queryOne(ctx, q.db, "get user", "users", scanUser,
		"SELECT "+userColumns+" FROM users WHERE name = ?", name)
}

// ListUsers returns all users ordered by id.
func (q *Queries) ListUsers(ctx context.Context) ([]*models.User, error) {
	return queryAll(ctx, q.db, "list users", "users", scanUser,
		"SELECT "+userColumns+" FROM users ORDER BY id")
}

// DeleteUser deletes a user. Repositories, texts and contents cascade.
func (q *Queries) DeleteUser(ctx context.Context, id int) (bool, error) {
	n, err := exec(ctx, q.db, "delete user", "users", "DELETE FROM users WHERE id = ?", id)
	return n != 0, err
}
