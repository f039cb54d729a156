package library

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/jarq/jarq/internal/models"
	"github.com/jarq/jarq/internal/storage"
	"github.com/jarq/jarq/internal/storage/sqldb"
)

// CreateUser registers a user and creates its directory.
func (s *Service) CreateUser(ctx context.Context, name, email, password string) (*models.User, error) {
	const op = "create user"
	name, err := checkName(op, "name", name)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, invalidArg(op, "password cannot be empty")
	}
	// bcrypt only looks at the first 72 bytes.
	if len(password) > 72 {
		return nil, invalidArg(op, "password is longer than 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, invalidArg(op, "failed to hash password: %v", err)
	}
	var u *models.User
	err = s.db.InTx(ctx, func(q *sqldb.Queries) error {
		if _, err := q.GetUserByName(ctx, name); err == nil {
			return invalidArg(op, "user %q already exists", name)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if u, err = q.CreateUser(ctx, name, email, hash, s.now()); err != nil {
			return err
		}
		// Repositories left behind by a removed user with the same id must
		// not show up under the new one.
		if _, err := s.dirs.RemoveUserRepositories(u.ID); err != nil {
			return err
		}
		s.forget(storage.UserLocation(u.ID))
		_, err := s.dirs.CreateDir(storage.UserLocation(u.ID))
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Created user", "id", u.ID, "name", u.Name)
	return u, nil
}

// Authenticate returns the user when password matches.
func (s *Service) Authenticate(ctx context.Context, name, password string) (*models.User, error) {
	u, err := s.db.GetUserByName(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrUnauthorized
	}
	return u, nil
}

// GetUser returns a user.
func (s *Service) GetUser(ctx context.Context, userID int) (*models.User, error) {
	return s.db.GetUser(ctx, userID)
}

// ListUsers returns every user.
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.db.ListUsers(ctx)
}

// RemoveUser deletes a user with all its repositories, texts and contents,
// rows and files.
func (s *Service) RemoveUser(ctx context.Context, userID int) error {
	err := s.db.InTx(ctx, func(q *sqldb.Queries) error {
		if _, err := q.GetUser(ctx, userID); err != nil {
			return err
		}
		n, err := q.DeleteRepositoriesByUser(ctx, userID)
		if err != nil {
			return err
		}
		if _, err := q.DeleteUser(ctx, userID); err != nil {
			return err
		}
		if _, err := s.dirs.RemoveUserRepositories(userID); err != nil {
			return err
		}
		slog.DebugContext(ctx, "Removed repositories", "user", userID, "count", n)
		return nil
	})
	if err != nil {
		return err
	}
	s.forget(storage.UserLocation(userID))
	slog.InfoContext(ctx, "Removed user", "id", userID)
	return nil
}
