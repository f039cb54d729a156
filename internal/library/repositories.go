package library

import (
	"context"
	"log/slog"

	"github.com/jarq/jarq/internal/models"
	"github.com/jarq/jarq/internal/storage"
	"github.com/jarq/jarq/internal/storage/sqldb"
)

// CreateRepository creates a repository for userID with its directory and,
// when enabled, its history.
func (s *Service) CreateRepository(ctx context.Context, userID int, name string) (*models.Repository, error) {
	name, err := checkName("create repository", "name", name)
	if err != nil {
		return nil, err
	}
	var r *models.Repository
	err = s.db.InTx(ctx, func(q *sqldb.Queries) error {
		if _, err := q.GetUser(ctx, userID); err != nil {
			return err
		}
		if r, err = q.CreateRepository(ctx, userID, name, s.now()); err != nil {
			return err
		}
		// A directory left behind by a deleted repository with the same id
		// must not leak into the new one.
		if _, err := s.dirs.RemoveRepository(userID, r.ID); err != nil {
			return err
		}
		s.forget(storage.RepositoryLocation(userID, r.ID))
		if _, err := s.dirs.CreateDir(storage.RepositoryLocation(userID, r.ID)); err != nil {
			return err
		}
		_, err := s.historyRepo(ctx, userID, r.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Created repository", "user", userID, "id", r.ID, "name", r.Name)
	return r, nil
}

// GetRepository returns a repository of userID.
func (s *Service) GetRepository(ctx context.Context, userID, repoID int) (*models.Repository, error) {
	return repositoryOf(ctx, s.db.Queries, userID, repoID)
}

// RenameRepository changes the name of a repository.
func (s *Service) RenameRepository(ctx context.Context, userID, repoID int, name string) (*models.Repository, error) {
	name, err := checkName("rename repository", "name", name)
	if err != nil {
		return nil, err
	}
	var r *models.Repository
	err = s.db.InTx(ctx, func(q *sqldb.Queries) error {
		if r, err = repositoryOf(ctx, q, userID, repoID); err != nil {
			return err
		}
		r.Name = name
		r.Modified = s.now()
		_, err := q.UpdateRepository(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRepositories returns the repositories of userID.
func (s *Service) ListRepositories(ctx context.Context, userID int) ([]*models.Repository, error) {
	if _, err := s.db.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.db.ListRepositoriesByUser(ctx, userID)
}

// RemoveRepository deletes a repository with its texts and contents, rows,
// files and history.
func (s *Service) RemoveRepository(ctx context.Context, userID, repoID int) error {
	err := s.db.InTx(ctx, func(q *sqldb.Queries) error {
		if _, err := repositoryOf(ctx, q, userID, repoID); err != nil {
			return err
		}
		if _, err := q.DeleteTextsByRepository(ctx, repoID); err != nil {
			return err
		}
		if _, err := q.DeleteRepository(ctx, repoID); err != nil {
			return err
		}
		_, err := s.dirs.RemoveRepository(userID, repoID)
		return err
	})
	if err != nil {
		return err
	}
	s.forget(storage.RepositoryLocation(userID, repoID))
	slog.InfoContext(ctx, "Removed repository", "user", userID, "id", repoID)
	return nil
}
