package sqldb

import (
	"context"
	"time"

	"github.com/jarq/jarq/internal/models"
)

const repositoryColumns = "id, name, creation_date, last_modification_date, user_id"

func scanRepository(s scanner) (*models.Repository, error) {
	var r models.Repository
	var created, modified string
	if err := s.Scan(&r.ID, &r.Name, &created, &modified, &r.UserID); err != nil {
		return nil, err
	}
	var err error
	if r.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if r.Modified, err = parseTime(modified); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRepository inserts a repository owned by userID.
func (q *Queries) CreateRepository(ctx context.Context, userID int, name string, now time.Time) (*models.Repository, error) {
	id, err := LowestFreeID(ctx, q.db, "repositories")
	if err != nil {
		return nil, err
	}
	r := &models.Repository{ID: id, UserID: userID, Name: name, Created: now, Modified: now}
	_, err = exec(ctx, q.db, "create repository", "repositories",
		"INSERT INTO repositories ("+repositoryColumns+") VALUES (?, ?, ?, ?, ?)",
		r.ID, r.Name, formatTime(now), formatTime(now), r.UserID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetRepository returns the repository with the given id.
func (q *Queries) GetRepository(ctx context.Context, id int) (*models.Repository, error) {
	return queryOne(ctx, q.db, "get repository", "repositories", scanRepository,
		"SELECT "+repositoryColumns+" FROM repositories WHERE id = ?", id)
}

// ListRepositoriesByUser returns the repositories of a user ordered by id.
func (q *Queries) ListRepositoriesByUser(ctx context.Context, userID int) ([]*models.Repository, error) {
	return queryAll(ctx, q.db, "list repositories", "repositories", scanRepository,
		"SELECT "+repositoryColumns+" FROM repositories WHERE user_id = ? ORDER BY id", userID)
}

// UpdateRepository writes every column of r. It returns false if the row
// does not exist.
func (q *Queries) UpdateRepository(ctx context.Context, r *models.Repository) (bool, error) {
	n, err := exec(ctx, q.db, "update repository", "repositories",
		"UPDATE repositories SET name = ?, creation_date = ?, last_modification_date = ?, user_id = ? WHERE id = ?",
		r.Name, formatTime(r.Created), formatTime(r.Modified), r.UserID, r.ID)
	return n != 0, err
}

// TouchRepository sets the last modification date.
func (q *Queries) TouchRepository(ctx context.Context, id int, now time.Time) error {
	_, err := exec(ctx, q.db, "touch repository", "repositories",
		"UPDATE repositories SET last_modification_date = ? WHERE id = ?", formatTime(now), id)
	return err
}

// DeleteRepository deletes a repository. Texts and contents cascade.
func (q *Queries) DeleteRepository(ctx context.Context, id int) (bool, error) {
	n, err := exec(ctx, q.db, "delete repository", "repositories", "DELETE FROM repositories WHERE id = ?", id)
	return n != 0, err
}

// DeleteRepositoriesByUser deletes every repository of a user and returns
// how many were deleted.
func (q *Queries) DeleteRepositoriesByUser(ctx context.Context, userID int) (int64, error) {
	return exec(ctx, q.db, "delete repositories", "repositories", "DELETE FROM repositories WHERE user_id = ?", userID)
}
