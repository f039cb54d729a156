package sqldb

import (
	"context"
	"time"

	"github.com/jarq/jarq/internal/models"
)

const textColumns = "id, name, creation_date, last_modification_date, repository_id, history_base"

func scanText(s scanner) (*models.Text, error) {
	var t models.Text
	var created, modified string
	if err := s.Scan(&t.ID, &t.Name, &created, &modified, &t.RepositoryID, &t.HistoryBase); err != nil {
		return nil, err
	}
	var err error
	if t.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if t.Modified, err = parseTime(modified); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateText inserts a text in a repository.
func (q *Queries) CreateText(ctx context.Context, repositoryID int, name string, now time.Time) (*models.Text, error) {
	id, err := LowestFreeID(ctx, q.db, "texts")
	if err != nil {
		return nil, err
	}
	t := &models.Text{ID: id, RepositoryID: repositoryID, Name: name, Created: now, Modified: now}
	_, err = exec(ctx, q.db, "create text", "texts",
		"INSERT INTO texts ("+textColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		t.ID, t.Name, formatTime(now), formatTime(now), t.RepositoryID, t.HistoryBase)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetText returns the text with the given id.
func (q *Queries) GetText(ctx context.Context, id int) (*models.Text, error) {
	return queryOne(ctx, q.db, "get text", "texts", scanText,
		"SELECT "+textColumns+" FROM texts WHERE id = ?", id)
}

// ListTextsByRepository returns the texts of a repository ordered by id.
func (q *Queries) ListTextsByRepository(ctx context.Context, repositoryID int) ([]*models.Text, error) {
	return queryAll(ctx, q.db, "list texts", "texts", scanText,
		"SELECT "+textColumns+" FROM texts WHERE repository_id = ? ORDER BY id", repositoryID)
}

// TouchText sets the last modification date.
func (q *Queries) TouchText(ctx context.Context, id int, now time.Time) error {
	_, err := exec(ctx, q.db, "touch text", "texts",
		"UPDATE texts SET last_modification_date = ? WHERE id = ?", formatTime(now), id)
	return err
}

// SetTextHistoryBase records the history head a text starts from.
func (q *Queries) SetTextHistoryBase(ctx context.Context, id int, base string) error {
	_, err := exec(ctx, q.db, "set text history base", "texts",
		"UPDATE texts SET history_base = ? WHERE id = ?", base, id)
	return err
}

// DeleteText deletes a text. Contents cascade.
func (q *Queries) DeleteText(ctx context.Context, id int) (bool, error) {
	n, err := exec(ctx, q.db, "delete text", "texts", "DELETE FROM texts WHERE id = ?", id)
	return n != 0, err
}

// DeleteTextsByRepository deletes every text of a repository.
func (q *Queries) DeleteTextsByRepository(ctx context.Context, repositoryID int) (int64, error) {
	return exec(ctx, q.db, "delete texts", "texts", "DELETE FROM texts WHERE repository_id = ?", repositoryID)
}
