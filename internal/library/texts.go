package library

import (
	"context"
	"fmt"

	"github.com/jarq/jarq/internal/models"
	"github.com/jarq/jarq/internal/storage"
	"github.com/jarq/jarq/internal/storage/sqldb"
)

// CreateText adds a text to a repository and creates its directory.
func (s *Service) CreateText(ctx context.Context, userID, repoID int, name string) (*models.Text, error) {
	name, err := checkName("create text", "name", name)
	if err != nil {
		return nil, err
	}
	var t *models.Text
	err = s.db.InTx(ctx, func(q *sqldb.Queries) error {
		if _, err := repositoryOf(ctx, q, userID, repoID); err != nil {
			return err
		}
		now := s.now()
		if t, err = q.CreateText(ctx, repoID, name, now); err != nil {
			return err
		}
		if err := q.TouchRepository(ctx, repoID, now); err != nil {
			return err
		}
		if _, err := s.dirs.RemoveTextDirectory(userID, repoID, t.ID); err != nil {
			return err
		}
		if _, err := s.dirs.CreateDir(storage.TextLocation(userID, repoID, t.ID)); err != nil {
			return err
		}
		// History recorded before this point belongs to a removed text that
		// had the same id.
		h, err := s.historyRepo(ctx, userID, repoID)
		if err != nil || h == nil {
			return err
		}
		if t.HistoryBase, err = h.Head(); err != nil {
			return err
		}
		return q.SetTextHistoryBase(ctx, t.ID, t.HistoryBase)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetText returns a text of a repository of userID.
func (s *Service) GetText(ctx context.Context, userID, repoID, textID int) (*models.Text, error) {
	return textOf(ctx, s.db.Queries, userID, repoID, textID)
}

// ListTexts returns the texts of a repository.
func (s *Service) ListTexts(ctx context.Context, userID, repoID int) ([]*models.Text, error) {
	if _, err := repositoryOf(ctx, s.db.Queries, userID, repoID); err != nil {
		return nil, err
	}
	return s.db.ListTextsByRepository(ctx, repoID)
}

// RemoveText deletes a text with its contents, rows and files.
func (s *Service) RemoveText(ctx context.Context, userID, repoID, textID int) error {
	err := s.db.InTx(ctx, func(q *sqldb.Queries) error {
		if _, err := textOf(ctx, q, userID, repoID, textID); err != nil {
			return err
		}
		if _, err := q.DeleteContentsByText(ctx, textID); err != nil {
			return err
		}
		if _, err := q.DeleteText(ctx, textID); err != nil {
			return err
		}
		if err := q.TouchRepository(ctx, repoID, s.now()); err != nil {
			return err
		}
		_, err := s.dirs.RemoveTextDirectory(userID, repoID, textID)
		return err
	})
	if err != nil {
		return err
	}
	s.record(ctx, userID, repoID, fmt.Sprintf("Remove text %d", textID))
	return nil
}
