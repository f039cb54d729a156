package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/zeebo/xxh3"

	"github.com/jarq/jarq/internal/models"
	"github.com/jarq/jarq/internal/storage"
	"github.com/jarq/jarq/internal/storage/git"
	"github.com/jarq/jarq/internal/storage/sqldb"
)

// historyPath is the path of a content file in its repository history.
func historyPath(textID int, filename string) string {
	return fmt.Sprintf("%d/%s", textID, filename)
}

// PutContent creates or overwrites a content file of a text.
func (s *Service) PutContent(ctx context.Context, userID, repoID, textID int, filename string, data []byte) (*models.Content, error) {
	loc := storage.ContentLocation(userID, repoID, textID, filename)
	// Reject bad filenames before touching the database.
	if _, err := s.resolver.Resolve(loc); err != nil {
		return nil, err
	}
	sum := xxh3.Hash(data)
	size := int64(len(data))
	var c *models.Content
	created := false
	err := s.db.InTx(ctx, func(q *sqldb.Queries) error {
		if _, err := textOf(ctx, q, userID, repoID, textID); err != nil {
			return err
		}
		now := s.now()
		existing, err := q.GetContentByName(ctx, textID, filename)
		switch {
		case err == nil:
			if _, err := q.UpdateContent(ctx, existing.ID, size, sum, now); err != nil {
				return err
			}
			existing.Size, existing.Checksum, existing.Modified = size, sum, now
			c = existing
		case errors.Is(err, storage.ErrNotFound):
			if c, err = q.CreateContent(ctx, textID, filename, size, sum, now); err != nil {
				return err
			}
			created = true
		default:
			return err
		}
		if err := q.TouchText(ctx, textID, now); err != nil {
			return err
		}
		_, err = s.files.CreateFile(loc, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	verb := "Update"
	if created {
		verb = "Add"
	}
	s.record(ctx, userID, repoID, verb+" "+historyPath(textID, filename))
	slog.InfoContext(ctx, "Stored content", "text", textID, "file", filename, "size", humanize.Bytes(uint64(size))) //nolint:gosec // G115: size is non-negative
	return c, nil
}

// ContentInfo returns the metadata of a content file without reading it.
func (s *Service) ContentInfo(ctx context.Context, userID, repoID, textID int, filename string) (*models.Content, error) {
	if _, err := textOf(ctx, s.db.Queries, userID, repoID, textID); err != nil {
		return nil, err
	}
	return s.db.GetContentByName(ctx, textID, filename)
}

// ReadContent returns the metadata and the bytes of a content file.
func (s *Service) ReadContent(ctx context.Context, userID, repoID, textID int, filename string) (*models.Content, []byte, error) {
	c, err := s.ContentInfo(ctx, userID, repoID, textID, filename)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.files.ReadFile(storage.ContentLocation(userID, repoID, textID, filename))
	if err != nil {
		return nil, nil, err
	}
	return c, data, nil
}

// ListContents returns the content files of a text ordered by filename.
func (s *Service) ListContents(ctx context.Context, userID, repoID, textID int) ([]*models.Content, error) {
	if _, err := textOf(ctx, s.db.Queries, userID, repoID, textID); err != nil {
		return nil, err
	}
	return s.db.ListContentsByText(ctx, textID)
}

// RemoveContent deletes a content file and its row.
func (s *Service) RemoveContent(ctx context.Context, userID, repoID, textID int, filename string) error {
	loc := storage.ContentLocation(userID, repoID, textID, filename)
	err := s.db.InTx(ctx, func(q *sqldb.Queries) error {
		if _, err := textOf(ctx, q, userID, repoID, textID); err != nil {
			return err
		}
		c, err := q.GetContentByName(ctx, textID, filename)
		if err != nil {
			return err
		}
		if _, err := q.DeleteContent(ctx, c.ID); err != nil {
			return err
		}
		if err := q.TouchText(ctx, textID, s.now()); err != nil {
			return err
		}
		_, err = s.files.RemoveFile(loc)
		return err
	})
	if err != nil {
		return err
	}
	s.record(ctx, userID, repoID, "Remove "+historyPath(textID, filename))
	return nil
}

// ContentHistory returns up to n commits of a content file, newest first.
// Commits older than the text are not part of its history.
func (s *Service) ContentHistory(ctx context.Context, userID, repoID, textID int, filename string, n int) ([]*models.Commit, error) {
	r, t, err := s.contentRepo(ctx, "content history", userID, repoID, textID, filename)
	if err != nil {
		return nil, err
	}
	return r.History(ctx, historyPath(textID, filename), t.HistoryBase, n)
}

// ContentVersion returns a content file as of commit hash.
func (s *Service) ContentVersion(ctx context.Context, userID, repoID, textID int, filename, hash string) ([]byte, error) {
	const op = "content version"
	r, t, err := s.contentRepo(ctx, op, userID, repoID, textID, filename)
	if err != nil {
		return nil, err
	}
	data, err := r.FileAt(ctx, hash, historyPath(textID, filename), t.HistoryBase)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) || errors.Is(err, object.ErrFileNotFound) {
			return nil, notFound(op, "%s at %s", filename, hash)
		}
		return nil, invalidArg(op, "%v", err)
	}
	return data, nil
}

// contentRepo checks access to a content file and returns the history of its
// repository with the text. The file itself may have been removed since.
func (s *Service) contentRepo(ctx context.Context, op string, userID, repoID, textID int, filename string) (*git.Repo, *models.Text, error) {
	if s.history == nil {
		return nil, nil, notFound(op, "history is disabled")
	}
	if _, err := s.resolver.Resolve(storage.ContentLocation(userID, repoID, textID, filename)); err != nil {
		return nil, nil, err
	}
	t, err := textOf(ctx, s.db.Queries, userID, repoID, textID)
	if err != nil {
		return nil, nil, err
	}
	r, err := s.historyRepo(ctx, userID, repoID)
	if err != nil {
		return nil, nil, err
	}
	return r, t, nil
}
