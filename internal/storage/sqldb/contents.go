package sqldb

import (
	"context"
	"time"

	"github.com/jarq/jarq/internal/models"
)

const contentColumns = "id, text_id, filename, size, checksum, creation_date, last_modification_date"

func scanContent(s scanner) (*models.Content, error) {
	var c models.Content
	var sum int64
	var created, modified string
	if err := s.Scan(&c.ID, &c.TextID, &c.Filename, &c.Size, &sum, &created, &modified); err != nil {
		return nil, err
	}
	c.Checksum = uint64(sum) //nolint:gosec // G115: stored bit-for-bit as int64
	var err error
	if c.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if c.Modified, err = parseTime(modified); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateContent inserts the metadata of a content file.
func (q *Queries) CreateContent(ctx context.Context, textID int, filename string, size int64, checksum uint64, now time.Time) (*models.Content, error) {
	id, err := LowestFreeID(ctx, q.db, "contents")
	if err != nil {
		return nil, err
	}
	c := &models.Content{
		ID:       id,
		TextID:   textID,
		Filename: filename,
		Size:     size,
		Checksum: checksum,
		Created:  now,
		Modified: now,
	}
	_, err = exec(ctx, q.db, "create content", "contents",
		"INSERT INTO contents ("+contentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.TextID, c.Filename, c.Size, int64(checksum), formatTime(now), formatTime(now)) //nolint:gosec // G115: bit-for-bit
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetContent returns the content with the given id.
func (q *Queries) GetContent(ctx context.Context, id int) (*models.Content, error) {
	return queryOne(ctx, q.db, "get content", "contents", scanContent,
		"SELECT "+contentColumns+" FROM contents WHERE id = ?", id)
}

// GetContentByName returns the content of a text with the given filename.
func (q *Queries) GetContentByName(ctx context.Context, textID int, filename string) (*models.Content, error) {
	return queryOne(ctx, q.db, "get content", "contents", scanContent,
		"SELECT "+contentColumns+" FROM contents WHERE text_id = ? AND filename = ?", textID, filename)
}

// ListContentsByText returns the contents of a text ordered by filename.
func (q *Queries) ListContentsByText(ctx context.Context, textID int) ([]*models.Content, error) {
	return queryAll(ctx, q.db, "list contents", "contents", scanContent,
		"SELECT "+contentColumns+" FROM contents WHERE text_id = ? ORDER BY filename", textID)
}

// UpdateContent records a new size and checksum for an existing content.
func (q *Queries) UpdateContent(ctx context.Context, id int, size int64, checksum uint64, now time.Time) (bool, error) {
	n, err := exec(ctx, q.db, "update content", "contents",
		"UPDATE contents SET size = ?, checksum = ?, last_modification_date = ? WHERE id = ?",
		size, int64(checksum), formatTime(now), id) //nolint:gosec // G115: bit-for-bit
	return n != 0, err
}

// DeleteContent deletes a content row.
func (q *Queries) DeleteContent(ctx context.Context, id int) (bool, error) {
	n, err := exec(ctx, q.db, "delete content", "contents", "DELETE FROM contents WHERE id = ?", id)
	return n != 0, err
}

// DeleteContentsByText deletes every content of a text.
func (q *Queries) DeleteContentsByText(ctx context.Context, textID int) (int64, error) {
	return exec(ctx, q.db, "delete contents", "contents", "DELETE FROM contents WHERE text_id = ?", textID)
}
