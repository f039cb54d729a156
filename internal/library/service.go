// Package library implements the operations on users, repositories, texts and
// content files.
//
// Every mutation updates the database and the storage tree together: the
// filesystem step runs inside the database transaction, before commit, so a
// filesystem failure rolls the rows back. History commits are recorded after
// the transaction and never fail the operation.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/jarq/jarq/internal/models"
	"github.com/jarq/jarq/internal/storage"
	"github.com/jarq/jarq/internal/storage/git"
	"github.com/jarq/jarq/internal/storage/sqldb"
)

const maxNameLength = 255

// ErrUnauthorized is returned by Authenticate on unknown users and wrong
// passwords alike.
var ErrUnauthorized = errors.New("invalid credentials")

// Options configures a Service.
type Options struct {
	// History records content changes in one git repository per library
	// repository. Nil disables history.
	History *git.Manager
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service is the library. It is safe for concurrent use; mutations are
// serialized by the database.
type Service struct {
	db       *sqldb.DB
	resolver *storage.Resolver
	dirs     *storage.DirManager
	files    *storage.FileStore
	history  *git.Manager
	cost     int
	now      func() time.Time
}

// New returns a Service storing rows in db and files under the root of
// resolver.
func New(db *sqldb.DB, resolver *storage.Resolver, opts Options) *Service {
	s := &Service{
		db:       db,
		resolver: resolver,
		dirs:     storage.NewDirManager(resolver),
		files:    storage.NewFileStore(resolver),
		history:  opts.History,
		cost:     opts.BcryptCost,
		now:      opts.Now,
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// HistoryEnabled reports whether content changes are versioned.
func (s *Service) HistoryEnabled() bool {
	return s.history != nil
}

func invalidArg(op, format string, args ...any) error {
	return storage.NewError(storage.KindInvalid, op, "", fmt.Errorf(format, args...))
}

func notFound(op, format string, args ...any) error {
	return storage.NewError(storage.KindNotFound, op, "", fmt.Errorf(format, args...))
}

// checkName validates a display name and returns it trimmed.
func checkName(op, what, name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", invalidArg(op, "%s cannot be empty", what)
	case utf8.RuneCountInString(name) > maxNameLength:
		return "", invalidArg(op, "%s is longer than %d characters", what, maxNameLength)
	case !utf8.ValidString(name):
		return "", invalidArg(op, "%s is not valid UTF-8", what)
	}
	return name, nil
}

// repositoryOf returns the repository if it belongs to userID.
func repositoryOf(ctx context.Context, q *sqldb.Queries, userID, repoID int) (*models.Repository, error) {
	r, err := q.GetRepository(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, notFound("get repository", "repository %d of user %d", repoID, userID)
	}
	return r, nil
}

// textOf returns the text if it belongs to the repository of userID.
func textOf(ctx context.Context, q *sqldb.Queries, userID, repoID, textID int) (*models.Text, error) {
	if _, err := repositoryOf(ctx, q, userID, repoID); err != nil {
		return nil, err
	}
	t, err := q.GetText(ctx, textID)
	if err != nil {
		return nil, err
	}
	if t.RepositoryID != repoID {
		return nil, notFound("get text", "text %d of repository %d", textID, repoID)
	}
	return t, nil
}

// historyRepo returns the history of a library repository, or nil when
// history is disabled.
func (s *Service) historyRepo(ctx context.Context, userID, repoID int) (*git.Repo, error) {
	if s.history == nil {
		return nil, nil
	}
	dir, err := s.resolver.Resolve(storage.RepositoryLocation(userID, repoID))
	if err != nil {
		return nil, err
	}
	return s.history.Repo(ctx, dir)
}

// record commits the working tree of a library repository as userID.
func (s *Service) record(ctx context.Context, userID, repoID int, msg string) {
	if s.history == nil {
		return
	}
	var author git.Author
	if u, err := s.db.GetUser(ctx, userID); err == nil {
		author = git.Author{Name: u.Name, Email: u.Email}
	}
	r, err := s.historyRepo(ctx, userID, repoID)
	if err == nil {
		_, err = r.Commit(ctx, author, msg)
	}
	if err != nil {
		slog.WarnContext(ctx, "Failed to record history", "user", userID, "repository", repoID, "err", err)
	}
}

// forget drops cached history repositories under loc after its directory
// was removed.
func (s *Service) forget(loc storage.Location) {
	if s.history == nil {
		return
	}
	if dir, err := s.resolver.Resolve(loc); err == nil {
		s.history.Forget(dir)
	}
}
