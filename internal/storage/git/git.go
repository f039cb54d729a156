// Package git records the history of content files with go-git.
//
// Every library repository directory is its own git repository; paths passed
// to a Repo are slash separated and relative to that directory, e.g.
// "3/notes.md" for file notes.md of text 3.
package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/jarq/jarq/internal/models"
)

// maxHistory caps the number of commits History returns.
const maxHistory = 1000

// Author identifies who made a change.
type Author struct {
	Name  string
	Email string
}

// Manager opens and caches one Repo per directory.
type Manager struct {
	committer Author
	repos     sync.Map // absolute dir -> *Repo
}

// NewManager returns a Manager committing as committer. Empty fields default
// to "jarq" and "jarq@localhost".
func NewManager(committer Author) *Manager {
	if committer.Name == "" {
		committer.Name = "jarq"
	}
	if committer.Email == "" {
		committer.Email = "jarq@localhost"
	}
	return &Manager{committer: committer}
}

// Repo returns the repository rooted at dir, initializing it if needed.
func (m *Manager) Repo(ctx context.Context, dir string) (*Repo, error) {
	if r, ok := m.repos.Load(dir); ok {
		return r.(*Repo), nil
	}
	r, err := openRepo(ctx, dir, m.committer)
	if err != nil {
		return nil, err
	}
	actual, _ := m.repos.LoadOrStore(dir, r)
	return actual.(*Repo), nil
}

// Forget drops the cached repositories at dir and below it. It must be called
// after the directory is deleted so that a later Repo call starts afresh.
func (m *Manager) Forget(dir string) {
	m.repos.Range(func(k, _ any) bool {
		p := k.(string)
		if p == dir || strings.HasPrefix(p, dir+string(filepath.Separator)) {
			m.repos.Delete(p)
		}
		return true
	})
}

// Repo is a single git repository.
type Repo struct {
	dir       string
	committer Author
	repo      *gogit.Repository
	mu        sync.Mutex
}

func openRepo(ctx context.Context, dir string, committer Author) (*Repo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		if repo, err = gogit.PlainInit(dir, false); err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = committer.Name
		cfg.User.Email = committer.Email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
		slog.DebugContext(ctx, "Initialized history", "dir", dir)
	}
	return &Repo{dir: dir, committer: committer, repo: repo}, nil
}

// Dir returns the working directory.
func (r *Repo) Dir() string {
	return r.dir
}

// Commit stages every change in the working directory, deletions included,
// and commits it. It returns the new commit hash, or "" when there was nothing
// to commit.
func (r *Repo) Commit(ctx context.Context, author Author, msg string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := w.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("failed to stage files: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree status: %w", err)
	}
	if status.IsClean() {
		return "", nil
	}

	if author.Name == "" {
		author.Name = r.committer.Name
	}
	if author.Email == "" {
		author.Email = r.committer.Email
	}
	now := time.Now()
	h, err := w.Commit(msg, &gogit.CommitOptions{
		Author:    &object.Signature{Name: author.Name, Email: author.Email, When: now},
		Committer: &object.Signature{Name: r.committer.Name, Email: r.committer.Email, When: now},
	})
	if err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	slog.DebugContext(ctx, "Committed", "dir", r.dir, "hash", h.String(), "msg", msg)
	return h.String(), nil
}

// Head returns the hash of the current commit, or "" for an empty
// repository.
func (r *Repo) Head() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// History returns the commits touching path, newest first, limited to n.
// n <= 0 means the maximum. When base is set, only commits made after base
// are returned. An empty repository has no history.
func (r *Repo) History(_ context.Context, path, base string, n int) ([]*models.Commit, error) {
	if n <= 0 || n > maxHistory {
		n = maxHistory
	}
	baseCommit, err := r.commit(base)
	if err != nil {
		return nil, err
	}
	opts := &gogit.LogOptions{}
	if path != "" && path != "." {
		opts.FileName = &path
	}
	iter, err := r.repo.Log(opts)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var commits []*models.Commit
	for range n {
		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read log: %w", err)
		}
		after, err := isAfter(baseCommit, c)
		if err != nil {
			return nil, err
		}
		if !after {
			break
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, &models.Commit{
			Hash:    c.Hash.String(),
			Message: subject,
			Author:  c.Author.Name,
			Email:   c.Author.Email,
			Date:    c.Author.When,
		})
	}
	return commits, nil
}

// FileAt returns the content of path at commit hash. When base is set, hash
// must be a commit made after base.
func (r *Repo) FileAt(_ context.Context, hash, path, base string) ([]byte, error) {
	if !plumbing.IsHash(hash) {
		return nil, fmt.Errorf("invalid commit hash %q", hash)
	}
	c, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	baseCommit, err := r.commit(base)
	if err != nil {
		return nil, err
	}
	after, err := isAfter(baseCommit, c)
	if err != nil {
		return nil, err
	}
	if !after {
		return nil, fmt.Errorf("commit %s predates %s: %w", hash, base, plumbing.ErrObjectNotFound)
	}
	f, err := c.File(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get file at commit: %w", err)
	}
	rd, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = rd.Close() }()
	return io.ReadAll(rd)
}

// commit returns the commit for hash, or nil for "".
func (r *Repo) commit(hash string) (*object.Commit, error) {
	if hash == "" {
		return nil, nil
	}
	if !plumbing.IsHash(hash) {
		return nil, fmt.Errorf("invalid commit hash %q", hash)
	}
	c, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", hash, err)
	}
	return c, nil
}

// isAfter reports whether c descends from base. Every commit is after a nil
// base.
func isAfter(base, c *object.Commit) (bool, error) {
	if base == nil {
		return true, nil
	}
	if c.Hash == base.Hash {
		return false, nil
	}
	ok, err := base.IsAncestor(c)
	if err != nil {
		return false, fmt.Errorf("failed to walk history: %w", err)
	}
	return ok, nil
}
