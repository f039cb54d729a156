package git

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestRepo(t *testing.T) {
	t.Parallel()

	t.Run("Init", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "1", "2")
		mgr := NewManager(Author{})
		r, err := mgr.Repo(t.Context(), dir)
		if err != nil {
			t.Fatalf("Repo() failed: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
			t.Errorf(".git directory not created: %v", err)
		}
		cfg, err := r.repo.Config()
		if err != nil {
			t.Fatal(err)
		}
		if cfg.User.Name != "jarq" || cfg.User.Email != "jarq@localhost" {
			t.Errorf("unexpected user %q <%s>", cfg.User.Name, cfg.User.Email)
		}
		r2, err := mgr.Repo(t.Context(), dir)
		if err != nil {
			t.Fatal(err)
		}
		if r2 != r {
			t.Error("expected cached repo")
		}
	})

	t.Run("EmptyHistory", func(t *testing.T) {
		t.Parallel()
		r, err := NewManager(Author{}).Repo(t.Context(), t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		history, err := r.History(t.Context(), "1/a.md", "", 0)
		if err != nil {
			t.Fatalf("History() failed: %v", err)
		}
		if len(history) != 0 {
			t.Errorf("expected no commits, got %d", len(history))
		}
		h, err := r.Commit(t.Context(), Author{}, "nothing")
		if err != nil {
			t.Fatal(err)
		}
		if h != "" {
			t.Errorf("expected no commit, got %s", h)
		}
	})

	t.Run("History", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		dir := t.TempDir()
		r, err := NewManager(Author{Name: "Library", Email: "lib@example.com"}).Repo(ctx, dir)
		if err != nil {
			t.Fatal(err)
		}
		author := Author{Name: "Alice", Email: "alice@example.com"}

		writeFile(t, dir, "1/a.md", "v1")
		if _, err := r.Commit(ctx, author, "Put 1/a.md"); err != nil {
			t.Fatal(err)
		}
		writeFile(t, dir, "1/b.md", "other")
		if _, err := r.Commit(ctx, author, "Put 1/b.md"); err != nil {
			t.Fatal(err)
		}
		writeFile(t, dir, "1/a.md", "v2")
		h2, err := r.Commit(ctx, Author{}, "Put 1/a.md again\n\nbody")
		if err != nil {
			t.Fatal(err)
		}

		history, err := r.History(ctx, "1/a.md", "", 10)
		if err != nil {
			t.Fatalf("History() failed: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("expected 2 commits, got %d", len(history))
		}
		if history[0].Hash != h2 || history[0].Message != "Put 1/a.md again" {
			t.Errorf("unexpected newest commit %+v", history[0])
		}
		if history[0].Author != "Library" {
			t.Errorf("empty author should default to committer, got %q", history[0].Author)
		}
		if history[1].Author != "Alice" || history[1].Email != "alice@example.com" {
			t.Errorf("unexpected oldest commit %+v", history[1])
		}

		limited, err := r.History(ctx, "1/a.md", "", 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(limited) != 1 {
			t.Errorf("expected 1 commit, got %d", len(limited))
		}

		v1, err := r.FileAt(ctx, history[1].Hash, "1/a.md", "")
		if err != nil {
			t.Fatalf("FileAt() failed: %v", err)
		}
		if string(v1) != "v1" {
			t.Errorf("expected 'v1', got %q", v1)
		}
		if _, err := r.FileAt(ctx, "not a hash", "1/a.md", ""); err == nil {
			t.Error("expected error for invalid hash")
		}
	})

	t.Run("Deletions", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		dir := t.TempDir()
		r, err := NewManager(Author{}).Repo(ctx, dir)
		if err != nil {
			t.Fatal(err)
		}
		writeFile(t, dir, "4/a.md", "a")
		writeFile(t, dir, "4/b.md", "b")
		if _, err := r.Commit(ctx, Author{}, "add"); err != nil {
			t.Fatal(err)
		}
		if err := os.RemoveAll(filepath.Join(dir, "4")); err != nil {
			t.Fatal(err)
		}
		h, err := r.Commit(ctx, Author{}, "remove text 4")
		if err != nil {
			t.Fatal(err)
		}
		if h == "" {
			t.Fatal("expected a commit for the deletion")
		}
		history, err := r.History(ctx, "4/b.md", "", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 2 || history[0].Message != "remove text 4" {
			t.Errorf("unexpected history %+v", history)
		}
	})

	t.Run("Base", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		dir := t.TempDir()
		r, err := NewManager(Author{}).Repo(ctx, dir)
		if err != nil {
			t.Fatal(err)
		}
		head, err := r.Head()
		if err != nil || head != "" {
			t.Fatalf("expected empty head, got %q, %v", head, err)
		}
		writeFile(t, dir, "1/a.md", "old")
		old, err := r.Commit(ctx, Author{}, "Add 1/a.md")
		if err != nil {
			t.Fatal(err)
		}
		if err := os.RemoveAll(filepath.Join(dir, "1")); err != nil {
			t.Fatal(err)
		}
		if _, err := r.Commit(ctx, Author{}, "Remove text 1"); err != nil {
			t.Fatal(err)
		}
		base, err := r.Head()
		if err != nil || base == "" {
			t.Fatalf("expected a head, got %q, %v", base, err)
		}

		history, err := r.History(ctx, "1/a.md", base, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 0 {
			t.Errorf("expected no commits after base, got %+v", history)
		}
		if _, err := r.FileAt(ctx, old, "1/a.md", base); !errors.Is(err, plumbing.ErrObjectNotFound) {
			t.Errorf("expected commit before base to be hidden, got %v", err)
		}

		writeFile(t, dir, "1/a.md", "new")
		h, err := r.Commit(ctx, Author{}, "Add 1/a.md")
		if err != nil {
			t.Fatal(err)
		}
		history, err = r.History(ctx, "1/a.md", base, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 1 || history[0].Hash != h {
			t.Errorf("expected only %s, got %+v", h, history)
		}
		got, err := r.FileAt(ctx, h, "1/a.md", base)
		if err != nil || string(got) != "new" {
			t.Errorf("expected 'new', got %q, %v", got, err)
		}
		if all, err := r.History(ctx, "1/a.md", "", 0); err != nil || len(all) != 3 {
			t.Errorf("expected 3 commits without base, got %d, %v", len(all), err)
		}
	})

	t.Run("Forget", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		mgr := NewManager(Author{})
		a := filepath.Join(root, "1", "1")
		b := filepath.Join(root, "1", "2")
		c := filepath.Join(root, "10", "1")
		for _, d := range []string{a, b, c} {
			if _, err := mgr.Repo(t.Context(), d); err != nil {
				t.Fatal(err)
			}
		}
		mgr.Forget(filepath.Join(root, "1"))
		for _, d := range []string{a, b} {
			if _, ok := mgr.repos.Load(d); ok {
				t.Errorf("%s should be forgotten", d)
			}
		}
		if _, ok := mgr.repos.Load(c); !ok {
			t.Errorf("%s should still be cached", c)
		}
	})
}
