// Maps logical locations to canonical paths below the storage root.

package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Root is the immutable storage root. It is configured once at startup.
type Root struct {
	path string
}

// NewRoot returns a Root for dir. Relative paths are made absolute against
// the working directory. The directory does not need to exist.
func NewRoot(dir string) (Root, error) {
	if strings.TrimSpace(dir) == "" {
		return Root{}, errors.New("storage root is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Root{}, fmt.Errorf("failed to make storage root absolute: %w", err)
	}
	return Root{path: abs}, nil
}

// Path returns the absolute, non canonicalized root path.
func (r Root) Path() string {
	return r.path
}

// Location identifies a user, repository, text or content file.
//
// Zero identifiers mean "absent". Levels must be filled in order: a text
// requires a repository which requires a user. The zero Location is the
// storage root itself.
type Location struct {
	UserID       int
	RepositoryID int
	TextID       int
	Filename     string
}

// UserLocation returns the location of a user directory.
func UserLocation(userID int) Location {
	return Location{UserID: userID}
}

// RepositoryLocation returns the location of a repository directory.
func RepositoryLocation(userID, repoID int) Location {
	return Location{UserID: userID, RepositoryID: repoID}
}

// TextLocation returns the location of a text directory.
func TextLocation(userID, repoID, textID int) Location {
	return Location{UserID: userID, RepositoryID: repoID, TextID: textID}
}

// ContentLocation returns the location of a content file.
func ContentLocation(userID, repoID, textID int, filename string) Location {
	return Location{UserID: userID, RepositoryID: repoID, TextID: textID, Filename: filename}
}

// IsDir returns true when the location names a directory.
func (l Location) IsDir() bool {
	return l.Filename == ""
}

func (l Location) String() string {
	return "/" + filepath.ToSlash(filepath.Join(l.segments()...))
}

func (l Location) segments() []string {
	var s []string
	for _, id := range []int{l.UserID, l.RepositoryID, l.TextID} {
		if id == 0 {
			break
		}
		s = append(s, strconv.Itoa(id))
	}
	if l.Filename != "" {
		s = append(s, l.Filename)
	}
	return s
}

func (l Location) validate() error {
	ids := []struct {
		name string
		v    int
	}{
		{"user", l.UserID},
		{"repository", l.RepositoryID},
		{"text", l.TextID},
	}
	missing := ""
	for _, id := range ids {
		if id.v < 0 {
			return invalid("resolve", "%s ID must be positive, got %d", id.name, id.v)
		}
		if id.v == 0 {
			if missing == "" {
				missing = id.name
			}
			continue
		}
		if missing != "" {
			return invalid("resolve", "%s ID set without %s ID", id.name, missing)
		}
	}
	if l.Filename != "" && l.TextID == 0 {
		return invalid("resolve", "filename %q set without text ID", l.Filename)
	}
	return nil
}

// Resolver maps locations to filesystem paths and enforces that every
// resolved path stays inside the storage root.
//
// The check runs on canonical paths: ".." elements and symlinks of the
// longest existing prefix are resolved before comparing. Callers are expected
// to pass sanitized values; the resolver does not rely on it.
type Resolver struct {
	root Root
}

// NewResolver returns a Resolver rooted at root.
func NewResolver(root Root) *Resolver {
	return &Resolver{root: root}
}

// Root returns the storage root.
func (r *Resolver) Root() Root {
	return r.root
}

// Resolve returns the canonical path for loc.
//
// It returns a KindSecurityViolation error when the path would leave the
// storage root, and a KindInvalid error for malformed locations. It never
// touches the filesystem besides reading symlinks.
func (r *Resolver) Resolve(loc Location) (string, error) {
	if err := loc.validate(); err != nil {
		return "", err
	}
	if loc.Filename != "" {
		if err := checkFilename(loc.Filename); err != nil {
			return "", err
		}
	}
	root, err := r.canonicalRoot()
	if err != nil {
		return "", err
	}
	joined := filepath.Join(append([]string{r.root.path}, loc.segments()...)...)
	p, err := canonicalize(joined)
	if err != nil {
		return "", ioFailure("resolve", joined, err)
	}
	if !isWithin(root, p) {
		return "", securityViolation("resolve", p, "%s escapes storage root %s", loc, root)
	}
	return p, nil
}

// resolveEntry resolves loc for removal. Unlike Resolve, only the parent is
// canonicalized: the returned path names the directory entry itself. Symlinks
// anywhere below the root are refused so that a removal never acts on a link
// target, even one inside the root.
func (r *Resolver) resolveEntry(op string, loc Location) (string, error) {
	if _, err := r.Resolve(loc); err != nil {
		return "", err
	}
	root, err := r.canonicalRoot()
	if err != nil {
		return "", err
	}
	segs := loc.segments()
	if len(segs) == 0 {
		return root, nil
	}
	joined := filepath.Join(append([]string{r.root.path}, segs[:len(segs)-1]...)...)
	parent, err := canonicalize(joined)
	if err != nil {
		return "", ioFailure(op, joined, err)
	}
	p := filepath.Join(parent, segs[len(segs)-1])
	if p != filepath.Join(append([]string{root}, segs...)...) {
		return "", securityViolation(op, p, "%s goes through a symbolic link", loc)
	}
	if info, err := os.Lstat(p); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", securityViolation(op, p, "%s is a symbolic link", loc)
	}
	return p, nil
}

func (r *Resolver) canonicalRoot() (string, error) {
	root, err := canonicalize(r.root.path)
	if err != nil {
		return "", ioFailure("resolve", r.root.path, err)
	}
	return root, nil
}

// checkFilename accepts only a single path element.
func checkFilename(name string) error {
	if name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return securityViolation("resolve", name, "filename %q is not a single path element", name)
	}
	return nil
}

// canonicalize cleans p and resolves symlinks on its longest existing prefix.
// Missing trailing elements are appended as-is.
func canonicalize(p string) (string, error) {
	p = filepath.Clean(p)
	var tail []string
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		tail = append(tail, filepath.Base(p))
		p = parent
	}
}

// isWithin returns true if child is parent or one of its descendants. Both
// must be clean absolute paths.
func isWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// exists reports whether p exists. Missing parents count as missing.
func exists(p string) (os.FileInfo, bool, error) {
	info, err := os.Stat(p)
	if err == nil {
		return info, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return nil, false, nil
	}
	return nil, false, err
}
