package storage

import (
	"log/slog"
	"os"
)

// DirManager creates and removes the directories backing users,
// repositories and texts.
type DirManager struct {
	r *Resolver
}

// NewDirManager returns a DirManager using r.
func NewDirManager(r *Resolver) *DirManager {
	return &DirManager{r: r}
}

// CreateDir creates the directory for loc and any missing ancestors.
// It returns true if the directory did not exist before.
func (d *DirManager) CreateDir(loc Location) (bool, error) {
	if !loc.IsDir() {
		return false, invalid("create dir", "%s is a file location", loc)
	}
	p, err := d.r.Resolve(loc)
	if err != nil {
		return false, err
	}
	info, found, err := exists(p)
	if err != nil {
		return false, ioFailure("create dir", p, err)
	}
	if found {
		if !info.IsDir() {
			return false, ioFailure("create dir", p, os.ErrExist)
		}
		return false, nil
	}
	if err := os.MkdirAll(p, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for user data directories
		return false, ioFailure("create dir", p, err)
	}
	return true, nil
}

// RemoveDir recursively deletes the directory for loc. It returns false when
// there was nothing to delete.
//
// The storage root and its ancestors are never removed, and neither is a
// directory reached through a symlink.
func (d *DirManager) RemoveDir(loc Location) (bool, error) {
	if !loc.IsDir() {
		return false, invalid("remove dir", "%s is a file location", loc)
	}
	p, err := d.r.resolveEntry("remove dir", loc)
	if err != nil {
		return false, err
	}
	root, err := d.r.canonicalRoot()
	if err != nil {
		return false, err
	}
	if isWithin(p, root) {
		return false, securityViolation("remove dir", p, "refusing to remove storage root or its ancestor")
	}
	return removeTree(p)
}

// RemoveRepository deletes a repository directory with all its texts.
func (d *DirManager) RemoveRepository(userID, repoID int) (bool, error) {
	return d.RemoveDir(RepositoryLocation(userID, repoID))
}

// RemoveTextDirectory deletes a text directory with all its content files.
func (d *DirManager) RemoveTextDirectory(userID, repoID, textID int) (bool, error) {
	return d.RemoveDir(TextLocation(userID, repoID, textID))
}

// RemoveUserRepositories deletes the user directory, and with it every
// repository, text and content file the user owns.
func (d *DirManager) RemoveUserRepositories(userID int) (bool, error) {
	return d.RemoveDir(UserLocation(userID))
}

// removeTree deletes p and everything below it. It is the only recursive
// deletion in the package.
func removeTree(p string) (bool, error) {
	_, found, err := exists(p)
	if err != nil {
		return false, ioFailure("remove tree", p, err)
	}
	if !found {
		return false, nil
	}
	if err := os.RemoveAll(p); err != nil {
		return false, ioFailure("remove tree", p, err)
	}
	slog.Debug("Removed directory tree", "path", p)
	return true, nil
}
