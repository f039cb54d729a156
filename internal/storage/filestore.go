package storage

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// FileStore reads and writes single content files below the storage root.
type FileStore struct {
	r *Resolver
}

// NewFileStore returns a FileStore using r.
func NewFileStore(r *Resolver) *FileStore {
	return &FileStore{r: r}
}

// HasFile returns true if loc resolves to an existing regular file.
//
// A missing storage root is not an error.
func (f *FileStore) HasFile(loc Location) (bool, error) {
	info, found, err := f.stat("has file", loc)
	if err != nil || !found {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// HasDir returns true if loc resolves to an existing directory.
//
// A missing storage root is not an error.
func (f *FileStore) HasDir(loc Location) (bool, error) {
	info, found, err := f.stat("has dir", loc)
	if err != nil || !found {
		return false, err
	}
	return info.IsDir(), nil
}

func (f *FileStore) stat(op string, loc Location) (os.FileInfo, bool, error) {
	p, err := f.r.Resolve(loc)
	if err != nil {
		return nil, false, err
	}
	info, found, err := exists(p)
	if err != nil {
		return nil, false, ioFailure(op, p, err)
	}
	return info, found, nil
}

// CreateFile writes data to loc, creating missing parent directories and
// overwriting an existing file.
func (f *FileStore) CreateFile(loc Location, data []byte) (bool, error) {
	if loc.IsDir() {
		return false, invalid("create file", "%s is a directory location", loc)
	}
	p, err := f.r.Resolve(loc)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for user data directories
		return false, ioFailure("create file", p, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil { //nolint:gosec // G306: 0o644 is intentional for user data files
		return false, ioFailure("create file", p, err)
	}
	slog.Debug("Wrote content file", "path", p, "size", humanize.Bytes(uint64(len(data))))
	return true, nil
}

// ReadFile returns the content of the file at loc.
func (f *FileStore) ReadFile(loc Location) ([]byte, error) {
	if loc.IsDir() {
		return nil, invalid("read file", "%s is a directory location", loc)
	}
	p, err := f.r.Resolve(loc)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) //nolint:gosec // G304: p passed the containment check
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewError(KindNotFound, "read file", p, err)
		}
		return nil, ioFailure("read file", p, err)
	}
	return data, nil
}

// RemoveFile deletes the file at loc. It returns true only if a file was
// actually removed. A symlink at loc is refused rather than followed.
func (f *FileStore) RemoveFile(loc Location) (bool, error) {
	if loc.IsDir() {
		return false, invalid("remove file", "%s is a directory location", loc)
	}
	p, err := f.r.resolveEntry("remove file", loc)
	if err != nil {
		return false, err
	}
	info, found, err := exists(p)
	if err != nil {
		return false, ioFailure("remove file", p, err)
	}
	if !found {
		return false, nil
	}
	if info.IsDir() {
		return false, invalid("remove file", "%s is a directory", loc)
	}
	if err := os.Remove(p); err != nil {
		return false, ioFailure("remove file", p, err)
	}
	return true, nil
}
