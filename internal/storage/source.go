package storage

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
)

// Source is a flat listing of image files, such as a local directory or an
// Azure container prefix
type Source interface {
	// Location identifies the source in reports and logs
	Location() string
	// List returns the file names in the source, sorted
	List(ctx context.Context) ([]string, error)
	// Materialize makes the named file available on local disk. cleanup
	// releases any temporary copy and is never nil.
	Materialize(ctx context.Context, name string) (path string, cleanup func(), err error)
}

func noCleanup() {}

// LocalSource lists a directory on the local file system
type LocalSource struct {
	dir string
}

// NewLocalSource creates a source over dir
func NewLocalSource(dir string) *LocalSource {
	return &LocalSource{dir: dir}
}

// Location returns the directory path
func (s *LocalSource) Location() string {
	return s.dir
}

// List returns the regular, non-hidden files in the directory. A missing or
// unreadable directory fails with a directory-not-found error.
func (s *LocalSource) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperrors.NewDirectoryNotFoundError(s.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.Type().IsRegular() {
			names = append(names, e.Name())
			continue
		}
		// follow symlinks to regular files
		if e.Type()&fs.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(s.dir, e.Name())); err == nil && info.Mode().IsRegular() {
				names = append(names, e.Name())
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Materialize returns the path of the file inside the directory
func (s *LocalSource) Materialize(_ context.Context, name string) (string, func(), error) {
	return filepath.Join(s.dir, name), noCleanup, nil
}

// spoolFile copies r into a new temporary file that keeps the extension of name
func spoolFile(r io.Reader, name string) (string, func(), error) {
	f, err := os.CreateTemp("", "imgeval-*"+filepath.Ext(name))
	if err != nil {
		return "", noCleanup, err
	}
	cleanup := func() { os.Remove(f.Name()) }

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		cleanup()
		return "", noCleanup, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", noCleanup, err
	}
	return f.Name(), cleanup, nil
}
