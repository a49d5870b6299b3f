package cycler

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// PathInfo is the provenance snapshot the pipeline needs from a file-access
// layer: size plus modification and access times.
type PathInfo struct {
	Size       int64
	ModTime    time.Time
	AccessTime time.Time
}

// PathLike is the capability interface the pipeline requires from whatever
// layer supplies raw files. One implementation exists for local paths;
// remote protocols supply their own and are selected at construction time.
type PathLike interface {
	// Exists reports whether path refers to an existing file.
	Exists(path string) bool

	// Open opens path for reading. The caller closes the returned reader.
	Open(path string) (io.ReadCloser, error)

	// Stat returns the provenance snapshot for path.
	Stat(path string) (PathInfo, error)

	// Join joins path elements using the layer's separator convention.
	Join(elem ...string) string

	// List returns the names of the entries in dir.
	List(dir string) ([]string, error)
}

// LocalFS is the local-filesystem PathLike implementation.
type LocalFS struct{}

func (LocalFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (LocalFS) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (LocalFS) Stat(path string) (PathInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return PathInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}

	return PathInfo{
		Size:       fi.Size(),
		ModTime:    fi.ModTime(),
		AccessTime: accessTime(fi, path),
	}, nil
}

func (LocalFS) Join(elem ...string) string {
	return filepath.Join(elem...)
}

func (LocalFS) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
