package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/book-expert/narration-service/internal/core"
)

const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// Static errors.
var (
	ErrInvalidKey    = errors.New("object key escapes the bucket directory")
	ErrUnknownBucket = errors.New("unknown bucket")
)

// DirStore implements core.ObjectStore on a local directory. Keys are file names
// relative to the directory; the content type is not persisted.
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at dir. The directory is created on first upload.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

// Download reads the file stored under key.
func (d *DirStore) Download(_ context.Context, key string) ([]byte, error) {
	path, err := d.resolve(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, err)
	}

	return data, nil
}

// Upload writes data under key, replacing an existing file. The file is written to a
// temporary name first so a reader never observes partial audio.
func (d *DirStore) Upload(_ context.Context, key string, data []byte, _ string) error {
	path, err := d.resolve(key)
	if err != nil {
		return err
	}

	dirErr := os.MkdirAll(filepath.Dir(path), dirPermissions)
	if dirErr != nil {
		return fmt.Errorf("failed to create output directory: %w", dirErr)
	}

	tempPath := path + ".partial"

	writeErr := os.WriteFile(tempPath, data, filePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write object '%s': %w", key, writeErr)
	}

	renameErr := os.Rename(tempPath, path)
	if renameErr != nil {
		_ = os.Remove(tempPath)

		return fmt.Errorf("failed to move object '%s' into place: %w", key, renameErr)
	}

	return nil
}

// List returns the regular files directly under the directory, sorted by name. A
// missing directory is an empty bucket.
func (d *DirStore) List(_ context.Context) ([]core.ObjectInfo, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []core.ObjectInfo{}, nil
		}

		return nil, fmt.Errorf("failed to list directory '%s': %w", d.root, err)
	}

	objects := make([]core.ObjectInfo, 0, len(entries))

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			return nil, fmt.Errorf("failed to stat '%s': %w", entry.Name(), infoErr)
		}

		objects = append(objects, core.ObjectInfo{Name: entry.Name(), Size: uint64(info.Size())})
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })

	return objects, nil
}

func (d *DirStore) resolve(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || filepath.IsAbs(cleaned) || cleaned == ".." ||
		strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: '%s'", ErrInvalidKey, key)
	}

	return filepath.Join(d.root, cleaned), nil
}

// DirBuckets maps bucket names to directories.
type DirBuckets struct {
	dirs map[string]string
}

// NewDirBuckets creates a BucketOpener from a bucket name to directory mapping.
func NewDirBuckets(dirs map[string]string) *DirBuckets {
	copied := make(map[string]string, len(dirs))
	for name, dir := range dirs {
		copied[name] = dir
	}

	return &DirBuckets{dirs: copied}
}

// Open returns the directory store registered under bucket.
func (b *DirBuckets) Open(_ context.Context, bucket string) (core.ObjectStore, error) {
	dir, ok := b.dirs[bucket]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownBucket, bucket)
	}

	return NewDirStore(dir), nil
}
