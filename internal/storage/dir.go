package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DirStore implements MediaStore over a local directory tree. It backs the
// CLI's offline mode, where operators debug an experience against files on
// disk instead of the production bucket.
type DirStore struct {
	root string
}

var _ MediaStore = (*DirStore)(nil)

// NewDirStore creates a directory-backed media store rooted at root.
func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

func (d *DirStore) path(key string) string {
	return filepath.Join(d.root, filepath.FromSlash(key))
}

func (d *DirStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(d.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

func (d *DirStore) Download(_ context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (d *DirStore) DownloadToFile(ctx context.Context, key, localPath string) error {
	data, err := d.Download(ctx, key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", localPath, err)
	}
	return nil
}

func (d *DirStore) Upload(_ context.Context, localPath, key, _ string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", localPath, err)
	}
	dest := d.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("mkdir for %s: %w", key, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return "file://" + dest, nil
}

func (d *DirStore) UploadBytes(_ context.Context, data []byte, key, _ string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	dest := d.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("mkdir for %s: %w", key, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return "file://" + dest, nil
}

func (d *DirStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "file://" + d.path(key), nil
}
