package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// LocalStore implements Store over a local directory tree.
// It exists for development and tests; semantics mirror MinioStore.
type LocalStore struct {
	base string
}

// NewLocalStore creates a local drive rooted at base.
func NewLocalStore(base string) (*LocalStore, error) {
	if base == "" {
		return nil, fmt.Errorf("local drive base path is required")
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("failed to create local drive base: %w", err)
	}
	return &LocalStore{base: base}, nil
}

// abs maps a drive path to an absolute filesystem path.
func (s *LocalStore) abs(p string) string {
	return filepath.Join(s.base, filepath.FromSlash(Clean(p)))
}

// ListFolders returns the drive paths of the folders directly under root.
func (s *LocalStore) ListFolders(ctx context.Context, root string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.abs(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("list folders %s: %w", root, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to list folders %s: %w", root, err)
	}

	var folders []string
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, Join(root, e.Name()))
		}
	}
	sort.Strings(folders)
	return folders, nil
}

// ListDir returns the entries directly under path.
func (s *LocalStore) ListDir(ctx context.Context, path string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(s.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("list dir %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to list dir %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, e := range dirEntries {
		entryType := EntryFile
		if e.IsDir() {
			entryType = EntryFolder
		}
		entries = append(entries, Entry{
			Type: entryType,
			Name: e.Name(),
			Path: Join(path, e.Name()),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Exists reports whether the object at path exists.
func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := os.Stat(s.abs(path)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return true, nil
}

// GetMeta returns size and modification time for the object at path.
func (s *LocalStore) GetMeta(ctx context.Context, path string) (Meta, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}
	info, err := os.Stat(s.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, fmt.Errorf("get meta %s: %w", path, ErrNotFound)
		}
		return Meta{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return Meta{Size: info.Size(), Modified: info.ModTime()}, nil
}

// ReadText reads the object at path as UTF-8 text.
func (s *LocalStore) ReadText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("read text %s: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// UploadText writes content to path, replacing any existing object.
func (s *LocalStore) UploadText(ctx context.Context, path, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := s.abs(path)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir for %s: %w", path, err)
	}
	if err := os.WriteFile(target, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Move renames src to dst. Fails if dst exists unless overwrite is set.
func (s *LocalStore) Move(ctx context.Context, src, dst string, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	srcAbs, dstAbs := s.abs(src), s.abs(dst)
	if _, err := os.Stat(srcAbs); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("move %s: %w", src, ErrNotFound)
		}
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if !overwrite {
		if _, err := os.Stat(dstAbs); err == nil {
			return fmt.Errorf("move destination %s already exists", dst)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dstAbs), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir for %s: %w", dst, err)
	}
	if err := os.Rename(srcAbs, dstAbs); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}
	return nil
}

// CreateDir creates a folder at path. Idempotent.
func (s *LocalStore) CreateDir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.abs(path), 0755); err != nil {
		return fmt.Errorf("failed to create dir %s: %w", path, err)
	}
	return nil
}

// DownloadFile copies the object at path to localPath.
func (s *LocalStore) DownloadFile(ctx context.Context, path, localPath string, maxBytes int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(s.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("download %s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return fmt.Errorf("object %s is %d bytes, exceeds limit %d", path, info.Size(), maxBytes)
	}

	src, err := os.Open(s.abs(path))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		_ = src.Close()
	}()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create local dir: %w", err)
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	defer func() {
		_ = dst.Close()
	}()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", path, localPath, err)
	}
	return nil
}
