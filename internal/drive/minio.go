package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements Store against an S3-compatible object store.
// Folders are key prefixes; CreateDir writes the conventional zero-byte
// "<dir>/" marker so empty folders survive listing.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// MinioConfig holds connection settings for the remote store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// NewMinioStore creates a drive over the given bucket, creating the bucket
// if it does not exist.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// classify maps a minio error into the drive error taxonomy.
func classify(op, path string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", op, path, ErrNotFound)
	}
	return &TransientError{Err: fmt.Errorf("%s %s: %w", op, path, err)}
}

// ListFolders returns the drive paths of the folders directly under root.
func (s *MinioStore) ListFolders(ctx context.Context, root string) ([]string, error) {
	prefix := Clean(root)
	if prefix != "" {
		prefix += "/"
	}

	var folders []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, classify("list folders", root, obj.Err)
		}
		// Non-recursive listing reports sub-prefixes as keys ending in "/".
		if strings.HasSuffix(obj.Key, "/") && obj.Key != prefix {
			folders = append(folders, Clean(obj.Key))
		}
	}
	return folders, nil
}

// ListDir returns the entries directly under path.
func (s *MinioStore) ListDir(ctx context.Context, path string) ([]Entry, error) {
	prefix := Clean(path)
	if prefix != "" {
		prefix += "/"
	}

	var entries []Entry
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, classify("list dir", path, obj.Err)
		}
		if obj.Key == prefix {
			continue // the folder marker itself
		}
		cleaned := Clean(obj.Key)
		if strings.HasSuffix(obj.Key, "/") {
			entries = append(entries, Entry{Type: EntryFolder, Name: Base(cleaned), Path: cleaned})
		} else {
			entries = append(entries, Entry{Type: EntryFile, Name: Base(cleaned), Path: cleaned})
		}
	}
	return entries, nil
}

// Exists reports whether the object at path exists.
func (s *MinioStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, Clean(path), minio.StatObjectOptions{})
	if err != nil {
		classified := classify("stat", path, err)
		if IsNotFound(classified) {
			return false, nil
		}
		return false, classified
	}
	return true, nil
}

// GetMeta returns size and modification time for the object at path.
func (s *MinioStore) GetMeta(ctx context.Context, path string) (Meta, error) {
	info, err := s.client.StatObject(ctx, s.bucket, Clean(path), minio.StatObjectOptions{})
	if err != nil {
		return Meta{}, classify("get meta", path, err)
	}
	return Meta{Size: info.Size, Modified: info.LastModified}, nil
}

// ReadText reads the object at path as UTF-8 text.
func (s *MinioStore) ReadText(ctx context.Context, path string) (string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, Clean(path), minio.GetObjectOptions{})
	if err != nil {
		return "", classify("read text", path, err)
	}
	defer func() {
		_ = obj.Close()
	}()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", classify("read text", path, err)
	}
	return string(data), nil
}

// UploadText writes content to path, replacing any existing object.
func (s *MinioStore) UploadText(ctx context.Context, path, content string) error {
	reader := strings.NewReader(content)
	_, err := s.client.PutObject(ctx, s.bucket, Clean(path), reader, int64(len(content)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return classify("upload text", path, err)
	}
	return nil
}

// Move renames src to dst via server-side copy plus delete.
func (s *MinioStore) Move(ctx context.Context, src, dst string, overwrite bool) error {
	srcKey, dstKey := Clean(src), Clean(dst)

	if !overwrite {
		exists, err := s.Exists(ctx, dstKey)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("move destination %s already exists", dst)
		}
	}

	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey},
	)
	if err != nil {
		return classify("move", src, err)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, srcKey, minio.RemoveObjectOptions{}); err != nil {
		return classify("move cleanup", src, err)
	}
	return nil
}

// CreateDir creates a folder marker at path. Idempotent.
func (s *MinioStore) CreateDir(ctx context.Context, path string) error {
	key := Clean(path) + "/"
	_, err := s.client.PutObject(ctx, s.bucket, key, strings.NewReader(""), 0, minio.PutObjectOptions{})
	if err != nil {
		return classify("create dir", path, err)
	}
	return nil
}

// DownloadFile copies the object at path to localPath.
func (s *MinioStore) DownloadFile(ctx context.Context, path, localPath string, maxBytes int64) error {
	key := Clean(path)
	if maxBytes > 0 {
		info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		if err != nil {
			return classify("download", path, err)
		}
		if info.Size > maxBytes {
			return fmt.Errorf("object %s is %d bytes, exceeds limit %d", path, info.Size, maxBytes)
		}
	}

	if err := s.client.FGetObject(ctx, s.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return classify("download", path, err)
	}
	return nil
}
