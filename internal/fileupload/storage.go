// ==============================================================================
// DOCUMENT STORAGE - internal/fileupload/storage.go
// ==============================================================================
// Local filesystem bucket for KYC documents, served under a public base URL.
// Object paths are relative to the bucket: {user}/{tier}/{unixMillis}.{ext}
// ==============================================================================

package fileupload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"sak/pkg/errors"
	"sak/pkg/logger"

	"github.com/creachadair/atomicfile"
)

const DefaultBucket = "kyc-files"

// LocalStorageConfig contains configuration for local storage
type LocalStorageConfig struct {
	BasePath      string
	Bucket        string
	PublicBaseURL string
	// MaxFileSize in bytes; zero disables the check.
	MaxFileSize     int64
	FilePermissions os.FileMode
	DirPermissions  os.FileMode
}

// LocalStorage keeps objects under BasePath/Bucket.
type LocalStorage struct {
	config LocalStorageConfig
	root   string
	logger logger.Logger
}

func NewLocalStorage(config LocalStorageConfig, log logger.Logger) (*LocalStorage, error) {
	if config.BasePath == "" {
		config.BasePath = "./uploads"
	}
	if config.Bucket == "" {
		config.Bucket = DefaultBucket
	}
	if config.FilePermissions == 0 {
		config.FilePermissions = 0o644
	}
	if config.DirPermissions == 0 {
		config.DirPermissions = 0o755
	}
	if log == nil {
		log = logger.NewNop()
	}

	root, err := filepath.Abs(filepath.Join(config.BasePath, config.Bucket))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(root, config.DirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{config: config, root: root, logger: log}, nil
}

// Upload writes the object atomically and returns its public URL.
func (s *LocalStorage) Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	startTime := time.Now()

	if s.config.MaxFileSize > 0 && int64(len(data)) > s.config.MaxFileSize {
		return "", errors.ErrFileTooLarge
	}
	full, err := s.resolve(objectPath)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(full), s.config.DirPermissions); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}
	if _, err := atomicfile.WriteAll(full, bytes.NewReader(data), s.config.FilePermissions); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	sum := sha256.Sum256(data)
	s.logger.Info("File saved to local storage", map[string]interface{}{
		"event":           "file_saved_local",
		"storage_path":    objectPath,
		"content_type":    contentType,
		"file_size":       len(data),
		"checksum_sha256": hex.EncodeToString(sum[:]),
		"duration_ms":     time.Since(startTime).Milliseconds(),
	})
	return s.URL(objectPath), nil
}

// Delete removes the object. A missing object is not an error.
func (s *LocalStorage) Delete(ctx context.Context, objectPath string) error {
	full, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	s.cleanupEmptyDirectories(filepath.Dir(full))

	s.logger.Info("File deleted from local storage", map[string]interface{}{
		"event":        "file_deleted_local",
		"storage_path": objectPath,
	})
	return nil
}

// Open returns the object's content for serving.
func (s *LocalStorage) Open(ctx context.Context, objectPath string) ([]byte, error) {
	full, err := s.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, errors.ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// URL is the public address of an object.
func (s *LocalStorage) URL(objectPath string) string {
	base := strings.TrimRight(s.config.PublicBaseURL, "/")
	return base + "/" + path.Join(s.config.Bucket, objectPath)
}

// Root is the bucket directory on disk.
func (s *LocalStorage) Root() string { return s.root }

// resolve maps an object path to a file inside the bucket, refusing anything
// that escapes it.
func (s *LocalStorage) resolve(objectPath string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(objectPath, "\\", "/"))
	if clean == "/" {
		return "", fmt.Errorf("access denied: empty object path")
	}
	full := filepath.Join(s.root, filepath.FromSlash(clean))
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("access denied: path outside base directory")
	}
	return full, nil
}

// SanitizeFileName reduces a client file name to a safe base name.
func SanitizeFileName(fileName string) string {
	fileName = filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	fileName = strings.ReplaceAll(fileName, "..", "")

	var b strings.Builder
	for _, r := range fileName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()

	if len(out) > 255 {
		ext := filepath.Ext(out)
		out = out[:255-len(ext)] + ext
	}
	return out
}

// cleanupEmptyDirectories removes empty directories up to the bucket root.
func (s *LocalStorage) cleanupEmptyDirectories(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
