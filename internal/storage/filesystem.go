package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileStore persists assets onto the local filesystem and serves them through
// the API's static file route. Signed URLs are HMAC tokens checked by the
// same service, which is sufficient for single-node deployments; an object
// storage implementation can replace it behind ObjectStore.
type FileStore struct {
	basePath   string
	baseURL    string
	signSecret []byte
	now        func() time.Time
}

// NewFileStore initializes a FileStore rooted at basePath. baseURL is the
// public prefix under which keys are served.
func NewFileStore(basePath, baseURL, signSecret string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{
		basePath:   basePath,
		baseURL:    strings.TrimRight(baseURL, "/"),
		signSecret: []byte(signSecret),
		now:        time.Now,
	}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Upload stores user input bytes under uploads/{ownerID}/{uuid}{ext} and
// returns the key plus a five-minute signed URL.
func (s *FileStore) Upload(ctx context.Context, ownerID string, data []byte, contentType string) (string, string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", "", errors.New("storage: owner id is required")
	}
	key := fmt.Sprintf("uploads/%s/%s%s", ownerID, uuid.NewString(), extensionForMIME(contentType))
	if err := s.Write(ctx, key, data, contentType); err != nil {
		return "", "", err
	}
	signed, err := s.SignedURL(key, 5*time.Minute)
	if err != nil {
		return "", "", err
	}
	return key, signed, nil
}

// Write persists bytes at key exactly once. An existing object at the same
// key yields ErrKeyExists.
func (s *FileStore) Write(ctx context.Context, key string, data []byte, _ string) error {
	if s == nil {
		return errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("storage: ensure directory: %w", err)
	}
	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrKeyExists
		}
		return fmt.Errorf("storage: create file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("storage: write file: %w", err)
	}
	return nil
}

// SignedURL builds {baseURL}/{key}?exp=...&sig=... where sig is an
// HMAC-SHA256 over "key|exp".
func (s *FileStore) SignedURL(key string, ttl time.Duration) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	exp := s.now().Add(ttl).Unix()
	return fmt.Sprintf("%s/%s?exp=%d&sig=%s", s.baseURL, cleanKey, exp, s.sign(cleanKey, exp)), nil
}

// VerifySignature checks a signed URL's token against the key and expiry.
func (s *FileStore) VerifySignature(key string, exp int64, sig string) bool {
	if s.now().Unix() > exp {
		return false
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return false
	}
	expected := s.sign(cleanKey, exp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// Read returns the bytes stored at key.
func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil {
		return nil, fmt.Errorf("storage: read file: %w", err)
	}
	return data, nil
}

func (s *FileStore) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, s.signSecret)
	mac.Write([]byte(key))
	mac.Write([]byte("|"))
	mac.Write([]byte(strconv.FormatInt(exp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

var _ ObjectStore = (*FileStore)(nil)
