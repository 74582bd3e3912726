package storage

import (
	"context"
	"errors"
	"time"
)

// ErrKeyExists reports that an object already exists at the target key.
// Callers writing generated outputs treat it as success: a concurrent
// ingestion already materialized the same bytes at the same key.
var ErrKeyExists = errors.New("storage: key already exists")

// ObjectStore is the contract the generation core needs from durable object
// storage. Implementations must write each key at most once.
type ObjectStore interface {
	// Upload persists user-supplied input bytes under an owner-scoped key and
	// returns the stable path plus a short-lived signed URL for the provider.
	Upload(ctx context.Context, ownerID string, data []byte, contentType string) (path string, signedURL string, err error)
	// Write persists generated output bytes at the given key. It returns
	// ErrKeyExists when the key is already occupied.
	Write(ctx context.Context, key string, data []byte, contentType string) error
	// SignedURL returns a URL granting read access to key for ttl.
	SignedURL(key string, ttl time.Duration) (string, error)
	// Read returns the bytes stored at key.
	Read(ctx context.Context, key string) ([]byte, error)
}
