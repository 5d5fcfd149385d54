// Package objectstore is the URL-addressed byte store every other
// bundlebase component sees (spec §4.1). Implementations: local
// filesystem (file://), in-memory (memory:///, used by tests), and a
// minimal S3-compatible REST backend (s3://).
package objectstore

import (
	"context"
	"net/url"
	"time"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/bblog"
)

// Store is the byte-level contract every bundlebase component is built
// against. No component outside this package knows whether it is
// talking to a local disk, an in-process map, or a remote endpoint.
type Store interface {
	// Get returns the bytes stored at url, or a NotFound *bberrors.Error.
	Get(ctx context.Context, url string) ([]byte, error)
	// Put writes data to url unconditionally, overwriting any prior value.
	Put(ctx context.Context, url string, data []byte) error
	// PutIfAbsent writes data to url only if nothing is stored there yet.
	// Returns true if this call performed the write, false if the url was
	// already occupied (which is not itself an error — spec §4.1).
	PutIfAbsent(ctx context.Context, url string, data []byte) (bool, error)
	// List returns every url with the given prefix, in lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes the object at url. Deleting a missing object is not
	// an error.
	Delete(ctx context.Context, url string) error
}

// maxRetries bounds the exponential backoff retry policy of spec §4.1:
// writers retry Io/Timeout up to 5 attempts.
const maxRetries = 5

// withRetry retries fn on Io/Timeout errors with bounded exponential
// backoff, matching the writer retry policy of spec §4.1. Other error
// kinds propagate immediately.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	backoff := 20 * time.Millisecond
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return bberrors.New(bberrors.CanceledKind, "%s canceled", op)
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !bberrors.Is(err, bberrors.IoKind) && !bberrors.Is(err, bberrors.TimeoutKind) {
			return err
		}
		bblog.Warnf("%s attempt %d/%d failed: %v", op, attempt, maxRetries, err)
		select {
		case <-ctx.Done():
			return bberrors.New(bberrors.CanceledKind, "%s canceled", op)
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

// Open resolves a bundle-root (or any object) url to the Store
// implementation that owns its scheme. Every method on the returned
// Store is called with full urls of that same scheme — there is no
// separate bucket/prefix concept at this layer (spec §4.1).
func Open(rawURL string, cfg *Config) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, bberrors.Wrap(bberrors.InvalidUrlKind, err, "invalid url %q", rawURL)
	}
	switch u.Scheme {
	case "file", "":
		return NewLocal(cfg), nil
	case "memory":
		return sharedMemoryStore(), nil
	case "s3":
		return NewS3(cfg), nil
	default:
		return nil, bberrors.New(bberrors.InvalidUrlKind, "unrecognized url scheme %q", u.Scheme)
	}
}

// Scheme returns the url scheme, defaulting to "file" for bare paths.
func Scheme(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return "file"
	}
	return u.Scheme
}
