// Package packstore is the content-addressed layer over objectstore
// (spec §3 "Pack", §4.2). A pack is an immutable byte blob identified by
// a fingerprint derived from its content; Put is idempotent.
package packstore

import (
	"context"
	"fmt"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/fingerprint"
	"github.com/nvoxland/bundlebase/internal/objectstore"
)

// Store writes and reads packs under <bundle>/_bundlebase/packs/<fingerprint>.
type Store struct {
	objects   objectstore.Store
	bundleURL string
}

func New(objects objectstore.Store, bundleURL string) *Store {
	return &Store{objects: objects, bundleURL: bundleURL}
}

// URL returns the pack object url for a fingerprint.
func (s *Store) URL(fp string) string {
	return fmt.Sprintf("%s/_bundlebase/packs/%s", s.bundleURL, fp)
}

// Put computes content's fingerprint and stores it, returning the
// fingerprint. Calling Put repeatedly with identical content is a no-op
// after the first call (PutIfAbsent semantics) — pack writes are
// idempotent across authors (spec §4.2).
func (s *Store) Put(ctx context.Context, content []byte) (string, error) {
	fp := fingerprint.Of(content)
	if _, err := s.objects.PutIfAbsent(ctx, s.URL(fp), content); err != nil {
		return "", err
	}
	return fp, nil
}

// Get returns the content stored under fingerprint fp.
func (s *Store) Get(ctx context.Context, fp string) ([]byte, error) {
	return s.objects.Get(ctx, s.URL(fp))
}

// Exists reports whether fp is present in the store. It fetches the
// pack's content to find out and discards it.
func (s *Store) Exists(ctx context.Context, fp string) (bool, error) {
	_, err := s.objects.Get(ctx, s.URL(fp))
	if err == nil {
		return true, nil
	}
	if bberrors.Is(err, bberrors.NotFoundKind) {
		return false, nil
	}
	return false, err
}
