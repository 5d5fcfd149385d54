// Package bundlebase is the top-level facade of spec §2's control
// flow: create, open, or extend a bundle to get a Bundle handle, stage
// operations on it (Attach, Filter, Join, CreateView, ...), and Commit.
// Everything interesting lives in internal/ — this file is only the
// entrypoint that wires a commitlog.StoreFactory and an author before
// handing control to internal/builder.
package bundlebase

import (
	"context"

	"github.com/nvoxland/bundlebase/internal/bbconfig"
	"github.com/nvoxland/bundlebase/internal/builder"
	"github.com/nvoxland/bundlebase/internal/commitlog"
	"github.com/nvoxland/bundlebase/internal/objectstore"
)

// Bundle is the handle returned by Create/Open/Extend. Its operation
// methods (Attach, Filter, Join, CreateIndex, CreateView, ...), Status,
// Commit, and History all live on internal/builder.Builder.
type Bundle = builder.Builder

// StoreFactory resolves a bundle url's scheme (file://, memory:///,
// s3://) to the Store that owns it, honoring cfg's per-url-prefix
// overrides (spec §4.1). cfg may be nil.
func StoreFactory(cfg *objectstore.Config) commitlog.StoreFactory {
	return func(bundleURL string) (objectstore.Store, error) {
		return objectstore.Open(bundleURL, cfg)
	}
}

func resolveAuthor(author string) string {
	if author != "" {
		return author
	}
	return bbconfig.Author()
}

// Create initializes a brand-new bundle at url with a fresh BundleId
// (spec §4.9 "create"). Returns BundleAlreadyExists if url already
// holds one. author defaults to bbconfig.Author() when empty.
func Create(ctx context.Context, url string, cfg *objectstore.Config, author string) (*Bundle, error) {
	return builder.Create(ctx, StoreFactory(cfg), url, resolveAuthor(author))
}

// Open loads the bundle at url, replaying its full commit history
// (including any FROM ancestors) into a resolved Bundle.
func Open(ctx context.Context, url string, cfg *objectstore.Config, author string) (*Bundle, error) {
	return builder.Open(ctx, StoreFactory(cfg), url, resolveAuthor(author))
}

// Extend creates a new bundle at newURL whose init commit FROMs url,
// inheriting its BundleID and full commit history (spec §4.9 "extend").
func Extend(ctx context.Context, url, newURL string, cfg *objectstore.Config, author string) (*Bundle, error) {
	return builder.Extend(ctx, StoreFactory(cfg), url, newURL, resolveAuthor(author))
}
