// Package source implements spec §4.7: declared external data sources
// (URL prefix + glob patterns + decoder function name), diffed against
// already-attached files to produce new Attach operations.
package source

import (
	"context"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/nvoxland/bundlebase/internal/objectstore"
	"github.com/nvoxland/bundlebase/internal/plan"
)

// CheckRefresh lists def.URLPrefix and returns the URLs that match any
// of def.Patterns and are not already present in attached, in
// lexicographic order (spec §4.7 "Ordering: pending URLs are attached
// in lexicographic order to give deterministic replays").
func CheckRefresh(ctx context.Context, store objectstore.Store, def plan.SourceDef, attached map[string]bool) ([]string, error) {
	entries, err := store.List(ctx, def.URLPrefix)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, url := range entries {
		if attached[url] {
			continue
		}
		rel := strings.TrimPrefix(url, strings.TrimSuffix(def.URLPrefix, "/")+"/")
		if matchesAny(rel, def.Patterns) {
			pending = append(pending, url)
		}
	}
	sort.Strings(pending)
	return pending, nil
}

func matchesAny(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}
