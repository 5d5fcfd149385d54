package objectstore

import (
	"context"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nvoxland/bundlebase/internal/bberrors"
)

// Local is the file:// backed Store implementation.
type Local struct {
	cfg *Config
}

// NewLocal returns a Local store honoring per-prefix Config overrides
// (currently unused by the local backend itself, but resolved so
// callers can read e.g. a configured umask-equivalent in the future).
func NewLocal(cfg *Config) *Local {
	return &Local{cfg: cfg}
}

func toPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", bberrors.Wrap(bberrors.InvalidUrlKind, err, "invalid url %q", rawURL)
	}
	if u.Scheme != "" && u.Scheme != "file" {
		return "", bberrors.New(bberrors.InvalidUrlKind, "not a file:// url: %q", rawURL)
	}
	if u.Path != "" {
		return u.Path, nil
	}
	return rawURL, nil
}

func (l *Local) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, bberrors.New(bberrors.CanceledKind, "get canceled")
	}
	path, err := toPath(rawURL)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, bberrors.Wrap(bberrors.NotFoundKind, err, "no object at %q", rawURL)
		}
		return nil, bberrors.Wrap(bberrors.IoKind, err, "reading %q", rawURL)
	}
	return data, nil
}

func (l *Local) Put(ctx context.Context, rawURL string, data []byte) error {
	return withRetry(ctx, "put", func() error {
		path, err := toPath(rawURL)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return bberrors.Wrap(bberrors.IoKind, err, "creating parent dir for %q", rawURL)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return bberrors.Wrap(bberrors.IoKind, err, "writing %q", rawURL)
		}
		return nil
	})
}

func (l *Local) PutIfAbsent(ctx context.Context, rawURL string, data []byte) (bool, error) {
	var wrote bool
	err := withRetry(ctx, "put_if_absent", func() error {
		path, err := toPath(rawURL)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return bberrors.Wrap(bberrors.IoKind, err, "creating parent dir for %q", rawURL)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			if os.IsExist(err) {
				wrote = false
				return nil
			}
			return bberrors.Wrap(bberrors.IoKind, err, "creating %q", rawURL)
		}
		defer f.Close()
		if _, err := f.Write(data); err != nil {
			return bberrors.Wrap(bberrors.IoKind, err, "writing %q", rawURL)
		}
		wrote = true
		return nil
	})
	return wrote, err
}

func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, bberrors.New(bberrors.CanceledKind, "list canceled")
	}
	path, err := toPath(prefix)
	if err != nil {
		return nil, err
	}
	// Results are returned in the same form as prefix: file:// urls for a
	// file:// prefix, bare paths for a bare path.
	urlPrefix := ""
	if strings.HasPrefix(prefix, "file://") {
		urlPrefix = "file://"
	}
	dir := path
	filePrefix := ""
	if info, statErr := os.Stat(path); statErr != nil || !info.IsDir() {
		dir = filepath.Dir(path)
		filePrefix = filepath.Base(path)
	}
	var results []string
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(dir, p)
		if filePrefix != "" && !strings.HasPrefix(filepath.Base(p), filePrefix) && !strings.HasPrefix(rel, filePrefix) {
			return nil
		}
		if strings.HasPrefix(p, path) {
			results = append(results, urlPrefix+p)
		}
		return nil
	})
	if walkErr != nil {
		return nil, bberrors.Wrap(bberrors.IoKind, walkErr, "listing %q", prefix)
	}
	sort.Strings(results)
	return results, nil
}

func (l *Local) Delete(ctx context.Context, rawURL string) error {
	return withRetry(ctx, "delete", func() error {
		path, err := toPath(rawURL)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return bberrors.Wrap(bberrors.IoKind, err, "deleting %q", rawURL)
		}
		return nil
	})
}
