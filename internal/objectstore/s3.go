package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nvoxland/bundlebase/internal/bberrors"
)

// S3 is a minimal S3-compatible REST backend for s3:// urls. It speaks
// plain path-style HTTP PUT/GET/DELETE against the configured
// "endpoint" (no request signing); List is not supported and always
// returns an Io error. It suits the allow_http,
// MinIO-style endpoints the config keys in spec §6 describe. No repo in
// the retrieval pack vendors an AWS SDK or a SigV4 signer (see
// DESIGN.md), so production S3 access is expected to sit behind an
// endpoint that accepts unsigned or pre-authenticated requests; this
// keeps the object-store contract real without fabricating a dependency.
type S3 struct {
	cfg    *Config
	client *http.Client
}

func NewS3(cfg *Config) *S3 {
	return &S3{cfg: cfg, client: &http.Client{}}
}

func (s *S3) endpoint(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", bberrors.Wrap(bberrors.InvalidUrlKind, err, "invalid url %q", rawURL)
	}
	kv := s.cfg.Resolve(rawURL)
	endpoint := kv["endpoint"]
	if endpoint == "" {
		return "", bberrors.New(bberrors.ConfigErrorKind, "s3 url %q requires an \"endpoint\" config override", rawURL)
	}
	scheme := "https"
	if kv["allow_http"] == "true" {
		scheme = "http"
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	return fmt.Sprintf("%s://%s/%s/%s", scheme, strings.TrimSuffix(endpoint, "/"), bucket, key), nil
}

func (s *S3) authHeader(rawURL string) (string, string) {
	kv := s.cfg.Resolve(rawURL)
	return kv["access_key_id"], kv["secret_access_key"]
}

func (s *S3) do(ctx context.Context, method, rawURL string, body []byte) (*http.Response, error) {
	target, err := s.endpoint(rawURL)
	if err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, bberrors.Wrap(bberrors.IoKind, err, "building %s request to %q", method, rawURL)
	}
	if keyID, secret := s.authHeader(rawURL); keyID != "" {
		req.SetBasicAuth(keyID, secret)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, bberrors.Wrap(bberrors.IoKind, err, "%s %q", method, rawURL)
	}
	return resp, nil
}

func (s *S3) Get(ctx context.Context, rawURL string) ([]byte, error) {
	var data []byte
	err := withRetry(ctx, "get", func() error {
		resp, err := s.do(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			data, err = io.ReadAll(resp.Body)
			if err != nil {
				return bberrors.Wrap(bberrors.IoKind, err, "reading body for %q", rawURL)
			}
			return nil
		case http.StatusNotFound:
			return bberrors.NotFound("no object at %q", rawURL)
		case http.StatusForbidden, http.StatusUnauthorized:
			return bberrors.New(bberrors.AuthDeniedKind, "denied for %q", rawURL)
		default:
			return bberrors.New(bberrors.IoKind, "unexpected status %d for %q", resp.StatusCode, rawURL)
		}
	})
	return data, err
}

func (s *S3) Put(ctx context.Context, rawURL string, data []byte) error {
	return withRetry(ctx, "put", func() error {
		resp, err := s.do(ctx, http.MethodPut, rawURL, data)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return bberrors.New(bberrors.IoKind, "unexpected status %d putting %q", resp.StatusCode, rawURL)
	})
}

func (s *S3) PutIfAbsent(ctx context.Context, rawURL string, data []byte) (bool, error) {
	if _, err := s.Get(ctx, rawURL); err == nil {
		return false, nil
	} else if !bberrors.Is(err, bberrors.NotFoundKind) {
		return false, err
	}
	if err := s.Put(ctx, rawURL, data); err != nil {
		return false, err
	}
	return true, nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, bberrors.New(bberrors.IoKind, "listing is not supported by the minimal s3 backend for %q", prefix)
}

func (s *S3) Delete(ctx context.Context, rawURL string) error {
	return withRetry(ctx, "delete", func() error {
		resp, err := s.do(ctx, http.MethodDelete, rawURL, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return nil
	})
}
