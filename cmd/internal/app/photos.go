package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"
)

// ErrResourceNotFound is returned by a ResourceFetcher for unknown refs.
var ErrResourceNotFound = errors.New("resource not found")

// ResourceVerifier checks the signature carried by a photo URL.
type ResourceVerifier interface {
	VerifyResource(name, tok string) bool
}

// ResourceFetcher resolves an opaque photo reference to its bytes.
type ResourceFetcher interface {
	Fetch(ctx context.Context, ref string) (io.ReadCloser, string, error)
}

// DirFetcher serves photo refs from a local directory. Refs cannot escape it.
type DirFetcher struct {
	root *os.Root
}

func NewDirFetcher(dir string) (*DirFetcher, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open photo dir: %w", err)
	}
	return &DirFetcher{root: root}, nil
}

func (d *DirFetcher) Fetch(_ context.Context, ref string) (io.ReadCloser, string, error) {
	name := path.Clean(strings.TrimPrefix(ref, "/"))
	if !fs.ValidPath(name) || name == "." {
		return nil, "", ErrResourceNotFound
	}

	f, err := d.root.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrResourceNotFound
		}
		return nil, "", err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, "", err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, "", ErrResourceNotFound
	}

	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return f, ct, nil
}

func (d *DirFetcher) Close() error { return d.root.Close() }

// photoHandler proxies signed photo refs. The sig query parameter must match
// the resource token minted when the candidate was sent to clients.
func photoHandler(log *slog.Logger, verifier ResourceVerifier, fetcher ResourceFetcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		ref, sig := q.Get("ref"), q.Get("sig")
		if ref == "" || sig == "" || !verifier.VerifyResource(ref, sig) {
			log.Info("photo.reject.signature", "remote", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		if fetcher == nil {
			http.Error(w, "photos not configured", http.StatusNotImplemented)
			return
		}

		body, ct, err := fetcher.Fetch(r.Context(), ref)
		if err != nil {
			if errors.Is(err, ErrResourceNotFound) {
				http.NotFound(w, r)
				return
			}
			log.Warn("photo.fetch.fail", "err", err)
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		defer func() { _ = body.Close() }()

		h := w.Header()
		h.Set("Content-Type", ct)
		h.Set("Cache-Control", "private, max-age=3600")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(w, body); err != nil {
			log.Debug("photo.copy.fail", "err", err)
		}
	})
}
