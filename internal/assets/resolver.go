// Package assets resolves stored files (company logo, inspection photos) by backend.
package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// maxAssetBytes bounds how much of a single asset is read into memory.
const maxAssetBytes = 10 << 20

var (
	ErrUnknownBackend = errors.New("unknown asset backend")
	ErrEmptyKey       = errors.New("asset key is empty")
	ErrTooLarge       = errors.New("asset exceeds size limit")
)

// Backend is one storage location for assets.
type Backend interface {
	// Open returns the asset body and its content type when known.
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
	// PublicURL returns a URL a browser can fetch the asset from.
	PublicURL(ctx context.Context, key string) (string, error)
}

type registration struct {
	backend  Backend
	compress bool
}

// LogoOptions bound the size of inlined images coming from bulk storage.
type LogoOptions struct {
	MaxDimension int
	JPEGQuality  int
}

// Resolver dispatches asset references to the backend named by their discriminator.
type Resolver struct {
	mu       sync.RWMutex
	backends map[string]registration
	uploads  string
	logo     LogoOptions
}

func NewResolver(logo LogoOptions) *Resolver {
	if logo.MaxDimension <= 0 {
		logo.MaxDimension = 320
	}
	if logo.JPEGQuality <= 0 || logo.JPEGQuality > 100 {
		logo.JPEGQuality = 70
	}
	return &Resolver{backends: make(map[string]registration), logo: logo}
}

// Register adds a backend. Images from backends registered with compress are
// downscaled and re-encoded before inlining.
func (r *Resolver) Register(name string, b Backend, compress bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = registration{backend: b, compress: compress}
}

// SetUploadBackend names the backend that stores inspection photos.
func (r *Resolver) SetUploadBackend(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = name
}

func (r *Resolver) UploadBackend() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.uploads
}

func (r *Resolver) lookup(name string) (registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.backends[name]
	if !ok {
		return registration{}, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return reg, nil
}

// InlineImage loads the asset and returns it as a data URI.
func (r *Resolver) InlineImage(ctx context.Context, backend, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrEmptyKey
	}
	reg, err := r.lookup(backend)
	if err != nil {
		return "", err
	}

	body, contentType, err := reg.backend.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("open %s asset %q: %w", backend, key, err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxAssetBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s asset %q: %w", backend, key, err)
	}
	if len(data) > maxAssetBytes {
		return "", ErrTooLarge
	}

	if reg.compress {
		compressed, err := CompressImage(bytes.NewReader(data), r.logo.MaxDimension, r.logo.JPEGQuality)
		if err != nil {
			return "", fmt.Errorf("compress %s asset %q: %w", backend, key, err)
		}
		return DataURI("image/jpeg", compressed), nil
	}

	if contentType == "" || !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("asset %q is not an image (%s)", key, contentType)
	}
	return DataURI(contentType, data), nil
}

// PublicURL returns a browser-fetchable URL for one asset.
func (r *Resolver) PublicURL(ctx context.Context, backend, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrEmptyKey
	}
	reg, err := r.lookup(backend)
	if err != nil {
		return "", err
	}
	return reg.backend.PublicURL(ctx, key)
}

// PublicURLs resolves keys concurrently, preserving order.
func (r *Resolver) PublicURLs(ctx context.Context, backend string, keys []string) ([]string, error) {
	out := make([]string, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, key := range keys {
		g.Go(func() error {
			u, err := r.PublicURL(gctx, backend, key)
			if err != nil {
				return err
			}
			out[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func DataURI(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
