package assets

import (
	"context"
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend serves assets from a directory on disk.
type LocalBackend struct {
	Root          string
	PublicBaseURL string
}

func (b *LocalBackend) path(key string) string {
	// Clean against a rooted path so keys cannot climb out of Root.
	return filepath.Join(b.Root, filepath.FromSlash(filepath.Clean("/"+key)))
}

func (b *LocalBackend) Open(_ context.Context, key string) (io.ReadCloser, string, error) {
	f, err := os.Open(b.path(key))
	if err != nil {
		return nil, "", err
	}
	return f, mime.TypeByExtension(filepath.Ext(key)), nil
}

func (b *LocalBackend) PublicURL(_ context.Context, key string) (string, error) {
	if b.PublicBaseURL == "" {
		return "", errors.New("local storage has no public base url")
	}
	return strings.TrimRight(b.PublicBaseURL, "/") + "/" + strings.TrimLeft(key, "/"), nil
}
