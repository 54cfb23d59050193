package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// URLBackend treats keys as absolute http(s) URLs.
type URLBackend struct {
	client *resty.Client
}

func NewURLBackend(client *resty.Client) *URLBackend {
	if client == nil {
		client = resty.New().
			SetHeader("User-Agent", "rentacar-contracts/1.0").
			SetTimeout(10 * time.Second)
	}
	return &URLBackend{client: client}
}

func (b *URLBackend) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if err := validateURL(key); err != nil {
		return nil, "", err
	}
	resp, err := b.client.R().SetContext(ctx).Get(key)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", key, err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("fetch %s: status %d", key, resp.StatusCode())
	}
	return io.NopCloser(bytes.NewReader(resp.Body())), resp.Header().Get("Content-Type"), nil
}

func (b *URLBackend) PublicURL(_ context.Context, key string) (string, error) {
	if err := validateURL(key); err != nil {
		return "", err
	}
	return key, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid asset url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid asset url scheme %q", u.Scheme)
	}
	return nil
}
