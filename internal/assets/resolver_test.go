package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeDataURI(t *testing.T, uri string) (string, []byte) {
	t.Helper()
	require.True(t, strings.HasPrefix(uri, "data:"))
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ";base64,")
	require.True(t, ok)
	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	return meta, raw
}

type memBackend struct {
	data map[string][]byte
	err  error
}

func (m *memBackend) Open(_ context.Context, key string) (io.ReadCloser, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	d, ok := m.data[key]
	if !ok {
		return nil, "", os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(d)), "", nil
}

func (m *memBackend) PublicURL(_ context.Context, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "https://cdn.example.com/" + key, nil
}

func TestInlineImage_Local(t *testing.T) {
	root := t.TempDir()
	logo := pngBytes(t, 40, 20)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "branding"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "branding", "logo.png"), logo, 0o644))

	r := NewResolver(LogoOptions{})
	r.Register("local", &LocalBackend{Root: root}, false)

	uri, err := r.InlineImage(context.Background(), "local", "branding/logo.png")
	require.NoError(t, err)

	meta, raw := decodeDataURI(t, uri)
	assert.Equal(t, "image/png", meta)
	assert.Equal(t, logo, raw, "local images are inlined as stored")

	_, err = r.InlineImage(context.Background(), "local", "../../etc/passwd")
	assert.Error(t, err)
}

func TestInlineImage_CompressesBulkStorage(t *testing.T) {
	r := NewResolver(LogoOptions{MaxDimension: 100, JPEGQuality: 70})
	r.Register("s3", &memBackend{data: map[string][]byte{"logo.png": pngBytes(t, 800, 400)}}, true)

	uri, err := r.InlineImage(context.Background(), "s3", "logo.png")
	require.NoError(t, err)

	meta, raw := decodeDataURI(t, uri)
	assert.Equal(t, "image/jpeg", meta)

	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	again, err := r.InlineImage(context.Background(), "s3", "logo.png")
	require.NoError(t, err)
	assert.Equal(t, uri, again, "compression is deterministic")
}

func TestInlineImage_URL(t *testing.T) {
	logo := pngBytes(t, 10, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/logo.png" {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(logo)
	}))
	defer srv.Close()

	r := NewResolver(LogoOptions{})
	r.Register("url", NewURLBackend(nil), false)

	uri, err := r.InlineImage(context.Background(), "url", srv.URL+"/logo.png")
	require.NoError(t, err)
	meta, raw := decodeDataURI(t, uri)
	assert.Equal(t, "image/png", meta)
	assert.Equal(t, logo, raw)

	_, err = r.InlineImage(context.Background(), "url", srv.URL+"/missing.png")
	assert.Error(t, err)

	_, err = r.InlineImage(context.Background(), "url", "ftp://example.com/logo.png")
	assert.Error(t, err)
}

func TestInlineImage_Errors(t *testing.T) {
	r := NewResolver(LogoOptions{})
	r.Register("mem", &memBackend{data: map[string][]byte{"notes.txt": []byte("plain text")}}, false)

	_, err := r.InlineImage(context.Background(), "ftp", "x")
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = r.InlineImage(context.Background(), "mem", "")
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = r.InlineImage(context.Background(), "mem", "notes.txt")
	assert.Error(t, err)

	_, err = r.InlineImage(context.Background(), "mem", "missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPublicURLs(t *testing.T) {
	r := NewResolver(LogoOptions{})
	r.Register("mem", &memBackend{}, false)
	r.Register("broken", &memBackend{err: errors.New("presign failed")}, false)
	r.Register("local", &LocalBackend{Root: t.TempDir(), PublicBaseURL: "https://files.example.com/uploads/"}, false)

	keys := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"}
	urls, err := r.PublicURLs(context.Background(), "mem", keys)
	require.NoError(t, err)
	for i, k := range keys {
		assert.Equal(t, "https://cdn.example.com/"+k, urls[i])
	}

	_, err = r.PublicURLs(context.Background(), "broken", keys)
	assert.Error(t, err)

	u, err := r.PublicURL(context.Background(), "local", "/inspections/1/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/uploads/inspections/1/a.jpg", u)

	empty, err := r.PublicURLs(context.Background(), "mem", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{800, 400, 320, 320, 160},
		{400, 800, 320, 160, 320},
		{100, 50, 320, 100, 50},
		{1000, 1, 320, 320, 1},
	}
	for _, tt := range tests {
		w, h := fitWithin(tt.w, tt.h, tt.max)
		assert.Equal(t, tt.wantW, w)
		assert.Equal(t, tt.wantH, h)
	}
}
