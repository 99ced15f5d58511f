// Package media normalizes, names, and saves article media assets.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"arcadl/internal/article"
	"arcadl/internal/model"
)

const defaultExt = ".jpg"

// Media responses larger than this are treated as abuse of the pipe.
const maxAssetSize = 512 * 1024 * 1024

// NormalizeURL rewrites scheme-relative asset URLs ("//host/...") to https.
// Absolute URLs are returned unchanged.
func NormalizeURL(src string) string {
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	return src
}

// Filename derives the destination name for the asset at the given index.
// With a known article reference the name is {tag}-{id}-{index}{ext}; the
// index keeps names unique inside one article even when a URL recurs. Without
// a reference the URL's own basename is kept.
func Filename(ref *article.Ref, index int, src string) string {
	base := basename(src)
	if ref == nil {
		return base
	}
	ext := path.Ext(base)
	if ext == "" {
		ext = defaultExt
	}
	return fmt.Sprintf("%s-%s-%d%s", ref.SourceTag, ref.ID, index, ext)
}

func basename(src string) string {
	if u, err := url.Parse(src); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(src)
}

// Asset builds the fully-resolved MediaAsset for one discovered source URL.
func Asset(ref *article.Ref, index int, src string) model.MediaAsset {
	return model.MediaAsset{
		URL:      NormalizeURL(src),
		Filename: Filename(ref, index, src),
	}
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Saver downloads asset bytes and writes them to disk.
type Saver struct {
	client HTTPClient
}

// NewSaver creates a Saver with the given HTTP client.
func NewSaver(client HTTPClient) *Saver {
	return &Saver{client: client}
}

// Save fetches the asset and writes it under dir, which must already exist.
// Writes are at-least-once: a crash mid-write can leave a partial file behind.
func (s *Saver) Save(ctx context.Context, asset model.MediaAsset, dir string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get %s: %w", asset.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, asset.URL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize))
	if err != nil {
		return fmt.Errorf("read asset %s: %w", asset.URL, err)
	}

	dest := filepath.Join(dir, asset.Filename)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}
