// Package article handles article detail retrieval and identifier extraction.
package article

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"arcadl/internal/model"
)

// restrictedTitle is the page title the site serves when content sits behind
// an age/sensitivity gate this client cannot pass. Seeing it means the site's
// gating rules changed and the whole job must stop.
const restrictedTitle = "⚠️ 제한된 콘텐츠"

// ErrRestrictedContent aborts the job; it is distinct from network failures so
// callers can tell "the site changed" apart from "the network flaked".
var ErrRestrictedContent = errors.New("restricted content gate encountered, client update needed")

var refExpr = regexp.MustCompile(`/b/(\w+)/(\d+)`)

// Ref identifies an article by the board tag and numeric suffix of its URL.
type Ref struct {
	SourceTag string
	ID        string
}

// ParseRef extracts an article reference from a URL or href. The second
// return is false when the path does not match the /b/{tag}/{id} shape;
// such articles bypass dedup and keep their URL basename as filename.
func ParseRef(url string) (Ref, bool) {
	m := refExpr.FindStringSubmatch(url)
	if m == nil {
		return Ref{}, false
	}
	return Ref{SourceTag: m[1], ID: m[2]}, true
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses article detail pages.
type Fetcher struct {
	client HTTPClient
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{client: client}
}

// FetchDetail retrieves one article page and extracts its metadata and media
// URLs (images first, then videos, in document order). Returns
// ErrRestrictedContent when the gate sentinel title is served.
func (f *Fetcher) FetchDetail(ctx context.Context, url string) (model.ArticleDetail, error) {
	var detail model.ArticleDetail

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return detail, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return detail, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return detail, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return detail, fmt.Errorf("parse article: %w", err)
	}

	detail.Title = strings.TrimSpace(doc.Find("head title").First().Text())
	if detail.Title == restrictedTitle {
		return detail, fmt.Errorf("article %s: %w", url, ErrRestrictedContent)
	}

	detail.Content = doc.Find(".article-content").First().Text()
	detail.Upvotes = voteCount(doc, 2)
	detail.Downvotes = voteCount(doc, 5)

	doc.Find(".article-content img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok && src != "" {
			detail.MediaURLs = append(detail.MediaURLs, src)
		}
	})
	doc.Find(".article-content video").Each(func(_ int, video *goquery.Selection) {
		if src, ok := video.Attr("src"); ok && src != "" {
			detail.MediaURLs = append(detail.MediaURLs, src)
			return
		}
		if src, ok := video.Find("source").First().Attr("src"); ok && src != "" {
			detail.MediaURLs = append(detail.MediaURLs, src)
		}
	})

	return detail, nil
}

func voteCount(doc *goquery.Document, position int) int {
	sel := fmt.Sprintf(".article-info .body:nth-child(%d)", position)
	v, err := strconv.Atoi(strings.TrimSpace(doc.Find(sel).First().Text()))
	if err != nil {
		return 0
	}
	return v
}
