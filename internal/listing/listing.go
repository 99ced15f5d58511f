// Package listing handles listing-page retrieval, parsing, and source registration.
package listing

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"arcadl/internal/model"
)

// The listing endpoint hides sensitive rows unless this cookie is present.
const sensitiveCookie = "allow_sensitive_media"

var categoryQueryExpr = regexp.MustCompile(`\?(category=.+)`)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// BuildURL assembles a listing page URL from a source base URL, the selected
// category href, a page number, and the best-only flag. The category query is
// re-attached only when the href carries a "?category=..." fragment.
func BuildURL(baseURL, categoryHref string, page int, best bool) string {
	var category string
	if m := categoryQueryExpr.FindStringSubmatch(categoryHref); m != nil {
		category = "&" + m[1]
	}
	url := fmt.Sprintf("%s?p=%d%s", baseURL, page, category)
	if best {
		url += "&mode=best"
	}
	return url
}

// Fetcher downloads and parses listing pages.
type Fetcher struct {
	client HTTPClient
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{client: client}
}

// FetchPage retrieves one listing page and returns its article rows. An empty
// page yields an empty slice and no error. Rows missing the title or preview
// elements are still emitted with zero-valued fields so the filter engine
// makes the skip decision uniformly.
func (f *Fetcher) FetchPage(ctx context.Context, url string) ([]model.ArticleSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: sensitiveCookie, Value: "true"})

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	rows := make([]model.ArticleSummary, 0)
	doc.Find("[class=vrow]").Each(func(_ int, row *goquery.Selection) {
		rows = append(rows, parseRow(row))
	})
	return rows, nil
}

func parseRow(row *goquery.Selection) model.ArticleSummary {
	href, _ := row.Attr("href")
	summary := model.ArticleSummary{
		Href:       href,
		Title:      strings.TrimSpace(row.Find(".title").First().Text()),
		HasPreview: row.Find(".vrow-preview").Length() > 0,
		Category:   strings.TrimSpace(row.Find(".badge").First().Text()),
		Uploader:   strings.TrimSpace(row.Find(".user-info").First().Text()),
	}
	rate := strings.TrimSpace(row.Find(".col-rate").First().Text())
	if v, err := strconv.Atoi(rate); err == nil {
		summary.Score = &v
	}
	return summary
}

// RegisterSource fetches a board page and extracts its name and category
// links. The resulting profile carries no filter settings yet.
func (f *Fetcher) RegisterSource(ctx context.Context, boardURL string) (model.SourceProfile, error) {
	var profile model.SourceProfile

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, boardURL, nil)
	if err != nil {
		return profile, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return profile, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return profile, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return profile, fmt.Errorf("parse board page: %w", err)
	}

	profile.Name = strings.TrimSpace(doc.Find(".board-title > a:nth-child(2)").First().Text())
	if profile.Name == "" {
		return profile, fmt.Errorf("no board name found at %s", boardURL)
	}
	profile.BaseURL = boardURL

	doc.Find(".board-category a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		profile.Categories = append(profile.Categories, model.CategoryRef{
			Href: href,
			Name: strings.TrimSpace(a.Text()),
		})
	})
	if len(profile.Categories) == 0 {
		return profile, fmt.Errorf("no categories found at %s", boardURL)
	}

	return profile, nil
}
