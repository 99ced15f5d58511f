package listing

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"arcadl/internal/model"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
	lastReq    *http.Request
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		category string
		page     int
		best     bool
		want     string
	}{
		{
			name:     "category query re-attached",
			base:     "https://x/b/c",
			category: "?p=1&category=2",
			page:     3,
			want:     "https://x/b/c?p=3&category=2",
		},
		{
			name:     "best mode appended",
			base:     "https://x/b/c",
			category: "?p=1&category=2",
			page:     3,
			best:     true,
			want:     "https://x/b/c?p=3&category=2&mode=best",
		},
		{
			name:     "href without category fragment",
			base:     "https://x/b/c",
			category: "/b/c",
			page:     7,
			want:     "https://x/b/c?p=7",
		},
		{
			name: "empty category href",
			base: "https://x/b/c",
			page: 1,
			want: "https://x/b/c?p=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildURL(tt.base, tt.category, tt.page, tt.best)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("BuildURL() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

const listingHTML = `
<html><body>
<a class="vrow" href="/b/live/100">
  <div class="vrow-preview"></div>
  <span class="badge">News</span>
  <span class="title">First article</span>
  <span class="col-rate">6</span>
  <span class="user-info">alice</span>
</a>
<a class="vrow" href="/b/live/101">
  <span class="title">No preview here</span>
  <span class="col-rate">10</span>
</a>
<a class="vrow" href="/b/live/102">
  <div class="vrow-preview"></div>
</a>
<a class="vrow notice" href="/b/live/1">
  <span class="title">Pinned notice, class does not match exactly</span>
</a>
</body></html>`

func TestFetchPage(t *testing.T) {
	transport := &mockTransport{body: listingHTML, statusCode: 200}
	f := New(transport)

	rows, err := f.FetchPage(context.Background(), "https://example.com/b/live?p=1")
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}

	six := 6
	ten := 10
	want := []model.ArticleSummary{
		{Href: "/b/live/100", Title: "First article", HasPreview: true, Score: &six, Category: "News", Uploader: "alice"},
		{Href: "/b/live/101", Title: "No preview here", Score: &ten},
		{Href: "/b/live/102", HasPreview: true},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	cookie, err := transport.lastReq.Cookie(sensitiveCookie)
	if err != nil || cookie.Value != "true" {
		t.Errorf("sensitive-content cookie not sent: %v", err)
	}
}

func TestFetchPageEmpty(t *testing.T) {
	f := New(&mockTransport{body: "<html><body></body></html>", statusCode: 200})
	rows, err := f.FetchPage(context.Background(), "https://example.com/b/live?p=99")
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestFetchPageErrors(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
	}{
		{name: "http error status", transport: &mockTransport{body: "gone", statusCode: 404}},
		{name: "network error", transport: &mockTransport{err: io.ErrUnexpectedEOF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport)
			if _, err := f.FetchPage(context.Background(), "https://example.com"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

const boardHTML = `
<html><body>
<div class="board-title"><a href="/">home</a><a href="/b/live">Live Board</a></div>
<div class="board-category">
  <a href="/b/live">All</a>
  <a href="/b/live?category=news">News</a>
  <a href="/b/live?category=talk">Talk</a>
</div>
</body></html>`

func TestRegisterSource(t *testing.T) {
	f := New(&mockTransport{body: boardHTML, statusCode: 200})

	profile, err := f.RegisterSource(context.Background(), "https://example.com/b/live")
	if err != nil {
		t.Fatalf("RegisterSource: %v", err)
	}

	want := model.SourceProfile{
		Name:    "Live Board",
		BaseURL: "https://example.com/b/live",
		Categories: []model.CategoryRef{
			{Href: "/b/live", Name: "All"},
			{Href: "/b/live?category=news", Name: "News"},
			{Href: "/b/live?category=talk", Name: "Talk"},
		},
	}
	if diff := cmp.Diff(want, profile); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterSourceMissingName(t *testing.T) {
	f := New(&mockTransport{body: "<html><body></body></html>", statusCode: 200})
	if _, err := f.RegisterSource(context.Background(), "https://example.com/b/x"); err == nil {
		t.Error("expected error for page without board title")
	}
}
