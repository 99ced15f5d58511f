package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"arcadl/internal/article"
	"arcadl/internal/listing"
	"arcadl/internal/media"
	"arcadl/internal/model"
	"arcadl/internal/storage"
)

// testSite serves two listing pages, one article, and its media, mirroring
// the shape of a real board.
type testSite struct {
	srv         *httptest.Server
	articleHits atomic.Int64
	restricted  bool
	pageEntered chan struct{}
	releasePage chan struct{}
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	site := &testSite{}

	mux := http.NewServeMux()
	mux.HandleFunc("/b/live", func(w http.ResponseWriter, r *http.Request) {
		if site.releasePage != nil {
			site.pageEntered <- struct{}{}
			<-site.releasePage
		}
		switch r.URL.Query().Get("p") {
		case "1":
			fmt.Fprintf(w, `
				<a class="vrow" href="/b/live/100">
				  <div class="vrow-preview"></div>
				  <span class="title">low score</span>
				  <span class="col-rate">4</span>
				</a>
				<a class="vrow" href="/b/live/101">
				  <div class="vrow-preview"></div>
				  <span class="title">good article</span>
				  <span class="col-rate">6</span>
				</a>`)
		case "2":
			fmt.Fprintf(w, `
				<a class="vrow" href="/b/live/102">
				  <span class="title">great but no preview</span>
				  <span class="col-rate">10</span>
				</a>`)
		}
	})
	mux.HandleFunc("/b/live/101", func(w http.ResponseWriter, r *http.Request) {
		site.articleHits.Add(1)
		if site.restricted {
			fmt.Fprint(w, "<html><head><title>⚠️ 제한된 콘텐츠</title></head><body></body></html>")
			return
		}
		fmt.Fprintf(w, `
			<html><head><title>good article</title></head><body>
			<div class="article-content">
			  body text
			  <img src="%s/media/a.png">
			  <img src="%s/media/b.png">
			</div>
			</body></html>`, site.srv.URL, site.srv.URL)
	})
	mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "bytes-of-%s", filepath.Base(r.URL.Path))
	})

	site.srv = httptest.NewServer(mux)
	t.Cleanup(site.srv.Close)
	return site
}

func newTestRunner(t *testing.T, site *testSite) (*Runner, storage.Storage, *model.SourceProfile, string) {
	t.Helper()

	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	src := &model.SourceProfile{
		Name:    "Live Board",
		BaseURL: site.srv.URL + "/b/live",
		Categories: []model.CategoryRef{
			{Href: "/b/live", Name: "All"},
		},
		Filter: model.FilterSettings{CombinedEnabled: true, CombinedMin: 5},
	}
	if err := store.CreateSource(context.Background(), src); err != nil {
		t.Fatalf("create source: %v", err)
	}

	dir := t.TempDir()
	client := site.srv.Client()
	runner := NewRunner(Config{
		Listing:  listing.New(client),
		Article:  article.New(client),
		Saver:    media.NewSaver(client),
		Store:    store,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		BaseDir:  dir,
		SaveMode: model.SaveFlat,
	})
	return runner, store, src, dir
}

func runJob(t *testing.T, runner *Runner, req model.JobRequest) (Event, []Event) {
	t.Helper()
	events, err := runner.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	return drain(t, events)
}

func drain(t *testing.T, events <-chan Event) (Event, []Event) {
	t.Helper()
	var all []Event
	for ev := range events {
		all = append(all, ev)
	}
	if len(all) == 0 || all[len(all)-1].Kind != EventDone {
		t.Fatal("stream did not end with EventDone")
	}
	return all[len(all)-1], all
}

func TestRunTwoPageScenario(t *testing.T) {
	site := newTestSite(t)
	runner, store, src, dir := newTestRunner(t, site)

	req := model.JobRequest{
		Source:    *src,
		Category:  0,
		StartPage: 1,
		EndPage:   2,
		Filter:    model.FilterSource,
	}
	done, _ := runJob(t, runner, req)

	if done.Status != model.StatusCompleted {
		t.Fatalf("status = %s, err = %v", done.Status, done.Err)
	}
	want := Stats{Pages: 2, Queued: 1, Skipped: 2, Articles: 1, Assets: 2}
	if diff := cmp.Diff(want, done.Stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	// Only the score-6 article's media was saved.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	wantFiles := []string{"live-101-0.png", "live-101-1.png"}
	if diff := cmp.Diff(wantFiles, names); diff != "" {
		t.Errorf("saved files mismatch (-want +got):\n%s", diff)
	}

	// Completion updates counters and the last-used selection.
	got, err := store.GetSource(context.Background(), src.Name)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if got.DownloadCount != 1 {
		t.Errorf("download count = %d, want 1", got.DownloadCount)
	}
	if got.LastFilter != model.FilterSource {
		t.Errorf("last filter = %s", got.LastFilter)
	}
}

func TestRunDedupIdempotence(t *testing.T) {
	site := newTestSite(t)
	runner, _, src, _ := newTestRunner(t, site)

	req := model.JobRequest{
		Source:    *src,
		Category:  0,
		StartPage: 1,
		EndPage:   2,
		Filter:    model.FilterSource,
	}

	done, _ := runJob(t, runner, req)
	if done.Status != model.StatusCompleted {
		t.Fatalf("first run: %s, err = %v", done.Status, done.Err)
	}
	firstHits := site.articleHits.Load()

	done, all := runJob(t, runner, req)
	if done.Status != model.StatusCompleted {
		t.Fatalf("second run: %s, err = %v", done.Status, done.Err)
	}
	if done.Stats.Articles != 0 || done.Stats.Assets != 0 {
		t.Errorf("second run downloaded %d articles, %d assets", done.Stats.Articles, done.Stats.Assets)
	}
	if hits := site.articleHits.Load(); hits != firstHits {
		t.Errorf("second run fetched article bodies: %d -> %d hits", firstHits, hits)
	}

	var sawDedupSkip bool
	for _, ev := range all {
		if ev.Kind == EventSkip && ev.Message == "already downloaded" {
			sawDedupSkip = true
		}
	}
	if !sawDedupSkip {
		t.Error("no dedup skip event on second run")
	}
}

func TestRunCancellation(t *testing.T) {
	site := newTestSite(t)
	site.pageEntered = make(chan struct{}, 1)
	site.releasePage = make(chan struct{})
	runner, store, src, _ := newTestRunner(t, site)

	events, err := runner.Start(context.Background(), model.JobRequest{
		Source:    *src,
		Category:  0,
		StartPage: 1,
		EndPage:   2,
		Filter:    model.FilterNone,
	})
	if err != nil {
		t.Fatalf("start job: %v", err)
	}

	// The worker is past the page-1 boundary check and blocked in the fetch;
	// the flag is observed at the next boundary.
	<-site.pageEntered
	runner.Cancel()
	close(site.releasePage)

	done, _ := drain(t, events)
	if done.Status != model.StatusCancelled {
		t.Fatalf("status = %s, err = %v", done.Status, done.Err)
	}
	if done.Err != nil {
		t.Errorf("cancellation carried an error payload: %v", done.Err)
	}
	if done.Stats.Pages != 1 {
		t.Errorf("pages scanned = %d, want 1", done.Stats.Pages)
	}

	// Counters untouched.
	got, err := store.GetSource(context.Background(), src.Name)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if got.DownloadCount != 0 {
		t.Errorf("download count = %d after cancel", got.DownloadCount)
	}
}

func TestRunRestrictedContentFatal(t *testing.T) {
	site := newTestSite(t)
	site.restricted = true
	runner, store, src, _ := newTestRunner(t, site)

	done, _ := runJob(t, runner, model.JobRequest{
		Source:    *src,
		Category:  0,
		StartPage: 1,
		EndPage:   1,
		Filter:    model.FilterSource,
	})

	if done.Status != model.StatusFailed {
		t.Fatalf("status = %s", done.Status)
	}
	if !errors.Is(done.Err, article.ErrRestrictedContent) {
		t.Errorf("err = %v, want ErrRestrictedContent", done.Err)
	}

	got, err := store.GetSource(context.Background(), src.Name)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if got.DownloadCount != 0 {
		t.Errorf("download count = %d after failure", got.DownloadCount)
	}
}

func TestStartValidation(t *testing.T) {
	site := newTestSite(t)
	runner, _, src, _ := newTestRunner(t, site)

	tests := []struct {
		name string
		req  model.JobRequest
	}{
		{
			name: "flipped page range",
			req:  model.JobRequest{Source: *src, StartPage: 5, EndPage: 2},
		},
		{
			name: "page zero",
			req:  model.JobRequest{Source: *src, StartPage: 0, EndPage: 2},
		},
		{
			name: "category out of range",
			req:  model.JobRequest{Source: *src, Category: 7, StartPage: 1, EndPage: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runner.Start(context.Background(), tt.req); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFetchOne(t *testing.T) {
	site := newTestSite(t)
	runner, _, _, dir := newTestRunner(t, site)

	n, err := runner.FetchOne(context.Background(), site.srv.URL+"/b/live/101")
	if err != nil {
		t.Fatalf("FetchOne: %v", err)
	}
	if n != 2 {
		t.Errorf("assets = %d, want 2", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "live-101-0.png")); err != nil {
		t.Errorf("asset not saved: %v", err)
	}
}
