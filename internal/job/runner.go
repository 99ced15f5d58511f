// Package job orchestrates the download pipeline and its cancellation.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"sync"
	"sync/atomic"

	"arcadl/internal/article"
	"arcadl/internal/filter"
	"arcadl/internal/listing"
	"arcadl/internal/media"
	"arcadl/internal/model"
	"arcadl/internal/paths"
	"arcadl/internal/storage"
)

// Runner executes download jobs one at a time on a background worker. The
// foreground controls it through Start and Cancel only; results flow back on
// the event stream.
type Runner struct {
	listing *listing.Fetcher
	article *article.Fetcher
	saver   *media.Saver
	store   storage.Storage
	log     *slog.Logger

	baseDir  string
	saveMode model.SaveMode

	mu        sync.Mutex
	running   bool
	cancelled atomic.Bool
}

// Config wires a Runner's collaborators.
type Config struct {
	Listing  *listing.Fetcher
	Article  *article.Fetcher
	Saver    *media.Saver
	Store    storage.Storage
	Log      *slog.Logger
	BaseDir  string
	SaveMode model.SaveMode
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	return &Runner{
		listing:  cfg.Listing,
		article:  cfg.Article,
		saver:    cfg.Saver,
		store:    cfg.Store,
		log:      cfg.Log,
		baseDir:  cfg.BaseDir,
		saveMode: cfg.SaveMode,
	}
}

// Start launches the job on a background goroutine and returns its event
// stream. The stream carries exactly one EventDone and is closed after it.
// Only one job runs at a time.
func (r *Runner) Start(ctx context.Context, req model.JobRequest) (<-chan Event, error) {
	if req.StartPage < 1 || req.StartPage > req.EndPage {
		return nil, fmt.Errorf("invalid page range %d-%d", req.StartPage, req.EndPage)
	}
	if req.Category < 0 || req.Category >= len(req.Source.Categories) {
		return nil, fmt.Errorf("category index %d out of range", req.Category)
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, fmt.Errorf("a job is already running")
	}
	r.running = true
	r.cancelled.Store(false)
	r.mu.Unlock()

	events := make(chan Event, 64)
	go func() {
		defer close(events)
		defer func() {
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
		}()
		r.run(ctx, req, events)
	}()
	return events, nil
}

// Cancel requests cooperative cancellation. The worker observes the flag at
// page and article boundaries, never mid-asset-write; a worker blocked in a
// network call only sees it after that call returns.
func (r *Runner) Cancel() {
	r.cancelled.Store(true)
}

func (r *Runner) run(ctx context.Context, req model.JobRequest, events chan<- Event) {
	var stats Stats

	active, err := r.activeFilter(ctx, req)
	if err != nil {
		r.finish(ctx, req, events, model.StatusFailed, err, nil, stats)
		return
	}

	tag := sourceTag(req.Source.BaseURL)
	downloaded, err := r.store.ListDownloaded(ctx, tag)
	if err != nil {
		r.finish(ctx, req, events, model.StatusFailed, fmt.Errorf("seed dedup set: %w", err), nil, stats)
		return
	}
	dedup := NewDedup(downloaded)

	category := req.Source.Categories[req.Category]

	// Phase 1: scan the page range and queue article hrefs in discovery
	// order. Phase 2 never starts before this finishes, so a cancellation
	// here discards all queued work.
	var queue []string
	for page := req.StartPage; page <= req.EndPage; page++ {
		if r.cancelled.Load() {
			r.finish(ctx, req, events, model.StatusCancelled, nil, dedup, stats)
			return
		}

		pageURL := listing.BuildURL(req.Source.BaseURL, category.Href, page, req.BestOnly)
		rows, err := r.listing.FetchPage(ctx, pageURL)
		if err != nil {
			r.finish(ctx, req, events, model.StatusFailed, fmt.Errorf("page %d: %w", page, err), dedup, stats)
			return
		}
		stats.Pages++
		events <- Event{Kind: EventPage, Page: page, Message: fmt.Sprintf("%d rows", len(rows))}

		for _, row := range rows {
			// Uploader filtering is observation-only; surface the match but
			// never skip on it.
			if active.UploaderEnabled && row.Uploader != "" {
				events <- Event{Kind: EventLog, Page: page,
					Message: fmt.Sprintf("uploader %s: %s", row.Uploader, row.Title)}
			}
			decision := filter.EvaluateSummary(active, row)
			if !decision.Keep {
				stats.Skipped++
				events <- Event{Kind: EventSkip, Page: page, Message: decision.Reason}
				continue
			}
			queue = append(queue, row.Href)
		}
	}
	stats.Queued = len(queue)

	// Phase 2: process queued articles in discovery order.
	dir := paths.Dir(r.saveMode, r.baseDir, req.Source.Name, category.Name)
	if len(queue) > 0 {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			r.finish(ctx, req, events, model.StatusFailed, fmt.Errorf("create %s: %w", dir, err), dedup, stats)
			return
		}
	}

	for _, href := range queue {
		if r.cancelled.Load() {
			r.finish(ctx, req, events, model.StatusCancelled, nil, dedup, stats)
			return
		}

		ref, ok := article.ParseRef(href)
		if ok && dedup.Seen(ref.ID) {
			stats.Skipped++
			events <- Event{Kind: EventSkip, ArticleID: ref.ID, Message: "already downloaded"}
			continue
		}
		if !ok {
			r.log.Warn("article url does not match /b/{tag}/{id}, dedup bypassed", "href", href)
		}

		articleURL := absoluteURL(req.Source.BaseURL, href)
		saved, err := r.processArticle(ctx, articleURL, ref, ok, active, dir, events, &stats)
		if err != nil {
			r.finish(ctx, req, events, model.StatusFailed, err, dedup, stats)
			return
		}
		if saved && ok {
			dedup.Record(ref.ID)
		}
	}

	r.finish(ctx, req, events, model.StatusCompleted, nil, dedup, stats)
}

// processArticle fetches one article, applies detail-stage filtering, and
// saves its media. The bool result reports whether the article was kept.
func (r *Runner) processArticle(ctx context.Context, articleURL string, ref article.Ref, haveRef bool,
	active model.FilterSettings, dir string, events chan<- Event, stats *Stats) (bool, error) {

	detail, err := r.article.FetchDetail(ctx, articleURL)
	if err != nil {
		return false, err
	}

	decision := filter.EvaluateDetail(active, detail)
	if !decision.Keep {
		stats.Skipped++
		events <- Event{Kind: EventSkip, ArticleID: ref.ID, Message: decision.Reason}
		return false, nil
	}

	refPtr := &ref
	if !haveRef {
		refPtr = nil
	}
	for i, src := range detail.MediaURLs {
		asset := media.Asset(refPtr, i, src)
		if err := r.saver.Save(ctx, asset, dir); err != nil {
			return false, err
		}
		stats.Assets++
		events <- Event{Kind: EventSaved, ArticleID: ref.ID, Message: asset.Filename}
	}

	stats.Articles++
	events <- Event{Kind: EventArticle, ArticleID: ref.ID, Message: detail.Title}
	return true, nil
}

// FetchOne downloads the media of a single article, bypassing filters, dedup,
// and the job queue. It may run alongside a job; it shares nothing with one.
func (r *Runner) FetchOne(ctx context.Context, articleURL string) (int, error) {
	detail, err := r.article.FetchDetail(ctx, articleURL)
	if err != nil {
		return 0, err
	}

	ref, haveRef := article.ParseRef(articleURL)
	refPtr := &ref
	if !haveRef {
		refPtr = nil
	}

	dir := paths.Dir(model.SaveFlat, r.baseDir, "", "")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}

	for i, src := range detail.MediaURLs {
		asset := media.Asset(refPtr, i, src)
		if err := r.saver.Save(ctx, asset, dir); err != nil {
			return i, err
		}
	}
	return len(detail.MediaURLs), nil
}

// finish runs terminal-state bookkeeping and emits the final event. The dedup
// set is flushed on every terminal state so media already on disk is never
// refetched; counters and last-used selection update only on completion.
func (r *Runner) finish(ctx context.Context, req model.JobRequest, events chan<- Event,
	status model.JobStatus, cause error, dedup *Dedup, stats Stats) {

	if dedup != nil && len(dedup.Added()) > 0 {
		tag := sourceTag(req.Source.BaseURL)
		if err := r.store.RecordDownloaded(ctx, tag, dedup.Added()); err != nil {
			r.log.Error("flush downloaded set", "source", req.Source.Name, "error", err)
			if status == model.StatusCompleted {
				status, cause = model.StatusFailed, fmt.Errorf("flush downloaded set: %w", err)
			}
		}
	}

	if status == model.StatusCompleted {
		if err := r.store.CompleteJob(ctx, req.Source.ID, req.Category, req.Filter); err != nil {
			status, cause = model.StatusFailed, fmt.Errorf("update source counters: %w", err)
		}
	}

	events <- Event{Kind: EventDone, Status: status, Stats: stats, Err: cause}
}

func (r *Runner) activeFilter(ctx context.Context, req model.JobRequest) (model.FilterSettings, error) {
	if req.Filter != model.FilterDefault {
		return filter.Select(req.Filter, req.Source.Filter, model.FilterSettings{}), nil
	}
	def, err := r.store.GetDefaultFilter(ctx)
	if err != nil {
		return model.FilterSettings{}, fmt.Errorf("load default filter: %w", err)
	}
	return filter.Select(req.Filter, req.Source.Filter, def), nil
}

var boardTagExpr = regexp.MustCompile(`/b/(\w+)`)

// sourceTag extracts the board tag from a source base URL, e.g.
// "https://example.com/b/live" -> "live". Falls back to the whole URL when
// the path does not match, which still yields a stable dedup key.
func sourceTag(baseURL string) string {
	if m := boardTagExpr.FindStringSubmatch(baseURL); m != nil {
		return m[1]
	}
	return baseURL
}

// absoluteURL resolves a listing-row href against the source base URL.
func absoluteURL(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
