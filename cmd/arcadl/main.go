package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"arcadl/internal/article"
	"arcadl/internal/config"
	"arcadl/internal/job"
	"arcadl/internal/listing"
	"arcadl/internal/media"
	"arcadl/internal/model"
	"arcadl/internal/notify"
	"arcadl/internal/storage"
)

func main() {
	registerURL := flag.String("register", "", "register a board by URL and exit")
	list := flag.Bool("list", false, "list registered sources and exit")
	articleURL := flag.String("url", "", "download a single article's media and exit")
	sourceName := flag.String("source", "", "source name to download from")
	category := flag.Int("category", -1, "category index (default: last used)")
	pages := flag.String("pages", "1", "page range, e.g. 3 or 1-5")
	filterMode := flag.String("filter", "", "filter mode: none, default or source (default: last used)")
	best := flag.Bool("best", false, "restrict the listing to best-rated articles")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	client := &http.Client{Timeout: 30 * time.Second}
	runner := job.NewRunner(job.Config{
		Listing:  listing.New(client),
		Article:  article.New(client),
		Saver:    media.NewSaver(client),
		Store:    store,
		Log:      log,
		BaseDir:  cfg.DownloadDir,
		SaveMode: cfg.Mode(),
	})

	switch {
	case *registerURL != "":
		go cancelOnSignal(sigCh, cancel)
		registerSource(ctx, store, client, log, *registerURL)
	case *list:
		go cancelOnSignal(sigCh, cancel)
		listSources(ctx, store, log)
	case *articleURL != "":
		go cancelOnSignal(sigCh, cancel)
		n, err := runner.FetchOne(ctx, *articleURL)
		if err != nil {
			log.Error("fetch article", "url", *articleURL, "error", err)
			os.Exit(1)
		}
		log.Info("article downloaded", "url", *articleURL, "files", n)
	case *sourceName != "":
		// First interrupt cancels cooperatively at the next page or article
		// boundary; the second aborts in-flight requests via the context.
		go func() {
			<-sigCh
			log.Info("cancelling, interrupt again to abort")
			runner.Cancel()
			<-sigCh
			cancel()
		}()
		runDownload(ctx, runner, store, cfg, log, *sourceName, *category, *pages, *filterMode, *best)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func cancelOnSignal(sigCh <-chan os.Signal, cancel context.CancelFunc) {
	<-sigCh
	cancel()
}

func registerSource(ctx context.Context, store storage.Storage, client listing.HTTPClient, log *slog.Logger, boardURL string) {
	profile, err := listing.New(client).RegisterSource(ctx, boardURL)
	if err != nil {
		log.Error("register source", "url", boardURL, "error", err)
		os.Exit(1)
	}
	if err := store.CreateSource(ctx, &profile); err != nil {
		log.Error("save source", "name", profile.Name, "error", err)
		os.Exit(1)
	}
	log.Info("source registered", "name", profile.Name, "categories", len(profile.Categories))
}

func listSources(ctx context.Context, store storage.Storage, log *slog.Logger) {
	sources, err := store.ListSources(ctx)
	if err != nil {
		log.Error("list sources", "error", err)
		os.Exit(1)
	}
	for _, s := range sources {
		marker := " "
		if s.Favorite {
			marker = "*"
		}
		fmt.Printf("%s %s  downloads=%d categories=%d\n", marker, s.Name, s.DownloadCount, len(s.Categories))
	}
}

func runDownload(ctx context.Context, runner *job.Runner, store storage.Storage, cfg *config.Config,
	log *slog.Logger, sourceName string, category int, pages, filterMode string, best bool) {

	source, err := store.GetSource(ctx, sourceName)
	if err != nil {
		log.Error("load source", "name", sourceName, "error", err)
		os.Exit(1)
	}

	start, end, err := parsePages(pages)
	if err != nil {
		log.Error("parse page range", "pages", pages, "error", err)
		os.Exit(1)
	}

	mode := source.LastFilter
	if filterMode != "" {
		var ok bool
		if mode, ok = model.ParseFilterMode(filterMode); !ok {
			log.Error("unknown filter mode", "mode", filterMode)
			os.Exit(1)
		}
	}
	if category < 0 {
		category = source.LastCategory
	}

	events, err := runner.Start(ctx, model.JobRequest{
		Source:    *source,
		Category:  category,
		StartPage: start,
		EndPage:   end,
		Filter:    mode,
		BestOnly:  best,
	})
	if err != nil {
		log.Error("start job", "source", sourceName, "error", err)
		os.Exit(1)
	}

	log.Info("job started", "source", source.Name,
		"category", source.Categories[category].Name,
		"pages", fmt.Sprintf("%d-%d", start, end), "filter", mode)

	done := consumeEvents(log, events)

	if cfg.NotificationsEnabled() {
		notifier, err := notify.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID, log)
		if err != nil {
			log.Error("create notifier", "error", err)
		} else {
			notifier.JobFinished(source.Name, done.Status, done.Stats, done.Err)
		}
	}

	if done.Status == model.StatusFailed {
		log.Error("job failed", "error", done.Err)
		os.Exit(1)
	}
	log.Info("job finished", "status", done.Status.String(),
		"pages", done.Stats.Pages, "articles", done.Stats.Articles,
		"files", done.Stats.Assets, "skipped", done.Stats.Skipped)
}

func consumeEvents(log *slog.Logger, events <-chan job.Event) job.Event {
	var done job.Event
	for ev := range events {
		switch ev.Kind {
		case job.EventPage:
			log.Info("page scanned", "page", ev.Page, "result", ev.Message)
		case job.EventSkip:
			log.Debug("skipped", "article", ev.ArticleID, "reason", ev.Message)
		case job.EventArticle:
			log.Info("article downloaded", "article", ev.ArticleID, "title", ev.Message)
		case job.EventSaved:
			log.Debug("file saved", "article", ev.ArticleID, "file", ev.Message)
		case job.EventLog:
			log.Info(ev.Message)
		case job.EventDone:
			done = ev
		}
	}
	return done
}

// parsePages parses "3" or "1-5" into an inclusive page range. Flipped bounds
// are normalized rather than rejected.
func parsePages(s string) (int, int, error) {
	from, to, found := strings.Cut(s, "-")
	start, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page %q", from)
	}
	end := start
	if found {
		if end, err = strconv.Atoi(strings.TrimSpace(to)); err != nil {
			return 0, 0, fmt.Errorf("invalid page %q", to)
		}
	}
	if start > end {
		start, end = end, start
	}
	if start < 1 {
		return 0, 0, fmt.Errorf("pages start at 1, got %d", start)
	}
	return start, end, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
