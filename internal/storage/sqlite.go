package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"arcadl/internal/model"
	"arcadl/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// defaultOwner is the filter_settings row holding the global default filter.
const defaultOwner = 0

// Blacklist kinds as stored in the blacklist_words table.
const (
	kindTitle    = "title"
	kindContent  = "content"
	kindUploader = "uploader"
	kindCategory = "category"
)

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A :memory: dsn is one database per connection; a single connection keeps
	// it coherent and serializes file-backed writers too.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateSource inserts a source with its categories and filter settings,
// populating ID and CreatedAt.
func (s *SQLite) CreateSource(ctx context.Context, source *model.SourceProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO sources (name, base_url, last_category, last_filter, favorite, download_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		source.Name, source.BaseURL, source.LastCategory, source.LastFilter.String(),
		boolToInt(source.Favorite), source.DownloadCount, now,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	for i, cat := range source.Categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (source_id, position, href, name) VALUES (?, ?, ?, ?)`,
			id, i, cat.Href, cat.Name,
		); err != nil {
			return fmt.Errorf("insert category: %w", err)
		}
	}

	if err := writeFilter(ctx, tx, id, source.Filter); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	source.ID = id
	source.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetSource returns a single source, with categories and filter, by name.
func (s *SQLite) GetSource(ctx context.Context, name string) (*model.SourceProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, base_url, last_category, last_filter, favorite, download_count, created_at
		 FROM sources WHERE name = ?`, name,
	)
	source, err := scanSource(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadSourceDetails(ctx, source); err != nil {
		return nil, err
	}
	return source, nil
}

// ListSources returns all sources, favorites first, then by download count
// descending.
func (s *SQLite) ListSources(ctx context.Context) ([]model.SourceProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, base_url, last_category, last_filter, favorite, download_count, created_at
		 FROM sources ORDER BY favorite DESC, download_count DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []model.SourceProfile
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *source)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range sources {
		if err := s.loadSourceDetails(ctx, &sources[i]); err != nil {
			return nil, err
		}
	}
	return sources, nil
}

// DeleteSource removes a source with its categories, filter, and blacklists.
// The downloaded-article set is keyed by source tag and survives deletion.
func (s *SQLite) DeleteSource(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM sources WHERE name = ?`, name).Scan(&id); err != nil {
		return fmt.Errorf("find source: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM blacklist_words WHERE owner_id = ?`, id); err != nil {
		return fmt.Errorf("delete blacklists: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM filter_settings WHERE owner_id = ?`, id); err != nil {
		return fmt.Errorf("delete filter: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("delete categories: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return tx.Commit()
}

// AddCategory appends a category to a source. Categories are append-only so
// persisted last-category indexes stay valid.
func (s *SQLite) AddCategory(ctx context.Context, sourceID int64, ref model.CategoryRef) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (source_id, position, href, name)
		 SELECT ?, COALESCE(MAX(position) + 1, 0), ?, ? FROM categories WHERE source_id = ?`,
		sourceID, ref.Href, ref.Name, sourceID,
	)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// SetFavorite flips the favorite flag of a source.
func (s *SQLite) SetFavorite(ctx context.Context, sourceID int64, favorite bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET favorite = ? WHERE id = ?`, boolToInt(favorite), sourceID,
	)
	if err != nil {
		return fmt.Errorf("set favorite: %w", err)
	}
	return nil
}

// UpdateSourceFilter replaces a source's filter settings and blacklists.
func (s *SQLite) UpdateSourceFilter(ctx context.Context, sourceID int64, settings model.FilterSettings) error {
	return s.replaceFilter(ctx, sourceID, settings)
}

// GetDefaultFilter returns the global default filter settings.
func (s *SQLite) GetDefaultFilter(ctx context.Context) (model.FilterSettings, error) {
	settings, err := s.loadFilter(ctx, defaultOwner)
	if err != nil {
		return model.FilterSettings{}, err
	}
	return *settings, nil
}

// UpdateDefaultFilter replaces the global default filter settings.
func (s *SQLite) UpdateDefaultFilter(ctx context.Context, settings model.FilterSettings) error {
	return s.replaceFilter(ctx, defaultOwner, settings)
}

// CompleteJob increments the source's download counter and records the
// last-used category and filter mode.
func (s *SQLite) CompleteJob(ctx context.Context, sourceID int64, categoryIndex int, mode model.FilterMode) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET download_count = download_count + 1, last_category = ?, last_filter = ?
		 WHERE id = ?`,
		categoryIndex, mode.String(), sourceID,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// ListDownloaded returns all article identifiers already saved for a source tag.
func (s *SQLite) ListDownloaded(ctx context.Context, sourceTag string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT article_id FROM downloaded_articles WHERE source_tag = ? ORDER BY article_id`, sourceTag,
	)
	if err != nil {
		return nil, fmt.Errorf("query downloaded: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan downloaded: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordDownloaded stores a batch of article identifiers. Already-recorded
// identifiers are ignored, so the flush at job end is idempotent.
func (s *SQLite) RecordDownloaded(ctx context.Context, sourceTag string, articleIDs []string) error {
	if len(articleIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	for _, id := range articleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO downloaded_articles (source_tag, article_id, downloaded_at) VALUES (?, ?, ?)`,
			sourceTag, id, now,
		); err != nil {
			return fmt.Errorf("record downloaded: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) loadSourceDetails(ctx context.Context, source *model.SourceProfile) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT href, name FROM categories WHERE source_id = ? ORDER BY position`, source.ID,
	)
	if err != nil {
		return fmt.Errorf("query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ref model.CategoryRef
		if err := rows.Scan(&ref.Href, &ref.Name); err != nil {
			return fmt.Errorf("scan category: %w", err)
		}
		source.Categories = append(source.Categories, ref)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	settings, err := s.loadFilter(ctx, source.ID)
	if err != nil {
		return err
	}
	source.Filter = *settings
	return nil
}

func (s *SQLite) loadFilter(ctx context.Context, ownerID int64) (*model.FilterSettings, error) {
	var f model.FilterSettings
	var title, content, uploader, upvote, downvote, combined, category int
	err := s.db.QueryRowContext(ctx,
		`SELECT title_enabled, content_enabled, uploader_enabled,
		        upvote_enabled, upvote_min, downvote_enabled, downvote_max,
		        combined_enabled, combined_min, category_enabled
		 FROM filter_settings WHERE owner_id = ?`, ownerID,
	).Scan(&title, &content, &uploader,
		&upvote, &f.UpvoteMin, &downvote, &f.DownvoteMax,
		&combined, &f.CombinedMin, &category)
	if err != nil {
		return nil, fmt.Errorf("scan filter: %w", err)
	}
	f.TitleEnabled = title == 1
	f.ContentEnabled = content == 1
	f.UploaderEnabled = uploader == 1
	f.UpvoteEnabled = upvote == 1
	f.DownvoteEnabled = downvote == 1
	f.CombinedEnabled = combined == 1
	f.CategoryEnabled = category == 1

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, word FROM blacklist_words WHERE owner_id = ? ORDER BY kind, position`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query blacklists: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var kind, word string
		if err := rows.Scan(&kind, &word); err != nil {
			return nil, fmt.Errorf("scan blacklist: %w", err)
		}
		switch kind {
		case kindTitle:
			f.TitleBlacklist = append(f.TitleBlacklist, word)
		case kindContent:
			f.ContentBlacklist = append(f.ContentBlacklist, word)
		case kindUploader:
			f.UploaderBlacklist = append(f.UploaderBlacklist, word)
		case kindCategory:
			f.CategoryBlacklist = append(f.CategoryBlacklist, word)
		}
	}
	return &f, rows.Err()
}

func (s *SQLite) replaceFilter(ctx context.Context, ownerID int64, settings model.FilterSettings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM filter_settings WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("clear filter: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM blacklist_words WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("clear blacklists: %w", err)
	}
	if err := writeFilter(ctx, tx, ownerID, settings); err != nil {
		return err
	}
	return tx.Commit()
}

func writeFilter(ctx context.Context, tx *sql.Tx, ownerID int64, f model.FilterSettings) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO filter_settings (owner_id, title_enabled, content_enabled, uploader_enabled,
		     upvote_enabled, upvote_min, downvote_enabled, downvote_max,
		     combined_enabled, combined_min, category_enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ownerID, boolToInt(f.TitleEnabled), boolToInt(f.ContentEnabled), boolToInt(f.UploaderEnabled),
		boolToInt(f.UpvoteEnabled), f.UpvoteMin, boolToInt(f.DownvoteEnabled), f.DownvoteMax,
		boolToInt(f.CombinedEnabled), f.CombinedMin, boolToInt(f.CategoryEnabled),
	)
	if err != nil {
		return fmt.Errorf("insert filter: %w", err)
	}

	blacklists := []struct {
		kind  string
		words []string
	}{
		{kindTitle, f.TitleBlacklist},
		{kindContent, f.ContentBlacklist},
		{kindUploader, f.UploaderBlacklist},
		{kindCategory, f.CategoryBlacklist},
	}
	for _, bl := range blacklists {
		for i, word := range bl.words {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO blacklist_words (owner_id, kind, position, word) VALUES (?, ?, ?, ?)`,
				ownerID, bl.kind, i, word,
			); err != nil {
				return fmt.Errorf("insert blacklist word: %w", err)
			}
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (*model.SourceProfile, error) {
	var src model.SourceProfile
	var favorite int
	var filterStr, createdStr string
	err := row.Scan(&src.ID, &src.Name, &src.BaseURL, &src.LastCategory,
		&filterStr, &favorite, &src.DownloadCount, &createdStr)
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.Favorite = favorite == 1
	src.LastFilter, _ = model.ParseFilterMode(filterStr)
	src.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return &src, nil
}
