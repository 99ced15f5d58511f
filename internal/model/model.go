// Package model defines the domain types used across the application.
package model

import "time"

// FilterMode selects which filter settings apply to a job.
type FilterMode int

// Supported filter modes. Exactly one applies per job; they are never merged.
const (
	FilterNone FilterMode = iota
	FilterDefault
	FilterSource
)

// String returns the mode name used in config, flags, and storage.
func (m FilterMode) String() string {
	switch m {
	case FilterDefault:
		return "default"
	case FilterSource:
		return "source"
	default:
		return "none"
	}
}

// ParseFilterMode converts a mode name back to a FilterMode.
func ParseFilterMode(s string) (FilterMode, bool) {
	switch s {
	case "none":
		return FilterNone, true
	case "default":
		return FilterDefault, true
	case "source":
		return FilterSource, true
	}
	return FilterNone, false
}

// SaveMode controls the directory layout under the download base directory.
type SaveMode int

// Supported save modes.
const (
	SaveFlat SaveMode = iota
	SavePerSource
	SavePerSourceCategory
)

// ParseSaveMode converts a mode name to a SaveMode.
func ParseSaveMode(s string) (SaveMode, bool) {
	switch s {
	case "flat":
		return SaveFlat, true
	case "per-source":
		return SavePerSource, true
	case "per-source-category":
		return SavePerSourceCategory, true
	}
	return SaveFlat, false
}

// CategoryRef is a (href fragment, display name) pair registered for a source.
// Categories are append-only, so indexes into a source's category list stay valid.
type CategoryRef struct {
	Href string
	Name string
}

// FilterSettings is a set of independently toggleable download criteria.
// A numeric threshold is only evaluated when its enable flag is set.
type FilterSettings struct {
	TitleEnabled     bool
	TitleBlacklist   []string
	ContentEnabled   bool
	ContentBlacklist []string

	// Uploader filtering is observation-only: when enabled the uploader cell
	// is logged but never causes a skip.
	UploaderEnabled   bool
	UploaderBlacklist []string

	UpvoteEnabled   bool
	UpvoteMin       int
	DownvoteEnabled bool
	DownvoteMax     int
	CombinedEnabled bool
	CombinedMin     int

	CategoryEnabled   bool
	CategoryBlacklist []string
}

// SourceProfile is a registered listing source with its categories and filter.
type SourceProfile struct {
	ID            int64
	Name          string
	BaseURL       string
	Categories    []CategoryRef
	LastCategory  int
	LastFilter    FilterMode
	Filter        FilterSettings
	Favorite      bool
	DownloadCount int
	CreatedAt     time.Time
}

// ArticleSummary is one listing row. Score is nil when the row exposes no
// combined-score cell; Category is empty when there is no badge.
type ArticleSummary struct {
	Href       string
	Title      string
	HasPreview bool
	Score      *int
	Category   string
	Uploader   string
}

// ArticleDetail is a parsed article detail page.
type ArticleDetail struct {
	Title     string
	Upvotes   int
	Downvotes int
	Content   string
	MediaURLs []string
}

// MediaAsset is one downloadable asset with its resolved destination name.
type MediaAsset struct {
	URL      string
	Filename string
}

// JobRequest describes one bounded pipeline run. StartPage <= EndPage is
// enforced by the caller before the job begins.
type JobRequest struct {
	Source    SourceProfile
	Category  int
	StartPage int
	EndPage   int
	Filter    FilterMode
	BestOnly  bool
}

// JobStatus is the orchestrator state machine.
type JobStatus int

// Job states. Running transitions to exactly one terminal state.
const (
	StatusIdle JobStatus = iota
	StatusRunning
	StatusCompleted
	StatusCancelled
	StatusFailed
)

// String returns the status name for logs and notifications.
func (s JobStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}
