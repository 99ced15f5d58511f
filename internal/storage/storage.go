// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"arcadl/internal/model"
)

// Storage is the interface for all persistence operations. The job pipeline
// only reads sources; it writes once per run, when a job reaches a terminal
// state (CompleteJob, RecordDownloaded).
type Storage interface {
	CreateSource(ctx context.Context, source *model.SourceProfile) error
	GetSource(ctx context.Context, name string) (*model.SourceProfile, error)
	ListSources(ctx context.Context) ([]model.SourceProfile, error)
	DeleteSource(ctx context.Context, name string) error
	AddCategory(ctx context.Context, sourceID int64, ref model.CategoryRef) error
	SetFavorite(ctx context.Context, sourceID int64, favorite bool) error

	UpdateSourceFilter(ctx context.Context, sourceID int64, settings model.FilterSettings) error
	GetDefaultFilter(ctx context.Context) (model.FilterSettings, error)
	UpdateDefaultFilter(ctx context.Context, settings model.FilterSettings) error

	// CompleteJob increments the download counter and records the last-used
	// category and filter selection in one transaction.
	CompleteJob(ctx context.Context, sourceID int64, categoryIndex int, mode model.FilterMode) error

	ListDownloaded(ctx context.Context, sourceTag string) ([]string, error)
	RecordDownloaded(ctx context.Context, sourceTag string, articleIDs []string) error

	Close() error
}
