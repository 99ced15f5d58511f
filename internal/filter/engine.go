// Package filter implements the article matching engine.
package filter

import (
	"fmt"
	"strings"

	"arcadl/internal/model"
)

// Decision is the outcome of evaluating one article against filter settings.
// Reason is set only for skips and names the first failing predicate; it is
// diagnostic and does not affect the outcome.
type Decision struct {
	Keep   bool
	Reason string
}

func keep() Decision {
	return Decision{Keep: true}
}

func skip(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Select resolves the active filter settings for a job. The three modes are
// mutually exclusive; settings are never merged.
func Select(mode model.FilterMode, source, def model.FilterSettings) model.FilterSettings {
	switch mode {
	case model.FilterDefault:
		return def
	case model.FilterSource:
		return source
	default:
		return model.FilterSettings{}
	}
}

// EvaluateSummary runs the summary-stage predicate chain in order, stopping at
// the first failing one. A row without a preview image is always skipped,
// regardless of settings.
func EvaluateSummary(s model.FilterSettings, a model.ArticleSummary) Decision {
	if !a.HasPreview {
		return skip("no preview image")
	}
	if s.CombinedEnabled {
		if a.Score == nil {
			return skip("combined filter enabled but row has no score")
		}
		if *a.Score < s.CombinedMin {
			return skip("combined score %d < %d", *a.Score, s.CombinedMin)
		}
	}
	if s.TitleEnabled {
		if word, ok := containsAny(a.Title, s.TitleBlacklist); ok {
			return skip("blacklisted word %q in title", word)
		}
	}
	if s.CategoryEnabled {
		for _, name := range s.CategoryBlacklist {
			if a.Category == name {
				return skip("blacklisted category %q", name)
			}
		}
	}
	// Uploader filtering never skips; the caller logs a.Uploader when enabled.
	return keep()
}

// EvaluateDetail runs the detail-stage predicate chain. Thresholds are not
// symmetric: upvotes are a floor, downvotes a ceiling.
func EvaluateDetail(s model.FilterSettings, a model.ArticleDetail) Decision {
	if s.ContentEnabled {
		if word, ok := containsAny(a.Content, s.ContentBlacklist); ok {
			return skip("blacklisted word %q in content", word)
		}
	}
	if s.UpvoteEnabled && a.Upvotes < s.UpvoteMin {
		return skip("upvotes %d < %d", a.Upvotes, s.UpvoteMin)
	}
	if s.DownvoteEnabled && a.Downvotes > s.DownvoteMax {
		return skip("downvotes %d > %d", a.Downvotes, s.DownvoteMax)
	}
	return keep()
}

func containsAny(text string, words []string) (string, bool) {
	for _, w := range words {
		if w == "" {
			continue
		}
		if strings.Contains(text, w) {
			return w, true
		}
	}
	return "", false
}
