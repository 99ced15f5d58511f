package job

import "arcadl/internal/model"

// EventKind classifies events emitted by the worker.
type EventKind int

// Event kinds. EventDone is always the last event on the stream.
const (
	EventLog EventKind = iota
	EventPage
	EventSkip
	EventArticle
	EventSaved
	EventDone
)

// Stats summarizes one run.
type Stats struct {
	Pages    int
	Queued   int
	Skipped  int
	Articles int
	Assets   int
}

// Event is the only way the worker communicates with the foreground. The
// foreground owns all presentation state and reacts to events; it never reads
// worker state directly.
type Event struct {
	Kind      EventKind
	Message   string
	Page      int
	ArticleID string
	Status    model.JobStatus
	Stats     Stats
	Err       error
}
