package job

// Dedup tracks article identifiers already downloaded for one source. It is
// owned by a single job's worker for the job's lifetime, so no locking is
// needed; the set is seeded from storage at job start and the identifiers
// added during the run are flushed back once, at the terminal state.
type Dedup struct {
	seen  map[string]struct{}
	added []string
}

// NewDedup seeds the tracker with previously downloaded identifiers.
func NewDedup(ids []string) *Dedup {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return &Dedup{seen: seen}
}

// Seen reports whether the identifier was already downloaded.
func (d *Dedup) Seen(id string) bool {
	_, ok := d.seen[id]
	return ok
}

// Record marks an identifier as downloaded during this run.
func (d *Dedup) Record(id string) {
	if d.Seen(id) {
		return
	}
	d.seen[id] = struct{}{}
	d.added = append(d.added, id)
}

// Added returns the identifiers recorded during this run, in order.
func (d *Dedup) Added() []string {
	return d.added
}
