package domain

import "time"

// TimeWindow is a trailing span ending at a fixed reconciliation instant.
// A record is inside when its event time is at or after Start().
type TimeWindow struct {
	Now  time.Time
	Span time.Duration
}

// NewTimeWindow returns the window of span ending at now.
func NewTimeWindow(now time.Time, span time.Duration) TimeWindow {
	return TimeWindow{Now: now.UTC(), Span: span}
}

// Start is the inclusive lower bound of the window.
func (w TimeWindow) Start() time.Time {
	return w.Now.Add(-w.Span)
}

// Contains reports whether t is inside the window. The bound is inclusive:
// an instant exactly Span before Now is in; one nanosecond earlier is out.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start())
}

// KnownIDs is the set of identities already present in the store.
type KnownIDs map[string]struct{}

// NewKnownIDs collects the identities of the given records.
func NewKnownIDs(records []NormalizedRecord) KnownIDs {
	ids := make(KnownIDs, len(records))
	for _, r := range records {
		ids[r.Identity()] = struct{}{}
	}
	return ids
}

// Has reports whether id is known.
func (k KnownIDs) Has(id string) bool {
	_, ok := k[id]
	return ok
}

// ReconcileResult is the net-new batch plus what was dropped at each step.
type ReconcileResult struct {
	Records     []NormalizedRecord
	OutOfWindow int
	Known       int
	Duplicates  int
}

// Reconcile returns the candidates that should be written: inside the window,
// not already known, and first in input order among equal identities.
func Reconcile(candidates []NormalizedRecord, known KnownIDs, window TimeWindow) []NormalizedRecord {
	return ReconcileDetailed(candidates, known, window).Records
}

// ReconcileDetailed is Reconcile with per-step drop counts. Records whose
// timestamp cannot be parsed are counted as out of window.
func ReconcileDetailed(candidates []NormalizedRecord, known KnownIDs, window TimeWindow) ReconcileResult {
	res := ReconcileResult{Records: make([]NormalizedRecord, 0, len(candidates))}
	seen := make(map[string]struct{}, len(candidates))

	for _, r := range candidates {
		t, ok := r.EventTime()
		if !ok || !window.Contains(t) {
			res.OutOfWindow++
			continue
		}

		id := r.Identity()
		if known.Has(id) {
			res.Known++
			continue
		}
		if _, dup := seen[id]; dup {
			res.Duplicates++
			continue
		}
		seen[id] = struct{}{}
		res.Records = append(res.Records, r)
	}
	return res
}
