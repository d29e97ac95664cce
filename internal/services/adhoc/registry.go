package adhoc

import (
	"errors"
	"sort"
	"sync"
	"time"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
)

var (
	ErrRunExists   = errors.New("run already registered")
	ErrRunNotFound = errors.New("run not found")
)

// Registry is the in-memory source of truth for ad-hoc runs.
//
// Stored RunState values are never mutated in place: every update clones the run,
// applies the change to the clone and swaps the map entry under the write lock.
// Readers therefore never observe a partially applied update.
type Registry struct {
	mu   sync.RWMutex
	runs map[domain.RunID]domain.RunState
}

func NewRegistry() *Registry {
	return &Registry{runs: make(map[domain.RunID]domain.RunState)}
}

func (r *Registry) Add(run domain.RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.RunID]; ok {
		return ErrRunExists
	}
	r.runs[run.RunID] = run.Clone()
	return nil
}

// Update applies fn to a copy of the run and stores the copy when fn reports a change.
func (r *Registry) Update(id domain.RunID, fn func(run *domain.RunState) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	next := cur.Clone()
	if fn(&next) {
		r.runs[id] = keepIdentity(cur, next)
	}
	return nil
}

// UpdateAll runs fn over every run under a single write lock and returns how many runs changed.
func (r *Registry) UpdateAll(fn func(run *domain.RunState) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := 0
	for id, cur := range r.runs {
		next := cur.Clone()
		if fn(&next) {
			r.runs[id] = keepIdentity(cur, next)
			changed++
		}
	}
	return changed
}

// Outstanding returns the ids of runs with a pending probe, sorted, and the oldest createdAt among them.
func (r *Registry) Outstanding() ([]domain.RunID, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		ids    []domain.RunID
		oldest time.Time
	)
	for id, run := range r.runs {
		if !run.Pending() {
			continue
		}
		ids = append(ids, id)
		if oldest.IsZero() || run.CreatedAt.Before(oldest) {
			oldest = run.CreatedAt
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, oldest
}

func (r *Registry) HasPending() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, run := range r.runs {
		if run.Pending() {
			return true
		}
	}
	return false
}

func (r *Registry) Get(id domain.RunID) (domain.RunState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return domain.RunState{}, false
	}
	return run.Clone(), true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// Snapshot returns deep copies of all runs, most recent first.
func (r *Registry) Snapshot() []domain.RunState {
	r.mu.RLock()
	out := make([]domain.RunState, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// keepIdentity pins the immutable parts of a run: its id, creation time, deadline and
// probe set. Only probe status and payload may change through an update.
func keepIdentity(cur, next domain.RunState) domain.RunState {
	next.RunID = cur.RunID
	next.CreatedAt = cur.CreatedAt
	next.DeadlineSeconds = cur.DeadlineSeconds
	probes := make(map[string]domain.ProbeState, len(cur.Probes))
	for name, old := range cur.Probes {
		p, ok := next.Probes[name]
		if !ok {
			p = old
		}
		p.ProbeID = old.ProbeID
		p.ProbeName = old.ProbeName
		p.Public = old.Public
		probes[name] = p
	}
	next.Probes = probes
	return next
}
