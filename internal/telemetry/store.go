// Package telemetry keeps an in-memory, per-provider record of batch
// lifecycle and rate-limit observations.
//
// A Store is constructed by the application entry point and passed to the
// components that report into it. It is safe for concurrent use. Nothing is
// persisted; history lives only as long as the process.
package telemetry

import (
	"sync"
	"time"
)

const (
	// RetainBatches caps the batch history kept per provider.
	RetainBatches = 50
	// RateLimitWindow is how long rate-limit observations are kept.
	RateLimitWindow = 5 * time.Minute
)

// EventKind identifies a batch lifecycle event.
type EventKind string

const (
	EventScheduled EventKind = "scheduled"
	EventStarted   EventKind = "started"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventRateLimit EventKind = "rate_limit"
)

// Status is the lifecycle state of one batch.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Event is one observation reported by a batch runner. Fields not relevant
// to Kind are ignored. A zero At is stamped with the store clock.
type Event struct {
	Kind       EventKind
	ProviderID string
	BatchID    string
	At         time.Time

	Total      int           // scheduled
	Took       time.Duration // completed
	Error      string        // failed
	RetryAfter time.Duration // rate_limit
}

// Batch is the merged view of every event seen for one batch id.
type Batch struct {
	BatchID     string     `json:"batchId"`
	Status      Status     `json:"status"`
	TotalImages int        `json:"totalImages"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
	TookMs      *int64     `json:"tookMs,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// RateLimitEvent is a single throttling observation.
type RateLimitEvent struct {
	ObservedAt   time.Time `json:"observedAt"`
	RetryAfterMs int64     `json:"retryAfterMs"`
}

// RateLimit summarises recent throttling for a provider.
type RateLimit struct {
	LastTriggeredAt *time.Time       `json:"lastTriggeredAt,omitempty"`
	RetryAfterMs    *int64           `json:"retryAfterMs,omitempty"`
	Events          []RateLimitEvent `json:"events"`
}

// Snapshot is a copied, read-only view of one provider's history.
type Snapshot struct {
	ProviderID    string    `json:"providerId"`
	RecentBatches []Batch   `json:"recentBatches"`
	RateLimit     RateLimit `json:"rateLimit"`
}

// Store records batch events. The zero value is not usable; call NewStore.
type Store struct {
	mu        sync.Mutex
	order     []string
	providers map[string]*Snapshot
	listeners []listener
	nextID    int
	now       func() time.Time
}

type listener struct {
	id int
	fn func()
}

// NewStore returns an empty store using the wall clock.
func NewStore() *Store {
	return &Store{providers: make(map[string]*Snapshot), now: time.Now}
}

// Record applies event to its provider's history and notifies subscribers.
func (s *Store) Record(event Event) {
	s.mu.Lock()
	if event.At.IsZero() {
		event.At = s.now()
	}
	at := event.At

	snap := s.ensureProvider(event.ProviderID)
	switch event.Kind {
	case EventScheduled:
		s.upsert(snap, Batch{BatchID: event.BatchID, Status: StatusPending, TotalImages: event.Total})
	case EventStarted:
		s.upsert(snap, Batch{BatchID: event.BatchID, Status: StatusRunning, StartedAt: &at})
	case EventCompleted:
		took := event.Took.Milliseconds()
		s.upsert(snap, Batch{BatchID: event.BatchID, Status: StatusCompleted, CompletedAt: &at, TookMs: &took})
	case EventFailed:
		s.upsert(snap, Batch{BatchID: event.BatchID, Status: StatusFailed, FailedAt: &at, Error: event.Error})
	case EventRateLimit:
		retry := event.RetryAfter.Milliseconds()
		snap.RateLimit.LastTriggeredAt = &at
		snap.RateLimit.RetryAfterMs = &retry
		snap.RateLimit.Events = append(snap.RateLimit.Events, RateLimitEvent{ObservedAt: at, RetryAfterMs: retry})
		cutoff := s.now().Add(-RateLimitWindow)
		kept := snap.RateLimit.Events[:0]
		for _, e := range snap.RateLimit.Events {
			if !e.ObservedAt.Before(cutoff) {
				kept = append(kept, e)
			}
		}
		snap.RateLimit.Events = kept
	}

	listeners := append([]listener{}, s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn()
	}
}

func (s *Store) ensureProvider(id string) *Snapshot {
	snap, ok := s.providers[id]
	if !ok {
		snap = &Snapshot{ProviderID: id, RateLimit: RateLimit{Events: []RateLimitEvent{}}}
		s.providers[id] = snap
		s.order = append(s.order, id)
	}
	return snap
}

// upsert merges update into the batch with the same id, or prepends it.
func (s *Store) upsert(snap *Snapshot, update Batch) {
	for i := range snap.RecentBatches {
		existing := &snap.RecentBatches[i]
		if existing.BatchID != update.BatchID {
			continue
		}
		existing.Status = update.Status
		if update.TotalImages != 0 {
			existing.TotalImages = update.TotalImages
		}
		if update.StartedAt != nil {
			existing.StartedAt = update.StartedAt
		}
		if update.CompletedAt != nil {
			existing.CompletedAt = update.CompletedAt
		}
		if update.FailedAt != nil {
			existing.FailedAt = update.FailedAt
		}
		if update.TookMs != nil {
			existing.TookMs = update.TookMs
		}
		if update.Error != "" {
			existing.Error = update.Error
		}
		return
	}

	snap.RecentBatches = append([]Batch{update}, snap.RecentBatches...)
	if len(snap.RecentBatches) > RetainBatches {
		snap.RecentBatches = snap.RecentBatches[:RetainBatches]
	}
}

// Snapshots returns deep copies of every provider's history in the order
// providers were first seen.
func (s *Store) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Snapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copySnapshot(s.providers[id]))
	}
	return out
}

// Snapshot returns a copy of one provider's history.
func (s *Store) Snapshot(providerID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.providers[providerID]
	if !ok {
		return Snapshot{}, false
	}
	return copySnapshot(snap), true
}

func copySnapshot(src *Snapshot) Snapshot {
	dst := Snapshot{
		ProviderID:    src.ProviderID,
		RecentBatches: make([]Batch, len(src.RecentBatches)),
		RateLimit: RateLimit{
			LastTriggeredAt: copyPtr(src.RateLimit.LastTriggeredAt),
			RetryAfterMs:    copyPtr(src.RateLimit.RetryAfterMs),
			Events:          append([]RateLimitEvent{}, src.RateLimit.Events...),
		},
	}
	for i, b := range src.RecentBatches {
		b.StartedAt = copyPtr(b.StartedAt)
		b.CompletedAt = copyPtr(b.CompletedAt)
		b.FailedAt = copyPtr(b.FailedAt)
		b.TookMs = copyPtr(b.TookMs)
		dst.RecentBatches[i] = b
	}
	return dst
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Subscribe registers fn to run after every Record. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Reset drops all history and subscribers.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.providers = make(map[string]*Snapshot)
	s.listeners = nil
}
