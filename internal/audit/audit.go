// Package audit implements the append-only decision log shared by the two
// trust-core services. Records are written off the caller's control flow
// through a bounded queue so audit durability never adds latency to the
// decision path.
package audit

import (
	"context"
	"sync"
	"time"

	"gradia.org/internal/ids"
	"gradia.org/internal/obs"
)

// Result values recorded for trust-core events.
const (
	ResultAllow   = "allow"
	ResultDeny    = "deny"
	ResultRevoked = "revoked"
)

// Record is one immutable audit entry: an authorization decision or a
// session revocation event.
type Record struct {
	ID         string            `json:"id"`
	Subject    string            `json:"subject"`
	Resource   string            `json:"resource"`
	Action     string            `json:"action"`
	Result     string            `json:"result"`
	Service    string            `json:"service"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Store persists records. Entries are written once and never updated.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	ListBySubject(ctx context.Context, subject string, limit int) ([]Record, error)
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}

const appendTimeout = 5 * time.Second

// Recorder consumes a bounded queue of records with a dedicated worker.
// When the queue is full the oldest pending record is dropped and counted;
// enqueueing never blocks. Append failures are logged and swallowed; they
// must not influence any caller-visible outcome.
type Recorder struct {
	store   Store
	service string
	queue   chan Record
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder starts the consuming worker. service names the originating
// service stamped on every record.
func NewRecorder(store Store, service string, queueSize int, opts ...RecorderOption) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	r := &Recorder{
		store:   store,
		service: service,
		queue:   make(chan Record, queueSize),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues rec without blocking. Missing ID, Service and OccurredAt
// fields are filled in. After Close the record is silently discarded.
func (r *Recorder) Record(rec Record) {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	if rec.Service == "" {
		rec.Service = r.service
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = r.now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- rec:
		return
	default:
	}

	// Queue full: drop the oldest pending record to make room.
	select {
	case <-r.queue:
		obs.ObserveAuditDrop()
	default:
	}
	select {
	case r.queue <- rec:
	default:
		obs.ObserveAuditDrop()
	}
}

// Close stops accepting records, drains the queue and waits for the worker.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := r.store.Append(ctx, &rec); err != nil {
			obs.LogError("audit append failed", err, map[string]any{
				"record_id": rec.ID,
				"subject":   rec.Subject,
				"result":    rec.Result,
			})
		}
		cancel()
	}
}
