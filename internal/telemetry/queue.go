package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/model"
)

// Event is one queued proctoring signal. Immutable once enqueued; dequeued
// only after a confirmed server acknowledgement.
type Event struct {
	ID        string
	AttemptID int64
	Type      string
	Payload   json.RawMessage
	ClientTS  time.Time
}

// Sender delivers one event to the server. *api.Client satisfies this.
type Sender interface {
	PostAttemptEvent(ctx context.Context, attemptID int64, req model.AttemptEventRequest) error
}

// Spool persists pending events across process restarts. Optional; the
// journal satisfies this.
type Spool interface {
	AppendEvent(ev Event) error
	RemoveEvent(id string) error
	PendingEvents(attemptID int64) ([]Event, error)
}

// Options tune a Queue. Zero values fall back to the defaults: 5 s per-type
// interval, 15 s for rapid_refresh, 256 pending cap.
type Options struct {
	DefaultInterval time.Duration
	MinInterval     map[string]time.Duration
	Capacity        int
	Spool           Spool
	Now             func() time.Time
}

// Queue buffers proctoring events, applies per-type rate limiting and flushes
// them to the server best-effort. Delivery failures are swallowed: exam
// correctness never depends on event delivery.
type Queue struct {
	attemptID int64
	sender    Sender
	spool     Spool
	log       zerolog.Logger
	now       func() time.Time

	defaultInterval time.Duration
	minInterval     map[string]time.Duration
	capacity        int

	mu       sync.Mutex
	pending  []Event
	lastAt   map[string]time.Time
	flushing bool

	kick chan struct{}
}

// NewQueue creates a Queue for one attempt. If the spool holds events left
// over from an earlier run of the same attempt, they are reloaded ahead of
// anything enqueued later.
func NewQueue(attemptID int64, sender Sender, log zerolog.Logger, opts Options) *Queue {
	if opts.DefaultInterval <= 0 {
		opts.DefaultInterval = 5 * time.Second
	}
	if opts.MinInterval == nil {
		opts.MinInterval = map[string]time.Duration{
			model.EventRapidRefresh: 15 * time.Second,
		}
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	q := &Queue{
		attemptID:       attemptID,
		sender:          sender,
		spool:           opts.Spool,
		log:             log.With().Str("component", "telemetry").Int64("attempt_id", attemptID).Logger(),
		now:             opts.Now,
		defaultInterval: opts.DefaultInterval,
		minInterval:     opts.MinInterval,
		capacity:        opts.Capacity,
		lastAt:          map[string]time.Time{},
		kick:            make(chan struct{}, 1),
	}

	if q.spool != nil {
		if spooled, err := q.spool.PendingEvents(attemptID); err == nil && len(spooled) > 0 {
			q.pending = spooled
			q.log.Debug().Int("count", len(spooled)).Msg("reloaded spooled events")
		}
	}
	return q
}

// CanSend is the rate limiter. On true it commits the decision by recording
// the timestamp: calling it consumes the send slot for eventType.
func (q *Queue) CanSend(eventType string, now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	interval, ok := q.minInterval[eventType]
	if !ok {
		interval = q.defaultInterval
	}
	if last, ok := q.lastAt[eventType]; ok && now.Sub(last) < interval {
		return false
	}
	q.lastAt[eventType] = now
	return true
}

// Enqueue appends one event unless rate-limited, then signals the flush loop.
// Returns whether the event was accepted. payload may be nil.
func (q *Queue) Enqueue(eventType string, payload map[string]interface{}) bool {
	now := q.now()
	if !q.CanSend(eventType, now) {
		return false
	}

	raw := json.RawMessage("{}")
	if payload != nil {
		if enc, err := json.Marshal(payload); err == nil {
			raw = enc
		}
	}
	ev := Event{
		ID:        uuid.New().String(),
		AttemptID: q.attemptID,
		Type:      eventType,
		Payload:   raw,
		ClientTS:  now,
	}

	q.mu.Lock()
	if len(q.pending) >= q.capacity {
		dropped := q.pending[0]
		q.pending = q.pending[1:]
		if q.spool != nil {
			_ = q.spool.RemoveEvent(dropped.ID)
		}
		q.log.Debug().Str("event_type", dropped.Type).Msg("queue full, dropped oldest event")
	}
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	if q.spool != nil {
		if err := q.spool.AppendEvent(ev); err != nil {
			q.log.Debug().Err(err).Msg("spool append failed")
		}
	}

	select {
	case q.kick <- struct{}{}:
	default:
	}
	return true
}

// Run drives flush attempts until ctx is cancelled. Call in a goroutine.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.kick:
			q.Flush(ctx)
		}
	}
}

// Flush sends pending events strictly FIFO, removing each only after the
// server acknowledged it. On any failure the loop stops silently, leaving the
// failed event and everything behind it in place for the next trigger. A
// second Flush while one is running returns immediately.
func (q *Queue) Flush(ctx context.Context) {
	q.mu.Lock()
	if q.flushing {
		q.mu.Unlock()
		return
	}
	q.flushing = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		head := q.pending[0]
		q.mu.Unlock()

		req := model.AttemptEventRequest{
			EventType: head.Type,
			Payload:   head.Payload,
			ClientTS:  head.ClientTS,
		}
		if err := q.sender.PostAttemptEvent(ctx, head.AttemptID, req); err != nil {
			q.log.Debug().Err(err).Str("event_type", head.Type).Msg("event delivery failed, will retry on next trigger")
			return
		}

		q.mu.Lock()
		// A capacity drop may have evicted the in-flight head, so pop by
		// identity: never remove an event that was not the one just sent.
		if len(q.pending) > 0 && q.pending[0].ID == head.ID {
			q.pending = q.pending[1:]
		}
		q.mu.Unlock()

		if q.spool != nil {
			_ = q.spool.RemoveEvent(head.ID)
		}
	}
}

// Pending returns a snapshot of queued events, oldest first.
func (q *Queue) Pending() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Event, len(q.pending))
	copy(out, q.pending)
	return out
}
