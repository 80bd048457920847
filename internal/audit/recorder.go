package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Rajatsinha05/erp-sub004/internal/auth"
)

// DefaultBufferSize is the event queue length. Events beyond it are dropped
// so a slow sink never back-pressures requests.
const DefaultBufferSize = 256

// writeTimeout bounds one audit row insert.
const writeTimeout = 5 * time.Second

// Sink receives every security event after it is queued.
type Sink interface {
	Publish(ev auth.SecurityEvent)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev auth.SecurityEvent)

// Publish calls f.
func (f SinkFunc) Publish(ev auth.SecurityEvent) { f(ev) }

// Recorder implements auth.EventRecorder. Events are written to the audit
// repository and fanned out to sinks by a single background worker, which
// keeps SQLite writes serial.
//
// Thread Safety:
//   - Record and Close are safe for concurrent use.
type Recorder struct {
	repo   Repository
	sinks  []Sink
	logger *slog.Logger

	ch   chan auth.SecurityEvent
	done chan struct{}

	mu      sync.RWMutex
	closed  bool
	started bool
}

// NewRecorder builds a recorder. repo may be nil to skip persistence.
func NewRecorder(repo Repository, logger *slog.Logger, bufferSize int, sinks ...Sink) *Recorder {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		repo:   repo,
		sinks:  sinks,
		logger: logger,
		ch:     make(chan auth.SecurityEvent, bufferSize),
		done:   make(chan struct{}),
	}
}

// AddSink registers a sink. Must be called before Start.
func (r *Recorder) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Start launches the worker.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	go r.run()
}

// Record enqueues ev. It never blocks; when the queue is full or the
// recorder is closed the event is dropped with a warning.
func (r *Recorder) Record(_ context.Context, ev auth.SecurityEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.ch <- ev:
	default:
		r.logger.Warn("security event queue full, dropping event",
			"type", string(ev.Type),
			"user_id", ev.UserID,
		)
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	started := r.started
	close(r.ch)
	r.mu.Unlock()

	if started {
		<-r.done
		return
	}
	for ev := range r.ch {
		r.handle(ev)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.ch {
		r.handle(ev)
	}
}

func (r *Recorder) handle(ev auth.SecurityEvent) {
	if r.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.repo.Create(ctx, FromEvent(ev)); err != nil {
			r.logger.Error("audit log write failed",
				"type", string(ev.Type),
				"error", err,
			)
		}
		cancel()
	}

	r.mu.RLock()
	sinks := r.sinks
	r.mu.RUnlock()
	for _, s := range sinks {
		s.Publish(ev)
	}
}

// FromEvent converts a security event to its audit row.
func FromEvent(ev auth.SecurityEvent) *AuditLog {
	details := map[string]any{}
	if ev.Username != "" {
		details["username"] = ev.Username
	}
	if ev.Role != "" {
		details["role"] = string(ev.Role)
	}
	if ev.Action != "" {
		details["action"] = ev.Action
	}
	if ev.Until != nil {
		details["unlockTime"] = ev.Until.UTC().Format(time.RFC3339)
	}

	return &AuditLog{
		ID:        ev.ID,
		Action:    string(ev.Type),
		UserID:    ev.UserID,
		CompanyID: ev.CompanyID,
		Module:    ev.Module,
		Target:    ev.Path,
		IP:        ev.IP,
		Reason:    ev.Reason,
		Details:   details,
		CreatedAt: ev.At,
	}
}
