// Package outbox persists in-progress task answers locally and delivers
// them to a remote sink, surviving process restarts and broken links.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"example.com/taskform/internal/observability"
	"example.com/taskform/internal/store"
)

// DefaultStorageKey is the namespace pending entries live under when the
// caller does not configure one.
const DefaultStorageKey = "@task-system/temp-answers-outbox"

// DefaultDocument is the mutation sent for temp-answer deliveries when
// no custom document is configured. The remote treats repeated sends for
// the same task as an upsert.
const DefaultDocument = `mutation UpdateTaskTempAnswers($input: UpdateTaskInput!) {
  updateTask(input: $input) {
    pk
    sk
    _lastChangedAt
  }
}`

// ErrInvalidMapping reports a mapper result that cannot be enqueued.
var ErrInvalidMapping = errors.New("outbox: mapper produced no stable key")

// TaskRef identifies the task a snapshot belongs to.
type TaskRef struct {
	PK string `json:"pk"`
	SK string `json:"sk,omitempty"`
}

// SaveInput is one snapshot of in-progress answers for a task.
type SaveInput struct {
	Task       TaskRef        `json:"task"`
	ActivityID string         `json:"activityId,omitempty"`
	Answers    map[string]any `json:"answers"`
	Localtime  time.Time      `json:"localtime"`
}

// Mapped is the delivery a mapper derived from a snapshot. StableKey
// collapses successive snapshots of the same task into one pending entry.
type Mapped struct {
	StableKey string
	Document  string
	Variables map[string]any
}

// Mapper turns a snapshot into a delivery. A nil mapper disables
// enqueueing entirely. Returning a nil Mapped declines the snapshot
// (nothing changed, nothing to queue); returning an error rejects it.
type Mapper func(SaveInput) (*Mapped, error)

// OnlineProbe reports whether the remote sink is believed reachable.
// The host supplies it; nil means always try.
type OnlineProbe func() bool

// DefaultMapper keys deliveries by task pk and ships the serialized
// answers with the snapshot's local wall-clock time.
func DefaultMapper(input SaveInput) (*Mapped, error) {
	data, err := json.Marshal(input.Answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	return &Mapped{
		StableKey: input.Task.PK,
		Variables: map[string]any{
			"input": map[string]any{
				"pk":          input.Task.PK,
				"sk":          input.Task.SK,
				"tempAnswers": string(data),
				"localtime":   input.Localtime.UTC().Format(time.RFC3339),
			},
		},
	}, nil
}

// EntryStore is the durable storage the service writes through. Writes
// must be visible before Enqueue returns so a crash cannot lose them.
type EntryStore interface {
	SaveTempAnswers(ctx context.Context, taskPK string, answers map[string]any, localtime time.Time) error
	PutOutboxEntry(ctx context.Context, entry store.OutboxEntry) error
	ListOutboxEntries(ctx context.Context, namespace string) ([]store.OutboxEntry, error)
	DeleteOutboxEntry(ctx context.Context, namespace, stableKey string) error
	IncrementOutboxAttempts(ctx context.Context, namespace, stableKey string) error
	ClearOutbox(ctx context.Context, namespace string) error
}

// Executor delivers one pending entry to the remote sink. Delivery must
// be idempotent per stable key: entries may be retried after a crash
// that lost the acknowledgement.
type Executor interface {
	Deliver(ctx context.Context, entry store.OutboxEntry) error
}

// Service is the temp-answer sync pipeline: durable write first, then
// best-effort delivery, with retry on every later flush.
type Service struct {
	entries   EntryStore
	executor  Executor
	mapper    Mapper
	online    OnlineProbe
	namespace string
	document  string
	logger    *log.Logger

	flushMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithMapper replaces the default snapshot mapper.
func WithMapper(m Mapper) Option {
	return func(s *Service) { s.mapper = m }
}

// WithStorageKey replaces the default entry namespace.
func WithStorageKey(key string) Option {
	return func(s *Service) { s.namespace = key }
}

// WithDocument replaces the document used when a mapped delivery does
// not carry its own.
func WithDocument(document string) Option {
	return func(s *Service) { s.document = document }
}

// WithLogger replaces the default logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithOnlineProbe installs a connectivity check consulted before the
// immediate delivery attempt on Enqueue. Offline snapshots stay queued
// without burning an attempt.
func WithOnlineProbe(probe OnlineProbe) Option {
	return func(s *Service) { s.online = probe }
}

// NewService constructs a Service around the given store and executor.
func NewService(entries EntryStore, executor Executor, opts ...Option) *Service {
	s := &Service{
		entries:   entries,
		executor:  executor,
		mapper:    DefaultMapper,
		namespace: DefaultStorageKey,
		document:  DefaultDocument,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue persists the snapshot and its pending delivery, then attempts
// an immediate flush. The snapshot is durable before any network I/O, a
// failed delivery leaves the entry pending for the next flush. Repeated
// snapshots for the same task replace the pending entry rather than
// queueing behind it.
func (s *Service) Enqueue(ctx context.Context, input SaveInput) error {
	if s.mapper == nil {
		return nil
	}

	mapped, err := s.mapper(input)
	if err != nil {
		return fmt.Errorf("map snapshot: %w", err)
	}
	if mapped == nil {
		// Mapper declined the snapshot: nothing to queue.
		return nil
	}
	if mapped.StableKey == "" {
		return ErrInvalidMapping
	}
	document := mapped.Document
	if document == "" {
		document = s.document
	}

	if err := s.entries.SaveTempAnswers(ctx, input.Task.PK, input.Answers, input.Localtime); err != nil {
		return fmt.Errorf("save temp answers: %w", err)
	}

	entry := store.OutboxEntry{
		Namespace: s.namespace,
		StableKey: mapped.StableKey,
		Document:  document,
		Variables: mapped.Variables,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.entries.PutOutboxEntry(ctx, entry); err != nil {
		return fmt.Errorf("persist outbox entry: %w", err)
	}
	enqueuedCounter.Inc()

	if s.online != nil && !s.online() {
		return nil
	}
	if _, err := s.Flush(ctx); err != nil {
		// Entry is durable; the next flush retries it.
		s.logger.Printf("outbox: immediate flush failed: %v", err)
	}
	return nil
}

// SyncNow forces a flush of everything pending.
func (s *Service) SyncNow(ctx context.Context) (int, error) {
	return s.Flush(ctx)
}

// Flush delivers pending entries oldest-first. Delivered entries are
// removed, failed ones stay with a bumped attempt count and do not block
// later entries. Concurrent flushes serialize. Returns the number of
// entries delivered.
func (s *Service) Flush(ctx context.Context) (int, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	start := time.Now()
	pending, err := s.entries.ListOutboxEntries(ctx, s.namespace)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	defer flushDuration.Observe(time.Since(start).Seconds())

	delivered := 0
	var firstErr error
	for _, entry := range pending {
		if err := ctx.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			break
		}

		if err := s.executor.Deliver(ctx, entry); err != nil {
			failedCounter.Inc()
			s.logger.Printf("outbox: delivery failed for %s: %v", entry.StableKey, err)
			if bumpErr := s.entries.IncrementOutboxAttempts(ctx, s.namespace, entry.StableKey); bumpErr != nil {
				s.logger.Printf("outbox: attempt bump failed for %s: %v", entry.StableKey, bumpErr)
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if err := s.entries.DeleteOutboxEntry(ctx, s.namespace, entry.StableKey); err != nil {
			// The remote already has the answer; redelivery is safe.
			s.logger.Printf("outbox: cleanup failed for %s: %v", entry.StableKey, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		deliveredCounter.Inc()
		delivered++
	}

	observability.RecordOutboxFlushed(time.Now())
	pendingGauge.Set(float64(len(pending) - delivered))
	return delivered, firstErr
}

// Peek returns the pending entries oldest-first without delivering them.
func (s *Service) Peek(ctx context.Context) ([]store.OutboxEntry, error) {
	return s.entries.ListOutboxEntries(ctx, s.namespace)
}

// Clear drops every pending entry. Intended for sign-out flows where
// stale snapshots must not outlive the session.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.entries.ClearOutbox(ctx, s.namespace); err != nil {
		return err
	}
	pendingGauge.Set(0)
	return nil
}
