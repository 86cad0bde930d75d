// Package domain coordinates activity resolution, form parsing, and
// temp-answer persistence behind the HTTP surface.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/taskform/internal/activity"
	"example.com/taskform/internal/lookup"
	"example.com/taskform/internal/outbox"
	"example.com/taskform/internal/store"
)

// ErrActivityNotFound is returned when no candidate record satisfies a
// lookup reference.
var ErrActivityNotFound = errors.New("activity not found")

// RecordStore is the slice of the local store the service reads and
// writes activity replicas and answers through.
type RecordStore interface {
	UpsertRecord(ctx context.Context, rec store.ActivityRecord) error
	ListRecords(ctx context.Context) ([]store.ActivityRecord, error)
	SaveAnswer(ctx context.Context, taskPK, questionID string, answer any, submittedAt time.Time) error
	MergedAnswers(ctx context.Context, taskPK string) (map[string]any, error)
}

// Service exposes the form pipeline: resolve a reference to a record,
// shape its configuration into screens, and queue answer snapshots.
type Service struct {
	records  RecordStore
	sync     *outbox.Service
	maxDepth int
}

// NewService builds a Service. maxDepth bounds how many nested
// string-encodings a record's config fields may carry; zero or less
// uses the parser default.
func NewService(records RecordStore, sync *outbox.Service, maxDepth int) *Service {
	return &Service{records: records, sync: sync, maxDepth: maxDepth}
}

// IngestRecord stores one replica of an activity record.
func (s *Service) IngestRecord(ctx context.Context, rec store.ActivityRecord) error {
	if rec.PK == "" || rec.SK == "" {
		return errors.New("record requires pk and sk")
	}
	return s.records.UpsertRecord(ctx, rec)
}

// ResolveActivity picks the record that should drive rendering for the
// given reference, which may be a bare id, a composite key, or a chain.
func (s *Service) ResolveActivity(ctx context.Context, reference string) (*store.ActivityRecord, error) {
	candidates, err := s.records.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	best := lookup.SelectBestMatch(candidates, reference)
	if best == nil {
		return nil, ErrActivityNotFound
	}
	return best, nil
}

// ActivityForm resolves the reference and shapes the winning record's
// configuration into the strict form model.
func (s *Service) ActivityForm(ctx context.Context, reference string) (activity.ParsedActivityData, *store.ActivityRecord, error) {
	record, err := s.ResolveActivity(ctx, reference)
	if err != nil {
		return activity.ParsedActivityData{}, nil, err
	}

	var layouts, groups any
	if record.Layouts != nil {
		layouts = *record.Layouts
	}
	if record.ActivityGroups != nil {
		groups = *record.ActivityGroups
	}

	cfg := activity.BuildConfigDepth(layouts, groups, s.maxDepth)
	return activity.ParseConfig(cfg), record, nil
}

// SaveTempAnswers queues an in-progress answer snapshot for delivery.
func (s *Service) SaveTempAnswers(ctx context.Context, input outbox.SaveInput) error {
	if input.Task.PK == "" {
		return errors.New("task pk is required")
	}
	if input.Localtime.IsZero() {
		input.Localtime = time.Now()
	}
	return s.sync.Enqueue(ctx, input)
}

// SubmitAnswer persists one final answer for a task.
func (s *Service) SubmitAnswer(ctx context.Context, taskPK, questionID string, answer any) error {
	if taskPK == "" || questionID == "" {
		return errors.New("task pk and question id are required")
	}
	return s.records.SaveAnswer(ctx, taskPK, questionID, answer, time.Now())
}

// MergedAnswers returns final answers overlaid with the latest snapshot.
func (s *Service) MergedAnswers(ctx context.Context, taskPK string) (map[string]any, error) {
	return s.records.MergedAnswers(ctx, taskPK)
}

// PendingDeliveries lists outbox entries awaiting delivery.
func (s *Service) PendingDeliveries(ctx context.Context) ([]store.OutboxEntry, error) {
	return s.sync.Peek(ctx)
}

// FlushNow forces delivery of everything pending and returns the number
// of entries that went out.
func (s *Service) FlushNow(ctx context.Context) (int, error) {
	return s.sync.SyncNow(ctx)
}

// ClearPending drops every pending delivery.
func (s *Service) ClearPending(ctx context.Context) error {
	return s.sync.Clear(ctx)
}
