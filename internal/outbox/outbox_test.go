package outbox

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/taskform/internal/store"
)

type fakeEntryStore struct {
	mu       sync.Mutex
	entries  map[string]store.OutboxEntry
	saved    map[string]map[string]any
	seq      int
	putCalls int
}

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{
		entries: make(map[string]store.OutboxEntry),
		saved:   make(map[string]map[string]any),
	}
}

func (f *fakeEntryStore) SaveTempAnswers(_ context.Context, taskPK string, answers map[string]any, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[taskPK] = answers
	return nil
}

func (f *fakeEntryStore) PutOutboxEntry(_ context.Context, entry store.OutboxEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if existing, ok := f.entries[entry.StableKey]; ok {
		entry.CreatedAt = existing.CreatedAt
	} else {
		f.seq++
		entry.CreatedAt = time.Unix(int64(f.seq), 0)
	}
	f.entries[entry.StableKey] = entry
	return nil
}

func (f *fakeEntryStore) ListOutboxEntries(_ context.Context, _ string) ([]store.OutboxEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.OutboxEntry, 0, len(f.entries))
	for _, entry := range f.entries {
		out = append(out, entry)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeEntryStore) DeleteOutboxEntry(_ context.Context, _, stableKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, stableKey)
	return nil
}

func (f *fakeEntryStore) IncrementOutboxAttempts(_ context.Context, _, stableKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry := f.entries[stableKey]
	entry.Attempts++
	f.entries[stableKey] = entry
	return nil
}

func (f *fakeEntryStore) ClearOutbox(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string]store.OutboxEntry)
	return nil
}

type fakeExecutor struct {
	mu        sync.Mutex
	failing   bool
	delivered []store.OutboxEntry
}

func (e *fakeExecutor) Deliver(_ context.Context, entry store.OutboxEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failing {
		return errors.New("link down")
	}
	e.delivered = append(e.delivered, entry)
	return nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func snapshot(pk string, answers map[string]any) SaveInput {
	return SaveInput{
		Task:      TaskRef{PK: pk, SK: "Task." + pk},
		Answers:   answers,
		Localtime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEnqueueDeliversImmediately(t *testing.T) {
	entries := newFakeEntryStore()
	exec := &fakeExecutor{}
	svc := NewService(entries, exec, WithLogger(quietLogger()))

	err := svc.Enqueue(context.Background(), snapshot("task-1", map[string]any{"q1": "yes"}))
	require.NoError(t, err)

	require.Len(t, exec.delivered, 1)
	require.Equal(t, "task-1", exec.delivered[0].StableKey)

	pending, err := svc.Peek(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)

	// The durable snapshot is written regardless of delivery.
	require.Equal(t, map[string]any{"q1": "yes"}, entries.saved["task-1"])
}

func TestEnqueueKeepsEntryWhenDeliveryFails(t *testing.T) {
	entries := newFakeEntryStore()
	exec := &fakeExecutor{failing: true}
	svc := NewService(entries, exec, WithLogger(quietLogger()))

	err := svc.Enqueue(context.Background(), snapshot("task-1", map[string]any{"q1": "yes"}))
	require.NoError(t, err)

	pending, err := svc.Peek(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].Attempts)

	// Link restored: next flush drains the entry.
	exec.failing = false
	delivered, err := svc.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, delivered)

	pending, err = svc.Peek(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestEnqueueReplacesPendingEntryForSameTask(t *testing.T) {
	entries := newFakeEntryStore()
	exec := &fakeExecutor{failing: true}
	svc := NewService(entries, exec, WithLogger(quietLogger()))

	require.NoError(t, svc.Enqueue(context.Background(), snapshot("task-1", map[string]any{"q1": "first"})))
	require.NoError(t, svc.Enqueue(context.Background(), snapshot("task-1", map[string]any{"q1": "second"})))

	pending, err := svc.Peek(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	exec.failing = false
	delivered, err := svc.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, delivered)

	// Only the latest snapshot goes out.
	input := exec.delivered[0].Variables["input"].(map[string]any)
	require.Contains(t, input["tempAnswers"], "second")
}

func TestFlushDrainsOldestFirstAndSkipsFailures(t *testing.T) {
	entries := newFakeEntryStore()
	exec := &fakeExecutor{failing: true}
	svc := NewService(entries, exec, WithLogger(quietLogger()))

	require.NoError(t, svc.Enqueue(context.Background(), snapshot("task-1", map[string]any{"a": 1})))
	require.NoError(t, svc.Enqueue(context.Background(), snapshot("task-2", map[string]any{"b": 2})))

	exec.failing = false
	delivered, err := svc.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, delivered)
	require.Equal(t, "task-1", exec.delivered[0].StableKey)
	require.Equal(t, "task-2", exec.delivered[1].StableKey)
}

func TestOfflineProbeSkipsImmediateDelivery(t *testing.T) {
	entries := newFakeEntryStore()
	exec := &fakeExecutor{}
	online := false
	svc := NewService(entries, exec, WithLogger(quietLogger()),
		WithOnlineProbe(func() bool { return online }))

	require.NoError(t, svc.Enqueue(context.Background(), snapshot("task-1", map[string]any{"q1": "yes"})))
	require.Empty(t, exec.delivered)

	pending, err := svc.Peek(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 0, pending[0].Attempts)

	online = true
	delivered, err := svc.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, delivered)
}

func TestNilMapperDisablesEnqueue(t *testing.T) {
	entries := newFakeEntryStore()
	exec := &fakeExecutor{}
	svc := NewService(entries, exec, WithLogger(quietLogger()), WithMapper(nil))

	require.NoError(t, svc.Enqueue(context.Background(), snapshot("task-1", nil)))
	require.Empty(t, entries.entries)
	require.Empty(t, entries.saved)
}

func TestMapperWithoutStableKeyIsRejected(t *testing.T) {
	entries := newFakeEntryStore()
	svc := NewService(entries, &fakeExecutor{}, WithLogger(quietLogger()),
		WithMapper(func(SaveInput) (*Mapped, error) { return &Mapped{Document: "mutation {}"}, nil }))

	err := svc.Enqueue(context.Background(), snapshot("task-1", nil))
	require.ErrorIs(t, err, ErrInvalidMapping)
	require.Empty(t, entries.entries)
}

func TestMapperDeclineIsNoOp(t *testing.T) {
	entries := newFakeEntryStore()
	exec := &fakeExecutor{}
	svc := NewService(entries, exec, WithLogger(quietLogger()),
		WithMapper(func(SaveInput) (*Mapped, error) { return nil, nil }))

	require.NoError(t, svc.Enqueue(context.Background(), snapshot("task-1", map[string]any{"q1": "yes"})))
	require.Empty(t, entries.entries)
	require.Empty(t, entries.saved)
	require.Empty(t, exec.delivered)
}

func TestMappedDocumentFallsBackToConfigured(t *testing.T) {
	entries := newFakeEntryStore()
	svc := NewService(entries, &fakeExecutor{failing: true}, WithLogger(quietLogger()),
		WithDocument("mutation Custom { noop }"),
		WithMapper(func(input SaveInput) (*Mapped, error) {
			return &Mapped{StableKey: input.Task.PK, Variables: map[string]any{"pk": input.Task.PK}}, nil
		}))

	require.NoError(t, svc.Enqueue(context.Background(), snapshot("task-1", nil)))

	pending, err := svc.Peek(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "mutation Custom { noop }", pending[0].Document)

	// A mapper that sets its own document keeps it.
	svc = NewService(entries, &fakeExecutor{failing: true}, WithLogger(quietLogger()),
		WithMapper(func(input SaveInput) (*Mapped, error) {
			return &Mapped{StableKey: input.Task.PK, Document: "mutation Own { noop }"}, nil
		}))
	require.NoError(t, svc.Enqueue(context.Background(), snapshot("task-2", nil)))

	pending, err = svc.Peek(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "mutation Own { noop }", pending[1].Document)
}

func TestDefaultMapperGetsDefaultDocument(t *testing.T) {
	entries := newFakeEntryStore()
	svc := NewService(entries, &fakeExecutor{failing: true}, WithLogger(quietLogger()))

	require.NoError(t, svc.Enqueue(context.Background(), snapshot("task-1", map[string]any{"q1": "yes"})))

	pending, err := svc.Peek(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, DefaultDocument, pending[0].Document)
}

func TestClearDropsPendingEntries(t *testing.T) {
	entries := newFakeEntryStore()
	exec := &fakeExecutor{failing: true}
	svc := NewService(entries, exec, WithLogger(quietLogger()))

	require.NoError(t, svc.Enqueue(context.Background(), snapshot("task-1", nil)))
	require.NoError(t, svc.Clear(context.Background()))

	pending, err := svc.Peek(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestGraphQLExecutorTreatsErrorsArrayAsFailure(t *testing.T) {
	var gotAPIKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("x-api-key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errors":[{"message":"unauthorized"}]}`))
	}))
	defer server.Close()

	exec := NewGraphQLExecutor(server.URL, "secret", time.Second)
	err := exec.Deliver(context.Background(), store.OutboxEntry{
		StableKey: "task-1",
		Document:  DefaultDocument,
		Variables: map[string]any{"input": map[string]any{"pk": "task-1"}},
	})
	require.ErrorContains(t, err, "unauthorized")
	require.Equal(t, "secret", gotAPIKey)
}

func TestGraphQLExecutorSucceedsOnCleanResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"updateTask":{"pk":"task-1"}}}`))
	}))
	defer server.Close()

	exec := NewGraphQLExecutor(server.URL, "", time.Second)
	err := exec.Deliver(context.Background(), store.OutboxEntry{StableKey: "task-1", Document: DefaultDocument})
	require.NoError(t, err)
}
