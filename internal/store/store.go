// Package store provides the durable local storage for the task-form
// service: the replica cache of activity records, task answers, and the
// temp-answer outbox entries.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"example.com/taskform/internal/observability"
)

// ActivityRecord is one replica of an activity definition as supplied by
// the replicated record store. Multiple records may share a logical
// identity while differing in completeness: a stub (`SK-` prefixed sort
// key, no layout) versus a hydrated record (an `ActivityRef#` chain and
// real layout content). Records are never mutated here.
type ActivityRecord struct {
	ID             string  `json:"id"`
	PK             string  `json:"pk"`
	SK             string  `json:"sk"`
	Layouts        *string `json:"layouts,omitempty"`
	ActivityGroups *string `json:"activityGroups,omitempty"`
	LastChangedAt  int64   `json:"_lastChangedAt,omitempty"`
	Deleted        bool    `json:"_deleted,omitempty"`
}

// OutboxEntry is one pending temp-answer delivery, at most one per
// stable key within a namespace.
type OutboxEntry struct {
	Namespace string         `json:"namespace"`
	StableKey string         `json:"stableKey"`
	Document  string         `json:"document"`
	Variables map[string]any `json:"variables"`
	CreatedAt time.Time      `json:"createdAt"`
	Attempts  int            `json:"attempts"`
}

const schema = `
CREATE TABLE IF NOT EXISTS activity_records (
    id               TEXT NOT NULL,
    pk               TEXT NOT NULL,
    sk               TEXT NOT NULL,
    layouts          TEXT,
    activity_groups  TEXT,
    last_changed_at  INTEGER NOT NULL DEFAULT 0,
    deleted          INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (pk, sk)
);

CREATE TABLE IF NOT EXISTS task_answers (
    task_pk      TEXT NOT NULL,
    question_id  TEXT NOT NULL,
    answer       TEXT NOT NULL,
    submitted_at INTEGER NOT NULL,
    PRIMARY KEY (task_pk, question_id)
);

CREATE TABLE IF NOT EXISTS task_temp_answers (
    task_pk   TEXT PRIMARY KEY,
    answers   TEXT NOT NULL,
    localtime INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox_entries (
    namespace  TEXT NOT NULL,
    stable_key TEXT NOT NULL,
    document   TEXT NOT NULL,
    variables  TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    attempts   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (namespace, stable_key)
);
`

// Store wraps the sqlite database backing all durable local state.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serializes writers; a single connection avoids busy errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertRecord writes one replica of an activity record.
func (s *Store) UpsertRecord(ctx context.Context, rec ActivityRecord) error {
	const query = `INSERT INTO activity_records (id, pk, sk, layouts, activity_groups, last_changed_at, deleted)
        VALUES (?,?,?,?,?,?,?)
        ON CONFLICT (pk, sk) DO UPDATE SET
            id=excluded.id,
            layouts=excluded.layouts,
            activity_groups=excluded.activity_groups,
            last_changed_at=excluded.last_changed_at,
            deleted=excluded.deleted`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.PK, rec.SK, rec.Layouts, rec.ActivityGroups, rec.LastChangedAt, boolToInt(rec.Deleted))
	if err != nil {
		return err
	}
	observability.RecordReplicaPersisted(time.Now())
	return nil
}

// ListRecords returns all non-tombstoned activity records.
func (s *Store) ListRecords(ctx context.Context) ([]ActivityRecord, error) {
	const query = `SELECT id, pk, sk, layouts, activity_groups, last_changed_at
        FROM activity_records WHERE deleted = 0 ORDER BY pk, sk`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]ActivityRecord, 0)
	for rows.Next() {
		var rec ActivityRecord
		if err := rows.Scan(&rec.ID, &rec.PK, &rec.SK, &rec.Layouts, &rec.ActivityGroups, &rec.LastChangedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveAnswer persists one final submitted answer for a task.
func (s *Store) SaveAnswer(ctx context.Context, taskPK, questionID string, answer any, submittedAt time.Time) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}

	const query = `INSERT INTO task_answers (task_pk, question_id, answer, submitted_at)
        VALUES (?,?,?,?)
        ON CONFLICT (task_pk, question_id) DO UPDATE SET
            answer=excluded.answer,
            submitted_at=excluded.submitted_at`

	_, err = s.db.ExecContext(ctx, query, taskPK, questionID, string(raw), submittedAt.UnixMilli())
	return err
}

// SaveTempAnswers replaces the in-progress answer snapshot for a task.
func (s *Store) SaveTempAnswers(ctx context.Context, taskPK string, answers map[string]any, localtime time.Time) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode temp answers: %w", err)
	}

	const query = `INSERT INTO task_temp_answers (task_pk, answers, localtime)
        VALUES (?,?,?)
        ON CONFLICT (task_pk) DO UPDATE SET
            answers=excluded.answers,
            localtime=excluded.localtime`

	_, err = s.db.ExecContext(ctx, query, taskPK, string(raw), localtime.UnixMilli())
	return err
}

// MergedAnswers returns the task's final submitted answers overlaid with
// the latest temp-answer snapshot. Temp answers win per question.
func (s *Store) MergedAnswers(ctx context.Context, taskPK string) (map[string]any, error) {
	merged := make(map[string]any)

	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id, answer FROM task_answers WHERE task_pk = ?`, taskPK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var questionID, raw string
		if err := rows.Scan(&questionID, &raw); err != nil {
			return nil, err
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			// Answers written by older clients may be bare strings.
			value = raw
		}
		merged[questionID] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var rawTemp string
	err = s.db.QueryRowContext(ctx,
		`SELECT answers FROM task_temp_answers WHERE task_pk = ?`, taskPK).Scan(&rawTemp)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if err == nil {
		var temp map[string]any
		if err := json.Unmarshal([]byte(rawTemp), &temp); err == nil {
			for questionID, value := range temp {
				merged[questionID] = value
			}
		}
	}

	return merged, nil
}

// PutOutboxEntry replaces the entry for the stable key. Replacement,
// not append, keeps at most one pending delivery per task.
func (s *Store) PutOutboxEntry(ctx context.Context, entry OutboxEntry) error {
	variables, err := json.Marshal(entry.Variables)
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}

	const query = `INSERT INTO outbox_entries (namespace, stable_key, document, variables, created_at, attempts)
        VALUES (?,?,?,?,?,?)
        ON CONFLICT (namespace, stable_key) DO UPDATE SET
            document=excluded.document,
            variables=excluded.variables,
            created_at=excluded.created_at,
            attempts=excluded.attempts`

	_, err = s.db.ExecContext(ctx, query,
		entry.Namespace, entry.StableKey, entry.Document, string(variables), entry.CreatedAt.UnixMilli(), entry.Attempts)
	return err
}

// ListOutboxEntries returns a namespace's pending entries oldest-first.
func (s *Store) ListOutboxEntries(ctx context.Context, namespace string) ([]OutboxEntry, error) {
	const query = `SELECT stable_key, document, variables, created_at, attempts
        FROM outbox_entries WHERE namespace = ? ORDER BY created_at ASC, stable_key ASC`

	rows, err := s.db.QueryContext(ctx, query, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]OutboxEntry, 0)
	for rows.Next() {
		var entry OutboxEntry
		var variables string
		var createdAt int64
		if err := rows.Scan(&entry.StableKey, &entry.Document, &variables, &createdAt, &entry.Attempts); err != nil {
			return nil, err
		}
		entry.Namespace = namespace
		entry.CreatedAt = time.UnixMilli(createdAt)
		if err := json.Unmarshal([]byte(variables), &entry.Variables); err != nil {
			return nil, fmt.Errorf("decode variables for %s: %w", entry.StableKey, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteOutboxEntry removes a delivered entry.
func (s *Store) DeleteOutboxEntry(ctx context.Context, namespace, stableKey string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM outbox_entries WHERE namespace = ? AND stable_key = ?`, namespace, stableKey)
	return err
}

// IncrementOutboxAttempts bumps the attempt counter after a failed
// delivery; the entry stays pending.
func (s *Store) IncrementOutboxAttempts(ctx context.Context, namespace, stableKey string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_entries SET attempts = attempts + 1 WHERE namespace = ? AND stable_key = ?`,
		namespace, stableKey)
	return err
}

// ClearOutbox drops every pending entry in the namespace.
func (s *Store) ClearOutbox(ctx context.Context, namespace string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM outbox_entries WHERE namespace = ?`, namespace)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
