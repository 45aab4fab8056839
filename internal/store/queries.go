package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a query record.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusProcessing Status = "PROCESSING"
	StatusReady      Status = "READY"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusCancelled
}

var (
	// ErrNotFound is returned when no record has the requested ID.
	ErrNotFound = errors.New("query not found")

	// ErrCancelled is returned when a cancelled query is processed.
	ErrCancelled = errors.New("query was cancelled")

	// ErrInvalidTransition is returned for a status change the lifecycle
	// does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Record is a stored cohort query.
type Record struct {
	ID        string          `json:"id"`
	Query     json.RawMessage `json:"query"`
	Status    Status          `json:"status"`
	Cancelled bool            `json:"cancelled"`
	Pipeline  json.RawMessage `json:"pipeline,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

const recordColumns = `id, query, status, cancelled, pipeline, error_code, error, created_at, updated_at`

// CreateQuery stores a new query document with status CREATED.
func (s *Store) CreateQuery(ctx context.Context, query []byte) (Record, error) {
	if !json.Valid(query) {
		return Record{}, fmt.Errorf("create query: document is not valid JSON")
	}

	now := s.clock.Now().UTC()
	rec := Record{
		ID:        s.ids.NewID(),
		Query:     json.RawMessage(query),
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queries (`+recordColumns+`)
		VALUES (?, ?, ?, 0, NULL, '', '', ?, ?)
	`,
		rec.ID,
		string(rec.Query),
		string(rec.Status),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return Record{}, fmt.Errorf("create query: %w", err)
	}
	return rec, nil
}

// GetQuery returns the record with the given ID, or ErrNotFound.
func (s *Store) GetQuery(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM queries WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("get query %s: %w", id, err)
	}
	return rec, nil
}

// ListQueries returns records in creation order. An empty status lists all.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListQueries(ctx context.Context, status Status) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM queries`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list queries: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queries: %w", err)
	}
	return records, nil
}

// MarkProcessing moves a CREATED or FAILED query to PROCESSING and clears
// any previous error. A query left PROCESSING by an interrupted run can be
// marked again.
func (s *Store) MarkProcessing(ctx context.Context, id string) (Record, error) {
	return s.transition(ctx, id, func(rec *Record) error {
		if rec.Cancelled {
			return ErrCancelled
		}
		switch rec.Status {
		case StatusCreated, StatusFailed, StatusProcessing:
		default:
			return invalidTransition(rec.Status, StatusProcessing)
		}
		rec.Status = StatusProcessing
		rec.ErrorCode = ""
		rec.Error = ""
		return nil
	})
}

// CompleteQuery stores the compiled pipeline of a PROCESSING query and marks
// it READY.
func (s *Store) CompleteQuery(ctx context.Context, id string, pipeline []byte) (Record, error) {
	if !json.Valid(pipeline) {
		return Record{}, fmt.Errorf("complete query %s: pipeline is not valid JSON", id)
	}
	return s.transition(ctx, id, func(rec *Record) error {
		if rec.Cancelled {
			return ErrCancelled
		}
		if rec.Status != StatusProcessing {
			return invalidTransition(rec.Status, StatusReady)
		}
		rec.Status = StatusReady
		rec.Pipeline = json.RawMessage(pipeline)
		return nil
	})
}

// FailQuery records why a PROCESSING query could not be compiled.
func (s *Store) FailQuery(ctx context.Context, id, code, message string) (Record, error) {
	return s.transition(ctx, id, func(rec *Record) error {
		if rec.Cancelled {
			return ErrCancelled
		}
		if rec.Status != StatusProcessing {
			return invalidTransition(rec.Status, StatusFailed)
		}
		rec.Status = StatusFailed
		rec.Pipeline = nil
		rec.ErrorCode = code
		rec.Error = message
		return nil
	})
}

// CancelQuery cancels a query that has not reached a terminal status.
// Cancelling an already cancelled query is a no-op.
func (s *Store) CancelQuery(ctx context.Context, id string) (Record, error) {
	return s.transition(ctx, id, func(rec *Record) error {
		if rec.Status == StatusCancelled {
			return errUnchanged
		}
		if rec.Status.Terminal() {
			return invalidTransition(rec.Status, StatusCancelled)
		}
		rec.Status = StatusCancelled
		rec.Cancelled = true
		return nil
	})
}

// errUnchanged makes transition return the record without writing.
var errUnchanged = errors.New("unchanged")

// transition loads a record, applies change and writes it back in one
// transaction.
func (s *Store) transition(ctx context.Context, id string, change func(*Record) error) (Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("update query %s: begin tx: %w", id, err)
	}
	defer tx.Rollback() // No-op if committed

	row := tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM queries WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("update query %s: %w", id, err)
	}

	if err := change(&rec); err != nil {
		if errors.Is(err, errUnchanged) {
			return rec, nil
		}
		return Record{}, fmt.Errorf("update query %s: %w", id, err)
	}
	rec.UpdatedAt = s.clock.Now().UTC()

	var pipeline any
	if rec.Pipeline != nil {
		pipeline = string(rec.Pipeline)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE queries
		SET status = ?, cancelled = ?, pipeline = ?, error_code = ?, error = ?, updated_at = ?
		WHERE id = ?
	`,
		string(rec.Status),
		rec.Cancelled,
		pipeline,
		rec.ErrorCode,
		rec.Error,
		formatTime(rec.UpdatedAt),
		rec.ID,
	)
	if err != nil {
		return Record{}, fmt.Errorf("update query %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("update query %s: commit: %w", id, err)
	}
	return rec, nil
}

func invalidTransition(from, to Status) error {
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec                  Record
		query, status        string
		pipeline             sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&rec.ID, &query, &status, &rec.Cancelled, &pipeline,
		&rec.ErrorCode, &rec.Error, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("scan query: %w", err)
	}

	rec.Query = json.RawMessage(query)
	rec.Status = Status(status)
	if pipeline.Valid {
		rec.Pipeline = json.RawMessage(pipeline.String)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return Record{}, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
