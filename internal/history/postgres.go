// Package history is the append-only archive of settled point movements.
//
// Rows are written once, at the moment points actually move, and are never
// updated or deleted; a database trigger enforces that. The archive is
// display-only downstream: balances come from the ledger, never from
// replaying history.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"starledger/internal/util"
)

// ErrDisabled is returned when no archive database is configured.
var ErrDisabled = errors.New("history: archive not configured")

// Record is one settled movement. Points is signed: positive for earnings,
// negative for penalties and store purchases.
type Record struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"taskId"`
	Name        string    `json:"name"`
	Points      int64     `json:"points"`
	Category    string    `json:"category"`
	ActorID     string    `json:"actorId"`
	ActorName   string    `json:"actorName"`
	SubjectID   string    `json:"subjectId"`
	SubjectName string    `json:"subjectName"`
	CompletedAt time.Time `json:"completedAt"`
}

// Filter narrows a listing. Zero values mean "no constraint".
type Filter struct {
	SubjectID string
	Category  string
	Limit     int
}

// Archive is the storage surface for settled movements.
type Archive interface {
	Append(ctx context.Context, rec Record) error
	List(ctx context.Context, filter Filter) ([]Record, error)
	Ping(ctx context.Context) error
}

type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(db *sql.DB) *PostgresArchive {
	return &PostgresArchive{db: db}
}

func (a *PostgresArchive) Append(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = util.NewID("hist")
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO history (id, task_id, name, points, category, actor_id, actor_name, subject_id, subject_name, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.TaskID, rec.Name, rec.Points, rec.Category, rec.ActorID, rec.ActorName, rec.SubjectID, rec.SubjectName, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (a *PostgresArchive) List(ctx context.Context, filter Filter) ([]Record, error) {
	query := `
		SELECT id, task_id, name, points, category, actor_id, actor_name, subject_id, subject_name, completed_at
		FROM history
	`
	var conditions []string
	var args []any
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY completed_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.Name, &rec.Points, &rec.Category,
			&rec.ActorID, &rec.ActorName, &rec.SubjectID, &rec.SubjectName, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return records, nil
}

func (a *PostgresArchive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// DisabledArchive stands in when no archive database is configured. Every
// operation fails with ErrDisabled so callers surface the gap instead of
// silently dropping records.
type DisabledArchive struct{}

func (DisabledArchive) Append(ctx context.Context, rec Record) error {
	return ErrDisabled
}

func (DisabledArchive) List(ctx context.Context, filter Filter) ([]Record, error) {
	return nil, ErrDisabled
}

func (DisabledArchive) Ping(ctx context.Context) error {
	return ErrDisabled
}
