// Package tasks stores user tasks and answers the pending-work
// questions the orchestrator asks when shaping context.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/concierge-ai/concierge/internal/storage"
)

// Task statuses.
const (
	StatusPending = "pending"
	StatusDone    = "done"
)

// Task is one stored task.
type Task struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"-"`
	Title     string     `db:"title" json:"title"`
	Status    string     `db:"status" json:"status"`
	DueAt     *time.Time `db:"due_at" json:"due_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Reader answers pending-task questions without exposing mutation.
type Reader interface {
	Pending(ctx context.Context, userID string) ([]Task, error)
	PendingCount(ctx context.Context, userID string) (int, error)
}

// Store is the sqlite-backed task store.
type Store struct {
	db *storage.DB
}

var _ Reader = (*Store)(nil)

// NewStore returns a Store backed by db.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Add stores a pending task.
func (s *Store) Add(ctx context.Context, userID, title string, dueAt *time.Time) (*Task, error) {
	task := &Task{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Status:    StatusPending,
		DueAt:     dueAt,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, status, due_at, created_at)
		 VALUES (:id, :user_id, :title, :status, :due_at, :created_at)`, task)
	if err != nil {
		return nil, fmt.Errorf("store task: %w", err)
	}
	return task, nil
}

// Complete marks a task done.
func (s *Store) Complete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ? WHERE user_id = ? AND id = ?`,
		StatusDone, userID, id)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s not found", id)
	}
	return nil
}

// Pending lists a user's pending tasks, oldest first.
func (s *Store) Pending(ctx context.Context, userID string) ([]Task, error) {
	var out []Task
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, user_id, title, status, due_at, created_at
		 FROM tasks WHERE user_id = ? AND status = ? ORDER BY created_at ASC`,
		userID, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	return out, nil
}

// PendingCount counts a user's pending tasks.
func (s *Store) PendingCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM tasks WHERE user_id = ? AND status = ?`,
		userID, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("count pending tasks: %w", err)
	}
	return n, nil
}
