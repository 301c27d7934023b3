package task

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status represents task lifecycle state (matches task_status enum)
type Status string

const (
	StatusPosted    Status = "posted"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions is the closed lifecycle graph. Cancelling an accepted task is
// listed here but additionally gated by escrow policy at the engine.
var transitions = map[Status][]Status{
	StatusPosted:   {StatusAccepted, StatusCancelled},
	StatusAccepted: {StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions exist.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPosted, StatusAccepted, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Task represents one unit of posted work (matches tasks table)
type Task struct {
	ID          uuid.UUID     `db:"id"`
	ClientID    uuid.UUID     `db:"client_id"`
	RunnerID    uuid.NullUUID `db:"runner_id"`
	Title       string        `db:"title"`
	Description string        `db:"description"`
	Budget      int64         `db:"budget"`
	Status      Status        `db:"status"`
	Escrowed    bool          `db:"escrowed"`
	AcceptedAt  sql.NullTime  `db:"accepted_at"`
	CompletedAt sql.NullTime  `db:"completed_at"`
	CancelledAt sql.NullTime  `db:"cancelled_at"`
	CreatedAt   time.Time     `db:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}

// HoldLive reports whether the escrow hold for this task is still in force.
func (t *Task) HoldLive() bool {
	return t.Escrowed && (t.Status == StatusPosted || t.Status == StatusAccepted)
}

// IsOwnedBy checks if user is the posting client
func (t *Task) IsOwnedBy(userID uuid.UUID) bool {
	return t.ClientID == userID
}

// IsRunner checks if user is the bound runner
func (t *Task) IsRunner(userID uuid.UUID) bool {
	return t.RunnerID.Valid && t.RunnerID.UUID == userID
}
