package task

import (
	"time"

	"github.com/google/uuid"
)

// CreateTaskRequest is the client-facing payload for posting a task.
type CreateTaskRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Budget      int64  `json:"budget" validate:"required,gt=0"`
}

// TaskResponse is the JSON shape for a task.
type TaskResponse struct {
	ID          uuid.UUID  `json:"id"`
	ClientID    uuid.UUID  `json:"client_id"`
	RunnerID    *uuid.UUID `json:"runner_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Budget      int64      `json:"budget"`
	Status      Status     `json:"status"`
	Escrowed    bool       `json:"escrowed"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ToResponse converts a task entity to its JSON shape.
func ToResponse(t *Task) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		ClientID:    t.ClientID,
		Title:       t.Title,
		Description: t.Description,
		Budget:      t.Budget,
		Status:      t.Status,
		Escrowed:    t.Escrowed,
		CreatedAt:   t.CreatedAt,
	}
	if t.RunnerID.Valid {
		id := t.RunnerID.UUID
		resp.RunnerID = &id
	}
	if t.AcceptedAt.Valid {
		ts := t.AcceptedAt.Time
		resp.AcceptedAt = &ts
	}
	if t.CompletedAt.Valid {
		ts := t.CompletedAt.Time
		resp.CompletedAt = &ts
	}
	if t.CancelledAt.Valid {
		ts := t.CancelledAt.Time
		resp.CancelledAt = &ts
	}
	return resp
}

// ToResponseList converts a slice of tasks.
func ToResponseList(tasks []Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, ToResponse(&tasks[i]))
	}
	return out
}
