package event

import (
	"time"

	"github.com/google/uuid"
)

// Type labels an event on the stream.
type Type string

const (
	TypeTaskPosted    Type = "task.posted"
	TypeTaskAccepted  Type = "task.accepted"
	TypeTaskCompleted Type = "task.completed"
	TypeTaskCancelled Type = "task.cancelled"
	TypeTransaction   Type = "wallet.transaction"
)

// Event is the envelope delivered to subscribers (notification, moderation,
// security-log). Subscribers observe task-state and transaction changes but
// never participate in the escrow transaction itself.
type Event struct {
	Type      Type        `json:"type"`
	TaskID    *uuid.UUID  `json:"task_id,omitempty"`
	UserID    uuid.UUID   `json:"user_id"`
	Data      interface{} `json:"data,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// TaskPayload carries task-state change details.
type TaskPayload struct {
	ClientID uuid.UUID  `json:"client_id"`
	RunnerID *uuid.UUID `json:"runner_id,omitempty"`
	Budget   int64      `json:"budget"`
	Status   string     `json:"status"`
}

// TransactionPayload carries ledger entry details.
type TransactionPayload struct {
	Amount      int64  `json:"amount"`
	TxType      string `json:"tx_type"`
	ReferenceID string `json:"reference_id,omitempty"`
}
