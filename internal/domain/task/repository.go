package task

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const taskColumns = `
	id, client_id, runner_id, title, description, budget, status, escrowed,
	accepted_at, completed_at, cancelled_at, created_at, updated_at
`

// Repository persists task records. Lifecycle writes go through the Tx
// variants so the escrow engine can commit them atomically with ledger
// mutations; every transition UPDATE is guarded by the expected current
// status, so a lost race surfaces as zero rows affected instead of a silent
// overwrite.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// CreateTx inserts a new posted task within the caller's transaction.
func (r *Repository) CreateTx(ctx context.Context, tx *sqlx.Tx, t *Task) error {
	return tx.GetContext(ctx, t, `
		INSERT INTO tasks (id, client_id, title, description, budget, status, escrowed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+taskColumns, t.ID, t.ClientID, t.Title, t.Description, t.Budget, t.Status, t.Escrowed)
}

// GetByID returns a task by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	var t Task
	err := r.db.GetContext(ctx, &t, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByIDForUpdateTx locks the task row for the duration of the caller's
// transaction. This is the per-task exclusive section: at most one lifecycle
// transition proceeds at a time for a given task.
func (r *Repository) GetByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Task, error) {
	var t Task
	err := tx.GetContext(ctx, &t, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AcceptTx binds the runner and moves posted -> accepted.
func (r *Repository) AcceptTx(ctx context.Context, tx *sqlx.Tx, taskID, runnerID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET runner_id = $1, status = $2, accepted_at = now(), updated_at = now()
		WHERE id = $3 AND status = $4
	`, runnerID, StatusAccepted, taskID, StatusPosted)
	if err != nil {
		return err
	}
	return oneRowOr(res, ErrAlreadyAccepted)
}

// CompleteTx moves accepted -> completed and clears the escrow flag.
func (r *Repository) CompleteTx(ctx context.Context, tx *sqlx.Tx, taskID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1, escrowed = false, completed_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3
	`, StatusCompleted, taskID, StatusAccepted)
	if err != nil {
		return err
	}
	return oneRowOr(res, ErrInvalidTransition)
}

// CancelTx moves the task from the expected status to cancelled and clears
// the escrow flag.
func (r *Repository) CancelTx(ctx context.Context, tx *sqlx.Tx, taskID uuid.UUID, from Status) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1, escrowed = false, cancelled_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3
	`, StatusCancelled, taskID, from)
	if err != nil {
		return err
	}
	return oneRowOr(res, ErrInvalidTransition)
}

func oneRowOr(res sql.Result, lostRace error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return lostRace
	}
	return nil
}

// ListByClient returns tasks posted by the client, newest first.
func (r *Repository) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]Task, error) {
	return r.list(ctx, `WHERE client_id = $1`, clientID, limit, offset)
}

// ListByRunner returns tasks accepted by the runner, newest first.
func (r *Repository) ListByRunner(ctx context.Context, runnerID uuid.UUID, limit, offset int) ([]Task, error) {
	return r.list(ctx, `WHERE runner_id = $1`, runnerID, limit, offset)
}

// ListOpen returns posted tasks available for acceptance, newest first.
func (r *Repository) ListOpen(ctx context.Context, limit, offset int) ([]Task, error) {
	if limit <= 0 {
		limit = 50
	}
	tasks := make([]Task, 0)
	err := r.db.SelectContext(ctx, &tasks, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, StatusPosted, limit, offset)
	return tasks, err
}

func (r *Repository) list(ctx context.Context, where string, id uuid.UUID, limit, offset int) ([]Task, error) {
	if limit <= 0 {
		limit = 50
	}
	tasks := make([]Task, 0)
	err := r.db.SelectContext(ctx, &tasks, `
		SELECT `+taskColumns+` FROM tasks
	`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, id, limit, offset)
	return tasks, err
}
