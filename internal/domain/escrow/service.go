package escrow

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/taskrun/taskrun-api/internal/domain/event"
	"github.com/taskrun/taskrun-api/internal/domain/task"
	"github.com/taskrun/taskrun-api/internal/domain/user"
	"github.com/taskrun/taskrun-api/internal/domain/wallet"
)

// Policy answers who may cancel an accepted task and whether the runner keeps
// a share of the budget when that happens. RunnerSharePercent 0 means a full
// refund to the client.
type Policy struct {
	AllowCancelAccepted bool
	RunnerSharePercent  int
}

// Service is the escrow engine: the only code path that moves money for task
// lifecycle transitions. Every operation runs the state transition and its
// ledger mutations in one database transaction, with the task row and wallet
// rows locked FOR UPDATE, so a transition and its fund movement land together
// or not at all. The ledger reference for every leg is the task id.
type Service struct {
	wallets *wallet.Repository
	tasks   *task.Repository
	users   user.Repository
	events  *event.Publisher
	policy  Policy
}

func NewService(wallets *wallet.Repository, tasks *task.Repository, users user.Repository, events *event.Publisher, policy Policy) *Service {
	return &Service{wallets: wallets, tasks: tasks, users: users, events: events, policy: policy}
}

// PostTask creates a task and holds the client's budget in escrow. If the
// hold fails the task is never created; there is no partially posted state.
func (s *Service) PostTask(ctx context.Context, clientID uuid.UUID, req task.CreateTaskRequest) (*task.Task, error) {
	if req.Budget <= 0 {
		return nil, wallet.ErrInvalidAmount
	}
	if _, err := s.users.EnsureActive(ctx, clientID); err != nil {
		return nil, err
	}

	t := &task.Task{
		ID:          uuid.New(),
		ClientID:    clientID,
		Title:       req.Title,
		Description: req.Description,
		Budget:      req.Budget,
		Status:      task.StatusPosted,
		Escrowed:    true,
	}

	tx, err := s.wallets.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.wallets.HoldTx(ctx, tx, clientID, req.Budget, t.ID.String()); err != nil {
		return nil, err
	}
	if err := s.tasks.CreateTx(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Info().
		Str("task_id", t.ID.String()).
		Str("client_id", clientID.String()).
		Int64("budget", req.Budget).
		Msg("task posted, budget held in escrow")

	s.publishTaskEvent(ctx, event.TypeTaskPosted, t)
	return t, nil
}

// AcceptTask binds the runner to a posted task. No funds move. Exactly one of
// N concurrent accepts wins; the rest observe ErrAlreadyAccepted.
func (s *Service) AcceptTask(ctx context.Context, taskID, runnerID uuid.UUID) (*task.Task, error) {
	if _, err := s.users.EnsureActive(ctx, runnerID); err != nil {
		return nil, err
	}

	tx, err := s.wallets.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := s.tasks.GetByIDForUpdateTx(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	if t.ClientID == runnerID {
		return nil, task.ErrSelfAccept
	}
	switch t.Status {
	case task.StatusPosted:
	case task.StatusAccepted:
		return nil, task.ErrAlreadyAccepted
	default:
		return nil, task.ErrInvalidTransition
	}

	if err := s.tasks.AcceptTx(ctx, tx, taskID, runnerID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Info().
		Str("task_id", taskID.String()).
		Str("runner_id", runnerID.String()).
		Msg("task accepted")

	t, err = s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.publishTaskEvent(ctx, event.TypeTaskAccepted, t)
	return t, nil
}

// CompleteTask settles the escrowed budget from the client to the runner and
// marks the task completed. A settlement that finds less pending balance than
// the live hold is ledger corruption: the operation aborts, the client wallet
// freezes for investigation, and the failure surfaces as fatal rather than
// being retried.
func (s *Service) CompleteTask(ctx context.Context, taskID uuid.UUID, actor task.Actor) (*task.Task, error) {
	tx, err := s.wallets.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := s.tasks.GetByIDForUpdateTx(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != task.StatusAccepted || !t.RunnerID.Valid {
		return nil, task.ErrInvalidTransition
	}
	if !actor.Admin && actor.ID != t.ClientID {
		return nil, task.ErrNotTaskOwner
	}

	runnerID := t.RunnerID.UUID
	if err := s.wallets.SettleTx(ctx, tx, t.ClientID, runnerID, t.Budget, t.ID.String()); err != nil {
		if errors.Is(err, wallet.ErrInsufficientPending) {
			tx.Rollback()
			return nil, s.reportInconsistency(ctx, t, err)
		}
		return nil, err
	}
	if err := s.tasks.CompleteTx(ctx, tx, taskID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Info().
		Str("task_id", taskID.String()).
		Str("client_id", t.ClientID.String()).
		Str("runner_id", runnerID.String()).
		Int64("amount", t.Budget).
		Msg("task completed, escrow settled to runner")

	t, err = s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.publishTaskEvent(ctx, event.TypeTaskCompleted, t)
	s.publishTransaction(ctx, t.ClientID, wallet.TransactionTypeEscrow, t.Budget, t.ID.String())
	s.publishTransaction(ctx, runnerID, wallet.TransactionTypePayout, t.Budget, t.ID.String())
	return t, nil
}

// CancelTask reverses the escrow hold and cancels the task. Posted tasks may
// always be cancelled by their client. Accepted tasks are policy-gated: when
// allowed, the configured runner share is settled and the remainder released
// back to the client.
func (s *Service) CancelTask(ctx context.Context, taskID uuid.UUID, actor task.Actor) (*task.Task, error) {
	tx, err := s.wallets.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := s.tasks.GetByIDForUpdateTx(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}

	from := t.Status
	switch from {
	case task.StatusPosted:
		if !actor.Admin && actor.ID != t.ClientID {
			return nil, task.ErrNotTaskOwner
		}
	case task.StatusAccepted:
		if !s.policy.AllowCancelAccepted {
			return nil, task.ErrCancelAcceptedDisabled
		}
		if !actor.Admin && actor.ID != t.ClientID && !t.IsRunner(actor.ID) {
			return nil, task.ErrNotTaskOwner
		}
	default:
		return nil, task.ErrInvalidTransition
	}

	var runnerShare int64
	if t.Escrowed {
		runnerShare = s.cancelledRunnerShare(t, from)
		refund := t.Budget - runnerShare

		if runnerShare > 0 {
			if err := s.wallets.SettleTx(ctx, tx, t.ClientID, t.RunnerID.UUID, runnerShare, t.ID.String()); err != nil {
				if errors.Is(err, wallet.ErrInsufficientPending) {
					tx.Rollback()
					return nil, s.reportInconsistency(ctx, t, err)
				}
				return nil, err
			}
		}
		if refund > 0 {
			if err := s.wallets.ReleaseTx(ctx, tx, t.ClientID, refund, t.ID.String()); err != nil {
				if errors.Is(err, wallet.ErrInsufficientPending) {
					tx.Rollback()
					return nil, s.reportInconsistency(ctx, t, err)
				}
				return nil, err
			}
		}
	}

	if err := s.tasks.CancelTx(ctx, tx, taskID, from); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Info().
		Str("task_id", taskID.String()).
		Str("client_id", t.ClientID.String()).
		Int64("refunded", t.Budget-runnerShare).
		Int64("runner_share", runnerShare).
		Msg("task cancelled, escrow hold reversed")

	t, err = s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.publishTaskEvent(ctx, event.TypeTaskCancelled, t)
	return t, nil
}

// cancelledRunnerShare computes the runner payout for a policy-permitted
// cancellation of an accepted task.
func (s *Service) cancelledRunnerShare(t *task.Task, from task.Status) int64 {
	if from != task.StatusAccepted || !t.RunnerID.Valid {
		return 0
	}
	pct := int64(s.policy.RunnerSharePercent)
	if pct <= 0 {
		return 0
	}
	if pct > 100 {
		pct = 100
	}
	return t.Budget * pct / 100
}

// reportInconsistency handles a broken conservation law: freeze the client
// wallet, alert operators, and surface the fatal category. Never retried
// here; a blind retry of a partial mutation could duplicate a transfer.
func (s *Service) reportInconsistency(ctx context.Context, t *task.Task, cause error) error {
	log.Error().
		Err(cause).
		Str("task_id", t.ID.String()).
		Str("client_id", t.ClientID.String()).
		Int64("budget", t.Budget).
		Msg("ledger inconsistency during settlement, freezing client wallet for manual reconciliation")

	if err := s.wallets.Freeze(ctx, t.ClientID); err != nil {
		log.Error().Err(err).Str("client_id", t.ClientID.String()).Msg("failed to freeze wallet after inconsistency")
	}

	return wallet.ErrLedgerInconsistency
}

func (s *Service) publishTaskEvent(ctx context.Context, evtType event.Type, t *task.Task) {
	if s.events == nil {
		return
	}

	taskID := t.ID
	payload := event.TaskPayload{
		ClientID: t.ClientID,
		Budget:   t.Budget,
		Status:   string(t.Status),
	}
	recipients := []uuid.UUID{t.ClientID}
	if t.RunnerID.Valid {
		runnerID := t.RunnerID.UUID
		payload.RunnerID = &runnerID
		recipients = append(recipients, runnerID)
	}

	s.events.PublishAll(ctx, event.Event{
		Type:   evtType,
		TaskID: &taskID,
		Data:   payload,
	}, recipients...)
}

func (s *Service) publishTransaction(ctx context.Context, userID uuid.UUID, txType wallet.TransactionType, amount int64, reference string) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, event.Event{
		Type:   event.TypeTransaction,
		UserID: userID,
		Data: event.TransactionPayload{
			Amount:      amount,
			TxType:      string(txType),
			ReferenceID: reference,
		},
	})
}
