package wallet

import (
	"bytes"
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Repository is the single gateway for wallet state. Every mutation locks the
// wallet row(s) FOR UPDATE inside one transaction, so the sufficiency check
// and the balance write share the same exclusive section, and the ledger row
// commits if and only if the balance change does.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// BeginTx starts a transaction suitable for composing ledger primitives with
// other per-entity writes (the escrow engine's task transitions).
func (r *Repository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// EnsureWallet creates an empty wallet row for the user if none exists.
func (r *Repository) EnsureWallet(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_wallets (user_id, balance, pending_balance)
		VALUES ($1, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

// GetWallet returns the wallet for the user, creating it on first access.
func (r *Repository) GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	if err := r.EnsureWallet(ctx, userID); err != nil {
		return nil, err
	}

	var w Wallet
	err := r.db.GetContext(ctx, &w, `
		SELECT user_id, balance, pending_balance, frozen, updated_at
		FROM user_wallets WHERE user_id = $1
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

// ListTransactions returns the user's ledger oldest-first. The log is
// append-only; a row read once never reads back different.
func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	txs := make([]Transaction, 0)
	err := r.db.SelectContext(ctx, &txs, `
		SELECT id, user_id, amount, type, reference_id, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return txs, err
}

// GetTransaction returns the ledger row identified by (user, type, reference).
func (r *Repository) GetTransaction(ctx context.Context, userID uuid.UUID, txType TransactionType, referenceID string) (*Transaction, error) {
	var t Transaction
	err := r.db.GetContext(ctx, &t, `
		SELECT id, user_id, amount, type, reference_id, created_at
		FROM wallet_transactions
		WHERE user_id = $1 AND type = $2 AND reference_id = $3
		LIMIT 1
	`, userID, string(txType), referenceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CountTransactions returns the total ledger rows for the user.
func (r *Repository) CountTransactions(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM wallet_transactions WHERE user_id = $1`, userID)
	return n, err
}

// Freeze gates all further mutations on the wallet until an operator clears
// it. Used when a settlement detects the conservation law broken.
func (r *Repository) Freeze(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_wallets SET frozen = true, updated_at = now() WHERE user_id = $1
	`, userID)
	return err
}

// Unfreeze re-enables mutations after manual reconciliation.
func (r *Repository) Unfreeze(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_wallets SET frozen = false, updated_at = now() WHERE user_id = $1
	`, userID)
	return err
}

// AuditReport compares the stored balances against the replayed ledger.
type AuditReport struct {
	UserID         uuid.UUID `json:"user_id"`
	Balance        int64     `json:"balance"`
	PendingBalance int64     `json:"pending_balance"`
	LedgerTotal    int64     `json:"ledger_total"`
	Consistent     bool      `json:"consistent"`
}

// Reconcile replays the signed ledger and checks it against
// balance + pending_balance. Read-only; used by tests and the admin audit
// endpoint for dispute resolution.
func (r *Repository) Reconcile(ctx context.Context, userID uuid.UUID) (*AuditReport, error) {
	w, err := r.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	var total int64
	err = r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(
			CASE type
				WHEN 'topup'   THEN amount
				WHEN 'deposit' THEN amount
				WHEN 'credit'  THEN amount
				WHEN 'payout'  THEN amount
				WHEN 'payment' THEN -amount
				WHEN 'debit'   THEN -amount
				WHEN 'escrow'  THEN -amount
				ELSE 0
			END
		), 0)
		FROM wallet_transactions
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}

	return &AuditReport{
		UserID:         userID,
		Balance:        w.Balance,
		PendingBalance: w.PendingBalance,
		LedgerTotal:    total,
		Consistent:     total == w.Balance+w.PendingBalance,
	}, nil
}

// ---- locked-row helpers ----

type walletRow struct {
	Balance        int64 `db:"balance"`
	PendingBalance int64 `db:"pending_balance"`
	Frozen         bool  `db:"frozen"`
}

func (r *Repository) lockWallet(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (walletRow, error) {
	var row walletRow
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_wallets (user_id, balance, pending_balance)
		VALUES ($1, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return row, err
	}

	err := tx.GetContext(ctx, &row, `
		SELECT balance, pending_balance, frozen
		FROM user_wallets WHERE user_id = $1 FOR UPDATE
	`, userID)
	if err != nil {
		return row, err
	}
	if row.Frozen {
		return row, ErrWalletFrozen
	}
	return row, nil
}

// lockWalletPair locks two wallet rows in stable UUID order, never in
// argument order, so concurrent settlements over the same pair cannot
// deadlock.
func (r *Repository) lockWalletPair(ctx context.Context, tx *sqlx.Tx, a, b uuid.UUID) (rowA, rowB walletRow, err error) {
	first, second := a, b
	if bytes.Compare(b[:], a[:]) < 0 {
		first, second = b, a
	}

	rows := make(map[uuid.UUID]walletRow, 2)
	for _, id := range []uuid.UUID{first, second} {
		row, lockErr := r.lockWallet(ctx, tx, id)
		if lockErr != nil {
			return rowA, rowB, lockErr
		}
		rows[id] = row
	}
	return rows[a], rows[b], nil
}

func (r *Repository) findByReference(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, txType TransactionType, referenceID string) (int64, bool, error) {
	if referenceID == "" {
		return 0, false, nil
	}

	var amount int64
	err := tx.GetContext(ctx, &amount, `
		SELECT amount
		FROM wallet_transactions
		WHERE user_id = $1 AND type = $2 AND reference_id = $3
		LIMIT 1
	`, userID, string(txType), referenceID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return amount, true, nil
}

func (r *Repository) applyDeltas(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, balanceDelta, pendingDelta int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE user_wallets
		SET balance = balance + $1, pending_balance = pending_balance + $2, updated_at = now()
		WHERE user_id = $3
	`, balanceDelta, pendingDelta, userID)
	return err
}

func (r *Repository) insertTransaction(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, txType TransactionType, referenceID string) error {
	var ref interface{}
	if referenceID == "" {
		ref = nil
	} else {
		ref = referenceID
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (user_id, amount, type, reference_id)
		VALUES ($1, $2, $3, $4)
	`, userID, amount, string(txType), ref)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

// appendEntry writes one ledger row. Replays are detected by the reference
// lookup under the wallet row lock before any delta is applied, so a unique
// violation here is a genuine conflict: the transaction aborts and no delta
// survives.
func (r *Repository) appendEntry(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, txType TransactionType, referenceID string) error {
	err := r.insertTransaction(ctx, tx, userID, amount, txType, referenceID)
	if errors.Is(err, ErrDuplicateReference) {
		return ErrReferenceConflict
	}
	return err
}

// ---- mutation primitives ----

// CreditTx increases the spendable balance within the caller's transaction.
// Only credit-class types that land on balance are accepted.
func (r *Repository) CreditTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, txType TransactionType, referenceID string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if b, p := txType.Effect(); b != 1 || p != 0 {
		return ErrInvalidAmount
	}

	if _, err := r.lockWallet(ctx, tx, userID); err != nil {
		return err
	}

	existing, exists, err := r.findByReference(ctx, tx, userID, txType, referenceID)
	if err != nil {
		return err
	}
	if exists {
		if existing != amount {
			return ErrReferenceConflict
		}
		return nil
	}

	if err := r.applyDeltas(ctx, tx, userID, amount, 0); err != nil {
		return err
	}
	return r.appendEntry(ctx, tx, userID, amount, txType, referenceID)
}

// DebitTx decreases the spendable balance within the caller's transaction.
func (r *Repository) DebitTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, txType TransactionType, referenceID string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if b, p := txType.Effect(); b != -1 || p != 0 {
		return ErrInvalidAmount
	}

	row, err := r.lockWallet(ctx, tx, userID)
	if err != nil {
		return err
	}

	existing, exists, err := r.findByReference(ctx, tx, userID, txType, referenceID)
	if err != nil {
		return err
	}
	if exists {
		if existing != amount {
			return ErrReferenceConflict
		}
		return nil
	}

	if row.Balance < amount {
		return ErrInsufficientFunds
	}

	if err := r.applyDeltas(ctx, tx, userID, -amount, 0); err != nil {
		return err
	}
	return r.appendEntry(ctx, tx, userID, amount, txType, referenceID)
}

// HoldTx moves amount from balance into pending_balance. The hold is an
// internal move with zero net effect on the wallet total, so it writes no
// ledger row; its audit trail is the eventual refund or escrow/payout pair
// under the same reference.
func (r *Repository) HoldTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, referenceID string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	row, err := r.lockWallet(ctx, tx, userID)
	if err != nil {
		return err
	}
	if row.Balance < amount {
		return ErrInsufficientFunds
	}

	return r.applyDeltas(ctx, tx, userID, -amount, amount)
}

// ReleaseTx moves amount back from pending_balance to balance, recording a
// refund row under the reference. A short pending balance means a double
// release upstream and is surfaced, never absorbed.
func (r *Repository) ReleaseTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, referenceID string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	row, err := r.lockWallet(ctx, tx, userID)
	if err != nil {
		return err
	}

	existing, exists, err := r.findByReference(ctx, tx, userID, TransactionTypeRefund, referenceID)
	if err != nil {
		return err
	}
	if exists {
		if existing != amount {
			return ErrReferenceConflict
		}
		return nil
	}

	if row.PendingBalance < amount {
		return ErrInsufficientPending
	}

	if err := r.applyDeltas(ctx, tx, userID, amount, -amount); err != nil {
		return err
	}
	return r.appendEntry(ctx, tx, userID, amount, TransactionTypeRefund, referenceID)
}

// SettleTx is the only way money crosses wallets: it consumes the source
// hold (escrow row) and credits the destination balance (payout row), both
// legs sharing the reference. Replaying a fully committed reference is a
// no-op returning the prior result; a reference with one leg missing is
// re-driven to completion, never reversed.
func (r *Repository) SettleTx(ctx context.Context, tx *sqlx.Tx, srcUserID, dstUserID uuid.UUID, amount int64, referenceID string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if referenceID == "" {
		return ErrInvalidAmount
	}

	srcRow, _, err := r.lockWalletPair(ctx, tx, srcUserID, dstUserID)
	if err != nil {
		return err
	}

	srcAmount, srcDone, err := r.findByReference(ctx, tx, srcUserID, TransactionTypeEscrow, referenceID)
	if err != nil {
		return err
	}
	dstAmount, dstDone, err := r.findByReference(ctx, tx, dstUserID, TransactionTypePayout, referenceID)
	if err != nil {
		return err
	}
	if (srcDone && srcAmount != amount) || (dstDone && dstAmount != amount) {
		return ErrReferenceConflict
	}
	if srcDone && dstDone {
		return nil
	}

	if !srcDone {
		if srcRow.PendingBalance < amount {
			return ErrInsufficientPending
		}
		if err := r.applyDeltas(ctx, tx, srcUserID, 0, -amount); err != nil {
			return err
		}
		if err := r.appendEntry(ctx, tx, srcUserID, amount, TransactionTypeEscrow, referenceID); err != nil {
			return err
		}
	}

	if !dstDone {
		if err := r.applyDeltas(ctx, tx, dstUserID, amount, 0); err != nil {
			return err
		}
		if err := r.appendEntry(ctx, tx, dstUserID, amount, TransactionTypePayout, referenceID); err != nil {
			return err
		}
	}

	return nil
}

// ---- standalone variants committing their own transaction ----

func (r *Repository) Credit(ctx context.Context, userID uuid.UUID, amount int64, txType TransactionType, referenceID string) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		return r.CreditTx(ctx, tx, userID, amount, txType, referenceID)
	})
}

func (r *Repository) Debit(ctx context.Context, userID uuid.UUID, amount int64, txType TransactionType, referenceID string) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		return r.DebitTx(ctx, tx, userID, amount, txType, referenceID)
	})
}

func (r *Repository) Hold(ctx context.Context, userID uuid.UUID, amount int64, referenceID string) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		return r.HoldTx(ctx, tx, userID, amount, referenceID)
	})
}

func (r *Repository) Release(ctx context.Context, userID uuid.UUID, amount int64, referenceID string) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		return r.ReleaseTx(ctx, tx, userID, amount, referenceID)
	})
}

func (r *Repository) Settle(ctx context.Context, srcUserID, dstUserID uuid.UUID, amount int64, referenceID string) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		return r.SettleTx(ctx, tx, srcUserID, dstUserID, amount, referenceID)
	})
}
