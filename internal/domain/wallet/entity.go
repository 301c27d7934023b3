package wallet

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType is the closed set of ledger entry types. Direction is fixed
// per type, never inferred from a signed amount.
type TransactionType string

const (
	TransactionTypeTopUp   TransactionType = "topup"   // client top-up confirmed out of band
	TransactionTypeDeposit TransactionType = "deposit" // provider deposit callback
	TransactionTypeCredit  TransactionType = "credit"  // admin adjustment up
	TransactionTypePayout  TransactionType = "payout"  // settlement leg: runner receives
	TransactionTypePayment TransactionType = "payment" // spend of spendable funds
	TransactionTypeDebit   TransactionType = "debit"   // admin adjustment down
	TransactionTypeEscrow  TransactionType = "escrow"  // settlement leg: client hold consumed
	TransactionTypeRefund  TransactionType = "refund"  // hold released back to balance
)

// Effect returns the per-unit deltas a transaction of this type applies to
// (balance, pending_balance). A refund moves funds between the two columns,
// so its net effect on the wallet total is zero.
func (t TransactionType) Effect() (balance, pending int64) {
	switch t {
	case TransactionTypeTopUp, TransactionTypeDeposit, TransactionTypeCredit, TransactionTypePayout:
		return 1, 0
	case TransactionTypePayment, TransactionTypeDebit:
		return -1, 0
	case TransactionTypeEscrow:
		return 0, -1
	case TransactionTypeRefund:
		return 1, -1
	}
	return 0, 0
}

// IsCreditClass reports whether the type increases the wallet total.
func (t TransactionType) IsCreditClass() bool {
	b, p := t.Effect()
	return b+p > 0
}

// IsDebitClass reports whether the type decreases the wallet total.
func (t TransactionType) IsDebitClass() bool {
	b, p := t.Effect()
	return b+p < 0
}

// Valid reports whether t is one of the known types.
func (t TransactionType) Valid() bool {
	b, p := t.Effect()
	return b != 0 || p != 0
}

// Wallet holds a user's spendable and escrowed funds in minor currency units.
type Wallet struct {
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	Balance        int64     `db:"balance" json:"balance"`
	PendingBalance int64     `db:"pending_balance" json:"pending_balance"`
	Frozen         bool      `db:"frozen" json:"frozen"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction is one append-only ledger row. Rows are never updated or
// deleted; they are the audit trail balances are reconciled against.
type Transaction struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	Amount      int64           `db:"amount" json:"amount"`
	Type        TransactionType `db:"type" json:"type"`
	ReferenceID *string         `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// SignedAmount is the entry's effect on the wallet total (balance + pending).
func (t *Transaction) SignedAmount() int64 {
	b, p := t.Type.Effect()
	return (b + p) * t.Amount
}
