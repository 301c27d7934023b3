package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/taskrun/taskrun-api/internal/domain/user"
)

// Service wraps the ledger repository with amount/identity validation and
// money-movement logging. Task lifecycle money moves through the escrow
// engine, not here; this surface covers top-ups, reads, and admin
// adjustments.
type Service struct {
	repo  *Repository
	users user.Repository
}

func NewService(repo *Repository, users user.Repository) *Service {
	return &Service{repo: repo, users: users}
}

// GetWallet returns the user's balances.
func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	return s.repo.GetWallet(ctx, userID)
}

// ListTransactions returns a page of the user's ledger, oldest-first, with
// the total row count for pagination.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, int, error) {
	txs, err := s.repo.ListTransactions(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountTransactions(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// TopUp credits the wallet from an out-of-band deposit confirmation and
// returns the recorded ledger entry. The reference deduplicates provider
// retries; when the caller supplies none, one is generated.
func (s *Service) TopUp(ctx context.Context, userID uuid.UUID, amount int64, referenceID string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := s.users.EnsureActive(ctx, userID); err != nil {
		return nil, err
	}
	if referenceID == "" {
		referenceID = uuid.New().String()
	}

	if err := s.repo.Credit(ctx, userID, amount, TransactionTypeTopUp, referenceID); err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Int64("amount", amount).
		Str("reference_id", referenceID).
		Msg("wallet topup applied")

	return s.repo.GetTransaction(ctx, userID, TransactionTypeTopUp, referenceID)
}

// Adjust applies an admin correction using the credit/debit entry types.
func (s *Service) Adjust(ctx context.Context, userID uuid.UUID, amount int64, txType TransactionType, referenceID string) (*Transaction, error) {
	if amount <= 0 || referenceID == "" {
		return nil, ErrInvalidAmount
	}
	if txType != TransactionTypeCredit && txType != TransactionTypeDebit {
		return nil, ErrInvalidAmount
	}
	if _, err := s.users.EnsureActive(ctx, userID); err != nil {
		return nil, err
	}

	var err error
	if txType == TransactionTypeCredit {
		err = s.repo.Credit(ctx, userID, amount, txType, referenceID)
	} else {
		err = s.repo.Debit(ctx, userID, amount, txType, referenceID)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Int64("amount", amount).
		Str("type", string(txType)).
		Str("reference_id", referenceID).
		Msg("wallet adjustment applied")

	return s.repo.GetTransaction(ctx, userID, txType, referenceID)
}

// Audit replays the ledger against the stored balances.
func (s *Service) Audit(ctx context.Context, userID uuid.UUID) (*AuditReport, error) {
	report, err := s.repo.Reconcile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !report.Consistent {
		log.Error().
			Str("user_id", userID.String()).
			Int64("ledger_total", report.LedgerTotal).
			Int64("balance", report.Balance).
			Int64("pending_balance", report.PendingBalance).
			Msg("wallet audit found ledger inconsistency")
	}
	return report, nil
}

// Unfreeze clears the investigation gate on a wallet.
func (s *Service) Unfreeze(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.Unfreeze(ctx, userID); err != nil {
		return err
	}
	log.Warn().Str("user_id", userID.String()).Msg("wallet unfrozen by operator")
	return nil
}
