package wallet

import "testing"

func TestTransactionTypeEffect(t *testing.T) {
	cases := []struct {
		txType  TransactionType
		balance int64
		pending int64
	}{
		{TransactionTypeTopUp, 1, 0},
		{TransactionTypeDeposit, 1, 0},
		{TransactionTypeCredit, 1, 0},
		{TransactionTypePayout, 1, 0},
		{TransactionTypePayment, -1, 0},
		{TransactionTypeDebit, -1, 0},
		{TransactionTypeEscrow, 0, -1},
		{TransactionTypeRefund, 1, -1},
	}

	for _, c := range cases {
		b, p := c.txType.Effect()
		if b != c.balance || p != c.pending {
			t.Errorf("%s: got effect (%d,%d), want (%d,%d)", c.txType, b, p, c.balance, c.pending)
		}
	}

	if b, p := TransactionType("bogus").Effect(); b != 0 || p != 0 {
		t.Errorf("unknown type must have zero effect, got (%d,%d)", b, p)
	}
	if TransactionType("bogus").Valid() {
		t.Error("unknown type must not be valid")
	}
}

func TestSignedAmount(t *testing.T) {
	tx := Transaction{Amount: 40, Type: TransactionTypeTopUp}
	if tx.SignedAmount() != 40 {
		t.Errorf("topup signed amount: got %d, want 40", tx.SignedAmount())
	}

	tx.Type = TransactionTypeEscrow
	if tx.SignedAmount() != -40 {
		t.Errorf("escrow signed amount: got %d, want -40", tx.SignedAmount())
	}

	// A refund moves funds between columns; the wallet total is unchanged.
	tx.Type = TransactionTypeRefund
	if tx.SignedAmount() != 0 {
		t.Errorf("refund signed amount: got %d, want 0", tx.SignedAmount())
	}
}
