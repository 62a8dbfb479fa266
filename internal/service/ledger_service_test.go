package service

import (
	"context"
	"testing"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLedger_CreditDebitWriteEntries(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	bal, err := e.ledger.Credit(ctx, "u1", 100, model.LedgerReasonAdminGrant, "grant-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), bal)

	bal, err = e.ledger.Debit(ctx, "u1", 30, model.LedgerReasonCheckout, "TRX-1")
	require.NoError(t, err)
	require.Equal(t, int64(70), bal)

	hist, err := e.ledger.History(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, int64(-30), hist[0].Change)
	require.Equal(t, int64(70), hist[0].BalanceAfter)
	require.Equal(t, "TRX-1", hist[0].Reference)
	require.Equal(t, int64(100), hist[1].BalanceAfter)
}

func TestLedger_DebitBeyondBalanceLeavesItUnchanged(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fund(t, "u1", 50)

	_, err := e.ledger.Debit(ctx, "u1", 51, model.LedgerReasonCheckout, "TRX-1")
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Equal(t, int64(50), e.balance(t, "u1"))

	hist, err := e.ledger.History(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
}

func TestLedger_NeverNegativeOverSequence(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	ops := []int64{40, -10, -50, 25, -55, -1, 5, -60}
	var want int64
	for _, op := range ops {
		var err error
		if op > 0 {
			_, err = e.ledger.Credit(ctx, "u1", op, model.LedgerReasonTopUp, "")
			require.NoError(t, err)
			want += op
		} else {
			_, err = e.ledger.Debit(ctx, "u1", -op, model.LedgerReasonCheckout, "")
			if want+op < 0 {
				require.ErrorIs(t, err, ErrInsufficientFunds)
			} else {
				require.NoError(t, err)
				want += op
			}
		}
		got := e.balance(t, "u1")
		require.Equal(t, want, got)
		require.GreaterOrEqual(t, got, int64(0))
	}
}

func TestLedger_RejectsInvalidAmounts(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.ledger.Credit(ctx, "u1", 0, model.LedgerReasonTopUp, "")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Contains(t, ve.Fields, "amount")

	_, err = e.ledger.Debit(ctx, "", -5, model.LedgerReasonCheckout, "")
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Fields, 2)
}
