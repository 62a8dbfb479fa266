package payment

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMidtrans_ToIDR(t *testing.T) {
	gw := NewMidtrans(MidtransOptions{ServerKey: "sk", IDRPerUSD: 16000})
	require.Equal(t, int64(79840), gw.toIDR(decimal.RequireFromString("4.99")))
	require.Equal(t, int64(16), gw.toIDR(decimal.RequireFromString("0.001")))
}

func TestMidtrans_ParseWebhook(t *testing.T) {
	gw := NewMidtrans(MidtransOptions{ServerKey: "sk"})
	sig := midtransSignature("INV-1", "200", "79840.00", "sk")
	body := func(status, signature string) []byte {
		return []byte(fmt.Sprintf(`{"order_id":"INV-1","status_code":"200","gross_amount":"79840.00","transaction_id":"tx-1","transaction_status":%q,"fraud_status":"accept","signature_key":%q}`, status, signature))
	}

	ev, err := gw.ParseWebhook(context.Background(), body("settlement", sig), http.Header{})
	require.NoError(t, err)
	require.Equal(t, EventPaid, ev.Kind)
	require.Equal(t, "INV-1", ev.OrderID)
	require.Equal(t, "tx-1:settlement", ev.EventID)

	ev, err = gw.ParseWebhook(context.Background(), body("expire", sig), http.Header{})
	require.NoError(t, err)
	require.Equal(t, EventFailed, ev.Kind)

	_, err = gw.ParseWebhook(context.Background(), body("settlement", "bad"), http.Header{})
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestMidtransState(t *testing.T) {
	require.Equal(t, StatePaid, midtransState("capture", "accept"))
	require.Equal(t, StatePending, midtransState("capture", "challenge"))
	require.Equal(t, StatePending, midtransState("pending", ""))
	require.Equal(t, StateFailed, midtransState("deny", ""))
}
