package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSortedJSON(t *testing.T) {
	got, err := sortedJSON([]byte(`{"b":1.50,"a":{"d":2,"c":"x&y"},"e":[3,{"z":1,"y":2}]}`))
	require.NoError(t, err)
	require.Equal(t, `{"a":{"c":"x&y","d":2},"b":1.50,"e":[3,{"y":2,"z":1}]}`, string(got))
}

func TestCrypto_VerifySignature(t *testing.T) {
	gw := NewCrypto(CryptoOptions{APIKey: "k", IPNSecret: "ipn", BaseURL: "http://unused"})
	payload := []byte(`{"payment_status":"finished","payment_id":5077125051,"invoice_id":4522625843}`)
	canonical, err := sortedJSON(payload)
	require.NoError(t, err)
	sig := signCrypto("ipn", canonical)

	require.True(t, gw.VerifySignature(payload, sig))
	require.False(t, gw.VerifySignature(payload, signCrypto("other", canonical)))
	require.False(t, gw.VerifySignature(payload, ""))

	noSecret := NewCrypto(CryptoOptions{APIKey: "k", BaseURL: "http://unused"})
	require.False(t, noSecret.VerifySignature(payload, sig))
}

func TestCrypto_ParseWebhook(t *testing.T) {
	gw := NewCrypto(CryptoOptions{APIKey: "k", IPNSecret: "ipn", BaseURL: "http://unused"})
	payload := []byte(`{"payment_id":5077125051,"invoice_id":4522625843,"order_id":"INV-1","payment_status":"finished"}`)
	canonical, err := sortedJSON(payload)
	require.NoError(t, err)

	h := http.Header{}
	h.Set(cryptoSignatureHeader, signCrypto("ipn", canonical))
	ev, err := gw.ParseWebhook(context.Background(), payload, h)
	require.NoError(t, err)
	require.Equal(t, EventPaid, ev.Kind)
	require.Equal(t, "4522625843", ev.OrderID)
	require.Equal(t, "5077125051:finished", ev.EventID)

	h.Set(cryptoSignatureHeader, "deadbeef")
	_, err = gw.ParseWebhook(context.Background(), payload, h)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestCrypto_CreateOrderAndStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/invoice", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "k", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":4522625843,"invoice_url":"https://pay.test/i/4522625843"}`))
	})
	mux.HandleFunc("/v1/payment/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "4522625843", r.URL.Query().Get("invoiceId"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"payment_id":77,"invoice_id":4522625843,"payment_status":"confirmed"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	gw := NewCrypto(CryptoOptions{APIKey: "k", IPNSecret: "ipn", BaseURL: srv.URL})

	order, err := gw.CreateOrder(context.Background(), OrderRequest{InvoiceNumber: "INV-1", Amount: decimal.RequireFromString("4.99")})
	require.NoError(t, err)
	require.Equal(t, "4522625843", order.OrderID)
	require.Equal(t, "https://pay.test/i/4522625843", order.PaymentURL)

	st, err := gw.CheckStatus(context.Background(), order.OrderID)
	require.NoError(t, err)
	require.True(t, st.Paid())
	require.Equal(t, "77", st.TransactionID)
}

func TestCryptoState(t *testing.T) {
	tests := map[string]PaymentState{
		"waiting":        StatePending,
		"confirming":     StatePending,
		"partially_paid": StatePending,
		"confirmed":      StatePaid,
		"finished":       StatePaid,
		"failed":         StateFailed,
		"expired":        StateFailed,
		"refunded":       StateFailed,
	}
	for in, want := range tests {
		require.Equal(t, want, cryptoState(in), in)
	}
}
