package payment

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
)

type MidtransOptions struct {
	ServerKey  string
	Production bool
	// IDRPerUSD converts USD prices, since Snap only charges in rupiah.
	IDRPerUSD int64
}

// Midtrans creates Snap transactions keyed by our invoice number, so the
// gateway order id equals the invoice number.
type Midtrans struct {
	opts MidtransOptions
	snap snap.Client
	core coreapi.Client
}

func NewMidtrans(opts MidtransOptions) *Midtrans {
	if opts.IDRPerUSD <= 0 {
		opts.IDRPerUSD = 16000
	}
	env := midtrans.Sandbox
	if opts.Production {
		env = midtrans.Production
	}
	m := &Midtrans{opts: opts}
	m.snap.New(opts.ServerKey, env)
	m.core.New(opts.ServerKey, env)
	return m
}

func (m *Midtrans) Name() string { return ProviderMidtrans }

func (m *Midtrans) IsConfigured() bool { return m.opts.ServerKey != "" }

func (m *Midtrans) Sandbox() bool { return false }

// toIDR rounds up so the charge never undershoots the USD price.
func (m *Midtrans) toIDR(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(m.opts.IDRPerUSD)).Ceil().IntPart()
}

func (m *Midtrans) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	sreq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.InvoiceNumber,
			GrossAmt: m.toIDR(req.Amount),
		},
		Callbacks: &snap.Callbacks{Finish: req.ReturnURL},
	}
	if req.Email != "" {
		sreq.CustomerDetail = &midtrans.CustomerDetails{Email: req.Email}
	}
	resp, merr := m.snap.CreateTransaction(sreq)
	if merr != nil {
		return nil, gatewayErr(m.Name(), "create_transaction", errors.New(merr.Message))
	}
	if resp == nil || resp.RedirectURL == "" {
		return nil, gatewayErr(m.Name(), "create_transaction", errors.New("response missing redirect url"))
	}
	return &Order{OrderID: req.InvoiceNumber, PaymentURL: resp.RedirectURL}, nil
}

func midtransState(transactionStatus, fraudStatus string) PaymentState {
	switch transactionStatus {
	case "settlement":
		return StatePaid
	case "capture":
		if fraudStatus == "" || fraudStatus == "accept" {
			return StatePaid
		}
		return StatePending
	case "deny", "cancel", "expire", "failure":
		return StateFailed
	default:
		return StatePending
	}
}

func (m *Midtrans) CheckStatus(_ context.Context, orderID string) (*PaymentStatus, error) {
	resp, merr := m.core.CheckTransaction(orderID)
	if merr != nil {
		if merr.StatusCode == http.StatusNotFound {
			// Snap has no transaction until the buyer picks a channel.
			return &PaymentStatus{OrderID: orderID, State: StatePending, RawStatus: "not_found"}, nil
		}
		return nil, gatewayErr(m.Name(), "check_transaction", errors.New(merr.Message))
	}
	return &PaymentStatus{
		OrderID:       orderID,
		State:         midtransState(resp.TransactionStatus, resp.FraudStatus),
		TransactionID: resp.TransactionID,
		RawStatus:     resp.TransactionStatus,
	}, nil
}

type midtransNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
}

func midtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func (m *Midtrans) ParseWebhook(_ context.Context, payload []byte, _ http.Header) (*WebhookEvent, error) {
	var in midtransNotification
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decode midtrans notification: %w", err)
	}
	want := midtransSignature(in.OrderID, in.StatusCode, in.GrossAmount, m.opts.ServerKey)
	if m.opts.ServerKey == "" || subtle.ConstantTimeCompare([]byte(want), []byte(in.SignatureKey)) != 1 {
		return nil, ErrInvalidSignature
	}
	ev := &WebhookEvent{
		EventID:        in.TransactionID + ":" + in.TransactionStatus,
		Type:           in.TransactionStatus,
		OrderID:        in.OrderID,
		TransactionID:  in.TransactionID,
		SignatureValid: true,
	}
	switch midtransState(in.TransactionStatus, in.FraudStatus) {
	case StatePaid:
		ev.Kind = EventPaid
	case StateFailed:
		ev.Kind = EventFailed
	default:
		ev.Kind = EventIgnored
	}
	return ev, nil
}
