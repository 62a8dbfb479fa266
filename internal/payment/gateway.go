package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

const (
	ProviderPayPal   = "paypal"
	ProviderCrypto   = "crypto"
	ProviderMidtrans = "midtrans"
)

var (
	ErrGateway          = errors.New("payment gateway error")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnknownProvider  = errors.New("unknown payment provider")
)

// GatewayError wraps a transport or provider failure. The provider's raw
// response never leaves the service layer.
type GatewayError struct {
	Provider string
	Op       string
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

func gatewayErr(provider, op string, err error) error {
	return &GatewayError{Provider: provider, Op: op, Err: err}
}

type OrderRequest struct {
	InvoiceNumber string
	Amount        decimal.Decimal
	Currency      string
	Description   string
	Email         string
	ReturnURL     string
	CancelURL     string
	NotifyURL     string
}

type Order struct {
	OrderID    string
	PaymentURL string
}

type PaymentState string

const (
	StatePending PaymentState = "pending"
	StatePaid    PaymentState = "paid"
	StateFailed  PaymentState = "failed"
)

type PaymentStatus struct {
	OrderID       string
	State         PaymentState
	TransactionID string
	// RawStatus is the provider's own status word, kept for logs.
	RawStatus string
}

func (s *PaymentStatus) Paid() bool { return s != nil && s.State == StatePaid }

type EventKind string

const (
	EventIgnored  EventKind = "ignored"
	EventApproved EventKind = "approved" // buyer approved; capture still required
	EventPaid     EventKind = "paid"
	EventFailed   EventKind = "failed"
)

type WebhookEvent struct {
	EventID        string
	Type           string
	Kind           EventKind
	OrderID        string
	TransactionID  string
	SignatureValid bool
}

// Gateway is the uniform contract over every payment provider.
type Gateway interface {
	Name() string
	IsConfigured() bool
	// Sandbox marks gateways whose orders are never real charges.
	Sandbox() bool
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// CheckStatus captures (card/wallet) or looks up (crypto) the order.
	CheckStatus(ctx context.Context, orderID string) (*PaymentStatus, error)
	ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error)
}
