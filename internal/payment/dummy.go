package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Dummy stands in for an unconfigured provider outside production. Orders
// are marked sandbox and every status check reports paid.
type Dummy struct {
	name string
}

func NewDummy(name string) *Dummy {
	return &Dummy{name: name}
}

func (d *Dummy) Name() string       { return d.name }
func (d *Dummy) IsConfigured() bool { return true }
func (d *Dummy) Sandbox() bool      { return true }

func (d *Dummy) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	return &Order{OrderID: "DUMMY-" + req.InvoiceNumber, PaymentURL: req.ReturnURL}, nil
}

func (d *Dummy) CheckStatus(_ context.Context, orderID string) (*PaymentStatus, error) {
	return &PaymentStatus{
		OrderID:       orderID,
		State:         StatePaid,
		TransactionID: orderID,
		RawStatus:     "dummy_paid",
	}, nil
}

func (d *Dummy) ParseWebhook(_ context.Context, payload []byte, _ http.Header) (*WebhookEvent, error) {
	var in struct {
		EventID string `json:"event_id"`
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decode dummy webhook: %w", err)
	}
	ev := &WebhookEvent{
		EventID:        in.EventID,
		Type:           in.Status,
		OrderID:        in.OrderID,
		TransactionID:  in.OrderID,
		SignatureValid: true,
	}
	if ev.EventID == "" {
		ev.EventID = in.OrderID + ":" + in.Status
	}
	switch in.Status {
	case "paid":
		ev.Kind = EventPaid
	case "failed":
		ev.Kind = EventFailed
	default:
		ev.Kind = EventIgnored
	}
	return ev, nil
}
