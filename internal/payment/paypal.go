package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type PayPalOptions struct {
	ClientID  string
	Secret    string
	BaseURL   string
	WebhookID string
	Timeout   time.Duration
}

// PayPal talks to the Orders v2 API with a client-credentials token source.
type PayPal struct {
	opts   PayPalOptions
	client *resty.Client
}

func NewPayPal(opts PayPalOptions) *PayPal {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	cc := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.Secret,
		TokenURL:     opts.BaseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	hc := cc.Client(context.Background())
	hc.Timeout = opts.Timeout
	client := resty.NewWithClient(hc).
		SetBaseURL(opts.BaseURL).
		SetHeader("Content-Type", "application/json")
	return &PayPal{opts: opts, client: client}
}

func (p *PayPal) Name() string { return ProviderPayPal }

func (p *PayPal) IsConfigured() bool {
	return p.opts.ClientID != "" && p.opts.Secret != "" && p.opts.BaseURL != ""
}

func (p *PayPal) Sandbox() bool { return false }

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id,omitempty"`
	InvoiceID   string       `json:"invoice_id,omitempty"`
	Description string       `json:"description,omitempty"`
	Amount      paypalAmount `json:"amount"`
}

type paypalCreateOrder struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit `json:"purchase_units"`
	ApplicationContext map[string]string    `json:"application_context,omitempty"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalCapture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type paypalOrder struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []paypalCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (o *paypalOrder) approveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

func (o *paypalOrder) captureID() string {
	for _, pu := range o.PurchaseUnits {
		for _, c := range pu.Payments.Captures {
			if c.ID != "" {
				return c.ID
			}
		}
	}
	return ""
}

func (o *paypalOrder) toStatus() *PaymentStatus {
	st := &PaymentStatus{OrderID: o.ID, RawStatus: o.Status, State: StatePending}
	switch o.Status {
	case "COMPLETED":
		st.State = StatePaid
		st.TransactionID = o.captureID()
	case "VOIDED":
		st.State = StateFailed
	}
	return st
}

func (p *PayPal) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	body := paypalCreateOrder{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			ReferenceID: req.InvoiceNumber,
			InvoiceID:   req.InvoiceNumber,
			Description: req.Description,
			Amount:      paypalAmount{CurrencyCode: currency, Value: req.Amount.StringFixed(2)},
		}},
		ApplicationContext: map[string]string{
			"return_url":  req.ReturnURL,
			"cancel_url":  req.CancelURL,
			"user_action": "PAY_NOW",
		},
	}
	var out paypalOrder
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("PayPal-Request-Id", req.InvoiceNumber).
		SetBody(body).
		SetResult(&out).
		Post("/v2/checkout/orders")
	if err != nil {
		return nil, gatewayErr(p.Name(), "create_order", err)
	}
	if resp.IsError() {
		return nil, gatewayErr(p.Name(), "create_order", fmt.Errorf("status %d", resp.StatusCode()))
	}
	link := out.approveURL()
	if out.ID == "" || link == "" {
		return nil, gatewayErr(p.Name(), "create_order", errors.New("response missing order id or approve link"))
	}
	return &Order{OrderID: out.ID, PaymentURL: link}, nil
}

// CheckStatus captures an approved order. An order that cannot be captured
// yet (not approved, or already captured) is read back instead.
func (p *PayPal) CheckStatus(ctx context.Context, orderID string) (*PaymentStatus, error) {
	var out paypalOrder
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("PayPal-Request-Id", "capture-"+orderID).
		SetBody(map[string]string{}).
		SetResult(&out).
		Post("/v2/checkout/orders/" + orderID + "/capture")
	if err != nil {
		return nil, gatewayErr(p.Name(), "capture_order", err)
	}
	if resp.StatusCode() == http.StatusUnprocessableEntity {
		return p.getOrder(ctx, orderID)
	}
	if resp.IsError() {
		return nil, gatewayErr(p.Name(), "capture_order", fmt.Errorf("status %d", resp.StatusCode()))
	}
	return out.toStatus(), nil
}

func (p *PayPal) getOrder(ctx context.Context, orderID string) (*PaymentStatus, error) {
	var out paypalOrder
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v2/checkout/orders/" + orderID)
	if err != nil {
		return nil, gatewayErr(p.Name(), "get_order", err)
	}
	if resp.IsError() {
		return nil, gatewayErr(p.Name(), "get_order", fmt.Errorf("status %d", resp.StatusCode()))
	}
	return out.toStatus(), nil
}

type paypalWebhook struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	// Order events carry the order itself; capture events carry the capture.
	Resource struct {
		paypalOrder
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// ParseWebhook trusts the event type unless a webhook id is configured, in
// which case PayPal's verify-webhook-signature endpoint must accept it.
func (p *PayPal) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error) {
	var in paypalWebhook
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decode paypal webhook: %w", err)
	}
	verified := false
	if p.opts.WebhookID != "" {
		ok, err := p.verifySignature(ctx, payload, header)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidSignature
		}
		verified = true
	}
	ev := &WebhookEvent{
		EventID:        in.ID,
		Type:           in.EventType,
		Kind:           EventIgnored,
		SignatureValid: verified,
	}
	switch in.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		ev.Kind = EventApproved
		ev.OrderID = in.Resource.ID
	case "CHECKOUT.ORDER.COMPLETED":
		ev.Kind = EventPaid
		ev.OrderID = in.Resource.ID
		ev.TransactionID = in.Resource.captureID()
	case "PAYMENT.CAPTURE.COMPLETED":
		ev.Kind = EventPaid
		ev.OrderID = in.Resource.SupplementaryData.RelatedIDs.OrderID
		ev.TransactionID = in.Resource.ID
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		ev.Kind = EventFailed
		ev.OrderID = in.Resource.SupplementaryData.RelatedIDs.OrderID
	}
	return ev, nil
}

func (p *PayPal) verifySignature(ctx context.Context, payload []byte, header http.Header) (bool, error) {
	body := map[string]interface{}{
		"auth_algo":         header.Get("PAYPAL-AUTH-ALGO"),
		"cert_url":          header.Get("PAYPAL-CERT-URL"),
		"transmission_id":   header.Get("PAYPAL-TRANSMISSION-ID"),
		"transmission_sig":  header.Get("PAYPAL-TRANSMISSION-SIG"),
		"transmission_time": header.Get("PAYPAL-TRANSMISSION-TIME"),
		"webhook_id":        p.opts.WebhookID,
		"webhook_event":     json.RawMessage(payload),
	}
	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v1/notifications/verify-webhook-signature")
	if err != nil {
		return false, gatewayErr(p.Name(), "verify_webhook", err)
	}
	if resp.IsError() {
		return false, gatewayErr(p.Name(), "verify_webhook", fmt.Errorf("status %d", resp.StatusCode()))
	}
	return out.VerificationStatus == "SUCCESS", nil
}
