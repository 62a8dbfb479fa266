package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type CryptoOptions struct {
	APIKey    string
	IPNSecret string
	BaseURL   string
	Timeout   time.Duration
}

// Crypto is an invoice-based crypto processor (NOWPayments-style API).
// The gateway order id is the processor's invoice id.
type Crypto struct {
	opts   CryptoOptions
	client *resty.Client
}

const cryptoSignatureHeader = "x-nowpayments-sig"

func NewCrypto(opts CryptoOptions) *Crypto {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("x-api-key", opts.APIKey).
		SetHeader("Content-Type", "application/json")
	return &Crypto{opts: opts, client: client}
}

func (c *Crypto) Name() string { return ProviderCrypto }

func (c *Crypto) IsConfigured() bool {
	return c.opts.APIKey != "" && c.opts.IPNSecret != "" && c.opts.BaseURL != ""
}

func (c *Crypto) Sandbox() bool { return false }

type cryptoInvoiceRequest struct {
	PriceAmount      float64 `json:"price_amount"`
	PriceCurrency    string  `json:"price_currency"`
	OrderID          string  `json:"order_id"`
	OrderDescription string  `json:"order_description"`
	IPNCallbackURL   string  `json:"ipn_callback_url,omitempty"`
	SuccessURL       string  `json:"success_url,omitempty"`
	CancelURL        string  `json:"cancel_url,omitempty"`
}

type cryptoInvoice struct {
	ID         json.Number `json:"id"`
	InvoiceURL string      `json:"invoice_url"`
}

func (c *Crypto) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = "usd"
	}
	body := cryptoInvoiceRequest{
		PriceAmount:      req.Amount.InexactFloat64(),
		PriceCurrency:    currency,
		OrderID:          req.InvoiceNumber,
		OrderDescription: req.Description,
		IPNCallbackURL:   req.NotifyURL,
		SuccessURL:       req.ReturnURL,
		CancelURL:        req.CancelURL,
	}
	var out cryptoInvoice
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v1/invoice")
	if err != nil {
		return nil, gatewayErr(c.Name(), "create_invoice", err)
	}
	if resp.IsError() {
		return nil, gatewayErr(c.Name(), "create_invoice", fmt.Errorf("status %d", resp.StatusCode()))
	}
	if out.ID == "" || out.InvoiceURL == "" {
		return nil, gatewayErr(c.Name(), "create_invoice", errors.New("response missing invoice id or url"))
	}
	return &Order{OrderID: out.ID.String(), PaymentURL: out.InvoiceURL}, nil
}

type cryptoPayment struct {
	PaymentID     json.Number `json:"payment_id"`
	InvoiceID     json.Number `json:"invoice_id"`
	OrderID       string      `json:"order_id"`
	PaymentStatus string      `json:"payment_status"`
}

func cryptoState(status string) PaymentState {
	switch status {
	case "finished", "confirmed":
		return StatePaid
	case "failed", "expired", "refunded":
		return StateFailed
	default:
		return StatePending
	}
}

// CheckStatus reads the newest payment attached to the invoice.
func (c *Crypto) CheckStatus(ctx context.Context, orderID string) (*PaymentStatus, error) {
	var out struct {
		Data []cryptoPayment `json:"data"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"invoiceId": orderID,
			"limit":     "1",
			"sortBy":    "created_at",
			"orderBy":   "desc",
		}).
		SetResult(&out).
		Get("/v1/payment/")
	if err != nil {
		return nil, gatewayErr(c.Name(), "payment_status", err)
	}
	if resp.IsError() {
		return nil, gatewayErr(c.Name(), "payment_status", fmt.Errorf("status %d", resp.StatusCode()))
	}
	if len(out.Data) == 0 {
		return &PaymentStatus{OrderID: orderID, State: StatePending, RawStatus: "waiting"}, nil
	}
	p := out.Data[0]
	return &PaymentStatus{
		OrderID:       orderID,
		State:         cryptoState(p.PaymentStatus),
		TransactionID: p.PaymentID.String(),
		RawStatus:     p.PaymentStatus,
	}, nil
}

// VerifySignature checks the HMAC-SHA512 of the key-sorted JSON body.
func (c *Crypto) VerifySignature(payload []byte, signature string) bool {
	if c.opts.IPNSecret == "" || signature == "" {
		return false
	}
	canonical, err := sortedJSON(payload)
	if err != nil {
		return false
	}
	want := signCrypto(c.opts.IPNSecret, canonical)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(signature)))
}

func (c *Crypto) ParseWebhook(_ context.Context, payload []byte, header http.Header) (*WebhookEvent, error) {
	if !c.VerifySignature(payload, header.Get(cryptoSignatureHeader)) {
		return nil, ErrInvalidSignature
	}
	var in cryptoPayment
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decode crypto webhook: %w", err)
	}
	ev := &WebhookEvent{
		EventID:        in.PaymentID.String() + ":" + in.PaymentStatus,
		Type:           in.PaymentStatus,
		OrderID:        in.InvoiceID.String(),
		TransactionID:  in.PaymentID.String(),
		SignatureValid: true,
	}
	switch cryptoState(in.PaymentStatus) {
	case StatePaid:
		ev.Kind = EventPaid
	case StateFailed:
		ev.Kind = EventFailed
	default:
		ev.Kind = EventIgnored
	}
	return ev, nil
}

func signCrypto(secret string, canonical []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}

// sortedJSON re-encodes payload with object keys in lexical order and
// numbers kept verbatim.
func sortedJSON(payload []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
