package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/shinyyama/novelshelf-backend/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type MembershipHandler struct {
	svc    service.MembershipService
	logger *zap.Logger
}

func NewMembershipHandler(svc service.MembershipService, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{svc: svc, logger: logger}
}

type PackageResponse struct {
	ID           uint64          `json:"id"`
	Name         string          `json:"name"`
	Tier         string          `json:"tier"`
	DurationDays int             `json:"duration_days"`
	PriceUSD     decimal.Decimal `json:"price_usd"`
}

type MembershipPurchaseResponse struct {
	ID            uint64          `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	PackageID     uint64          `json:"package_id"`
	Tier          string          `json:"tier"`
	DurationDays  int             `json:"duration_days"`
	AmountUSD     decimal.Decimal `json:"amount_usd"`
	DiscountUSD   decimal.Decimal `json:"discount_usd"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	Sandbox       bool            `json:"sandbox"`
	StartsAt      *string         `json:"starts_at,omitempty"`
	ExpiresAt     *string         `json:"expires_at,omitempty"`
	CompletedAt   *string         `json:"completed_at,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(time.RFC3339)
	return &v
}

func toMembershipPurchaseResponse(p *model.MembershipPurchase) MembershipPurchaseResponse {
	return MembershipPurchaseResponse{
		ID:            p.ID,
		InvoiceNumber: p.InvoiceNumber,
		PackageID:     p.PackageID,
		Tier:          string(p.Tier),
		DurationDays:  p.DurationDays,
		AmountUSD:     p.AmountUSD,
		DiscountUSD:   p.DiscountUSD,
		PaymentMethod: p.PaymentMethod,
		Status:        string(p.Status),
		Sandbox:       p.Sandbox,
		StartsAt:      formatTime(p.StartsAt),
		ExpiresAt:     formatTime(p.ExpiresAt),
		CompletedAt:   formatTime(p.CompletedAt),
		CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *MembershipHandler) Packages(c echo.Context) error {
	list, err := h.svc.ListPackages(c.Request().Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}
	resp := make([]PackageResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, PackageResponse{
			ID:           p.ID,
			Name:         p.Name,
			Tier:         string(p.Tier),
			DurationDays: p.DurationDays,
			PriceUSD:     p.PriceUSD,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

type purchaseMembershipRequest struct {
	PackageID     uint64 `json:"package_id" validate:"required"`
	PaymentMethod string `json:"payment_method" validate:"required,max=32"`
	Email         string `json:"email" validate:"required,email"`
	VoucherCode   string `json:"voucher_code" validate:"max=64"`
}

func (h *MembershipHandler) Purchase(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var body purchaseMembershipRequest
	if err := bindAndValidate(c, &body); err != nil {
		return respondError(c, h.logger, err)
	}
	res, err := h.svc.Purchase(c.Request().Context(), uid, service.PurchaseInput{
		PackageID:     body.PackageID,
		PaymentMethod: body.PaymentMethod,
		Email:         body.Email,
		VoucherCode:   body.VoucherCode,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success":        true,
		"history_id":     res.HistoryID,
		"invoice_number": res.InvoiceNumber,
		"payment_url":    res.PaymentURL,
		"status_url":     res.StatusURL,
		"status":         res.Status,
		"sandbox":        res.Sandbox,
	})
}

func parseHistoryID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("historyId"), 10, 64)
	return id, err == nil && id > 0
}

// Status doubles as the gateway return target: reading a pending purchase
// polls the gateway.
func (h *MembershipHandler) Status(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := parseHistoryID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid history id"))
	}
	p, err := h.svc.Status(c.Request().Context(), uid, id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, toMembershipPurchaseResponse(p))
}

func (h *MembershipHandler) Cancel(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := parseHistoryID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid history id"))
	}
	p, err := h.svc.Cancel(c.Request().Context(), uid, id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, toMembershipPurchaseResponse(p))
}

func (h *MembershipHandler) History(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	list, err := h.svc.History(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	resp := make([]MembershipPurchaseResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toMembershipPurchaseResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

// Webhook receives gateway notifications. It is mounted without auth; the
// gateway adapter authenticates the payload.
func (h *MembershipHandler) Webhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "unreadable body"))
	}
	if err := h.svc.HandleWebhook(c.Request().Context(), c.Param("provider"), payload, c.Request().Header); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
