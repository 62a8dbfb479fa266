package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/shinyyama/novelshelf-backend/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type VoucherHandler struct {
	svc    service.VoucherService
	logger *zap.Logger
}

func NewVoucherHandler(svc service.VoucherService, logger *zap.Logger) *VoucherHandler {
	return &VoucherHandler{svc: svc, logger: logger}
}

type validateVoucherRequest struct {
	Code   string          `json:"code" validate:"required,max=64"`
	Type   string          `json:"type" validate:"required,oneof=ebook membership"`
	Amount decimal.Decimal `json:"amount"`
}

type VoucherQuoteResponse struct {
	Code           string          `json:"code"`
	DiscountType   string          `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
}

// Validate quotes a voucher without reserving it.
func (h *VoucherHandler) Validate(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var body validateVoucherRequest
	if err := bindAndValidate(c, &body); err != nil {
		return respondError(c, h.logger, err)
	}
	q, err := h.svc.Evaluate(c.Request().Context(), body.Code, uid, model.VoucherScope(body.Type), body.Amount)
	if err != nil {
		if m, ok := lookupError(err); ok && service.IsVoucherError(err) {
			return c.JSON(m.status, map[string]interface{}{
				"success": false,
				"code":    errorCode(m.err),
				"message": m.message,
			})
		}
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data": VoucherQuoteResponse{
			Code:           q.Code,
			DiscountType:   string(q.DiscountType),
			DiscountValue:  q.DiscountValue,
			DiscountAmount: q.Discount,
			FinalAmount:    q.Final,
		},
	})
}
