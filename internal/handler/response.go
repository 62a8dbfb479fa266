package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/novelshelf-backend/internal/reqctx"
	"github.com/shinyyama/novelshelf-backend/internal/service"
	"go.uber.org/zap"
)

type errorPayload struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: errorPayload{
			Code:    code,
			Message: message,
		},
	}
}

type errorMapping struct {
	err     error
	status  int
	message string
}

// errorTable is matched in order with errors.Is.
var errorTable = []errorMapping{
	{service.ErrNotFound, http.StatusNotFound, "resource not found"},
	{service.ErrAlreadyOwned, http.StatusConflict, "ebook already owned"},
	{service.ErrAlreadyInCart, http.StatusConflict, "ebook already in cart"},
	{service.ErrNothingToAdd, http.StatusConflict, "every ebook in the series is owned or already in the cart"},
	{service.ErrEmptyCart, http.StatusConflict, "cart is empty"},
	{service.ErrInsufficientFunds, http.StatusPaymentRequired, "not enough coins"},
	{service.ErrVoucherNotFound, http.StatusUnprocessableEntity, "voucher not found"},
	{service.ErrVoucherExpired, http.StatusUnprocessableEntity, "voucher is not active"},
	{service.ErrVoucherScopeMismatch, http.StatusUnprocessableEntity, "voucher does not apply to this purchase"},
	{service.ErrVoucherUsageLimit, http.StatusUnprocessableEntity, "voucher usage limit reached"},
	{service.ErrNotEligible, http.StatusConflict, "membership is already paid far enough ahead"},
	{service.ErrPaymentMethodUnavailable, http.StatusBadRequest, "payment method unavailable"},
	{service.ErrPurchaseNotPending, http.StatusConflict, "purchase is no longer pending"},
	{service.ErrUnknownProvider, http.StatusBadRequest, "unknown payment provider"},
	{service.ErrInvalidSignature, http.StatusForbidden, "invalid signature"},
	{service.ErrGateway, http.StatusBadGateway, "payment gateway error, please try again"},
	{service.ErrCheckoutFailed, http.StatusInternalServerError, "checkout failed"},
}

// respondError writes the JSON envelope for err. Unmapped errors are logged
// and reported as a generic 500.
func respondError(c echo.Context, logger *zap.Logger, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		resp := NewErrorResponse("validation_error", "invalid request")
		resp.Error.Fields = ve.Fields
		return c.JSON(http.StatusBadRequest, resp)
	}
	if m, ok := lookupError(err); ok {
		if m.status >= http.StatusInternalServerError {
			logger.Error("request failed", append(reqctx.Fields(c.Request().Context()), zap.Error(err))...)
		}
		return c.JSON(m.status, NewErrorResponse(errorCode(m.err), m.message))
	}
	logger.Error("unhandled error", append(reqctx.Fields(c.Request().Context()), zap.Error(err))...)
	return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "internal error"))
}

func lookupError(err error) (errorMapping, bool) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m, true
		}
	}
	return errorMapping{}, false
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return "not_found"
	case errors.Is(err, service.ErrGateway):
		return "gateway_error"
	case errors.Is(err, service.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, service.ErrUnknownProvider):
		return "unknown_provider"
	}
	return err.Error()
}

func currentUID(c echo.Context) string {
	uid, _ := c.Get("uid").(string)
	return uid
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
}

// bindAndValidate binds the request body and runs the echo validator.
func bindAndValidate(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return service.NewValidationError("body", "malformed JSON")
	}
	return c.Validate(dst)
}
