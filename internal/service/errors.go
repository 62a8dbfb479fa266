package service

import (
	"errors"
	"sort"
	"strings"

	"github.com/shinyyama/novelshelf-backend/internal/payment"
)

var (
	ErrNotFound = errors.New("not found")

	ErrAlreadyOwned  = errors.New("already_owned")
	ErrAlreadyInCart = errors.New("already_in_cart")
	ErrNothingToAdd  = errors.New("nothing_to_add")
	ErrEmptyCart     = errors.New("empty_cart")

	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrCheckoutFailed    = errors.New("checkout_failed")

	ErrVoucherNotFound      = errors.New("voucher_not_found")
	ErrVoucherExpired       = errors.New("voucher_expired")
	ErrVoucherScopeMismatch = errors.New("voucher_scope_mismatch")
	ErrVoucherUsageLimit    = errors.New("voucher_usage_limit_reached")

	ErrNotEligible              = errors.New("not_eligible")
	ErrPaymentMethodUnavailable = errors.New("payment_method_unavailable")
	ErrPurchaseNotPending       = errors.New("purchase_not_pending")

	// Re-exported so handlers only switch on service errors.
	ErrGateway          = payment.ErrGateway
	ErrInvalidSignature = payment.ErrInvalidSignature
	ErrUnknownProvider  = payment.ErrUnknownProvider
)

// ValidationError carries one message per offending input field.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = msg
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func IsVoucherError(err error) bool {
	return errors.Is(err, ErrVoucherNotFound) ||
		errors.Is(err, ErrVoucherExpired) ||
		errors.Is(err, ErrVoucherScopeMismatch) ||
		errors.Is(err, ErrVoucherUsageLimit)
}

// isBusinessError reports errors that are part of an operation's contract
// and can be surfaced to callers as they are.
func isBusinessError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		IsVoucherError(err) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrInsufficientFunds)
}

func isVoucherRejection(err error) bool {
	var ve *ValidationError
	return errors.Is(err, ErrVoucherNotFound) ||
		errors.Is(err, ErrVoucherExpired) ||
		errors.Is(err, ErrVoucherScopeMismatch) ||
		errors.Is(err, ErrVoucherUsageLimit) ||
		errors.As(err, &ve)
}
