package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/shinyyama/novelshelf-backend/internal/service"
	"go.uber.org/zap"
)

type WalletHandler struct {
	svc    service.WalletService
	logger *zap.Logger
}

func NewWalletHandler(svc service.WalletService, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{svc: svc, logger: logger}
}

type LedgerEntryResponse struct {
	ID           uint64 `json:"id"`
	Change       int64  `json:"change"`
	BalanceAfter int64  `json:"balance_after"`
	Reason       string `json:"reason"`
	Reference    string `json:"reference,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toLedgerEntryResponse(e model.CoinLedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:           e.ID,
		Change:       e.Change,
		BalanceAfter: e.BalanceAfter,
		Reason:       string(e.Reason),
		Reference:    e.Reference,
		CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *WalletHandler) Wallet(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	w, err := h.svc.Wallet(c.Request().Context(), uid, limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	history := make([]LedgerEntryResponse, 0, len(w.History))
	for _, e := range w.History {
		history = append(history, toLedgerEntryResponse(e))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"balance": w.Balance,
		"history": history,
	})
}

type BookshelfEntryResponse struct {
	EbookID       uint64  `json:"ebook_id"`
	SeriesID      uint64  `json:"series_id"`
	Title         string  `json:"title"`
	Volume        int     `json:"volume"`
	CoverURL      *string `json:"cover_url,omitempty"`
	PricePaid     int64   `json:"price_paid"`
	TransactionID string  `json:"transaction_id"`
	PurchasedAt   string  `json:"purchased_at"`
}

func (h *WalletHandler) Bookshelf(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	list, err := h.svc.Bookshelf(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	resp := make([]BookshelfEntryResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, toBookshelfEntry(p))
	}
	return c.JSON(http.StatusOK, resp)
}

func toBookshelfEntry(p model.PurchaseRecord) BookshelfEntryResponse {
	row := BookshelfEntryResponse{
		EbookID:       p.EbookID,
		PricePaid:     p.PricePaid,
		TransactionID: p.TransactionID,
		PurchasedAt:   p.PurchasedAt.UTC().Format(time.RFC3339),
	}
	if p.Ebook != nil {
		row.SeriesID = p.Ebook.SeriesID
		row.Title = p.Ebook.Title
		row.Volume = p.Ebook.Volume
		row.CoverURL = p.Ebook.CoverURL
	}
	return row
}

type ReceiptResponse struct {
	TransactionID string                   `json:"transaction_id"`
	Total         int64                    `json:"total"`
	Items         []BookshelfEntryResponse `json:"items"`
}

// Receipt shows what one checkout bought.
func (h *WalletHandler) Receipt(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	r, err := h.svc.Receipt(c.Request().Context(), uid, c.Param("transactionId"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	resp := ReceiptResponse{
		TransactionID: r.TransactionID,
		Total:         r.Total,
		Items:         make([]BookshelfEntryResponse, 0, len(r.Items)),
	}
	for _, p := range r.Items {
		resp.Items = append(resp.Items, toBookshelfEntry(p))
	}
	return c.JSON(http.StatusOK, resp)
}

type grantCoinsRequest struct {
	Amount    int64  `json:"amount" validate:"gt=0"`
	Reason    string `json:"reason" validate:"omitempty,oneof=admin_grant top_up refund"`
	Reference string `json:"reference" validate:"max=64"`
}

// GrantCoins credits a user's wallet from the back office.
func (h *WalletHandler) GrantCoins(c echo.Context) error {
	target := c.Param("uid")
	if target == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid uid"))
	}
	var body grantCoinsRequest
	if err := bindAndValidate(c, &body); err != nil {
		return respondError(c, h.logger, err)
	}
	ref := body.Reference
	if ref == "" {
		ref = "admin:" + currentUID(c)
	}
	balance, err := h.svc.Grant(c.Request().Context(), target, body.Amount, model.LedgerReason(body.Reason), ref)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"uid":     target,
		"balance": balance,
	})
}
