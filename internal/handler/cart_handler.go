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

type CartHandler struct {
	cart     service.CartService
	checkout service.CheckoutService
	logger   *zap.Logger
}

func NewCartHandler(cart service.CartService, checkout service.CheckoutService, logger *zap.Logger) *CartHandler {
	return &CartHandler{cart: cart, checkout: checkout, logger: logger}
}

type CartItemResponse struct {
	ID       uint64 `json:"id"`
	EbookID  uint64 `json:"ebook_id"`
	SeriesID uint64 `json:"series_id"`
	Title    string `json:"title"`
	Volume   int    `json:"volume"`
	Price    int64  `json:"price"`
	AddedAt  string `json:"added_at"`
}

func toCartItemResponse(it model.CartItem) CartItemResponse {
	resp := CartItemResponse{
		ID:      it.ID,
		EbookID: it.EbookID,
		AddedAt: it.CreatedAt.Format(time.RFC3339),
	}
	if it.Ebook != nil {
		resp.SeriesID = it.Ebook.SeriesID
		resp.Title = it.Ebook.Title
		resp.Volume = it.Ebook.Volume
		resp.Price = it.Ebook.Price
	}
	return resp
}

func (h *CartHandler) Get(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	items, err := h.cart.Items(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	resp := make([]CartItemResponse, 0, len(items))
	var total int64
	for _, it := range items {
		r := toCartItemResponse(it)
		total += r.Price
		resp = append(resp, r)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"items": resp,
		"total": total,
	})
}

type addToCartRequest struct {
	ProductID uint64 `json:"product_id" validate:"required"`
}

func (h *CartHandler) Add(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var body addToCartRequest
	if err := bindAndValidate(c, &body); err != nil {
		return respondError(c, h.logger, err)
	}
	if err := h.cart.Add(c.Request().Context(), uid, body.ProductID); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "added to cart",
		"added":   true,
	})
}

type addSeriesRequest struct {
	SeriesID uint64 `json:"series_id" validate:"required"`
}

func (h *CartHandler) AddSeries(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var body addSeriesRequest
	if err := bindAndValidate(c, &body); err != nil {
		return respondError(c, h.logger, err)
	}
	n, err := h.cart.AddSeries(c.Request().Context(), uid, body.SeriesID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "series added to cart",
		"added":   n,
	})
}

func (h *CartHandler) Remove(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid cart item id"))
	}
	if err := h.cart.Remove(c.Request().Context(), uid, id); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type checkoutRequest struct {
	VoucherCode string `json:"voucher_code" validate:"max=64"`
}

type PurchasedEbook struct {
	EbookID   uint64 `json:"ebook_id"`
	PricePaid int64  `json:"price_paid"`
}

type CheckoutResponse struct {
	TransactionID string           `json:"transaction_id"`
	Gross         int64            `json:"gross"`
	Discount      int64            `json:"discount"`
	Charged       int64            `json:"charged"`
	Balance       int64            `json:"balance"`
	VoucherCode   string           `json:"voucher_code,omitempty"`
	Purchased     []PurchasedEbook `json:"purchased"`
	Skipped       []uint64         `json:"skipped,omitempty"`
}

func (h *CartHandler) Checkout(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var body checkoutRequest
	if err := bindAndValidate(c, &body); err != nil {
		return respondError(c, h.logger, err)
	}
	res, err := h.checkout.Checkout(c.Request().Context(), uid, body.VoucherCode)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	purchased := make([]PurchasedEbook, 0, len(res.Purchased))
	for _, p := range res.Purchased {
		purchased = append(purchased, PurchasedEbook{EbookID: p.EbookID, PricePaid: p.PricePaid})
	}
	return c.JSON(http.StatusCreated, CheckoutResponse{
		TransactionID: res.TransactionID,
		Gross:         res.Gross,
		Discount:      res.Discount,
		Charged:       res.Charged,
		Balance:       res.Balance,
		VoucherCode:   res.VoucherCode,
		Purchased:     purchased,
		Skipped:       res.Skipped,
	})
}
