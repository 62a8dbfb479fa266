package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/novelshelf-backend/internal/service"
	"go.uber.org/zap"
)

type UserHandler struct {
	svc    service.WalletService
	logger *zap.Logger
	now    func() time.Time
}

func NewUserHandler(svc service.WalletService, logger *zap.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger, now: time.Now}
}

type ProfileResponse struct {
	UID                 string  `json:"uid"`
	Coins               int64   `json:"coins"`
	MembershipTier      string  `json:"membership_tier"`
	MembershipExpiresAt *string `json:"membership_expires_at"`
}

// Me returns the caller's coin balance and effective membership tier.
func (h *UserHandler) Me(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	u, err := h.svc.Profile(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, ProfileResponse{
		UID:                 u.UID,
		Coins:               u.Coins,
		MembershipTier:      string(u.EffectiveTier(h.now())),
		MembershipExpiresAt: formatTime(u.MembershipExpiresAt),
	})
}
