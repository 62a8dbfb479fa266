package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shinyyama/novelshelf-backend/internal/handler"
	appmw "github.com/shinyyama/novelshelf-backend/internal/middleware"
	"github.com/shinyyama/novelshelf-backend/internal/reqctx"
	"github.com/shinyyama/novelshelf-backend/internal/service"
	"go.uber.org/zap"
)

type Services struct {
	Cart          service.CartService
	Checkout      service.CheckoutService
	Vouchers      service.VoucherService
	Membership    service.MembershipService
	Wallet        service.WalletService
	Notifications service.NotificationService
}

type Options struct {
	Auth           echo.MiddlewareFunc
	AdminUIDs      []string
	AllowedOrigins []string
	GitSHA         string
	BuildTime      string
	Logger         *zap.Logger
}

type Server struct {
	e *echo.Echo
}

func New(svcs Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()
	e.Use(middleware.Recover())
	e.Use(appmw.RequestID)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := append(reqctx.Fields(c.Request().Context()),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			)
			if uid, _ := c.Get("uid").(string); uid != "" {
				fields = append(fields, zap.String("uid", uid))
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", appmw.HeaderRequestID},
		ExposeHeaders:    []string{appmw.HeaderRequestID},
		AllowCredentials: true,
		AllowOriginFunc:  originAllowed(opts.AllowedOrigins),
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    opts.GitSHA,
			"build_time": opts.BuildTime,
		})
	})

	auth := opts.Auth
	if auth == nil {
		auth = func(echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized", "authentication is not configured"))
			}
		}
	}

	cartH := handler.NewCartHandler(svcs.Cart, svcs.Checkout, logger)
	voucherH := handler.NewVoucherHandler(svcs.Vouchers, logger)
	membershipH := handler.NewMembershipHandler(svcs.Membership, logger)
	walletH := handler.NewWalletHandler(svcs.Wallet, logger)
	notificationH := handler.NewNotificationHandler(svcs.Notifications)
	userH := handler.NewUserHandler(svcs.Wallet, logger)

	api := e.Group("/api")
	api.GET("/membership/packages", membershipH.Packages)
	api.POST("/membership/webhook/:provider", membershipH.Webhook)

	user := api.Group("", auth)
	user.GET("/me", userH.Me)
	user.GET("/me/cart", cartH.Get)
	user.POST("/chart/add", cartH.Add)
	user.POST("/chart/add-series", cartH.AddSeries)
	user.DELETE("/chart/items/:id", cartH.Remove)
	user.POST("/chart/checkout", cartH.Checkout)
	user.POST("/vouchers/validate", voucherH.Validate)
	user.POST("/membership/purchase", membershipH.Purchase)
	user.GET("/membership/status/:historyId", membershipH.Status)
	user.POST("/membership/status/:historyId/cancel", membershipH.Cancel)
	user.GET("/me/memberships", membershipH.History)
	user.GET("/me/wallet", walletH.Wallet)
	user.GET("/me/purchases", walletH.Bookshelf)
	user.GET("/me/purchases/:transactionId", walletH.Receipt)
	user.GET("/me/notifications", notificationH.List)
	user.POST("/me/notifications/read", notificationH.MarkAllRead)

	admin := api.Group("/admin", auth, appmw.RequireAdmin(opts.AdminUIDs))
	admin.POST("/users/:uid/coins", walletH.GrantCoins)

	return &Server{e: e}
}

// originAllowed accepts localhost on any port plus the configured origins.
func originAllowed(allowed []string) func(string) (bool, error) {
	hosts := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts[strings.ToLower(u.Host)] = struct{}{}
		}
	}
	return func(origin string) (bool, error) {
		low := strings.ToLower(origin)
		if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
			strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
			return true, nil
		}
		u, err := url.Parse(low)
		if err != nil {
			return false, nil
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return false, nil
		}
		_, ok := hosts[u.Host]
		return ok, nil
	}
}

func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.e.Shutdown(ctx)
}
