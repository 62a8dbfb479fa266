package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shinyyama/novelshelf-backend/internal/archive"
	"github.com/shinyyama/novelshelf-backend/internal/config"
	"github.com/shinyyama/novelshelf-backend/internal/db"
	"github.com/shinyyama/novelshelf-backend/internal/events"
	"github.com/shinyyama/novelshelf-backend/internal/idgen"
	"github.com/shinyyama/novelshelf-backend/internal/logging"
	appmw "github.com/shinyyama/novelshelf-backend/internal/middleware"
	"github.com/shinyyama/novelshelf-backend/internal/payment"
	"github.com/shinyyama/novelshelf-backend/internal/repository"
	"github.com/shinyyama/novelshelf-backend/internal/server"
	"github.com/shinyyama/novelshelf-backend/internal/service"
	"go.uber.org/zap"
)

// Set with -ldflags at build time.
var (
	gitSHA    = "dev"
	buildTime = ""
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger, err := logging.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(conn); err != nil {
		return err
	}

	ids, err := idgen.New(cfg.NodeID)
	if err != nil {
		return err
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		logger.Info("publishing domain events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer func() { _ = publisher.Close() }()

	var archiver archive.Archiver = archive.Nop{}
	if cfg.ArchiveBucket != "" {
		gcs, err := archive.NewGCSArchiver(ctx, cfg.ArchiveBucket, cfg.GoogleCredentialsFile)
		if err != nil {
			return err
		}
		archiver = gcs
	}
	defer func() { _ = archiver.Close() }()

	gateways := payment.NewRegistryFromConfig(cfg, logger)
	logger.Info("payment gateways", zap.Strings("providers", gateways.Names()))

	tx := repository.NewTransactor(conn)
	users := repository.NewUserRepository(conn)
	ebooks := repository.NewEbookRepository(conn)
	cartRepo := repository.NewCartRepository(conn)
	purchases := repository.NewPurchaseRepository(conn)

	ledger := service.NewLedgerService(tx, users)
	vouchers := service.NewVoucherService(repository.NewVoucherRepository(conn))
	notifications := service.NewNotificationService(repository.NewNotificationRepository(conn), logger)

	svcs := server.Services{
		Cart:     service.NewCartService(tx, cartRepo, ebooks, purchases),
		Vouchers: vouchers,
		Checkout: service.NewCheckoutService(service.CheckoutDeps{
			Tx:            tx,
			Users:         users,
			Cart:          cartRepo,
			Purchases:     purchases,
			Ledger:        ledger,
			Vouchers:      vouchers,
			Notifications: notifications,
			Publisher:     publisher,
			IDs:           ids,
			Logger:        logger.Named("checkout"),
		}),
		Membership: service.NewMembershipService(service.MembershipDeps{
			Tx:            tx,
			Users:         users,
			Memberships:   repository.NewMembershipRepository(conn),
			Webhooks:      repository.NewWebhookEventRepository(conn),
			Vouchers:      vouchers,
			Notifications: notifications,
			Gateways:      gateways,
			Publisher:     publisher,
			Archiver:      archiver,
			IDs:           ids,
			Logger:        logger.Named("membership"),
		}, service.MembershipOptions{
			PublicBaseURL:  cfg.PublicBaseURL,
			FrontendURL:    cfg.FrontendURL,
			MaxPrepaidDays: cfg.MembershipMaxPrepaidDays,
		}),
		Wallet:        service.NewWalletService(users, ledger, purchases, notifications, publisher, logger.Named("wallet")),
		Notifications: notifications,
	}

	opts := server.Options{
		AdminUIDs:      cfg.AdminUIDs,
		AllowedOrigins: []string{cfg.FrontendURL},
		GitSHA:         gitSHA,
		BuildTime:      buildTime,
		Logger:         logger,
	}
	authMw, err := appmw.NewAuthMiddleware(ctx, cfg.FirebaseProjectID)
	if err != nil {
		if cfg.IsProduction() {
			return err
		}
		logger.Warn("firebase auth disabled; user routes will reject requests", zap.Error(err))
	} else {
		opts.Auth = authMw.RequireAuth
	}

	srv := server.New(svcs, opts)
	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", addr), zap.String("git_sha", gitSHA))
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return srv.Shutdown(context.Background())
	}
}
