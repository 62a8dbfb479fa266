package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/shinyyama/novelshelf-backend/internal/catalog"
	"github.com/shinyyama/novelshelf-backend/internal/config"
	"github.com/shinyyama/novelshelf-backend/internal/db"
	"github.com/shinyyama/novelshelf-backend/internal/logging"
	"go.uber.org/zap"
)

func main() {
	path := flag.String("catalog", "cmd/seed/catalog.example.yaml", "catalog file (yaml, json or toml)")
	flag.Parse()
	if err := run(*path); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run(path string) error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.AppEnv)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	c, err := catalog.Load(path)
	if err != nil {
		return err
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	st, err := catalog.Apply(ctx, gdb, c)
	if err != nil {
		return err
	}
	logger.Info("catalog seeded",
		zap.String("file", path),
		zap.Int("series", st.Series),
		zap.Int("ebooks", st.Ebooks),
		zap.Int("packages", st.Packages),
		zap.Int("vouchers", st.Vouchers))
	return nil
}
