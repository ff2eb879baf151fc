// Command seed fills the configured database with demo data.
//
//	go run ./cmd/seed -users 5 -snippets 8
//
// It reads the same configuration as the server (config.yaml + env), so
// DB_PATH points both at the same file. Every account's password is
// seed.DemoPassword.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/snippet-vault/internal/auth"
	"github.com/sakif/snippet-vault/internal/cache"
	"github.com/sakif/snippet-vault/internal/config"
	"github.com/sakif/snippet-vault/internal/mailer"
	sqliteRepo "github.com/sakif/snippet-vault/internal/repository/sqlite"
	"github.com/sakif/snippet-vault/internal/seed"
	"github.com/sakif/snippet-vault/internal/service"
)

func main() {
	numUsers := flag.Int("users", 5, "Number of demo accounts to create")
	numFolders := flag.Int("folders", 2, "Folders per account")
	numSnippets := flag.Int("snippets", 8, "Snippets per account (capped by the free plan limit)")
	seedValue := flag.Int64("seed", 0, "Random seed (0 = random)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			logger.Error("failed to create database directory", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Error("failed to create token service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Seeding never sends mail and never touches Redis.
	users := db.Users()
	publicCache := cache.NewPublicSnippetCache(nil, cfg.Redis.CacheTTL, logger)
	plans := service.NewPlanService(users, db.Snippets(), db.Boilerplates(), logger)
	limits := service.PlanLimits{Snippets: cfg.Plans.FreeSnippetLimit, Boilerplates: cfg.Plans.FreeBoilerplateLimit}

	seeder := seed.NewSeeder(
		service.NewAuthService(users, tokens, auth.NewPasswordService(), mailer.NewNoop(logger), limits, logger),
		service.NewFolderService(db.Folders(), logger),
		service.NewSnippetService(db.Snippets(), db.Folders(), plans, publicCache, logger),
		service.NewShareService(db.Snippets(), users, publicCache, cfg.Site.BaseURL, logger),
		service.NewBoilerplateService(db.Boilerplates(), plans, logger),
		logger,
	)

	res, err := seeder.Run(context.Background(), seed.Options{
		Users:           *numUsers,
		FoldersPerUser:  *numFolders,
		SnippetsPerUser: *numSnippets,
		Seed:            *seedValue,
	})
	if err != nil {
		logger.Error("seeding failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	for _, acct := range res.Accounts {
		logger.Info("demo account", slog.String("email", acct.Email), slog.String("password", acct.Password))
	}
}
