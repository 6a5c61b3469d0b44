package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Djju69/KARMABOT1-sub001/internal/config"
	"github.com/Djju69/KARMABOT1-sub001/internal/handler"
	"github.com/Djju69/KARMABOT1-sub001/internal/middleware"
	"github.com/Djju69/KARMABOT1-sub001/internal/repository"
	"github.com/Djju69/KARMABOT1-sub001/internal/service"
	"github.com/Djju69/KARMABOT1-sub001/internal/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	repo, err := repository.New(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer repo.Close()

	// Create services
	ledgerSvc := service.NewLedgerService(repo)
	activitySvc := service.NewActivityService(repo, ledgerSvc, cfg.Loyalty)
	referralSvc := service.NewReferralService(repo, ledgerSvc, cfg.Loyalty)
	bonusSvc := service.NewBonusService(repo, ledgerSvc, cfg.Loyalty)
	codeSvc := service.NewCodeService(repo, cfg.Loyalty)

	// Apply bonus percent overrides stored by operators
	if err := bonusSvc.Reload(context.Background()); err != nil {
		log.Printf("Warning: failed to load stored loyalty settings: %v", err)
	}

	// Create Telegram bot
	var bot *telegram.Bot
	botUsername := ""
	if cfg.Telegram.BotToken != "" {
		bot, err = telegram.NewBot(cfg, ledgerSvc, activitySvc, referralSvc, codeSvc)
		if err != nil {
			log.Printf("Warning: Failed to create Telegram bot: %v", err)
		} else {
			botUsername = bot.GetBotUsername()
			bonusSvc.SetNotifier(bot)
			log.Printf("Telegram bot @%s initialized", botUsername)
		}
	}

	// Create handlers
	h := handler.New(cfg, ledgerSvc, activitySvc, referralSvc, bonusSvc, codeSvc, botUsername)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Telegram-Init-Data",
	}))

	// Health check
	app.Get("/health", h.Health)
	app.Get("/internal/health", h.Health)

	// Webhooks (no auth required) - POS purchase callbacks
	app.Post("/webhook/purchase", h.PurchaseWebhook)

	// API routes with Telegram authentication
	api := app.Group("/api", middleware.TelegramAuth(cfg))

	// Balance and ledger
	api.Get("/balance", h.GetBalance)
	api.Get("/balance/history", h.GetTransactionHistory)
	api.Post("/balance/spend", h.SpendPoints)

	// Activity
	api.Post("/activity", h.RecordActivity)

	// Referrals
	api.Get("/referral/code", h.GetReferralCode)
	api.Get("/referral/link", h.GetReferralLink)
	api.Post("/referral/apply", h.ApplyReferralCode)
	api.Get("/referral/stats", h.GetReferralStats)
	api.Get("/referral/tree", h.GetReferralTree)

	// Admin panel routes (requires Telegram auth + admin check)
	admin := app.Group("/api/admin", middleware.TelegramAuth(cfg), middleware.AdminAuth(cfg))
	admin.Get("/rules", h.ListActivityRules)
	admin.Post("/rules", h.UpsertActivityRule)
	admin.Get("/bonus/config", h.GetBonusConfig)
	admin.Post("/settings", h.SetLoyaltySetting(repo))
	admin.Post("/credit", h.ManualCredit)
	admin.Get("/accounts/:account_id/balance", h.GetAccountBalance)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start Telegram bot long polling
	if bot != nil {
		go bot.StartPolling(ctx)
		log.Println("Telegram bot started with long polling")
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		cancel()
		_ = app.Shutdown()
	}()

	// Start server
	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
