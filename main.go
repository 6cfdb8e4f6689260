package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"payment-reward-system/handlers"
	"payment-reward-system/middleware"
	"payment-reward-system/models"
	"payment-reward-system/services"
	"payment-reward-system/utils"
	"payment-reward-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.UserBalance{},
		&models.LedgerEffect{},
		&models.Transaction{},
		&models.PayoutKey{},
		&models.AffiliateProfile{},
		&models.AffiliateReferralLink{},
		&models.AffiliateDepositRecord{},
		&models.ChestClaim{},
		&models.BonusSettings{},
		&models.BonusTier{},
		&models.ChestTier{},
		&models.TopAffiliateWindow{},
		&models.WindowPrize{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// Redis is a fast path only; the service runs without it.
	var cache *services.RedisCache
	if redisAddr := os.Getenv("REDIS_URL"); redisAddr != "" {
		cache, err = services.NewRedisCache(redisAddr, os.Getenv("REDIS_PASSWORD"), 0)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, continuing without cache: %v", err)
			cache = nil
		}
	}

	ledgerService := services.NewLedgerService(db)
	configService := services.NewConfigService(db)
	referralService := services.NewReferralService(db)
	commissionService := services.NewCommissionService(db, ledgerService, referralService, cache)
	settlementService := services.NewSettlementService(db, ledgerService, commissionService, configService, cache)
	transactionService := services.NewTransactionService(db, ledgerService)
	chestService := services.NewChestService(db, ledgerService, referralService)
	rankingService := services.NewRankingService(db)
	auditService := services.NewAuditService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	betSyncClient := workers.NewBetSyncClient(referralService, configService)
	go workers.PollBetTotals(ctx, betSyncClient, 30*time.Second)

	services.StartSweeps(transactionService, settlementService, auditService)

	handlers.SetupTransactionRoutes(app, transactionService, ledgerService, configService)
	handlers.SetupWebhookRoutes(app, settlementService, ledgerService)
	handlers.SetupAffiliateRoutes(app, commissionService, referralService, chestService, rankingService, configService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Bet-total polling running (every 30s)")
	log.Println("✅ Ledger sweeps running (expiry, reconciliation, audit export)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
