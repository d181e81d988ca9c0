package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"collectpay/internal/aml"
	"collectpay/internal/auth"
	"collectpay/internal/handler"
	"collectpay/internal/limits"
	"collectpay/internal/middleware"
	"collectpay/internal/notification"
	"collectpay/internal/qr"
	"collectpay/internal/repository/postgres"
	"collectpay/internal/scheduler"
	"collectpay/internal/settlement"
	"collectpay/internal/transaction"
	"collectpay/internal/wallet"
	"collectpay/pkg/cache"
	"collectpay/pkg/config"
	"collectpay/pkg/logger"
	"collectpay/pkg/mailer"
	"collectpay/pkg/validator"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("collectpay-core")

	log.Info("Starting CollectPay core", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	db, err := postgres.Connect(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()
	log.Info("Database connected", nil)

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer redisCache.Close()
	log.Info("Redis connected", nil)

	// Repositories
	walletRepo := postgres.NewWalletRepository(db)
	userRepo := postgres.NewUserRepository(db)
	orgRepo := postgres.NewOrganizationRepository(db)
	txRepo := postgres.NewTransactionRepository(db)
	qrRepo := postgres.NewQrCodeRepository(db)
	settlementRepo := postgres.NewSettlementRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	// Services
	smtp := mailer.New(mailer.Config{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.SMTPFrom,
		UseTLS:   cfg.Email.SMTPUseTLS,
	})
	notificationService := notification.NewService(notificationRepo, userRepo, smtp, log)
	walletService := wallet.NewService(walletRepo, userRepo, cfg.Limits, log)
	limitService := limits.NewService(orgRepo, userRepo, txRepo, log)
	amlService := aml.NewService(txRepo, userRepo, orgRepo, cfg.AML, log)
	txService := transaction.NewService(txRepo, userRepo, walletService, limitService, amlService, notificationService, cfg.Limits, log)
	qrService := qr.NewService(qrRepo, txRepo, txService, redisCache, cfg.Limits, log)
	settlementService := settlement.NewService(settlementRepo, userRepo, walletService, notificationService, log)

	// Background sweeps
	sched := scheduler.New(log)
	sched.Register("wallet-daily-reset", cfg.Sweeps.WalletResetInterval, walletService.SweepDailyResets)
	sched.Register("transaction-expiry", cfg.Sweeps.ExpiryInterval, txService.MarkExpired)
	sched.Register("qr-expunge", cfg.Sweeps.ExpiryInterval, qrService.Expunge)
	sched.Start(context.Background())
	defer sched.Stop()

	// Handlers
	val := validator.New()
	txHandler := handler.NewTransactionHandler(txService, val, log)
	qrHandler := handler.NewQrHandler(qrService, val, log)
	settlementHandler := handler.NewSettlementHandler(settlementService, val, log)
	walletHandler := handler.NewWalletHandler(walletService, notificationService, log)

	authMW := middleware.NewAuthMiddleware(auth.NewVerifier(cfg.Auth.JWTSecret))
	logMW := middleware.NewLoggingMiddleware(log)

	r := mux.NewRouter()
	r.Use(logMW.Recovery)
	r.Use(middleware.CorrelationID)
	r.Use(logMW.Log)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded","database":"down"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"collectpay-core"}`))
	}).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Authenticate)
	api.HandleFunc("/wallets/me", walletHandler.GetMyWallet).Methods("GET")
	api.HandleFunc("/notifications", walletHandler.ListNotifications).Methods("GET")
	api.HandleFunc("/transactions", txHandler.Create).Methods("POST")
	api.HandleFunc("/transactions/{id}", txHandler.Get).Methods("GET")
	api.HandleFunc("/transactions/{id}/review", txHandler.Review).Methods("POST")
	api.HandleFunc("/qr/generate", qrHandler.Generate).Methods("POST")
	api.HandleFunc("/qr/verify", qrHandler.Verify).Methods("POST")
	api.HandleFunc("/settlements", settlementHandler.Create).Methods("POST")
	api.HandleFunc("/settlements/{id}/review", settlementHandler.Review).Methods("POST")
	api.HandleFunc("/organizations/{orgID}/settlements", settlementHandler.List).Methods("GET")

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Core service started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down core service...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Core service forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Core service stopped gracefully", nil)
}
