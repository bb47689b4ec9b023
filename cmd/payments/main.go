package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cardhaven/cardhaven-payments-service/internal/config"
	"github.com/cardhaven/cardhaven-payments-service/internal/events"
	"github.com/cardhaven/cardhaven-payments-service/internal/gateway"
	"github.com/cardhaven/cardhaven-payments-service/internal/handlers"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
	"github.com/cardhaven/cardhaven-payments-service/internal/notifications"
	"github.com/cardhaven/cardhaven-payments-service/internal/repository"
	"github.com/cardhaven/cardhaven-payments-service/internal/scheduler"
	"github.com/cardhaven/cardhaven-payments-service/internal/server"
	"github.com/cardhaven/cardhaven-payments-service/internal/service"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	logger := logging.NewLogger("payments-service")
	defer logging.Sync()

	logger.Infow("Starting payments-service", "port", cfg.Server.Port)

	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatalw("Failed to connect to database", "error", err.Error())
	}
	defer db.Close()

	orderStore := repository.NewPostgresOrderStore(db)
	listingStore := repository.NewPostgresListingStore(db)
	sellerStore := repository.NewPostgresSellerStore(db)
	incidentStore := repository.NewPostgresIncidentStore(db)
	payoutStore := repository.NewPostgresPayoutStore(db)
	cartStore := repository.NewRedisCartStore(cfg.Redis)

	gatewayClient := gateway.NewHTTPClient(cfg.Gateway)
	notifier := notifications.NewHTTPClient(cfg.Notifier)

	publisher := events.NewKafkaPublisher(cfg.Kafka)
	defer publisher.Close()

	recoveryService := service.NewRecoveryService(incidentStore, gatewayClient, notifier, publisher, cfg.Recovery)
	earningsService := service.NewEarningsService(orderStore, cfg.Payouts)
	checkoutService := service.NewCheckoutService(orderStore, listingStore, cartStore, gatewayClient, recoveryService, publisher)
	payoutService := service.NewPayoutService(payoutStore, orderStore, sellerStore, earningsService, gatewayClient, notifier, publisher, cfg.Payouts)

	webhookProcessor := gateway.NewWebhookProcessor(orderStore, payoutStore, listingStore, publisher)

	h := handlers.NewHandlers(checkoutService, payoutService, recoveryService, webhookProcessor, gatewayClient, cfg)
	srv := server.New(h, cfg)

	sched := scheduler.New(payoutService, cfg.Scheduler)
	if err := sched.Start(); err != nil {
		logger.Fatalw("Failed to start scheduler", "error", err.Error())
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("Server failed to start", "error", err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sched.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorw("Server forced to shutdown", "error", err.Error())
	}

	logger.Info("Server exited")
}

func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}
