package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikiyas-z/bingo-wallet/internal/config"
	"github.com/mikiyas-z/bingo-wallet/internal/gateway"
	"github.com/mikiyas-z/bingo-wallet/internal/handler"
	"github.com/mikiyas-z/bingo-wallet/internal/lock"
	"github.com/mikiyas-z/bingo-wallet/internal/logging"
	"github.com/mikiyas-z/bingo-wallet/internal/metrics"
	"github.com/mikiyas-z/bingo-wallet/internal/middleware"
	"github.com/mikiyas-z/bingo-wallet/internal/repository"
	"github.com/mikiyas-z/bingo-wallet/internal/service"
	"github.com/mikiyas-z/bingo-wallet/internal/service/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("bingo-wallet", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	accounts := repository.NewAccountRepository(db)
	ledger := repository.NewLedgerRepository(db)
	callbacks := repository.NewCallbackEventRepository(db)

	gw, err := gateway.NewClient(
		cfg.GatewayBaseURL,
		cfg.GatewayMerchantID,
		cfg.GatewayPrivateKey,
		cfg.GatewayCallbackURL,
		cfg.GatewayTimeout(),
		m,
	)
	if err != nil {
		slog.Error("failed to build gateway client", "error", err)
		os.Exit(1)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	locks := lock.NewRegistry(cfg.LockTTL(), m)
	go locks.Sweep(rootCtx, cfg.LockSweep())

	walletSvc := wallet.NewService(accounts, ledger, gw, locks, db, cfg, m)

	reconciler := service.NewReconciler(
		callbacks,
		walletSvc,
		slog.Default().With("component", "reconciler"),
		m,
		cfg.ReconcileInterval(),
		cfg.ReconcileBatch,
	)
	go reconciler.Start(rootCtx)

	walletHandler := handler.NewWalletHandler(walletSvc)
	adminHandler := handler.NewAdminHandler(walletSvc)
	callbackHandler := handler.NewCallbackHandler(callbacks, cfg.CallbackSecret)
	healthHandler := handler.NewHealthHandler(db)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/accounts", walletHandler.Register)
	mux.HandleFunc("GET /api/v1/accounts/{chatID}/balance", walletHandler.GetBalance)
	mux.HandleFunc("GET /api/v1/accounts/{chatID}/ledger", walletHandler.GetLedger)

	mux.HandleFunc("POST /api/v1/transfers", walletHandler.CreateTransfer)
	mux.HandleFunc("POST /api/v1/transfers/{token}/confirm", walletHandler.ConfirmTransfer)
	mux.HandleFunc("POST /api/v1/transfers/{token}/cancel", walletHandler.CancelTransfer)

	mux.HandleFunc("POST /api/v1/withdrawals", walletHandler.CreateWithdrawal)
	mux.HandleFunc("POST /api/v1/deposits", walletHandler.CreateDeposit)
	mux.HandleFunc("POST /api/v1/deposits/manual", walletHandler.CreateManualDeposit)
	mux.HandleFunc("POST /api/v1/bonus/convert", walletHandler.ConvertBonus)

	mux.HandleFunc("POST /api/v1/admin/deposits/{txID}/approve", adminHandler.ApproveDeposit)
	mux.HandleFunc("POST /api/v1/admin/deposits/{txID}/decline", adminHandler.DeclineDeposit)
	mux.HandleFunc("POST /api/v1/admin/transactions/{txID}/poll", adminHandler.PollTransaction)
	mux.HandleFunc("POST /api/v1/admin/accounts/{chatID}/ban", adminHandler.SetBanned)

	mux.HandleFunc("POST /api/v1/callbacks/gateway", callbackHandler.ReceiveGatewayCallback)

	chain := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           chain,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-rootCtx.Done()

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connectDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeS) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTimeS) * time.Second)

	for i := range 30 {
		if err = db.Ping(); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
