package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voip-billing/internal/audit"
	"voip-billing/internal/config"
	"voip-billing/internal/httpapi"
	"voip-billing/internal/invoicing"
	"voip-billing/internal/rates"
	"voip-billing/internal/reporting"
	"voip-billing/internal/tax"
	"voip-billing/internal/usage"
	"voip-billing/internal/wallet"
	"voip-billing/pkg/logger"
	"voip-billing/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Service graph. Repos talk to Postgres; the rate cache lives in Redis.
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	rateSvc := rates.NewService(
		rates.NewPostgresRepo(db),
		rates.NewRedisCache(rdb, cfg.Billing.RateCacheTTL),
		auditSvc,
	)
	walletSvc := wallet.NewService(wallet.NewPostgresRepo(db))
	usageSvc := usage.NewService(rateSvc, walletSvc, usage.NewPostgresRepo(db))
	billSvc := invoicing.NewService(invoicing.NewPostgresRepo(db), auditSvc, cfg.Billing.InvoiceDueDays)
	reportSvc := reporting.NewService(reporting.NewPostgresRepo(db))

	h := httpapi.Handlers{
		Rates:   rateSvc,
		Wallet:  walletSvc,
		Usage:   usageSvc,
		Billing: billSvc,
		Reports: reportSvc,
		Audit:   auditSvc,
		Tax:     tax.NewPolicy(cfg.Tax.HomeCountry, cfg.Tax.VATRatePercent, cfg.Tax.BlocCountries),
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, rdb, db)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
