package main

import (
	"context"
	"fmt"
	"time"

	"github.com/securepay/wallet-ledger/internal/config"
	"github.com/securepay/wallet-ledger/internal/logger"
	"github.com/securepay/wallet-ledger/internal/repo"
	"github.com/securepay/wallet-ledger/internal/service"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Housekeeping: periodically fails pending transactions older than the
// configured age. Goes through the same finalize guard as webhooks, so a
// late delivery racing the sweep can never double-settle a row.
func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	repository := repo.NewRepository(gdb, nil, nil, log)
	svc := service.NewLedgerService(repository, nil, cfg.Currency.MinorUnitScale, log)

	interval := time.Duration(cfg.Sweep.Interval)
	maxAge := time.Duration(cfg.Sweep.MaxPendingAge)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infof("ledger-sweeper started, interval=%s max_pending_age=%s", interval, maxAge)
	for range ticker.C {
		report, err := svc.SweepStalePending(context.Background(), maxAge)
		if err != nil {
			log.Errorf("sweep: %v", err)
			continue
		}
		if report.Cleared > 0 {
			log.Infof("sweep cleared %d stale pending transactions", report.Cleared)
		}
	}
}
