// Command reconcile runs one reconciliation pass, or purges one user's
// purchase history, and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fulfillment-service/config"
	"fulfillment-service/internal/redisclient"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// Exit codes
const (
	exitOK       = 0
	exitFailures = 1
	exitBusy     = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	purgeUser := flag.String("purge-user", "", "delete every grant and order of this user instead of reconciling")
	noLock := flag.Bool("no-lock", false, "skip the redis run lock (single instance deployments)")
	flag.Parse()

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return exitFailures
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		return exitFailures
	}
	defer db.Close()

	ledger := service.NewEntitlementLedger(db)

	if *purgeUser != "" {
		result := service.NewHistoryPurger(ledger, db).PurgeUserHistory(ctx, *purgeUser)
		printJSON(result)
		if result.GrantsError != "" || result.OrdersError != "" {
			return exitFailures
		}
		return exitOK
	}

	var locker service.Locker
	if !*noLock {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", zap.Error(err))
			return exitFailures
		}
		defer redisClient.Close()
		locker = redisClient
	}

	catalog := service.NewAssetCatalog(db)
	reconciler := service.NewReconciler(db, catalog, ledger, locker,
		cfg.Fulfillment.ReconcileConcurrency, cfg.Fulfillment.ReconcileLockTTL)

	summary, err := reconciler.ReconcileAll(ctx)
	if errors.Is(err, service.ErrReconcileInProgress) {
		logger.Warn("Another reconciliation is running")
		return exitBusy
	}
	if err != nil {
		logger.Error("Reconciliation failed", zap.Error(err))
		printJSON(summary)
		return exitFailures
	}

	printJSON(summary)
	if summary.Failed > 0 {
		return exitFailures
	}
	return exitOK
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("Failed to encode result: %v", err)
	}
}
