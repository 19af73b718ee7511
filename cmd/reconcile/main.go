// Package main is a command-line balance audit for the progress engine.
//
// It recomputes every child's point balance from the activity ledger,
// completed goal rewards, and approved claim costs, and compares the result
// against the materialized balance. Run it ad hoc when a balance looks
// wrong, or with -repair to overwrite drifted balances with the derived
// value.
//
// Usage:
//
//	reconcile [-child <id>] [-repair] [-v]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/deen-kids/deen-progress-engine/config"
	"github.com/deen-kids/deen-progress-engine/internal/application/command"
	"github.com/deen-kids/deen-progress-engine/internal/infrastructure/persistence/postgres"
)

func main() {
	var (
		childID = flag.String("child", "", "audit a single child instead of all")
		repair  = flag.Bool("repair", false, "overwrite drifted balances with the derived value")
		verbose = flag.Bool("v", false, "report consistent children too, not only drifts")
		timeout = flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	)
	flag.Parse()

	if err := run(*childID, *repair, *verbose, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(childID string, repair, verbose bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(log)

	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	childRepo := postgres.NewChildRepository(dbConn)
	ledgerRepo := postgres.NewLedgerRepository(dbConn)
	goalRepo := postgres.NewGoalRepository(dbConn)
	rewardRepo := postgres.NewRewardRepository(dbConn)

	// No event pipeline in the CLI: the audit reports to stdout directly.
	reconcile := command.NewReconcileBalanceHandler(
		childRepo, ledgerRepo, goalRepo, rewardRepo, nil)

	ids := []string{childID}
	if childID == "" {
		children, err := childRepo.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to list children: %w", err)
		}
		ids = ids[:0]
		for _, c := range children {
			ids = append(ids, c.ID)
		}
	}

	var audited, drifted, repaired, failed int
	for _, id := range ids {
		result, err := reconcile.Handle(ctx, command.ReconcileBalanceCommand{
			ChildID: id,
			Repair:  repair,
		})
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "FAIL  %s: %v\n", id, err)
			continue
		}
		audited++

		switch {
		case result.Consistent:
			if verbose {
				fmt.Printf("OK    %s: balance=%d\n", id, result.StoredBalance)
			}
		case result.Repaired:
			drifted++
			repaired++
			fmt.Printf("FIXED %s: stored=%d derived=%d\n",
				id, result.StoredBalance, result.DerivedBalance)
		default:
			drifted++
			fmt.Printf("DRIFT %s: stored=%d derived=%d diff=%d\n",
				id, result.StoredBalance, result.DerivedBalance,
				result.StoredBalance-result.DerivedBalance)
		}
	}

	fmt.Printf("\naudited=%d drifted=%d repaired=%d failed=%d\n",
		audited, drifted, repaired, failed)

	if failed > 0 {
		return fmt.Errorf("%d audits failed", failed)
	}
	if drifted > repaired {
		// Non-zero exit so cron wrappers and CI notice unrepaired drift.
		return fmt.Errorf("%d unrepaired drifts", drifted-repaired)
	}
	return nil
}
