// reconcile runs the drift checks between the movement ledger and its
// projections (balance buckets, reservation mirror, negative stock) and
// writes one reconciliation_reports row per mismatch. Intended for cron
// or an admin shell; a non-empty report exits 2 so schedulers can alert.
//
// Usage:
//
//	go run ./cmd/reconcile
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/workflow"
)

func main() {
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	findings, err := workflow.RunReconciliationChecks(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconciliation failed: %v\n", err)
		os.Exit(1)
	}

	for _, f := range findings {
		fmt.Printf("%-18s part=%-20s loc=%-4d expected=%-12s actual=%-12s %s\n",
			f.CheckName, f.PartNumber, f.LocationId, f.Expected.String(), f.Actual.String(), f.Details)
	}
	if len(findings) > 0 {
		fmt.Printf("reconciliation found %d mismatches\n", len(findings))
		os.Exit(2)
	}
	fmt.Println("reconciliation clean")
}
