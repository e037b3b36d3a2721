// balance-rebuild recomputes inventory balances from the movement ledger.
// Reserved comes from the active reservation sum and the quarantine bucket
// is preserved; available and average cost are replayed from movements.
//
// Usage:
//
//	go run ./cmd/balance-rebuild -part RM-STEEL-3MM -location 2
//	go run ./cmd/balance-rebuild -part RM-STEEL-3MM
//	go run ./cmd/balance-rebuild -all
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/workflow"
)

func main() {
	partNumber := flag.String("part", "", "Optional: part number to rebuild")
	locationId := flag.Int("location", 0, "Optional: location id to rebuild")
	all := flag.Bool("all", false, "Rebuild every balance row")
	flag.Parse()

	part := strings.TrimSpace(*partNumber)
	if part == "" && *locationId <= 0 && !*all {
		fmt.Fprintln(os.Stderr, "pass -part and/or -location, or -all for a full sweep")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()

	if part != "" && *locationId > 0 {
		result, err := workflow.RebuildBalance(ctx, part, *locationId)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
			os.Exit(1)
		}
		printResult(result)
		fmt.Println("balance rebuild complete")
		return
	}

	var partFilter *string
	if part != "" {
		partFilter = &part
	}
	var locationFilter *int
	if *locationId > 0 {
		locationFilter = locationId
	}
	results, err := workflow.RebuildBalances(ctx, partFilter, locationFilter)
	for _, result := range results {
		printResult(result)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("balance rebuild complete (%d rows)\n", len(results))
}

func printResult(r *workflow.RebuildResult) {
	marker := " "
	if r.Changed {
		marker = "*"
	}
	fmt.Printf("%s %-20s loc=%-4d movements=%-5d on_hand=%-12s available=%-12s reserved=%-12s quarantine=%-12s avg_cost=%s\n",
		marker, r.PartNumber, r.LocationId, r.MovementCount,
		r.OnHand.String(), r.Available.String(), r.Reserved.String(), r.Quarantine.String(), r.AverageCost.String())
}
