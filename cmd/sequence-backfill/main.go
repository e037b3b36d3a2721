// sequence-backfill seeds the document_sequences counters from document
// numbers already in the database. Run once when cutting over from
// MAX(number)+1 generation, so the counter table starts at or above every
// number that was ever issued.
//
// Usage:
//
//	go run ./cmd/sequence-backfill
//	go run ./cmd/sequence-backfill -dry-run
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/models"
)

// one row per document table that carries a generated number
var sources = []struct {
	Table  string
	Column string
	Prefix string
}{
	{"production_orders", "job_order", models.DocPrefixJobOrder},
	{"inventory_movements", "movement_number", models.DocPrefixMovement},
	{"stock_reservations", "reservation_number", models.DocPrefixReservation},
	{"cycle_counts", "count_number", models.DocPrefixCycleCount},
	{"purchase_orders", "po_number", models.DocPrefixPurchase},
	{"goods_receipts", "receipt_number", models.DocPrefixGoodsReceipt},
	{"deliveries", "delivery_order_number", models.DocPrefixDelivery},
	{"qc_inspections", "inspection_number", models.DocPrefixInspection},
	{"production_schedules", "schedule_number", models.DocPrefixSchedule},
}

func main() {
	dryRun := flag.Bool("dry-run", false, "If true, do not write; only print what would be seeded")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	ctx := context.Background()

	if *dryRun {
		fmt.Println("[dry-run] no changes will be written")
	}

	type scopeMax struct {
		Scope  string
		MaxSeq int64
	}

	seeded := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, src := range sources {
			// NUMBER is PREFIX-YYYYMMDD-SEQ; scope sits after "PREFIX-",
			// the running sequence after the second dash.
			scopeStart := len(src.Prefix) + 2
			seqStart := len(src.Prefix) + 11
			pattern := "^" + src.Prefix + "-[0-9]{8}-[0-9]+$"

			var rows []scopeMax
			query := fmt.Sprintf(`
				SELECT SUBSTRING(%[2]s, %[3]d, 8) AS scope,
				       MAX(CAST(SUBSTRING(%[2]s, %[4]d) AS UNSIGNED)) AS max_seq
				FROM %[1]s
				WHERE %[2]s REGEXP ?
				GROUP BY SUBSTRING(%[2]s, %[3]d, 8)
			`, src.Table, src.Column, scopeStart, seqStart)
			if err := tx.WithContext(ctx).Raw(query, pattern).Scan(&rows).Error; err != nil {
				return fmt.Errorf("scan %s.%s: %w", src.Table, src.Column, err)
			}

			for _, row := range rows {
				fmt.Printf("%s scope=%s max_seen=%d\n", src.Prefix, row.Scope, row.MaxSeq)
				if *dryRun {
					continue
				}
				if err := models.SeedSequenceCounter(ctx, tx, src.Prefix, row.Scope, row.MaxSeq); err != nil {
					return fmt.Errorf("seed %s %s: %w", src.Prefix, row.Scope, err)
				}
				seeded++
			}
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sequence backfill failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("sequence backfill complete (%d counters)\n", seeded)
}
