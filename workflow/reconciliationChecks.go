package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/models"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

var tracer = otel.Tracer("wms-manufacture")

// RunReconciliationChecks compares the movement ledger against its
// projections and writes one reconciliation_reports row per mismatch.
// This is intended to be run on a schedule (nightly) or via an admin trigger.
func RunReconciliationChecks(ctx context.Context) ([]*models.ReconciliationReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracer.Start(ctx, "reconciliation.run")
	defer span.End()

	db := config.GetDB()
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	logger := config.GetLogger()

	// one run at a time across instances
	release, err := utils.InventoryLock(ctx, "sweep", "reconciliation", "reconciliationChecks.go", "RunReconciliationChecks")
	if err != nil {
		return nil, err
	}
	defer release()

	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || cid == "" {
		cid = uuid.NewString()
	}
	now := time.Now().UTC()

	var findings []*models.ReconciliationReport
	record := func(report *models.ReconciliationReport) {
		report.CorrelationId = cid
		report.CreatedAt = now
		_ = db.WithContext(ctx).Create(report).Error
		findings = append(findings, report)
	}

	// 1) Balance buckets vs signed ledger sum. Quarantine shifts stock
	// between buckets without a movement row, so the ledger must equal
	// available + reserved + quarantine, never available alone.
	type balanceMismatch struct {
		PartNumber   string
		LocationId   int
		ProjectedQty decimal.Decimal
		LedgerQty    decimal.Decimal
	}
	var balanceMismatches []balanceMismatch
	if err := db.WithContext(ctx).Raw(`
		SELECT
			b.part_number,
			b.location_id,
			b.available_quantity + b.reserved_quantity + b.quarantine_quantity AS projected_qty,
			COALESCE(SUM(m.qty), 0) AS ledger_qty
		FROM inventory_balances b
		LEFT JOIN (
			SELECT part_number, to_location_id AS location_id, quantity AS qty
			FROM inventory_movements
			WHERE to_location_id IS NOT NULL
			UNION ALL
			SELECT part_number, from_location_id AS location_id, -quantity AS qty
			FROM inventory_movements
			WHERE from_location_id IS NOT NULL
		) m
		  ON m.part_number = b.part_number
		 AND m.location_id = b.location_id
		GROUP BY b.id
		HAVING ROUND(b.available_quantity + b.reserved_quantity + b.quarantine_quantity, 3) <> ROUND(COALESCE(SUM(m.qty), 0), 3)
	`).Scan(&balanceMismatches).Error; err != nil {
		return findings, utils.TranslateDBError(err)
	}
	for _, m := range balanceMismatches {
		record(&models.ReconciliationReport{
			CheckName:  "LEDGER_BALANCE",
			PartNumber: m.PartNumber,
			LocationId: m.LocationId,
			Expected:   m.LedgerQty,
			Actual:     m.ProjectedQty,
			Details:    fmt.Sprintf("bucket total %s != signed movement sum %s", m.ProjectedQty.String(), m.LedgerQty.String()),
		})
	}

	// 2) reserved_quantity vs sum of active reservations
	type reservationMismatch struct {
		PartNumber  string
		LocationId  int
		ReservedQty decimal.Decimal
		HoldQty     decimal.Decimal
	}
	var reservationMismatches []reservationMismatch
	if err := db.WithContext(ctx).Raw(`
		SELECT
			b.part_number,
			b.location_id,
			b.reserved_quantity AS reserved_qty,
			COALESCE(SUM(r.quantity), 0) AS hold_qty
		FROM inventory_balances b
		LEFT JOIN stock_reservations r
		  ON r.part_number = b.part_number
		 AND r.location_id = b.location_id
		 AND r.status = 'active'
		GROUP BY b.id
		HAVING ROUND(b.reserved_quantity, 3) <> ROUND(COALESCE(SUM(r.quantity), 0), 3)
	`).Scan(&reservationMismatches).Error; err != nil {
		return findings, utils.TranslateDBError(err)
	}
	for _, m := range reservationMismatches {
		record(&models.ReconciliationReport{
			CheckName:  "RESERVATION_MIRROR",
			PartNumber: m.PartNumber,
			LocationId: m.LocationId,
			Expected:   m.HoldQty,
			Actual:     m.ReservedQty,
			Details:    fmt.Sprintf("reserved_quantity=%s != sum(active reservations)=%s", m.ReservedQty.String(), m.HoldQty.String()),
		})
	}

	// 3) No bucket may sit below zero
	var negatives []*models.InventoryBalance
	if err := db.WithContext(ctx).
		Where("available_quantity < 0 OR reserved_quantity < 0 OR quarantine_quantity < 0").
		Find(&negatives).Error; err != nil {
		return findings, utils.TranslateDBError(err)
	}
	for _, b := range negatives {
		buckets := []struct {
			name string
			qty  decimal.Decimal
		}{
			{"available_quantity", b.AvailableQuantity},
			{"reserved_quantity", b.ReservedQuantity},
			{"quarantine_quantity", b.QuarantineQuantity},
		}
		for _, bucket := range buckets {
			if !bucket.qty.IsNegative() {
				continue
			}
			record(&models.ReconciliationReport{
				CheckName:  "NEGATIVE_STOCK",
				PartNumber: b.PartNumber,
				LocationId: b.LocationId,
				Expected:   decimal.Zero,
				Actual:     bucket.qty,
				Details:    fmt.Sprintf("%s=%s below zero", bucket.name, bucket.qty.String()),
			})
		}
	}

	logger.WithFields(logrus.Fields{
		"field":                  "ReconciliationChecks",
		"correlation_id":         cid,
		"balance_mismatches":     len(balanceMismatches),
		"reservation_mismatches": len(reservationMismatches),
		"negative_balances":      len(negatives),
	}).Info("reconciliation checks completed")
	return findings, nil
}
