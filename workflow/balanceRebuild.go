package workflow

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/models"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

type RebuildResult struct {
	PartNumber    string          `json:"part_number"`
	LocationId    int             `json:"location_id"`
	OnHand        decimal.Decimal `json:"on_hand"`
	Available     decimal.Decimal `json:"available"`
	Reserved      decimal.Decimal `json:"reserved"`
	Quarantine    decimal.Decimal `json:"quarantine"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	MovementCount int             `json:"movement_count"`
	Changed       bool            `json:"changed"`
}

// RebuildBalance replays the full movement ledger for one (part, location)
// and overwrites the balance row with the recomputed position. On-hand and
// average cost come from the ledger, reserved from the active reservation
// sum; the quarantine bucket is carried as-is since quarantine holds are
// unledgered bucket shifts. Runs under an advisory lock plus the row lock
// so live postings serialize against the repair.
func RebuildBalance(ctx context.Context, partNumber string, locationId int) (*RebuildResult, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	if partNumber == "" || locationId <= 0 {
		return nil, utils.ValidationError("rebuild requires a part number and location")
	}

	logger.WithFields(logrus.Fields{
		"part_number": partNumber,
		"location_id": locationId,
	}).Info("balance.rebuild.start")

	var result RebuildResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireBalanceRebuildLock(tx, partNumber, locationId); err != nil {
			return err
		}
		defer ReleaseBalanceRebuildLock(tx, partNumber, locationId)

		key := models.BalanceKey{PartNumber: partNumber, LocationId: locationId}
		balances, err := models.LockBalances(ctx, tx, []models.BalanceKey{key})
		if err != nil {
			return err
		}
		balance := balances[key]

		var movements []*models.InventoryMovement
		err = tx.WithContext(ctx).
			Where("part_number = ? AND (from_location_id = ? OR to_location_id = ?)", partNumber, locationId, locationId).
			Order("id").
			Find(&movements).Error
		if err != nil {
			return utils.TranslateDBError(err)
		}

		onHand := decimal.Zero
		averageCost := decimal.Zero
		for _, movement := range movements {
			if movement.ToLocationId != nil && *movement.ToLocationId == locationId {
				if movement.MovementType == models.MovementTypeIn && movement.UnitCost != nil {
					averageCost = models.WeightedAverageCost(onHand, averageCost, movement.Quantity, *movement.UnitCost)
				}
				onHand = onHand.Add(movement.Quantity)
			}
			if movement.FromLocationId != nil && *movement.FromLocationId == locationId {
				onHand = onHand.Sub(movement.Quantity)
			}
		}

		reserved, err := models.ActiveReservationTotal(ctx, tx, partNumber, locationId)
		if err != nil {
			return err
		}
		quarantine := balance.QuarantineQuantity
		available := onHand.Sub(reserved).Sub(quarantine)

		result = RebuildResult{
			PartNumber:    partNumber,
			LocationId:    locationId,
			OnHand:        onHand,
			Available:     available,
			Reserved:      reserved,
			Quarantine:    quarantine,
			AverageCost:   averageCost,
			MovementCount: len(movements),
			Changed: !balance.AvailableQuantity.Equal(available) ||
				!balance.ReservedQuantity.Equal(reserved) ||
				!balance.AverageCost.Equal(averageCost),
		}

		if available.IsNegative() {
			logger.WithFields(logrus.Fields{
				"part_number": partNumber,
				"location_id": locationId,
				"on_hand":     onHand.String(),
				"reserved":    reserved.String(),
				"quarantine":  quarantine.String(),
			}).Warn("balance.rebuild.negative_available")
		}

		if !result.Changed {
			return nil
		}
		balance.AvailableQuantity = available
		balance.ReservedQuantity = reserved
		balance.AverageCost = averageCost
		return models.OverwriteBalanceTx(ctx, tx, balance)
	})
	if err != nil {
		config.LogError(logger, "balanceRebuild.go", "RebuildBalance", "rebuild balance", map[string]interface{}{
			"part_number": partNumber,
			"location_id": locationId,
		}, err)
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"part_number":    partNumber,
		"location_id":    locationId,
		"movement_count": result.MovementCount,
		"on_hand":        result.OnHand.String(),
		"available":      result.Available.String(),
		"reserved":       result.Reserved.String(),
		"average_cost":   result.AverageCost.String(),
		"changed":        result.Changed,
	}).Info("balance.rebuild.end")
	return &result, nil
}

// RebuildBalances repairs every (part, location) pair in scope, one
// transaction each so a single bad pair does not roll back the sweep.
// Nil filters mean all.
func RebuildBalances(ctx context.Context, partNumber *string, locationId *int) ([]*RebuildResult, error) {
	ctx, span := tracer.Start(ctx, "balance.rebuild_sweep")
	defer span.End()

	db := config.GetDB()

	type pair struct {
		PartNumber string
		LocationId int
	}
	var pairs []pair
	dbCtx := db.WithContext(ctx).Model(&models.InventoryBalance{}).
		Select("part_number, location_id")
	if partNumber != nil && *partNumber != "" {
		dbCtx = dbCtx.Where("part_number = ?", *partNumber)
	}
	if locationId != nil && *locationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", *locationId)
	}
	if err := dbCtx.Order("part_number, location_id").Scan(&pairs).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}

	results := make([]*RebuildResult, 0, len(pairs))
	for _, p := range pairs {
		result, err := RebuildBalance(ctx, p.PartNumber, p.LocationId)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
