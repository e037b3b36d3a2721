package models

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

// InventoryBalance is the projected stock position per part and location.
// Rows are created lazily on first movement and never deleted; every write
// happens under a row lock inside the transaction of the movement or
// reservation that caused it.
type InventoryBalance struct {
	ID                 int              `gorm:"primary_key" json:"id"`
	PartNumber         string           `gorm:"size:100;not null;index:uniq_balance,unique" json:"part_number"`
	LocationId         int              `gorm:"not null;index:uniq_balance,unique" json:"location_id"`
	AvailableQuantity  decimal.Decimal  `gorm:"type:decimal(12,3);not null;default:0" json:"available_quantity"`
	ReservedQuantity   decimal.Decimal  `gorm:"type:decimal(12,3);not null;default:0" json:"reserved_quantity"`
	QuarantineQuantity decimal.Decimal  `gorm:"type:decimal(12,3);not null;default:0" json:"quarantine_quantity"`
	AverageCost        decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0" json:"average_cost"`
	ReorderPoint       *decimal.Decimal `gorm:"type:decimal(12,3)" json:"reorder_point"`
	MaxStockLevel      *decimal.Decimal `gorm:"type:decimal(12,3)" json:"max_stock_level"`
	LastMovementDate   *time.Time       `json:"last_movement_date"`
	LastCountDate      *time.Time       `json:"last_count_date"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// BalanceKey addresses one balance row.
type BalanceKey struct {
	PartNumber string
	LocationId int
}

// CanonicalBalanceKeys sorts keys by (part_number, location_id) and drops
// duplicates. Every multi-row flow must acquire its locks in this order so
// two transactions touching the same rows can never deadlock on each other.
func CanonicalBalanceKeys(keys []BalanceKey) []BalanceKey {
	sorted := append([]BalanceKey(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].PartNumber != sorted[j].PartNumber {
			return sorted[i].PartNumber < sorted[j].PartNumber
		}
		return sorted[i].LocationId < sorted[j].LocationId
	})
	deduped := sorted[:0]
	var prev BalanceKey
	for i, key := range sorted {
		if i > 0 && key == prev {
			continue
		}
		deduped = append(deduped, key)
		prev = key
	}
	return deduped
}

// lockBalance acquires the row lock for one key, creating the row if this is
// the first movement for the pair. A losing racer on the create hits the
// unique key and re-reads the winner's row under lock.
func lockBalance(ctx context.Context, tx *gorm.DB, key BalanceKey) (*InventoryBalance, error) {
	balance := InventoryBalance{
		PartNumber: key.PartNumber,
		LocationId: key.LocationId,
	}
	result := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("part_number = ? AND location_id = ?", key.PartNumber, key.LocationId).
		FirstOrCreate(&balance)
	if result.Error != nil {
		if utils.IsDuplicateKeyErr(result.Error) {
			var existing InventoryBalance
			if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("part_number = ? AND location_id = ?", key.PartNumber, key.LocationId).
				First(&existing).Error; err != nil {
				return nil, utils.TranslateDBError(err)
			}
			return &existing, nil
		}
		return nil, utils.TranslateDBError(result.Error)
	}
	return &balance, nil
}

// LockBalances acquires row locks for all keys in canonical order and
// returns the locked rows keyed for the caller. Composite postings lock
// every balance they will touch through one call before mutating any.
func LockBalances(ctx context.Context, tx *gorm.DB, keys []BalanceKey) (map[BalanceKey]*InventoryBalance, error) {
	locked := make(map[BalanceKey]*InventoryBalance, len(keys))
	for _, key := range CanonicalBalanceKeys(keys) {
		balance, err := lockBalance(ctx, tx, key)
		if err != nil {
			return nil, err
		}
		locked[key] = balance
	}
	return locked, nil
}

// nextAverageCost rolls the weighted average over an incoming receipt:
// (onHand*avg + qty*unitCost) / (onHand+qty), 2dp half-up.
func nextAverageCost(onHand decimal.Decimal, currentAverage decimal.Decimal, inQty decimal.Decimal, unitCost decimal.Decimal) decimal.Decimal {
	if onHand.IsNegative() {
		onHand = decimal.Zero
	}
	total := onHand.Add(inQty)
	if !total.IsPositive() {
		return unitCost.Round(2)
	}
	value := onHand.Mul(currentAverage).Add(inQty.Mul(unitCost))
	return value.Div(total).Round(2)
}

// WeightedAverageCost is the receipt costing rule, exposed for the ledger
// replay used by balance rebuilds.
func WeightedAverageCost(onHand decimal.Decimal, currentAverage decimal.Decimal, inQty decimal.Decimal, unitCost decimal.Decimal) decimal.Decimal {
	return nextAverageCost(onHand, currentAverage, inQty, unitCost)
}

/* balance mutations; callers hold the row lock */

// receive puts quantity into available, rolling average cost when the
// movement carries a unit cost.
func (b *InventoryBalance) receive(qty decimal.Decimal, unitCost *decimal.Decimal) {
	if unitCost != nil {
		b.AverageCost = nextAverageCost(b.AvailableQuantity, b.AverageCost, qty, *unitCost)
	}
	b.AvailableQuantity = b.AvailableQuantity.Add(qty)
}

// issue draws quantity out of a bucket, refusing to go negative.
func (b *InventoryBalance) issue(qty decimal.Decimal, bucket StockBucket) error {
	switch bucket {
	case StockBucketQuarantine:
		if b.QuarantineQuantity.LessThan(qty) {
			return utils.InsufficientStockError(b.PartNumber, b.LocationId, qty, b.QuarantineQuantity)
		}
		b.QuarantineQuantity = b.QuarantineQuantity.Sub(qty)
	default:
		if b.AvailableQuantity.LessThan(qty) {
			return utils.InsufficientStockError(b.PartNumber, b.LocationId, qty, b.AvailableQuantity)
		}
		b.AvailableQuantity = b.AvailableQuantity.Sub(qty)
	}
	return nil
}

// adjust applies a signed corrective delta with no availability check.
func (b *InventoryBalance) adjust(signedQty decimal.Decimal) {
	b.AvailableQuantity = b.AvailableQuantity.Add(signedQty)
}

// hold moves quantity from available into reserved.
func (b *InventoryBalance) hold(qty decimal.Decimal) error {
	if b.AvailableQuantity.LessThan(qty) {
		return utils.InsufficientStockError(b.PartNumber, b.LocationId, qty, b.AvailableQuantity)
	}
	b.AvailableQuantity = b.AvailableQuantity.Sub(qty)
	b.ReservedQuantity = b.ReservedQuantity.Add(qty)
	return nil
}

// releaseHold gives reserved quantity back to available.
func (b *InventoryBalance) releaseHold(qty decimal.Decimal) error {
	if b.ReservedQuantity.LessThan(qty) {
		return utils.InvalidStateError("reserved quantity %s of %s at location %d is less than release quantity %s",
			b.ReservedQuantity.String(), b.PartNumber, b.LocationId, qty.String())
	}
	b.ReservedQuantity = b.ReservedQuantity.Sub(qty)
	b.AvailableQuantity = b.AvailableQuantity.Add(qty)
	return nil
}

// consumeHold burns reserved quantity; the on-hand decrease is recorded by
// the accompanying out movement.
func (b *InventoryBalance) consumeHold(qty decimal.Decimal) error {
	if b.ReservedQuantity.LessThan(qty) {
		return utils.InvalidStateError("reserved quantity %s of %s at location %d is less than fulfill quantity %s",
			b.ReservedQuantity.String(), b.PartNumber, b.LocationId, qty.String())
	}
	b.ReservedQuantity = b.ReservedQuantity.Sub(qty)
	return nil
}

// quarantineHold moves quantity from available into quarantine.
func (b *InventoryBalance) quarantineHold(qty decimal.Decimal) error {
	if b.AvailableQuantity.LessThan(qty) {
		return utils.InsufficientStockError(b.PartNumber, b.LocationId, qty, b.AvailableQuantity)
	}
	b.AvailableQuantity = b.AvailableQuantity.Sub(qty)
	b.QuarantineQuantity = b.QuarantineQuantity.Add(qty)
	return nil
}

// releaseQuarantineHold returns quarantined quantity to available.
func (b *InventoryBalance) releaseQuarantineHold(qty decimal.Decimal) error {
	if b.QuarantineQuantity.LessThan(qty) {
		return utils.InvalidStateError("quarantine quantity %s of %s at location %d is less than release quantity %s",
			b.QuarantineQuantity.String(), b.PartNumber, b.LocationId, qty.String())
	}
	b.QuarantineQuantity = b.QuarantineQuantity.Sub(qty)
	b.AvailableQuantity = b.AvailableQuantity.Add(qty)
	return nil
}

// saveBalance writes the mutated columns back. The row lock held since
// lockBalance makes the absolute-value write race-free.
func saveBalance(ctx context.Context, tx *gorm.DB, b *InventoryBalance, movementDate *time.Time) error {
	updates := map[string]interface{}{
		"AvailableQuantity":  b.AvailableQuantity,
		"ReservedQuantity":   b.ReservedQuantity,
		"QuarantineQuantity": b.QuarantineQuantity,
		"AverageCost":        b.AverageCost,
	}
	if movementDate != nil {
		updates["LastMovementDate"] = movementDate
		b.LastMovementDate = movementDate
	}
	if err := tx.WithContext(ctx).Model(b).Updates(updates).Error; err != nil {
		return utils.TranslateDBError(err)
	}
	return nil
}

// OverwriteBalanceTx writes recomputed absolute quantities and cost onto a
// row the caller has locked. Used by drift repair, never by live postings.
func OverwriteBalanceTx(ctx context.Context, tx *gorm.DB, b *InventoryBalance) error {
	return saveBalance(ctx, tx, b, nil)
}

// GetBalance reads the current position; a pair with no history reads as an
// all-zero balance rather than an error.
func GetBalance(ctx context.Context, partNumber string, locationId int) (*InventoryBalance, error) {
	db := config.GetDB()
	var balance InventoryBalance
	err := db.WithContext(ctx).
		Where("part_number = ? AND location_id = ?", partNumber, locationId).
		First(&balance).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &InventoryBalance{PartNumber: partNumber, LocationId: locationId}, nil
		}
		return nil, utils.TranslateDBError(err)
	}
	return &balance, nil
}

func ListBalancesAtLocation(ctx context.Context, locationId int) ([]*InventoryBalance, error) {
	db := config.GetDB()
	var balances []*InventoryBalance
	err := db.WithContext(ctx).
		Where("location_id = ?", locationId).
		Order("part_number").
		Find(&balances).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return balances, nil
}

func ListBalancesForPart(ctx context.Context, partNumber string) ([]*InventoryBalance, error) {
	db := config.GetDB()
	var balances []*InventoryBalance
	err := db.WithContext(ctx).
		Where("part_number = ?", partNumber).
		Order("location_id").
		Find(&balances).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return balances, nil
}

// SetReorderLevels maintains the planning thresholds on a balance row,
// creating the row if the pair has no history yet.
func SetReorderLevels(ctx context.Context, partNumber string, locationId int, reorderPoint *decimal.Decimal, maxStockLevel *decimal.Decimal) (*InventoryBalance, error) {
	if err := ValidatePartNumber(ctx, partNumber); err != nil {
		return nil, err
	}
	if err := ValidateLocationId(ctx, locationId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var balance *InventoryBalance
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		balance, txErr = lockBalance(ctx, tx, BalanceKey{PartNumber: partNumber, LocationId: locationId})
		if txErr != nil {
			return txErr
		}
		return tx.WithContext(ctx).Model(balance).Updates(map[string]interface{}{
			"ReorderPoint":  reorderPoint,
			"MaxStockLevel": maxStockLevel,
		}).Error
	})
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	balance.ReorderPoint = reorderPoint
	balance.MaxStockLevel = maxStockLevel
	return balance, nil
}

// ListBelowReorderPoint reports parts whose available quantity has fallen to
// or under their reorder point.
func ListBelowReorderPoint(ctx context.Context) ([]*InventoryBalance, error) {
	db := config.GetDB()
	var balances []*InventoryBalance
	err := db.WithContext(ctx).
		Where("reorder_point IS NOT NULL AND available_quantity <= reorder_point").
		Order("part_number, location_id").
		Find(&balances).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return balances, nil
}
