package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

// StockReservation earmarks available stock without a ledger movement.
// Mirror invariant: an active reservation's quantity is held in the balance's
// reserved column and nowhere else; release reverses the hold exactly,
// fulfill burns it (the on-hand decrease arrives as a separate out movement).
type StockReservation struct {
	ID                int               `gorm:"primary_key" json:"id"`
	ReservationNumber string            `gorm:"size:50;not null;uniqueIndex" json:"reservation_number"`
	PartNumber        string            `gorm:"size:100;not null;index" json:"part_number"`
	LocationId        int               `gorm:"not null;index" json:"location_id"`
	Quantity          decimal.Decimal   `gorm:"type:decimal(12,3);not null" json:"quantity"`
	ReservationType   ReservationType   `gorm:"size:20;not null" json:"reservation_type"`
	ReferenceId       *int              `json:"reference_id"`
	Status            ReservationStatus `gorm:"size:20;not null;default:active;index" json:"status"`
	ReservedBy        int               `gorm:"not null" json:"reserved_by"`
	ExpiresAt         *time.Time        `gorm:"index" json:"expires_at"`
	ReleasedAt        *time.Time        `json:"released_at"`
	ReleaseReason     string            `gorm:"size:100" json:"release_reason"`
	Notes             string            `gorm:"type:text" json:"notes"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStockReservation struct {
	PartNumber      string          `json:"part_number" binding:"required"`
	LocationId      int             `json:"location_id" binding:"required"`
	Quantity        decimal.Decimal `json:"quantity" binding:"required"`
	ReservationType string          `json:"reservation_type"`
	ReferenceId     *int            `json:"reference_id"`
	ExpiresAt       *time.Time      `json:"expires_at"`
	Notes           string          `json:"notes"`
}

func (input *NewStockReservation) validate(ctx context.Context, tx *gorm.DB) (ReservationType, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return "", err
	}
	if !input.Quantity.IsPositive() {
		return "", utils.ValidationError("quantity must be positive")
	}

	reservationType := ReservationType(input.ReservationType)
	if reservationType == "" {
		reservationType = ReservationTypeManual
	}

	// typed reference per reservation kind
	switch reservationType {
	case ReservationTypeProduction:
		if input.ReferenceId == nil || *input.ReferenceId <= 0 {
			return "", utils.ValidationError("production reservation requires a production order reference")
		}
		if err := ValidateMovementReference(ctx, tx, MovementReferenceTypeProductionOrder, *input.ReferenceId); err != nil {
			return "", err
		}
	case ReservationTypeDelivery:
		if input.ReferenceId == nil || *input.ReferenceId <= 0 {
			return "", utils.ValidationError("delivery reservation requires a delivery reference")
		}
		if err := ValidateMovementReference(ctx, tx, MovementReferenceTypeDelivery, *input.ReferenceId); err != nil {
			return "", err
		}
	case ReservationTypeManual:
	default:
		return "", utils.ValidationError("invalid reservation type '%s'", input.ReservationType)
	}

	if err := ValidatePartNumber(ctx, input.PartNumber); err != nil {
		return "", err
	}
	if err := ValidateLocationId(ctx, input.LocationId); err != nil {
		return "", err
	}
	return reservationType, nil
}

// ReserveStockTx locks the balance, verifies availability, moves quantity
// from available into reserved and inserts the reservation, all in the
// caller's transaction.
func ReserveStockTx(ctx context.Context, tx *gorm.DB, input *NewStockReservation) (*StockReservation, error) {

	reservationType, err := input.validate(ctx, tx)
	if err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)

	balance, err := lockBalance(ctx, tx, BalanceKey{PartNumber: input.PartNumber, LocationId: input.LocationId})
	if err != nil {
		return nil, err
	}
	if err := balance.hold(input.Quantity); err != nil {
		return nil, err
	}

	now := time.Now()
	reservationNumber, err := NextDocumentNumberForDateTx(ctx, tx, DocPrefixReservation, now)
	if err != nil {
		return nil, err
	}

	expiresAt := input.ExpiresAt
	if expiresAt == nil {
		if ttlHours := config.ReservationDefaultTTLHours(); ttlHours > 0 {
			v := now.Add(time.Duration(ttlHours) * time.Hour)
			expiresAt = &v
		}
	}

	reservation := StockReservation{
		ReservationNumber: reservationNumber,
		PartNumber:        input.PartNumber,
		LocationId:        input.LocationId,
		Quantity:          input.Quantity,
		ReservationType:   reservationType,
		ReferenceId:       input.ReferenceId,
		Status:            ReservationStatusActive,
		ReservedBy:        userId,
		ExpiresAt:         expiresAt,
		Notes:             input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&reservation).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}

	if err := saveBalance(ctx, tx, balance, nil); err != nil {
		return nil, err
	}

	return &reservation, nil
}

func ReserveStock(ctx context.Context, input *NewStockReservation) (*StockReservation, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var reservation *StockReservation
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		reservation, txErr = ReserveStockTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		config.LogError(logger, "stockReservation.go", "ReserveStock", "reserve stock", input, err)
		return nil, err
	}
	return reservation, nil
}

// releaseReservationTx reverses or burns an active reservation's hold.
// finalStatus cancelled/expired give the quantity back to available;
// fulfilled only burns the reserved column.
func releaseReservationTx(ctx context.Context, tx *gorm.DB, reservationId int, finalStatus ReservationStatus, reason string) (*StockReservation, error) {

	// lock the reservation row first so concurrent releases serialize here
	reservation, err := utils.FetchModelForUpdate[StockReservation](ctx, tx, reservationId)
	if err != nil {
		return nil, err
	}
	if reservation.Status != ReservationStatusActive {
		return nil, utils.InvalidStateError("reservation %s is %s, not active",
			reservation.ReservationNumber, reservation.Status)
	}

	balance, err := lockBalance(ctx, tx, BalanceKey{PartNumber: reservation.PartNumber, LocationId: reservation.LocationId})
	if err != nil {
		return nil, err
	}

	switch finalStatus {
	case ReservationStatusCancelled, ReservationStatusExpired:
		if err := balance.releaseHold(reservation.Quantity); err != nil {
			return nil, err
		}
	case ReservationStatusFulfilled:
		if err := balance.consumeHold(reservation.Quantity); err != nil {
			return nil, err
		}
	default:
		return nil, utils.InvalidStateError("cannot release a reservation into status %s", finalStatus)
	}

	now := time.Now()
	if err := tx.WithContext(ctx).Model(&reservation).Updates(map[string]interface{}{
		"Status":        finalStatus,
		"ReleasedAt":    now,
		"ReleaseReason": reason,
	}).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}
	reservation.Status = finalStatus
	reservation.ReleasedAt = &now
	reservation.ReleaseReason = reason

	if err := saveBalance(ctx, tx, balance, nil); err != nil {
		return nil, err
	}

	return &reservation, nil
}

// ReleaseReservation cancels an active reservation and returns its quantity
// to available. Double release fails rather than double-crediting stock.
func ReleaseReservation(ctx context.Context, reservationId int, reason string) (*StockReservation, error) {
	db := config.GetDB()
	var reservation *StockReservation
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		reservation, txErr = releaseReservationTx(ctx, tx, reservationId, ReservationStatusCancelled, reason)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func ReleaseReservationTx(ctx context.Context, tx *gorm.DB, reservationId int, reason string) (*StockReservation, error) {
	return releaseReservationTx(ctx, tx, reservationId, ReservationStatusCancelled, reason)
}

// FulfillReservation burns the reserved quantity; the physical issue is the
// caller's separate out movement in the same transaction.
func FulfillReservation(ctx context.Context, reservationId int) (*StockReservation, error) {
	db := config.GetDB()
	var reservation *StockReservation
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		reservation, txErr = releaseReservationTx(ctx, tx, reservationId, ReservationStatusFulfilled, "")
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func FulfillReservationTx(ctx context.Context, tx *gorm.DB, reservationId int) (*StockReservation, error) {
	return releaseReservationTx(ctx, tx, reservationId, ReservationStatusFulfilled, "")
}

// ExpireDueReservations sweeps active reservations past their expiry, one
// transaction each so a single bad row cannot wedge the sweep.
func ExpireDueReservations(ctx context.Context, now time.Time) (int, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	// one sweeper at a time across instances
	release, err := utils.InventoryLock(ctx, "sweep", "reservation_expiry", "stockReservation.go", "ExpireDueReservations")
	if err != nil {
		return 0, err
	}
	defer release()

	var dueIds []int
	if err := db.WithContext(ctx).Model(&StockReservation{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", ReservationStatusActive, now).
		Order("id").
		Pluck("id", &dueIds).Error; err != nil {
		return 0, utils.TranslateDBError(err)
	}

	expired := 0
	for _, id := range dueIds {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, txErr := releaseReservationTx(ctx, tx, id, ReservationStatusExpired, "expired")
			return txErr
		})
		if err != nil {
			// InvalidState means a racer released it first; anything else is logged
			if !errors.Is(err, utils.ErrorInvalidState) {
				config.LogError(logger, "stockReservation.go", "ExpireDueReservations", "expire reservation", id, err)
			}
			continue
		}
		expired++
	}
	return expired, nil
}

// ActiveReservationTotal sums active holds for one balance, for drift checks
// against the reserved column.
func ActiveReservationTotal(ctx context.Context, db *gorm.DB, partNumber string, locationId int) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := db.WithContext(ctx).Model(&StockReservation{}).
		Where("part_number = ? AND location_id = ? AND status = ?", partNumber, locationId, ReservationStatusActive).
		Select("SUM(quantity)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, utils.TranslateDBError(err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func GetReservation(ctx context.Context, id int) (*StockReservation, error) {
	db := config.GetDB()
	reservation, err := utils.FetchModel[StockReservation](ctx, db, id)
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func ListActiveReservations(ctx context.Context, partNumber string, locationId *int) ([]*StockReservation, error) {
	db := config.GetDB()
	var reservations []*StockReservation

	dbCtx := db.WithContext(ctx).Where("status = ?", ReservationStatusActive)
	if partNumber != "" {
		dbCtx = dbCtx.Where("part_number = ?", partNumber)
	}
	if locationId != nil && *locationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", *locationId)
	}
	err := dbCtx.Order("id").Find(&reservations).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return reservations, nil
}

/* quarantine holds; bucket shifts with no ledger row, mirroring reservations */

// QuarantineStockTx moves available quantity into the quarantine bucket.
func QuarantineStockTx(ctx context.Context, tx *gorm.DB, partNumber string, locationId int, qty decimal.Decimal, reason string) (*InventoryBalance, error) {
	if !qty.IsPositive() {
		return nil, utils.ValidationError("quantity must be positive")
	}
	if err := ValidatePartNumber(ctx, partNumber); err != nil {
		return nil, err
	}
	if err := ValidateLocationId(ctx, locationId); err != nil {
		return nil, err
	}

	balance, err := lockBalance(ctx, tx, BalanceKey{PartNumber: partNumber, LocationId: locationId})
	if err != nil {
		return nil, err
	}
	if err := balance.quarantineHold(qty); err != nil {
		return nil, err
	}
	if err := saveBalance(ctx, tx, balance, nil); err != nil {
		return nil, err
	}
	return balance, nil
}

func QuarantineStock(ctx context.Context, partNumber string, locationId int, qty decimal.Decimal, reason string) (*InventoryBalance, error) {
	db := config.GetDB()
	var balance *InventoryBalance
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		balance, txErr = QuarantineStockTx(ctx, tx, partNumber, locationId, qty, reason)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// ReleaseQuarantine disposes of held stock: return puts it back into
// available; scrap writes a ledger-backed scrap movement drawing from the
// quarantine bucket.
func ReleaseQuarantine(ctx context.Context, partNumber string, locationId int, qty decimal.Decimal, disposition QuarantineDisposition, reason string) error {
	if !qty.IsPositive() {
		return utils.ValidationError("quantity must be positive")
	}

	db := config.GetDB()
	switch disposition {
	case QuarantineDispositionReturn:
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			balance, err := lockBalance(ctx, tx, BalanceKey{PartNumber: partNumber, LocationId: locationId})
			if err != nil {
				return err
			}
			if err := balance.releaseQuarantineHold(qty); err != nil {
				return err
			}
			return saveBalance(ctx, tx, balance, nil)
		})
	case QuarantineDispositionScrap:
		_, err := RecordMovement(ctx, &NewInventoryMovement{
			PartNumber:     partNumber,
			MovementType:   string(MovementTypeScrap),
			FromLocationId: &locationId,
			SourceBucket:   string(StockBucketQuarantine),
			Quantity:       qty,
			ReasonCode:     reason,
		})
		return err
	default:
		return utils.ValidationError("invalid quarantine disposition '%s'", disposition)
	}
}
