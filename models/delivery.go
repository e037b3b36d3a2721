package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

// Delivery is a single-part outbound document written at ship time. The
// on-hand decrease is always a ledger `out` movement referencing it.
type Delivery struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	DeliveryOrderNumber string          `gorm:"size:30;not null;uniqueIndex" json:"delivery_order_number"`
	PartNumber          string          `gorm:"size:50;not null;index" json:"part_number"`
	QuantityShipped     decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity_shipped"`
	FromLocationId      int             `gorm:"not null" json:"from_location_id"`
	ReservationId       *int            `gorm:"index" json:"reservation_id"`
	Customer            string          `gorm:"size:100" json:"customer"`
	DeliveryDate        time.Time       `gorm:"not null" json:"delivery_date"`
	UserId              int             `gorm:"not null" json:"user_id"`
	Notes               string          `gorm:"type:text" json:"notes"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewDelivery struct {
	PartNumber     string           `json:"part_number" binding:"required"`
	Quantity       *decimal.Decimal `json:"quantity"`
	FromLocationId int              `json:"from_location_id" binding:"required"`
	ReservationId  *int             `json:"reservation_id"`
	Customer       string           `json:"customer"`
	DeliveryDate   *time.Time       `json:"delivery_date"`
	Notes          string           `json:"notes"`
}

func (input *NewDelivery) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.Quantity != nil && !input.Quantity.IsPositive() {
		return utils.ValidationError("shipped quantity must be positive")
	}
	if input.Quantity == nil && input.ReservationId == nil {
		return utils.ValidationError("shipped quantity is required without a reservation")
	}
	if err := ValidatePartNumber(ctx, input.PartNumber); err != nil {
		return err
	}
	return ValidateLocationId(ctx, input.FromLocationId)
}

// ShipDeliveryTx posts an outbound shipment in the caller's transaction.
//
// Against a reservation: lock the reservation (must be active, must match
// part and location), return its hold to available, post the guarded `out`
// movement while the balance row stays locked, then mark the reservation
// fulfilled. The balance nets to reserved − qty with on-hand carried by
// the ledger row. Without a reservation it is a plain guarded `out`.
func ShipDeliveryTx(ctx context.Context, tx *gorm.DB, input *NewDelivery) (*Delivery, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	deliveryDate := time.Now()
	if input.DeliveryDate != nil {
		deliveryDate = *input.DeliveryDate
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	var reservation StockReservation
	quantity := decimal.Zero
	if input.Quantity != nil {
		quantity = *input.Quantity
	}

	if input.ReservationId != nil {
		var err error
		reservation, err = utils.FetchModelForUpdate[StockReservation](ctx, tx, *input.ReservationId)
		if err != nil {
			return nil, err
		}
		if reservation.Status != ReservationStatusActive {
			return nil, utils.InvalidStateError("reservation %s is %s, not active", reservation.ReservationNumber, reservation.Status)
		}
		if reservation.PartNumber != input.PartNumber || reservation.LocationId != input.FromLocationId {
			return nil, utils.ValidationError("reservation %s covers %s at location %d, not %s at location %d",
				reservation.ReservationNumber, reservation.PartNumber, reservation.LocationId,
				input.PartNumber, input.FromLocationId)
		}
		if input.Quantity == nil {
			quantity = reservation.Quantity
		} else if !quantity.Equal(reservation.Quantity) {
			return nil, utils.ValidationError("shipment of %s does not match reserved %s on %s",
				quantity.String(), reservation.Quantity.String(), reservation.ReservationNumber)
		}
	}

	doNumber, err := NextDocumentNumberForDateTx(ctx, tx, DocPrefixDelivery, deliveryDate)
	if err != nil {
		return nil, err
	}

	delivery := Delivery{
		DeliveryOrderNumber: doNumber,
		PartNumber:          input.PartNumber,
		QuantityShipped:     quantity,
		FromLocationId:      input.FromLocationId,
		ReservationId:       input.ReservationId,
		Customer:            input.Customer,
		DeliveryDate:        deliveryDate,
		UserId:              userId,
		Notes:               input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&delivery).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}

	if input.ReservationId != nil {
		balance, err := lockBalance(ctx, tx, BalanceKey{PartNumber: input.PartNumber, LocationId: input.FromLocationId})
		if err != nil {
			return nil, err
		}
		if err := balance.releaseHold(quantity); err != nil {
			return nil, err
		}
		if err := saveBalance(ctx, tx, balance, nil); err != nil {
			return nil, err
		}
	}

	_, err = RecordMovementTx(ctx, tx, &NewInventoryMovement{
		PartNumber:     input.PartNumber,
		MovementType:   string(MovementTypeOut),
		FromLocationId: &input.FromLocationId,
		Quantity:       quantity,
		ReferenceType:  MovementReferenceTypeDelivery,
		ReferenceId:    &delivery.ID,
		Notes:          "delivery " + doNumber,
		MovementDate:   &deliveryDate,
	})
	if err != nil {
		return nil, err
	}

	if input.ReservationId != nil {
		now := time.Now()
		reason := "shipped " + doNumber
		err := tx.WithContext(ctx).Model(&reservation).Updates(map[string]interface{}{
			"Status":        ReservationStatusFulfilled,
			"ReleasedAt":    &now,
			"ReleaseReason": reason,
		}).Error
		if err != nil {
			return nil, utils.TranslateDBError(err)
		}
	}

	return &delivery, nil
}

func GetDelivery(ctx context.Context, id int) (*Delivery, error) {
	db := config.GetDB()
	delivery, err := utils.FetchModel[Delivery](ctx, db, id)
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

func GetDeliveryByNumber(ctx context.Context, doNumber string) (*Delivery, error) {
	db := config.GetDB()
	delivery, err := utils.FetchModelWhere[Delivery](ctx, db, "delivery_order_number = ?", doNumber)
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

func ListDeliveries(ctx context.Context, partNumber *string, limit int) ([]*Delivery, error) {
	db := config.GetDB()
	if limit <= 0 {
		limit = 100
	}

	dbCtx := db.WithContext(ctx)
	if partNumber != nil && *partNumber != "" {
		dbCtx = dbCtx.Where("part_number = ?", *partNumber)
	}

	var deliveries []*Delivery
	if err := dbCtx.Order("id DESC").Limit(limit).Find(&deliveries).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return deliveries, nil
}
