package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

// ProductionOrder is a job order to produce a part. Components are issued
// from source_location_id, finished goods are received into
// output_location_id. The status column mirrors the active
// production_order/lifecycle workflow state.
type ProductionOrder struct {
	ID               int                   `gorm:"primary_key" json:"id"`
	JobOrder         string                `gorm:"size:30;not null;uniqueIndex" json:"job_order"`
	PartNumber       string                `gorm:"size:50;not null;index" json:"part_number"`
	PlanQuantity     decimal.Decimal       `gorm:"type:decimal(12,3);not null" json:"plan_quantity"`
	ProducedQuantity decimal.Decimal       `gorm:"type:decimal(12,3);not null;default:0" json:"produced_quantity"`
	NgQuantity       decimal.Decimal       `gorm:"type:decimal(12,3);not null;default:0" json:"ng_quantity"`
	MachineId        *int                  `gorm:"index" json:"machine_id"`
	SourceLocationId int                   `gorm:"not null" json:"source_location_id"`
	OutputLocationId int                   `gorm:"not null" json:"output_location_id"`
	StartDate        *time.Time            `json:"start_date"`
	Status           ProductionOrderStatus `gorm:"size:20;not null;default:planning;index" json:"status"`
	MaterialsIssued  *bool                 `gorm:"not null;default:false" json:"materials_issued"`
	CreatedBy        int                   `gorm:"not null" json:"created_by"`
	CompletedAt      *time.Time            `json:"completed_at"`
	Notes            string                `gorm:"type:text" json:"notes"`
	CreatedAt        time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProductionOrder struct {
	PartNumber       string          `json:"part_number" binding:"required"`
	PlanQuantity     decimal.Decimal `json:"plan_quantity" binding:"required"`
	MachineId        *int            `json:"machine_id"`
	SourceLocationId int             `json:"source_location_id" binding:"required"`
	OutputLocationId int             `json:"output_location_id" binding:"required"`
	StartDate        *time.Time      `json:"start_date"`
	AllowEmptyBom    bool            `json:"allow_empty_bom"`
	IssueMaterials   bool            `json:"issue_materials"`
	Notes            string          `json:"notes"`
}

func (input *NewProductionOrder) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.PlanQuantity.IsPositive() {
		return utils.ValidationError("plan quantity must be positive")
	}
	if err := ValidatePartNumber(ctx, input.PartNumber); err != nil {
		return err
	}
	if err := ValidateLocationId(ctx, input.SourceLocationId); err != nil {
		return err
	}
	if err := ValidateLocationId(ctx, input.OutputLocationId); err != nil {
		return err
	}
	if input.MachineId != nil && *input.MachineId > 0 {
		if err := ValidateMachineId(ctx, *input.MachineId); err != nil {
			return err
		}
	}
	return nil
}

// InsertProductionOrderTx validates the input, claims a JO number and
// inserts the header. Reservation and workflow wiring sits with the caller.
func InsertProductionOrderTx(ctx context.Context, tx *gorm.DB, input *NewProductionOrder) (*ProductionOrder, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	jobOrder, err := NextDocumentNumberForDateTx(ctx, tx, DocPrefixJobOrder, time.Now())
	if err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	order := ProductionOrder{
		JobOrder:         jobOrder,
		PartNumber:       input.PartNumber,
		PlanQuantity:     input.PlanQuantity,
		ProducedQuantity: decimal.Zero,
		NgQuantity:       decimal.Zero,
		MachineId:        input.MachineId,
		SourceLocationId: input.SourceLocationId,
		OutputLocationId: input.OutputLocationId,
		StartDate:        input.StartDate,
		Status:           ProductionOrderStatusPlanning,
		MaterialsIssued:  utils.NewFalse(),
		CreatedBy:        userId,
		Notes:            input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return &order, nil
}

// SetProductionOrderStatusTx syncs the coarse status column with the
// workflow tracker. Caller is responsible for the matching transition.
func SetProductionOrderStatusTx(ctx context.Context, tx *gorm.DB, orderId int, status ProductionOrderStatus) error {
	res := tx.WithContext(ctx).Model(&ProductionOrder{}).
		Where("id = ?", orderId).
		UpdateColumn("Status", status)
	if res.Error != nil {
		return utils.TranslateDBError(res.Error)
	}
	return nil
}

// MarkMaterialsIssuedTx flags the order after its component consumption
// movements have been posted.
func MarkMaterialsIssuedTx(ctx context.Context, tx *gorm.DB, orderId int) error {
	res := tx.WithContext(ctx).Model(&ProductionOrder{}).
		Where("id = ?", orderId).
		UpdateColumn("MaterialsIssued", true)
	if res.Error != nil {
		return utils.TranslateDBError(res.Error)
	}
	return nil
}

// AddProductionOutputTx accumulates reported good and NG quantities onto
// the order counters.
func AddProductionOutputTx(ctx context.Context, tx *gorm.DB, orderId int, goodQuantity decimal.Decimal, ngQuantity decimal.Decimal) error {
	err := tx.WithContext(ctx).Exec(
		"UPDATE production_orders SET produced_quantity = produced_quantity + ?, ng_quantity = ng_quantity + ?, updated_at = NOW() WHERE id = ?",
		goodQuantity, ngQuantity, orderId,
	).Error
	if err != nil {
		return utils.TranslateDBError(err)
	}
	return nil
}

// IssueMaterialsTx consumes the order's active component reservations:
// each hold returns to available under the row lock and a guarded `out`
// movement posts in its place, then the reservation is marked fulfilled.
// Returns the number of consumption movements posted.
func IssueMaterialsTx(ctx context.Context, tx *gorm.DB, order *ProductionOrder) (int, error) {

	var reservations []*StockReservation
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reservation_type = ? AND reference_id = ? AND status = ?",
			ReservationTypeProduction, order.ID, ReservationStatusActive).
		Order("part_number, location_id").
		Find(&reservations).Error
	if err != nil {
		return 0, utils.TranslateDBError(err)
	}

	if len(reservations) > 0 {
		keys := make([]BalanceKey, 0, len(reservations))
		for _, reservation := range reservations {
			keys = append(keys, BalanceKey{PartNumber: reservation.PartNumber, LocationId: reservation.LocationId})
		}
		balances, err := LockBalances(ctx, tx, keys)
		if err != nil {
			return 0, err
		}

		now := time.Now()
		for _, reservation := range reservations {
			balance := balances[BalanceKey{PartNumber: reservation.PartNumber, LocationId: reservation.LocationId}]
			if err := balance.releaseHold(reservation.Quantity); err != nil {
				return 0, err
			}
			if err := saveBalance(ctx, tx, balance, nil); err != nil {
				return 0, err
			}

			_, err := RecordMovementTx(ctx, tx, &NewInventoryMovement{
				PartNumber:     reservation.PartNumber,
				MovementType:   string(MovementTypeOut),
				FromLocationId: &reservation.LocationId,
				Quantity:       reservation.Quantity,
				ReferenceType:  MovementReferenceTypeProductionOrder,
				ReferenceId:    &order.ID,
				Notes:          "material issue " + order.JobOrder,
				MovementDate:   &now,
			})
			if err != nil {
				return 0, err
			}

			reason := "issued " + order.JobOrder
			err = tx.WithContext(ctx).Model(reservation).Updates(map[string]interface{}{
				"Status":        ReservationStatusFulfilled,
				"ReleasedAt":    &now,
				"ReleaseReason": reason,
			}).Error
			if err != nil {
				return 0, utils.TranslateDBError(err)
			}
		}
	}

	if err := MarkMaterialsIssuedTx(ctx, tx, order.ID); err != nil {
		return 0, err
	}
	return len(reservations), nil
}

func GetProductionOrder(ctx context.Context, id int) (*ProductionOrder, error) {
	db := config.GetDB()
	order, err := utils.FetchModel[ProductionOrder](ctx, db, id)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func GetProductionOrderByJobOrder(ctx context.Context, jobOrder string) (*ProductionOrder, error) {
	db := config.GetDB()
	order, err := utils.FetchModelWhere[ProductionOrder](ctx, db, "job_order = ?", jobOrder)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListProductionOrders returns orders newest first, optionally filtered by
// status.
func ListProductionOrders(ctx context.Context, status *ProductionOrderStatus, limit int) ([]*ProductionOrder, error) {
	db := config.GetDB()
	if limit <= 0 {
		limit = 100
	}

	dbCtx := db.WithContext(ctx)
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}

	var orders []*ProductionOrder
	if err := dbCtx.Order("id DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return orders, nil
}

// OrderReservations lists reservations raised for a production order.
func OrderReservations(ctx context.Context, orderId int, status *ReservationStatus) ([]*StockReservation, error) {
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).
		Where("reservation_type = ? AND reference_id = ?", ReservationTypeProduction, orderId)
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}

	var reservations []*StockReservation
	if err := dbCtx.Order("id").Find(&reservations).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return reservations, nil
}
