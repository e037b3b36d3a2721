package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/models"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

// CreateProductionOrder posts a job order in one transaction: claim the JO
// number, explode the bill of material, reserve every component at the
// source location and enter the lifecycle workflow as planning. With
// input.IssueMaterials the same transaction also posts the consumption
// movements and moves the order to in_progress.
func CreateProductionOrder(ctx context.Context, input *models.NewProductionOrder) (*models.ProductionOrder, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var order *models.ProductionOrder
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = models.InsertProductionOrderTx(ctx, tx, input)
		if err != nil {
			return err
		}

		components, err := models.ExplodeBOM(ctx, order.PartNumber, order.PlanQuantity, time.Now())
		if err != nil {
			return err
		}
		if len(components) == 0 && !input.AllowEmptyBom {
			return utils.ValidationError("part %s has no active bill of material", order.PartNumber)
		}

		// all component balance locks in canonical order before reserving
		keys := make([]models.BalanceKey, 0, len(components))
		for _, component := range components {
			keys = append(keys, models.BalanceKey{PartNumber: component.ChildPartNumber, LocationId: order.SourceLocationId})
		}
		if len(keys) > 0 {
			if _, err := models.LockBalances(ctx, tx, keys); err != nil {
				return err
			}
		}

		for _, component := range components {
			_, err := models.ReserveStockTx(ctx, tx, &models.NewStockReservation{
				PartNumber:      component.ChildPartNumber,
				LocationId:      order.SourceLocationId,
				Quantity:        component.RequiredQuantity,
				ReservationType: string(models.ReservationTypeProduction),
				ReferenceId:     &order.ID,
				Notes:           "materials for " + order.JobOrder,
			})
			if err != nil {
				return err
			}
		}

		_, err = models.TransitionWorkflowTx(ctx, tx, &models.NewWorkflowTransition{
			EntityType:   models.WorkflowEntityProductionOrder,
			EntityId:     order.ID,
			WorkflowName: models.WorkflowNameLifecycle,
			NewState:     string(models.ProductionOrderStatusPlanning),
			Notes:        order.JobOrder,
		})
		if err != nil {
			return err
		}

		if input.IssueMaterials {
			return startOrderTx(ctx, tx, order, "backflush at create")
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "productionWorkflow.go", "CreateProductionOrder", "create production order", input, err)
		return nil, err
	}
	return models.GetProductionOrder(ctx, order.ID)
}

// startOrderTx moves an order into in_progress and issues its materials if
// they have not been issued yet. Also serves the rework restart, where the
// issue step is a no-op.
func startOrderTx(ctx context.Context, tx *gorm.DB, order *models.ProductionOrder, notes string) error {
	_, err := models.TransitionWorkflowTx(ctx, tx, &models.NewWorkflowTransition{
		EntityType:   models.WorkflowEntityProductionOrder,
		EntityId:     order.ID,
		WorkflowName: models.WorkflowNameLifecycle,
		NewState:     string(models.ProductionOrderStatusInProgress),
		Notes:        notes,
	})
	if err != nil {
		return err
	}
	if err := models.SetProductionOrderStatusTx(ctx, tx, order.ID, models.ProductionOrderStatusInProgress); err != nil {
		return err
	}

	if order.MaterialsIssued == nil || !*order.MaterialsIssued {
		if _, err := models.IssueMaterialsTx(ctx, tx, order); err != nil {
			return err
		}
	}

	if order.StartDate == nil {
		now := time.Now()
		err := tx.WithContext(ctx).Model(&models.ProductionOrder{}).
			Where("id = ? AND start_date IS NULL", order.ID).
			UpdateColumn("StartDate", &now).Error
		if err != nil {
			return utils.TranslateDBError(err)
		}
	}
	return nil
}

// StartProductionOrder moves planning (or rework) into in_progress,
// issuing materials when not already issued.
func StartProductionOrder(ctx context.Context, orderId int) (*models.ProductionOrder, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := utils.FetchModelForUpdate[models.ProductionOrder](ctx, tx, orderId)
		if err != nil {
			return err
		}
		return startOrderTx(ctx, tx, &order, "")
	})
	if err != nil {
		config.LogError(logger, "productionWorkflow.go", "StartProductionOrder", "start production order", orderId, err)
		return nil, err
	}
	return models.GetProductionOrder(ctx, orderId)
}

// StartRework sends a rework-flagged order back into in_progress.
func StartRework(ctx context.Context, orderId int) (*models.ProductionOrder, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := utils.FetchModelForUpdate[models.ProductionOrder](ctx, tx, orderId)
		if err != nil {
			return err
		}
		if order.Status != models.ProductionOrderStatusRework {
			return utils.InvalidStateError("order %s is %s, not rework", order.JobOrder, order.Status)
		}
		return startOrderTx(ctx, tx, &order, "rework restart")
	})
	if err != nil {
		config.LogError(logger, "productionWorkflow.go", "StartRework", "restart rework order", orderId, err)
		return nil, err
	}
	return models.GetProductionOrder(ctx, orderId)
}

// RecordMachineOutput posts one output report: append the machine_outputs
// row, receive good quantity into the output location at standard cost,
// receive and quarantine NG quantity, then roll the order counters. When
// cumulative produced quantity reaches plan the order moves to qc_pending
// and a pending OQC inspection is opened.
func RecordMachineOutput(ctx context.Context, input *models.NewMachineOutput) (*models.MachineOutput, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var output *models.MachineOutput
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := utils.FetchModelForUpdate[models.ProductionOrder](ctx, tx, input.ProductionOrderId)
		if err != nil {
			return err
		}
		if order.Status != models.ProductionOrderStatusInProgress {
			return utils.InvalidStateError("order %s is %s, output requires in_progress", order.JobOrder, order.Status)
		}

		output, err = models.InsertMachineOutputTx(ctx, tx, input)
		if err != nil {
			return err
		}

		part, err := models.GetPartByNumber(ctx, order.PartNumber)
		if err != nil {
			return err
		}
		var unitCost *decimal.Decimal
		if part.StandardCost.IsPositive() {
			standardCost := part.StandardCost
			unitCost = &standardCost
		}

		if output.GoodQuantity.IsPositive() {
			_, err := models.RecordMovementTx(ctx, tx, &models.NewInventoryMovement{
				PartNumber:    order.PartNumber,
				MovementType:  string(models.MovementTypeIn),
				ToLocationId:  &order.OutputLocationId,
				Quantity:      output.GoodQuantity,
				UnitCost:      unitCost,
				ReferenceType: models.MovementReferenceTypeMachineOutput,
				ReferenceId:   &output.ID,
				Notes:         "production output " + order.JobOrder,
				MovementDate:  &output.OperationDate,
			})
			if err != nil {
				return err
			}
		}

		if output.NgQuantity.IsPositive() {
			_, err := models.RecordMovementTx(ctx, tx, &models.NewInventoryMovement{
				PartNumber:    order.PartNumber,
				MovementType:  string(models.MovementTypeIn),
				ToLocationId:  &order.OutputLocationId,
				Quantity:      output.NgQuantity,
				UnitCost:      unitCost,
				ReferenceType: models.MovementReferenceTypeMachineOutput,
				ReferenceId:   &output.ID,
				Notes:         "ng output " + order.JobOrder,
				MovementDate:  &output.OperationDate,
			})
			if err != nil {
				return err
			}
			_, err = models.QuarantineStockTx(ctx, tx, order.PartNumber, order.OutputLocationId, output.NgQuantity, "ng from "+order.JobOrder)
			if err != nil {
				return err
			}
		}

		if err := models.AddProductionOutputTx(ctx, tx, order.ID, output.GoodQuantity, output.NgQuantity); err != nil {
			return err
		}

		if order.ProducedQuantity.Add(output.GoodQuantity).GreaterThanOrEqual(order.PlanQuantity) {
			_, err := models.TransitionWorkflowTx(ctx, tx, &models.NewWorkflowTransition{
				EntityType:   models.WorkflowEntityProductionOrder,
				EntityId:     order.ID,
				WorkflowName: models.WorkflowNameLifecycle,
				NewState:     string(models.ProductionOrderStatusQcPending),
				Notes:        "plan quantity reached",
			})
			if err != nil {
				return err
			}
			if err := models.SetProductionOrderStatusTx(ctx, tx, order.ID, models.ProductionOrderStatusQcPending); err != nil {
				return err
			}
			_, err = models.OpenQcInspectionTx(ctx, tx, &models.NewQcInspection{
				InspectionType:    string(models.InspectionTypeOqc),
				ProductionOrderId: &order.ID,
				PartNumber:        order.PartNumber,
				LocationId:        order.OutputLocationId,
				Notes:             "outgoing inspection for " + order.JobOrder,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "productionWorkflow.go", "RecordMachineOutput", "record machine output", input, err)
		return nil, err
	}
	return output, nil
}

// CancelProductionOrder cancels an order and releases its remaining active
// reservations. The lifecycle table rejects cancellation from qc_pending
// or a terminal state.
func CancelProductionOrder(ctx context.Context, orderId int, reason string) (*models.ProductionOrder, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := utils.FetchModelForUpdate[models.ProductionOrder](ctx, tx, orderId)
		if err != nil {
			return err
		}

		_, err = models.TransitionWorkflowTx(ctx, tx, &models.NewWorkflowTransition{
			EntityType:   models.WorkflowEntityProductionOrder,
			EntityId:     order.ID,
			WorkflowName: models.WorkflowNameLifecycle,
			NewState:     string(models.ProductionOrderStatusCancelled),
			Notes:        reason,
		})
		if err != nil {
			return err
		}

		// canonical order keeps the per-reservation balance locks deadlock-free
		var reservations []*models.StockReservation
		err = tx.WithContext(ctx).
			Where("reservation_type = ? AND reference_id = ? AND status = ?",
				models.ReservationTypeProduction, order.ID, models.ReservationStatusActive).
			Order("part_number, location_id").
			Find(&reservations).Error
		if err != nil {
			return utils.TranslateDBError(err)
		}
		for _, reservation := range reservations {
			if _, err := models.ReleaseReservationTx(ctx, tx, reservation.ID, reason); err != nil {
				return err
			}
		}

		return models.SetProductionOrderStatusTx(ctx, tx, order.ID, models.ProductionOrderStatusCancelled)
	})
	if err != nil {
		config.LogError(logger, "productionWorkflow.go", "CancelProductionOrder", "cancel production order", orderId, err)
		return nil, err
	}
	return models.GetProductionOrder(ctx, orderId)
}
