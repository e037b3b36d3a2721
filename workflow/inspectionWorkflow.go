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

type CompleteInspectionInput struct {
	ProductionOrderId int              `json:"production_order_id" binding:"required"`
	QuantityGood      decimal.Decimal  `json:"quantity_good"`
	QuantityNg        *decimal.Decimal `json:"quantity_ng"`
	Notes             string           `json:"notes"`
}

// CompleteInspection closes the pending OQC inspection raised when the
// order reached qc_pending. Rejected quantity moves into the quarantine
// bucket at the output location. A clean pass completes the order;
// anything else sends it to rework.
func CompleteInspection(ctx context.Context, input *CompleteInspectionInput) (*models.QcInspection, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	ngQuantity := decimal.Zero
	if input.QuantityNg != nil {
		ngQuantity = *input.QuantityNg
	}

	var inspection *models.QcInspection
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := utils.FetchModelForUpdate[models.ProductionOrder](ctx, tx, input.ProductionOrderId)
		if err != nil {
			return err
		}
		if order.Status != models.ProductionOrderStatusQcPending {
			return utils.InvalidStateError("order %s is %s, inspection requires qc_pending", order.JobOrder, order.Status)
		}

		pending, err := models.PendingInspectionForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		inspection, err = models.RecordQcInspectionResultTx(ctx, tx, pending.ID, input.QuantityGood, ngQuantity, input.Notes)
		if err != nil {
			return err
		}

		if ngQuantity.IsPositive() {
			_, err := models.QuarantineStockTx(ctx, tx, order.PartNumber, order.OutputLocationId, ngQuantity, "qc reject "+inspection.InspectionNumber)
			if err != nil {
				return err
			}
		}

		if inspection.Result != nil && *inspection.Result == models.InspectionResultPass {
			_, err := models.TransitionWorkflowTx(ctx, tx, &models.NewWorkflowTransition{
				EntityType:   models.WorkflowEntityProductionOrder,
				EntityId:     order.ID,
				WorkflowName: models.WorkflowNameLifecycle,
				NewState:     string(models.ProductionOrderStatusCompleted),
				Notes:        inspection.InspectionNumber,
			})
			if err != nil {
				return err
			}
			now := time.Now()
			err = tx.WithContext(ctx).Model(&models.ProductionOrder{}).
				Where("id = ?", order.ID).
				Updates(map[string]interface{}{
					"Status":      models.ProductionOrderStatusCompleted,
					"CompletedAt": &now,
				}).Error
			if err != nil {
				return utils.TranslateDBError(err)
			}
			return nil
		}

		_, err = models.TransitionWorkflowTx(ctx, tx, &models.NewWorkflowTransition{
			EntityType:   models.WorkflowEntityProductionOrder,
			EntityId:     order.ID,
			WorkflowName: models.WorkflowNameLifecycle,
			NewState:     string(models.ProductionOrderStatusRework),
			Notes:        inspection.InspectionNumber,
		})
		if err != nil {
			return err
		}
		return models.SetProductionOrderStatusTx(ctx, tx, order.ID, models.ProductionOrderStatusRework)
	})
	if err != nil {
		config.LogError(logger, "inspectionWorkflow.go", "CompleteInspection", "complete inspection", input, err)
		return nil, err
	}
	return inspection, nil
}
