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

const handlerReceivePurchaseOrder = "receipt.receive_purchase_order"

type ReceiptLineInput struct {
	PurchaseOrderItemId int              `json:"purchase_order_item_id" binding:"required"`
	Quantity            decimal.Decimal  `json:"quantity" binding:"required"`
	UnitCost            *decimal.Decimal `json:"unit_cost"`
	BatchNumber         string           `json:"batch_number"`
}

type ReceivePurchaseOrderInput struct {
	PurchaseOrderId int                `json:"purchase_order_id" binding:"required"`
	LocationId      int                `json:"location_id" binding:"required"`
	MessageId       string             `json:"message_id"`
	Notes           string             `json:"notes"`
	Items           []ReceiptLineInput `json:"items" binding:"required"`
}

// ReceivePurchaseOrder posts a receipt against a confirmed PO: one goods
// receipt with an `in` movement per line (weighted-average update at the
// receiving location), received quantities rolled onto the PO lines, and
// the PO moved to received once every line is complete. Unit cost defaults
// to the PO line price. With a message id the posting is idempotent; a
// replayed message returns the already-posted receipt.
func ReceivePurchaseOrder(ctx context.Context, input *ReceivePurchaseOrderInput) (*models.GoodsReceipt, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if len(input.Items) == 0 {
		return nil, utils.ValidationError("receipt requires at least one item")
	}

	var receipt *models.GoodsReceipt
	receiveTx := func(tx *gorm.DB) error {
		po, err := utils.FetchModelForUpdate[models.PurchaseOrder](ctx, tx, input.PurchaseOrderId)
		if err != nil {
			return err
		}
		if po.Status != models.PurchaseOrderStatusConfirmed {
			return utils.InvalidStateError("purchase order %s is %s, receiving requires confirmed", po.PoNumber, po.Status)
		}

		var poItems []models.PurchaseOrderItem
		err = tx.WithContext(ctx).Where("purchase_order_id = ?", po.ID).Find(&poItems).Error
		if err != nil {
			return utils.TranslateDBError(err)
		}
		poItemsById := make(map[int]*models.PurchaseOrderItem, len(poItems))
		for i := range poItems {
			poItemsById[poItems[i].ID] = &poItems[i]
		}

		receiptInput := models.NewGoodsReceipt{
			PurchaseOrderId: &po.ID,
			SupplierId:      &po.SupplierId,
			LocationId:      input.LocationId,
			Notes:           input.Notes,
		}
		for _, line := range input.Items {
			poItem, ok := poItemsById[line.PurchaseOrderItemId]
			if !ok {
				return utils.ValidationError("item %d does not belong to purchase order %s", line.PurchaseOrderItemId, po.PoNumber)
			}
			if !line.Quantity.IsPositive() {
				return utils.ValidationError("receipt quantity for %s must be positive", poItem.PartNumber)
			}
			remaining := poItem.QuantityOrdered.Sub(poItem.QuantityReceived)
			if line.Quantity.GreaterThan(remaining) {
				return utils.ValidationError("receipt of %s exceeds remaining %s for %s on %s",
					line.Quantity.String(), remaining.String(), poItem.PartNumber, po.PoNumber)
			}

			unitCost := poItem.UnitPrice.Round(2)
			if line.UnitCost != nil {
				unitCost = *line.UnitCost
			}
			itemId := line.PurchaseOrderItemId
			receiptInput.Items = append(receiptInput.Items, models.NewGoodsReceiptItem{
				PartNumber:          poItem.PartNumber,
				Quantity:            line.Quantity,
				UnitCost:            unitCost,
				PurchaseOrderItemId: &itemId,
				BatchNumber:         line.BatchNumber,
			})
		}

		receipt, err = models.CreateGoodsReceiptTx(ctx, tx, &receiptInput)
		if err != nil {
			return err
		}

		for _, line := range input.Items {
			if err := models.AddPoItemReceivedTx(ctx, tx, line.PurchaseOrderItemId, line.Quantity); err != nil {
				return err
			}
		}

		var openLines int64
		err = tx.WithContext(ctx).Model(&models.PurchaseOrderItem{}).
			Where("purchase_order_id = ? AND quantity_received < quantity_ordered", po.ID).
			Count(&openLines).Error
		if err != nil {
			return utils.TranslateDBError(err)
		}
		if openLines == 0 {
			_, err := models.TransitionWorkflowTx(ctx, tx, &models.NewWorkflowTransition{
				EntityType:   models.WorkflowEntityPurchaseOrder,
				EntityId:     po.ID,
				WorkflowName: models.WorkflowNameProcurement,
				NewState:     string(models.PurchaseOrderStatusReceived),
				Notes:        receipt.ReceiptNumber,
			})
			if err != nil {
				return err
			}
			return models.SetPurchaseOrderStatusTx(ctx, tx, po.ID, models.PurchaseOrderStatusReceived)
		}
		return nil
	}

	var err error
	if input.MessageId != "" {
		var skipped bool
		skipped, err = RunIdempotent(ctx, handlerReceivePurchaseOrder, input.MessageId, receiveTx)
		if err == nil && skipped {
			logger.WithFields(logrus.Fields{
				"handler":    handlerReceivePurchaseOrder,
				"message_id": input.MessageId,
			}).Info("receipt.skip_duplicate")
			return latestReceiptForOrder(ctx, input.PurchaseOrderId)
		}
	} else {
		err = db.WithContext(ctx).Transaction(receiveTx)
	}
	if err != nil {
		config.LogError(logger, "receiptWorkflow.go", "ReceivePurchaseOrder", "receive purchase order", input, err)
		return nil, err
	}
	return receipt, nil
}

func latestReceiptForOrder(ctx context.Context, purchaseOrderId int) (*models.GoodsReceipt, error) {
	receipts, err := models.ListGoodsReceipts(ctx, &purchaseOrderId, 1)
	if err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return nil, nil
	}
	return receipts[0], nil
}
