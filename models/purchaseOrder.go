package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

// PurchaseOrder status mirrors the purchase_order/procurement workflow.
// Stock only moves at receiving, which posts through the ledger.
type PurchaseOrder struct {
	ID           int                 `gorm:"primary_key" json:"id"`
	PoNumber     string              `gorm:"size:30;not null;uniqueIndex" json:"po_number"`
	SupplierId   int                 `gorm:"not null;index" json:"supplier_id"`
	OrderDate    time.Time           `gorm:"not null" json:"order_date"`
	ExpectedDate *time.Time          `json:"expected_date"`
	Status       PurchaseOrderStatus `gorm:"size:20;not null;default:draft;index" json:"status"`
	CreatedBy    int                 `gorm:"not null" json:"created_by"`
	Notes        string              `gorm:"type:text" json:"notes"`
	Items        []PurchaseOrderItem `gorm:"foreignKey:PurchaseOrderId" json:"items"`
	CreatedAt    time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderItem struct {
	ID               int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId  int             `gorm:"not null;index" json:"purchase_order_id"`
	PartNumber       string          `gorm:"size:50;not null" json:"part_number"`
	QuantityOrdered  decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity_ordered"`
	QuantityReceived decimal.Decimal `gorm:"type:decimal(12,3);not null;default:0" json:"quantity_received"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(15,4);not null" json:"unit_price"`
	ExpectedDate     *time.Time      `json:"expected_date"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPurchaseOrderItem struct {
	PartNumber      string          `json:"part_number" binding:"required"`
	QuantityOrdered decimal.Decimal `json:"quantity_ordered" binding:"required"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	ExpectedDate    *time.Time      `json:"expected_date"`
}

type NewPurchaseOrder struct {
	SupplierId   int                    `json:"supplier_id" binding:"required"`
	OrderDate    *time.Time             `json:"order_date"`
	ExpectedDate *time.Time             `json:"expected_date"`
	Notes        string                 `json:"notes"`
	Items        []NewPurchaseOrderItem `json:"items" binding:"required"`
}

func (input *NewPurchaseOrder) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if len(input.Items) == 0 {
		return utils.ValidationError("purchase order requires at least one item")
	}
	if err := ValidateSupplierId(ctx, input.SupplierId); err != nil {
		return err
	}
	for _, item := range input.Items {
		if !item.QuantityOrdered.IsPositive() {
			return utils.ValidationError("ordered quantity for %s must be positive", item.PartNumber)
		}
		if item.UnitPrice.IsNegative() {
			return utils.ValidationError("unit price for %s cannot be negative", item.PartNumber)
		}
		if err := ValidatePartNumber(ctx, item.PartNumber); err != nil {
			return err
		}
	}
	return nil
}

// CreatePurchaseOrder claims a PO number, inserts the order with its items
// and enters the procurement workflow as draft.
func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	orderDate := time.Now()
	if input.OrderDate != nil {
		orderDate = *input.OrderDate
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	var order PurchaseOrder
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		poNumber, err := NextDocumentNumberForDateTx(ctx, tx, DocPrefixPurchase, orderDate)
		if err != nil {
			return err
		}

		order = PurchaseOrder{
			PoNumber:     poNumber,
			SupplierId:   input.SupplierId,
			OrderDate:    orderDate,
			ExpectedDate: input.ExpectedDate,
			Status:       PurchaseOrderStatusDraft,
			CreatedBy:    userId,
			Notes:        input.Notes,
		}
		for _, item := range input.Items {
			order.Items = append(order.Items, PurchaseOrderItem{
				PartNumber:       item.PartNumber,
				QuantityOrdered:  item.QuantityOrdered,
				QuantityReceived: decimal.Zero,
				UnitPrice:        item.UnitPrice,
				ExpectedDate:     item.ExpectedDate,
			})
		}
		if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
			return utils.TranslateDBError(err)
		}

		_, err = TransitionWorkflowTx(ctx, tx, &NewWorkflowTransition{
			EntityType:   WorkflowEntityPurchaseOrder,
			EntityId:     order.ID,
			WorkflowName: WorkflowNameProcurement,
			NewState:     string(PurchaseOrderStatusDraft),
			Notes:        poNumber,
		})
		return err
	})
	if err != nil {
		config.LogError(logger, "purchaseOrder.go", "CreatePurchaseOrder", "create purchase order", input, err)
		return nil, err
	}
	return &order, nil
}

// transitionPurchaseOrder drives one procurement workflow step and keeps
// the coarse status column in sync.
func transitionPurchaseOrder(ctx context.Context, orderId int, newStatus PurchaseOrderStatus, notes string) (*PurchaseOrder, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := utils.FetchModelForUpdate[PurchaseOrder](ctx, tx, orderId); err != nil {
			return err
		}
		_, err := TransitionWorkflowTx(ctx, tx, &NewWorkflowTransition{
			EntityType:   WorkflowEntityPurchaseOrder,
			EntityId:     orderId,
			WorkflowName: WorkflowNameProcurement,
			NewState:     string(newStatus),
			Notes:        notes,
		})
		if err != nil {
			return err
		}
		return SetPurchaseOrderStatusTx(ctx, tx, orderId, newStatus)
	})
	if err != nil {
		config.LogError(logger, "purchaseOrder.go", "transitionPurchaseOrder", "transition purchase order", orderId, err)
		return nil, err
	}
	return GetPurchaseOrder(ctx, orderId)
}

func SendPurchaseOrder(ctx context.Context, orderId int) (*PurchaseOrder, error) {
	return transitionPurchaseOrder(ctx, orderId, PurchaseOrderStatusSent, "")
}

func ConfirmPurchaseOrder(ctx context.Context, orderId int) (*PurchaseOrder, error) {
	return transitionPurchaseOrder(ctx, orderId, PurchaseOrderStatusConfirmed, "")
}

func ClosePurchaseOrder(ctx context.Context, orderId int) (*PurchaseOrder, error) {
	return transitionPurchaseOrder(ctx, orderId, PurchaseOrderStatusClosed, "")
}

func CancelPurchaseOrder(ctx context.Context, orderId int, reason string) (*PurchaseOrder, error) {
	return transitionPurchaseOrder(ctx, orderId, PurchaseOrderStatusCancelled, reason)
}

func SetPurchaseOrderStatusTx(ctx context.Context, tx *gorm.DB, orderId int, status PurchaseOrderStatus) error {
	res := tx.WithContext(ctx).Model(&PurchaseOrder{}).
		Where("id = ?", orderId).
		UpdateColumn("Status", status)
	if res.Error != nil {
		return utils.TranslateDBError(res.Error)
	}
	return nil
}

// AddPoItemReceivedTx accumulates received quantity onto one PO line.
func AddPoItemReceivedTx(ctx context.Context, tx *gorm.DB, itemId int, quantity decimal.Decimal) error {
	err := tx.WithContext(ctx).Exec(
		"UPDATE purchase_order_items SET quantity_received = quantity_received + ?, updated_at = NOW() WHERE id = ?",
		quantity, itemId,
	).Error
	if err != nil {
		return utils.TranslateDBError(err)
	}
	return nil
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	db := config.GetDB()
	var order PurchaseOrder
	err := db.WithContext(ctx).Preload("Items").First(&order, id).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return &order, nil
}

func ListPurchaseOrders(ctx context.Context, status *PurchaseOrderStatus, limit int) ([]*PurchaseOrder, error) {
	db := config.GetDB()
	if limit <= 0 {
		limit = 100
	}

	dbCtx := db.WithContext(ctx)
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}

	var orders []*PurchaseOrder
	if err := dbCtx.Preload("Items").Order("id DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return orders, nil
}
