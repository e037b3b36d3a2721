package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

// GoodsReceipt records inbound stock. Every line posts an `in` movement
// with its unit cost, so receiving is what feeds the weighted-average.
// purchase_order_id is nullable; direct receipts skip the PO linkage.
type GoodsReceipt struct {
	ID              int                `gorm:"primary_key" json:"id"`
	ReceiptNumber   string             `gorm:"size:30;not null;uniqueIndex" json:"receipt_number"`
	PurchaseOrderId *int               `gorm:"index" json:"purchase_order_id"`
	SupplierId      *int               `gorm:"index" json:"supplier_id"`
	LocationId      int                `gorm:"not null" json:"location_id"`
	ReceivedBy      int                `gorm:"not null" json:"received_by"`
	ReceiptDate     time.Time          `gorm:"not null" json:"receipt_date"`
	Notes           string             `gorm:"type:text" json:"notes"`
	Items           []GoodsReceiptItem `gorm:"foreignKey:GoodsReceiptId" json:"items"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

type GoodsReceiptItem struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	GoodsReceiptId      int             `gorm:"not null;index" json:"goods_receipt_id"`
	PartNumber          string          `gorm:"size:50;not null" json:"part_number"`
	Quantity            decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity"`
	UnitCost            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_cost"`
	PurchaseOrderItemId *int            `json:"purchase_order_item_id"`
	BatchNumber         string          `gorm:"size:50" json:"batch_number"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewGoodsReceiptItem struct {
	PartNumber          string          `json:"part_number" binding:"required"`
	Quantity            decimal.Decimal `json:"quantity" binding:"required"`
	UnitCost            decimal.Decimal `json:"unit_cost"`
	PurchaseOrderItemId *int            `json:"purchase_order_item_id"`
	BatchNumber         string          `json:"batch_number"`
}

type NewGoodsReceipt struct {
	PurchaseOrderId *int                  `json:"purchase_order_id"`
	SupplierId      *int                  `json:"supplier_id"`
	LocationId      int                   `json:"location_id" binding:"required"`
	ReceiptDate     *time.Time            `json:"receipt_date"`
	Notes           string                `json:"notes"`
	Items           []NewGoodsReceiptItem `json:"items" binding:"required"`
}

func (input *NewGoodsReceipt) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if len(input.Items) == 0 {
		return utils.ValidationError("goods receipt requires at least one item")
	}
	if err := ValidateLocationId(ctx, input.LocationId); err != nil {
		return err
	}
	if input.SupplierId != nil && *input.SupplierId > 0 {
		if err := ValidateSupplierId(ctx, *input.SupplierId); err != nil {
			return err
		}
	}
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return utils.ValidationError("receipt quantity for %s must be positive", item.PartNumber)
		}
		if item.UnitCost.IsNegative() {
			return utils.ValidationError("unit cost for %s cannot be negative", item.PartNumber)
		}
		if err := ValidatePartNumber(ctx, item.PartNumber); err != nil {
			return err
		}
	}
	return nil
}

// CreateGoodsReceiptTx inserts the receipt and posts one `in` movement per
// line, all in the caller's transaction. PO linkage updates sit with the
// caller.
func CreateGoodsReceiptTx(ctx context.Context, tx *gorm.DB, input *NewGoodsReceipt) (*GoodsReceipt, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	receiptDate := time.Now()
	if input.ReceiptDate != nil {
		receiptDate = *input.ReceiptDate
	}

	receiptNumber, err := NextDocumentNumberForDateTx(ctx, tx, DocPrefixGoodsReceipt, receiptDate)
	if err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	receipt := GoodsReceipt{
		ReceiptNumber:   receiptNumber,
		PurchaseOrderId: input.PurchaseOrderId,
		SupplierId:      input.SupplierId,
		LocationId:      input.LocationId,
		ReceivedBy:      userId,
		ReceiptDate:     receiptDate,
		Notes:           input.Notes,
	}
	for _, item := range input.Items {
		receipt.Items = append(receipt.Items, GoodsReceiptItem{
			PartNumber:          item.PartNumber,
			Quantity:            item.Quantity,
			UnitCost:            item.UnitCost,
			PurchaseOrderItemId: item.PurchaseOrderItemId,
			BatchNumber:         item.BatchNumber,
		})
	}
	if err := tx.WithContext(ctx).Create(&receipt).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}

	// take all balance locks in canonical order before posting line by line
	keys := make([]BalanceKey, 0, len(receipt.Items))
	for _, item := range receipt.Items {
		keys = append(keys, BalanceKey{PartNumber: item.PartNumber, LocationId: receipt.LocationId})
	}
	if _, err := LockBalances(ctx, tx, keys); err != nil {
		return nil, err
	}

	for _, item := range receipt.Items {
		unitCost := item.UnitCost
		_, err := RecordMovementTx(ctx, tx, &NewInventoryMovement{
			PartNumber:    item.PartNumber,
			MovementType:  string(MovementTypeIn),
			ToLocationId:  &receipt.LocationId,
			Quantity:      item.Quantity,
			UnitCost:      &unitCost,
			ReferenceType: MovementReferenceTypeGoodsReceipt,
			ReferenceId:   &receipt.ID,
			BatchNumber:   item.BatchNumber,
			Notes:         "goods receipt " + receiptNumber,
			MovementDate:  &receiptDate,
		})
		if err != nil {
			return nil, err
		}
	}

	return &receipt, nil
}

// CreateGoodsReceipt posts a direct receipt in its own transaction.
func CreateGoodsReceipt(ctx context.Context, input *NewGoodsReceipt) (*GoodsReceipt, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var receipt *GoodsReceipt
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		receipt, txErr = CreateGoodsReceiptTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		config.LogError(logger, "goodsReceipt.go", "CreateGoodsReceipt", "create goods receipt", input, err)
		return nil, err
	}
	return receipt, nil
}

func GetGoodsReceipt(ctx context.Context, id int) (*GoodsReceipt, error) {
	db := config.GetDB()
	var receipt GoodsReceipt
	err := db.WithContext(ctx).Preload("Items").First(&receipt, id).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return &receipt, nil
}

func ListGoodsReceipts(ctx context.Context, purchaseOrderId *int, limit int) ([]*GoodsReceipt, error) {
	db := config.GetDB()
	if limit <= 0 {
		limit = 100
	}

	dbCtx := db.WithContext(ctx)
	if purchaseOrderId != nil {
		dbCtx = dbCtx.Where("purchase_order_id = ?", *purchaseOrderId)
	}

	var receipts []*GoodsReceipt
	if err := dbCtx.Preload("Items").Order("id DESC").Limit(limit).Find(&receipts).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return receipts, nil
}
