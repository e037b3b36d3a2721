package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

// InventoryMovement is the append-only stock ledger. Rows are never updated
// or deleted; a correction is a new movement referencing the original via
// reference_type/reference_id and a reason code.
type InventoryMovement struct {
	ID             int                   `gorm:"primary_key" json:"id"`
	MovementNumber string                `gorm:"size:50;not null;uniqueIndex" json:"movement_number"`
	PartNumber     string                `gorm:"size:100;not null;index:idx_movement_part" json:"part_number"`
	MovementType   MovementType          `gorm:"size:20;not null" json:"movement_type"`
	FromLocationId *int                  `gorm:"index" json:"from_location_id"`
	ToLocationId   *int                  `gorm:"index" json:"to_location_id"`
	SourceBucket   StockBucket           `gorm:"size:20;not null;default:available" json:"source_bucket"`
	Quantity       decimal.Decimal       `gorm:"type:decimal(12,3);not null" json:"quantity"`
	UnitCost       *decimal.Decimal      `gorm:"type:decimal(12,2)" json:"unit_cost"`
	ReferenceType  MovementReferenceType `gorm:"size:30" json:"reference_type"`
	ReferenceId    *int                  `json:"reference_id"`
	ReasonCode     string                `gorm:"size:50" json:"reason_code"`
	Notes          string                `gorm:"type:text" json:"notes"`
	BatchNumber    string                `gorm:"size:50" json:"batch_number"`
	UserId         int                   `gorm:"not null" json:"user_id"`
	ApprovedBy     *int                  `json:"approved_by"`
	CorrelationId  string                `gorm:"size:64;index" json:"correlation_id"`
	MovementDate   time.Time             `gorm:"not null;index" json:"movement_date"`
	CreatedAt      time.Time             `gorm:"autoCreateTime" json:"created_at"`
}

type NewInventoryMovement struct {
	PartNumber     string                `json:"part_number" binding:"required"`
	MovementType   string                `json:"movement_type" binding:"required"`
	FromLocationId *int                  `json:"from_location_id"`
	ToLocationId   *int                  `json:"to_location_id"`
	SourceBucket   string                `json:"source_bucket"`
	Quantity       decimal.Decimal       `json:"quantity" binding:"required"`
	UnitCost       *decimal.Decimal      `json:"unit_cost"`
	ReferenceType  MovementReferenceType `json:"reference_type"`
	ReferenceId    *int                  `json:"reference_id"`
	ReasonCode     string                `json:"reason_code"`
	Notes          string                `json:"notes"`
	BatchNumber    string                `json:"batch_number"`
	ApprovedBy     *int                  `json:"approved_by"`
	MovementDate   *time.Time            `json:"movement_date"`
}

// ValidateMovementReference checks a typed document reference against its
// backing table. Manual movements carry no reference. The db handle is the
// caller's transaction so references created earlier in the same posting
// are visible.
func ValidateMovementReference(ctx context.Context, db *gorm.DB, referenceType MovementReferenceType, referenceId int) error {
	tableNames := map[MovementReferenceType]string{
		MovementReferenceTypeProductionOrder: "production_orders",
		MovementReferenceTypePurchaseOrder:   "purchase_orders",
		MovementReferenceTypeGoodsReceipt:    "goods_receipts",
		MovementReferenceTypeDelivery:        "deliveries",
		MovementReferenceTypeQcInspection:    "qc_inspections",
		MovementReferenceTypeCycleCount:      "cycle_counts",
		MovementReferenceTypeMachineOutput:   "machine_outputs",
		MovementReferenceTypeManual:          "",
	}
	tableName, ok := tableNames[referenceType]
	if !ok {
		return utils.ValidationError("invalid reference type '%s'", referenceType)
	}
	if tableName == "" {
		return nil
	}
	if referenceId <= 0 {
		return utils.ValidationError("reference id is required for reference type '%s'", referenceType)
	}

	var count int64
	if err := db.WithContext(ctx).Table(tableName).Where("id = ?", referenceId).Count(&count).Error; err != nil {
		return utils.TranslateDBError(err)
	}
	if count <= 0 {
		return utils.ValidationError("%s %d does not exist", referenceType, referenceId)
	}
	return nil
}

// validate applies the side matrix per movement kind:
//
//	in          to only
//	out         from only
//	transfer    from and to, different
//	adjustment  exactly one side (to: increase, from: decrease)
//	scrap       from only
func (input *NewInventoryMovement) validate(ctx context.Context, tx *gorm.DB) (MovementType, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return "", err
	}

	movementType, err := ParseMovementType(input.MovementType)
	if err != nil {
		return "", utils.ValidationError("invalid movement type '%s'", input.MovementType)
	}

	if !input.Quantity.IsPositive() {
		return "", utils.ValidationError("quantity must be positive")
	}
	if input.UnitCost != nil && input.UnitCost.IsNegative() {
		return "", utils.ValidationError("unit cost cannot be negative")
	}

	hasFrom := input.FromLocationId != nil && *input.FromLocationId > 0
	hasTo := input.ToLocationId != nil && *input.ToLocationId > 0

	switch movementType {
	case MovementTypeIn:
		if !hasTo || hasFrom {
			return "", utils.ValidationError("in movement requires to_location_id only")
		}
	case MovementTypeOut:
		if !hasFrom || hasTo {
			return "", utils.ValidationError("out movement requires from_location_id only")
		}
	case MovementTypeTransfer:
		if !hasFrom || !hasTo {
			return "", utils.ValidationError("transfer movement requires both from_location_id and to_location_id")
		}
		if *input.FromLocationId == *input.ToLocationId {
			return "", utils.ValidationError("transfer source and destination must differ")
		}
	case MovementTypeAdjustment:
		if hasFrom == hasTo {
			return "", utils.ValidationError("adjustment movement requires exactly one of from_location_id or to_location_id")
		}
	case MovementTypeScrap:
		if !hasFrom || hasTo {
			return "", utils.ValidationError("scrap movement requires from_location_id only")
		}
	}

	switch StockBucket(input.SourceBucket) {
	case "", StockBucketAvailable:
	case StockBucketQuarantine:
		if movementType != MovementTypeOut && movementType != MovementTypeScrap {
			return "", utils.ValidationError("source_bucket quarantine is only valid for out and scrap movements")
		}
	default:
		return "", utils.ValidationError("invalid source bucket '%s'", input.SourceBucket)
	}

	if err := ValidatePartNumber(ctx, input.PartNumber); err != nil {
		return "", err
	}
	if hasFrom {
		if err := ValidateLocationId(ctx, *input.FromLocationId); err != nil {
			return "", err
		}
	}
	if hasTo {
		if err := ValidateLocationId(ctx, *input.ToLocationId); err != nil {
			return "", err
		}
	}

	if input.ReferenceType != "" {
		refId := 0
		if input.ReferenceId != nil {
			refId = *input.ReferenceId
		}
		if err := ValidateMovementReference(ctx, tx, input.ReferenceType, refId); err != nil {
			return "", err
		}
	}

	if movementType == MovementTypeAdjustment && config.RequireAdjustmentApproval() {
		if input.ApprovedBy == nil || *input.ApprovedBy <= 0 {
			return "", utils.ValidationError("adjustment requires approval")
		}
		approver, err := GetUser(ctx, *input.ApprovedBy)
		if err != nil {
			return "", utils.ValidationError("approver %d not found", *input.ApprovedBy)
		}
		if !approver.Role.CanApproveAdjustments() {
			return "", utils.ValidationError("user %s cannot approve adjustments", approver.Email)
		}
	}

	return movementType, nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// balanceKeys lists the balance rows a movement touches.
func (input *NewInventoryMovement) balanceKeys() []BalanceKey {
	keys := make([]BalanceKey, 0, 2)
	if input.FromLocationId != nil && *input.FromLocationId > 0 {
		keys = append(keys, BalanceKey{PartNumber: input.PartNumber, LocationId: *input.FromLocationId})
	}
	if input.ToLocationId != nil && *input.ToLocationId > 0 {
		keys = append(keys, BalanceKey{PartNumber: input.PartNumber, LocationId: *input.ToLocationId})
	}
	return keys
}

// RecordMovementTx appends a ledger row and projects it onto the touched
// balances inside the caller's transaction. Composite postings use this to
// stack several movements into one commit.
func RecordMovementTx(ctx context.Context, tx *gorm.DB, input *NewInventoryMovement) (*InventoryMovement, error) {

	movementType, err := input.validate(ctx, tx)
	if err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)

	movementDate := time.Now()
	if input.MovementDate != nil {
		movementDate = *input.MovementDate
	}

	bucket := StockBucket(input.SourceBucket)
	if bucket == "" {
		bucket = StockBucketAvailable
	}

	// row locks in canonical order
	balances, err := LockBalances(ctx, tx, input.balanceKeys())
	if err != nil {
		return nil, err
	}

	var fromBalance, toBalance *InventoryBalance
	if input.FromLocationId != nil && *input.FromLocationId > 0 {
		fromBalance = balances[BalanceKey{PartNumber: input.PartNumber, LocationId: *input.FromLocationId}]
	}
	if input.ToLocationId != nil && *input.ToLocationId > 0 {
		toBalance = balances[BalanceKey{PartNumber: input.PartNumber, LocationId: *input.ToLocationId}]
	}

	switch movementType {
	case MovementTypeIn:
		toBalance.receive(input.Quantity, input.UnitCost)
	case MovementTypeOut:
		if err := fromBalance.issue(input.Quantity, bucket); err != nil {
			return nil, err
		}
	case MovementTypeTransfer:
		if err := fromBalance.issue(input.Quantity, StockBucketAvailable); err != nil {
			return nil, err
		}
		toBalance.receive(input.Quantity, nil)
	case MovementTypeAdjustment:
		// corrective by definition: signed delta, no availability check
		if toBalance != nil {
			toBalance.adjust(input.Quantity)
		} else {
			fromBalance.adjust(input.Quantity.Neg())
		}
	case MovementTypeScrap:
		if err := fromBalance.issue(input.Quantity, bucket); err != nil {
			return nil, err
		}
	}

	movementNumber, err := NextDocumentNumberForDateTx(ctx, tx, DocPrefixMovement, movementDate)
	if err != nil {
		return nil, err
	}

	referenceType := input.ReferenceType
	if referenceType == "" {
		referenceType = MovementReferenceTypeManual
	}

	movement := InventoryMovement{
		MovementNumber: movementNumber,
		PartNumber:     input.PartNumber,
		MovementType:   movementType,
		FromLocationId: input.FromLocationId,
		ToLocationId:   input.ToLocationId,
		SourceBucket:   bucket,
		Quantity:       input.Quantity,
		UnitCost:       input.UnitCost,
		ReferenceType:  referenceType,
		ReferenceId:    input.ReferenceId,
		ReasonCode:     input.ReasonCode,
		Notes:          input.Notes,
		BatchNumber:    input.BatchNumber,
		UserId:         userId,
		ApprovedBy:     input.ApprovedBy,
		CorrelationId:  correlationIdFromContextOrNew(ctx),
		MovementDate:   movementDate,
	}
	if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}

	for _, balance := range balances {
		if err := saveBalance(ctx, tx, balance, &movementDate); err != nil {
			return nil, err
		}
	}

	return &movement, nil
}

// RecordMovement runs RecordMovementTx in its own transaction.
func RecordMovement(ctx context.Context, input *NewInventoryMovement) (*InventoryMovement, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var movement *InventoryMovement
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		movement, txErr = RecordMovementTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		config.LogError(logger, "inventoryMovement.go", "RecordMovement", "record movement", input, err)
		return nil, err
	}
	return movement, nil
}

func GetMovement(ctx context.Context, id int) (*InventoryMovement, error) {
	db := config.GetDB()
	movement, err := utils.FetchModel[InventoryMovement](ctx, db, id)
	if err != nil {
		return nil, err
	}
	return &movement, nil
}

func GetMovementByNumber(ctx context.Context, movementNumber string) (*InventoryMovement, error) {
	db := config.GetDB()
	movement, err := utils.FetchModelWhere[InventoryMovement](ctx, db, "movement_number = ?", movementNumber)
	if err != nil {
		return nil, err
	}
	return &movement, nil
}

// ListMovements pages the ledger for a part, newest first.
func ListMovements(ctx context.Context, partNumber string, locationId *int, limit int, offset int) ([]*InventoryMovement, error) {
	db := config.GetDB()
	var movements []*InventoryMovement

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	dbCtx := db.WithContext(ctx).Where("part_number = ?", partNumber)
	if locationId != nil && *locationId > 0 {
		dbCtx = dbCtx.Where("from_location_id = ? OR to_location_id = ?", *locationId, *locationId)
	}
	err := dbCtx.Order("movement_date DESC, id DESC").Limit(limit).Offset(offset).Find(&movements).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return movements, nil
}
