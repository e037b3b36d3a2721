package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

// QcInspection is opened pending and completed once with quantities and a
// result. OQC inspections hang off a production order; incoming and patrol
// inspections stand alone. Stock consequences of a failed inspection are
// posted by the caller, not here.
type QcInspection struct {
	ID                int               `gorm:"primary_key" json:"id"`
	InspectionNumber  string            `gorm:"size:30;not null;uniqueIndex" json:"inspection_number"`
	InspectionType    InspectionType    `gorm:"size:20;not null" json:"inspection_type"`
	ProductionOrderId *int              `gorm:"index" json:"production_order_id"`
	PartNumber        string            `gorm:"size:50;not null;index" json:"part_number"`
	LocationId        int               `gorm:"not null" json:"location_id"`
	QuantityGood      decimal.Decimal   `gorm:"type:decimal(12,3);not null;default:0" json:"quantity_good"`
	QuantityNg        decimal.Decimal   `gorm:"type:decimal(12,3);not null;default:0" json:"quantity_ng"`
	LotNumber         string            `gorm:"size:50" json:"lot_number"`
	InspectorId       int               `gorm:"not null" json:"inspector_id"`
	Status            InspectionStatus  `gorm:"size:20;not null;default:pending" json:"status"`
	Result            *InspectionResult `gorm:"size:20" json:"result"`
	CompletedAt       *time.Time        `json:"completed_at"`
	Notes             string            `gorm:"type:text" json:"notes"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewQcInspection struct {
	InspectionType    string `json:"inspection_type" binding:"required"`
	ProductionOrderId *int   `json:"production_order_id"`
	PartNumber        string `json:"part_number" binding:"required"`
	LocationId        int    `json:"location_id" binding:"required"`
	LotNumber         string `json:"lot_number"`
	Notes             string `json:"notes"`
}

func (input *NewQcInspection) validate(ctx context.Context, tx *gorm.DB) (InspectionType, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return "", err
	}
	inspectionType, err := ParseInspectionType(input.InspectionType)
	if err != nil {
		return "", utils.ValidationError("invalid inspection type '%s'", input.InspectionType)
	}
	if err := ValidatePartNumber(ctx, input.PartNumber); err != nil {
		return "", err
	}
	if err := ValidateLocationId(ctx, input.LocationId); err != nil {
		return "", err
	}
	if input.ProductionOrderId != nil && *input.ProductionOrderId > 0 {
		if err := ValidateMovementReference(ctx, tx, MovementReferenceTypeProductionOrder, *input.ProductionOrderId); err != nil {
			return "", err
		}
	}
	return inspectionType, nil
}

// OpenQcInspectionTx claims a QC number, inserts the pending inspection and
// enters the inspection workflow.
func OpenQcInspectionTx(ctx context.Context, tx *gorm.DB, input *NewQcInspection) (*QcInspection, error) {

	inspectionType, err := input.validate(ctx, tx)
	if err != nil {
		return nil, err
	}

	inspectionNumber, err := NextDocumentNumberForDateTx(ctx, tx, DocPrefixInspection, time.Now())
	if err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	inspection := QcInspection{
		InspectionNumber:  inspectionNumber,
		InspectionType:    inspectionType,
		ProductionOrderId: input.ProductionOrderId,
		PartNumber:        input.PartNumber,
		LocationId:        input.LocationId,
		QuantityGood:      decimal.Zero,
		QuantityNg:        decimal.Zero,
		LotNumber:         input.LotNumber,
		InspectorId:       userId,
		Status:            InspectionStatusPending,
		Notes:             input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&inspection).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}

	_, err = TransitionWorkflowTx(ctx, tx, &NewWorkflowTransition{
		EntityType:   WorkflowEntityQcInspection,
		EntityId:     inspection.ID,
		WorkflowName: WorkflowNameInspection,
		NewState:     string(InspectionStatusPending),
		Notes:        inspectionNumber,
	})
	if err != nil {
		return nil, err
	}
	return &inspection, nil
}

// OpenQcInspection opens a standalone inspection in its own transaction.
func OpenQcInspection(ctx context.Context, input *NewQcInspection) (*QcInspection, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var inspection *QcInspection
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		inspection, txErr = OpenQcInspectionTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		config.LogError(logger, "qcInspection.go", "OpenQcInspection", "open qc inspection", input, err)
		return nil, err
	}
	return inspection, nil
}

// inspectionResultFor grades the counted quantities.
func inspectionResultFor(good decimal.Decimal, ng decimal.Decimal) InspectionResult {
	switch {
	case ng.IsZero():
		return InspectionResultPass
	case good.IsZero():
		return InspectionResultFail
	default:
		return InspectionResultPartial
	}
}

// RecordQcInspectionResultTx completes a pending inspection with its
// quantities. A second completion fails.
func RecordQcInspectionResultTx(ctx context.Context, tx *gorm.DB, inspectionId int, quantityGood decimal.Decimal, quantityNg decimal.Decimal, notes string) (*QcInspection, error) {

	if quantityGood.IsNegative() || quantityNg.IsNegative() {
		return nil, utils.ValidationError("inspection quantities cannot be negative")
	}
	if quantityGood.IsZero() && quantityNg.IsZero() {
		return nil, utils.ValidationError("inspection must record a good or ng quantity")
	}

	inspection, err := utils.FetchModelForUpdate[QcInspection](ctx, tx, inspectionId)
	if err != nil {
		return nil, err
	}
	if inspection.Status != InspectionStatusPending {
		return nil, utils.InvalidStateError("inspection %s is %s, not pending", inspection.InspectionNumber, inspection.Status)
	}

	result := inspectionResultFor(quantityGood, quantityNg)
	now := time.Now()
	userId, _ := utils.GetUserIdFromContext(ctx)

	updates := map[string]interface{}{
		"QuantityGood": quantityGood,
		"QuantityNg":   quantityNg,
		"InspectorId":  userId,
		"Status":       InspectionStatusCompleted,
		"Result":       result,
		"CompletedAt":  &now,
	}
	if notes != "" {
		updates["Notes"] = notes
	}
	if err := tx.WithContext(ctx).Model(&inspection).Updates(updates).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}

	_, err = TransitionWorkflowTx(ctx, tx, &NewWorkflowTransition{
		EntityType:   WorkflowEntityQcInspection,
		EntityId:     inspection.ID,
		WorkflowName: WorkflowNameInspection,
		NewState:     string(InspectionStatusCompleted),
		Notes:        string(result),
	})
	if err != nil {
		return nil, err
	}

	inspection.QuantityGood = quantityGood
	inspection.QuantityNg = quantityNg
	inspection.InspectorId = userId
	inspection.Status = InspectionStatusCompleted
	inspection.Result = &result
	inspection.CompletedAt = &now
	return &inspection, nil
}

func GetQcInspection(ctx context.Context, id int) (*QcInspection, error) {
	db := config.GetDB()
	inspection, err := utils.FetchModel[QcInspection](ctx, db, id)
	if err != nil {
		return nil, err
	}
	return &inspection, nil
}

// PendingInspectionForOrder finds the open OQC row raised when the order
// reached qc_pending.
func PendingInspectionForOrder(ctx context.Context, tx *gorm.DB, productionOrderId int) (*QcInspection, error) {
	var inspection QcInspection
	err := tx.WithContext(ctx).
		Where("production_order_id = ? AND status = ?", productionOrderId, InspectionStatusPending).
		Order("id DESC").
		First(&inspection).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return &inspection, nil
}

func ListQcInspections(ctx context.Context, status *InspectionStatus, limit int) ([]*QcInspection, error) {
	db := config.GetDB()
	if limit <= 0 {
		limit = 100
	}

	dbCtx := db.WithContext(ctx)
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}

	var inspections []*QcInspection
	if err := dbCtx.Order("id DESC").Limit(limit).Find(&inspections).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return inspections, nil
}
