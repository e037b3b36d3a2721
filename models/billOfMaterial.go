package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

type BillOfMaterial struct {
	ID                int             `gorm:"primary_key" json:"id"`
	ParentPartNumber  string          `gorm:"size:100;not null;index:uniq_bom,unique" json:"parent_part_number" binding:"required"`
	ChildPartNumber   string          `gorm:"size:100;not null;index:uniq_bom,unique" json:"child_part_number" binding:"required"`
	QuantityRequired  decimal.Decimal `gorm:"type:decimal(15,6);not null" json:"quantity_required" binding:"required"`
	UnitOfMeasure     string          `gorm:"size:20;not null;default:PCS" json:"unit_of_measure"`
	ScrapFactor       decimal.Decimal `gorm:"type:decimal(5,4);not null;default:0" json:"scrap_factor"`
	OperationSequence int             `gorm:"not null;default:1;index:uniq_bom,unique" json:"operation_sequence"`
	EffectiveDate     time.Time       `json:"effective_date"`
	ExpiryDate        *time.Time      `json:"expiry_date"`
	IsActive          *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBillOfMaterial struct {
	ParentPartNumber  string          `json:"parent_part_number" binding:"required"`
	ChildPartNumber   string          `json:"child_part_number" binding:"required"`
	QuantityRequired  decimal.Decimal `json:"quantity_required" binding:"required"`
	UnitOfMeasure     string          `json:"unit_of_measure"`
	ScrapFactor       decimal.Decimal `json:"scrap_factor"`
	OperationSequence int             `json:"operation_sequence"`
	EffectiveDate     *time.Time      `json:"effective_date"`
	ExpiryDate        *time.Time      `json:"expiry_date"`
}

func (input *NewBillOfMaterial) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.ParentPartNumber == input.ChildPartNumber {
		return utils.ValidationError("a part cannot be its own component")
	}
	if !input.QuantityRequired.IsPositive() {
		return utils.ValidationError("quantity required must be positive")
	}
	if input.ScrapFactor.IsNegative() || input.ScrapFactor.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return utils.ValidationError("scrap factor must be in [0, 1)")
	}
	if err := ValidatePartNumber(ctx, input.ParentPartNumber); err != nil {
		return err
	}
	if err := ValidatePartNumber(ctx, input.ChildPartNumber); err != nil {
		return err
	}
	return nil
}

func CreateBillOfMaterial(ctx context.Context, input *NewBillOfMaterial) (*BillOfMaterial, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	operationSequence := input.OperationSequence
	if operationSequence == 0 {
		operationSequence = 1
	}
	effectiveDate := time.Now()
	if input.EffectiveDate != nil {
		effectiveDate = *input.EffectiveDate
	}
	uom := input.UnitOfMeasure
	if uom == "" {
		uom = "PCS"
	}

	bom := BillOfMaterial{
		ParentPartNumber:  input.ParentPartNumber,
		ChildPartNumber:   input.ChildPartNumber,
		QuantityRequired:  input.QuantityRequired,
		UnitOfMeasure:     uom,
		ScrapFactor:       input.ScrapFactor,
		OperationSequence: operationSequence,
		EffectiveDate:     effectiveDate,
		ExpiryDate:        input.ExpiryDate,
		IsActive:          utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&bom).Error
	if err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, utils.ValidationError("bom line for %s -> %s op %d already exists",
				input.ParentPartNumber, input.ChildPartNumber, operationSequence)
		}
		return nil, utils.TranslateDBError(err)
	}
	return &bom, nil
}

func DeactivateBillOfMaterial(ctx context.Context, id int) (*BillOfMaterial, error) {
	return ToggleActiveModel[BillOfMaterial](ctx, id, false)
}

func GetBillOfMaterials(ctx context.Context, parentPartNumber string) ([]*BillOfMaterial, error) {
	db := config.GetDB()
	var results []*BillOfMaterial
	err := db.WithContext(ctx).
		Where("parent_part_number = ?", parentPartNumber).
		Order("operation_sequence, child_part_number").
		Find(&results).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return results, nil
}

// ComponentRequirement is one exploded BOM line scaled to a plan quantity.
type ComponentRequirement struct {
	ChildPartNumber   string
	OperationSequence int
	UnitOfMeasure     string
	RequiredQuantity  decimal.Decimal
}

// ExplodeBOM scales the active, date-effective BOM of a parent part to a
// plan quantity: required = planQty * quantity_required * (1 + scrap_factor).
// Lines for the same child across operations are returned separately so the
// caller can aggregate or issue per operation.
func ExplodeBOM(ctx context.Context, parentPartNumber string, planQuantity decimal.Decimal, asOf time.Time) ([]ComponentRequirement, error) {
	if !planQuantity.IsPositive() {
		return nil, utils.ValidationError("plan quantity must be positive")
	}

	db := config.GetDB()
	var lines []BillOfMaterial
	err := db.WithContext(ctx).
		Where("parent_part_number = ? AND is_active = 1 AND effective_date <= ? AND (expiry_date IS NULL OR expiry_date > ?)",
			parentPartNumber, asOf, asOf).
		Order("operation_sequence, child_part_number").
		Find(&lines).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}

	one := decimal.NewFromInt(1)
	requirements := make([]ComponentRequirement, 0, len(lines))
	for _, line := range lines {
		required := planQuantity.Mul(line.QuantityRequired).Mul(one.Add(line.ScrapFactor))
		requirements = append(requirements, ComponentRequirement{
			ChildPartNumber:   line.ChildPartNumber,
			OperationSequence: line.OperationSequence,
			UnitOfMeasure:     line.UnitOfMeasure,
			RequiredQuantity:  required,
		})
	}
	return requirements, nil
}
