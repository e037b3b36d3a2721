package models

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

type Part struct {
	ID            int             `gorm:"primary_key" json:"id"`
	PartNumber    string          `gorm:"size:100;not null;uniqueIndex" json:"part_number" binding:"required"`
	Description   string          `gorm:"size:255" json:"description"`
	UnitOfMeasure string          `gorm:"size:20;not null;default:PCS" json:"unit_of_measure"`
	PartType      PartType        `gorm:"size:20;not null" json:"part_type" binding:"required"`
	StandardCost  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"standard_cost"`
	IsActive      *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPart struct {
	PartNumber    string          `json:"part_number" binding:"required"`
	Description   string          `json:"description"`
	UnitOfMeasure string          `json:"unit_of_measure"`
	PartType      string          `json:"part_type" binding:"required"`
	StandardCost  decimal.Decimal `json:"standard_cost"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewPart) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if _, err := ParsePartType(input.PartType); err != nil {
		return utils.ValidationError("invalid part type '%s'", input.PartType)
	}
	if input.StandardCost.IsNegative() {
		return utils.ValidationError("standard cost cannot be negative")
	}
	// part number
	db := config.GetDB()
	if err := utils.ValidateUnique[Part](ctx, db, "part", "part_number", input.PartNumber, id); err != nil {
		return err
	}
	return nil
}

func CreatePart(ctx context.Context, input *NewPart) (*Part, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	uom := input.UnitOfMeasure
	if uom == "" {
		uom = "PCS"
	}

	part := Part{
		PartNumber:    input.PartNumber,
		Description:   input.Description,
		UnitOfMeasure: uom,
		PartType:      PartType(input.PartType),
		StandardCost:  input.StandardCost,
		IsActive:      utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&part).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return &part, nil
}

func UpdatePart(ctx context.Context, id int, input *NewPart) (*Part, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	part, err := utils.FetchModel[Part](ctx, db, id)
	if err != nil {
		return nil, err
	}

	// db action
	err = db.WithContext(ctx).Model(&part).Updates(map[string]interface{}{
		"PartNumber":    input.PartNumber,
		"Description":   input.Description,
		"UnitOfMeasure": input.UnitOfMeasure,
		"PartType":      input.PartType,
		"StandardCost":  input.StandardCost,
	}).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}

	// clear cache
	if err := utils.RemoveRedisBoth[Part](id); err != nil {
		return nil, err
	}

	return &part, nil
}

func DeletePart(ctx context.Context, id int) (*Part, error) {

	db := config.GetDB()
	result, err := utils.FetchModel[Part](ctx, db, id)
	if err != nil {
		return nil, err
	}

	// a part with ledger history must stay for audit; deactivate instead
	count, err := utils.ResourceCountWhere[InventoryMovement](ctx, db, "part_number = ?", result.PartNumber)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.InvalidStateError("part %s has movement history; deactivate it instead", result.PartNumber)
	}

	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}

	if err := utils.RemoveRedisBoth[Part](id); err != nil {
		return nil, err
	}
	return &result, nil
}

func GetPart(ctx context.Context, id int) (*Part, error) {
	return GetResource[Part](ctx, id)
}

func GetPartByNumber(ctx context.Context, partNumber string) (*Part, error) {
	db := config.GetDB()
	part, err := utils.FetchModelWhere[Part](ctx, db, "part_number = ?", partNumber)
	if err != nil {
		return nil, err
	}
	return &part, nil
}

// ValidatePartNumber checks that an active part exists for the number.
func ValidatePartNumber(ctx context.Context, partNumber string) error {
	db := config.GetDB()
	count, err := utils.ResourceCountWhere[Part](ctx, db, "part_number = ? AND is_active = 1", partNumber)
	if err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("%w: part %s", utils.ErrorRecordNotFound, partNumber)
	}
	return nil
}

func ListParts(ctx context.Context, partNumber *string) ([]*Part, error) {
	db := config.GetDB()
	var results []*Part

	dbCtx := db.WithContext(ctx)
	if partNumber != nil && len(*partNumber) > 0 {
		dbCtx = dbCtx.Where("part_number LIKE ?", "%"+*partNumber+"%")
	}
	// db query
	err := dbCtx.Order("part_number").Find(&results).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return results, nil
}

func ToggleActivePart(ctx context.Context, id int, isActive bool) (*Part, error) {
	return ToggleActiveModel[Part](ctx, id, isActive)
}

// ImportPartsFromXlsx loads part master rows from an uploaded sheet.
// Expected header: PartNumber | Description | UnitOfMeasure | PartType |
// StandardCost. Existing part numbers are updated, new ones created.
// Returns (created, updated) counts; the first bad row aborts the import.
func ImportPartsFromXlsx(ctx context.Context, r io.Reader) (int, int, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return 0, 0, utils.ValidationError("cannot open xlsx: %s", err.Error())
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return 0, 0, utils.ValidationError("cannot read Sheet1: %s", err.Error())
	}
	if len(rows) < 2 {
		return 0, 0, utils.ValidationError("sheet has no data rows")
	}

	db := config.GetDB()
	created, updated := 0, 0

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, row := range rows[1:] {
			rowNo := i + 2 // 1-based, after header
			if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
				continue
			}
			partNumber := strings.TrimSpace(row[0])

			cell := func(idx int) string {
				if idx < len(row) {
					return strings.TrimSpace(row[idx])
				}
				return ""
			}

			partType := cell(3)
			if partType == "" {
				partType = string(PartTypeRawMaterial)
			}
			if _, err := ParsePartType(partType); err != nil {
				return utils.ValidationError("row %d: invalid part type '%s'", rowNo, partType)
			}

			standardCost := decimal.Zero
			if raw := cell(4); raw != "" {
				standardCost, err = utils.ParseDecimal(raw)
				if err != nil {
					return utils.ValidationError("row %d: invalid standard cost '%s'", rowNo, raw)
				}
			}

			uom := cell(2)
			if uom == "" {
				uom = "PCS"
			}

			var existing Part
			findErr := tx.Where("part_number = ?", partNumber).First(&existing).Error
			if findErr == nil {
				if err := tx.Model(&existing).Updates(map[string]interface{}{
					"Description":   cell(1),
					"UnitOfMeasure": uom,
					"PartType":      partType,
					"StandardCost":  standardCost,
				}).Error; err != nil {
					return utils.TranslateDBError(err)
				}
				updated++
				continue
			}
			if findErr != gorm.ErrRecordNotFound {
				return utils.TranslateDBError(findErr)
			}

			part := Part{
				PartNumber:    partNumber,
				Description:   cell(1),
				UnitOfMeasure: uom,
				PartType:      PartType(partType),
				StandardCost:  standardCost,
				IsActive:      utils.NewTrue(),
			}
			if err := tx.Create(&part).Error; err != nil {
				return utils.TranslateDBError(err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	if err := utils.RemoveRedisList[Part](); err != nil {
		return created, updated, err
	}
	return created, updated, nil
}
