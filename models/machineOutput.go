package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

// MachineOutput is one shift's output report against a production order.
// Append-only; order counters and stock are updated by the posting that
// inserts it.
type MachineOutput struct {
	ID                int             `gorm:"primary_key" json:"id"`
	ProductionOrderId int             `gorm:"not null;index" json:"production_order_id"`
	OperationDate     time.Time       `gorm:"not null" json:"operation_date"`
	Shift             string          `gorm:"size:20" json:"shift"`
	MachineId         *int            `gorm:"index" json:"machine_id"`
	GoodQuantity      decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"good_quantity"`
	NgQuantity        decimal.Decimal `gorm:"type:decimal(12,3);not null;default:0" json:"ng_quantity"`
	OperatorId        int             `gorm:"not null" json:"operator_id"`
	Notes             string          `gorm:"type:text" json:"notes"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewMachineOutput struct {
	ProductionOrderId int              `json:"production_order_id" binding:"required"`
	OperationDate     *time.Time       `json:"operation_date"`
	Shift             string           `json:"shift"`
	MachineId         *int             `json:"machine_id"`
	GoodQuantity      decimal.Decimal  `json:"good_quantity"`
	NgQuantity        *decimal.Decimal `json:"ng_quantity"`
	Notes             string           `json:"notes"`
}

func (input *NewMachineOutput) validate(ctx context.Context) (decimal.Decimal, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return decimal.Zero, err
	}

	ngQuantity := decimal.Zero
	if input.NgQuantity != nil {
		ngQuantity = *input.NgQuantity
	}
	if input.GoodQuantity.IsNegative() || ngQuantity.IsNegative() {
		return decimal.Zero, utils.ValidationError("output quantities cannot be negative")
	}
	if input.GoodQuantity.IsZero() && ngQuantity.IsZero() {
		return decimal.Zero, utils.ValidationError("output report must carry a good or ng quantity")
	}
	if input.MachineId != nil && *input.MachineId > 0 {
		if err := ValidateMachineId(ctx, *input.MachineId); err != nil {
			return decimal.Zero, err
		}
	}
	return ngQuantity, nil
}

// InsertMachineOutputTx appends the output row. The caller gates the order
// state and posts the stock effects.
func InsertMachineOutputTx(ctx context.Context, tx *gorm.DB, input *NewMachineOutput) (*MachineOutput, error) {

	ngQuantity, err := input.validate(ctx)
	if err != nil {
		return nil, err
	}

	operationDate := time.Now()
	if input.OperationDate != nil {
		operationDate = *input.OperationDate
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	output := MachineOutput{
		ProductionOrderId: input.ProductionOrderId,
		OperationDate:     operationDate,
		Shift:             input.Shift,
		MachineId:         input.MachineId,
		GoodQuantity:      input.GoodQuantity,
		NgQuantity:        ngQuantity,
		OperatorId:        userId,
		Notes:             input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&output).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return &output, nil
}

// ListMachineOutputs returns the output log for an order, oldest first.
func ListMachineOutputs(ctx context.Context, productionOrderId int) ([]*MachineOutput, error) {
	db := config.GetDB()
	var outputs []*MachineOutput
	err := db.WithContext(ctx).
		Where("production_order_id = ?", productionOrderId).
		Order("id").
		Find(&outputs).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return outputs, nil
}
