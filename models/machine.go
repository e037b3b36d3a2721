package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

type Machine struct {
	ID              int              `gorm:"primary_key" json:"id"`
	MachineCode     string           `gorm:"size:50;not null;uniqueIndex" json:"machine_code" binding:"required"`
	MachineName     string           `gorm:"size:100;not null" json:"machine_name" binding:"required"`
	MachineType     string           `gorm:"size:50" json:"machine_type"`
	LocationId      *int             `gorm:"index" json:"location_id"`
	CapacityPerHour *decimal.Decimal `gorm:"type:decimal(8,2)" json:"capacity_per_hour"`
	Status          MachineStatus    `gorm:"size:20;not null;default:active" json:"status"`
	IsActive        *bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMachine struct {
	MachineCode     string           `json:"machine_code" binding:"required"`
	MachineName     string           `json:"machine_name" binding:"required"`
	MachineType     string           `json:"machine_type"`
	LocationId      *int             `json:"location_id"`
	CapacityPerHour *decimal.Decimal `json:"capacity_per_hour"`
}

func (input *NewMachine) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	db := config.GetDB()
	if err := utils.ValidateUnique[Machine](ctx, db, "machine", "machine_code", input.MachineCode, id); err != nil {
		return err
	}
	if input.LocationId != nil && *input.LocationId > 0 {
		if err := ValidateLocationId(ctx, *input.LocationId); err != nil {
			return err
		}
	}
	return nil
}

func CreateMachine(ctx context.Context, input *NewMachine) (*Machine, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	machine := Machine{
		MachineCode:     input.MachineCode,
		MachineName:     input.MachineName,
		MachineType:     input.MachineType,
		LocationId:      input.LocationId,
		CapacityPerHour: input.CapacityPerHour,
		Status:          MachineStatusActive,
		IsActive:        utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&machine).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return &machine, nil
}

func UpdateMachine(ctx context.Context, id int, input *NewMachine) (*Machine, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	machine, err := utils.FetchModel[Machine](ctx, db, id)
	if err != nil {
		return nil, err
	}

	// db action
	err = db.WithContext(ctx).Model(&machine).Updates(map[string]interface{}{
		"MachineCode":     input.MachineCode,
		"MachineName":     input.MachineName,
		"MachineType":     input.MachineType,
		"LocationId":      input.LocationId,
		"CapacityPerHour": input.CapacityPerHour,
	}).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}

	if err := utils.RemoveRedisBoth[Machine](id); err != nil {
		return nil, err
	}

	return &machine, nil
}

// SetMachineStatus moves a machine between active/maintenance/retired.
func SetMachineStatus(ctx context.Context, id int, status MachineStatus) (*Machine, error) {
	db := config.GetDB()
	machine, err := utils.FetchModel[Machine](ctx, db, id)
	if err != nil {
		return nil, err
	}

	switch status {
	case MachineStatusActive, MachineStatusMaintenance, MachineStatusRetired:
	default:
		return nil, utils.ValidationError("invalid machine status '%s'", status)
	}
	if machine.Status == MachineStatusRetired && status != MachineStatusRetired {
		return nil, utils.InvalidStateError("machine %s is retired", machine.MachineCode)
	}

	if err := db.WithContext(ctx).Model(&machine).
		UpdateColumn("Status", status).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}

	if err := utils.RemoveRedisBoth[Machine](id); err != nil {
		return nil, err
	}
	machine.Status = status
	return &machine, nil
}

// ValidateMachineId checks that an active, non-retired machine exists.
func ValidateMachineId(ctx context.Context, id int) error {
	db := config.GetDB()
	count, err := utils.ResourceCountWhere[Machine](ctx, db, "id = ? AND is_active = 1 AND status <> ?", id, MachineStatusRetired)
	if err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("%w: machine %d", utils.ErrorRecordNotFound, id)
	}
	return nil
}

func GetMachine(ctx context.Context, id int) (*Machine, error) {
	return GetResource[Machine](ctx, id)
}

func ListMachines(ctx context.Context) ([]*Machine, error) {
	return ListAllResource[Machine](ctx, "machine_code")
}

func ToggleActiveMachine(ctx context.Context, id int, isActive bool) (*Machine, error) {
	return ToggleActiveModel[Machine](ctx, id, isActive)
}
