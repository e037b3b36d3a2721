package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

type InventoryLocation struct {
	ID            int              `gorm:"primary_key" json:"id"`
	LocationCode  string           `gorm:"size:50;not null;uniqueIndex" json:"location_code" binding:"required"`
	LocationName  string           `gorm:"size:100;not null" json:"location_name" binding:"required"`
	LocationType  LocationType     `gorm:"size:20;not null;default:warehouse" json:"location_type"`
	WarehouseZone string           `gorm:"size:50" json:"warehouse_zone"`
	Capacity      *decimal.Decimal `gorm:"type:decimal(12,3)" json:"capacity"`
	IsActive      *bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInventoryLocation struct {
	LocationCode  string           `json:"location_code" binding:"required"`
	LocationName  string           `json:"location_name" binding:"required"`
	LocationType  string           `json:"location_type"`
	WarehouseZone string           `json:"warehouse_zone"`
	Capacity      *decimal.Decimal `json:"capacity"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewInventoryLocation) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.LocationType != "" {
		locationTypes := map[string]bool{
			"warehouse": true, "staging": true, "production": true,
			"quarantine": true, "receiving": true, "shipping": true,
		}
		if !locationTypes[input.LocationType] {
			return utils.ValidationError("invalid location type '%s'", input.LocationType)
		}
	}
	db := config.GetDB()
	if err := utils.ValidateUnique[InventoryLocation](ctx, db, "location", "location_code", input.LocationCode, id); err != nil {
		return err
	}
	return nil
}

func CreateInventoryLocation(ctx context.Context, input *NewInventoryLocation) (*InventoryLocation, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	locationType := input.LocationType
	if locationType == "" {
		locationType = string(LocationTypeWarehouse)
	}

	location := InventoryLocation{
		LocationCode:  input.LocationCode,
		LocationName:  input.LocationName,
		LocationType:  LocationType(locationType),
		WarehouseZone: input.WarehouseZone,
		Capacity:      input.Capacity,
		IsActive:      utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&location).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return &location, nil
}

func UpdateInventoryLocation(ctx context.Context, id int, input *NewInventoryLocation) (*InventoryLocation, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	location, err := utils.FetchModel[InventoryLocation](ctx, db, id)
	if err != nil {
		return nil, err
	}

	// db action
	err = db.WithContext(ctx).Model(&location).Updates(map[string]interface{}{
		"LocationCode":  input.LocationCode,
		"LocationName":  input.LocationName,
		"LocationType":  input.LocationType,
		"WarehouseZone": input.WarehouseZone,
		"Capacity":      input.Capacity,
	}).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}

	if err := utils.RemoveRedisBoth[InventoryLocation](id); err != nil {
		return nil, err
	}

	return &location, nil
}

func DeleteInventoryLocation(ctx context.Context, id int) (*InventoryLocation, error) {

	db := config.GetDB()
	result, err := utils.FetchModel[InventoryLocation](ctx, db, id)
	if err != nil {
		return nil, err
	}

	// location with stock cannot be removed
	count, err := utils.ResourceCountWhere[InventoryBalance](ctx, db,
		"location_id = ? AND (available_quantity > 0 OR reserved_quantity > 0 OR quarantine_quantity > 0)", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.InvalidStateError("location %s has stock", result.LocationCode)
	}

	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}

	if err := utils.RemoveRedisBoth[InventoryLocation](id); err != nil {
		return nil, err
	}
	return &result, nil
}

func GetInventoryLocation(ctx context.Context, id int) (*InventoryLocation, error) {
	return GetResource[InventoryLocation](ctx, id)
}

// ValidateLocationId checks that an active location exists.
func ValidateLocationId(ctx context.Context, id int) error {
	db := config.GetDB()
	count, err := utils.ResourceCountWhere[InventoryLocation](ctx, db, "id = ? AND is_active = 1", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("%w: location %d", utils.ErrorRecordNotFound, id)
	}
	return nil
}

func ListInventoryLocations(ctx context.Context) ([]*InventoryLocation, error) {
	return ListAllResource[InventoryLocation](ctx, "location_code")
}

func ToggleActiveInventoryLocation(ctx context.Context, id int, isActive bool) (*InventoryLocation, error) {
	return ToggleActiveModel[InventoryLocation](ctx, id, isActive)
}
