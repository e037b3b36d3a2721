// seed-dev loads a small development dataset: locations, parts, machines,
// a supplier, a bill of material and opening stock for the raw materials.
// Safe to rerun; existing rows are left alone.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/models"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")

	seedUser(ctx, db)
	locations := seedLocations(ctx, db)
	seedParts(ctx, db)
	seedMachines(ctx, db, locations["WIP-01"])
	seedSupplier(ctx, db)
	seedBom(ctx, db)
	seedOpeningStock(ctx, db, locations["RM-01"])

	fmt.Println("dev seed complete")
}

func seedUser(ctx context.Context, db *gorm.DB) {
	var existing models.User
	err := db.WithContext(ctx).Where("email = ?", "operator@wms.local").First(&existing).Error
	if err == nil {
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		fail("lookup operator user", err)
	}
	_, err = models.CreateUser(ctx, &models.NewUser{
		Email:    "operator@wms.local",
		Password: "Operator#2025",
		Name:     "Line Operator",
		Role:     "operator",
	})
	if err != nil {
		fail("create operator user", err)
	}
	fmt.Println("created user operator@wms.local")
}

func seedLocations(ctx context.Context, db *gorm.DB) map[string]int {
	inputs := []*models.NewInventoryLocation{
		{LocationCode: "RM-01", LocationName: "Raw Material Store", LocationType: "warehouse", WarehouseZone: "A"},
		{LocationCode: "WIP-01", LocationName: "Production Floor", LocationType: "production", WarehouseZone: "B"},
		{LocationCode: "FG-01", LocationName: "Finished Goods Store", LocationType: "warehouse", WarehouseZone: "C"},
		{LocationCode: "QA-01", LocationName: "Quarantine Cage", LocationType: "quarantine", WarehouseZone: "Q"},
		{LocationCode: "RCV-01", LocationName: "Receiving Dock", LocationType: "receiving", WarehouseZone: "D"},
	}
	ids := make(map[string]int, len(inputs))
	for _, input := range inputs {
		var existing models.InventoryLocation
		err := db.WithContext(ctx).Where("location_code = ?", input.LocationCode).First(&existing).Error
		if err == nil {
			ids[input.LocationCode] = existing.ID
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			fail("lookup location "+input.LocationCode, err)
		}
		loc, err := models.CreateInventoryLocation(ctx, input)
		if err != nil {
			fail("create location "+input.LocationCode, err)
		}
		ids[input.LocationCode] = loc.ID
		fmt.Printf("created location %s\n", input.LocationCode)
	}
	return ids
}

func seedParts(ctx context.Context, db *gorm.DB) {
	inputs := []*models.NewPart{
		{PartNumber: "RM-STEEL-3MM", Description: "Steel sheet 3mm", UnitOfMeasure: "kg", PartType: "raw_material", StandardCost: decimal.NewFromFloat(12.50)},
		{PartNumber: "RM-PAINT-BLK", Description: "Black powder coat", UnitOfMeasure: "kg", PartType: "raw_material", StandardCost: decimal.NewFromFloat(8.00)},
		{PartNumber: "CP-BOLT-M8", Description: "M8 hex bolt", UnitOfMeasure: "pcs", PartType: "component", StandardCost: decimal.NewFromFloat(0.15)},
		{PartNumber: "FG-BRACKET-A", Description: "Mounting bracket type A", UnitOfMeasure: "pcs", PartType: "finished_good", StandardCost: decimal.NewFromFloat(45.00)},
	}
	for _, input := range inputs {
		var existing models.Part
		err := db.WithContext(ctx).Where("part_number = ?", input.PartNumber).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			fail("lookup part "+input.PartNumber, err)
		}
		if _, err := models.CreatePart(ctx, input); err != nil {
			fail("create part "+input.PartNumber, err)
		}
		fmt.Printf("created part %s\n", input.PartNumber)
	}
}

func seedMachines(ctx context.Context, db *gorm.DB, wipLocationId int) {
	capacity := decimal.NewFromInt(120)
	inputs := []*models.NewMachine{
		{MachineCode: "CNC-01", MachineName: "CNC Mill 1", MachineType: "cnc", LocationId: &wipLocationId, CapacityPerHour: &capacity},
		{MachineCode: "PRESS-01", MachineName: "Hydraulic Press 1", MachineType: "press", LocationId: &wipLocationId},
	}
	for _, input := range inputs {
		var existing models.Machine
		err := db.WithContext(ctx).Where("machine_code = ?", input.MachineCode).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			fail("lookup machine "+input.MachineCode, err)
		}
		if _, err := models.CreateMachine(ctx, input); err != nil {
			fail("create machine "+input.MachineCode, err)
		}
		fmt.Printf("created machine %s\n", input.MachineCode)
	}
}

func seedSupplier(ctx context.Context, db *gorm.DB) {
	var existing models.Supplier
	err := db.WithContext(ctx).Where("supplier_code = ?", "SUP-001").First(&existing).Error
	if err == nil {
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		fail("lookup supplier SUP-001", err)
	}
	_, err = models.CreateSupplier(ctx, &models.NewSupplier{
		SupplierCode: "SUP-001",
		SupplierName: "Golden Steel Trading",
		PaymentTerms: "NET30",
	})
	if err != nil {
		fail("create supplier SUP-001", err)
	}
	fmt.Println("created supplier SUP-001")
}

func seedBom(ctx context.Context, db *gorm.DB) {
	inputs := []*models.NewBillOfMaterial{
		{ParentPartNumber: "FG-BRACKET-A", ChildPartNumber: "RM-STEEL-3MM", QuantityRequired: decimal.NewFromFloat(2.5), UnitOfMeasure: "kg", ScrapFactor: decimal.NewFromFloat(0.02), OperationSequence: 10},
		{ParentPartNumber: "FG-BRACKET-A", ChildPartNumber: "RM-PAINT-BLK", QuantityRequired: decimal.NewFromFloat(0.2), UnitOfMeasure: "kg", OperationSequence: 20},
		{ParentPartNumber: "FG-BRACKET-A", ChildPartNumber: "CP-BOLT-M8", QuantityRequired: decimal.NewFromInt(4), UnitOfMeasure: "pcs", OperationSequence: 30},
	}
	for _, input := range inputs {
		var count int64
		err := db.WithContext(ctx).Model(&models.BillOfMaterial{}).
			Where("parent_part_number = ? AND child_part_number = ?", input.ParentPartNumber, input.ChildPartNumber).
			Count(&count).Error
		if err != nil {
			fail("lookup bom "+input.ParentPartNumber+"/"+input.ChildPartNumber, err)
		}
		if count > 0 {
			continue
		}
		if _, err := models.CreateBillOfMaterial(ctx, input); err != nil {
			fail("create bom "+input.ParentPartNumber+"/"+input.ChildPartNumber, err)
		}
		fmt.Printf("created bom %s -> %s\n", input.ParentPartNumber, input.ChildPartNumber)
	}
}

func seedOpeningStock(ctx context.Context, db *gorm.DB, rmLocationId int) {
	opening := []struct {
		partNumber string
		quantity   decimal.Decimal
		unitCost   decimal.Decimal
	}{
		{"RM-STEEL-3MM", decimal.NewFromInt(500), decimal.NewFromFloat(12.50)},
		{"RM-PAINT-BLK", decimal.NewFromInt(80), decimal.NewFromFloat(8.00)},
		{"CP-BOLT-M8", decimal.NewFromInt(2000), decimal.NewFromFloat(0.15)},
	}
	for _, o := range opening {
		var count int64
		err := db.WithContext(ctx).Model(&models.InventoryMovement{}).
			Where("part_number = ? AND to_location_id = ? AND reason_code = ?", o.partNumber, rmLocationId, "OPENING").
			Count(&count).Error
		if err != nil {
			fail("lookup opening stock "+o.partNumber, err)
		}
		if count > 0 {
			continue
		}
		unitCost := o.unitCost
		_, err = models.RecordMovement(ctx, &models.NewInventoryMovement{
			PartNumber:   o.partNumber,
			MovementType: "in",
			ToLocationId: &rmLocationId,
			Quantity:     o.quantity,
			UnitCost:     &unitCost,
			ReasonCode:   "OPENING",
			Notes:        "opening stock",
		})
		if err != nil {
			fail("record opening stock "+o.partNumber, err)
		}
		fmt.Printf("booked opening stock %s x %s\n", o.partNumber, o.quantity.String())
	}
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
