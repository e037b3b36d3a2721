package models

import (
	"log"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Part{}, &InventoryLocation{}, &Machine{}, &Supplier{}, &BillOfMaterial{},
		&DocumentSequence{},
		&InventoryMovement{}, &InventoryBalance{},
		&StockReservation{},
		&CycleCount{}, &CycleCountDetail{},
		&WorkflowState{},
		&ProductionOrder{}, &MachineOutput{},
		&PurchaseOrder{}, &PurchaseOrderItem{},
		&GoodsReceipt{}, &GoodsReceiptItem{},
		&Delivery{}, &QcInspection{}, &ProductionSchedule{},
		&IdempotencyKey{},
		&ReconciliationReport{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
