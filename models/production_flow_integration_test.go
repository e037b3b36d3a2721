package models_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/models"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
	"github.com/bgrlango/WMS-Manufacture-sub000/workflow"
)

// seedProductionMasterData layers a component part, a machine and a two-line
// bill of material on top of the basic ledger seed. Bracket = 2.5 kg steel
// (2% scrap) + 4 bolts.
func seedProductionMasterData(t *testing.T, ctx context.Context) (map[string]int, int) {
	t.Helper()
	locs := seedLedgerMasterData(t, ctx)

	bolt := models.NewPart{
		PartNumber:    "CP-BOLT-M8",
		Description:   "Hex bolt M8",
		UnitOfMeasure: "pcs",
		PartType:      "component",
		StandardCost:  decimal.NewFromFloat(0.15),
	}
	if _, err := models.CreatePart(ctx, &bolt); err != nil {
		t.Fatalf("CreatePart %s: %v", bolt.PartNumber, err)
	}

	capacity := decimal.NewFromInt(120)
	machine, err := models.CreateMachine(ctx, &models.NewMachine{
		MachineCode:     "CNC-01",
		MachineName:     "CNC mill 01",
		MachineType:     "cnc",
		CapacityPerHour: &capacity,
	})
	if err != nil {
		t.Fatalf("CreateMachine: %v", err)
	}

	for _, bom := range []models.NewBillOfMaterial{
		{ParentPartNumber: "FG-BRACKET-A", ChildPartNumber: "RM-STEEL-3MM", QuantityRequired: d("2.5"), UnitOfMeasure: "kg", ScrapFactor: d("0.02"), OperationSequence: 10},
		{ParentPartNumber: "FG-BRACKET-A", ChildPartNumber: "CP-BOLT-M8", QuantityRequired: d("4"), OperationSequence: 20},
	} {
		if _, err := models.CreateBillOfMaterial(ctx, &bom); err != nil {
			t.Fatalf("CreateBillOfMaterial %s: %v", bom.ChildPartNumber, err)
		}
	}
	return locs, machine.ID
}

func orderReservations(t *testing.T, ctx context.Context, orderId int) []*models.StockReservation {
	t.Helper()
	var reservations []*models.StockReservation
	err := config.GetDB().WithContext(ctx).
		Where("reservation_type = ? AND reference_id = ?", models.ReservationTypeProduction, orderId).
		Order("part_number").
		Find(&reservations).Error
	if err != nil {
		t.Fatalf("load reservations for order %d: %v", orderId, err)
	}
	return reservations
}

func TestProductionOrderLifecycle(t *testing.T) {
	ctx := setupIntegrationDB(t)
	locs, machineId := seedProductionMasterData(t, ctx)
	rm, fg := locs["RM-01"], locs["FG-01"]

	postIn(t, ctx, "RM-STEEL-3MM", rm, "500", "12.50")
	postIn(t, ctx, "CP-BOLT-M8", rm, "2000", "0.15")

	order, err := workflow.CreateProductionOrder(ctx, &models.NewProductionOrder{
		PartNumber:       "FG-BRACKET-A",
		PlanQuantity:     d("10"),
		MachineId:        &machineId,
		SourceLocationId: rm,
		OutputLocationId: fg,
	})
	if err != nil {
		t.Fatalf("CreateProductionOrder: %v", err)
	}
	if !strings.HasPrefix(order.JobOrder, "JO-") {
		t.Errorf("job order = %q, want JO- prefix", order.JobOrder)
	}
	if order.Status != models.ProductionOrderStatusPlanning {
		t.Errorf("status after create = %s, want planning", order.Status)
	}
	if order.MaterialsIssued != nil && *order.MaterialsIssued {
		t.Error("materials issued at create without backflush")
	}

	// BOM explosion: steel 2.5 * 10 * 1.02 = 25.5, bolts 4 * 10 = 40
	reservations := orderReservations(t, ctx, order.ID)
	if len(reservations) != 2 {
		t.Fatalf("reservations = %d, want 2", len(reservations))
	}
	wantQty(t, "bolt reservation", reservations[0].Quantity, "40")
	wantQty(t, "steel reservation", reservations[1].Quantity, "25.5")

	steel := mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "steel available after reserve", steel.AvailableQuantity, "474.5")
	wantQty(t, "steel reserved after reserve", steel.ReservedQuantity, "25.5")
	bolt := mustBalance(t, ctx, "CP-BOLT-M8", rm)
	wantQty(t, "bolt available after reserve", bolt.AvailableQuantity, "1960")
	wantQty(t, "bolt reserved after reserve", bolt.ReservedQuantity, "40")

	order, err = workflow.StartProductionOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("StartProductionOrder: %v", err)
	}
	if order.Status != models.ProductionOrderStatusInProgress {
		t.Errorf("status after start = %s, want in_progress", order.Status)
	}
	if order.MaterialsIssued == nil || !*order.MaterialsIssued {
		t.Error("materials not issued by start")
	}
	if order.StartDate == nil {
		t.Error("start date not stamped")
	}

	// issue consumed the holds and posted the component `out` movements
	steel = mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "steel available after issue", steel.AvailableQuantity, "474.5")
	wantQty(t, "steel reserved after issue", steel.ReservedQuantity, "0")
	bolt = mustBalance(t, ctx, "CP-BOLT-M8", rm)
	wantQty(t, "bolt available after issue", bolt.AvailableQuantity, "1960")
	wantQty(t, "bolt reserved after issue", bolt.ReservedQuantity, "0")
	for _, reservation := range orderReservations(t, ctx, order.ID) {
		if reservation.Status != models.ReservationStatusFulfilled {
			t.Errorf("reservation %s = %s, want fulfilled", reservation.ReservationNumber, reservation.Status)
		}
	}

	ng := d("1")
	if _, err := workflow.RecordMachineOutput(ctx, &models.NewMachineOutput{
		ProductionOrderId: order.ID,
		Shift:             "day",
		MachineId:         &machineId,
		GoodQuantity:      d("6"),
		NgQuantity:        &ng,
	}); err != nil {
		t.Fatalf("RecordMachineOutput #1: %v", err)
	}

	bracket := mustBalance(t, ctx, "FG-BRACKET-A", fg)
	wantQty(t, "bracket available after output", bracket.AvailableQuantity, "6")
	wantQty(t, "bracket quarantine after output", bracket.QuarantineQuantity, "1")
	wantQty(t, "bracket cost from standard", bracket.AverageCost, "45")

	order, err = models.GetProductionOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetProductionOrder: %v", err)
	}
	wantQty(t, "produced after first output", order.ProducedQuantity, "6")
	wantQty(t, "ng after first output", order.NgQuantity, "1")
	if order.Status != models.ProductionOrderStatusInProgress {
		t.Errorf("status mid-run = %s, want in_progress", order.Status)
	}

	// second report reaches plan and opens the outgoing inspection
	if _, err := workflow.RecordMachineOutput(ctx, &models.NewMachineOutput{
		ProductionOrderId: order.ID,
		Shift:             "day",
		GoodQuantity:      d("4"),
	}); err != nil {
		t.Fatalf("RecordMachineOutput #2: %v", err)
	}

	order, err = models.GetProductionOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetProductionOrder: %v", err)
	}
	wantQty(t, "produced at plan", order.ProducedQuantity, "10")
	if order.Status != models.ProductionOrderStatusQcPending {
		t.Errorf("status at plan = %s, want qc_pending", order.Status)
	}

	pending := models.InspectionStatusPending
	inspections, err := models.ListQcInspections(ctx, &pending, 10)
	if err != nil {
		t.Fatalf("ListQcInspections: %v", err)
	}
	var oqc *models.QcInspection
	for _, inspection := range inspections {
		if inspection.ProductionOrderId != nil && *inspection.ProductionOrderId == order.ID {
			oqc = inspection
		}
	}
	if oqc == nil {
		t.Fatal("no pending inspection opened for the order")
	}
	if !strings.HasPrefix(oqc.InspectionNumber, "QC-") {
		t.Errorf("inspection number = %q, want QC- prefix", oqc.InspectionNumber)
	}
	if oqc.InspectionType != models.InspectionTypeOqc {
		t.Errorf("inspection type = %s, want oqc", oqc.InspectionType)
	}

	// qc_pending has to resolve through inspection, not cancellation
	if _, err := workflow.CancelProductionOrder(ctx, order.ID, "changed my mind"); !errors.Is(err, utils.ErrorInvalidState) {
		t.Errorf("cancel from qc_pending = %v, want invalid state", err)
	}

	inspection, err := workflow.CompleteInspection(ctx, &workflow.CompleteInspectionInput{
		ProductionOrderId: order.ID,
		QuantityGood:      d("10"),
	})
	if err != nil {
		t.Fatalf("CompleteInspection: %v", err)
	}
	if inspection.Result == nil || *inspection.Result != models.InspectionResultPass {
		t.Errorf("inspection result = %v, want pass", inspection.Result)
	}
	if inspection.Status != models.InspectionStatusCompleted {
		t.Errorf("inspection status = %s, want completed", inspection.Status)
	}

	order, err = models.GetProductionOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetProductionOrder: %v", err)
	}
	if order.Status != models.ProductionOrderStatusCompleted {
		t.Errorf("final status = %s, want completed", order.Status)
	}
	if order.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}

	if _, err := workflow.RecordMachineOutput(ctx, &models.NewMachineOutput{
		ProductionOrderId: order.ID,
		GoodQuantity:      d("1"),
	}); !errors.Is(err, utils.ErrorInvalidState) {
		t.Errorf("output after completion = %v, want invalid state", err)
	}
}

func TestProductionOrderCancelReleasesReservations(t *testing.T) {
	ctx := setupIntegrationDB(t)
	locs, machineId := seedProductionMasterData(t, ctx)
	rm, fg := locs["RM-01"], locs["FG-01"]

	postIn(t, ctx, "RM-STEEL-3MM", rm, "100", "12.50")
	postIn(t, ctx, "CP-BOLT-M8", rm, "400", "0.15")

	order, err := workflow.CreateProductionOrder(ctx, &models.NewProductionOrder{
		PartNumber:       "FG-BRACKET-A",
		PlanQuantity:     d("4"),
		MachineId:        &machineId,
		SourceLocationId: rm,
		OutputLocationId: fg,
	})
	if err != nil {
		t.Fatalf("CreateProductionOrder: %v", err)
	}

	steel := mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "steel available while planned", steel.AvailableQuantity, "89.8")
	wantQty(t, "steel reserved while planned", steel.ReservedQuantity, "10.2")

	order, err = workflow.CancelProductionOrder(ctx, order.ID, "customer cancelled")
	if err != nil {
		t.Fatalf("CancelProductionOrder: %v", err)
	}
	if order.Status != models.ProductionOrderStatusCancelled {
		t.Errorf("status after cancel = %s, want cancelled", order.Status)
	}

	for _, reservation := range orderReservations(t, ctx, order.ID) {
		if reservation.Status != models.ReservationStatusCancelled {
			t.Errorf("reservation %s = %s, want cancelled", reservation.ReservationNumber, reservation.Status)
		}
	}
	steel = mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "steel available after cancel", steel.AvailableQuantity, "100")
	wantQty(t, "steel reserved after cancel", steel.ReservedQuantity, "0")
	bolt := mustBalance(t, ctx, "CP-BOLT-M8", rm)
	wantQty(t, "bolt available after cancel", bolt.AvailableQuantity, "400")
	wantQty(t, "bolt reserved after cancel", bolt.ReservedQuantity, "0")

	if _, err := workflow.StartProductionOrder(ctx, order.ID); !errors.Is(err, utils.ErrorInvalidState) {
		t.Errorf("start after cancel = %v, want invalid state", err)
	}
}

func TestPurchaseReceiptIdempotency(t *testing.T) {
	ctx := setupIntegrationDB(t)
	locs, _ := seedProductionMasterData(t, ctx)
	rm := locs["RM-01"]

	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{
		SupplierCode: "SUP-001",
		SupplierName: "Golden Steel Trading",
		PaymentTerms: "NET30",
	})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}

	po, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		SupplierId: supplier.ID,
		Items: []models.NewPurchaseOrderItem{
			{PartNumber: "RM-STEEL-3MM", QuantityOrdered: d("100"), UnitPrice: d("12.00")},
			{PartNumber: "CP-BOLT-M8", QuantityOrdered: d("500"), UnitPrice: d("0.10")},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}
	if !strings.HasPrefix(po.PoNumber, "PO-") {
		t.Errorf("po number = %q, want PO- prefix", po.PoNumber)
	}
	if po.Status != models.PurchaseOrderStatusDraft {
		t.Errorf("status after create = %s, want draft", po.Status)
	}

	po, err = models.GetPurchaseOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("GetPurchaseOrder: %v", err)
	}
	if len(po.Items) != 2 {
		t.Fatalf("po items = %d, want 2", len(po.Items))
	}
	itemIdByPart := make(map[string]int, len(po.Items))
	for _, item := range po.Items {
		itemIdByPart[item.PartNumber] = item.ID
	}

	// receiving is gated on confirmed
	if _, err := workflow.ReceivePurchaseOrder(ctx, &workflow.ReceivePurchaseOrderInput{
		PurchaseOrderId: po.ID,
		LocationId:      rm,
		Items:           []workflow.ReceiptLineInput{{PurchaseOrderItemId: itemIdByPart["RM-STEEL-3MM"], Quantity: d("10")}},
	}); !errors.Is(err, utils.ErrorInvalidState) {
		t.Errorf("receive while draft = %v, want invalid state", err)
	}

	if _, err := models.SendPurchaseOrder(ctx, po.ID); err != nil {
		t.Fatalf("SendPurchaseOrder: %v", err)
	}
	if _, err := models.ConfirmPurchaseOrder(ctx, po.ID); err != nil {
		t.Fatalf("ConfirmPurchaseOrder: %v", err)
	}

	first := &workflow.ReceivePurchaseOrderInput{
		PurchaseOrderId: po.ID,
		LocationId:      rm,
		MessageId:       "gr-2025-001",
		Items:           []workflow.ReceiptLineInput{{PurchaseOrderItemId: itemIdByPart["RM-STEEL-3MM"], Quantity: d("60"), BatchNumber: "LOT-A1"}},
	}
	receipt, err := workflow.ReceivePurchaseOrder(ctx, first)
	if err != nil {
		t.Fatalf("ReceivePurchaseOrder: %v", err)
	}
	if !strings.HasPrefix(receipt.ReceiptNumber, "GR-") {
		t.Errorf("receipt number = %q, want GR- prefix", receipt.ReceiptNumber)
	}

	steel := mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "steel available after receipt", steel.AvailableQuantity, "60")
	wantQty(t, "steel cost from po line", steel.AverageCost, "12")

	// replaying the same message id must not post twice
	replayed, err := workflow.ReceivePurchaseOrder(ctx, first)
	if err != nil {
		t.Fatalf("replay receipt: %v", err)
	}
	if replayed == nil || replayed.ID != receipt.ID {
		t.Errorf("replay returned %+v, want receipt %d", replayed, receipt.ID)
	}
	steel = mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "steel available after replay", steel.AvailableQuantity, "60")

	if _, err := workflow.ReceivePurchaseOrder(ctx, &workflow.ReceivePurchaseOrderInput{
		PurchaseOrderId: po.ID,
		LocationId:      rm,
		Items:           []workflow.ReceiptLineInput{{PurchaseOrderItemId: itemIdByPart["RM-STEEL-3MM"], Quantity: d("50")}},
	}); !errors.Is(err, utils.ErrorValidation) {
		t.Errorf("over-receipt = %v, want validation error", err)
	}

	if _, err := workflow.ReceivePurchaseOrder(ctx, &workflow.ReceivePurchaseOrderInput{
		PurchaseOrderId: po.ID,
		LocationId:      rm,
		MessageId:       "gr-2025-002",
		Items: []workflow.ReceiptLineInput{
			{PurchaseOrderItemId: itemIdByPart["RM-STEEL-3MM"], Quantity: d("40")},
			{PurchaseOrderItemId: itemIdByPart["CP-BOLT-M8"], Quantity: d("500")},
		},
	}); err != nil {
		t.Fatalf("final receipt: %v", err)
	}

	po, err = models.GetPurchaseOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("GetPurchaseOrder: %v", err)
	}
	if po.Status != models.PurchaseOrderStatusReceived {
		t.Errorf("status when fully received = %s, want received", po.Status)
	}
	steel = mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "steel fully received", steel.AvailableQuantity, "100")
	bolt := mustBalance(t, ctx, "CP-BOLT-M8", rm)
	wantQty(t, "bolt fully received", bolt.AvailableQuantity, "500")
	wantQty(t, "bolt cost from po line", bolt.AverageCost, "0.1")

	if _, err := workflow.ReceivePurchaseOrder(ctx, &workflow.ReceivePurchaseOrderInput{
		PurchaseOrderId: po.ID,
		LocationId:      rm,
		Items:           []workflow.ReceiptLineInput{{PurchaseOrderItemId: itemIdByPart["CP-BOLT-M8"], Quantity: d("1")}},
	}); !errors.Is(err, utils.ErrorInvalidState) {
		t.Errorf("receive after received = %v, want invalid state", err)
	}
}

func TestDeliveryShipmentIdempotency(t *testing.T) {
	ctx := setupIntegrationDB(t)
	locs := seedLedgerMasterData(t, ctx)
	rm := locs["RM-01"]

	postIn(t, ctx, "RM-STEEL-3MM", rm, "100", "12.50")

	reservation, err := models.ReserveStock(ctx, &models.NewStockReservation{
		PartNumber:      "RM-STEEL-3MM",
		LocationId:      rm,
		Quantity:        d("30"),
		ReservationType: string(models.ReservationTypeDelivery),
	})
	if err != nil {
		t.Fatalf("ReserveStock: %v", err)
	}

	ship := &workflow.ShipDeliveryInput{
		NewDelivery: models.NewDelivery{
			PartNumber:     "RM-STEEL-3MM",
			FromLocationId: rm,
			ReservationId:  &reservation.ID,
			Customer:       "ACME Industries",
		},
		MessageId: "do-2025-001",
	}
	delivery, err := workflow.ShipDelivery(ctx, ship)
	if err != nil {
		t.Fatalf("ShipDelivery: %v", err)
	}
	if !strings.HasPrefix(delivery.DeliveryOrderNumber, "DO-") {
		t.Errorf("do number = %q, want DO- prefix", delivery.DeliveryOrderNumber)
	}
	wantQty(t, "shipped quantity from reservation", delivery.QuantityShipped, "30")

	steel := mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "available after ship", steel.AvailableQuantity, "70")
	wantQty(t, "reserved after ship", steel.ReservedQuantity, "0")
	reservation, err = models.GetReservation(ctx, reservation.ID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if reservation.Status != models.ReservationStatusFulfilled {
		t.Errorf("reservation after ship = %s, want fulfilled", reservation.Status)
	}

	replayed, err := workflow.ShipDelivery(ctx, ship)
	if err != nil {
		t.Fatalf("replay ship: %v", err)
	}
	if replayed == nil || replayed.ID != delivery.ID {
		t.Errorf("replay returned %+v, want delivery %d", replayed, delivery.ID)
	}
	steel = mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "available after replay", steel.AvailableQuantity, "70")

	// plain shipment without a reservation
	qty := d("20")
	unreferenced, err := workflow.ShipDelivery(ctx, &workflow.ShipDeliveryInput{
		NewDelivery: models.NewDelivery{
			PartNumber:     "RM-STEEL-3MM",
			Quantity:       &qty,
			FromLocationId: rm,
			Customer:       "ACME Industries",
		},
	})
	if err != nil {
		t.Fatalf("unreferenced ship: %v", err)
	}
	if unreferenced.DeliveryOrderNumber == delivery.DeliveryOrderNumber {
		t.Error("delivery numbers must be unique per shipment")
	}
	steel = mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "available after unreferenced ship", steel.AvailableQuantity, "50")

	over := d("999")
	if _, err := workflow.ShipDelivery(ctx, &workflow.ShipDeliveryInput{
		NewDelivery: models.NewDelivery{
			PartNumber:     "RM-STEEL-3MM",
			Quantity:       &over,
			FromLocationId: rm,
		},
	}); !errors.Is(err, utils.ErrorInsufficientStock) {
		t.Errorf("over-ship = %v, want insufficient stock", err)
	}

	// partial shipment against a hold is rejected, the hold stays intact
	partial, err := models.ReserveStock(ctx, &models.NewStockReservation{
		PartNumber:      "RM-STEEL-3MM",
		LocationId:      rm,
		Quantity:        d("10"),
		ReservationType: string(models.ReservationTypeDelivery),
	})
	if err != nil {
		t.Fatalf("ReserveStock partial: %v", err)
	}
	mismatch := d("5")
	if _, err := workflow.ShipDelivery(ctx, &workflow.ShipDeliveryInput{
		NewDelivery: models.NewDelivery{
			PartNumber:     "RM-STEEL-3MM",
			Quantity:       &mismatch,
			FromLocationId: rm,
			ReservationId:  &partial.ID,
		},
	}); !errors.Is(err, utils.ErrorValidation) {
		t.Errorf("quantity mismatch = %v, want validation error", err)
	}
	partial, err = models.GetReservation(ctx, partial.ID)
	if err != nil {
		t.Fatalf("GetReservation partial: %v", err)
	}
	if partial.Status != models.ReservationStatusActive {
		t.Errorf("reservation after rejected ship = %s, want active", partial.Status)
	}
	steel = mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "available after rejected ship", steel.AvailableQuantity, "40")
	wantQty(t, "reserved after rejected ship", steel.ReservedQuantity, "10")
}

func TestBalanceRebuildRepairsDrift(t *testing.T) {
	ctx := setupIntegrationDB(t)
	locs := seedLedgerMasterData(t, ctx)
	rm := locs["RM-01"]

	postIn(t, ctx, "RM-STEEL-3MM", rm, "50", "20.00")
	postIn(t, ctx, "RM-STEEL-3MM", rm, "100", "10.00")
	if _, err := models.RecordMovement(ctx, &models.NewInventoryMovement{
		PartNumber:     "RM-STEEL-3MM",
		MovementType:   "out",
		FromLocationId: &rm,
		Quantity:       d("30"),
	}); err != nil {
		t.Fatalf("post out: %v", err)
	}

	findings, err := workflow.RunReconciliationChecks(ctx)
	if err != nil {
		t.Fatalf("RunReconciliationChecks: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("clean ledger produced %d findings", len(findings))
	}

	// corrupt the projection behind the ledger's back
	err = config.GetDB().WithContext(ctx).Exec(
		"UPDATE inventory_balances SET available_quantity = 999, average_cost = 1.00 WHERE part_number = ? AND location_id = ?",
		"RM-STEEL-3MM", rm,
	).Error
	if err != nil {
		t.Fatalf("corrupt balance: %v", err)
	}

	findings, err = workflow.RunReconciliationChecks(ctx)
	if err != nil {
		t.Fatalf("RunReconciliationChecks: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(findings))
	}
	if findings[0].CheckName != "LEDGER_BALANCE" {
		t.Errorf("check name = %s, want LEDGER_BALANCE", findings[0].CheckName)
	}
	wantQty(t, "expected from ledger", findings[0].Expected, "120")
	wantQty(t, "actual from projection", findings[0].Actual, "999")

	result, err := workflow.RebuildBalance(ctx, "RM-STEEL-3MM", rm)
	if err != nil {
		t.Fatalf("RebuildBalance: %v", err)
	}
	if !result.Changed {
		t.Error("rebuild of a corrupted row reported no change")
	}
	if result.MovementCount != 3 {
		t.Errorf("movement count = %d, want 3", result.MovementCount)
	}
	wantQty(t, "rebuilt on-hand", result.OnHand, "120")
	wantQty(t, "rebuilt available", result.Available, "120")
	wantQty(t, "rebuilt average cost", result.AverageCost, "13.33")

	steel := mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "available after rebuild", steel.AvailableQuantity, "120")
	wantQty(t, "cost after rebuild", steel.AverageCost, "13.33")

	findings, err = workflow.RunReconciliationChecks(ctx)
	if err != nil {
		t.Fatalf("RunReconciliationChecks: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("rebuild left %d findings", len(findings))
	}

	// phantom hold: reserved column drifts with no reservation behind it
	err = config.GetDB().WithContext(ctx).Exec(
		"UPDATE inventory_balances SET reserved_quantity = 7 WHERE part_number = ? AND location_id = ?",
		"RM-STEEL-3MM", rm,
	).Error
	if err != nil {
		t.Fatalf("corrupt reserved: %v", err)
	}

	findings, err = workflow.RunReconciliationChecks(ctx)
	if err != nil {
		t.Fatalf("RunReconciliationChecks: %v", err)
	}
	var mirror *models.ReconciliationReport
	for _, finding := range findings {
		if finding.CheckName == "RESERVATION_MIRROR" {
			mirror = finding
		}
	}
	if mirror == nil {
		t.Fatalf("no RESERVATION_MIRROR finding in %d findings", len(findings))
	}
	wantQty(t, "mirror expected", mirror.Expected, "0")
	wantQty(t, "mirror actual", mirror.Actual, "7")

	if _, err := workflow.RebuildBalance(ctx, "RM-STEEL-3MM", rm); err != nil {
		t.Fatalf("RebuildBalance: %v", err)
	}
	steel = mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "reserved after rebuild", steel.ReservedQuantity, "0")
	wantQty(t, "available after second rebuild", steel.AvailableQuantity, "120")

	findings, err = workflow.RunReconciliationChecks(ctx)
	if err != nil {
		t.Fatalf("RunReconciliationChecks: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("second rebuild left %d findings", len(findings))
	}
}

func TestCountSheetRoundTrip(t *testing.T) {
	ctx := setupIntegrationDB(t)
	locs := seedLedgerMasterData(t, ctx)
	rm := locs["RM-01"]

	postIn(t, ctx, "RM-STEEL-3MM", rm, "80", "12.50")

	count, err := models.OpenCycleCount(ctx, &models.NewCycleCount{
		LocationId:  rm,
		PartNumbers: []string{"RM-STEEL-3MM"},
	})
	if err != nil {
		t.Fatalf("OpenCycleCount: %v", err)
	}
	if len(count.Details) != 1 {
		t.Fatalf("details = %d, want 1", len(count.Details))
	}

	other, err := models.OpenCycleCount(ctx, &models.NewCycleCount{
		LocationId:  rm,
		PartNumbers: []string{"RM-STEEL-3MM"},
	})
	if err != nil {
		t.Fatalf("OpenCycleCount other: %v", err)
	}

	var sheet bytes.Buffer
	if err := workflow.ExportCycleCountSheet(ctx, count.ID, &sheet); err != nil {
		t.Fatalf("ExportCycleCountSheet: %v", err)
	}

	// a sheet exported for one count cannot be imported into another
	if _, err := workflow.ImportCycleCountResults(ctx, other.ID, bytes.NewReader(sheet.Bytes())); !errors.Is(err, utils.ErrorValidation) {
		t.Errorf("foreign sheet import = %v, want validation error", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(sheet.Bytes()))
	if err != nil {
		t.Fatalf("open exported sheet: %v", err)
	}
	f.SetCellValue("Sheet1", "D6", "65")
	f.SetCellValue("Sheet1", "E6", "damage")
	var filled bytes.Buffer
	if err := f.Write(&filled); err != nil {
		t.Fatalf("write filled sheet: %v", err)
	}
	f.Close()

	recorded, err := workflow.ImportCycleCountResults(ctx, count.ID, bytes.NewReader(filled.Bytes()))
	if err != nil {
		t.Fatalf("ImportCycleCountResults: %v", err)
	}
	if recorded != 1 {
		t.Errorf("recorded = %d, want 1", recorded)
	}

	count, err = models.GetCycleCount(ctx, count.ID)
	if err != nil {
		t.Fatalf("GetCycleCount: %v", err)
	}
	detail := count.Details[0]
	if detail.CountedQuantity == nil {
		t.Fatal("counted quantity not recorded")
	}
	wantQty(t, "counted quantity", *detail.CountedQuantity, "65")
	wantQty(t, "variance vs snapshot", detail.VarianceQuantity, "-15")
	wantQty(t, "variance value", detail.VarianceValue, "-187.5")
	if detail.ReasonCode != "damage" {
		t.Errorf("reason code = %q, want damage", detail.ReasonCode)
	}
}
