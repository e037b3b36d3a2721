package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/models"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

// setupIntegrationDB boots a throwaway MySQL container, connects the global
// pool to it and migrates the schema. Each test gets a clean database.
func setupIntegrationDB(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "wms_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	return ctx
}

// seedLedgerMasterData creates two locations and two parts, returning the
// location ids keyed by code.
func seedLedgerMasterData(t *testing.T, ctx context.Context) map[string]int {
	t.Helper()

	ids := make(map[string]int, 2)
	for _, loc := range []models.NewInventoryLocation{
		{LocationCode: "RM-01", LocationName: "Raw Material Store", LocationType: "warehouse"},
		{LocationCode: "FG-01", LocationName: "Finished Goods Store", LocationType: "warehouse"},
	} {
		created, err := models.CreateInventoryLocation(ctx, &loc)
		if err != nil {
			t.Fatalf("CreateInventoryLocation %s: %v", loc.LocationCode, err)
		}
		ids[loc.LocationCode] = created.ID
	}

	for _, part := range []models.NewPart{
		{PartNumber: "RM-STEEL-3MM", Description: "Steel sheet", UnitOfMeasure: "kg", PartType: "raw_material", StandardCost: decimal.NewFromFloat(12.50)},
		{PartNumber: "FG-BRACKET-A", Description: "Bracket", UnitOfMeasure: "pcs", PartType: "finished_good", StandardCost: decimal.NewFromFloat(45.00)},
	} {
		if _, err := models.CreatePart(ctx, &part); err != nil {
			t.Fatalf("CreatePart %s: %v", part.PartNumber, err)
		}
	}
	return ids
}

func mustBalance(t *testing.T, ctx context.Context, partNumber string, locationId int) *models.InventoryBalance {
	t.Helper()
	balance, err := models.GetBalance(ctx, partNumber, locationId)
	if err != nil {
		t.Fatalf("GetBalance(%s, %d): %v", partNumber, locationId, err)
	}
	return balance
}

func wantQty(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Errorf("%s = %s, want %s", label, got.String(), want)
	}
}

func postIn(t *testing.T, ctx context.Context, partNumber string, locationId int, qty, unitCost string) {
	t.Helper()
	cost := d(unitCost)
	_, err := models.RecordMovement(ctx, &models.NewInventoryMovement{
		PartNumber:   partNumber,
		MovementType: "in",
		ToLocationId: &locationId,
		Quantity:     d(qty),
		UnitCost:     &cost,
	})
	if err != nil {
		t.Fatalf("post in %s x %s: %v", partNumber, qty, err)
	}
}

func TestLedgerPostingAndCosting(t *testing.T) {
	ctx := setupIntegrationDB(t)
	locs := seedLedgerMasterData(t, ctx)
	rm, fg := locs["RM-01"], locs["FG-01"]

	// two receipts at different cost roll the weighted average
	postIn(t, ctx, "RM-STEEL-3MM", rm, "50", "20.00")
	balance := mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "available after first receipt", balance.AvailableQuantity, "50")
	wantQty(t, "average cost after first receipt", balance.AverageCost, "20.00")

	postIn(t, ctx, "RM-STEEL-3MM", rm, "100", "10.00")
	balance = mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "available after second receipt", balance.AvailableQuantity, "150")
	wantQty(t, "average cost after second receipt", balance.AverageCost, "13.33")

	// issues move quantity but never the average
	_, err := models.RecordMovement(ctx, &models.NewInventoryMovement{
		PartNumber:     "RM-STEEL-3MM",
		MovementType:   "out",
		FromLocationId: &rm,
		Quantity:       d("30"),
	})
	if err != nil {
		t.Fatalf("post out: %v", err)
	}
	balance = mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "available after issue", balance.AvailableQuantity, "120")
	wantQty(t, "average cost after issue", balance.AverageCost, "13.33")

	// transfer debits the source and credits the destination in one posting
	movement, err := models.RecordMovement(ctx, &models.NewInventoryMovement{
		PartNumber:     "RM-STEEL-3MM",
		MovementType:   "transfer",
		FromLocationId: &rm,
		ToLocationId:   &fg,
		Quantity:       d("20"),
	})
	if err != nil {
		t.Fatalf("post transfer: %v", err)
	}
	if !strings.HasPrefix(movement.MovementNumber, "MOV-") {
		t.Errorf("movement number %q should carry the MOV prefix", movement.MovementNumber)
	}
	wantQty(t, "source after transfer", mustBalance(t, ctx, "RM-STEEL-3MM", rm).AvailableQuantity, "100")
	wantQty(t, "destination after transfer", mustBalance(t, ctx, "RM-STEEL-3MM", fg).AvailableQuantity, "20")

	// issuing more than available must fail and leave the row untouched
	_, err = models.RecordMovement(ctx, &models.NewInventoryMovement{
		PartNumber:     "RM-STEEL-3MM",
		MovementType:   "out",
		FromLocationId: &rm,
		Quantity:       d("1000"),
	})
	if !errors.Is(err, utils.ErrorInsufficientStock) {
		t.Fatalf("over-issue should be insufficient stock, got %v", err)
	}
	wantQty(t, "available after rejected issue", mustBalance(t, ctx, "RM-STEEL-3MM", rm).AvailableQuantity, "100")

	// adjustments are signed and skip the availability check
	_, err = models.RecordMovement(ctx, &models.NewInventoryMovement{
		PartNumber:   "RM-STEEL-3MM",
		MovementType: "adjustment",
		ToLocationId: &rm,
		Quantity:     d("5"),
		ReasonCode:   "found",
	})
	if err != nil {
		t.Fatalf("post adjustment: %v", err)
	}
	wantQty(t, "available after adjustment", mustBalance(t, ctx, "RM-STEEL-3MM", rm).AvailableQuantity, "105")

	// a movement with both sides on an in is malformed
	_, err = models.RecordMovement(ctx, &models.NewInventoryMovement{
		PartNumber:     "RM-STEEL-3MM",
		MovementType:   "in",
		FromLocationId: &rm,
		ToLocationId:   &fg,
		Quantity:       d("1"),
	})
	if !errors.Is(err, utils.ErrorValidation) {
		t.Fatalf("in with a from side should be a validation error, got %v", err)
	}
}

func TestAdjustmentApprovalFlag(t *testing.T) {
	ctx := setupIntegrationDB(t)
	locs := seedLedgerMasterData(t, ctx)
	rm := locs["RM-01"]
	postIn(t, ctx, "RM-STEEL-3MM", rm, "10", "12.50")

	t.Setenv("STRICT_ADJUSTMENT_APPROVAL", "true")

	_, err := models.RecordMovement(ctx, &models.NewInventoryMovement{
		PartNumber:   "RM-STEEL-3MM",
		MovementType: "adjustment",
		ToLocationId: &rm,
		Quantity:     d("1"),
	})
	if !errors.Is(err, utils.ErrorValidation) {
		t.Fatalf("unapproved adjustment should be rejected, got %v", err)
	}

	supervisor, err := models.CreateUser(ctx, &models.NewUser{
		Email:    "supervisor@test.local",
		Password: "Sup#12345",
		Name:     "Shift Supervisor",
		Role:     "supervisor",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	_, err = models.RecordMovement(ctx, &models.NewInventoryMovement{
		PartNumber:   "RM-STEEL-3MM",
		MovementType: "adjustment",
		ToLocationId: &rm,
		Quantity:     d("1"),
		ApprovedBy:   &supervisor.ID,
	})
	if err != nil {
		t.Fatalf("approved adjustment should post: %v", err)
	}
	wantQty(t, "available after approved adjustment", mustBalance(t, ctx, "RM-STEEL-3MM", rm).AvailableQuantity, "11")
}

func TestReservationLifecycle(t *testing.T) {
	ctx := setupIntegrationDB(t)
	locs := seedLedgerMasterData(t, ctx)
	rm := locs["RM-01"]
	postIn(t, ctx, "RM-STEEL-3MM", rm, "100", "5.00")

	reservation, err := models.ReserveStock(ctx, &models.NewStockReservation{
		PartNumber:      "RM-STEEL-3MM",
		LocationId:      rm,
		Quantity:        d("40"),
		ReservationType: "manual",
	})
	if err != nil {
		t.Fatalf("ReserveStock: %v", err)
	}
	if !strings.HasPrefix(reservation.ReservationNumber, "RSV-") {
		t.Errorf("reservation number %q should carry the RSV prefix", reservation.ReservationNumber)
	}
	balance := mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "available after reserve", balance.AvailableQuantity, "60")
	wantQty(t, "reserved after reserve", balance.ReservedQuantity, "40")

	// reserved mirrors the active reservation sum
	total, err := models.ActiveReservationTotal(ctx, config.GetDB(), "RM-STEEL-3MM", rm)
	if err != nil {
		t.Fatalf("ActiveReservationTotal: %v", err)
	}
	if !total.Equal(balance.ReservedQuantity) {
		t.Errorf("reservation mirror broken: sum %s, balance reserved %s", total.String(), balance.ReservedQuantity.String())
	}

	// holds count against availability
	_, err = models.ReserveStock(ctx, &models.NewStockReservation{
		PartNumber:      "RM-STEEL-3MM",
		LocationId:      rm,
		Quantity:        d("61"),
		ReservationType: "manual",
	})
	if !errors.Is(err, utils.ErrorInsufficientStock) {
		t.Fatalf("over-reserve should be insufficient stock, got %v", err)
	}

	released, err := models.ReleaseReservation(ctx, reservation.ID, "test release")
	if err != nil {
		t.Fatalf("ReleaseReservation: %v", err)
	}
	if released.Status != models.ReservationStatusCancelled {
		t.Errorf("status = %s, want cancelled", released.Status)
	}
	balance = mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "available after release", balance.AvailableQuantity, "100")
	wantQty(t, "reserved after release", balance.ReservedQuantity, "0")

	// releasing twice is an invalid state, not a second credit
	if _, err := models.ReleaseReservation(ctx, reservation.ID, "again"); !errors.Is(err, utils.ErrorInvalidState) {
		t.Fatalf("double release should be invalid state, got %v", err)
	}
	wantQty(t, "available after double release", mustBalance(t, ctx, "RM-STEEL-3MM", rm).AvailableQuantity, "100")

	// fulfill burns the hold only; the physical issue is booked by its own
	// out movement
	reservation, err = models.ReserveStock(ctx, &models.NewStockReservation{
		PartNumber:      "RM-STEEL-3MM",
		LocationId:      rm,
		Quantity:        d("25"),
		ReservationType: "manual",
	})
	if err != nil {
		t.Fatalf("ReserveStock for fulfill: %v", err)
	}
	fulfilled, err := models.FulfillReservation(ctx, reservation.ID)
	if err != nil {
		t.Fatalf("FulfillReservation: %v", err)
	}
	if fulfilled.Status != models.ReservationStatusFulfilled {
		t.Errorf("status = %s, want fulfilled", fulfilled.Status)
	}
	balance = mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "available after fulfill", balance.AvailableQuantity, "75")
	wantQty(t, "reserved after fulfill", balance.ReservedQuantity, "0")
}

func TestReservationExpirySweep(t *testing.T) {
	ctx := setupIntegrationDB(t)
	locs := seedLedgerMasterData(t, ctx)
	rm := locs["RM-01"]
	postIn(t, ctx, "RM-STEEL-3MM", rm, "50", "5.00")

	past := time.Now().Add(-time.Hour)
	expired, err := models.ReserveStock(ctx, &models.NewStockReservation{
		PartNumber:      "RM-STEEL-3MM",
		LocationId:      rm,
		Quantity:        d("10"),
		ReservationType: "manual",
		ExpiresAt:       &past,
	})
	if err != nil {
		t.Fatalf("ReserveStock expiring: %v", err)
	}
	future := time.Now().Add(24 * time.Hour)
	keep, err := models.ReserveStock(ctx, &models.NewStockReservation{
		PartNumber:      "RM-STEEL-3MM",
		LocationId:      rm,
		Quantity:        d("5"),
		ReservationType: "manual",
		ExpiresAt:       &future,
	})
	if err != nil {
		t.Fatalf("ReserveStock keeping: %v", err)
	}

	swept, err := models.ExpireDueReservations(ctx, time.Now())
	if err != nil {
		t.Fatalf("ExpireDueReservations: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept %d reservations, want 1", swept)
	}

	got, err := models.GetReservation(ctx, expired.ID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if got.Status != models.ReservationStatusExpired {
		t.Errorf("expired reservation status = %s, want expired", got.Status)
	}
	got, err = models.GetReservation(ctx, keep.ID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if got.Status != models.ReservationStatusActive {
		t.Errorf("future reservation status = %s, want active", got.Status)
	}

	balance := mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "available after sweep", balance.AvailableQuantity, "45")
	wantQty(t, "reserved after sweep", balance.ReservedQuantity, "5")
}

func TestQuarantineBucket(t *testing.T) {
	ctx := setupIntegrationDB(t)
	locs := seedLedgerMasterData(t, ctx)
	rm := locs["RM-01"]
	postIn(t, ctx, "RM-STEEL-3MM", rm, "30", "10.00")

	if _, err := models.QuarantineStock(ctx, "RM-STEEL-3MM", rm, d("12"), "failed iqc"); err != nil {
		t.Fatalf("QuarantineStock: %v", err)
	}
	balance := mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "available after quarantine", balance.AvailableQuantity, "18")
	wantQty(t, "quarantine after quarantine", balance.QuarantineQuantity, "12")

	// quarantined stock cannot be issued from available
	_, err := models.RecordMovement(ctx, &models.NewInventoryMovement{
		PartNumber:     "RM-STEEL-3MM",
		MovementType:   "out",
		FromLocationId: &rm,
		Quantity:       d("19"),
	})
	if !errors.Is(err, utils.ErrorInsufficientStock) {
		t.Fatalf("issue beyond available should fail while stock is quarantined, got %v", err)
	}

	// return half to available
	if err := models.ReleaseQuarantine(ctx, "RM-STEEL-3MM", rm, d("5"), models.QuarantineDispositionReturn, "retest ok"); err != nil {
		t.Fatalf("ReleaseQuarantine return: %v", err)
	}
	balance = mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "available after return", balance.AvailableQuantity, "23")
	wantQty(t, "quarantine after return", balance.QuarantineQuantity, "7")

	// scrap the rest through the ledger
	if err := models.ReleaseQuarantine(ctx, "RM-STEEL-3MM", rm, d("7"), models.QuarantineDispositionScrap, "unrepairable"); err != nil {
		t.Fatalf("ReleaseQuarantine scrap: %v", err)
	}
	balance = mustBalance(t, ctx, "RM-STEEL-3MM", rm)
	wantQty(t, "available after scrap", balance.AvailableQuantity, "23")
	wantQty(t, "quarantine after scrap", balance.QuarantineQuantity, "0")

	// scrapping more than held is refused
	err = models.ReleaseQuarantine(ctx, "RM-STEEL-3MM", rm, d("1"), models.QuarantineDispositionScrap, "nothing left")
	if !errors.Is(err, utils.ErrorInsufficientStock) {
		t.Fatalf("scrap beyond quarantine should be insufficient stock, got %v", err)
	}
}

func TestCycleCountFreezeAndAdjust(t *testing.T) {
	ctx := setupIntegrationDB(t)
	locs := seedLedgerMasterData(t, ctx)
	rm := locs["RM-01"]
	postIn(t, ctx, "RM-STEEL-3MM", rm, "80", "10.00")

	count, err := models.OpenCycleCount(ctx, &models.NewCycleCount{
		LocationId:  rm,
		CountType:   "partial",
		PartNumbers: []string{"RM-STEEL-3MM"},
	})
	if err != nil {
		t.Fatalf("OpenCycleCount: %v", err)
	}
	if !strings.HasPrefix(count.CountNumber, "CC-") {
		t.Errorf("count number %q should carry the CC prefix", count.CountNumber)
	}
	if len(count.Details) != 1 {
		t.Fatalf("expected one detail row, got %d", len(count.Details))
	}
	detail := count.Details[0]
	wantQty(t, "snapshot quantity", detail.SystemQuantity, "80")

	// a movement after the snapshot must not move the comparison baseline
	_, err = models.RecordMovement(ctx, &models.NewInventoryMovement{
		PartNumber:     "RM-STEEL-3MM",
		MovementType:   "out",
		FromLocationId: &rm,
		Quantity:       d("10"),
	})
	if err != nil {
		t.Fatalf("post out during count: %v", err)
	}

	recorded, err := models.RecordCountResult(ctx, detail.ID, d("65"), "damage")
	if err != nil {
		t.Fatalf("RecordCountResult: %v", err)
	}
	wantQty(t, "variance vs snapshot", recorded.VarianceQuantity, "-15")
	wantQty(t, "variance value", recorded.VarianceValue, "-150.00")

	// recounting overwrites, it does not append
	recorded, err = models.RecordCountResult(ctx, detail.ID, d("70"), "recount")
	if err != nil {
		t.Fatalf("RecordCountResult recount: %v", err)
	}
	wantQty(t, "variance after recount", recorded.VarianceQuantity, "-10")

	completed, err := models.CompleteCycleCount(ctx, count.ID, true)
	if err != nil {
		t.Fatalf("CompleteCycleCount: %v", err)
	}
	if completed.Status != models.CycleCountStatusCompleted {
		t.Errorf("status = %s, want completed", completed.Status)
	}

	// live 70 plus the -10 variance adjustment
	wantQty(t, "available after count adjustment", mustBalance(t, ctx, "RM-STEEL-3MM", rm).AvailableQuantity, "60")

	// complete-once: a second completion attempt must fail as already done
	_, err = models.CompleteCycleCount(ctx, count.ID, true)
	if !errors.Is(err, utils.ErrorAlreadyCompleted) {
		t.Fatalf("second completion should be already-completed, got %v", err)
	}
	if !errors.Is(err, utils.ErrorInvalidState) {
		t.Fatalf("already-completed should still be an invalid state, got %v", err)
	}
	wantQty(t, "available unchanged after rejected completion", mustBalance(t, ctx, "RM-STEEL-3MM", rm).AvailableQuantity, "60")

	// closed counts refuse further results
	if _, err := models.RecordCountResult(ctx, detail.ID, d("99"), "late"); !errors.Is(err, utils.ErrorInvalidState) {
		t.Fatalf("result on completed count should be invalid state, got %v", err)
	}
}

func TestSequenceGenerationUnderConcurrency(t *testing.T) {
	ctx := setupIntegrationDB(t)

	const workers = 8
	const perWorker = 5
	scope := models.DateScope(time.Now())

	var mu sync.Mutex
	numbers := make([]string, 0, workers*perWorker)
	errs := make([]error, 0)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				number, err := models.GenerateSequence(ctx, "JO", scope)
				mu.Lock()
				if err != nil {
					errs = append(errs, err)
				} else {
					numbers = append(numbers, number)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("%d generations failed, first: %v", len(errs), errs[0])
	}
	if len(numbers) != workers*perWorker {
		t.Fatalf("got %d numbers, want %d", len(numbers), workers*perWorker)
	}

	// no duplicates, no gaps: sorted numbers are exactly 0001..N
	seen := make(map[string]bool, len(numbers))
	for _, n := range numbers {
		if seen[n] {
			t.Fatalf("duplicate number %s", n)
		}
		seen[n] = true
	}
	sort.Strings(numbers)
	for i, n := range numbers {
		want := models.FormatDocumentNumber("JO", scope, int64(i+1))
		if n != want {
			t.Fatalf("number[%d] = %s, want %s (gap or skip)", i, n, want)
		}
	}

	// counter survives a peek without moving
	current, err := models.PeekSequence(ctx, "JO", scope)
	if err != nil {
		t.Fatalf("PeekSequence: %v", err)
	}
	if current != int64(workers*perWorker) {
		t.Fatalf("counter = %d, want %d", current, workers*perWorker)
	}
}

func TestSequenceScopesAreIndependent(t *testing.T) {
	ctx := setupIntegrationDB(t)

	aug27 := time.Date(2025, 8, 27, 10, 0, 0, 0, time.UTC)
	aug28 := aug27.Add(24 * time.Hour)

	first, err := models.GenerateSequence(ctx, "JO", models.DateScope(aug27))
	if err != nil {
		t.Fatalf("GenerateSequence: %v", err)
	}
	if first != "JO-20250827-0001" {
		t.Errorf("first = %s, want JO-20250827-0001", first)
	}

	// a new day restarts; a different prefix never shares a counter
	nextDay, err := models.GenerateSequence(ctx, "JO", models.DateScope(aug28))
	if err != nil {
		t.Fatalf("GenerateSequence next day: %v", err)
	}
	if nextDay != "JO-20250828-0001" {
		t.Errorf("next day = %s, want JO-20250828-0001", nextDay)
	}
	otherPrefix, err := models.GenerateSequence(ctx, "GR", models.DateScope(aug27))
	if err != nil {
		t.Fatalf("GenerateSequence other prefix: %v", err)
	}
	if otherPrefix != "GR-20250827-0001" {
		t.Errorf("other prefix = %s, want GR-20250827-0001", otherPrefix)
	}

	// seeding below the current counter must not move it backwards
	if err := models.SeedSequenceCounter(ctx, config.GetDB(), "JO", models.DateScope(aug27), 0); err != nil {
		t.Fatalf("SeedSequenceCounter low: %v", err)
	}
	second, err := models.GenerateSequence(ctx, "JO", models.DateScope(aug27))
	if err != nil {
		t.Fatalf("GenerateSequence after low seed: %v", err)
	}
	if second != "JO-20250827-0002" {
		t.Errorf("after low seed = %s, want JO-20250827-0002", second)
	}

	// seeding above jumps the counter past legacy numbers
	if err := models.SeedSequenceCounter(ctx, config.GetDB(), "JO", models.DateScope(aug27), 17); err != nil {
		t.Fatalf("SeedSequenceCounter high: %v", err)
	}
	jumped, err := models.GenerateSequence(ctx, "JO", models.DateScope(aug27))
	if err != nil {
		t.Fatalf("GenerateSequence after high seed: %v", err)
	}
	if jumped != "JO-20250827-0018" {
		t.Errorf("after high seed = %s, want JO-20250827-0018", jumped)
	}
}

func TestWorkflowStatePersistence(t *testing.T) {
	ctx := setupIntegrationDB(t)
	db := config.GetDB()

	const entityId = 4001

	// entry transition creates the first active row
	state, err := models.TransitionWorkflow(ctx, &models.NewWorkflowTransition{
		EntityType:   models.WorkflowEntityProductionOrder,
		EntityId:     entityId,
		WorkflowName: models.WorkflowNameLifecycle,
		NewState:     "planning",
	})
	if err != nil {
		t.Fatalf("entry transition: %v", err)
	}
	if state.PreviousState != nil {
		t.Errorf("entry transition previous state = %v, want nil", *state.PreviousState)
	}

	// an illegal jump is refused and leaves the active row alone
	_, err = models.TransitionWorkflow(ctx, &models.NewWorkflowTransition{
		EntityType:   models.WorkflowEntityProductionOrder,
		EntityId:     entityId,
		WorkflowName: models.WorkflowNameLifecycle,
		NewState:     "completed",
	})
	if !errors.Is(err, utils.ErrorInvalidState) {
		t.Fatalf("illegal jump should be invalid state, got %v", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "planning") || !strings.Contains(msg, "completed") {
		t.Errorf("error %q should name both states", msg)
	}

	for _, next := range []string{"in_progress", "qc_pending", "rework", "in_progress", "qc_pending", "completed"} {
		if _, err := models.TransitionWorkflow(ctx, &models.NewWorkflowTransition{
			EntityType:   models.WorkflowEntityProductionOrder,
			EntityId:     entityId,
			WorkflowName: models.WorkflowNameLifecycle,
			NewState:     next,
			StateData:    map[string]any{"to": next},
		}); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}

	// terminal means terminal
	_, err = models.TransitionWorkflow(ctx, &models.NewWorkflowTransition{
		EntityType:   models.WorkflowEntityProductionOrder,
		EntityId:     entityId,
		WorkflowName: models.WorkflowNameLifecycle,
		NewState:     "in_progress",
	})
	if !errors.Is(err, utils.ErrorInvalidState) {
		t.Fatalf("transition out of completed should be invalid state, got %v", err)
	}

	active, err := models.GetActiveWorkflowState(ctx, models.WorkflowEntityProductionOrder, entityId, models.WorkflowNameLifecycle)
	if err != nil {
		t.Fatalf("GetActiveWorkflowState: %v", err)
	}
	if active == nil || active.CurrentState != "completed" {
		t.Fatalf("active state = %+v, want completed", active)
	}
	if active.PreviousState == nil || *active.PreviousState != "qc_pending" {
		t.Errorf("previous state = %v, want qc_pending", active.PreviousState)
	}

	// exactly one active row per workflow instance, full history retained
	var activeCount int64
	if err := db.WithContext(ctx).Model(&models.WorkflowState{}).
		Where("entity_type = ? AND entity_id = ? AND workflow_name = ? AND is_active = 1",
			models.WorkflowEntityProductionOrder, entityId, models.WorkflowNameLifecycle).
		Count(&activeCount).Error; err != nil {
		t.Fatalf("count active rows: %v", err)
	}
	if activeCount != 1 {
		t.Fatalf("active rows = %d, want exactly 1", activeCount)
	}
	history, err := models.GetWorkflowHistory(ctx, models.WorkflowEntityProductionOrder, entityId, models.WorkflowNameLifecycle)
	if err != nil {
		t.Fatalf("GetWorkflowHistory: %v", err)
	}
	if len(history) != 7 {
		t.Fatalf("history rows = %d, want 7", len(history))
	}

	// unknown workflow pairs are rejected outright
	_, err = models.TransitionWorkflow(ctx, &models.NewWorkflowTransition{
		EntityType:   "sales_order",
		EntityId:     1,
		WorkflowName: "lifecycle",
		NewState:     "draft",
	})
	if !errors.Is(err, utils.ErrorValidation) {
		t.Fatalf("unknown workflow should be a validation error, got %v", err)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("wms-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=wms_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
