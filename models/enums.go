package models

import (
	"errors"
)

type MovementType string

const (
	MovementTypeIn         MovementType = "in"
	MovementTypeOut        MovementType = "out"
	MovementTypeTransfer   MovementType = "transfer"
	MovementTypeAdjustment MovementType = "adjustment"
	MovementTypeScrap      MovementType = "scrap"
)

func ParseMovementType(s string) (MovementType, error) {
	movementTypes := map[string]MovementType{
		"in":         MovementTypeIn,
		"out":        MovementTypeOut,
		"transfer":   MovementTypeTransfer,
		"adjustment": MovementTypeAdjustment,
		"scrap":      MovementTypeScrap,
	}
	t, ok := movementTypes[s]
	if !ok {
		return "", errors.New("invalid movement type")
	}
	return t, nil
}

// StockBucket names which quantity column of a balance a movement draws from.
type StockBucket string

const (
	StockBucketAvailable  StockBucket = "available"
	StockBucketQuarantine StockBucket = "quarantine"
)

type MovementReferenceType string

const (
	MovementReferenceTypeProductionOrder MovementReferenceType = "production_order"
	MovementReferenceTypePurchaseOrder   MovementReferenceType = "purchase_order"
	MovementReferenceTypeGoodsReceipt    MovementReferenceType = "goods_receipt"
	MovementReferenceTypeDelivery        MovementReferenceType = "delivery"
	MovementReferenceTypeQcInspection    MovementReferenceType = "qc_inspection"
	MovementReferenceTypeCycleCount      MovementReferenceType = "cycle_count"
	MovementReferenceTypeMachineOutput   MovementReferenceType = "machine_output"
	MovementReferenceTypeManual          MovementReferenceType = "manual"
)

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusFulfilled ReservationStatus = "fulfilled"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusExpired   ReservationStatus = "expired"
)

type CycleCountStatus string

const (
	CycleCountStatusPending    CycleCountStatus = "pending"
	CycleCountStatusInProgress CycleCountStatus = "in_progress"
	CycleCountStatusCompleted  CycleCountStatus = "completed"
	CycleCountStatusCancelled  CycleCountStatus = "cancelled"
)

type CycleCountType string

const (
	CycleCountTypeFull    CycleCountType = "full"
	CycleCountTypePartial CycleCountType = "partial"
	CycleCountTypeSpot    CycleCountType = "spot"
)

func ParseCycleCountType(s string) (CycleCountType, error) {
	countTypes := map[string]CycleCountType{
		"full":    CycleCountTypeFull,
		"partial": CycleCountTypePartial,
		"spot":    CycleCountTypeSpot,
	}
	t, ok := countTypes[s]
	if !ok {
		return "", errors.New("invalid cycle count type")
	}
	return t, nil
}

type PartType string

const (
	PartTypeRawMaterial  PartType = "raw_material"
	PartTypeComponent    PartType = "component"
	PartTypeFinishedGood PartType = "finished_good"
	PartTypeConsumable   PartType = "consumable"
)

func ParsePartType(s string) (PartType, error) {
	partTypes := map[string]PartType{
		"raw_material":  PartTypeRawMaterial,
		"component":     PartTypeComponent,
		"finished_good": PartTypeFinishedGood,
		"consumable":    PartTypeConsumable,
	}
	t, ok := partTypes[s]
	if !ok {
		return "", errors.New("invalid part type")
	}
	return t, nil
}

type LocationType string

const (
	LocationTypeWarehouse  LocationType = "warehouse"
	LocationTypeStaging    LocationType = "staging"
	LocationTypeProduction LocationType = "production"
	LocationTypeQuarantine LocationType = "quarantine"
	LocationTypeReceiving  LocationType = "receiving"
	LocationTypeShipping   LocationType = "shipping"
)

type ReservationType string

const (
	ReservationTypeProduction ReservationType = "production"
	ReservationTypeDelivery   ReservationType = "delivery"
	ReservationTypeManual     ReservationType = "manual"
)

// QuarantineDisposition decides where held stock goes when released.
type QuarantineDisposition string

const (
	QuarantineDispositionReturn QuarantineDisposition = "return"
	QuarantineDispositionScrap  QuarantineDisposition = "scrap"
)

type UserRole string

const (
	UserRoleAdmin      UserRole = "admin"
	UserRoleSupervisor UserRole = "supervisor"
	UserRoleOperator   UserRole = "operator"
	UserRoleViewer     UserRole = "viewer"
)

func ParseUserRole(s string) (UserRole, error) {
	roles := map[string]UserRole{
		"admin":      UserRoleAdmin,
		"supervisor": UserRoleSupervisor,
		"operator":   UserRoleOperator,
		"viewer":     UserRoleViewer,
	}
	r, ok := roles[s]
	if !ok {
		return "", errors.New("invalid user role")
	}
	return r, nil
}

// CanApproveAdjustments reports whether the role may approve inventory
// adjustments when strict approval is enabled.
func (r UserRole) CanApproveAdjustments() bool {
	return r == UserRoleAdmin || r == UserRoleSupervisor
}

type MachineStatus string

const (
	MachineStatusActive      MachineStatus = "active"
	MachineStatusMaintenance MachineStatus = "maintenance"
	MachineStatusRetired     MachineStatus = "retired"
)

type ProductionOrderStatus string

const (
	ProductionOrderStatusPlanning   ProductionOrderStatus = "planning"
	ProductionOrderStatusInProgress ProductionOrderStatus = "in_progress"
	ProductionOrderStatusQcPending  ProductionOrderStatus = "qc_pending"
	ProductionOrderStatusRework     ProductionOrderStatus = "rework"
	ProductionOrderStatusCompleted  ProductionOrderStatus = "completed"
	ProductionOrderStatusCancelled  ProductionOrderStatus = "cancelled"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft     PurchaseOrderStatus = "draft"
	PurchaseOrderStatusSent      PurchaseOrderStatus = "sent"
	PurchaseOrderStatusConfirmed PurchaseOrderStatus = "confirmed"
	PurchaseOrderStatusReceived  PurchaseOrderStatus = "received"
	PurchaseOrderStatusClosed    PurchaseOrderStatus = "closed"
	PurchaseOrderStatusCancelled PurchaseOrderStatus = "cancelled"
)

type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusStarted   ScheduleStatus = "started"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

type InspectionStatus string

const (
	InspectionStatusPending   InspectionStatus = "pending"
	InspectionStatusCompleted InspectionStatus = "completed"
)

type InspectionResult string

const (
	InspectionResultPass    InspectionResult = "pass"
	InspectionResultFail    InspectionResult = "fail"
	InspectionResultPartial InspectionResult = "partial"
)

type InspectionType string

const (
	InspectionTypeOqc      InspectionType = "oqc"
	InspectionTypeIncoming InspectionType = "incoming"
	InspectionTypePatrol   InspectionType = "patrol"
)

func ParseInspectionType(value string) (InspectionType, error) {
	inspectionTypes := map[InspectionType]bool{
		InspectionTypeOqc:      true,
		InspectionTypeIncoming: true,
		InspectionTypePatrol:   true,
	}
	inspectionType := InspectionType(value)
	if !inspectionTypes[inspectionType] {
		return "", errors.New("invalid inspection type")
	}
	return inspectionType, nil
}

// Document number prefixes. Each prefix+scope pair owns one counter row.
const (
	DocPrefixJobOrder     = "JO"
	DocPrefixMovement     = "MOV"
	DocPrefixReservation  = "RSV"
	DocPrefixCycleCount   = "CC"
	DocPrefixPurchase     = "PO"
	DocPrefixGoodsReceipt = "GR"
	DocPrefixDelivery     = "DO"
	DocPrefixInspection   = "QC"
	DocPrefixSchedule     = "SCH"
)

// Workflow registry identifiers. A workflow is addressed by entity type plus
// workflow name so one entity can carry several independent state machines.
const (
	WorkflowEntityProductionOrder    = "production_order"
	WorkflowEntityQcInspection       = "qc_inspection"
	WorkflowEntityPurchaseOrder      = "purchase_order"
	WorkflowEntityProductionSchedule = "production_schedule"

	WorkflowNameLifecycle   = "lifecycle"
	WorkflowNameInspection  = "inspection"
	WorkflowNameProcurement = "procurement"
	WorkflowNameScheduling  = "scheduling"
)
