package models

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

// WorkflowState tracks entity lifecycles append-with-supersede: the active
// row is deactivated and a new active row inserted per transition, keeping
// full history. Exactly one active row exists per
// (entity_type, entity_id, workflow_name); the supersede-write runs under an
// advisory lock plus a row lock so concurrent transitions serialize.
type WorkflowState struct {
	ID            int       `gorm:"primary_key" json:"id"`
	EntityType    string    `gorm:"size:50;not null;index:idx_workflow_entity" json:"entity_type"`
	EntityId      int       `gorm:"not null;index:idx_workflow_entity" json:"entity_id"`
	WorkflowName  string    `gorm:"size:50;not null;index:idx_workflow_entity" json:"workflow_name"`
	CurrentState  string    `gorm:"size:50;not null" json:"current_state"`
	PreviousState *string   `gorm:"size:50" json:"previous_state"`
	StateData     string    `gorm:"type:text" json:"state_data"`
	IsActive      *bool     `gorm:"not null;default:true;index:idx_workflow_entity" json:"is_active"`
	ChangedBy     int       `gorm:"not null" json:"changed_by"`
	ChangedAt     time.Time `gorm:"not null" json:"changed_at"`
	Notes         string    `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type workflowKey struct {
	EntityType   string
	WorkflowName string
}

// workflowTransitions is the legal-transition table per registered workflow.
// The empty from-state marks entry transitions. A state with no outgoing
// entries is terminal.
var workflowTransitions = map[workflowKey]map[string][]string{
	{WorkflowEntityProductionOrder, WorkflowNameLifecycle}: {
		"":                                      {string(ProductionOrderStatusPlanning)},
		string(ProductionOrderStatusPlanning):   {string(ProductionOrderStatusInProgress), string(ProductionOrderStatusCancelled)},
		string(ProductionOrderStatusInProgress): {string(ProductionOrderStatusQcPending), string(ProductionOrderStatusCancelled)},
		string(ProductionOrderStatusQcPending):  {string(ProductionOrderStatusCompleted), string(ProductionOrderStatusRework)},
		string(ProductionOrderStatusRework):     {string(ProductionOrderStatusInProgress), string(ProductionOrderStatusCancelled)},
	},
	{WorkflowEntityQcInspection, WorkflowNameInspection}: {
		"":                              {string(InspectionStatusPending)},
		string(InspectionStatusPending): {string(InspectionStatusCompleted)},
	},
	{WorkflowEntityPurchaseOrder, WorkflowNameProcurement}: {
		"":                                   {string(PurchaseOrderStatusDraft)},
		string(PurchaseOrderStatusDraft):     {string(PurchaseOrderStatusSent), string(PurchaseOrderStatusCancelled)},
		string(PurchaseOrderStatusSent):      {string(PurchaseOrderStatusConfirmed), string(PurchaseOrderStatusCancelled)},
		string(PurchaseOrderStatusConfirmed): {string(PurchaseOrderStatusReceived), string(PurchaseOrderStatusCancelled)},
		string(PurchaseOrderStatusReceived):  {string(PurchaseOrderStatusClosed)},
	},
	{WorkflowEntityProductionSchedule, WorkflowNameScheduling}: {
		"":                              {string(ScheduleStatusScheduled)},
		string(ScheduleStatusScheduled): {string(ScheduleStatusStarted), string(ScheduleStatusCancelled)},
		string(ScheduleStatusStarted):   {string(ScheduleStatusCompleted), string(ScheduleStatusCancelled)},
	},
}

// ValidateWorkflowTransition checks a proposed transition against the
// registered table. Unknown workflows are a validation error; a known
// workflow with an illegal edge is an invalid-state error naming both sides.
func ValidateWorkflowTransition(entityType string, workflowName string, fromState string, toState string) error {
	transitions, ok := workflowTransitions[workflowKey{entityType, workflowName}]
	if !ok {
		return utils.ValidationError("unknown workflow %s/%s", entityType, workflowName)
	}
	for _, legal := range transitions[fromState] {
		if legal == toState {
			return nil
		}
	}
	if fromState == "" {
		return utils.InvalidStateError("workflow %s/%s cannot start in state '%s'", entityType, workflowName, toState)
	}
	return utils.InvalidStateError("workflow %s/%s cannot move from '%s' to '%s'", entityType, workflowName, fromState, toState)
}

// WorkflowInitialState returns the entry state of a registered workflow.
func WorkflowInitialState(entityType string, workflowName string) (string, error) {
	transitions, ok := workflowTransitions[workflowKey{entityType, workflowName}]
	if !ok {
		return "", utils.ValidationError("unknown workflow %s/%s", entityType, workflowName)
	}
	entries := transitions[""]
	if len(entries) == 0 {
		return "", utils.ValidationError("workflow %s/%s has no entry state", entityType, workflowName)
	}
	return entries[0], nil
}

// IsTerminalWorkflowState reports whether a state has no outgoing edges.
func IsTerminalWorkflowState(entityType string, workflowName string, state string) bool {
	transitions, ok := workflowTransitions[workflowKey{entityType, workflowName}]
	if !ok {
		return false
	}
	return len(transitions[state]) == 0
}

type NewWorkflowTransition struct {
	EntityType   string `json:"entity_type" binding:"required"`
	EntityId     int    `json:"entity_id" binding:"required"`
	WorkflowName string `json:"workflow_name" binding:"required"`
	NewState     string `json:"new_state" binding:"required"`
	StateData    any    `json:"state_data"`
	Notes        string `json:"notes"`
}

// GET_LOCK is connection-scoped; acquire and release on the same tx.
func acquireWorkflowLock(tx *gorm.DB, entityType string, entityId int, workflowName string) error {
	lockName := fmt.Sprintf("wf:%s:%d:%s", entityType, entityId, workflowName)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return utils.TranslateDBError(err)
	}
	if ok != 1 {
		return fmt.Errorf("%w: could not acquire workflow lock %s", utils.ErrorConcurrencyTimeout, lockName)
	}
	return nil
}

func releaseWorkflowLock(tx *gorm.DB, entityType string, entityId int, workflowName string) {
	lockName := fmt.Sprintf("wf:%s:%d:%s", entityType, entityId, workflowName)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// TransitionWorkflowTx validates and applies one transition inside the
// caller's transaction: deactivate the active row, insert the new one with
// previous_state set to the superseded state.
func TransitionWorkflowTx(ctx context.Context, tx *gorm.DB, input *NewWorkflowTransition) (*WorkflowState, error) {

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	// serialize per workflow instance; covers the no-active-row-yet case
	// that a row lock alone cannot
	if err := acquireWorkflowLock(tx, input.EntityType, input.EntityId, input.WorkflowName); err != nil {
		return nil, err
	}
	defer releaseWorkflowLock(tx, input.EntityType, input.EntityId, input.WorkflowName)

	var current WorkflowState
	fromState := ""
	var previousState *string
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("entity_type = ? AND entity_id = ? AND workflow_name = ? AND is_active = 1",
			input.EntityType, input.EntityId, input.WorkflowName).
		First(&current).Error
	if err == nil {
		fromState = current.CurrentState
		previousState = &current.CurrentState
	} else if err != gorm.ErrRecordNotFound {
		return nil, utils.TranslateDBError(err)
	}

	if err := ValidateWorkflowTransition(input.EntityType, input.WorkflowName, fromState, input.NewState); err != nil {
		return nil, err
	}

	if current.ID > 0 {
		if err := tx.WithContext(ctx).Model(&current).
			UpdateColumn("IsActive", false).Error; err != nil {
			return nil, utils.TranslateDBError(err)
		}
	}

	stateData := ""
	if input.StateData != nil {
		stateData, err = utils.MarshalToJSON(input.StateData)
		if err != nil {
			return nil, utils.ValidationError("state data is not serializable: %s", err.Error())
		}
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	next := WorkflowState{
		EntityType:    input.EntityType,
		EntityId:      input.EntityId,
		WorkflowName:  input.WorkflowName,
		CurrentState:  input.NewState,
		PreviousState: previousState,
		StateData:     stateData,
		IsActive:      utils.NewTrue(),
		ChangedBy:     userId,
		ChangedAt:     time.Now(),
		Notes:         input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&next).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}

	return &next, nil
}

func TransitionWorkflow(ctx context.Context, input *NewWorkflowTransition) (*WorkflowState, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var state *WorkflowState
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		state, txErr = TransitionWorkflowTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		config.LogError(logger, "workflowState.go", "TransitionWorkflow", "transition workflow", input, err)
		return nil, err
	}
	return state, nil
}

// GetActiveWorkflowState returns the live state row, or nil when the entity
// has not entered the workflow.
func GetActiveWorkflowState(ctx context.Context, entityType string, entityId int, workflowName string) (*WorkflowState, error) {
	db := config.GetDB()
	var state WorkflowState
	err := db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ? AND workflow_name = ? AND is_active = 1",
			entityType, entityId, workflowName).
		First(&state).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, utils.TranslateDBError(err)
	}
	return &state, nil
}

// GetWorkflowHistory returns all state rows for an entity, oldest first.
func GetWorkflowHistory(ctx context.Context, entityType string, entityId int, workflowName string) ([]*WorkflowState, error) {
	db := config.GetDB()
	var states []*WorkflowState
	err := db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ? AND workflow_name = ?", entityType, entityId, workflowName).
		Order("id").
		Find(&states).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return states, nil
}
