package models_test

import (
	"errors"
	"testing"

	"github.com/bgrlango/WMS-Manufacture-sub000/models"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

func TestProductionLifecycleTransitions(t *testing.T) {
	legal := []struct{ from, to string }{
		{"", "planning"},
		{"planning", "in_progress"},
		{"planning", "cancelled"},
		{"in_progress", "qc_pending"},
		{"in_progress", "cancelled"},
		{"qc_pending", "completed"},
		{"qc_pending", "rework"},
		{"rework", "in_progress"},
		{"rework", "cancelled"},
	}
	for _, tc := range legal {
		if err := models.ValidateWorkflowTransition(models.WorkflowEntityProductionOrder, models.WorkflowNameLifecycle, tc.from, tc.to); err != nil {
			t.Errorf("transition %q -> %q should be legal: %v", tc.from, tc.to, err)
		}
	}

	illegal := []struct{ from, to string }{
		{"", "in_progress"},       // must enter in planning
		{"planning", "completed"}, // cannot skip the floor
		{"planning", "qc_pending"},
		{"qc_pending", "cancelled"}, // qc must resolve, not cancel
		{"completed", "in_progress"},
		{"cancelled", "planning"},
		{"in_progress", "planning"}, // no going back
	}
	for _, tc := range illegal {
		err := models.ValidateWorkflowTransition(models.WorkflowEntityProductionOrder, models.WorkflowNameLifecycle, tc.from, tc.to)
		if err == nil {
			t.Errorf("transition %q -> %q should be rejected", tc.from, tc.to)
			continue
		}
		if !errors.Is(err, utils.ErrorInvalidState) {
			t.Errorf("transition %q -> %q: want invalid-state error, got %v", tc.from, tc.to, err)
		}
	}
}

func TestUnknownWorkflowIsAValidationError(t *testing.T) {
	err := models.ValidateWorkflowTransition("sales_order", "lifecycle", "", "draft")
	if !errors.Is(err, utils.ErrorValidation) {
		t.Fatalf("unknown workflow should be a validation error, got %v", err)
	}

	if _, err := models.WorkflowInitialState("sales_order", "lifecycle"); !errors.Is(err, utils.ErrorValidation) {
		t.Fatalf("WorkflowInitialState on unknown workflow should be a validation error, got %v", err)
	}
}

func TestWorkflowInitialStates(t *testing.T) {
	cases := []struct {
		entityType   string
		workflowName string
		want         string
	}{
		{models.WorkflowEntityProductionOrder, models.WorkflowNameLifecycle, "planning"},
		{models.WorkflowEntityQcInspection, models.WorkflowNameInspection, "pending"},
		{models.WorkflowEntityPurchaseOrder, models.WorkflowNameProcurement, "draft"},
		{models.WorkflowEntityProductionSchedule, models.WorkflowNameScheduling, "scheduled"},
	}
	for _, tc := range cases {
		got, err := models.WorkflowInitialState(tc.entityType, tc.workflowName)
		if err != nil {
			t.Errorf("%s/%s: %v", tc.entityType, tc.workflowName, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s/%s entry state = %q, want %q", tc.entityType, tc.workflowName, got, tc.want)
		}
	}
}

func TestTerminalStatesHaveNoExit(t *testing.T) {
	terminals := []struct {
		entityType   string
		workflowName string
		state        string
	}{
		{models.WorkflowEntityProductionOrder, models.WorkflowNameLifecycle, "completed"},
		{models.WorkflowEntityProductionOrder, models.WorkflowNameLifecycle, "cancelled"},
		{models.WorkflowEntityQcInspection, models.WorkflowNameInspection, "completed"},
		{models.WorkflowEntityPurchaseOrder, models.WorkflowNameProcurement, "closed"},
		{models.WorkflowEntityPurchaseOrder, models.WorkflowNameProcurement, "cancelled"},
		{models.WorkflowEntityProductionSchedule, models.WorkflowNameScheduling, "completed"},
	}
	for _, tc := range terminals {
		if !models.IsTerminalWorkflowState(tc.entityType, tc.workflowName, tc.state) {
			t.Errorf("%s/%s state %q should be terminal", tc.entityType, tc.workflowName, tc.state)
		}
	}

	if models.IsTerminalWorkflowState(models.WorkflowEntityProductionOrder, models.WorkflowNameLifecycle, "rework") {
		t.Error("rework must allow another pass through the floor")
	}
}
