package models

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

// ProductionSchedule books a production order onto a machine and operator
// for a time window. Status mirrors the scheduling workflow.
type ProductionSchedule struct {
	ID                int            `gorm:"primary_key" json:"id"`
	ScheduleNumber    string         `gorm:"size:30;not null;uniqueIndex" json:"schedule_number"`
	ProductionOrderId int            `gorm:"not null;index" json:"production_order_id"`
	MachineId         *int           `gorm:"index" json:"machine_id"`
	OperatorId        *int           `json:"operator_id"`
	ScheduledStart    time.Time      `gorm:"not null" json:"scheduled_start"`
	ScheduledEnd      time.Time      `gorm:"not null" json:"scheduled_end"`
	ActualStart       *time.Time     `json:"actual_start"`
	ActualEnd         *time.Time     `json:"actual_end"`
	Status            ScheduleStatus `gorm:"size:20;not null;default:scheduled;index" json:"status"`
	Priority          int            `gorm:"not null;default:5" json:"priority"`
	Notes             string         `gorm:"type:text" json:"notes"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProductionSchedule struct {
	ProductionOrderId int       `json:"production_order_id" binding:"required"`
	MachineId         *int      `json:"machine_id"`
	OperatorId        *int      `json:"operator_id"`
	ScheduledStart    time.Time `json:"scheduled_start" binding:"required"`
	ScheduledEnd      time.Time `json:"scheduled_end" binding:"required"`
	Priority          *int      `json:"priority"`
	Notes             string    `json:"notes"`
}

func (input *NewProductionSchedule) validate(ctx context.Context, tx *gorm.DB) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.ScheduledEnd.After(input.ScheduledStart) {
		return utils.ValidationError("scheduled end must be after scheduled start")
	}
	if input.Priority != nil && (*input.Priority < 1 || *input.Priority > 9) {
		return utils.ValidationError("priority must be between 1 and 9")
	}
	if err := ValidateMovementReference(ctx, tx, MovementReferenceTypeProductionOrder, input.ProductionOrderId); err != nil {
		return err
	}
	if input.MachineId != nil && *input.MachineId > 0 {
		if err := ValidateMachineId(ctx, *input.MachineId); err != nil {
			return err
		}
	}
	return nil
}

// CreateProductionSchedule claims an SCH number and enters the scheduling
// workflow as scheduled.
func CreateProductionSchedule(ctx context.Context, input *NewProductionSchedule) (*ProductionSchedule, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var schedule ProductionSchedule
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := input.validate(ctx, tx); err != nil {
			return err
		}

		scheduleNumber, err := NextDocumentNumberForDateTx(ctx, tx, DocPrefixSchedule, input.ScheduledStart)
		if err != nil {
			return err
		}

		priority := 5
		if input.Priority != nil {
			priority = *input.Priority
		}
		schedule = ProductionSchedule{
			ScheduleNumber:    scheduleNumber,
			ProductionOrderId: input.ProductionOrderId,
			MachineId:         input.MachineId,
			OperatorId:        input.OperatorId,
			ScheduledStart:    input.ScheduledStart,
			ScheduledEnd:      input.ScheduledEnd,
			Status:            ScheduleStatusScheduled,
			Priority:          priority,
			Notes:             input.Notes,
		}
		if err := tx.WithContext(ctx).Create(&schedule).Error; err != nil {
			return utils.TranslateDBError(err)
		}

		_, err = TransitionWorkflowTx(ctx, tx, &NewWorkflowTransition{
			EntityType:   WorkflowEntityProductionSchedule,
			EntityId:     schedule.ID,
			WorkflowName: WorkflowNameScheduling,
			NewState:     string(ScheduleStatusScheduled),
			Notes:        scheduleNumber,
		})
		return err
	})
	if err != nil {
		config.LogError(logger, "productionSchedule.go", "CreateProductionSchedule", "create production schedule", input, err)
		return nil, err
	}
	return &schedule, nil
}

// transitionSchedule drives one scheduling workflow step, keeps the status
// column in sync and applies extra column updates atomically.
func transitionSchedule(ctx context.Context, scheduleId int, newStatus ScheduleStatus, notes string, extra map[string]interface{}) (*ProductionSchedule, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var schedule ProductionSchedule
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		schedule, err = utils.FetchModelForUpdate[ProductionSchedule](ctx, tx, scheduleId)
		if err != nil {
			return err
		}

		_, err = TransitionWorkflowTx(ctx, tx, &NewWorkflowTransition{
			EntityType:   WorkflowEntityProductionSchedule,
			EntityId:     scheduleId,
			WorkflowName: WorkflowNameScheduling,
			NewState:     string(newStatus),
			Notes:        notes,
		})
		if err != nil {
			return err
		}

		updates := map[string]interface{}{"Status": newStatus}
		for column, value := range extra {
			updates[column] = value
		}
		if err := tx.WithContext(ctx).Model(&schedule).Updates(updates).Error; err != nil {
			return utils.TranslateDBError(err)
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "productionSchedule.go", "transitionSchedule", "transition schedule", scheduleId, err)
		return nil, err
	}
	return GetProductionSchedule(ctx, scheduleId)
}

func StartProductionSchedule(ctx context.Context, scheduleId int) (*ProductionSchedule, error) {
	now := time.Now()
	return transitionSchedule(ctx, scheduleId, ScheduleStatusStarted, "", map[string]interface{}{
		"ActualStart": &now,
	})
}

func CompleteProductionSchedule(ctx context.Context, scheduleId int) (*ProductionSchedule, error) {
	now := time.Now()
	return transitionSchedule(ctx, scheduleId, ScheduleStatusCompleted, "", map[string]interface{}{
		"ActualEnd": &now,
	})
}

func CancelProductionSchedule(ctx context.Context, scheduleId int, reason string) (*ProductionSchedule, error) {
	return transitionSchedule(ctx, scheduleId, ScheduleStatusCancelled, reason, nil)
}

func GetProductionSchedule(ctx context.Context, id int) (*ProductionSchedule, error) {
	db := config.GetDB()
	schedule, err := utils.FetchModel[ProductionSchedule](ctx, db, id)
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

// ListSchedulesForMachine returns a machine's bookings inside a window,
// highest priority first.
func ListSchedulesForMachine(ctx context.Context, machineId int, from time.Time, to time.Time) ([]*ProductionSchedule, error) {
	db := config.GetDB()
	var schedules []*ProductionSchedule
	err := db.WithContext(ctx).
		Where("machine_id = ? AND scheduled_start < ? AND scheduled_end > ?", machineId, to, from).
		Where("status IN ?", []ScheduleStatus{ScheduleStatusScheduled, ScheduleStatusStarted}).
		Order("priority, scheduled_start").
		Find(&schedules).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return schedules, nil
}

func ListOpenSchedules(ctx context.Context, limit int) ([]*ProductionSchedule, error) {
	db := config.GetDB()
	if limit <= 0 {
		limit = 100
	}

	var schedules []*ProductionSchedule
	err := db.WithContext(ctx).
		Where("status IN ?", []ScheduleStatus{ScheduleStatusScheduled, ScheduleStatusStarted}).
		Order("scheduled_start").
		Limit(limit).
		Find(&schedules).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return schedules, nil
}
