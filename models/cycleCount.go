package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

type CycleCount struct {
	ID          int                `gorm:"primary_key" json:"id"`
	CountNumber string             `gorm:"size:50;not null;uniqueIndex" json:"count_number"`
	LocationId  int                `gorm:"not null;index" json:"location_id"`
	CountDate   time.Time          `gorm:"not null" json:"count_date"`
	CountType   CycleCountType     `gorm:"size:20;not null;default:partial" json:"count_type"`
	AssignedTo  *int               `json:"assigned_to"`
	CreatedBy   int                `gorm:"not null" json:"created_by"`
	ApprovedBy  *int               `json:"approved_by"`
	Status      CycleCountStatus   `gorm:"size:20;not null;default:pending;index" json:"status"`
	CompletedAt *time.Time         `json:"completed_at"`
	Notes       string             `gorm:"type:text" json:"notes"`
	Details     []CycleCountDetail `gorm:"foreignKey:CycleCountId" json:"details"`
	CreatedAt   time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// CycleCountDetail freezes one part's book position at snapshot time.
// system_quantity is never re-read after open, so movements during the
// physical count cannot shift the comparison baseline.
type CycleCountDetail struct {
	ID               int              `gorm:"primary_key" json:"id"`
	CycleCountId     int              `gorm:"not null;index" json:"cycle_count_id"`
	PartNumber       string           `gorm:"size:100;not null" json:"part_number"`
	SystemQuantity   decimal.Decimal  `gorm:"type:decimal(12,3);not null" json:"system_quantity"`
	SnapshotCost     decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0" json:"snapshot_cost"`
	CountedQuantity  *decimal.Decimal `gorm:"type:decimal(12,3)" json:"counted_quantity"`
	VarianceQuantity decimal.Decimal  `gorm:"type:decimal(12,3);not null;default:0" json:"variance_quantity"`
	VarianceValue    decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0" json:"variance_value"`
	ReasonCode       string           `gorm:"size:50" json:"reason_code"`
	CountedBy        *int             `json:"counted_by"`
	CountedDate      *time.Time       `json:"counted_date"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCycleCount struct {
	LocationId  int      `json:"location_id" binding:"required"`
	CountType   string   `json:"count_type"`
	AssignedTo  *int     `json:"assigned_to"`
	PartNumbers []string `json:"part_numbers"`
	Notes       string   `json:"notes"`
}

func (input *NewCycleCount) validate(ctx context.Context) (CycleCountType, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return "", err
	}
	countType := CycleCountTypePartial
	if input.CountType != "" {
		var err error
		countType, err = ParseCycleCountType(input.CountType)
		if err != nil {
			return "", utils.ValidationError("invalid cycle count type '%s'", input.CountType)
		}
	}
	if countType == CycleCountTypeFull && len(input.PartNumbers) > 0 {
		return "", utils.ValidationError("full count covers the whole location; part filter is not allowed")
	}
	if countType != CycleCountTypeFull && len(input.PartNumbers) == 0 {
		return "", utils.ValidationError("%s count requires a part list", countType)
	}
	if err := ValidateLocationId(ctx, input.LocationId); err != nil {
		return "", err
	}
	for _, partNumber := range input.PartNumbers {
		if err := ValidatePartNumber(ctx, partNumber); err != nil {
			return "", err
		}
	}
	return countType, nil
}

// OpenCycleCount snapshots the location's book quantities into detail rows.
// A filtered count also snapshots requested parts with no balance row yet
// (system zero), so counters can surface stock the system does not know.
func OpenCycleCount(ctx context.Context, input *NewCycleCount) (*CycleCount, error) {

	countType, err := input.validate(ctx)
	if err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	db := config.GetDB()

	var count *CycleCount
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		countNumber, txErr := NextDocumentNumberForDateTx(ctx, tx, DocPrefixCycleCount, now)
		if txErr != nil {
			return txErr
		}

		var balances []InventoryBalance
		dbCtx := tx.WithContext(ctx).Where("location_id = ?", input.LocationId)
		if countType != CycleCountTypeFull {
			dbCtx = dbCtx.Where("part_number IN ?", utils.UniqueSlice(input.PartNumbers))
		}
		if txErr := dbCtx.Order("part_number").Find(&balances).Error; txErr != nil {
			return utils.TranslateDBError(txErr)
		}

		details := make([]CycleCountDetail, 0, len(balances))
		seen := make(map[string]bool, len(balances))
		for _, balance := range balances {
			details = append(details, CycleCountDetail{
				PartNumber:     balance.PartNumber,
				SystemQuantity: balance.AvailableQuantity,
				SnapshotCost:   balance.AverageCost,
			})
			seen[balance.PartNumber] = true
		}
		if countType != CycleCountTypeFull {
			for _, partNumber := range utils.UniqueSlice(input.PartNumbers) {
				if !seen[partNumber] {
					details = append(details, CycleCountDetail{
						PartNumber:     partNumber,
						SystemQuantity: decimal.Zero,
						SnapshotCost:   decimal.Zero,
					})
				}
			}
		}

		count = &CycleCount{
			CountNumber: countNumber,
			LocationId:  input.LocationId,
			CountDate:   now,
			CountType:   countType,
			AssignedTo:  input.AssignedTo,
			CreatedBy:   userId,
			Status:      CycleCountStatusPending,
			Notes:       input.Notes,
			Details:     details,
		}
		if txErr := tx.WithContext(ctx).Create(count).Error; txErr != nil {
			return utils.TranslateDBError(txErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return count, nil
}

// RecordCountResult overwrites the counted quantity on one detail row; it is
// not an append log, so recounting before completion just replaces the value.
func RecordCountResult(ctx context.Context, detailId int, countedQty decimal.Decimal, reasonCode string) (*CycleCountDetail, error) {
	if countedQty.IsNegative() {
		return nil, utils.ValidationError("counted quantity cannot be negative")
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	db := config.GetDB()

	var detail *CycleCountDetail
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, txErr := utils.FetchModelForUpdate[CycleCountDetail](ctx, tx, detailId)
		if txErr != nil {
			return txErr
		}

		header, txErr := utils.FetchModelForUpdate[CycleCount](ctx, tx, d.CycleCountId)
		if txErr != nil {
			return txErr
		}
		switch header.Status {
		case CycleCountStatusPending, CycleCountStatusInProgress:
		case CycleCountStatusCompleted:
			return utils.ErrorAlreadyCompleted
		default:
			return utils.InvalidStateError("cycle count %s is %s", header.CountNumber, header.Status)
		}

		now := time.Now()
		variance := countedQty.Sub(d.SystemQuantity)
		if txErr := tx.WithContext(ctx).Model(&d).Updates(map[string]interface{}{
			"CountedQuantity":  countedQty,
			"VarianceQuantity": variance,
			"VarianceValue":    variance.Mul(d.SnapshotCost).Round(2),
			"ReasonCode":       reasonCode,
			"CountedBy":        userId,
			"CountedDate":      now,
		}).Error; txErr != nil {
			return utils.TranslateDBError(txErr)
		}
		d.CountedQuantity = &countedQty
		d.VarianceQuantity = variance
		d.VarianceValue = variance.Mul(d.SnapshotCost).Round(2)
		d.ReasonCode = reasonCode
		d.CountedBy = &userId
		d.CountedDate = &now

		// first result moves the header off pending
		if header.Status == CycleCountStatusPending {
			if txErr := tx.WithContext(ctx).Model(&header).
				UpdateColumn("Status", CycleCountStatusInProgress).Error; txErr != nil {
				return utils.TranslateDBError(txErr)
			}
		}

		detail = &d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// CompleteCycleCount closes the count once. With applyAdjustments, every
// counted detail with a non-zero variance emits exactly one adjustment
// movement through the ledger: positive variance books stock in, negative
// books it out. Uncounted details are skipped.
func CompleteCycleCount(ctx context.Context, countId int, applyAdjustments bool) (*CycleCount, error) {
	logger := config.GetLogger()
	userId, _ := utils.GetUserIdFromContext(ctx)
	db := config.GetDB()

	var count *CycleCount
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		header, txErr := utils.FetchModelForUpdate[CycleCount](ctx, tx, countId)
		if txErr != nil {
			return txErr
		}
		switch header.Status {
		case CycleCountStatusPending, CycleCountStatusInProgress:
		case CycleCountStatusCompleted:
			return utils.ErrorAlreadyCompleted
		default:
			return utils.InvalidStateError("cycle count %s is %s", header.CountNumber, header.Status)
		}

		var details []CycleCountDetail
		if txErr := tx.WithContext(ctx).
			Where("cycle_count_id = ?", countId).
			Order("part_number").
			Find(&details).Error; txErr != nil {
			return utils.TranslateDBError(txErr)
		}

		countedParts := make([]string, 0, len(details))
		for _, detail := range details {
			if detail.CountedQuantity == nil {
				continue
			}
			countedParts = append(countedParts, detail.PartNumber)
			if !applyAdjustments || detail.VarianceQuantity.IsZero() {
				continue
			}

			reasonCode := detail.ReasonCode
			if reasonCode == "" {
				reasonCode = "cycle_count_variance"
			}
			movementInput := &NewInventoryMovement{
				PartNumber:    detail.PartNumber,
				MovementType:  string(MovementTypeAdjustment),
				Quantity:      detail.VarianceQuantity.Abs(),
				ReferenceType: MovementReferenceTypeCycleCount,
				ReferenceId:   &header.ID,
				ReasonCode:    reasonCode,
				Notes:         "cycle count " + header.CountNumber,
			}
			if detail.VarianceQuantity.IsPositive() {
				movementInput.ToLocationId = &header.LocationId
			} else {
				movementInput.FromLocationId = &header.LocationId
			}
			if userId > 0 {
				movementInput.ApprovedBy = &userId
			}
			if _, txErr := RecordMovementTx(ctx, tx, movementInput); txErr != nil {
				return txErr
			}
		}

		now := time.Now()
		updates := map[string]interface{}{
			"Status":      CycleCountStatusCompleted,
			"CompletedAt": now,
		}
		if userId > 0 {
			updates["ApprovedBy"] = userId
		}
		if txErr := tx.WithContext(ctx).Model(&header).Updates(updates).Error; txErr != nil {
			return utils.TranslateDBError(txErr)
		}

		// counted rows get their audit stamp even when no variance was found
		if len(countedParts) > 0 {
			if txErr := tx.WithContext(ctx).Model(&InventoryBalance{}).
				Where("location_id = ? AND part_number IN ?", header.LocationId, countedParts).
				UpdateColumn("last_count_date", now).Error; txErr != nil {
				return utils.TranslateDBError(txErr)
			}
		}

		header.Status = CycleCountStatusCompleted
		header.CompletedAt = &now
		header.Details = details
		count = &header
		return nil
	})
	if err != nil {
		config.LogError(logger, "cycleCount.go", "CompleteCycleCount", "complete cycle count", countId, err)
		return nil, err
	}
	return count, nil
}

func CancelCycleCount(ctx context.Context, countId int, reason string) (*CycleCount, error) {
	db := config.GetDB()
	var count *CycleCount
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		header, txErr := utils.FetchModelForUpdate[CycleCount](ctx, tx, countId)
		if txErr != nil {
			return txErr
		}
		switch header.Status {
		case CycleCountStatusPending, CycleCountStatusInProgress:
		case CycleCountStatusCompleted:
			return utils.ErrorAlreadyCompleted
		default:
			return utils.InvalidStateError("cycle count %s is %s", header.CountNumber, header.Status)
		}
		if txErr := tx.WithContext(ctx).Model(&header).Updates(map[string]interface{}{
			"Status": CycleCountStatusCancelled,
			"Notes":  header.Notes + "\ncancelled: " + reason,
		}).Error; txErr != nil {
			return utils.TranslateDBError(txErr)
		}
		header.Status = CycleCountStatusCancelled
		count = &header
		return nil
	})
	if err != nil {
		return nil, err
	}
	return count, nil
}

func GetCycleCount(ctx context.Context, id int) (*CycleCount, error) {
	db := config.GetDB()
	var count CycleCount
	err := db.WithContext(ctx).Preload("Details", func(db *gorm.DB) *gorm.DB {
		return db.Order("part_number")
	}).First(&count, id).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return &count, nil
}

func ListOpenCycleCounts(ctx context.Context, locationId *int) ([]*CycleCount, error) {
	db := config.GetDB()
	var counts []*CycleCount
	dbCtx := db.WithContext(ctx).
		Where("status IN ?", []CycleCountStatus{CycleCountStatusPending, CycleCountStatusInProgress})
	if locationId != nil && *locationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", *locationId)
	}
	err := dbCtx.Order("id").Find(&counts).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return counts, nil
}
