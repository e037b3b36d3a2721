package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Drift detection output (nightly/admin-triggered). One row per mismatch
// found between the movement ledger and its projections.
type ReconciliationReport struct {
	ID int `gorm:"primary_key" json:"id"`
	CheckName     string          `gorm:"size:50;index;not null" json:"check_name"` // e.g. LEDGER_BALANCE, RESERVATION_MIRROR
	PartNumber string          `gorm:"size:50;index" json:"part_number"`
	LocationId int             `gorm:"index" json:"location_id"`
	Expected   decimal.Decimal `gorm:"type:decimal(14,3)" json:"expected"`
	Actual     decimal.Decimal `gorm:"type:decimal(14,3)" json:"actual"`
	Details       string          `gorm:"type:text" json:"details"` // human-readable mismatch detail
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
