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

// DocumentSequence is the counter row behind document numbering. One row per
// (prefix, scope); scope is usually a yyyymmdd date segment so counters reset
// daily. Numbers are handed out under a row lock inside the caller's
// transaction, so a rolled-back document releases its number with it and the
// committed stream stays gap-free.
type DocumentSequence struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Prefix    string    `gorm:"size:10;not null;index:uniq_doc_seq,unique" json:"prefix"`
	Scope     string    `gorm:"size:20;not null;index:uniq_doc_seq,unique" json:"scope"`
	Seq       int64     `gorm:"not null;default:0" json:"seq"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func FormatDocumentNumber(prefix string, scope string, seq int64) string {
	// %04d widens on its own past 9999
	return fmt.Sprintf("%s-%s-%04d", prefix, scope, seq)
}

func DateScope(t time.Time) string {
	return t.Format("20060102")
}

// NextDocumentNumberTx claims the next number for (prefix, scope) inside tx.
// The caller's transaction must commit for the number to be consumed.
func NextDocumentNumberTx(ctx context.Context, tx *gorm.DB, prefix string, scope string) (string, error) {
	if prefix == "" || scope == "" {
		return "", utils.ValidationError("sequence prefix and scope are required")
	}

	// Idempotent seed so the locked read below always finds a row. The no-op
	// ON DUPLICATE KEY branch avoids burning auto-increment churn on races.
	if err := tx.WithContext(ctx).Exec(
		"INSERT INTO document_sequences (prefix, scope, seq, created_at, updated_at) VALUES (?, ?, 0, NOW(), NOW()) ON DUPLICATE KEY UPDATE prefix = prefix",
		prefix, scope).Error; err != nil {
		return "", utils.TranslateDBError(err)
	}

	var row DocumentSequence
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("prefix = ? AND scope = ?", prefix, scope).
		First(&row).Error; err != nil {
		return "", utils.TranslateDBError(err)
	}

	next := row.Seq + 1
	if err := tx.WithContext(ctx).Exec(
		"UPDATE document_sequences SET seq = ?, updated_at = NOW() WHERE id = ?",
		next, row.ID).Error; err != nil {
		return "", utils.TranslateDBError(err)
	}

	return FormatDocumentNumber(prefix, scope, next), nil
}

// NextDocumentNumberForDateTx claims the next number in the date-scoped
// stream, e.g. "JO-20250827-0004".
func NextDocumentNumberForDateTx(ctx context.Context, tx *gorm.DB, prefix string, date time.Time) (string, error) {
	return NextDocumentNumberTx(ctx, tx, prefix, DateScope(date))
}

// GenerateSequence claims a number in its own transaction. Prefer the Tx
// variants when the number is stored on a document row; this standalone form
// is for callers that only need a number (labels, external references) and
// accept that a discarded number leaves a gap.
func GenerateSequence(ctx context.Context, prefix string, scope string) (string, error) {
	db := config.GetDB()
	var number string
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		number, txErr = NextDocumentNumberTx(ctx, tx, prefix, scope)
		return txErr
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

// PeekSequence reads the current counter value without claiming a number.
func PeekSequence(ctx context.Context, prefix string, scope string) (int64, error) {
	db := config.GetDB()
	var row DocumentSequence
	err := db.WithContext(ctx).Where("prefix = ? AND scope = ?", prefix, scope).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, utils.TranslateDBError(err)
	}
	return row.Seq, nil
}

// SeedSequenceCounter raises the counter for (prefix, scope) to at least
// maxSeen. Used by the backfill command when adopting numbering over
// documents issued before the counter table existed.
func SeedSequenceCounter(ctx context.Context, tx *gorm.DB, prefix string, scope string, maxSeen int64) error {
	if err := tx.WithContext(ctx).Exec(
		"INSERT INTO document_sequences (prefix, scope, seq, created_at, updated_at) VALUES (?, ?, ?, NOW(), NOW()) ON DUPLICATE KEY UPDATE seq = GREATEST(seq, VALUES(seq)), updated_at = NOW()",
		prefix, scope, maxSeen).Error; err != nil {
		return utils.TranslateDBError(err)
	}
	return nil
}
