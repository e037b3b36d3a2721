package workflow

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

// AcquireBalanceRebuildLock serializes ledger replays per (part, location)
// across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the rebuild transaction.
func AcquireBalanceRebuildLock(tx *gorm.DB, partNumber string, locationId int) error {
	lockName := fmt.Sprintf("balance_rebuild:%s:%d", partNumber, locationId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return utils.TranslateDBError(err)
	}
	if ok != 1 {
		return fmt.Errorf("%w: could not acquire rebuild lock for part=%s location=%d",
			utils.ErrorConcurrencyTimeout, partNumber, locationId)
	}
	return nil
}

func ReleaseBalanceRebuildLock(tx *gorm.DB, partNumber string, locationId int) {
	lockName := fmt.Sprintf("balance_rebuild:%s:%d", partNumber, locationId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
