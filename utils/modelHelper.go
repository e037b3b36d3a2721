package utils

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FetchModel loads a record by primary key.
func FetchModel[T any](ctx context.Context, db *gorm.DB, id int) (T, error) {
	var model T
	err := db.WithContext(ctx).First(&model, id).Error
	if err != nil {
		return model, TranslateDBError(err)
	}
	return model, nil
}

// FetchModelForUpdate loads a record by primary key under SELECT ... FOR UPDATE.
// Must run inside a transaction; the row lock is released at commit/rollback.
func FetchModelForUpdate[T any](ctx context.Context, tx *gorm.DB, id int) (T, error) {
	var model T
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, id).Error
	if err != nil {
		return model, TranslateDBError(err)
	}
	return model, nil
}

// FetchModelWhere loads the first record matching the given condition.
func FetchModelWhere[T any](ctx context.Context, db *gorm.DB, query string, args ...any) (T, error) {
	var model T
	err := db.WithContext(ctx).Where(query, args...).First(&model).Error
	if err != nil {
		return model, TranslateDBError(err)
	}
	return model, nil
}

func FetchAllModels[T any](ctx context.Context, db *gorm.DB) ([]T, error) {
	var models []T
	err := db.WithContext(ctx).Find(&models).Error
	if err != nil {
		return nil, TranslateDBError(err)
	}
	return models, nil
}

func FetchAllModelsWhere[T any](ctx context.Context, db *gorm.DB, query string, args ...any) ([]T, error) {
	var models []T
	err := db.WithContext(ctx).Where(query, args...).Find(&models).Error
	if err != nil {
		return nil, TranslateDBError(err)
	}
	return models, nil
}
