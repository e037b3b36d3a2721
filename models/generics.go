package models

import (
	"context"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

// first find in redis, then in db, cache result
// (may return RecordNotFound error)
func GetResource[T any](ctx context.Context, id int, associations ...string) (*T, error) {

	// find in redis
	result, err := utils.RetrieveRedis[T](id)
	if err != nil {
		return nil, err
	}
	// if not found in redis
	if result == nil {
		// fetch from db
		db := config.GetDB()
		var model T
		dbCtx := db.WithContext(ctx)
		for _, association := range associations {
			dbCtx = dbCtx.Preload(association)
		}
		if err := dbCtx.First(&model, id).Error; err != nil {
			return nil, utils.TranslateDBError(err)
		}
		result = &model

		// store in redis
		if err := utils.StoreRedis[T](result, id); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// list all resources, redis or db, cache result
func ListAllResource[T any](ctx context.Context, orders ...string) ([]*T, error) {

	// first try redis cache
	results, err := utils.RetrieveRedisList[T]()
	if err != nil {
		return nil, err
	}
	// if not exists in redis
	if results == nil {
		// fetch from db
		db := config.GetDB()
		var model T
		dbCtx := db.WithContext(ctx).Model(&model)
		for _, order := range orders {
			dbCtx = dbCtx.Order(order)
		}
		// db query
		if err = dbCtx.Find(&results).Error; err != nil {
			return nil, utils.TranslateDBError(err)
		}

		// caching the result
		if err := utils.StoreRedisList[T](results); err != nil {
			return nil, err
		}
	}

	return results, nil
}

func ToggleActiveModel[T any](ctx context.Context, id int, isActive bool) (*T, error) {

	var result T
	db := config.GetDB()

	// fetch model before updating
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}

	// update db
	if err := db.WithContext(ctx).Model(&result).
		UpdateColumn("IsActive", isActive).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}

	// clear cache
	if err := utils.RemoveRedisBoth[T](id); err != nil {
		return nil, err
	}

	return &result, nil
}
