package utils

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	// Input structs carry "binding" tags; point the validator at them.
	validate.SetTagName("binding")
}

// ValidateStruct runs tag-based validation and folds failures into the
// validation error class so callers can classify with errors.Is.
func ValidateStruct(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return err
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return ValidationError("field %s failed on the '%s' rule", fe.Field(), fe.Tag())
	}
	return ValidationError("%s", err.Error())
}

// ValidateResourceId checks that a referenced record exists, returning a
// not-found validation error naming the resource.
func ValidateResourceId[T any](ctx context.Context, db *gorm.DB, resourceName string, id int) (T, error) {
	var model T
	err := db.WithContext(ctx).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model, fmt.Errorf("%w: %s %d not found", ErrorRecordNotFound, resourceName, id)
		}
		return model, TranslateDBError(err)
	}
	return model, nil
}

// ValidateUnique fails when another row already holds the given column value.
// excludeId skips the record being updated.
func ValidateUnique[T any](ctx context.Context, db *gorm.DB, resourceName string, column string, value any, excludeId int) error {
	var model T
	var count int64
	query := db.WithContext(ctx).Model(&model).Where(fmt.Sprintf("%s = ?", column), value)
	if excludeId > 0 {
		query = query.Where("id <> ?", excludeId)
	}
	if err := query.Count(&count).Error; err != nil {
		return TranslateDBError(err)
	}
	if count > 0 {
		return ValidationError("%s with %s '%v' already exists", resourceName, column, value)
	}
	return nil
}

func ResourceCountWhere[T any](ctx context.Context, db *gorm.DB, query string, args ...any) (int64, error) {
	var model T
	var count int64
	err := db.WithContext(ctx).Model(&model).Where(query, args...).Count(&count).Error
	if err != nil {
		return 0, TranslateDBError(err)
	}
	return count, nil
}
