package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

type Supplier struct {
	ID            int       `gorm:"primary_key" json:"id"`
	SupplierCode  string    `gorm:"size:20;not null;uniqueIndex" json:"supplier_code" binding:"required"`
	SupplierName  string    `gorm:"size:100;not null" json:"supplier_name" binding:"required"`
	ContactPerson string    `gorm:"size:100" json:"contact_person"`
	Phone         string    `gorm:"size:20" json:"phone"`
	Email         string    `gorm:"size:100" json:"email"`
	Address       string    `gorm:"type:text" json:"address"`
	PaymentTerms  string    `gorm:"size:50" json:"payment_terms"`
	IsActive      *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSupplier struct {
	SupplierCode  string `json:"supplier_code" binding:"required"`
	SupplierName  string `json:"supplier_name" binding:"required"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	PaymentTerms  string `json:"payment_terms"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewSupplier) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	db := config.GetDB()
	if err := utils.ValidateUnique[Supplier](ctx, db, "supplier", "supplier_code", input.SupplierCode, id); err != nil {
		return err
	}
	// email
	if len(strings.TrimSpace(input.Email)) > 0 && !utils.IsValidEmail(input.Email) {
		return utils.ValidationError("invalid email address")
	}
	// phone
	if len(strings.TrimSpace(input.Phone)) > 0 {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return utils.ValidationError("invalid phone number")
		}
	}
	return nil
}

func CreateSupplier(ctx context.Context, input *NewSupplier) (*Supplier, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	// store phones in one canonical form
	phone, err := utils.NormalizePhoneNumber(input.Phone)
	if err != nil {
		return nil, utils.ValidationError("invalid phone number")
	}

	supplier := Supplier{
		SupplierCode:  input.SupplierCode,
		SupplierName:  input.SupplierName,
		ContactPerson: input.ContactPerson,
		Phone:         phone,
		Email:         input.Email,
		Address:       input.Address,
		PaymentTerms:  input.PaymentTerms,
		IsActive:      utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Create(&supplier).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return &supplier, nil
}

func UpdateSupplier(ctx context.Context, id int, input *NewSupplier) (*Supplier, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	phone, err := utils.NormalizePhoneNumber(input.Phone)
	if err != nil {
		return nil, utils.ValidationError("invalid phone number")
	}

	db := config.GetDB()
	supplier, err := utils.FetchModel[Supplier](ctx, db, id)
	if err != nil {
		return nil, err
	}

	// db action
	err = db.WithContext(ctx).Model(&supplier).Updates(map[string]interface{}{
		"SupplierCode":  input.SupplierCode,
		"SupplierName":  input.SupplierName,
		"ContactPerson": input.ContactPerson,
		"Phone":         phone,
		"Email":         input.Email,
		"Address":       input.Address,
		"PaymentTerms":  input.PaymentTerms,
	}).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}

	if err := utils.RemoveRedisBoth[Supplier](id); err != nil {
		return nil, err
	}

	return &supplier, nil
}

// ValidateSupplierId checks that an active supplier exists.
func ValidateSupplierId(ctx context.Context, id int) error {
	db := config.GetDB()
	count, err := utils.ResourceCountWhere[Supplier](ctx, db, "id = ? AND is_active = 1", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("%w: supplier %d", utils.ErrorRecordNotFound, id)
	}
	return nil
}

func GetSupplier(ctx context.Context, id int) (*Supplier, error) {
	return GetResource[Supplier](ctx, id)
}

func ListSuppliers(ctx context.Context) ([]*Supplier, error) {
	return ListAllResource[Supplier](ctx, "supplier_code")
}

func ToggleActiveSupplier(ctx context.Context, id int, isActive bool) (*Supplier, error) {
	return ToggleActiveModel[Supplier](ctx, id, isActive)
}
