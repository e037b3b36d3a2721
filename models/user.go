package models

import (
	"context"
	"time"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Email     string    `gorm:"size:100;not null;uniqueIndex" json:"email" binding:"required"`
	Password  string    `gorm:"size:100;not null" json:"-"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Role      UserRole  `gorm:"size:20;not null;default:operator" json:"role"`
	Phone     string    `gorm:"size:20" json:"phone"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
}

func (input *NewUser) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !utils.IsValidEmail(input.Email) {
		return utils.ValidationError("invalid email address")
	}
	if input.Role != "" {
		if _, err := ParseUserRole(input.Role); err != nil {
			return utils.ValidationError("invalid role '%s'", input.Role)
		}
	}
	db := config.GetDB()
	if err := utils.ValidateUnique[User](ctx, db, "user", "email", input.Email, id); err != nil {
		return err
	}
	return nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = string(UserRoleOperator)
	}

	user := User{
		Email:    input.Email,
		Password: hashed,
		Name:     input.Name,
		Role:     UserRole(role),
		Phone:    input.Phone,
		IsActive: utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Create(&user).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return &user, nil
}

// Authenticate verifies credentials and returns the active user.
func Authenticate(ctx context.Context, email string, password string) (*User, error) {
	db := config.GetDB()
	user, err := utils.FetchModelWhere[User](ctx, db, "email = ? AND is_active = 1", email)
	if err != nil {
		return nil, err
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, utils.ValidationError("invalid credentials")
	}
	return &user, nil
}

func ChangePassword(ctx context.Context, userId int, oldPassword string, newPassword string) error {
	db := config.GetDB()
	user, err := utils.FetchModel[User](ctx, db, userId)
	if err != nil {
		return err
	}
	if err := utils.ComparePassword(user.Password, oldPassword); err != nil {
		return utils.ValidationError("invalid credentials")
	}
	hashed, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := db.WithContext(ctx).Model(&user).
		UpdateColumn("Password", hashed).Error; err != nil {
		return utils.TranslateDBError(err)
	}
	return utils.RemoveRedisBoth[User](userId)
}

func SetUserRole(ctx context.Context, userId int, role string) (*User, error) {
	parsed, err := ParseUserRole(role)
	if err != nil {
		return nil, utils.ValidationError("invalid role '%s'", role)
	}
	db := config.GetDB()
	user, err := utils.FetchModel[User](ctx, db, userId)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&user).
		UpdateColumn("Role", parsed).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}
	if err := utils.RemoveRedisBoth[User](userId); err != nil {
		return nil, err
	}
	user.Role = parsed
	return &user, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	return GetResource[User](ctx, id)
}

func ToggleActiveUser(ctx context.Context, id int, isActive bool) (*User, error) {
	return ToggleActiveModel[User](ctx, id, isActive)
}
