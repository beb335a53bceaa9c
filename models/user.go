package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
)

type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	CompanyId    string    `gorm:"index;not null" json:"company_id"`
	Email        string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:50;not null;default:operator" json:"role"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=255"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = "operator"
	}

	user := User{
		CompanyId:    companyId,
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Name:         input.Name,
		PasswordHash: string(hashed),
		Role:         role,
		IsActive:     utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}

	return &user, nil
}

// AuthenticateUser verifies credentials and returns a signed token.
func AuthenticateUser(ctx context.Context, email, password string) (string, *User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !utils.IsValidEmail(email) {
		return "", nil, errors.New("invalid credentials")
	}

	var user User
	err := config.GetDB().WithContext(ctx).
		Where("email = ? AND is_active = ?", email, true).
		First(&user).Error
	if err != nil {
		return "", nil, utils.ErrorRecordNotFound
	}
	if err := utils.ComparePassword(user.PasswordHash, password); err != nil {
		return "", nil, errors.New("invalid credentials")
	}
	token, err := utils.JwtGenerate(user.ID, user.CompanyId, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}
