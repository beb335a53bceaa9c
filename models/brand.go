package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
)

type Brand struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId string    `gorm:"index;not null" json:"company_id"`
	Name      string    `gorm:"index;size:100;not null" json:"name"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBrand struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (input *NewBrand) validate(ctx context.Context, companyId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if id > 0 {
		if err := utils.ValidateResourceId[Brand](ctx, companyId, id); err != nil {
			return err
		}
	}
	return utils.ValidateUnique[Brand](ctx, companyId, "name", strings.TrimSpace(input.Name), id)
}

func CreateBrand(ctx context.Context, input *NewBrand) (*Brand, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	brand := Brand{
		CompanyId: companyId,
		Name:      strings.TrimSpace(input.Name),
		IsActive:  utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&brand).Error
	if err != nil {
		return nil, err
	}

	return &brand, nil
}

func GetBrand(ctx context.Context, id int) (*Brand, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	return utils.FetchModel[Brand](ctx, companyId, id)
}
