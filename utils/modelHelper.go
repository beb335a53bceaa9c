package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/channels_backend/config"
)

/* DB fetching */

// fetch model from db
// (ctx's company_id is used in query's WHERE, may return RecordNotFound)
func FetchModel[T any](ctx context.Context, companyId string, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

// count rows of model matching cond
// (ctx's company_id is used in query's WHERE)
func ResourceCountWhere[T any](ctx context.Context, companyId string, cond string, values ...interface{}) (int64, error) {
	db := config.GetDB()
	var model T
	var count int64
	err := db.WithContext(ctx).Model(&model).
		Where("company_id = ?", companyId).
		Where(cond, values...).
		Count(&count).Error
	return count, err
}
