package utils

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs validator tags on an input struct and flattens the
// result to field -> tag so handlers can return it as JSON directly.
func ValidateStruct(input interface{}) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return fmt.Errorf("validation failed: %v", ProcessValidationErrors(verrs))
	}
	return err
}

// check if id exists, using ctx's company_id in WHERE, returns RecordNotFound error
func ValidateResourceId[T any](ctx context.Context, companyId string, id interface{}) error {

	count, err := ResourceCountWhere[T](ctx, companyId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

// check no other row of T has field = value (id = 0 for create)
func ValidateUnique[T any](ctx context.Context, companyId string, field string, value interface{}, id int) error {

	cond := fmt.Sprintf("%s = ? AND id != ?", field)
	count, err := ResourceCountWhere[T](ctx, companyId, cond, value, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%s already exists", field)
	}
	return nil
}
