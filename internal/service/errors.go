package service

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/apperrors"
)

// lookupError maps a repository read failure to a NotFound or Upstream error.
func lookupError(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(entity)
	}
	return apperrors.Upstream("failed to load "+entity, err)
}

// storeError wraps a repository write failure.
func storeError(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound("record")
	}
	return apperrors.Upstream("failed to "+action, err)
}

// validationError converts validator output into a ValidationError.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return apperrors.Validation("field %s failed on %s", first.Field(), first.Tag())
	}
	return apperrors.Validation("%s", err.Error())
}

func errorsIs(err, target error) bool {
	return errors.Is(err, target)
}
