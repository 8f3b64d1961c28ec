package feed

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/huangsam/macindex/schema"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// checkStruct runs tag validation and folds field errors into one
// configuration error.
func checkStruct(what string, v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %s: %w", schema.ErrConfig, what, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return fmt.Errorf("%w: %s: %s", schema.ErrConfig, what, strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Namespace(), fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s must be %s %s", fe.Namespace(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
	}
}
