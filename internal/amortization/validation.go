package amortization

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/segyhp/collections-engine/internal/domain"
	customError "github.com/segyhp/collections-engine/pkg/errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = NewValidator()

// NewValidator returns a validator with the decimal and enum tags used by
// loan terms and request bodies registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	// Decimals are validated through their string form.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("decimal_gt0", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive()
	})
	_ = v.RegisterValidation("decimal_gte0", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && !d.IsNegative()
	})
	_ = v.RegisterValidation("frequency", func(fl validator.FieldLevel) bool {
		return domain.Frequency(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("interest_type", func(fl validator.FieldLevel) bool {
		return domain.InterestType(fl.Field().String()).Valid()
	})
	return v
}

var tagMessages = map[string]string{
	"decimal_gt0":   "must be greater than zero",
	"decimal_gte0":  "must not be negative",
	"gt":            "must be greater than zero",
	"required":      "is required",
	"frequency":     "must be one of DAILY, WEEKLY, BIWEEKLY, MONTHLY",
	"interest_type": "must be one of FLAT_TOTAL, PERIODIC",
}

// translate converts validator output into the domain validation error.
func translate(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return customError.WrapValidation("", err.Error())
	}
	fe := fieldErrs[0]
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		msg = fmt.Sprintf("failed %q check", fe.Tag())
	}
	return customError.WrapValidation(fe.Field(), msg)
}

// ValidateStruct validates any request body with the shared validator.
func ValidateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return translate(err)
	}
	return nil
}
