// Package validator wraps go-playground/validator with project-specific types.
package validator

import (
	"fmt"
	"html"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// txrefPattern matches the transaction reference shape, e.g.
// TXN-20260828-0042, including the 8-hex-char collision fallback suffix.
var txrefPattern = regexp.MustCompile(`^TXN-\d{8}-(\d{4}|[0-9a-f]{8})$`)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := &Validator{
		validate: validator.New(),
	}
	v.registerCustomValidations()
	return v
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			parts := make([]string, 0, len(validationErrors))
			for _, e := range validationErrors {
				parts = append(parts, fmt.Sprintf("%s fails '%s'", e.Field(), e.Tag()))
			}
			return fmt.Errorf("validation failed: %s", strings.Join(parts, "; "))
		}
		return err
	}
	return nil
}

func (v *Validator) registerCustomValidations() {
	// Register decimal.Decimal to be validated as float64 for gt/lt checks
	v.validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if val, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := val.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.validate.RegisterValidation("txref", func(fl validator.FieldLevel) bool {
		return txrefPattern.MatchString(fl.Field().String())
	})
}

// Sanitize cleans string input to prevent XSS attacks
func Sanitize(input string) string {
	return html.EscapeString(strings.TrimSpace(input))
}
