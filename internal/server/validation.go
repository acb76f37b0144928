package server

import (
	"errors"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
)

var registerOnce sync.Once

// registerValidators installs the custom binding tags used by request types.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("addon_units", validateAddonUnits)
	})
}

func validateAddonUnits(fl validator.FieldLevel) bool {
	units, ok := fl.Field().Interface().(pricingdomain.Units)
	if !ok {
		return false
	}
	return units.Value != nil
}

// bindError turns a binding failure into the validation envelope, naming the
// offending fields when the validator reports them.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		if errors.Is(err, pricingdomain.ErrInvalidAddonUnits) {
			return newValidationError("addon_units", pricingdomain.ErrInvalidAddonUnits.Error(), "invalid addon units")
		}
		return invalidRequestError()
	}

	out := &ValidationErrors{}
	for _, fe := range verrs {
		field := toSnake(fe.Field())
		code := "invalid_" + field
		message := "invalid value"
		switch fe.Tag() {
		case "required":
			message = "is required"
		case "addon_units":
			code = pricingdomain.ErrInvalidAddonUnits.Error()
			message = "addon units must be a number or a range map"
		}
		out.Errors = append(out.Errors, ValidationError{Field: field, Code: code, Message: message})
	}
	return out
}

func toSnake(s string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			if prevLower {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
			prevLower = false
		} else {
			prevLower = true
		}
		b.WriteRune(r)
	}
	return b.String()
}
