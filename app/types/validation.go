package types

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
)

var validate = newValidator()

func newValidator() *validatorv10.Validate {
	v := validatorv10.New(validatorv10.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("payment_method", func(fl validatorv10.FieldLevel) bool {
		_, ok := entity.ParsePaymentMethod(fl.Field().String())
		return ok
	})
	return v
}

// validateStruct reports the first failing field as a client-facing message.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrors validatorv10.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return err
	}
	fe := fieldErrors[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "max":
		return fmt.Errorf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "payment_method":
		return fmt.Errorf("%s must be one of %s", fe.Field(), strings.Join(paymentMethodNames(), ", "))
	default:
		return fmt.Errorf("%s is invalid", fe.Field())
	}
}

func paymentMethodNames() []string {
	var names []string
	for _, p := range []entity.Provider{entity.ProviderInvoice, entity.ProviderApple, entity.ProviderGoogle} {
		for _, m := range p.Methods() {
			names = append(names, string(m))
		}
	}
	return names
}
