package record

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/smartcode"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("smartcode", func(fl validator.FieldLevel) bool {
		return smartcode.Validate(fl.Field().String()) == nil
	})
	return v
}

// Validate checks a payload's struct tags. The first failing field is reported as
// InvalidInput, or InvalidSmartCode when a smart code is malformed.
func Validate(payload any) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(apperr.KindInvalidInput, "invalid payload", err)
	}

	fe := verrs[0]
	if fe.Tag() == "smartcode" {
		if scErr := smartcode.Validate(fmt.Sprint(fe.Value())); scErr != nil {
			if e := apperr.As(scErr); e != nil {
				return e.WithField(fieldPath(fe))
			}
			return scErr
		}
	}
	return apperr.Invalid(fieldPath(fe), ruleMessage(fe)).WithDetail("rule", fe.Tag())
}

// fieldPath drops the root struct name: "Entity.entity_type" becomes "entity_type".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func ruleMessage(fe validator.FieldError) string {
	name := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", name, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", name, fe.Tag())
	}
}
