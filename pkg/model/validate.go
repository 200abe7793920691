package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// fields is shared by every struct Validate method. validator.Validate
// caches struct metadata and is safe for concurrent use.
var fields = validator.New(validator.WithRequiredStructEnabled())

func init() {
	fields.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
}

// checkFields validates struct tags and wraps the first failure in sentinel.
func checkFields(v any, sentinel error) error {
	err := fields.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", sentinel, fe.Field())
	case "max":
		return fmt.Errorf("%w: %s must not exceed %s characters", sentinel, fe.Field(), fe.Param())
	case "gt":
		return fmt.Errorf("%w: %s must be set", sentinel, fe.Field())
	default:
		return fmt.Errorf("%w: %s failed %q", sentinel, fe.Field(), fe.Tag())
	}
}
