package httpapi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"voice-dialer/pkg/utils"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators installs the custom "phone" tag on gin's validator and reports
// field names by their JSON name. Call once before serving.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected validator engine")
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return utils.IsE164(fl.Field().String())
	})
}

// bindMessage turns a binding error into a short client-facing message.
func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid json"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "phone":
			parts = append(parts, fe.Field()+" must be an E.164 phone number")
		case "min":
			parts = append(parts, fmt.Sprintf("%s must have at least %s entries", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
