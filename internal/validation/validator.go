// Package validation wraps go-playground/validator with one shared instance
// and turns its errors into apperror.ValidationFailed.
//
// Request structs declare their rules in `validate` tags:
//
//	type createFolderRequest struct {
//	    Name  string `json:"name" validate:"notblank,max=100"`
//	    Color string `json:"color" validate:"omitempty,hexcolor"`
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/snippet-vault/internal/apperror"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the singleton. Struct metadata is cached inside it, so
// building one per request would throw that cache away.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report JSON names ("full_name") instead of Go names ("FullName").
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})

		// notblank: required, and not just whitespace.
		_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			f := fl.Field()
			if f.Kind() != reflect.String {
				return !f.IsZero()
			}
			return strings.TrimSpace(f.String()) != ""
		})
	})
	return validate
}

// ValidateStruct returns nil or an *apperror.AppError for the first failing
// field. The handler layer maps it to 400.
func ValidateStruct(s any) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.ValidationFailed("", err.Error())
	}

	fe := fieldErrs[0]
	return apperror.ValidationFailed(fe.Field(), translate(fe))
}

var messages = map[string]string{
	"required": "%s is required",
	"notblank": "%s is required",
	"email":    "%s must be a valid email address",
	"url":      "%s must be a valid URL",
	"http_url": "%s must be a valid http(s) URL",
	"hexcolor": "%s must be a hex color like #aabbcc",
}

func translate(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()

	if tmpl, ok := messages[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field)
	}

	unit := ""
	switch fe.Kind() {
	case reflect.String:
		unit = " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		unit = " items"
	}

	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, param, unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, param, unit)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "dive":
		return fmt.Sprintf("%s contains an invalid entry", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
