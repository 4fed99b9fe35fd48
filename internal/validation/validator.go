package validation

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError is a single failed rule, keyed by the json field name.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

// Errors is returned by Validate when a struct fails its rules.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Msg
	}
	return strings.Join(msgs, "; ")
}

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	registerCustom(v)

	return &Validator{validate: v}
}

// Validate returns nil or an Errors value describing every failed field.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Msg: message(fe.Field(), fe.Tag(), fe.Param())})
	}
	return out
}

func message(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "rumorurl":
		return fmt.Sprintf("%s must be an absolute http(s) URL", field)
	case "profilename":
		return fmt.Sprintf("%s may contain only letters, digits, '-' and '_'", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}

func registerCustom(v *validator.Validate) {
	v.RegisterValidation("rumorurl", func(fl validator.FieldLevel) bool {
		return IsRumorURL(fl.Field().String())
	})
	v.RegisterValidation("profilename", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" || len(s) > 100 {
			return false
		}
		for _, r := range s {
			if !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
				return false
			}
		}
		return true
	})
}

// IsRumorURL accepts absolute http and https URLs with a host.
func IsRumorURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
