package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	playground "github.com/go-playground/validator/v10"
)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
	ValidateVar(field string, value interface{}, tag string) error
}

// FieldError is one failed rule, keyed by the field's json name.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error collects every failed rule of one validation.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var slotPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

var messages = map[string]string{
	"required": "field is required",
	"min":      "value is too small",
	"max":      "value is too large",
	"slot":     "must be a time of day as HH:MM",
}

type validator struct {
	v *playground.Validate
}

func New() Validator {
	v := playground.New()
	RegisterCustom(v)
	return &validator{v: v}
}

// RegisterCustom installs the json tag name function and the custom rules on
// v. gin's binding engine is configured with it as well.
func RegisterCustom(v *playground.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	// registration only fails for an empty tag
	_ = v.RegisterValidation("slot", func(fl playground.FieldLevel) bool {
		return slotPattern.MatchString(fl.Field().String())
	})
}

func (x *validator) Validate(obj interface{}) error {
	return translate(x.v.Struct(obj), "")
}

func (x *validator) ValidateVar(field string, value interface{}, tag string) error {
	return translate(x.v.Var(value, tag), field)
}

func translate(err error, field string) error {
	if err == nil {
		return nil
	}
	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{}
	for _, fe := range verrs {
		name := fe.Field()
		if field != "" {
			name = field
		}
		msg, ok := messages[fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed %q rule", fe.Tag())
		}
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (%s=%s)", msg, fe.Tag(), fe.Param())
		}
		out.Fields = append(out.Fields, FieldError{Field: name, Message: msg})
	}
	return out
}

// Translate converts errors produced by a playground validator, such as gin's
// binding engine, into an *Error. Other errors are returned unchanged.
func Translate(err error) error {
	return translate(err, "")
}
