package middleware

import (
	"github.com/gin-gonic/gin/binding"
	playground "github.com/go-playground/validator/v10"

	"github.com/jwalitptl/medalarm/pkg/validator"
)

// RegisterBindingValidators installs the json field names and custom rules
// on gin's binding engine so request binding reports the same field names
// as service-level validation.
func RegisterBindingValidators() {
	if v, ok := binding.Validator.Engine().(*playground.Validate); ok {
		validator.RegisterCustom(v)
	}
}
