package user

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/lms-portal/core"
)

var (
	roleTag  = "role"
	roleText = "invalid role"
)

// InitValidators registers the user validation tags.
func InitValidators(v *core.Validator) {
	v.RegisterValidation(roleTag, roleText, roleValidation)
}

func roleValidation(fl validator.FieldLevel) bool {
	return Role(fl.Field().String()).Valid()
}
