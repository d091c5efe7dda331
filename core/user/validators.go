package user

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/pavulla/kiosk/core"
)

var (
	guestRoleTag  = "guestrole"
	guestRoleText = "invalid role"
)

// InitValidators registers the user validators & translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(guestRoleTag, guestRoleValidation)
	core.RegisterCustomTranslation(validate, translator, guestRoleTag, guestRoleText)
}

func guestRoleValidation(fl validator.FieldLevel) bool {
	return IsValidRole(core.CleanString(fl.Field().String(), true /* lower */))
}

// Validate normalizes and validates a Guest built from token claims.
func (g *Guest) Validate(validate *validator.Validate) error {
	g.ID = core.CleanString(g.ID)
	g.Role = g.EffectiveRole()
	return validate.Struct(g)
}
