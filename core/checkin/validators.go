package checkin

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/pavulla/kiosk/core"
)

var (
	outcomeTag  = "outcome"
	outcomeText = "invalid outcome"
)

// InitValidators registers the check-in validators & translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(outcomeTag, outcomeValidation)
	core.RegisterCustomTranslation(validate, translator, outcomeTag, outcomeText)
}

func outcomeValidation(fl validator.FieldLevel) bool {
	val := OutcomeKind(fl.Field().String())
	for _, o := range AllOutcomes {
		if o == val {
			return true
		}
	}
	return false
}

func (f *QueryFilter) Validate(validate *validator.Validate) error {
	f.GuestID = core.CleanString(f.GuestID)
	return validate.Struct(f)
}
