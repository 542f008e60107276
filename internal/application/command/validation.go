// Package command contains write operations (CQRS - Commands).
package command

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/pkg/timeutil"
)

// Custom validation tags.
const (
	notBlankTag  = "notblank"
	timestampTag = "timestamp"
)

// Validator checks command structs and reports problems by JSON field name
// with English messages.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// NewValidator builds a validator with the default English translations
// and the custom tags used by the commands.
func NewValidator() *Validator {
	v := validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && strings.TrimSpace(s) != ""
	})
	_ = v.RegisterValidation(timestampTag, func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		_, err := timeutil.ParseTimestamp(s)
		return err == nil
	})

	// The default translations are already registered, so the register func is a noop.
	noop := func(ut.Translator) error { return nil }
	_ = v.RegisterTranslation(notBlankTag, trans, noop, func(_ ut.Translator, fe validator.FieldError) string {
		return fe.Field() + " cannot be blank"
	})
	_ = v.RegisterTranslation(timestampTag, trans, noop, func(_ ut.Translator, fe validator.FieldError) string {
		return fe.Field() + " must be an ISO 8601 date or timestamp"
	})

	return &Validator{validate: v, translator: trans}
}

// Struct validates s. Field failures come back as *shared.ValidationError
// keyed by JSON name; other failures are returned unchanged.
func (v *Validator) Struct(op string, s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	ve := shared.NewValidationError(op)
	for _, fe := range fieldErrs {
		ve.Add(fe.Field(), fe.Translate(v.translator))
	}
	return ve.OrNil()
}

// FlexInt accepts a JSON number or a numeric string ("4"), which is how
// older mobile clients send EPA ids and entrustment levels.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.New("expected an integer")
	}
	*f = FlexInt(n)
	return nil
}
