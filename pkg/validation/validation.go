// Package validation implements the step guards of the Gap Scan wizard.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/navarrastar/gapscan/pkg/i18n"
	"github.com/navarrastar/gapscan/pkg/models"
)

// Errors maps a JSON field name to a localized message. Only the first
// failing rule per field is kept.
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+e[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator checks step inputs and renders failures in the active language
type Validator struct {
	validate *validator.Validate
	catalog  *i18n.Catalog
}

// New creates a Validator with the form's custom rules registered
func New(catalog *i18n.Catalog) (*Validator, error) {
	if catalog == nil {
		return nil, errors.New("validation: catalog required")
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("challenge", func(fl validator.FieldLevel) bool {
		return models.IsChallengeOption(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("error registering challenge rule: %w", err)
	}

	return &Validator{validate: v, catalog: catalog}, nil
}

// Catalog returns the message catalog used for failures.
func (v *Validator) Catalog() *i18n.Catalog {
	return v.catalog
}

// Step1 applies the step 1 guard
func (v *Validator) Step1(in models.Step1Input, lang string) Errors {
	return v.check(in, lang)
}

// Step2 applies the step 2 guard
func (v *Validator) Step2(in models.Step2Input, lang string) Errors {
	return v.check(in, lang)
}

// Step3 applies the step 3 guard
func (v *Validator) Step3(in models.Step3Input, lang string) Errors {
	return v.check(in, lang)
}

// Through applies the guards of steps 1..step to a draft.
func (v *Validator) Through(d models.FormDraft, step int, lang string) Errors {
	all := Errors{}
	if step >= 1 {
		merge(all, v.Step1(d.Step1(), lang))
	}
	if step >= 2 {
		merge(all, v.Step2(d.Step2(), lang))
	}
	if step >= 3 {
		merge(all, v.Step3(d.Step3(), lang))
	}
	if len(all) == 0 {
		return nil
	}
	return all
}

// Complete applies every guard to a draft about to be submitted
func (v *Validator) Complete(d models.FormDraft, lang string) Errors {
	return v.Through(d, 3, lang)
}

func (v *Validator) check(in any, lang string) Errors {
	err := v.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return Errors{"_": err.Error()}
	}

	out := Errors{}
	for _, fe := range fieldErrs {
		field := fieldName(fe)
		if _, seen := out[field]; seen {
			continue
		}
		out[field] = v.message(field, fe.Tag(), lang)
	}
	return out
}

func (v *Validator) message(field, tag, lang string) string {
	key := field + "." + tag
	if v.catalog.Has(lang, key) {
		return v.catalog.T(lang, key)
	}
	return v.catalog.T(lang, i18n.KeyInvalidField, field)
}

// fieldName strips slice indexes so challenges[2] reports as challenges.
func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return name
}

func merge(dst, src Errors) {
	for k, msg := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = msg
		}
	}
}
