package request

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("invalid request")

// ValidationError wraps the field errors of a malformed request.
// It is terminal: never retried and never counted against a backend.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

var (
	localeRe  = regexp.MustCompile(`^[a-z]{2,3}(-[a-z0-9]{2,8})*$`)
	ageRe     = regexp.MustCompile(`^\d{1,2}(-\d{1,2}|\+)?$`)
	featureRe = regexp.MustCompile(`^[a-z0-9_.:-]{1,64}$`)
)

// Validate checks normalized params.
func (p Params) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Capability,
			validation.Required,
			validation.Length(1, 64),
		),
		validation.Field(&p.Topic,
			validation.Required,
			validation.Length(1, 512),
		),
		validation.Field(&p.Locale,
			validation.Required,
			validation.Match(localeRe).Error("must be a language tag such as en or pt-br"),
		),
		validation.Field(&p.AgeBracket,
			validation.Match(ageRe).Error("must look like 6-8, 12 or 16+"),
		),
		validation.Field(&p.ContentClass,
			validation.Length(0, 64),
		),
		validation.Field(&p.Features,
			validation.Each(validation.Match(featureRe)),
		),
	)
	if err != nil {
		return &ValidationError{Err: err}
	}

	return nil
}
