package extract

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Request is the caller-facing extraction input.
type Request struct {
	Text              string       `json:"text" validate:"required"`
	Entities          []EntityType `json:"entities" validate:"required,min=1,dive"`
	Threshold         *float64     `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	IncludeConfidence *bool        `json:"include_confidence,omitempty"`
	IncludeSpans      *bool        `json:"include_spans,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate reports every field problem in one ErrInvalidSchema error.
func (r Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidSchema, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Request.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must have at least %s item", field, fe.Param())
	case "gte", "lte":
		return field + " must be between 0 and 1"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// Options applies the defaults: threshold 0.5, confidence and spans on.
func (r Request) Options() Options {
	opts := Options{Threshold: DefaultThreshold, IncludeConfidence: true, IncludeSpans: true}
	if r.Threshold != nil {
		opts.Threshold = *r.Threshold
	}
	if r.IncludeConfidence != nil {
		opts.IncludeConfidence = *r.IncludeConfidence
	}
	if r.IncludeSpans != nil {
		opts.IncludeSpans = *r.IncludeSpans
	}
	return opts
}
