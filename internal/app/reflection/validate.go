package reflection

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/moodi-app/moodi/internal/domain"
)

// newValidator reports problems under JSON field names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check validates s and converts failures into a *domain.ValidationError.
func check(v *validator.Validate, subject string, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &domain.ValidationError{Subject: subject, Problems: []string{err.Error()}}
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describe(fe))
	}
	return &domain.ValidationError{Subject: subject, Problems: problems}
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Missing required field: %s", field)
	case "hexcolor":
		return fmt.Sprintf("%s must be a hex color, got %q", field, fe.Value())
	case "oneof":
		opts := "'" + strings.ReplaceAll(fe.Param(), " ", "', '") + "'"
		return fmt.Sprintf("%s must be one of %s, got '%v'", field, opts, fe.Value())
	case "gte", "lte":
		if field == "intensity_0_10" {
			return fmt.Sprintf("%s must be between 0 and 10, got %v", field, fe.Value())
		}
		return fmt.Sprintf("%s must be %s %s, got %v", field, fe.Tag(), fe.Param(), fe.Value())
	case "min", "max":
		switch val := fe.Value().(type) {
		case string:
			if fe.Tag() == "max" {
				return fmt.Sprintf("%s too long: %d chars (max %s)", field, utf8.RuneCountInString(val), fe.Param())
			}
			return fmt.Sprintf("%s too short: %d chars (min %s)", field, utf8.RuneCountInString(val), fe.Param())
		case []string:
			return fmt.Sprintf("%s must have %d-%d items, got %d", field, domain.MinTags, domain.MaxTags, len(val))
		}
	}
	return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
}

// sanitizer strips markup from free text and undoes the entity escaping the
// strict policy applies, leaving plain text.
type sanitizer struct {
	policy *bluemonday.Policy
}

func newSanitizer() sanitizer {
	return sanitizer{policy: bluemonday.StrictPolicy()}
}

func (s sanitizer) text(in string) string {
	if in == "" {
		return in
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(in)))
}

func (s sanitizer) payload(p domain.MoodPayload) domain.MoodPayload {
	p.ContextText = s.text(p.ContextText)
	p.GeoHint = s.text(p.GeoHint)
	return p
}

func (s sanitizer) artifact(a domain.Artifact) domain.Artifact {
	a.ReflectionText = s.text(a.ReflectionText)
	a.ActionSuggestion = s.text(a.ActionSuggestion)
	a.ShareCaption = s.text(a.ShareCaption)
	a.SoundtrackHint = s.text(a.SoundtrackHint)
	tags := make([]string, len(a.Tags))
	for i, t := range a.Tags {
		tags[i] = s.text(t)
	}
	a.Tags = tags
	return a
}
