// Package validate evaluates declarative field schemas against decoded JSON
// bodies. A schema either yields the coerced values or the full list of
// per-field errors, which handlers surface verbatim to the client under the
// "details" key of a 400 response.
package validate

import (
	"fmt"
	"net/mail"
	"net/url"
	"sort"
	"strings"
)

// Kind is the expected JSON type of a field.
type Kind int

const (
	String Kind = iota
	Number
)

// Rule describes the constraints applied to a single field.
type Rule struct {
	Required bool
	Kind     Kind
	URL      bool
	Email    bool
	MaxLen   int
	Min      *float64
	Max      *float64
}

// Schema maps field names to their rules.
type Schema map[string]Rule

// FieldError is a single validation failure, shaped for the client contract.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result carries the coerced values of a successfully validated body.
type Result struct {
	values map[string]any
}

// String returns the coerced string value of a field, or "" when absent.
func (r Result) String(field string) string {
	v, _ := r.values[field].(string)
	return v
}

// Number returns the coerced numeric value of a field, or 0 when absent.
func (r Result) Number(field string) float64 {
	v, _ := r.values[field].(float64)
	return v
}

// Has reports whether the field was present in the input.
func (r Result) Has(field string) bool {
	_, ok := r.values[field]
	return ok
}

// Apply checks raw input against the schema. It returns either the coerced
// values or every field error found; it never returns both.
func (s Schema) Apply(raw map[string]any) (Result, []FieldError) {
	var errs []FieldError
	values := make(map[string]any, len(s))

	// Deterministic error order keeps responses stable for clients and tests.
	fields := make([]string, 0, len(s))
	for field := range s {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		rule := s[field]
		value, present := raw[field]
		if !present || value == nil {
			if rule.Required {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s is required", field)})
			}
			continue
		}
		switch rule.Kind {
		case String:
			str, ok := value.(string)
			if !ok {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s must be a string", field)})
				continue
			}
			str = strings.TrimSpace(str)
			if rule.Required && str == "" {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s is required", field)})
				continue
			}
			if rule.MaxLen > 0 && len(str) > rule.MaxLen {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s must be at most %d characters", field, rule.MaxLen)})
				continue
			}
			if rule.URL && str != "" && !isURL(str) {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s must be a valid URL", field)})
				continue
			}
			if rule.Email && str != "" && !isEmail(str) {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s must be a valid email address", field)})
				continue
			}
			values[field] = str
		case Number:
			num, ok := value.(float64)
			if !ok {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s must be a number", field)})
				continue
			}
			if rule.Min != nil && num < *rule.Min {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s must be at least %g", field, *rule.Min)})
				continue
			}
			if rule.Max != nil && num > *rule.Max {
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s must be at most %g", field, *rule.Max)})
				continue
			}
			values[field] = num
		}
	}
	if len(errs) > 0 {
		return Result{}, errs
	}
	return Result{values: values}, nil
}

// Float is a convenience for building Min/Max bounds inline.
func Float(v float64) *float64 {
	return &v
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
