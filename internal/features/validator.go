// Package features validates raw building attributes into immutable records.
package features

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Raw is an undecoded feature payload. Numbers are json.Number when produced
// by Decode; float64 and Go integer types are also accepted.
type Raw map[string]any

// ErrNotObject is returned by Decode for payloads that are not a JSON object.
var ErrNotObject = errors.New("feature payload must be a JSON object")

// ValidationError reports the first constraint a payload violates.
type ValidationError struct {
	Field      string
	Constraint string
	Message    string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Decode parses a JSON object into a Raw payload keeping numbers exact.
func Decode(data []byte) (Raw, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw Raw
	if err := dec.Decode(&raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, ErrNotObject
		}
		return nil, err
	}
	if raw == nil {
		return nil, ErrNotObject
	}
	if dec.More() {
		return nil, errors.New("unexpected data after feature object")
	}
	return raw, nil
}

// UnknownFields returns the sorted keys of raw that are not feature fields.
func UnknownFields(raw Raw) []string {
	var unknown []string
	for name := range raw {
		if !IsKnownField(name) {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// Validator evaluates the constraint table against raw payloads.
type Validator struct {
	// Now supplies the clock used for the YearBuilt upper bound.
	Now func() time.Time
}

// NewValidator returns a validator using the wall clock.
func NewValidator() *Validator {
	return &Validator{Now: time.Now}
}

// Validate checks raw against every constraint in table order and returns the
// first violation as a *ValidationError. Unknown keys are ignored.
func (v *Validator) Validate(raw Raw) (Record, error) {
	now := time.Now
	if v != nil && v.Now != nil {
		now = v.Now
	}
	currentYear := float64(now().Year())

	rec := Record{
		numbers:      make(map[string]float64, len(Table)),
		categoricals: make(map[string]string, len(Table)),
	}
	for _, c := range Table {
		value, present := raw[c.Field]
		if !present || value == nil {
			if c.Required {
				return Record{}, violation(c.Field, ConstraintRequired, "field required")
			}
			continue
		}

		if c.Kind == KindString {
			s, err := checkString(c, value)
			if err != nil {
				return Record{}, err
			}
			rec.categoricals[c.Field] = s
			continue
		}

		n, err := checkNumber(c, value, currentYear)
		if err != nil {
			return Record{}, err
		}
		rec.numbers[c.Field] = n
	}
	return rec, nil
}

func checkString(c Constraint, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", violation(c.Field, ConstraintType, "must be a string")
	}
	s = strings.TrimSpace(s)
	length := utf8.RuneCountInString(s)
	if length < c.MinLen {
		if c.MinLen == 1 {
			return "", violation(c.Field, ConstraintMinLength, "must not be empty")
		}
		return "", violation(c.Field, ConstraintMinLength, fmt.Sprintf("must have at least %d characters", c.MinLen))
	}
	if c.MaxLen > 0 && length > c.MaxLen {
		return "", violation(c.Field, ConstraintMaxLength, fmt.Sprintf("must have at most %d characters", c.MaxLen))
	}
	return s, nil
}

func checkNumber(c Constraint, value any, currentYear float64) (float64, error) {
	n, ok := toFloat(value)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, violation(c.Field, ConstraintType, "must be a "+c.Kind.String())
	}
	if c.Kind == KindInteger && n != math.Trunc(n) {
		return 0, violation(c.Field, ConstraintType, "must be an integer")
	}

	if c.Min != nil {
		if c.ExclusiveMin && n <= *c.Min {
			return 0, violation(c.Field, ConstraintExclusiveMinimum, fmt.Sprintf("must be greater than %s", formatBound(*c.Min)))
		}
		if !c.ExclusiveMin && n < *c.Min {
			return 0, violation(c.Field, ConstraintMinimum, fmt.Sprintf("must be greater than or equal to %s", formatBound(*c.Min)))
		}
	}

	upper := c.Max
	if c.MaxCurrentYear {
		upper = &currentYear
	}
	if upper != nil && n > *upper {
		return 0, violation(c.Field, ConstraintMaximum, fmt.Sprintf("must be less than or equal to %s", formatBound(*upper)))
	}
	return n, nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func violation(field, constraint, message string) *ValidationError {
	return &ValidationError{Field: field, Constraint: constraint, Message: message}
}
