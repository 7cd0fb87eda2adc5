package memory

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

const (
	DefaultMaxTextBytes = 5000
	DefaultMaxValues    = 50

	maxUserIDBytes = 100
	maxKeyBytes    = 128
)

var (
	userIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	keyRe    = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)
)

// Limits bounds what a single call may write. It is the sanitization
// boundary shared by the store and the tool layer.
type Limits struct {
	MaxTextBytes int
	MaxValues    int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxTextBytes: DefaultMaxTextBytes, MaxValues: DefaultMaxValues}
}

func (l Limits) withDefaults() Limits {
	if l.MaxTextBytes <= 0 {
		l.MaxTextBytes = DefaultMaxTextBytes
	}
	if l.MaxValues <= 0 {
		l.MaxValues = DefaultMaxValues
	}
	return l
}

// UserID trims and checks a user id. Only letters, digits, '_' and '-'
// are accepted so ids can never carry path or markup syntax.
func (l Limits) UserID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", validationErrorf("user_id is required")
	}
	if len(id) > maxUserIDBytes {
		return "", validationErrorf("user_id exceeds %d bytes", maxUserIDBytes)
	}
	if !userIDRe.MatchString(id) {
		return "", validationErrorf("user_id may only contain letters, digits, '_' and '-'")
	}
	return id, nil
}

// Key checks a note id or preference key.
func (l Limits) Key(field, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", validationErrorf("%s is required", field)
	}
	if len(key) > maxKeyBytes {
		return "", validationErrorf("%s exceeds %d bytes", field, maxKeyBytes)
	}
	if key == "." || key == ".." || !keyRe.MatchString(key) {
		return "", validationErrorf("%s may only contain letters, digits, '_', '-', '.' and ':'", field)
	}
	return key, nil
}

// Text trims free text and rejects control characters other than
// newline and tab.
func (l Limits) Text(field, text string) (string, error) {
	l = l.withDefaults()
	text = strings.TrimSpace(text)
	if text == "" {
		return "", validationErrorf("%s must not be empty", field)
	}
	if len(text) > l.MaxTextBytes {
		return "", validationErrorf("%s exceeds %d bytes", field, l.MaxTextBytes)
	}
	for _, r := range text {
		if r == '\n' || r == '\t' {
			continue
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return "", validationErrorf("%s contains control or invalid characters", field)
		}
	}
	return text, nil
}

// Preference returns a trimmed copy of p, or a validation error.
func (l Limits) Preference(p Preference) (Preference, error) {
	l = l.withDefaults()
	var err error
	if p.Key, err = l.Key("key", p.Key); err != nil {
		return Preference{}, err
	}
	if p.Value != "" {
		if p.Value, err = l.Text("value", p.Value); err != nil {
			return Preference{}, err
		}
	}
	if len(p.Values) > l.MaxValues {
		return Preference{}, validationErrorf("values holds more than %d entries", l.MaxValues)
	}
	if len(p.Values) > 0 {
		values := make([]string, len(p.Values))
		for i, v := range p.Values {
			if values[i], err = l.Text("values", v); err != nil {
				return Preference{}, err
			}
		}
		p.Values = values
	}
	for _, bound := range []*float64{p.MinValue, p.MaxValue} {
		if bound != nil && (math.IsNaN(*bound) || math.IsInf(*bound, 0)) {
			return Preference{}, validationErrorf("min_value and max_value must be finite numbers")
		}
	}
	if p.MinValue != nil && p.MaxValue != nil && *p.MinValue > *p.MaxValue {
		return Preference{}, validationErrorf("min_value must not exceed max_value")
	}
	if p.Description != "" {
		if p.Description, err = l.Text("description", p.Description); err != nil {
			return Preference{}, err
		}
	}
	if p.Value == "" && len(p.Values) == 0 && p.MinValue == nil && p.MaxValue == nil {
		return Preference{}, validationErrorf("preference %q needs a value, values, min_value or max_value", p.Key)
	}
	return p, nil
}
