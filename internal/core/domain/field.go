package domain

import (
	"errors"
	"strings"
)

const (
	MaxSuggestions    = 20
	MaxFieldKeyLength = 128

	FieldValuePrefix       = "liveops_field_"
	FieldSuggestionsPrefix = "liveops_suggestions_"
)

var (
	ErrFieldKeyRequired = errors.New("field key is required")
	ErrFieldKeyTooLong  = errors.New("field key must be 128 characters or less")
)

// FieldState is the observable state of a persisted input field.
type FieldState struct {
	Key         string   `json:"key"`
	Value       string   `json:"value"`
	Suggestions []string `json:"suggestions"`
}

// ValidateFieldKey checks that a field key can be used as a storage suffix.
func ValidateFieldKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrFieldKeyRequired
	}
	if len(key) > MaxFieldKeyLength {
		return ErrFieldKeyTooLong
	}
	return nil
}

func FieldValueKey(key string) string {
	return FieldValuePrefix + key
}

func FieldSuggestionsKey(key string) string {
	return FieldSuggestionsPrefix + key
}

// AddSuggestion places value at the front of list, dropping any
// case-insensitive duplicate and keeping at most MaxSuggestions entries.
// Blank input leaves list unchanged and returns false.
func AddSuggestion(list []string, value string) ([]string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return list, false
	}

	out := make([]string, 0, len(list)+1)
	out = append(out, trimmed)
	for _, s := range list {
		if strings.EqualFold(s, trimmed) {
			continue
		}
		out = append(out, s)
	}
	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out, true
}

// RemoveSuggestion removes exact matches of value from list.
func RemoveSuggestion(list []string, value string) ([]string, bool) {
	out := make([]string, 0, len(list))
	removed := false
	for _, s := range list {
		if s == value {
			removed = true
			continue
		}
		out = append(out, s)
	}
	if !removed {
		return list, false
	}
	return out, true
}
