package domain_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/lorrc/liveops/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestAddSuggestion_CapAndOrdering(t *testing.T) {
	var list []string
	for i := 1; i <= 21; i++ {
		list, _ = domain.AddSuggestion(list, fmt.Sprintf("value-%d", i))
	}

	assert.Len(t, list, domain.MaxSuggestions)
	assert.Equal(t, "value-21", list[0])
	assert.Equal(t, "value-2", list[len(list)-1])
	assert.NotContains(t, list, "value-1")
}

func TestAddSuggestion_CaseInsensitiveDedup(t *testing.T) {
	list, _ := domain.AddSuggestion(nil, "Acme")
	list, _ = domain.AddSuggestion(list, "Other")
	list, changed := domain.AddSuggestion(list, "acme")

	assert.True(t, changed)
	assert.Equal(t, []string{"acme", "Other"}, list)
}

func TestAddSuggestion_TrimsAndIgnoresBlank(t *testing.T) {
	list, changed := domain.AddSuggestion([]string{"a"}, "   ")
	assert.False(t, changed)
	assert.Equal(t, []string{"a"}, list)

	list, changed = domain.AddSuggestion(list, "  b  ")
	assert.True(t, changed)
	assert.Equal(t, []string{"b", "a"}, list)
}

func TestRemoveSuggestion(t *testing.T) {
	list := []string{"Acme", "acme", "Globex"}

	out, removed := domain.RemoveSuggestion(list, "acme")
	assert.True(t, removed)
	assert.Equal(t, []string{"Acme", "Globex"}, out)

	out, removed = domain.RemoveSuggestion(out, "missing")
	assert.False(t, removed)
	assert.Equal(t, []string{"Acme", "Globex"}, out)
}

func TestValidateFieldKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"valid", "company", nil},
		{"empty", "", domain.ErrFieldKeyRequired},
		{"whitespace", "  ", domain.ErrFieldKeyRequired},
		{"too long", strings.Repeat("k", domain.MaxFieldKeyLength+1), domain.ErrFieldKeyTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, domain.ValidateFieldKey(tt.key), tt.wantErr)
		})
	}
}

func TestFieldStorageKeys(t *testing.T) {
	assert.Equal(t, "liveops_field_company", domain.FieldValueKey("company"))
	assert.Equal(t, "liveops_suggestions_company", domain.FieldSuggestionsKey("company"))
}
