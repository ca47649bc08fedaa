package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lorrc/liveops/internal/adapters/secondary/memory"
	"github.com/lorrc/liveops/internal/core/domain"
	apperrors "github.com/lorrc/liveops/internal/core/errors"
	"github.com/lorrc/liveops/internal/core/mocks"
	"github.com/lorrc/liveops/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFieldService_SetValuePersists(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKeyValueStore()
	svc := services.NewFieldService(store, discardLogger())

	state, err := svc.SetValue(ctx, "company", "Acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme", state.Value)

	stored, err := store.Get(ctx, "liveops_field_company")
	require.NoError(t, err)
	assert.Equal(t, "Acme", stored)

	_, err = svc.SetValue(ctx, "company", "")
	require.NoError(t, err)
	_, err = store.Get(ctx, "liveops_field_company")
	assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)
}

func TestFieldService_LoadsFromStorage(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKeyValueStore()
	require.NoError(t, store.Set(ctx, "liveops_field_site", "North"))
	require.NoError(t, store.Set(ctx, "liveops_suggestions_site", `["North","South"]`))

	svc := services.NewFieldService(store, discardLogger())
	state, err := svc.State(ctx, "site")
	require.NoError(t, err)

	assert.Equal(t, "North", state.Value)
	assert.Equal(t, []string{"North", "South"}, state.Suggestions)
}

func TestFieldService_SuggestionCapAndOrdering(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKeyValueStore()
	svc := services.NewFieldService(store, discardLogger())

	var state domain.FieldState
	for i := 1; i <= 21; i++ {
		var err error
		state, err = svc.AddToSuggestions(ctx, "contact", fmt.Sprintf("person-%d", i))
		require.NoError(t, err)
	}

	assert.Len(t, state.Suggestions, 20)
	assert.Equal(t, "person-21", state.Suggestions[0])
	assert.NotContains(t, state.Suggestions, "person-1")

	reloaded := services.NewFieldService(store, discardLogger())
	again, err := reloaded.State(ctx, "contact")
	require.NoError(t, err)
	assert.Equal(t, state.Suggestions, again.Suggestions)
}

func TestFieldService_SuggestionDedup(t *testing.T) {
	ctx := context.Background()
	svc := services.NewFieldService(memory.NewKeyValueStore(), discardLogger())

	_, err := svc.AddToSuggestions(ctx, "company", "Acme")
	require.NoError(t, err)
	state, err := svc.AddToSuggestions(ctx, "company", "acme")
	require.NoError(t, err)

	assert.Equal(t, []string{"acme"}, state.Suggestions)
}

func TestFieldService_CommitAndClear(t *testing.T) {
	ctx := context.Background()
	svc := services.NewFieldService(memory.NewKeyValueStore(), discardLogger())

	_, err := svc.SetValue(ctx, "company", "  Globex ")
	require.NoError(t, err)
	state, err := svc.Commit(ctx, "company")
	require.NoError(t, err)
	assert.Equal(t, []string{"Globex"}, state.Suggestions)

	state, err = svc.RemoveSuggestion(ctx, "company", "Globex")
	require.NoError(t, err)
	assert.Empty(t, state.Suggestions)

	state, err = svc.ClearValue(ctx, "company")
	require.NoError(t, err)
	assert.Empty(t, state.Value)
}

func TestFieldService_SameFieldPerKey(t *testing.T) {
	svc := services.NewFieldService(memory.NewKeyValueStore(), discardLogger())

	a, err := svc.Field("company")
	require.NoError(t, err)
	b, err := svc.Field("company")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = svc.Field("")
	assert.ErrorIs(t, err, domain.ErrFieldKeyRequired)
}

func TestFieldService_EmptyFieldsAreNotRetained(t *testing.T) {
	ctx := context.Background()
	svc := services.NewFieldService(memory.NewKeyValueStore(), discardLogger())

	for i := 0; i < 50; i++ {
		_, err := svc.State(ctx, fmt.Sprintf("scratch-%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 0, svc.CachedFields())

	_, err := svc.SetValue(ctx, "company", "Acme")
	require.NoError(t, err)
	assert.Equal(t, 1, svc.CachedFields())

	_, err = svc.ClearValue(ctx, "company")
	require.NoError(t, err)
	assert.Equal(t, 0, svc.CachedFields())
}

func TestFieldService_StorageUnavailableDegrades(t *testing.T) {
	ctx := context.Background()
	unavailable := errors.New("quota exceeded")

	store := mocks.NewMockKeyValueStore()
	store.On("Get", mock.Anything, mock.Anything).Return("", unavailable)
	store.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(unavailable)
	store.On("Delete", mock.Anything, mock.Anything).Return(unavailable)

	svc := services.NewFieldService(store, discardLogger())

	state, err := svc.SetValue(ctx, "company", "Acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme", state.Value)

	state, err = svc.AddToSuggestions(ctx, "company", "Acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme"}, state.Suggestions)

	state, err = svc.ClearValue(ctx, "company")
	require.NoError(t, err)
	assert.Empty(t, state.Value)
	assert.Equal(t, []string{"Acme"}, state.Suggestions)
}

func TestStoredCredential(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKeyValueStore()
	cred := services.NewStoredCredential(store)

	token, err := cred.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.Set(ctx, "auth_token", "secret"))
	token, err = cred.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret", token)
}
