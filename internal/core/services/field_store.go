package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/lorrc/liveops/internal/core/domain"
	apperrors "github.com/lorrc/liveops/internal/core/errors"
	"github.com/lorrc/liveops/internal/core/ports"
)

// PersistedField is one operator input with its recently used values.
// Storage failures are logged and the field keeps working from memory.
type PersistedField struct {
	key    string
	store  ports.KeyValueStore
	logger *slog.Logger

	mu          sync.Mutex
	loaded      bool
	value       string
	suggestions []string
}

func newPersistedField(key string, store ports.KeyValueStore, logger *slog.Logger) *PersistedField {
	return &PersistedField{
		key:    key,
		store:  store,
		logger: logger.With("field", key),
	}
}

// loadLocked reads durable state on first use. Must be called with mu held.
func (f *PersistedField) loadLocked(ctx context.Context) {
	if f.loaded {
		return
	}
	f.loaded = true

	value, err := f.store.Get(ctx, domain.FieldValueKey(f.key))
	switch {
	case err == nil:
		f.value = value
	case !errors.Is(err, apperrors.ErrKeyNotFound):
		f.logger.Warn("field storage unavailable, using memory", "error", err)
	}

	raw, err := f.store.Get(ctx, domain.FieldSuggestionsKey(f.key))
	switch {
	case err == nil:
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			f.logger.Warn("discarding corrupt suggestion list", "error", err)
			return
		}
		if len(list) > domain.MaxSuggestions {
			list = list[:domain.MaxSuggestions]
		}
		f.suggestions = list
	case !errors.Is(err, apperrors.ErrKeyNotFound):
		f.logger.Warn("field storage unavailable, using memory", "error", err)
	}
}

// State returns the current value and suggestions.
func (f *PersistedField) State(ctx context.Context) domain.FieldState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadLocked(ctx)
	return f.stateLocked()
}

func (f *PersistedField) stateLocked() domain.FieldState {
	suggestions := make([]string, len(f.suggestions))
	copy(suggestions, f.suggestions)
	return domain.FieldState{Key: f.key, Value: f.value, Suggestions: suggestions}
}

// SetValue updates the value and persists it when it changed. An empty value
// removes the durable entry.
func (f *PersistedField) SetValue(ctx context.Context, value string) domain.FieldState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadLocked(ctx)

	if value == f.value {
		return f.stateLocked()
	}
	f.value = value

	if value == "" {
		f.deleteKey(ctx, domain.FieldValueKey(f.key))
	} else {
		f.setKey(ctx, domain.FieldValueKey(f.key), value)
	}
	return f.stateLocked()
}

// AddToSuggestions records value as the most recently used entry.
func (f *PersistedField) AddToSuggestions(ctx context.Context, value string) domain.FieldState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadLocked(ctx)

	f.addLocked(ctx, value)
	return f.stateLocked()
}

func (f *PersistedField) addLocked(ctx context.Context, value string) {
	list, changed := domain.AddSuggestion(f.suggestions, value)
	if changed {
		f.suggestions = list
		f.persistSuggestionsLocked(ctx)
	}
}

// RemoveSuggestion removes an exact match from the suggestion list.
func (f *PersistedField) RemoveSuggestion(ctx context.Context, value string) domain.FieldState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadLocked(ctx)

	list, changed := domain.RemoveSuggestion(f.suggestions, value)
	if changed {
		f.suggestions = list
		f.persistSuggestionsLocked(ctx)
	}
	return f.stateLocked()
}

// Commit adds the current value to the suggestions, as when the input
// loses focus.
func (f *PersistedField) Commit(ctx context.Context) domain.FieldState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadLocked(ctx)

	f.addLocked(ctx, f.value)
	return f.stateLocked()
}

// ClearValue resets the value and deletes its durable entry.
func (f *PersistedField) ClearValue(ctx context.Context) domain.FieldState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadLocked(ctx)

	f.value = ""
	f.deleteKey(ctx, domain.FieldValueKey(f.key))
	return f.stateLocked()
}

// empty reports whether the field holds neither a value nor suggestions.
func (f *PersistedField) empty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value == "" && len(f.suggestions) == 0
}

func (f *PersistedField) persistSuggestionsLocked(ctx context.Context) {
	raw, err := json.Marshal(f.suggestions)
	if err != nil {
		f.logger.Warn("could not encode suggestions", "error", err)
		return
	}
	f.setKey(ctx, domain.FieldSuggestionsKey(f.key), string(raw))
}

func (f *PersistedField) setKey(ctx context.Context, key, value string) {
	if err := f.store.Set(ctx, key, value); err != nil {
		f.logger.Warn("field storage write failed, keeping value in memory", "key", key, "error", err)
	}
}

func (f *PersistedField) deleteKey(ctx context.Context, key string) {
	if err := f.store.Delete(ctx, key); err != nil && !errors.Is(err, apperrors.ErrKeyNotFound) {
		f.logger.Warn("field storage delete failed", "key", key, "error", err)
	}
}

// FieldService hands out one PersistedField per key for the process.
// Fields left empty by an operation are dropped from the cache and
// reloaded from storage on next use.
type FieldService struct {
	store  ports.KeyValueStore
	logger *slog.Logger

	mu     sync.Mutex
	fields map[string]*PersistedField
}

var _ ports.FieldStore = (*FieldService)(nil)

// NewFieldService creates a field service over store.
func NewFieldService(store ports.KeyValueStore, logger *slog.Logger) *FieldService {
	return &FieldService{
		store:  store,
		logger: logger.With("component", "field_store"),
		fields: make(map[string]*PersistedField),
	}
}

// Field returns the shared field for key.
func (s *FieldService) Field(key string) (*PersistedField, error) {
	if err := domain.ValidateFieldKey(key); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.fields[key]
	if !ok {
		f = newPersistedField(key, s.store, s.logger)
		s.fields[key] = f
	}
	return f, nil
}

func (s *FieldService) State(ctx context.Context, key string) (domain.FieldState, error) {
	f, err := s.Field(key)
	if err != nil {
		return domain.FieldState{}, err
	}
	defer s.release(key, f)
	return f.State(ctx), nil
}

func (s *FieldService) SetValue(ctx context.Context, key, value string) (domain.FieldState, error) {
	f, err := s.Field(key)
	if err != nil {
		return domain.FieldState{}, err
	}
	defer s.release(key, f)
	return f.SetValue(ctx, value), nil
}

func (s *FieldService) Commit(ctx context.Context, key string) (domain.FieldState, error) {
	f, err := s.Field(key)
	if err != nil {
		return domain.FieldState{}, err
	}
	defer s.release(key, f)
	return f.Commit(ctx), nil
}

func (s *FieldService) AddToSuggestions(ctx context.Context, key, value string) (domain.FieldState, error) {
	f, err := s.Field(key)
	if err != nil {
		return domain.FieldState{}, err
	}
	defer s.release(key, f)
	return f.AddToSuggestions(ctx, value), nil
}

func (s *FieldService) RemoveSuggestion(ctx context.Context, key, value string) (domain.FieldState, error) {
	f, err := s.Field(key)
	if err != nil {
		return domain.FieldState{}, err
	}
	defer s.release(key, f)
	return f.RemoveSuggestion(ctx, value), nil
}

func (s *FieldService) ClearValue(ctx context.Context, key string) (domain.FieldState, error) {
	f, err := s.Field(key)
	if err != nil {
		return domain.FieldState{}, err
	}
	defer s.release(key, f)
	return f.ClearValue(ctx), nil
}

// release evicts f when it is still the cached field for key and is empty.
func (s *FieldService) release(key string, f *PersistedField) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fields[key] == f && f.empty() {
		delete(s.fields, key)
	}
}

// StoredCredential reads the operator bearer token from durable storage.
type StoredCredential struct {
	store ports.KeyValueStore
}

var _ ports.CredentialSource = (*StoredCredential)(nil)

func NewStoredCredential(store ports.KeyValueStore) *StoredCredential {
	return &StoredCredential{store: store}
}

// Token returns the stored credential or an empty string when none is set.
func (c *StoredCredential) Token(ctx context.Context) (string, error) {
	token, err := c.store.Get(ctx, ports.CredentialKey)
	if errors.Is(err, apperrors.ErrKeyNotFound) {
		return "", nil
	}
	return token, err
}
