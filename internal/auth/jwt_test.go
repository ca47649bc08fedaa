package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/liveops/internal/core/domain"
)

func TestTokenManager_UsesConfiguredTTL(t *testing.T) {
	ttl := 2 * time.Hour
	tm := NewTokenManager("test-secret", ttl)

	userID := uuid.New()
	orgID := uuid.New()

	start := time.Now()

	token, err := tm.GenerateToken(userID, orgID, domain.RoleAgent)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	require.NotNil(t, claims.ExpiresAt)

	expectedExpiry := start.Add(ttl)
	assert.WithinDuration(t, expectedExpiry, claims.ExpiresAt.Time, 2*time.Second)
}

func TestTokenManager_RoundTripsRole(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	userID := uuid.New()

	token, err := tm.GenerateToken(userID, uuid.New(), domain.RoleAdmin)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, domain.RoleAdmin, claims.EffectiveRole())
}

func TestClaims_EffectiveRoleDefaultsToRequester(t *testing.T) {
	assert.Equal(t, domain.RoleRequester, (&Claims{}).EffectiveRole())
	assert.Equal(t, domain.RoleRequester, (&Claims{Role: "owner"}).EffectiveRole())
}

func TestTokenManager_RejectsForeignSignature(t *testing.T) {
	issuer := NewTokenManager("secret-a", time.Hour)
	verifier := NewTokenManager("secret-b", time.Hour)

	token, err := issuer.GenerateToken(uuid.New(), uuid.New(), domain.RoleAgent)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Nanosecond)

	token, err := tm.GenerateToken(uuid.New(), uuid.New(), domain.RoleAgent)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	_, err = tm.ValidateToken(token)
	assert.Error(t, err)
}
