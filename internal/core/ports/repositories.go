package ports

import "context"

// CredentialKey is the storage key of the operator bearer credential.
const CredentialKey = "auth_token"

// KeyValueStore is durable string storage. Get returns
// apperrors.ErrKeyNotFound when the key is absent.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// CredentialSource supplies the bearer token attached to outbound requests.
// An empty token with a nil error means no credential is stored.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}
