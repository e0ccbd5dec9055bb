package identity

import (
	"context"

	"github.com/skillswaphq/skillswap-realtime/internal/storage"
)

// StorageKey is the local storage key holding the signed-in identity blob.
const StorageKey = "skillswap_identity"

// SaveSession persists the signed identity blob for the current session.
func SaveSession(ctx context.Context, store storage.KV, token string) error {
	return store.Set(ctx, StorageKey, token)
}

// LoadSession reads the persisted identity blob and resolves it to an
// Identity. A missing or invalid blob yields ("", false, nil): a corrupt
// session is treated as signed-out, not as a fatal error.
func LoadSession(ctx context.Context, store storage.KV, sessions *SessionManager) (Identity, bool, error) {
	token, ok, err := store.Get(ctx, StorageKey)
	if err != nil {
		return "", false, err
	}
	if !ok || token == "" {
		return "", false, nil
	}
	who, err := sessions.Parse(token)
	if err != nil {
		return "", false, nil
	}
	return who, true, nil
}

// ClearSession removes the persisted identity blob (sign-out).
func ClearSession(ctx context.Context, store storage.KV) error {
	return store.Clear(ctx, StorageKey)
}
