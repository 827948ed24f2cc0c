// Package sessions binds a session cookie value to the raw token-exchange
// response it was created from. The stored bytes are untrusted until the ID
// token inside them re-verifies; a mutated store entry can therefore never
// forge an identity without also forging a valid signature.
package sessions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/jrsteele09/go-auth-gate/internal/errors"
	"github.com/jrsteele09/go-auth-gate/kvstore"
)

const keyPrefix = "session:"

// sessionIDBytes is the entropy of a session id.
const sessionIDBytes = 32

// Repo stores serialized token-exchange responses under opaque session ids.
type Repo struct {
	store kvstore.Store
	ttl   time.Duration
}

// NewRepo creates a session repository over the given store. ttl is the
// session lifetime; the store expires entries on its own after that.
func NewRepo(store kvstore.Store, ttl time.Duration) *Repo {
	return &Repo{store: store, ttl: ttl}
}

// Create generates a high-entropy session id and stores tokenResponse under
// it verbatim. The id doubles as the session cookie's value.
func (r *Repo) Create(ctx context.Context, tokenResponse []byte) (string, error) {
	sessionID := generateSessionID()
	if err := r.store.Put(ctx, keyPrefix+sessionID, tokenResponse, r.ttl); err != nil {
		return "", errors.Wrapf(err, "[sessions Create] failed to persist session")
	}
	return sessionID, nil
}

// Lookup returns the raw token response stored under sessionID.
func (r *Repo) Lookup(ctx context.Context, sessionID string) ([]byte, error) {
	if sessionID == "" {
		return nil, errors.ErrSessionNotFound
	}

	tokenResponse, err := r.store.Get(ctx, keyPrefix+sessionID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.ErrSessionNotFound
		}
		return nil, errors.Wrapf(err, "[sessions Lookup] failed to read session")
	}
	return tokenResponse, nil
}

// Delete removes the session. A deleted id is unusable from then on; ids are
// never reissued because they carry 256 bits of fresh entropy.
func (r *Repo) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := r.store.Delete(ctx, keyPrefix+sessionID); err != nil {
		return errors.Wrapf(err, "[sessions Delete] failed to delete session")
	}
	return nil
}

// Ping reports whether the backing store is reachable.
func (r *Repo) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func generateSessionID() string {
	b := make([]byte, sessionIDBytes)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
