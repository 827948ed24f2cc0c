// Package authstate persists one-time CSRF state tokens for in-flight login
// attempts. A callback whose state was never issued, or was already consumed,
// must be rejected before any token exchange.
package authstate

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-auth-gate/internal/errors"
	"github.com/jrsteele09/go-auth-gate/kvstore"
)

const keyPrefix = "state:"

// stateTokenBytes is the entropy of a state token. 32 bytes keeps well above
// the 128-bit floor a CSRF token needs.
const stateTokenBytes = 32

// PendingState is one in-flight login attempt: the destination the user was
// trying to reach when the gate redirected them to the identity provider.
type PendingState struct {
	ReturnURL string    `json:"return_url"`
	CreatedAt time.Time `json:"created_at"`
}

// Repo stores pending states under their state token with a short TTL.
type Repo struct {
	store kvstore.Store
	ttl   time.Duration
}

// NewRepo creates a state repository over the given store. ttl bounds the
// exposure window of a state that is never consumed.
func NewRepo(store kvstore.Store, ttl time.Duration) *Repo {
	return &Repo{store: store, ttl: ttl}
}

// Create generates a high-entropy state token, persists the return URL under
// it, and returns the token. The write completes before Create returns, so a
// callback can never arrive before its state is queryable.
func (r *Repo) Create(ctx context.Context, returnURL string) (string, error) {
	token := generateStateToken()

	payload, err := json.Marshal(PendingState{
		ReturnURL: returnURL,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return "", errors.Wrapf(err, "[authstate Create] failed to marshal state")
	}

	if err := r.store.Put(ctx, keyPrefix+token, payload, r.ttl); err != nil {
		return "", errors.Wrapf(err, "[authstate Create] failed to persist state")
	}
	return token, nil
}

// Consume atomically reads and deletes the state stored under token and
// returns its return URL. A second consume of the same token, or a token
// that was never issued, returns ErrStateNotFound.
func (r *Repo) Consume(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", errors.ErrStateNotFound
	}

	payload, err := r.store.GetDel(ctx, keyPrefix+token)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return "", errors.ErrStateNotFound
		}
		return "", errors.Wrapf(err, "[authstate Consume] failed to consume state")
	}

	var state PendingState
	if err := json.Unmarshal(payload, &state); err != nil {
		return "", errors.Wrapf(err, "[authstate Consume] corrupt state payload")
	}
	return state.ReturnURL, nil
}

// generateStateToken creates a random base64url token.
func generateStateToken() string {
	b := make([]byte, stateTokenBytes)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
