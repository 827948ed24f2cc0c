package verifier

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-auth-gate/internal/errors"
)

// KeySet caches the identity provider's published signing keys, keyed by kid.
// Reads take a consistent snapshot of the whole set; a refresh swaps the set
// in one assignment, so a refresh in progress never exposes a partially
// updated key set. Concurrent misses collapse into a single network fetch.
type KeySet struct {
	jwksURL string
	ttl     time.Duration
	client  *http.Client

	group singleflight.Group

	mu        sync.RWMutex
	keys      jwk.Set
	fetchedAt time.Time
}

// NewKeySet creates a key cache for the given JWKS endpoint. ttl controls how
// long a fetched set is served before the next lookup forces a refresh.
func NewKeySet(jwksURL string, ttl time.Duration, client *http.Client) *KeySet {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeySet{
		jwksURL: jwksURL,
		ttl:     ttl,
		client:  client,
	}
}

// Key returns the raw public key with the given kid. On a cache miss or an
// expired cache it fetches a fresh JWKS once and retries the lookup once.
func (ks *KeySet) Key(ctx context.Context, kid string) (interface{}, error) {
	if key, ok := ks.lookup(kid); ok {
		return key, nil
	}

	if err := ks.refresh(ctx); err != nil {
		return nil, err
	}

	if key, ok := ks.lookup(kid); ok {
		return key, nil
	}
	return nil, errors.ErrUnknownSigningKey
}

func (ks *KeySet) lookup(kid string) (interface{}, bool) {
	ks.mu.RLock()
	keys, fetchedAt := ks.keys, ks.fetchedAt
	ks.mu.RUnlock()

	if keys == nil {
		return nil, false
	}
	if ks.ttl > 0 && NowTimeFunc().Sub(fetchedAt) > ks.ttl {
		return nil, false
	}

	key, found := keys.LookupKeyID(kid)
	if !found {
		return nil, false
	}

	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, false
	}
	return raw, true
}

// refresh fetches the JWKS under single-flight discipline so that concurrent
// misses trigger at most one network call.
func (ks *KeySet) refresh(ctx context.Context) error {
	_, err, _ := ks.group.Do("refresh", func() (interface{}, error) {
		keys, err := ks.fetch(ctx)
		if err != nil {
			return nil, err
		}

		ks.mu.Lock()
		ks.keys = keys
		ks.fetchedAt = NowTimeFunc()
		ks.mu.Unlock()
		return nil, nil
	})
	return err
}

func (ks *KeySet) fetch(ctx context.Context) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.jwksURL, nil)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrJWKSUnavailable, "building jwks request: %v", err)
	}

	resp, err := ks.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrJWKSUnavailable, "fetching jwks: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrJWKSUnavailable, "fetching jwks: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrJWKSUnavailable, "reading jwks response: %v", err)
	}

	keys, err := jwk.Parse(body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrJWKSUnavailable, "parsing jwks document: %v", err)
	}
	return keys, nil
}
