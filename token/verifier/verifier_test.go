package verifier_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-gate/internal/errors"
	"github.com/jrsteele09/go-auth-gate/token/verifier"
)

const (
	testIssuer   = "https://idp.example.com/"
	testAudience = "test-client-id"
)

type testKey struct {
	kid  string
	priv *rsa.PrivateKey
}

func newTestKey(t *testing.T, kid string) *testKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &testKey{kid: kid, priv: priv}
}

// jwksJSON serializes the public halves of keys as a JWKS document.
func jwksJSON(t *testing.T, keys ...*testKey) []byte {
	t.Helper()

	set := jwk.NewSet()
	for _, k := range keys {
		pub, err := jwk.FromRaw(k.priv.Public())
		require.NoError(t, err)
		require.NoError(t, pub.Set(jwk.KeyIDKey, k.kid))
		require.NoError(t, pub.Set(jwk.AlgorithmKey, "RS256"))
		require.NoError(t, set.AddKey(pub))
	}

	body, err := json.Marshal(set)
	require.NoError(t, err)
	return body
}

func (k *testKey) sign(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = k.kid
	signed, err := token.SignedString(k.priv)
	require.NoError(t, err)
	return signed
}

func validClaims(now time.Time) jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"iss": testIssuer,
		"aud": testAudience,
		"sub": "user-123",
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
}

// jwksServer serves the given JWKS body and counts fetches.
func jwksServer(t *testing.T, body *[]byte, fetches *atomic.Int32) *httptest.Server {
	t.Helper()

	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(*body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifier_Verify(t *testing.T) {
	now := time.Now()
	verifier.NowTimeFunc = func() time.Time { return now }
	defer func() { verifier.NowTimeFunc = time.Now }()

	key := newTestKey(t, "key-1")
	body := jwksJSON(t, key)
	var fetches atomic.Int32
	srv := jwksServer(t, &body, &fetches)

	newVerifier := func() *verifier.Verifier {
		return verifier.New(verifier.NewKeySet(srv.URL, 15*time.Minute, srv.Client()), testIssuer, testAudience, 24*time.Hour)
	}

	t.Run("valid token", func(t *testing.T) {
		v := newVerifier()
		identity, err := v.Verify(t.Context(), key.sign(t, validClaims(now)))
		require.NoError(t, err)
		require.Equal(t, "user-123", identity.Subject)
		require.Equal(t, testIssuer, identity.Issuer)
		require.Contains(t, identity.Audience, testAudience)
		require.WithinDuration(t, now.Add(time.Hour), identity.ExpiresAt, time.Second)
	})

	t.Run("flipped signature bit is invalid signature and nothing else", func(t *testing.T) {
		v := newVerifier()

		raw := key.sign(t, validClaims(now))
		parts := strings.Split(raw, ".")
		sig, err := base64.RawURLEncoding.DecodeString(parts[2])
		require.NoError(t, err)
		sig[0] ^= 0x01
		parts[2] = base64.RawURLEncoding.EncodeToString(sig)

		_, err = v.Verify(t.Context(), strings.Join(parts, "."))
		require.ErrorIs(t, err, errors.ErrInvalidSignature)
		require.NotErrorIs(t, err, errors.ErrMalformedToken)
		require.NotErrorIs(t, err, errors.ErrTokenExpired)
	})

	t.Run("issuer mismatch", func(t *testing.T) {
		v := newVerifier()
		claims := validClaims(now)
		claims["iss"] = "https://evil.example.com/"

		_, err := v.Verify(t.Context(), key.sign(t, claims))
		require.ErrorIs(t, err, errors.ErrIssuerMismatch)
	})

	t.Run("audience mismatch", func(t *testing.T) {
		v := newVerifier()
		claims := validClaims(now)
		claims["aud"] = []string{"someone-else"}

		_, err := v.Verify(t.Context(), key.sign(t, claims))
		require.ErrorIs(t, err, errors.ErrAudienceMismatch)
	})

	t.Run("audience list containing expected value passes", func(t *testing.T) {
		v := newVerifier()
		claims := validClaims(now)
		claims["aud"] = []string{"someone-else", testAudience}

		_, err := v.Verify(t.Context(), key.sign(t, claims))
		require.NoError(t, err)
	})

	t.Run("expired one second ago", func(t *testing.T) {
		v := newVerifier()
		claims := validClaims(now)
		claims["exp"] = now.Add(-time.Second).Unix()

		_, err := v.Verify(t.Context(), key.sign(t, claims))
		require.ErrorIs(t, err, errors.ErrTokenExpired)
	})

	t.Run("expires one second from now", func(t *testing.T) {
		v := newVerifier()
		claims := validClaims(now)
		claims["exp"] = now.Add(time.Second).Unix()

		_, err := v.Verify(t.Context(), key.sign(t, claims))
		require.NoError(t, err)
	})

	t.Run("token older than max age", func(t *testing.T) {
		v := newVerifier()
		claims := validClaims(now)
		claims["iat"] = now.Add(-25 * time.Hour).Unix()

		_, err := v.Verify(t.Context(), key.sign(t, claims))
		require.ErrorIs(t, err, errors.ErrTokenTooOld)
	})

	t.Run("symmetric alg is rejected", func(t *testing.T) {
		v := newVerifier()

		token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, validClaims(now))
		token.Header["kid"] = key.kid
		signed, err := token.SignedString([]byte("shared-secret"))
		require.NoError(t, err)

		_, err = v.Verify(t.Context(), signed)
		require.ErrorIs(t, err, errors.ErrMalformedToken)
		require.NotErrorIs(t, err, errors.ErrInvalidSignature)
	})

	t.Run("rsa family with wrong alg is rejected", func(t *testing.T) {
		v := newVerifier()

		token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS512, validClaims(now))
		token.Header["kid"] = key.kid
		signed, err := token.SignedString(key.priv)
		require.NoError(t, err)

		_, err = v.Verify(t.Context(), signed)
		require.ErrorIs(t, err, errors.ErrMalformedToken)
		require.NotErrorIs(t, err, errors.ErrInvalidSignature)
	})

	t.Run("garbage token", func(t *testing.T) {
		v := newVerifier()
		_, err := v.Verify(t.Context(), "not-a-jwt")
		require.ErrorIs(t, err, errors.ErrMalformedToken)
	})
}

func TestKeySet(t *testing.T) {
	now := time.Now()
	verifier.NowTimeFunc = func() time.Time { return now }
	defer func() { verifier.NowTimeFunc = time.Now }()

	t.Run("unknown kid refetches once then fails", func(t *testing.T) {
		key := newTestKey(t, "key-1")
		rotated := newTestKey(t, "key-2")
		body := jwksJSON(t, key)
		var fetches atomic.Int32
		srv := jwksServer(t, &body, &fetches)

		v := verifier.New(verifier.NewKeySet(srv.URL, 15*time.Minute, srv.Client()), testIssuer, testAudience, 0)

		_, err := v.Verify(t.Context(), rotated.sign(t, validClaims(now)))
		require.ErrorIs(t, err, errors.ErrUnknownSigningKey)
		require.Equal(t, int32(1), fetches.Load())

		// Key rotation at the provider: the next miss picks up the new set
		body = jwksJSON(t, key, rotated)
		_, err = v.Verify(t.Context(), rotated.sign(t, validClaims(now)))
		require.NoError(t, err)
		require.Equal(t, int32(2), fetches.Load())

		// Cached from here on
		_, err = v.Verify(t.Context(), key.sign(t, validClaims(now)))
		require.NoError(t, err)
		require.Equal(t, int32(2), fetches.Load())
	})

	t.Run("cache expires after ttl", func(t *testing.T) {
		key := newTestKey(t, "key-1")
		body := jwksJSON(t, key)
		var fetches atomic.Int32
		srv := jwksServer(t, &body, &fetches)

		v := verifier.New(verifier.NewKeySet(srv.URL, 15*time.Minute, srv.Client()), testIssuer, testAudience, 0)

		_, err := v.Verify(t.Context(), key.sign(t, validClaims(now)))
		require.NoError(t, err)
		require.Equal(t, int32(1), fetches.Load())

		now = now.Add(16 * time.Minute)
		_, err = v.Verify(t.Context(), key.sign(t, validClaims(now)))
		require.NoError(t, err)
		require.Equal(t, int32(2), fetches.Load())
	})

	t.Run("concurrent misses trigger one fetch", func(t *testing.T) {
		key := newTestKey(t, "key-1")
		body := jwksJSON(t, key)

		var fetches atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fetches.Add(1)
			time.Sleep(50 * time.Millisecond)
			_, _ = w.Write(body)
		}))
		defer srv.Close()

		ks := verifier.NewKeySet(srv.URL, 15*time.Minute, srv.Client())

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := ks.Key(t.Context(), "key-1")
				require.NoError(t, err)
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), fetches.Load())
	})

	t.Run("jwks endpoint down", func(t *testing.T) {
		key := newTestKey(t, "key-1")
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		v := verifier.New(verifier.NewKeySet(srv.URL, 15*time.Minute, srv.Client()), testIssuer, testAudience, 0)

		_, err := v.Verify(t.Context(), key.sign(t, validClaims(now)))
		require.ErrorIs(t, err, errors.ErrJWKSUnavailable)
	})
}
