// Package verifier validates ID tokens against the identity provider's
// published signing keys. It is safe for concurrent use; the JWKS cache is
// the only shared mutable state.
package verifier

import (
	"context"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/jrsteele09/go-auth-gate/internal/errors"
)

// NowTimeFunc can be replaced in tests to control expiry checks.
var NowTimeFunc = time.Now

// Identity is the verified principal derived from an ID token. It is always
// re-derived from the signed token, never read back from storage.
type Identity struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Claims    map[string]interface{}
}

// Verifier validates a token's signature, issuer, audience, expiry, and age.
type Verifier struct {
	keys        *KeySet
	issuer      string
	audience    string
	maxTokenAge time.Duration
}

// New creates a verifier. maxTokenAge bounds how long ago a token may have
// been issued; zero disables the age check.
func New(keys *KeySet, issuer, audience string, maxTokenAge time.Duration) *Verifier {
	return &Verifier{
		keys:        keys,
		issuer:      issuer,
		audience:    audience,
		maxTokenAge: maxTokenAge,
	}
}

// Verify checks rawToken and returns the identity it asserts.
//
// The signature is verified over the token's original header and payload
// segments (golang-jwt signs the raw segments, never a re-serialized copy).
// Claims are then checked in a fixed order with distinct error kinds, so a
// flipped signature bit always surfaces as ErrInvalidSignature and nothing
// else. Only RS256 tokens are accepted; any other alg is rejected in the
// keyfunc, before a key is ever handed to the library, and surfaces as
// ErrMalformedToken rather than a signature failure.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	parser := jwtlib.NewParser(
		// Claim validation happens explicitly below; parse errors are then
		// exclusively structural or signature errors.
		jwtlib.WithoutClaimsValidation(),
	)

	token, err := parser.Parse(rawToken, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodRSA); !ok || t.Method.Alg() != jwtlib.SigningMethodRS256.Alg() {
			return nil, errors.Wrapf(errors.ErrMalformedToken, "unexpected signing method %v", t.Header["alg"])
		}
		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, errors.ErrUnknownSigningKey
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrMalformedToken):
			return nil, err
		case errors.Is(err, jwtlib.ErrTokenSignatureInvalid):
			return nil, errors.Wrapf(errors.ErrInvalidSignature, "%v", err)
		case errors.Is(err, errors.ErrUnknownSigningKey):
			return nil, errors.ErrUnknownSigningKey
		case errors.Is(err, errors.ErrJWKSUnavailable):
			return nil, err
		default:
			return nil, errors.Wrapf(errors.ErrMalformedToken, "%v", err)
		}
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.ErrMalformedToken
	}
	return v.validateClaims(claims)
}

func (v *Verifier) validateClaims(claims jwtlib.MapClaims) (*Identity, error) {
	now := NowTimeFunc()

	issuer, err := claims.GetIssuer()
	if err != nil || issuer != v.issuer {
		return nil, errors.Wrapf(errors.ErrIssuerMismatch, "expected %q, got %q", v.issuer, issuer)
	}

	audiences, err := claims.GetAudience()
	if err != nil {
		return nil, errors.ErrAudienceMismatch
	}
	found := false
	for _, aud := range audiences {
		if aud == v.audience {
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Wrapf(errors.ErrAudienceMismatch, "expected %q, got %v", v.audience, audiences)
	}

	expiresAt, err := claims.GetExpirationTime()
	if err != nil || expiresAt == nil || !expiresAt.After(now) {
		return nil, errors.ErrTokenExpired
	}

	if v.maxTokenAge > 0 {
		issuedAt, err := claims.GetIssuedAt()
		if err == nil && issuedAt != nil && now.Sub(issuedAt.Time) > v.maxTokenAge {
			return nil, errors.ErrTokenTooOld
		}
	}

	subject, _ := claims.GetSubject()

	return &Identity{
		Subject:   subject,
		Issuer:    issuer,
		Audience:  audiences,
		ExpiresAt: expiresAt.Time,
		Claims:    claims,
	}, nil
}
