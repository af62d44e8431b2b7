// Package auth resolves the caller of an HTTP request to an owner id.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

// Authenticator returns the owner id of the request, or ok=false when the
// request carries no usable credential.
type Authenticator interface {
	Authenticate(r *http.Request) (ownerID string, ok bool)
}

// BearerToken extracts the credential from the Authorization header. Both
// "Bearer <token>" and a bare token are accepted.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return ""
	}
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		h = h[7:]
	}
	return strings.TrimSpace(h)
}

// JWT validates HS256 bearer tokens. The subject claim is the owner id.
type JWT struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWT(secret, issuer string) (*JWT, error) {
	if secret == "" {
		return nil, eris.New("jwt: empty secret")
	}
	return &JWT{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

func (j *JWT) Authenticate(r *http.Request) (string, bool) {
	raw := BearerToken(r)
	if raw == "" || strings.Count(raw, ".") != 2 {
		return "", false
	}
	sub, err := j.Verify(raw)
	if err != nil {
		return "", false
	}
	return sub, true
}

// Verify parses raw and returns its subject.
func (j *JWT) Verify(raw string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return "", eris.Wrap(err, "jwt: parse")
	}
	if !tok.Valid || claims.Subject == "" {
		return "", eris.New("jwt: invalid token")
	}
	return claims.Subject, nil
}

// Issue signs a token for owner valid for ttl. Used by the api `token`
// command for local development.
func (j *JWT) Issue(owner string, ttl time.Duration) (string, error) {
	if owner == "" {
		return "", eris.New("jwt: empty subject")
	}
	now := j.now()
	claims := jwt.RegisteredClaims{
		Subject:   owner,
		Issuer:    j.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	return s, eris.Wrap(err, "jwt: sign")
}

// APIKeys maps static keys to owners.
type APIKeys struct {
	keys map[string]string // owner -> key
}

func NewAPIKeys(byOwner map[string]string) *APIKeys {
	keys := make(map[string]string, len(byOwner))
	for owner, key := range byOwner {
		if owner != "" && key != "" {
			keys[owner] = key
		}
	}
	return &APIKeys{keys: keys}
}

func (a *APIKeys) Authenticate(r *http.Request) (string, bool) {
	key := BearerToken(r)
	if key == "" {
		return "", false
	}
	// constant-time comparison
	for owner, want := range a.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(want)) == 1 {
			return owner, true
		}
	}
	return "", false
}

// Chain tries each authenticator in order.
type Chain []Authenticator

func (c Chain) Authenticate(r *http.Request) (string, bool) {
	for _, a := range c {
		if a == nil {
			continue
		}
		if owner, ok := a.Authenticate(r); ok {
			return owner, true
		}
	}
	return "", false
}
