package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/resto-billing/internal/common"
)

// RoleClaim is the private claim carrying the caller's role.
const RoleClaim = "role"

// RoleAdmin grants access to rule administration endpoints.
const RoleAdmin = "admin"

// Verifier parses and checks HS256 bearer tokens issued to back-office operators.
type Verifier struct {
	secret    []byte
	issuer    string
	clockSkew time.Duration
	now       func() time.Time
}

// NewVerifier constructs a Verifier for the shared secret and issuer.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		secret:    []byte(secret),
		issuer:    issuer,
		clockSkew: 30 * time.Second,
		now:       time.Now,
	}
}

// WithClock overrides the verifier clock.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Issue signs a token for subject with the given role. Used by tooling and tests.
func (v *Verifier) Issue(subject, role string, ttl time.Duration) (string, error) {
	now := v.now()
	tok, err := jwt.NewBuilder().
		Subject(subject).
		Issuer(v.issuer).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl)).
		Claim(RoleClaim, role).
		Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, v.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// ParseAdmin validates token and returns its subject when it carries the admin role.
func (v *Verifier) ParseAdmin(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", unauthorized(errNoToken)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", unauthorized(err)
	}
	if algorithm != jwa.HS256 {
		return "", unauthorized(fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.secret), jwt.WithValidate(false))
	if err != nil {
		return "", unauthorized(err)
	}
	err = jwt.Validate(parsed,
		jwt.WithClock(jwt.ClockFunc(v.now)),
		jwt.WithAcceptableSkew(v.clockSkew),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		return "", unauthorized(err)
	}
	role, _ := parsed.Get(RoleClaim)
	if r, _ := role.(string); r != RoleAdmin {
		return "", common.NewAppError("FORBIDDEN", "admin role required", http.StatusForbidden, nil)
	}
	return parsed.Subject(), nil
}

func unauthorized(err error) error {
	return common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("auth: expected exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	alg := headers.Algorithm()
	switch alg {
	case "":
		return "", errors.New("auth: token missing algorithm")
	case jwa.NoSignature:
		return "", errors.New("auth: token uses none algorithm")
	}
	return alg, nil
}
