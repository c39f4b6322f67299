// Package auth maps session tokens issued by the identity provider to stable
// user identifiers.
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/testmaker/internal/model"
)

// SessionCookieName is the cookie the identity provider's frontend SDK stores the session token in.
const SessionCookieName = "__session"

const leeway = 5 * time.Second

var (
	// ErrMissingToken is returned when the request carries no session token.
	ErrMissingToken = errors.New("missing session token")
	// ErrInvalidToken is returned when the token fails verification.
	ErrInvalidToken = errors.New("invalid session token")
)

// Claims are the session token claims we rely on.
type Claims struct {
	Email           string `json:"email,omitempty"`
	Name            string `json:"name,omitempty"`
	AuthorizedParty string `json:"azp,omitempty"`
	jwt.RegisteredClaims
}

// Config controls how tokens are verified. Exactly one of PublicKeyPEM or
// Secret must be set.
type Config struct {
	// PublicKeyPEM is the RS256 verification key, either PEM text or a path to a PEM file.
	PublicKeyPEM string
	// Secret is an HS256 shared secret, for local development.
	Secret string
	// Issuer, when set, must match the iss claim.
	Issuer string
	// AuthorizedParties, when non-empty, restricts the azp claim. Tokens
	// without azp are then rejected.
	AuthorizedParties []string
}

// Verifier validates session tokens.
type Verifier struct {
	key     any
	method  jwt.SigningMethod
	parser  *jwt.Parser
	parties []string
}

// NewVerifier builds a Verifier from cfg.
func NewVerifier(cfg Config) (*Verifier, error) {
	v := &Verifier{parties: cfg.AuthorizedParties}
	switch {
	case cfg.PublicKeyPEM != "" && cfg.Secret != "":
		return nil, errors.New("configure either a public key or a secret, not both")
	case cfg.PublicKeyPEM != "":
		key, err := loadRSAPublicKey(cfg.PublicKeyPEM)
		if err != nil {
			return nil, err
		}
		v.key, v.method = key, jwt.SigningMethodRS256
	case cfg.Secret != "":
		v.key, v.method = []byte(cfg.Secret), jwt.SigningMethodHS256
	default:
		return nil, errors.New("no token verification key configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	v.parser = jwt.NewParser(opts...)
	return v, nil
}

func loadRSAPublicKey(pemOrPath string) (*rsa.PublicKey, error) {
	data := []byte(pemOrPath)
	if !strings.Contains(pemOrPath, "-----BEGIN") {
		b, err := os.ReadFile(pemOrPath)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		data = b
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return key, nil
}

// Verify checks a raw token and returns the identity it asserts.
func (v *Verifier) Verify(raw string) (*model.Identity, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}
	var claims Claims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	if len(v.parties) > 0 && !slices.Contains(v.parties, claims.AuthorizedParty) {
		return nil, fmt.Errorf("%w: unauthorized party %q", ErrInvalidToken, claims.AuthorizedParty)
	}
	return &model.Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   strings.TrimSpace(claims.Name),
	}, nil
}

// VerifyRequest extracts the session token from the Authorization header or
// the session cookie and verifies it.
func (v *Verifier) VerifyRequest(r *http.Request) (*model.Identity, error) {
	return v.Verify(TokenFromRequest(r))
}

// TokenFromRequest returns the bearer token of r, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}
