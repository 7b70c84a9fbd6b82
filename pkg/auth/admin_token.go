package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultAdminIssuer   = "jarvis-site"
	defaultAdminAudience = "jarvis-admin"
	adminSubject         = "admin"
)

var ErrInvalidToken = errors.New("invalid admin token")

// AdminTokenOptions configures claim validation.
type AdminTokenOptions struct {
	Issuer   string
	Audience string
	Now      func() time.Time
}

// AdminTokens issues and validates HS256 bearer tokens for the admin console.
// Tokens carry no expiry; access is withdrawn by clearing the console flag.
type AdminTokens struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

func NewAdminTokens(secret string, opts AdminTokenOptions) (*AdminTokens, error) {
	if len(strings.TrimSpace(secret)) < 16 {
		return nil, errors.New("admin token secret must be at least 16 characters")
	}
	opts.Issuer = strings.TrimSpace(opts.Issuer)
	opts.Audience = strings.TrimSpace(opts.Audience)
	if opts.Issuer == "" {
		opts.Issuer = defaultAdminIssuer
	}
	if opts.Audience == "" {
		opts.Audience = defaultAdminAudience
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AdminTokens{
		secret:   []byte(secret),
		issuer:   opts.Issuer,
		audience: opts.Audience,
		now:      opts.Now,
	}, nil
}

// Issue signs a new admin token.
func (t *AdminTokens) Issue() (string, error) {
	now := t.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:  adminSubject,
		Issuer:   t.issuer,
		Audience: jwt.ClaimStrings{t.audience},
		IssuedAt: jwt.NewNumericDate(now),
		ID:       randomHexID(12),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify checks signature, issuer and audience.
func (t *AdminTokens) Verify(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject != adminSubject {
		return ErrInvalidToken
	}
	return nil
}

func randomHexID(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", buf)
}
