package upload

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLinkTTL is how long a signed document link stays valid.
const DefaultLinkTTL = 7 * 24 * time.Hour

const linkAudience = "flightclaim-files"

// ErrBadLink is returned for missing, expired or mismatched document link tokens.
var ErrBadLink = errors.New("invalid document link")

// LinkSigner mints and checks HS256 tokens that grant read access to one stored document.
type LinkSigner struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func (s *LinkSigner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Sign returns a token for the object name.
func (s *LinkSigner) Sign(name string) (string, error) {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   name,
		Audience:  jwt.ClaimStrings{linkAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}

// Verify checks that token grants access to name.
func (s *LinkSigner) Verify(token, name string) error {
	if strings.TrimSpace(token) == "" {
		return ErrBadLink
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(linkAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.Secret, nil
	}); err != nil {
		return ErrBadLink
	}
	if claims.Subject != name {
		return ErrBadLink
	}
	return nil
}

func (s *LinkSigner) link(base, name string) (string, error) {
	token, err := s.Sign(name)
	if err != nil {
		return "", err
	}
	return base + "/" + name + "?" + url.Values{"token": {token}}.Encode(), nil
}
