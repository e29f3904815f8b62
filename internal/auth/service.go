package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrTokenRequired = errors.New("authorization required")
	ErrInvalidToken  = errors.New("invalid token")
)

// Service guards the launcher API. Launch gestures need the shared secret;
// destination pages are admitted by origin.
type Service struct {
	token          string
	headerName     string
	allowAll       bool
	allowedOrigins map[string]struct{}
}

// NewService builds a service for the shared secret token. An empty token
// disables bearer checks, which is only sensible on a loopback address.
func NewService(token string, allowedOrigins []string) *Service {
	s := &Service{
		token:          token,
		headerName:     "Authorization",
		allowedOrigins: make(map[string]struct{}),
	}
	for _, o := range allowedOrigins {
		if o == "*" {
			s.allowAll = true
			continue
		}
		if norm, ok := normalizeOrigin(o); ok {
			s.allowedOrigins[norm] = struct{}{}
		}
	}
	return s
}

// Enabled reports whether a shared secret is configured.
func (s *Service) Enabled() bool {
	return s.token != ""
}

// ValidateToken compares authToken with the shared secret in constant time.
func (s *Service) ValidateToken(authToken string) error {
	if !s.Enabled() {
		return nil
	}
	if authToken == "" {
		return ErrTokenRequired
	}
	if subtle.ConstantTimeCompare([]byte(authToken), []byte(s.token)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// OriginAllowed admits requests without an Origin (CLI, scripts) and
// browser requests from a configured origin.
func (s *Service) OriginAllowed(origin string) bool {
	if origin == "" || s.allowAll {
		return true
	}
	norm, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	_, ok = s.allowedOrigins[norm]
	return ok
}

// GenerateToken returns a random secret suitable for api_token.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func normalizeOrigin(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), true
}
