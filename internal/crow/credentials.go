package crow

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// defaultTokenTTL is assumed when the API returns a token without any
// recoverable expiry. Conservative: forces periodic re-authentication
// rather than trusting a token of unknown lifetime.
const defaultTokenTTL = 30 * time.Minute

// credentialStore holds the account credentials and the current
// authentication token. It is owned by exactly one Session.
//
// Token and expiry are always read and written together under the
// mutex, so no caller ever observes a token without its expiry.
// Concurrent refresh attempts collapse into a single authentication
// call via the singleflight group.
type credentialStore struct {
	mu       sync.Mutex
	email    string
	password string
	token    string
	expiry   time.Time

	refresh singleflight.Group
}

func newCredentialStore(email, password string) *credentialStore {
	return &credentialStore{
		email:    email,
		password: password,
	}
}

// Credentials returns the account email and password.
func (s *credentialStore) Credentials() (email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email, s.password
}

// Token returns the current token if one is present and unexpired.
func (s *credentialStore) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || !time.Now().Before(s.expiry) {
		return "", false
	}
	return s.token, true
}

// SetToken stores a fresh token with its expiry.
func (s *credentialStore) SetToken(token string, expiry time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiry = expiry
}

// Invalidate clears the token and expiry together.
func (s *credentialStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiry = time.Time{}
}

// InvalidateIfCurrent clears the token only if it still matches the
// one the caller attached to its failed request. A rejection that
// races in after another caller has already refreshed leaves the
// fresh token untouched.
func (s *credentialStore) InvalidateIfCurrent(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != "" && s.token == token {
		s.token = ""
		s.expiry = time.Time{}
	}
}

// RefreshToken returns a valid token, invoking authenticate at most
// once no matter how many goroutines arrive here concurrently.
// Callers racing in after a successful refresh reuse the new token
// without a network round trip.
func (s *credentialStore) RefreshToken(authenticate func() (token string, expiry time.Time, err error)) (string, error) {
	v, err, _ := s.refresh.Do("token", func() (any, error) {
		// A racing caller may have refreshed while we queued.
		if token, ok := s.Token(); ok {
			return token, nil
		}

		token, expiry, err := authenticate()
		if err != nil {
			return nil, err
		}
		s.SetToken(token, expiry)
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// tokenExpiry determines when a token expires. Explicit expiry wins;
// otherwise the JWT exp claim is recovered with an unverified parse
// (the client has no signing key and does not need one — the server
// remains the authority, this only schedules the local refresh).
// Tokens with no recoverable expiry get defaultTokenTTL.
func tokenExpiry(token string, explicit time.Time) time.Time {
	if !explicit.IsZero() {
		return explicit
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	return time.Now().Add(defaultTokenTTL)
}
