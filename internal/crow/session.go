package crow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/crowlink/internal/infrastructure/config"
)

// loginPath is the authentication endpoint, relative to the API base.
const loginPath = "/api/auth/login"

// maxErrorBodyLength bounds the response-body snippet kept in errors.
const maxErrorBodyLength = 200

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Session is an authenticated connection to the Crow Cloud API.
//
// It owns the account credential store and the HTTP transport, and
// executes requests with retry, token refresh, and error
// classification. One Session may back any number of concurrent
// requests and realtime channels.
//
// Thread Safety: All methods are safe for concurrent use from
// multiple goroutines.
type Session struct {
	cfg        config.CrowConfig
	apiBase    string
	httpClient *http.Client
	creds      *credentialStore
	backoff    Backoff
	timeout    time.Duration
	retryCount int

	// closed is set once by Close; requests on a closed session
	// return ErrClosed.
	closed bool
	mu     sync.RWMutex

	// logger for retry/handler logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// NewSession creates a Session for the given Crow Cloud account.
//
// No network traffic happens here; authentication is performed lazily
// on the first request that needs it, or eagerly via Authenticate.
//
// Parameters:
//   - cfg: Crow Cloud configuration from config.yaml
//
// Returns:
//   - *Session: Session ready for use
//   - error: If the configuration is unusable (missing credentials)
func NewSession(cfg config.CrowConfig) (*Session, error) {
	if cfg.Email == "" || cfg.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrAuthentication)
	}
	if cfg.APIBase == "" {
		return nil, fmt.Errorf("%w: api_base is required", ErrConnection)
	}

	timeout := cfg.GetTimeout()
	retryCount := cfg.RetryCount
	if retryCount < 0 {
		retryCount = 0
	}

	backoff := Backoff{
		Base:       time.Duration(cfg.Backoff.Base * float64(time.Second)),
		Multiplier: cfg.Backoff.Multiplier,
		Max:        time.Duration(cfg.Backoff.Max * float64(time.Second)),
		Jitter:     cfg.Backoff.Jitter,
	}.withDefaults()

	return &Session{
		cfg:     cfg,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		httpClient: &http.Client{
			// Per-request deadlines come from contexts; the transport
			// itself must allow long-lived concurrent requests.
			Timeout: 0,
		},
		creds:      newCredentialStore(cfg.Email, cfg.Password),
		backoff:    backoff,
		timeout:    timeout,
		retryCount: retryCount,
	}, nil
}

// Authenticate obtains a token for the configured account. Calling it
// on a session that already holds a valid token is a no-op.
//
// Returns:
//   - error: ErrAuthentication for rejected credentials, ErrTimeout or
//     ErrConnection for transport failures
func (s *Session) Authenticate(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	_, err := s.ensureToken(ctx)
	return err
}

// Close releases the session's transport resources. It is idempotent
// and safe to call from any state, including mid-request; in-flight
// requests finish or fail with their own errors, new requests return
// ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()

	if !already {
		s.creds.Invalidate()
		s.httpClient.CloseIdleConnections()
	}
	return nil
}

// SetLogger sets a logger for retry and handler diagnostics.
// If not set, the session is silent.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Session) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// ensureToken returns a valid token, authenticating if the stored one
// is absent or expired. Concurrent callers collapse into a single
// authentication call.
func (s *Session) ensureToken(ctx context.Context) (string, error) {
	if token, ok := s.creds.Token(); ok {
		return token, nil
	}
	return s.creds.RefreshToken(func() (string, time.Time, error) {
		return s.authenticate(ctx)
	})
}

// authenticate performs the login call and returns the token with its
// expiry. Rejected credentials are fatal; they are never retried.
func (s *Session) authenticate(ctx context.Context) (string, time.Time, error) {
	email, password := s.creds.Credentials()
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: encoding login request: %w", ErrAuthentication, err)
	}

	actx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, s.apiBase+loginPath, bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: building login request: %w", ErrConnection, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		switch {
		case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
			return "", time.Time{}, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return "", time.Time{}, fmt.Errorf("%w: authentication: %w", ErrTimeout, err)
		default:
			return "", time.Time{}, fmt.Errorf("%w: authentication: %w", ErrConnection, err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		drainBody(resp.Body)
		return "", time.Time{}, fmt.Errorf("%w: check your credentials", ErrAuthentication)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", time.Time{}, &StatusError{Status: resp.StatusCode, Body: bodySnippet(resp.Body)}
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: decoding login response: %w", ErrAuthentication, err)
	}

	token := decodeString(payload, "token", "accessToken", "access_token")
	if token == "" {
		return "", time.Time{}, fmt.Errorf("%w: no token in login response", ErrAuthentication)
	}

	return token, tokenExpiry(token, decodeExpiry(payload)), nil
}

// decodeExpiry extracts an explicit token expiry from a login
// response, tolerating the field variants seen across panel firmware.
func decodeExpiry(payload map[string]any) time.Time {
	if v := decodeString(payload, "expiresAt", "expires_at", "expiry"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	if secs, ok := decodeNumber(payload, "expiresIn", "expires_in"); ok && secs > 0 {
		return time.Now().Add(time.Duration(secs * float64(time.Second)))
	}
	return time.Time{}
}

// drainBody discards a response body so the connection can be reused.
func drainBody(body io.Reader) {
	_, _ = io.Copy(io.Discard, body)
}

// bodySnippet reads a bounded prefix of a response body for error
// messages, then drains the rest.
func bodySnippet(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBodyLength))
	drainBody(body)
	return strings.TrimSpace(string(data))
}
