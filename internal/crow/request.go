package crow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Request describes one API operation. It is an immutable value; the
// executor never retains it after the call completes.
type Request struct {
	// Method is the HTTP method (GET, POST, PUT, DELETE).
	Method string

	// Path is the endpoint relative to the API base, e.g.
	// "/api/panels/aabbccddeeff/areas".
	Path string

	// Body is JSON-encoded when non-nil.
	Body any

	// RequiresAuth attaches the session token and enables the
	// refresh-on-401 path.
	RequiresAuth bool
}

// Execute performs one API operation with retry and error
// classification.
//
// Transient failures (network errors, 5xx, 429, timeouts) are retried
// up to the configured retry count with capped exponential backoff; a
// server Retry-After hint takes precedence over the computed delay.
// A 401/403 triggers exactly one token refresh without consuming a
// retry slot. Authentication failures, unknown panels, and other
// unexpected responses are surfaced immediately.
//
// Parameters:
//   - ctx: Context for cancellation; aborts in-flight I/O and backoff waits
//   - req: The operation to perform
//
// Returns:
//   - json.RawMessage: Decoded response payload (nil for empty bodies)
//   - error: One of the package sentinel errors, checkable with errors.Is
func (s *Session) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	if req.RequiresAuth {
		if _, err := s.ensureToken(ctx); err != nil {
			return nil, err
		}
	}

	reauthed := false
	attempt := 0
	for {
		payload, usedToken, err := s.attempt(ctx, req)
		if err == nil {
			return payload, nil
		}

		// 401/403: refresh the token once per call, then replay the
		// same attempt. A second rejection means the credentials are
		// no longer accepted. Only the token this attempt actually
		// carried is dropped; a concurrent caller may already have
		// refreshed, and its fresh token must survive our late 401.
		if errors.Is(err, errAuthRequired) {
			if reauthed {
				return nil, fmt.Errorf("%w: token rejected after refresh", ErrAuthentication)
			}
			reauthed = true
			s.creds.InvalidateIfCurrent(usedToken)
			if _, authErr := s.ensureToken(ctx); authErr != nil {
				return nil, authErr
			}
			continue
		}

		// Fatal outcomes propagate on first occurrence.
		if errors.Is(err, ErrPanelNotFound) || errors.Is(err, ErrResponse) ||
			errors.Is(err, ErrAuthentication) || errors.Is(err, context.Canceled) {
			return nil, err
		}

		// Recoverable: connection, timeout, rate limit.
		if attempt >= s.retryCount {
			return nil, err
		}

		delay := s.retryDelay(attempt, err)
		if logger := s.getLogger(); logger != nil {
			logger.Warn("retrying request",
				"method", req.Method,
				"path", req.Path,
				"attempt", attempt+1,
				"delay", delay.String(),
				"error", err,
			)
		}
		if waitErr := sleepContext(ctx, delay); waitErr != nil {
			return nil, waitErr
		}
		attempt++
	}
}

// retryDelay picks the wait before the next attempt: the server's
// Retry-After hint when present (clamped to the backoff cap),
// otherwise the backoff policy.
func (s *Session) retryDelay(attempt int, err error) time.Duration {
	var rle *rateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		hint := time.Duration(rle.RetryAfter) * time.Second
		if limit := s.backoff.withDefaults().Max; hint > limit {
			hint = limit
		}
		return hint
	}
	return s.backoff.DelayFor(attempt)
}

// attempt issues a single underlying HTTP call and classifies the
// outcome. The token attached to the request is returned alongside, so
// the caller can tell which token a 401 was actually issued against.
func (s *Session) attempt(ctx context.Context, req Request) (json.RawMessage, string, error) {
	actx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, "", fmt.Errorf("%w: encoding request body: %w", ErrResponse, err)
		}
		body = bytes.NewReader(data)
	}

	url := s.apiBase + "/" + strings.TrimLeft(req.Path, "/")
	httpReq, err := http.NewRequestWithContext(actx, req.Method, url, body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: building request: %w", ErrResponse, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	var usedToken string
	if req.RequiresAuth {
		if token, ok := s.creds.Token(); ok {
			usedToken = token
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		switch {
		case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
			return nil, usedToken, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, usedToken, fmt.Errorf("%w: %w", ErrTimeout, err)
		default:
			return nil, usedToken, fmt.Errorf("%w: %w", ErrConnection, err)
		}
	}
	defer resp.Body.Close()

	payload, err := classifyResponse(req, resp)
	return payload, usedToken, err
}

// classifyResponse maps an HTTP response to a payload or an error kind.
func classifyResponse(req Request, resp *http.Response) (json.RawMessage, error) {
	status := resp.StatusCode

	switch {
	case status >= 200 && status < 300:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: reading response: %w", ErrConnection, err)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, nil
		}
		return json.RawMessage(data), nil

	case status == http.StatusRequestTimeout:
		// The panel answers 408 for long-running operations such as
		// arm-state changes; the command was accepted.
		drainBody(resp.Body)
		return nil, nil

	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		drainBody(resp.Body)
		return nil, errAuthRequired

	case status == http.StatusNotFound:
		snippet := bodySnippet(resp.Body)
		if isPanelScoped(req.Path) {
			return nil, fmt.Errorf("%w: %s", ErrPanelNotFound, req.Path)
		}
		return nil, &StatusError{Status: status, Body: snippet}

	case status == http.StatusTooManyRequests:
		drainBody(resp.Body)
		return nil, &rateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}

	case status >= 500:
		drainBody(resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrConnection, status)

	default:
		return nil, &StatusError{Status: status, Body: bodySnippet(resp.Body)}
	}
}

// isPanelScoped reports whether a request path addresses a specific
// panel, where a 404 means the panel itself is unknown.
func isPanelScoped(path string) bool {
	return strings.Contains(path, "/panels/")
}

// parseRetryAfter reads an integer-seconds Retry-After header value.
// Returns 0 for absent or unparseable values.
func parseRetryAfter(value string) int {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}

// sleepContext waits for d or until ctx is done, whichever is first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
