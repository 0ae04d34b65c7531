package crow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// authAPIServer runs a login endpoint plus one API endpoint whose
// behaviour is controlled per-call by the respond function.
func authAPIServer(t *testing.T, respond func(call int, w http.ResponseWriter, r *http.Request)) (*httptest.Server, *loginHandler, *atomic.Int32) {
	t.Helper()

	login := &loginHandler{}
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == loginPath {
			login.serve(w, r)
			return
		}
		respond(int(calls.Add(1)), w, r)
	}))
	t.Cleanup(server.Close)
	return server, login, &calls
}

// TestExecuteRetriesServerErrors verifies 5xx responses are retried and
// the eventual success is returned.
func TestExecuteRetriesServerErrors(t *testing.T) {
	server, _, calls := authAPIServer(t, func(call int, w http.ResponseWriter, r *http.Request) {
		if call <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})

	s := newTestSession(t, server)
	payload, err := s.Execute(context.Background(), Request{Method: http.MethodGet, Path: "/api/status"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if string(payload) != `{"ok":true}` {
		t.Errorf("payload = %s, want the success body", payload)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("api calls = %d, want 3 (two failures plus success)", got)
	}
}

// TestExecuteRetryExhaustion verifies the final transient error is
// returned after retry_count+1 attempts.
func TestExecuteRetryExhaustion(t *testing.T) {
	server, _, calls := authAPIServer(t, func(call int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	s := newTestSession(t, server) // retry_count = 3
	_, err := s.Execute(context.Background(), Request{Method: http.MethodGet, Path: "/api/status"})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Execute() error = %v, want ErrConnection", err)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("api calls = %d, want 4 (initial + 3 retries)", got)
	}
}

// TestExecuteTokenRefreshOn401 verifies a 401 triggers one token
// refresh and a replay that does not consume a retry slot.
func TestExecuteTokenRefreshOn401(t *testing.T) {
	server, login, calls := authAPIServer(t, func(call int, w http.ResponseWriter, r *http.Request) {
		if call == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("replay missing refreshed token, got %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"ok":true}`))
	})

	cfg := testConfig(server.URL)
	cfg.RetryCount = 0 // replay must succeed even with no retry budget
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	defer s.Close()

	_, err = s.Execute(context.Background(), Request{
		Method:       http.MethodGet,
		Path:         "/api/panels",
		RequiresAuth: true,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := login.calls.Load(); got != 2 {
		t.Errorf("login calls = %d, want 2 (initial + refresh)", got)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("api calls = %d, want 2 (rejected + replay)", got)
	}
}

// TestExecuteLate401KeepsRefreshedToken verifies a 401 issued against
// an already-replaced token does not wipe the fresh token or cost a
// second login: the late caller reuses the refreshed token on replay.
func TestExecuteLate401KeepsRefreshedToken(t *testing.T) {
	var logins atomic.Int32
	var rejected atomic.Bool
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == loginPath {
			n := logins.Add(1)
			json.NewEncoder(w).Encode(map[string]any{
				"token":     fmt.Sprintf("token-%d", n),
				"expiresIn": 3600,
			})
			return
		}
		if r.Header.Get("Authorization") == "Bearer token-1" {
			// Stale token. The first rejection returns immediately; the
			// second is held until the first caller has refreshed and
			// replayed, so its 401 lands against the replaced token.
			if rejected.CompareAndSwap(false, true) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			<-release
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	s := newTestSession(t, server)
	if err := s.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	req := Request{Method: http.MethodGet, Path: "/api/panels", RequiresAuth: true}
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := s.Execute(context.Background(), req)
			errs <- err
		}()
	}

	// One caller finishes its whole 401/refresh/replay cycle before the
	// other's rejection is delivered.
	if err := <-errs; err != nil {
		t.Fatalf("first Execute() error = %v", err)
	}
	close(release)
	if err := <-errs; err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}

	if got := logins.Load(); got != 2 {
		t.Errorf("login calls = %d, want 2 (initial + one shared refresh)", got)
	}
}

// TestExecuteSecond401IsFatal verifies a rejection after refresh maps
// to ErrAuthentication without further attempts.
func TestExecuteSecond401IsFatal(t *testing.T) {
	server, _, calls := authAPIServer(t, func(call int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	s := newTestSession(t, server)
	_, err := s.Execute(context.Background(), Request{
		Method:       http.MethodGet,
		Path:         "/api/panels",
		RequiresAuth: true,
	})
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("Execute() error = %v, want ErrAuthentication", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("api calls = %d, want 2 (one refresh, then fatal)", got)
	}
}

// TestExecutePanelNotFound verifies a 404 on a panel path is fatal on
// the first attempt.
func TestExecutePanelNotFound(t *testing.T) {
	server, _, calls := authAPIServer(t, func(call int, w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	s := newTestSession(t, server)
	_, err := s.Execute(context.Background(), Request{Method: http.MethodGet, Path: "/api/panels/000f12345678/areas"})
	if !errors.Is(err, ErrPanelNotFound) {
		t.Fatalf("Execute() error = %v, want ErrPanelNotFound", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("api calls = %d, want 1 (no retry on missing panel)", got)
	}
}

// TestExecute404OutsidePanelScope verifies a 404 off the panel paths is
// an ordinary response error carrying the status.
func TestExecute404OutsidePanelScope(t *testing.T) {
	server, _, _ := authAPIServer(t, func(call int, w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	s := newTestSession(t, server)
	_, err := s.Execute(context.Background(), Request{Method: http.MethodGet, Path: "/api/unknown"})
	if !errors.Is(err, ErrResponse) {
		t.Fatalf("Execute() error = %v, want ErrResponse", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Errorf("error = %v, want StatusError with 404", err)
	}
	if errors.Is(err, ErrPanelNotFound) {
		t.Error("non-panel 404 must not map to ErrPanelNotFound")
	}
}

// TestExecuteRateLimit verifies 429 responses are retried and the
// Retry-After hint is clamped to the backoff cap.
func TestExecuteRateLimit(t *testing.T) {
	server, _, calls := authAPIServer(t, func(call int, w http.ResponseWriter, r *http.Request) {
		if call == 1 {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})

	s := newTestSession(t, server) // backoff cap 10ms
	start := time.Now()
	_, err := s.Execute(context.Background(), Request{Method: http.MethodGet, Path: "/api/status"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("waited %v; the 30s Retry-After hint was not clamped to the cap", elapsed)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("api calls = %d, want 2", got)
	}
}

// TestExecute408IsAcceptedCommand verifies the panel's 408 on slow
// commands is treated as success with no payload.
func TestExecute408IsAcceptedCommand(t *testing.T) {
	server, _, _ := authAPIServer(t, func(call int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestTimeout)
	})

	s := newTestSession(t, server)
	payload, err := s.Execute(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/api/panels/000f12345678/areas/1/state",
		Body:   map[string]string{"state": "arm"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if payload != nil {
		t.Errorf("payload = %s, want nil for a 408 command", payload)
	}
}

// TestExecuteEmptyBody verifies 2xx with an empty body yields nil, nil.
func TestExecuteEmptyBody(t *testing.T) {
	server, _, _ := authAPIServer(t, func(call int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	s := newTestSession(t, server)
	payload, err := s.Execute(context.Background(), Request{Method: http.MethodDelete, Path: "/api/thing"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if payload != nil {
		t.Errorf("payload = %s, want nil", payload)
	}
}

// TestExecuteCancellation verifies cancellation aborts the backoff wait
// and surfaces context.Canceled.
func TestExecuteCancellation(t *testing.T) {
	server, _, _ := authAPIServer(t, func(call int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	cfg := testConfig(server.URL)
	cfg.Backoff.Base = 10 // long enough that cancellation lands mid-wait
	cfg.Backoff.Max = 10
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = s.Execute(ctx, Request{Method: http.MethodGet, Path: "/api/status"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v, should abort the backoff wait", elapsed)
	}
}

// TestExecuteConnectionRefused verifies transport failures map to
// ErrConnection after exhausting retries.
func TestExecuteConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listening any more

	cfg := testConfig(server.URL)
	cfg.RetryCount = 1
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	defer s.Close()

	_, err = s.Execute(context.Background(), Request{Method: http.MethodGet, Path: "/api/status"})
	if !errors.Is(err, ErrConnection) {
		t.Errorf("Execute() error = %v, want ErrConnection", err)
	}
}

// TestParseRetryAfter verifies header parsing tolerance.
func TestParseRetryAfter(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"30", 30},
		{" 5 ", 5},
		{"", 0},
		{"-1", 0},
		{"soon", 0},
	}
	for _, tc := range cases {
		if got := parseRetryAfter(tc.input); got != tc.want {
			t.Errorf("parseRetryAfter(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

// TestGetPanelsDecoding verifies list decoding and MAC filtering end to
// end through Execute.
func TestGetPanelsDecoding(t *testing.T) {
	server, _, _ := authAPIServer(t, func(call int, w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"mac": "00:0F:12:34:56:78", "name": "Home"},
			{"name": "No MAC, skipped"},
		})
	})

	s := newTestSession(t, server)
	panels, err := s.GetPanels(context.Background())
	if err != nil {
		t.Fatalf("GetPanels() error = %v", err)
	}
	if len(panels) != 1 {
		t.Fatalf("panels = %d, want 1", len(panels))
	}
	if panels[0].MAC != "000f12345678" {
		t.Errorf("MAC = %q, want normalised 000f12345678", panels[0].MAC)
	}
	if panels[0].Name != "Home" {
		t.Errorf("Name = %q, want Home", panels[0].Name)
	}
}
