package crow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// inboundBufferSize is the realtime frame buffer between the reader
// goroutine and the dispatcher. Large enough to let a superseded
// reader flush and exit without blocking.
const inboundBufferSize = 16

// RealtimeState is the connection state of a Realtime channel.
type RealtimeState int32

// Realtime channel states.
const (
	StateDisconnected RealtimeState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s RealtimeState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MessageHandler is the callback signature for realtime events.
//
// Handlers are invoked synchronously in arrival order for each
// message of a connection; a returned error is reported to the error
// sink and does not affect delivery of subsequent messages.
type MessageHandler func(msg map[string]any) error

// Realtime is a reconnecting event feed for one panel.
//
// It maintains a single websocket connection at a time, tagged with a
// monotonically increasing epoch. On disconnection it reconnects with
// capped exponential backoff and discards any frame still in flight
// from the superseded connection, so a reconnect race can never
// deliver stale data after fresher state.
//
// Thread Safety: Run is called once; Close, State, Epoch and
// SetOnError are safe from any goroutine.
type Realtime struct {
	session *Session
	mac     string
	handler MessageHandler
	backoff Backoff
	dwell   time.Duration

	// epoch identifies the current physical connection. Frames tagged
	// with an older epoch are dropped by the dispatcher.
	epoch atomic.Uint64
	state atomic.Int32

	inbound chan inboundFrame
	done    chan struct{}

	conn   *websocket.Conn
	connMu sync.Mutex

	// closed plus dispatchMu guarantee no handler invocation can start
	// after Close returns.
	closed     atomic.Bool
	dispatchMu sync.Mutex
	closeOnce  sync.Once

	onError func(err error)
	errMu   sync.RWMutex
}

// inboundFrame is one decoded message or terminal error from a
// reader goroutine, tagged with the connection epoch it came from.
type inboundFrame struct {
	epoch uint64
	msg   map[string]any
	err   error
}

// Realtime creates an event channel for the given panel MAC. The
// channel shares the session's credentials and token refresh logic;
// call Run to start it.
//
// Parameters:
//   - mac: Panel MAC address (any separator format)
//   - handler: Callback invoked for every decoded event
//
// Returns:
//   - *Realtime: Channel ready to run
//   - error: ErrInvalidMAC, ErrClosed, or nil handler
func (s *Session) Realtime(mac string, handler MessageHandler) (*Realtime, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: handler cannot be nil", ErrResponse)
	}
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	return &Realtime{
		session: s,
		mac:     normalized,
		handler: handler,
		backoff: s.backoff,
		dwell:   s.cfg.Realtime.GetDwell(),
		inbound: make(chan inboundFrame, inboundBufferSize),
		done:    make(chan struct{}),
	}, nil
}

// SetOnError sets a callback for non-terminal channel errors:
// disconnections, malformed frames, and handler failures. The channel
// keeps running after reporting them.
func (r *Realtime) SetOnError(callback func(err error)) {
	r.errMu.Lock()
	r.onError = callback
	r.errMu.Unlock()
}

// State returns the current channel state.
func (r *Realtime) State() RealtimeState {
	return RealtimeState(r.state.Load())
}

// Epoch returns the current connection epoch. It increases by one for
// every physical connection attempt.
func (r *Realtime) Epoch() uint64 {
	return r.epoch.Load()
}

// Run connects and delivers events until ctx is cancelled or Close is
// called. Transport failures trigger reconnection with backoff; the
// consecutive-failure counter resets after a connection survives the
// configured dwell, so a transient blip does not inherit the long
// delays of a past outage.
//
// Returns:
//   - error: nil on cancellation or Close; ErrAuthentication if the
//     account credentials are no longer accepted (terminal)
func (r *Realtime) Run(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	defer r.Close()

	failures := 0
	for {
		if ctx.Err() != nil || r.closed.Load() {
			return nil
		}

		r.state.Store(int32(StateConnecting))
		epoch := r.epoch.Add(1)

		conn, err := r.connect(ctx)
		if err != nil {
			if errors.Is(err, ErrAuthentication) {
				r.reportError(err)
				return err
			}
			if errors.Is(err, context.Canceled) || ctx.Err() != nil || r.closed.Load() {
				return nil
			}
			r.reportError(err)
			r.state.Store(int32(StateReconnecting))
			if sleepContext(ctx, r.backoff.DelayFor(failures)) != nil {
				return nil
			}
			failures++
			continue
		}

		r.setConn(conn)
		r.state.Store(int32(StateConnected))
		connectedAt := time.Now()

		go r.readConn(conn, epoch)
		err = r.dispatch(ctx, epoch)
		r.closeConn()

		if ctx.Err() != nil || r.closed.Load() {
			return nil
		}

		// A connection that held for the dwell period proves the
		// outage was transient; start backoff from scratch.
		if time.Since(connectedAt) >= r.dwell {
			failures = 0
		}
		if err != nil {
			r.reportError(err)
		}
		r.state.Store(int32(StateReconnecting))
		if sleepContext(ctx, r.backoff.DelayFor(failures)) != nil {
			return nil
		}
		failures++
	}
}

// Close stops the channel from any state: the physical connection is
// closed and the handler is guaranteed not to be invoked again once
// Close returns. Idempotent. Must not be called from inside the
// message handler (it waits for the in-flight delivery to finish).
func (r *Realtime) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		// Wait out any handler call already in flight; with the
		// closed flag set, no new one can start.
		r.dispatchMu.Lock()
		r.dispatchMu.Unlock() //nolint:staticcheck // barrier, not a critical section
		close(r.done)
		r.closeConn()
		r.state.Store(int32(StateClosed))
	})
	return nil
}

// connect obtains a token and dials the panel's event feed.
func (r *Realtime) connect(ctx context.Context) (*websocket.Conn, error) {
	token, err := r.session.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	url := strings.Replace(r.session.apiBase, "http", "ws", 1) + "/ws/panels/" + r.mac

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			// Rejected token: drop it (unless a concurrent caller has
			// already replaced it) so the next attempt re-authenticates.
			// If the credentials themselves are bad, that attempt fails
			// with ErrAuthentication and ends Run.
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				r.session.creds.InvalidateIfCurrent(token)
			}
			return nil, fmt.Errorf("%w: event feed handshake: status %d: %w", ErrConnection, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: event feed: %w", ErrConnection, err)
	}
	return conn, nil
}

// readConn reads frames from one connection and forwards them tagged
// with its epoch. It exits on the first read or decode error.
func (r *Realtime) readConn(conn *websocket.Conn, epoch uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.push(inboundFrame{epoch: epoch, err: fmt.Errorf("%w: event feed read: %w", ErrConnection, err)})
			return
		}

		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			// Malformed frame: drop the connection rather than guess
			// at a partial message.
			r.push(inboundFrame{epoch: epoch, err: fmt.Errorf("%w: malformed event frame: %w", ErrConnection, err)})
			return
		}
		r.push(inboundFrame{epoch: epoch, msg: msg})
	}
}

// push forwards a frame unless the channel is shutting down.
func (r *Realtime) push(frame inboundFrame) {
	select {
	case r.inbound <- frame:
	case <-r.done:
	}
}

// dispatch delivers frames for the given epoch in arrival order.
// Frames from superseded epochs are dropped. Returns the transport
// error that ended the connection, or nil on cancellation.
func (r *Realtime) dispatch(ctx context.Context, epoch uint64) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.done:
			return nil
		case frame := <-r.inbound:
			if frame.epoch != r.epoch.Load() {
				// Stale: a newer connection has superseded this one.
				continue
			}
			if frame.err != nil {
				return frame.err
			}
			if isDECTInfoFrame(frame.msg) {
				continue
			}
			r.deliver(frame.msg)
		}
	}
}

// deliver invokes the handler with panic and error isolation. A
// faulting handler is reported to the error sink; the channel keeps
// delivering subsequent messages.
func (r *Realtime) deliver(msg map[string]any) {
	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()
	if r.closed.Load() {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.reportError(fmt.Errorf("crow: realtime handler panic: %v", rec))
		}
	}()

	if err := r.handler(msg); err != nil {
		r.reportError(fmt.Errorf("crow: realtime handler: %w", err))
	}
}

func (r *Realtime) setConn(conn *websocket.Conn) {
	r.connMu.Lock()
	r.conn = conn
	r.connMu.Unlock()
}

func (r *Realtime) closeConn() {
	r.connMu.Lock()
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
	r.connMu.Unlock()
}

func (r *Realtime) reportError(err error) {
	r.errMu.RLock()
	callback := r.onError
	r.errMu.RUnlock()
	if callback != nil {
		callback(err)
	}

	if logger := r.session.getLogger(); logger != nil {
		logger.Warn("realtime channel error", "panel", r.mac, "error", err)
	}
}

// isDECTInfoFrame matches the periodic DECT interface info frames the
// panel emits; they carry no event data and are filtered out.
func isDECTInfoFrame(msg map[string]any) bool {
	if msg["type"] != "info" {
		return false
	}
	data, ok := msg["data"].(map[string]any)
	if !ok {
		return false
	}
	id, ok := data["_id"].(map[string]any)
	if !ok {
		return false
	}
	iface, ok := id["dect_interface"].(float64)
	return ok && iface == 32768
}
