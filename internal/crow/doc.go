// Package crow provides a client for the Crow Cloud alarm-panel API.
//
// It handles credential-based authentication with token lifecycle,
// request execution with retry and error classification, and a
// reconnecting realtime event feed per panel.
//
// # Usage
//
//	session, err := crow.NewSession(cfg.Crow)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	panel, err := session.GetPanel(ctx, "00:1D:94:AA:BB:CC")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	areas, err := panel.GetAreas(ctx)
//
// Realtime events are delivered through a per-panel channel:
//
//	rt, err := session.Realtime(panel.MAC, func(msg map[string]any) error {
//	    fmt.Println("event:", msg)
//	    return nil
//	})
//	go rt.Run(ctx)
//
// # Thread Safety
//
// A single Session is safe for concurrent use from multiple
// goroutines. Concurrent requests share one HTTP transport and one
// credential store; simultaneous token refreshes collapse into a
// single authentication call.
//
// # Error Handling
//
// All failures map to the sentinel errors in errors.go and can be
// checked with errors.Is(). Transient failures (network, 5xx, 429,
// timeouts) are retried with capped exponential backoff before being
// surfaced; authentication failures and unknown panels are returned
// immediately.
package crow
