// Package journal provides a local SQLite-backed record of panel
// events received over the realtime feed.
//
// The journal gives the bridge an alarm history that survives cloud
// outages and daemon restarts. Events are stored as raw JSON so the
// journal never has to chase cloud-side schema changes.
package journal
