// Package bridge mirrors Crow alarm panels onto MQTT.
//
// For each configured panel the bridge maintains a realtime cloud
// channel and republishes events under crowlink/panels/{mac}/events.
// A retained snapshot of area states lives at
// crowlink/panels/{mac}/areas, refreshed whenever an area event
// arrives. Arm, stay-arm, disarm, and output commands are accepted on
// crowlink/panels/{mac}/command.
//
// Events are optionally journalled to SQLite so alarm history
// survives broker and cloud outages.
package bridge
