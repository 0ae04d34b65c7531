// Package mqtt provides MQTT broker connectivity for the crowlink
// bridge.
//
// It wraps paho.mqtt.golang with connection management, automatic
// reconnection with exponential backoff, subscription restoration,
// and panic-safe message handlers.
//
// # Topics
//
// All topics live under the crowlink/ prefix; see topics.go for the
// layout. Panel events are republished as received, area snapshots
// and system status are retained.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.Publish(mqtt.Topics{}.PanelEvents(mac), payload, 1, false)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package mqtt
