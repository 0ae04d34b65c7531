// Package influxdb provides time-series storage for panel telemetry.
//
// The measurement recorder writes panel sensor readings (temperature,
// humidity, zone battery levels) to InfluxDB v2 using the non-blocking
// batched write API.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WritePanelMeasurement(mac, "3", "Hallway Temp", "C", 21.5)
//
// # Error Handling
//
// Writes are non-blocking and batched; write errors are reported via
// the SetOnError callback rather than returned.
package influxdb
