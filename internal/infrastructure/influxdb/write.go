package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePanelMeasurement records one panel sensor reading.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - mac: Normalised panel MAC address
//   - measurementID: Measurement identifier on the panel
//   - name: Human-readable measurement name (e.g. "Hallway Temp")
//   - unit: Unit string as reported by the panel (may be empty)
//   - value: The reading
func (c *Client) WritePanelMeasurement(mac, measurementID, name, unit string, value float64) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"panel":          mac,
		"measurement_id": measurementID,
		"name":           name,
	}
	if unit != "" {
		tags["unit"] = unit
	}

	point := write.NewPoint(
		"panel_measurements",
		tags,
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteZoneBattery records a zone battery level, for tracking sensor
// batteries across the site.
func (c *Client) WriteZoneBattery(mac, zoneID, name string, level int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"zone_battery",
		map[string]string{
			"panel": mac,
			"zone":  zoneID,
			"name":  name,
		},
		map[string]interface{}{
			"level": level,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
