// Package recorder polls panel sensor readings and zone battery
// levels on a fixed interval and forwards them to time-series storage.
//
// The cloud API only reports current values, so the recorder is what
// turns spot readings into history: temperature trends, humidity
// curves, and slow battery decay across the site.
package recorder
