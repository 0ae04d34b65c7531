package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/crowlink/internal/crow"
)

// defaultInterval is how often panels are polled when no interval is configured.
const defaultInterval = 5 * time.Minute

// PanelReader provides the panel telemetry the recorder polls.
// This is typically implemented by a crow.Session.
type PanelReader interface {
	// GetMeasurements returns the panel's current sensor readings.
	GetMeasurements(ctx context.Context, mac string) ([]crow.Measurement, error)

	// GetZones returns the panel's zones, including battery levels.
	GetZones(ctx context.Context, mac string) ([]crow.Zone, error)
}

// TelemetryWriter receives polled readings.
// This is typically implemented by an influxdb.Client.
type TelemetryWriter interface {
	// WritePanelMeasurement records one sensor reading.
	WritePanelMeasurement(mac, measurementID, name, unit string, value float64)

	// WriteZoneBattery records a zone battery level.
	WriteZoneBattery(mac, zoneID, name string, level int)
}

// Logger is the minimal logging interface the recorder needs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Config holds configuration for the measurement recorder.
type Config struct {
	// Panels is the list of normalised panel MAC addresses to poll.
	Panels []string

	// Interval is how often to poll each panel.
	// Default: 5 minutes.
	Interval time.Duration

	// Reader provides panel telemetry.
	Reader PanelReader

	// Writer receives polled readings.
	Writer TelemetryWriter
}

// Recorder periodically polls panel measurements and zone battery
// levels and writes them to time-series storage.
//
// A cloud read failing for one panel is logged and skipped; the next
// tick retries. The recorder never terminates on poll errors.
type Recorder struct {
	panels   []string
	interval time.Duration
	reader   PanelReader
	writer   TelemetryWriter

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a measurement recorder.
//
// Parameters:
//   - cfg: Configuration for the recorder
//
// Returns:
//   - *Recorder: Ready to start (call Start to begin polling)
func New(cfg Config) *Recorder {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Recorder{
		panels:   cfg.Panels,
		interval: interval,
		reader:   cfg.Reader,
		writer:   cfg.Writer,
		done:     make(chan struct{}),
	}
}

// Start begins periodic polling. An initial poll runs immediately so
// data appears without waiting a full interval.
//
// Parameters:
//   - ctx: Context for cancellation (will stop polling when cancelled)
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.pollLoop(ctx)
}

// Stop gracefully stops polling.
// Safe to call multiple times (uses sync.Once).
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

// SetLogger sets the logger for this recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// pollLoop runs the periodic measurement polling.
func (r *Recorder) pollLoop(ctx context.Context) {
	defer r.wg.Done()

	r.pollAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.pollAll(ctx)
		}
	}
}

// pollAll polls every configured panel once.
func (r *Recorder) pollAll(ctx context.Context) {
	for _, mac := range r.panels {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		default:
		}

		r.pollPanel(ctx, mac)
	}
}

// pollPanel reads one panel's measurements and zone batteries and
// forwards them to the writer.
func (r *Recorder) pollPanel(ctx context.Context, mac string) {
	measurements, err := r.reader.GetMeasurements(ctx, mac)
	if err != nil {
		r.logWarn("measurement poll failed", "panel", mac, "error", err)
	} else {
		for _, m := range measurements {
			if !m.HasValue {
				continue
			}
			r.writer.WritePanelMeasurement(mac, m.ID, m.Name, m.Unit, m.Value)
		}
	}

	zones, err := r.reader.GetZones(ctx, mac)
	if err != nil {
		r.logWarn("zone poll failed", "panel", mac, "error", err)
		return
	}
	for _, z := range zones {
		if z.Battery < 0 {
			continue
		}
		r.writer.WriteZoneBattery(mac, z.ID, z.Name, z.Battery)
	}
}

// logWarn logs a warning if a logger is set.
func (r *Recorder) logWarn(msg string, args ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, args...)
	}
}
