// Crowlink - Crow Cloud alarm panel bridge
//
// Crowlink connects Crow/AAP alarm panels (via the Crow Cloud API) to
// local infrastructure:
//   - Realtime panel events republished on MQTT
//   - Arm/disarm/output commands accepted over MQTT
//   - Sensor readings and zone batteries recorded to InfluxDB
//   - Event history journalled to SQLite
//
// MQTT, InfluxDB, and the journal are each optional; enable them
// independently in config.yaml.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/crowlink/internal/bridge"
	"github.com/nerrad567/crowlink/internal/crow"
	"github.com/nerrad567/crowlink/internal/infrastructure/config"
	"github.com/nerrad567/crowlink/internal/infrastructure/database"
	"github.com/nerrad567/crowlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/crowlink/internal/infrastructure/logging"
	"github.com/nerrad567/crowlink/internal/infrastructure/mqtt"
	"github.com/nerrad567/crowlink/internal/journal"
	"github.com/nerrad567/crowlink/internal/recorder"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting crowlink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open the cloud session and verify credentials before starting
	// anything that depends on it
	session, err := crow.NewSession(cfg.Crow)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	session.SetLogger(log)
	defer func() {
		log.Info("closing cloud session")
		if closeErr := session.Close(); closeErr != nil {
			log.Error("error closing session", "error", closeErr)
		}
	}()

	if err := session.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticating with Crow Cloud: %w", err)
	}
	log.Info("authenticated with Crow Cloud", "api", cfg.Crow.APIBase)

	// Resolve panels: configured list, or cloud discovery
	panels, err := resolvePanels(ctx, cfg, session)
	if err != nil {
		return err
	}
	if len(panels) == 0 {
		return fmt.Errorf("no panels configured or discoverable on the account")
	}
	log.Info("panels resolved", "count", len(panels), "panels", panels)

	// Open the event journal (optional)
	var eventJournal *journal.Journal
	if cfg.Database.Enabled {
		db, openErr := database.Open(cfg.Database)
		if openErr != nil {
			return fmt.Errorf("opening database: %w", openErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		eventJournal, err = journal.New(db.DB)
		if err != nil {
			return fmt.Errorf("initialising journal: %w", err)
		}
		log.Info("event journal ready", "path", cfg.Database.Path)
	} else {
		log.Info("event journal disabled")
	}

	// Connect to InfluxDB and start the measurement recorder (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)

		rec := recorder.New(recorder.Config{
			Panels:   panels,
			Interval: cfg.Bridge.GetPollInterval(),
			Reader:   session,
			Writer:   influxClient,
		})
		rec.SetLogger(log)
		rec.Start(ctx)
		defer func() {
			log.Info("stopping measurement recorder")
			rec.Stop()
		}()
		log.Info("measurement recorder started", "interval", cfg.Bridge.GetPollInterval())
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT and start the panel bridge (optional)
	if cfg.MQTT.Enabled {
		mqttClient, connErr := mqtt.Connect(cfg.MQTT)
		if connErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", connErr)
		}
		mqttClient.SetLogger(log)
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected", "host", cfg.MQTT.Broker.Host, "port", cfg.MQTT.Broker.Port)

		panelBridge, newErr := bridge.New(bridge.Config{
			Panels:    panels,
			QoS:       byte(cfg.MQTT.QoS),
			Service:   session,
			Publisher: mqttClient,
			Recorder:  journalRecorder(eventJournal),
		})
		if newErr != nil {
			return fmt.Errorf("creating bridge: %w", newErr)
		}
		panelBridge.SetLogger(log)

		if startErr := panelBridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping bridge")
			panelBridge.Stop()
		}()
		log.Info("bridge started", "panels", len(panels))
	} else {
		log.Info("MQTT disabled, bridge not started")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("crowlink stopped")
	return nil
}

// resolvePanels returns the panels to mirror: the configured list with
// MACs normalised, or every panel on the account when none are listed.
func resolvePanels(ctx context.Context, cfg *config.Config, session *crow.Session) ([]string, error) {
	if len(cfg.Bridge.Panels) > 0 {
		panels := make([]string, 0, len(cfg.Bridge.Panels))
		for _, raw := range cfg.Bridge.Panels {
			mac, err := crow.NormalizeMAC(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid panel %q in config: %w", raw, err)
			}
			panels = append(panels, mac)
		}
		return panels, nil
	}

	discovered, err := session.GetPanels(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering panels: %w", err)
	}
	panels := make([]string, 0, len(discovered))
	for _, p := range discovered {
		panels = append(panels, p.MAC)
	}
	return panels, nil
}

// journalRecorder adapts an optional journal to the bridge's recorder
// interface. A typed nil pointer inside a non-nil interface would
// defeat the bridge's nil check, hence the explicit conversion.
func journalRecorder(j *journal.Journal) bridge.EventRecorder {
	if j == nil {
		return nil
	}
	return j
}

// getConfigPath returns the configuration file path.
// Uses CROWLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CROWLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
