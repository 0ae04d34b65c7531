package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/crowlink/internal/crow"
	"github.com/nerrad567/crowlink/internal/infrastructure/mqtt"
)

// recordTimeout bounds journal writes so a stuck database cannot
// stall event delivery.
const recordTimeout = 5 * time.Second

// PanelService provides the cloud operations the bridge needs.
// This is typically implemented by a crow.Session.
type PanelService interface {
	// Realtime opens a realtime event channel for a panel.
	Realtime(mac string, handler crow.MessageHandler) (*crow.Realtime, error)

	// GetAreas returns the panel's areas.
	GetAreas(ctx context.Context, mac string) ([]crow.Area, error)

	// SetAreaState arms, stay-arms, or disarms an area.
	SetAreaState(ctx context.Context, mac, areaID string, command crow.AreaCommand) (crow.Area, bool, error)

	// SetOutputState switches a panel output on or off.
	SetOutputState(ctx context.Context, mac, outputID string, on bool) error
}

// Publisher is the MQTT surface the bridge publishes to and
// subscribes on. This is typically implemented by an mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// EventRecorder persists panel events locally.
// This is typically implemented by a journal.Journal.
type EventRecorder interface {
	RecordEvent(ctx context.Context, panelMAC string, event map[string]any) error
}

// Logger is the minimal logging interface the bridge needs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

// Config holds configuration for the bridge.
type Config struct {
	// Panels is the list of normalised panel MAC addresses to mirror.
	Panels []string

	// QoS is the MQTT quality of service for published messages.
	QoS byte

	// Service provides the cloud operations.
	Service PanelService

	// Publisher is the MQTT client.
	Publisher Publisher

	// Recorder persists events locally. Optional; nil disables journalling.
	Recorder EventRecorder
}

// command is the payload accepted on crowlink/panels/{mac}/command.
//
// Area commands:
//
//	{"action": "arm", "area_id": "1"}
//	{"action": "stay", "area_id": "1"}
//	{"action": "disarm", "area_id": "1"}
//
// Output commands:
//
//	{"action": "output", "output_id": "2", "state": true}
type command struct {
	Action   string `json:"action"`
	AreaID   string `json:"area_id"`
	OutputID string `json:"output_id"`
	State    bool   `json:"state"`
}

// Bridge mirrors alarm panels onto MQTT.
//
// For every configured panel it maintains a realtime channel, republishes
// each event on the panel's event topic, keeps a retained area snapshot
// current, and executes arm/disarm/output commands received on the
// panel's command topic.
type Bridge struct {
	panels    []string
	qos       byte
	service   PanelService
	publisher Publisher
	recorder  EventRecorder
	topics    mqtt.Topics

	wg       sync.WaitGroup
	stopOnce sync.Once
	cancel   context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a bridge.
//
// Parameters:
//   - cfg: Configuration for the bridge
//
// Returns:
//   - *Bridge: Ready to start (call Start to begin mirroring)
//   - error: If no panels are configured or a dependency is missing
func New(cfg Config) (*Bridge, error) {
	if len(cfg.Panels) == 0 {
		return nil, fmt.Errorf("bridge: no panels configured")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("bridge: panel service is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("bridge: publisher is required")
	}

	return &Bridge{
		panels:    cfg.Panels,
		qos:       cfg.QoS,
		service:   cfg.Service,
		publisher: cfg.Publisher,
		recorder:  cfg.Recorder,
	}, nil
}

// Start begins mirroring. It subscribes to the command topic, publishes
// an initial area snapshot per panel, and starts one realtime channel
// per panel.
//
// Parameters:
//   - ctx: Context for cancellation (will stop mirroring when cancelled)
//
// Returns:
//   - error: If the command subscription fails
func (b *Bridge) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)

	if err := b.publisher.Subscribe(b.topics.AllPanelCommands(), b.qos, b.handleCommand(ctx)); err != nil {
		b.cancel()
		return fmt.Errorf("bridge: subscribing to commands: %w", err)
	}

	for _, mac := range b.panels {
		b.publishAreas(ctx, mac)

		b.wg.Add(1)
		go b.mirrorPanel(ctx, mac)
	}

	return nil
}

// Stop gracefully stops the bridge and waits for all panel channels
// to shut down. Safe to call multiple times (uses sync.Once).
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		b.wg.Wait()
	})
}

// SetLogger sets the logger for this bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// mirrorPanel runs one panel's realtime channel until the context is
// cancelled. Authentication failures are terminal for the whole bridge
// run; the channel itself handles transient reconnects.
func (b *Bridge) mirrorPanel(ctx context.Context, mac string) {
	defer b.wg.Done()

	rt, err := b.service.Realtime(mac, b.handleEvent(ctx, mac))
	if err != nil {
		b.logError("realtime channel setup failed", "panel", mac, "error", err)
		return
	}
	rt.SetOnError(func(err error) {
		b.logWarn("realtime channel error", "panel", mac, "error", err)
	})

	if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		b.logError("realtime channel terminated", "panel", mac, "error", err)
	}
}

// handleEvent returns the realtime handler for one panel. Each event
// is republished on the panel's event topic, journalled, and area
// events additionally refresh the retained area snapshot.
func (b *Bridge) handleEvent(ctx context.Context, mac string) crow.MessageHandler {
	return func(msg map[string]any) error {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}

		if err := b.publisher.Publish(b.topics.PanelEvents(mac), payload, b.qos, false); err != nil {
			b.logWarn("event publish failed", "panel", mac, "error", err)
		}

		if b.recorder != nil {
			recordCtx, cancel := context.WithTimeout(ctx, recordTimeout)
			if err := b.recorder.RecordEvent(recordCtx, mac, msg); err != nil {
				b.logWarn("event journal write failed", "panel", mac, "error", err)
			}
			cancel()
		}

		if crow.ParseEvent(msg).IsAreaEvent() {
			b.publishAreas(ctx, mac)
		}

		return nil
	}
}

// handleCommand returns the MQTT handler for inbound panel commands.
func (b *Bridge) handleCommand(ctx context.Context) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		mac, err := panelFromTopic(topic)
		if err != nil {
			return err
		}

		var cmd command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("decoding command: %w", err)
		}

		switch cmd.Action {
		case "arm", "stay", "disarm":
			if cmd.AreaID == "" {
				return fmt.Errorf("command %q requires area_id", cmd.Action)
			}
			_, _, err := b.service.SetAreaState(ctx, mac, cmd.AreaID, crow.AreaCommand(cmd.Action))
			if err != nil {
				return fmt.Errorf("executing %s on area %s: %w", cmd.Action, cmd.AreaID, err)
			}
			b.logInfo("area command executed", "panel", mac, "area", cmd.AreaID, "action", cmd.Action)
			return nil

		case "output":
			if cmd.OutputID == "" {
				return fmt.Errorf("output command requires output_id")
			}
			if err := b.service.SetOutputState(ctx, mac, cmd.OutputID, cmd.State); err != nil {
				return fmt.Errorf("switching output %s: %w", cmd.OutputID, err)
			}
			b.logInfo("output command executed", "panel", mac, "output", cmd.OutputID, "state", cmd.State)
			return nil

		default:
			return fmt.Errorf("unknown command action %q", cmd.Action)
		}
	}
}

// publishAreas publishes the retained area snapshot for one panel.
// Failures are logged; the snapshot refreshes on the next area event.
func (b *Bridge) publishAreas(ctx context.Context, mac string) {
	areas, err := b.service.GetAreas(ctx, mac)
	if err != nil {
		b.logWarn("area snapshot fetch failed", "panel", mac, "error", err)
		return
	}

	payload, err := json.Marshal(areas)
	if err != nil {
		b.logError("area snapshot encode failed", "panel", mac, "error", err)
		return
	}

	if err := b.publisher.Publish(b.topics.PanelAreas(mac), payload, b.qos, true); err != nil {
		b.logWarn("area snapshot publish failed", "panel", mac, "error", err)
	}
}

// panelFromTopic extracts the panel MAC from a command topic
// (crowlink/panels/{mac}/command).
func panelFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[1] != "panels" || parts[3] != "command" {
		return "", fmt.Errorf("unexpected command topic %q", topic)
	}
	return crow.NormalizeMAC(parts[2])
}

// logError logs an error if a logger is set.
func (b *Bridge) logError(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Error(msg, args...)
	}
}

// logWarn logs a warning if a logger is set.
func (b *Bridge) logWarn(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}

// logInfo logs at info level if a logger is set.
func (b *Bridge) logInfo(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}
