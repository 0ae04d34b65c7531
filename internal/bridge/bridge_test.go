package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/crowlink/internal/crow"
	"github.com/nerrad567/crowlink/internal/infrastructure/mqtt"
)

// fakeService records cloud calls without touching the network.
type fakeService struct {
	mu          sync.Mutex
	areas       []crow.Area
	areasErr    error
	areaCmds    []string // "mac/area/action"
	outputCmds  []string // "mac/output/state"
	setAreaErr  error
	setOutErr   error
	realtimeErr error
}

func (f *fakeService) Realtime(mac string, handler crow.MessageHandler) (*crow.Realtime, error) {
	return nil, f.realtimeErr
}

func (f *fakeService) GetAreas(_ context.Context, mac string) ([]crow.Area, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.areasErr != nil {
		return nil, f.areasErr
	}
	return f.areas, nil
}

func (f *fakeService) SetAreaState(_ context.Context, mac, areaID string, command crow.AreaCommand) (crow.Area, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setAreaErr != nil {
		return crow.Area{}, false, f.setAreaErr
	}
	f.areaCmds = append(f.areaCmds, mac+"/"+areaID+"/"+string(command))
	return crow.Area{ID: areaID}, true, nil
}

func (f *fakeService) SetOutputState(_ context.Context, mac, outputID string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setOutErr != nil {
		return f.setOutErr
	}
	state := "off"
	if on {
		state = "on"
	}
	f.outputCmds = append(f.outputCmds, mac+"/"+outputID+"/"+state)
	return nil
}

// fakePublisher records published messages by topic.
type fakePublisher struct {
	mu        sync.Mutex
	published map[string][]byte
	retained  map[string]bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		published: make(map[string][]byte),
		retained:  make(map[string]bool),
	}
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = payload
	f.retained[topic] = retained
	return nil
}

func (f *fakePublisher) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	return nil
}

func (f *fakePublisher) get(topic string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.published[topic]
	return payload, ok
}

// fakeRecorder captures journalled events.
type fakeRecorder struct {
	mu     sync.Mutex
	events []map[string]any
}

func (f *fakeRecorder) RecordEvent(_ context.Context, panelMAC string, event map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func newTestBridge(t *testing.T, service *fakeService, publisher *fakePublisher, recorder EventRecorder) *Bridge {
	t.Helper()

	b, err := New(Config{
		Panels:    []string{"000f12345678"},
		QoS:       1,
		Service:   service,
		Publisher: publisher,
		Recorder:  recorder,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b
}

// TestHandleEventPublishesAndJournals verifies events flow to MQTT and
// the journal, and that area events refresh the retained snapshot.
func TestHandleEventPublishesAndJournals(t *testing.T) {
	service := &fakeService{areas: []crow.Area{{ID: "1", Name: "House", State: crow.AreaArmed}}}
	publisher := newFakePublisher()
	recorder := &fakeRecorder{}
	b := newTestBridge(t, service, publisher, recorder)

	handler := b.handleEvent(context.Background(), "000f12345678")

	event := map[string]any{"type": "area", "state": "armed"}
	if err := handler(event); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	payload, ok := publisher.get("crowlink/panels/000f12345678/events")
	if !ok {
		t.Fatal("event was not published")
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("published payload is not JSON: %v", err)
	}
	if decoded["state"] != "armed" {
		t.Errorf("published state = %v, want armed", decoded["state"])
	}

	recorder.mu.Lock()
	journalled := len(recorder.events)
	recorder.mu.Unlock()
	if journalled != 1 {
		t.Errorf("journalled events = %d, want 1", journalled)
	}

	// Area event should also refresh the retained area snapshot.
	if _, ok := publisher.get("crowlink/panels/000f12345678/areas"); !ok {
		t.Error("area snapshot was not refreshed after area event")
	}
	publisher.mu.Lock()
	retained := publisher.retained["crowlink/panels/000f12345678/areas"]
	publisher.mu.Unlock()
	if !retained {
		t.Error("area snapshot should be retained")
	}
}

// TestHandleEventNonAreaSkipsSnapshot verifies zone events do not
// trigger a snapshot refresh.
func TestHandleEventNonAreaSkipsSnapshot(t *testing.T) {
	service := &fakeService{}
	publisher := newFakePublisher()
	b := newTestBridge(t, service, publisher, nil)

	handler := b.handleEvent(context.Background(), "000f12345678")
	if err := handler(map[string]any{"type": "zone", "state": "open"}); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if _, ok := publisher.get("crowlink/panels/000f12345678/areas"); ok {
		t.Error("zone event should not refresh the area snapshot")
	}
}

// TestHandleCommandArea verifies arm/stay/disarm commands reach the cloud.
func TestHandleCommandArea(t *testing.T) {
	service := &fakeService{}
	publisher := newFakePublisher()
	b := newTestBridge(t, service, publisher, nil)

	handler := b.handleCommand(context.Background())

	topic := "crowlink/panels/000f12345678/command"
	for _, action := range []string{"arm", "stay", "disarm"} {
		payload := []byte(`{"action":"` + action + `","area_id":"1"}`)
		if err := handler(topic, payload); err != nil {
			t.Fatalf("handler(%s) error = %v", action, err)
		}
	}

	service.mu.Lock()
	defer service.mu.Unlock()
	if len(service.areaCmds) != 3 {
		t.Fatalf("area commands = %d, want 3", len(service.areaCmds))
	}
	if service.areaCmds[0] != "000f12345678/1/arm" {
		t.Errorf("first command = %q, want 000f12345678/1/arm", service.areaCmds[0])
	}
}

// TestHandleCommandOutput verifies output commands reach the cloud.
func TestHandleCommandOutput(t *testing.T) {
	service := &fakeService{}
	publisher := newFakePublisher()
	b := newTestBridge(t, service, publisher, nil)

	handler := b.handleCommand(context.Background())

	err := handler("crowlink/panels/000f12345678/command", []byte(`{"action":"output","output_id":"2","state":true}`))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	service.mu.Lock()
	defer service.mu.Unlock()
	if len(service.outputCmds) != 1 || service.outputCmds[0] != "000f12345678/2/on" {
		t.Errorf("output commands = %v, want [000f12345678/2/on]", service.outputCmds)
	}
}

// TestHandleCommandRejectsBadInput verifies malformed commands error
// without reaching the cloud.
func TestHandleCommandRejectsBadInput(t *testing.T) {
	service := &fakeService{}
	publisher := newFakePublisher()
	b := newTestBridge(t, service, publisher, nil)

	handler := b.handleCommand(context.Background())
	topic := "crowlink/panels/000f12345678/command"

	cases := []struct {
		name    string
		topic   string
		payload string
	}{
		{"unknown action", topic, `{"action":"explode"}`},
		{"missing area_id", topic, `{"action":"arm"}`},
		{"missing output_id", topic, `{"action":"output","state":true}`},
		{"invalid json", topic, `{not json`},
		{"bad topic", "crowlink/panels/command", `{"action":"arm","area_id":"1"}`},
		{"bad mac", "crowlink/panels/zz/command", `{"action":"arm","area_id":"1"}`},
	}

	for _, tc := range cases {
		if err := handler(tc.topic, []byte(tc.payload)); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}

	service.mu.Lock()
	defer service.mu.Unlock()
	if len(service.areaCmds) != 0 || len(service.outputCmds) != 0 {
		t.Errorf("cloud calls made for invalid commands: %v %v", service.areaCmds, service.outputCmds)
	}
}

// TestNewValidation verifies required dependencies are checked.
func TestNewValidation(t *testing.T) {
	service := &fakeService{}
	publisher := newFakePublisher()

	if _, err := New(Config{Service: service, Publisher: publisher}); err == nil {
		t.Error("New() without panels should fail")
	}
	if _, err := New(Config{Panels: []string{"000f12345678"}, Publisher: publisher}); err == nil {
		t.Error("New() without service should fail")
	}
	if _, err := New(Config{Panels: []string{"000f12345678"}, Service: service}); err == nil {
		t.Error("New() without publisher should fail")
	}
}

// TestPublishAreasToleratesCloudErrors verifies a failed snapshot fetch
// is non-fatal.
func TestPublishAreasToleratesCloudErrors(t *testing.T) {
	service := &fakeService{areasErr: errors.New("cloud unreachable")}
	publisher := newFakePublisher()
	b := newTestBridge(t, service, publisher, nil)

	b.publishAreas(context.Background(), "000f12345678")

	if _, ok := publisher.get("crowlink/panels/000f12345678/areas"); ok {
		t.Error("snapshot published despite fetch error")
	}
}
