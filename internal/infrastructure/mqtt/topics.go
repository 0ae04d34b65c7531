package mqtt

// Topic layout for the crowlink namespace:
//
//	crowlink/system/status              daemon online/offline (retained)
//	crowlink/panels/{mac}/events        realtime panel events
//	crowlink/panels/{mac}/areas         area state snapshots (retained)
//	crowlink/panels/{mac}/command       inbound arm/disarm/output commands
//
// MAC addresses appear normalised (lowercase, no separators).
const topicPrefix = "crowlink"

// Topics builds topic strings for the crowlink namespace.
type Topics struct{}

// SystemStatus is the retained daemon status topic.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}

// PanelEvents is the event topic for one panel.
func (Topics) PanelEvents(mac string) string {
	return topicPrefix + "/panels/" + mac + "/events"
}

// PanelAreas is the retained area snapshot topic for one panel.
func (Topics) PanelAreas(mac string) string {
	return topicPrefix + "/panels/" + mac + "/areas"
}

// PanelCommand is the inbound command topic for one panel.
func (Topics) PanelCommand(mac string) string {
	return topicPrefix + "/panels/" + mac + "/command"
}

// AllPanelCommands matches the command topic of every panel.
func (Topics) AllPanelCommands() string {
	return topicPrefix + "/panels/+/command"
}
