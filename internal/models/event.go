package models

import "strings"

// DataEventPrefix marks telemetry events. Only these are mirrored to MQTT.
const DataEventPrefix = "data-"

// Event names understood by the gateway.
const (
	EventRestartServer   = "restart-server"
	EventExitApplication = "exit-application"
	EventGetData         = "get-data"
	EventObserverStop    = "observer-stop"
	EventUpdateAppConfig = "update-app-config"
	EventOpenSettings    = "open-settings"
)

// Event is the transport-agnostic bus envelope.
type Event struct {
	Name string `json:"name"`
	Data any    `json:"data,omitempty"`
}

// IsData reports whether the event carries telemetry.
func (e Event) IsData() bool {
	return strings.HasPrefix(e.Name, DataEventPrefix)
}
