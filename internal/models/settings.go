package models

// Settings keys read by the daemon.
const (
	SettingAPIKey           = "network-apiKey"
	SettingAPIPort          = "network-apiPort"
	SettingWSPort           = "network-wsPort"
	SettingObserverInterval = "observer-interval"
	SettingMQTTEnabled      = "mqtt-enabled"
	SettingMQTTHost         = "mqtt-host"
	SettingMQTTPort         = "mqtt-port"
	SettingMQTTUsername     = "mqtt-username"
	SettingMQTTPassword     = "mqtt-password"
	SettingAutostart        = "autostart"
	SettingNodeUUID         = "node-uuid"
)
