package models

// Information describes this node; served on GET /information.
type Information struct {
	Hostname         string `json:"hostname"`
	FQDN             string `json:"fqdn"`
	IP               string `json:"ip"`
	MAC              string `json:"mac"`
	UUID             string `json:"uuid"`
	Version          string `json:"version"`
	APIPort          int    `json:"apiPort"`
	WSPort           int    `json:"wsPort"`
	WebsocketAddress string `json:"websocketAddress"`
	Subscribers      int    `json:"subscribers"`
}
