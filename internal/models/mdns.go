package models

// MDNSTextRecord is the metadata advertised with this node's mDNS service.
type MDNSTextRecord struct {
	Address          string `json:"address"`
	FQDN             string `json:"fqdn"`
	Host             string `json:"host"`
	IP               string `json:"ip"`
	MAC              string `json:"mac"`
	Port             int    `json:"port"`
	UUID             string `json:"uuid"`
	Version          string `json:"version"`
	WebsocketAddress string `json:"websocketAddress"`
	WSPort           int    `json:"wsPort"`
}
