package models

import "encoding/json"

// Bridge is a discovered or manually added sibling instance.
type Bridge struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	APIKey string `json:"apiKey,omitempty"`
}

// Configured reports whether the bridge can be used for relay.
func (b Bridge) Configured() bool {
	return b.APIKey != ""
}

type bridgeFields Bridge

// MarshalJSON adds the derived "configured" flag for consumers.
func (b Bridge) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		bridgeFields
		Configured bool `json:"configured"`
	}{bridgeFields(b), b.Configured()})
}

// BridgeUpdate carries the fields of a partial update; nil means unchanged.
type BridgeUpdate struct {
	Name   *string `json:"name,omitempty"`
	Host   *string `json:"host,omitempty"`
	Port   *int    `json:"port,omitempty"`
	APIKey *string `json:"apiKey,omitempty"`
}

// Apply returns a copy of b with the non-nil fields of u set.
func (u BridgeUpdate) Apply(b Bridge) Bridge {
	if u.Name != nil {
		b.Name = *u.Name
	}
	if u.Host != nil {
		b.Host = *u.Host
	}
	if u.Port != nil {
		b.Port = *u.Port
	}
	if u.APIKey != nil {
		b.APIKey = *u.APIKey
	}
	return b
}
