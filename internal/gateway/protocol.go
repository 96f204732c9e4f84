package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"system_bridge/internal/models"
)

// Frame types on the wire.
const (
	FrameRegisterListener   = "register-listener"
	FrameEvents             = "events"
	FrameRegisteredListener = "registered-listener"
	FrameEventSent          = "event-sent"
)

// Inbound is a client frame: {event, data:{"api-key", name, data, ...}}.
type Inbound struct {
	Event string      `json:"event"`
	Data  InboundData `json:"data"`
}

type InboundData struct {
	APIKey       string          `json:"api-key"`
	Name         string          `json:"name,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	OpenSettings bool            `json:"openSettings,omitempty"`
}

// Event strips the credentials so the envelope can be rebroadcast verbatim.
func (d InboundData) Event() models.Event {
	ev := models.Event{Name: d.Name}
	if len(d.Data) > 0 {
		ev.Data = d.Data
	}
	return ev
}

// Outbound is a server frame: {event, data: Event}.
type Outbound struct {
	Event string       `json:"event"`
	Data  models.Event `json:"data"`
}

func encodeOutbound(frame string, ev models.Event) ([]byte, error) {
	return json.Marshal(Outbound{Event: frame, Data: ev})
}

// jobRequest accepts both the legacy bare service name and the object form.
type jobRequest models.JobSpec

func (j *jobRequest) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*j = jobRequest{Service: name, Method: models.DefaultMethod, Observe: true}
		return nil
	}
	var spec models.JobSpec
	if err := json.Unmarshal(b, &spec); err != nil {
		return fmt.Errorf("job must be a service name or {service, method, observe}: %w", err)
	}
	if spec.Method == "" {
		spec.Method = models.DefaultMethod
	}
	*j = jobRequest(spec)
	return nil
}

// parseJobs decodes the data of a get-data event.
func parseJobs(raw json.RawMessage) ([]models.JobSpec, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var reqs []jobRequest
	if err := json.Unmarshal(raw, &reqs); err != nil {
		return nil, err
	}
	out := make([]models.JobSpec, 0, len(reqs))
	for _, r := range reqs {
		if strings.TrimSpace(r.Service) == "" {
			continue
		}
		out = append(out, models.JobSpec(r))
	}
	return out, nil
}
