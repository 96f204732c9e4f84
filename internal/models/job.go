package models

// DefaultMethod is used when a job is requested by bare service name.
const DefaultMethod = "findAll"

// JobSpec identifies one collector invocation.
type JobSpec struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Observe bool   `json:"observe"`
}

// Key returns the (service, method) uniqueness key of the job.
func (j JobSpec) Key() string {
	return j.Service + "/" + j.Method
}

// EventName returns the bus event name carrying results for this job:
// data-<service> for the default method, data-<service>-<method> otherwise.
func (j JobSpec) EventName() string {
	return dataEventName(j.Service, j.Method)
}

// ObserverEvent is produced when a job result differs from the cached one.
type ObserverEvent struct {
	Service string `json:"service"`
	Method  string `json:"method,omitempty"`
	Data    any    `json:"data"`
}

// Event converts the observer result into a bus envelope.
func (e ObserverEvent) Event() Event {
	return Event{Name: dataEventName(e.Service, e.Method), Data: e.Data}
}

func dataEventName(service, method string) string {
	if method == "" || method == DefaultMethod {
		return DataEventPrefix + service
	}
	return DataEventPrefix + service + "-" + method
}
