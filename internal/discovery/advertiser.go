// Package discovery advertises this node over mDNS and tracks sibling nodes.
package discovery

import (
	"fmt"
	"sync"

	"github.com/grandcat/zeroconf"

	"system_bridge/internal/logger"
	"system_bridge/internal/models"
)

// Service type and domain shared by every node.
const (
	ServiceType = "_system-bridge._tcp"
	Domain      = "local."
)

type shutdowner interface {
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, txt []string) (shutdowner, error)

func zeroconfRegister(instance, service, domain string, port int, txt []string) (shutdowner, error) {
	return zeroconf.Register(instance, service, domain, port, txt, nil)
}

type Advertiser struct {
	log      *logger.Logger
	register registerFunc

	mu     sync.Mutex
	server shutdowner
}

func NewAdvertiser(log *logger.Logger) *Advertiser {
	return &Advertiser{log: log, register: zeroconfRegister}
}

// Start registers the service unless apiKey is empty; peers cannot use a node
// without a key, so there is nothing worth advertising.
func (a *Advertiser) Start(instance, apiKey string, rec models.MDNSTextRecord) error {
	if apiKey == "" {
		a.log.Infow("mdns_advertise_skipped", "reason", "no api key")
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return nil
	}

	srv, err := a.register(instance, ServiceType, Domain, rec.Port, EncodeTXT(rec))
	if err != nil {
		return fmt.Errorf("register mdns service: %w", err)
	}
	a.server = srv
	a.log.Infow("mdns_advertised", "instance", instance, "port", rec.Port, "uuid", rec.UUID)
	return nil
}

func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.log.Infow("mdns_unadvertised")
}
