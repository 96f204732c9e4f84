package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"system_bridge/internal/logger"
	"system_bridge/internal/models"
)

// DefaultWindow is the length of one browse pass.
const DefaultWindow = 30 * time.Second

// a peer not seen for this many consecutive windows is considered down
const missedWindows = 2

// BridgeSink persists discovered peers.
type BridgeSink interface {
	Upsert(ctx context.Context, b models.Bridge) error
}

type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

func zeroconfBrowse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return fmt.Errorf("mdns resolver: %w", err)
	}
	return resolver.Browse(ctx, service, domain, entries)
}

type peer struct {
	bridge models.Bridge
	record models.MDNSTextRecord
	missed int
}

// Browser keeps the set of live sibling nodes keyed by instance name and
// upserts every live node into the sink once per window, and again whenever
// its record changes, so a row deleted while the node still advertises comes
// back on the next window. Going down only removes a node from memory; the
// stored bridge stays.
type Browser struct {
	sink     BridgeSink
	selfUUID string
	window   time.Duration
	log      *logger.Logger
	browse   browseFunc

	mu    sync.Mutex
	peers map[string]*peer
}

func NewBrowser(sink BridgeSink, selfUUID string, window time.Duration, log *logger.Logger) *Browser {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Browser{
		sink:     sink,
		selfUUID: selfUUID,
		window:   window,
		log:      log,
		browse:   zeroconfBrowse,
		peers:    make(map[string]*peer),
	}
}

// Run browses in consecutive windows until ctx is cancelled.
func (b *Browser) Run(ctx context.Context) {
	b.log.Infow("mdns_browse_started", "service", ServiceType, "window", b.window)
	for ctx.Err() == nil {
		if err := b.pass(ctx); err != nil {
			b.log.Warnw("mdns_browse_failed", "err", err)
			// avoid spinning when the resolver cannot be created
			select {
			case <-ctx.Done():
			case <-time.After(b.window):
			}
		}
	}
	b.log.Infow("mdns_browse_stopped")
}

// pass runs one browse window and expires peers that were not seen.
func (b *Browser) pass(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, b.window)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := b.browse(wctx, ServiceType, Domain, entries); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for done := false; !done; {
		select {
		case <-wctx.Done():
			done = true
		case e, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			if e == nil {
				continue
			}
			if e.TTL == 0 {
				b.serviceDown(e.Instance)
				continue
			}
			first := !seen[e.Instance]
			seen[e.Instance] = true
			b.serviceUp(ctx, e.Instance, DecodeTXT(e.Text), e, first)
		}
	}

	if ctx.Err() == nil {
		b.expire(seen)
	}
	return nil
}

// serviceUp records a sighting. firstInWindow forces the upsert even when the
// record is unchanged.
func (b *Browser) serviceUp(ctx context.Context, instance string, rec models.MDNSTextRecord, e *zeroconf.ServiceEntry, firstInWindow bool) {
	if rec.UUID == "" || rec.UUID == b.selfUUID {
		return
	}
	bridge := bridgeFromRecord(rec, e)

	b.mu.Lock()
	p, known := b.peers[instance]
	if known {
		p.missed = 0
		if p.record == rec && !firstInWindow {
			b.mu.Unlock()
			return
		}
		if p.record != rec {
			b.log.Infow("mdns_service_changed", "instance", instance, "uuid", rec.UUID)
		}
		p.record, p.bridge = rec, bridge
	} else {
		b.peers[instance] = &peer{bridge: bridge, record: rec}
	}
	b.mu.Unlock()

	if !known {
		b.log.Infow("mdns_service_up", "instance", instance, "uuid", rec.UUID, "host", bridge.Host)
	}
	if err := b.sink.Upsert(ctx, bridge); err != nil {
		b.log.Warnw("bridge_upsert_failed", "uuid", rec.UUID, "err", err)
	}
}

func (b *Browser) serviceDown(instance string) {
	b.mu.Lock()
	_, ok := b.peers[instance]
	delete(b.peers, instance)
	b.mu.Unlock()
	if ok {
		b.log.Infow("mdns_service_down", "instance", instance)
	}
}

func (b *Browser) expire(seen map[string]bool) {
	var gone []string
	b.mu.Lock()
	for name, p := range b.peers {
		if seen[name] {
			continue
		}
		p.missed++
		if p.missed >= missedWindows {
			gone = append(gone, name)
		}
	}
	b.mu.Unlock()
	for _, name := range gone {
		b.serviceDown(name)
	}
}

// Peers returns the currently live nodes sorted by name.
func (b *Browser) Peers() []models.Bridge {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Bridge, 0, len(b.peers))
	for _, p := range b.peers {
		out = append(out, p.bridge)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func bridgeFromRecord(rec models.MDNSTextRecord, e *zeroconf.ServiceEntry) models.Bridge {
	ip := rec.IP
	if ip == "" && e != nil && len(e.AddrIPv4) > 0 {
		ip = e.AddrIPv4[0].String()
	}
	host := ip
	if host == "" {
		host = rec.Host
	}
	port := rec.Port
	if port == 0 && e != nil {
		port = e.Port
	}
	return models.Bridge{
		Key:  rec.UUID,
		Name: fmt.Sprintf("%s (%s)", rec.Host, ip),
		Host: host,
		Port: port,
	}
}
