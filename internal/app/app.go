// Package app assembles the daemon. The websocket server lives for the whole
// process; everything else (API server, observer, MQTT, discovery and the
// observer's bus connection) is the "core", torn down and rebuilt by
// restart-server so the bus subscribers survive a restart.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"system_bridge/internal/apikey"
	"system_bridge/internal/collector"
	"system_bridge/internal/config"
	"system_bridge/internal/connection"
	"system_bridge/internal/discovery"
	"system_bridge/internal/gateway"
	"system_bridge/internal/handlers"
	"system_bridge/internal/hostinfo"
	"system_bridge/internal/logger"
	"system_bridge/internal/models"
	"system_bridge/internal/mqtt"
	"system_bridge/internal/observer"
	"system_bridge/internal/server"
	"system_bridge/internal/service"
	"system_bridge/internal/version"
)

const (
	shutdownTimeout = 10 * time.Second
	loopbackHost    = "127.0.0.1"
)

var errNotRunning = errors.New("app is not running")

// Applier applies the autostart preference.
type Applier interface {
	Apply(enabled bool) error
}

type App struct {
	cfg       config.Config
	services  *service.Service
	runner    collector.Runner
	keys      *apikey.Provider
	autostart Applier
	log       *logger.Logger

	gateway *gateway.Gateway
	handler *handlers.Handler
	ws      *server.Server

	lookupIdentity func(ctx context.Context, fallbackUUID string) (hostinfo.Identity, error)
	identity       hostinfo.Identity

	// lifecycle serializes start, stop and restart
	lifecycle sync.Mutex

	mu   sync.RWMutex
	ctx  context.Context
	exit context.CancelFunc
	core *core
	// pending holds observe jobs requested while no core was running
	pending []models.JobSpec
}

// core is the restartable part of the daemon.
type core struct {
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	api        *server.Server
	observer   *observer.Observer
	mqtt       *mqtt.Republisher
	advertiser *discovery.Advertiser
	bus        *connection.Connection

	// mu guards paused and retired and is held across observer AddJob and
	// Stop so a job requested while the core stops is never dropped
	mu      sync.Mutex
	paused  []models.JobSpec
	retired bool
}

func New(cfg config.Config, services *service.Service, runner collector.Runner, keys *apikey.Provider, autostart Applier, log *logger.Logger) *App {
	a := &App{
		cfg:            cfg,
		services:       services,
		runner:         runner,
		keys:           keys,
		autostart:      autostart,
		log:            log,
		ws:             &server.Server{Streaming: true},
		lookupIdentity: hostinfo.Lookup,
	}
	a.gateway = gateway.New(keys, gateway.NewRegistry(), a, a, a, log.Named("gateway"))
	a.handler = handlers.NewHandler(services, keys, a, a.gateway, log.Named("http"))
	return a
}

// Run starts every component and blocks until ctx is cancelled or
// exit-application is received.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.ctx, a.exit = ctx, cancel
	a.mu.Unlock()

	nodeUUID, err := a.services.Settings.GetString(ctx, models.SettingNodeUUID, "")
	if err != nil {
		return fmt.Errorf("read node uuid: %w", err)
	}
	a.identity, err = a.lookupIdentity(ctx, nodeUUID)
	if err != nil {
		return fmt.Errorf("host identity: %w", err)
	}

	go a.loadAPIKey(ctx)

	wsPort, err := a.services.Settings.GetInt(ctx, models.SettingWSPort, a.cfg.Network.WSPort)
	if err != nil {
		return err
	}
	if err := a.ws.Listen(strconv.Itoa(wsPort), a.handler.InitWSRoutes()); err != nil {
		return fmt.Errorf("listen websocket port %d: %w", wsPort, err)
	}
	go a.serve("ws", a.ws)

	a.lifecycle.Lock()
	err = a.startCore(ctx, nil)
	a.lifecycle.Unlock()
	if err != nil {
		a.shutdownWS()
		return err
	}
	a.log.Infow("system_bridge_started", "version", version.GetFullVersion(), "uuid", a.identity.UUID, "ws", a.ws.Addr())

	<-ctx.Done()
	a.log.Infow("system_bridge_stopping")

	a.lifecycle.Lock()
	a.stopCore()
	a.lifecycle.Unlock()
	a.shutdownWS()
	return nil
}

// loadAPIKey reads the key from settings into the provider. Run calls it off
// the start path; auth fails closed until it lands. restart-server calls it
// again so a rotated key replaces the old one.
func (a *App) loadAPIKey(ctx context.Context) {
	key, err := a.services.Settings.GetString(ctx, models.SettingAPIKey, "")
	if err != nil {
		a.log.Errorw("api_key_load_failed", "err", err)
		return
	}
	if key == "" {
		a.log.Warnw("api_key_missing", "setting", models.SettingAPIKey)
		return
	}
	a.keys.Set(key)
	a.log.Infow("api_key_ready")
}

func (a *App) serve(name string, s *server.Server) {
	if err := s.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Errorw("server_failed", "server", name, "err", err)
	}
}

func (a *App) shutdownWS() {
	a.gateway.CloseAll()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.ws.Shutdown(ctx); err != nil {
		a.log.Warnw("ws_shutdown_failed", "err", err)
	}
}

func (a *App) startCore(parent context.Context, jobs []models.JobSpec) error {
	settings := a.services.Settings
	apiPort, err := settings.GetInt(parent, models.SettingAPIPort, a.cfg.Network.APIPort)
	if err != nil {
		return err
	}
	intervalMs, err := settings.GetInt(parent, models.SettingObserverInterval, int(a.cfg.Observer.Interval.Milliseconds()))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	c := &core{
		cancel:     cancel,
		api:        &server.Server{},
		bus:        connection.New(a.log.Named("bus-client")),
		advertiser: discovery.NewAdvertiser(a.log.Named("mdns")),
		mqtt:       mqtt.New(settings, a.identity.UUID, a.log.Named("mqtt")),
	}

	if err := c.api.Listen(strconv.Itoa(apiPort), a.handler.InitAPIRoutes()); err != nil {
		cancel()
		return fmt.Errorf("listen api port %d: %w", apiPort, err)
	}
	go a.serve("api", c.api)

	if err := c.mqtt.Setup(ctx); err != nil {
		a.log.Warnw("mqtt_setup_failed", "err", err)
	}

	bus := c.bus
	c.observer = observer.New(a.runner, func(ev models.ObserverEvent) {
		bus.SendEvent(ev.Event())
	}, a.log.Named("observer"))
	interval := c.observer.Configure(time.Duration(intervalMs) * time.Millisecond)
	for _, j := range jobs {
		_ = c.observer.AddJob(j)
	}
	if err := c.observer.Start(ctx); err != nil {
		cancel()
		_ = c.api.Shutdown(context.Background())
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		a.attach(ctx, c)
	}()

	if a.cfg.Discovery.Enabled {
		browser := discovery.NewBrowser(a.services.Bridges, a.identity.UUID, a.cfg.Discovery.Window, a.log.Named("mdns"))
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			browser.Run(ctx)
		}()
	}

	a.mu.Lock()
	pending := a.pending
	a.pending = nil
	a.core = c
	a.mu.Unlock()
	for _, j := range pending {
		_ = c.observer.AddJob(j)
	}
	a.log.Infow("core_started", "api", c.api.Addr(), "interval", interval, "jobs", len(c.observer.Jobs()))
	return nil
}

// attach waits for the api key, then advertises the node and connects the
// observer to the bus.
func (a *App) attach(ctx context.Context, c *core) {
	select {
	case <-a.keys.Ready():
	case <-ctx.Done():
		return
	}
	key, _ := a.keys.Get()

	if a.cfg.Discovery.Enabled {
		if err := c.advertiser.Start(a.identity.Hostname, key, a.record(c)); err != nil {
			a.log.Warnw("mdns_advertise_failed", "err", err)
		}
	}

	if err := c.bus.Connect(ctx, loopbackHost, portOf(a.ws.Addr()), key, true, nil); err != nil {
		if ctx.Err() == nil {
			a.log.Errorw("observer_bus_connect_failed", "err", err)
		}
		return
	}

	// inbound broadcasts are of no use to the observer
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.bus.Events():
		}
	}
}

// stopCore tears the core down and returns the observer's jobs.
func (a *App) stopCore() []models.JobSpec {
	c := a.current()
	if c == nil {
		return nil
	}

	a.mu.Lock()
	a.core = nil
	a.mu.Unlock()

	c.mu.Lock()
	jobs := mergeJobs(c.observer.Stop(), c.paused...)
	c.retired = true
	c.mu.Unlock()

	c.cancel()
	c.bus.Close()
	c.advertiser.Stop()
	c.wg.Wait()
	c.mqtt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.api.Shutdown(ctx); err != nil {
		a.log.Warnw("api_shutdown_failed", "err", err)
	}
	return jobs
}

// mergeJobs appends the jobs whose key is not yet in dst.
func mergeJobs(dst []models.JobSpec, jobs ...models.JobSpec) []models.JobSpec {
	for _, j := range jobs {
		dup := false
		for _, d := range dst {
			if d.Key() == j.Key() {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, j)
		}
	}
	return dst
}

func (a *App) current() *core {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.core
}

func (a *App) root() context.Context {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ctx
}

func (a *App) record(c *core) models.MDNSTextRecord {
	apiPort, wsPort := portOf(c.api.Addr()), portOf(a.ws.Addr())
	host := a.advertisedHost()
	return models.MDNSTextRecord{
		Address:          "http://" + net.JoinHostPort(host, strconv.Itoa(apiPort)),
		FQDN:             a.identity.FQDN,
		Host:             a.identity.Hostname,
		IP:               a.identity.IP,
		MAC:              a.identity.MAC,
		Port:             apiPort,
		UUID:             a.identity.UUID,
		Version:          version.GetVersion(),
		WebsocketAddress: "ws://" + net.JoinHostPort(host, strconv.Itoa(wsPort)) + connection.Path,
		WSPort:           wsPort,
	}
}

func (a *App) advertisedHost() string {
	if a.identity.IP != "" {
		return a.identity.IP
	}
	return a.identity.Hostname
}

func portOf(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(p)
	return n
}
