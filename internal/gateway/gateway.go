// Package gateway is the server side of the event bus: an authenticated
// WebSocket endpoint that fans telemetry out to registered listeners and
// interprets control commands.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"system_bridge/internal/logger"
	"system_bridge/internal/models"
)

// restart waits this long so the event-sent reply reaches the sender first
const defaultRestartDelay = 200 * time.Millisecond

// KeyValidator checks the shared api key; it must fail closed while no key is loaded.
type KeyValidator interface {
	Valid(candidate string) bool
}

// Telemetry is the collector/observer side used by get-data and observer-stop.
type Telemetry interface {
	Fetch(ctx context.Context, job models.JobSpec) (any, error)
	Observe(job models.JobSpec) error
	StopObserver()
}

// Mirror receives every data-* event (the MQTT republisher).
type Mirror interface {
	Mirror(ev models.Event)
}

// Controller performs process-level commands.
type Controller interface {
	RestartServer(ctx context.Context) error
	ExitApplication()
	UpdateAppConfig(ctx context.Context) error
}

type Gateway struct {
	keys      KeyValidator
	subs      Subscribers
	telemetry Telemetry
	mirror    Mirror
	control   Controller
	log       *logger.Logger

	upgrader     websocket.Upgrader
	restartDelay time.Duration
}

func New(keys KeyValidator, subs Subscribers, telemetry Telemetry, mirror Mirror, control Controller, log *logger.Logger) *Gateway {
	return &Gateway{
		keys:      keys,
		subs:      subs,
		telemetry: telemetry,
		mirror:    mirror,
		control:   control,
		log:       log,
		upgrader: websocket.Upgrader{
			// local desktop UIs connect from file:// and custom origins; the api key is the gate
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		restartDelay: defaultRestartDelay,
	}
}

// ServeWS upgrades the request and serves the connection until it closes.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Errorw("ws_upgrade_failed", "err", err)
		return
	}

	c := newWSConn(conn, g.log)
	defer func() {
		g.subs.Remove(c)
		c.close()
	}()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.writePump()
	g.readLoop(r.Context(), c)
}

func (g *Gateway) readLoop(ctx context.Context, c *wsConn) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.log.Infow("ws_read_closed", "conn", c.id, "err", err)
			}
			return
		}

		var msg Inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			g.log.Warnw("ws_bad_frame", "conn", c.id, "err", err)
			continue
		}

		if !g.canActivate(msg.Data) {
			g.log.Warnw("ws_auth_rejected", "conn", c.id, "frame", msg.Event)
			c.reject("invalid api key")
			return
		}

		switch msg.Event {
		case FrameRegisterListener:
			g.subs.Add(c)
			g.log.Infow("ws_listener_registered", "conn", c.id, "subscribers", g.subs.Len())
			g.reply(c, FrameRegisteredListener, models.Event{Name: FrameRegisteredListener})
		case FrameEvents:
			ev := msg.Data.Event()
			g.handleEvent(ctx, msg.Data)
			g.reply(c, FrameEventSent, ev)
		default:
			g.log.Debugw("ws_unknown_frame", "conn", c.id, "frame", msg.Event)
		}
	}
}

func (g *Gateway) canActivate(d InboundData) bool {
	return g.keys != nil && g.keys.Valid(d.APIKey)
}

func (g *Gateway) handleEvent(ctx context.Context, d InboundData) {
	switch d.Name {
	case models.EventRestartServer:
		go g.restart(d.OpenSettings)
	case models.EventExitApplication:
		g.log.Infow("exit_requested")
		go g.control.ExitApplication()
	case models.EventGetData:
		g.getData(ctx, d.Data)
	case models.EventObserverStop:
		g.telemetry.StopObserver()
	case models.EventUpdateAppConfig:
		if err := g.control.UpdateAppConfig(ctx); err != nil {
			g.log.Warnw("update_app_config_failed", "err", err)
		}
	default:
		g.Publish(d.Event())
	}
}

func (g *Gateway) restart(openSettings bool) {
	time.Sleep(g.restartDelay)
	g.log.Infow("server_restarting", "open_settings", openSettings)
	if err := g.control.RestartServer(context.Background()); err != nil {
		g.log.Errorw("server_restart_failed", "err", err)
		return
	}
	if openSettings {
		g.Broadcast(models.Event{Name: models.EventOpenSettings})
	}
}

func (g *Gateway) getData(ctx context.Context, raw json.RawMessage) {
	jobs, err := parseJobs(raw)
	if err != nil {
		g.log.Warnw("get_data_bad_request", "err", err)
		return
	}
	for _, job := range jobs {
		data, err := g.telemetry.Fetch(ctx, job)
		if err != nil {
			g.log.Warnw("get_data_collect_failed", "service", job.Service, "method", job.Method, "err", err)
			continue
		}
		g.Publish(models.Event{Name: job.EventName(), Data: data})
		if job.Observe {
			if err := g.telemetry.Observe(job); err != nil {
				g.log.Warnw("observe_job_failed", "service", job.Service, "method", job.Method, "err", err)
			}
		}
	}
}

// Publish broadcasts ev and mirrors data-* events.
func (g *Gateway) Publish(ev models.Event) {
	g.Broadcast(ev)
	if ev.IsData() && g.mirror != nil {
		g.mirror.Mirror(ev)
	}
}

// Broadcast queues ev for every registered listener in registration order.
// Delivery is best effort: a full queue drops the frame for that listener only.
func (g *Gateway) Broadcast(ev models.Event) {
	frame, err := encodeOutbound(FrameEvents, ev)
	if err != nil {
		g.log.Errorw("ws_encode_failed", "event", ev.Name, "err", err)
		return
	}
	for _, s := range g.subs.Snapshot() {
		s.Send(frame)
	}
}

func (g *Gateway) reply(c *wsConn, frame string, ev models.Event) {
	b, err := encodeOutbound(frame, ev)
	if err != nil {
		g.log.Errorw("ws_encode_failed", "frame", frame, "err", err)
		return
	}
	c.Send(b)
}

// Subscribers reports the number of registered listeners.
func (g *Gateway) Subscribers() int {
	return g.subs.Len()
}

// CloseAll disconnects every registered listener.
func (g *Gateway) CloseAll() {
	for _, s := range g.subs.Snapshot() {
		g.subs.Remove(s)
		s.Close()
	}
}
