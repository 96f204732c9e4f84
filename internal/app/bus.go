package app

import (
	"context"
	"errors"
	"net"
	"strconv"

	"system_bridge/internal/connection"
	"system_bridge/internal/models"
	"system_bridge/internal/observer"
	"system_bridge/internal/version"
)

// Fetch answers get-data. It goes through the observer when one is running
// so the answer also primes the change detection.
func (a *App) Fetch(ctx context.Context, job models.JobSpec) (any, error) {
	if c := a.current(); c != nil {
		return c.observer.Fetch(ctx, job)
	}
	return a.runner.RunService(ctx, job)
}

// Observe registers job with the running observer. A job requested while the
// observer is stopped or the core is restarting is kept for the next core.
func (a *App) Observe(job models.JobSpec) error {
	for {
		a.mu.Lock()
		c := a.core
		if c == nil {
			a.pending = mergeJobs(a.pending, job)
			a.mu.Unlock()
			return nil
		}
		a.mu.Unlock()

		c.mu.Lock()
		if c.retired {
			c.mu.Unlock()
			// c is being replaced; retry against its successor
			continue
		}
		err := c.observer.AddJob(job)
		if errors.Is(err, observer.ErrStopped) {
			c.paused = mergeJobs(c.paused, job)
			err = nil
		}
		c.mu.Unlock()
		return err
	}
}

// StopObserver stops polling until the next restart, which resumes the jobs.
func (a *App) StopObserver() {
	c := a.current()
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = mergeJobs(c.observer.Stop(), c.paused...)
}

func (a *App) Mirror(ev models.Event) {
	if c := a.current(); c != nil {
		c.mqtt.Mirror(ev)
	}
}

// RestartServer rebuilds the core with the current settings, keeping jobs.
func (a *App) RestartServer(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	root := a.root()
	if root == nil || root.Err() != nil {
		return errNotRunning
	}
	jobs := a.stopCore()
	a.loadAPIKey(root)
	return a.startCore(root, jobs)
}

func (a *App) ExitApplication() {
	a.mu.RLock()
	exit := a.exit
	a.mu.RUnlock()
	if exit != nil {
		exit()
	}
}

// UpdateAppConfig re-applies the autostart preference from settings.
func (a *App) UpdateAppConfig(ctx context.Context) error {
	enabled, err := a.services.Settings.GetBool(ctx, models.SettingAutostart, false)
	if err != nil {
		return err
	}
	if a.autostart == nil {
		return nil
	}
	if err := a.autostart.Apply(enabled); err != nil {
		return err
	}
	a.log.Infow("autostart_applied", "enabled", enabled)
	return nil
}

// Information describes this node for GET /information.
func (a *App) Information(ctx context.Context) (models.Information, error) {
	var apiPort int
	if c := a.current(); c != nil {
		apiPort = portOf(c.api.Addr())
	}
	wsPort := portOf(a.ws.Addr())
	return models.Information{
		Hostname:         a.identity.Hostname,
		FQDN:             a.identity.FQDN,
		IP:               a.identity.IP,
		MAC:              a.identity.MAC,
		UUID:             a.identity.UUID,
		Version:          version.GetVersion(),
		APIPort:          apiPort,
		WSPort:           wsPort,
		WebsocketAddress: "ws://" + net.JoinHostPort(a.advertisedHost(), strconv.Itoa(wsPort)) + connection.Path,
		Subscribers:      a.gateway.Subscribers(),
	}, nil
}
