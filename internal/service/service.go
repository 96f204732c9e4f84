package service

import (
	"context"
	"net/http"

	"system_bridge/internal/models"
	"system_bridge/internal/repository"
)

// Bridges manages known sibling nodes and relays commands to them.
type Bridges interface {
	List(ctx context.Context) ([]models.Bridge, error)
	Get(ctx context.Context, key string) (models.Bridge, error)
	Create(ctx context.Context, b models.Bridge) (models.Bridge, error)
	Update(ctx context.Context, key string, u models.BridgeUpdate) (models.Bridge, error)
	Remove(ctx context.Context, key string) error
	// Upsert records a discovered node without touching its api key.
	Upsert(ctx context.Context, b models.Bridge) error
	Open(ctx context.Context, key string, req OpenRequest) error
	Probe(ctx context.Context, key string) (map[string]any, error)
}

// Settings is the runtime key/value configuration.
type Settings interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
	GetString(ctx context.Context, key, def string) (string, error)
	GetInt(ctx context.Context, key string, def int) (int, error)
	GetBool(ctx context.Context, key string, def bool) (bool, error)
	EnsureDefaults(ctx context.Context, d Defaults) error
}

// Opener opens a local path or URL with the desktop's default handler.
type Opener interface {
	Open(ctx context.Context, req OpenRequest) error
}

// Service aggregates the application services used by handlers and the app.
type Service struct {
	Bridges  Bridges
	Settings Settings
	Opener   Opener
}

func NewService(repos *repository.Repository, client *http.Client) *Service {
	return &Service{
		Bridges:  NewBridgeService(repos.Bridges, client),
		Settings: NewSettingsService(repos.Settings),
		Opener:   NewOpenerService(),
	}
}
