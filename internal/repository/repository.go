package repository

import (
	"context"
	"database/sql"

	"system_bridge/internal/models"
)

// BridgeRepo persists known peers keyed by their uuid.
type BridgeRepo interface {
	List(ctx context.Context) ([]models.Bridge, error)
	Get(ctx context.Context, key string) (*models.Bridge, error)
	Create(ctx context.Context, b models.Bridge) error
	Save(ctx context.Context, b models.Bridge) error
	UpsertDiscovered(ctx context.Context, b models.Bridge) error
	Delete(ctx context.Context, key string) (bool, error)
}

// SettingsRepo is the key/value settings store.
type SettingsRepo interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}

type Repository struct {
	Bridges  BridgeRepo
	Settings SettingsRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Bridges:  NewBridgeSQLite(db),
		Settings: NewSettingsSQLite(db),
	}
}
