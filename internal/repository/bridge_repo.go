package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"system_bridge/internal/models"
)

type BridgeSQLite struct {
	db *sql.DB
}

func NewBridgeSQLite(db *sql.DB) *BridgeSQLite {
	return &BridgeSQLite{db: db}
}

var _ BridgeRepo = (*BridgeSQLite)(nil)

const (
	selectBridgesSQL = `SELECT key, name, host, port, api_key FROM bridges ORDER BY name ASC`

	selectBridgeSQL = `SELECT key, name, host, port, api_key FROM bridges WHERE key = ?`

	insertBridgeSQL = `INSERT INTO bridges (key, name, host, port, api_key) VALUES (?, ?, ?, ?, ?)`

	// Whole-row replacement used by the HTTP surface.
	saveBridgeSQL = `
		INSERT INTO bridges (key, name, host, port, api_key)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name=excluded.name,
			host=excluded.host,
			port=excluded.port,
			api_key=excluded.api_key
	`

	// Rediscovery refreshes addressing but keeps a user-supplied api key.
	upsertDiscoveredSQL = `
		INSERT INTO bridges (key, name, host, port, api_key)
		VALUES (?, ?, ?, ?, '')
		ON CONFLICT(key) DO UPDATE SET
			name=excluded.name,
			host=excluded.host,
			port=excluded.port
	`

	deleteBridgeSQL = `DELETE FROM bridges WHERE key = ?`
)

// List returns all bridges ordered by name.
func (r *BridgeSQLite) List(ctx context.Context) ([]models.Bridge, error) {
	rows, err := r.db.QueryContext(ctx, selectBridgesSQL)
	if err != nil {
		return nil, fmt.Errorf("select bridges: %w", err)
	}
	defer rows.Close()

	out := make([]models.Bridge, 0, 8)
	for rows.Next() {
		var b models.Bridge
		if err := rows.Scan(&b.Key, &b.Name, &b.Host, &b.Port, &b.APIKey); err != nil {
			return nil, fmt.Errorf("scan bridge: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches a bridge by key. Returns (nil, nil) if not found.
func (r *BridgeSQLite) Get(ctx context.Context, key string) (*models.Bridge, error) {
	var b models.Bridge
	err := r.db.QueryRowContext(ctx, selectBridgeSQL, key).Scan(&b.Key, &b.Name, &b.Host, &b.Port, &b.APIKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select bridge %q: %w", key, err)
	}
	return &b, nil
}

// Create inserts a new bridge; a duplicate key is an error.
func (r *BridgeSQLite) Create(ctx context.Context, b models.Bridge) error {
	if _, err := r.db.ExecContext(ctx, insertBridgeSQL, b.Key, b.Name, b.Host, b.Port, b.APIKey); err != nil {
		return fmt.Errorf("insert bridge %q: %w", b.Key, err)
	}
	return nil
}

// Save replaces the whole row, inserting it if missing.
func (r *BridgeSQLite) Save(ctx context.Context, b models.Bridge) error {
	if _, err := r.db.ExecContext(ctx, saveBridgeSQL, b.Key, b.Name, b.Host, b.Port, b.APIKey); err != nil {
		return fmt.Errorf("save bridge %q: %w", b.Key, err)
	}
	return nil
}

// UpsertDiscovered inserts or refreshes a bridge seen through mDNS.
func (r *BridgeSQLite) UpsertDiscovered(ctx context.Context, b models.Bridge) error {
	if _, err := r.db.ExecContext(ctx, upsertDiscoveredSQL, b.Key, b.Name, b.Host, b.Port); err != nil {
		return fmt.Errorf("upsert bridge %q: %w", b.Key, err)
	}
	return nil
}

// Delete removes a bridge and reports whether a row existed.
func (r *BridgeSQLite) Delete(ctx context.Context, key string) (bool, error) {
	res, err := r.db.ExecContext(ctx, deleteBridgeSQL, key)
	if err != nil {
		return false, fmt.Errorf("delete bridge %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected for bridge %q: %w", key, err)
	}
	return n > 0, nil
}
