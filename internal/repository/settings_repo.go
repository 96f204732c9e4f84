package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type SettingsSQLite struct {
	db *sql.DB
}

func NewSettingsSQLite(db *sql.DB) *SettingsSQLite {
	return &SettingsSQLite{db: db}
}

var _ SettingsRepo = (*SettingsSQLite)(nil)

const (
	selectSettingSQL  = `SELECT value FROM settings WHERE key = ?`
	selectSettingsSQL = `SELECT key, value FROM settings`
	upsertSettingSQL  = `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value
	`
)

// Get returns the stored value and whether the key exists.
func (r *SettingsSQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, selectSettingSQL, key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("select setting %q: %w", key, err)
	}
	return v, true, nil
}

func (r *SettingsSQLite) Set(ctx context.Context, key, value string) error {
	if _, err := r.db.ExecContext(ctx, upsertSettingSQL, key, value); err != nil {
		return fmt.Errorf("upsert setting %q: %w", key, err)
	}
	return nil
}

func (r *SettingsSQLite) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, selectSettingsSQL)
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
