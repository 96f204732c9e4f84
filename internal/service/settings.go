package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"system_bridge/internal/models"
	"system_bridge/internal/repository"
)

// Defaults seed the settings store on first start.
type Defaults struct {
	APIPort          int
	WSPort           int
	ObserverInterval time.Duration
	MQTTEnabled      bool
	MQTTHost         string
	MQTTPort         int
	MQTTUsername     string
	MQTTPassword     string
}

type SettingsService struct {
	repo repository.SettingsRepo
}

func NewSettingsService(repo repository.SettingsRepo) *SettingsService {
	return &SettingsService{repo: repo}
}

func (s *SettingsService) Get(ctx context.Context, key string) (string, bool, error) {
	return s.repo.Get(ctx, key)
}

func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	return s.repo.Set(ctx, key, value)
}

func (s *SettingsService) All(ctx context.Context) (map[string]string, error) {
	return s.repo.All(ctx)
}

// GetString returns def when the key is missing or empty.
func (s *SettingsService) GetString(ctx context.Context, key, def string) (string, error) {
	v, ok, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok || v == "" {
		return def, nil
	}
	return v, nil
}

func (s *SettingsService) GetInt(ctx context.Context, key string, def int) (int, error) {
	v, err := s.GetString(ctx, key, "")
	if err != nil {
		return 0, err
	}
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("setting %s=%q: %w", key, v, err)
	}
	return n, nil
}

func (s *SettingsService) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	v, err := s.GetString(ctx, key, "")
	if err != nil {
		return false, err
	}
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("setting %s=%q: %w", key, v, err)
	}
	return b, nil
}

// EnsureDefaults writes every missing key. Existing values are never touched,
// so the store stays authoritative after the first start. A missing api key
// or node uuid is generated. The observer interval is stored in milliseconds.
func (s *SettingsService) EnsureDefaults(ctx context.Context, d Defaults) error {
	seed := []struct {
		key, value string
		// an empty stored value counts as missing
		required bool
	}{
		{models.SettingAPIKey, uuid.NewString(), true},
		{models.SettingNodeUUID, uuid.NewString(), true},
		{models.SettingAPIPort, strconv.Itoa(d.APIPort), false},
		{models.SettingWSPort, strconv.Itoa(d.WSPort), false},
		{models.SettingObserverInterval, strconv.FormatInt(d.ObserverInterval.Milliseconds(), 10), false},
		{models.SettingMQTTEnabled, strconv.FormatBool(d.MQTTEnabled), false},
		{models.SettingMQTTHost, d.MQTTHost, false},
		{models.SettingMQTTPort, strconv.Itoa(d.MQTTPort), false},
		{models.SettingMQTTUsername, d.MQTTUsername, false},
		{models.SettingMQTTPassword, d.MQTTPassword, false},
		{models.SettingAutostart, "false", false},
	}

	current, err := s.repo.All(ctx)
	if err != nil {
		return err
	}
	for _, kv := range seed {
		if v, ok := current[kv.key]; ok && (v != "" || !kv.required) {
			continue
		}
		if err := s.repo.Set(ctx, kv.key, kv.value); err != nil {
			return fmt.Errorf("seed %s: %w", kv.key, err)
		}
	}
	return nil
}
