package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"system_bridge/internal/models"
	"system_bridge/internal/repository"
)

const relayTimeout = 10 * time.Second

var (
	ErrBridgeNotFound      = errors.New("bridge not found")
	ErrBridgeExists        = errors.New("bridge already exists")
	ErrBridgeNotConfigured = errors.New("bridge has no api key")
	ErrInvalidBridge       = errors.New("bridge needs a host and a port between 1 and 65535")
	ErrRelayFailed         = errors.New("bridge relay failed")
)

type BridgeService struct {
	repo   repository.BridgeRepo
	client *http.Client
}

// NewBridgeService uses client for relay calls; nil means a client with a 10s timeout.
func NewBridgeService(repo repository.BridgeRepo, client *http.Client) *BridgeService {
	if client == nil {
		client = &http.Client{Timeout: relayTimeout}
	}
	return &BridgeService{repo: repo, client: client}
}

func (s *BridgeService) List(ctx context.Context) ([]models.Bridge, error) {
	return s.repo.List(ctx)
}

func (s *BridgeService) Get(ctx context.Context, key string) (models.Bridge, error) {
	b, err := s.repo.Get(ctx, key)
	if err != nil {
		return models.Bridge{}, err
	}
	if b == nil {
		return models.Bridge{}, ErrBridgeNotFound
	}
	return *b, nil
}

// Create adds a manually configured bridge. An empty key gets a fresh uuid.
func (s *BridgeService) Create(ctx context.Context, b models.Bridge) (models.Bridge, error) {
	if err := validateBridge(b); err != nil {
		return models.Bridge{}, err
	}
	if b.Key == "" {
		b.Key = uuid.NewString()
	} else {
		existing, err := s.repo.Get(ctx, b.Key)
		if err != nil {
			return models.Bridge{}, err
		}
		if existing != nil {
			return models.Bridge{}, ErrBridgeExists
		}
	}
	if b.Name == "" {
		b.Name = b.Host
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return models.Bridge{}, err
	}
	return b, nil
}

// Update applies a partial update and stores the whole row.
func (s *BridgeService) Update(ctx context.Context, key string, u models.BridgeUpdate) (models.Bridge, error) {
	cur, err := s.Get(ctx, key)
	if err != nil {
		return models.Bridge{}, err
	}
	next := u.Apply(cur)
	if err := validateBridge(next); err != nil {
		return models.Bridge{}, err
	}
	if err := s.repo.Save(ctx, next); err != nil {
		return models.Bridge{}, err
	}
	return next, nil
}

func (s *BridgeService) Remove(ctx context.Context, key string) error {
	ok, err := s.repo.Delete(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBridgeNotFound
	}
	return nil
}

func (s *BridgeService) Upsert(ctx context.Context, b models.Bridge) error {
	if b.Key == "" {
		return fmt.Errorf("upsert: %w", ErrInvalidBridge)
	}
	return s.repo.UpsertDiscovered(ctx, b)
}

// Open asks the peer to open a path or URL. Older peers only serve /open.
func (s *BridgeService) Open(ctx context.Context, key string, req OpenRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	b, err := s.configured(ctx, key)
	if err != nil {
		return err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	status, err := s.post(ctx, b, "/api/open", body)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		status, err = s.post(ctx, b, "/open", body)
		if err != nil {
			return err
		}
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("%w: open on %s returned %d", ErrRelayFailed, b.Name, status)
	}
	return nil
}

// Probe fetches the peer's /information document.
func (s *BridgeService) Probe(ctx context.Context, key string) (map[string]any, error) {
	b, err := s.configured(ctx, key)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(b)+"/information", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(APIKeyHeader, b.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: information on %s returned %d", ErrRelayFailed, b.Name, resp.StatusCode)
	}
	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode information: %v", ErrRelayFailed, err)
	}
	return info, nil
}

// APIKeyHeader carries the shared key on HTTP requests.
const APIKeyHeader = "api-key"

func (s *BridgeService) configured(ctx context.Context, key string) (models.Bridge, error) {
	b, err := s.Get(ctx, key)
	if err != nil {
		return models.Bridge{}, err
	}
	if !b.Configured() {
		return models.Bridge{}, ErrBridgeNotConfigured
	}
	return b, nil
}

func (s *BridgeService) post(ctx context.Context, b models.Bridge, path string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(b)+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, b.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func baseURL(b models.Bridge) string {
	return "http://" + net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

func validateBridge(b models.Bridge) error {
	if strings.TrimSpace(b.Host) == "" || b.Port < 1 || b.Port > 65535 {
		return ErrInvalidBridge
	}
	return nil
}
