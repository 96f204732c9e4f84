package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"system_bridge/internal/models"
	"system_bridge/internal/service"
)

// ---- Service Mocks ----

type mockBridges struct {
	list      []models.Bridge
	bridge    models.Bridge
	err       error
	probe     map[string]any
	lastKey   string
	lastOpen  service.OpenRequest
	lastBody  models.Bridge
	lastPatch models.BridgeUpdate
}

func (m *mockBridges) List(ctx context.Context) ([]models.Bridge, error) {
	return m.list, m.err
}
func (m *mockBridges) Get(ctx context.Context, key string) (models.Bridge, error) {
	m.lastKey = key
	return m.bridge, m.err
}
func (m *mockBridges) Create(ctx context.Context, b models.Bridge) (models.Bridge, error) {
	m.lastBody = b
	if m.err != nil {
		return models.Bridge{}, m.err
	}
	if b.Key == "" {
		b.Key = "generated"
	}
	return b, nil
}
func (m *mockBridges) Update(ctx context.Context, key string, u models.BridgeUpdate) (models.Bridge, error) {
	m.lastKey = key
	m.lastPatch = u
	if m.err != nil {
		return models.Bridge{}, m.err
	}
	return u.Apply(m.bridge), nil
}
func (m *mockBridges) Remove(ctx context.Context, key string) error {
	m.lastKey = key
	return m.err
}
func (m *mockBridges) Upsert(ctx context.Context, b models.Bridge) error {
	return m.err
}
func (m *mockBridges) Open(ctx context.Context, key string, req service.OpenRequest) error {
	m.lastKey = key
	m.lastOpen = req
	return m.err
}
func (m *mockBridges) Probe(ctx context.Context, key string) (map[string]any, error) {
	m.lastKey = key
	return m.probe, m.err
}

type mockOpener struct {
	err   error
	calls []service.OpenRequest
}

func (m *mockOpener) Open(ctx context.Context, req service.OpenRequest) error {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return m.err
	}
	return req.Validate()
}

type mockKeys struct{ key string }

func (m mockKeys) Valid(candidate string) bool {
	return m.key != "" && candidate == m.key
}

type mockInfo struct {
	info models.Information
	err  error
}

func (m *mockInfo) Information(ctx context.Context) (models.Information, error) {
	return m.info, m.err
}

type mockBus struct{ calls int }

func (m *mockBus) ServeWS(w http.ResponseWriter, r *http.Request) {
	m.calls++
	w.WriteHeader(http.StatusSwitchingProtocols)
}

// ---- Shared Test Helpers ----

const testAPIKey = "test-key"

func newTestRouter(s *service.Service, info InfoSource) *gin.Engine {
	h := NewHandler(s, mockKeys{key: testAPIKey}, info, &mockBus{}, nil)
	gin.SetMode(gin.TestMode)
	return h.InitAPIRoutes()
}

func keyHeader(key string) http.Header {
	h := http.Header{}
	if key != "" {
		h.Set(service.APIKeyHeader, key)
	}
	return h
}
