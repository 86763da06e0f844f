package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-platform/internal/agent/orchestrator"
	"tutor-platform/pkg/config"
)

func TestNewBootstrap_RulesProvider(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Log.Format = "text"

	b, err := NewBootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, ProviderRules, b.Client.Provider())
	assert.Equal(t, []string{"calculator", "lookup"}, b.Registry.Names())

	resp := b.Orchestrator.Handle(context.Background(), orchestrator.Query{Text: "what is 12 * (3+4)"})
	require.True(t, resp.OK(), "%+v", resp.Error)
	assert.Equal(t, "math", resp.AgentDetails.Name)
	assert.Contains(t, resp.Answer, "84")

	report := b.Orchestrator.Health(context.Background())
	assert.True(t, report.Healthy())
}

func TestNewBootstrap_NilConfig(t *testing.T) {
	b, err := NewBootstrap(context.Background(), nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, ProviderRules, b.Client.Provider())
}

func TestNewBootstrap_UnsupportedStore(t *testing.T) {
	cfg := &config.Config{}
	cfg.Session.Store = "cassandra"
	_, err := NewBootstrap(context.Background(), cfg)
	assert.Error(t, err)
}

func TestToolPolicy(t *testing.T) {
	p := toolPolicy(config.AgentConfig{CallTimeout: "5s", RetryBackoff: "100ms", MaxRetries: 4})
	assert.Equal(t, "5s", p.AttemptTimeout.String())
	assert.Equal(t, "100ms", p.InitialInterval.String())
	assert.Equal(t, 4, p.MaxRetries)
}

func TestNewBootstrap_HealthReflectsRemoteProvider(t *testing.T) {
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"name":"models/gemini-test"}`))
	}))
	defer srv.Close()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Log.Format = "text"
	cfg.Log.Level = "error"
	cfg.Model.Provider = "gemini"
	cfg.Model.Name = "gemini-test"
	cfg.Model.APIKey = "test-key"
	cfg.Model.BaseURL = srv.URL

	b, err := NewBootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer b.Close()

	report := b.Orchestrator.Health(context.Background())
	assert.True(t, report.Healthy())
	assert.Equal(t, orchestrator.StatusHealthy, report.Components["completion_service"])

	down.Store(true)
	report = b.Orchestrator.Health(context.Background())
	assert.False(t, report.Healthy())
	assert.Equal(t, orchestrator.StatusUnhealthy, report.Components["completion_service"])
}
