package config

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"creditiq/pkg/core/agent"
	"creditiq/pkg/core/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type named struct {
	llm.MockProvider
	name string
}

func (n *named) Name() string { return n.name }

func newMux() *http.ServeMux {
	m := agent.NewManager(agent.Config{
		ActiveProvider: "azure",
		Agents:         map[string]agent.AgentConfig{agent.StageDistillation: {Provider: "gemini"}},
	})
	m.Register(&named{name: "azure"})
	m.Register(&named{name: "gemini"})
	mux := http.NewServeMux()
	NewHandler(m).Routes(mux)
	return mux
}

func TestHandleConfig(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "azure", resp.ActiveProvider)
	assert.Equal(t, []string{"azure", "gemini"}, resp.Available)
	assert.Equal(t, "gemini", resp.Stages[agent.StageDistillation])
}

func TestHandleSwitch(t *testing.T) {
	mux := newMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config/switch", strings.NewReader(`{"provider":"gemini"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "gemini", resp.ActiveProvider)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config/switch", strings.NewReader(`{"provider":"kimi"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config/switch", strings.NewReader(`nope`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
