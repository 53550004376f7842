package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/launcherd/internal/app"
	"github.com/woozymasta/launcherd/internal/config"
	"github.com/woozymasta/launcherd/internal/environment"
	"github.com/woozymasta/launcherd/internal/events"
	"github.com/woozymasta/launcherd/internal/install"
	"github.com/woozymasta/launcherd/internal/metrics"
	"github.com/woozymasta/launcherd/internal/models"
	"github.com/woozymasta/launcherd/internal/router"
	"github.com/woozymasta/launcherd/internal/settings"
	"github.com/woozymasta/launcherd/internal/status"
)

type response struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Kind  string          `json:"kind"`
	OK    bool            `json:"ok"`
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.MaxBodySize = 4096
	cfg.RateLimit.Count = 0
	cfg.RateLimit.Window = time.Minute
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *events.Bus) {
	t.Helper()

	bus := events.NewBus(64, nil)
	t.Cleanup(bus.Close)

	state := &app.State{
		Settings:    settings.NewStore(),
		Status:      status.NewProbe(status.StubSource{}),
		Environment: environment.NewProbe("launcherd-no-such-runtime", "-version", time.Second),
		Workflow:    install.New(install.Options{Dir: t.TempDir(), Emitter: bus}),
		Events:      bus,
	}

	prom := metrics.NewPrometheus()
	s := New(router.New(state, prom), bus, prom.Handler(), cfg)
	s.StartWorkers()
	t.Cleanup(s.StopWorkers)

	return s, bus
}

func invoke(t *testing.T, h http.Handler, command, body string, header ...string) (int, response) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/invoke/"+command, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())

	return rec.Code, resp
}

func TestInvoke_Envelope(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	h := s.Run()

	code, resp := invoke(t, h, router.CmdSaveSettings, `{"settings":{"allocated_memory_mb":8192,"resolution":{"width":1280,"height":720}}}`)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.OK)

	code, resp = invoke(t, h, router.CmdLoadSettings, "")
	assert.Equal(t, http.StatusOK, code)
	require.True(t, resp.OK)

	var loaded models.GameSettings
	require.NoError(t, json.Unmarshal(resp.Data, &loaded))
	assert.Equal(t, 8192, loaded.AllocatedMemoryMB)
	assert.Equal(t, models.Resolution{Width: 1280, Height: 720}, loaded.Resolution)
}

func TestInvoke_Errors(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	h := s.Run()

	tests := []struct {
		name    string
		command string
		body    string
		kind    string
		code    int
	}{
		{"unknown command", "reboot", "", "unknown_command", http.StatusNotFound},
		{"invalid json", router.CmdSaveSettings, "{", "invalid_payload", http.StatusBadRequest},
		{"too large", router.CmdSaveSettings, `{"runtime_path":"` + strings.Repeat("a", 5000) + `"}`, "invalid_payload", http.StatusBadRequest},
		{"runtime missing", router.CmdCheckJava, "", "runtime_not_found", http.StatusUnprocessableEntity},
		{"not installed", router.CmdLaunchGame, "", "not_installed", http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := invoke(t, h, tt.command, tt.body)
			assert.Equal(t, tt.code, code)
			assert.False(t, resp.OK)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AuthToken = "s3cret"
	s, _ := newTestServer(t, cfg)
	h := s.Run()

	code, resp := invoke(t, h, router.CmdLoadSettings, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", resp.Kind)

	code, _ = invoke(t, h, router.CmdLoadSettings, "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, resp = invoke(t, h, router.CmdLoadSettings, "", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.OK)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/commands?token=s3cret", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Count = 2
	s, _ := newTestServer(t, cfg)
	h := s.Run()

	for range 2 {
		code, _ := invoke(t, h, router.CmdLoadSettings, "")
		assert.Equal(t, http.StatusOK, code)
	}

	code, resp := invoke(t, h, router.CmdLoadSettings, "")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limited", resp.Kind)
}

func TestCommandsAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	h := s.Run()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/commands", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	var names []string
	require.NoError(t, json.Unmarshal(resp.Data, &names))
	assert.Contains(t, names, router.CmdDownloadClient)
	assert.Len(t, names, 13)

	invoke(t, h, router.CmdGetSystemInfo, "")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `launcherd_commands_total{command="get_system_info",result="ok"} 1`)
}

func TestEventStream(t *testing.T) {
	s, bus := newTestServer(t, testConfig())
	srv := httptest.NewServer(s.Run())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(models.Event{Name: events.DownloadProgress, RunID: "run-1", Payload: 42}))

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	for dataLine == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	assert.Equal(t, events.DownloadProgress, eventLine)

	var e struct {
		Event   string `json:"event"`
		RunID   string `json:"run_id"`
		Payload int    `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(dataLine), &e))
	assert.Equal(t, events.DownloadProgress, e.Event)
	assert.Equal(t, "run-1", e.RunID)
	assert.Equal(t, 42, e.Payload)

	cancel()
	assert.Eventually(t, func() bool { return bus.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
