package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_ObserveCommand(t *testing.T) {
	p := NewPrometheus()

	p.ObserveCommand("load_settings", "ok", 5*time.Millisecond)
	p.ObserveCommand("load_settings", "ok", 7*time.Millisecond)
	p.ObserveCommand("check_java_installation", "runtime_not_found", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.commands.WithLabelValues("load_settings", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.commands.WithLabelValues("check_java_installation", "runtime_not_found")))
}

func TestPrometheus_Gauges(t *testing.T) {
	p := NewPrometheus()

	p.SetDownloadProgress(42)
	p.SetWorkflowState(3)
	p.IncEventsDropped()

	assert.Equal(t, 42.0, testutil.ToFloat64(p.downloadPercent))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.workflowState))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.eventsDropped))
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus()
	p.ObserveCommand("get_server_info", "ok", time.Millisecond)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "launcherd_commands_total")
}

func TestNoop_ImplementsRecorder(t *testing.T) {
	var r Recorder = Noop{}
	r.ObserveCommand("x", "ok", 0)
	r.SetDownloadProgress(1)
	r.SetWorkflowState(1)
	r.IncEventsDropped()
}
