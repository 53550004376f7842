package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "launcherd"

// Prometheus implements Recorder on a private registry.
type Prometheus struct {
	registry        *prom.Registry
	commands        *prom.CounterVec
	commandDuration *prom.HistogramVec
	downloadPercent prom.Gauge
	workflowState   prom.Gauge
	eventsDropped   prom.Counter
}

// NewPrometheus creates and registers all collectors, including Go and process collectors.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prom.NewRegistry(),
		commands: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands handled, by command and result",
		}, []string{"command", "result"}),
		commandDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Command handling duration",
			Buckets:   prom.DefBuckets,
		}, []string{"command"}),
		downloadPercent: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "download_progress_percent",
			Help:      "Progress of the running client download",
		}),
		workflowState: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_state",
			Help:      "Install workflow state (0 idle, 1 downloading, 2 installing, 3 installed, 4 running, 5 uninstalling, 6 launching)",
		}),
		eventsDropped: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events discarded for slow subscribers",
		}),
	}

	p.registry.MustRegister(p.commands, p.commandDuration, p.downloadPercent, p.workflowState, p.eventsDropped)
	p.registry.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))

	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prom.Registry {
	return p.registry
}

func (p *Prometheus) ObserveCommand(command, result string, d time.Duration) {
	p.commands.WithLabelValues(command, result).Inc()
	p.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

func (p *Prometheus) SetDownloadProgress(percent int) {
	p.downloadPercent.Set(float64(percent))
}

func (p *Prometheus) SetWorkflowState(state int) {
	p.workflowState.Set(float64(state))
}

func (p *Prometheus) IncEventsDropped() {
	p.eventsDropped.Inc()
}
