// Package metrics exposes service measurements to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memberlists"

// Prometheus records connection, command and list measurements in its own
// registry
type Prometheus struct {
	registry *prometheus.Registry

	connections prometheus.Counter
	commands    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	listSize    *prometheus.GaugeVec
	queueDepth  prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them, together with
// the Go runtime and process collectors, in a fresh registry
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connections handled by a worker.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands dispatched, by command and outcome.",
		}, []string{"command", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent dispatching a command.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"command"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by type.",
		}, []string{"type"}),
		listSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "list_members",
			Help:      "Members per list, by one-based list number.",
		}, []string{"list"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_queue_depth",
			Help:      "Accepted connections waiting for a worker.",
		}),
	}
	p.registry.MustRegister(
		p.connections,
		p.commands,
		p.duration,
		p.errors,
		p.listSize,
		p.queueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// Registry returns the registry holding every collector
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) RecordConnection() {
	p.connections.Inc()
}

func (p *Prometheus) RecordCommand(command, outcome string, duration time.Duration) {
	p.commands.WithLabelValues(command, outcome).Inc()
	p.duration.WithLabelValues(command).Observe(duration.Seconds())
}

func (p *Prometheus) RecordListSize(list, members int) {
	p.listSize.WithLabelValues(strconv.Itoa(list)).Set(float64(members))
}

func (p *Prometheus) RecordQueueDepth(depth int) {
	p.queueDepth.Set(float64(depth))
}

func (p *Prometheus) RecordError(errorType string) {
	p.errors.WithLabelValues(errorType).Inc()
}
