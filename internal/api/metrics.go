package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/AaronLay10/xyzplot/internal/events"
	"github.com/AaronLay10/xyzplot/internal/sweep"
	"github.com/AaronLay10/xyzplot/internal/version"
)

// Metrics state
var (
	metricsState = &MetricsState{}
)

// MetricsState holds runtime metrics for the /metrics endpoint.
type MetricsState struct {
	mu              sync.RWMutex
	startTime       time.Time
	instanceName    string
	brokerConnected int // 1, 0, or -1 when no broker is in use
	sweepsTotal     int64
	sweepsDegraded  int64
	sweepsFailed    int64
	cellsFailed     uint64
	exportsTotal    int64
}

// InitMetrics initializes the metrics system. Must be called at startup.
func InitMetrics() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
	metricsState.brokerConnected = -1
	metricsState.sweepsTotal = 0
	metricsState.sweepsDegraded = 0
	metricsState.sweepsFailed = 0
	metricsState.cellsFailed = 0
	metricsState.exportsTotal = 0
}

// SetInstanceName sets the instance label of every metric and alert.
func SetInstanceName(name string) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.instanceName = name
}

// GetInstanceName returns the current instance name.
func GetInstanceName() string {
	metricsState.mu.RLock()
	defer metricsState.mu.RUnlock()
	return metricsState.instanceName
}

// SetBrokerConnected records the executor broker state.
func SetBrokerConnected(connected bool) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	if connected {
		metricsState.brokerConnected = 1
	} else {
		metricsState.brokerConnected = 0
	}
}

// RecordSweep counts one finished sweep. report is nil when err is set.
func RecordSweep(report *sweep.Report, err error) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.sweepsTotal++
	if err != nil || report == nil {
		metricsState.sweepsFailed++
		return
	}
	if report.Status == sweep.StatusDegraded {
		metricsState.sweepsDegraded++
	}
	if report.Failed != nil {
		metricsState.cellsFailed += report.Failed.GetCardinality()
	}
}

// RecordExport counts one exported grid.
func RecordExport() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.exportsTotal++
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	metricsState.mu.RLock()
	startTime := metricsState.startTime
	instance := metricsState.instanceName
	brokerConnected := metricsState.brokerConnected
	sweepsTotal := metricsState.sweepsTotal
	sweepsDegraded := metricsState.sweepsDegraded
	sweepsFailed := metricsState.sweepsFailed
	cellsFailed := metricsState.cellsFailed
	exportsTotal := metricsState.exportsTotal
	metricsState.mu.RUnlock()

	uptime := time.Since(startTime).Seconds()
	eventsTotal := events.TotalCount()
	wsClients := events.SubscriberCount()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	if instance == "" {
		instance = hostname
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		if labels != "" {
			fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
		} else {
			fmt.Fprintf(w, "%s %v\n", name, value)
		}
	}

	labels := fmt.Sprintf(`instance="%s",host="%s",version="%s"`, instance, hostname, version.Version)

	writeMetric("xyzplot_uptime_seconds", "gauge",
		"Number of seconds since the server started", uptime, labels)
	writeMetric("xyzplot_events_total", "counter",
		"Total number of events emitted since startup", eventsTotal, labels)
	writeMetric("xyzplot_sweeps_total", "counter",
		"Total number of sweeps run", sweepsTotal, labels)
	writeMetric("xyzplot_sweeps_degraded_total", "counter",
		"Sweeps that finished with at least one failed cell", sweepsDegraded, labels)
	writeMetric("xyzplot_sweeps_failed_total", "counter",
		"Sweeps that ended without a manifest", sweepsFailed, labels)
	writeMetric("xyzplot_cells_failed_total", "counter",
		"Total number of failed cells across degraded sweeps", cellsFailed, labels)
	writeMetric("xyzplot_exports_total", "counter",
		"Total number of exported grid images", exportsTotal, labels)
	writeMetric("xyzplot_broker_connected", "gauge",
		"Whether the MQTT broker is connected (1), not (0), or unused (-1)", brokerConnected, labels)
	writeMetric("xyzplot_ws_clients", "gauge",
		"Number of active WebSocket client connections", wsClients, labels)
}
