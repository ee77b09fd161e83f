package prometheus_metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const DefaultPort = "9746"

var jobLabels = []string{"command", "position", "schedule"}

type PrometheusMetrics struct {
	CronsCurrentlyRunningGauge   *prometheus.GaugeVec
	CronsExecCounter             *prometheus.CounterVec
	CronsSuccessCounter          *prometheus.CounterVec
	CronsFailCounter             *prometheus.CounterVec
	CronsDeadlineExceededCounter *prometheus.CounterVec
	CronsExecutionTimeHistogram  *prometheus.HistogramVec
	CronsTicksCounter            prometheus.Counter
	CronsJobsGauge               prometheus.Gauge

	registry *prometheus.Registry
	listener net.Listener
	srv      *http.Server
}

// New creates the scheduler metrics on a registry of their own, so that
// several instances can coexist in one process.
func New() *PrometheusMetrics {
	pm := PrometheusMetrics{registry: prometheus.NewRegistry()}

	pm.CronsCurrentlyRunningGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minicron_currently_running",
			Help: "count of currently running cron executions",
		},
		jobLabels,
	)

	pm.CronsExecCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minicron_executions",
			Help: "count of cron executions",
		},
		jobLabels,
	)

	pm.CronsSuccessCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minicron_successful_executions",
			Help: "count of successful cron executions",
		},
		jobLabels,
	)

	pm.CronsFailCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minicron_failed_executions",
			Help: "count of failed cron executions",
		},
		jobLabels,
	)

	pm.CronsDeadlineExceededCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minicron_deadline_exceeded",
			Help: "count of cron executions still running when the job was due again",
		},
		jobLabels,
	)

	pm.CronsExecutionTimeHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minicron_cron_execution_time_seconds",
			Help:    "execution times of the cron runs in buckets",
			Buckets: []float64{10.0, 30.0, 60.0, 120.0, 300.0, 600.0, 1800.0, 3600.0},
		},
		jobLabels,
	)

	pm.CronsTicksCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minicron_ticks",
			Help: "count of scheduler ticks that dispatched commands",
		},
	)

	pm.CronsJobsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "minicron_jobs",
			Help: "number of jobs in the active crontab",
		},
	)

	pm.registry.MustRegister(
		pm.CronsCurrentlyRunningGauge,
		pm.CronsExecCounter,
		pm.CronsSuccessCounter,
		pm.CronsFailCounter,
		pm.CronsDeadlineExceededCounter,
		pm.CronsExecutionTimeHistogram,
		pm.CronsTicksCounter,
		pm.CronsJobsGauge,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &pm
}

func (p *PrometheusMetrics) Reset() {
	p.CronsCurrentlyRunningGauge.Reset()
	p.CronsExecCounter.Reset()
	p.CronsSuccessCounter.Reset()
	p.CronsFailCounter.Reset()
	p.CronsDeadlineExceededCounter.Reset()
	p.CronsExecutionTimeHistogram.Reset()
}

// Handler serves the metrics of this instance.
func (p *PrometheusMetrics) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>
             <head><title>minicron</title></head>
             <body>
             <h1>minicron</h1>
             <p><a href='/metrics'>Metrics</a></p>
             </body>
             </html>`))
	})

	return mux
}

// InitHTTPServer starts serving metrics on listenAddr in the background. A
// listen address without a port gets DefaultPort.
func (p *PrometheusMetrics) InitHTTPServer(listenAddr string, logger *logrus.Entry) error {
	addr, err := getAddr(listenAddr)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	p.listener = listener
	p.srv = &http.Server{Handler: p.Handler()}

	go func() {
		if err := p.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("prometheus http server failed: %v", err)
		}
	}()

	return nil
}

// Addr is the address the metrics server listens on.
func (p *PrometheusMetrics) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

func (p *PrometheusMetrics) ShutdownHTTPServer(c context.Context) error {
	if p.srv == nil {
		return nil
	}
	return p.srv.Shutdown(c)
}

func getAddr(listenAddr string) (string, error) {
	if listenAddr == "" {
		return "", errors.New("empty listen address")
	}

	if _, _, err := net.SplitHostPort(listenAddr); err == nil {
		return listenAddr, nil
	}

	host := strings.TrimSuffix(strings.TrimPrefix(listenAddr, "["), "]")
	if host == "" {
		return "", errors.New("invalid listen address: " + listenAddr)
	}

	return net.JoinHostPort(host, DefaultPort), nil
}
