package prometheus

import (
	"context"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/version"
)

const readHeaderTimeout = 10 * time.Second

// Exporter owns the registry for one Metrics and can serve it on a
// dedicated listener. The API server mounts Handler instead when metrics
// share its port.
type Exporter struct {
	addr     string
	registry *prometheus.Registry

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	stopped  bool
}

// NewExporter registers m, the Go runtime and process collectors, and a
// build_info gauge in a fresh registry.
func NewExporter(addr string, m *Metrics) *Exporter {
	reg := prometheus.NewRegistry()
	namespace := DefaultNamespace
	if m != nil {
		reg.MustRegister(m.Collectors()...)
		namespace = m.namespace
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildInfo(namespace),
	)
	return &Exporter{addr: addr, registry: reg}
}

func buildInfo(namespace string) prometheus.Collector {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information; always 1",
		ConstLabels: prometheus.Labels{
			"version":   version.GetVersion(),
			"goversion": runtime.Version(),
		},
	})
	g.Set(1)
	return g
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus text or OpenMetrics format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Addr returns the bound listen address once Start is serving.
func (e *Exporter) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// Start serves /metrics and /health on the configured address. It blocks
// and returns http.ErrServerClosed after Shutdown.
func (e *Exporter) Start() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return http.ErrServerClosed
	}
	if e.server != nil {
		e.mu.Unlock()
		return nil
	}
	ln, err := net.Listen("tcp", e.addr)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	e.server = &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	e.listener = ln
	srv := e.server
	e.mu.Unlock()

	return srv.Serve(ln)
}

// Shutdown stops the listener gracefully. A later Start returns
// http.ErrServerClosed.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil
	}
	e.stopped = true
	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}
