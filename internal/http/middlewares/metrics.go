package middlewares

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics agrupa las métricas HTTP del servicio.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight *prometheus.GaugeVec
}

// NewHTTPMetrics crea y registra las métricas HTTP (y el collector del pool si hay).
// Si ya estaban registradas reutiliza las existentes.
func NewHTTPMetrics(reg prometheus.Registerer, pool func() *pgxpool.Pool) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests en vuelo por método",
		}, []string{"method"}),
	}
	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.inflight, err = register(reg, m.inflight); err != nil {
		return nil, err
	}
	if pool != nil {
		if _, err = register(reg, newPoolCollector(pool)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Middleware instrumenta cada request. Se monta con chi Use: el label path es el
// patrón de ruta para no explotar cardinalidad con ids.
func (m *HTTPMetrics) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method := strings.ToUpper(r.Method)
			g := m.inflight.WithLabelValues(method)
			g.Inc()
			defer g.Dec()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			path := routePattern(r)
			m.duration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			m.requests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// register registra c; si ya había uno igual devuelve el existente.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			return c, nil
		}
		return c, err
	}
	return c, nil
}

// poolCollector expone gauges del pool pgx del directorio.
type poolCollector struct {
	pool         func() *pgxpool.Pool
	acquiredDesc *prometheus.Desc
	idleDesc     *prometheus.Desc
	totalDesc    *prometheus.Desc
}

func newPoolCollector(pool func() *pgxpool.Pool) *poolCollector {
	return &poolCollector{
		pool:         pool,
		acquiredDesc: prometheus.NewDesc("pg_pool_acquired", "Conexiones adquiridas", nil, nil),
		idleDesc:     prometheus.NewDesc("pg_pool_idle", "Conexiones inactivas", nil, nil),
		totalDesc:    prometheus.NewDesc("pg_pool_total", "Conexiones totales", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredDesc
	ch <- c.idleDesc
	ch <- c.totalDesc
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	p := c.pool()
	if p == nil {
		return
	}
	stat := p.Stat()
	ch <- prometheus.MustNewConstMetric(c.acquiredDesc, prometheus.GaugeValue, float64(stat.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idleDesc, prometheus.GaugeValue, float64(stat.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(stat.TotalConns()))
}
