package server

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/haven-org/haven/internal/models"
	"github.com/haven-org/haven/internal/settings"
)

// metrics uses a per-server registry so routers built in tests don't collide
// on the global one.
type metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	settingWrites *prometheus.CounterVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &metrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_http_requests_total",
			Help: "HTTP requests partitioned by route, method and status.",
		}, []string{"route", "method", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "haven_http_request_duration_seconds",
			Help:    "HTTP request latency partitioned by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		settingWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_setting_writes_total",
			Help: "Successful setting upserts partitioned by category.",
		}, []string{"category"}),
	}
}

func (m *metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// instrument wraps store so successful upserts are counted.
func (m *metrics) instrument(store settings.Store) settings.Store {
	return &countingStore{Store: store, writes: m.settingWrites}
}

type countingStore struct {
	settings.Store
	writes *prometheus.CounterVec
}

func (s *countingStore) Upsert(ctx context.Context, key string, value []byte, meta settings.Meta) (*models.Setting, error) {
	rec, err := s.Store.Upsert(ctx, key, value, meta)
	if err != nil {
		return nil, err
	}
	s.writes.WithLabelValues(rec.Category).Inc()
	return rec, nil
}
