package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

type poolMetric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(*pgxpool.Stat) float64
}

// PoolStatsCollector exports pgxpool statistics on every scrape.
type PoolStatsCollector struct {
	pool    *pgxpool.Pool
	service string
	metrics []poolMetric
}

// NewPoolStatsCollector builds a collector labelled with service.
func NewPoolStatsCollector(pool *pgxpool.Pool, service string) *PoolStatsCollector {
	metric := func(name, help string, kind prometheus.ValueType, value func(*pgxpool.Stat) float64) poolMetric {
		return poolMetric{
			desc:  prometheus.NewDesc("db_pool_"+name, help, []string{"service"}, nil),
			kind:  kind,
			value: value,
		}
	}
	gauge, counter := prometheus.GaugeValue, prometheus.CounterValue

	return &PoolStatsCollector{
		pool:    pool,
		service: service,
		metrics: []poolMetric{
			metric("acquired_connections", "Connections currently checked out.", gauge,
				func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
			metric("idle_connections", "Connections currently idle.", gauge,
				func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
			metric("total_connections", "Connections open in the pool.", gauge,
				func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
			metric("max_connections", "Configured pool size.", gauge,
				func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }),
			metric("constructing_connections", "Connections being established.", gauge,
				func(s *pgxpool.Stat) float64 { return float64(s.ConstructingConns()) }),
			metric("acquire_count_total", "Successful acquires.", counter,
				func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }),
			metric("acquire_duration_seconds_total", "Time spent waiting to acquire.", counter,
				func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }),
			metric("canceled_acquire_count_total", "Acquires canceled by their context.", counter,
				func(s *pgxpool.Stat) float64 { return float64(s.CanceledAcquireCount()) }),
			metric("empty_acquire_count_total", "Acquires that waited for a free connection.", counter,
				func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }),
			metric("new_connections_total", "Connections opened.", counter,
				func(s *pgxpool.Stat) float64 { return float64(s.NewConnsCount()) }),
			metric("max_lifetime_destroy_total", "Connections closed for exceeding max lifetime.", counter,
				func(s *pgxpool.Stat) float64 { return float64(s.MaxLifetimeDestroyCount()) }),
			metric("max_idle_destroy_total", "Connections closed for exceeding max idle time.", counter,
				func(s *pgxpool.Stat) float64 { return float64(s.MaxIdleDestroyCount()) }),
		},
	}
}

func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stat()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(stat), c.service)
	}
}

// RegisterPoolMetrics registers a collector for pool with reg.
func RegisterPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool, service string) error {
	return reg.Register(NewPoolStatsCollector(pool, service))
}
