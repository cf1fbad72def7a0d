package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// StatSource is satisfied by *pgxpool.Pool.
type StatSource interface {
	Stat() *pgxpool.Stat
}

// PoolStatsCollector exports pgxpool statistics.
type PoolStatsCollector struct {
	pool    StatSource
	service string

	acquiredConns *prometheus.Desc
	idleConns     *prometheus.Desc
	totalConns    *prometheus.Desc
	maxConns      *prometheus.Desc
	acquireCount  *prometheus.Desc
	emptyAcquires *prometheus.Desc
}

// NewPoolStatsCollector creates a collector labelled with service.
func NewPoolStatsCollector(pool StatSource, service string) *PoolStatsCollector {
	labels := []string{"service"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(name, help, labels, nil)
	}
	return &PoolStatsCollector{
		pool:          pool,
		service:       service,
		acquiredConns: desc("db_pool_acquired_connections", "Number of currently acquired connections"),
		idleConns:     desc("db_pool_idle_connections", "Number of currently idle connections"),
		totalConns:    desc("db_pool_total_connections", "Total number of connections in the pool"),
		maxConns:      desc("db_pool_max_connections", "Maximum number of connections allowed"),
		acquireCount:  desc("db_pool_acquire_count_total", "Total number of connection acquires"),
		emptyAcquires: desc("db_pool_empty_acquire_count_total", "Total number of acquires that had to wait for a connection"),
	}
}

func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredConns
	ch <- c.idleConns
	ch <- c.totalConns
	ch <- c.maxConns
	ch <- c.acquireCount
	ch <- c.emptyAcquires
}

func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stat()

	ch <- prometheus.MustNewConstMetric(c.acquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns()), c.service)
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(stat.IdleConns()), c.service)
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(stat.TotalConns()), c.service)
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(stat.MaxConns()), c.service)
	ch <- prometheus.MustNewConstMetric(c.acquireCount, prometheus.CounterValue, float64(stat.AcquireCount()), c.service)
	ch <- prometheus.MustNewConstMetric(c.emptyAcquires, prometheus.CounterValue, float64(stat.EmptyAcquireCount()), c.service)
}

// RegisterPoolMetrics registers a collector for pool with reg.
func RegisterPoolMetrics(reg prometheus.Registerer, pool StatSource, service string) error {
	return reg.Register(NewPoolStatsCollector(pool, service))
}
