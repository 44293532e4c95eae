package db

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// StatsCollector exposes database/sql pool statistics as Prometheus metrics.
// Stats are read from the pool on each collection.
type StatsCollector struct {
	db *sql.DB

	openConns *prometheus.Desc
	inUse     *prometheus.Desc
	idle      *prometheus.Desc
	maxOpen   *prometheus.Desc
	waitCount *prometheus.Desc
}

// NewStatsCollector creates a collector for db. dialect is attached as a label.
func NewStatsCollector(db *DB, namespace string) *StatsCollector {
	constLabels := prometheus.Labels{"dialect": string(db.Dialect)}

	return &StatsCollector{
		db: db.DB,
		openConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "open_conns"),
			"Number of established connections, in use and idle",
			nil,
			constLabels,
		),
		inUse: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "in_use_conns"),
			"Number of connections currently in use",
			nil,
			constLabels,
		),
		idle: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "idle_conns"),
			"Number of idle connections",
			nil,
			constLabels,
		),
		maxOpen: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "max_open_conns"),
			"Maximum number of open connections allowed",
			nil,
			constLabels,
		),
		waitCount: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "wait_count_total"),
			"Total number of connections waited for",
			nil,
			constLabels,
		),
	}
}

// Describe sends all metric descriptors to the channel.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.openConns
	ch <- c.inUse
	ch <- c.idle
	ch <- c.maxOpen
	ch <- c.waitCount
}

// Collect gathers current pool statistics and sends them as metrics.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.db == nil {
		return
	}

	stats := c.db.Stats()

	ch <- prometheus.MustNewConstMetric(c.openConns, prometheus.GaugeValue, float64(stats.OpenConnections))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(stats.InUse))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(stats.Idle))
	ch <- prometheus.MustNewConstMetric(c.maxOpen, prometheus.GaugeValue, float64(stats.MaxOpenConnections))
	ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(stats.WaitCount))
}

// RegisterStatsCollector creates and registers a collector with reg.
// An already registered collector is not an error.
func RegisterStatsCollector(db *DB, namespace string, reg prometheus.Registerer) (*StatsCollector, error) {
	collector := NewStatsCollector(db, namespace)
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return nil, err
		}
	}
	return collector, nil
}
