package pebblestore

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports engine internals of an open pebble database.
type Collector struct {
	db *pebble.DB

	compactions   *prometheus.Desc
	estimatedDebt *prometheus.Desc
	memtableSize  *prometheus.Desc
	memtableCount *prometheus.Desc
	walFiles      *prometheus.Desc
	walSize       *prometheus.Desc
}

func NewCollector(db *pebble.DB) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("itforum", "pebble", name), help, nil, nil)
	}
	return &Collector{
		db:            db,
		compactions:   desc("compactions_total", "Total number of compactions performed"),
		estimatedDebt: desc("compaction_estimated_debt_bytes", "Estimated bytes that need to be compacted to reach a stable state"),
		memtableSize:  desc("memtable_size_bytes", "Bytes allocated by memtables"),
		memtableCount: desc("memtable_count", "Number of memtables"),
		walFiles:      desc("wal_files", "Number of live WAL files"),
		walSize:       desc("wal_size_bytes", "Size of live WAL data"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.compactions
	ch <- c.estimatedDebt
	ch <- c.memtableSize
	ch <- c.memtableCount
	ch <- c.walFiles
	ch <- c.walSize
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.db.Metrics()
	ch <- prometheus.MustNewConstMetric(c.compactions, prometheus.CounterValue, float64(m.Compact.Count))
	ch <- prometheus.MustNewConstMetric(c.estimatedDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt))
	ch <- prometheus.MustNewConstMetric(c.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(c.memtableCount, prometheus.GaugeValue, float64(m.MemTable.Count))
	ch <- prometheus.MustNewConstMetric(c.walFiles, prometheus.GaugeValue, float64(m.WAL.Files))
	ch <- prometheus.MustNewConstMetric(c.walSize, prometheus.GaugeValue, float64(m.WAL.Size))
}
