package store

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the Prometheus collectors a FileAllocator/BTree2 pair
// updates as they run. A nil *Metrics is valid everywhere it's used (all
// methods are no-ops), so library callers who never call NewMetrics pay
// nothing for the prometheus import.
type Metrics struct {
	pageCacheHits   prometheus.Counter
	pageCacheMisses prometheus.Counter
	pagesWritten    prometheus.Counter

	blocksAllocated prometheus.Counter
	blocksFreed     prometheus.Counter

	txCommitted prometheus.Counter
	txAborted   prometheus.Counter

	nodeSplits  prometheus.Counter
	nodeMerges  prometheus.Counter
	rebalances  prometheus.Counter

	fileSize prometheus.Gauge
}

// NewMetrics registers arbor's collectors on reg and returns the bundle.
// Pass a nil registry (or don't call NewMetrics at all) to run without
// metrics.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		pageCacheHits:   prometheus.NewCounter(prometheus.CounterOpts{Name: "arbor_page_cache_hits_total"}),
		pageCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{Name: "arbor_page_cache_misses_total"}),
		pagesWritten:    prometheus.NewCounter(prometheus.CounterOpts{Name: "arbor_pages_written_total"}),
		blocksAllocated: prometheus.NewCounter(prometheus.CounterOpts{Name: "arbor_blocks_allocated_total"}),
		blocksFreed:     prometheus.NewCounter(prometheus.CounterOpts{Name: "arbor_blocks_freed_total"}),
		txCommitted:     prometheus.NewCounter(prometheus.CounterOpts{Name: "arbor_transactions_committed_total"}),
		txAborted:       prometheus.NewCounter(prometheus.CounterOpts{Name: "arbor_transactions_aborted_total"}),
		nodeSplits:      prometheus.NewCounter(prometheus.CounterOpts{Name: "arbor_btree_node_splits_total"}),
		nodeMerges:      prometheus.NewCounter(prometheus.CounterOpts{Name: "arbor_btree_node_merges_total"}),
		rebalances:      prometheus.NewCounter(prometheus.CounterOpts{Name: "arbor_btree_rebalances_total"}),
		fileSize:        prometheus.NewGauge(prometheus.GaugeOpts{Name: "arbor_file_size_bytes"}),
	}
	reg.MustRegister(
		m.pageCacheHits, m.pageCacheMisses, m.pagesWritten,
		m.blocksAllocated, m.blocksFreed,
		m.txCommitted, m.txAborted,
		m.nodeSplits, m.nodeMerges, m.rebalances,
		m.fileSize,
	)
	return m
}

func (m *Metrics) pageHit() {
	if m != nil {
		m.pageCacheHits.Inc()
	}
}

func (m *Metrics) pageMiss() {
	if m != nil {
		m.pageCacheMisses.Inc()
	}
}

func (m *Metrics) pageWrite() {
	if m != nil {
		m.pagesWritten.Inc()
	}
}

func (m *Metrics) blockAlloc() {
	if m != nil {
		m.blocksAllocated.Inc()
	}
}

func (m *Metrics) blockFree() {
	if m != nil {
		m.blocksFreed.Inc()
	}
}

func (m *Metrics) committed() {
	if m != nil {
		m.txCommitted.Inc()
	}
}

func (m *Metrics) aborted() {
	if m != nil {
		m.txAborted.Inc()
	}
}

func (m *Metrics) split() {
	if m != nil {
		m.nodeSplits.Inc()
	}
}

func (m *Metrics) merge() {
	if m != nil {
		m.nodeMerges.Inc()
	}
}

func (m *Metrics) rebalance() {
	if m != nil {
		m.rebalances.Inc()
	}
}

func (m *Metrics) setFileSize(n int64) {
	if m != nil {
		m.fileSize.Set(float64(n))
	}
}
