package store

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

type storeMetrics struct {
	set *metrics.Set

	added         *metrics.Counter
	removed       *metrics.Counter
	rolledBack    *metrics.Counter
	expired       *metrics.Counter
	persisted     *metrics.Counter
	persistFailed *metrics.Counter
}

func newStoreMetrics(s *Store) *storeMetrics {
	set := metrics.NewSet()
	labels := fmt.Sprintf(`{store=%q}`, s.name)

	m := &storeMetrics{
		set:           set,
		added:         set.NewCounter("itemstore_entities_added_total" + labels),
		removed:       set.NewCounter("itemstore_entities_removed_total" + labels),
		rolledBack:    set.NewCounter("itemstore_rollbacks_total" + labels),
		expired:       set.NewCounter("itemstore_entities_expired_total" + labels),
		persisted:     set.NewCounter("itemstore_writes_total" + labels),
		persistFailed: set.NewCounter("itemstore_write_errors_total" + labels),
	}
	set.NewGauge("itemstore_memory_bytes"+labels, func() float64 {
		return float64(s.memBytes.Load())
	})
	set.NewGauge("itemstore_cache_slots_used"+labels, func() float64 {
		return float64(s.cacheSlots.Load())
	})
	set.NewGauge("itemstore_collections"+labels, func() float64 {
		return float64(len(s.registeredCollections()))
	})
	return m
}

// WritePrometheus writes the metrics of the store in Prometheus text format.
func (s *Store) WritePrometheus(w io.Writer) {
	s.metrics.set.WritePrometheus(w)
}
