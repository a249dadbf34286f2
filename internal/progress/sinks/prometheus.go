package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shelfbase/catalog-harvester/internal/progress"
)

// PrometheusSink exports harvest progress metrics via Prometheus. It owns all
// collectors for runs started/completed/running and the per-category fetch
// and write counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	categoriesDone    *prometheus.CounterVec
	categoriesRunning prometheus.Gauge
	categoryDuration  *prometheus.HistogramVec

	pagesFetched    prometheus.Counter
	identifiersSeen prometheus.Counter
	productsWritten prometheus.Counter
	unresolvedTotal *prometheus.CounterVec
	batchesTotal    prometheus.Counter
	batchRetries    prometheus.Counter
	batchDuration   prometheus.Histogram

	runs       *liveSet
	categories *liveSet
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_runs_started_total",
			Help: "Total harvest runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_runs_completed_total",
			Help: "Total harvest runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_runs_running",
			Help: "Current number of running harvest runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{30, 60, 300, 600, 1200, 1800, 3600, 7200},
		}, []string{"result"}),
		categoriesDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_categories_total",
			Help: "Categories finished partitioned by terminal state.",
		}, []string{"state"}),
		categoriesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_categories_running",
			Help: "Categories currently being worked.",
		}),
		categoryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_category_duration_seconds",
			Help:    "Wall time per finished category partitioned by terminal state.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"state"}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_pages_fetched_total",
			Help: "Listing pages fetched across all categories.",
		}),
		identifiersSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_identifiers_enumerated_total",
			Help: "Product identifiers gathered from listing pages.",
		}),
		productsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_products_written_total",
			Help: "Product records flushed to output units.",
		}),
		unresolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_unresolved_total",
			Help: "Identifiers that stayed unresolved partitioned by reason.",
		}, []string{"reason"}),
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_batches_total",
			Help: "Detail batches settled, successfully or not.",
		}),
		batchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_batch_retries_total",
			Help: "Extra attempts spent settling detail batches.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvest_batch_duration_seconds",
			Help:    "Time to settle one detail batch including retries.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		runs:       newLiveSet(),
		categories: newLiveSet(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.categoriesDone,
		s.categoriesRunning,
		s.categoryDuration,
		s.pagesFetched,
		s.identifiersSeen,
		s.productsWritten,
		s.unresolvedTotal,
		s.batchesTotal,
		s.batchRetries,
		s.batchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.runs.start(runKey(evt)) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues(evt.State).Inc()
		if evt.Dur > 0 {
			s.runDuration.WithLabelValues(evt.State).Observe(evt.Dur.Seconds())
		}
		if s.runs.complete(runKey(evt)) {
			s.runsRunning.Dec()
		}
	case progress.StageCategoryStart:
		if s.categories.start(categoryKey(evt)) {
			s.categoriesRunning.Inc()
		}
	case progress.StageCategoryDone:
		s.categoriesDone.WithLabelValues(evt.State).Inc()
		if evt.Dur > 0 {
			s.categoryDuration.WithLabelValues(evt.State).Observe(evt.Dur.Seconds())
		}
		if evt.Written > 0 {
			s.productsWritten.Add(float64(evt.Written))
		}
		if s.categories.complete(categoryKey(evt)) {
			s.categoriesRunning.Dec()
		}
	case progress.StagePageFetched:
		s.pagesFetched.Inc()
		if evt.Identifiers > 0 {
			s.identifiersSeen.Add(float64(evt.Identifiers))
		}
	case progress.StageBatchDone:
		s.batchesTotal.Inc()
		if evt.Attempts > 1 {
			s.batchRetries.Add(float64(evt.Attempts - 1))
		}
		if evt.Dur > 0 {
			s.batchDuration.Observe(evt.Dur.Seconds())
		}
		if evt.Unresolved > 0 {
			reason := evt.Reason
			if reason == "" {
				reason = "unknown"
			}
			s.unresolvedTotal.WithLabelValues(reason).Add(float64(evt.Unresolved))
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func runKey(evt progress.Event) string {
	return evt.RunUUID().String()
}

func categoryKey(evt progress.Event) string {
	return evt.RunUUID().String() + "/" + evt.Category
}

// liveSet tracks in-flight keys so gauges survive duplicate events.
type liveSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newLiveSet() *liveSet {
	return &liveSet{keys: make(map[string]struct{})}
}

func (l *liveSet) start(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.keys[key]; ok {
		return false
	}
	l.keys[key] = struct{}{}
	return true
}

func (l *liveSet) complete(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.keys[key]; !ok {
		return false
	}
	delete(l.keys, key)
	return true
}
