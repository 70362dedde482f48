// Package metric defines the opencensus measures of the service and exposes
// them to Prometheus.
package metric

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	SamplesCollected = stats.Int64("scimm/samples_collected", "Number of collected training samples", stats.UnitDimensionless)
	SamplesPruned    = stats.Int64("scimm/samples_pruned", "Number of samples removed by the scheduler", stats.UnitDimensionless)
	TrainLatency     = stats.Float64("scimm/train_latency", "Time to train the model of a class", stats.UnitMilliseconds)
	ScoreLatency     = stats.Float64("scimm/score_latency", "Time to score a sequence against one class", stats.UnitMilliseconds)

	KeyClass  = mustNewKey("class")
	KeyResult = mustNewKey("result")
)

var views = []*view.View{
	{
		Name:        "scimm/samples_collected_count",
		Measure:     SamplesCollected,
		Description: "Collected samples by class",
		Aggregation: view.Sum(),
		TagKeys:     []tag.Key{KeyClass},
	},
	{
		Name:        "scimm/samples_pruned_count",
		Measure:     SamplesPruned,
		Description: "Pruned samples by class",
		Aggregation: view.Sum(),
		TagKeys:     []tag.Key{KeyClass},
	},
	{
		Name:        "scimm/train_latency",
		Measure:     TrainLatency,
		Description: "Training latency distribution",
		Aggregation: view.Distribution(1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000),
		TagKeys:     []tag.Key{KeyClass, KeyResult},
	},
	{
		Name:        "scimm/score_latency",
		Measure:     ScoreLatency,
		Description: "Scoring latency distribution",
		Aggregation: view.Distribution(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100),
		TagKeys:     []tag.Key{KeyClass},
	},
}

func mustNewKey(name string) tag.Key {
	k, err := tag.NewKey(name)
	if err != nil {
		panic(fmt.Sprintf("metric: tag key %q: %v", name, err))
	}
	return k
}

// Register registers the views of the service measures.
func Register() error {
	if err := view.Register(views...); err != nil {
		return fmt.Errorf("register views: %w", err)
	}
	return nil
}

// NewHandler returns the Prometheus scrape handler of the registered views.
func NewHandler(namespace string) (http.Handler, error) {
	exporter, err := prometheus.NewExporter(prometheus.Options{Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	return exporter, nil
}

// Count records n occurrences of m for class.
func Count(ctx context.Context, m *stats.Int64Measure, class string, n int64) {
	_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(KeyClass, class)}, m.M(n))
}

// Since records the milliseconds elapsed from start for class.
func Since(ctx context.Context, m *stats.Float64Measure, class, result string, start time.Time) {
	mutators := []tag.Mutator{tag.Upsert(KeyClass, class)}
	if result != "" {
		mutators = append(mutators, tag.Upsert(KeyResult, result))
	}
	ms := float64(time.Since(start)) / float64(time.Millisecond)
	_ = stats.RecordWithTags(ctx, mutators, m.M(ms))
}
