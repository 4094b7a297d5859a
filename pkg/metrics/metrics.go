package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "volcsarvatory"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	Partition = "partition"
	Catalog   = "catalog"
	Jobs      = "jobs"
)

// Split kinds recorded by IncSplit.
const (
	SplitCount      = "count"
	SplitVertical   = "vertical"
	SplitHorizontal = "horizontal"
	SplitForced     = "forced"
)

// AOI outcomes recorded by IncAOI.
const (
	AOIProcessed = "processed"
	AOISkipped   = "skipped"
	AOIFailed    = "failed"
)

// Error type constants for IncError.
const (
	ErrTypeValidation = "validation"
	ErrTypeCatalog    = "catalog"
	ErrTypeStorage    = "storage"
	ErrTypePublish    = "publish"
	ErrTypeDepth      = "depth_exceeded"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple deployments.
type Labels struct {
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-west-2")
	CloudProvider string // Cloud provider (e.g., "aws")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Partitioning
	validations       *prometheus.CounterVec
	splits            *prometheus.CounterVec
	validatorRetries  prometheus.Counter
	groupsEmitted     prometheus.Counter
	fillersAdded      prometheus.Counter
	partitionDuration prometheus.Histogram

	// Catalog lookups
	catalogRequests *prometheus.CounterVec
	catalogDuration prometheus.Histogram

	// Job publishing
	jobsPublished *prometheus.CounterVec
	aoisProcessed *prometheus.CounterVec

	// Job collection
	jobsCollected   *prometheus.CounterVec
	dlqPublished    prometheus.Counter
	collectDuration prometheus.Histogram

	errors *prometheus.CounterVec
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Partition,
			Name:      "validations_total",
			Help:      "Candidate set validations by verdict",
		}, []string{"verdict"}),
		splits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Partition,
			Name:      "splits_total",
			Help:      "Candidate set splits by kind",
		}, []string{"kind"}),
		validatorRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Partition,
			Name:      "validator_retries_total",
			Help:      "Validator calls retried after a transient failure",
		}),
		groupsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Partition,
			Name:      "groups_emitted_total",
			Help:      "Multi-burst groups emitted",
		}),
		fillersAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Partition,
			Name:      "fillers_added_total",
			Help:      "Bursts added by hole filling and side completion",
		}),
		partitionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Partition,
			Name:      "duration_seconds",
			Help:      "Time to partition one burst id list",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30, 60},
		}),
		catalogRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Catalog,
			Name:      "requests_total",
			Help:      "Burst catalog searches by status",
		}, []string{"status"}),
		catalogDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Catalog,
			Name:      "request_duration_seconds",
			Help:      "Burst catalog search latency",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		jobsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Jobs,
			Name:      "published_total",
			Help:      "Job messages published by status",
		}, []string{"status"}),
		jobsCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Jobs,
			Name:      "collected_total",
			Help:      "Job messages merged into job documents by status",
		}, []string{"status"}),
		dlqPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Jobs,
			Name:      "dlq_published_total",
			Help:      "Job messages sent to the dead letter topic",
		}),
		collectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Jobs,
			Name:      "collect_duration_seconds",
			Help:      "Time to merge one job message into its document",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
		aoisProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "aois_processed_total",
			Help:      "AOIs handled by outcome (processed, skipped, failed)",
		}, []string{"outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total errors by type",
		}, []string{"type"}),
	}

	err := errors.Join(
		reg.Register(m.validations),
		reg.Register(m.splits),
		reg.Register(m.validatorRetries),
		reg.Register(m.groupsEmitted),
		reg.Register(m.fillersAdded),
		reg.Register(m.partitionDuration),
		reg.Register(m.catalogRequests),
		reg.Register(m.catalogDuration),
		reg.Register(m.jobsPublished),
		reg.Register(m.aoisProcessed),
		reg.Register(m.jobsCollected),
		reg.Register(m.dlqPublished),
		reg.Register(m.collectDuration),
		reg.Register(m.errors),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// IncValidation counts one validation with the given verdict label.
func (m *Metrics) IncValidation(verdict string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(verdict).Inc()
}

// IncSplit counts one split of the given kind.
func (m *Metrics) IncSplit(kind string) {
	if m == nil {
		return
	}
	m.splits.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncValidatorRetry() {
	if m == nil {
		return
	}
	m.validatorRetries.Inc()
}

func (m *Metrics) AddGroupsEmitted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.groupsEmitted.Add(float64(n))
}

func (m *Metrics) AddFillers(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.fillersAdded.Add(float64(n))
}

func (m *Metrics) ObservePartitionDuration(seconds float64) {
	if m == nil {
		return
	}
	m.partitionDuration.Observe(seconds)
}

// RecordCatalogRequest records the outcome and latency of one catalog search.
func (m *Metrics) RecordCatalogRequest(err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.catalogRequests.WithLabelValues(status).Inc()
	m.catalogDuration.Observe(durationSeconds)
}

// RecordJobPublished counts one job publish attempt.
func (m *Metrics) RecordJobPublished(err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.jobsPublished.WithLabelValues(status).Inc()
}

// RecordJobCollected records the outcome and latency of merging one job.
func (m *Metrics) RecordJobCollected(err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.jobsCollected.WithLabelValues(status).Inc()
	m.collectDuration.Observe(durationSeconds)
}

func (m *Metrics) IncDLQPublished() {
	if m == nil {
		return
	}
	m.dlqPublished.Inc()
}

// IncAOI counts one AOI with the given outcome.
func (m *Metrics) IncAOI(outcome string) {
	if m == nil {
		return
	}
	m.aoisProcessed.WithLabelValues(outcome).Inc()
}

// IncError increments the error counter for the given error type.
func (m *Metrics) IncError(errType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errType).Inc()
}
