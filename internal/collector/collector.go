// Package collector merges consumed job messages back into per-AOI
// multiburst.json documents for file-based processing.
package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/ASFHyP3/VolcSARvatory/internal/jobs"
	"github.com/ASFHyP3/VolcSARvatory/pkg/aoi"
	"github.com/ASFHyP3/VolcSARvatory/pkg/burst"
	"github.com/ASFHyP3/VolcSARvatory/pkg/metrics"
	"github.com/ASFHyP3/VolcSARvatory/pkg/multiburst"
)

const (
	DocumentFile = "multiburst.json"
	TilesFile    = "tiles_to_process.json"
)

// ErrInvalidAOIName is returned for AOI names that cannot be a directory.
var ErrInvalidAOIName = errors.New("invalid aoi name")

// Collector writes every job it handles into <dir>/<aoi>/multiburst.json and
// keeps the tile list next to it. A redelivered job replaces its own entry,
// so handling is idempotent. Safe for concurrent use.
type Collector struct {
	dir     string
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	mu   sync.Mutex
	docs map[string]jobs.Document
}

// New creates the output directory if needed. m may be nil.
func New(dir string, log *zap.SugaredLogger, m *metrics.Metrics) (*Collector, error) {
	if dir == "" {
		return nil, errors.New("output directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Collector{dir: dir, log: log, metrics: m, docs: make(map[string]jobs.Document)}, nil
}

// Handle implements the consumer handler. Undecodable or inconsistent jobs
// are returned as errors so they end up in the dead letter topic.
func (c *Collector) Handle(ctx context.Context, msg *kafka.Message) error {
	start := time.Now()
	err := c.collect(ctx, msg)
	c.metrics.RecordJobCollected(err, time.Since(start).Seconds())
	return err
}

func (c *Collector) collect(ctx context.Context, msg *kafka.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job, err := jobs.Decode(msg.Value)
	if err != nil {
		return err
	}
	if err := checkJob(job, msg.Key); err != nil {
		return err
	}

	settings := aoi.AOI{
		Name:             job.AOI,
		Extent:           job.Extent,
		TemporalBaseline: job.TemporalBaseline,
		Season:           job.Season,
		TargetDate:       job.TargetDate,
		BridgeYears:      job.BridgeYears,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.document(job.AOI)
	if err != nil {
		return err
	}
	_, seen := doc[job.ID]
	next := doc.Clone()
	next.Add(settings, []*multiburst.Group{multiburst.NewGroup(job.MBSet)})
	// The cache only holds what was written.
	if err := c.write(job.AOI, next); err != nil {
		return err
	}
	c.docs[job.AOI] = next

	c.log.Debugw("job collected",
		"aoi", job.AOI,
		"id", job.ID,
		"runID", job.RunID,
		"redelivered", seen,
		"multibursts", len(next),
	)
	return nil
}

func checkJob(job jobs.Message, key []byte) error {
	if job.AOI == "" || job.AOI != filepath.Base(job.AOI) || job.AOI == "." || job.AOI == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidAOIName, job.AOI)
	}
	if job.MBSet.Empty() {
		return fmt.Errorf("job %s: empty mb_set", job.ID)
	}
	if got := multiburst.GroupID(job.MBSet); got != job.ID {
		return fmt.Errorf("%w: job %s describes %s", burst.ErrMalformedID, job.ID, got)
	}
	if len(key) > 0 && string(key) != job.ID {
		return fmt.Errorf("job %s published with key %s", job.ID, key)
	}
	return nil
}

// document returns the cached document of name, reading it from disk the
// first time. Callers hold c.mu.
func (c *Collector) document(name string) (jobs.Document, error) {
	if doc, ok := c.docs[name]; ok {
		return doc, nil
	}
	if err := os.MkdirAll(filepath.Join(c.dir, name), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory of aoi %s: %w", name, err)
	}
	doc, err := jobs.ReadDocument(c.DocumentPath(name))
	if err != nil {
		return nil, err
	}
	c.docs[name] = doc
	return doc, nil
}

func (c *Collector) write(name string, doc jobs.Document) error {
	if err := jobs.WriteJSON(c.DocumentPath(name), doc); err != nil {
		return err
	}
	return jobs.WriteJSON(filepath.Join(c.dir, name, TilesFile), doc.Tiles())
}

// DocumentPath is the multiburst.json of the named AOI.
func (c *Collector) DocumentPath(name string) string {
	return filepath.Join(c.dir, name, DocumentFile)
}
