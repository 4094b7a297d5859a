package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ASFHyP3/VolcSARvatory/internal/jobs"
	"github.com/ASFHyP3/VolcSARvatory/internal/pipeline"
	"github.com/ASFHyP3/VolcSARvatory/pkg/aoi"
	"github.com/ASFHyP3/VolcSARvatory/pkg/catalog"
	"github.com/ASFHyP3/VolcSARvatory/pkg/clickhouse"
	"github.com/ASFHyP3/VolcSARvatory/pkg/data/clickhouse/burstindex"
	"github.com/ASFHyP3/VolcSARvatory/pkg/data/clickhouse/groups"
	"github.com/ASFHyP3/VolcSARvatory/pkg/kafka"
	"github.com/ASFHyP3/VolcSARvatory/pkg/metrics"
	"github.com/ASFHyP3/VolcSARvatory/pkg/multiburst"
	"github.com/ASFHyP3/VolcSARvatory/pkg/queue"
	"github.com/ASFHyP3/VolcSARvatory/pkg/scheduler"
	"github.com/ASFHyP3/VolcSARvatory/pkg/utils"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const metricsShutdownTimeout = 5 * time.Second

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}

	sugar, err := utils.NewSugaredLogger("run", cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"aoiFile", cfg.AOIFile,
		"only", cfg.Only,
		"minOverlap", cfg.MinOverlap,
		"aoiConcurrency", cfg.AOIConcurrency,
		"force", cfg.Force,
		"continueOnError", cfg.ContinueOnError,
		"dryRun", cfg.DryRun,
		"interval", cfg.Schedule.Interval,
		"countLimit", cfg.Partition.CountLimit,
		"sidePairs", cfg.Partition.SidePairs.String(),
		"partitionConcurrency", cfg.Partition.Concurrency,
		"maxDepth", cfg.Partition.MaxDepth,
		"qualify", cfg.Qualify,
		"catalogURL", cfg.Catalog.BaseURL,
		"kafkaBrokers", cfg.Kafka.BootstrapServers,
		"kafkaTopic", cfg.Kafka.Topic,
		"clickhouseHosts", cfg.ClickHouse.Hosts,
		"clickhouseDatabase", cfg.ClickHouse.Database,
		"groupsTable", cfg.Tables.Groups,
		"stateTable", cfg.Tables.State,
		"framesTable", cfg.FramesTable,
		"metricsAddr", cfg.MetricsAddr(),
	)

	aois, err := loadAOIs(cfg, sugar)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chClient, err := clickhouse.New(cfg.ClickHouse, sugar)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	defer chClient.Close()

	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, cfg.MetricsLabels())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, chClient.Ping)
	metricsErrCh := metricsServer.Start()
	sugar.Infof("metrics server listening on %s", cfg.MetricsAddr())
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("failed to shut down metrics server", "error", err)
		}
	}()

	frames, err := burstindex.NewRepository(ctx, chClient, cfg.ClickHouse.Cluster, cfg.ClickHouse.Database, cfg.FramesTable)
	if err != nil {
		return fmt.Errorf("failed to create frames repository: %w", err)
	}
	finder, err := aoi.NewBurstIndex(frames, cfg.MinOverlap, sugar)
	if err != nil {
		return fmt.Errorf("failed to create burst index: %w", err)
	}

	groupsRepo, err := groups.NewRepository(ctx, chClient, cfg.ClickHouse.Cluster, cfg.ClickHouse.Database, cfg.Tables)
	if err != nil {
		return fmt.Errorf("failed to create groups repository: %w", err)
	}

	validator := multiburst.NewRetryValidator(
		multiburst.NewRuleValidator(cfg.Partition.CountLimit), cfg.ValidatorRetry, sugar, m,
	)
	partitioner, err := multiburst.NewPartitioner(sugar, validator, cfg.Partition, m)
	if err != nil {
		return fmt.Errorf("failed to create partitioner: %w", err)
	}

	var qualifier pipeline.Qualifier
	if cfg.Qualify {
		qualifier = catalog.NewClient(cfg.Catalog, sugar, m)
	}

	var (
		publisher   queue.QueuePublisher
		publishErrs <-chan error
		store       pipeline.GroupStore = groupsRepo
	)
	if cfg.DryRun {
		mem := queue.NewMemoryPublisher()
		defer logDryRun(sugar, mem)
		publisher = mem
		store = dryRunStore{Repository: groupsRepo, log: sugar}
	} else {
		kp, err := newPublisher(ctx, cfg.Kafka, sugar)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			kp.Close(flushCtx)
		}()
		publisher = kp
		publishErrs = kp.Errors()
	}

	p, err := pipeline.New(sugar, pipeline.Config{
		Topic:           cfg.Kafka.Topic,
		Concurrency:     cfg.AOIConcurrency,
		Force:           cfg.Force,
		ContinueOnError: cfg.ContinueOnError,
	}, pipeline.Deps{
		Finder:      finder,
		Qualifier:   qualifier,
		Partitioner: partitioner,
		Store:       store,
		Publisher:   publisher,
		Metrics:     m,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	pass := func(ctx context.Context, attempt int) error {
		// Scheduled passes pick up edits of the definitions file.
		selected := aois
		if cfg.Schedule.Interval > 0 {
			reloaded, err := loadAOIs(cfg, sugar)
			if err != nil {
				return err
			}
			selected = reloaded
		}
		runID := jobs.NewRunID()
		sum, err := p.Run(ctx, runID, selected)
		sugar.Infow("summary",
			"run_id", sum.RunID,
			"attempt", attempt,
			"processed", sum.Processed,
			"skipped", sum.Skipped,
			"failed", sum.Failed,
			"groups", sum.Groups,
		)
		if err != nil {
			sugar.Errorw("run failed", "run_id", runID, "error", err)
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		if cfg.Schedule.Interval <= 0 {
			return pass(gctx, 0)
		}
		sugar.Infof("running every %s", cfg.Schedule.Interval)
		return scheduler.Start(gctx, cfg.Schedule, pass, sugar)
	})
	g.Go(func() error {
		select {
		case <-done:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		case err, ok := <-metricsErrCh:
			if !ok {
				return nil
			}
			return err
		}
	})
	if publishErrs != nil {
		g.Go(func() error {
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			case err := <-publishErrs:
				return err
			}
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation")
		return nil
	}
	if err != nil {
		return err
	}

	sugar.Info("shutting down")
	return nil
}

func loadAOIs(cfg *Config, sugar *zap.SugaredLogger) ([]aoi.AOI, error) {
	defs, err := aoi.LoadDefinitions(cfg.AOIFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load aoi definitions: %w", err)
	}
	aois, err := selectAOIs(defs, cfg.Only)
	if err != nil {
		return nil, err
	}
	sugar.Infof("loaded %d aois, processing %d", len(defs), len(aois))
	return aois, nil
}

// newPublisher makes sure the topic of cfg exists with the configured
// partitions before creating the producer.
func newPublisher(ctx context.Context, cfg kafka.ProducerConfig, sugar *zap.SugaredLogger) (*queue.KafkaPublisher, error) {
	admin, err := confluentKafka.NewAdminClient(cfg.AdminConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer admin.Close()

	if err := kafka.EnsureTopic(ctx, admin, cfg.TopicConfig(), sugar); err != nil {
		return nil, fmt.Errorf("failed to ensure kafka topic: %w", err)
	}

	kp, err := queue.NewKafkaPublisher(ctx, cfg.ConfigMap(), sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}
	return kp, nil
}

// dryRunStore reads the stored AOI state but logs writes instead of applying
// them, so a dry run never marks an AOI as processed.
type dryRunStore struct {
	groups.Repository
	log *zap.SugaredLogger
}

func (s dryRunStore) WriteGroups(_ context.Context, a aoi.AOI, runID string, gs []*multiburst.Group) error {
	s.log.Infow("dry run: skipping group write", "aoi", a.Name, "run_id", runID, "groups", len(gs))
	return nil
}

func (s dryRunStore) DeleteGroups(_ context.Context, aoiName string) error {
	s.log.Infow("dry run: skipping group delete", "aoi", aoiName)
	return nil
}

func logDryRun(sugar *zap.SugaredLogger, mem *queue.MemoryPublisher) {
	msgs := mem.Messages()
	for _, msg := range msgs {
		sugar.Infow("dry run: job", "topic", msg.Topic, "key", string(msg.Key), "aoi", msg.Headers["aoi"], "bytes", len(msg.Value))
	}
	sugar.Infof("dry run: %d jobs not published", len(msgs))
}
