package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ASFHyP3/VolcSARvatory/internal/collector"
	"github.com/ASFHyP3/VolcSARvatory/pkg/kafka"
	"github.com/ASFHyP3/VolcSARvatory/pkg/metrics"
	"github.com/ASFHyP3/VolcSARvatory/pkg/queue"
	"github.com/ASFHyP3/VolcSARvatory/pkg/utils"
)

func collect(c *cli.Context) error {
	cfg, err := buildCollectConfig(c)
	if err != nil {
		return err
	}

	sugar, err := utils.NewSugaredLogger("collect", cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"outputDir", cfg.OutputDir,
		"kafkaBrokers", cfg.Consumer.BootstrapServers,
		"kafkaTopic", cfg.Consumer.Topic,
		"consumerGroup", cfg.Consumer.GroupID,
		"dlqTopic", cfg.Consumer.DLQTopic,
		"autoOffsetReset", cfg.Consumer.AutoOffsetReset,
		"consumerConcurrency", cfg.Consumer.MaxConcurrency,
		"commitInterval", cfg.Consumer.CommitInterval,
		"metricsAddr", cfg.MetricsAddr(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, cfg.MetricsLabels())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, nil)
	metricsErrCh := metricsServer.Start()
	sugar.Infof("metrics server listening on %s", cfg.MetricsAddr())
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("failed to shut down metrics server", "error", err)
		}
	}()

	coll, err := collector.New(cfg.OutputDir, sugar, m)
	if err != nil {
		return fmt.Errorf("failed to create collector: %w", err)
	}

	var (
		dlq     queue.QueuePublisher
		dlqErrs <-chan error
	)
	if cfg.Consumer.DLQTopic != "" {
		kp, err := newPublisher(ctx, cfg.Consumer.DLQProducerConfig(), sugar)
		if err != nil {
			return fmt.Errorf("failed to create dead letter publisher: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			kp.Close(flushCtx)
		}()
		dlq = kp
		dlqErrs = kp.Errors()
	}

	consumer, err := kafka.NewConsumer(ctx, cfg.Consumer, coll, dlq, sugar, m)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		return consumer.Start(gctx)
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
	if dlqErrs != nil {
		g.Go(func() error {
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			case err := <-dlqErrs:
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
		sugar.Errorw("collector failed", "error", err)
		return err
	}

	sugar.Info("shutting down")
	return nil
}
