package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ASFHyP3/VolcSARvatory/pkg/aoi"
	"github.com/ASFHyP3/VolcSARvatory/pkg/catalog"
	"github.com/ASFHyP3/VolcSARvatory/pkg/clickhouse"
	"github.com/ASFHyP3/VolcSARvatory/pkg/data/clickhouse/groups"
	"github.com/ASFHyP3/VolcSARvatory/pkg/kafka"
	"github.com/ASFHyP3/VolcSARvatory/pkg/metrics"
	"github.com/ASFHyP3/VolcSARvatory/pkg/multiburst"
	"github.com/ASFHyP3/VolcSARvatory/pkg/scheduler"
)

// Config holds all configuration for the run command.
type Config struct {
	// Application settings
	Verbose         bool
	AOIFile         string
	Only            []string
	MinOverlap      float64
	AOIConcurrency  int
	Force           bool
	ContinueOnError bool
	DryRun          bool
	// Schedule repeats the run when its Interval is set.
	Schedule scheduler.Config

	Partition      multiburst.Config
	ValidatorRetry time.Duration

	// Catalog settings, used when Qualify is set
	Qualify bool
	Catalog catalog.Config

	Kafka kafka.ProducerConfig

	// ClickHouse settings
	ClickHouse  clickhouse.Config
	Tables      groups.Tables
	FramesTable string

	ServiceConfig
}

// CollectConfig holds all configuration for the collect command.
type CollectConfig struct {
	Verbose   bool
	OutputDir string
	Consumer  kafka.ConsumerConfig

	ServiceConfig
}

// ServiceConfig holds the metrics and shutdown settings of the long-running
// commands.
type ServiceConfig struct {
	ShutdownTimeout time.Duration

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsAddr returns the formatted metrics address
func (c ServiceConfig) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

func (c ServiceConfig) MetricsLabels() metrics.Labels {
	return metrics.Labels{
		Environment:   c.Environment,
		Region:        c.Region,
		CloudProvider: c.CloudProvider,
	}
}

// buildConfig builds a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	partition, err := buildPartitionConfig(c)
	if err != nil {
		return nil, err
	}
	chCfg, err := buildClickHouseConfig(c)
	if err != nil {
		return nil, fmt.Errorf("failed to build ClickHouse config: %w", err)
	}
	kafkaCfg, err := buildKafkaConfig(c)
	if err != nil {
		return nil, fmt.Errorf("failed to build Kafka config: %w", err)
	}
	schedule := scheduler.Config{
		Interval:   c.Duration("interval"),
		MaxRetries: c.Int("interval-retries"),
		Backoff:    c.Duration("interval-backoff"),
	}
	if schedule.Interval > 0 {
		if err := schedule.Validate(); err != nil {
			return nil, fmt.Errorf("invalid schedule: %w", err)
		}
	}
	if c.Int("aoi-concurrency") <= 0 {
		return nil, fmt.Errorf("aoi-concurrency must be > 0, got %d", c.Int("aoi-concurrency"))
	}

	return &Config{
		Verbose:         c.Bool("verbose"),
		AOIFile:         c.String("aoi-file"),
		Only:            c.StringSlice("only"),
		MinOverlap:      c.Float64("min-overlap"),
		AOIConcurrency:  c.Int("aoi-concurrency"),
		Force:           c.Bool("force"),
		ContinueOnError: c.Bool("continue-on-error"),
		DryRun:          c.Bool("dry-run"),
		Schedule:        schedule,
		Partition:       partition,
		ValidatorRetry:  c.Duration("validator-retry-backoff"),
		Qualify:         c.Bool("qualify"),
		Catalog:         buildCatalogConfig(c),
		Kafka:           kafkaCfg,
		ClickHouse:      chCfg,
		Tables: groups.Tables{
			Groups: c.String("groups-table"),
			State:  c.String("state-table"),
		},
		FramesTable:   c.String("frames-table"),
		ServiceConfig: buildServiceConfig(c),
	}, nil
}

// buildCollectConfig builds a CollectConfig from CLI context flags
func buildCollectConfig(c *cli.Context) (*CollectConfig, error) {
	consumer, err := buildConsumerConfig(c)
	if err != nil {
		return nil, fmt.Errorf("failed to build Kafka consumer config: %w", err)
	}
	return &CollectConfig{
		Verbose:       c.Bool("verbose"),
		OutputDir:     c.String("output-dir"),
		Consumer:      consumer,
		ServiceConfig: buildServiceConfig(c),
	}, nil
}

func buildServiceConfig(c *cli.Context) ServiceConfig {
	return ServiceConfig{
		ShutdownTimeout: c.Duration("shutdown-timeout"),
		MetricsHost:     c.String("metrics-host"),
		MetricsPort:     c.Int("metrics-port"),
		Environment:     c.String("environment"),
		Region:          c.String("region"),
		CloudProvider:   c.String("cloud-provider"),
	}
}

func buildPartitionConfig(c *cli.Context) (multiburst.Config, error) {
	pairs, err := multiburst.ParseSidePairs(c.String("side-pairs"))
	if err != nil {
		return multiburst.Config{}, err
	}
	cfg := multiburst.Config{
		CountLimit:  c.Int("count-limit"),
		SidePairs:   pairs,
		Concurrency: c.Int("partition-concurrency"),
		MaxDepth:    c.Int("max-depth"),
	}
	if err := cfg.Validate(); err != nil {
		return multiburst.Config{}, fmt.Errorf("invalid partition config: %w", err)
	}
	return cfg, nil
}

func buildCatalogConfig(c *cli.Context) catalog.Config {
	return catalog.Config{
		BaseURL:      c.String("catalog-url"),
		Timeout:      c.Duration("catalog-timeout"),
		Concurrency:  c.Int("catalog-concurrency"),
		RetryBackoff: c.Duration("catalog-retry-backoff"),
	}
}

// buildClickHouseConfig reads CLICKHOUSE_* from the environment and applies
// the flags that were set explicitly.
func buildClickHouseConfig(c *cli.Context) (clickhouse.Config, error) {
	cfg, err := clickhouse.Load()
	if err != nil {
		return clickhouse.Config{}, err
	}
	if c.IsSet("clickhouse-hosts") {
		cfg.Hosts = splitHosts(c.StringSlice("clickhouse-hosts"))
	}
	if c.IsSet("clickhouse-cluster") {
		cfg.Cluster = c.String("clickhouse-cluster")
	}
	if c.IsSet("clickhouse-database") {
		cfg.Database = c.String("clickhouse-database")
	}
	if err := cfg.Validate(); err != nil {
		return clickhouse.Config{}, err
	}
	return cfg, nil
}

// buildKafkaConfig reads KAFKA_* from the environment and applies the flags
// that were set explicitly.
func buildKafkaConfig(c *cli.Context) (kafka.ProducerConfig, error) {
	cfg, err := kafka.LoadProducerConfig()
	if err != nil {
		return kafka.ProducerConfig{}, err
	}
	if c.IsSet("kafka-brokers") {
		cfg.BootstrapServers = c.String("kafka-brokers")
	}
	if c.IsSet("kafka-topic") {
		cfg.Topic = c.String("kafka-topic")
	}
	if err := cfg.Validate(); err != nil {
		return kafka.ProducerConfig{}, err
	}
	return cfg, nil
}

// buildConsumerConfig reads KAFKA_* from the environment and applies the
// flags that were set explicitly.
func buildConsumerConfig(c *cli.Context) (kafka.ConsumerConfig, error) {
	cfg, err := kafka.LoadConsumerConfig()
	if err != nil {
		return kafka.ConsumerConfig{}, err
	}
	if c.IsSet("kafka-brokers") {
		cfg.BootstrapServers = c.String("kafka-brokers")
	}
	if c.IsSet("kafka-topic") {
		cfg.Topic = c.String("kafka-topic")
	}
	if c.IsSet("consumer-group") {
		cfg.GroupID = c.String("consumer-group")
	}
	if c.IsSet("dlq-topic") {
		cfg.DLQTopic = c.String("dlq-topic")
	}
	if c.IsSet("consumer-concurrency") {
		cfg.MaxConcurrency = c.Int64("consumer-concurrency")
	}
	if err := cfg.Validate(); err != nil {
		return kafka.ConsumerConfig{}, err
	}
	return cfg, nil
}

// splitHosts handles a single comma-separated value as well as repeated flags.
func splitHosts(hosts []string) []string {
	var out []string
	for _, h := range hosts {
		for _, part := range strings.Split(h, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// selectAOIs keeps the AOIs named in only, in definition order. Every name
// must exist.
func selectAOIs(all []aoi.AOI, only []string) ([]aoi.AOI, error) {
	if len(only) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(only))
	for _, n := range only {
		want[n] = true
	}
	var out []aoi.AOI
	for _, a := range all {
		if want[a.Name] {
			out = append(out, a)
			delete(want, a.Name)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for n := range want {
			missing = append(missing, n)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("unknown aois: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
