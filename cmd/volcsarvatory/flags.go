package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ASFHyP3/VolcSARvatory/pkg/aoi"
	"github.com/ASFHyP3/VolcSARvatory/pkg/catalog"
	"github.com/ASFHyP3/VolcSARvatory/pkg/data/clickhouse/burstindex"
	"github.com/ASFHyP3/VolcSARvatory/pkg/data/clickhouse/groups"
	"github.com/ASFHyP3/VolcSARvatory/pkg/multiburst"
	"github.com/ASFHyP3/VolcSARvatory/pkg/scheduler"
)

func verboseFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Enable verbose logging",
		EnvVars: []string{"VERBOSE"},
		Value:   false,
	}
}

// partitionFlags tune the multi-burst partitioner.
func partitionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "count-limit",
			Usage:   "Maximum number of bursts in one multi-burst",
			EnvVars: []string{"COUNT_LIMIT"},
			Value:   multiburst.DefaultCountLimit,
		},
		&cli.StringFlag{
			Name:    "side-pairs",
			Usage:   "Sub-swath pair order used to complete ragged sides (cyclic or linear)",
			EnvVars: []string{"SIDE_PAIRS"},
			Value:   multiburst.SidePairsCyclic.String(),
		},
		&cli.IntFlag{
			Name:    "partition-concurrency",
			Usage:   "Number of acquisition paths partitioned in parallel",
			EnvVars: []string{"PARTITION_CONCURRENCY"},
			Value:   1,
		},
		&cli.IntFlag{
			Name:    "max-depth",
			Usage:   "Repair recursion depth after which sets are only split",
			EnvVars: []string{"MAX_DEPTH"},
			Value:   multiburst.DefaultConfig().MaxDepth,
		},
		&cli.DurationFlag{
			Name:    "validator-retry-backoff",
			Usage:   "Delay before retrying a validation that failed with a transient error",
			EnvVars: []string{"VALIDATOR_RETRY_BACKOFF"},
			Value:   multiburst.DefaultRetryBackoff,
		},
	}
}

// catalogFlags configure the optional burst catalog qualification.
func catalogFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "qualify",
			Aliases: []string{"q"},
			Usage:   "Drop bursts without enough VV/HH acquisitions in the catalog",
			EnvVars: []string{"QUALIFY"},
		},
		&cli.StringFlag{
			Name:    "catalog-url",
			Usage:   "Base URL of the burst catalog search API",
			EnvVars: []string{"CATALOG_URL"},
			Value:   catalog.DefaultBaseURL,
		},
		&cli.DurationFlag{
			Name:    "catalog-timeout",
			Usage:   "Timeout of one catalog request",
			EnvVars: []string{"CATALOG_TIMEOUT"},
			Value:   catalog.DefaultTimeout,
		},
		&cli.IntFlag{
			Name:    "catalog-concurrency",
			Usage:   "Number of concurrent catalog requests",
			EnvVars: []string{"CATALOG_CONCURRENCY"},
			Value:   catalog.DefaultConcurrency,
		},
		&cli.DurationFlag{
			Name:    "catalog-retry-backoff",
			Usage:   "Delay before retrying a catalog request that failed with a transient error",
			EnvVars: []string{"CATALOG_RETRY_BACKOFF"},
			Value:   catalog.DefaultRetryBackoff,
		},
	}
}

// clickhouseFlags override the CLICKHOUSE_* environment configuration.
func clickhouseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "clickhouse-hosts",
			Usage: "ClickHouse hosts (overrides CLICKHOUSE_HOSTS)",
		},
		&cli.StringFlag{
			Name:  "clickhouse-cluster",
			Usage: "ClickHouse cluster (overrides CLICKHOUSE_CLUSTER)",
		},
		&cli.StringFlag{
			Name:  "clickhouse-database",
			Usage: "ClickHouse database (overrides CLICKHOUSE_DATABASE)",
		},
		&cli.StringFlag{
			Name:    "groups-table",
			Usage:   "Table storing multi-burst groups",
			EnvVars: []string{"GROUPS_TABLE"},
			Value:   groups.DefaultTables().Groups,
		},
		&cli.StringFlag{
			Name:    "state-table",
			Usage:   "Table storing the extent each AOI was processed with",
			EnvVars: []string{"STATE_TABLE"},
			Value:   groups.DefaultTables().State,
		},
		&cli.StringFlag{
			Name:    "frames-table",
			Usage:   "Table storing burst footprints",
			EnvVars: []string{"FRAMES_TABLE"},
			Value:   burstindex.DefaultTable,
		},
	}
}

// serviceFlags are shared by the long-running commands.
func serviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for the Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Usage:   "Port for the Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment label for metrics (e.g. production, staging)",
			EnvVars: []string{"ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Cloud region label for metrics (e.g. us-west-2)",
			EnvVars: []string{"REGION"},
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider label for metrics (e.g. aws)",
			EnvVars: []string{"CLOUD_PROVIDER"},
		},
		&cli.DurationFlag{
			Name:    "shutdown-timeout",
			Usage:   "Time allowed to flush Kafka messages on exit",
			EnvVars: []string{"SHUTDOWN_TIMEOUT"},
			Value:   15 * time.Second,
		},
	}
}

func runFlags() []cli.Flag {
	flags := []cli.Flag{
		verboseFlag(),
		&cli.StringFlag{
			Name:     "aoi-file",
			Aliases:  []string{"a"},
			Usage:    "YAML or JSON file of AOI definitions keyed by name",
			EnvVars:  []string{"AOI_FILE"},
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:    "only",
			Usage:   "Process only the named AOIs",
			EnvVars: []string{"ONLY_AOIS"},
		},
		&cli.Float64Flag{
			Name:    "min-overlap",
			Usage:   "Fraction of a burst footprint that must fall inside the AOI",
			EnvVars: []string{"MIN_OVERLAP"},
			Value:   aoi.DefaultMinOverlap,
		},
		&cli.IntFlag{
			Name:    "aoi-concurrency",
			Usage:   "Number of AOIs processed in parallel",
			EnvVars: []string{"AOI_CONCURRENCY"},
			Value:   1,
		},
		&cli.BoolFlag{
			Name:    "force",
			Usage:   "Partition AOIs again even when their extent is unchanged",
			EnvVars: []string{"FORCE"},
		},
		&cli.BoolFlag{
			Name:    "continue-on-error",
			Usage:   "Keep processing the remaining AOIs after one fails",
			EnvVars: []string{"CONTINUE_ON_ERROR"},
		},
		&cli.DurationFlag{
			Name:    "interval",
			Usage:   "Repeat the run at this interval instead of exiting after one pass",
			EnvVars: []string{"RUN_INTERVAL"},
		},
		&cli.IntFlag{
			Name:    "interval-retries",
			Usage:   "Retries of a failed scheduled pass before the service exits",
			EnvVars: []string{"RUN_INTERVAL_RETRIES"},
			Value:   scheduler.DefaultMaxRetries,
		},
		&cli.DurationFlag{
			Name:    "interval-backoff",
			Usage:   "Delay between retries of a failed scheduled pass",
			EnvVars: []string{"RUN_INTERVAL_BACKOFF"},
			Value:   scheduler.DefaultBackoff,
		},
		&cli.BoolFlag{
			Name:    "dry-run",
			Usage:   "Log job messages instead of publishing them to Kafka",
			EnvVars: []string{"DRY_RUN"},
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka bootstrap servers (overrides KAFKA_BOOTSTRAP_SERVERS)",
			EnvVars: []string{"KAFKA_BROKERS"},
		},
		&cli.StringFlag{
			Name:    "kafka-topic",
			Aliases: []string{"t"},
			Usage:   "Kafka topic for job messages (overrides KAFKA_TOPIC)",
		},
	}
	flags = append(flags, serviceFlags()...)
	flags = append(flags, partitionFlags()...)
	flags = append(flags, catalogFlags()...)
	return append(flags, clickhouseFlags()...)
}

func prepareFlags() []cli.Flag {
	flags := []cli.Flag{
		verboseFlag(),
		&cli.StringFlag{
			Name:    "input",
			Aliases: []string{"i"},
			Usage:   "File of burst ids, one per line or as a JSON list (- for stdin); ids may also be given as arguments",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "multiburst.json document to merge the groups into (stdout when empty)",
		},
		&cli.StringFlag{
			Name:  "tiles-output",
			Usage: "File receiving the sorted burst ids of the whole document",
		},
		&cli.StringFlag{
			Name:  "aoi-file",
			Usage: "AOI definitions providing the time-series settings of the groups",
		},
		&cli.StringFlag{
			Name:  "aoi",
			Usage: "Name of the AOI in --aoi-file the bursts belong to",
		},
	}
	flags = append(flags, partitionFlags()...)
	return append(flags, catalogFlags()...)
}

func removeFlags() []cli.Flag {
	return append([]cli.Flag{
		verboseFlag(),
		&cli.StringFlag{
			Name:     "aoi",
			Usage:    "Name of the AOI whose groups are removed",
			EnvVars:  []string{"AOI"},
			Required: true,
		},
	}, clickhouseFlags()...)
}

func importFramesFlags() []cli.Flag {
	return append([]cli.Flag{
		verboseFlag(),
		&cli.StringFlag{
			Name:     "input",
			Aliases:  []string{"i"},
			Usage:    "CSV of burst_id,minlon,maxlon,minlat,maxlat (- for stdin)",
			Required: true,
		},
	}, clickhouseFlags()...)
}

func collectFlags() []cli.Flag {
	flags := []cli.Flag{
		verboseFlag(),
		&cli.StringFlag{
			Name:     "output-dir",
			Aliases:  []string{"o"},
			Usage:    "Directory receiving one <aoi>/multiburst.json per AOI",
			EnvVars:  []string{"OUTPUT_DIR"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka bootstrap servers (overrides KAFKA_BOOTSTRAP_SERVERS)",
			EnvVars: []string{"KAFKA_BROKERS"},
		},
		&cli.StringFlag{
			Name:    "kafka-topic",
			Aliases: []string{"t"},
			Usage:   "Kafka topic of job messages (overrides KAFKA_TOPIC)",
		},
		&cli.StringFlag{
			Name:  "consumer-group",
			Usage: "Kafka consumer group (overrides KAFKA_CONSUMER_GROUP)",
		},
		&cli.StringFlag{
			Name:  "dlq-topic",
			Usage: "Topic for jobs that cannot be collected, empty to stop on them (overrides KAFKA_DLQ_TOPIC)",
		},
		&cli.Int64Flag{
			Name:  "consumer-concurrency",
			Usage: "Number of job messages handled in parallel (overrides KAFKA_CONSUMER_CONCURRENCY)",
		},
	}
	return append(flags, serviceFlags()...)
}
