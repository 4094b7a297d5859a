package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	defaultSessionTimeoutMs  = 240_000
	defaultMaxPollIntervalMs = 3_400_000
)

// ProducerConfig configures the job producer and its topic.
type ProducerConfig struct {
	BootstrapServers  string        `env:"KAFKA_BOOTSTRAP_SERVERS"    envDefault:"localhost:9092"`
	Topic             string        `env:"KAFKA_TOPIC"                envDefault:"multiburst-jobs"`
	ClientID          string        `env:"KAFKA_CLIENT_ID"            envDefault:"volcsarvatory"`
	TopicPartitions   int           `env:"KAFKA_TOPIC_PARTITIONS"     envDefault:"1"`
	ReplicationFactor int           `env:"KAFKA_REPLICATION_FACTOR"   envDefault:"1"`
	Retention         time.Duration `env:"KAFKA_TOPIC_RETENTION"      envDefault:"0s"`
	MessageTimeout    time.Duration `env:"KAFKA_MESSAGE_TIMEOUT"      envDefault:"30s"`
	EnableLogs        bool          `env:"KAFKA_ENABLE_LOGS"          envDefault:"false"` // librdkafka client logs

	// SASL is used when SASLUsername is set.
	SASLUsername  string `env:"KAFKA_SASL_USERNAME"`
	SASLPassword  string `env:"KAFKA_SASL_PASSWORD"`
	SASLMechanism string `env:"KAFKA_SASL_MECHANISM" envDefault:"PLAIN"`
}

// LoadProducerConfig reads the producer configuration from the environment.
func LoadProducerConfig() (ProducerConfig, error) {
	var cfg ProducerConfig
	if err := env.Parse(&cfg); err != nil {
		return ProducerConfig{}, fmt.Errorf("failed to parse kafka config: %w", err)
	}
	return cfg, nil
}

func (c ProducerConfig) Validate() error {
	if c.BootstrapServers == "" {
		return errors.New("kafka bootstrap servers cannot be empty")
	}
	if c.MessageTimeout <= 0 {
		return fmt.Errorf("message timeout must be > 0, got %s", c.MessageTimeout)
	}
	return c.TopicConfig().Validate()
}

// TopicConfig returns the topic settings EnsureTopic applies.
func (c ProducerConfig) TopicConfig() TopicConfig {
	return TopicConfig{
		Name:              c.Topic,
		NumPartitions:     c.TopicPartitions,
		ReplicationFactor: c.ReplicationFactor,
		RetentionMs:       c.Retention.Milliseconds(),
	}
}

// ConfigMap builds the librdkafka producer settings. Delivery is idempotent
// with acks from all in-sync replicas.
func (c ProducerConfig) ConfigMap() *kafka.ConfigMap {
	m := kafka.ConfigMap{
		"bootstrap.servers":      c.BootstrapServers,
		"client.id":              c.ClientID,
		"acks":                   "all",
		"enable.idempotence":     true,
		"message.timeout.ms":     int(c.MessageTimeout.Milliseconds()),
		"go.logs.channel.enable": c.EnableLogs,
	}
	applySASL(m, c.SASLUsername, c.SASLPassword, c.SASLMechanism)
	return &m
}

// AdminConfigMap holds the settings for the admin client.
func (c ProducerConfig) AdminConfigMap() *kafka.ConfigMap {
	m := kafka.ConfigMap{"bootstrap.servers": c.BootstrapServers}
	for _, k := range []string{"security.protocol", "sasl.mechanisms", "sasl.username", "sasl.password"} {
		if v, ok := (*c.ConfigMap())[k]; ok {
			m[k] = v
		}
	}
	return &m
}

// ConsumerConfig configures the job collector consumer group.
type ConsumerConfig struct {
	BootstrapServers string        `env:"KAFKA_BOOTSTRAP_SERVERS"    envDefault:"localhost:9092"`
	Topic            string        `env:"KAFKA_TOPIC"                envDefault:"multiburst-jobs"`
	GroupID          string        `env:"KAFKA_CONSUMER_GROUP"       envDefault:"volcsarvatory-collector"`
	DLQTopic         string        `env:"KAFKA_DLQ_TOPIC"            envDefault:"multiburst-jobs-dlq"`
	AutoOffsetReset  string        `env:"KAFKA_AUTO_OFFSET_RESET"    envDefault:"earliest"`
	MaxConcurrency   int64         `env:"KAFKA_CONSUMER_CONCURRENCY" envDefault:"4"`
	CommitInterval   time.Duration `env:"KAFKA_COMMIT_INTERVAL"      envDefault:"5s"`
	EnableLogs       bool          `env:"KAFKA_ENABLE_LOGS"          envDefault:"false"`

	SASLUsername  string `env:"KAFKA_SASL_USERNAME"`
	SASLPassword  string `env:"KAFKA_SASL_PASSWORD"`
	SASLMechanism string `env:"KAFKA_SASL_MECHANISM" envDefault:"PLAIN"`
}

// LoadConsumerConfig reads the consumer configuration from the environment.
func LoadConsumerConfig() (ConsumerConfig, error) {
	var cfg ConsumerConfig
	if err := env.Parse(&cfg); err != nil {
		return ConsumerConfig{}, fmt.Errorf("failed to parse kafka consumer config: %w", err)
	}
	return cfg, nil
}

func (c ConsumerConfig) Validate() error {
	switch {
	case c.BootstrapServers == "":
		return errors.New("kafka bootstrap servers cannot be empty")
	case c.Topic == "":
		return errors.New("kafka topic cannot be empty")
	case c.GroupID == "":
		return errors.New("kafka consumer group cannot be empty")
	case c.DLQTopic == c.Topic:
		return fmt.Errorf("dead letter topic must differ from %s", c.Topic)
	case c.MaxConcurrency <= 0:
		return fmt.Errorf("consumer concurrency must be > 0, got %d", c.MaxConcurrency)
	}
	switch c.AutoOffsetReset {
	case "earliest", "latest":
	default:
		return fmt.Errorf("invalid auto offset reset %q: must be earliest or latest", c.AutoOffsetReset)
	}
	return nil
}

// ConfigMap builds the librdkafka consumer settings. Offsets are committed
// by the OffsetManager, never automatically.
func (c ConsumerConfig) ConfigMap() *kafka.ConfigMap {
	m := kafka.ConfigMap{
		"bootstrap.servers":             c.BootstrapServers,
		"group.id":                      c.GroupID,
		"auto.offset.reset":             c.AutoOffsetReset,
		"enable.auto.commit":            false,
		"session.timeout.ms":            defaultSessionTimeoutMs,
		"max.poll.interval.ms":          defaultMaxPollIntervalMs,
		"partition.assignment.strategy": "roundrobin",
		"go.logs.channel.enable":        c.EnableLogs,
	}
	applySASL(m, c.SASLUsername, c.SASLPassword, c.SASLMechanism)
	return &m
}

// DLQProducerConfig returns the producer settings for the dead letter topic.
func (c ConsumerConfig) DLQProducerConfig() ProducerConfig {
	return ProducerConfig{
		BootstrapServers:  c.BootstrapServers,
		Topic:             c.DLQTopic,
		ClientID:          c.GroupID + "-dlq",
		TopicPartitions:   1,
		ReplicationFactor: 1,
		MessageTimeout:    30 * time.Second,
		EnableLogs:        c.EnableLogs,
		SASLUsername:      c.SASLUsername,
		SASLPassword:      c.SASLPassword,
		SASLMechanism:     c.SASLMechanism,
	}
}

func applySASL(m kafka.ConfigMap, username, password, mechanism string) {
	if username == "" {
		return
	}
	m["security.protocol"] = "SASL_SSL"
	m["sasl.mechanisms"] = mechanism
	m["sasl.username"] = username
	m["sasl.password"] = password
}
