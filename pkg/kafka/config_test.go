package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProducerConfig_Defaults(t *testing.T) {
	cfg, err := LoadProducerConfig()
	require.NoError(t, err)

	assert.Equal(t, "localhost:9092", cfg.BootstrapServers)
	assert.Equal(t, "multiburst-jobs", cfg.Topic)
	assert.Equal(t, 1, cfg.TopicPartitions)
	assert.Equal(t, 30*time.Second, cfg.MessageTimeout)
	assert.False(t, cfg.EnableLogs)
	require.NoError(t, cfg.Validate())
}

func TestLoadProducerConfig_FromEnv(t *testing.T) {
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "broker-1:9092,broker-2:9092")
	t.Setenv("KAFKA_TOPIC", "jobs")
	t.Setenv("KAFKA_TOPIC_PARTITIONS", "6")
	t.Setenv("KAFKA_REPLICATION_FACTOR", "3")
	t.Setenv("KAFKA_TOPIC_RETENTION", "168h")
	t.Setenv("KAFKA_ENABLE_LOGS", "true")

	cfg, err := LoadProducerConfig()
	require.NoError(t, err)

	assert.Equal(t, TopicConfig{
		Name:              "jobs",
		NumPartitions:     6,
		ReplicationFactor: 3,
		RetentionMs:       (168 * time.Hour).Milliseconds(),
	}, cfg.TopicConfig())
	assert.True(t, cfg.EnableLogs)
}

func TestLoadProducerConfig_BadValue(t *testing.T) {
	t.Setenv("KAFKA_TOPIC_PARTITIONS", "many")

	_, err := LoadProducerConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse kafka config")
}

func TestProducerConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := ProducerConfig{
		BootstrapServers:  "localhost:9092",
		Topic:             "jobs",
		TopicPartitions:   1,
		ReplicationFactor: 1,
		MessageTimeout:    time.Second,
	}

	tests := []struct {
		name    string
		mutate  func(*ProducerConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*ProducerConfig) {}},
		{name: "no brokers", mutate: func(c *ProducerConfig) { c.BootstrapServers = "" }, wantErr: "bootstrap servers"},
		{name: "no timeout", mutate: func(c *ProducerConfig) { c.MessageTimeout = 0 }, wantErr: "message timeout"},
		{name: "no topic", mutate: func(c *ProducerConfig) { c.Topic = "" }, wantErr: "topic name cannot be empty"},
		{name: "zero partitions", mutate: func(c *ProducerConfig) { c.TopicPartitions = 0 }, wantErr: "number of partitions"},
		{name: "zero replication", mutate: func(c *ProducerConfig) { c.ReplicationFactor = 0 }, wantErr: "replication factor"},
		{name: "negative retention", mutate: func(c *ProducerConfig) { c.Retention = -time.Hour }, wantErr: "retention"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestProducerConfig_ConfigMap(t *testing.T) {
	t.Parallel()

	cfg := ProducerConfig{
		BootstrapServers: "localhost:9092",
		ClientID:         "volcsarvatory",
		MessageTimeout:   5 * time.Second,
	}
	m := *cfg.ConfigMap()
	assert.Equal(t, "localhost:9092", m["bootstrap.servers"])
	assert.Equal(t, "all", m["acks"])
	assert.Equal(t, true, m["enable.idempotence"])
	assert.Equal(t, 5000, m["message.timeout.ms"])
	assert.Equal(t, false, m["go.logs.channel.enable"])
	assert.NotContains(t, m, "sasl.username")

	cfg.SASLUsername = "user"
	cfg.SASLPassword = "secret"
	cfg.SASLMechanism = "SCRAM-SHA-512"
	m = *cfg.ConfigMap()
	assert.Equal(t, "SASL_SSL", m["security.protocol"])
	assert.Equal(t, "SCRAM-SHA-512", m["sasl.mechanisms"])

	admin := *cfg.AdminConfigMap()
	assert.Equal(t, "user", admin["sasl.username"])
	assert.NotContains(t, admin, "acks")
}

func TestLoadConsumerConfig_Defaults(t *testing.T) {
	cfg, err := LoadConsumerConfig()
	require.NoError(t, err)

	assert.Equal(t, "multiburst-jobs", cfg.Topic)
	assert.Equal(t, "volcsarvatory-collector", cfg.GroupID)
	assert.Equal(t, "multiburst-jobs-dlq", cfg.DLQTopic)
	assert.Equal(t, "earliest", cfg.AutoOffsetReset)
	assert.Equal(t, int64(4), cfg.MaxConcurrency)
	assert.Equal(t, DefaultCommitInterval, cfg.CommitInterval)
	require.NoError(t, cfg.Validate())
}

func TestConsumerConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := ConsumerConfig{
		BootstrapServers: "localhost:9092",
		Topic:            "jobs",
		GroupID:          "collector",
		DLQTopic:         "jobs-dlq",
		AutoOffsetReset:  "latest",
		MaxConcurrency:   1,
	}

	tests := []struct {
		name    string
		mutate  func(*ConsumerConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*ConsumerConfig) {}},
		{name: "no dlq", mutate: func(c *ConsumerConfig) { c.DLQTopic = "" }},
		{name: "no brokers", mutate: func(c *ConsumerConfig) { c.BootstrapServers = "" }, wantErr: "bootstrap servers"},
		{name: "no topic", mutate: func(c *ConsumerConfig) { c.Topic = "" }, wantErr: "topic cannot be empty"},
		{name: "no group", mutate: func(c *ConsumerConfig) { c.GroupID = "" }, wantErr: "consumer group"},
		{name: "dlq is topic", mutate: func(c *ConsumerConfig) { c.DLQTopic = "jobs" }, wantErr: "dead letter topic"},
		{name: "zero concurrency", mutate: func(c *ConsumerConfig) { c.MaxConcurrency = 0 }, wantErr: "concurrency"},
		{name: "bad offset reset", mutate: func(c *ConsumerConfig) { c.AutoOffsetReset = "smallest" }, wantErr: "auto offset reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConsumerConfig_ConfigMap(t *testing.T) {
	t.Parallel()

	cfg := ConsumerConfig{
		BootstrapServers: "localhost:9092",
		Topic:            "jobs",
		GroupID:          "collector",
		DLQTopic:         "jobs-dlq",
		AutoOffsetReset:  "earliest",
		SASLUsername:     "user",
		SASLPassword:     "secret",
		SASLMechanism:    "PLAIN",
	}
	m := *cfg.ConfigMap()
	assert.Equal(t, "collector", m["group.id"])
	assert.Equal(t, false, m["enable.auto.commit"])
	assert.Equal(t, "earliest", m["auto.offset.reset"])
	assert.Equal(t, "SASL_SSL", m["security.protocol"])

	dlq := cfg.DLQProducerConfig()
	assert.Equal(t, "jobs-dlq", dlq.Topic)
	assert.Equal(t, "collector-dlq", dlq.ClientID)
	assert.Equal(t, "secret", dlq.SASLPassword)
	require.NoError(t, dlq.Validate())
}
