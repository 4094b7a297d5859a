//go:build integration
// +build integration

package kafka

import (
	"context"
	"testing"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/ASFHyP3/VolcSARvatory/pkg/queue"
)

const (
	kafkaImage     = "confluentinc/cp-kafka:7.5.0"
	startupTimeout = 60 * time.Second
	brokers        = "localhost:9093"
)

func setupKafka(t *testing.T) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        kafkaImage,
		ExposedPorts: []string{"9093/tcp"},
		HostConfigModifier: func(hc *container.HostConfig) {
			// advertised listeners name the fixed host port
			hc.PortBindings = map[nat.Port][]nat.PortBinding{
				"9093/tcp": {{HostIP: "127.0.0.1", HostPort: "9093"}},
			}
		},
		Env: map[string]string{
			"KAFKA_LISTENERS":                                "PLAINTEXT://0.0.0.0:9093,BROKER://0.0.0.0:9092,CONTROLLER://0.0.0.0:9094",
			"KAFKA_ADVERTISED_LISTENERS":                     "PLAINTEXT://localhost:9093,BROKER://localhost:9092",
			"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP":           "CONTROLLER:PLAINTEXT,BROKER:PLAINTEXT,PLAINTEXT:PLAINTEXT",
			"KAFKA_INTER_BROKER_LISTENER_NAME":               "BROKER",
			"KAFKA_CONTROLLER_LISTENER_NAMES":                "CONTROLLER",
			"KAFKA_CONTROLLER_QUORUM_VOTERS":                 "1@localhost:9094",
			"KAFKA_PROCESS_ROLES":                            "broker,controller",
			"KAFKA_NODE_ID":                                  "1",
			"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR":         "1",
			"KAFKA_TRANSACTION_STATE_LOG_REPLICATION_FACTOR": "1",
			"KAFKA_TRANSACTION_STATE_LOG_MIN_ISR":            "1",
			"KAFKA_AUTO_CREATE_TOPICS_ENABLE":                "false",
			"CLUSTER_ID":                                     "MkU3OEVBNTcwNTJENDM2Qk",
		},
		WaitingFor: wait.ForLog("Kafka Server started").WithStartupTimeout(startupTimeout),
	}

	c, err := testcontainers.GenericContainer(t.Context(), testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	time.Sleep(3 * time.Second)
}

func TestEnsureTopicAndPublish_Integration(t *testing.T) {
	setupKafka(t)
	log := zaptest.NewLogger(t).Sugar()

	cfg := ProducerConfig{
		BootstrapServers:  brokers,
		Topic:             "multiburst-jobs",
		ClientID:          "volcsarvatory-test",
		TopicPartitions:   1,
		ReplicationFactor: 1,
		MessageTimeout:    10 * time.Second,
	}
	require.NoError(t, cfg.Validate())

	admin, err := cKafka.NewAdminClient(cfg.AdminConfigMap())
	require.NoError(t, err)
	defer admin.Close()

	require.NoError(t, EnsureTopic(t.Context(), admin, cfg.TopicConfig(), log))
	md, err := TopicExists(admin, cfg.Topic)
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Len(t, md.Partitions, 1)

	grow := cfg.TopicConfig()
	grow.NumPartitions = 3
	require.NoError(t, EnsureTopic(t.Context(), admin, grow, log))
	require.ErrorIs(t, EnsureTopic(t.Context(), admin, cfg.TopicConfig(), log), ErrTooManyPartitions)

	pub, err := queue.NewKafkaPublisher(t.Context(), cfg.ConfigMap(), log)
	require.NoError(t, err)
	defer pub.Close(t.Context())

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()
	err = pub.Publish(ctx, queue.Msg{
		Topic:   cfg.Topic,
		Key:     []byte("087_000000n00_185678n02_000000n00"),
		Value:   []byte(`{"id":"087_000000n00_185678n02_000000n00"}`),
		Headers: map[string]string{"aoi": "kilauea"},
	})
	require.NoError(t, err)
	consumerCfg := ConsumerConfig{
		BootstrapServers: brokers,
		Topic:            cfg.Topic,
		GroupID:          "volcsarvatory-test",
		AutoOffsetReset:  "earliest",
		MaxConcurrency:   1,
		CommitInterval:   100 * time.Millisecond,
	}
	got := make(chan *cKafka.Message, 1)
	handler := HandlerFunc(func(_ context.Context, msg *cKafka.Message) error {
		select {
		case got <- msg:
		default:
		}
		return nil
	})
	consumer, err := NewConsumer(ctx, consumerCfg, handler, nil, log, nil)
	require.NoError(t, err)

	consumeCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Start(consumeCtx) }()

	select {
	case msg := <-got:
		assert.Equal(t, "087_000000n00_185678n02_000000n00", string(msg.Key))
	case <-ctx.Done():
		t.Fatal("timeout waiting for job message")
	}
	stop()
	require.NoError(t, <-done)
}
