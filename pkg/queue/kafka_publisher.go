package queue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const (
	flushTimeoutMs      = 10000
	queueFullRetryDelay = time.Second
)

// producer is the subset of *kafka.Producer the publisher drives.
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Logs() chan kafka.LogEvent
	Flush(timeoutMs int) int
	Close()
}

var _ producer = (*kafka.Producer)(nil)

// KafkaPublisher is a synchronous Kafka producer implementation of QueuePublisher.
//
// Publish blocks until a delivery confirmation is received from Kafka.
// Background goroutines process producer events and, when
// go.logs.channel.enable is set, librdkafka logs.
//
// Close MUST be called at least once to stop background goroutines and flush
// all in-flight messages.
type KafkaPublisher struct {
	producer   producer
	log        *zap.SugaredLogger
	errCh      chan error
	eventsDone chan struct{}
	logsDone   chan struct{}
	closedCh   chan struct{}
	once       sync.Once
	retryDelay time.Duration
}

// NewKafkaPublisher creates a Kafka-backed QueuePublisher.
//
// The provided context controls the lifetime of background goroutines.
// Callers must call Close to flush messages and release resources.
func NewKafkaPublisher(ctx context.Context, conf *kafka.ConfigMap, log *zap.SugaredLogger) (*KafkaPublisher, error) {
	logsEnabled, err := conf.Get("go.logs.channel.enable", false)
	if err != nil {
		return nil, fmt.Errorf("failed to get go.logs.channel.enable: %w", err)
	}
	enabled, _ := logsEnabled.(bool)

	p, err := kafka.NewProducer(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return newKafkaPublisher(ctx, p, enabled, log), nil
}

func newKafkaPublisher(ctx context.Context, p producer, logsEnabled bool, log *zap.SugaredLogger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	q := &KafkaPublisher{
		producer:   p,
		log:        log,
		errCh:      make(chan error, 1),
		eventsDone: make(chan struct{}),
		logsDone:   make(chan struct{}),
		closedCh:   make(chan struct{}),
		retryDelay: queueFullRetryDelay,
	}

	if logsEnabled {
		go q.printKafkaLogs(ctx)
	} else {
		close(q.logsDone)
	}
	go q.monitorProducerEvents(ctx)

	return q
}

// Publish synchronously publishes a message to Kafka.
//
// Publish blocks until either a delivery receipt is received or ctx is
// canceled. A full producer queue is retried after a short delay. Broker,
// size, topic and authentication failures are returned as errors.
//
// If ctx is canceled before the receipt arrives, Publish returns ctx.Err()
// and the message MAY still be delivered. Consumers dedupe by message key.
func (q *KafkaPublisher) Publish(ctx context.Context, msg Msg) error {
	select {
	case <-q.closedCh:
		return ErrClosed
	default:
	}

	// Buffered so a late receipt after ctx cancellation never blocks librdkafka.
	deliveryCh := make(chan kafka.Event, 1)
	kMsg := toKafkaMessage(msg)

	if err := q.produceWithRetry(ctx, kMsg, deliveryCh); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-deliveryCh:
		return handleDeliveryEvent(q.log, kMsg, e)
	}
}

// Close stops background goroutines and flushes pending messages.
//
// If ctx is canceled, Close aborts the flush and closes the producer, which
// may drop queued messages. Calling Close more than once does nothing.
func (q *KafkaPublisher) Close(ctx context.Context) {
	q.once.Do(func() {
		q.log.Info("closing kafka publisher")
		defer close(q.errCh)

		close(q.closedCh)
		<-q.eventsDone
		<-q.logsDone

		for q.producer.Flush(flushTimeoutMs) > 0 {
			q.log.Warn("producer queue not flushed, retrying")
			select {
			case <-ctx.Done():
				q.log.Info("context done, stopping producer flush")
				q.producer.Close()
				return
			default:
			}
		}

		q.producer.Close()
		q.log.Info("kafka publisher closed")
	})
}

// Errors returns a channel that receives at most one fatal error and is
// closed when the publisher shuts down. After an error the publisher is no
// longer usable.
func (q *KafkaPublisher) Errors() <-chan error {
	return q.errCh
}

func toKafkaMessage(msg Msg) *kafka.Message {
	topic := msg.Topic
	kMsg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   msg.Key,
		Value: msg.Value,
	}
	for _, k := range msg.HeaderKeys() {
		kMsg.Headers = append(kMsg.Headers, kafka.Header{Key: k, Value: []byte(msg.Headers[k])})
	}
	return kMsg
}

func (q *KafkaPublisher) printKafkaLogs(ctx context.Context) {
	defer close(q.logsDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closedCh:
			return
		case l, ok := <-q.producer.Logs():
			if !ok {
				return
			}
			q.log.Debugw("librdkafka", "level", l.Level, "tag", l.Tag, "message", l.Message)
		}
	}
}

// produceWithRetry hands msg to the producer, waiting out a full local queue.
func (q *KafkaPublisher) produceWithRetry(ctx context.Context, msg *kafka.Message, deliveryCh chan kafka.Event) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := q.producer.Produce(msg, deliveryCh)
		if err == nil {
			return nil
		}

		var kafkaErr kafka.Error
		if !errors.As(err, &kafkaErr) {
			return fmt.Errorf("failed to produce: %w", err)
		}

		switch kafkaErr.Code() {
		case kafka.ErrQueueFull:
			q.log.Warnw("producer queue full, retrying", "topic", *msg.TopicPartition.Topic, "delay", q.retryDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(q.retryDelay):
			}
		case kafka.ErrBrokerNotAvailable:
			return fmt.Errorf("broker not available: %w", err)
		case kafka.ErrInvalidMsgSize, kafka.ErrMsgSizeTooLarge:
			return fmt.Errorf("invalid message size: %w", err)
		case kafka.ErrInvalidMsg:
			return fmt.Errorf("invalid message: %w", err)
		case kafka.ErrUnknownTopicOrPart, kafka.ErrUnknownTopic:
			return fmt.Errorf("unknown topic or partition: %w", err)
		case kafka.ErrAuthentication:
			return fmt.Errorf("authentication error: %w", err)
		default:
			return fmt.Errorf("failed to produce: %w", err)
		}
	}
}

func (q *KafkaPublisher) monitorProducerEvents(ctx context.Context) {
	defer close(q.eventsDone)
	for {
		select {
		case <-ctx.Done():
			q.log.Info("stopping kafka producer events monitoring, context done")
			return
		case <-q.closedCh:
			return
		case ev, ok := <-q.producer.Events():
			if !ok {
				q.sendErr(errors.New("kafka producer events channel closed"))
				return
			}

			switch e := ev.(type) {
			case *kafka.Message:
				// Receipts go to the per-message channel; one here has no waiter.
				q.log.Warnw("unexpected delivery receipt on events channel", "topic_partition", e.TopicPartition)
			case kafka.Error:
				if e.IsFatal() || e.Code() == kafka.ErrAllBrokersDown {
					q.sendErr(fmt.Errorf("fatal kafka error %#x: %w", e.Code(), e))
					return
				}
				q.log.Warnw("ignoring kafka error", "code", e.Code(), "error", e)
			default:
				q.log.Debugw("ignoring kafka event", "event", e)
			}
		}
	}
}

func (q *KafkaPublisher) sendErr(err error) {
	select {
	case q.errCh <- err:
	default:
		q.log.Warnw("error channel is full", "error", err)
	}
}

func handleDeliveryEvent(log *zap.SugaredLogger, msg *kafka.Message, ev kafka.Event) error {
	switch e := ev.(type) {
	case *kafka.Message:
		if err := e.TopicPartition.Error; err != nil {
			return fmt.Errorf("delivery failed: %w", err)
		}
		if !bytes.Equal(e.Key, msg.Key) {
			return fmt.Errorf("delivery receipt key %q did not match %q", e.Key, msg.Key)
		}
		log.Debugw("delivered",
			"topic", *msg.TopicPartition.Topic,
			"partition", e.TopicPartition.Partition,
			"offset", e.TopicPartition.Offset,
		)
		return nil

	case kafka.Error:
		return fmt.Errorf("kafka error: code=%d fatal=%t: %w", e.Code(), e.IsFatal(), e)

	default:
		return fmt.Errorf("unexpected delivery event: %T", ev)
	}
}
