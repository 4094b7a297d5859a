package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ASFHyP3/VolcSARvatory/pkg/metrics"
	"github.com/ASFHyP3/VolcSARvatory/pkg/queue"
)

const pollTimeoutMs = 100

// pollingConsumer is the part of *kafka.Consumer the Consumer uses.
type pollingConsumer interface {
	committer
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error
	Poll(timeoutMs int) kafka.Event
	Logs() chan kafka.LogEvent
	Close() error
}

var _ pollingConsumer = (*kafka.Consumer)(nil)

// Consumer polls one topic and hands each message to a Handler, at most
// MaxConcurrency at a time. Messages the handler rejects go to the dead
// letter topic. Offsets are committed only once every earlier message of the
// partition was handled, so delivery is at least once.
type Consumer struct {
	consumer pollingConsumer
	handler  Handler
	dlq      queue.QueuePublisher
	offsets  *OffsetManager
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
	cfg      ConsumerConfig

	sem        *semaphore.Weighted
	inflight   sync.WaitGroup
	mu         sync.RWMutex
	partitions map[int32]partitionCtx
	errCh      chan error
}

// partitionCtx is canceled when its partition is revoked, which stops the
// handlers still working on it.
type partitionCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewConsumer creates a consumer for cfg.Topic. dlq receives rejected
// messages and may be nil when cfg.DLQTopic is empty, in which case a
// rejected message stops the consumer. m may be nil.
func NewConsumer(
	ctx context.Context,
	cfg ConsumerConfig,
	handler Handler,
	dlq queue.QueuePublisher,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consumer config: %w", err)
	}
	kc, err := kafka.NewConsumer(cfg.ConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newConsumer(ctx, kc, cfg, handler, dlq, log, m), nil
}

func newConsumer(
	ctx context.Context,
	kc pollingConsumer,
	cfg ConsumerConfig,
	handler Handler,
	dlq queue.QueuePublisher,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
) *Consumer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Consumer{
		consumer:   kc,
		handler:    handler,
		dlq:        dlq,
		offsets:    NewOffsetManager(ctx, kc, cfg.CommitInterval, log),
		log:        log,
		metrics:    m,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(cfg.MaxConcurrency),
		partitions: make(map[int32]partitionCtx),
		errCh:      make(chan error, 1),
	}
}

// Start consumes until ctx is done, a handler failure cannot be dead
// lettered, or Kafka reports a fatal error. It then waits for in-flight
// handlers, commits what they finished and closes the consumer.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logsDone := make(chan struct{})
	if c.cfg.EnableLogs {
		go c.printKafkaLogs(ctx, logsDone)
	} else {
		close(logsDone)
	}

	if err := c.consumer.SubscribeTopics([]string{c.cfg.Topic}, c.rebalance(ctx)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.cfg.Topic, err)
	}
	c.log.Infow("consumer started", "topic", c.cfg.Topic, "group", c.cfg.GroupID, "dlq", c.cfg.DLQTopic)

	runErr := c.poll(ctx)

	cancel()
	c.inflight.Wait()
	<-logsDone
	if err := c.offsets.Commit(); err != nil {
		c.log.Warnw("failed to commit offsets on shutdown", "error", err)
	}
	if err := c.consumer.Close(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("failed to close consumer: %w", err))
	}
	c.log.Info("consumer shutdown complete")
	return runErr
}

func (c *Consumer) poll(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.log.Info("context done, shutting down consumer")
			return nil
		case err := <-c.errCh:
			c.log.Errorw("shutting down consumer", "error", err)
			return err
		default:
		}

		switch ev := c.consumer.Poll(pollTimeoutMs).(type) {
		case nil:
		case *kafka.Message:
			c.mu.RLock()
			pc, ok := c.partitions[ev.TopicPartition.Partition]
			c.mu.RUnlock()
			if !ok {
				c.log.Errorw("message for unassigned partition", "partition", ev.TopicPartition.Partition)
				continue
			}
			// A canceled partition context loses the message; it is not
			// committed and comes back after the rebalance.
			c.dispatch(pc.ctx, ev)
		case kafka.Error:
			if ev.IsFatal() {
				return fmt.Errorf("fatal kafka error: %w", ev)
			}
			c.log.Warnw("kafka error (non-fatal)", "error", ev)
		default:
			c.log.Debugw("ignoring kafka event", "event", ev)
		}
	}
}

// dispatch waits for a free slot and handles msg in a goroutine.
func (c *Consumer) dispatch(ctx context.Context, msg *kafka.Message) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return
	}
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer c.sem.Release(1)

		if err := c.handler.Handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			if err := c.deadLetter(ctx, msg, err); err != nil {
				c.sendErr(err)
				return
			}
		}
		c.offsets.MarkHandled(ctx, msg)
	}()
}

// deadLetter publishes msg unchanged to the dead letter topic, with headers
// naming its origin and the handler error.
func (c *Consumer) deadLetter(ctx context.Context, msg *kafka.Message, cause error) error {
	if c.dlq == nil || c.cfg.DLQTopic == "" {
		return fmt.Errorf("message at offset %d rejected without dead letter topic: %w", msg.TopicPartition.Offset, cause)
	}

	headers := make(map[string]string, len(msg.Headers)+4)
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if msg.TopicPartition.Topic != nil {
		headers["dlq_source_topic"] = *msg.TopicPartition.Topic
	}
	headers["dlq_source_partition"] = strconv.Itoa(int(msg.TopicPartition.Partition))
	headers["dlq_source_offset"] = strconv.FormatInt(int64(msg.TopicPartition.Offset), 10)
	headers["dlq_error"] = cause.Error()

	err := c.dlq.Publish(ctx, queue.Msg{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to dead letter topic: %w", err)
	}
	c.metrics.IncDLQPublished()
	c.log.Warnw("message sent to dead letter topic",
		"partition", msg.TopicPartition.Partition,
		"offset", msg.TopicPartition.Offset,
		"dlqTopic", c.cfg.DLQTopic,
		"error", cause,
	)
	return nil
}

// rebalance keeps one context per assigned partition and commits finished
// offsets before a partition is given up.
func (c *Consumer) rebalance(ctx context.Context) kafka.RebalanceCb {
	return func(kc *kafka.Consumer, event kafka.Event) error {
		switch ev := event.(type) {
		case kafka.AssignedPartitions:
			c.mu.Lock()
			for _, tp := range ev.Partitions {
				pctx, cancel := context.WithCancel(ctx)
				c.partitions[tp.Partition] = partitionCtx{ctx: pctx, cancel: cancel}
			}
			c.mu.Unlock()
		case kafka.RevokedPartitions:
			if kc != nil && kc.AssignmentLost() {
				c.log.Warn("assignment lost involuntarily, offsets of revoked partitions are not committed")
			} else if err := c.offsets.Commit(); err != nil {
				c.log.Warnw("failed to commit offsets before revocation", "error", err)
			}
			c.mu.Lock()
			for _, tp := range ev.Partitions {
				if pc, ok := c.partitions[tp.Partition]; ok {
					pc.cancel()
					delete(c.partitions, tp.Partition)
				}
			}
			c.mu.Unlock()
		}
		return c.offsets.Rebalance(event)
	}
}

func (c *Consumer) sendErr(err error) {
	select {
	case c.errCh <- err:
	default:
		c.log.Errorw("dropping consumer error", "error", err)
	}
}

func (c *Consumer) printKafkaLogs(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	logs := c.consumer.Logs()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-logs:
			if !ok {
				return
			}
			c.log.Debugw("kafka consumer log", "level", ev.Level, "tag", ev.Tag, "message", ev.Message)
		}
	}
}
