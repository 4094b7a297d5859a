package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeProducer acknowledges every message unless produceErrs holds a queued
// error for the next call.
type fakeProducer struct {
	mu          sync.Mutex
	produced    []*kafka.Message
	produceErrs []error
	deliveryErr error
	noReceipt   bool
	events      chan kafka.Event
	logs        chan kafka.LogEvent
	pending     int
	closed      bool
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{
		events: make(chan kafka.Event, 4),
		logs:   make(chan kafka.LogEvent, 4),
	}
}

func (f *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.produceErrs) > 0 {
		err := f.produceErrs[0]
		f.produceErrs = f.produceErrs[1:]
		return err
	}
	f.produced = append(f.produced, msg)
	if f.noReceipt {
		return nil
	}
	receipt := *msg
	receipt.TopicPartition.Partition = 0
	receipt.TopicPartition.Offset = kafka.Offset(len(f.produced) - 1)
	receipt.TopicPartition.Error = f.deliveryErr
	deliveryChan <- &receipt
	return nil
}

func (f *fakeProducer) Events() chan kafka.Event { return f.events }
func (f *fakeProducer) Logs() chan kafka.LogEvent { return f.logs }

func (f *fakeProducer) Flush(int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending > 0 {
		f.pending--
		return f.pending + 1
	}
	return 0
}

func (f *fakeProducer) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func newTestPublisher(t *testing.T, p *fakeProducer) *KafkaPublisher {
	t.Helper()
	q := newKafkaPublisher(t.Context(), p, true, zaptest.NewLogger(t).Sugar())
	q.retryDelay = time.Millisecond
	return q
}

func TestKafkaPublisher_Publish(t *testing.T) {
	t.Parallel()

	p := newFakeProducer()
	q := newTestPublisher(t, p)
	defer q.Close(t.Context())

	err := q.Publish(t.Context(), Msg{
		Topic:   "multiburst-jobs",
		Key:     []byte("087_000000n00_185678n02_000000n00"),
		Value:   []byte(`{"id":"087_000000n00_185678n02_000000n00"}`),
		Headers: map[string]string{"run_id": "r1", "aoi": "kilauea"},
	})
	require.NoError(t, err)

	require.Len(t, p.produced, 1)
	m := p.produced[0]
	assert.Equal(t, "multiburst-jobs", *m.TopicPartition.Topic)
	assert.Equal(t, kafka.PartitionAny, m.TopicPartition.Partition)
	assert.Equal(t, []kafka.Header{
		{Key: "aoi", Value: []byte("kilauea")},
		{Key: "run_id", Value: []byte("r1")},
	}, m.Headers)
}

func TestKafkaPublisher_Publish_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		errs    []error
		wantMsg string
	}{
		{
			name:    "broker not available",
			errs:    []error{kafka.NewError(kafka.ErrBrokerNotAvailable, "down", false)},
			wantMsg: "broker not available",
		},
		{
			name:    "message too large",
			errs:    []error{kafka.NewError(kafka.ErrMsgSizeTooLarge, "too large", false)},
			wantMsg: "invalid message size",
		},
		{
			name:    "unknown topic",
			errs:    []error{kafka.NewError(kafka.ErrUnknownTopicOrPart, "nope", false)},
			wantMsg: "unknown topic or partition",
		},
		{
			name:    "not a kafka error",
			errs:    []error{errors.New("boom")},
			wantMsg: "failed to produce: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newFakeProducer()
			p.produceErrs = tt.errs
			q := newTestPublisher(t, p)
			defer q.Close(t.Context())

			err := q.Publish(t.Context(), Msg{Topic: "jobs", Key: []byte("k")})
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantMsg)
			assert.Empty(t, p.produced)
		})
	}
}

func TestKafkaPublisher_Publish_QueueFullRetried(t *testing.T) {
	t.Parallel()

	p := newFakeProducer()
	full := kafka.NewError(kafka.ErrQueueFull, "queue full", false)
	p.produceErrs = []error{full, full}
	q := newTestPublisher(t, p)
	defer q.Close(t.Context())

	require.NoError(t, q.Publish(t.Context(), Msg{Topic: "jobs", Key: []byte("k")}))
	assert.Len(t, p.produced, 1)
}

func TestKafkaPublisher_Publish_DeliveryFailed(t *testing.T) {
	t.Parallel()

	p := newFakeProducer()
	p.deliveryErr = kafka.NewError(kafka.ErrMsgTimedOut, "timed out", false)
	q := newTestPublisher(t, p)
	defer q.Close(t.Context())

	err := q.Publish(t.Context(), Msg{Topic: "jobs", Key: []byte("k")})
	require.Error(t, err)
	assert.ErrorContains(t, err, "delivery failed")
}

func TestKafkaPublisher_Publish_ContextCanceled(t *testing.T) {
	t.Parallel()

	p := newFakeProducer()
	p.noReceipt = true
	q := newTestPublisher(t, p)
	defer q.Close(t.Context())

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := q.Publish(ctx, Msg{Topic: "jobs", Key: []byte("k")})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKafkaPublisher_FatalErrorSurfaces(t *testing.T) {
	t.Parallel()

	p := newFakeProducer()
	q := newTestPublisher(t, p)
	p.events <- kafka.NewError(kafka.ErrAllBrokersDown, "all brokers down", false)

	select {
	case err := <-q.Errors():
		require.Error(t, err)
		assert.ErrorContains(t, err, "all brokers down")
	case <-time.After(5 * time.Second):
		t.Fatal("fatal error not surfaced")
	}
	q.Close(t.Context())
}

func TestKafkaPublisher_Close(t *testing.T) {
	t.Parallel()

	p := newFakeProducer()
	p.pending = 2
	q := newTestPublisher(t, p)

	q.Close(t.Context())
	q.Close(t.Context())
	assert.True(t, p.closed)
	assert.Equal(t, 0, p.pending)

	_, open := <-q.Errors()
	assert.False(t, open)
	require.ErrorIs(t, q.Publish(t.Context(), Msg{Topic: "jobs"}), ErrClosed)
}

func TestHandleDeliveryEvent(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t).Sugar()
	topic := "jobs"
	msg := &kafka.Message{TopicPartition: kafka.TopicPartition{Topic: &topic}, Key: []byte("a")}

	tests := []struct {
		name    string
		event   kafka.Event
		wantErr string
	}{
		{
			name:  "receipt",
			event: &kafka.Message{TopicPartition: kafka.TopicPartition{Topic: &topic, Offset: 7}, Key: []byte("a")},
		},
		{
			name:    "receipt for another key",
			event:   &kafka.Message{TopicPartition: kafka.TopicPartition{Topic: &topic}, Key: []byte("b")},
			wantErr: "did not match",
		},
		{
			name:    "kafka error",
			event:   kafka.NewError(kafka.ErrTransport, "transport", false),
			wantErr: "kafka error",
		},
		{
			name:    "other event",
			event:   kafka.OffsetsCommitted{},
			wantErr: "unexpected delivery event",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := handleDeliveryEvent(log, msg, tt.event)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
