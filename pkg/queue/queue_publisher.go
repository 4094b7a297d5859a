package queue

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
)

// ErrClosed is returned by Publish after the publisher was closed.
var ErrClosed = errors.New("publisher closed")

// Msg represents a queue message.
//
// Topic identifies the destination topic.
// Key is used for partitioning when supported by the backend.
// Value contains the message payload.
// Headers contains additional metadata.
type Msg struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// HeaderKeys returns the header names of m in sorted order.
func (m Msg) HeaderKeys() []string {
	return slices.Sorted(maps.Keys(m.Headers))
}

type QueuePublisher interface {
	// Publish publishes a message to the underlying queue.
	//
	// Implementations may block until delivery is confirmed or fail early
	// depending on the underlying system.
	Publish(ctx context.Context, message Msg) error

	// Close stops the publisher and releases all resources.
	//
	// Close MUST be called exactly once. Implementations may block while
	// flushing in-flight messages. Canceling the context may result in
	// message loss depending on the implementation.
	Close(ctx context.Context)
}

var (
	_ QueuePublisher = (*MemoryPublisher)(nil)
	_ QueuePublisher = (*KafkaPublisher)(nil)
)

// MemoryPublisher keeps published messages in memory. It backs dry runs and
// tests. Safe for concurrent use.
type MemoryPublisher struct {
	mu     sync.Mutex
	msgs   []Msg
	closed bool
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, msg Msg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	msg.Key = slices.Clone(msg.Key)
	msg.Value = slices.Clone(msg.Value)
	msg.Headers = maps.Clone(msg.Headers)
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *MemoryPublisher) Close(context.Context) {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Messages returns a copy of the published messages in publish order.
func (p *MemoryPublisher) Messages() []Msg {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.msgs)
}
