package kafka

import (
	"context"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Handler processes one consumed message. A returned error sends the
// message to the dead letter topic.
type Handler interface {
	Handle(ctx context.Context, msg *kafka.Message) error
}

type HandlerFunc func(ctx context.Context, msg *kafka.Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *kafka.Message) error { return f(ctx, msg) }
