package kafka

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const (
	DefaultCommitInterval = 5 * time.Second

	// pendingWarnThreshold is the pending offset count per partition above
	// which every commit pass logs a warning.
	pendingWarnThreshold = 10000

	brokerTimeoutMs = 5000
)

// committer is the part of *kafka.Consumer the OffsetManager talks to.
type committer interface {
	CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error)
	Committed(partitions []kafka.TopicPartition, timeoutMs int) ([]kafka.TopicPartition, error)
	QueryWatermarkOffsets(topic string, partition int32, timeoutMs int) (low, high int64, err error)
}

var _ committer = (*kafka.Consumer)(nil)

// partitionOffsets tracks one assigned partition. pending is sorted by offset.
type partitionOffsets struct {
	pending   []kafka.TopicPartition
	committed kafka.Offset
}

// ready drops pending offsets already covered by the last commit and returns
// the index of the last offset of the contiguous run that follows it.
func (p *partitionOffsets) ready() (int, bool) {
	stale := 0
	for stale < len(p.pending) && p.pending[stale].Offset <= p.committed {
		stale++
	}
	p.pending = p.pending[stale:]
	if len(p.pending) == 0 || p.pending[0].Offset != p.committed+1 {
		return 0, false
	}
	end := 0
	for end+1 < len(p.pending) && p.pending[end+1].Offset == p.pending[end].Offset+1 {
		end++
	}
	return end, true
}

// OffsetManager commits consumed offsets in order so that a message is only
// marked consumed once every earlier message of its partition was handled.
// Handlers finish out of order; each calls Insert when done and a background
// loop commits the highest contiguous offset per partition every interval.
//
// One OffsetManager serves a single topic subscription.
type OffsetManager struct {
	committer  committer
	partitions map[int32]*partitionOffsets
	mu         sync.Mutex
	log        *zap.SugaredLogger
}

// NewOffsetManager starts the commit loop, which runs until ctx is done.
func NewOffsetManager(ctx context.Context, c committer, interval time.Duration, log *zap.SugaredLogger) *OffsetManager {
	if interval <= 0 {
		interval = DefaultCommitInterval
	}
	om := &OffsetManager{
		committer:  c,
		partitions: make(map[int32]*partitionOffsets),
		log:        log,
	}
	go om.loop(ctx, interval)
	return om
}

func (om *OffsetManager) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := om.Commit(); err != nil {
				om.log.Errorw("failed to commit offsets", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Commit commits the highest contiguous handled offset of every partition.
func (om *OffsetManager) Commit() error {
	om.mu.Lock()
	defer om.mu.Unlock()

	for partition, p := range om.partitions {
		end, ok := p.ready()
		if ok {
			offset := p.pending[end]
			if _, err := om.committer.CommitOffsets([]kafka.TopicPartition{offset}); err != nil {
				return fmt.Errorf("partition %d: %w", partition, err)
			}
			om.log.Debugw("committed offset", "partition", partition, "offset", offset.Offset)
			p.committed = offset.Offset
			p.pending = p.pending[end+1:]
		}
		if len(p.pending) > pendingWarnThreshold {
			om.log.Warnw("many offsets pending commit", "partition", partition, "pending", len(p.pending))
		}
	}
	return nil
}

// Insert records that the message before offset.Offset was handled. Kafka
// commits name the next offset to read, so callers pass the message offset
// plus one. Offsets of partitions not assigned are ignored.
func (om *OffsetManager) Insert(ctx context.Context, offset kafka.TopicPartition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	om.mu.Lock()
	defer om.mu.Unlock()

	p, ok := om.partitions[offset.Partition]
	if !ok {
		om.log.Warnw("offset for unassigned partition ignored", "partition", offset.Partition, "offset", offset.Offset)
		return nil
	}
	// Without a usable committed offset, the first handled message starts
	// the run. It does not have to be the first message fetched.
	if p.committed < 0 {
		p.committed = offset.Offset - 1
		om.log.Infow("partition commit position initialized", "partition", offset.Partition, "offset", p.committed)
	}

	i, found := slices.BinarySearchFunc(p.pending, offset.Offset, func(tp kafka.TopicPartition, o kafka.Offset) int {
		return cmp.Compare(tp.Offset, o)
	})
	if !found {
		p.pending = slices.Insert(p.pending, i, offset)
	}
	return nil
}

// MarkHandled inserts the commit offset of msg, retrying until it is stored
// or ctx is done.
func (om *OffsetManager) MarkHandled(ctx context.Context, msg *kafka.Message) {
	offset := kafka.TopicPartition{
		Topic:     msg.TopicPartition.Topic,
		Partition: msg.TopicPartition.Partition,
		Offset:    msg.TopicPartition.Offset + 1,
	}
	for {
		err := om.Insert(ctx, offset)
		if err == nil || ctx.Err() != nil {
			return
		}
		om.log.Errorw("failed to insert offset, retrying", "partition", offset.Partition, "error", err)
		time.Sleep(200 * time.Millisecond)
	}
}

// Rebalance resets the partition state on assignment and revocation. It must
// run from the consumer's rebalance callback.
func (om *OffsetManager) Rebalance(event kafka.Event) error {
	om.mu.Lock()
	defer om.mu.Unlock()

	switch ev := event.(type) {
	case kafka.AssignedPartitions:
		// Assignment events carry kafka.OffsetInvalid when joining an idle
		// group, so the committed offsets are read from the broker.
		committed, err := om.committer.Committed(ev.Partitions, brokerTimeoutMs)
		if err != nil {
			return fmt.Errorf("failed to get committed offsets: %w", err)
		}
		assigned := make([]string, len(committed))
		for i, tp := range committed {
			p := &partitionOffsets{committed: tp.Offset}
			if tp.Topic != nil {
				low, _, err := om.committer.QueryWatermarkOffsets(*tp.Topic, tp.Partition, brokerTimeoutMs)
				if err != nil {
					return fmt.Errorf("failed to query watermarks of partition %d: %w", tp.Partition, err)
				}
				// A stored offset below the low watermark was removed by
				// retention; fetching restarts from auto.offset.reset.
				if tp.Offset < kafka.Offset(low) {
					p.committed = kafka.OffsetInvalid
				}
			}
			if p.committed < 0 {
				p.committed = kafka.OffsetInvalid
			}
			om.partitions[tp.Partition] = p
			assigned[i] = fmt.Sprintf("%d@%d", tp.Partition, p.committed)
		}
		om.log.Infow("partitions assigned", "partitions", strings.Join(assigned, ","))
	case kafka.RevokedPartitions:
		revoked := make([]string, len(ev.Partitions))
		for i, tp := range ev.Partitions {
			revoked[i] = fmt.Sprint(tp.Partition)
			delete(om.partitions, tp.Partition)
		}
		om.log.Infow("partitions revoked", "partitions", strings.Join(revoked, ","))
	default:
		om.log.Warnw("unexpected rebalance event", "event", event)
	}
	return nil
}
