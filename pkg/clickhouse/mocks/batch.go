package mocks

import (
	"errors"

	"github.com/ClickHouse/clickhouse-go/v2/lib/column"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Batch is an in-memory driver.Batch that records appended rows.
type Batch struct {
	Appended [][]any
	// AppendErr is returned by every Append.
	AppendErr error
	// SendErr is returned by Send, which then leaves the batch unsent.
	SendErr error
	Sent    bool
	Aborted bool
}

var _ driver.Batch = (*Batch)(nil)

func (b *Batch) Abort() error {
	b.Aborted = true
	return nil
}

func (b *Batch) Append(v ...any) error {
	if b.AppendErr != nil {
		return b.AppendErr
	}
	if b.Sent {
		return errors.New("batch already sent")
	}
	b.Appended = append(b.Appended, v)
	return nil
}

func (b *Batch) AppendStruct(v any) error { return b.Append(v) }

func (b *Batch) Column(int) driver.BatchColumn { return nil }

func (b *Batch) Flush() error { return nil }

func (b *Batch) Send() error {
	if b.SendErr != nil {
		return b.SendErr
	}
	b.Sent = true
	return nil
}

func (b *Batch) IsSent() bool { return b.Sent }

func (b *Batch) Rows() int { return len(b.Appended) }

func (b *Batch) Columns() []column.Interface { return nil }

func (b *Batch) Close() error { return nil }
