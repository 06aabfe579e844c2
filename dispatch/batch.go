package dispatch

import (
	"time"

	"github.com/mkocikowski/lagconsumer/broker"
)

// Message is one deserialized-at-the-transport-level record: JSON (or
// whatever else) decoding of Value is the handler's job, per the module's
// scope (spec section 1: JSON deserialization of user payloads is an
// external collaborator).
type Message struct {
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Batch is a non-empty, partition-homogeneous, strictly offset-increasing
// group of messages, bounded by Config.MaxBatchSize.
type Batch struct {
	Topic     string
	Partition int32
	Messages  []Message
}

func (b Batch) maxOffset() int64 {
	max := b.Messages[0].Offset
	for _, m := range b.Messages[1:] {
		if m.Offset > max {
			max = m.Offset
		}
	}
	return max
}

// Len is the number of messages in the batch.
func (b Batch) Len() int { return len(b.Messages) }

func toMessages(raw []broker.RawMessage) []Message {
	out := make([]Message, len(raw))
	for i, m := range raw {
		out[i] = Message{
			Partition: m.Partition,
			Offset:    m.Offset,
			Key:       m.Key,
			Value:     m.Value,
			Timestamp: m.Timestamp,
		}
	}
	return out
}
