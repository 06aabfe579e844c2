// Package broker defines the inbound collaborator surface the dispatcher and
// the lag monitor consume: poll, commit, assignment, committed-offset,
// watermark, and metadata primitives. These interfaces exist so that
// dispatch and monitor unit tests can substitute small in-memory fakes
// instead of talking to a real broker -- production code only ever gets one
// concrete implementation, LibkafkaClient, wired to
// github.com/mkocikowski/libkafka.
package broker

import (
	"context"
	"time"

	"github.com/mkocikowski/lagconsumer/offset"
)

// TopicPartition identifies one partition of one topic.
type TopicPartition struct {
	Topic     string
	Partition int32
}

// RawMessage is one record as delivered off the wire, before user
// deserialization.
type RawMessage struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Poller pulls raw messages from the broker. The underlying library
// typically returns messages already grouped by partition batch; the
// dispatcher does not rely on that and re-groups defensively.
type Poller interface {
	Poll(ctx context.Context, timeout time.Duration) ([]RawMessage, error)
}

// Committer commits per-partition offsets. offsets maps a partition to the
// next offset to be read on restart (one past the last successfully handled
// message), matching Kafka's committed-offset semantics.
type Committer interface {
	Commit(ctx context.Context, offsets map[TopicPartition]int64) error
}

// AssignmentSource reports the consumer's current partition assignment, and
// exposes an observable of assignment-change events (the Go analogue of the
// source's onPartitionsAssigned callback).
type AssignmentSource interface {
	Assignment(ctx context.Context) ([]TopicPartition, error)
	Assignments(ctx context.Context) <-chan []TopicPartition
}

// CommittedOffsetSource queries durable committed offsets for a set of
// partitions, bounded by timeout.
type CommittedOffsetSource interface {
	Committed(ctx context.Context, partitions []TopicPartition, timeout time.Duration) (map[TopicPartition]offset.Value, error)
}

// WatermarkSource queries the earliest (low) and high-watermark offsets for
// one partition, bounded by timeout.
type WatermarkSource interface {
	Watermarks(ctx context.Context, tp TopicPartition, timeout time.Duration) (low, high offset.Value, err error)
}

// MetadataSource queries broker metadata for a topic's partition list, used
// as a fallback when the consumer has no live assignment to inspect.
type MetadataSource interface {
	Partitions(ctx context.Context, topic string, timeout time.Duration) ([]int32, error)
}

// Client is the full collaborator surface: everything the dispatcher and the
// monitor need from one running consumer/admin handle.
type Client interface {
	Poller
	Committer
	AssignmentSource
	CommittedOffsetSource
	WatermarkSource
	MetadataSource
}
