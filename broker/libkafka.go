package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mkocikowski/lagconsumer/offset"
	"github.com/mkocikowski/libkafka/batch"
	"github.com/mkocikowski/libkafka/client"
	"github.com/mkocikowski/libkafka/client/fetcher"
	"github.com/mkocikowski/libkafka/record"
)

// LibkafkaClient implements Client on top of github.com/mkocikowski/libkafka.
// It keeps one PartitionFetcher per assigned partition and one GroupClient
// for committed-offset reads/writes. Only the dispatcher's poll/commit
// goroutine may call Poll/Commit; the sampler's queries are safe to call
// from any goroutine because they open independent connections.
type LibkafkaClient struct {
	Bootstrap string
	Topic     string
	GroupId   string
	// Decompressors must cover every compression codec records were
	// produced with; keyed by the wire compression type constant (see
	// package compression).
	Decompressors map[int16]batch.Decompressor
	//
	mu       sync.Mutex
	fetchers map[int32]*fetcher.PartitionFetcher
	group    *client.GroupClient
	assigned []int32
}

func (c *LibkafkaClient) groupClient() *client.GroupClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.group == nil {
		c.group = &client.GroupClient{Bootstrap: c.Bootstrap, GroupId: c.GroupId}
	}
	return c.group
}

// Assign sets the static list of partitions this client polls and commits
// for, starting from the given offsets. Not part of the Client interface: it
// is the dispatcher's construction-time wiring step.
func (c *LibkafkaClient) Assign(partitionOffsets map[int32]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchers = make(map[int32]*fetcher.PartitionFetcher, len(partitionOffsets))
	c.assigned = c.assigned[:0]
	for p, offs := range partitionOffsets {
		f := &fetcher.PartitionFetcher{
			PartitionClient: client.PartitionClient{
				Bootstrap: c.Bootstrap,
				Topic:     c.Topic,
				Partition: p,
			},
		}
		f.SetOffset(offs)
		c.fetchers[p] = f
		c.assigned = append(c.assigned, p)
	}
}

func (c *LibkafkaClient) Poll(ctx context.Context, timeout time.Duration) ([]RawMessage, error) {
	c.mu.Lock()
	fetchers := make(map[int32]*fetcher.PartitionFetcher, len(c.fetchers))
	for p, f := range c.fetchers {
		fetchers[p] = f
	}
	c.mu.Unlock()
	var out []RawMessage
	for p, f := range fetchers {
		resp, err := f.Fetch()
		if err != nil {
			return nil, fmt.Errorf("poll partition %d: %w", p, err)
		}
		nextOffset := f.Offset()
		for _, raw := range resp.RecordSet.Batches() {
			msgs, last, err := c.decodeBatch(p, raw)
			if err != nil {
				// A single bad batch is skipped, not fatal: the fetcher's
				// offset is set one past the last batch that decoded
				// cleanly, so a bad batch after it is fetched again on the
				// next poll and a bad batch before it is passed over.
				continue
			}
			out = append(out, msgs...)
			nextOffset = last + 1
		}
		f.SetOffset(nextOffset)
	}
	return out, nil
}

func (c *LibkafkaClient) decodeBatch(partition int32, raw []byte) ([]RawMessage, int64, error) {
	b, err := batch.Unmarshal(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("unmarshal batch: %w", err)
	}
	d := c.Decompressors[b.CompressionType()]
	if d == nil {
		return nil, 0, fmt.Errorf("no decompressor for compression type %d", b.CompressionType())
	}
	marshaled, err := b.Records(d)
	if err != nil {
		return nil, 0, fmt.Errorf("decompress records: %w", err)
	}
	baseOffset := b.BaseOffset
	msgs := make([]RawMessage, 0, len(marshaled))
	for i, m := range marshaled {
		r, err := record.Unmarshal(m)
		if err != nil {
			return nil, 0, fmt.Errorf("unmarshal record %d: %w", i, err)
		}
		msgs = append(msgs, RawMessage{
			Topic:     c.Topic,
			Partition: partition,
			Offset:    baseOffset + int64(i),
			Key:       r.Key,
			Value:     r.Value,
			Timestamp: time.UnixMilli(b.MaxTimestamp),
		})
	}
	return msgs, b.LastOffset(), nil
}

func (c *LibkafkaClient) Commit(ctx context.Context, offsets map[TopicPartition]int64) error {
	g := c.groupClient()
	for tp, o := range offsets {
		if err := g.CommitOffset(tp.Topic, tp.Partition, o, -1); err != nil {
			return fmt.Errorf("commit %s/%d: %w", tp.Topic, tp.Partition, err)
		}
	}
	return nil
}

func (c *LibkafkaClient) Assignment(ctx context.Context) ([]TopicPartition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TopicPartition, len(c.assigned))
	for i, p := range c.assigned {
		out[i] = TopicPartition{Topic: c.Topic, Partition: p}
	}
	return out, nil
}

// Assignments has no independent rebalance signal at this layer: static
// partition assignment is set once via Assign. Group-driven reassignment is
// handled by package groups, whose Assignment events are consumed directly
// by the monitor and by whatever supervises the dispatcher.
func (c *LibkafkaClient) Assignments(ctx context.Context) <-chan []TopicPartition {
	ch := make(chan []TopicPartition)
	close(ch)
	return ch
}

func (c *LibkafkaClient) Committed(ctx context.Context, partitions []TopicPartition, timeout time.Duration) (map[TopicPartition]offset.Value, error) {
	g := c.groupClient()
	out := make(map[TopicPartition]offset.Value, len(partitions))
	for _, tp := range partitions {
		raw, err := g.FetchOffset(tp.Topic, tp.Partition)
		if err != nil {
			return nil, fmt.Errorf("committed offset %s/%d: %w", tp.Topic, tp.Partition, err)
		}
		out[tp] = offset.Of(raw)
	}
	return out, nil
}

// Watermarks issues two ListOffsets lookups against the partition leader:
// one for the earliest retained offset, one for the high watermark.
func (c *LibkafkaClient) Watermarks(ctx context.Context, tp TopicPartition, timeout time.Duration) (low, high offset.Value, err error) {
	pc := &client.PartitionClient{Bootstrap: c.Bootstrap, Topic: tp.Topic, Partition: tp.Partition}
	earliest, err := pc.GetOffset(client.EarliestOffset)
	if err != nil {
		return offset.Missing, offset.Missing, fmt.Errorf("earliest offset %s/%d: %w", tp.Topic, tp.Partition, err)
	}
	latest, err := pc.GetOffset(client.LatestOffset)
	if err != nil {
		return offset.Missing, offset.Missing, fmt.Errorf("latest offset %s/%d: %w", tp.Topic, tp.Partition, err)
	}
	return offset.Of(earliest), offset.Of(latest), nil
}

func (c *LibkafkaClient) Partitions(ctx context.Context, topic string, timeout time.Duration) ([]int32, error) {
	leaders, err := client.GetPartitionLeaders(c.Bootstrap, topic)
	if err != nil {
		return nil, fmt.Errorf("metadata for topic %s: %w", topic, err)
	}
	out := make([]int32, 0, len(leaders))
	for p := range leaders {
		out = append(out, p)
	}
	return out, nil
}
