package monitor

import (
	"context"
	"time"

	"github.com/mkocikowski/lagconsumer/broker"
	"github.com/mkocikowski/lagconsumer/kerrors"
	"github.com/mkocikowski/lagconsumer/offset"
)

const (
	committedOffsetTimeout = 20 * time.Second
	watermarkTimeout       = 40 * time.Second
)

// Sampler queries a broker.Client for one topic's per-partition progress.
// It never joins the consumer group -- it only inspects state a consumer
// handle (or an admin client) already has.
type Sampler struct {
	Client broker.Client
	Topic  string
}

// Sample produces one PartitionSample per assigned partition of s.Topic. If
// the current assignment carries no partitions for the topic (a fresh
// consumer that hasn't been assigned yet, or one polled between rebalances),
// it falls back to broker metadata for the topic's full partition list, per
// the sampler's fallback rule.
func (s *Sampler) Sample(ctx context.Context) ([]offset.PartitionSample, error) {
	partitions, err := s.partitions(ctx)
	if err != nil {
		return nil, kerrors.Wrap(err)
	}
	if len(partitions) == 0 {
		return nil, nil
	}
	committed, err := s.Client.Committed(ctx, partitions, committedOffsetTimeout)
	if err != nil {
		return nil, kerrors.Wrap(err)
	}
	samples := make([]offset.PartitionSample, 0, len(partitions))
	for _, tp := range partitions {
		low, high, err := s.Client.Watermarks(ctx, tp, watermarkTimeout)
		if err != nil {
			// A single partition's watermark query failing does not
			// invalidate the whole tick; skip it (open question 2,
			// resolved as "skip the partition for that window").
			continue
		}
		consumer, ok := committed[tp]
		if !ok {
			consumer = offset.Missing
		}
		samples = append(samples, offset.NewPartitionSample(tp.Partition, consumer, low, high))
	}
	return samples, nil
}

func (s *Sampler) partitions(ctx context.Context) ([]broker.TopicPartition, error) {
	assigned, err := s.Client.Assignment(ctx)
	if err != nil {
		return nil, err
	}
	var tps []broker.TopicPartition
	for _, tp := range assigned {
		if tp.Topic == s.Topic {
			tps = append(tps, tp)
		}
	}
	if len(tps) > 0 {
		return tps, nil
	}
	ids, err := s.Client.Partitions(ctx, s.Topic, watermarkTimeout)
	if err != nil {
		return nil, err
	}
	tps = make([]broker.TopicPartition, len(ids))
	for i, p := range ids {
		tps[i] = broker.TopicPartition{Topic: s.Topic, Partition: p}
	}
	return tps, nil
}
