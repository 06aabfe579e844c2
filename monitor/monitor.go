// Package monitor implements the consumer lag monitor: a periodic sampler
// (sampler.go) and a tick loop (this file) that maintains a sliding window
// of samples and runs the lag rules engine over it.
//
// A rebalance resets the sliding window, since samples collected under a
// stale partition assignment are not comparable to samples collected after
// one; ticks are logged with log.Printf("%+v", ...) for a per-tick summary.
package monitor

import (
	"context"
	"log"
	"time"

	"github.com/mkocikowski/lagconsumer/groups"
	"github.com/mkocikowski/lagconsumer/kerrors"
	"github.com/mkocikowski/lagconsumer/lag"
	"github.com/mkocikowski/lagconsumer/offset"
	"github.com/mkocikowski/lagconsumer/ring"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultWindowSize   = 60
	DefaultMaxFailCount = 3
)

// TickSummary is one tick's log record: the raw samples plus the aggregate
// lag across all sampled partitions.
type TickSummary struct {
	Topic        string
	Samples      []offset.PartitionSample
	AggregateLag int64
}

// SamplerFailure is delivered to OnSamplerFailure on every failed tick, ahead of
// the terminal re-raise on the MaxFailCount'th consecutive failure.
type SamplerFailure struct {
	Count int
	Err   error
}

// Config configures one monitor loop instance for a single (consumer,
// topic, groupId) triple.
type Config struct {
	Topic        string
	GroupId      string
	PollInterval time.Duration
	WindowSize   int
	MaxFailCount int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	if out.WindowSize <= 0 {
		out.WindowSize = DefaultWindowSize
	}
	if out.MaxFailCount <= 0 {
		out.MaxFailCount = DefaultMaxFailCount
	}
	return out
}

// VerdictHandler receives the per-partition verdicts computed from each full
// window. SamplerFailure observations do not reach it; they go to the
// separate OnSamplerFailure callback below.
type VerdictHandler func(map[int32]lag.Verdict)

// Loop runs one monitor instance: sample, append, classify, repeat, until
// its context is cancelled or MaxFailCount consecutive sampler failures are
// reached.
type Loop struct {
	cfg     Config
	sampler *Sampler
	window  *ring.Buffer[[]offset.PartitionSample]

	OnVerdicts       VerdictHandler
	OnSamplerFailure func(SamplerFailure)

	assignments <-chan groups.Assignment
}

// Run constructs and runs a Loop synchronously; it returns when ctx is
// cancelled (nil error) or when sampling has failed cfg.MaxFailCount
// consecutive times (non-nil error). assignments may be nil if the caller
// has no rebalance-reset source (e.g. a fixed, non-group consumer).
func Run(ctx context.Context, cfg Config, sampler *Sampler, assignments <-chan groups.Assignment, onVerdicts VerdictHandler, onSamplerFailure func(SamplerFailure)) error {
	full := cfg.withDefaults()
	l := &Loop{
		cfg:              full,
		sampler:          sampler,
		window:           ring.New[[]offset.PartitionSample](full.WindowSize),
		OnVerdicts:       onVerdicts,
		OnSamplerFailure: onSamplerFailure,
		assignments:      assignments,
	}
	return l.run(ctx)
}

func (l *Loop) run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	consecutiveFailures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case a, ok := <-l.assignments:
			if ok && l.assignmentTouchesTopic(a) {
				log.Printf("monitor: rebalance affecting %q, resetting window", l.cfg.Topic)
				l.window.Reset()
			}
			continue
		case <-ticker.C:
		}
		samples, err := l.sampler.Sample(ctx)
		if err != nil {
			consecutiveFailures++
			log.Printf("monitor: sample failed (%d/%d consecutive): %v", consecutiveFailures, l.cfg.MaxFailCount, err)
			if l.OnSamplerFailure != nil {
				l.OnSamplerFailure(SamplerFailure{Count: consecutiveFailures, Err: err})
			}
			if consecutiveFailures >= l.cfg.MaxFailCount {
				return kerrors.NewSamplerError(consecutiveFailures, err)
			}
			continue
		}
		consecutiveFailures = 0
		l.window.Add(samples)
		l.logTick(samples)
		if full := l.window.SnapshotFullOrEmpty(); full != nil {
			verdicts := lag.Classify(full)
			if l.OnVerdicts != nil {
				l.OnVerdicts(verdicts)
			}
		}
	}
}

func (l *Loop) assignmentTouchesTopic(a groups.Assignment) bool {
	return a.Topic == l.cfg.Topic
}

func (l *Loop) logTick(samples []offset.PartitionSample) {
	var aggregate int64
	for _, s := range samples {
		aggregate += s.Lag
	}
	log.Printf("monitor: %+v", TickSummary{
		Topic:        l.cfg.Topic,
		Samples:      samples,
		AggregateLag: aggregate,
	})
}
