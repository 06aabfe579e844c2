package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mkocikowski/lagconsumer/broker"
	"github.com/mkocikowski/lagconsumer/groups"
	"github.com/mkocikowski/lagconsumer/lag"
	"github.com/mkocikowski/lagconsumer/offset"
)

type fakeClient struct {
	assignment []broker.TopicPartition
	committed  map[broker.TopicPartition]offset.Value
	watermarks map[broker.TopicPartition][2]offset.Value
	sampleErr  error
}

func (f *fakeClient) Poll(ctx context.Context, timeout time.Duration) ([]broker.RawMessage, error) {
	return nil, nil
}
func (f *fakeClient) Commit(ctx context.Context, offsets map[broker.TopicPartition]int64) error {
	return nil
}
func (f *fakeClient) Assignment(ctx context.Context) ([]broker.TopicPartition, error) {
	return f.assignment, nil
}
func (f *fakeClient) Assignments(ctx context.Context) <-chan []broker.TopicPartition {
	ch := make(chan []broker.TopicPartition)
	close(ch)
	return ch
}
func (f *fakeClient) Committed(ctx context.Context, partitions []broker.TopicPartition, timeout time.Duration) (map[broker.TopicPartition]offset.Value, error) {
	if f.sampleErr != nil {
		return nil, f.sampleErr
	}
	return f.committed, nil
}
func (f *fakeClient) Watermarks(ctx context.Context, tp broker.TopicPartition, timeout time.Duration) (low, high offset.Value, err error) {
	w := f.watermarks[tp]
	return w[0], w[1], nil
}
func (f *fakeClient) Partitions(ctx context.Context, topic string, timeout time.Duration) ([]int32, error) {
	return nil, nil
}

func tp(p int32) broker.TopicPartition { return broker.TopicPartition{Topic: "orders", Partition: p} }

func TestUnitSamplerJoinsCommittedAndWatermarks(t *testing.T) {
	c := &fakeClient{
		assignment: []broker.TopicPartition{tp(0), tp(1)},
		committed: map[broker.TopicPartition]offset.Value{
			tp(0): offset.Valid(10),
			tp(1): offset.Missing,
		},
		watermarks: map[broker.TopicPartition][2]offset.Value{
			tp(0): {offset.Valid(0), offset.Valid(20)},
			tp(1): {offset.Valid(5), offset.Valid(15)},
		},
	}
	s := &Sampler{Client: c, Topic: "orders"}
	samples, err := s.Sample(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples", len(samples))
	}
	for _, sample := range samples {
		if sample.Partition == 0 && sample.Lag != 10 {
			t.Fatalf("partition 0: got lag %d, want 10", sample.Lag)
		}
		if sample.Partition == 1 && sample.Lag != 10 {
			t.Fatalf("partition 1 (missing commit): got lag %d, want 10 (high-earliest)", sample.Lag)
		}
	}
}

func TestUnitSamplerFallsBackToMetadataWhenUnassigned(t *testing.T) {
	c := &fakeClient{
		committed:  map[broker.TopicPartition]offset.Value{},
		watermarks: map[broker.TopicPartition][2]offset.Value{},
	}
	s := &Sampler{Client: c, Topic: "orders"}
	samples, err := s.Sample(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 0 {
		t.Fatalf("got %d samples, want 0 (no assignment, no metadata partitions)", len(samples))
	}
}

func TestUnitLoopReRaisesAfterMaxFailCount(t *testing.T) {
	c := &fakeClient{
		assignment: []broker.TopicPartition{tp(0)},
		sampleErr:  errors.New("boom"),
	}
	s := &Sampler{Client: c, Topic: "orders"}
	var failures []SamplerFailure
	err := Run(context.Background(), Config{
		Topic:        "orders",
		PollInterval: time.Millisecond,
		WindowSize:   3,
		MaxFailCount: 3,
	}, s, nil, nil, func(f SamplerFailure) {
		failures = append(failures, f)
	})
	if err == nil {
		t.Fatal("expected error after MaxFailCount consecutive failures")
	}
	if len(failures) != 3 {
		t.Fatalf("got %d failure callbacks, want 3", len(failures))
	}
	if failures[2].Count != 3 {
		t.Fatalf("got count %d, want 3", failures[2].Count)
	}
}

func TestUnitLoopDeliversVerdictsOnFullWindow(t *testing.T) {
	c := &fakeClient{
		assignment: []broker.TopicPartition{tp(0)},
		committed:  map[broker.TopicPartition]offset.Value{tp(0): offset.Valid(0)},
		watermarks: map[broker.TopicPartition][2]offset.Value{tp(0): {offset.Valid(0), offset.Valid(0)}},
	}
	s := &Sampler{Client: c, Topic: "orders"}
	verdictsCh := make(chan map[int32]lag.Verdict, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		Run(ctx, Config{
			Topic:        "orders",
			PollInterval: time.Millisecond,
			WindowSize:   2,
		}, s, nil, func(v map[int32]lag.Verdict) {
			select {
			case verdictsCh <- v:
			default:
			}
		}, nil)
	}()
	select {
	case v := <-verdictsCh:
		if _, ok := v[0].(lag.NoError); !ok {
			t.Fatalf("got %T, want lag.NoError (lag is 0)", v[0])
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for verdicts")
	}
	cancel()
}

func TestUnitLoopResetsWindowOnRebalance(t *testing.T) {
	c := &fakeClient{
		assignment: []broker.TopicPartition{tp(0)},
		committed:  map[broker.TopicPartition]offset.Value{tp(0): offset.Valid(0)},
		watermarks: map[broker.TopicPartition][2]offset.Value{tp(0): {offset.Valid(0), offset.Valid(5)}},
	}
	s := &Sampler{Client: c, Topic: "orders"}
	assignments := make(chan groups.Assignment, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	verdicts := 0
	done := make(chan struct{})
	go func() {
		Run(ctx, Config{
			Topic:        "orders",
			PollInterval: 2 * time.Millisecond,
			WindowSize:   3,
		}, s, assignments, func(v map[int32]lag.Verdict) {
			verdicts++
		}, nil)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	assignments <- groups.Assignment{Topic: "orders", Partitions: []int32{0}}
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done
}
