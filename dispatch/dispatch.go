package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkocikowski/lagconsumer/broker"
	"github.com/mkocikowski/lagconsumer/kerrors"
)

// State is the dispatcher's lifecycle state.
type State int32

const (
	Stopped State = iota
	Running
	Completed
	Faulted
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Faulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// Config is the recognized configuration surface (spec section 6).
type Config struct {
	ClientId  string
	Brokers   string
	Topics    []string
	GroupId   string
	// MaxBatchSize bounds the number of messages delivered to the handler
	// in a single batch. Zero uses DefaultMaxBatchSize.
	MaxBatchSize int
	// NumWorkers bounds cross-partition parallelism: the number of batches
	// that may be in flight (being handled) at once. Zero uses
	// DefaultNumWorkers.
	NumWorkers int
	// PollTimeout bounds each broker poll call. Zero uses DefaultPollTimeout.
	PollTimeout time.Duration
	// CommitInterval is how often pending offsets are flushed to the
	// broker. Zero uses DefaultCommitInterval.
	CommitInterval time.Duration
	StatisticsInterval time.Duration
	AutoOffsetReset    string
}

const (
	DefaultMaxBatchSize   = 500
	DefaultNumWorkers     = 4
	DefaultPollTimeout    = 500 * time.Millisecond
	DefaultCommitInterval = 5 * time.Second
)

func (c *Config) validate() error {
	if c.ClientId == "" {
		return kerrors.NewConfigError("dispatch: ClientId is required")
	}
	if !brokerURIValid(c.Brokers) {
		return kerrors.NewConfigError("dispatch: invalid Brokers %q", c.Brokers)
	}
	if len(c.Topics) == 0 {
		return kerrors.NewConfigError("dispatch: Topics must be non-empty")
	}
	if c.GroupId == "" {
		return kerrors.NewConfigError("dispatch: GroupId is required")
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxBatchSize <= 0 {
		out.MaxBatchSize = DefaultMaxBatchSize
	}
	if out.NumWorkers <= 0 {
		out.NumWorkers = DefaultNumWorkers
	}
	if out.PollTimeout <= 0 {
		out.PollTimeout = DefaultPollTimeout
	}
	if out.CommitInterval <= 0 {
		out.CommitInterval = DefaultCommitInterval
	}
	return out
}

// Completion is the outcome the handler reports for one batch. Use Ack for
// success and Fail for a fatal handler error.
type Completion struct {
	err error
}

// Ack reports that a batch was handled successfully.
func Ack() Completion { return Completion{} }

// Fail reports a fatal handler error: the whole dispatcher transitions to
// Faulted and no further batches are dispatched.
func Fail(err error) Completion { return Completion{err: err} }

func (c Completion) ok() bool { return c.err == nil }

// Handler processes one batch for one partition. The Handle is passed as
// the first argument (rather than requiring the handler to close over a
// forward-declared handle cell) so the handler can call Stop on the
// consumer that invoked it -- this is the "pass the handle at invocation
// time" resolution to the cyclic-handle-dependency design note.
type Handler func(*Handle, Batch) Completion

// Handle is the live consumer handle passed to the handler and returned
// from Start.
type Handle struct {
	cfg     Config
	broker  broker.Client
	handler Handler

	state atomic.Int32

	mu            sync.Mutex
	queues        map[int32][]Batch
	inFlight      map[int32]bool
	pendingCommit map[int32]int64

	inFlightWG sync.WaitGroup
	sem        chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	faultOnce sync.Once
	faultErr  error

	stopAfterTimer *time.Timer
}

// Start constructs and starts a Dispatcher against broker b, invoking
// handler once per batch. Returns immediately; the returned Handle's
// AwaitCompletion blocks until the consumer has fully drained or faulted.
func Start(cfg Config, b broker.Client, handler Handler) (*Handle, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	full := cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		cfg:           full,
		broker:        b,
		handler:       handler,
		queues:        map[int32][]Batch{},
		inFlight:      map[int32]bool{},
		pendingCommit: map[int32]int64{},
		sem:           make(chan struct{}, full.NumWorkers),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	h.state.Store(int32(Running))
	go h.run()
	return h, nil
}

// State returns the dispatcher's current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

func (h *Handle) run() {
	defer close(h.done)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); h.pollLoop() }()
	go func() { defer wg.Done(); h.commitLoop() }()
	wg.Wait()
	// Drain any handler goroutines still finishing up before the final
	// commit and state transition, so nothing racing this shutdown can
	// still mutate pendingCommit.
	h.inFlightWG.Wait()
	h.commitPending()
	if h.faultErr != nil {
		h.state.Store(int32(Faulted))
	} else {
		h.state.Store(int32(Completed))
	}
}

func (h *Handle) pollLoop() {
	for {
		select {
		case <-h.ctx.Done():
			return
		default:
		}
		msgs, err := h.broker.Poll(h.ctx, h.cfg.PollTimeout)
		if err != nil {
			if h.ctx.Err() != nil {
				// Stop() raced the in-flight poll call; this is a
				// graceful shutdown; not a fault.
				return
			}
			// Transient broker errors are the underlying library's
			// concern (bounded retries with backoff); dispatch treats
			// a poll error here as already having exhausted that
			// budget and faults.
			h.fault(fmt.Errorf("poll: %w", err))
			return
		}
		h.enqueue(msgs)
		h.scheduleReady()
	}
}

func (h *Handle) enqueue(msgs []broker.RawMessage) {
	if len(msgs) == 0 {
		return
	}
	byPartition := map[int32][]broker.RawMessage{}
	for _, m := range msgs {
		byPartition[m.Partition] = append(byPartition[m.Partition], m)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for p, ms := range byPartition {
		for _, chunk := range chunkByMaxSize(ms, h.cfg.MaxBatchSize) {
			h.queues[p] = append(h.queues[p], Batch{
				Topic:     chunk[0].Topic,
				Partition: p,
				Messages:  toMessages(chunk),
			})
		}
	}
}

// chunkByMaxSize splits a partition-homogeneous, offset-ordered slice of
// messages into groups no larger than maxSize.
func chunkByMaxSize(msgs []broker.RawMessage, maxSize int) [][]broker.RawMessage {
	if len(msgs) <= maxSize {
		return [][]broker.RawMessage{msgs}
	}
	var out [][]broker.RawMessage
	for len(msgs) > 0 {
		n := maxSize
		if n > len(msgs) {
			n = len(msgs)
		}
		out = append(out, msgs[:n])
		msgs = msgs[n:]
	}
	return out
}

// scheduleReady dispatches the head batch of every partition that has a
// non-empty queue and is not already in flight. This is the only place that
// starts a handler invocation, and it is what enforces "at most one batch
// per partition being handled at a time".
func (h *Handle) scheduleReady() {
	for {
		select {
		case <-h.ctx.Done():
			return
		default:
		}
		batch, ok := h.claimNextReady()
		if !ok {
			return
		}
		select {
		case h.sem <- struct{}{}:
		case <-h.ctx.Done():
			h.releaseInFlight(batch.Partition)
			return
		}
		h.inFlightWG.Add(1)
		go h.handle(batch)
	}
}

func (h *Handle) claimNextReady() (Batch, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p, q := range h.queues {
		if len(q) == 0 || h.inFlight[p] {
			continue
		}
		batch := q[0]
		h.queues[p] = q[1:]
		h.inFlight[p] = true
		return batch, true
	}
	return Batch{}, false
}

func (h *Handle) releaseInFlight(p int32) {
	h.mu.Lock()
	h.inFlight[p] = false
	h.mu.Unlock()
}

func (h *Handle) handle(b Batch) {
	defer h.inFlightWG.Done()
	completion := h.handler(h, b)
	// Free this worker slot before scheduleReady, which may wait for a slot.
	<-h.sem
	if !completion.ok() {
		h.fault(kerrors.NewHandlerError(b.Partition, completion.err))
		h.releaseInFlight(b.Partition)
		return
	}
	h.mu.Lock()
	h.pendingCommit[b.Partition] = b.maxOffset() + 1
	h.inFlight[b.Partition] = false
	h.mu.Unlock()
	h.scheduleReady()
}

func (h *Handle) fault(err error) {
	h.faultOnce.Do(func() {
		h.faultErr = err
		log.Printf("dispatch: fatal error, stopping: %v", err)
		h.cancel()
	})
}

func (h *Handle) commitLoop() {
	ticker := time.NewTicker(h.cfg.CommitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.commitPending()
		}
	}
}

func (h *Handle) commitPending() {
	h.mu.Lock()
	if len(h.pendingCommit) == 0 {
		h.mu.Unlock()
		return
	}
	offsets := make(map[broker.TopicPartition]int64, len(h.pendingCommit))
	for p, o := range h.pendingCommit {
		offsets[broker.TopicPartition{Topic: h.topic(), Partition: p}] = o
	}
	h.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.broker.Commit(ctx, offsets); err != nil {
		log.Printf("dispatch: commit failed, will retry next tick: %v", err)
		return
	}
	h.mu.Lock()
	for tp, o := range offsets {
		if h.pendingCommit[tp.Partition] == o {
			delete(h.pendingCommit, tp.Partition)
		}
	}
	h.mu.Unlock()
}

func (h *Handle) topic() string {
	if len(h.cfg.Topics) == 0 {
		return ""
	}
	return h.cfg.Topics[0]
}

// Stop requests graceful shutdown: in-flight batches are awaited and their
// offsets committed; pending-but-undispatched batches are discarded.
func (h *Handle) Stop() {
	h.cancel()
}

// StopAfter schedules Stop to run once, after delay. Fire-and-forget.
func (h *Handle) StopAfter(delay time.Duration) {
	h.mu.Lock()
	if h.stopAfterTimer != nil {
		h.stopAfterTimer.Stop()
	}
	h.stopAfterTimer = time.AfterFunc(delay, h.Stop)
	h.mu.Unlock()
}

// AwaitCompletion blocks until the consumer has fully drained, and returns
// the first fatal handler error, if any.
func (h *Handle) AwaitCompletion() error {
	<-h.done
	return h.faultErr
}
