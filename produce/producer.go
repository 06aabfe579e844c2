// Package produce implements the batched producer collaborator: it groups
// key/value pairs into record batches (via package recordbuild) and awaits
// broker acknowledgement. It is intentionally thin -- consumer lag only
// exists once something has produced records to fall behind on -- and is
// wired end to end by cmd/produce.
package produce

import (
	"fmt"
	"sync"

	"github.com/mkocikowski/libkafka/batch"
	"github.com/mkocikowski/libkafka/client"
	"github.com/mkocikowski/libkafka/client/producer"
	"github.com/mkocikowski/libkafka/errors"
)

// Acks selects the broker acknowledgement level for a produced batch.
type Acks int16

const (
	AcksNone   Acks = 0
	AcksLeader Acks = 1
	AcksAll    Acks = -1
)

// Exchange records the outcome of sending one record batch. Only the final
// success response is recorded; every failed attempt (there are at most
// Batcher.NumAttempts of them) is appended to Errors in order.
type Exchange struct {
	Batch   *batch.Batch
	Success *producer.Response
	Errors  []error
}

// Batcher sends record batches to Kafka. Set public fields before calling
// Start; do not change them afterwards. Safe for concurrent use.
type Batcher struct {
	// Bootstrap is either host:port or an SRV name.
	Bootstrap string
	Topic     string
	// NumWorkers spins up this many synchronous workers, each processing
	// one batch at a time against the next idle partition taken from a
	// shared queue of partitions. Must be > 0.
	NumWorkers int
	// NumAttempts: 1 means a single attempt and no retries. Must be > 0.
	NumAttempts int
	// Acks controls broker acknowledgement: Leader (1), All (-1), or None
	// (0), matching the wire protocol's acks values directly.
	Acks Acks
	// TimeoutMs bounds how long the broker waits for Acks before replying.
	TimeoutMs int32
	//
	producers map[int]*producer.PartitionProducer
	next      chan int
	in        <-chan *batch.Batch
	out       chan *Exchange
	wg        sync.WaitGroup
}

func (p *Batcher) produce(e *Exchange) {
	partition := <-p.next
	defer func() { p.next <- partition }()
	partitionProducer := p.producers[partition]
	resp, err := partitionProducer.Produce(e.Batch)
	if err != nil {
		partitionProducer.Close()
		e.Errors = append(e.Errors, err)
		return
	}
	if resp.ErrorCode != errors.NONE {
		partitionProducer.Close()
		e.Errors = append(e.Errors, &errors.KafkaError{Code: resp.ErrorCode})
		return
	}
	e.Success = resp
}

func (p *Batcher) run() {
	for b := range p.in {
		e := &Exchange{Batch: b}
		for i := 0; i < p.NumAttempts; i++ {
			p.produce(e)
			if e.Success != nil {
				break
			}
		}
		p.out <- e
	}
}

// Start sending batches to Kafka. When the input channel closes the workers
// drain it, send any remaining batches, emit the final Exchanges, and close
// the output channel. Call Start only once.
func (p *Batcher) Start(input <-chan *batch.Batch) (<-chan *Exchange, error) {
	leaders, err := client.GetPartitionLeaders(p.Bootstrap, p.Topic)
	if err != nil {
		return nil, err
	}
	if len(leaders) == 0 {
		return nil, fmt.Errorf("no leaders for topic %v", p.Topic)
	}
	p.producers = make(map[int]*producer.PartitionProducer)
	p.next = make(chan int, len(leaders))
	for partition := range leaders {
		p.producers[int(partition)] = &producer.PartitionProducer{
			PartitionClient: client.PartitionClient{
				Bootstrap: p.Bootstrap,
				Topic:     p.Topic,
				Partition: partition,
			},
			Acks:      int16(p.Acks),
			TimeoutMs: p.TimeoutMs,
		}
		p.next <- int(partition)
	}
	p.in = input
	p.out = make(chan *Exchange)
	for i := 0; i < p.NumWorkers; i++ {
		p.wg.Add(1)
		go func() {
			p.run()
			p.wg.Done()
		}()
	}
	go func() {
		p.wg.Wait()
		close(p.out)
	}()
	return p.out, nil
}
