// Package recordbuild implements a concurrent record batch builder: it
// collects records into sets bounded by MinRecords and turns each set into a
// compressed libkafka record batch, ready for produce.Batcher to send.
package recordbuild

import (
	"sync"
	"time"

	"github.com/mkocikowski/libkafka"
	"github.com/mkocikowski/libkafka/batch"
	"github.com/mkocikowski/libkafka/record"
)

// Builder assembles record batches. Set public fields before calling Start.
// Do not change them afterwards. Safe for concurrent use.
type Builder struct {
	// Compressor must be safe for concurrent use.
	Compressor batch.Compressor
	// Each batch will have at least this many records.
	MinRecords int
	// Must be > 0.
	NumWorkers int
	//
	in   <-chan []*libkafka.Record
	sets chan []*libkafka.Record
	out  chan *libkafka.Batch
	wg   sync.WaitGroup
}

func (b *Builder) collectLoop() {
	var set []*record.Record
	for r := range b.in {
		set = append(set, r...)
		if len(set) >= b.MinRecords {
			b.sets <- set
			set = nil
		}
	}
	if len(set) > 0 {
		b.sets <- set
	}
	close(b.sets)
}

func (b *Builder) buildLoop() {
	for records := range b.sets {
		builder := batch.NewBuilder(time.Now())
		builder.Add(records...)
		built, err := builder.Build(time.Now(), b.Compressor)
		if err != nil {
			continue
		}
		b.out <- built
	}
}

// Start building batches. Returns the channel to which workers send
// completed batches. When the input channel is closed the workers drain it,
// output any remaining batch (even if smaller than MinRecords), exit, and
// the output channel is closed. Call Start only once.
func (b *Builder) Start(input <-chan []*libkafka.Record) <-chan *libkafka.Batch {
	b.in = input
	b.sets = make(chan []*libkafka.Record, b.NumWorkers)
	go b.collectLoop()
	b.out = make(chan *libkafka.Batch, b.NumWorkers)
	for i := 0; i < b.NumWorkers; i++ {
		b.wg.Add(1)
		go func() {
			b.buildLoop()
			b.wg.Done()
		}()
	}
	go func() {
		b.wg.Wait()
		close(b.out)
	}()
	return b.out
}
