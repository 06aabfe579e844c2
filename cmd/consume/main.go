// Consume wires the batched dispatcher and the lag monitor onto one
// consumer group: it joins the group, dispatches batches to a handler that
// just logs and acknowledges, and runs the lag monitor alongside it,
// stopping as soon as either one finishes.
package main

import (
	"context"
	"flag"
	"log"
	"runtime"
	"time"

	"github.com/mkocikowski/lagconsumer/broker"
	"github.com/mkocikowski/lagconsumer/compression"
	"github.com/mkocikowski/lagconsumer/dispatch"
	"github.com/mkocikowski/lagconsumer/groups"
	"github.com/mkocikowski/lagconsumer/groups/assigners"
	"github.com/mkocikowski/lagconsumer/lag"
	"github.com/mkocikowski/lagconsumer/monitor"
	"github.com/mkocikowski/lagconsumer/runwait"
)

var (
	projectName  string
	buildVersion string
	buildTime    string
)

func main() {
	bootstrap := flag.String("bootstrap", "localhost:9092", "host:port or SRV")
	topic := flag.String("topic", "", "topic to consume (required)")
	groupId := flag.String("group", "", "consumer group id (required)")
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile | log.LUTC | log.Lmicroseconds)
	log.Printf("%s %s %s %s", projectName, buildVersion, buildTime, runtime.Version())
	if *topic == "" || *groupId == "" {
		log.Fatal("-topic and -group are required")
	}

	membership := &groups.GroupMembershipManager{
		Bootstrap: *bootstrap,
		Topic:     *topic,
		GroupId:   *groupId,
		Assigner:  &assigners.RandomPartition{Bootstrap: *bootstrap, Topic: *topic},
	}
	assignments := membership.Start()

	client := &broker.LibkafkaClient{
		Bootstrap:     *bootstrap,
		Topic:         *topic,
		GroupId:       *groupId,
		Decompressors: compression.Decompressors(),
	}
	// Block for this consumer's first assignment before starting the
	// dispatcher, so it has partitions to poll from the outset.
	first := <-assignments
	client.Assign(startOffsets(client, *topic, first.Partitions))

	monitorAssignments := make(chan groups.Assignment, 1)
	monitorAssignments <- first
	go func() {
		for a := range assignments {
			client.Assign(startOffsets(client, *topic, a.Partitions))
			select {
			case monitorAssignments <- a:
			default:
			}
		}
	}()

	handle, err := dispatch.Start(dispatch.Config{
		ClientId: "consume",
		Brokers:  *bootstrap,
		Topics:   []string{*topic},
		GroupId:  *groupId,
	}, client, func(h *dispatch.Handle, b dispatch.Batch) dispatch.Completion {
		log.Printf("consume: handled batch partition=%d len=%d", b.Partition, b.Len())
		return dispatch.Ack()
	})
	if err != nil {
		log.Fatal(err)
	}

	sampler := &monitor.Sampler{Client: client, Topic: *topic}

	err = runwait.First(context.Background(),
		func(ctx context.Context) error {
			go func() {
				<-ctx.Done()
				handle.Stop()
			}()
			return handle.AwaitCompletion()
		},
		func(ctx context.Context) error {
			return monitor.Run(ctx, monitor.Config{Topic: *topic, GroupId: *groupId}, sampler, monitorAssignments,
				func(verdicts map[int32]lag.Verdict) {
					for partition, v := range verdicts {
						if _, ok := v.(lag.NoError); !ok {
							log.Printf("consume: partition %d verdict %+v", partition, v)
						}
					}
				},
				func(f monitor.SamplerFailure) {
					log.Printf("consume: lag sampler failure %d: %v", f.Count, f.Err)
				},
			)
		},
	)
	if err != nil {
		log.Fatal(err)
	}
}

// startOffsets resumes each partition from its committed offset, or 0 if
// none has been committed yet.
func startOffsets(c *broker.LibkafkaClient, topic string, partitions []int32) map[int32]int64 {
	tps := make([]broker.TopicPartition, len(partitions))
	for i, p := range partitions {
		tps[i] = broker.TopicPartition{Topic: topic, Partition: p}
	}
	committed, err := c.Committed(context.Background(), tps, 20*time.Second)
	out := make(map[int32]int64, len(partitions))
	for _, p := range partitions {
		if err != nil {
			out[p] = 0
			continue
		}
		if v, ok := committed[broker.TopicPartition{Topic: topic, Partition: p}].Int64(); ok {
			out[p] = v
		} else {
			out[p] = 0
		}
	}
	return out
}
