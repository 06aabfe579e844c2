// Produce is a synchronous kafka producer. It reads strings from stdin one
// line at a time and sends them to kafka one record at a time, uncompressed
// (compression.None). Sending records one at a time is inefficient; this
// is meant as an example of how to wire package recordbuild and package
// produce together.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/mkocikowski/lagconsumer/compression"
	"github.com/mkocikowski/lagconsumer/produce"
	"github.com/mkocikowski/lagconsumer/recordbuild"
	"github.com/mkocikowski/libkafka"
)

var (
	projectName  string
	buildVersion string
	buildTime    string
)

func main() {
	rand.Seed(time.Now().UnixNano())
	bootstrap := flag.String("bootstrap", "localhost:9092", "host:port or SRV")
	topic := flag.String("topic", fmt.Sprintf("test-%x", rand.Uint32()), "")
	acks := flag.Int("acks", 1, "0=none 1=leader -1=all")
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile | log.LUTC | log.Lmicroseconds)
	log.Printf("%s %s %s %s", projectName, buildVersion, buildTime, runtime.Version())
	//
	records := make(chan []*libkafka.Record)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			records <- []*libkafka.Record{libkafka.NewRecord(nil, scanner.Bytes())}
		}
		close(records)
	}()
	b := &recordbuild.Builder{
		Compressor: &compression.None{},
		MinRecords: 1,
		NumWorkers: 1,
	}
	batches := b.Start(records)
	p := &produce.Batcher{
		Bootstrap:   *bootstrap,
		Topic:       *topic,
		NumWorkers:  1,
		NumAttempts: 3,
		Acks:        produce.Acks(*acks),
		TimeoutMs:   5000,
	}
	exchanges, err := p.Start(batches)
	if err != nil {
		log.Fatal(err)
	}
	for e := range exchanges {
		log.Printf("%+v", e)
	}
}
