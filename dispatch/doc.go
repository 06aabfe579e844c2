// Package dispatch implements the batched, partition-serialized consumer:
// it polls the broker, groups messages by partition into bounded batches,
// and dispatches them to a user handler under a strict per-partition
// serialization guarantee while permitting cross-partition parallelism. It
// commits offsets only for work the handler acknowledged as complete.
//
// The concurrency shape is a fixed worker pool pulling from a shared piece
// of state under one lock, the way a bounded consumer pool typically does.
// The refinement here is that workers pull the head of a per-partition FIFO
// instead of round-robining over a channel of partition indices, and a
// partition is never handed to a second worker while its previous batch is
// still in flight.
//
// There is no dynamic partition assignment logic in this package -- that
// lives in package groups. The broker.Client passed to Start already knows
// which partitions to poll (cmd/consume assigns them from groups' events).
package dispatch
