// Package ringlog provides a non-blocking log buffer between a fast byte
// producer and a slow, rate-limited byte sink.
//
// The buffer is a single-producer/single-consumer ring of bytes. The producer
// (any code emitting log output) appends bytes and never waits. A Scheduler
// drains the ring periodically into a Sink, at most BatchLimit bytes per tick.
//
// A byte is consumed only when the Sink accepts it. When the Sink is busy the
// drain stops and the same byte is retried on the next tick, so bytes reach
// the Sink in order and at most once.
//
// When the ring is full, new bytes are dropped. Nothing already buffered is
// ever overwritten.
//
//	Producer: Console / Buffer.Append
//	Consumer: Scheduler / Buffer.Drain
package ringlog
