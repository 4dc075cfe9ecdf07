// Package msgs provides the wire messages log lines are published in.
package msgs

// A Chunk carries one line of log output from a source. Chunks from the
// same source are numbered so a consumer can spot lost lines.
//
// Producer: ringlogd (sink/packet.LineSink)
// Consumer: ringlogmon
