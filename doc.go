// Package streams implements the WHATWG Streams core: a Readable source, a
// Writable sink, and a Transform pair (a writable-end coupled to a
// readable-end), together with their controllers (used by producers) and
// readers/writers (used by consumers).
//
// # Architecture
//
// Every stream endpoint ([ReadableStream], [WritableStream]) is a small
// state machine owning a sized queue and exactly one controller. A
// [ReadableStreamDefaultController] mediates enqueue/pull/cancel for a
// readable; a [WritableStreamDefaultController] mediates write/close/abort
// for a writable. [TransformStream] couples one of each through a user
// transform function. [ReadableStream.PipeTo] drains a readable into a writable with
// configurable close/abort/cancel propagation and is cancellable via an
// external [AbortSignal]. [Tee] forks a readable into two independent
// readables that share one upstream reader.
//
// # Concurrency model
//
// This package has no single-threaded executor: every stream owns one mutex
// guarding its own fields and those of its controller and reader/writer (a
// [TransformStream]'s two inner streams share a single mutex), and producer/
// consumer calls from any goroutine serialize on it. Callbacks (sink/
// source/transform functions, settlement observers) are always invoked
// with the lock released, so user code may safely re-enter the controller
// from within a callback — the readable side's pull-again flag and the
// writable side's deferred error-finishing preserve the same re-entrancy
// guarantee a cooperative single-threaded scheduler would, using a plain
// lock instead.
//
// # Settlements
//
// [Settlement] is this package's promise-like one-shot completion signal:
// created pending, resolved or rejected exactly once, observers notified in
// FIFO order. Suspension points ([ReadableStreamDefaultReader.Read],
// [WritableStreamDefaultWriter.Write], and so on) block the calling
// goroutine on a Settlement via [Settlement.Wait].
//
// # Non-goals
//
// This package creates no scheduler or executor of its own; the only
// goroutines it starts are the ones that drive a [ReadableStream.PipeTo] call
// and a [Tee]'s upstream reads. It does no persistence, no flow control beyond the high-water-mark
// backpressure signal, and no framing/batching/protocol interpretation of
// chunks. The BYOB (bring-your-own-buffer) byte-stream buffer-splicing
// algorithm is out of scope — see [ReadableByteStreamController] for the
// interface-level stub.
package streams
