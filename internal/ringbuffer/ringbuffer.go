// Package ringbuffer implements the bounded, blocking, single-producer/
// single-consumer PCM queue between the decoder worker and the mixer
// (spec §4.1). Capacity is rounded up to the next power of two so index
// arithmetic can use a bitmask instead of modulo, the same trick the
// teacher's byte-oriented ringbuffer uses — but here push blocks never,
// and pop blocks on a condition variable, matching the decoder/mixer
// threading model instead of a lock-free SPSC design.
package ringbuffer

import (
	"log/slog"
	"sync"
)

// RingBuffer is a bounded FIFO of interleaved float32 PCM samples.
// Single producer (the decoder worker), single consumer (the mixer's
// pull callback or writer thread). All mutation of head/tail/size happens
// under mu; the condition variable is the only cross-thread coupling.
type RingBuffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf  []float32
	cap  uint64 // power of two
	mask uint64
	head uint64
	tail uint64
	size uint64
}

// New creates a ring buffer whose capacity is the next power of two at or
// above requested. Any capacity in [2^14, 2^18] matches spec §9's latency
// guidance for 48kHz stereo playback.
func New(requested uint64) *RingBuffer {
	c := nextPow2(requested)
	rb := &RingBuffer{
		buf:  make([]float32, c),
		cap:  c,
		mask: c - 1,
	}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

func nextPow2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}

// Capacity returns the power-of-two capacity in samples.
func (rb *RingBuffer) Capacity() uint64 {
	return rb.cap
}

// Size returns the current number of buffered samples.
func (rb *RingBuffer) Size() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size
}

// Push appends span to the buffer and wakes the consumer. If span would
// overflow the buffer it is dropped whole — nothing is written — and a
// warning is logged (spec §4.1, §7). Never partial.
func (rb *RingBuffer) Push(span []float32) {
	rb.mu.Lock()
	if uint64(len(span))+rb.size > rb.cap {
		rb.mu.Unlock()
		slog.Warn("ringbuffer overflow, dropping span",
			slog.Int("span_len", len(span)),
			slog.Uint64("size", rb.size),
			slog.Uint64("capacity", rb.cap))
		return
	}

	n := uint64(len(span))
	start := rb.tail & rb.mask
	end := (rb.tail + n) & rb.mask
	if n == 0 {
		rb.mu.Unlock()
		return
	}
	if end > start || n == 0 {
		copy(rb.buf[start:start+n], span)
	} else {
		firstChunk := rb.cap - start
		copy(rb.buf[start:], span[:firstChunk])
		copy(rb.buf[:end], span[firstChunk:])
	}
	rb.tail = (rb.tail + n) & rb.mask
	rb.size += n
	rb.mu.Unlock()

	rb.cond.Broadcast()
}

// Pop blocks until dest can be fully satisfied, then copies that many
// samples into dest in push order and wakes the producer. If len(dest)
// exceeds capacity, the request is silently capped at capacity and a
// warning is logged (spec §4.1).
func (rb *RingBuffer) Pop(dest []float32) {
	want := uint64(len(dest))
	if want > rb.cap {
		slog.Warn("ringbuffer pop request exceeds capacity, capping",
			slog.Uint64("requested", want),
			slog.Uint64("capacity", rb.cap))
		want = rb.cap
		dest = dest[:want]
	}

	rb.mu.Lock()
	for rb.size < want {
		rb.cond.Wait()
	}

	start := rb.head & rb.mask
	end := (rb.head + want) & rb.mask
	if want == 0 {
		rb.mu.Unlock()
		return
	}
	if end > start {
		copy(dest, rb.buf[start:end])
	} else {
		firstChunk := rb.cap - start
		copy(dest[:firstChunk], rb.buf[start:])
		copy(dest[firstChunk:], rb.buf[:end])
	}
	rb.head = (rb.head + want) & rb.mask
	rb.size -= want
	rb.mu.Unlock()

	rb.cond.Broadcast()
}

// TryPop behaves like Pop but never blocks: it copies min(len(dest), size)
// samples, zero-fills the remainder, and returns the number of real
// samples copied. Used by the real-time callback sinks, which must never
// block the audio thread waiting on decode (spec §4.4).
func (rb *RingBuffer) TryPop(dest []float32) int {
	rb.mu.Lock()
	avail := rb.size
	want := uint64(len(dest))
	if avail < want {
		want = avail
	}

	start := rb.head & rb.mask
	end := (rb.head + want) & rb.mask
	if want > 0 {
		if end > start {
			copy(dest[:want], rb.buf[start:end])
		} else {
			firstChunk := rb.cap - start
			copy(dest[:firstChunk], rb.buf[start:])
			copy(dest[firstChunk:want], rb.buf[:end])
		}
		rb.head = (rb.head + want) & rb.mask
		rb.size -= want
	}
	rb.mu.Unlock()

	if want > 0 {
		rb.cond.Broadcast()
	}
	for i := want; i < uint64(len(dest)); i++ {
		dest[i] = 0
	}
	return int(want)
}

// Clear resets head, tail, and size to zero, used on seek and track change
// (spec §4.1, §4.4), then broadcasts on the condition variable so any
// waiter re-checks the emptied buffer.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	rb.head = 0
	rb.tail = 0
	rb.size = 0
	rb.mu.Unlock()
	rb.cond.Broadcast()
}

// Wake broadcasts on the condition variable without mutating state. Used
// by Destroy and by callers that changed external state (e.g. a quit
// flag) the producer or consumer needs to observe.
func (rb *RingBuffer) Wake() {
	rb.cond.Broadcast()
}

// WaitWhile blocks while cond(size) is true, used by the decoder worker
// to sleep until the low-water mark (spec §4.3). It is woken by any Push,
// Pop, Clear, or Wake call.
func (rb *RingBuffer) WaitWhile(cond func(size uint64) bool) {
	rb.mu.Lock()
	for cond(rb.size) {
		rb.cond.Wait()
	}
	rb.mu.Unlock()
}
