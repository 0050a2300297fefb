// Package decoderworker runs the producer side of the ring-buffer pipeline:
// a single goroutine that pulls frames from whichever decoder is currently
// loaded and pushes them into a ringbuffer.RingBuffer until it reaches the
// high water mark, then sleeps until the mixer's consumption drains it back
// to the low water mark. Adapted from the teacher's fileplayer/audioplayer
// producer goroutines, generalized to track changes and repeat modes
// instead of a single fixed file.
package decoderworker

import (
	"log/slog"
	"sync"

	"github.com/tapedeck/tapedeck/internal/decoder"
	"github.com/tapedeck/tapedeck/internal/ringbuffer"
)

// Worker owns the decode loop. It never touches the audio callback thread;
// the ring buffer is the only shared state between them.
type Worker struct {
	buf *ringbuffer.RingBuffer

	mu      sync.Mutex
	cond    *sync.Cond
	dec     decoder.Decoder
	active  bool
	ended   bool
	stopped bool

	stopCh chan struct{}
	wg     sync.WaitGroup

	// onEnd is invoked from the worker goroutine when the loaded decoder
	// reports end of stream, so the playlist/mixer can advance per the
	// current repeat mode. Must not block.
	onEnd func()
}

// New creates a worker over buf. onEnd may be nil.
func New(buf *ringbuffer.RingBuffer, onEnd func()) *Worker {
	w := &Worker{
		buf:    buf,
		onEnd:  onEnd,
		stopCh: make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Start launches the decode loop goroutine. Safe to call once.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop halts the loop and waits for it to exit. Idempotent.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopCh)
	w.cond.Broadcast()
	w.buf.Wake()
	w.wg.Wait()
}

// LoadTrack swaps in a new decoder for the worker to consume, clearing the
// ended flag and waking the loop if it was parked waiting for one.
func (w *Worker) LoadTrack(d decoder.Decoder) {
	w.mu.Lock()
	w.dec = d
	w.ended = false
	w.mu.Unlock()
	w.cond.Broadcast()
}

// ClearTrack drops the current decoder without installing a new one,
// parking the loop until the next LoadTrack call.
func (w *Worker) ClearTrack() {
	w.mu.Lock()
	w.dec = nil
	w.mu.Unlock()
}

// Active reports whether the worker is mid-decode right now.
func (w *Worker) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Ended reports whether the loaded decoder has reached end of stream and no
// replacement has been loaded since.
func (w *Worker) Ended() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ended
}

func (w *Worker) currentDecoder() decoder.Decoder {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dec
}

func (w *Worker) setActive(v bool) {
	w.mu.Lock()
	w.active = v
	w.mu.Unlock()
}

func (w *Worker) markEnded() {
	w.mu.Lock()
	w.ended = true
	w.mu.Unlock()
}

// waitForWork blocks until a decoder is loaded or the worker is stopped.
func (w *Worker) waitForWork() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.dec == nil && !w.stopped {
		w.cond.Wait()
	}
	return !w.stopped
}

func (w *Worker) isStopped() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *Worker) run() {
	defer w.wg.Done()

	high := uint64(float64(w.buf.Capacity()) * decoder.HighWaterFrac)
	low := uint64(float64(w.buf.Capacity()) * decoder.LowWaterFrac)

	for {
		if w.isStopped() {
			return
		}
		if !w.waitForWork() {
			return
		}

		d := w.currentDecoder()
		if d == nil {
			continue
		}

		w.setActive(true)
		status := d.WriteToRingBuffer(w.buf, high)
		w.setActive(false)

		if w.isStopped() {
			return
		}

		switch status {
		case decoder.StatusOK:
			w.buf.WaitWhile(func(size uint64) bool {
				return size > low && !w.isStopped()
			})
		case decoder.StatusEndOfFile:
			w.markEnded()
			if w.onEnd != nil {
				w.onEnd()
			}
			w.waitForTrackChange(d)
		case decoder.StatusFail:
			slog.Warn("decoder worker: backend reported failure, dropping track")
			w.markEnded()
			if w.onEnd != nil {
				w.onEnd()
			}
			w.waitForTrackChange(d)
		}
	}
}

// waitForTrackChange parks until the caller installs a different decoder
// (or nil, or stop), so a finished track's worker iteration doesn't spin.
func (w *Worker) waitForTrackChange(finished decoder.Decoder) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.dec == finished && !w.stopped {
		w.cond.Wait()
	}
}
