package decoderworker

import (
	"image"
	"sync"
	"testing"
	"time"

	"github.com/tapedeck/tapedeck/internal/decoder"
	"github.com/tapedeck/tapedeck/internal/ringbuffer"
)

// fakeDecoder emits a fixed number of sample frames then reports end of
// file, without touching any real codec.
type fakeDecoder struct {
	mu          sync.Mutex
	framesLeft  int
	channels    int
	writeCalls  int
}

func newFakeDecoder(frames, channels int) *fakeDecoder {
	return &fakeDecoder{framesLeft: frames, channels: channels}
}

func (f *fakeDecoder) Open(string) error  { return nil }
func (f *fakeDecoder) Close() error       { return nil }
func (f *fakeDecoder) SampleRate() int    { return 44100 }
func (f *fakeDecoder) ChannelCount() int  { return f.channels }
func (f *fakeDecoder) TotalSamples() int64 { return 0 }
func (f *fakeDecoder) CurrentSamplePos() int64 { return 0 }
func (f *fakeDecoder) CurrentMs() int64   { return 0 }
func (f *fakeDecoder) TotalMs() int64     { return 0 }
func (f *fakeDecoder) Metadata(string) string { return "" }
func (f *fakeDecoder) CoverImage() (image.Image, bool) { return nil, false }
func (f *fakeDecoder) SeekMs(int64) error { return nil }

func (f *fakeDecoder) WriteToRingBuffer(buf *ringbuffer.RingBuffer, highWater uint64) decoder.WriteStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++

	chunk := make([]float32, f.channels)
	for buf.Size() < highWater {
		if f.framesLeft == 0 {
			return decoder.StatusEndOfFile
		}
		buf.Push(chunk)
		f.framesLeft--
	}
	return decoder.StatusOK
}

func TestWorkerDrainsFakeDecoderToEnd(t *testing.T) {
	buf := ringbuffer.New(64)
	ended := make(chan struct{}, 1)

	w := New(buf, func() {
		select {
		case ended <- struct{}{}:
		default:
		}
	})
	w.Start()
	defer w.Stop()

	// 20 frames x 2 channels = 40 samples stays under the 48-sample high
	// water mark of a 64-sample buffer, so the track ends even though
	// nothing drains the buffer.
	fd := newFakeDecoder(20, 2)
	w.LoadTrack(fd)

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never reported end of stream")
	}

	if !w.Ended() {
		t.Error("Ended() false after onEnd fired")
	}
}

func TestWorkerParksWithoutTrack(t *testing.T) {
	buf := ringbuffer.New(64)
	w := New(buf, nil)
	w.Start()
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	if w.Active() {
		t.Error("worker should be idle with no track loaded")
	}
}

func TestWorkerStopIsIdempotent(t *testing.T) {
	buf := ringbuffer.New(16)
	w := New(buf, nil)
	w.Start()
	w.Stop()
	w.Stop()
}

func TestWorkerLoadTrackResetsEnded(t *testing.T) {
	buf := ringbuffer.New(64)
	ended := make(chan struct{}, 4)
	w := New(buf, func() {
		select {
		case ended <- struct{}{}:
		default:
		}
	})
	w.Start()
	defer w.Stop()

	w.LoadTrack(newFakeDecoder(8, 1))
	<-ended
	time.Sleep(10 * time.Millisecond)
	if !w.Ended() {
		t.Fatal("expected ended after first track drains")
	}

	// This track is longer than the high water mark, so with nothing
	// draining the buffer it cannot end and re-set the flag.
	w.LoadTrack(newFakeDecoder(64, 1))
	time.Sleep(10 * time.Millisecond)
	if w.Ended() {
		t.Error("LoadTrack should clear the ended flag")
	}
}
