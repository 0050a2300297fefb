package mixer

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

// beepSink is the second real backend: a software mixer running through
// gopxl/beep's speaker package, which natively accepts float32-ish stream
// samples (beep.Streamer works in float64 per-sample but the path never
// touches a fixed-point format), matching spec §4.4's "natively accepts
// float32" callback variant. Grounded on Alexander-D-Karpov/amp's
// speaker.Init/speaker.Play usage; unlike amp's file-backed streamer, the
// pull callback here sources directly from the ring buffer via mixer.
//
// speaker.Init can only be called once per process at a given sample rate,
// so Configure at a new rate tears down and reinitializes it, same
// limitation go-musicfox's beepPlayer works around with its own
// resampleStreamer.
type beepSink struct {
	mu       sync.Mutex
	channels int
	rate     int
	inited   bool
	pull     PullFunc
	ctrl     *beep.Ctrl
}

func newBeepSink() *beepSink { return &beepSink{} }

func (s *beepSink) Configure(rate, channels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inited && s.rate == rate && s.channels == channels {
		return nil
	}

	speaker.Clear()
	sr := beep.SampleRate(rate)
	bufSize := sr.N(50 * time.Millisecond)
	if err := speaker.Init(sr, bufSize); err != nil {
		return err
	}
	s.rate = rate
	s.channels = channels
	s.inited = true
	return nil
}

func (s *beepSink) Start(pull PullFunc) error {
	s.mu.Lock()
	s.pull = pull
	channels := s.channels
	streamer := &pullStreamer{channels: channels, pull: pull}
	s.ctrl = &beep.Ctrl{Streamer: streamer, Paused: false}
	ctrl := s.ctrl
	s.mu.Unlock()

	speaker.Play(ctrl)
	return nil
}

func (s *beepSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl == nil {
		return nil
	}
	speaker.Lock()
	s.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

func (s *beepSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	speaker.Clear()
	s.ctrl = nil
	s.inited = false
	return nil
}

// pullStreamer adapts mixer.PullFunc to beep.Streamer by pulling each
// Stream call's whole block of frames at once and spreading it into beep's
// [][2]float64 convention. Mono input
// is duplicated to both channels; anything beyond 2 channels is downmixed
// by taking the first two.
type pullStreamer struct {
	channels int
	pull     PullFunc
	scratch  []float32
}

func (p *pullStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	frames := len(samples)
	need := frames * p.channels
	if cap(p.scratch) < need {
		p.scratch = make([]float32, need)
	}
	buf := p.scratch[:need]
	p.pull(buf, frames, p.channels)

	for i := 0; i < frames; i++ {
		l := float64(buf[i*p.channels])
		r := l
		if p.channels > 1 {
			r = float64(buf[i*p.channels+1])
		}
		samples[i][0] = l
		samples[i][1] = r
	}
	return frames, true
}

func (p *pullStreamer) Err() error { return nil }
