package mixer

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	"github.com/drgolem/go-portaudio/portaudio"
	soxr "github.com/zaf/resample"
)

// deviceFallbackRate is the rate portaudioSink retries at when the device
// refuses the track's native rate outright (spec's DOMAIN STACK wiring
// for zaf/resample: "some devices can't honor the rate, so resample in
// software instead").
const deviceFallbackRate = 48000

// portaudioSink drives PortAudio's callback-mode stream. It is the backend
// spec §4.4 describes as converting "float32 → int16 just before delivery
// (multiply by INT16_MAX, no dither)" — the go-portaudio binding this repo
// uses only exposes fixed-point sample formats (see the teacher's
// fileplayer.FilePlayer.initializeStream), so 16-bit is the natural choice
// here, same as the teacher's own default.
type portaudioSink struct {
	mu          sync.Mutex
	deviceIndex int
	channels    int
	rate        int
	stream      *portaudio.PaStream
	pull        PullFunc
	scratch     []float32
	pcm         []byte

	// Software-resample fallback, built lazily when the device rejects
	// rate at Start. outputRate is the rate actually opened with
	// PortAudio; it equals rate unless the resampler is active.
	outputRate  int
	resampler   *soxr.Resampler
	resampleOut bytes.Buffer
}

func newPortaudioSink(deviceIndex int) *portaudioSink {
	return &portaudioSink{deviceIndex: deviceIndex}
}

func (s *portaudioSink) Configure(rate, channels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		if err := s.stopLocked(); err != nil {
			return err
		}
		if err := s.closeLocked(); err != nil {
			return err
		}
	}

	s.rate = rate
	s.channels = channels
	s.resampler = nil
	s.resampleOut.Reset()
	return nil
}

func (s *portaudioSink) Start(pull PullFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pull = pull
	if s.stream != nil {
		return s.stream.StartStream()
	}

	s.outputRate = s.rate
	stream, err := s.openStreamLocked(s.rate)
	if err != nil {
		if s.rate == deviceFallbackRate {
			return fmt.Errorf("mixer: portaudio open: %w", err)
		}
		slog.Warn("mixer: device refused native rate, falling back to software resample",
			"native_rate", s.rate, "fallback_rate", deviceFallbackRate, "error", err)

		r, rerr := soxr.New(&s.resampleOut, float64(s.rate), float64(deviceFallbackRate), s.channels, soxr.I16, soxr.HighQ)
		if rerr != nil {
			return fmt.Errorf("mixer: building fallback resampler: %w", rerr)
		}
		s.resampler = r
		s.outputRate = deviceFallbackRate

		stream, err = s.openStreamLocked(deviceFallbackRate)
		if err != nil {
			return fmt.Errorf("mixer: portaudio open (fallback rate): %w", err)
		}
	}

	if err := stream.StartStream(); err != nil {
		return fmt.Errorf("mixer: portaudio start: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *portaudioSink) openStreamLocked(rate int) (*portaudio.PaStream, error) {
	stream := &portaudio.PaStream{
		OutputParameters: &portaudio.PaStreamParameters{
			DeviceIndex:  s.deviceIndex,
			ChannelCount: s.channels,
			SampleFormat: portaudio.SampleFmtInt16,
		},
		SampleRate: float64(rate),
	}
	if err := stream.OpenCallback(framesPerCallback, s.audioCallback); err != nil {
		return nil, err
	}
	return stream, nil
}

func (s *portaudioSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *portaudioSink) stopLocked() error {
	if s.stream == nil {
		return nil
	}
	return s.stream.StopStream()
}

func (s *portaudioSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *portaudioSink) closeLocked() error {
	if s.resampler != nil {
		_ = s.resampler.Close()
		s.resampler = nil
		s.resampleOut.Reset()
	}
	if s.stream == nil {
		return nil
	}
	err := s.stream.CloseCallback()
	s.stream = nil
	return err
}

// framesPerCallback mirrors the teacher's FilePlayer default buffer size.
const framesPerCallback = 512

const int16Max = 32767.0

// audioCallback runs on PortAudio's C-managed audio thread. It must not
// block, allocate on the steady-state path, or perform I/O (spec §4.4). The
// scratch buffer already carries gain-applied samples from pull; this
// function's only job is the float32 → int16 format conversion (and, on
// the fallback path, feeding the software resampler).
func (s *portaudioSink) audioCallback(
	input, output []byte,
	frameCount uint,
	timeInfo *portaudio.StreamCallbackTimeInfo,
	statusFlags portaudio.StreamCallbackFlags,
) portaudio.StreamCallbackResult {
	if s.resampler == nil {
		s.fillDirect(output, int(frameCount))
	} else {
		s.fillResampled(output, int(frameCount))
	}
	return portaudio.Continue
}

func (s *portaudioSink) pullInt16(frames int) []byte {
	need := frames * s.channels
	if cap(s.scratch) < need {
		s.scratch = make([]float32, need)
	}
	scratch := s.scratch[:need]

	if s.pull != nil {
		s.pull(scratch, frames, s.channels)
	} else {
		for i := range scratch {
			scratch[i] = 0
		}
	}

	if cap(s.pcm) < need*2 {
		s.pcm = make([]byte, need*2)
	}
	pcm := s.pcm[:need*2]
	for i, v := range scratch {
		sample := int16(v * int16Max)
		pcm[i*2] = byte(sample)
		pcm[i*2+1] = byte(sample >> 8)
	}
	return pcm
}

func (s *portaudioSink) fillDirect(output []byte, frames int) {
	copy(output, s.pullInt16(frames))
}

// fillResampled pulls enough native-rate frames to keep the resampler's
// output buffer ahead of what this callback needs, then drains exactly
// frameCount frames worth of resampled bytes into output. A handful of
// retries bounds the pull loop; any shortfall is zero-filled rather than
// risking blocking the audio thread.
func (s *portaudioSink) fillResampled(output []byte, frames int) {
	needBytes := frames * s.channels * 2

	for attempt := 0; attempt < 4 && s.resampleOut.Len() < needBytes; attempt++ {
		srcFrames := (frames*s.rate)/s.outputRate + 1
		_, _ = s.resampler.Write(s.pullInt16(srcFrames))
	}

	n, _ := s.resampleOut.Read(output[:min(needBytes, len(output))])
	for i := n; i < len(output); i++ {
		output[i] = 0
	}
}
