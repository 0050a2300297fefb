// Package wav implements the WAV backend of the decoder.Decoder contract,
// adapted from the teacher's pkg/decoders/wav but converting every sample
// to float32 and growing a full seek/metadata/ring-buffer-fill contract
// around the bare DecodeSamples call the teacher exposed.
package wav

import (
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"

	gowav "github.com/youpy/go-wav"

	"github.com/tapedeck/tapedeck/internal/decoder"
	"github.com/tapedeck/tapedeck/internal/ringbuffer"
)

func init() {
	decoder.Register(func() decoder.Decoder { return &Decoder{} }, "wav")
}

// Decoder wraps go-wav for PCM decoding into the ring buffer's float32
// format. All calls are serialized by mu, per spec §4.2.
type Decoder struct {
	mu sync.Mutex

	file     *os.File
	reader   *gowav.Reader
	path     string
	rate     int
	channels int
	bps      int

	samplePos    int64
	totalSamples int64
	decodeBuf    []float32
}

func (d *Decoder) Open(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	reader := gowav.NewReader(f)
	format, err := reader.Format()
	if err != nil {
		f.Close()
		return err
	}
	if format.AudioFormat != gowav.AudioFormatPCM {
		f.Close()
		return errors.New("wav: only PCM is supported")
	}

	d.file = f
	d.reader = reader
	d.path = path
	d.rate = int(format.SampleRate)
	d.channels = int(format.NumChannels)
	d.bps = int(format.BitsPerSample)

	info, statErr := f.Stat()
	if statErr == nil && d.bps > 0 && d.channels > 0 {
		bytesPerFrame := int64(d.channels * d.bps / 8)
		// 44-byte canonical header; close enough for a progress estimate.
		dataBytes := info.Size() - 44
		if dataBytes > 0 && bytesPerFrame > 0 {
			d.totalSamples = dataBytes / bytesPerFrame
		}
	}
	return nil
}

func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.reader = nil
	return err
}

func (d *Decoder) SampleRate() int      { return d.rate }
func (d *Decoder) ChannelCount() int    { return d.channels }
func (d *Decoder) TotalSamples() int64  { return d.totalSamples }
func (d *Decoder) CurrentSamplePos() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.samplePos
}

func (d *Decoder) CurrentMs() int64 {
	if d.rate == 0 {
		return 0
	}
	return d.CurrentSamplePos() * 1000 / int64(d.rate)
}

func (d *Decoder) TotalMs() int64 {
	if d.rate == 0 {
		return 0
	}
	return d.totalSamples * 1000 / int64(d.rate)
}

func (d *Decoder) Metadata(key string) string {
	if key == "title" {
		return filepath.Base(d.path)
	}
	return ""
}

func (d *Decoder) CoverImage() (image.Image, bool) { return nil, false }

func (d *Decoder) SeekMs(ms int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return errors.New("wav: not open")
	}
	targetSample := ms * int64(d.rate) / 1000
	bytesPerFrame := int64(d.channels * d.bps / 8)
	offset := int64(44) + targetSample*bytesPerFrame
	if _, err := d.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	d.reader = gowav.NewReader(d.file)
	d.samplePos = targetSample
	return nil
}

// WriteToRingBuffer decodes frames and pushes float32 samples until buf
// reaches highWater or the file ends (spec §4.2).
func (d *Decoder) WriteToRingBuffer(buf *ringbuffer.RingBuffer, highWater uint64) decoder.WriteStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reader == nil {
		return decoder.StatusFail
	}

	const chunkFrames = 1024
	maxScale := float32(int64(1) << uint(d.bps-1))

	for buf.Size() < highWater {
		samples, err := d.reader.ReadSamples(chunkFrames)
		if len(samples) == 0 {
			if errors.Is(err, io.EOF) || err == nil {
				return decoder.StatusEndOfFile
			}
			return decoder.StatusFail
		}

		if cap(d.decodeBuf) < len(samples)*d.channels {
			d.decodeBuf = make([]float32, len(samples)*d.channels)
		}
		out := d.decodeBuf[:len(samples)*d.channels]
		for i, s := range samples {
			for ch := 0; ch < d.channels; ch++ {
				var v int
				if ch < len(s.Values) {
					v = s.Values[ch]
				}
				out[i*d.channels+ch] = float32(v) / maxScale
			}
		}
		buf.Push(out)
		d.samplePos += int64(len(samples))

		if errors.Is(err, io.EOF) {
			return decoder.StatusEndOfFile
		}
	}
	return decoder.StatusOK
}
