// Package opus implements the Opus backend of the decoder.Decoder contract
// using github.com/drgolem/go-opus, whose Open/DecodeSamples/GetFormat
// shape mirrors its sibling binding go-flac closely enough that the
// backend below follows the same structure as internal/decoder/flac.
package opus

import (
	"encoding/binary"
	"errors"
	"image"
	"path/filepath"
	"sync"

	goopus "github.com/drgolem/go-opus/opus"

	"github.com/tapedeck/tapedeck/internal/decoder"
	"github.com/tapedeck/tapedeck/internal/ringbuffer"
)

func init() {
	decoder.Register(func() decoder.Decoder { return &Decoder{} }, "opus")
}

const outputBits = 16

// Decoder wraps go-opus. All calls are serialized by mu, per spec §4.2.
type Decoder struct {
	mu sync.Mutex

	dec      *goopus.OpusDecoder
	path     string
	rate     int
	channels int
	bps      int

	samplePos    int64
	totalSamples int64
	readBuf      []byte
	decodeBuf    []float32
}

func (d *Decoder) Open(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openLocked(path)
}

func (d *Decoder) openLocked(path string) error {
	dec, err := goopus.NewOpusDecoder(outputBits)
	if err != nil {
		return err
	}
	if err := dec.Open(path); err != nil {
		dec.Delete()
		return err
	}
	rate, channels, bps := dec.GetFormat()

	d.dec = dec
	d.path = path
	d.rate = rate
	d.channels = channels
	d.bps = bps
	d.samplePos = 0
	return nil
}

func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *Decoder) closeLocked() error {
	if d.dec == nil {
		return nil
	}
	d.dec.Close()
	d.dec.Delete()
	d.dec = nil
	return nil
}

func (d *Decoder) SampleRate() int     { return d.rate }
func (d *Decoder) ChannelCount() int   { return d.channels }
func (d *Decoder) TotalSamples() int64 { return d.totalSamples }

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

// SeekMs reopens the stream and decodes-and-discards up to the target
// sample, since go-opus exposes no native seek either (mirrors flac).
func (d *Decoder) SeekMs(ms int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dec == nil {
		return errors.New("opus: not open")
	}

	target := ms * int64(d.rate) / 1000
	path := d.path
	d.closeLocked()
	if err := d.openLocked(path); err != nil {
		return err
	}

	const chunk = 4096
	bytesPerSample := d.bps / 8
	discard := make([]byte, chunk*d.channels*bytesPerSample)
	remaining := target
	for remaining > 0 {
		want := chunk
		if int64(want) > remaining {
			want = int(remaining)
		}
		n, err := d.dec.DecodeSamples(want, discard)
		if n == 0 || err != nil {
			break
		}
		remaining -= int64(n)
	}
	d.samplePos = target - remaining
	return nil
}

// WriteToRingBuffer decodes frames and pushes interleaved float32 samples
// until buf reaches highWater or the stream ends.
func (d *Decoder) WriteToRingBuffer(buf *ringbuffer.RingBuffer, highWater uint64) decoder.WriteStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dec == nil {
		return decoder.StatusFail
	}

	const chunkSamples = 1024
	bytesPerSample := d.bps / 8
	chunkBytes := chunkSamples * d.channels * bytesPerSample
	if cap(d.readBuf) < chunkBytes {
		d.readBuf = make([]byte, chunkBytes)
	}
	maxScale := float32(int64(1) << uint(d.bps-1))

	for buf.Size() < highWater {
		n, err := d.dec.DecodeSamples(chunkSamples, d.readBuf[:chunkBytes])
		if n == 0 {
			return decoder.StatusEndOfFile
		}

		if cap(d.decodeBuf) < n*d.channels {
			d.decodeBuf = make([]float32, n*d.channels)
		}
		out := d.decodeBuf[:n*d.channels]
		for i := 0; i < n*d.channels; i++ {
			var v int32
			switch bytesPerSample {
			case 2:
				v = int32(int16(binary.LittleEndian.Uint16(d.readBuf[i*2 : i*2+2])))
			case 4:
				v = int32(binary.LittleEndian.Uint32(d.readBuf[i*4 : i*4+4]))
			}
			out[i] = float32(v) / maxScale
		}
		buf.Push(out)
		d.samplePos += int64(n)

		if err != nil {
			return decoder.StatusEndOfFile
		}
	}
	return decoder.StatusOK
}
