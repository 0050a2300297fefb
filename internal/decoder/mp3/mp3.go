// Package mp3 implements the MP3 backend of the decoder.Decoder contract
// using a pure-Go decoder. The teacher's own pkg/decoders/mp3 wrapped
// github.com/drgolem/go-mpg123, a cgo binding never actually listed in the
// teacher's go.mod; this backend instead uses
// github.com/imcarsen/go-mp3, which the teacher's go.mod already pulls in
// (indirectly, via the build the mp3 package never shipped) and which
// needs no cgo.
package mp3

import (
	"encoding/binary"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/imcarsen/go-mp3"

	"github.com/tapedeck/tapedeck/internal/decoder"
	"github.com/tapedeck/tapedeck/internal/ringbuffer"
)

func init() {
	decoder.Register(func() decoder.Decoder { return &Decoder{} }, "mp3", "mp2")
}

const channels = 2 // go-mp3 always decodes to stereo 16-bit PCM.

// Decoder wraps go-mp3. All calls are serialized by mu, per spec §4.2.
type Decoder struct {
	mu sync.Mutex

	file *os.File
	dec  *mp3.Decoder
	path string
	rate int

	samplePos int64
	readBuf   []byte
	decodeBuf []float32
}

func (d *Decoder) Open(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return err
	}

	d.file = f
	d.dec = dec
	d.path = path
	d.rate = dec.SampleRate()
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
	d.dec = nil
	return err
}

func (d *Decoder) SampleRate() int   { return d.rate }
func (d *Decoder) ChannelCount() int { return channels }

func (d *Decoder) TotalSamples() int64 {
	if d.dec == nil {
		return 0
	}
	return d.dec.Length() / (channels * 2)
}

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
	return d.TotalSamples() * 1000 / int64(d.rate)
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
	if d.dec == nil {
		return errors.New("mp3: not open")
	}
	targetSample := ms * int64(d.rate) / 1000
	byteOffset := targetSample * channels * 2
	if _, err := d.dec.Seek(byteOffset, io.SeekStart); err != nil {
		return err
	}
	d.samplePos = targetSample
	return nil
}

// WriteToRingBuffer decodes 16-bit stereo PCM chunks, converts to
// interleaved float32, and pushes to buf until highWater or EOF.
func (d *Decoder) WriteToRingBuffer(buf *ringbuffer.RingBuffer, highWater uint64) decoder.WriteStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dec == nil {
		return decoder.StatusFail
	}

	const chunkSamples = 1024
	chunkBytes := chunkSamples * channels * 2
	if cap(d.readBuf) < chunkBytes {
		d.readBuf = make([]byte, chunkBytes)
	}

	for buf.Size() < highWater {
		n, err := io.ReadFull(d.dec, d.readBuf[:chunkBytes])
		if n == 0 {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return decoder.StatusEndOfFile
			}
			return decoder.StatusFail
		}

		samples := n / (channels * 2)
		if cap(d.decodeBuf) < samples*channels {
			d.decodeBuf = make([]float32, samples*channels)
		}
		out := d.decodeBuf[:samples*channels]
		for i := 0; i < samples*channels; i++ {
			v := int16(binary.LittleEndian.Uint16(d.readBuf[i*2 : i*2+2]))
			out[i] = float32(v) / 32768.0
		}
		buf.Push(out)
		d.samplePos += int64(samples)

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return decoder.StatusEndOfFile
		}
	}
	return decoder.StatusOK
}
