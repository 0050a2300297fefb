// Package vorbis implements the Ogg/Vorbis backend of the decoder.Decoder
// contract using github.com/jfreymuth/oggvorbis, an indirect dependency of
// go-musicfox (it decodes .ogg there too) promoted to direct here. Unlike
// the other backends, oggvorbis.Reader already produces interleaved
// float32 samples, so no fixed-point-to-float conversion is needed.
package vorbis

import (
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jfreymuth/oggvorbis"

	"github.com/tapedeck/tapedeck/internal/decoder"
	"github.com/tapedeck/tapedeck/internal/ringbuffer"
)

func init() {
	decoder.Register(func() decoder.Decoder { return &Decoder{} }, "ogg")
}

// Decoder wraps oggvorbis.Reader. All calls are serialized by mu.
type Decoder struct {
	mu sync.Mutex

	file     *os.File
	reader   *oggvorbis.Reader
	path     string
	rate     int
	channels int

	samplePos int64
	decodeBuf []float32
}

func (d *Decoder) Open(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	r, err := oggvorbis.NewReader(f)
	if err != nil {
		f.Close()
		return err
	}

	d.file = f
	d.reader = r
	d.path = path
	d.rate = r.SampleRate()
	d.channels = r.Channels()
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

func (d *Decoder) SampleRate() int   { return d.rate }
func (d *Decoder) ChannelCount() int { return d.channels }

func (d *Decoder) TotalSamples() int64 {
	if d.reader == nil {
		return 0
	}
	return d.reader.Length() / int64(d.channels)
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
	if d.reader == nil {
		return errors.New("vorbis: not open")
	}
	target := ms * int64(d.rate) / 1000
	if err := d.reader.SetPosition(target * int64(d.channels)); err != nil {
		return err
	}
	d.samplePos = target
	return nil
}

// WriteToRingBuffer decodes interleaved float32 samples directly from the
// vorbis reader and pushes them to buf until highWater or end of stream.
func (d *Decoder) WriteToRingBuffer(buf *ringbuffer.RingBuffer, highWater uint64) decoder.WriteStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reader == nil {
		return decoder.StatusFail
	}

	const chunkSamples = 1024
	chunkLen := chunkSamples * d.channels
	if cap(d.decodeBuf) < chunkLen {
		d.decodeBuf = make([]float32, chunkLen)
	}

	for buf.Size() < highWater {
		n, err := d.reader.Read(d.decodeBuf[:chunkLen])
		if n > 0 {
			frames := n / d.channels
			buf.Push(d.decodeBuf[:frames*d.channels])
			d.samplePos += int64(frames)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return decoder.StatusEndOfFile
			}
			return decoder.StatusFail
		}
		if n == 0 {
			return decoder.StatusEndOfFile
		}
	}
	return decoder.StatusOK
}
