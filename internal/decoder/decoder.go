// Package decoder defines the pluggable media-decoder backend contract
// (spec §4.2). Concrete backends (flac, mp3, wav, opus, vorbis) live in
// sibling packages and are wired together by Open, which picks one by file
// extension.
package decoder

import (
	"errors"
	"image"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tapedeck/tapedeck/internal/ringbuffer"
	"github.com/tapedeck/tapedeck/internal/types"
)

// WriteStatus is the result of a WriteToRingBuffer call.
type WriteStatus int

const (
	StatusOK WriteStatus = iota
	StatusEndOfFile
	StatusFail
)

// ErrUnsupportedExt is returned by Open when no backend claims the file's
// extension. Per spec §6, unrecognized extensions are silently skipped by
// the playlist loader, not treated as a hard error here.
var ErrUnsupportedExt = errors.New("decoder: unsupported file extension")

// HighWaterFrac and LowWaterFrac are the decoder worker's refill
// thresholds, expressed as a fraction of ring buffer capacity (spec §4.3,
// GLOSSARY "Ring buffer high/low water").
const (
	HighWaterFrac = 0.75
	LowWaterFrac  = 0.25
)

// Decoder is the polymorphic interface every backend implements. All
// calls made by the decoder worker are serialized with Mixer's seek/close
// by the single mutex each concrete backend embeds (spec §4.2).
type Decoder interface {
	// Open allocates resources, parses the header, locates the best audio
	// stream, and prepares output at the stream's native sample rate.
	Open(path string) error
	// Close releases all resources. Idempotent.
	Close() error

	SampleRate() int
	ChannelCount() int
	TotalSamples() int64
	CurrentSamplePos() int64
	CurrentMs() int64
	TotalMs() int64

	// Metadata returns "title", "album", or "artist"; empty string if absent.
	Metadata(key string) string
	// CoverImage returns an embedded cover image if the backend exposes one
	// cheaply; (nil, false) otherwise. Out of the core's critical path.
	CoverImage() (image.Image, bool)

	// SeekMs jumps to the nearest frame boundary at or after ms. The
	// caller (Mixer) is responsible for flushing the ring buffer before
	// and after, per spec §4.2 and §4.4.
	SeekMs(ms int64) error

	// WriteToRingBuffer pulls frames from the codec, converts to
	// interleaved float32, and pushes to buf until buf reaches the high
	// water mark or the stream ends.
	WriteToRingBuffer(buf *ringbuffer.RingBuffer, highWater uint64) WriteStatus
}

// Factory maps a file extension (without the leading dot, lowercase) to a
// constructor for a fresh, unopened Decoder.
type Factory func() Decoder

var registry = map[string]Factory{}
var registryMu sync.Mutex

// Register adds a backend constructor for the given extensions (without
// leading dots). Called from each backend package's init().
func Register(factory Factory, exts ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, e := range exts {
		registry[strings.ToLower(e)] = factory
	}
}

// AllExtensions is the fixed list of extensions tapedeck accepts (spec §6),
// whether or not this build registers a backend for them; a file whose
// extension has no backend passes the playlist loader's filter and fails
// at Open. Kept here for the CLI/playlist path-filter.
var AllExtensions = []string{
	"mp2", "mp3", "mp4", "m4a", "m4b", "fla", "flac", "ogg", "opus",
	"umx", "s3m", "wav", "caf", "aif", "webm", "mkv",
}

// Open picks a backend by path's extension, constructs it, and opens path.
func Open(path string) (Decoder, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	registryMu.Lock()
	factory, ok := registry[ext]
	registryMu.Unlock()
	if !ok {
		return nil, ErrUnsupportedExt
	}
	d := factory()
	if err := d.Open(path); err != nil {
		return nil, err
	}
	return d, nil
}

// IsSupportedExt reports whether path's extension is one tapedeck's
// playlist loader will keep (spec §6's accepted-extension list), whether
// or not a backend is actually registered for it in this build.
func IsSupportedExt(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range AllExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// MetadataSnapshot reads the three tags the playlist controller caches
// per spec §3 and §9.
func MetadataSnapshot(d Decoder) types.Metadata {
	return types.Metadata{
		Title:  d.Metadata("title"),
		Album:  d.Metadata("album"),
		Artist: d.Metadata("artist"),
	}
}
