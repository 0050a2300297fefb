// Package mixer owns the platform audio sink and the pull-style real-time
// callback that drains the ring buffer, applies volume/mute, and exposes
// the play/pause/seek/rate/volume command set. Adapted from the producer
// half of the teacher's pkg/audioplayer.Player and internal/fileplayer;
// the sink side is generalized to the polymorphic Sink interface so the
// same state machine drives PortAudio, beep, or nothing at all.
package mixer

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tapedeck/tapedeck/internal/decoder"
	"github.com/tapedeck/tapedeck/internal/decoderworker"
	"github.com/tapedeck/tapedeck/internal/ringbuffer"
	"github.com/tapedeck/tapedeck/internal/types"
)

// MinSampleRate and MaxSampleRate bound change_sample_rate's clamp
// (spec §4.4). 8kHz is the floor most backends tolerate; 192kHz the
// ceiling PortAudio and beep's resampler both handle cleanly.
const (
	MinSampleRate = 8000
	MaxSampleRate = 192000
)

// Backend selects which Sink implementation Start constructs.
type Backend int

const (
	BackendPortAudio Backend = iota
	BackendBeep
	BackendNull
)

// Notifier receives playback-state change events for the media-control
// layer (spec §6). All methods must return quickly; callers are the
// pipeline's own goroutines, never the audio callback.
type Notifier interface {
	NotifyPlay(path string)
	NotifyPause(paused bool)
	NotifySeek(ms int64)
	NotifyVolume(v float64)
	NotifyMute(muted bool)
}

// PlaylistSource is the non-owning reference the Command Surface and
// Mixer use to ask the Playlist Controller what plays next (spec §3
// "Ownership"). Implemented by *playlist.Controller.
type PlaylistSource interface {
	NextOnEnd() (path string, ok bool)
	PushError(kind types.ErrorKind, text string, now time.Time)
	Len() int
}

// pipelineState mirrors spec §4.4's "state machine of the pipeline".
type pipelineState int

const (
	stateIdle pipelineState = iota
	statePlaying
	statePaused
	stateDraining
	stateEnded
)

// Mixer is the sole owner of the ring buffer, decoder worker, and current
// decoder (spec §3 "Ownership").
type Mixer struct {
	buf    *ringbuffer.RingBuffer
	worker *decoderworker.Worker
	sink   Sink

	notifier Notifier
	playlist PlaylistSource

	decMu         sync.Mutex
	dec           decoder.Decoder
	decoderActive atomic.Bool
	songEnded     atomic.Bool
	paused        atomic.Bool
	running       atomic.Bool
	muted         atomic.Bool

	volMu  sync.Mutex
	volume float64

	stateMu sync.Mutex
	state   pipelineState

	nominalRate int32
	activeRate  int32
	channels    int32

	samplePos    atomic.Int64
	totalSamples atomic.Int64

	path string
}

// New constructs a Mixer over a ring buffer of the given capacity (rounded
// up to a power of two by ringbuffer.New) and the requested sink backend.
func New(ringCapacity uint64, backend Backend, portaudioDevice int, notifier Notifier, playlist PlaylistSource) *Mixer {
	m := &Mixer{
		notifier: notifier,
		playlist: playlist,
		volume:   1.0,
	}
	m.buf = ringbuffer.New(ringCapacity)
	m.worker = decoderworker.New(m.buf, m.onDecoderEnd)

	switch backend {
	case BackendPortAudio:
		m.sink = newPortaudioSink(portaudioDevice)
	case BackendBeep:
		m.sink = newBeepSink()
	default:
		m.sink = newNullSink()
	}
	return m
}

// Start spawns the decoder worker (spec §4.4 "start()"); the ring buffer
// and sink are already built by New.
func (m *Mixer) Start() {
	m.running.Store(true)
	m.worker.Start()
}

// Destroy stops the worker, the sink, and releases resources (spec §4.4
// "destroy()"). Idempotent.
func (m *Mixer) Destroy() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.worker.Stop()
	_ = m.sink.Stop()
	_ = m.sink.Close()

	m.decMu.Lock()
	if m.dec != nil {
		m.dec.Close()
		m.dec = nil
	}
	m.decMu.Unlock()
}

// pull is the real-time callback every Sink drives. It applies
// gain = muted ? 0 : volume^3 and never blocks beyond the ring buffer's
// own TryPop budget (spec §4.4 "real-time callback contract").
func (m *Mixer) pull(dest []float32, frames, channels int) {
	n := m.buf.TryPop(dest)
	m.samplePos.Add(int64(n))

	gain := m.gain()
	if gain == 1 {
		return
	}
	for i := range dest {
		dest[i] *= gain
	}
}

func (m *Mixer) gain() float32 {
	if m.muted.Load() {
		return 0
	}
	m.volMu.Lock()
	v := m.volume
	m.volMu.Unlock()
	g := v * v * v
	return float32(g)
}

// Play implements spec §4.4's play(path) operation.
func (m *Mixer) Play(path string) bool {
	m.Pause(true)

	m.decMu.Lock()
	if m.decoderActive.Load() {
		if m.dec != nil {
			m.dec.Close()
		}
		m.buf.Clear()
		m.samplePos.Store(0)
	}

	d, err := decoder.Open(path)
	if err != nil {
		m.decMu.Unlock()
		slog.Warn("mixer: failed to open track", "path", path, "error", err)
		return false
	}

	totalSamples := d.TotalSamples()
	rate := d.SampleRate()
	channels := d.ChannelCount()

	m.dec = d
	m.path = path
	m.decMu.Unlock()

	m.decoderActive.Store(true)
	m.songEnded.Store(false)
	m.totalSamples.Store(totalSamples)
	m.worker.LoadTrack(d)

	wasNominal := atomic.LoadInt32(&m.nominalRate)
	wasActive := atomic.LoadInt32(&m.activeRate)
	atomic.StoreInt32(&m.nominalRate, int32(rate))
	atomic.StoreInt32(&m.activeRate, int32(rate))
	atomic.StoreInt32(&m.channels, int32(channels))

	if err := m.sink.Configure(rate, channels); err != nil {
		slog.Warn("mixer: sink configure failed", "error", err)
	}

	if wasNominal != 0 && wasActive != 0 && wasActive != wasNominal {
		scale := float64(wasActive) / float64(wasNominal)
		m.ChangeSampleRate(int(float64(rate)*scale), false)
	}

	m.setState(statePlaying)
	m.Pause(false)

	if m.notifier != nil {
		m.notifier.NotifyPlay(path)
	}
	return true
}

// Pause implements spec §4.4's pause(bool); idempotent.
func (m *Mixer) Pause(pause bool) {
	if m.paused.Load() == pause {
		return
	}
	m.paused.Store(pause)
	if pause {
		_ = m.sink.Stop()
		m.setState(statePaused)
	} else {
		_ = m.sink.Start(m.pull)
		m.setState(statePlaying)
	}
	if m.notifier != nil {
		m.notifier.NotifyPause(pause)
	}
}

// SeekMs implements spec §4.4's seek_ms(ms).
func (m *Mixer) SeekMs(ms int64) {
	m.decMu.Lock()
	defer m.decMu.Unlock()

	if !m.decoderActive.Load() || m.dec == nil {
		return
	}

	totalMs := m.dec.TotalMs()
	if ms < 0 {
		ms = 0
	}
	if ms > totalMs {
		ms = totalMs
	}

	m.buf.Clear()
	m.buf.Wake()
	if err := m.dec.SeekMs(ms); err != nil {
		slog.Warn("mixer: seek failed", "error", err)
		return
	}

	rate := int64(atomic.LoadInt32(&m.activeRate))
	channels := int64(atomic.LoadInt32(&m.channels))
	m.samplePos.Store(ms * rate * channels / 1000)
	m.totalSamples.Store(m.dec.TotalSamples())

	if m.notifier != nil {
		m.notifier.NotifySeek(ms)
	}
}

// SeekOff implements spec §4.4's seek_off(delta_ms).
func (m *Mixer) SeekOff(deltaMs int64) {
	m.SeekMs(m.CurrentMs() + deltaMs)
}

// CurrentMs derives the current playback position from the sample
// counter and active rate.
func (m *Mixer) CurrentMs() int64 {
	rate := int64(atomic.LoadInt32(&m.activeRate))
	channels := int64(atomic.LoadInt32(&m.channels))
	if rate == 0 || channels == 0 {
		return 0
	}
	return m.samplePos.Load() * 1000 / (rate * channels)
}

// ChangeSampleRate implements spec §4.4's change_sample_rate(rate, save).
func (m *Mixer) ChangeSampleRate(rate int, save bool) {
	if rate < MinSampleRate {
		rate = MinSampleRate
	}
	if rate > MaxSampleRate {
		rate = MaxSampleRate
	}

	wasPaused := m.paused.Load()
	if !wasPaused {
		_ = m.sink.Stop()
	}

	channels := int(atomic.LoadInt32(&m.channels))
	if err := m.sink.Configure(rate, channels); err != nil {
		slog.Warn("mixer: change_sample_rate configure failed", "error", err)
	}
	atomic.StoreInt32(&m.activeRate, int32(rate))
	if save {
		atomic.StoreInt32(&m.nominalRate, int32(rate))
	}

	if !wasPaused {
		_ = m.sink.Start(m.pull)
	}
}

// RestoreSampleRate implements spec §4.4's restore_sample_rate().
func (m *Mixer) RestoreSampleRate() {
	nominal := atomic.LoadInt32(&m.nominalRate)
	m.ChangeSampleRate(int(nominal), false)
}

// SetVolume implements spec §4.4's set_volume(v); clamps to [0, MaxVolume].
func (m *Mixer) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > types.MaxVolume {
		v = types.MaxVolume
	}
	m.volMu.Lock()
	m.volume = v
	m.volMu.Unlock()
	if m.notifier != nil {
		m.notifier.NotifyVolume(v)
	}
}

// Volume returns the current volume.
func (m *Mixer) Volume() float64 {
	m.volMu.Lock()
	defer m.volMu.Unlock()
	return m.volume
}

// VolumeUp implements spec §4.4's volume_up(step).
func (m *Mixer) VolumeUp(step float64) { m.SetVolume(m.Volume() + step) }

// VolumeDown implements spec §4.4's volume_down(step).
func (m *Mixer) VolumeDown(step float64) { m.SetVolume(m.Volume() - step) }

// ToggleMute implements spec §4.4's toggle_mute().
func (m *Mixer) ToggleMute() {
	muted := !m.muted.Load()
	m.muted.Store(muted)
	if m.notifier != nil {
		m.notifier.NotifyMute(muted)
	}
}

// Muted reports the current mute flag.
func (m *Mixer) Muted() bool { return m.muted.Load() }

var errNoNextTrack = errors.New("mixer: no next track available")

// NextSongIfPrevEnded implements spec §4.4's next_song_if_prev_ended():
// atomically consumes song_ended and asks the playlist for the next
// selection. A candidate that fails to open is reported and skipped in
// favor of the next one per the repeat policy (spec §4.5 "Error-resilient
// playback"); if every candidate in one full pass fails, it gives up
// rather than spin forever on a playlist of nothing but broken files.
func (m *Mixer) NextSongIfPrevEnded() error {
	if !m.songEnded.CompareAndSwap(true, false) {
		return nil
	}
	if m.playlist == nil {
		return errNoNextTrack
	}

	path, ok := m.playlist.NextOnEnd()
	for attempts := 0; ok && attempts < m.playlist.Len(); attempts++ {
		if m.Play(path) {
			return nil
		}
		m.playlist.PushError(types.ErrKindOpenFailure, fmt.Sprintf("failed to open %q", path), time.Now())
		path, ok = m.playlist.NextOnEnd()
	}
	return errNoNextTrack
}

// onDecoderEnd is invoked by the decoder worker (off the audio thread)
// when the loaded decoder reaches end of stream.
func (m *Mixer) onDecoderEnd() {
	m.setState(stateDraining)
	m.songEnded.Store(true)
	m.setState(stateEnded)
}

func (m *Mixer) setState(s pipelineState) {
	m.stateMu.Lock()
	m.state = s
	m.stateMu.Unlock()
}

// State reports the mixer's coarse playback state for the UI layer.
func (m *Mixer) State() types.State {
	m.stateMu.Lock()
	s := m.state
	m.stateMu.Unlock()

	switch s {
	case statePlaying, stateDraining:
		return types.Playing
	case statePaused:
		return types.Paused
	default:
		return types.Stopped
	}
}

// NominalRate and ActiveRate expose the current rate pair for the UI and
// MPRIS layers.
func (m *Mixer) NominalRate() int { return int(atomic.LoadInt32(&m.nominalRate)) }
func (m *Mixer) ActiveRate() int  { return int(atomic.LoadInt32(&m.activeRate)) }

// TotalMs returns the current track's duration in milliseconds.
func (m *Mixer) TotalMs() int64 {
	rate := int64(atomic.LoadInt32(&m.nominalRate))
	if rate == 0 {
		return 0
	}
	return m.totalSamples.Load() * 1000 / rate
}

// PlaybackRatio reports speed scale relative to nominal, rounded to two
// decimals for the displayed "speed" indicator.
func (m *Mixer) PlaybackRatio() float64 {
	nominal := atomic.LoadInt32(&m.nominalRate)
	active := atomic.LoadInt32(&m.activeRate)
	if nominal == 0 {
		return 1
	}
	return math.Round(float64(active)/float64(nominal)*100) / 100
}
