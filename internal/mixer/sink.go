package mixer

// PullFunc supplies frames×channels interleaved float32 samples already
// scaled by gain, pulled from the ring buffer on the audio thread. It must
// never block beyond the ring buffer's own pop budget, allocate, or touch
// I/O — it runs on whichever thread the concrete Sink drives the real-time
// callback from (spec §4.4 "real-time callback contract").
type PullFunc func(dest []float32, frames, channels int)

// Sink is the polymorphic audio backend the Mixer drives. Exactly one of
// portaudioSink, beepSink, or nullSink is active at a time (spec §4.4:
// "four real sinks and one null sink" — this build carries two real
// backends, PortAudio and beep, plus null).
type Sink interface {
	// Configure sets the output format to rate/channels; a backend may
	// reopen its stream here or at the next Start. Whether rate is the
	// track's nominal rate or a speed-shifted one is tracked by the Mixer,
	// not passed to Configure.
	Configure(rate, channels int) error
	// Start begins pulling from pull via the backend's real-time path.
	Start(pull PullFunc) error
	// Stop halts the stream without releasing it; Start may be called
	// again with the same configuration.
	Stop() error
	// Close releases all backend resources. Idempotent.
	Close() error
}

// nullSink accepts every command and produces nothing, for headless runs
// and tests (spec §4.4 "Null sink: accepts commands, produces nothing").
type nullSink struct{}

func newNullSink() *nullSink { return &nullSink{} }

func (n *nullSink) Configure(rate, channels int) error { return nil }
func (n *nullSink) Start(pull PullFunc) error          { return nil }
func (n *nullSink) Stop() error                        { return nil }
func (n *nullSink) Close() error                       { return nil }
