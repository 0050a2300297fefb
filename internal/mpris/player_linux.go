//go:build linux

// Package mpris exports the Command Surface over the freedesktop MPRIS
// media-control bus (spec §6 "Media-control (desktop-bus) interface").
// Grounded on go-musicfox's internal/remote_control package: the same
// object layout (MediaPlayer2 + MediaPlayer2.Player at one path),
// introspection tree, and property-change dispatch, generalized from
// go-musicfox's bespoke PlayingInfo to tapedeck's Mixer/Playlist pair.
package mpris

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/pkg/errors"

	"github.com/tapedeck/tapedeck/internal/types"
)

// Controller is the non-owning surface mpris drives; satisfied by
// *command.Surface plus a couple of read accessors the bus needs that
// the bare command surface doesn't expose (current track info, rate).
// Kept as a narrow interface so this package never imports command or
// mixer directly, avoiding an import cycle back into the UI layer.
type Controller interface {
	TogglePause()
	SelectNext() bool
	SelectPrev() bool
	SeekOff(deltaMs int64)
	SetVolume(v float64)
}

// Snapshot is what the bus needs to render PlaybackStatus/Metadata/
// Position/Rate; the caller (cmd/tapedeck) builds one on every
// property-change notification from Mixer + Playlist state.
type Snapshot struct {
	State       types.State
	RepeatMode  types.RepeatMode
	Volume      float64
	PositionMs  int64
	TotalMs     int64
	Rate        float64
	TrackIndex  int64
	Title       string
	Album       string
	Artist      string
}

const maxNameAttempts = 50

// Player owns the D-Bus connection and the exported MPRIS objects. Build
// with New; call Close when the pipeline shuts down (spec §9 "Shutdown
// order": the media-control side is unblocked and released last).
type Player struct {
	ctrl Controller
	name string

	conn  *dbus.Conn
	props *prop.Properties
}

// New registers a bus name of the form
// org.mpris.MediaPlayer2.<suffix>_<n>, incrementing n until registration
// succeeds or maxNameAttempts is exhausted (spec §6). Returns (nil, err)
// if no session bus is available; callers should continue without
// media-control per spec §7's "Bus registration fail" policy rather than
// treat this as fatal.
func New(suffix string, ctrl Controller, initial Snapshot) (*Player, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, errors.Wrap(err, "mpris: no session bus")
	}

	p := &Player{ctrl: ctrl, conn: conn}

	name := ""
	for n := 0; n < maxNameAttempts; n++ {
		candidate := fmt.Sprintf("org.mpris.MediaPlayer2.%s_%d", suffix, n)
		reply, err := conn.RequestName(candidate, dbus.NameFlagDoNotQueue)
		if err != nil {
			continue
		}
		if reply == dbus.RequestNameReplyPrimaryOwner {
			name = candidate
			break
		}
	}
	if name == "" {
		_ = conn.Close()
		return nil, errors.New("mpris: exhausted bus name attempts")
	}
	p.name = name

	root := &mediaPlayer2{Player: p}
	_ = conn.Export(root, "/org/mpris/MediaPlayer2", "org.mpris.MediaPlayer2")

	player := &playerIface{Player: p}
	_ = conn.Export(player, "/org/mpris/MediaPlayer2", "org.mpris.MediaPlayer2.Player")

	_ = conn.Export(introspect.NewIntrospectable(introspectNode(p.name)), "/org/mpris/MediaPlayer2", "org.freedesktop.DBus.Introspectable")

	p.props, err = prop.Export(conn, "/org/mpris/MediaPlayer2", map[string]map[string]*prop.Prop{
		"org.mpris.MediaPlayer2":        root.properties(),
		"org.mpris.MediaPlayer2.Player": player.properties(initial),
	})
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "mpris: property export failed")
	}

	return p, nil
}

// Notify pushes a fresh snapshot's PlaybackStatus/LoopStatus/Volume/
// Metadata/Position onto the bus. Runs the writes on their own goroutine,
// mirroring go-musicfox's SetPlayingInfo: godbus's prop.Properties
// already serializes concurrent Set calls internally, so dispatching
// here keeps a media-control callback (which may itself call back into
// the Command Surface and trigger another Notify) from ever blocking on
// its own notification.
func (p *Player) Notify(s Snapshot) {
	if p == nil || p.props == nil {
		return
	}
	go func() {
		status, err := playbackStatusFor(s.State)
		if err == nil {
			p.setProp("PlaybackStatus", status)
		}
		p.setProp("LoopStatus", loopStatusFor(s.RepeatMode))
		p.setProp("Rate", s.Rate)
		p.setProp("Volume", normalizeVolume(s.Volume))
		p.setProp("Metadata", metadataFor(s))
		p.setProp("Position", timeInUs(s.PositionMs))
	}()
}

func (p *Player) setProp(name string, value any) {
	if err := p.props.Set("org.mpris.MediaPlayer2.Player", name, dbus.MakeVariant(value)); err != nil {
		slog.Warn("mpris: property set failed", "property", name, "error", err)
	}
}

// Close releases the D-Bus connection. Idempotent.
func (p *Player) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Close()
}

// mediaPlayer2 implements org.mpris.MediaPlayer2 (spec §6: identity,
// empty URI/mime lists, CanQuit/CanRaise/HasTrackList all false since
// tapedeck has no remote-raise concept and no MPRIS track list object).
type mediaPlayer2 struct {
	*Player
}

func (m *mediaPlayer2) properties() map[string]*prop.Prop {
	return map[string]*prop.Prop{
		"CanQuit":             newProp(false, nil),
		"CanRaise":            newProp(false, nil),
		"HasTrackList":        newProp(false, nil),
		"Identity":            newProp(m.name, nil),
		"SupportedUriSchemes": newProp([]string{}, nil),
		"SupportedMimeTypes":  newProp([]string{}, nil),
	}
}

func (m *mediaPlayer2) Raise() *dbus.Error { return nil }
func (m *mediaPlayer2) Quit() *dbus.Error  { return nil }

// playerIface implements org.mpris.MediaPlayer2.Player, delegating every
// transport method straight to the Command Surface (spec §6's method
// table), exactly as go-musicfox's Player delegates to its Controller.
type playerIface struct {
	*Player
}

func (p *playerIface) properties(s Snapshot) map[string]*prop.Prop {
	status, _ := playbackStatusFor(s.State)
	return map[string]*prop.Prop{
		"PlaybackStatus": newProp(status, nil),
		"LoopStatus":     newProp(loopStatusFor(s.RepeatMode), nil),
		"Rate":           newProp(s.Rate, nil),
		"Shuffle":        newProp(false, notImplemented),
		"Metadata":       newProp(metadataFor(s), nil),
		"Volume":         newProp(normalizeVolume(s.Volume), p.onVolumeChanged),
		"Position": {
			Value:    timeInUs(s.PositionMs),
			Writable: false,
			Emit:     prop.EmitFalse,
		},
		"MinimumRate":   newProp(1.0, nil),
		"MaximumRate":   newProp(1.0, nil),
		"CanGoNext":     newProp(true, nil),
		"CanGoPrevious": newProp(true, nil),
		"CanPlay":       newProp(true, nil),
		"CanPause":      newProp(true, nil),
		"CanSeek":       newProp(true, nil),
		"CanControl":    newProp(true, nil),
	}
}

func notImplemented(*prop.Change) *dbus.Error {
	return dbus.MakeFailedError(errors.New("not implemented"))
}

func (p *playerIface) onVolumeChanged(c *prop.Change) *dbus.Error {
	v, ok := c.Value.(float64)
	if !ok {
		return dbus.MakeFailedError(errors.New("volume must be a double"))
	}
	p.ctrl.SetVolume(v * types.MaxVolume)
	return nil
}

func (p *playerIface) Next() *dbus.Error     { p.ctrl.SelectNext(); return nil }
func (p *playerIface) Previous() *dbus.Error { p.ctrl.SelectPrev(); return nil }
func (p *playerIface) Pause() *dbus.Error    { p.ctrl.TogglePause(); return nil }
func (p *playerIface) Play() *dbus.Error     { p.ctrl.TogglePause(); return nil }
func (p *playerIface) Stop() *dbus.Error     { p.ctrl.TogglePause(); return nil }
func (p *playerIface) PlayPause() *dbus.Error {
	p.ctrl.TogglePause()
	return nil
}

// Seek offsets playback by microseconds (spec §6's Seek(x)).
func (p *playerIface) Seek(offsetUs int64) *dbus.Error {
	p.ctrl.SeekOff(offsetUs / 1000)
	return nil
}

// SetPosition is accepted but ignored: it performs no absolute seek,
// whatever track id and position it is given.
func (p *playerIface) SetPosition(_ dbus.ObjectPath, _ int64) *dbus.Error {
	return nil
}

// OpenUri is accepted but ignored (spec §6).
func (p *playerIface) OpenUri(_ string) *dbus.Error { return nil }

func playbackStatusFor(s types.State) (string, error) {
	switch s {
	case types.Playing:
		return "Playing", nil
	case types.Paused:
		return "Paused", nil
	case types.Stopped:
		return "Paused", nil
	}
	return "", errors.Errorf("mpris: unknown playback state %d", s)
}

func loopStatusFor(m types.RepeatMode) string {
	switch m {
	case types.RepeatTrack:
		return "Track"
	case types.RepeatPlaylist:
		return "Playlist"
	default:
		return "None"
	}
}

// normalizeVolume maps tapedeck's canonical [0, MaxVolume] scale to the
// [0,1] fraction the bus always carries (spec §9's Open Question
// resolution: never expose the raw [0, MaxVolume] units or a [0,100]
// scale over MPRIS).
func normalizeVolume(v float64) float64 {
	if v < 0 {
		v = 0
	}
	return v / types.MaxVolume
}

func timeInUs(ms int64) int64 { return ms * 1000 }

func metadataFor(s Snapshot) map[string]dbus.Variant {
	m := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(dbus.ObjectPath(fmt.Sprintf("/%x", s.TrackIndex))),
		"mpris:length":  dbus.MakeVariant(s.TotalMs * 1000),
	}
	if s.Title != "" {
		m["xesam:title"] = dbus.MakeVariant(s.Title)
	}
	if s.Album != "" {
		m["xesam:album"] = dbus.MakeVariant(s.Album)
	}
	if s.Artist != "" {
		m["xesam:artist"] = dbus.MakeVariant([]string{s.Artist})
	}
	return m
}

func newProp(value any, cb func(*prop.Change) *dbus.Error) *prop.Prop {
	return &prop.Prop{
		Value:    value,
		Writable: cb != nil,
		Emit:     prop.EmitTrue,
		Callback: cb,
	}
}

func introspectNode(name string) *introspect.Node {
	return &introspect.Node{
		Name: name,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: "org.mpris.MediaPlayer2",
				Properties: []introspect.Property{
					{Name: "CanQuit", Type: "b", Access: "read"},
					{Name: "CanRaise", Type: "b", Access: "read"},
					{Name: "HasTrackList", Type: "b", Access: "read"},
					{Name: "Identity", Type: "s", Access: "read"},
					{Name: "SupportedUriSchemes", Type: "as", Access: "read"},
					{Name: "SupportedMimeTypes", Type: "as", Access: "read"},
				},
				Methods: []introspect.Method{{Name: "Raise"}, {Name: "Quit"}},
			},
			{
				Name: "org.mpris.MediaPlayer2.Player",
				Properties: []introspect.Property{
					{Name: "PlaybackStatus", Type: "s", Access: "read"},
					{Name: "LoopStatus", Type: "s", Access: "readwrite"},
					{Name: "Rate", Type: "d", Access: "read"},
					{Name: "Shuffle", Type: "b", Access: "readwrite"},
					{Name: "Metadata", Type: "a{sv}", Access: "read"},
					{Name: "Volume", Type: "d", Access: "readwrite"},
					{Name: "Position", Type: "x", Access: "read"},
					{Name: "MinimumRate", Type: "d", Access: "read"},
					{Name: "MaximumRate", Type: "d", Access: "read"},
					{Name: "CanGoNext", Type: "b", Access: "read"},
					{Name: "CanGoPrevious", Type: "b", Access: "read"},
					{Name: "CanPlay", Type: "b", Access: "read"},
					{Name: "CanPause", Type: "b", Access: "read"},
					{Name: "CanSeek", Type: "b", Access: "read"},
					{Name: "CanControl", Type: "b", Access: "read"},
				},
				Signals: []introspect.Signal{
					{Name: "Seeked", Args: []introspect.Arg{{Name: "Position", Type: "x"}}},
				},
				Methods: []introspect.Method{
					{Name: "Next"}, {Name: "Previous"}, {Name: "Pause"},
					{Name: "PlayPause"}, {Name: "Stop"}, {Name: "Play"},
					{Name: "Seek", Args: []introspect.Arg{{Name: "Offset", Type: "x", Direction: "in"}}},
					{Name: "SetPosition", Args: []introspect.Arg{
						{Name: "TrackId", Type: "o", Direction: "in"},
						{Name: "Position", Type: "x", Direction: "in"},
					}},
					{Name: "OpenUri", Args: []introspect.Arg{{Name: "Uri", Type: "s", Direction: "in"}}},
				},
			},
		},
	}
}
