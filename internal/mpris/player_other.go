//go:build !linux

// Package mpris has no media-control bus to export outside Linux; New
// always fails so callers fall back to running without it, per spec §7's
// "Bus registration fail" policy.
package mpris

import (
	"errors"

	"github.com/tapedeck/tapedeck/internal/types"
)

// Controller mirrors the linux build's interface so cmd/tapedeck can
// depend on this package unconditionally.
type Controller interface {
	TogglePause()
	SelectNext() bool
	SelectPrev() bool
	SeekOff(deltaMs int64)
	SetVolume(v float64)
}

// Snapshot mirrors the linux build's Snapshot.
type Snapshot struct {
	State      types.State
	RepeatMode types.RepeatMode
	Volume     float64
	PositionMs int64
	TotalMs    int64
	Rate       float64
	TrackIndex int64
	Title      string
	Album      string
	Artist     string
}

// Player is always nil on non-Linux builds; its methods are nil-receiver
// safe so callers don't need a build-tagged call site.
type Player struct{}

// New always returns an error: there is no session-bus media-control
// surface outside Linux.
func New(suffix string, ctrl Controller, initial Snapshot) (*Player, error) {
	return nil, errors.New("mpris: not supported on this platform")
}

func (p *Player) Notify(s Snapshot) {}
func (p *Player) Close()            {}
