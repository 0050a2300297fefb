// Package playlist implements the Playlist Controller: an ordered track
// list with a two-stage visible/search index filter, cursor motion,
// selection, a bounded deduplicated error queue, and end-of-stream
// advancement driven by repeat mode. The end-of-stream switch mirrors the
// strategy go-musicfox's playmode_manager.go uses to dispatch on play
// mode, generalized to spec §4.5's three-mode table instead of
// go-musicfox's four.
package playlist

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tapedeck/tapedeck/internal/decoder"
	"github.com/tapedeck/tapedeck/internal/types"
)

const errorQueueCapacity = 16
const errorDedupeWindow = 5 * time.Second

// Track is an immutable filesystem path plus its basename (spec §3).
type Track struct {
	Path      string
	ShortName string
}

// Controller owns the playlist's tracks, index buffers, cursor, repeat
// mode, and error queue (spec §3 "Ownership": exclusively owned, never
// shared with the Mixer beyond the PlaylistSource interface it satisfies).
type Controller struct {
	mu sync.Mutex

	tracks []Track

	visible []int // sorted indices into tracks
	search  []int // sorted indices into tracks, subset of visible

	focused  int // index into visible
	selected int // index into tracks, -1 if nothing has ever played

	repeatMode types.RepeatMode

	query string

	errors []types.ErrorMessage

	metadata types.Metadata

	longestPathChars int

	endOfPlaylist bool
	running       bool
}

// New builds a Controller from a list of filesystem paths. Paths whose
// extension decoder.IsSupportedExt rejects are dropped silently, per
// spec §6.
func New(paths []string) *Controller {
	c := &Controller{
		selected: -1,
		running:  true,
	}
	for _, p := range paths {
		if !decoder.IsSupportedExt(p) {
			continue
		}
		short := filepath.Base(p)
		c.tracks = append(c.tracks, Track{Path: p, ShortName: short})
		if len(short) > c.longestPathChars {
			c.longestPathChars = len(short)
		}
	}
	c.resetIndices()
	return c
}

func (c *Controller) resetIndices() {
	c.visible = make([]int, len(c.tracks))
	for i := range c.tracks {
		c.visible[i] = i
	}
	c.search = append([]int(nil), c.visible...)
	c.focused = 0
}

// Len returns the total track count.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracks)
}

// LongestPathChars is cached for filter-buffer sizing (spec §3).
func (c *Controller) LongestPathChars() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.longestPathChars
}

// --- Filtering (spec §4.5 "Filtering") ---

// SetQuery applies a substring filter, case-insensitively, over the
// current visible indices, producing new search indices. An empty query
// restores search indices to all of visible.
func (c *Controller) SetQuery(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query = query

	if query == "" {
		c.search = append([]int(nil), c.visible...)
		return
	}

	upper := strings.ToUpper(query)
	matches := make([]int, 0, len(c.visible))
	for _, idx := range c.visible {
		if strings.Contains(strings.ToUpper(c.tracks[idx].ShortName), upper) {
			matches = append(matches, idx)
		}
	}
	c.search = matches
}

// CommitQuery copies search indices into visible indices, narrowing the
// working set for the next query (spec §4.5 "commit").
func (c *Controller) CommitQuery() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = append([]int(nil), c.search...)
	c.query = ""
	if c.focused >= len(c.visible) {
		c.focused = 0
	}
}

// ResetFilter restores visible indices to the full playlist.
func (c *Controller) ResetFilter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIndices()
}

// --- Cursor motion (spec §4.5 "Cursor motion") ---

// Focus clamps i to [0, |visible|-1] and sets it as the cursor.
func (c *Controller) Focus(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused = clamp(i, 0, len(c.visible)-1)
}

// FocusNext cycles the cursor forward, modulo |visible|.
func (c *Controller) FocusNext() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.visible) == 0 {
		return
	}
	c.focused = (c.focused + 1) % len(c.visible)
}

// FocusPrev cycles the cursor backward, modulo |visible|.
func (c *Controller) FocusPrev() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.visible) == 0 {
		return
	}
	c.focused = (c.focused - 1 + len(c.visible)) % len(c.visible)
}

// FocusUp moves the cursor back by n, clamping at 0.
func (c *Controller) FocusUp(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused = clamp(c.focused-n, 0, len(c.visible)-1)
}

// FocusDown moves the cursor forward by n, clamping at |visible|-1.
func (c *Controller) FocusDown(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused = clamp(c.focused+n, 0, len(c.visible)-1)
}

// FocusFirst snaps the cursor to the first visible entry.
func (c *Controller) FocusFirst() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused = 0
}

// FocusLast snaps the cursor to the last visible entry.
func (c *Controller) FocusLast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused = clamp(len(c.visible)-1, 0, len(c.visible)-1)
}

// FocusSelected finds the currently playing track's position in visible
// indices, restoring the full filter first if it was filtered out.
func (c *Controller) FocusSelected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focusSelectedLocked()
}

func (c *Controller) focusSelectedLocked() {
	if c.selected < 0 {
		return
	}
	pos := indexOf(c.visible, c.selected)
	if pos == -1 {
		c.resetIndices()
		pos = indexOf(c.visible, c.selected)
	}
	if pos != -1 {
		c.focused = pos
	}
}

// FocusSelectedAtCenter is FocusSelected plus a hint the UI collaborator
// uses to center the selection; the centering offset itself is a
// rendering concern and lives in internal/ui.
func (c *Controller) FocusSelectedAtCenter() {
	c.FocusSelected()
}

// --- Selection (spec §4.5 "Selection") ---

// VisibleTracks returns a snapshot of the visible set (the cursor's
// reference frame; narrowed to search matches only once CommitQuery
// runs) for rendering, along with the cursor's position within it.
func (c *Controller) VisibleTracks() ([]Track, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tracks := make([]Track, len(c.visible))
	for i, idx := range c.visible {
		tracks[i] = c.tracks[idx]
	}
	return tracks, c.focused
}

// SelectedPath returns the path of the currently selected (playing)
// track, for rendering a "now playing" marker against VisibleTracks.
func (c *Controller) SelectedPath() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected < 0 || c.selected >= len(c.tracks) {
		return "", false
	}
	return c.tracks[c.selected].Path, true
}

// SelectedIndex returns the selected track's position among all tracks,
// used as the stable id media-control metadata embeds.
func (c *Controller) SelectedIndex() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected < 0 || c.selected >= len(c.tracks) {
		return 0, false
	}
	return c.selected, true
}

// FocusedTrack returns the track currently under the cursor, if any.
func (c *Controller) FocusedTrack() (Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.focused < 0 || c.focused >= len(c.visible) {
		return Track{}, false
	}
	return c.tracks[c.visible[c.focused]], true
}

// SelectFocused maps the cursor to a track index and marks it selected.
// The caller (Command Surface) is responsible for calling Mixer.Play with
// the returned path.
func (c *Controller) SelectFocused() (Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.focused < 0 || c.focused >= len(c.visible) {
		return Track{}, false
	}
	idx := c.visible[c.focused]
	c.selected = idx
	return c.tracks[idx], true
}

// workingSet returns search indices if a query has narrowed them, else
// visible indices (spec §4.5 "select_next/prev").
func (c *Controller) workingSet() []int {
	if c.query != "" {
		return c.search
	}
	return c.visible
}

// SelectNext marks the next track in the working set selected and returns
// it; the caller plays it.
func (c *Controller) SelectNext() (Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.workingSet()
	if len(set) == 0 {
		return Track{}, false
	}
	pos := indexOf(set, c.selected)
	next := 0
	if pos != -1 {
		next = (pos + 1) % len(set)
	}
	idx := set[next]
	c.selected = idx
	return c.tracks[idx], true
}

// SelectPrev marks the previous track in the working set selected and
// returns it; the caller plays it.
func (c *Controller) SelectPrev() (Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.workingSet()
	if len(set) == 0 {
		return Track{}, false
	}
	pos := indexOf(set, c.selected)
	prev := len(set) - 1
	if pos != -1 {
		prev = (pos - 1 + len(set)) % len(set)
	}
	idx := set[prev]
	c.selected = idx
	return c.tracks[idx], true
}

// --- Repeat mode (spec §4.5 "Repeat cycling") ---

// CycleRepeatMode rotates None -> Track -> Playlist -> None, or the
// reverse, and returns the new mode for the caller to notify MPRIS with.
func (c *Controller) CycleRepeatMode(forward bool) types.RepeatMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repeatMode = c.repeatMode.Next(forward)
	return c.repeatMode
}

// RepeatMode returns the current repeat policy.
func (c *Controller) RepeatMode() types.RepeatMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repeatMode
}

// EndOfPlaylist reports whether repeat_mode=None advancement reached the
// last track (spec §13 Open Question resolution #2).
func (c *Controller) EndOfPlaylist() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endOfPlaylist
}

// Running reports whether the pipeline should keep going; false once
// repeat_mode=None advancement has run past the last visible track or
// found no visible track at all.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// NextOnEnd implements the spec §4.5 end-of-stream advancement table,
// dispatched by repeat mode exactly like go-musicfox's GetNextSong
// switches on play mode. It satisfies mixer.PlaylistSource.
func (c *Controller) NextOnEnd() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.repeatMode {
	case types.RepeatTrack:
		return c.trackPathLocked(c.selected)
	case types.RepeatPlaylist:
		return c.advanceWrappingLocked()
	default: // types.RepeatNone
		return c.advanceOrEndLocked()
	}
}

func (c *Controller) trackPathLocked(idx int) (string, bool) {
	if idx < 0 || idx >= len(c.tracks) {
		return "", false
	}
	return c.tracks[idx].Path, true
}

func (c *Controller) advanceWrappingLocked() (string, bool) {
	if len(c.visible) == 0 {
		return "", false
	}
	pos := indexOf(c.visible, c.selected)
	next := 0
	if pos != -1 {
		next = (pos + 1) % len(c.visible)
	}
	idx := c.visible[next]
	c.selected = idx
	return c.tracks[idx].Path, true
}

func (c *Controller) advanceOrEndLocked() (string, bool) {
	if len(c.visible) == 0 {
		c.running = false
		return "", false
	}
	pos := indexOf(c.visible, c.selected)
	if pos == -1 || pos >= len(c.visible)-1 {
		c.endOfPlaylist = true
		c.running = false
		return "", false
	}
	idx := c.visible[pos+1]
	c.selected = idx
	return c.tracks[idx].Path, true
}

// --- Metadata snapshot (spec §3, §9) ---

// SetMetadata records the current track's metadata snapshot, refreshed
// once per play() call by the caller.
func (c *Controller) SetMetadata(m types.Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata = m
}

// Metadata returns the current track's cached metadata.
func (c *Controller) Metadata() types.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadata
}

// --- Error-resilient playback (spec §4.5 "Error-resilient playback") ---

// PushError adds an error message to the bounded queue, deduplicating
// against the most recent identical message within its display duration.
// If the queue is at capacity, the oldest entry is dropped.
func (c *Controller) PushError(kind types.ErrorKind, text string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := len(c.errors); n > 0 {
		last := c.errors[n-1]
		if last.Kind == kind && last.Text == text && now.Sub(last.Created) < errorDedupeWindow {
			return
		}
	}

	msg := types.ErrorMessage{Kind: kind, Text: text, Duration: errorDedupeWindow, Created: now}
	c.errors = append(c.errors, msg)
	if len(c.errors) > errorQueueCapacity {
		c.errors = c.errors[len(c.errors)-errorQueueCapacity:]
	}
}

// Errors returns a copy of the current error queue.
func (c *Controller) Errors() []types.ErrorMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.ErrorMessage(nil), c.errors...)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func indexOf(sorted []int, v int) int {
	i := sort.SearchInts(sorted, v)
	if i < len(sorted) && sorted[i] == v {
		return i
	}
	return -1
}
