// Package playlist implements the mutable, thread-safe playlist and cursor
// state machine that drives track selection for the broadcaster. It is the
// rendezvous point between the command front-end (any number of mutator
// goroutines) and the frame producer (a single reader goroutine).
package playlist

import (
	"log/slog"
	"sync"

	"github.com/orbitcast/broadcaster/internal/asset"
)

// CursorPolicy determines what happens to the cursor when a track finishes
// playing.
type CursorPolicy int

const (
	// PlayAndDelete removes the current asset from the playlist once it
	// has played.
	PlayAndDelete CursorPolicy = iota
	// PlayAndStop advances the cursor and stops (cursor becomes none) at
	// the end of the playlist.
	PlayAndStop
	// LoopPlaylist wraps the cursor back to the start of the playlist.
	LoopPlaylist
)

// String implements fmt.Stringer for log output.
func (p CursorPolicy) String() string {
	switch p {
	case PlayAndDelete:
		return "play_and_delete"
	case PlayAndStop:
		return "play_and_stop"
	case LoopPlaylist:
		return "loop_playlist"
	default:
		return "unknown"
	}
}

// VisualPolicy determines what image data accompanies the current track's
// audio.
type VisualPolicy int

const (
	// VideoContent streams the track's own decoded video.
	VideoContent VisualPolicy = iota
	// VideoThumbnail streams the track's thumbnail image as a still frame.
	VideoThumbnail
	// VideoPlaceholder streams the cached placeholder image as a still
	// frame.
	VideoPlaceholder
)

// String implements fmt.Stringer for log output.
func (v VisualPolicy) String() string {
	switch v {
	case VideoContent:
		return "video_content"
	case VideoThumbnail:
		return "video_thumbnail"
	case VideoPlaceholder:
		return "video_placeholder"
	default:
		return "unknown"
	}
}

// noCursor is the internal sentinel for "cursor is none". Playlist indices
// are never negative, so -1 is unambiguous.
const noCursor = -1

// Snapshot is a point-in-time, defensively-copied view of the playlist
// state, suitable for rendering a now_playing/playlist command reply.
type Snapshot struct {
	Assets       []*asset.MediaAsset
	Cursor       int // -1 means none
	CursorPolicy CursorPolicy
	VisualPolicy VisualPolicy
	IsPlaying    bool
}

// Playlist is the ordered sequence of MediaAsset plus cursor and policy
// state described in spec §3/§4.6. All methods acquire a single mutex;
// none hold it across I/O, since the only work done under lock is slice
// and integer bookkeeping.
type Playlist struct {
	log *slog.Logger

	mu           sync.Mutex
	assets       []*asset.MediaAsset
	cursor       int // noCursor when empty/none
	cursorPolicy CursorPolicy
	visualPolicy VisualPolicy
	isPlaying    bool
}

// New creates an empty Playlist with the given initial policies. Playback
// starts unpaused, matching the source player's default.
func New(cursorPolicy CursorPolicy, visualPolicy VisualPolicy) *Playlist {
	return &Playlist{
		log:          slog.With("component", "playlist"),
		cursor:       noCursor,
		cursorPolicy: cursorPolicy,
		visualPolicy: visualPolicy,
		isPlaying:    true,
	}
}

// setCursorLocked is the single cursor-setter used by every mutating
// method. The caller must hold mu. Semantics (spec §4.6):
//   - value == none, or the playlist is empty: cursor becomes none.
//   - under LoopPlaylist: cursor becomes value mod size.
//   - otherwise: cursor becomes value if in range, else none.
func (p *Playlist) setCursorLocked(value int) {
	size := len(p.assets)
	if size == 0 {
		p.cursor = noCursor
		return
	}

	if p.cursorPolicy == LoopPlaylist {
		p.cursor = ((value % size) + size) % size
		return
	}

	if value >= 0 && value < size {
		p.cursor = value
		return
	}
	p.cursor = noCursor
}

// Append pushes m onto the end of the playlist. If the cursor was none, it
// becomes 0 (invariant 2: empty-to-non-empty transition).
func (p *Playlist) Append(m *asset.MediaAsset) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.assets = append(p.assets, m)
	if p.cursor == noCursor {
		p.setCursorLocked(0)
	}
	p.log.Debug("asset appended", "size", len(p.assets), "cursor", p.cursor)
}

// Remove deletes the asset at index i, if in range, and adjusts the cursor
// per spec §4.6.
func (p *Playlist) Remove(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(i)
}

func (p *Playlist) removeLocked(i int) {
	if i < 0 || i >= len(p.assets) {
		return
	}

	p.assets = append(p.assets[:i], p.assets[i+1:]...)

	if p.cursor == noCursor {
		return
	}

	switch {
	case i < p.cursor:
		p.cursor--
	case i == p.cursor:
		if len(p.assets) == 0 {
			p.cursor = noCursor
		} else {
			p.cursor = min(p.cursor, len(p.assets)-1)
		}
	}
}

// Select moves the cursor to index i. Under PlayAndDelete, the current
// asset is deleted first; the range check that follows is against the raw,
// pre-renumbering i, not against i's renumbered target (open question
// §4.6/§9: an i that only falls back in range once renumbered is still
// rejected, leaving the cursor where it was before the call, or none if
// that value is now out of range — no error, this is deliberate, matching
// the source behavior verbatim). Under the other policies an out-of-range
// i wraps (LoopPlaylist) or makes the cursor none (PlayAndStop).
func (p *Playlist) Select(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selectLocked(i)
}

// Move relocates the asset at from to index to, sliding the cursor so it
// continues to reference the same asset, per spec §4.6. A no-op if either
// index is out of range or the cursor is currently none.
func (p *Playlist) Move(from, to int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	size := len(p.assets)
	if from < 0 || from >= size || to < 0 || to >= size || p.cursor == noCursor {
		return
	}

	item := p.assets[from]
	p.assets = append(p.assets[:from], p.assets[from+1:]...)
	p.assets = append(p.assets[:to], append([]*asset.MediaAsset{item}, p.assets[to:]...)...)

	switch {
	case from == p.cursor:
		p.cursor = to
	case from < p.cursor && p.cursor <= to:
		p.cursor--
	case to <= p.cursor && p.cursor < from:
		p.cursor++
	}
}

// Next advances the cursor by step, applying the same policy as Select.
func (p *Playlist) Next(step int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	base := 0
	if p.cursor != noCursor {
		base = p.cursor
	}
	p.selectLocked(base + step)
}

// Prev moves the cursor back by step, applying the same policy as Select.
func (p *Playlist) Prev(step int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	base := 0
	if p.cursor != noCursor {
		base = p.cursor
	}
	p.selectLocked(base - step)
}

// selectLocked is Select's body, usable when mu is already held (Next/Prev
// call through it to avoid re-entrant locking, per Design Notes: split the
// re-entrant source lock into _locked helpers).
//
// Under PlayAndDelete the current asset is spliced out directly — not via
// removeLocked, which applies remove()'s own cursor-adjustment rule and
// would diverge from the source here — leaving the cursor field exactly as
// it was. The range check that follows is against the raw, pre-renumbering
// i, matching original_source/app/deliver/player.py's
// `if 0 <= index < len(self._playlist): self.cursor = index + step` — not
// against i+step. When that check fails under PlayAndDelete, the cursor is
// left untouched except for the same lazy renormalization the source's
// `cursor` property getter performs on every read (none if now out of
// range, unchanged otherwise); setCursorLocked applied to the cursor's own
// current value reproduces that eagerly, since nothing else can observe it
// first while the mutex is held. This is the open-question §4.6/§9
// behavior: an i that renumbers back in range can still be rejected by the
// raw check. Under the other policies an out-of-range i is handed to
// setCursorLocked as is, so it wraps under LoopPlaylist and becomes none
// under PlayAndStop.
func (p *Playlist) selectLocked(i int) {
	step := 0
	if p.cursorPolicy == PlayAndDelete && p.cursor != noCursor {
		current := p.cursor
		p.assets = append(p.assets[:current], p.assets[current+1:]...)
		if i >= current {
			step = -1
		}
	}

	if i >= 0 && i < len(p.assets) {
		p.setCursorLocked(i + step)
	} else if p.cursorPolicy != PlayAndDelete {
		p.setCursorLocked(i)
	} else if p.cursor != noCursor {
		p.setCursorLocked(p.cursor)
	}
}

// GetCurrent returns the asset at cursor+step, wrapping modulo size under
// LoopPlaylist, or nil if out of range under any other policy or if the
// cursor is none.
func (p *Playlist) GetCurrent(step int) *asset.MediaAsset {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cursor == noCursor || len(p.assets) == 0 {
		return nil
	}

	idx := p.cursor + step
	size := len(p.assets)
	if idx < 0 || idx >= size {
		if p.cursorPolicy != LoopPlaylist {
			return nil
		}
		idx = ((idx % size) + size) % size
	}
	return p.assets[idx]
}

// Clear empties the playlist and resets the cursor to none.
func (p *Playlist) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assets = nil
	p.cursor = noCursor
}

// CursorPolicy returns the current cursor policy.
func (p *Playlist) CursorPolicy() CursorPolicy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursorPolicy
}

// SetCursorPolicy updates the cursor policy and renormalizes the cursor
// under the new policy (invariant 4: mutations are atomic with respect to
// cursor renormalization).
func (p *Playlist) SetCursorPolicy(mode CursorPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursorPolicy = mode
	if p.cursor != noCursor {
		p.setCursorLocked(p.cursor)
	}
}

// VisualPolicy returns the current visual policy.
func (p *Playlist) VisualPolicy() VisualPolicy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visualPolicy
}

// SetVisualPolicy updates the visual policy. Takes effect at the producer's
// next frame boundary (spec §5).
func (p *Playlist) SetVisualPolicy(mode VisualPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visualPolicy = mode
}

// IsPlaying returns whether playback is currently running (as opposed to
// paused).
func (p *Playlist) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isPlaying
}

// SetPlaying sets the play/pause flag. Takes effect at the producer's next
// frame boundary.
func (p *Playlist) SetPlaying(playing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isPlaying = playing
}

// Snapshot returns a defensive copy of the full playlist state, suitable
// for a now_playing/playlist command reply.
func (p *Playlist) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	assets := make([]*asset.MediaAsset, len(p.assets))
	copy(assets, p.assets)

	return Snapshot{
		Assets:       assets,
		Cursor:       p.cursor,
		CursorPolicy: p.cursorPolicy,
		VisualPolicy: p.visualPolicy,
		IsPlaying:    p.isPlaying,
	}
}
