package playlist

import (
	"testing"

	"github.com/orbitcast/broadcaster/internal/asset"
)

func newAssets(n int) []*asset.MediaAsset {
	out := make([]*asset.MediaAsset, n)
	for i := range out {
		out[i] = asset.New("media.mp4", "thumb.jpg")
	}
	return out
}

func TestAppendSetsCursorFromNone(t *testing.T) {
	t.Parallel()
	p := New(PlayAndStop, VideoContent)

	snap := p.Snapshot()
	if snap.Cursor != noCursor {
		t.Fatalf("new playlist cursor = %d, want none", snap.Cursor)
	}

	a := asset.New("a.mp4", "a.jpg")
	p.Append(a)

	snap = p.Snapshot()
	if snap.Cursor != 0 {
		t.Errorf("cursor after first append = %d, want 0", snap.Cursor)
	}
	if snap.Assets[0] != a {
		t.Error("append should preserve asset identity")
	}
}

func TestAppendResetsCursorWheneverItWasNone(t *testing.T) {
	t.Parallel()
	p := New(PlayAndStop, VideoContent)
	assets := newAssets(2)
	p.Append(assets[0])
	p.Next(1) // out of range under PlayAndStop -> cursor becomes none

	if snap := p.Snapshot(); snap.Cursor != noCursor {
		t.Fatalf("cursor after out-of-range Next = %d, want none", snap.Cursor)
	}

	p.Append(assets[1])
	// spec §4.6: append sets cursor to 0 whenever it was none, not only on
	// the empty->non-empty transition.
	if snap := p.Snapshot(); snap.Cursor != 0 {
		t.Errorf("cursor after append with a none cursor = %d, want 0", snap.Cursor)
	}
}

func TestRemoveBeforeCursorDecrements(t *testing.T) {
	t.Parallel()
	p := New(PlayAndStop, VideoContent)
	assets := newAssets(3)
	for _, a := range assets {
		p.Append(a)
	}
	p.Select(2)

	p.Remove(0)

	snap := p.Snapshot()
	if snap.Cursor != 1 {
		t.Errorf("cursor after removing before it = %d, want 1", snap.Cursor)
	}
	if snap.Assets[snap.Cursor] != assets[2] {
		t.Error("cursor should still reference the same asset after remove")
	}
}

func TestRemoveAtCursorClampsToLastOrNone(t *testing.T) {
	t.Parallel()
	p := New(PlayAndStop, VideoContent)
	assets := newAssets(2)
	for _, a := range assets {
		p.Append(a)
	}
	p.Select(1)

	p.Remove(1)
	if snap := p.Snapshot(); snap.Cursor != 0 {
		t.Errorf("cursor after removing last element at cursor = %d, want 0", snap.Cursor)
	}

	p.Remove(0)
	if snap := p.Snapshot(); snap.Cursor != noCursor {
		t.Errorf("cursor after emptying list = %d, want none", snap.Cursor)
	}
}

func TestSelectUnderPlayAndDelete(t *testing.T) {
	t.Parallel()
	p := New(PlayAndDelete, VideoContent)
	assets := newAssets(3)
	for _, a := range assets {
		p.Append(a)
	}
	// cursor = 0 (assets[0]). Select(1) deletes assets[0] first, renumbers
	// 1 -> 0, and lands on what is now assets[0] == original assets[1].
	p.Select(1)

	snap := p.Snapshot()
	if len(snap.Assets) != 2 {
		t.Fatalf("len = %d, want 2 after PLAY_AND_DELETE select", len(snap.Assets))
	}
	if snap.Cursor != 0 {
		t.Errorf("cursor = %d, want 0", snap.Cursor)
	}
	if snap.Assets[snap.Cursor] != assets[1] {
		t.Error("cursor should land on the originally-selected asset")
	}
}

func TestSelectUnderPlayAndDeleteOutOfRangeLeavesClamp(t *testing.T) {
	t.Parallel()
	p := New(PlayAndDelete, VideoContent)
	assets := newAssets(5)
	for _, a := range assets {
		p.Append(a)
	}
	// cursor = 0 (assets[0]). Select(4): assets[0] is deleted first, but
	// the range check runs against the raw, pre-renumbering index 4, which
	// is out of range against the post-deletion length of 4 — so the
	// cursor is never reassigned by this call. It is left at its prior
	// value (0), which still happens to be valid against the shorter
	// list, landing on the new assets[0] == original assets[1]. Matches
	// original_source/app/deliver/player.py's select(): a bare list
	// deletion that does not itself touch the cursor, followed by a
	// raw-index range check that may simply not fire.
	p.Select(4)

	snap := p.Snapshot()
	if len(snap.Assets) != 4 {
		t.Fatalf("len = %d, want 4", len(snap.Assets))
	}
	if snap.Cursor != 0 {
		t.Errorf("cursor = %d, want 0 (left in place by the raw range check)", snap.Cursor)
	}
	if snap.Assets[snap.Cursor] != assets[1] {
		t.Error("cursor should reference the asset that slid into its place")
	}
}

func TestSelectUnderPlayAndDeleteOutOfRangeClearsStaleCursor(t *testing.T) {
	t.Parallel()
	p := New(PlayAndStop, VideoContent)
	assets := newAssets(2)
	for _, a := range assets {
		p.Append(a)
	}
	// Select under PlayAndStop so nothing is deleted yet, then switch.
	p.Select(1) // cursor -> assets[1]
	p.SetCursorPolicy(PlayAndDelete)

	// Delete current (assets[1]), leaving only assets[0]; the raw index 5
	// is out of range post-deletion, so the cursor is never reassigned.
	// Its prior value (1) is now itself out of range against the
	// one-element list, so it renormalizes to none — the Go equivalent of
	// the source cursor property's lazy clamp-to-None on the next read of
	// a now-stale value.
	p.Select(5)

	snap := p.Snapshot()
	if len(snap.Assets) != 1 {
		t.Fatalf("len = %d, want 1", len(snap.Assets))
	}
	if snap.Cursor != noCursor {
		t.Errorf("cursor = %d, want none (stale value no longer in range)", snap.Cursor)
	}
}

func TestMoveSlidesCursor(t *testing.T) {
	t.Parallel()
	p := New(PlayAndStop, VideoContent)
	assets := newAssets(4)
	for _, a := range assets {
		p.Append(a)
	}
	p.Select(1) // cursor on assets[1]

	p.Move(0, 2)
	if snap := p.Snapshot(); snap.Cursor != 0 {
		t.Errorf("cursor after move(0,2) with cursor=1 -> %d, want 0", snap.Cursor)
	}
}

func TestMoveIsNoOpOutOfRange(t *testing.T) {
	t.Parallel()
	p := New(PlayAndStop, VideoContent)
	p.Append(asset.New("a.mp4", "a.jpg"))

	p.Move(0, 5)
	if snap := p.Snapshot(); len(snap.Assets) != 1 {
		t.Error("move with out-of-range destination should be a no-op")
	}
}

func TestLoopPlaylistNeverNone(t *testing.T) {
	t.Parallel()
	p := New(LoopPlaylist, VideoContent)
	p.Append(asset.New("a.mp4", "a.jpg"))

	for i := 0; i < 5; i++ {
		p.Next(1)
		if snap := p.Snapshot(); snap.Cursor == noCursor {
			t.Fatalf("cursor became none under LOOP_PLAYLIST at iteration %d", i)
		}
	}
}

func TestGetCurrentWraps(t *testing.T) {
	t.Parallel()
	p := New(LoopPlaylist, VideoContent)
	assets := newAssets(3)
	for _, a := range assets {
		p.Append(a)
	}

	if got := p.GetCurrent(5); got != assets[(0+5)%3] {
		t.Error("GetCurrent should wrap modulo size under LOOP_PLAYLIST")
	}
}

func TestGetCurrentOutOfRangeNonLoop(t *testing.T) {
	t.Parallel()
	p := New(PlayAndStop, VideoContent)
	assets := newAssets(2)
	for _, a := range assets {
		p.Append(a)
	}

	if got := p.GetCurrent(5); got != nil {
		t.Errorf("GetCurrent out of range under non-loop policy = %v, want nil", got)
	}
}

func TestEmptyPlaylistNextStaysNone(t *testing.T) {
	t.Parallel()
	p := New(PlayAndStop, VideoContent)
	p.Next(1)
	if snap := p.Snapshot(); snap.Cursor != noCursor {
		t.Errorf("cursor = %d, want none on empty playlist", snap.Cursor)
	}
}

func TestSingleElementLoopReplays(t *testing.T) {
	t.Parallel()
	p := New(LoopPlaylist, VideoContent)
	a := asset.New("a.mp4", "a.jpg")
	p.Append(a)

	p.Next(1)
	if snap := p.Snapshot(); snap.Cursor != 0 || snap.Assets[0] != a {
		t.Error("single-element LOOP_PLAYLIST should replay the same track")
	}
}

func TestClearIsIdempotent(t *testing.T) {
	t.Parallel()
	p := New(PlayAndStop, VideoContent)
	p.Append(asset.New("a.mp4", "a.jpg"))

	p.Clear()
	p.Clear()

	snap := p.Snapshot()
	if len(snap.Assets) != 0 || snap.Cursor != noCursor {
		t.Error("clear should be idempotent and leave cursor none")
	}
}

func TestAppendThenRemoveLastRestoresEquality(t *testing.T) {
	t.Parallel()
	p := New(PlayAndStop, VideoContent)
	assets := newAssets(2)
	for _, a := range assets {
		p.Append(a)
	}
	before := p.Snapshot().Assets

	p.Append(asset.New("extra.mp4", "extra.jpg"))
	p.Remove(len(p.Snapshot().Assets) - 1)

	after := p.Snapshot().Assets
	if len(before) != len(after) {
		t.Fatalf("length changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("asset identity changed at index %d", i)
		}
	}
}

func TestSetCursorModeTwiceEqualsOnce(t *testing.T) {
	t.Parallel()
	p := New(PlayAndStop, VideoContent)
	for _, a := range newAssets(3) {
		p.Append(a)
	}
	p.Select(2)

	p.SetCursorPolicy(LoopPlaylist)
	afterOnce := p.Snapshot()

	p.SetCursorPolicy(LoopPlaylist)
	afterTwice := p.Snapshot()

	if afterOnce.Cursor != afterTwice.Cursor || afterOnce.CursorPolicy != afterTwice.CursorPolicy {
		t.Error("setting cursor mode twice should equal setting it once")
	}
}

func TestConcurrentMutationsSerialize(t *testing.T) {
	t.Parallel()
	p := New(LoopPlaylist, VideoContent)
	const n = 50

	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			p.Append(asset.New("m.mp4", "t.jpg"))
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}

	if snap := p.Snapshot(); len(snap.Assets) != n {
		t.Errorf("len = %d, want %d after concurrent appends", len(snap.Assets), n)
	}
}
