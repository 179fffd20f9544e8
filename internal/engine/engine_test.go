// ABOUTME: Tests for the tick loop: handle lifecycle, audio params, edits, history
// ABOUTME: Drives ticks directly so every assertion is deterministic
package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Previz-Studio/previz-go/internal/geometry"
	"github.com/Previz-Studio/previz-go/internal/media"
	"github.com/Previz-Studio/previz-go/internal/timeline"
)

type fakeResolver struct {
	err   error
	calls int
}

func (r *fakeResolver) Resolve(ctx context.Context, el *timeline.Element) (media.Asset, error) {
	r.calls++
	if r.err != nil {
		return media.Asset{}, r.err
	}
	return media.Asset{ID: el.AssetID, Codec: "silence", Seconds: 60}, nil
}

// fakeOpener hands out fake handles, indexed by asset for assertions
type fakeOpener struct {
	err      error
	routeErr error
	calls    int
	byAsset  map[string]*fakeHandle
}

func (o *fakeOpener) Open(ctx context.Context, asset media.Asset) (media.Handle, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	h := newFakeHandle()
	h.routeErr = o.routeErr
	if o.byAsset == nil {
		o.byAsset = make(map[string]*fakeHandle)
	}
	o.byAsset[asset.ID] = h
	return h, nil
}

func engineSequence() (*timeline.Sequence, *timeline.Element) {
	seq := timeline.NewSequence("session")
	tr := seq.AddTrack("A1", timeline.TrackAudio)
	el := timeline.NewElement(timeline.KindAudio, tr.ID)
	el.Name = "clip"
	el.AssetID = "asset-1"
	el.Duration = 10
	seq.AddElement(el)
	return seq, el
}

func newTestEngine(seq *timeline.Sequence) (*Engine, *fakeOpener, *fakeTime) {
	op := &fakeOpener{}
	e := New(Config{}, seq, op, &fakeResolver{})
	ft := &fakeTime{t: time.Unix(2000, 0)}
	e.clock.now = ft.now
	e.clock.anchorAt = ft.t
	e.clock.started = ft.t
	return e, op, ft
}

func (e *Engine) mustSubmit(t *testing.T, cmd Command) {
	t.Helper()
	if err := e.Submit(cmd); err != nil {
		t.Fatalf("submit %T: %v", cmd, err)
	}
}

func TestEngineOpensHandleForActiveAudio(t *testing.T) {
	seq, el := engineSequence()
	e, op, _ := newTestEngine(seq)

	e.tick(context.Background())

	if op.calls != 1 {
		t.Fatalf("expected one open, got %d", op.calls)
	}
	if _, ok := e.handles[el.ID]; !ok {
		t.Fatal("expected handle registered for the element")
	}
	if !e.graph.Attached(el.ID) {
		t.Error("expected audio route attached")
	}

	h := op.byAsset["asset-1"]
	if n := len(h.route.gains); n == 0 || h.route.gains[n-1] != 1.0 {
		t.Errorf("expected unity gain pushed, got %v", h.route.gains)
	}

	st := e.Status()
	if st.OpenHandles != 1 || st.ActiveLayers != 1 || st.Sequence != "session" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestEngineIgnoresNonAudioKinds(t *testing.T) {
	seq := timeline.NewSequence("stills")
	tr := seq.AddTrack("V1", timeline.TrackVideo)
	el := timeline.NewElement(timeline.KindImage, tr.ID)
	el.Duration = 10
	seq.AddElement(el)
	e, op, _ := newTestEngine(seq)

	e.tick(context.Background())

	if op.calls != 0 {
		t.Errorf("image element must not open media, got %d opens", op.calls)
	}
	if st := e.Status(); st.ActiveLayers != 1 {
		t.Errorf("image element must still composite, got %d layers", st.ActiveLayers)
	}
}

func TestEngineResolveFailureIsSticky(t *testing.T) {
	seq, _ := engineSequence()
	op := &fakeOpener{}
	res := &fakeResolver{err: errors.New("asset missing")}
	e := New(Config{}, seq, op, res)

	for i := 0; i < 3; i++ {
		e.tick(context.Background())
	}

	if res.calls != 1 {
		t.Errorf("expected a single resolve attempt, got %d", res.calls)
	}
	if op.calls != 0 {
		t.Errorf("expected no open after resolve failure, got %d", op.calls)
	}
}

func TestEngineTransportCommands(t *testing.T) {
	seq, el := engineSequence()
	e, op, _ := newTestEngine(seq)

	e.mustSubmit(t, CmdPlay{})
	e.tick(context.Background())

	h := op.byAsset["asset-1"]
	if !h.playing {
		t.Fatal("expected handle playing after CmdPlay")
	}
	if !e.Status().Playing {
		t.Error("expected status playing")
	}

	e.mustSubmit(t, CmdPause{})
	e.tick(context.Background())

	if h.playing {
		t.Error("expected handle paused after CmdPause")
	}
	if _, ok := e.handles[el.ID]; !ok {
		t.Error("pausing must not close the handle")
	}
}

func TestEngineSeekWhilePausedPositionsHandle(t *testing.T) {
	seq, _ := engineSequence()
	e, op, _ := newTestEngine(seq)

	e.mustSubmit(t, CmdSeek{Sec: 5})
	e.tick(context.Background())

	h := op.byAsset["asset-1"]
	if len(h.seeks) != 1 || h.seeks[0] != 5.0 {
		t.Errorf("expected handle seeked to 5.0, got %v", h.seeks)
	}
	if h.playing {
		t.Error("seek while paused must not start playback")
	}
}

func TestEngineDucking(t *testing.T) {
	seq := timeline.NewSequence("mix")
	tr := seq.AddTrack("A1", timeline.TrackAudio)

	music := timeline.NewElement(timeline.KindAudio, tr.ID)
	music.AssetID = "music"
	music.Duration = 10
	seq.AddElement(music)

	voice := timeline.NewElement(timeline.KindAudio, tr.ID)
	voice.AssetID = "voice"
	voice.Duration = 10
	voice.Audio.Volume = 0.8
	voice.Audio.Ducking = true
	seq.AddElement(voice)

	e, op, _ := newTestEngine(seq)
	e.tick(context.Background())

	mg := op.byAsset["music"].route.gains
	if n := len(mg); n == 0 || mg[n-1] != 0.2 {
		t.Errorf("expected music ducked to 0.2, got %v", mg)
	}
	vg := op.byAsset["voice"].route.gains
	if n := len(vg); n == 0 || vg[n-1] != 0.8 {
		t.Errorf("expected voice at its own 0.8, got %v", vg)
	}
}

func TestEngineTrackMuteSilencesRoute(t *testing.T) {
	seq, el := engineSequence()
	e, op, _ := newTestEngine(seq)

	e.tick(context.Background())
	e.mustSubmit(t, CmdSetTrackMuted{TrackID: el.TrackID, Muted: true})
	e.tick(context.Background())

	h := op.byAsset["asset-1"]
	if n := len(h.route.gains); n == 0 || h.route.gains[n-1] != 0 {
		t.Errorf("expected muted track forced to gain 0, got %v", h.route.gains)
	}
	if !e.Status().CanUndo {
		t.Error("expected track mute recorded in history")
	}
}

func TestEngineRouteFallbackUsesNativeVolume(t *testing.T) {
	seq, el := engineSequence()
	e, op, _ := newTestEngine(seq)
	op.routeErr = errors.New("routing unavailable")

	e.tick(context.Background())

	h := op.byAsset["asset-1"]
	if len(h.volumes) != 1 || h.volumes[0] != 1.0 {
		t.Fatalf("expected native volume 1.0 pushed, got %v", h.volumes)
	}
	if e.graph.Attached(el.ID) {
		t.Error("expected no route attached after failure")
	}

	// Unchanged params push nothing
	e.tick(context.Background())
	if len(h.volumes) != 1 {
		t.Errorf("expected no repeat push, got %v", h.volumes)
	}

	// A volume change reaches the handle
	quieter := el.Clone()
	quieter.Audio.Volume = 0.5
	e.mustSubmit(t, CmdUpdateElement{El: quieter})
	e.tick(context.Background())
	if len(h.volumes) != 2 || h.volumes[1] != 0.5 {
		t.Errorf("expected fallback volume 0.5, got %v", h.volumes)
	}
}

func TestEngineRemoveElementClosesHandle(t *testing.T) {
	seq, el := engineSequence()
	e, op, _ := newTestEngine(seq)

	e.tick(context.Background())
	e.mustSubmit(t, CmdRemoveElement{ID: el.ID})
	e.tick(context.Background())

	if h := op.byAsset["asset-1"]; !h.closed {
		t.Error("expected handle closed after element removal")
	}
	if len(e.handles) != 0 || e.graph.Size() != 0 {
		t.Errorf("expected all media state released, handles=%d routes=%d", len(e.handles), e.graph.Size())
	}
	if st := e.Status(); st.OpenHandles != 0 || st.ActiveLayers != 0 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestEngineUndoRedoRebuildsMedia(t *testing.T) {
	seq := timeline.NewSequence("session")
	tr := seq.AddTrack("A1", timeline.TrackAudio)
	e, op, _ := newTestEngine(seq)

	el := timeline.NewElement(timeline.KindAudio, tr.ID)
	el.AssetID = "asset-x"
	el.Duration = 5
	e.mustSubmit(t, CmdAddElement{El: el, Label: "add clip"})
	e.tick(context.Background())

	if len(e.seq.Elements) != 1 || op.calls != 1 {
		t.Fatalf("expected element added and opened, elements=%d opens=%d", len(e.seq.Elements), op.calls)
	}
	first := op.byAsset["asset-x"]

	e.mustSubmit(t, CmdUndo{})
	e.tick(context.Background())

	if len(e.seq.Elements) != 0 {
		t.Fatal("expected undo to restore the empty document")
	}
	if !first.closed {
		t.Error("expected undo to close the element's handle")
	}
	if st := e.Status(); !st.CanRedo || st.RedoLabel != "add clip" {
		t.Errorf("expected redo step labeled 'add clip', got %+v", st)
	}

	e.mustSubmit(t, CmdRedo{})
	e.tick(context.Background())

	if len(e.seq.Elements) != 1 {
		t.Fatal("expected redo to restore the element")
	}
	if op.calls != 2 {
		t.Errorf("expected a fresh handle after redo, got %d opens", op.calls)
	}
}

func TestEngineGestureCommitsOnce(t *testing.T) {
	seq, el := engineSequence()
	e, _, _ := newTestEngine(seq)

	e.mustSubmit(t, CmdCommit{Label: "move element"})
	for _, x := range []float64{10, 20, 30} {
		moved := el.Clone()
		moved.Rect = geometry.Rect{X: x, Y: 0, W: 100, H: 100}
		e.mustSubmit(t, CmdUpdateElement{El: moved})
	}
	e.tick(context.Background())

	if undo, _ := e.history.Depths(); undo != 1 {
		t.Fatalf("expected one undo step for the whole gesture, got %d", undo)
	}
	if got := e.seq.ElementByID(el.ID).Rect.X; got != 30 {
		t.Fatalf("expected final gesture position applied, got %v", got)
	}

	e.mustSubmit(t, CmdUndo{})
	e.tick(context.Background())
	if got := e.seq.ElementByID(el.ID).Rect.X; got != 0 {
		t.Errorf("expected undo to restore pre-gesture position, got %v", got)
	}
}

func TestEngineLockedTrackRejectsEdits(t *testing.T) {
	seq, el := engineSequence()
	seq.Tracks[0].Locked = true
	e, _, _ := newTestEngine(seq)

	moved := el.Clone()
	moved.Rect.X = 50
	e.mustSubmit(t, CmdUpdateElement{El: moved, Label: "move element"})
	e.mustSubmit(t, CmdRemoveElement{ID: el.ID})
	e.tick(context.Background())

	if got := e.seq.ElementByID(el.ID); got == nil || got.Rect.X != 0 {
		t.Error("expected locked track to reject the edit")
	}
	if e.Status().CanUndo {
		t.Error("expected no history entry for rejected edits")
	}
}

func TestEngineAssetChangeReopens(t *testing.T) {
	seq, el := engineSequence()
	e, op, _ := newTestEngine(seq)

	e.tick(context.Background())
	first := op.byAsset["asset-1"]

	swapped := el.Clone()
	swapped.AssetID = "asset-2"
	e.mustSubmit(t, CmdUpdateElement{El: swapped, Label: "swap media"})
	e.tick(context.Background())

	if !first.closed {
		t.Error("expected old handle closed on asset change")
	}
	if op.calls != 2 {
		t.Fatalf("expected reopen for the new asset, got %d opens", op.calls)
	}
	if _, ok := op.byAsset["asset-2"]; !ok {
		t.Error("expected handle for the new asset")
	}
}

func TestEngineMarkerCommand(t *testing.T) {
	seq, _ := engineSequence()
	e, _, _ := newTestEngine(seq)

	e.mustSubmit(t, CmdAddMarker{Time: 3, Text: "beat"})
	e.tick(context.Background())

	if len(e.seq.Markers) != 1 || e.seq.Markers[0].Label != "beat" {
		t.Fatalf("expected marker added, got %+v", e.seq.Markers)
	}
	if !e.Status().CanUndo {
		t.Error("expected marker recorded in history")
	}
}

func TestEngineLoopStatus(t *testing.T) {
	seq, _ := engineSequence()
	e, _, _ := newTestEngine(seq)

	e.mustSubmit(t, CmdSetLoop{Start: 2, End: 4})
	e.tick(context.Background())

	st := e.Status()
	if !st.LoopSet || st.LoopStart != 2 || st.LoopEnd != 4 {
		t.Errorf("expected loop [2,4) armed, got %+v", st)
	}

	e.mustSubmit(t, CmdClearLoop{})
	e.tick(context.Background())
	if e.Status().LoopSet {
		t.Error("expected loop disarmed")
	}
}

func TestEngineSnapshotCommand(t *testing.T) {
	seq, _ := engineSequence()
	e, _, _ := newTestEngine(seq)

	reply := make(chan SnapshotResult, 1)
	e.mustSubmit(t, CmdSnapshot{Reply: reply})
	e.tick(context.Background())

	select {
	case res := <-reply:
		if res.Err != nil {
			t.Fatalf("snapshot failed: %v", res.Err)
		}
		restored, err := timeline.Unmarshal(res.Data)
		if err != nil {
			t.Fatalf("snapshot does not unmarshal: %v", err)
		}
		if restored.Name != "session" || len(restored.Elements) != 1 {
			t.Errorf("unexpected snapshot content: %+v", restored)
		}
	default:
		t.Fatal("expected snapshot reply delivered during the tick")
	}
}

func TestEngineLoadSequenceClearsHistory(t *testing.T) {
	seq, _ := engineSequence()
	e, op, _ := newTestEngine(seq)

	e.mustSubmit(t, CmdAddMarker{Time: 1, Text: "old"})
	e.tick(context.Background())
	first := op.byAsset["asset-1"]
	if !e.Status().CanUndo {
		t.Fatal("expected an undo step before loading")
	}

	other := timeline.NewSequence("other")
	e.mustSubmit(t, CmdLoadSequence{Seq: other})
	e.tick(context.Background())

	if e.seq.Name != "other" {
		t.Fatalf("expected document replaced, got %q", e.seq.Name)
	}
	if !first.closed {
		t.Error("expected previous document's handles closed")
	}
	st := e.Status()
	if st.CanUndo || st.CanRedo {
		t.Error("expected history cleared on load")
	}
}

func TestEngineSubscribe(t *testing.T) {
	seq, _ := engineSequence()
	e, _, _ := newTestEngine(seq)

	ch, cancel := e.Subscribe()
	e.tick(context.Background())

	select {
	case frame := <-ch:
		if len(frame.Layers) != 1 {
			t.Errorf("expected 1 layer, got %d", len(frame.Layers))
		}
	default:
		t.Fatal("expected a frame delivered during the tick")
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after cancel")
	}
	cancel() // second cancel must be safe
}

func TestEngineSubmitBackpressure(t *testing.T) {
	seq, _ := engineSequence()
	e, _, _ := newTestEngine(seq)

	var rejected bool
	for i := 0; i < 200; i++ {
		if err := e.Submit(CmdPlay{}); err != nil {
			rejected = true
			break
		}
	}
	if !rejected {
		t.Error("expected a full queue to reject commands")
	}
}

func TestEngineRunLifecycle(t *testing.T) {
	seq, _ := engineSequence()
	e, op, _ := newTestEngine(seq)

	ch, cancelSub := e.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for a frame")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shutdown")
	}

	if h := op.byAsset["asset-1"]; !h.closed {
		t.Error("expected handles closed on shutdown")
	}
	if len(e.handles) != 0 {
		t.Errorf("expected handle map emptied, got %d", len(e.handles))
	}
}
