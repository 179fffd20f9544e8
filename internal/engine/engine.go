// ABOUTME: Tick-driven preview engine: commands in, frames and status out
// ABOUTME: All state mutation happens on the single tick goroutine
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Previz-Studio/previz-go/internal/audiograph"
	"github.com/Previz-Studio/previz-go/internal/compositor"
	"github.com/Previz-Studio/previz-go/internal/history"
	"github.com/Previz-Studio/previz-go/internal/media"
	"github.com/Previz-Studio/previz-go/internal/timeline"
)

// DefaultTickHz is the engine tick rate. Reconciliation runs at this rate
// regardless of how fast consumers render frames.
const DefaultTickHz = 30

// Config configures the engine
type Config struct {
	TickHz           int
	SyncToleranceSec float64
	HistoryCapacity  int
	Debug            bool
}

// AssetResolver maps a timeline element to the asset its handle plays
type AssetResolver interface {
	Resolve(ctx context.Context, el *timeline.Element) (media.Asset, error)
}

// ResolverFunc adapts a function to the AssetResolver interface
type ResolverFunc func(ctx context.Context, el *timeline.Element) (media.Asset, error)

// Resolve calls f
func (f ResolverFunc) Resolve(ctx context.Context, el *timeline.Element) (media.Asset, error) {
	return f(ctx, el)
}

// Command is a request for the engine's tick goroutine: one of the Cmd*
// types in this package. Unknown values are logged and dropped.
type Command interface{}

// Transport commands
type (
	// CmdPlay starts the transport
	CmdPlay struct{}
	// CmdPause stops the transport
	CmdPause struct{}
	// CmdSeek jumps the transport to Sec
	CmdSeek struct{ Sec float64 }
	// CmdSetRate changes the transport speed
	CmdSetRate struct{ Rate float64 }
	// CmdSetLoop arms a loop region [Start, End)
	CmdSetLoop struct{ Start, End float64 }
	// CmdClearLoop disarms the loop region
	CmdClearLoop struct{}
)

// Edit commands. Each one that changes the sequence records the pre-edit
// state on the history stack first, so undo restores the state before the
// edit. An empty Label selects a default.
type (
	// CmdAddElement adds El to the sequence
	CmdAddElement struct {
		El    *timeline.Element
		Label string
	}
	// CmdUpdateElement replaces the element with El's ID. A gesture sends
	// these with an empty Label for every pointer move; transient updates
	// record no history, so a CmdCommit at gesture start marks the one
	// undo point for the whole drag.
	CmdUpdateElement struct {
		El    *timeline.Element
		Label string
	}
	// CmdRemoveElement removes the element with ID
	CmdRemoveElement struct {
		ID    string
		Label string
	}
	// CmdSetTrackMuted mutes or unmutes a track
	CmdSetTrackMuted struct {
		TrackID string
		Muted   bool
		Label   string
	}
	// CmdAddMarker drops a labeled marker on the timeline
	CmdAddMarker struct {
		Time  float64
		Text  string
		Color string
		Label string
	}
	// CmdCommit records the current state as an undo point without
	// changing anything
	CmdCommit struct{ Label string }
	// CmdUndo restores the previous recorded state
	CmdUndo struct{}
	// CmdRedo restores the most recently undone state
	CmdRedo struct{}
	// CmdLoadSequence replaces the whole document and clears history
	CmdLoadSequence struct{ Seq *timeline.Sequence }
	// CmdSnapshot marshals the live sequence and delivers it on Reply.
	// Reply must be buffered; the result is dropped if it cannot be sent
	// without blocking.
	CmdSnapshot struct{ Reply chan<- SnapshotResult }
)

// SnapshotResult is the answer to a CmdSnapshot
type SnapshotResult struct {
	Name string
	Data []byte
	Err  error
}

// Status is a point-in-time view of the engine, safe to read from any
// goroutine. It refreshes once per tick.
type Status struct {
	Sequence string
	Playing  bool
	Position float64
	Rate     float64
	Duration float64
	CanvasW  float64
	CanvasH  float64

	LoopStart float64
	LoopEnd   float64
	LoopSet   bool

	CanUndo   bool
	CanRedo   bool
	UndoLabel string
	RedoLabel string

	ActiveLayers int
	OpenHandles  int
	Ticks        int64
	Corrections  int64
}

// Engine owns the sequence, the clock, and every media handle, and runs
// them from a single goroutine. Commands arrive through Submit and are
// drained at the start of each tick; per tick it reconciles handles,
// pushes audio parameters, builds a frame descriptor, and hands the frame
// to subscribers.
type Engine struct {
	cfg      Config
	seq      *timeline.Sequence
	clock    *Clock
	syncer   *Synchronizer
	graph    *audiograph.Graph
	history  *history.History
	opener   media.Opener
	resolver AssetResolver

	cmds chan Command

	handles     map[string]media.Handle
	routeFailed map[string]bool
	openFailed  map[string]bool
	lastVolume  map[string]float64

	subMu   sync.Mutex
	subs    map[int]chan compositor.Frame
	nextSub int

	statusMu sync.Mutex
	status   Status
}

// New creates an engine around the given sequence. A nil sequence starts
// an empty untitled document. The opener turns resolved assets into
// playback handles; the resolver maps elements to assets. Both may be
// nil, which runs the engine without media playback.
func New(cfg Config, seq *timeline.Sequence, opener media.Opener, resolver AssetResolver) *Engine {
	if cfg.TickHz <= 0 {
		cfg.TickHz = DefaultTickHz
	}
	if seq == nil {
		seq = timeline.NewSequence("Untitled")
	}
	seq.Normalize()

	e := &Engine{
		cfg:         cfg,
		seq:         seq,
		clock:       NewClock(),
		syncer:      NewSynchronizer(cfg.SyncToleranceSec),
		graph:       audiograph.New(),
		history:     history.New(cfg.HistoryCapacity),
		opener:      opener,
		resolver:    resolver,
		cmds:        make(chan Command, 128),
		handles:     make(map[string]media.Handle),
		routeFailed: make(map[string]bool),
		openFailed:  make(map[string]bool),
		lastVolume:  make(map[string]float64),
		subs:        make(map[int]chan compositor.Frame),
	}
	// Status readers may arrive before the first tick
	e.updateStatus(0, compositor.Frame{})
	return e
}

// Submit queues a command for the next tick. It never blocks; when the
// queue is full the command is rejected.
func (e *Engine) Submit(cmd Command) error {
	select {
	case e.cmds <- cmd:
		return nil
	default:
		return fmt.Errorf("command queue full")
	}
}

// Subscribe registers a frame consumer. Frames are dropped rather than
// queued when the consumer falls behind. The returned func cancels the
// subscription.
func (e *Engine) Subscribe() (<-chan compositor.Frame, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextSub
	e.nextSub++
	ch := make(chan compositor.Frame, 4)
	e.subs[id] = ch

	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
	}
}

// Status returns the latest per-tick snapshot
func (e *Engine) Status() Status {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.status
}

// Micros returns the engine's monotonic clock in microseconds, the
// reference remote clients sync their clocks against
func (e *Engine) Micros() int64 { return e.clock.Micros() }

// Run drives the engine until ctx is canceled. On exit every handle is
// closed, every route detached, and every subscriber channel closed.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(e.cfg.TickHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer e.teardown()

	log.Printf("Engine running at %d Hz (sync tolerance %.2fs)", e.cfg.TickHz, e.syncer.Tolerance())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	e.drainCommands(ctx)

	t := e.clock.Now()
	e.ensureHandles(ctx, t)
	e.syncer.ReconcileAll(e.seq, e.handles, t, e.clock.Playing(), e.clock.Rate())
	e.applyAudio(t)

	frame := compositor.Build(e.seq, t)
	e.broadcast(frame)
	e.updateStatus(t, frame)
}

func (e *Engine) drainCommands(ctx context.Context) {
	for {
		select {
		case cmd := <-e.cmds:
			e.apply(ctx, cmd)
		default:
			return
		}
	}
}

func (e *Engine) apply(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case CmdPlay:
		e.clock.Play()
	case CmdPause:
		e.clock.Pause()
	case CmdSeek:
		e.clock.Seek(c.Sec)
	case CmdSetRate:
		if err := e.clock.SetRate(c.Rate); err != nil {
			log.Printf("Warning: %v", err)
		}
	case CmdSetLoop:
		if err := e.clock.SetLoop(c.Start, c.End); err != nil {
			log.Printf("Warning: %v", err)
		}
	case CmdClearLoop:
		e.clock.ClearLoop()

	case CmdCommit:
		e.pushHistory(labelOr(c.Label, "edit"))

	case CmdAddElement:
		if c.El == nil {
			return
		}
		e.pushHistory(labelOr(c.Label, "add element"))
		e.seq.AddElement(c.El)
		e.seq.Normalize()

	case CmdUpdateElement:
		if c.El == nil {
			return
		}
		old := e.seq.ElementByID(c.El.ID)
		if old == nil {
			log.Printf("Warning: update for unknown element %s", c.El.ID)
			return
		}
		if e.trackLocked(old.TrackID) {
			log.Printf("Warning: element %s is on a locked track", c.El.ID)
			return
		}
		if c.Label != "" {
			e.pushHistory(c.Label)
		}
		if old.AssetID != c.El.AssetID || old.Kind != c.El.Kind || old.ToneHz != c.El.ToneHz {
			e.dropHandle(c.El.ID)
		}
		e.seq.ReplaceElement(c.El)
		e.seq.Normalize()

	case CmdRemoveElement:
		el := e.seq.ElementByID(c.ID)
		if el == nil {
			return
		}
		if e.trackLocked(el.TrackID) {
			log.Printf("Warning: element %s is on a locked track", c.ID)
			return
		}
		e.pushHistory(labelOr(c.Label, "remove element"))
		e.seq.RemoveElement(c.ID)
		e.dropHandle(c.ID)

	case CmdSetTrackMuted:
		tr := e.seq.TrackByID(c.TrackID)
		if tr == nil || tr.Muted == c.Muted {
			return
		}
		e.pushHistory(labelOr(c.Label, "mute track"))
		tr.Muted = c.Muted

	case CmdAddMarker:
		e.pushHistory(labelOr(c.Label, "add marker"))
		e.seq.Markers = append(e.seq.Markers, timeline.Marker{
			ID:    uuid.New().String(),
			Time:  c.Time,
			Label: c.Text,
			Color: c.Color,
		})

	case CmdUndo:
		if restored, ok := e.history.Undo(e.seq); ok {
			e.swapSequence(restored)
		}
	case CmdRedo:
		if restored, ok := e.history.Redo(e.seq); ok {
			e.swapSequence(restored)
		}
	case CmdLoadSequence:
		if c.Seq == nil {
			return
		}
		c.Seq.Normalize()
		e.history.Clear()
		e.swapSequence(c.Seq)

	case CmdSnapshot:
		data, err := e.seq.Marshal()
		res := SnapshotResult{Name: e.seq.Name, Data: data, Err: err}
		select {
		case c.Reply <- res:
		default:
		}

	default:
		log.Printf("Warning: unknown command %T", cmd)
	}
}

// ensureHandles opens handles for audio-bearing elements inside their
// window and closes handles whose element left the sequence. Elements
// merely outside their window keep a paused handle, so scrubbing back
// does not reopen media.
func (e *Engine) ensureHandles(ctx context.Context, t float64) {
	for id, h := range e.handles {
		if e.seq.ElementByID(id) != nil {
			continue
		}
		e.graph.Detach(id)
		if err := h.Close(); err != nil {
			log.Printf("Warning: closing handle %s: %v", id, err)
		}
		e.forget(id)
	}

	// No media backend means frames only
	if e.opener == nil || e.resolver == nil {
		return
	}

	for _, el := range e.seq.ActiveAt(t) {
		if !el.Kind.HasAudio() {
			continue
		}
		if _, ok := e.handles[el.ID]; ok {
			continue
		}
		if e.openFailed[el.ID] {
			continue
		}

		asset, err := e.resolver.Resolve(ctx, el)
		if err != nil {
			log.Printf("Warning: resolving media for %s: %v", el.ID, err)
			e.openFailed[el.ID] = true
			continue
		}
		h, err := e.opener.Open(ctx, asset)
		if err != nil {
			log.Printf("Warning: opening media for %s: %v", el.ID, err)
			e.openFailed[el.ID] = true
			continue
		}
		e.handles[el.ID] = h
	}
}

// applyAudio pushes effective gain and filter parameters for every active
// audio-bearing element, through its route when one is attached and
// through the handle's native volume when route attachment failed.
func (e *Engine) applyAudio(t float64) {
	active := e.seq.ActiveAt(t)

	for id, h := range e.handles {
		el := e.seq.ElementByID(id)
		if el == nil || el.Hidden || !el.ActiveAt(t) || !el.Kind.HasAudio() {
			continue
		}

		p := audiograph.EffectiveParams(el, active)
		if e.trackMuted(el.TrackID) {
			p.Gain = 0
		}

		if e.routeFailed[id] {
			e.applyFallback(id, h, p.Gain)
			continue
		}
		if !e.graph.Attached(id) {
			if _, err := e.graph.Attach(id, h); err != nil {
				log.Printf("Warning: no audio route for %s, falling back to native volume: %v", id, err)
				e.routeFailed[id] = true
				e.applyFallback(id, h, p.Gain)
				continue
			}
		}
		if err := e.graph.Apply(id, p); err != nil {
			log.Printf("Warning: audio params for %s: %v", id, err)
		}
	}
}

// applyFallback drives the handle's native volume, pushing only changes
func (e *Engine) applyFallback(id string, h media.Handle, gain float64) {
	if v, ok := e.lastVolume[id]; ok && v == gain {
		return
	}
	if err := h.SetVolume(gain); err != nil {
		return
	}
	e.lastVolume[id] = gain
}

// dropHandle closes and forgets one element's handle and route
func (e *Engine) dropHandle(id string) {
	e.graph.Detach(id)
	if h, ok := e.handles[id]; ok {
		if err := h.Close(); err != nil {
			log.Printf("Warning: closing handle %s: %v", id, err)
		}
	}
	e.forget(id)
}

// forget clears all per-element bookkeeping
func (e *Engine) forget(id string) {
	delete(e.handles, id)
	delete(e.routeFailed, id)
	delete(e.openFailed, id)
	delete(e.lastVolume, id)
	e.syncer.Forget(id)
}

// swapSequence replaces the live document. Every handle is closed and
// every route detached; playback state rebuilds lazily on following
// ticks, so a restored snapshot never aliases stale media state.
func (e *Engine) swapSequence(seq *timeline.Sequence) {
	for id, h := range e.handles {
		if err := h.Close(); err != nil {
			log.Printf("Warning: closing handle %s: %v", id, err)
		}
		e.syncer.Forget(id)
		delete(e.handles, id)
	}
	e.graph.DetachAll()
	e.routeFailed = make(map[string]bool)
	e.openFailed = make(map[string]bool)
	e.lastVolume = make(map[string]float64)
	e.seq = seq
}

func (e *Engine) pushHistory(label string) {
	if err := e.history.Push(e.seq, label); err != nil {
		log.Printf("Warning: history snapshot failed: %v", err)
	}
}

func (e *Engine) trackMuted(trackID string) bool {
	tr := e.seq.TrackByID(trackID)
	return tr != nil && tr.Muted
}

func (e *Engine) trackLocked(trackID string) bool {
	tr := e.seq.TrackByID(trackID)
	return tr != nil && tr.Locked
}

func (e *Engine) broadcast(frame compositor.Frame) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (e *Engine) updateStatus(t float64, frame compositor.Frame) {
	st := Status{
		Sequence:     e.seq.Name,
		Playing:      e.clock.Playing(),
		Position:     t,
		Rate:         e.clock.Rate(),
		Duration:     e.seq.Duration(),
		CanvasW:      e.seq.CanvasW,
		CanvasH:      e.seq.CanvasH,
		CanUndo:      e.history.CanUndo(),
		CanRedo:      e.history.CanRedo(),
		UndoLabel:    e.history.UndoLabel(),
		RedoLabel:    e.history.RedoLabel(),
		ActiveLayers: len(frame.Layers),
		OpenHandles:  len(e.handles),
	}
	st.LoopStart, st.LoopEnd, st.LoopSet = e.clock.Loop()

	sy := e.syncer.Stats()
	st.Ticks = sy.Ticks
	st.Corrections = sy.Corrections

	e.statusMu.Lock()
	e.status = st
	e.statusMu.Unlock()
}

// teardown releases every handle, route, and subscriber
func (e *Engine) teardown() {
	for id, h := range e.handles {
		if err := h.Close(); err != nil {
			log.Printf("Warning: closing handle %s: %v", id, err)
		}
		delete(e.handles, id)
	}
	e.graph.DetachAll()

	e.subMu.Lock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.subMu.Unlock()

	if e.cfg.Debug {
		s := e.syncer.Stats()
		log.Printf("Engine stopped: %d ticks, %d corrections, %d not-ready skips", s.Ticks, s.Corrections, s.NotReady)
	}
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}
	return fallback
}
