// ABOUTME: Previewer session wiring store, media runtime, engine, bridge, and TUI
// ABOUTME: Owns startup order, the autosave loop, and graceful shutdown
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/Previz-Studio/previz-go/internal/bridge"
	"github.com/Previz-Studio/previz-go/internal/config"
	"github.com/Previz-Studio/previz-go/internal/engine"
	"github.com/Previz-Studio/previz-go/internal/media"
	"github.com/Previz-Studio/previz-go/internal/store"
	"github.com/Previz-Studio/previz-go/internal/timeline"
	"github.com/Previz-Studio/previz-go/internal/ui"
)

// Config holds session configuration. UseTUI runs the interactive
// previewer; ServerTUI runs the bridge status display instead and is
// ignored when UseTUI is set.
type Config struct {
	Settings    config.Config
	ProjectPath string
	UseTUI      bool
	ServerTUI   bool
}

// Session is the previewer application: one engine, its media runtime,
// the optional store, the editor bridge, and the local TUI.
type Session struct {
	config  Config
	st      *store.Store
	runtime *media.Runtime
	eng     *engine.Engine
	srv     *bridge.Server
	ctrl    *ui.Control
	prog    *tea.Program

	mu        sync.Mutex
	lastSaved string
}

// New builds a session: opens the store when a path is configured, picks
// the starting sequence, and constructs the engine and bridge around it.
// Call Close after Run returns.
func New(cfg Config) (*Session, error) {
	s := &Session{config: cfg}
	set := cfg.Settings

	if set.StorePath != "" {
		st, err := store.Open(set.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.st = st
	} else {
		log.Printf("Warning: no store path, running without persistence")
	}

	seq, err := s.loadSequence()
	if err != nil {
		s.Close()
		return nil, err
	}

	s.runtime = media.NewRuntime(media.RuntimeConfig{
		EnableDevice: true,
		Debug:        set.Debug,
	})

	s.eng = engine.New(engine.Config{
		TickHz:           set.TickHz,
		SyncToleranceSec: set.SyncToleranceSec,
		HistoryCapacity:  set.HistoryCapacity,
		Debug:            set.Debug,
	}, seq, s.runtime, store.NewResolver(s.st))

	// A nil *store.Store wrapped in the interface would not compare equal
	// to nil on the bridge side, so only assign when the store exists.
	var saver bridge.SnapshotSaver
	if s.st != nil {
		saver = s.st
	}

	s.srv = bridge.New(bridge.Config{
		Port:       set.Port,
		Name:       set.Name,
		EnableMDNS: set.EnableMDNS,
		UseTUI:     cfg.ServerTUI && !cfg.UseTUI,
		Debug:      set.Debug,
	}, s.eng, s.runtime, saver)

	if cfg.UseTUI {
		s.ctrl = ui.NewControl()
		s.prog = ui.NewProgram(s.ctrl)
	}

	return s, nil
}

// loadSequence picks the starting document: an explicit project file, the
// newest stored snapshot, or a fresh sequence
func (s *Session) loadSequence() (*timeline.Sequence, error) {
	if path := s.config.ProjectPath; path != "" {
		seq, err := readProject(path)
		if err != nil {
			return nil, fmt.Errorf("load project %s: %w", path, err)
		}
		log.Printf("Loaded project %s (%q, %.1fs)", path, seq.Name, seq.Duration())
		return seq, nil
	}

	if s.st != nil {
		name, data, err := s.st.LoadLatestSnapshot(context.Background())
		switch {
		case err == nil:
			seq, uerr := timeline.Unmarshal(data)
			if uerr != nil {
				log.Printf("Warning: stored snapshot unreadable: %v", uerr)
			} else {
				log.Printf("Restored snapshot %q (%q, %.1fs)", name, seq.Name, seq.Duration())
				return seq, nil
			}
		case errors.Is(err, store.ErrSnapshotNotFound):
			// First run with this store
		default:
			log.Printf("Warning: loading latest snapshot: %v", err)
		}
	}

	seq := timeline.NewSequence("Untitled")
	seq.CanvasW = s.config.Settings.CanvasW
	seq.CanvasH = s.config.Settings.CanvasH
	return seq, nil
}

// readProject loads a project file: YAML documents by extension,
// serialized sequences otherwise
func readProject(path string) (*timeline.Sequence, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return config.LoadProject(path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return timeline.Unmarshal(data)
	}
}

// Run starts every component and blocks until ctx is canceled, the TUI
// quits, or a component fails
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.eng.Run(ctx)
	})

	// The bridge stopping for any reason (listener failure, status TUI
	// quit) ends the session.
	g.Go(func() error {
		err := s.srv.Start()
		cancel()
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		s.srv.Stop()
		return nil
	})

	if s.prog != nil {
		g.Go(func() error {
			_, err := s.prog.Run()
			cancel()
			if err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			s.prog.Quit()
			return nil
		})
		g.Go(func() error {
			s.controlLoop(ctx, cancel)
			return nil
		})
		g.Go(func() error {
			s.statusLoop(ctx)
			return nil
		})
	}

	if s.st != nil && s.config.Settings.AutosaveSec > 0 {
		g.Go(func() error {
			s.autosaveLoop(ctx)
			return nil
		})
	}

	return g.Wait()
}

// Close releases the media runtime and store. Run must have returned.
func (s *Session) Close() {
	if s.runtime != nil {
		if err := s.runtime.Close(); err != nil {
			log.Printf("Warning: closing media runtime: %v", err)
		}
	}
	if s.st != nil {
		if err := s.st.Close(); err != nil {
			log.Printf("Warning: closing store: %v", err)
		}
	}
}

// controlLoop translates TUI key intents into engine commands
func (s *Session) controlLoop(ctx context.Context, quit func()) {
	for {
		select {
		case cmd := <-s.ctrl.Commands:
			s.handleControl(ctx, cmd)
		case <-s.ctrl.Quit:
			quit()
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) handleControl(ctx context.Context, cmd ui.Command) {
	st := s.eng.Status()

	switch cmd {
	case ui.CmdTogglePlay:
		if st.Playing {
			s.submit(engine.CmdPause{})
		} else {
			s.submit(engine.CmdPlay{})
		}
	case ui.CmdSeekBack:
		s.submit(engine.CmdSeek{Sec: st.Position - 1})
	case ui.CmdSeekForward:
		s.submit(engine.CmdSeek{Sec: st.Position + 1})
	case ui.CmdJumpBack:
		s.submit(engine.CmdSeek{Sec: st.Position - 10})
	case ui.CmdJumpForward:
		s.submit(engine.CmdSeek{Sec: st.Position + 10})
	case ui.CmdRateUp:
		s.submit(engine.CmdSetRate{Rate: clampRate(st.Rate + 0.25)})
	case ui.CmdRateDown:
		s.submit(engine.CmdSetRate{Rate: clampRate(st.Rate - 0.25)})
	case ui.CmdClearLoop:
		s.submit(engine.CmdClearLoop{})
	case ui.CmdUndo:
		s.submit(engine.CmdUndo{})
	case ui.CmdRedo:
		s.submit(engine.CmdRedo{})
	case ui.CmdSave:
		s.saveSnapshot(ctx, "")
	}
}

func (s *Session) submit(cmd engine.Command) {
	if err := s.eng.Submit(cmd); err != nil {
		log.Printf("Warning: %v", err)
	}
}

// statusLoop feeds the TUI an engine status message ten times a second
func (s *Session) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.prog.Send(s.statusMsg())
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) statusMsg() ui.StatusMsg {
	st := s.eng.Status()
	clients := s.srv.ClientCount()

	return ui.StatusMsg{
		Sequence:     st.Sequence,
		Playing:      &st.Playing,
		Position:     &st.Position,
		Duration:     &st.Duration,
		Rate:         &st.Rate,
		LoopStart:    st.LoopStart,
		LoopEnd:      st.LoopEnd,
		LoopSet:      &st.LoopSet,
		CanUndo:      &st.CanUndo,
		CanRedo:      &st.CanRedo,
		UndoLabel:    st.UndoLabel,
		RedoLabel:    st.RedoLabel,
		ActiveLayers: &st.ActiveLayers,
		OpenHandles:  &st.OpenHandles,
		Ticks:        &st.Ticks,
		Corrections:  &st.Corrections,
		Clients:      &clients,
		LastSaved:    s.getLastSaved(),
	}
}

// snapshot asks the engine for the serialized live sequence
func (s *Session) snapshot(ctx context.Context) (engine.SnapshotResult, error) {
	reply := make(chan engine.SnapshotResult, 1)
	if err := s.eng.Submit(engine.CmdSnapshot{Reply: reply}); err != nil {
		return engine.SnapshotResult{}, err
	}

	select {
	case res := <-reply:
		if res.Err != nil {
			return engine.SnapshotResult{}, res.Err
		}
		return res, nil
	case <-time.After(5 * time.Second):
		return engine.SnapshotResult{}, fmt.Errorf("snapshot request timed out")
	case <-ctx.Done():
		return engine.SnapshotResult{}, ctx.Err()
	}
}

// saveSnapshot stores the current sequence. An empty name uses the
// sequence's own name.
func (s *Session) saveSnapshot(ctx context.Context, name string) {
	if s.st == nil {
		log.Printf("Warning: no store, not saving")
		return
	}

	res, err := s.snapshot(ctx)
	if err != nil {
		log.Printf("Warning: snapshot failed: %v", err)
		return
	}
	if name == "" {
		name = res.Name
	}

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	id, err := s.st.SaveSnapshot(sctx, name, res.Data)
	if err != nil {
		log.Printf("Warning: saving snapshot: %v", err)
		return
	}

	s.setLastSaved(fmt.Sprintf("%s at %s", name, time.Now().Format("15:04:05")))
	log.Printf("Saved snapshot %q as %s", name, id)
}

// autosaveLoop periodically stores the sequence and prunes old autosaves.
// Identical back-to-back states are not saved again.
func (s *Session) autosaveLoop(ctx context.Context) {
	interval := time.Duration(s.config.Settings.AutosaveSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last []byte
	for {
		select {
		case <-ticker.C:
			res, err := s.snapshot(ctx)
			if err != nil {
				log.Printf("Warning: autosave: %v", err)
				continue
			}
			if bytes.Equal(res.Data, last) {
				continue
			}

			sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if _, err := s.st.SaveSnapshot(sctx, "autosave", res.Data); err != nil {
				log.Printf("Warning: autosave: %v", err)
				cancel()
				continue
			}
			if err := s.st.PruneSnapshots(sctx, s.config.Settings.AutosaveKeep); err != nil {
				log.Printf("Warning: pruning snapshots: %v", err)
			}
			cancel()

			last = res.Data
			s.setLastSaved(fmt.Sprintf("autosave at %s", time.Now().Format("15:04:05")))
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) setLastSaved(note string) {
	s.mu.Lock()
	s.lastSaved = note
	s.mu.Unlock()
}

func (s *Session) getLastSaved() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

func clampRate(r float64) float64 {
	if r < 0.25 {
		return 0.25
	}
	if r > 4 {
		return 4
	}
	return r
}
