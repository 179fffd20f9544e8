// ABOUTME: High-level client for preview engines
// ABOUTME: Handles discovery, connection, clock sync, and callback routing
package previz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Previz-Studio/previz-go/internal/bridge"
	"github.com/Previz-Studio/previz-go/internal/discovery"
	"github.com/Previz-Studio/previz-go/internal/protocol"
)

// ErrConnectionLost reports a dropped engine connection
var ErrConnectionLost = errors.New("engine connection lost")

// Config holds client configuration
type Config struct {
	// ServerAddr is the engine address (host:port). Leave empty to
	// connect to the first engine discovered on the local network.
	ServerAddr string

	// Name is the display name shown in the engine's connection list
	Name string

	// ClientID identifies this connection; engines reject duplicates.
	// Defaults to a random UUID.
	ClientID string

	// Roles requested in the handshake (default: editor and monitor)
	Roles []string

	// DiscoverTimeout bounds the mDNS browse when ServerAddr is empty
	// (default: 5s)
	DiscoverTimeout time.Duration

	// OnFrame is called for every composited frame received
	OnFrame func(Frame)

	// OnState is called when the engine transport state changes
	OnState func(TransportState)

	// OnSaved is called when a requested snapshot has been persisted
	OnSaved func(SavedSnapshot)

	// OnMonitorChunk is called with encoded monitor audio after
	// StartMonitor
	OnMonitorChunk func(MonitorChunk)

	// OnError is called for engine-reported and connection errors
	OnError func(error)
}

// SavedSnapshot identifies a snapshot persisted by the engine
type SavedSnapshot struct {
	ID   string
	Name string
}

// MonitorChunk is one timestamped packet of encoded monitor audio
type MonitorChunk = bridge.MonitorChunk

// EngineInfo describes the engine a client is connected to
type EngineInfo struct {
	ID       string
	Name     string
	Software string
	Protocol int
	Sequence string
	CanvasW  float64
	CanvasH  float64
}

// SyncStats reports the state of clock synchronization
type SyncStats struct {
	OffsetMicros int64
	RTTMicros    int64
	Quality      Quality
}

// EngineError is an error the engine reported over the bridge
type EngineError struct {
	Code    string
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Client is a high-level connection to a preview engine
type Client struct {
	config Config
	clock  *bridge.ClockSync

	mu        sync.RWMutex
	remote    *bridge.Remote
	info      EngineInfo
	lastState TransportState

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a client with the given configuration
func NewClient(config Config) (*Client, error) {
	if config.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "previz-client"
		}
		config.Name = hostname
	}
	if config.ClientID == "" {
		config.ClientID = uuid.New().String()
	}
	if len(config.Roles) == 0 {
		config.Roles = []string{"editor", "monitor"}
	}
	if config.DiscoverTimeout == 0 {
		config.DiscoverTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config: config,
		clock:  bridge.NewClockSync(),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Connect finds the engine, performs the handshake, and starts the
// receive and clock sync loops. Connect once per client.
func (c *Client) Connect() error {
	addr := c.config.ServerAddr
	if addr == "" {
		eng, err := discoverFirst(c.config.DiscoverTimeout)
		if err != nil {
			return err
		}
		log.Printf("Discovered engine: %s at %s", eng.Name, eng.Addr())
		addr = eng.Addr()
	}

	remote := bridge.NewRemote(bridge.RemoteConfig{
		ServerAddr: addr,
		ClientID:   c.config.ClientID,
		Name:       c.config.Name,
		Roles:      c.config.Roles,
	})
	if err := remote.Connect(); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	hello := remote.ServerInfo()
	if hello.Version != protocol.Version {
		log.Printf("Warning: engine speaks protocol %d, client speaks %d", hello.Version, protocol.Version)
	}

	c.mu.Lock()
	c.remote = remote
	c.info = EngineInfo{
		ID:       hello.ServerID,
		Name:     hello.Name,
		Software: hello.Software,
		Protocol: hello.Version,
		Sequence: hello.Sequence,
		CanvasW:  hello.CanvasW,
		CanvasH:  hello.CanvasH,
	}
	c.mu.Unlock()

	c.performInitialSync(remote)

	go c.handleFrames(remote)
	go c.handleStates(remote)
	go c.handleSaved(remote)
	go c.handleChunks(remote)
	go c.handleErrors(remote)
	go c.clockSyncLoop(remote)
	go c.watchConnection(remote)

	return nil
}

// performInitialSync runs a burst of sync rounds so the engine clock
// estimate is usable before the first frame arrives
func (c *Client) performInitialSync(remote *bridge.Remote) {
	for i := 0; i < 5; i++ {
		remote.SendTimeSync(bridge.LocalMicros())

		select {
		case resp := <-remote.TimeSyncResp:
			t4 := bridge.LocalMicros()
			c.clock.ProcessSyncResponse(resp.ClientTransmitted, resp.ServerReceived, resp.ServerTransmitted, t4)
		case <-time.After(500 * time.Millisecond):
			log.Printf("Initial sync round %d timeout", i+1)
		}

		time.Sleep(100 * time.Millisecond)
	}

	offset, rtt, quality := c.clock.GetStats()
	log.Printf("Initial clock sync: offset=%dμs rtt=%dμs quality=%s", offset, rtt, quality)
}

// clockSyncLoop keeps the engine clock estimate fresh
func (c *Client) clockSyncLoop(remote *bridge.Remote) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Drain stale responses
			for {
				select {
				case <-remote.TimeSyncResp:
					log.Printf("Discarded stale time sync response")
				default:
					goto sendRequest
				}
			}

		sendRequest:
			remote.SendTimeSync(bridge.LocalMicros())
			c.clock.CheckQuality()

		case resp := <-remote.TimeSyncResp:
			t4 := bridge.LocalMicros()
			c.clock.ProcessSyncResponse(resp.ClientTransmitted, resp.ServerReceived, resp.ServerTransmitted, t4)

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) handleFrames(remote *bridge.Remote) {
	for {
		select {
		case frame := <-remote.Frames:
			if c.config.OnFrame != nil {
				c.config.OnFrame(frame)
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) handleStates(remote *bridge.Remote) {
	for {
		select {
		case state := <-remote.States:
			c.mu.Lock()
			c.lastState = state
			c.mu.Unlock()
			if c.config.OnState != nil {
				c.config.OnState(state)
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) handleSaved(remote *bridge.Remote) {
	for {
		select {
		case saved := <-remote.Saved:
			if c.config.OnSaved != nil {
				c.config.OnSaved(SavedSnapshot{ID: saved.SnapshotID, Name: saved.Name})
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) handleChunks(remote *bridge.Remote) {
	for {
		select {
		case chunk := <-remote.Chunks:
			if c.config.OnMonitorChunk != nil {
				c.config.OnMonitorChunk(chunk)
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) handleErrors(remote *bridge.Remote) {
	for {
		select {
		case e := <-remote.Errors:
			c.notifyError(&EngineError{Code: e.Code, Message: e.Message})
		case <-c.ctx.Done():
			return
		}
	}
}

// watchConnection reports a dropped connection once and stops the loops
func (c *Client) watchConnection(remote *bridge.Remote) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if c.ctx.Err() != nil {
				return
			}
			if !remote.IsConnected() {
				c.notifyError(ErrConnectionLost)
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// remoteConn returns the connected remote or an error
func (c *Client) remoteConn() (*bridge.Remote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.remote == nil {
		return nil, fmt.Errorf("not connected")
	}
	return c.remote, nil
}

func (c *Client) transport(cmd protocol.TransportCommand) error {
	remote, err := c.remoteConn()
	if err != nil {
		return err
	}
	return remote.SendTransport(cmd)
}

func (c *Client) edit(cmd protocol.EditCommand) error {
	remote, err := c.remoteConn()
	if err != nil {
		return err
	}
	return remote.SendEdit(cmd)
}

// Play starts playback
func (c *Client) Play() error {
	return c.transport(protocol.TransportCommand{Action: "play"})
}

// Pause pauses playback
func (c *Client) Pause() error {
	return c.transport(protocol.TransportCommand{Action: "pause"})
}

// Seek moves the playhead to sec
func (c *Client) Seek(sec float64) error {
	return c.transport(protocol.TransportCommand{Action: "seek", Position: sec})
}

// SetRate changes playback speed; 1.0 is real time
func (c *Client) SetRate(rate float64) error {
	return c.transport(protocol.TransportCommand{Action: "rate", Rate: rate})
}

// SetLoop loops playback over the region from start to end
func (c *Client) SetLoop(start, end float64) error {
	return c.transport(protocol.TransportCommand{Action: "loop", LoopStart: start, LoopEnd: end})
}

// ClearLoop removes the loop region
func (c *Client) ClearLoop() error {
	return c.transport(protocol.TransportCommand{Action: "loop-clear"})
}

// AddElement adds an element to the live sequence. The engine assigns
// an ID when el.ID is empty; label names the undo entry.
func (c *Client) AddElement(el *Element, label string) error {
	data, err := json.Marshal(el)
	if err != nil {
		return fmt.Errorf("encode element: %w", err)
	}
	return c.edit(protocol.EditCommand{Action: "add", Element: data, Label: label})
}

// UpdateElement replaces an element and records an undo entry
func (c *Client) UpdateElement(el *Element, label string) error {
	data, err := json.Marshal(el)
	if err != nil {
		return fmt.Errorf("encode element: %w", err)
	}
	return c.edit(protocol.EditCommand{Action: "update", Element: data, Label: label})
}

// PreviewElement replaces an element without recording history. Use it
// for mid-gesture updates after opening the gesture with Commit.
func (c *Client) PreviewElement(el *Element) error {
	data, err := json.Marshal(el)
	if err != nil {
		return fmt.Errorf("encode element: %w", err)
	}
	return c.edit(protocol.EditCommand{Action: "update", Element: data, Transient: true})
}

// Commit records the current state as an undo point. Call it before a
// run of PreviewElement updates so undo restores the pre-gesture state;
// gestures that end up changing nothing are deduplicated away.
func (c *Client) Commit(label string) error {
	return c.edit(protocol.EditCommand{Action: "commit", Label: label})
}

// RemoveElement deletes an element from the live sequence
func (c *Client) RemoveElement(elementID, label string) error {
	return c.edit(protocol.EditCommand{Action: "remove", ElementID: elementID, Label: label})
}

// AddMarker drops a marker on the timeline ruler
func (c *Client) AddMarker(t float64, text, color string) error {
	return c.edit(protocol.EditCommand{Action: "add-marker", Time: t, Text: text, Color: color})
}

// SetTrackMuted mutes or unmutes a whole track
func (c *Client) SetTrackMuted(trackID string, muted bool) error {
	return c.edit(protocol.EditCommand{Action: "mute-track", TrackID: trackID, Muted: muted})
}

// Undo reverts the latest undoable edit
func (c *Client) Undo() error {
	return c.edit(protocol.EditCommand{Action: "undo"})
}

// Redo reapplies the latest undone edit
func (c *Client) Redo() error {
	return c.edit(protocol.EditCommand{Action: "redo"})
}

// LoadSequence replaces the engine's live sequence
func (c *Client) LoadSequence(seq *Sequence) error {
	remote, err := c.remoteConn()
	if err != nil {
		return err
	}
	return remote.LoadSequence(seq)
}

// Save asks the engine to persist a snapshot; OnSaved confirms it
func (c *Client) Save(name string) error {
	remote, err := c.remoteConn()
	if err != nil {
		return err
	}
	return remote.SaveProject(name)
}

// StartMonitor subscribes to the engine's encoded monitor mix
func (c *Client) StartMonitor() error {
	remote, err := c.remoteConn()
	if err != nil {
		return err
	}
	return remote.StartCapture()
}

// StopMonitor unsubscribes from the monitor mix
func (c *Client) StopMonitor() error {
	remote, err := c.remoteConn()
	if err != nil {
		return err
	}
	return remote.StopCapture()
}

// Info returns handshake details for the connected engine
func (c *Client) Info() EngineInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// State returns the last transport state received from the engine
func (c *Client) State() TransportState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastState
}

// Stats returns clock sync statistics
func (c *Client) Stats() SyncStats {
	offset, rtt, quality := c.clock.GetStats()
	return SyncStats{OffsetMicros: offset, RTTMicros: rtt, Quality: quality}
}

// EngineMicros returns the current time on the engine clock
func (c *Client) EngineMicros() int64 {
	return c.clock.EngineMicros()
}

// IsConnected reports whether the bridge connection is up
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	remote := c.remote
	c.mu.RUnlock()
	return remote != nil && remote.IsConnected()
}

// Close disconnects and stops the client goroutines. Safe to call more
// than once.
func (c *Client) Close() error {
	c.cancel()

	c.mu.RLock()
	remote := c.remote
	c.mu.RUnlock()
	if remote != nil {
		remote.Close()
	}
	return nil
}

// notifyError calls OnError or logs when no callback is set
func (c *Client) notifyError(err error) {
	if c.config.OnError != nil {
		c.config.OnError(err)
	} else {
		log.Printf("Client error: %v", err)
	}
}

// Engine describes a preview engine discovered on the local network
type Engine struct {
	Name string
	Host string
	Port int
}

// Addr returns the engine's dialable host:port address
func (e Engine) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Discover browses the local network for preview engines until the
// timeout passes and returns everything found
func Discover(timeout time.Duration) ([]Engine, error) {
	mgr := discovery.NewManager(discovery.Config{})
	defer mgr.Stop()

	if err := mgr.Browse(); err != nil {
		return nil, fmt.Errorf("browse failed: %w", err)
	}

	deadline := time.After(timeout)
	seen := make(map[string]bool)
	var engines []Engine

	for {
		select {
		case info := <-mgr.Engines():
			if seen[info.Addr()] {
				continue
			}
			seen[info.Addr()] = true
			engines = append(engines, Engine{Name: info.Name, Host: info.Host, Port: info.Port})
		case <-deadline:
			return engines, nil
		}
	}
}

// discoverFirst returns the first engine found on the local network
func discoverFirst(timeout time.Duration) (Engine, error) {
	mgr := discovery.NewManager(discovery.Config{})
	defer mgr.Stop()

	if err := mgr.Browse(); err != nil {
		return Engine{}, fmt.Errorf("browse failed: %w", err)
	}

	select {
	case info := <-mgr.Engines():
		return Engine{Name: info.Name, Host: info.Host, Port: info.Port}, nil
	case <-time.After(timeout):
		return Engine{}, fmt.Errorf("no engine found within %s", timeout)
	}
}
