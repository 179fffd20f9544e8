// ABOUTME: WebSocket bridge between the engine and editor clients
// ABOUTME: Manages connections, command dispatch, frame broadcast, and capture
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Previz-Studio/previz-go/internal/compositor"
	"github.com/Previz-Studio/previz-go/internal/discovery"
	"github.com/Previz-Studio/previz-go/internal/engine"
	"github.com/Previz-Studio/previz-go/internal/media"
	"github.com/Previz-Studio/previz-go/internal/protocol"
	"github.com/Previz-Studio/previz-go/internal/timeline"
	"github.com/Previz-Studio/previz-go/internal/version"
)

// CaptureSource provides the monitor mix for capture streaming. A media
// Runtime satisfies it.
type CaptureSource interface {
	MixTap() (*media.Tap, error)
	CloseTap(t *media.Tap)
	Format() (sampleRate, channels int)
}

// SnapshotSaver persists sequence snapshots for project/save requests. A
// store satisfies it.
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, name string, data []byte) (string, error)
}

// Config holds bridge server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
	UseTUI     bool
	Debug      bool
}

// Server accepts editor connections and couples them to the engine
type Server struct {
	config   Config
	serverID string

	eng     *engine.Engine
	capture CaptureSource
	saver   SnapshotSaver

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	clients   map[string]*Client
	clientsMu sync.RWMutex

	mdnsManager *discovery.Manager
	tui         *StatusTUI
	startTime   time.Time

	portMu    sync.Mutex
	boundPort int

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client represents one connected editor or monitor
type Client struct {
	ID    string
	Name  string
	Conn  *websocket.Conn
	Roles []string

	sendChan chan interface{}

	mu          sync.Mutex
	closed      bool
	captureTap  *media.Tap
	captureDone chan struct{}
}

// send queues a message without blocking. Capture and save replies can
// arrive after disconnect, so the closed check and the channel send stay
// under one lock.
func (c *Client) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("client disconnected")
	}
	select {
	case c.sendChan <- v:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

// shutdown stops the client's writer. Safe to call more than once.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.sendChan)
	}
}

// New creates a bridge server around the engine. capture and saver may be
// nil; the matching requests then fail with a protocol error.
func New(config Config, eng *engine.Engine, capture CaptureSource, saver SnapshotSaver) *Server {
	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		eng:      eng,
		capture:  capture,
		saver:    saver,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Editors on the local network; non-browser clients send
				// no Origin header
				origin := r.Header.Get("Origin")
				if origin != "" {
					log.Printf("Warning: accepting WebSocket from origin: %s", origin)
				}
				return true
			},
		},
		clients:   make(map[string]*Client),
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}
	s.mux.HandleFunc("/previz", s.handleWebSocket)
	return s
}

// Handler exposes the bridge's HTTP mux so it can be mounted inside an
// existing server instead of Start's own listener
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the bridge until Stop is called or the listener fails
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge listen on %s: %w", addr, err)
	}

	// Port 0 binds an ephemeral port; record what we actually got
	s.portMu.Lock()
	s.boundPort = ln.Addr().(*net.TCPAddr).Port
	s.portMu.Unlock()

	if s.config.UseTUI {
		s.tui = NewStatusTUI()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(s.config.Name, s.Port()); err != nil {
				log.Printf("Warning: status TUI failed: %v", err)
			}
		}()
	}

	log.Printf("Bridge starting: %s (ID: %s)", s.config.Name, s.serverID)

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			Name: s.config.Name,
			Port: s.Port(),
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		}
	}

	frames, cancelFrames := s.eng.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.broadcastLoop(frames)
	}()

	log.Printf("Bridge listening on %s", ln.Addr())

	s.httpServer = &http.Server{
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	var serverErr error
	select {
	case <-s.stopChan:
		log.Printf("Bridge shutting down...")
	case <-tuiQuitChan:
		log.Printf("TUI quit requested, shutting down...")
	case err := <-errChan:
		log.Printf("HTTP server error: %v", err)
		serverErr = err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	s.Stop()
	cancelFrames()

	if s.tui != nil {
		s.tui.Stop()
	}
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	s.wg.Wait()
	log.Printf("Bridge stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop asks the bridge to shut down
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Port reports the listening port. Before Start binds its listener this
// is the configured port, which may be zero.
func (s *Server) Port() int {
	s.portMu.Lock()
	defer s.portMu.Unlock()
	if s.boundPort != 0 {
		return s.boundPort
	}
	return s.config.Port
}

// ClientCount reports how many clients are connected
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// broadcastLoop fans engine frames out to every client and publishes
// transport state when it changes. Position advances every tick during
// playback, so it is excluded from the change check; clients read it
// from the frame stream.
func (s *Server) broadcastLoop(frames <-chan compositor.Frame) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastState protocol.TransportState
	haveState := false

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}

			s.clientsMu.RLock()
			for _, client := range s.clients {
				if err := s.sendMessage(client, "frame/update", frame); err != nil && s.config.Debug {
					log.Printf("[DEBUG] Dropping frame for %s: %v", client.Name, err)
				}
			}
			s.clientsMu.RUnlock()

			state := transportState(s.eng.Status())
			if !haveState || stateChanged(lastState, state) {
				lastState = state
				haveState = true
				s.clientsMu.RLock()
				for _, client := range s.clients {
					s.sendMessage(client, "transport/state", state)
				}
				s.clientsMu.RUnlock()
			}

		case <-ticker.C:
			s.updateTUI()

		case <-s.stopChan:
			return
		}
	}
}

func stateChanged(a, b protocol.TransportState) bool {
	a.Position, b.Position = 0, 0
	return a != b
}

// updateTUI pushes connection and transport info to the status display
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}

	s.clientsMu.RLock()
	infos := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		infos = append(infos, ClientInfo{ID: c.ID, Name: c.Name, Roles: c.Roles})
	}
	s.clientsMu.RUnlock()

	st := s.eng.Status()
	s.tui.UpdateStatus(ServerStatus{
		Name:     s.config.Name,
		Port:     s.Port(),
		Uptime:   time.Since(s.startTime),
		Clients:  infos,
		Sequence: st.Sequence,
		Playing:  st.Playing,
		Position: st.Position,
		Duration: st.Duration,
	})
}

// startCapture streams the monitor mix to the client as opus chunks
func (s *Server) startCapture(client *Client) {
	if s.capture == nil {
		s.sendError(client, "capture_unavailable", media.ErrCaptureUnavailable.Error())
		return
	}

	client.mu.Lock()
	already := client.captureTap != nil
	client.mu.Unlock()
	if already {
		return
	}

	tap, err := s.capture.MixTap()
	if err != nil {
		s.sendError(client, "capture_failed", err.Error())
		return
	}

	sampleRate, channels := s.capture.Format()
	enc, err := media.NewOpusEncoder(sampleRate, channels, sampleRate/50)
	if err != nil {
		s.capture.CloseTap(tap)
		s.sendError(client, "capture_failed", err.Error())
		return
	}

	done := make(chan struct{})
	client.mu.Lock()
	client.captureTap = tap
	client.captureDone = done
	client.mu.Unlock()

	log.Printf("Capture started for %s", client.Name)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case frame, ok := <-tap.Frames:
				if !ok {
					return
				}
				packet, err := enc.Encode(frame)
				if err != nil {
					log.Printf("Opus encode error: %v", err)
					continue
				}
				chunk := protocol.EncodeMonitorChunk(s.eng.Micros(), packet)
				if err := s.sendBinary(client, chunk); err != nil && s.config.Debug {
					log.Printf("[DEBUG] Dropping capture chunk for %s: %v", client.Name, err)
				}
			case <-done:
				return
			case <-s.stopChan:
				return
			}
		}
	}()
}

// stopCapture tears down a client's capture stream if one is running
func (s *Server) stopCapture(client *Client) {
	client.mu.Lock()
	tap := client.captureTap
	done := client.captureDone
	client.captureTap = nil
	client.captureDone = nil
	client.mu.Unlock()

	if tap == nil {
		return
	}
	s.capture.CloseTap(tap)
	close(done)
	log.Printf("Capture stopped for %s", client.Name)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("New WebSocket connection from %s", r.RemoteAddr)
	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		log.Printf("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	if s.config.Debug {
		log.Printf("[DEBUG] New connection, waiting for handshake")
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		log.Printf("Error reading hello: %v", err)
		return
	}

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}
	if msg.Type != "client/hello" {
		log.Printf("Expected client/hello, got %s", msg.Type)
		return
	}

	var hello protocol.ClientHello
	if err := protocol.DecodePayload(msg.Payload, &hello); err != nil {
		log.Printf("Error decoding client hello: %v", err)
		return
	}
	if hello.ClientID == "" || hello.Name == "" {
		log.Printf("Client hello missing ClientID or Name")
		return
	}

	log.Printf("Client hello: %s (ID: %s, Roles: %v)", hello.Name, hello.ClientID, hello.Roles)

	client := &Client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		Roles:    hello.Roles,
		sendChan: make(chan interface{}, 100),
	}

	s.clientsMu.Lock()
	if existing, exists := s.clients[hello.ClientID]; exists {
		s.clientsMu.Unlock()
		log.Printf("Client ID %s already connected (name: %s), rejecting duplicate", hello.ClientID, existing.Name)

		reject := protocol.Message{
			Type: "server/error",
			Payload: protocol.ErrorPayload{
				Code:    "duplicate_client_id",
				Message: "client ID already connected",
			},
		}
		if data, err := json.Marshal(reject); err == nil {
			conn.WriteMessage(websocket.TextMessage, data)
		}
		return
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	s.updateTUI()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.clientsMu.Unlock()
		s.stopCapture(client)
		client.shutdown()
		log.Printf("Client disconnected: %s", client.Name)
		s.updateTUI()
	}()

	status := s.eng.Status()
	serverHello := protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  protocol.Version,
		Software: version.Version,
		Sequence: status.Sequence,
		CanvasW:  status.CanvasW,
		CanvasH:  status.CanvasH,
	}
	if err := s.sendMessage(client, "server/hello", serverHello); err != nil {
		log.Printf("Error sending server hello: %v", err)
		return
	}
	s.sendMessage(client, "transport/state", transportState(status))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(client)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		s.handleClientMessage(client, data)
	}
}

// clientWriter drains a client's send channel onto the wire
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	const writeDeadline = 10 * time.Second

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				return
			}

			switch v := msg.(type) {
			case []byte:
				client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := client.Conn.WriteMessage(websocket.BinaryMessage, v); err != nil {
					log.Printf("Error writing binary message: %v", err)
					return
				}
			default:
				data, err := json.Marshal(v)
				if err != nil {
					log.Printf("Error marshaling message: %v", err)
					continue
				}
				client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Printf("Error writing text message: %v", err)
					return
				}
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// handleClientMessage dispatches one decoded message from a client
func (s *Server) handleClientMessage(client *Client, data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}

	switch msg.Type {
	case "client/time":
		s.handleTimeSync(client, msg.Payload)
	case "transport/command":
		s.handleTransportCommand(client, msg.Payload)
	case "edit/command":
		s.handleEditCommand(client, msg.Payload)
	case "project/load":
		s.handleProjectLoad(client, msg.Payload)
	case "project/save":
		s.handleProjectSave(client, msg.Payload)
	case "capture/start":
		s.startCapture(client)
	case "capture/stop":
		s.stopCapture(client)
	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

// handleTimeSync answers echo requests against the engine clock
func (s *Server) handleTimeSync(client *Client, payload interface{}) {
	serverRecv := s.eng.Micros()

	var clientTime protocol.ClientTime
	if err := protocol.DecodePayload(payload, &clientTime); err != nil {
		log.Printf("Error decoding client time: %v", err)
		return
	}

	serverSend := s.eng.Micros()

	if s.config.Debug {
		log.Printf("[DEBUG] Time sync for %s: t1=%d, t2=%d, t3=%d",
			client.Name, clientTime.ClientTransmitted, serverRecv, serverSend)
	}

	response := protocol.ServerTime{
		ClientTransmitted: clientTime.ClientTransmitted,
		ServerReceived:    serverRecv,
		ServerTransmitted: serverSend,
	}
	if err := s.sendMessage(client, "server/time", response); err != nil {
		log.Printf("Error sending server time: %v", err)
	}
}

func (s *Server) handleTransportCommand(client *Client, payload interface{}) {
	var cmd protocol.TransportCommand
	if err := protocol.DecodePayload(payload, &cmd); err != nil {
		s.sendError(client, "bad_payload", err.Error())
		return
	}

	mapped, err := transportCommand(cmd)
	if err != nil {
		s.sendError(client, "bad_command", err.Error())
		return
	}
	if err := s.eng.Submit(mapped); err != nil {
		s.sendError(client, "queue_full", err.Error())
	}
}

func (s *Server) handleEditCommand(client *Client, payload interface{}) {
	var cmd protocol.EditCommand
	if err := protocol.DecodePayload(payload, &cmd); err != nil {
		s.sendError(client, "bad_payload", err.Error())
		return
	}

	mapped, err := editCommand(cmd)
	if err != nil {
		s.sendError(client, "bad_command", err.Error())
		return
	}
	if err := s.eng.Submit(mapped); err != nil {
		s.sendError(client, "queue_full", err.Error())
	}
}

func (s *Server) handleProjectLoad(client *Client, payload interface{}) {
	var load protocol.ProjectLoad
	if err := protocol.DecodePayload(payload, &load); err != nil {
		s.sendError(client, "bad_payload", err.Error())
		return
	}

	seq, err := timeline.Unmarshal(load.Sequence)
	if err != nil {
		s.sendError(client, "bad_sequence", err.Error())
		return
	}

	log.Printf("Loading sequence %q from %s", seq.Name, client.Name)
	if err := s.eng.Submit(engine.CmdLoadSequence{Seq: seq}); err != nil {
		s.sendError(client, "queue_full", err.Error())
	}
}

func (s *Server) handleProjectSave(client *Client, payload interface{}) {
	var req protocol.ProjectSave
	if err := protocol.DecodePayload(payload, &req); err != nil {
		s.sendError(client, "bad_payload", err.Error())
		return
	}
	if s.saver == nil {
		s.sendError(client, "save_unavailable", "no snapshot store configured")
		return
	}

	reply := make(chan engine.SnapshotResult, 1)
	if err := s.eng.Submit(engine.CmdSnapshot{Reply: reply}); err != nil {
		s.sendError(client, "queue_full", err.Error())
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case res := <-reply:
			if res.Err != nil {
				s.sendError(client, "snapshot_failed", res.Err.Error())
				return
			}
			name := req.Name
			if name == "" {
				name = res.Name
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			id, err := s.saver.SaveSnapshot(ctx, name, res.Data)
			if err != nil {
				s.sendError(client, "save_failed", err.Error())
				return
			}

			log.Printf("Snapshot saved: %s (%s)", name, id)
			s.sendMessage(client, "project/saved", protocol.ProjectSaved{SnapshotID: id, Name: name})

		case <-time.After(5 * time.Second):
			s.sendError(client, "snapshot_timeout", "engine did not answer")
		case <-s.stopChan:
		}
	}()
}

// sendMessage queues a JSON message without blocking
func (s *Server) sendMessage(client *Client, msgType string, payload interface{}) error {
	return client.send(protocol.Message{
		Type:    msgType,
		Payload: payload,
	})
}

// sendBinary queues binary data without blocking
func (s *Server) sendBinary(client *Client, data []byte) error {
	return client.send(data)
}

func (s *Server) sendError(client *Client, code, message string) {
	s.sendMessage(client, "server/error", protocol.ErrorPayload{
		Code:    code,
		Message: message,
	})
}

// transportCommand maps a wire transport command onto an engine command
func transportCommand(cmd protocol.TransportCommand) (engine.Command, error) {
	switch cmd.Action {
	case "play":
		return engine.CmdPlay{}, nil
	case "pause":
		return engine.CmdPause{}, nil
	case "seek":
		return engine.CmdSeek{Sec: cmd.Position}, nil
	case "rate":
		return engine.CmdSetRate{Rate: cmd.Rate}, nil
	case "loop":
		return engine.CmdSetLoop{Start: cmd.LoopStart, End: cmd.LoopEnd}, nil
	case "loop-clear":
		return engine.CmdClearLoop{}, nil
	}
	return nil, fmt.Errorf("unknown transport action %q", cmd.Action)
}

// editCommand maps a wire edit command onto an engine command
func editCommand(cmd protocol.EditCommand) (engine.Command, error) {
	switch cmd.Action {
	case "add", "update":
		var el timeline.Element
		if err := json.Unmarshal(cmd.Element, &el); err != nil {
			return nil, fmt.Errorf("parse element: %w", err)
		}
		el.Normalize()

		if cmd.Action == "add" {
			if el.ID == "" {
				el.ID = uuid.New().String()
			}
			return engine.CmdAddElement{El: &el, Label: cmd.Label}, nil
		}

		label := cmd.Label
		if cmd.Transient {
			label = ""
		} else if label == "" {
			label = "edit"
		}
		return engine.CmdUpdateElement{El: &el, Label: label}, nil

	case "remove":
		if cmd.ElementID == "" {
			return nil, fmt.Errorf("remove needs element_id")
		}
		return engine.CmdRemoveElement{ID: cmd.ElementID, Label: cmd.Label}, nil

	case "undo":
		return engine.CmdUndo{}, nil
	case "redo":
		return engine.CmdRedo{}, nil

	case "commit":
		label := cmd.Label
		if label == "" {
			label = "edit"
		}
		return engine.CmdCommit{Label: label}, nil

	case "add-marker":
		return engine.CmdAddMarker{Time: cmd.Time, Text: cmd.Text, Color: cmd.Color, Label: cmd.Label}, nil

	case "mute-track":
		if cmd.TrackID == "" {
			return nil, fmt.Errorf("mute-track needs track_id")
		}
		return engine.CmdSetTrackMuted{TrackID: cmd.TrackID, Muted: cmd.Muted, Label: cmd.Label}, nil
	}
	return nil, fmt.Errorf("unknown edit action %q", cmd.Action)
}

// transportState converts an engine status to its wire form
func transportState(st engine.Status) protocol.TransportState {
	return protocol.TransportState{
		Sequence:  st.Sequence,
		Playing:   st.Playing,
		Position:  st.Position,
		Rate:      st.Rate,
		Duration:  st.Duration,
		LoopStart: st.LoopStart,
		LoopEnd:   st.LoopEnd,
		LoopSet:   st.LoopSet,
		CanUndo:   st.CanUndo,
		CanRedo:   st.CanRedo,
		UndoLabel: st.UndoLabel,
		RedoLabel: st.RedoLabel,
	}
}
