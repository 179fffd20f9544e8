// ABOUTME: WebSocket remote client for editor and monitor connections
// ABOUTME: Handles connection, handshake, and message routing
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Previz-Studio/previz-go/internal/compositor"
	"github.com/Previz-Studio/previz-go/internal/protocol"
	"github.com/Previz-Studio/previz-go/internal/timeline"
)

// RemoteConfig holds remote client configuration
type RemoteConfig struct {
	ServerAddr string
	ClientID   string
	Name       string
	Roles      []string
}

// Remote is the editor-side endpoint of a bridge connection. Incoming
// traffic is routed onto the exported channels.
type Remote struct {
	config RemoteConfig
	conn   *websocket.Conn
	mu     sync.RWMutex

	// Serializes writes; gorilla connections allow one writer at a time
	writeMu sync.Mutex

	// Message channels
	Frames       chan compositor.Frame
	States       chan protocol.TransportState
	TimeSyncResp chan protocol.ServerTime
	Chunks       chan MonitorChunk
	Saved        chan protocol.ProjectSaved
	Errors       chan protocol.ErrorPayload

	serverHello protocol.ServerHello

	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// MonitorChunk is one timestamped frame of encoded monitor audio
type MonitorChunk struct {
	Timestamp int64 // Microseconds, engine clock
	Data      []byte
}

// NewRemote creates a remote client
func NewRemote(config RemoteConfig) *Remote {
	ctx, cancel := context.WithCancel(context.Background())

	return &Remote{
		config:       config,
		Frames:       make(chan compositor.Frame, 8),
		States:       make(chan protocol.TransportState, 10),
		TimeSyncResp: make(chan protocol.ServerTime, 10),
		Chunks:       make(chan MonitorChunk, 100),
		Saved:        make(chan protocol.ProjectSaved, 1),
		Errors:       make(chan protocol.ErrorPayload, 10),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Connect establishes the WebSocket connection and performs the handshake
func (c *Remote) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: "/previz"}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

func (c *Remote) handshake() error {
	roles := c.config.Roles
	if len(roles) == 0 {
		roles = []string{"editor"}
	}

	hello := protocol.Message{
		Type: "client/hello",
		Payload: protocol.ClientHello{
			ClientID: c.config.ClientID,
			Name:     c.config.Name,
			Version:  protocol.Version,
			Roles:    roles,
		},
	}
	if err := c.sendJSON(hello); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	if msg.Type == "server/error" {
		var errPayload protocol.ErrorPayload
		protocol.DecodePayload(msg.Payload, &errPayload)
		return fmt.Errorf("rejected by server: %s (%s)", errPayload.Message, errPayload.Code)
	}
	if msg.Type != "server/hello" {
		return fmt.Errorf("expected server/hello, got %s", msg.Type)
	}

	var serverHello protocol.ServerHello
	if err := protocol.DecodePayload(msg.Payload, &serverHello); err != nil {
		return fmt.Errorf("failed to decode server/hello: %w", err)
	}

	c.mu.Lock()
	c.serverHello = serverHello
	c.mu.Unlock()

	log.Printf("Connected to %s (sequence: %s)", serverHello.Name, serverHello.Sequence)
	return nil
}

// ServerInfo returns the handshake response from the engine
func (c *Remote) ServerInfo() protocol.ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverHello
}

func (c *Remote) sendJSON(msg protocol.Message) error {
	c.mu.RLock()
	connected := c.connected
	conn := c.conn
	c.mu.RUnlock()

	if !connected {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// readMessages reads and routes incoming messages until the connection
// drops
func (c *Remote) readMessages() {
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Printf("Read error: %v", err)
			return
		}

		if messageType == websocket.BinaryMessage {
			c.handleBinaryMessage(data)
		} else if messageType == websocket.TextMessage {
			c.handleJSONMessage(data)
		}
	}
}

// handleBinaryMessage handles monitor audio chunks
func (c *Remote) handleBinaryMessage(data []byte) {
	timestamp, payload, err := protocol.DecodeMonitorChunk(data)
	if err != nil {
		log.Printf("Invalid binary message: %v", err)
		return
	}

	chunk := MonitorChunk{Timestamp: timestamp, Data: payload}

	select {
	case c.Chunks <- chunk:
	case <-c.ctx.Done():
	}
}

// handleJSONMessage routes JSON messages onto the typed channels
func (c *Remote) handleJSONMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Failed to parse JSON message: %v", err)
		return
	}

	switch msg.Type {
	case "frame/update":
		var frame compositor.Frame
		if err := protocol.DecodePayload(msg.Payload, &frame); err != nil {
			log.Printf("Failed to decode frame: %v", err)
			return
		}
		// Stale frames are useless to a monitor; drop rather than block
		select {
		case c.Frames <- frame:
		default:
		}

	case "transport/state":
		var state protocol.TransportState
		if err := protocol.DecodePayload(msg.Payload, &state); err != nil {
			log.Printf("Failed to decode transport state: %v", err)
			return
		}
		select {
		case c.States <- state:
		case <-c.ctx.Done():
		}

	case "server/time":
		var timeMsg protocol.ServerTime
		if err := protocol.DecodePayload(msg.Payload, &timeMsg); err != nil {
			return
		}
		select {
		case c.TimeSyncResp <- timeMsg:
		case <-c.ctx.Done():
		}

	case "project/saved":
		var saved protocol.ProjectSaved
		if err := protocol.DecodePayload(msg.Payload, &saved); err != nil {
			return
		}
		select {
		case c.Saved <- saved:
		case <-c.ctx.Done():
		}

	case "server/error":
		var errPayload protocol.ErrorPayload
		if err := protocol.DecodePayload(msg.Payload, &errPayload); err != nil {
			return
		}
		log.Printf("Server error: %s (%s)", errPayload.Message, errPayload.Code)
		select {
		case c.Errors <- errPayload:
		case <-c.ctx.Done():
		}

	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

// SendTransport sends a transport/command message
func (c *Remote) SendTransport(cmd protocol.TransportCommand) error {
	return c.sendJSON(protocol.Message{Type: "transport/command", Payload: cmd})
}

// SendEdit sends an edit/command message
func (c *Remote) SendEdit(cmd protocol.EditCommand) error {
	return c.sendJSON(protocol.Message{Type: "edit/command", Payload: cmd})
}

// SendTimeSync sends a client/time message carrying local transmit time
func (c *Remote) SendTimeSync(t1 int64) error {
	msg := protocol.Message{
		Type:    "client/time",
		Payload: protocol.ClientTime{ClientTransmitted: t1},
	}
	return c.sendJSON(msg)
}

// LoadSequence sends a whole sequence for the engine to adopt
func (c *Remote) LoadSequence(seq *timeline.Sequence) error {
	data, err := seq.Marshal()
	if err != nil {
		return err
	}
	msg := protocol.Message{
		Type:    "project/load",
		Payload: protocol.ProjectLoad{Sequence: data},
	}
	return c.sendJSON(msg)
}

// SaveProject asks the engine to snapshot the live sequence
func (c *Remote) SaveProject(name string) error {
	msg := protocol.Message{
		Type:    "project/save",
		Payload: protocol.ProjectSave{Name: name},
	}
	return c.sendJSON(msg)
}

// StartCapture subscribes to the encoded monitor mix
func (c *Remote) StartCapture() error {
	return c.sendJSON(protocol.Message{Type: "capture/start"})
}

// StopCapture unsubscribes from the monitor mix
func (c *Remote) StopCapture() error {
	return c.sendJSON(protocol.Message{Type: "capture/stop"})
}

// Close closes the connection. Safe to call more than once.
func (c *Remote) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		log.Printf("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Remote) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
