package client

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carebridge/voice-gateway/internal/protocol"
)

// SessionConfig is sent with the handshake so the server knows the inbound
// audio format.
type SessionConfig struct {
	SampleRate int
	Channels   int
}

// Transport is a client-side connection to the gateway. Inbound events are
// delivered on the Events channel; outbound commands go through typed
// methods. All methods are safe for concurrent use.
type Transport struct {
	url    string
	dialer *websocket.Dialer
	log    *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	draining  bool // dropping audio-out until the next audio-stop
	disposed  bool

	events chan protocol.Event
}

// New creates a transport for the gateway at url (ws:// or wss://).
func New(url string, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}
	return &Transport{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   16384,
			WriteBufferSize:  16384,
		},
		log:    log,
		events: make(chan protocol.Event, 64),
	}
}

// Events returns the inbound event stream. The channel closes on Dispose.
func (t *Transport) Events() <-chan protocol.Event { return t.events }

// IsConnected reports whether the channel is open.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Connect opens the channel and performs the handshake. It is idempotent: a
// second call while connected is a no-op.
func (t *Transport) Connect(credential string, cfg SessionConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return fmt.Errorf("transport disposed")
	}
	if t.connected {
		return nil
	}

	conn, _, err := t.dialer.Dial(t.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.url, err)
	}

	payload := map[string]any{"credential": credential}
	if cfg.SampleRate > 0 {
		payload["sample_rate"] = cfg.SampleRate
	}
	if cfg.Channels > 0 {
		payload["channels"] = cfg.Channels
	}
	if err = writeCommand(conn, protocol.Command{Kind: protocol.CommandHello, Payload: payload}); err != nil {
		conn.Close()
		return fmt.Errorf("handshake: %w", err)
	}

	t.conn = conn
	t.connected = true
	t.draining = false
	go t.readLoop(conn)
	return nil
}

// SendAudio frames PCM bytes as an audio-chunk command. It is a no-op when
// disconnected; callers poll IsConnected instead of handling errors here.
func (t *Transport) SendAudio(pcm []byte) {
	t.sendCommand(protocol.Command{
		Kind:    protocol.CommandAudioChunk,
		Payload: map[string]any{"data": base64.StdEncoding.EncodeToString(pcm)},
	})
}

// TurnComplete signals explicit end of utterance.
func (t *Transport) TurnComplete() {
	t.sendCommand(protocol.Command{Kind: protocol.CommandTurnComplete})
}

// BargeIn asks the server to cancel the in-flight turn. Until the matching
// audio-stop arrives, inbound audio-out events are dropped so late chunks
// from the cancelled turn never reach playback.
func (t *Transport) BargeIn(reason string) {
	t.mu.Lock()
	if t.connected {
		t.draining = true
	}
	t.mu.Unlock()
	t.sendCommand(protocol.Command{
		Kind: protocol.CommandBargeIn,
		Payload: map[string]any{
			"reason":    reason,
			"timestamp": time.Now().UnixMilli(),
		},
	})
}

// Flushed acknowledges that queued playback was discarded after audio-stop.
func (t *Transport) Flushed() {
	t.sendCommand(protocol.Command{Kind: protocol.CommandAudioFlushed})
}

// Disconnect sends a stop command, then closes the channel. Safe to call
// repeatedly.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return
	}
	conn := t.conn
	t.connected = false
	t.conn = nil
	t.mu.Unlock()

	if err := writeCommand(conn, protocol.Command{Kind: protocol.CommandStop}); err != nil {
		t.log.Debug("stop command failed", "error", err)
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	t.deliver(protocol.Event{
		Kind:    protocol.EventSessionState,
		Payload: map[string]any{"state": protocol.StateDisconnected},
	})
}

// Dispose disconnects and closes the event stream. The transport cannot be
// reused afterwards.
func (t *Transport) Dispose() {
	t.Disconnect()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return
	}
	t.disposed = true
	close(t.events)
}

func (t *Transport) sendCommand(cmd protocol.Command) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return
	}
	if err := writeCommand(t.conn, cmd); err != nil {
		t.log.Warn("command send failed", "kind", string(cmd.Kind), "error", err)
	}
}

func writeCommand(conn *websocket.Conn, cmd protocol.Command) error {
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop parses inbound events until the connection drops. Parse failures
// surface as local error events and never close the channel.
func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleClosed(conn)
			return
		}

		ev, err := protocol.DecodeEvent(data)
		if err != nil {
			t.deliver(protocol.Event{
				Kind:    protocol.EventError,
				Payload: map[string]any{"code": "parse", "message": err.Error()},
			})
			continue
		}

		if !t.admit(ev) {
			continue
		}
		t.deliver(ev)
	}
}

// admit applies barge-in gating to one inbound event.
func (t *Transport) admit(ev protocol.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch ev.Kind {
	case protocol.EventAudioOut:
		return !t.draining
	case protocol.EventAudioStop:
		t.draining = false
	}
	return true
}

func (t *Transport) handleClosed(conn *websocket.Conn) {
	t.mu.Lock()
	wasConnected := t.connected && t.conn == conn
	if wasConnected {
		t.connected = false
		t.conn = nil
	}
	t.mu.Unlock()

	conn.Close()
	if wasConnected {
		t.deliver(protocol.Event{
			Kind:    protocol.EventSessionState,
			Payload: map[string]any{"state": protocol.StateDisconnected},
		})
	}
}

// deliver pushes an event without blocking the read loop; a full buffer
// drops the oldest pending event first.
func (t *Transport) deliver(ev protocol.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return
	}
	select {
	case t.events <- ev:
	default:
		select {
		case <-t.events:
		default:
		}
		select {
		case t.events <- ev:
		default:
		}
	}
}
