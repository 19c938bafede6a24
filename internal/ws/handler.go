package ws

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carebridge/voice-gateway/internal/protocol"
	"github.com/carebridge/voice-gateway/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const helloTimeout = 10 * time.Second

// HandlerConfig holds the shared session wiring for all connections.
type HandlerConfig struct {
	Session       session.Config
	AuthToken     string
	MaxConcurrent int
	Logger        *slog.Logger
}

// Handler upgrades connections and runs voice sessions with admission control.
type Handler struct {
	cfg HandlerConfig
	log *slog.Logger
	sem chan struct{}
}

// NewHandler creates a WebSocket handler with a concurrency limit.
func NewHandler(cfg HandlerConfig) *Handler {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 100
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		cfg: cfg,
		log: log,
		sem: make(chan struct{}, maxConc),
	}
}

// ServeHTTP upgrades the connection and runs the session.
// Returns 503 at max concurrent session capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.runSession(conn)
}

// eventSender writes events to the socket. The mutex keeps concurrent
// writers off gorilla's single-writer connection.
type eventSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *eventSender) Send(ev protocol.Event) error {
	data, err := protocol.EncodeEvent(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Handler) runSession(conn *websocket.Conn) {
	hello, err := h.readHello(conn)
	if err != nil {
		h.log.Warn("handshake rejected", "error", err, "remote", conn.RemoteAddr().String())
		h.rejectAndClose(conn, err.Error())
		return
	}

	sender := &eventSender{conn: conn}
	cfg := h.cfg.Session
	if rate := protocol.PayloadInt(hello.Payload, "sample_rate"); rate > 0 {
		cfg.SampleRate = rate
	}
	if ch := protocol.PayloadInt(hello.Payload, "channels"); ch > 0 {
		cfg.Channels = ch
	}

	orch := session.New(cfg, sender)
	orch.Start()
	h.log.Info("session started", "session_id", orch.ID(), "sample_rate", cfg.SampleRate)

	defer func() {
		orch.Stop()
		orch.Wait()
		h.log.Info("session ended", "session_id", orch.ID())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.log.Info("connection closed", "session_id", orch.ID(), "error", err)
			return
		}

		cmd, err := protocol.DecodeCommand(data)
		if err != nil {
			h.log.Warn("malformed command", "session_id", orch.ID(), "error", err)
			continue
		}

		orch.HandleCommand(cmd)
		if cmd.Kind == protocol.CommandStop {
			return
		}
	}
}

// readHello consumes the first frame, which must be an authenticated
// client.hello command.
func (h *Handler) readHello(conn *websocket.Conn) (protocol.Command, error) {
	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return protocol.Command{}, fmt.Errorf("read handshake: %w", err)
	}
	cmd, err := protocol.DecodeCommand(data)
	if err != nil {
		return protocol.Command{}, err
	}
	if cmd.Kind != protocol.CommandHello {
		return protocol.Command{}, fmt.Errorf("expected %s, got %s", protocol.CommandHello, cmd.Kind)
	}
	if h.cfg.AuthToken != "" && protocol.PayloadString(cmd.Payload, "credential") != h.cfg.AuthToken {
		return protocol.Command{}, fmt.Errorf("bad credential")
	}
	return cmd, nil
}

func (h *Handler) rejectAndClose(conn *websocket.Conn, reason string) {
	data, err := protocol.EncodeEvent(protocol.Event{
		Kind:    protocol.EventError,
		Payload: map[string]any{"code": "handshake", "message": reason},
		Seq:     1,
	})
	if err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "handshake failed"))
}
