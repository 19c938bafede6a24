package ws

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carebridge/voice-gateway/internal/pipeline"
	"github.com/carebridge/voice-gateway/internal/protocol"
	"github.com/carebridge/voice-gateway/internal/session"
)

type fakeASR struct{ text string }

func (f *fakeASR) Transcribe(_ context.Context, _ []byte, _, _ int) (*pipeline.ASRResult, error) {
	return &pipeline.ASRResult{Text: f.text}, nil
}

type fakeTTS struct{ pcm []byte }

func (f *fakeTTS) Synthesize(_ context.Context, _ string) (*pipeline.TTSResult, error) {
	return &pipeline.TTSResult{PCM: f.pcm, SampleRate: 24000, Channels: 1}, nil
}

func testHandler(authToken string) *Handler {
	return NewHandler(HandlerConfig{
		Session: session.Config{
			ASR:         &fakeASR{text: "I have a headache"},
			LLM:         pipeline.NewLLMRouter(map[string]pipeline.LLMProvider{"stub": pipeline.NewStubProvider()}, "stub"),
			LLMProvider: "stub",
			TTS:         &fakeTTS{pcm: make([]byte, 2000)},
		},
		AuthToken: authToken,
	})
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmd protocol.Command) {
	t.Helper()
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("encode command: %v", err)
	}
	if err = conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write command: %v", err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) protocol.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func TestHandshakeAcceptedAndSessionStates(t *testing.T) {
	srv := httptest.NewServer(testHandler("token-1"))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	sendCommand(t, conn, protocol.Command{
		Kind:    protocol.CommandHello,
		Payload: map[string]any{"credential": "token-1", "sample_rate": 16000},
	})

	first := readEvent(t, conn)
	if first.Kind != protocol.EventSessionState || protocol.PayloadString(first.Payload, "state") != protocol.StateConnected {
		t.Fatalf("expected connected state first, got %v", first)
	}
	second := readEvent(t, conn)
	if protocol.PayloadString(second.Payload, "state") != protocol.StateListening {
		t.Fatalf("expected listening state, got %v", second)
	}
}

func TestHandshakeRejectsBadCredential(t *testing.T) {
	srv := httptest.NewServer(testHandler("token-1"))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	sendCommand(t, conn, protocol.Command{
		Kind:    protocol.CommandHello,
		Payload: map[string]any{"credential": "wrong"},
	})

	ev := readEvent(t, conn)
	if ev.Kind != protocol.EventError {
		t.Fatalf("expected error event, got %v", ev)
	}

	// The server closes after rejecting.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection close after rejection")
	}
}

func TestHandshakeRejectsNonHelloFirstFrame(t *testing.T) {
	srv := httptest.NewServer(testHandler(""))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	sendCommand(t, conn, protocol.Command{Kind: protocol.CommandTurnComplete})

	ev := readEvent(t, conn)
	if ev.Kind != protocol.EventError {
		t.Fatalf("expected error event, got %v", ev)
	}
}

// A barge-in sent after the turn finished streaming must still be answered
// with an audio-stop, because the client is playing buffered audio and gates
// further audio-out until the acknowledgement arrives.
func TestLateBargeInAcknowledgedOverWebSocket(t *testing.T) {
	srv := httptest.NewServer(testHandler(""))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	sendCommand(t, conn, protocol.Command{Kind: protocol.CommandHello, Payload: map[string]any{}})
	sendCommand(t, conn, protocol.Command{
		Kind:    protocol.CommandAudioChunk,
		Payload: map[string]any{"data": base64.StdEncoding.EncodeToString(make([]byte, 640))},
	})
	sendCommand(t, conn, protocol.Command{Kind: protocol.CommandTurnComplete})

	// Drain until the turn finishes streaming and the session is listening.
	var sawAudio bool
	for {
		ev := readEvent(t, conn)
		if ev.Kind == protocol.EventAudioStop {
			t.Fatal("unexpected audio stop before barge-in")
		}
		if ev.Kind == protocol.EventAudioOut {
			sawAudio = true
		}
		if sawAudio && ev.Kind == protocol.EventSessionState &&
			protocol.PayloadString(ev.Payload, "state") == protocol.StateListening {
			break
		}
	}

	sendCommand(t, conn, protocol.Command{
		Kind:    protocol.CommandBargeIn,
		Payload: map[string]any{"reason": "user_spoke"},
	})

	for {
		ev := readEvent(t, conn)
		if ev.Kind == protocol.EventAudioStop {
			if protocol.PayloadString(ev.Payload, "reason") != "user_spoke" {
				t.Errorf("expected the barge-in reason echoed, got %v", ev.Payload)
			}
			return
		}
	}
}

func TestFullTurnOverWebSocket(t *testing.T) {
	srv := httptest.NewServer(testHandler(""))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	sendCommand(t, conn, protocol.Command{Kind: protocol.CommandHello, Payload: map[string]any{}})
	sendCommand(t, conn, protocol.Command{
		Kind:    protocol.CommandAudioChunk,
		Payload: map[string]any{"data": base64.StdEncoding.EncodeToString(make([]byte, 640))},
	})
	sendCommand(t, conn, protocol.Command{Kind: protocol.CommandTurnComplete})

	var sawTranscript, sawAudio bool
	var lastSeq uint64
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ev := readEvent(t, conn)
		if ev.Seq <= lastSeq {
			t.Fatalf("seq not increasing: %d after %d", ev.Seq, lastSeq)
		}
		lastSeq = ev.Seq
		switch ev.Kind {
		case protocol.EventTranscriptFinal:
			sawTranscript = true
			if protocol.PayloadString(ev.Payload, "text") != "I have a headache" {
				t.Errorf("unexpected transcript %v", ev.Payload)
			}
		case protocol.EventAudioOut:
			sawAudio = true
			if protocol.PayloadString(ev.Payload, "data") == "" {
				t.Error("audio event without data")
			}
		case protocol.EventSessionState:
			if sawAudio && protocol.PayloadString(ev.Payload, "state") == protocol.StateListening {
				if !sawTranscript {
					t.Error("audio before transcript")
				}
				return
			}
		}
	}
	t.Fatal("turn did not complete")
}
