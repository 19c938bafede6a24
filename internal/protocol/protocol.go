package protocol

import (
	"encoding/json"
	"fmt"
)

// EventKind identifies a server→client event. The set is closed: any wire
// type outside it decodes to EventUnknown, never to a decode error, so
// protocol evolution on one side cannot crash the other.
type EventKind string

const (
	EventSessionState      EventKind = "server.session.state"
	EventTranscriptPartial EventKind = "server.transcript.partial"
	EventTranscriptFinal   EventKind = "server.transcript.final"
	EventDraftUpdate       EventKind = "server.ae_draft.update"
	EventAudioOut          EventKind = "server.audio.out"
	EventAudioStop         EventKind = "server.audio.stop"
	EventEmergency         EventKind = "server.triage.emergency"
	EventError             EventKind = "server.error"
	EventUnknown           EventKind = "unknown"
)

// CommandKind identifies a client→server command.
type CommandKind string

const (
	CommandHello        CommandKind = "client.hello"
	CommandAudioChunk   CommandKind = "client.audio.chunk"
	CommandTurnComplete CommandKind = "client.audio.turnComplete"
	CommandBargeIn      CommandKind = "client.audio.bargeIn"
	CommandStop         CommandKind = "client.session.stop"
	CommandAudioFlushed CommandKind = "client.audio.flushed"
	CommandUnknown      CommandKind = "unknown"
)

// Session states carried in EventSessionState payloads.
const (
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateListening    = "listening"
	StateThinking     = "thinking"
	StateSpeaking     = "speaking"
	StateDisconnected = "disconnected"
)

// OriginalTypeKey is the payload key carrying the raw wire type string on
// unknown and error events.
const OriginalTypeKey = "original_type"

var eventKinds = map[string]EventKind{
	string(EventSessionState):      EventSessionState,
	string(EventTranscriptPartial): EventTranscriptPartial,
	string(EventTranscriptFinal):   EventTranscriptFinal,
	string(EventDraftUpdate):       EventDraftUpdate,
	string(EventAudioOut):          EventAudioOut,
	string(EventAudioStop):         EventAudioStop,
	string(EventEmergency):         EventEmergency,
	string(EventError):             EventError,
}

var commandKinds = map[string]CommandKind{
	string(CommandHello):        CommandHello,
	string(CommandAudioChunk):   CommandAudioChunk,
	string(CommandTurnComplete): CommandTurnComplete,
	string(CommandBargeIn):      CommandBargeIn,
	string(CommandStop):         CommandStop,
	string(CommandAudioFlushed): CommandAudioFlushed,
}

// Event is a server→client message. Seq is assigned by the emitting side and
// is non-decreasing per session.
type Event struct {
	Kind    EventKind
	Payload map[string]any
	Seq     uint64
}

// Command is a client→server message.
type Command struct {
	Kind    CommandKind
	Payload map[string]any
}

// envelope is the flat wire form shared by both directions.
type envelope struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	Seq     *uint64        `json:"seq,omitempty"`
}

// EncodeEvent serializes an event for the wire.
func EncodeEvent(ev Event) ([]byte, error) {
	seq := ev.Seq
	return json.Marshal(envelope{Type: string(ev.Kind), Payload: ev.Payload, Seq: &seq})
}

// DecodeEvent parses a server→client wire message. Unrecognized type strings
// map to EventUnknown with the original string preserved in the payload;
// only malformed JSON is an error.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	ev := Event{Payload: env.Payload}
	if env.Seq != nil {
		ev.Seq = *env.Seq
	}
	kind, ok := eventKinds[env.Type]
	if !ok {
		kind = EventUnknown
	}
	ev.Kind = kind
	if kind == EventUnknown || kind == EventError {
		if ev.Payload == nil {
			ev.Payload = map[string]any{}
		}
		ev.Payload[OriginalTypeKey] = env.Type
	}
	return ev, nil
}

// EncodeCommand serializes a command for the wire.
func EncodeCommand(cmd Command) ([]byte, error) {
	return json.Marshal(envelope{Type: string(cmd.Kind), Payload: cmd.Payload})
}

// DecodeCommand parses a client→server wire message with the same tolerance
// policy as DecodeEvent.
func DecodeCommand(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	cmd := Command{Payload: env.Payload}
	kind, ok := commandKinds[env.Type]
	if !ok {
		kind = CommandUnknown
	}
	cmd.Kind = kind
	if kind == CommandUnknown {
		if cmd.Payload == nil {
			cmd.Payload = map[string]any{}
		}
		cmd.Payload[OriginalTypeKey] = env.Type
	}
	return cmd, nil
}

// PayloadString returns a string payload field, or "" if absent or not a string.
func PayloadString(p map[string]any, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// PayloadInt returns an integer payload field. JSON numbers arrive as
// float64; both forms are accepted.
func PayloadInt(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
