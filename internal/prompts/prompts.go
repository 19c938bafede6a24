package prompts

// DefaultSystem steers the assistant toward short spoken-style intake
// questions. TTS latency grows with response length, so brevity is part of
// the contract, not a style preference.
const DefaultSystem = "You are a calm medical intake assistant. Ask one question at a time, " +
	"keep responses short and conversational, and never give a diagnosis."

// ForSession resolves the final system prompt for a session.
func ForSession(systemPrompt string) string {
	if systemPrompt != "" {
		return systemPrompt
	}
	return DefaultSystem
}
