package session

import (
	"strings"
)

// IntakeDraft accumulates a structured summary of the conversation. Updates
// are diffed so clients only receive fields that changed.
type IntakeDraft struct {
	ChiefComplaint string
	Narrative      string
	TurnCount      int
}

// Patch folds a completed turn into the draft and returns only the fields
// that changed, keyed by wire name. Returns nil when nothing changed.
func (d *IntakeDraft) Patch(transcript, response string) map[string]any {
	patch := map[string]any{}

	if d.ChiefComplaint == "" {
		if cc := strings.TrimSpace(transcript); cc != "" {
			d.ChiefComplaint = cc
			patch["chief_complaint"] = cc
		}
	}

	if t := strings.TrimSpace(transcript); t != "" {
		if d.Narrative != "" {
			d.Narrative += "\n"
		}
		d.Narrative += t
		patch["narrative"] = d.Narrative
	}

	d.TurnCount++
	patch["turn_count"] = d.TurnCount

	if len(patch) == 0 {
		return nil
	}
	return patch
}

// emergencyPhrases trigger immediate triage escalation when they appear in a
// final transcript. Matching is case-insensitive substring.
var emergencyPhrases = []string{
	"chest pain",
	"can't breathe",
	"cannot breathe",
	"can not breathe",
	"trouble breathing",
	"difficulty breathing",
	"shortness of breath",
	"unconscious",
	"not breathing",
	"severe bleeding",
	"bleeding heavily",
	"overdose",
	"suicidal",
	"stroke",
	"heart attack",
	"anaphylaxis",
	"seizure",
}

// ScreenEmergency returns the first matched escalation phrase, or "".
func ScreenEmergency(transcript string) string {
	lower := strings.ToLower(transcript)
	for _, phrase := range emergencyPhrases {
		if strings.Contains(lower, phrase) {
			return phrase
		}
	}
	return ""
}
