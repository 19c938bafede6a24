package session

import (
	"testing"
)

func TestDraftPatchFirstTurnSetsChiefComplaint(t *testing.T) {
	var d IntakeDraft
	patch := d.Patch("my knee hurts when I walk", "how long has that been going on?")
	if patch == nil {
		t.Fatal("expected a patch")
	}
	if patch["chief_complaint"] != "my knee hurts when I walk" {
		t.Errorf("chief complaint not set: %v", patch)
	}
	if patch["turn_count"] != 1 {
		t.Errorf("expected turn_count 1, got %v", patch["turn_count"])
	}
}

// Later turns only report fields that changed: the chief complaint is locked
// to the first utterance.
func TestDraftPatchOnlyChangedFields(t *testing.T) {
	var d IntakeDraft
	d.Patch("my knee hurts", "ok")

	patch := d.Patch("it started last tuesday", "ok")
	if _, ok := patch["chief_complaint"]; ok {
		t.Error("chief complaint must not change after the first turn")
	}
	if patch["turn_count"] != 2 {
		t.Errorf("expected turn_count 2, got %v", patch["turn_count"])
	}
	narrative, _ := patch["narrative"].(string)
	if narrative != "my knee hurts\nit started last tuesday" {
		t.Errorf("unexpected narrative %q", narrative)
	}
}

func TestDraftPatchBlankTranscript(t *testing.T) {
	var d IntakeDraft
	patch := d.Patch("   ", "ok")
	if _, ok := patch["chief_complaint"]; ok {
		t.Error("blank transcript must not set chief complaint")
	}
	if _, ok := patch["narrative"]; ok {
		t.Error("blank transcript must not extend narrative")
	}
	if patch["turn_count"] != 1 {
		t.Error("turn count still advances")
	}
}

func TestScreenEmergency(t *testing.T) {
	cases := []struct {
		transcript string
		want       string
	}{
		{"I have crushing CHEST PAIN right now", "chest pain"},
		{"my dad can't breathe", "can't breathe"},
		{"I think I'm having a stroke", "stroke"},
		{"my knee hurts a bit", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ScreenEmergency(tc.transcript); got != tc.want {
			t.Errorf("ScreenEmergency(%q) = %q, want %q", tc.transcript, got, tc.want)
		}
	}
}
