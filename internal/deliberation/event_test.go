package deliberation

import (
	"testing"
)

func TestKindFromWire(t *testing.T) {
	cases := []struct {
		wire string
		want EventKind
	}{
		{"persona_selected", KindPersonaSelected},
		{"contribution", KindContribution},
		{"contribution_revision", KindContribution}, // family prefix
		{"persona_vote", KindPersonaVote},
		{"synthesis_complete", KindSynthesisComplete},
		{"subproblem_complete", KindSubproblemComplete},
		{"meta_synthesis_complete", KindMetaSynthesisComplete},
		{"complete", KindComplete},
		{"error", KindError},
		{"persona_selected_v2", KindUnknown},
		{"telemetry_ping", KindUnknown},
		{"", KindUnknown},
	}
	for _, tc := range cases {
		if got := KindFromWire(tc.wire); got != tc.want {
			t.Fatalf("KindFromWire(%q) = %s, want %s", tc.wire, got, tc.want)
		}
	}
}

func TestParseEventRequiresType(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"timestamp":"2026-03-14T10:00:00Z"}`)); err == nil {
		t.Fatalf("expected error for frame without event_type")
	}
}

func TestParseEventKeepsUnparseableTimestampRaw(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"event_type":"complete","timestamp":"not-a-time"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ev.Timestamp.IsZero() {
		t.Fatalf("bogus timestamp parsed to %v", ev.Timestamp)
	}
	if ev.RawTimestamp != "not-a-time" {
		t.Fatalf("raw timestamp lost: %q", ev.RawTimestamp)
	}
}

func TestDigestDistinguishesContent(t *testing.T) {
	a := testEvent(t, "contribution", 0, ContributionData{RoundNumber: 1, Persona: "A"})
	b := testEvent(t, "contribution", 0, ContributionData{RoundNumber: 1, Persona: "B"})
	same := testEvent(t, "contribution", 0, ContributionData{RoundNumber: 1, Persona: "A"})
	if a.Digest() == b.Digest() {
		t.Fatalf("distinct payloads share a digest")
	}
	if a.Digest() != same.Digest() {
		t.Fatalf("identical content produced different digests")
	}
	// Seq is arrival bookkeeping and must not affect identity.
	resequenced := a
	resequenced.Seq = 99
	if a.Digest() != resequenced.Digest() {
		t.Fatalf("sequence number leaked into the content digest")
	}
}

func TestPayloadDecodeWrongKind(t *testing.T) {
	ev := testEvent(t, "contribution", 0, ContributionData{RoundNumber: 1})
	if _, ok := ev.PersonaSelected(); ok {
		t.Fatalf("contribution decoded as persona_selected")
	}
	if data, ok := ev.Contribution(); !ok || data.RoundNumber != 1 {
		t.Fatalf("contribution payload lost: %+v ok=%v", data, ok)
	}
}
