package deliberation

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

var testBase = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

// wireFrame builds a raw wire frame. offset orders timestamps so content
// digests stay distinct between otherwise similar events.
func wireFrame(t *testing.T, wireType string, offset int, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame := map[string]any{
		"event_type": wireType,
		"timestamp":  testBase.Add(time.Duration(offset) * time.Second).Format(time.RFC3339),
		"data":       json.RawMessage(data),
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return raw
}

func testEvent(t *testing.T, wireType string, offset int, payload any) Event {
	t.Helper()
	ev, err := ParseEvent(wireFrame(t, wireType, offset, payload))
	if err != nil {
		t.Fatalf("parse %s event: %v", wireType, err)
	}
	return ev
}

func selectedEvent(t *testing.T, offset int, subproblem, name string) Event {
	t.Helper()
	return testEvent(t, "persona_selected", offset, PersonaSelectedData{
		SubproblemID: subproblem,
		Goal:         fmt.Sprintf("goal for %s", subproblem),
		Persona:      Persona{Name: name, Role: "analyst"},
	})
}

func contributionEvent(t *testing.T, offset, round int, name string) Event {
	t.Helper()
	return testEvent(t, "contribution", offset, ContributionData{
		RoundNumber: round,
		Persona:     name,
		Content:     fmt.Sprintf("%s round %d position", name, round),
	})
}

func voteEvent(t *testing.T, offset int, name string) Event {
	t.Helper()
	return testEvent(t, "persona_vote", offset, VoteData{Persona: name, Choice: "option-a", Confidence: 0.8})
}
