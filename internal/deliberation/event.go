// Package deliberation implements the event-stream core behind the meeting
// view: an append-only event buffer, a grouper that folds the raw stream into
// a narrative of panel/round/milestone cards, a phase state machine that
// drives "what is happening right now" messaging, a gap detector for lossy
// reconnects, and a visibility windower for progressive disclosure.
//
// The package is headless. It never blocks, never panics across its boundary,
// and can be driven entirely from recorded fixtures.
package deliberation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// EventKind is the closed set of event types the meeting view understands.
// Wire strings outside the set decode to KindUnknown: unknown events are
// buffered and rendered generically, never dropped.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindPersonaSelected
	KindContribution
	KindPersonaVote
	KindSynthesisComplete
	KindSubproblemComplete
	KindMetaSynthesisComplete
	KindComplete
	KindError
)

// KindFromWire maps a wire event_type to its EventKind. Any wire type
// prefixed "contribution" belongs to the contribution family so future
// variants (e.g. contribution_revision) still land in rounds.
func KindFromWire(wireType string) EventKind {
	switch strings.TrimSpace(wireType) {
	case "persona_selected":
		return KindPersonaSelected
	case "persona_vote":
		return KindPersonaVote
	case "synthesis_complete":
		return KindSynthesisComplete
	case "subproblem_complete":
		return KindSubproblemComplete
	case "meta_synthesis_complete":
		return KindMetaSynthesisComplete
	case "complete":
		return KindComplete
	case "error":
		return KindError
	}
	if strings.HasPrefix(strings.TrimSpace(wireType), "contribution") {
		return KindContribution
	}
	return KindUnknown
}

// String returns the canonical wire name for the kind.
func (k EventKind) String() string {
	switch k {
	case KindPersonaSelected:
		return "persona_selected"
	case KindContribution:
		return "contribution"
	case KindPersonaVote:
		return "persona_vote"
	case KindSynthesisComplete:
		return "synthesis_complete"
	case KindSubproblemComplete:
		return "subproblem_complete"
	case KindMetaSynthesisComplete:
		return "meta_synthesis_complete"
	case KindComplete:
		return "complete"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// IsTerminalMilestone reports whether the kind marks the deliberation's end.
// Terminal milestones are never merged into a group so they stay individually
// addressable (scroll anchors, status banners).
func (k EventKind) IsTerminalMilestone() bool {
	return k == KindComplete || k == KindMetaSynthesisComplete || k == KindError
}

// Event is one immutable record from the deliberation stream. Seq is the
// arrival position assigned by the buffer, not a server-side identifier.
type Event struct {
	Kind         EventKind
	WireType     string
	Timestamp    time.Time
	RawTimestamp string
	Payload      json.RawMessage
	Seq          int
}

// ErrMissingType marks a wire frame without an event_type discriminant.
var ErrMissingType = errors.New("deliberation: event lacks event_type")

type wireEvent struct {
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// ParseEvent decodes a raw wire frame into an Event. The timestamp is kept in
// its raw form as well so the content digest is stable regardless of how the
// server formatted it.
func ParseEvent(raw []byte) (Event, error) {
	var frame wireEvent
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Event{}, fmt.Errorf("deliberation: decode event: %w", err)
	}
	if strings.TrimSpace(frame.EventType) == "" {
		return Event{}, ErrMissingType
	}
	ev := Event{
		Kind:         KindFromWire(frame.EventType),
		WireType:     strings.TrimSpace(frame.EventType),
		RawTimestamp: frame.Timestamp,
		Payload:      frame.Data,
	}
	if ts, err := time.Parse(time.RFC3339, frame.Timestamp); err == nil {
		ev.Timestamp = ts
	}
	return ev, nil
}

// Digest returns the content identity used for reconnect deduplication:
// a blake3 hash over type, raw timestamp, and payload. The transport provides
// no monotonic id, so identity is by content.
func (e Event) Digest() string {
	h := blake3.New()
	h.Write([]byte(e.WireType))
	h.Write([]byte{0})
	h.Write([]byte(e.RawTimestamp))
	h.Write([]byte{0})
	h.Write(e.Payload)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Marker returns the resume marker reported to the transport for this event.
func (e Event) Marker() string {
	if e.RawTimestamp != "" {
		return e.RawTimestamp
	}
	return fmt.Sprintf("seq:%d", e.Seq)
}

// Persona identifies one simulated expert on a panel.
type Persona struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Expertise string `json:"expertise"`
}

// PersonaSelectedData is the payload of a persona_selected event.
type PersonaSelectedData struct {
	SubproblemID string  `json:"subproblem_id"`
	Goal         string  `json:"goal"`
	Persona      Persona `json:"persona"`
}

// ContributionData is the payload of a contribution-family event.
type ContributionData struct {
	RoundNumber  int    `json:"round_number"`
	Persona      string `json:"persona"`
	Content      string `json:"content"`
	SubproblemID string `json:"subproblem_id"`
}

// VoteData is the payload of a persona_vote event.
type VoteData struct {
	Persona    string  `json:"persona"`
	Choice     string  `json:"choice"`
	Confidence float64 `json:"confidence"`
}

// SynthesisData is the payload of a synthesis_complete event.
type SynthesisData struct {
	SubproblemID   string `json:"subproblem_id"`
	Recommendation string `json:"recommendation"`
	Remaining      int    `json:"remaining_subproblems"`
}

// SubproblemCompleteData is the payload of a subproblem_complete event.
type SubproblemCompleteData struct {
	SubproblemID string `json:"subproblem_id"`
	Remaining    int    `json:"remaining_subproblems"`
}

// MetaSynthesisData is the payload of a meta_synthesis_complete event.
type MetaSynthesisData struct {
	Recommendation string `json:"recommendation"`
}

// ErrorData is the payload of a terminal error event.
type ErrorData struct {
	Message string `json:"message"`
}

// PersonaSelected decodes the payload as PersonaSelectedData. The second
// return is false when the event is a different kind or the payload does not
// decode; callers fall back to generic rendering in that case.
func (e Event) PersonaSelected() (PersonaSelectedData, bool) {
	var data PersonaSelectedData
	if e.Kind != KindPersonaSelected {
		return data, false
	}
	return data, json.Unmarshal(e.Payload, &data) == nil
}

// Contribution decodes the payload as ContributionData.
func (e Event) Contribution() (ContributionData, bool) {
	var data ContributionData
	if e.Kind != KindContribution {
		return data, false
	}
	return data, json.Unmarshal(e.Payload, &data) == nil
}

// Vote decodes the payload as VoteData.
func (e Event) Vote() (VoteData, bool) {
	var data VoteData
	if e.Kind != KindPersonaVote {
		return data, false
	}
	return data, json.Unmarshal(e.Payload, &data) == nil
}

// Synthesis decodes the payload as SynthesisData.
func (e Event) Synthesis() (SynthesisData, bool) {
	var data SynthesisData
	if e.Kind != KindSynthesisComplete {
		return data, false
	}
	return data, json.Unmarshal(e.Payload, &data) == nil
}

// SubproblemComplete decodes the payload as SubproblemCompleteData.
func (e Event) SubproblemComplete() (SubproblemCompleteData, bool) {
	var data SubproblemCompleteData
	if e.Kind != KindSubproblemComplete {
		return data, false
	}
	return data, json.Unmarshal(e.Payload, &data) == nil
}

// MetaSynthesis decodes the payload as MetaSynthesisData.
func (e Event) MetaSynthesis() (MetaSynthesisData, bool) {
	var data MetaSynthesisData
	if e.Kind != KindMetaSynthesisComplete {
		return data, false
	}
	return data, json.Unmarshal(e.Payload, &data) == nil
}

// ErrorInfo decodes the payload as ErrorData.
func (e Event) ErrorInfo() (ErrorData, bool) {
	var data ErrorData
	if e.Kind != KindError {
		return data, false
	}
	return data, json.Unmarshal(e.Payload, &data) == nil
}

// Logger records diagnostics from the core. It matches logbook's signature.
type Logger interface {
	Printf(format string, args ...any)
}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
