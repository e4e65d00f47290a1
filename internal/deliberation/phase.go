package deliberation

import (
	"encoding/json"
	"time"
)

// Phase is the derived "what is happening right now" state of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSelectingExperts
	PhaseAwaitingFirstContribution
	PhaseRoundActive
	PhaseAwaitingNextRound
	PhaseVoting
	PhaseSynthesizing
	PhaseTransitioningSubproblem
	PhaseComplete
	PhaseFailed
)

// String returns the canonical snake_case name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSelectingExperts:
		return "selecting_experts"
	case PhaseAwaitingFirstContribution:
		return "awaiting_first_contribution"
	case PhaseRoundActive:
		return "round_active"
	case PhaseAwaitingNextRound:
		return "awaiting_next_round"
	case PhaseVoting:
		return "voting"
	case PhaseSynthesizing:
		return "synthesizing"
	case PhaseTransitioningSubproblem:
		return "transitioning_subproblem"
	case PhaseComplete:
		return "complete"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FriendlyName returns a short description suitable for the phase banner.
func (p Phase) FriendlyName() string {
	switch p {
	case PhaseIdle:
		return "Waiting To Begin"
	case PhaseSelectingExperts:
		return "Selecting Experts"
	case PhaseAwaitingFirstContribution:
		return "Convening The Panel"
	case PhaseRoundActive:
		return "Discussion Round"
	case PhaseAwaitingNextRound:
		return "Between Rounds"
	case PhaseVoting:
		return "Voting"
	case PhaseSynthesizing:
		return "Synthesizing"
	case PhaseTransitioningSubproblem:
		return "Next Sub-Problem"
	case PhaseComplete:
		return "Complete"
	case PhaseFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether the phase admits no further transitions.
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

const (
	// DefaultSelectionGrace is the inactivity window after which expert
	// selection is judged complete. The stream carries no explicit boundary
	// event for this, so the grace period is configurable rather than inferred.
	DefaultSelectionGrace = 4 * time.Second
	// DefaultMessageInterval is the rotation period for waiting messages.
	DefaultMessageInterval = 5 * time.Second
)

// TrackerConfig tunes the phase tracker's wall-clock behavior.
type TrackerConfig struct {
	SelectionGrace  time.Duration
	MessageInterval time.Duration
}

func (c TrackerConfig) withDefaults() TrackerConfig {
	if c.SelectionGrace <= 0 {
		c.SelectionGrace = DefaultSelectionGrace
	}
	if c.MessageInterval <= 0 {
		c.MessageInterval = DefaultMessageInterval
	}
	return c
}

// PhaseState is the snapshot exposed to the presentation layer.
type PhaseState struct {
	Phase          Phase
	Round          int
	ElapsedSeconds int
	Message        string
	Milestone      string // synthesizing-only reassurance hint
	Epoch          int
}

// Tracker is the phase/waiting-state machine. It is driven from exactly two
// inputs: event arrivals (ApplyEvent) and wall-clock advances (Advance).
// Each phase entry bumps the epoch; a tick scheduled for an earlier epoch is
// stale and must be discarded by the scheduler, which is how timer
// cancellation works in a cooperative event loop.
type Tracker struct {
	cfg    TrackerConfig
	logger Logger

	phase     Phase
	round     int
	epoch     int
	enteredAt time.Time
	elapsed   int

	msgIndex   int
	lastRotate time.Time

	// current sub-problem context
	panelSize       int
	roundSeen       int
	votesSeen       int
	lastSelectionAt time.Time
}

// NewTracker returns a tracker in the idle phase.
func NewTracker(cfg TrackerConfig, logger Logger) *Tracker {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Tracker{cfg: cfg.withDefaults(), logger: logger, phase: PhaseIdle}
}

// Phase returns the current phase.
func (t *Tracker) Phase() Phase {
	return t.phase
}

// Round returns the current round number (0 before the first round).
func (t *Tracker) Round() int {
	return t.round
}

// Epoch returns the current phase epoch. Schedulers stamp ticks with it and
// drop ticks whose epoch no longer matches.
func (t *Tracker) Epoch() int {
	return t.epoch
}

// ValidTick reports whether a tick stamped with epoch is still current.
func (t *Tracker) ValidTick(epoch int) bool {
	return epoch == t.epoch && !t.phase.IsTerminal()
}

// Snapshot returns the presentation view of the phase state.
func (t *Tracker) Snapshot() PhaseState {
	return PhaseState{
		Phase:          t.phase,
		Round:          t.round,
		ElapsedSeconds: t.elapsed,
		Message:        waitingMessage(t.phase, t.msgIndex),
		Milestone:      synthesisMilestone(t.phase, t.elapsed),
		Epoch:          t.epoch,
	}
}

// ApplyEvent advances the machine for one buffered event. Terminal phases
// never transition again, whatever arrives afterwards.
func (t *Tracker) ApplyEvent(ev Event, now time.Time) {
	if t.phase.IsTerminal() {
		return
	}
	switch ev.Kind {
	case KindError:
		t.enter(PhaseFailed, now)
	case KindComplete, KindMetaSynthesisComplete:
		t.enter(PhaseComplete, now)
	case KindPersonaSelected:
		t.applySelection(now)
	case KindContribution:
		t.applyContribution(ev, now)
	case KindPersonaVote:
		t.applyVote(now)
	case KindSynthesisComplete:
		t.applySynthesis(ev, now)
	case KindSubproblemComplete:
		t.enter(PhaseTransitioningSubproblem, now)
	case KindUnknown:
		// Unknown events render but carry no phase meaning.
	}
}

// Advance applies a wall-clock tick: it refreshes the elapsed counter,
// rotates the waiting message at the configured interval, and closes expert
// selection once the inactivity grace period elapses. Ticks never touch
// group membership or terminal phases.
func (t *Tracker) Advance(now time.Time) {
	if t.phase.IsTerminal() {
		return
	}
	// The idle phase is never entered through enter(); its clock starts at
	// the first tick.
	if t.enteredAt.IsZero() {
		t.enteredAt = now
		t.lastRotate = now
	}
	t.elapsed = int(now.Sub(t.enteredAt) / time.Second)
	if t.elapsed < 0 {
		t.elapsed = 0
	}
	if now.Sub(t.lastRotate) >= t.cfg.MessageInterval {
		t.msgIndex++
		t.lastRotate = now
	}
	if t.phase == PhaseSelectingExperts && now.Sub(t.lastSelectionAt) >= t.cfg.SelectionGrace {
		t.enter(PhaseAwaitingFirstContribution, now)
	}
}

func (t *Tracker) applySelection(now time.Time) {
	if t.phase != PhaseSelectingExperts {
		// First selection of a (new) sub-problem resets the panel context.
		t.panelSize = 0
		t.votesSeen = 0
		t.roundSeen = 0
		t.enter(PhaseSelectingExperts, now)
	}
	t.panelSize++
	t.lastSelectionAt = now
}

func (t *Tracker) applyContribution(ev Event, now time.Time) {
	round := t.round
	if data, ok := ev.Contribution(); ok && data.RoundNumber > 0 {
		round = data.RoundNumber
	} else if round == 0 {
		round = 1
	}
	if round != t.round {
		t.round = round
		t.roundSeen = 0
	}
	if t.phase != PhaseRoundActive {
		t.enter(PhaseRoundActive, now)
	}
	t.roundSeen++
	// The panel size is the best available estimate of a round's expected
	// contribution count.
	if t.panelSize > 0 && t.roundSeen >= t.panelSize {
		t.enter(PhaseAwaitingNextRound, now)
	}
}

// applySynthesis ends the session when the synthesis reports zero remaining
// sub-problems; otherwise the meeting moves on to the next one. Only an
// explicit zero counts as final: a payload without the remaining count leaves
// the decision to a later complete or meta_synthesis_complete event.
func (t *Tracker) applySynthesis(ev Event, now time.Time) {
	var data struct {
		Remaining *int `json:"remaining_subproblems"`
	}
	if len(ev.Payload) > 0 && json.Unmarshal(ev.Payload, &data) == nil &&
		data.Remaining != nil && *data.Remaining == 0 {
		t.enter(PhaseComplete, now)
		return
	}
	t.enter(PhaseTransitioningSubproblem, now)
}

func (t *Tracker) applyVote(now time.Time) {
	if t.phase != PhaseVoting {
		t.votesSeen = 0
		t.enter(PhaseVoting, now)
	}
	t.votesSeen++
	if t.panelSize > 0 && t.votesSeen >= t.panelSize {
		t.enter(PhaseSynthesizing, now)
	}
}

// enter performs a phase transition: the epoch bump invalidates every timer
// tied to the phase being left, and the elapsed counter and message rotation
// restart from zero.
func (t *Tracker) enter(next Phase, now time.Time) {
	if next == t.phase {
		return
	}
	prev := t.phase
	t.phase = next
	t.epoch++
	t.enteredAt = now
	t.elapsed = 0
	t.msgIndex = 0
	t.lastRotate = now
	t.logger.Printf("phase: %s -> %s (round %d)", prev, next, t.round)
}
