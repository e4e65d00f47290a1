package deliberation

import "time"

// SessionConfig bundles the tuning for one session's core components.
type SessionConfig struct {
	Tracker TrackerConfig
	Window  WindowConfig
}

// Session owns the full event-stream core for one open meeting view. It is
// single-writer: one event-loop thread appends events and advances the clock,
// and reads happen between updates. No locking is needed or provided.
//
// Data flows one way: transport -> buffer -> {gap detector, grouper} ->
// phase tracker -> windower -> render model.
type Session struct {
	id      string
	buffer  *Buffer
	gaps    *GapDetector
	grouper *Grouper
	tracker *Tracker
	window  *Windower
	logger  Logger
}

// NewSession creates the core for a freshly opened session view.
func NewSession(id string, cfg SessionConfig, logger Logger) *Session {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Session{
		id:      id,
		buffer:  NewBuffer(logger),
		gaps:    NewGapDetector(logger),
		grouper: NewGrouper(),
		tracker: NewTracker(cfg.Tracker, logger),
		window:  NewWindower(cfg.Window),
		logger:  logger,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Ingest processes one raw wire frame: buffer (with dedupe and malformed
// handling), then grouping, then the phase machine, then the resume marker.
// Returns false when the frame was dropped (malformed) or deduplicated.
// Processing is synchronous and never blocks.
func (s *Session) Ingest(raw []byte, now time.Time) bool {
	ev, ok := s.buffer.AppendRaw(raw)
	if !ok {
		return false
	}
	s.apply(ev, now)
	return true
}

// IngestEvent processes an already-parsed event, for replay and tests.
func (s *Session) IngestEvent(ev Event, now time.Time) bool {
	buffered, ok := s.buffer.Append(ev)
	if !ok {
		return false
	}
	s.apply(buffered, now)
	return true
}

func (s *Session) apply(ev Event, now time.Time) {
	s.grouper.Append(ev)
	s.tracker.ApplyEvent(ev, now)
	s.gaps.MarkSeen(ev)
}

// Advance applies a wall-clock tick to the phase tracker and the active
// round's auto-reveal. Ticks are idempotent over state they do not own: group
// membership and buffered events never change here.
func (s *Session) Advance(now time.Time) {
	s.tracker.Advance(now)
	if round := s.tracker.Round(); round > 0 {
		s.window.AutoReveal(round, s.roundTotal(round), now)
	}
}

// OnReconnect forwards the transport's resume notification to the gap
// detector. Advisory only; subsequent events keep rendering normally.
func (s *Session) OnReconnect(info ResumeInfo) {
	s.gaps.OnReconnect(info)
}

// DismissGap hides the current gap advisory.
func (s *Session) DismissGap() {
	s.gaps.Dismiss()
}

// ResumeMarker returns the marker the transport should resume from.
func (s *Session) ResumeMarker() string {
	return s.gaps.State().LastSeenMarker
}

// RequestMore reveals more contributions in the given round.
func (s *Session) RequestMore(round int) {
	s.window.RequestMore(round, s.roundTotal(round))
}

// ToggleCardMode flips the card view mode for the group at the given index.
func (s *Session) ToggleCardMode(groupIndex int) {
	s.window.ToggleViewMode(groupIndex)
}

// Tracker exposes the phase tracker for epoch-stamped tick scheduling.
func (s *Session) Tracker() *Tracker {
	return s.tracker
}

// EventCount returns the number of buffered events.
func (s *Session) EventCount() int {
	return s.buffer.Len()
}

// Events returns an ordered copy of the buffered events (export support).
func (s *Session) Events() []Event {
	return s.buffer.Snapshot()
}

func (s *Session) roundTotal(round int) int {
	total := 0
	for _, g := range s.grouper.Groups() {
		if g.Kind == GroupRound && g.Round == round {
			total += len(g.Events)
		}
	}
	return total
}

// GroupView is one narrative group plus its presentation state.
type GroupView struct {
	Group
	Index   int
	Visible int // round groups: contributions currently revealed
	Mode    CardViewMode
	Lazy    bool // render as a height-reserved placeholder
}

// RenderModel is the single view-model the presentation layer consumes.
type RenderModel struct {
	SessionID string
	Groups    []GroupView
	Phase     PhaseState
	Gap       GapState
}

// Render assembles the current render model. Cheap enough to call once per
// update pass.
func (s *Session) Render() RenderModel {
	groups := s.grouper.Groups()
	total := len(groups)
	views := make([]GroupView, 0, total)
	for i, g := range groups {
		view := GroupView{
			Group: g,
			Index: i,
			Mode:  s.window.ViewMode(i),
			Lazy:  s.window.LazyEligible(i, total),
		}
		if g.Kind == GroupRound {
			view.Visible = s.window.VisibleContributions(g.Round, len(g.Events))
		}
		views = append(views, view)
	}
	return RenderModel{
		SessionID: s.id,
		Groups:    views,
		Phase:     s.tracker.Snapshot(),
		Gap:       s.gaps.State(),
	}
}
