package deliberation

// ResumeInfo is what the transport reports after re-establishing the stream:
// whether delivery continuity from Marker could be guaranteed and, when it
// could not, an optional estimate of how many events were missed.
type ResumeInfo struct {
	Marker     string
	Continuous bool
	MissedHint int
}

// GapState is the advisory surfaced to the user after a lossy reconnect. It
// never blocks rendering; the intent is to warn, not to claim precision.
type GapState struct {
	LastSeenMarker   string
	HasGap           bool
	MissedEventCount int
	Dismissed        bool
}

// GapDetector tracks gap episodes across reconnects for one session.
type GapDetector struct {
	state  GapState
	logger Logger
}

// NewGapDetector returns a detector with no gap recorded.
func NewGapDetector(logger Logger) *GapDetector {
	if logger == nil {
		logger = nopLogger{}
	}
	return &GapDetector{logger: logger}
}

// MarkSeen records the marker of the latest processed event so the transport
// can resume from it.
func (d *GapDetector) MarkSeen(ev Event) {
	d.state.LastSeenMarker = ev.Marker()
}

// OnReconnect ingests the transport's resume notification. A non-continuous
// resume opens a new gap episode: the dismissed flag resets so the advisory
// shows again even if an earlier episode was dismissed. The missed count
// defaults to 1 when the transport has no estimate.
func (d *GapDetector) OnReconnect(info ResumeInfo) {
	if info.Continuous {
		return
	}
	missed := info.MissedHint
	if missed < 1 {
		missed = 1
	}
	d.state.HasGap = true
	d.state.MissedEventCount = missed
	d.state.Dismissed = false
	d.logger.Printf("gap: stream resumed without continuity, ~%d event(s) missed", missed)
}

// Dismiss hides the advisory for the current episode. Terminal for this
// episode only; a later non-continuous reconnect shows it again.
func (d *GapDetector) Dismiss() {
	d.state.Dismissed = true
}

// Reset clears all gap state for a new session.
func (d *GapDetector) Reset() {
	d.state = GapState{}
}

// State returns the current gap advisory.
func (d *GapDetector) State() GapState {
	return d.state
}
