package deliberation

// Waiting messages rotate at the tracker's message interval while a phase is
// in progress. They are reassurance copy, not authoritative progress signals.
var waitingMessages = map[Phase][]string{
	PhaseIdle: {
		"Preparing the deliberation...",
		"Setting up the meeting room...",
	},
	PhaseSelectingExperts: {
		"Assembling the expert panel...",
		"Matching expertise to the problem...",
		"Reviewing candidate perspectives...",
	},
	PhaseAwaitingFirstContribution: {
		"The panel is reviewing the problem...",
		"Experts are preparing opening positions...",
		"First contributions are on their way...",
	},
	PhaseRoundActive: {
		"Experts are contributing...",
		"The discussion is underway...",
		"Perspectives are coming in...",
	},
	PhaseAwaitingNextRound: {
		"Reflecting on the last round...",
		"Weighing where the discussion stands...",
		"Preparing the next round...",
	},
	PhaseVoting: {
		"The panel is voting...",
		"Positions are being tallied...",
	},
	PhaseSynthesizing: {
		"Condensing the discussion...",
		"Reconciling the panel's positions...",
		"Drafting the recommendation...",
	},
	PhaseTransitioningSubproblem: {
		"Wrapping up this sub-problem...",
		"Moving to the next sub-problem...",
	},
}

// waitingMessage returns the rotating status line for a phase. Terminal
// phases have no waiting copy; progress messaging stops rather than freezing
// on a stale "in progress" line.
func waitingMessage(phase Phase, index int) string {
	msgs := waitingMessages[phase]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[index%len(msgs)]
}

// Synthesis takes long enough that coarse elapsed-time milestones help
// reassure the user. These are presentation hints only.
const (
	synthesisAnalysisAfter = 10 // seconds
	synthesisPatternsAfter = 30
	synthesisDraftAfter    = 60
)

func synthesisMilestone(phase Phase, elapsedSeconds int) string {
	if phase != PhaseSynthesizing {
		return ""
	}
	switch {
	case elapsedSeconds >= synthesisDraftAfter:
		return "drafting recommendation"
	case elapsedSeconds >= synthesisPatternsAfter:
		return "identifying patterns"
	case elapsedSeconds >= synthesisAnalysisAfter:
		return "analyzing contributions"
	default:
		return "reading the discussion"
	}
}
