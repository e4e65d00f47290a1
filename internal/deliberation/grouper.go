package deliberation

// GroupKind discriminates the three narrative group variants.
type GroupKind int

const (
	// GroupSingle is one event rendered on its own card.
	GroupSingle GroupKind = iota
	// GroupExpertPanel is a run of persona_selected events for one sub-problem.
	GroupExpertPanel
	// GroupRound is a run of contribution-family events sharing a round number.
	GroupRound
)

// String returns a short label for the group kind.
func (k GroupKind) String() string {
	switch k {
	case GroupExpertPanel:
		return "expert_panel"
	case GroupRound:
		return "round"
	default:
		return "single"
	}
}

// Group is a derived, contiguous run of buffered events. Concatenating all
// groups' events in order reproduces the buffer exactly.
type Group struct {
	Kind         GroupKind
	SubproblemID string // expert_panel: sub-problem context for the panel
	Goal         string // expert_panel: the sub-problem's stated goal
	Round        int    // round: the shared round number
	Events       []Event
}

// Experts returns the ordered panel membership of an expert_panel group.
func (g Group) Experts() []Persona {
	if g.Kind != GroupExpertPanel {
		return nil
	}
	panel := make([]Persona, 0, len(g.Events))
	for _, ev := range g.Events {
		if data, ok := ev.PersonaSelected(); ok {
			panel = append(panel, data.Persona)
		}
	}
	return panel
}

// Grouper folds the ordered event buffer into groups incrementally: each
// appended event either extends the trailing group or closes it and starts a
// new one. The result is always identical to a full Regroup over the same
// events; the full scan is the reference, the incremental path the
// optimization.
type Grouper struct {
	groups []Group
}

// NewGrouper returns an empty grouper.
func NewGrouper() *Grouper {
	return &Grouper{}
}

// Append folds one more event into the group sequence. Events must arrive in
// buffer order.
func (g *Grouper) Append(ev Event) {
	if last := g.last(); last != nil && extendsGroup(*last, ev) {
		last.Events = append(last.Events, ev)
		return
	}
	g.groups = append(g.groups, newGroup(ev))
}

// Groups returns the current group sequence. The slice is a copy; group
// event slices are shared and must be treated as read-only.
func (g *Grouper) Groups() []Group {
	out := make([]Group, len(g.groups))
	copy(out, g.groups)
	return out
}

// Len returns the number of groups.
func (g *Grouper) Len() int {
	return len(g.groups)
}

// Reset discards all groups.
func (g *Grouper) Reset() {
	g.groups = nil
}

func (g *Grouper) last() *Group {
	if len(g.groups) == 0 {
		return nil
	}
	return &g.groups[len(g.groups)-1]
}

// Regroup is the reference single-pass algorithm: a linear scan over the
// whole buffer. Grouping is a pure function of the buffer contents, so
// re-running it on an unchanged buffer yields identical groups.
func Regroup(events []Event) []Group {
	var grouper Grouper
	for _, ev := range events {
		grouper.Append(ev)
	}
	return grouper.groups
}

// extendsGroup reports whether ev continues the trailing group. Errors and
// terminal milestones never merge, so they can never hide inside a collapsed
// run.
func extendsGroup(last Group, ev Event) bool {
	if ev.Kind.IsTerminalMilestone() {
		return false
	}
	switch ev.Kind {
	case KindPersonaSelected:
		if last.Kind != GroupExpertPanel {
			return false
		}
		data, ok := ev.PersonaSelected()
		return ok && data.SubproblemID == last.SubproblemID
	case KindContribution:
		if last.Kind != GroupRound {
			return false
		}
		data, ok := ev.Contribution()
		return ok && data.RoundNumber == last.Round
	default:
		return false
	}
}

func newGroup(ev Event) Group {
	switch ev.Kind {
	case KindPersonaSelected:
		group := Group{Kind: GroupExpertPanel, Events: []Event{ev}}
		if data, ok := ev.PersonaSelected(); ok {
			group.SubproblemID = data.SubproblemID
			group.Goal = data.Goal
		}
		return group
	case KindContribution:
		group := Group{Kind: GroupRound, Events: []Event{ev}}
		if data, ok := ev.Contribution(); ok {
			group.Round = data.RoundNumber
		}
		return group
	default:
		return Group{Kind: GroupSingle, Events: []Event{ev}}
	}
}
