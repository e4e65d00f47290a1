package deliberation

import "time"

// CardViewMode selects how much of a group's content a card shows.
type CardViewMode int

const (
	ViewSimple CardViewMode = iota
	ViewFull
)

// String returns the mode's display name.
func (m CardViewMode) String() string {
	if m == ViewFull {
		return "full"
	}
	return "simple"
}

const (
	// DefaultInitialReveal is how many contributions a new round shows at once.
	DefaultInitialReveal = 2
	// DefaultRevealStep is how many more contributions each reveal request adds.
	DefaultRevealStep = 1
	// DefaultAutoRevealInterval paces time-based auto-reveal in the active round.
	DefaultAutoRevealInterval = 6 * time.Second
	// DefaultLazyThreshold is the group count beyond which older groups become
	// height-reserved placeholders.
	DefaultLazyThreshold = 30
	// DefaultRecentWindow is how many trailing groups always render in full.
	DefaultRecentWindow = 12
)

// WindowConfig tunes progressive disclosure and render-cost control.
type WindowConfig struct {
	InitialReveal      int
	RevealStep         int
	AutoRevealInterval time.Duration
	LazyThreshold      int
	RecentWindow       int
}

func (c WindowConfig) withDefaults() WindowConfig {
	if c.InitialReveal <= 0 {
		c.InitialReveal = DefaultInitialReveal
	}
	if c.RevealStep <= 0 {
		c.RevealStep = DefaultRevealStep
	}
	if c.AutoRevealInterval <= 0 {
		c.AutoRevealInterval = DefaultAutoRevealInterval
	}
	if c.LazyThreshold <= 0 {
		c.LazyThreshold = DefaultLazyThreshold
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = DefaultRecentWindow
	}
	return c
}

// Windower owns per-round reveal counts, per-group card view modes, and the
// lazy-render flag for long sessions. All state is view-scoped and dies with
// the session view.
type Windower struct {
	cfg        WindowConfig
	revealed   map[int]int          // round number -> revealed contribution count
	modes      map[int]CardViewMode // group index -> view mode
	lastReveal time.Time
}

// NewWindower returns a windower with the given tuning.
func NewWindower(cfg WindowConfig) *Windower {
	return &Windower{
		cfg:      cfg.withDefaults(),
		revealed: map[int]int{},
		modes:    map[int]CardViewMode{},
	}
}

// VisibleContributions returns how many of a round's total contributions are
// currently revealed. The count starts at the initial default, only ever
// grows while the round exists, and is capped at total.
func (w *Windower) VisibleContributions(round, total int) int {
	visible := w.revealed[round]
	if visible < w.cfg.InitialReveal {
		visible = w.cfg.InitialReveal
	}
	if visible > total {
		visible = total
	}
	return visible
}

// RequestMore reveals the next step of contributions in a round, on user
// request.
func (w *Windower) RequestMore(round, total int) {
	current := w.VisibleContributions(round, total)
	next := current + w.cfg.RevealStep
	if next > total {
		next = total
	}
	if next > w.revealed[round] {
		w.revealed[round] = next
	}
}

// AutoReveal reveals one more contribution in the active round when the
// auto-reveal interval has elapsed. Driven by the same wall-clock tick as the
// phase tracker; it never reveals in inactive rounds.
func (w *Windower) AutoReveal(activeRound, total int, now time.Time) {
	if activeRound <= 0 || total <= 0 {
		return
	}
	if now.Sub(w.lastReveal) < w.cfg.AutoRevealInterval {
		return
	}
	w.lastReveal = now
	current := w.VisibleContributions(activeRound, total)
	if current >= total {
		return
	}
	if current+1 > w.revealed[activeRound] {
		w.revealed[activeRound] = current + 1
	}
}

// ToggleViewMode flips a group's card between simple and full rendering.
// Purely presentational: grouping and phase state are unaffected.
func (w *Windower) ToggleViewMode(groupIndex int) {
	if w.modes[groupIndex] == ViewFull {
		w.modes[groupIndex] = ViewSimple
	} else {
		w.modes[groupIndex] = ViewFull
	}
}

// ViewMode returns a group's current card view mode.
func (w *Windower) ViewMode(groupIndex int) CardViewMode {
	return w.modes[groupIndex]
}

// LazyEligible reports whether the group at groupIndex should render as a
// height-reserved placeholder. Only kicks in once the session exceeds the
// lazy threshold, and the most recent groups are never placeholders.
func (w *Windower) LazyEligible(groupIndex, totalGroups int) bool {
	if totalGroups <= w.cfg.LazyThreshold {
		return false
	}
	return groupIndex < totalGroups-w.cfg.RecentWindow
}
