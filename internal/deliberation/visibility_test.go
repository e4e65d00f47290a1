package deliberation

import (
	"testing"
	"time"
)

func TestWindowerMonotonicVisibility(t *testing.T) {
	windower := NewWindower(WindowConfig{InitialReveal: 2, RevealStep: 2})
	if got := windower.VisibleContributions(1, 5); got != 2 {
		t.Fatalf("initial visible = %d, want 2", got)
	}
	windower.RequestMore(1, 5)
	if got := windower.VisibleContributions(1, 5); got != 4 {
		t.Fatalf("after request: visible = %d, want 4", got)
	}
	// Never decreases, and never exceeds the round's total.
	windower.RequestMore(1, 5)
	windower.RequestMore(1, 5)
	if got := windower.VisibleContributions(1, 5); got != 5 {
		t.Fatalf("capped visible = %d, want 5", got)
	}
	prev := 0
	for total := 1; total <= 8; total++ {
		got := windower.VisibleContributions(1, total)
		if got < prev {
			t.Fatalf("visibility decreased: %d -> %d", prev, got)
		}
		prev = got
	}
}

func TestWindowerRoundsAreIndependent(t *testing.T) {
	windower := NewWindower(WindowConfig{InitialReveal: 1, RevealStep: 3})
	windower.RequestMore(1, 6)
	if got := windower.VisibleContributions(2, 6); got != 1 {
		t.Fatalf("round 2 inherited round 1 reveals: %d", got)
	}
}

func TestWindowerAutoReveal(t *testing.T) {
	windower := NewWindower(WindowConfig{InitialReveal: 1, AutoRevealInterval: 5 * time.Second})
	now := testBase
	windower.AutoReveal(1, 4, now)
	base := windower.VisibleContributions(1, 4)
	// Within the interval nothing more reveals.
	windower.AutoReveal(1, 4, now.Add(2*time.Second))
	if got := windower.VisibleContributions(1, 4); got != base {
		t.Fatalf("auto-reveal fired early: %d", got)
	}
	windower.AutoReveal(1, 4, now.Add(6*time.Second))
	if got := windower.VisibleContributions(1, 4); got != base+1 {
		t.Fatalf("auto-reveal did not advance: %d, want %d", got, base+1)
	}
}

func TestWindowerViewModeToggle(t *testing.T) {
	windower := NewWindower(WindowConfig{})
	if windower.ViewMode(3) != ViewSimple {
		t.Fatalf("default mode should be simple")
	}
	windower.ToggleViewMode(3)
	if windower.ViewMode(3) != ViewFull {
		t.Fatalf("toggle did not switch to full")
	}
	windower.ToggleViewMode(3)
	if windower.ViewMode(3) != ViewSimple {
		t.Fatalf("toggle did not switch back")
	}
}

func TestWindowerLazyRecencyBias(t *testing.T) {
	windower := NewWindower(WindowConfig{LazyThreshold: 10, RecentWindow: 4})
	// Under the threshold nothing is lazy.
	for i := 0; i < 10; i++ {
		if windower.LazyEligible(i, 10) {
			t.Fatalf("group %d lazy below threshold", i)
		}
	}
	// Over the threshold, only groups outside the trailing window are lazy.
	total := 20
	for i := 0; i < total; i++ {
		lazy := windower.LazyEligible(i, total)
		wantLazy := i < total-4
		if lazy != wantLazy {
			t.Fatalf("group %d of %d: lazy = %v, want %v", i, total, lazy, wantLazy)
		}
	}
}
