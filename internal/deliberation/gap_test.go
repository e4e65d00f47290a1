package deliberation

import (
	"testing"
)

func TestGapDetectorContinuousResumeIsQuiet(t *testing.T) {
	detector := NewGapDetector(nil)
	detector.OnReconnect(ResumeInfo{Marker: "m1", Continuous: true})
	if detector.State().HasGap {
		t.Fatalf("continuous resume flagged a gap")
	}
}

func TestGapDetectorMissedCountDefaultsToOne(t *testing.T) {
	detector := NewGapDetector(nil)
	detector.OnReconnect(ResumeInfo{Marker: "m1", Continuous: false})
	state := detector.State()
	if !state.HasGap {
		t.Fatalf("lossy resume not flagged")
	}
	if state.MissedEventCount < 1 {
		t.Fatalf("missed count = %d, want >= 1", state.MissedEventCount)
	}
}

func TestGapDetectorUsesTransportHint(t *testing.T) {
	detector := NewGapDetector(nil)
	detector.OnReconnect(ResumeInfo{Continuous: false, MissedHint: 7})
	if got := detector.State().MissedEventCount; got != 7 {
		t.Fatalf("missed count = %d, want 7", got)
	}
}

func TestGapDetectorDismissalPerEpisode(t *testing.T) {
	detector := NewGapDetector(nil)
	detector.OnReconnect(ResumeInfo{Continuous: false})
	detector.Dismiss()
	if !detector.State().Dismissed {
		t.Fatalf("dismiss did not stick")
	}
	// A new lossy reconnect is a new episode: the advisory shows again.
	detector.OnReconnect(ResumeInfo{Continuous: false, MissedHint: 2})
	state := detector.State()
	if state.Dismissed {
		t.Fatalf("new episode still dismissed")
	}
	if state.MissedEventCount != 2 {
		t.Fatalf("new episode count = %d, want 2", state.MissedEventCount)
	}
}

func TestGapDetectorResetClearsEverything(t *testing.T) {
	detector := NewGapDetector(nil)
	detector.MarkSeen(contributionEvent(t, 0, 1, "A"))
	detector.OnReconnect(ResumeInfo{Continuous: false})
	detector.Reset()
	if state := detector.State(); state.HasGap || state.LastSeenMarker != "" {
		t.Fatalf("reset left state behind: %+v", state)
	}
}

func TestGapNonBlocking(t *testing.T) {
	session := NewSession("s1", SessionConfig{}, nil)
	session.OnReconnect(ResumeInfo{Continuous: false, MissedHint: 3})
	for i := 0; i < 10; i++ {
		if !session.IngestEvent(contributionEvent(t, i, 1, "expert"), testBase) {
			t.Fatalf("event %d not processed after gap", i)
		}
	}
	model := session.Render()
	if !model.Gap.HasGap || model.Gap.MissedEventCount < 1 {
		t.Fatalf("gap advisory lost: %+v", model.Gap)
	}
	total := 0
	for _, g := range model.Groups {
		total += len(g.Events)
	}
	if total != 10 {
		t.Fatalf("events rendered after gap = %d, want 10", total)
	}
}
