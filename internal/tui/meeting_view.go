package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/quorumlabs/quorum/internal/deliberation"
)

var (
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#EDEDED")).Bold(true)
	headerMetaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	spinnerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))

	cardTitleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	cardSelectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	cardBodyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	cardDimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))
	personaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	milestoneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)

	bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	gapStyle    = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F7B801")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#F7B801")).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))
)

// chromeHeight is the number of terminal rows the non-viewport chrome needs:
// header, phase banner, gap allowance, footer.
func chromeHeight(width int) int {
	_ = width
	return 7
}

func renderHeader(model deliberation.RenderModel, width int, replay, paused bool) string {
	title := headerStyle.Render("⬡ QUORUM MEETING")
	meta := fmt.Sprintf("session %s · %d groups", model.SessionID, len(model.Groups))
	if replay {
		meta += " · replay"
	}
	if paused {
		meta += " · PAUSED"
	}
	line := title + "  " + headerMetaStyle.Render(meta)
	return lipgloss.NewStyle().Width(width).Render(line)
}

func renderPhaseBanner(phase deliberation.PhaseState, spinnerFrame string, width int) string {
	var b strings.Builder
	if !phase.Phase.IsTerminal() && phase.Phase != deliberation.PhaseIdle {
		b.WriteString(spinnerFrame)
		b.WriteString(" ")
	}
	b.WriteString(phase.Phase.FriendlyName())
	if phase.Round > 0 && phase.Phase == deliberation.PhaseRoundActive {
		b.WriteString(fmt.Sprintf(" · round %d", phase.Round))
	}
	if phase.Message != "" {
		b.WriteString(" · ")
		b.WriteString(phase.Message)
	}
	if phase.Milestone != "" {
		b.WriteString(" · ")
		b.WriteString(phase.Milestone)
	}
	if phase.ElapsedSeconds > 0 && !phase.Phase.IsTerminal() {
		b.WriteString(fmt.Sprintf(" (%s)", formatElapsed(phase.ElapsedSeconds)))
	}
	style := bannerStyle
	if phase.Phase == deliberation.PhaseFailed {
		style = errorStyle
	}
	if phase.Phase == deliberation.PhaseComplete {
		style = milestoneStyle
	}
	return style.Width(width).Render(b.String())
}

func renderGapBanner(gap deliberation.GapState, width int) string {
	if !gap.HasGap || gap.Dismissed {
		return ""
	}
	text := fmt.Sprintf("Connection was interrupted · about %d event(s) may be missing · x to dismiss", gap.MissedEventCount)
	return gapStyle.Width(min(width-2, lipgloss.Width(text)+4)).Render(text)
}

func renderFooter(statusMsg string, width int) string {
	keys := "[/] select · m more · v card mode · x dismiss gap · l log · p pause · r resume · t terminate · e export · q quit"
	if statusMsg != "" {
		keys = statusMsg + "  ·  " + keys
	}
	return footerStyle.Width(width).Render(keys)
}

// logPanelLines is how many logbook entries the toggleable log panel shows.
const logPanelLines = 6

func renderLogPanel(entries []string, width int) string {
	lines := []string{cardDimStyle.Render("── log ──")}
	if len(entries) == 0 {
		lines = append(lines, cardDimStyle.Render("(log empty)"))
	}
	for _, entry := range entries {
		lines = append(lines, footerStyle.Render(firstLine(entry, width-2)))
	}
	return lipgloss.NewStyle().Width(width).Render(strings.Join(lines, "\n"))
}

// renderMeeting renders the ordered groups into the transcript body.
func renderMeeting(model deliberation.RenderModel, width int, selection int) string {
	if len(model.Groups) == 0 {
		return cardDimStyle.Render("Waiting for the first event…")
	}
	blocks := make([]string, 0, len(model.Groups))
	for _, view := range model.Groups {
		selected := view.Index == selection
		blocks = append(blocks, renderGroup(view, width, selected))
	}
	return strings.Join(blocks, "\n\n")
}

func renderGroup(view deliberation.GroupView, width int, selected bool) string {
	if view.Lazy {
		return renderLazyPlaceholder(view, selected)
	}
	switch view.Kind {
	case deliberation.GroupExpertPanel:
		return renderPanelCard(view, width, selected)
	case deliberation.GroupRound:
		return renderRoundCard(view, width, selected)
	default:
		return renderSingleCard(view, width, selected)
	}
}

// renderLazyPlaceholder reserves a stable-height block for a group outside
// the recent window; its content is built only once the group scrolls back in.
func renderLazyPlaceholder(view deliberation.GroupView, selected bool) string {
	label := "milestone"
	switch view.Kind {
	case deliberation.GroupExpertPanel:
		label = fmt.Sprintf("expert panel · %d selections", len(view.Events))
	case deliberation.GroupRound:
		label = fmt.Sprintf("round %d · %d contributions", view.Round, len(view.Events))
	default:
		if len(view.Events) > 0 {
			label = view.Events[0].WireType
		}
	}
	marker := "·"
	if selected {
		marker = cardSelectedStyle.Render("▸")
	}
	return fmt.Sprintf("%s %s", marker, cardDimStyle.Render(label+" (collapsed)"))
}

func renderPanelCard(view deliberation.GroupView, width int, selected bool) string {
	title := titleLine("EXPERT PANEL", view, selected)
	lines := []string{title}
	if view.Goal != "" {
		lines = append(lines, cardDimStyle.Render("goal: "+view.Goal))
	}
	for _, expert := range view.Experts() {
		entry := personaStyle.Render(expert.Name)
		if expert.Role != "" {
			entry += cardBodyStyle.Render(" — " + expert.Role)
		}
		if view.Mode == deliberation.ViewFull && expert.Expertise != "" {
			entry += cardDimStyle.Render(" (" + expert.Expertise + ")")
		}
		lines = append(lines, "  "+entry)
	}
	return strings.Join(lines, "\n")
}

func renderRoundCard(view deliberation.GroupView, width int, selected bool) string {
	title := titleLine(fmt.Sprintf("ROUND %d", view.Round), view, selected)
	lines := []string{title}

	total := len(view.Events)
	shown := 0
	for _, ev := range view.Events {
		if shown >= view.Visible {
			break
		}
		data, ok := ev.Contribution()
		if !ok {
			lines = append(lines, "  "+cardDimStyle.Render(ev.WireType))
			shown++
			continue
		}
		lines = append(lines, renderContribution(data, view.Mode, width)...)
		shown++
	}
	if hidden := total - shown; hidden > 0 {
		lines = append(lines, cardDimStyle.Render(fmt.Sprintf("  … %d more contribution(s) · press m to reveal", hidden)))
	}
	return strings.Join(lines, "\n")
}

func renderContribution(data deliberation.ContributionData, mode deliberation.CardViewMode, width int) []string {
	header := "  " + personaStyle.Render(data.Persona)
	content := strings.TrimSpace(data.Content)
	if mode == deliberation.ViewSimple {
		return []string{header + cardBodyStyle.Render(": "+firstLine(content, width-6))}
	}
	lines := []string{header}
	for _, line := range wrapText(content, width-4) {
		lines = append(lines, "    "+cardBodyStyle.Render(line))
	}
	return lines
}

func renderSingleCard(view deliberation.GroupView, width int, selected bool) string {
	if len(view.Events) == 0 {
		return ""
	}
	ev := view.Events[0]
	switch ev.Kind {
	case deliberation.KindSynthesisComplete:
		title := titleLine("SYNTHESIS", view, selected)
		data, ok := ev.Synthesis()
		if !ok {
			return title
		}
		lines := []string{title}
		for _, line := range wrapText(data.Recommendation, width-4) {
			lines = append(lines, "  "+cardBodyStyle.Render(line))
		}
		if data.Remaining > 0 {
			lines = append(lines, cardDimStyle.Render(fmt.Sprintf("  %d subproblem(s) remaining", data.Remaining)))
		}
		return strings.Join(lines, "\n")

	case deliberation.KindSubproblemComplete:
		data, _ := ev.SubproblemComplete()
		text := fmt.Sprintf("✔ Subproblem %s complete", data.SubproblemID)
		if data.Remaining > 0 {
			text += fmt.Sprintf(" · %d remaining", data.Remaining)
		}
		return selectPrefix(selected) + milestoneStyle.Render(text)

	case deliberation.KindMetaSynthesisComplete:
		title := titleLine("FINAL RECOMMENDATION", view, selected)
		data, ok := ev.MetaSynthesis()
		if !ok {
			return title
		}
		lines := []string{title}
		for _, line := range wrapText(data.Recommendation, width-4) {
			lines = append(lines, "  "+cardBodyStyle.Render(line))
		}
		return strings.Join(lines, "\n")

	case deliberation.KindComplete:
		return selectPrefix(selected) + milestoneStyle.Render("✔ Deliberation complete")

	case deliberation.KindError:
		data, _ := ev.ErrorInfo()
		message := data.Message
		if message == "" {
			message = "the deliberation failed"
		}
		return selectPrefix(selected) + errorStyle.Render("✘ "+message)

	case deliberation.KindPersonaVote:
		data, _ := ev.Vote()
		text := fmt.Sprintf("%s voted %s", data.Persona, data.Choice)
		if data.Confidence > 0 {
			text += fmt.Sprintf(" (%.0f%%)", data.Confidence*100)
		}
		return selectPrefix(selected) + cardBodyStyle.Render(text)

	default:
		// Unknown wire type: keep it visible rather than dropping it.
		return selectPrefix(selected) + cardDimStyle.Render("• "+ev.WireType)
	}
}

func titleLine(label string, view deliberation.GroupView, selected bool) string {
	style := cardTitleStyle
	prefix := ""
	if selected {
		style = cardSelectedStyle
		prefix = "▸ "
	}
	return prefix + style.Render(label)
}

func selectPrefix(selected bool) string {
	if selected {
		return cardSelectedStyle.Render("▸ ")
	}
	return ""
}

func formatElapsed(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
}

// firstLine truncates to the first line and at most width runes. Truncation
// counts runes, not bytes, so multibyte content is never split mid-character.
func firstLine(text string, width int) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if width <= 3 {
		return line
	}
	runes := []rune(line)
	if len(runes) > width {
		return string(runes[:width-1]) + "…"
	}
	return line
}

// wrapText is a plain greedy word wrapper; lipgloss handles styling, not
// layout, for card bodies.
func wrapText(text string, width int) []string {
	if width < 10 {
		width = 10
	}
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			if len(current)+1+len(word) > width {
				lines = append(lines, current)
				current = word
				continue
			}
			current += " " + word
		}
		lines = append(lines, current)
	}
	return lines
}
