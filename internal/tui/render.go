package tui

import (
	"fmt"
	"strings"

	"github.com/initializ/cip/guardrail"
	"github.com/initializ/cip/selection"
)

// KV renders one summary line.
func (s *StyleSet) KV(key, value string) string {
	if s.Plain {
		return fmt.Sprintf("%-16s%s", key, value)
	}
	return s.SummaryKey.Render(key) + s.SummaryValue.Render(value)
}

// Heading renders a section title.
func (s *StyleSet) Heading(text string) string { return s.render(s.Title, text) }

// Warning renders a WARNING: line.
func (s *StyleSet) Warning(msg string) string { return s.render(s.WarningTxt, "WARNING: ") + msg }

// Error renders an ERROR: line.
func (s *StyleSet) Error(msg string) string { return s.render(s.ErrorTxt, "ERROR: ") + msg }

// Success renders a success line.
func (s *StyleSet) Success(msg string) string { return s.render(s.SuccessTxt, msg) }

// Scores renders the per-scaffold ranking, best first, marking the chosen id.
func (s *StyleSet) Scores(ranking []selection.ScaffoldScore, chosen string) string {
	var b strings.Builder
	for _, r := range ranking {
		mark := "  "
		if r.ScaffoldID == chosen {
			mark = s.render(s.AccentTxt, "> ")
		}
		line := fmt.Sprintf("%-24s %.4f  L1 %.2f  L2 %.2f  L3 %.2f  L4 %.2f  active %d",
			r.ScaffoldID, r.Total, r.Layers.Applicability, r.Layers.Reasoning, r.Layers.Output, r.Layers.Guardrail, r.Active)
		if r.ScaffoldID != chosen {
			line = s.render(s.DimTxt, line)
		}
		b.WriteString(mark + line + "\n")
	}
	return b.String()
}

// Health renders a portfolio health report: one line per scaffold, tension
// pairs, the top coupled pairs and shared applicability signals.
func (s *StyleSet) Health(ph *selection.PortfolioHealth, topCoupling int) string {
	var b strings.Builder
	b.WriteString(s.Heading("Scaffold health") + "\n")
	b.WriteString(s.render(s.DimTxt, fmt.Sprintf("  %-24s %-7s %-7s %-14s %-18s L1   L2   L3   L4",
		"scaffold", "m", "coh", "dominant", "signal")) + "\n")
	for _, h := range ph.Scaffolds {
		line := fmt.Sprintf("  %-24s %.3f   %.3f   %-14s %-18s %.2f %.2f %.2f %.2f",
			h.ScaffoldID, h.MScore, h.Coherence, h.Dominant, h.Signal,
			h.Layers.Applicability, h.Layers.Reasoning, h.Layers.Output, h.Layers.Guardrail)
		if h.Signal == selection.SignalFriction {
			line = s.render(s.WarningTxt, line)
		}
		b.WriteString(line + "\n")
	}
	for _, h := range ph.Scaffolds {
		for _, tp := range h.Tensions {
			b.WriteString(fmt.Sprintf("  tension %s: %s <-> %s agreement=%.3f\n", h.ScaffoldID, tp.LayerA, tp.LayerB, tp.Agreement))
		}
	}
	for i, c := range ph.Coupling {
		if i >= topCoupling {
			break
		}
		b.WriteString(s.render(s.DimTxt, fmt.Sprintf("  coupling %s <-> %s [%s] score=%.3f", c.ScaffoldA, c.ScaffoldB, c.Layer, c.Score)) + "\n")
	}
	for _, ov := range ph.Overlaps {
		var parts []string
		if len(ov.SharedTools) > 0 {
			parts = append(parts, "tools "+strings.Join(ov.SharedTools, ", "))
		}
		if len(ov.SharedPhrases) > 0 {
			parts = append(parts, "phrases "+strings.Join(ov.SharedPhrases, ", "))
		}
		b.WriteString(s.Warning(fmt.Sprintf("%s and %s share %s", ov.ScaffoldA, ov.ScaffoldB, strings.Join(parts, "; "))) + "\n")
	}
	n := len(ph.Scaffolds)
	b.WriteString(s.KV("portfolio", fmt.Sprintf("%d scaffold(s), coherence %.3f, %s", n, ph.AvgCoherence, ph.Signal)) + "\n")
	return b.String()
}

// Verdict renders a guardrail result summary.
func (s *StyleSet) Verdict(res *guardrail.Result) string {
	var b strings.Builder
	switch {
	case res.Cancelled:
		b.WriteString(s.render(s.WarningTxt, "cancelled") + ": " + res.HaltReason + "\n")
	case res.State == guardrail.StateHalted:
		b.WriteString(s.render(s.ErrorTxt, "halted") + ": " + res.HaltReason + "\n")
	case res.Fired:
		b.WriteString(s.render(s.WarningTxt, "redacted") + ": " + res.Detector + ": " + res.Reason + "\n")
	default:
		b.WriteString(s.render(s.SuccessTxt, "clean") + "\n")
	}
	for _, iv := range res.Interventions {
		b.WriteString(s.render(s.DimTxt, fmt.Sprintf("  %s [%s] %s", iv.Detector, iv.Action, iv.Reason)) + "\n")
	}
	for _, f := range res.Failures {
		b.WriteString(s.Warning(fmt.Sprintf("detector %s failed: %s", f.Detector, f.Message)) + "\n")
	}
	return b.String()
}

// Box wraps body in a bordered box.
func (s *StyleSet) Box(body string) string {
	if s.Plain {
		return body
	}
	return s.BorderedBox.Render(body)
}
