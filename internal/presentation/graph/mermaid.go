package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// Overlay marks the progress of one conversation on the phase graph.
type Overlay struct {
	VisitedPhases []string
	CurrentPhase  string
}

// OverlayFrom builds an overlay from a session snapshot.
func OverlayFrom(s *domain.SessionState) *Overlay {
	if s == nil {
		return nil
	}
	return &Overlay{
		VisitedPhases: s.VisitedPhases(),
		CurrentPhase:  s.CurrentPhase.CurrentPhaseID,
	}
}

// GenerateMermaid produces a Mermaid flowchart of a vignette's phases.
// It applies semantic styling:
// - Initial phase: ((Circle))
// - Terminal phase (no way out): ([Stadium])
// - Default: [Rectangle]
// Branch triggers are solid edges labelled with the trigger id; the implicit
// stall edge is dotted. Overlay styles are applied if provided.
func GenerateMermaid(v *domain.Vignette, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for i, p := range v.Phases {
		safeID := sanitizeMermaidID(p.ID)
		stallTarget, canStall := v.StallTarget(&v.Phases[i])

		opener, closer := "[", "]"
		switch {
		case i == 0:
			opener, closer = "((", "))"
		case len(p.BranchTriggers) == 0 && !canStall:
			opener, closer = "([", "])"
		}

		label := escape(p.Title())
		if n := len(p.Objectives); n > 0 {
			label += fmt.Sprintf(" <br/> %d objective%s", n, plural(n))
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)

		for _, t := range p.BranchTriggers {
			edge := escape(t.ID)
			if t.MoodShift != 0 {
				edge += fmt.Sprintf(" (mood %+.1f)", t.MoodShift)
			}
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, edge, sanitizeMermaidID(t.Target))
		}
		if canStall {
			fmt.Fprintf(&sb, "    %s -. \"%s after %d\" .-> %s\n", safeID, domain.StallTriggerID, p.StallAfter, sanitizeMermaidID(stallTarget))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedPhases {
			safeID := sanitizeMermaidID(id)
			if safeID == "" || visitedSet[safeID] || id == overlay.CurrentPhase {
				continue
			}
			visitedSet[safeID] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
		}
		if overlay.CurrentPhase != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentPhase))
		}
	}

	return sb.String()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}
