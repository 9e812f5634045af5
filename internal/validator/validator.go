// Package validator checks vignette libraries beyond the structural rules
// enforced on load: reachability of phases, whether a conversation can end,
// and triggers shadowed by earlier ones.
package validator

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/vignette"
	"golang.org/x/sync/errgroup"
)

// parallelism bounds concurrent loads from a library.
const parallelism = 8

// Finding is an authoring problem that does not make a vignette invalid.
type Finding struct {
	PhaseID string
	Message string
}

func (f Finding) String() string {
	if f.PhaseID == "" {
		return f.Message
	}
	return fmt.Sprintf("phase %q: %s", f.PhaseID, f.Message)
}

// Result is the outcome for one vignette. Err holds load or validation
// failures; Findings are only computed for vignettes that loaded.
type Result struct {
	VignetteID string
	Err        error
	Findings   []Finding
}

// OK reports whether the vignette loaded without findings.
func (r Result) OK() bool {
	return r.Err == nil && len(r.Findings) == 0
}

// ValidateLibrary loads every vignette of the loader and lints it.
// Results keep the order of ListVignettes.
func ValidateLibrary(ctx context.Context, loader ports.VignetteLoader) ([]Result, error) {
	ids, err := loader.ListVignettes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vignettes: %w", err)
	}

	results := make([]Result, len(ids))
	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, id := range ids {
		g.Go(func() error {
			v, err := loader.LoadVignette(ctx, id)
			results[i] = Result{VignetteID: id, Err: err}
			if err == nil {
				results[i].Findings = Lint(v)
			}
			return ctx.Err()
		})
	}
	return results, g.Wait()
}

// ValidateFiles parses and lints standalone vignette files.
func ValidateFiles(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := vignette.ParseFile(path)
			results[i] = Result{VignetteID: filepath.Base(path), Err: err}
			if err == nil {
				results[i].VignetteID = v.ID
				results[i].Findings = Lint(v)
			}
			return nil
		})
	}
	return results, g.Wait()
}

// Lint walks the phase graph of a structurally valid vignette from its
// initial phase.
func Lint(v *domain.Vignette) []Finding {
	start := v.InitialPhase()
	if start == nil {
		return nil
	}

	var findings []Finding
	visited := map[string]bool{}
	queue := []string{start.ID}
	canEnd := false

	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]
		if visited[currentID] {
			continue
		}
		visited[currentID] = true

		p, ok := v.Phase(currentID)
		if !ok {
			continue
		}
		stallTarget, canStall := v.StallTarget(p)
		if len(p.BranchTriggers) == 0 && !canStall {
			canEnd = true
		}

		findings = append(findings, shadowed(p, canStall)...)

		for _, t := range p.BranchTriggers {
			if !visited[t.Target] {
				queue = append(queue, t.Target)
			}
		}
		if canStall && !visited[stallTarget] {
			queue = append(queue, stallTarget)
		}
	}

	for _, p := range v.Phases {
		if !visited[p.ID] {
			findings = append(findings, Finding{PhaseID: p.ID, Message: fmt.Sprintf("unreachable from %q", start.ID)})
		}
	}
	if !canEnd {
		findings = append(findings, Finding{Message: "no reachable phase can end the conversation"})
	}
	return findings
}

// shadowed reports triggers and stall rules that can never fire because an
// earlier trigger has no conditions at all.
func shadowed(p *domain.Phase, canStall bool) []Finding {
	var findings []Finding
	first := ""
	for _, t := range p.BranchTriggers {
		if first != "" {
			findings = append(findings, Finding{PhaseID: p.ID, Message: fmt.Sprintf("trigger %q can never fire, %q always fires first", t.ID, first)})
			continue
		}
		if unconditional(t) {
			first = t.ID
		}
	}
	if first != "" && canStall {
		findings = append(findings, Finding{PhaseID: p.ID, Message: fmt.Sprintf("stallAfter has no effect, %q always fires first", first)})
	}
	return findings
}

func unconditional(t domain.BranchTrigger) bool {
	return t.Match == nil && len(t.RequireObjectives) == 0 && t.MinObjectives == 0 && t.MinMessages == 0
}
