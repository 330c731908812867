package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/askflow/types"
)

// ErrIncompleteGraph is returned by GraphBuilder.Build when the transition
// table does not cover every stage and mapped status.
var ErrIncompleteGraph = errors.New("incomplete transition graph")

// Graph is a validated transition table. Every non-terminal stage has a
// fixed successor, except the routed stage whose successor is selected by
// the mapped critic status.
type Graph struct {
	entry  types.Stage
	edges  map[types.Stage]types.Stage
	router types.Stage
	routes map[types.CriticStatus]types.Stage
}

// GraphBuilder collects transitions before validation.
type GraphBuilder struct {
	entry  types.Stage
	edges  map[types.Stage]types.Stage
	router types.Stage
	routes map[types.CriticStatus]types.Stage
	errs   []string
}

// NewGraphBuilder creates an empty builder with plan as entry.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		entry:  types.StagePlan,
		edges:  make(map[types.Stage]types.Stage),
		routes: make(map[types.CriticStatus]types.Stage),
	}
}

// Entry sets the first stage of a fresh run.
func (b *GraphBuilder) Entry(stage types.Stage) *GraphBuilder {
	b.entry = stage
	return b
}

// Edge adds a fixed transition.
func (b *GraphBuilder) Edge(from, to types.Stage) *GraphBuilder {
	if prev, ok := b.edges[from]; ok {
		b.errs = append(b.errs, fmt.Sprintf("stage %s already transitions to %s", from, prev))
		return b
	}
	b.edges[from] = to
	return b
}

// Route adds a conditional transition out of stage keyed by mapped status.
// All routes must leave the same stage.
func (b *GraphBuilder) Route(from types.Stage, status types.CriticStatus, to types.Stage) *GraphBuilder {
	if b.router != "" && b.router != from {
		b.errs = append(b.errs, fmt.Sprintf("routes already leave %s, cannot route from %s", b.router, from))
		return b
	}
	b.router = from
	if prev, ok := b.routes[status]; ok {
		b.errs = append(b.errs, fmt.Sprintf("status %s already routes to %s", status, prev))
		return b
	}
	b.routes[status] = to
	return b
}

// Build validates the table exhaustively.
func (b *GraphBuilder) Build() (*Graph, error) {
	errs := append([]string(nil), b.errs...)

	if !b.entry.Valid() || b.entry.IsTerminal() {
		errs = append(errs, fmt.Sprintf("invalid entry stage %q", b.entry))
	}
	for from, to := range b.edges {
		if !from.Valid() {
			errs = append(errs, fmt.Sprintf("unknown stage %q", from))
		}
		if !to.Valid() {
			errs = append(errs, fmt.Sprintf("stage %s transitions to unknown stage %q", from, to))
		}
	}
	if b.router == "" {
		errs = append(errs, "no conditional routes defined")
	} else {
		if _, ok := b.edges[b.router]; ok {
			errs = append(errs, fmt.Sprintf("stage %s has both a fixed edge and routes", b.router))
		}
		for _, status := range types.AllCriticStatuses() {
			to, ok := b.routes[status]
			switch {
			case !ok:
				errs = append(errs, fmt.Sprintf("status %s has no route", status))
			case !to.Valid():
				errs = append(errs, fmt.Sprintf("status %s routes to unknown stage %q", status, to))
			}
		}
		for status := range b.routes {
			if !isKnownStatus(status) {
				errs = append(errs, fmt.Sprintf("unknown status %q", status))
			}
		}
	}
	for _, stage := range types.AllStages() {
		if stage.IsTerminal() {
			if _, ok := b.edges[stage]; ok {
				errs = append(errs, fmt.Sprintf("terminal stage %s has an outgoing edge", stage))
			}
			continue
		}
		if _, ok := b.edges[stage]; !ok && stage != b.router {
			errs = append(errs, fmt.Sprintf("stage %s has no outgoing transition", stage))
		}
	}

	g := &Graph{
		entry:  b.entry,
		edges:  copyMap(b.edges),
		router: b.router,
		routes: copyMap(b.routes),
	}
	if len(errs) == 0 {
		errs = append(errs, g.unreachable()...)
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, fmt.Errorf("%w: %s", ErrIncompleteGraph, strings.Join(errs, "; "))
	}
	return g, nil
}

// DefaultGraph returns the standard pipeline:
//
//	plan → retrieve → execute → critique
//	critique: pass → done, revise_retry → retrieve,
//	          revise_rewrite → rewrite → retrieve, fail → fail → done
func DefaultGraph() *Graph {
	g, err := defaultBuilder().Build()
	if err != nil {
		panic(err)
	}
	return g
}

func defaultBuilder() *GraphBuilder {
	return NewGraphBuilder().
		Edge(types.StagePlan, types.StageRetrieve).
		Edge(types.StageRetrieve, types.StageExecute).
		Edge(types.StageExecute, types.StageCritique).
		Edge(types.StageRewrite, types.StageRetrieve).
		Edge(types.StageFail, types.StageDone).
		Route(types.StageCritique, types.StatusPass, types.StageDone).
		Route(types.StageCritique, types.StatusReviseRetry, types.StageRetrieve).
		Route(types.StageCritique, types.StatusReviseRewrite, types.StageRewrite).
		Route(types.StageCritique, types.StatusFail, types.StageFail)
}

// Entry returns the first stage of a fresh run.
func (g *Graph) Entry() types.Stage { return g.entry }

// Next resolves the successor of from. The decision is only consulted for
// the routed stage.
func (g *Graph) Next(from types.Stage, d types.Decision) (types.Stage, error) {
	if from == g.router {
		if d == nil {
			return "", fmt.Errorf("stage %s requires a critic decision", from)
		}
		to, ok := g.routes[d.Status()]
		if !ok {
			return "", fmt.Errorf("no route for status %q", d.Status())
		}
		return to, nil
	}
	to, ok := g.edges[from]
	if !ok {
		return "", fmt.Errorf("stage %s has no successor", from)
	}
	return to, nil
}

// Stages returns every stage that needs a node, in declaration order.
func (g *Graph) Stages() []types.Stage {
	var out []types.Stage
	for _, s := range types.AllStages() {
		if _, ok := g.edges[s]; ok || s == g.router {
			out = append(out, s)
		}
	}
	return out
}

func (g *Graph) successors(from types.Stage) []types.Stage {
	if from == g.router {
		out := make([]types.Stage, 0, len(g.routes))
		for _, status := range types.AllCriticStatuses() {
			out = append(out, g.routes[status])
		}
		return out
	}
	if to, ok := g.edges[from]; ok {
		return []types.Stage{to}
	}
	return nil
}

// unreachable reports stages with transitions that cannot be reached from
// the entry, and a missing path to done.
func (g *Graph) unreachable() []string {
	seen := map[types.Stage]bool{g.entry: true}
	queue := []types.Stage{g.entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.successors(cur) {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}

	var errs []string
	for _, s := range g.Stages() {
		if !seen[s] {
			errs = append(errs, fmt.Sprintf("stage %s is unreachable from %s", s, g.entry))
		}
	}
	if !seen[types.StageDone] {
		errs = append(errs, fmt.Sprintf("done is unreachable from %s", g.entry))
	}
	return errs
}

func isKnownStatus(s types.CriticStatus) bool {
	for _, known := range types.AllCriticStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
