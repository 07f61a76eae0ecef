package pipeline

import (
	"github.com/riggerci/rigger/internal/errors"
)

// Graph resolves a pipeline's stage dependency relation. Construction fails
// on unknown dependencies and cycles, so a Graph in hand means the pipeline
// is schedulable.
type Graph struct {
	pipeline *Pipeline
	order    []string
	deps     map[string][]Dependency
}

// BuildGraph validates the dependency relation of the pipeline and computes
// a stable topological order. Among stages whose dependencies are equally
// satisfied, declaration order wins, so repeated resolutions of the same
// pipeline schedule identically.
func BuildGraph(p *Pipeline) (*Graph, error) {
	known := make(map[string]struct{}, len(p.Stages))
	for _, stage := range p.Stages {
		known[stage.Name] = struct{}{}
	}

	deps := make(map[string][]Dependency, len(p.Stages))
	indegree := make(map[string]int, len(p.Stages))
	dependents := make(map[string][]string)

	for _, stage := range p.Stages {
		resolved := stage.Dependencies()
		for _, dep := range resolved {
			if _, ok := known[dep.Name]; !ok {
				return nil, errors.NewUnknownDependencyError(stage.Name, dep.Name)
			}
			dependents[dep.Name] = append(dependents[dep.Name], stage.Name)
		}
		deps[stage.Name] = resolved
		indegree[stage.Name] = len(resolved)
	}

	// Kahn's algorithm, scheduling one stage at a time: always the
	// earliest-declared stage whose dependencies are satisfied. Restarting
	// the scan after every pick keeps the tie-break exact — a stage freed
	// up mid-schedule still beats every later-declared stage.
	order := make([]string, 0, len(p.Stages))
	scheduled := make(map[string]bool, len(p.Stages))
	for len(order) < len(p.Stages) {
		next := ""
		for _, stage := range p.Stages {
			if !scheduled[stage.Name] && indegree[stage.Name] == 0 {
				next = stage.Name
				break
			}
		}
		if next == "" {
			return nil, errors.NewCycleDetectedError(findCycle(p, deps, scheduled))
		}
		scheduled[next] = true
		order = append(order, next)
		for _, dependent := range dependents[next] {
			indegree[dependent]--
		}
	}

	return &Graph{pipeline: p, order: order, deps: deps}, nil
}

// findCycle locates one dependency cycle among the unscheduled stages and
// returns its path, first node repeated at the end.
func findCycle(p *Pipeline, deps map[string][]Dependency, scheduled map[string]bool) []string {
	const (
		unvisited = iota
		inStack
		done
	)
	state := make(map[string]int)

	var cycle []string
	var visit func(name string, path []string) bool
	visit = func(name string, path []string) bool {
		state[name] = inStack
		path = append(path, name)
		for _, dep := range deps[name] {
			switch state[dep.Name] {
			case inStack:
				// Trim the path to the cycle itself.
				for i, n := range path {
					if n == dep.Name {
						cycle = append(append([]string{}, path[i:]...), dep.Name)
						return true
					}
				}
			case unvisited:
				if visit(dep.Name, path) {
					return true
				}
			}
		}
		state[name] = done
		return false
	}

	for _, stage := range p.Stages {
		if scheduled[stage.Name] || state[stage.Name] != unvisited {
			continue
		}
		if visit(stage.Name, nil) {
			return cycle
		}
	}
	return nil
}

// TopologicalOrder returns the stage names in execution order.
func (g *Graph) TopologicalOrder() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Dependencies returns the resolved dependency edges of a stage.
func (g *Graph) Dependencies(name string) []Dependency {
	return g.deps[name]
}

// Ancestry returns the transitive dependency closure of a stage (the stage
// included), in topological order. Used by --only to run one stage with the
// stages it cannot run without.
func (g *Graph) Ancestry(name string) ([]string, error) {
	if g.pipeline.StageByName(name) == nil {
		return nil, errors.NewUnknownStageError(name)
	}

	needed := map[string]bool{name: true}
	// Walk the topological order backwards so each stage's dependencies are
	// marked after the stage itself.
	for i := len(g.order) - 1; i >= 0; i-- {
		stage := g.order[i]
		if !needed[stage] {
			continue
		}
		for _, dep := range g.deps[stage] {
			needed[dep.Name] = true
		}
	}

	out := make([]string, 0, len(needed))
	for _, stage := range g.order {
		if needed[stage] {
			out = append(out, stage)
		}
	}
	return out, nil
}

// Subgraph returns a copy of the graph restricted to the given stages.
// Dependency edges leaving the set are dropped; callers are expected to pass
// a dependency-closed set such as Ancestry output.
func (g *Graph) Subgraph(stages []string) *Graph {
	keep := make(map[string]bool, len(stages))
	for _, s := range stages {
		keep[s] = true
	}

	order := make([]string, 0, len(stages))
	for _, s := range g.order {
		if keep[s] {
			order = append(order, s)
		}
	}

	deps := make(map[string][]Dependency, len(stages))
	for _, s := range order {
		for _, dep := range g.deps[s] {
			if keep[dep.Name] {
				deps[s] = append(deps[s], dep)
			}
		}
	}

	return &Graph{pipeline: g.pipeline, order: order, deps: deps}
}

// Pipeline returns the pipeline this graph was built from.
func (g *Graph) Pipeline() *Pipeline {
	return g.pipeline
}
