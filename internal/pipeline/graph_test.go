package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	riggererrors "github.com/riggerci/rigger/internal/errors"
)

func stage(name string, deps ...string) Stage {
	return Stage{
		Name:      name,
		Required:  true,
		DependsOn: deps,
		Steps:     []Step{{Run: "true"}},
	}
}

func TestBuildGraph_TopologicalOrder(t *testing.T) {
	p := &Pipeline{
		Name: "release",
		Stages: []Stage{
			stage("provision"),
			stage("build", "provision"),
			stage("package", "build"),
			stage("publish", "build"),
		},
	}

	g, err := BuildGraph(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"provision", "build", "package", "publish"}, g.TopologicalOrder())
}

func TestBuildGraph_DeclarationOrderTieBreak(t *testing.T) {
	// c, a, b have no dependencies; order must follow declaration, not name.
	p := &Pipeline{
		Name: "ties",
		Stages: []Stage{
			stage("c"),
			stage("a"),
			stage("b"),
			stage("z", "a", "c"),
		},
	}

	g, err := BuildGraph(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b", "z"}, g.TopologicalOrder())
}

func TestBuildGraph_TieBreakAfterDependencyClears(t *testing.T) {
	// "late" is declared first but must wait for "base". Once "base" is
	// scheduled, "late" is ready and declared earlier than "extra", so it
	// runs next; batching all initially-ready stages would wrongly put
	// "extra" ahead of it.
	p := &Pipeline{
		Name: "midties",
		Stages: []Stage{
			stage("late", "base"),
			stage("base"),
			stage("extra"),
		},
	}

	g, err := BuildGraph(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "late", "extra"}, g.TopologicalOrder())
}

func TestBuildGraph_Stable(t *testing.T) {
	p := &Pipeline{
		Name: "stable",
		Stages: []Stage{
			stage("fetch"),
			stage("build", "fetch"),
			stage("test", "fetch"),
			stage("package", "build", "test"),
		},
	}

	g1, err := BuildGraph(p)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		g2, err := BuildGraph(p)
		require.NoError(t, err)
		assert.Equal(t, g1.TopologicalOrder(), g2.TopologicalOrder())
	}
}

func TestBuildGraph_RespectsEveryEdge(t *testing.T) {
	p := &Pipeline{
		Name: "edges",
		Stages: []Stage{
			stage("publish", "package"),
			stage("package", "build"),
			stage("build", "provision"),
			stage("provision"),
		},
	}

	g, err := BuildGraph(p)
	require.NoError(t, err)

	position := map[string]int{}
	for i, name := range g.TopologicalOrder() {
		position[name] = i
	}
	for _, s := range p.Stages {
		for _, dep := range s.Dependencies() {
			assert.Less(t, position[dep.Name], position[s.Name],
				"dependency %s must precede %s", dep.Name, s.Name)
		}
	}
}

func TestBuildGraph_UnknownDependency(t *testing.T) {
	p := &Pipeline{
		Name: "dangling",
		Stages: []Stage{
			stage("build", "provision"),
		},
	}

	_, err := BuildGraph(p)
	require.Error(t, err)

	var rigErr *riggererrors.RiggerError
	require.ErrorAs(t, err, &rigErr)
	assert.Equal(t, riggererrors.ErrCodeUnknownDependency, rigErr.Code)
	assert.Contains(t, err.Error(), `"provision"`)
}

func TestBuildGraph_SelfCycle(t *testing.T) {
	p := &Pipeline{
		Name: "selfish",
		Stages: []Stage{
			stage("build", "build"),
		},
	}

	_, err := BuildGraph(p)
	require.Error(t, err)

	var rigErr *riggererrors.RiggerError
	require.ErrorAs(t, err, &rigErr)
	assert.Equal(t, riggererrors.ErrCodeCycleDetected, rigErr.Code)
	assert.Contains(t, err.Error(), "build -> build")
}

func TestBuildGraph_LongerCycle(t *testing.T) {
	p := &Pipeline{
		Name: "loop",
		Stages: []Stage{
			stage("provision"),
			stage("build", "provision", "publish"),
			stage("package", "build"),
			stage("publish", "package"),
		},
	}

	_, err := BuildGraph(p)
	require.Error(t, err)

	var rigErr *riggererrors.RiggerError
	require.ErrorAs(t, err, &rigErr)
	assert.Equal(t, riggererrors.ErrCodeCycleDetected, rigErr.Code)
	// The reported path must contain every member of the cycle.
	for _, name := range []string{"build", "package", "publish"} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestGraph_Ancestry(t *testing.T) {
	p := &Pipeline{
		Name: "ancestry",
		Stages: []Stage{
			stage("provision"),
			stage("fetch"),
			stage("build", "provision"),
			stage("package", "build", "fetch"),
			stage("publish", "build"),
		},
	}

	g, err := BuildGraph(p)
	require.NoError(t, err)

	got, err := g.Ancestry("package")
	require.NoError(t, err)
	assert.Equal(t, []string{"provision", "fetch", "build", "package"}, got)

	got, err = g.Ancestry("provision")
	require.NoError(t, err)
	assert.Equal(t, []string{"provision"}, got)

	_, err = g.Ancestry("missing")
	var rigErr *riggererrors.RiggerError
	require.ErrorAs(t, err, &rigErr)
	assert.Equal(t, riggererrors.ErrCodeUnknownStage, rigErr.Code)
}

func TestGraph_Subgraph(t *testing.T) {
	p := &Pipeline{
		Name: "sub",
		Stages: []Stage{
			stage("provision"),
			stage("build", "provision"),
			stage("package", "build"),
			stage("publish", "build"),
		},
	}

	g, err := BuildGraph(p)
	require.NoError(t, err)

	ancestry, err := g.Ancestry("package")
	require.NoError(t, err)

	sub := g.Subgraph(ancestry)
	assert.Equal(t, []string{"provision", "build", "package"}, sub.TopologicalOrder())
	assert.Empty(t, sub.Dependencies("provision"))
	require.Len(t, sub.Dependencies("package"), 1)
	assert.Equal(t, "build", sub.Dependencies("package")[0].Name)
}
