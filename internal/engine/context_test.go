package engine

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunContext_InheritsEnvironment(t *testing.T) {
	t.Setenv("RIGGER_TEST_MARKER", "inherited")

	rc := NewRunContext(t.TempDir())
	require.NotEmpty(t, rc.RunID)

	v, ok := rc.Lookup("RIGGER_TEST_MARKER")
	require.True(t, ok)
	assert.Equal(t, "inherited", v)
	assert.Contains(t, rc.Environ(), "RIGGER_TEST_MARKER=inherited")
}

func TestRunContext_UniqueRunIDs(t *testing.T) {
	a := NewRunContext(t.TempDir())
	b := NewRunContext(t.TempDir())
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestStageOverlay_IsolatedUntilCommit(t *testing.T) {
	rc := NewRunContext(t.TempDir())
	overlay := rc.StageOverlay()

	overlay.Set("TOOL_HOME", "/opt/tool")

	_, ok := rc.Lookup("TOOL_HOME")
	assert.False(t, ok, "overlay writes must not leak before commit")

	v, ok := overlay.Get("TOOL_HOME")
	require.True(t, ok)
	assert.Equal(t, "/opt/tool", v)

	overlay.Commit()

	v, ok = rc.Lookup("TOOL_HOME")
	require.True(t, ok)
	assert.Equal(t, "/opt/tool", v)
}

func TestStageOverlay_PrependPath(t *testing.T) {
	rc := NewRunContext(t.TempDir())
	base, _ := rc.Lookup("PATH")
	overlay := rc.StageOverlay()

	overlay.PrependPath("/opt/tool/bin")

	got, ok := overlay.Get("PATH")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(got, "/opt/tool/bin"+string(os.PathListSeparator)))
	assert.True(t, strings.HasSuffix(got, base))

	// Run environment untouched until commit.
	current, _ := rc.Lookup("PATH")
	assert.Equal(t, base, current)
}

func TestStageOverlay_EnvironMergesOverlay(t *testing.T) {
	rc := NewRunContext(t.TempDir())
	overlay := rc.StageOverlay()
	overlay.Set("ONLY_IN_OVERLAY", "yes")

	assert.Contains(t, overlay.Environ(), "ONLY_IN_OVERLAY=yes")
	assert.NotContains(t, rc.Environ(), "ONLY_IN_OVERLAY=yes")
}

func TestRunContext_EnvironSortedAndDeterministic(t *testing.T) {
	rc := NewRunContext(t.TempDir())
	first := rc.Environ()
	second := rc.Environ()
	assert.Equal(t, first, second)

	sorted := append([]string{}, first...)
	for i := 1; i < len(sorted); i++ {
		assert.LessOrEqual(t, sorted[i-1], sorted[i])
	}
}
