package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	riggererrors "github.com/riggerci/rigger/internal/errors"
)

func writePipeline(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writePipeline(t, `
name: desktop-release
artifact: consolidator
metadata:
  trigger: push
stages:
  - name: provision
    toolchain:
      tool: python3
      version: ">=3.11"
    steps:
      - run: python3 -m pip install --upgrade pip
  - name: build
    depends_on: [provision]
    timeout: 15m
    steps:
      - run: pyinstaller --onefile app.py
        workdir: src
        env:
          PYTHONOPTIMIZE: "1"
        outputs:
          - dist/app
  - name: package
    required: false
    depends_on: [build]
    steps:
      - run: create-dmg dist/app
        outputs: [dist/app.dmg]
`)

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "desktop-release", p.Name)
	assert.Equal(t, "consolidator", p.ArtifactName())
	require.Len(t, p.Stages, 3)

	provision := p.StageByName("provision")
	require.NotNil(t, provision)
	assert.True(t, provision.Required, "required should default to true")
	require.NotNil(t, provision.Toolchain)
	assert.Equal(t, "python3", provision.Toolchain.Tool)
	assert.Equal(t, ">=3.11", provision.Toolchain.Version)

	build := p.StageByName("build")
	require.NotNil(t, build)
	assert.Equal(t, 15*time.Minute, build.Timeout.Std())
	require.Len(t, build.Steps, 1)
	assert.Equal(t, "src", build.Steps[0].Workdir)
	assert.Equal(t, []string{"dist/app"}, build.Steps[0].Outputs)

	pkg := p.StageByName("package")
	require.NotNil(t, pkg)
	assert.False(t, pkg.Required)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var rigErr *riggererrors.RiggerError
	require.ErrorAs(t, err, &rigErr)
	assert.Equal(t, riggererrors.ErrCodePipelineNotFound, rigErr.Code)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writePipeline(t, "name: [unclosed")
	_, err := Load(path)
	require.Error(t, err)

	var rigErr *riggererrors.RiggerError
	require.ErrorAs(t, err, &rigErr)
	assert.Equal(t, riggererrors.ErrCodePipelineUnmarshal, rigErr.Code)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantCode riggererrors.ErrorCode
	}{
		{
			name:     "missing name",
			doc:      "stages:\n  - name: a\n    steps:\n      - run: true\n",
			wantCode: riggererrors.ErrCodePipelineInvalid,
		},
		{
			name:     "no stages",
			doc:      "name: empty\n",
			wantCode: riggererrors.ErrCodePipelineInvalid,
		},
		{
			name: "duplicate stage names",
			doc: `name: dup
stages:
  - name: build
    steps: [{run: "true"}]
  - name: build
    steps: [{run: "true"}]
`,
			wantCode: riggererrors.ErrCodeDuplicateStage,
		},
		{
			name: "stage without steps",
			doc: `name: hollow
stages:
  - name: build
`,
			wantCode: riggererrors.ErrCodePipelineInvalid,
		},
		{
			name: "step without command",
			doc: `name: blank
stages:
  - name: build
    steps:
      - run: "  "
`,
			wantCode: riggererrors.ErrCodePipelineInvalid,
		},
		{
			name: "toolchain without tool",
			doc: `name: toolless
stages:
  - name: build
    toolchain:
      version: ">=1"
    steps: [{run: "true"}]
`,
			wantCode: riggererrors.ErrCodePipelineInvalid,
		},
		{
			name: "reserved character in stage name",
			doc: `name: reserved
stages:
  - name: "build!"
    steps: [{run: "true"}]
`,
			wantCode: riggererrors.ErrCodePipelineInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePipeline(t, tt.doc)
			_, err := Load(path)
			require.Error(t, err)

			var rigErr *riggererrors.RiggerError
			require.ErrorAs(t, err, &rigErr)
			assert.Equal(t, tt.wantCode, rigErr.Code)
		})
	}
}

func TestStage_Dependencies_HardMarker(t *testing.T) {
	stage := Stage{DependsOn: []string{"build", "package!"}}
	deps := stage.Dependencies()
	require.Len(t, deps, 2)
	assert.Equal(t, Dependency{Name: "build", Hard: false}, deps[0])
	assert.Equal(t, Dependency{Name: "package", Hard: true}, deps[1])
}

func TestDuration_Unmarshal_Invalid(t *testing.T) {
	path := writePipeline(t, `
name: badtimeout
stages:
  - name: build
    timeout: soon
    steps: [{run: "true"}]
`)
	_, err := Load(path)
	require.Error(t, err)
}
