package pipeline

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Pipeline is a declarative description of one release run: an ordered
// list of stages with dependencies, executed once to produce a named artifact.
type Pipeline struct {
	// Name identifies the pipeline (e.g. the job name).
	Name string `yaml:"name"`

	// Artifact is the default name for the published artifact bundle.
	// Overridable from the CLI.
	Artifact string `yaml:"artifact,omitempty"`

	// Metadata carries opaque trigger/annotation data. The orchestrator
	// never interprets it.
	Metadata map[string]string `yaml:"metadata,omitempty"`

	// Stages in declaration order. Declaration order is the tie-break for
	// scheduling stages whose dependencies are equally satisfied.
	Stages []Stage `yaml:"stages"`
}

// Stage is a named group of steps executed in sequence.
type Stage struct {
	Name string `yaml:"name"`

	// Required controls failure propagation: a failed required stage fails
	// the run and skips its dependents, a failed optional stage does neither.
	// Defaults to true when omitted from the document.
	Required bool `yaml:"required"`

	// DependsOn lists stage names this stage waits for. A name may carry a
	// trailing "!" to mark the edge as hard: the dependent is skipped when
	// that dependency fails, even if the dependency itself is optional.
	DependsOn []string `yaml:"depends_on,omitempty"`

	// Toolchain is the environment requirement provisioned before steps run.
	Toolchain *Toolchain `yaml:"toolchain,omitempty"`

	// Timeout is an optional wall-clock limit for the whole stage.
	Timeout Duration `yaml:"timeout,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step is a single external command invocation.
type Step struct {
	// Run is the shell command line.
	Run string `yaml:"run"`

	// Workdir overrides the run's working directory for this step.
	Workdir string `yaml:"workdir,omitempty"`

	// Env adds or overrides environment variables for this step only.
	Env map[string]string `yaml:"env,omitempty"`

	// Outputs are paths the step promises to produce. A zero exit with a
	// missing output is a failure.
	Outputs []string `yaml:"outputs,omitempty"`
}

// Toolchain names a tool the stage's steps need on the host.
type Toolchain struct {
	Tool string `yaml:"tool"`

	// Version is a constraint on the tool version: empty (any), an exact
	// version, or ">=X.Y" style minimum.
	Version string `yaml:"version,omitempty"`
}

func (t *Toolchain) String() string {
	if t.Version == "" {
		return t.Tool
	}
	return fmt.Sprintf("%s %s", t.Tool, t.Version)
}

// Dependency is a resolved depends_on entry.
type Dependency struct {
	Name string

	// Hard marks an edge whose failure always skips the dependent.
	// Edges to required stages are implicitly hard.
	Hard bool
}

// Dependencies returns the stage's depends_on entries with the hard-edge
// marker ("!" suffix) split out.
func (s *Stage) Dependencies() []Dependency {
	deps := make([]Dependency, 0, len(s.DependsOn))
	for _, raw := range s.DependsOn {
		name, hard := strings.CutSuffix(raw, "!")
		deps = append(deps, Dependency{Name: name, Hard: hard})
	}
	return deps
}

// UnmarshalYAML decodes a stage with required defaulting to true.
func (s *Stage) UnmarshalYAML(value *yaml.Node) error {
	type rawStage Stage
	raw := rawStage{Required: true}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*s = Stage(raw)
	return nil
}

// Duration wraps time.Duration with YAML decoding from "90s" style strings.
type Duration time.Duration

// UnmarshalYAML decodes a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML encodes the duration back to its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// StageByName returns the stage with the given name, or nil.
func (p *Pipeline) StageByName(name string) *Stage {
	for i := range p.Stages {
		if p.Stages[i].Name == name {
			return &p.Stages[i]
		}
	}
	return nil
}

// ArtifactName returns the configured artifact name, falling back to the
// pipeline name.
func (p *Pipeline) ArtifactName() string {
	if p.Artifact != "" {
		return p.Artifact
	}
	return p.Name
}
