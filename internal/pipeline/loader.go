package pipeline

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/riggerci/rigger/internal/errors"
)

// Load reads a pipeline definition from a YAML file and validates it.
// Validation covers the document shape only; dependency resolution (unknown
// dependencies, cycles) happens in BuildGraph.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePipelineNotFound, fmt.Sprintf("cannot read pipeline file %s", path), err)
	}

	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(errors.ErrCodePipelineUnmarshal, fmt.Sprintf("cannot parse pipeline file %s", path), err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &p, nil
}

// Validate checks the pipeline document for structural errors.
func (p *Pipeline) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New(errors.ErrCodePipelineInvalid, "pipeline name is required")
	}
	if len(p.Stages) == 0 {
		return errors.New(errors.ErrCodePipelineInvalid, "pipeline must define at least one stage")
	}

	seen := make(map[string]struct{}, len(p.Stages))
	for i, stage := range p.Stages {
		if strings.TrimSpace(stage.Name) == "" {
			return errors.New(errors.ErrCodePipelineInvalid, fmt.Sprintf("stage at index %d has no name", i))
		}
		if strings.ContainsAny(stage.Name, "!/ ") {
			return errors.New(errors.ErrCodePipelineInvalid, fmt.Sprintf("stage name %q contains reserved characters", stage.Name))
		}
		if _, ok := seen[stage.Name]; ok {
			return errors.NewDuplicateStageError(stage.Name)
		}
		seen[stage.Name] = struct{}{}

		if len(stage.Steps) == 0 {
			return errors.New(errors.ErrCodePipelineInvalid, fmt.Sprintf("stage %q has no steps", stage.Name))
		}
		for j, step := range stage.Steps {
			if strings.TrimSpace(step.Run) == "" {
				return errors.New(errors.ErrCodePipelineInvalid, fmt.Sprintf("stage %q step %d has no command", stage.Name, j))
			}
		}

		if stage.Toolchain != nil && strings.TrimSpace(stage.Toolchain.Tool) == "" {
			return errors.New(errors.ErrCodePipelineInvalid, fmt.Sprintf("stage %q declares a toolchain without a tool name", stage.Name))
		}
		if stage.Timeout < 0 {
			return errors.New(errors.ErrCodePipelineInvalid, fmt.Sprintf("stage %q has a negative timeout", stage.Name))
		}
	}

	return nil
}
