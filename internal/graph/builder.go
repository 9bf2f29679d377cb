package graph

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/compose-network/deployctl/internal/domain"
)

var (
	ErrCyclicDependency     = fmt.Errorf("cyclic dependency: %w", domain.ErrStructural)
	ErrUnknownStepReference = fmt.Errorf("unknown step reference: %w", domain.ErrStructural)
	ErrDuplicateStep        = fmt.Errorf("duplicate step: %w", domain.ErrStructural)
	ErrUndeclaredDependency = fmt.Errorf("parameter references a step that is not a dependency: %w", domain.ErrStructural)
	ErrInvalidStep          = fmt.Errorf("invalid step: %w", domain.ErrStructural)
)

type (
	// Builder assembles a graph declaratively. Nothing is validated until
	// Build, which reports every problem it finds.
	Builder struct {
		name  string
		steps []*StepBuilder
	}

	StepBuilder struct {
		step Step
	}
)

func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Contract declares a step deploying artifactRef with the given constructor params.
// Referenced steps are not implicitly added as dependencies.
func (b *Builder) Contract(id, artifactRef string, params ...Param) *StepBuilder {
	sb := &StepBuilder{step: Step{
		ID:       id,
		Artifact: Artifact{Ref: artifactRef},
		Params:   append([]Param(nil), params...),
	}}
	b.steps = append(b.steps, sb)
	return sb
}

// After declares that the step runs after the given steps.
func (sb *StepBuilder) After(ids ...string) *StepBuilder {
	for _, id := range ids {
		if !slices.Contains(sb.step.Dependencies, id) {
			sb.step.Dependencies = append(sb.step.Dependencies, id)
		}
	}
	return sb
}

func (sb *StepBuilder) ID() string {
	return sb.step.ID
}

// Build validates the declared steps and returns an immutable graph.
func (b *Builder) Build() (*Graph, error) {
	if strings.TrimSpace(b.name) == "" {
		return nil, fmt.Errorf("%w: graph name is required", ErrInvalidStep)
	}

	g := &Graph{
		name:  b.name,
		index: make(map[string]int, len(b.steps)),
	}

	var errs []error
	for _, sb := range b.steps {
		step := sb.step.clone()
		if strings.TrimSpace(step.ID) == "" {
			errs = append(errs, fmt.Errorf("%w: step id is required", ErrInvalidStep))
			continue
		}
		if step.Artifact.Ref == "" {
			errs = append(errs, fmt.Errorf("%w: step '%s' has no artifact", ErrInvalidStep, step.ID))
		}
		if _, exists := g.index[step.ID]; exists {
			errs = append(errs, fmt.Errorf("%w '%s'", ErrDuplicateStep, step.ID))
			continue
		}
		g.index[step.ID] = len(g.steps)
		g.steps = append(g.steps, step)
	}

	for _, step := range g.steps {
		for _, dep := range step.Dependencies {
			if _, ok := g.index[dep]; !ok {
				errs = append(errs, fmt.Errorf("%w: step '%s' depends on '%s'", ErrUnknownStepReference, step.ID, dep))
			}
			if dep == step.ID {
				errs = append(errs, fmt.Errorf("%w: step '%s' depends on itself", ErrCyclicDependency, step.ID))
			}
		}
		for _, ref := range step.References() {
			if _, ok := g.index[ref]; !ok {
				errs = append(errs, fmt.Errorf("%w: step '%s' parameter references '%s'", ErrUnknownStepReference, step.ID, ref))
			}
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("graph '%s' is invalid: %w", b.name, errors.Join(errs...))
	}

	order, err := g.sort()
	if err != nil {
		return nil, fmt.Errorf("graph '%s' is invalid: %w", b.name, err)
	}
	g.order = order

	for _, step := range g.steps {
		ancestors := g.ancestors(step.ID)
		for _, ref := range step.References() {
			if _, ok := ancestors[ref]; !ok {
				errs = append(errs, fmt.Errorf("%w: step '%s' uses '%s'", ErrUndeclaredDependency, step.ID, ref))
			}
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("graph '%s' is invalid: %w", b.name, errors.Join(errs...))
	}

	return g, nil
}
