package graph

import "fmt"

type (
	// Artifact is an opaque reference to a deployable unit. The graph and the
	// executor only thread it through; a submitter decides what it means.
	Artifact struct {
		Ref string
	}

	// Param is a constructor parameter: either a literal value or the output
	// (deployed address) of another step.
	Param struct {
		Value any
		Ref   string
	}

	Step struct {
		ID           string
		Artifact     Artifact
		Dependencies []string
		Params       []Param
	}
)

func Literal(value any) Param {
	return Param{Value: value}
}

func Ref(stepID string) Param {
	return Param{Ref: stepID}
}

func (p Param) IsRef() bool {
	return p.Ref != ""
}

func (p Param) String() string {
	if p.IsRef() {
		return fmt.Sprintf("ref(%s)", p.Ref)
	}
	return fmt.Sprintf("%v", p.Value)
}

// References lists the step ids the parameters point at, in order.
func (s Step) References() []string {
	var refs []string
	for _, p := range s.Params {
		if p.IsRef() {
			refs = append(refs, p.Ref)
		}
	}
	return refs
}

func (s Step) clone() Step {
	return Step{
		ID:           s.ID,
		Artifact:     s.Artifact,
		Dependencies: append([]string(nil), s.Dependencies...),
		Params:       append([]Param(nil), s.Params...),
	}
}
