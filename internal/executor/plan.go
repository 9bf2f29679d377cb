package executor

import (
	"context"
	"fmt"

	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/graph"
)

type Action string

const (
	ActionDeploy Action = "deploy"
	ActionReuse  Action = "reuse"
	// ActionResume means a submission from an interrupted run is checked on the network first.
	ActionResume Action = "resume"
)

type PlannedStep struct {
	StepID       string
	Artifact     string
	Dependencies []string
	Action       Action
	Record       *domain.Record
	Pending      *domain.Submission
}

// Plan previews what Execute would do without taking the run lock or
// touching the network.
func (e *Executor) Plan(ctx context.Context, g *graph.Graph, networkName string) ([]PlannedStep, error) {
	profile, err := e.resolver.Resolve(networkName)
	if err != nil {
		return nil, err
	}

	order := g.TopologicalOrder()
	planned := make([]PlannedStep, 0, len(order))
	for _, id := range order {
		step, _ := g.Step(id)
		key := domain.Key{Network: profile.Name, Graph: g.Name(), StepID: id}

		entry := PlannedStep{
			StepID:       id,
			Artifact:     step.Artifact.Ref,
			Dependencies: step.Dependencies,
			Action:       ActionDeploy,
		}

		record, found, err := e.journal.Lookup(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to look up step '%s' in journal: %w", id, err)
		}
		if found {
			entry.Action = ActionReuse
			entry.Record = &record
			planned = append(planned, entry)
			continue
		}

		pending, hasPending, err := e.journal.Pending(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read pending submission of step '%s': %w", id, err)
		}
		if hasPending {
			entry.Action = ActionResume
			entry.Pending = &pending
		}
		planned = append(planned, entry)
	}

	return planned, nil
}
