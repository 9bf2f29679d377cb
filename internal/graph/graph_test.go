package graph

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/compose-network/deployctl/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestTopologicalOrderIsStable(t *testing.T) {
	b := NewBuilder("SecuraModule")
	b.Contract("token", "Token")
	b.Contract("vault", "Vault", Ref("token")).After("token")
	b.Contract("oracle", "Oracle")
	b.Contract("router", "Router", Ref("vault"), Ref("oracle")).After("vault", "oracle")
	b.Contract("registry", "Registry")

	g, err := b.Build()
	require.NoError(t, err)

	require.Equal(t, []string{"token", "vault", "oracle", "router", "registry"}, g.TopologicalOrder())

	again, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, g.TopologicalOrder(), again.TopologicalOrder())
}

func TestTopologicalOrderRespectsEdges(t *testing.T) {
	// Declared out of dependency order on purpose.
	b := NewBuilder("reversed")
	b.Contract("d", "D").After("c", "b")
	b.Contract("c", "C").After("a")
	b.Contract("b", "B").After("a")
	b.Contract("a", "A")
	b.Contract("e", "E")

	g, err := b.Build()
	require.NoError(t, err)

	order := g.TopologicalOrder()
	require.Len(t, order, g.Len())
	require.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, order)

	for _, step := range g.Steps() {
		for _, dep := range step.Dependencies {
			require.Less(t, slices.Index(order, dep), slices.Index(order, step.ID), "%s must precede %s", dep, step.ID)
		}
	}
	require.Equal(t, []string{"a", "c", "b", "d", "e"}, order)
}

func TestBuildRejectsInvalidGraphs(t *testing.T) {
	tests := []struct {
		name    string
		build   func(*Builder)
		wantErr error
	}{
		{
			name: "two step cycle",
			build: func(b *Builder) {
				b.Contract("a", "A").After("b")
				b.Contract("b", "B").After("a")
			},
			wantErr: ErrCyclicDependency,
		},
		{
			name: "self dependency",
			build: func(b *Builder) {
				b.Contract("a", "A").After("a")
			},
			wantErr: ErrCyclicDependency,
		},
		{
			name: "unknown dependency",
			build: func(b *Builder) {
				b.Contract("a", "A").After("missing")
			},
			wantErr: ErrUnknownStepReference,
		},
		{
			name: "unknown parameter reference",
			build: func(b *Builder) {
				b.Contract("a", "A", Ref("ghost"))
			},
			wantErr: ErrUnknownStepReference,
		},
		{
			name: "parameter references a non dependency",
			build: func(b *Builder) {
				b.Contract("a", "A")
				b.Contract("b", "B", Ref("a"))
			},
			wantErr: ErrUndeclaredDependency,
		},
		{
			name: "duplicate step",
			build: func(b *Builder) {
				b.Contract("a", "A")
				b.Contract("a", "A2")
			},
			wantErr: ErrDuplicateStep,
		},
		{
			name: "missing artifact",
			build: func(b *Builder) {
				b.Contract("a", "")
			},
			wantErr: ErrInvalidStep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder("broken")
			tt.build(b)

			g, err := b.Build()
			require.Nil(t, g)
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, domain.ErrStructural)
		})
	}
}

func TestTransitiveReferenceIsAllowed(t *testing.T) {
	b := NewBuilder("chain")
	b.Contract("a", "A")
	b.Contract("b", "B").After("a")
	b.Contract("c", "C", Ref("a")).After("b")

	g, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, g.Dependents("a"))
	require.Empty(t, g.Dependents("c"))
}

func TestGraphIsImmutable(t *testing.T) {
	b := NewBuilder("immutable")
	b.Contract("a", "A", Literal("x"))
	g, err := b.Build()
	require.NoError(t, err)

	steps := g.Steps()
	steps[0].Params[0] = Literal("mutated")

	step, ok := g.Step("a")
	require.True(t, ok)
	require.Equal(t, "x", step.Params[0].Value)

	order := g.TopologicalOrder()
	order[0] = "mutated"
	require.Equal(t, []string{"a"}, g.TopologicalOrder())
}

func TestParseModule(t *testing.T) {
	const module = `
name: SecuraModule
steps:
  - id: secura
    artifact: Secura
  - id: vault
    artifact: Vault
    after: [secura]
    args:
      - ref: secura
      - value: 1000
      - value: "label"
`
	g, err := Parse([]byte(module))
	require.NoError(t, err)
	require.Equal(t, "SecuraModule", g.Name())
	require.Equal(t, []string{"secura", "vault"}, g.TopologicalOrder())

	vault, ok := g.Step("vault")
	require.True(t, ok)
	require.Equal(t, Artifact{Ref: "Vault"}, vault.Artifact)
	require.Equal(t, []Param{Ref("secura"), Literal(1000), Literal("label")}, vault.Params)
}

func TestParseModuleErrors(t *testing.T) {
	_, err := Parse([]byte("name: m\nsteps:\n  - id: a\n    artifact: A\n    args:\n      - value: 1\n        ref: b\n"))
	require.ErrorIs(t, err, ErrInvalidModule)

	_, err = Parse([]byte("name: m\nsteps:\n  - id: a\n    artifact: A\n    after: [a2]\n  - id: a2\n    artifact: A\n    after: [a]\n"))
	require.ErrorIs(t, err, ErrCyclicDependency)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "module.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: m\nsteps:\n  - id: a\n    artifact: A\n"), 0o644))

	g, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, g.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
