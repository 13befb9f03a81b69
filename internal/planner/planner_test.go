package planner

import (
	"reflect"
	"testing"

	"github.com/dstrand/trivium/internal/adapter"
	"github.com/dstrand/trivium/internal/intent"
)

func allHealthy() map[adapter.Family]adapter.HealthStatus {
	return map[adapter.Family]adapter.HealthStatus{
		adapter.FamilyVector:     adapter.Healthy,
		adapter.FamilyAnalytical: adapter.Healthy,
		adapter.FamilyGraph:      adapter.Healthy,
	}
}

func input() Input {
	return Input{Query: "how does deployment work", MaxResults: 5}
}

func TestBuildHybridFansOut(t *testing.T) {
	it := &intent.Intent{Strategy: intent.Hybrid, Confidence: 0.7, Entities: []string{}}
	p := Build(input(), it, allHealthy())

	if len(p.Steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(p.Steps))
	}
	for _, s := range p.Steps {
		if s.DependsOn != "" {
			t.Errorf("hybrid step %s has a dependency edge", s.ID)
		}
	}
	if p.Degraded {
		t.Error("all-healthy hybrid plan should not be degraded")
	}
}

func TestBuildSingleBackend(t *testing.T) {
	tests := []struct {
		strategy intent.Strategy
		want     adapter.Family
	}{
		{intent.VectorFirst, adapter.FamilyVector},
		{intent.AnalyticalFirst, adapter.FamilyAnalytical},
		{intent.GraphFirst, adapter.FamilyGraph},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			it := &intent.Intent{Strategy: tt.strategy, Confidence: 0.9}
			p := Build(input(), it, allHealthy())
			if len(p.Steps) != 1 || p.Steps[0].Family != tt.want {
				t.Errorf("steps = %+v, want single %s step", p.Steps, tt.want)
			}
			if p.Degraded {
				t.Error("healthy single-backend plan should not be degraded")
			}
		})
	}
}

func TestBuildSubstitutesUnavailableBackend(t *testing.T) {
	health := allHealthy()
	health[adapter.FamilyAnalytical] = adapter.Unavailable

	it := &intent.Intent{Strategy: intent.AnalyticalFirst, Confidence: 0.9}
	p := Build(input(), it, health)

	if len(p.Steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(p.Steps))
	}
	if p.Steps[0].Family != adapter.FamilyVector {
		t.Errorf("substituted family = %s, want vector (first in fallback order)", p.Steps[0].Family)
	}
	if !p.Degraded {
		t.Error("substituted plan must be marked degraded")
	}
}

func TestBuildMultiStep(t *testing.T) {
	it := &intent.Intent{
		Strategy:          intent.MultiStep,
		RequiresMultiStep: true,
		Confidence:        0.85,
		Entities:          []string{"Sarah Chen"},
	}
	p := Build(input(), it, allHealthy())

	if len(p.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(p.Steps))
	}
	resolve, followup := p.Steps[0], p.Steps[1]
	if resolve.Family != adapter.FamilyGraph || resolve.DependsOn != "" {
		t.Errorf("phase 1 = %+v, want independent graph step", resolve)
	}
	if followup.Family != adapter.FamilyAnalytical || followup.DependsOn != resolve.ID {
		t.Errorf("phase 2 = %+v, want analytical step depending on %q", followup, resolve.ID)
	}
}

func TestBuildMultiStepWithoutGraphDegradesToHybrid(t *testing.T) {
	health := allHealthy()
	health[adapter.FamilyGraph] = adapter.Unavailable

	it := &intent.Intent{Strategy: intent.MultiStep, RequiresMultiStep: true, Confidence: 0.9}
	p := Build(input(), it, health)

	if !p.Degraded {
		t.Error("plan must be degraded")
	}
	for _, s := range p.Steps {
		if s.Family == adapter.FamilyGraph {
			t.Error("unavailable graph adapter must not appear in the plan")
		}
		if s.DependsOn != "" {
			t.Error("degraded fan-out should have no dependency edges")
		}
	}
	if len(p.Steps) != 2 {
		t.Errorf("got %d steps, want vector + analytical", len(p.Steps))
	}
}

func TestBuildZeroConfidenceDefaultsToHybrid(t *testing.T) {
	it := &intent.Intent{Strategy: intent.GraphFirst, Confidence: 0}
	p := Build(input(), it, allHealthy())

	if p.Strategy != "default_hybrid" {
		t.Errorf("strategy = %q, want default_hybrid", p.Strategy)
	}
	if len(p.Steps) != 3 {
		t.Errorf("got %d steps, want fan-out to all three", len(p.Steps))
	}
}

func TestBuildNilIntentDefaultsToHybrid(t *testing.T) {
	p := Build(input(), nil, allHealthy())
	if p.Strategy != "default_hybrid" || len(p.Steps) != 3 {
		t.Errorf("plan = %+v, want default hybrid fan-out", p)
	}
}

func TestBuildDeterministic(t *testing.T) {
	it := &intent.Intent{Strategy: intent.Hybrid, Confidence: 0.6, Entities: []string{"Atlas"}}
	health := allHealthy()
	health[adapter.FamilyGraph] = adapter.Degraded

	first := Build(input(), it, health)
	for range 50 {
		if got := Build(input(), it, health); !reflect.DeepEqual(got, first) {
			t.Fatalf("plan varies across runs:\n%+v\nvs\n%+v", got, first)
		}
	}
}

func TestBuildAcyclic(t *testing.T) {
	it := &intent.Intent{Strategy: intent.MultiStep, RequiresMultiStep: true, Confidence: 0.9}
	p := Build(input(), it, allHealthy())

	seen := map[string]bool{}
	for _, s := range p.Steps {
		if s.DependsOn != "" && !seen[s.DependsOn] {
			t.Errorf("step %s depends on %s which is not an earlier step", s.ID, s.DependsOn)
		}
		seen[s.ID] = true
	}
}

func TestBuildNothingAvailable(t *testing.T) {
	health := map[adapter.Family]adapter.HealthStatus{
		adapter.FamilyVector:     adapter.Unavailable,
		adapter.FamilyAnalytical: adapter.Unavailable,
		adapter.FamilyGraph:      adapter.Unavailable,
	}
	it := &intent.Intent{Strategy: intent.VectorFirst, Confidence: 0.9}
	p := Build(input(), it, health)

	if len(p.Steps) != 0 || !p.Degraded {
		t.Errorf("plan = %+v, want empty degraded plan", p)
	}
}
