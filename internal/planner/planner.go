// Package planner maps a query intent and an adapter health snapshot to
// an execution plan. Planning is a pure function: fixed inputs always
// produce the same plan.
package planner

import (
	"fmt"

	"github.com/dstrand/trivium/internal/adapter"
	"github.com/dstrand/trivium/internal/intent"
)

// Step is one backend query in a plan. A step with DependsOn set runs
// only after that step succeeds, and its request is seeded with the
// entity names the prerequisite returned.
type Step struct {
	ID        string
	Family    adapter.Family
	Request   adapter.Request
	DependsOn string
}

// Plan is an ordered, acyclic set of steps. Steps only ever depend on
// earlier steps.
type Plan struct {
	Strategy string
	Steps    []Step
	Degraded bool
}

// Input bundles the per-query parameters a plan is built from.
type Input struct {
	Query      string
	MaxResults int
}

// Build derives the plan for an intent. A nil intent (classification
// failed) or zero confidence yields the conservative default: a hybrid
// fan-out to every available adapter. Unavailable adapters are excluded;
// when the preferred adapter is unavailable the fallback order
// vector, then analytical, then graph picks a substitute and the plan is
// marked degraded.
func Build(in Input, it *intent.Intent, health map[adapter.Family]adapter.HealthStatus) Plan {
	if in.MaxResults <= 0 {
		in.MaxResults = 10
	}

	if it == nil || it.Confidence == 0 {
		p := hybridPlan(in, nil, health)
		p.Strategy = "default_hybrid"
		return p
	}

	switch it.Strategy {
	case intent.Hybrid:
		return hybridPlan(in, it.Entities, health)
	case intent.MultiStep:
		return multiStepPlan(in, it, health)
	case intent.VectorFirst:
		return singlePlan(in, it, adapter.FamilyVector, health)
	case intent.AnalyticalFirst:
		return singlePlan(in, it, adapter.FamilyAnalytical, health)
	case intent.GraphFirst:
		return singlePlan(in, it, adapter.FamilyGraph, health)
	default:
		p := hybridPlan(in, it.Entities, health)
		p.Strategy = "default_hybrid"
		return p
	}
}

func available(health map[adapter.Family]adapter.HealthStatus, f adapter.Family) bool {
	return health[f] != adapter.Unavailable
}

// substitute returns the first available family in fallback order,
// preferring the requested one. ok is false when nothing is available.
func substitute(health map[adapter.Family]adapter.HealthStatus, preferred adapter.Family) (adapter.Family, bool) {
	if available(health, preferred) {
		return preferred, true
	}
	for _, f := range adapter.FallbackOrder {
		if f != preferred && available(health, f) {
			return f, false
		}
	}
	return "", false
}

func step(id string, f adapter.Family, in Input, entities []string) Step {
	return Step{
		ID:     id,
		Family: f,
		Request: adapter.Request{
			Text:     in.Query,
			Entities: entities,
			Limit:    in.MaxResults,
		},
	}
}

// hybridPlan fans out to every available adapter in fallback order, with
// no dependency edges. Exclusions mark the plan degraded.
func hybridPlan(in Input, entities []string, health map[adapter.Family]adapter.HealthStatus) Plan {
	p := Plan{Strategy: "hybrid"}
	for _, f := range adapter.FallbackOrder {
		if !available(health, f) {
			p.Degraded = true
			continue
		}
		p.Steps = append(p.Steps, step(string(f), f, in, entities))
	}
	return p
}

// singlePlan targets one family, substituting per fallback order when it
// is unavailable.
func singlePlan(in Input, it *intent.Intent, preferred adapter.Family, health map[adapter.Family]adapter.HealthStatus) Plan {
	p := Plan{Strategy: string(it.Strategy)}
	chosen, wasPreferred := substitute(health, preferred)
	if chosen == "" {
		p.Degraded = true
		return p
	}
	if !wasPreferred {
		p.Degraded = true
		p.Strategy = fmt.Sprintf("%s(substituted=%s)", it.Strategy, chosen)
	}
	p.Steps = append(p.Steps, step(string(chosen), chosen, in, it.Entities))
	return p
}

// multiStepPlan builds the two-phase plan: resolve entities through the
// graph, then query the analytical backend seeded with whatever entities
// phase one returned. When the graph is down there is nothing to seed
// phase two with, so the plan degrades to a hybrid fan-out.
func multiStepPlan(in Input, it *intent.Intent, health map[adapter.Family]adapter.HealthStatus) Plan {
	if !available(health, adapter.FamilyGraph) {
		p := hybridPlan(in, it.Entities, health)
		p.Strategy = "multi_step(degraded=hybrid)"
		p.Degraded = true
		return p
	}

	p := Plan{Strategy: "multi_step"}
	resolve := step("resolve", adapter.FamilyGraph, in, it.Entities)
	p.Steps = append(p.Steps, resolve)

	second, wasPreferred := substitute(health, adapter.FamilyAnalytical)
	if second == "" || second == adapter.FamilyGraph {
		// Nothing distinct to pivot into.
		p.Degraded = true
		return p
	}
	if !wasPreferred {
		p.Degraded = true
	}
	followup := step("followup", second, in, it.Entities)
	followup.DependsOn = resolve.ID
	p.Steps = append(p.Steps, followup)
	return p
}
