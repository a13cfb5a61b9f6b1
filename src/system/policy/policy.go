package policy

import (
	"fmt"
	"math/rand"

	"github.com/voodooEntity/sidgraph/src/system/archivist"
	"github.com/voodooEntity/sidgraph/src/system/rewrite"
)

// Policy selects the per-pass rule application order.
type Policy string

const (
	P1 Policy = "P1" // input order
	P2 Policy = "P2" // reversed order
	P3 Policy = "P3" // seeded pseudo-random permutation
	P4 Policy = "P4" // reserved, aliases P1
	P5 Policy = "P5" // reserved, aliases P1
)

const (
	TerminationFixedPoint = "fixed_point"
	TerminationHorizon    = "horizon"
)

// DefaultHorizonCap bounds a run when the request does not set one.
const DefaultHorizonCap = 1000

// Request is a policy run order.
type Request struct {
	Rules      []rewrite.Rule `json:"rules"`
	Policy     Policy         `json:"policy"`
	HorizonCap int            `json:"horizon_cap"`
	Seed       int64          `json:"seed"`
}

// MassMetrics is the caller-supplied field snapshot attached to the
// result.
type MassMetrics struct {
	IMass       float64 `json:"I_mass"`
	NMass       float64 `json:"N_mass"`
	UMass       float64 `json:"U_mass"`
	ActiveNodes int     `json:"active_nodes"`
	TotalMass   float64 `json:"total_mass"`
}

// Result reports a finished run. Termination "horizon" signals the cap
// was hit with matches possibly remaining; it is not a success marker.
type Result struct {
	Steps        int         `json:"steps"`
	RulesApplied int         `json:"rules_applied"`
	Termination  string      `json:"termination"`
	AppliedTrace []string    `json:"applied_trace"`
	Metrics      MassMetrics `json:"metrics"`
}

// ApplyFunc attempts one rule against the session's diagram and
// reports the rewrite outcome. The runner never touches the diagram
// itself; authorization and application live behind this closure.
type ApplyFunc func(rule rewrite.Rule) rewrite.Result

// Snapshot provides the mass metrics recorded on the result.
type Snapshot func() MassMetrics

// Runner drives rule passes until fixpoint or horizon.
type Runner struct {
	log  *archivist.Archivist
	tick func(pass int)
}

func NewRunner(log *archivist.Archivist) *Runner {
	if log == nil {
		log = archivist.New(&archivist.Config{})
	}
	return &Runner{log: log}
}

// OnPass registers a hook invoked after every completed pass.
func (r *Runner) OnPass(fn func(pass int)) {
	r.tick = fn
}

// Order computes the application order for one run. P3 is deterministic
// for a given seed.
func Order(ruleCount int, policy Policy, seed int64) ([]int, error) {
	order := make([]int, ruleCount)
	for i := range order {
		order[i] = i
	}
	switch policy {
	case P1, P4, P5, "":
		return order, nil
	case P2:
		for i, j := 0, ruleCount-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
		return order, nil
	case P3:
		rng := rand.New(rand.NewSource(seed))
		return rng.Perm(ruleCount), nil
	}
	return nil, fmt.Errorf("unknown policy %q", policy)
}

// Run executes passes over the rule set in policy order. Every applied
// rule increments the step counter and lands on the trace; a pass
// without any application terminates the run as a fixed point.
func (r *Runner) Run(req Request, apply ApplyFunc, snapshot Snapshot) (Result, error) {
	if apply == nil {
		return Result{}, fmt.Errorf("policy run requires an apply function")
	}
	order, err := Order(len(req.Rules), req.Policy, req.Seed)
	if err != nil {
		return Result{}, err
	}
	horizon := req.HorizonCap
	if horizon <= 0 {
		horizon = DefaultHorizonCap
	}

	res := Result{Termination: TerminationFixedPoint, AppliedTrace: []string{}}
	applied := map[string]bool{}

	for pass := 1; ; pass++ {
		appliedInPass := false
		for _, idx := range order {
			rule := req.Rules[idx]
			out := apply(rule)
			if !out.Applied {
				r.log.Debug(archivist.DEBUG_LEVEL_TRACE, "pass", pass, "rule", rule.ID, "skipped")
				continue
			}
			appliedInPass = true
			applied[rule.ID] = true
			res.Steps++
			res.AppliedTrace = append(res.AppliedTrace, rule.ID)
			r.log.Debug(archivist.DEBUG_LEVEL_INFO, "pass", pass, "rule", rule.ID, "applied")
			if res.Steps >= horizon {
				res.Termination = TerminationHorizon
				break
			}
		}
		if r.tick != nil {
			r.tick(pass)
		}
		if res.Termination == TerminationHorizon || !appliedInPass {
			break
		}
	}

	res.RulesApplied = len(applied)
	if snapshot != nil {
		res.Metrics = snapshot()
	}
	r.log.InfoF("policy %s finished: steps=%d termination=%s", req.Policy, res.Steps, res.Termination)
	return res, nil
}
