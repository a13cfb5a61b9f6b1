package crf

import (
	"fmt"

	"github.com/voodooEntity/sidgraph/src/system/ast"
	"github.com/voodooEntity/sidgraph/src/system/diagram"
	"github.com/voodooEntity/sidgraph/src/system/rewrite"
)

// Dof declares a degree of freedom a package may reference.
type Dof struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Compartment declares a region transport nodes may target.
type Compartment struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Package bundles everything one engine session operates on.
type Package struct {
	Dofs         []Dof
	Compartments []Compartment
	CSIs         []CSI
	Diagrams     []*diagram.Diagram
	States       []*State
	Constraints  []Constraint
	Rules        []rewrite.Rule
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationError is one categorized finding of ValidatePackage.
type ValidationError struct {
	Category string
	Severity string
	Message  string
}

func (e ValidationError) Error() string {
	return e.Category + "/" + e.Severity + ": " + e.Message
}

// ValidatePackage cross-checks a package: id uniqueness, reference
// integrity, diagram structure and acyclicity, collapse
// irreversibility, transport targets and rule well-formedness. It
// returns every finding rather than stopping at the first.
func ValidatePackage(p *Package) []ValidationError {
	var errs []ValidationError
	report := func(category string, severity string, format string, args ...interface{}) {
		errs = append(errs, ValidationError{
			Category: category,
			Severity: severity,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	dofIDs := map[string]bool{}
	for _, d := range p.Dofs {
		if d.ID == "" {
			report("identity", SeverityError, "dof with empty id")
			continue
		}
		if dofIDs[d.ID] {
			report("identity", SeverityError, "duplicate dof id %s", d.ID)
		}
		dofIDs[d.ID] = true
	}

	compIDs := map[string]bool{}
	for _, c := range p.Compartments {
		if compIDs[c.ID] {
			report("identity", SeverityError, "duplicate compartment id %s", c.ID)
		}
		compIDs[c.ID] = true
	}

	csiIDs := map[string]bool{}
	for _, c := range p.CSIs {
		if csiIDs[c.ID] {
			report("identity", SeverityError, "duplicate csi id %s", c.ID)
		}
		csiIDs[c.ID] = true
		for _, dof := range c.AllowedDofs {
			if len(dofIDs) > 0 && !dofIDs[dof] {
				report("reference", SeverityError, "csi %s allows undeclared dof %s", c.ID, dof)
			}
		}
		for _, pair := range c.AllowedPairs {
			for _, dof := range pair {
				if len(dofIDs) > 0 && !dofIDs[dof] {
					report("reference", SeverityError, "csi %s pair references undeclared dof %s", c.ID, dof)
				}
			}
		}
	}

	diagramIDs := map[string]bool{}
	for _, d := range p.Diagrams {
		if diagramIDs[d.ID] {
			report("identity", SeverityError, "duplicate diagram id %s", d.ID)
		}
		diagramIDs[d.ID] = true

		if err := d.Validate(); err != nil {
			report("structure", SeverityError, "diagram %s: %v", d.ID, err)
		}
		if d.HasCycle() {
			report("structure", SeverityError, "diagram %s contains a cycle", d.ID)
		}
		if d.Compartment != "" && len(compIDs) > 0 && !compIDs[d.Compartment] {
			report("reference", SeverityError, "diagram %s placed in undeclared compartment %s", d.ID, d.Compartment)
		}

		for _, n := range d.Nodes {
			if n.Op == ast.OpCollapse && !n.Irreversible {
				report("semantics", SeverityError, "diagram %s: collapse node %s not irreversible", d.ID, n.ID)
			}
			if n.Op == ast.OpTransport {
				target := n.Meta["target_compartment"]
				if target == "" {
					report("semantics", SeverityWarning, "diagram %s: transport node %s has no target compartment", d.ID, n.ID)
				} else if len(compIDs) > 0 && !compIDs[target] {
					report("reference", SeverityError, "diagram %s: transport node %s targets undeclared compartment %s", d.ID, n.ID, target)
				}
			}
			for _, dof := range n.DofRefs {
				if len(dofIDs) > 0 && !dofIDs[dof] {
					report("reference", SeverityWarning, "diagram %s: node %s references undeclared dof %s", d.ID, n.ID, dof)
				}
			}
		}
	}

	stateIDs := map[string]bool{}
	for _, s := range p.States {
		if stateIDs[s.ID] {
			report("identity", SeverityError, "duplicate state id %s", s.ID)
		}
		stateIDs[s.ID] = true
		if s.DiagramID != "" && !diagramIDs[s.DiagramID] {
			report("reference", SeverityError, "state %s references missing diagram %s", s.ID, s.DiagramID)
		}
		if s.CSIID != "" && !csiIDs[s.CSIID] {
			report("reference", SeverityError, "state %s references missing csi %s", s.ID, s.CSIID)
		}
	}

	constraintIDs := map[string]bool{}
	for _, c := range p.Constraints {
		if constraintIDs[c.ID] {
			report("identity", SeverityError, "duplicate constraint id %s", c.ID)
		}
		constraintIDs[c.ID] = true
		if c.Type != ConstraintHard && c.Type != ConstraintSoft {
			report("semantics", SeverityError, "constraint %s has unknown type %q", c.ID, c.Type)
		}
		if c.Predicate == "" {
			report("semantics", SeverityError, "constraint %s names no predicate", c.ID)
		}
	}

	ruleIDs := map[string]bool{}
	for _, r := range p.Rules {
		if r.ID == "" {
			report("rule", SeverityError, "rule with empty id")
			continue
		}
		if ruleIDs[r.ID] {
			report("identity", SeverityError, "duplicate rule id %s", r.ID)
		}
		ruleIDs[r.ID] = true
		if _, err := ast.Parse(r.Pattern); err != nil {
			report("rule", SeverityError, "rule %s pattern: %v", r.ID, err)
		}
		if _, err := ast.Parse(r.Replacement); err != nil {
			report("rule", SeverityError, "rule %s replacement: %v", r.ID, err)
		}
	}

	return errs
}
