package crf

import (
	"github.com/voodooEntity/sidgraph/src/system/diagram"
)

// Conflict describes one soft-constraint violation handed to the
// resolution strategies.
type Conflict struct {
	Type         string
	ConstraintID string
	Elements     []string
	Choices      []string
	Reason       string
}

// Resolution is the outcome of a strategy. Strategies are pure: the
// incoming state is never mutated, NewState carries the adjusted copy.
type Resolution struct {
	Action   string
	Success  bool
	NewState *State
	Message  string
}

// Attenuate records the violated constraint and lets the operation
// proceed at reduced strength.
func Attenuate(conflict Conflict, state *State, d *diagram.Diagram) Resolution {
	next := state.Clone()
	next.AttenuatedConstraints = append(next.AttenuatedConstraints, conflict.ConstraintID)
	return Resolution{
		Action:   "attenuate",
		Success:  true,
		NewState: next,
		Message:  "constraint " + conflict.ConstraintID + " attenuated",
	}
}

// Defer parks the conflict for a later pass.
func Defer(conflict Conflict, state *State, d *diagram.Diagram) Resolution {
	next := state.Clone()
	next.DeferredConflicts = append(next.DeferredConflicts, conflict)
	return Resolution{
		Action:   "defer",
		Success:  true,
		NewState: next,
		Message:  "conflict on " + conflict.ConstraintID + " deferred",
	}
}

// Partition isolates the interfering elements from each other.
func Partition(conflict Conflict, state *State, d *diagram.Diagram) Resolution {
	next := state.Clone()
	next.PartitionedElements = append(next.PartitionedElements, conflict.Elements...)
	return Resolution{
		Action:   "partition",
		Success:  true,
		NewState: next,
		Message:  "interfering elements partitioned",
	}
}

// Escalate records the conflict for an out-of-band decision.
func Escalate(conflict Conflict, state *State, d *diagram.Diagram) Resolution {
	next := state.Clone()
	next.EscalatedConflicts = append(next.EscalatedConflicts, conflict)
	return Resolution{
		Action:   "escalate",
		Success:  true,
		NewState: next,
		Message:  "conflict escalated for review",
	}
}

// Bifurcate commits to the first offered choice and marks the state as
// branched. Without choices there is nothing to branch on.
func Bifurcate(conflict Conflict, state *State, d *diagram.Diagram) Resolution {
	if len(conflict.Choices) == 0 {
		return Resolution{
			Action:   "bifurcate",
			Success:  false,
			NewState: state.Clone(),
			Message:  "bifurcation requested without choices",
		}
	}
	next := state.Clone()
	next.BifurcationChoices = append(next.BifurcationChoices, conflict.Choices[0])
	next.Bifurcated = true
	return Resolution{
		Action:   "bifurcate",
		Success:  true,
		NewState: next,
		Message:  "bifurcated on choice " + conflict.Choices[0],
	}
}

// Halt stops processing. Always reported as a failed resolution.
func Halt(conflict Conflict, state *State, d *diagram.Diagram) Resolution {
	next := state.Clone()
	next.Halted = true
	return Resolution{
		Action:   "halt",
		Success:  false,
		NewState: next,
		Message:  "processing halted on " + conflict.ConstraintID,
	}
}

// ResolveConflict dispatches a conflict to its strategy by type. An
// unknown type halts.
func ResolveConflict(conflictType string, conflict Conflict, state *State, d *diagram.Diagram) Resolution {
	switch conflictType {
	case "soft_violation":
		return Attenuate(conflict, state, d)
	case "temporal_mismatch":
		return Defer(conflict, state, d)
	case "dof_interference":
		return Partition(conflict, state, d)
	case "scope_overflow":
		return Escalate(conflict, state, d)
	case "ambiguous_choice":
		return Bifurcate(conflict, state, d)
	case "hard_violation":
		return Halt(conflict, state, d)
	}
	return Halt(conflict, state, d)
}
