package crf

// Label is an admissibility role: Informed (admissible), Neutral
// (excluded) or Unresolved (not yet decidable).
type Label string

const (
	LabelI Label = "I"
	LabelN Label = "N"
	LabelU Label = "U"
)

// CSI names the admissible region: the degrees of freedom elements may
// reference and the endpoint pairs edges may connect.
type CSI struct {
	ID           string      `json:"id"`
	AllowedDofs  []string    `json:"allowed_dofs"`
	AllowedPairs [][2]string `json:"allowed_pairs,omitempty"`
}

func (c CSI) allowsDof(dof string) bool {
	for _, d := range c.AllowedDofs {
		if d == dof {
			return true
		}
	}
	return false
}

func (c CSI) allowsPair(from string, to string) bool {
	for _, p := range c.AllowedPairs {
		if p[0] == from && p[1] == to {
			return true
		}
	}
	return false
}

// Constraint is either hard (its predicate must hold for a rewrite to
// be authorized) or soft (a failure becomes a conflict handed to the
// resolution strategies). OnViolation names the conflict type used for
// soft failures; empty means soft_violation.
type Constraint struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Scope       string `json:"scope,omitempty"`
	Predicate   string `json:"predicate"`
	OnViolation string `json:"on_violation,omitempty"`
}

const (
	ConstraintHard = "hard"
	ConstraintSoft = "soft"
)

// State carries the labeling and conflict-resolution bookkeeping of one
// engine session.
type State struct {
	ID            string
	DiagramID     string
	CSIID         string
	CompartmentID string

	INULabels   map[string]Label
	LoopHistory []map[string]Label

	AttenuatedConstraints []string
	DeferredConflicts     []Conflict
	PartitionedElements   []string
	EscalatedConflicts    []Conflict
	BifurcationChoices    []string
	Bifurcated            bool
	Halted                bool
}

func NewState(id string, diagramID string, csiID string) *State {
	return &State{
		ID:        id,
		DiagramID: diagramID,
		CSIID:     csiID,
		INULabels: map[string]Label{},
	}
}

func (s *State) Clone() *State {
	out := *s
	out.INULabels = make(map[string]Label, len(s.INULabels))
	for k, v := range s.INULabels {
		out.INULabels[k] = v
	}
	out.LoopHistory = make([]map[string]Label, len(s.LoopHistory))
	for i, entry := range s.LoopHistory {
		cp := make(map[string]Label, len(entry))
		for k, v := range entry {
			cp[k] = v
		}
		out.LoopHistory[i] = cp
	}
	out.AttenuatedConstraints = append([]string(nil), s.AttenuatedConstraints...)
	out.DeferredConflicts = append([]Conflict(nil), s.DeferredConflicts...)
	out.PartitionedElements = append([]string(nil), s.PartitionedElements...)
	out.EscalatedConflicts = append([]Conflict(nil), s.EscalatedConflicts...)
	out.BifurcationChoices = append([]string(nil), s.BifurcationChoices...)
	return &out
}

// PushHistory appends a copy of the label map to the loop history.
func (s *State) PushHistory(labels map[string]Label) {
	cp := make(map[string]Label, len(labels))
	for k, v := range labels {
		cp[k] = v
	}
	s.LoopHistory = append(s.LoopHistory, cp)
}
