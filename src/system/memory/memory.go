package memory

import (
	"sort"
	"strconv"

	"github.com/voodooEntity/gits"
	"github.com/voodooEntity/gits/src/query"
	"github.com/voodooEntity/gits/src/storage"
	"github.com/voodooEntity/gits/src/transport"

	"github.com/voodooEntity/sidgraph/src/system/archivist"
	"github.com/voodooEntity/sidgraph/src/system/diagram"
	"github.com/voodooEntity/sidgraph/src/system/policy"
)

// Memory records sessions, policy runs and diagram snapshots into a
// gits instance so they stay queryable after a run finished.
type Memory struct {
	Gits *gits.Gits
	log  *archivist.Archivist
}

func New(ident string, logger *archivist.Archivist) *Memory {
	if logger == nil {
		logger = archivist.New(&archivist.Config{})
	}
	inst := gits.NewInstance(ident)
	gits.SetDefault(ident)
	return &Memory{Gits: inst, log: logger}
}

// RecordRun maps one policy run with its applied trace as child
// entities.
func (m *Memory) RecordRun(sessionIdent string, runID string, req policy.Request, res policy.Result) {
	runEntity := transport.TransportEntity{
		ID:      storage.MAP_FORCE_CREATE,
		Type:    "Run",
		Value:   runID,
		Context: sessionIdent,
		Properties: map[string]string{
			"Policy":       string(req.Policy),
			"Termination":  res.Termination,
			"Steps":        strconv.Itoa(res.Steps),
			"RulesApplied": strconv.Itoa(res.RulesApplied),
			"IMass":        formatFloat(res.Metrics.IMass),
			"NMass":        formatFloat(res.Metrics.NMass),
			"UMass":        formatFloat(res.Metrics.UMass),
			"TotalMass":    formatFloat(res.Metrics.TotalMass),
			"ActiveNodes":  strconv.Itoa(res.Metrics.ActiveNodes),
		},
	}
	for i, ruleID := range res.AppliedTrace {
		runEntity.ChildRelations = append(runEntity.ChildRelations, transport.TransportRelation{
			Target: transport.TransportEntity{
				ID:      storage.MAP_FORCE_CREATE,
				Type:    "AppliedRule",
				Value:   ruleID,
				Context: sessionIdent,
				Properties: map[string]string{
					"Sequence": strconv.Itoa(i),
				},
			},
		})
	}
	m.Gits.MapData(runEntity)
	m.log.Debug(archivist.DEBUG_LEVEL_INFO, "recorded run", runID, "session", sessionIdent)
}

// RecordDiagram maps a structural snapshot of the diagram: one child
// entity per node and per edge.
func (m *Memory) RecordDiagram(sessionIdent string, d *diagram.Diagram) {
	snapshot := transport.TransportEntity{
		ID:         storage.MAP_FORCE_CREATE,
		Type:       "Diagram",
		Value:      d.ID,
		Context:    sessionIdent,
		Properties: map[string]string{},
	}
	for _, n := range d.Nodes {
		props := map[string]string{
			"Op": n.Op.String(),
		}
		if n.Irreversible {
			props["Irreversible"] = "true"
		}
		if len(n.DofRefs) > 0 {
			props["DofRefs"] = joinRefs(n.DofRefs)
		}
		snapshot.ChildRelations = append(snapshot.ChildRelations, transport.TransportRelation{
			Target: transport.TransportEntity{
				ID:         storage.MAP_FORCE_CREATE,
				Type:       "DiagramNode",
				Value:      n.ID,
				Context:    sessionIdent,
				Properties: props,
			},
		})
	}
	for _, e := range d.Edges {
		snapshot.ChildRelations = append(snapshot.ChildRelations, transport.TransportRelation{
			Target: transport.TransportEntity{
				ID:      storage.MAP_FORCE_CREATE,
				Type:    "DiagramEdge",
				Value:   e.ID,
				Context: sessionIdent,
				Properties: map[string]string{
					"From":  e.From,
					"To":    e.To,
					"Label": e.Label,
					"Port":  strconv.Itoa(e.Port),
				},
			},
		})
	}
	m.Gits.MapData(snapshot)
	m.log.Debug(archivist.DEBUG_LEVEL_INFO, "recorded diagram snapshot", d.ID)
}

// Runs returns every recorded run of the session.
func (m *Memory) Runs(sessionIdent string) []transport.TransportEntity {
	qry := query.New().Read("Run")
	result := m.Gits.Query().Execute(qry)

	var runs []transport.TransportEntity
	for _, entity := range result.Entities {
		if entity.Context == sessionIdent {
			runs = append(runs, entity)
		}
	}
	return runs
}

// Trace returns the applied rule entities of a run in recorded order.
func (m *Memory) Trace(runID string) []transport.TransportEntity {
	qry := query.New().Read("Run").Match("Value", "==", runID).To(
		query.New().Read("AppliedRule"),
	)
	result := m.Gits.Query().Execute(qry)
	if len(result.Entities) == 0 {
		return nil
	}
	children := result.Entities[0].Children()
	sort.Slice(children, func(i, j int) bool {
		a, _ := strconv.Atoi(children[i].Properties["Sequence"])
		b, _ := strconv.Atoi(children[j].Properties["Sequence"])
		return a < b
	})
	return children
}

// FindRun fetches a single run by its id.
func (m *Memory) FindRun(runID string) (transport.TransportEntity, bool) {
	qry := query.New().Read("Run").Match("Value", "==", runID)
	result := m.Gits.Query().Execute(qry)
	if len(result.Entities) == 0 {
		return transport.TransportEntity{}, false
	}
	return result.Entities[0], true
}

// DiagramSnapshots returns the recorded diagram snapshots of the
// session.
func (m *Memory) DiagramSnapshots(sessionIdent string) []transport.TransportEntity {
	qry := query.New().Read("Diagram")
	result := m.Gits.Query().Execute(qry)

	var snapshots []transport.TransportEntity
	for _, entity := range result.Entities {
		if entity.Context == sessionIdent {
			snapshots = append(snapshots, entity)
		}
	}
	return snapshots
}

// SnapshotNodes returns the node entities of a recorded diagram
// snapshot.
func (m *Memory) SnapshotNodes(diagramID string) []transport.TransportEntity {
	qry := query.New().Read("Diagram").Match("Value", "==", diagramID).To(
		query.New().Read("DiagramNode"),
	)
	result := m.Gits.Query().Execute(qry)
	if len(result.Entities) == 0 {
		return nil
	}
	return result.Entities[0].Children()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func joinRefs(refs []string) string {
	out := ""
	for i, r := range refs {
		if i > 0 {
			out += ","
		}
		out += r
	}
	return out
}
