package diagram

import (
	"encoding/json"
	"fmt"

	"github.com/voodooEntity/sidgraph/src/system/ast"
)

type nodeJSON struct {
	ID           string            `json:"id"`
	Op           string            `json:"op"`
	DofRefs      []string          `json:"dof_refs,omitempty"`
	Inputs       []string          `json:"inputs,omitempty"`
	Irreversible bool              `json:"irreversible,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
}

type edgeJSON struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Label  string `json:"label"`
	Port   int    `json:"port"`
	ToPort int    `json:"to_port,omitempty"`
}

type diagramJSON struct {
	ID          string     `json:"id"`
	Compartment string     `json:"compartment,omitempty"`
	Nodes       []nodeJSON `json:"nodes"`
	Edges       []edgeJSON `json:"edges"`
}

// FromJSON decodes a diagram. Nodes carrying an empty id are skipped
// silently; edges referencing them surface later through Validate.
// Unknown operator symbols are a hard error.
func FromJSON(data []byte) (*Diagram, error) {
	var raw diagramJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("diagram json: %w", err)
	}

	d := New(raw.ID)
	d.Compartment = raw.Compartment
	for _, rn := range raw.Nodes {
		if rn.ID == "" {
			continue
		}
		op, ok := ast.ParseTag(rn.Op)
		if !ok {
			return nil, fmt.Errorf("diagram json: node %s has unknown op %q", rn.ID, rn.Op)
		}
		d.AddNode(Node{
			ID:           rn.ID,
			Op:           op,
			DofRefs:      rn.DofRefs,
			Inputs:       rn.Inputs,
			Irreversible: rn.Irreversible,
			Meta:         rn.Meta,
		})
	}
	for _, re := range raw.Edges {
		d.AddEdge(Edge{
			ID:     re.ID,
			From:   re.From,
			To:     re.To,
			Label:  re.Label,
			Port:   re.Port,
			ToPort: re.ToPort,
		})
	}
	return d, nil
}

// ToJSON encodes the diagram. Together with FromJSON this round trips
// every field including labels, ports and dof_refs.
func (d *Diagram) ToJSON() ([]byte, error) {
	raw := diagramJSON{
		ID:          d.ID,
		Compartment: d.Compartment,
		Nodes:       make([]nodeJSON, 0, len(d.Nodes)),
		Edges:       make([]edgeJSON, 0, len(d.Edges)),
	}
	for _, n := range d.Nodes {
		raw.Nodes = append(raw.Nodes, nodeJSON{
			ID:           n.ID,
			Op:           n.Op.String(),
			DofRefs:      n.DofRefs,
			Inputs:       n.Inputs,
			Irreversible: n.Irreversible,
			Meta:         n.Meta,
		})
	}
	for _, e := range d.Edges {
		raw.Edges = append(raw.Edges, edgeJSON{
			ID:     e.ID,
			From:   e.From,
			To:     e.To,
			Label:  e.Label,
			Port:   e.Port,
			ToPort: e.ToPort,
		})
	}
	return json.MarshalIndent(raw, "", "  ")
}
