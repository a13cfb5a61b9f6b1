package memory

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/voodooEntity/sidgraph/src/system/ast"
	"github.com/voodooEntity/sidgraph/src/system/diagram"
	"github.com/voodooEntity/sidgraph/src/system/policy"
)

const identCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randomIdent(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = identCharset[rand.Intn(len(identCharset))]
	}
	return string(b)
}

func testMemory(t *testing.T) (*Memory, string) {
	t.Helper()
	ident := randomIdent(10)
	return New(ident, nil), ident
}

func TestRecordRunAndQuery(t *testing.T) {
	mem, session := testMemory(t)

	req := policy.Request{Policy: policy.P1}
	res := policy.Result{
		Steps:        2,
		RulesApplied: 1,
		Termination:  policy.TerminationFixedPoint,
		AppliedTrace: []string{"R1", "R1"},
		Metrics:      policy.MassMetrics{TotalMass: 1000, ActiveNodes: 3},
	}
	mem.RecordRun(session, "run_1", req, res)

	runs := mem.Runs(session)
	if 1 != len(runs) {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if run.Value != "run_1" {
		t.Fatalf("expected run_1, got %s", run.Value)
	}
	if run.Properties["Termination"] != policy.TerminationFixedPoint {
		t.Fatalf("termination not stored, got %s", run.Properties["Termination"])
	}
	if run.Properties["Steps"] != "2" {
		t.Fatalf("steps not stored, got %s", run.Properties["Steps"])
	}

	trace := mem.Trace("run_1")
	if 2 != len(trace) {
		t.Fatalf("expected 2 applied rule entries, got %d", len(trace))
	}
	for i, entry := range trace {
		if entry.Value != "R1" {
			t.Fatalf("expected applied rule R1, got %s", entry.Value)
		}
		if entry.Properties["Sequence"] != strconv.Itoa(i) {
			t.Fatalf("trace order wrong at %d: %s", i, entry.Properties["Sequence"])
		}
	}
}

func TestFindRun(t *testing.T) {
	mem, session := testMemory(t)
	mem.RecordRun(session, "run_a", policy.Request{Policy: policy.P2}, policy.Result{Termination: policy.TerminationHorizon})
	mem.RecordRun(session, "run_b", policy.Request{Policy: policy.P1}, policy.Result{Termination: policy.TerminationFixedPoint})

	run, ok := mem.FindRun("run_b")
	if !ok {
		t.Fatalf("run_b must be findable")
	}
	if run.Properties["Policy"] != "P1" {
		t.Fatalf("expected policy P1, got %s", run.Properties["Policy"])
	}

	if _, ok = mem.FindRun("run_missing"); ok {
		t.Fatalf("missing run must not be found")
	}
}

func TestRecordDiagramSnapshot(t *testing.T) {
	mem, session := testMemory(t)

	expr, err := ast.Parse("S+(P(a), P(b))")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	d, err := diagram.FromExpr(expr, "d0")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	mem.RecordDiagram(session, d)

	snapshots := mem.DiagramSnapshots(session)
	if 1 != len(snapshots) {
		t.Fatalf("expected 1 snapshot, got %d", len(snapshots))
	}
	if snapshots[0].Value != "d0" {
		t.Fatalf("expected diagram d0, got %s", snapshots[0].Value)
	}
	nodes := mem.SnapshotNodes("d0")
	if len(nodes) != len(d.Nodes) {
		t.Fatalf("expected %d node children, got %d", len(d.Nodes), len(nodes))
	}
}

func TestRunsAreScopedToSession(t *testing.T) {
	mem, session := testMemory(t)
	mem.RecordRun(session, "run_1", policy.Request{Policy: policy.P1}, policy.Result{})
	mem.RecordRun("other_session", "run_2", policy.Request{Policy: policy.P1}, policy.Result{})

	runs := mem.Runs(session)
	if 1 != len(runs) {
		t.Fatalf("expected 1 run for session, got %d", len(runs))
	}
	if runs[0].Value != "run_1" {
		t.Fatalf("expected run_1, got %s", runs[0].Value)
	}
}
