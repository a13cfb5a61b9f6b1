package sidgraph

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/voodooEntity/sidgraph/src/system/archivist"
	"github.com/voodooEntity/sidgraph/src/system/ast"
	"github.com/voodooEntity/sidgraph/src/system/crf"
	"github.com/voodooEntity/sidgraph/src/system/diagram"
	"github.com/voodooEntity/sidgraph/src/system/interfaces"
	"github.com/voodooEntity/sidgraph/src/system/memory"
	"github.com/voodooEntity/sidgraph/src/system/observer"
	"github.com/voodooEntity/sidgraph/src/system/policy"
	"github.com/voodooEntity/sidgraph/src/system/rewrite"
	"github.com/voodooEntity/sidgraph/src/system/ssp"
	"github.com/voodooEntity/sidgraph/src/system/stability"
)

// Settings configures a session. Zero values fall back to defaults;
// History enables run recording into the gits-backed memory.
type Settings struct {
	Ident           string
	FieldLen        int
	TotalMass       float64
	EpsConservation float64
	EpsDelta        float64
	KStable         int
	EmaAlpha        float64
	LogLevel        int
	DebugLevel      int
	Logger          interfaces.LoggerInterface
	History         bool
}

const (
	defaultFieldLen  = 100
	defaultTotalMass = 1000.0
)

// Engine is the session facade. It owns one diagram, the three
// semantic processors with their mixer, the constraint state and,
// with History enabled, the memory instance runs are recorded into.
type Engine struct {
	ident       string
	log         *archivist.Archivist
	diagram     *diagram.Diagram
	pi          *ssp.Processor
	pn          *ssp.Processor
	pu          *ssp.Processor
	mixer       *ssp.Mixer
	state       *crf.State
	csi         crf.CSI
	constraints []crf.Constraint
	registry    *crf.PredicateRegistry
	memory      *memory.Memory
	observer    *observer.Observer
	totalMass   float64
}

func New(settings Settings) (*Engine, error) {
	ident := settings.Ident
	if ident == "" {
		ident = uuid.NewString()
	}
	fieldLen := settings.FieldLen
	if fieldLen <= 0 {
		fieldLen = defaultFieldLen
	}
	totalMass := settings.TotalMass
	if totalMass <= 0 {
		totalMass = defaultTotalMass
	}

	log := archivist.New(&archivist.Config{
		Logger:     settings.Logger,
		LogLevel:   settings.LogLevel,
		DebugLevel: settings.DebugLevel,
	})

	third := totalMass / 3.0
	pi, err := ssp.NewProcessor(ssp.RoleI, fieldLen, third)
	if err != nil {
		return nil, err
	}
	pn, err := ssp.NewProcessor(ssp.RoleN, fieldLen, third)
	if err != nil {
		return nil, err
	}
	pu, err := ssp.NewProcessor(ssp.RoleU, fieldLen, totalMass-2*third)
	if err != nil {
		return nil, err
	}
	mixer, err := ssp.NewMixer(totalMass, ssp.MixerConfig{
		EpsConservation: settings.EpsConservation,
		EpsDelta:        settings.EpsDelta,
		KStable:         settings.KStable,
		EmaAlpha:        settings.EmaAlpha,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		ident:     ident,
		log:       log,
		pi:        pi,
		pn:        pn,
		pu:        pu,
		mixer:     mixer,
		state:     crf.NewState(ident+"_state", "", ""),
		registry:  crf.NewPredicateRegistry(),
		totalMass: totalMass,
	}
	if settings.History {
		engine.memory = memory.New(ident, log)
	}
	log.InfoF("session %s created, field length %d, total mass %.2f", ident, fieldLen, totalMass)
	return engine, nil
}

func (e *Engine) Ident() string {
	return e.ident
}

// SetDiagramExpr parses the expression and installs the resulting
// diagram as the session diagram.
func (e *Engine) SetDiagramExpr(text string, id string) error {
	expr, err := ast.Parse(text)
	if err != nil {
		return err
	}
	d, err := diagram.FromExpr(expr, id)
	if err != nil {
		return err
	}
	e.installDiagram(d)
	return nil
}

// SetDiagramJSON loads a serialized diagram as the session diagram.
func (e *Engine) SetDiagramJSON(data []byte) error {
	d, err := diagram.FromJSON(data)
	if err != nil {
		return err
	}
	if err = d.Validate(); err != nil {
		return err
	}
	e.installDiagram(d)
	return nil
}

func (e *Engine) installDiagram(d *diagram.Diagram) {
	e.diagram = d
	e.state.DiagramID = d.ID
	e.relabel()
	e.log.Debug(archivist.DEBUG_LEVEL_INFO, "diagram installed", d.ID, "nodes", len(d.Nodes))
}

func (e *Engine) DiagramJSON() ([]byte, error) {
	if e.diagram == nil {
		return nil, fmt.Errorf("session %s has no diagram", e.ident)
	}
	return e.diagram.ToJSON()
}

func (e *Engine) Diagram() *diagram.Diagram {
	return e.diagram
}

func (e *Engine) SetCSI(csi crf.CSI) {
	e.csi = csi
	e.state.CSIID = csi.ID
	if e.diagram != nil {
		e.relabel()
	}
}

func (e *Engine) SetConstraints(constraints []crf.Constraint) {
	e.constraints = constraints
}

// RegisterPredicate extends the constraint vocabulary of this session.
func (e *Engine) RegisterPredicate(name string, p crf.Predicate) {
	e.registry.Register(name, p)
}

func (e *Engine) State() *crf.State {
	return e.state
}

func (e *Engine) relabel() {
	labels := crf.AssignINULabels(e.diagram, e.constraints, e.state, e.csi)
	e.state.PushHistory(labels)
}

// ApplyRewrite authorizes the rule against the session constraints and
// applies it on success. A constraint denial is a regular non-applied
// result carrying the violated constraint ids.
func (e *Engine) ApplyRewrite(rule rewrite.Rule) (rewrite.Result, error) {
	if e.diagram == nil {
		return rewrite.Result{}, fmt.Errorf("session %s has no diagram", e.ident)
	}
	allowed, violated := crf.AuthorizeRewrite(e.registry, e.constraints, e.state, e.diagram, e.csi, rule)
	if !allowed {
		e.log.Debug(archivist.DEBUG_LEVEL_INFO, "rewrite", rule.ID, "denied:", violated)
		messages := make([]string, 0, len(violated))
		for _, v := range violated {
			messages = append(messages, fmt.Sprintf("rule %s denied by constraint %s", rule.ID, v))
		}
		return rewrite.Result{Applied: false, Messages: messages}, nil
	}
	res, err := rewrite.ApplyRule(e.diagram, rule)
	if err != nil {
		return rewrite.Result{}, err
	}
	if res.Applied {
		e.relabel()
	}
	return res, nil
}

// Step runs one mixer step over the three processors.
func (e *Engine) Step() error {
	return e.mixer.Step(e.pi, e.pn, e.pu)
}

// Collapse requests a one-shot collapse and steps the mixer once.
func (e *Engine) Collapse(alpha float64, epsilon float64) error {
	e.mixer.RequestCollapse(alpha, epsilon)
	return e.Step()
}

// RunPolicy executes the rule set under the requested policy. Each
// attempt is authorized before application; the field snapshot on the
// result reflects the processors after the run. With History on, the
// run and a diagram snapshot land in memory.
func (e *Engine) RunPolicy(req policy.Request) (policy.Result, error) {
	if e.diagram == nil {
		return policy.Result{}, fmt.Errorf("session %s has no diagram", e.ident)
	}
	runner := policy.NewRunner(e.log)
	if e.observer != nil {
		runner.OnPass(e.observer.PassHook())
	}

	apply := func(rule rewrite.Rule) rewrite.Result {
		res, err := e.ApplyRewrite(rule)
		if err != nil {
			return rewrite.Result{Messages: []string{err.Error()}}
		}
		return res
	}
	snapshot := func() policy.MassMetrics {
		return policy.MassMetrics{
			IMass:       e.pi.TotalMass(),
			NMass:       e.pn.TotalMass(),
			UMass:       e.pu.TotalMass(),
			ActiveNodes: len(e.diagram.Nodes),
			TotalMass:   e.pi.TotalMass() + e.pn.TotalMass() + e.pu.TotalMass(),
		}
	}

	res, err := runner.Run(req, apply, snapshot)
	if err != nil {
		return policy.Result{}, err
	}
	if e.memory != nil {
		runID := uuid.NewString()
		e.memory.RecordRun(e.ident, runID, req, res)
		e.memory.RecordDiagram(e.ident, e.diagram)
	}
	if e.observer != nil {
		e.observer.Complete(res)
	}
	return res, nil
}

// MassMetrics reports the current field masses.
func (e *Engine) MassMetrics() policy.MassMetrics {
	m := policy.MassMetrics{
		IMass: e.pi.TotalMass(),
		NMass: e.pn.TotalMass(),
		UMass: e.pu.TotalMass(),
	}
	m.TotalMass = m.IMass + m.NMass + m.UMass
	if e.diagram != nil {
		m.ActiveNodes = len(e.diagram.Nodes)
	}
	return m
}

func (e *Engine) MixerMetrics() ssp.MixerMetrics {
	return e.mixer.Metrics()
}

// IsConserved checks the summed field mass against the configured
// total.
func (e *Engine) IsConserved(tolerance float64) bool {
	sum := e.pi.TotalMass() + e.pn.TotalMass() + e.pu.TotalMass()
	diff := sum - e.totalMass
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

// StabilityMetrics derives the structural diagnostics of the current
// diagram and label state.
func (e *Engine) StabilityMetrics() (stability.Metrics, error) {
	if e.diagram == nil {
		return stability.Metrics{}, fmt.Errorf("session %s has no diagram", e.ident)
	}
	return stability.ComputeMetrics(e.diagram, e.state), nil
}

// IsStable evaluates the structural stability conditions against the
// given rule set.
func (e *Engine) IsStable(rules []rewrite.Rule, tolerance float64, requireAll bool) (bool, []string, string, error) {
	if e.diagram == nil {
		return false, nil, "", fmt.Errorf("session %s has no diagram", e.ident)
	}
	stable, met, summary := stability.IsStructurallyStable(e.diagram, e.state, e.csi, e.constraints, rules, e.registry, tolerance, requireAll)
	return stable, met, summary, nil
}

// Memory exposes the session memory; nil unless History was enabled.
func (e *Engine) Memory() *memory.Memory {
	return e.memory
}

// GetObserverInstance attaches a run observer to the session. The
// observer's pass hook is wired into subsequent RunPolicy calls.
func (e *Engine) GetObserverInstance(cb func(memoryInstance *memory.Memory, res policy.Result)) *observer.Observer {
	if e.memory == nil {
		e.memory = memory.New(e.ident, e.log)
	}
	e.observer = observer.New(e.memory, cb, e.log)
	return e.observer
}
