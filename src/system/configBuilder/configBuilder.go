package configBuilder

import (
	"fmt"

	"github.com/voodooEntity/sidgraph/src/system/ast"
	"github.com/voodooEntity/sidgraph/src/system/crf"
	"github.com/voodooEntity/sidgraph/src/system/diagram"
	"github.com/voodooEntity/sidgraph/src/system/rewrite"
)

// PackageBuilder assembles a crf.Package fluently. Errors from
// expression parsing are collected and surfaced on Build so chains
// stay unbroken.
type PackageBuilder struct {
	pkg  crf.Package
	errs []error
}

func NewPackage() *PackageBuilder {
	return &PackageBuilder{}
}

func (builder *PackageBuilder) AddDof(id string, name string) *PackageBuilder {
	builder.pkg.Dofs = append(builder.pkg.Dofs, crf.Dof{ID: id, Name: name})
	return builder
}

func (builder *PackageBuilder) AddCompartment(id string, name string) *PackageBuilder {
	builder.pkg.Compartments = append(builder.pkg.Compartments, crf.Compartment{ID: id, Name: name})
	return builder
}

func (builder *PackageBuilder) AddCSI(csi crf.CSI) *PackageBuilder {
	builder.pkg.CSIs = append(builder.pkg.CSIs, csi)
	return builder
}

func (builder *PackageBuilder) AddConstraint(constraint crf.Constraint) *PackageBuilder {
	builder.pkg.Constraints = append(builder.pkg.Constraints, constraint)
	return builder
}

// AddRule registers a rewrite rule. Pattern and replacement are parsed
// here so a malformed rule fails the Build instead of a later run.
func (builder *PackageBuilder) AddRule(id string, pattern string, replacement string) *PackageBuilder {
	if _, err := ast.Parse(pattern); err != nil {
		builder.errs = append(builder.errs, fmt.Errorf("rule %s pattern: %w", id, err))
	}
	if _, err := ast.Parse(replacement); err != nil {
		builder.errs = append(builder.errs, fmt.Errorf("rule %s replacement: %w", id, err))
	}
	builder.pkg.Rules = append(builder.pkg.Rules, rewrite.Rule{
		ID:          id,
		Pattern:     pattern,
		Replacement: replacement,
	})
	return builder
}

// AddDiagramExpr parses the expression and registers the resulting
// diagram under the given id.
func (builder *PackageBuilder) AddDiagramExpr(id string, text string) *PackageBuilder {
	expr, err := ast.Parse(text)
	if err != nil {
		builder.errs = append(builder.errs, fmt.Errorf("diagram %s: %w", id, err))
		return builder
	}
	d, err := diagram.FromExpr(expr, id)
	if err != nil {
		builder.errs = append(builder.errs, fmt.Errorf("diagram %s: %w", id, err))
		return builder
	}
	builder.pkg.Diagrams = append(builder.pkg.Diagrams, d)
	return builder
}

func (builder *PackageBuilder) AddDiagram(d *diagram.Diagram) *PackageBuilder {
	builder.pkg.Diagrams = append(builder.pkg.Diagrams, d)
	return builder
}

func (builder *PackageBuilder) AddState(state *crf.State) *PackageBuilder {
	builder.pkg.States = append(builder.pkg.States, state)
	return builder
}

// Build returns the assembled package. Collected chain errors are
// returned first; afterwards the package is validated and any finding
// of severity error fails the build as well.
func (builder *PackageBuilder) Build() (crf.Package, error) {
	if len(builder.errs) > 0 {
		return crf.Package{}, builder.errs[0]
	}
	findings := crf.ValidatePackage(&builder.pkg)
	for _, f := range findings {
		if f.Severity == crf.SeverityError {
			return crf.Package{}, fmt.Errorf("package invalid: %s", f.Message)
		}
	}
	return builder.pkg, nil
}

// MustBuild is Build for hand-written setup code where an invalid
// package is a programming error.
func (builder *PackageBuilder) MustBuild() crf.Package {
	pkg, err := builder.Build()
	if err != nil {
		panic(err)
	}
	return pkg
}
