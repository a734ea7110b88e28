package provenance

import (
	"fmt"
	"math"
	"sort"

	"github.com/loanworks/granite/internal/config"
	"github.com/loanworks/granite/internal/core/model"
)

// Tolerance is the allowed deviation between a derived terminal value and
// the authoritative attribute value.
type Tolerance struct {
	AbsoluteEpsilon float64
	PercentEpsilon  float64
}

// Builder constructs per-attribute calculation DAGs from declarative
// derivation definitions and verifies their terminal values. Any
// construction failure (missing document, missing field, unknown parent,
// cycle) is fatal only to that attribute's trace.
type Builder struct {
	Tolerance Tolerance
}

func NewBuilder(tol Tolerance) *Builder {
	return &Builder{Tolerance: tol}
}

// Build evaluates one derivation against the resolved masters and compares
// the terminal value to the authoritative attribute. Steps reference each
// other by id only, so cycle detection is a traversal over ids.
func (b *Builder) Build(def config.Derivation, masters map[string]model.Document, authoritative model.Attribute) model.CalculationTrace {
	trace := model.CalculationTrace{
		AttributeName: def.Attribute,
		ExpectedValue: authoritative.Value,
	}

	steps, err := b.evaluate(def, masters)
	trace.Steps = steps
	if err != nil {
		trace.Status = model.VerificationError
		trace.Error = err.Error()
		return trace
	}

	terminal, err := terminalStep(steps)
	if err != nil {
		trace.Status = model.VerificationError
		trace.Error = err.Error()
		return trace
	}
	trace.TerminalStepID = terminal.ID
	trace.DerivedValue = terminal.Value

	if authoritative.Unsourced {
		trace.Status = model.VerificationError
		trace.Error = fmt.Sprintf("attribute %s has no authoritative value to verify against", def.Attribute)
		return trace
	}
	expected, ok := authoritative.Value.AsNumber()
	if !ok {
		trace.Status = model.VerificationError
		trace.Error = fmt.Sprintf("authoritative value for %s is not numeric", def.Attribute)
		return trace
	}

	trace.Status, trace.VariancePct = b.compare(terminal.Value, expected)
	return trace
}

// compare applies the absolute-then-relative tolerance. Within the absolute
// epsilon is a MATCH; within the percent epsilon a MINOR_VARIANCE; beyond
// both a MISMATCH.
func (b *Builder) compare(derived, expected float64) (model.VerificationStatus, float64) {
	diff := math.Abs(derived - expected)

	variancePct := 0.0
	if expected != 0 {
		variancePct = diff / math.Abs(expected) * 100
	} else if diff != 0 {
		variancePct = 100
	}

	if diff < b.Tolerance.AbsoluteEpsilon {
		return model.VerificationMatch, variancePct
	}
	if variancePct < b.Tolerance.PercentEpsilon {
		return model.VerificationMinorVariance, variancePct
	}
	return model.VerificationMismatch, variancePct
}

// evaluate resolves source steps against master documents and computes
// formula/adjustment steps in dependency order.
func (b *Builder) evaluate(def config.Derivation, masters map[string]model.Document) ([]model.CalculationStep, error) {
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("derivation for %s has no steps", def.Attribute)
	}

	byID := make(map[string]config.DerivationStep, len(def.Steps))
	for _, s := range def.Steps {
		if s.ID == "" {
			return nil, fmt.Errorf("derivation for %s has a step with no id", def.Attribute)
		}
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate step id %q", s.ID)
		}
		byID[s.ID] = s
	}

	order, err := topoOrder(def.Steps, byID)
	if err != nil {
		return nil, err
	}

	values := make(map[string]float64, len(order))
	steps := make([]model.CalculationStep, 0, len(order))

	for i, id := range order {
		s := byID[id]
		step := model.CalculationStep{
			ID:          s.ID,
			Order:       i,
			Kind:        model.StepKind(s.Kind),
			Description: s.Description,
			Formula:     s.Formula,
			Rationale:   s.Rationale,
			ParentIDs:   append([]string(nil), s.Parents...),
		}

		switch s.Kind {
		case "source":
			doc, ok := masters[s.DocumentType]
			if !ok {
				return steps, fmt.Errorf("step %q references instrument type %q with no resolved master", s.ID, s.DocumentType)
			}
			field, ok := doc.Fields[s.Field]
			if !ok || field.IsMissing() {
				return steps, fmt.Errorf("step %q references field %q missing from document %s", s.ID, s.Field, doc.ID)
			}
			v, ok := field.AsNumber()
			if !ok {
				return steps, fmt.Errorf("step %q field %q on document %s is not numeric", s.ID, s.Field, doc.ID)
			}
			step.Value = v
			step.DocumentID = doc.ID
			step.Page = doc.FieldPages[s.Field]
			if step.Page <= 0 {
				step.Page = 1
			}

		case "formula", "adjustment":
			if s.Kind == "adjustment" && s.Rationale == "" {
				return steps, fmt.Errorf("adjustment step %q has no rationale", s.ID)
			}
			parents := make([]float64, 0, len(s.Parents))
			for _, p := range s.Parents {
				v, ok := values[p]
				if !ok {
					return steps, fmt.Errorf("step %q references unknown parent %q", s.ID, p)
				}
				parents = append(parents, v)
			}
			v, err := applyFormula(s.Formula, parents, s.Operand)
			if err != nil {
				return steps, fmt.Errorf("step %q: %w", s.ID, err)
			}
			step.Value = v

		default:
			return steps, fmt.Errorf("step %q has unknown kind %q", s.ID, s.Kind)
		}

		values[s.ID] = step.Value
		steps = append(steps, step)
	}

	return steps, nil
}

func applyFormula(formula string, parents []float64, operand float64) (float64, error) {
	if len(parents) == 0 {
		return 0, fmt.Errorf("formula %q has no parents", formula)
	}
	sum := 0.0
	for _, v := range parents {
		sum += v
	}

	switch formula {
	case "sum":
		return sum, nil
	case "subtract":
		out := parents[0]
		for _, v := range parents[1:] {
			out -= v
		}
		return out, nil
	case "multiply":
		out := 1.0
		for _, v := range parents {
			out *= v
		}
		return out, nil
	case "average":
		return sum / float64(len(parents)), nil
	case "percent":
		return sum * operand / 100, nil
	case "per_period":
		if operand == 0 {
			return 0, fmt.Errorf("per_period requires a nonzero operand")
		}
		return sum / operand, nil
	default:
		return 0, fmt.Errorf("unknown formula %q", formula)
	}
}

// topoOrder returns a dependency-respecting evaluation order, detecting
// cycles and unknown parent references. Ties between ready steps break on
// declaration order, keeping evaluation deterministic.
func topoOrder(declared []config.DerivationStep, byID map[string]config.DerivationStep) ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(byID))
	var order []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("cycle detected through step %q", id)
		}
		state[id] = visiting
		s := byID[id]
		for _, p := range s.Parents {
			if _, ok := byID[p]; !ok {
				return fmt.Errorf("step %q references unknown parent %q", id, p)
			}
			if err := visit(p); err != nil {
				return err
			}
		}
		state[id] = done
		order = append(order, id)
		return nil
	}

	for _, s := range declared {
		if err := visit(s.ID); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// terminalStep finds the single step no other step depends on.
func terminalStep(steps []model.CalculationStep) (model.CalculationStep, error) {
	referenced := make(map[string]bool)
	for _, s := range steps {
		for _, p := range s.ParentIDs {
			referenced[p] = true
		}
	}
	var terminals []model.CalculationStep
	for _, s := range steps {
		if !referenced[s.ID] {
			terminals = append(terminals, s)
		}
	}
	if len(terminals) != 1 {
		ids := make([]string, 0, len(terminals))
		for _, t := range terminals {
			ids = append(ids, t.ID)
		}
		sort.Strings(ids)
		return model.CalculationStep{}, fmt.Errorf("expected exactly one terminal step, found %d %v", len(terminals), ids)
	}
	return terminals[0], nil
}
