package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loanworks/granite/internal/core/model"
)

// Engine evaluates the rule catalog against a finished reconciliation run.
// Evaluation is pure per rule and rule-parallel: rules only read the run.
type Engine struct {
	Catalog *Catalog
}

func NewEngine(catalog *Catalog) *Engine {
	return &Engine{Catalog: catalog}
}

// EvaluateAll runs every catalog rule concurrently and returns results
// sorted by rule code. Every (loan, rule) pair yields exactly one result;
// a panicking rule degrades to ERROR instead of taking down the run.
func (e *Engine) EvaluateAll(ctx context.Context, loan model.Loan, run *model.ReconciliationRun, executionID string, now time.Time) []model.ComplianceResult {
	results := make([]model.ComplianceResult, len(e.Catalog.Rules))

	g, _ := errgroup.WithContext(ctx)
	for i, rule := range e.Catalog.Rules {
		i, rule := i, rule
		g.Go(func() error {
			results[i] = evaluateSafe(rule, loan, run, executionID, now)
			return nil
		})
	}
	// Workers never return errors; failure is encoded per-result.
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].RuleCode < results[j].RuleCode })
	return results
}

func evaluateSafe(rule model.ComplianceRule, loan model.Loan, run *model.ReconciliationRun, executionID string, now time.Time) (result model.ComplianceResult) {
	defer func() {
		if r := recover(); r != nil {
			result = newResult(rule, loan, executionID, now)
			result.Status = model.StatusError
			result.Message = fmt.Sprintf("rule evaluation panicked: %v", r)
		}
	}()
	return Evaluate(rule, loan, run, executionID, now)
}

// Evaluate applies one rule. Pure: no I/O, no side effects, result depends
// only on the arguments.
func Evaluate(rule model.ComplianceRule, loan model.Loan, run *model.ReconciliationRun, executionID string, now time.Time) model.ComplianceResult {
	result := newResult(rule, loan, executionID, now)

	if !applicable(rule, loan, now) {
		result.Status = model.StatusNA
		result.Message = "rule not applicable to this loan"
		return result
	}

	switch rule.Logic.Kind {
	case model.LogicThreshold:
		evaluateThreshold(rule, run, &result)
	case model.LogicPresence:
		evaluatePresence(rule, run, &result)
	case model.LogicEquality:
		evaluateEquality(rule, run, &result)
	case model.LogicCalcVerified:
		evaluateCalcVerified(rule, run, &result)
	default:
		result.Status = model.StatusError
		result.Message = fmt.Sprintf("unknown logic kind %q", rule.Logic.Kind)
	}

	if rule.RequiresManualReview {
		result.ManualReview = true
		result.ComputedStatus = result.Status
		// A passing or warning outcome is not conclusive until a reviewer
		// signs off; genuine failures and data errors keep their status.
		if result.Status == model.StatusPass || result.Status == model.StatusWarning {
			result.Status = model.StatusPendingReview
		}
	}

	return result
}

func newResult(rule model.ComplianceRule, loan model.Loan, executionID string, now time.Time) model.ComplianceResult {
	return model.ComplianceResult{
		LoanID:      loan.ID,
		RuleCode:    rule.Code,
		ExecutionID: executionID,
		EvaluatedAt: now,
		Evidence:    model.Evidence{Values: map[string]model.FieldValue{}},
	}
}

// applicable evaluates the rule's predicate: loan type, state, and the
// effective-date window. Empty lists match everything.
func applicable(rule model.ComplianceRule, loan model.Loan, now time.Time) bool {
	if len(rule.LoanTypes) > 0 && !containsFold(rule.LoanTypes, loan.LoanType) {
		return false
	}
	if len(rule.States) > 0 && !containsFold(rule.States, loan.State) {
		return false
	}
	if rule.EffectiveFrom != nil && now.Before(*rule.EffectiveFrom) {
		return false
	}
	if rule.EffectiveTo != nil && now.After(*rule.EffectiveTo) {
		return false
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// requireAttribute fetches a sourced attribute for the rule. A missing or
// unsourced attribute is a data-completeness problem: the result is ERROR,
// deliberately distinct from a genuine FAIL.
func requireAttribute(name string, run *model.ReconciliationRun, result *model.ComplianceResult) (model.Attribute, bool) {
	attr, ok := run.AttributeByName(name)
	if !ok || attr.Unsourced {
		result.Status = model.StatusError
		result.Message = fmt.Sprintf("required attribute %q is missing", name)
		return model.Attribute{}, false
	}
	cite(result, attr)
	return attr, true
}

func cite(result *model.ComplianceResult, attr model.Attribute) {
	result.Evidence.Values[attr.Name] = attr.Value
	if attr.SourceDocumentID != "" {
		result.Evidence.Documents = append(result.Evidence.Documents, model.DocumentRef{
			DocumentID: attr.SourceDocumentID,
			Page:       attr.SourcePage,
		})
	}
}

func evaluateThreshold(rule model.ComplianceRule, run *model.ReconciliationRun, result *model.ComplianceResult) {
	attr, ok := requireAttribute(rule.Logic.Attribute, run, result)
	if !ok {
		return
	}
	actual, ok := attr.Value.AsNumber()
	if !ok {
		result.Status = model.StatusError
		result.Message = fmt.Sprintf("attribute %q is not numeric", rule.Logic.Attribute)
		return
	}

	// Cite the attribute's calculation trace when one exists.
	if trace, ok := run.TraceByAttribute(rule.Logic.Attribute); ok {
		result.Evidence.CalculationSteps = trace.Steps
	}

	limit := rule.Logic.Value
	result.Expected = fmt.Sprintf("%s %g", rule.Logic.Operator, limit)
	result.Actual = attr.Value.String()

	pass, err := compareThreshold(actual, rule.Logic.Operator, limit)
	if err != nil {
		result.Status = model.StatusError
		result.Message = err.Error()
		return
	}
	if pass {
		result.Status = model.StatusPass
		return
	}
	if rule.Logic.WarningMargin > 0 && withinMargin(actual, rule.Logic.Operator, limit, rule.Logic.WarningMargin) {
		result.Status = model.StatusWarning
		result.Message = fmt.Sprintf("outside limit but within warning margin of %g", rule.Logic.WarningMargin)
		return
	}
	result.Status = model.StatusFail
}

func compareThreshold(actual float64, operator string, limit float64) (bool, error) {
	switch operator {
	case "lte":
		return actual <= limit, nil
	case "lt":
		return actual < limit, nil
	case "gte":
		return actual >= limit, nil
	case "gt":
		return actual > limit, nil
	case "eq":
		return actual == limit, nil
	default:
		return false, fmt.Errorf("unknown threshold operator %q", operator)
	}
}

func withinMargin(actual float64, operator string, limit, margin float64) bool {
	switch operator {
	case "lte", "lt":
		return actual <= limit+margin
	case "gte", "gt":
		return actual >= limit-margin
	default:
		return false
	}
}

// evaluatePresence checks that the attribute was sourced at all. Absence is
// the condition under test here, so it is a FAIL, not an ERROR.
func evaluatePresence(rule model.ComplianceRule, run *model.ReconciliationRun, result *model.ComplianceResult) {
	result.Expected = "attribute sourced"
	attr, ok := run.AttributeByName(rule.Logic.Attribute)
	if !ok || attr.Unsourced {
		result.Status = model.StatusFail
		result.Actual = "unsourced"
		result.Message = fmt.Sprintf("attribute %q was not sourced from any tier", rule.Logic.Attribute)
		return
	}
	cite(result, attr)
	result.Status = model.StatusPass
	result.Actual = fmt.Sprintf("sourced from tier %d (%s)", attr.SourceTier, attr.SourceType)
}

func evaluateEquality(rule model.ComplianceRule, run *model.ReconciliationRun, result *model.ComplianceResult) {
	attr, ok := requireAttribute(rule.Logic.Attribute, run, result)
	if !ok {
		return
	}

	var expected string
	var matches bool

	if rule.Logic.OtherAttribute != "" {
		other, ok := requireAttribute(rule.Logic.OtherAttribute, run, result)
		if !ok {
			return
		}
		expected = other.Value.String()
		matches = attr.Value.String() == other.Value.String()
	} else {
		expected = fmt.Sprintf("%g", rule.Logic.Value)
		actual, ok := attr.Value.AsNumber()
		if !ok {
			result.Status = model.StatusError
			result.Message = fmt.Sprintf("attribute %q is not numeric", rule.Logic.Attribute)
			return
		}
		matches = actual == rule.Logic.Value
	}

	result.Expected = expected
	result.Actual = attr.Value.String()
	if matches {
		result.Status = model.StatusPass
	} else {
		result.Status = model.StatusFail
	}
}

func evaluateCalcVerified(rule model.ComplianceRule, run *model.ReconciliationRun, result *model.ComplianceResult) {
	trace, ok := run.TraceByAttribute(rule.Logic.Attribute)
	if !ok {
		result.Status = model.StatusError
		result.Message = fmt.Sprintf("no calculation trace for attribute %q", rule.Logic.Attribute)
		return
	}

	result.Evidence.CalculationSteps = trace.Steps
	for _, s := range trace.Steps {
		if s.DocumentID != "" {
			result.Evidence.Documents = append(result.Evidence.Documents, model.DocumentRef{
				DocumentID: s.DocumentID,
				Page:       s.Page,
			})
		}
	}
	if attr, ok := run.AttributeByName(rule.Logic.Attribute); ok {
		cite(result, attr)
	}

	result.Expected = string(model.VerificationMatch)
	result.Actual = string(trace.Status)

	switch trace.Status {
	case model.VerificationMatch:
		result.Status = model.StatusPass
	case model.VerificationMinorVariance:
		result.Status = model.StatusWarning
		result.Message = fmt.Sprintf("derived value varies %.4f%% from authoritative", trace.VariancePct)
	case model.VerificationMismatch:
		result.Status = model.StatusFail
		result.Message = fmt.Sprintf("derived value varies %.4f%% from authoritative", trace.VariancePct)
	default:
		result.Status = model.StatusError
		result.Message = trace.Error
	}
}
