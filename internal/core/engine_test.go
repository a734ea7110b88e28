package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loanworks/granite/internal/config"
	"github.com/loanworks/granite/internal/core/model"
	"github.com/loanworks/granite/internal/core/rules"
	"github.com/loanworks/granite/internal/oracle"
	"github.com/loanworks/granite/internal/store"
)

// mockOracle serves canned judgments keyed by document id. Safe for the
// engine's concurrent classification stage: the map is never written after
// construction.
type mockOracle struct {
	judgments map[string]*oracle.Judgment
	failures  map[string]error
}

func (m *mockOracle) Classify(ctx context.Context, doc model.Document) (*oracle.Judgment, error) {
	if err, ok := m.failures[doc.ID]; ok {
		return nil, err
	}
	if j, ok := m.judgments[doc.ID]; ok {
		return j, nil
	}
	return &oracle.Judgment{TypeLabel: "unknown"}, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Attributes: []config.AttributeSpec{
			{Name: "total_monthly_income", Unit: "USD/month", Chain: []string{"urla", "paystub"}},
			{Name: "debt_to_income_ratio", Unit: "percent", Chain: []string{"urla"}},
			{Name: "loan_amount", Unit: "USD", Chain: []string{"urla"}},
		},
		Derivations: []config.Derivation{
			{
				Attribute: "total_monthly_income",
				Steps: []config.DerivationStep{
					{ID: "salary", Kind: "source", Field: "base_salary", DocumentType: "paystub"},
					{ID: "ot", Kind: "source", Field: "overtime", DocumentType: "paystub"},
					{ID: "gross", Kind: "formula", Formula: "sum", Parents: []string{"salary", "ot"}},
				},
			},
		},
	}
	cfg.Concurrency.Classify = 2
	cfg.Grouping.SimilarityThreshold = 0.85
	cfg.Version.Precedence = []string{"finality", "signature", "date", "page_count", "document_id"}
	cfg.Tolerance.AbsoluteEpsilon = 0.10
	cfg.Tolerance.PercentEpsilon = 0.25
	return cfg
}

func testCatalog() *rules.Catalog {
	return &rules.Catalog{Rules: []model.ComplianceRule{
		{
			Code:      "QM-DTI-43",
			Severity:  model.SeverityCritical,
			LoanTypes: []string{"conventional"},
			Logic: model.RuleLogic{
				Kind: model.LogicThreshold, Attribute: "debt_to_income_ratio",
				Operator: "lte", Value: 43, WarningMargin: 2,
			},
		},
		{
			Code:     "INCOME-VERIFY",
			Severity: model.SeverityHigh,
			Logic:    model.RuleLogic{Kind: model.LogicCalcVerified, Attribute: "total_monthly_income"},
		},
	}}
}

func loanDocuments() []model.Document {
	page := func(text string) []model.Page { return []model.Page{{Number: 1, Text: text}} }
	return []model.Document{
		{
			ID: "doc-a", LoanID: "loan-1", PageCount: 1,
			Pages: page("uniform residential loan application borrower jane doe requests two hundred fifty thousand"),
		},
		{
			ID: "doc-b", LoanID: "loan-1", PageCount: 1,
			Pages: page("earnings statement acme corporation pay period december regular overtime totals"),
		},
		{
			ID: "doc-c", LoanID: "loan-1", PageCount: 1,
			Pages: page("closing disclosure preliminary settlement charges itemized fees estimate draft"),
		},
		{
			ID: "doc-d", LoanID: "loan-1", PageCount: 1,
			Pages: page("closing disclosure final executed settlement statement certified amounts"),
		},
		{
			// Byte-identical to doc-a: an exact duplicate upload.
			ID: "doc-e", LoanID: "loan-1", PageCount: 1,
			Pages: page("uniform residential loan application borrower jane doe requests two hundred fifty thousand"),
		},
	}
}

func happyOracle() *mockOracle {
	return &mockOracle{
		judgments: map[string]*oracle.Judgment{
			"doc-a": {
				TypeLabel: "urla",
				Fields: map[string]model.FieldValue{
					"total_monthly_income": model.NumberValue(8125.50),
					"debt_to_income_ratio": model.NumberValue(41),
					"loan_amount":          model.NumberValue(250000),
				},
			},
			"doc-b": {
				TypeLabel: "paystub",
				Fields: map[string]model.FieldValue{
					"base_salary": model.NumberValue(8000),
					"overtime":    model.NumberValue(125.50),
				},
			},
			"doc-c": {TypeLabel: "closing_disclosure", GroupingHint: "cd-1", FinalityIndicator: "preliminary"},
			"doc-d": {TypeLabel: "closing_disclosure", GroupingHint: "cd-1", FinalityIndicator: "final"},
		},
	}
}

func newTestEngine(t *testing.T, st store.Store, orc oracle.Oracle) *Engine {
	t.Helper()
	engine, err := NewEngine(st, orc, testConfig(), testCatalog())
	require.NoError(t, err)
	return engine
}

func seed(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.PutLoan(ctx, model.Loan{ID: "loan-1", LoanType: "conventional", State: "CA"}))
	require.NoError(t, st.PutDocuments(ctx, "loan-1", loanDocuments()))
}

func TestRunReconciliationPipeline(t *testing.T) {
	st := store.NewMemoryStore()
	seed(t, st)
	engine := newTestEngine(t, st, happyOracle())

	run, err := engine.RunReconciliation(context.Background(), "loan-1")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ExecutionID)

	// doc-e is byte-identical to doc-a; the smaller id is retained.
	assert.Equal(t, []string{"doc-e"}, run.DuplicateIDs)
	dup, ok := run.DocumentByID("doc-e")
	require.True(t, ok)
	assert.Equal(t, model.DocStatusDuplicate, dup.Status)
	assert.Equal(t, "doc-a", dup.DuplicateOf)

	// Both closing disclosure drafts share one group; final beats
	// preliminary for master.
	var cdGroup *model.InstrumentGroup
	for i, g := range run.Groups {
		if g.TypeLabel == "closing_disclosure" {
			cdGroup = &run.Groups[i]
		}
	}
	require.NotNil(t, cdGroup)
	assert.ElementsMatch(t, []string{"doc-c", "doc-d"}, cdGroup.DocumentIDs)

	var master string
	for _, v := range run.Versions {
		if v.GroupKey == cdGroup.Key && v.Role == model.RoleMaster {
			master = v.DocumentID
		}
	}
	assert.Equal(t, "doc-d", master)

	// Attributes sourced from the URLA master.
	income, ok := run.AttributeByName("total_monthly_income")
	require.True(t, ok)
	assert.Equal(t, "doc-a", income.SourceDocumentID)
	assert.Equal(t, 0, income.SourceTier)

	// 8000 + 125.50 derived against the stated 8125.50.
	trace, ok := run.TraceByAttribute("total_monthly_income")
	require.True(t, ok)
	assert.Equal(t, model.VerificationMatch, trace.Status)
	assert.Equal(t, 8125.50, trace.DerivedValue)

	// Run is persisted.
	stored, err := st.LatestRun(context.Background(), "loan-1")
	require.NoError(t, err)
	assert.Equal(t, run.ExecutionID, stored.ExecutionID)
}

func TestOracleFailureDegradesDocumentNotBatch(t *testing.T) {
	st := store.NewMemoryStore()
	seed(t, st)

	orc := happyOracle()
	delete(orc.judgments, "doc-b")
	orc.failures = map[string]error{
		"doc-b": oracle.NewOracleError(oracle.ErrorProviderCall, "provider unavailable", nil),
	}
	engine := newTestEngine(t, st, orc)

	run, err := engine.RunReconciliation(context.Background(), "loan-1")
	require.NoError(t, err)

	assert.Contains(t, run.NeedsReviewIDs, "doc-b")
	doc, ok := run.DocumentByID("doc-b")
	require.True(t, ok)
	assert.Equal(t, model.DocStatusNeedsReview, doc.Status)

	// The rest of the pipeline still ran.
	dti, ok := run.AttributeByName("debt_to_income_ratio")
	require.True(t, ok)
	assert.False(t, dti.Unsourced)

	// With no paystub master the income derivation cannot be built; that
	// failure is confined to the one trace.
	trace, ok := run.TraceByAttribute("total_monthly_income")
	require.True(t, ok)
	assert.Equal(t, model.VerificationError, trace.Status)
}

func TestUnreadableDocumentIsUnfingerprintable(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.PutLoan(ctx, model.Loan{ID: "loan-1", LoanType: "conventional"}))
	docs := append(loanDocuments(), model.Document{
		ID: "doc-z", LoanID: "loan-1", PageCount: 1,
		Pages: []model.Page{{Number: 1, Text: "   "}},
	})
	require.NoError(t, st.PutDocuments(ctx, "loan-1", docs))

	engine := newTestEngine(t, st, happyOracle())
	run, err := engine.RunReconciliation(ctx, "loan-1")
	require.NoError(t, err)

	assert.Contains(t, run.NeedsReviewIDs, "doc-z")
	doc, ok := run.DocumentByID("doc-z")
	require.True(t, ok)
	assert.Equal(t, model.DocStatusUnfingerprintable, doc.Status)
}

func TestReconciliationDeterministic(t *testing.T) {
	st := store.NewMemoryStore()
	seed(t, st)
	engine := newTestEngine(t, st, happyOracle())
	ctx := context.Background()

	first, err := engine.RunReconciliation(ctx, "loan-1")
	require.NoError(t, err)
	second, err := engine.RunReconciliation(ctx, "loan-1")
	require.NoError(t, err)

	assert.NotEqual(t, first.ExecutionID, second.ExecutionID)
	assert.Equal(t, first.Groups, second.Groups)
	assert.Equal(t, first.Versions, second.Versions)
	assert.Equal(t, first.Attributes, second.Attributes)
	assert.Equal(t, first.Traces, second.Traces)
	assert.Equal(t, first.DuplicateIDs, second.DuplicateIDs)
}

func TestRunCompliance(t *testing.T) {
	st := store.NewMemoryStore()
	seed(t, st)
	engine := newTestEngine(t, st, happyOracle())
	ctx := context.Background()

	_, err := engine.RunReconciliation(ctx, "loan-1")
	require.NoError(t, err)

	results, err := engine.RunCompliance(ctx, "loan-1")
	require.NoError(t, err)
	require.Len(t, results, 2)

	byCode := make(map[string]model.ComplianceResult)
	for _, r := range results {
		byCode[r.RuleCode] = r
		assert.NotEmpty(t, r.ExecutionID)
	}
	assert.Equal(t, model.StatusPass, byCode["QM-DTI-43"].Status)
	assert.Equal(t, model.StatusPass, byCode["INCOME-VERIFY"].Status)

	stored, err := st.LatestComplianceResults(ctx, "loan-1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRunComplianceRequiresReconciliation(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.PutLoan(context.Background(), model.Loan{ID: "loan-1", LoanType: "conventional"}))
	engine := newTestEngine(t, st, happyOracle())

	_, err := engine.RunCompliance(context.Background(), "loan-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunComplianceUnknownLoan(t *testing.T) {
	engine := newTestEngine(t, store.NewMemoryStore(), happyOracle())
	_, err := engine.RunCompliance(context.Background(), "loan-404")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
