package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loanworks/granite/internal/core/model"
)

func TestLoanRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.PutLoan(ctx, model.Loan{ID: "loan-1", LoanType: "conventional", State: "TX"}))

	loan, err := s.GetLoan(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, "conventional", loan.LoanType)

	_, err = s.GetLoan(ctx, "loan-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentsReplacedWholesale(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.PutDocuments(ctx, "loan-1", []model.Document{{ID: "doc-1"}, {ID: "doc-2"}}))
	require.NoError(t, s.PutDocuments(ctx, "loan-1", []model.Document{{ID: "doc-3"}}))

	docs, err := s.ListDocuments(ctx, "loan-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-3", docs[0].ID)
}

func TestReadsAreIsolatedCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	orig := []model.Document{{
		ID:     "doc-1",
		Fields: map[string]model.FieldValue{"loan_amount": model.NumberValue(250000)},
	}}
	require.NoError(t, s.PutDocuments(ctx, "loan-1", orig))

	// Mutating the caller's slice after the write must not leak in.
	orig[0].ID = "mutated"
	orig[0].Fields["loan_amount"] = model.NumberValue(1)

	docs, err := s.ListDocuments(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", docs[0].ID)
	n, _ := docs[0].Fields["loan_amount"].AsNumber()
	assert.Equal(t, 250000.0, n)

	// Mutating a read result must not leak back.
	docs[0].Fields["loan_amount"] = model.NumberValue(2)
	again, err := s.ListDocuments(ctx, "loan-1")
	require.NoError(t, err)
	n, _ = again[0].Fields["loan_amount"].AsNumber()
	assert.Equal(t, 250000.0, n)
}

func TestSaveRunReplacesPrevious(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, &model.ReconciliationRun{LoanID: "loan-1", ExecutionID: "exec-1"}))
	require.NoError(t, s.SaveRun(ctx, &model.ReconciliationRun{LoanID: "loan-1", ExecutionID: "exec-2"}))

	run, err := s.LatestRun(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, "exec-2", run.ExecutionID)

	_, err = s.LatestRun(ctx, "loan-9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestComplianceResultsAppendOnly(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	first := []model.ComplianceResult{
		{LoanID: "loan-1", RuleCode: "QM-DTI-43", ExecutionID: "exec-1", Status: model.StatusFail, EvaluatedAt: now},
	}
	second := []model.ComplianceResult{
		{LoanID: "loan-1", RuleCode: "QM-DTI-43", ExecutionID: "exec-2", Status: model.StatusPass, EvaluatedAt: now},
		{LoanID: "loan-1", RuleCode: "APR-PRESENT", ExecutionID: "exec-2", Status: model.StatusPass, EvaluatedAt: now},
	}

	require.NoError(t, s.AppendComplianceResults(ctx, "loan-1", first))
	require.NoError(t, s.AppendComplianceResults(ctx, "loan-1", second))

	latest, err := s.LatestComplianceResults(ctx, "loan-1")
	require.NoError(t, err)
	require.Len(t, latest, 2)
	for _, r := range latest {
		assert.Equal(t, "exec-2", r.ExecutionID)
	}

	// Earlier executions remain stored; only the latest is surfaced.
	s.mu.RLock()
	assert.Len(t, s.results["loan-1"], 3)
	s.mu.RUnlock()
}

func TestLatestComplianceResultsNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.LatestComplianceResults(context.Background(), "loan-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
