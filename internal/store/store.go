package store

import (
	"context"
	"errors"

	"github.com/loanworks/granite/internal/core/model"
)

var ErrNotFound = errors.New("not found")

// Store persists the five durable record kinds, keyed by loan id. Documents
// are intake records owned by the ingestion collaborator; reconciliation
// runs replace the previous run's derived state wholesale; compliance
// results are append-only per execution id.
type Store interface {
	PutLoan(ctx context.Context, loan model.Loan) error
	GetLoan(ctx context.Context, loanID string) (model.Loan, error)

	PutDocuments(ctx context.Context, loanID string, docs []model.Document) error
	ListDocuments(ctx context.Context, loanID string) ([]model.Document, error)

	SaveRun(ctx context.Context, run *model.ReconciliationRun) error
	LatestRun(ctx context.Context, loanID string) (*model.ReconciliationRun, error)

	AppendComplianceResults(ctx context.Context, loanID string, results []model.ComplianceResult) error
	LatestComplianceResults(ctx context.Context, loanID string) ([]model.ComplianceResult, error)

	Close(ctx context.Context) error
}
