package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/loanworks/granite/internal/core/model"
)

// MemoryStore is the default backend and the one tests run against.
// Reads return deep copies so callers can never mutate stored state.
type MemoryStore struct {
	mu        sync.RWMutex
	loans     map[string]model.Loan
	documents map[string][]model.Document
	runs      map[string]*model.ReconciliationRun
	// results holds execution-ordered appends per loan; the latest
	// execution id is tracked separately.
	results         map[string][]model.ComplianceResult
	latestExecution map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loans:           make(map[string]model.Loan),
		documents:       make(map[string][]model.Document),
		runs:            make(map[string]*model.ReconciliationRun),
		results:         make(map[string][]model.ComplianceResult),
		latestExecution: make(map[string]string),
	}
}

func (s *MemoryStore) PutLoan(ctx context.Context, loan model.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans[loan.ID] = loan
	return nil
}

func (s *MemoryStore) GetLoan(ctx context.Context, loanID string) (model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, ok := s.loans[loanID]
	if !ok {
		return model.Loan{}, fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
	}
	return loan, nil
}

func (s *MemoryStore) PutDocuments(ctx context.Context, loanID string, docs []model.Document) error {
	copied, err := deepCopy(docs)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[loanID] = copied
	return nil
}

func (s *MemoryStore) ListDocuments(ctx context.Context, loanID string) ([]model.Document, error) {
	s.mu.RLock()
	docs, ok := s.documents[loanID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("documents for loan %s: %w", loanID, ErrNotFound)
	}
	return deepCopy(docs)
}

func (s *MemoryStore) SaveRun(ctx context.Context, run *model.ReconciliationRun) error {
	copied, err := deepCopy(run)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.LoanID] = copied
	return nil
}

func (s *MemoryStore) LatestRun(ctx context.Context, loanID string) (*model.ReconciliationRun, error) {
	s.mu.RLock()
	run, ok := s.runs[loanID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("run for loan %s: %w", loanID, ErrNotFound)
	}
	return deepCopy(run)
}

func (s *MemoryStore) AppendComplianceResults(ctx context.Context, loanID string, results []model.ComplianceResult) error {
	if len(results) == 0 {
		return nil
	}
	copied, err := deepCopy(results)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[loanID] = append(s.results[loanID], copied...)
	s.latestExecution[loanID] = results[0].ExecutionID
	return nil
}

func (s *MemoryStore) LatestComplianceResults(ctx context.Context, loanID string) ([]model.ComplianceResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	execID, ok := s.latestExecution[loanID]
	if !ok {
		return nil, fmt.Errorf("compliance results for loan %s: %w", loanID, ErrNotFound)
	}
	var latest []model.ComplianceResult
	for _, r := range s.results[loanID] {
		if r.ExecutionID == execID {
			latest = append(latest, r)
		}
	}
	return deepCopy(latest)
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// deepCopy round-trips through JSON; all stored types are plain data.
func deepCopy[T any](in T) (T, error) {
	var out T
	data, err := json.Marshal(in)
	if err != nil {
		return out, fmt.Errorf("deep copy marshal: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("deep copy unmarshal: %w", err)
	}
	return out, nil
}
