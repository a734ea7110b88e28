package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/loanworks/granite/internal/core/model"
)

// GraphStore persists loan records as a property graph in memgraph.
// Instrument groups, version edges, and calculation-step DERIVES_FROM edges
// are materialized as graph structure; full payloads ride along as JSON so
// reads stay single queries.
type GraphStore struct {
	driver neo4j.DriverWithContext
}

func NewGraphStore(uri, username, password string) (*GraphStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}

	if err := driver.VerifyConnectivity(context.Background()); err != nil {
		return nil, err
	}

	log.Println("Connected to memgraph store")
	s := &GraphStore{driver: driver}
	s.buildIndices(context.Background())
	return s, nil
}

func (s *GraphStore) buildIndices(ctx context.Context) {
	queries := []string{
		"CREATE INDEX ON :Loan(id);",
		"CREATE INDEX ON :Document(id);",
		"CREATE INDEX ON :Document(loan_id);",
		"CREATE INDEX ON :InstrumentGroup(loan_id);",
		"CREATE INDEX ON :CalculationStep(loan_id);",
		"CREATE INDEX ON :Run(loan_id);",
		"CREATE INDEX ON :ComplianceResult(loan_id);",
	}
	for _, q := range queries {
		if _, err := s.execute(ctx, q, nil); err != nil {
			// Index may already exist.
			log.Printf("Warning: failed to create index '%s': %v", q, err)
		}
	}
}

func (s *GraphStore) execute(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return *result, nil
}

func (s *GraphStore) PutLoan(ctx context.Context, loan model.Loan) error {
	_, err := s.execute(ctx, saveLoanQuery, map[string]interface{}{
		"id":        loan.ID,
		"loan_type": loan.LoanType,
		"state":     loan.State,
	})
	return err
}

func (s *GraphStore) GetLoan(ctx context.Context, loanID string) (model.Loan, error) {
	res, err := s.execute(ctx, getLoanQuery, map[string]interface{}{"id": loanID})
	if err != nil {
		return model.Loan{}, err
	}
	if len(res.Records) == 0 {
		return model.Loan{}, fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
	}
	rec := res.Records[0]
	id, _ := rec.Get("id")
	loanType, _ := rec.Get("loan_type")
	state, _ := rec.Get("state")
	return model.Loan{
		ID:       asString(id),
		LoanType: asString(loanType),
		State:    asString(state),
	}, nil
}

func (s *GraphStore) PutDocuments(ctx context.Context, loanID string, docs []model.Document) error {
	if _, err := s.execute(ctx, deleteDocumentsQuery, map[string]interface{}{"loan_id": loanID}); err != nil {
		return err
	}
	for _, d := range docs {
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal document %s: %w", d.ID, err)
		}
		_, err = s.execute(ctx, saveDocumentQuery, map[string]interface{}{
			"id":      d.ID,
			"loan_id": loanID,
			"payload": string(payload),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *GraphStore) ListDocuments(ctx context.Context, loanID string) ([]model.Document, error) {
	res, err := s.execute(ctx, listDocumentsQuery, map[string]interface{}{"loan_id": loanID})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("documents for loan %s: %w", loanID, ErrNotFound)
	}
	docs := make([]model.Document, 0, len(res.Records))
	for _, rec := range res.Records {
		raw, _ := rec.Get("payload")
		var d model.Document
		if err := json.Unmarshal([]byte(asString(raw)), &d); err != nil {
			return nil, fmt.Errorf("unmarshal document payload: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// SaveRun replaces the previous run's derived graph wholesale and writes
// the new groups, version edges, and calculation steps.
func (s *GraphStore) SaveRun(ctx context.Context, run *model.ReconciliationRun) error {
	if _, err := s.execute(ctx, deleteDerivedQuery, map[string]interface{}{"loan_id": run.LoanID}); err != nil {
		return err
	}

	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	_, err = s.execute(ctx, saveRunQuery, map[string]interface{}{
		"loan_id":      run.LoanID,
		"execution_id": run.ExecutionID,
		"payload":      string(payload),
	})
	if err != nil {
		return err
	}

	for _, g := range run.Groups {
		_, err := s.execute(ctx, saveGroupQuery, map[string]interface{}{
			"loan_id":    run.LoanID,
			"key":        g.Key,
			"type_label": g.TypeLabel,
			"status":     string(g.Status),
		})
		if err != nil {
			return err
		}
	}

	for _, v := range run.Versions {
		_, err := s.execute(ctx, saveVersionEdgeQuery, map[string]interface{}{
			"loan_id":     run.LoanID,
			"key":         v.GroupKey,
			"document_id": v.DocumentID,
			"rank":        v.Rank,
			"role":        string(v.Role),
			"reason":      v.Reason,
		})
		if err != nil {
			return err
		}
	}

	for _, t := range run.Traces {
		for _, step := range t.Steps {
			stepPayload, err := json.Marshal(step)
			if err != nil {
				return fmt.Errorf("marshal step %s: %w", step.ID, err)
			}
			_, err = s.execute(ctx, saveStepQuery, map[string]interface{}{
				"loan_id":   run.LoanID,
				"attribute": t.AttributeName,
				"id":        step.ID,
				"payload":   string(stepPayload),
			})
			if err != nil {
				return err
			}
		}
		for _, step := range t.Steps {
			for _, parent := range step.ParentIDs {
				_, err := s.execute(ctx, saveStepParentQuery, map[string]interface{}{
					"loan_id":   run.LoanID,
					"attribute": t.AttributeName,
					"id":        step.ID,
					"parent_id": parent,
				})
				if err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (s *GraphStore) LatestRun(ctx context.Context, loanID string) (*model.ReconciliationRun, error) {
	res, err := s.execute(ctx, getRunQuery, map[string]interface{}{"loan_id": loanID})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("run for loan %s: %w", loanID, ErrNotFound)
	}
	raw, _ := res.Records[0].Get("payload")
	var run model.ReconciliationRun
	if err := json.Unmarshal([]byte(asString(raw)), &run); err != nil {
		return nil, fmt.Errorf("unmarshal run payload: %w", err)
	}
	return &run, nil
}

func (s *GraphStore) AppendComplianceResults(ctx context.Context, loanID string, results []model.ComplianceResult) error {
	if len(results) == 0 {
		return nil
	}
	for _, r := range results {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal result %s: %w", r.RuleCode, err)
		}
		_, err = s.execute(ctx, appendResultQuery, map[string]interface{}{
			"loan_id":      loanID,
			"rule_code":    r.RuleCode,
			"execution_id": r.ExecutionID,
			"payload":      string(payload),
		})
		if err != nil {
			return err
		}
	}
	_, err := s.execute(ctx, markLatestExecutionQuery, map[string]interface{}{
		"loan_id":      loanID,
		"execution_id": results[0].ExecutionID,
	})
	return err
}

func (s *GraphStore) LatestComplianceResults(ctx context.Context, loanID string) ([]model.ComplianceResult, error) {
	res, err := s.execute(ctx, latestExecutionQuery, map[string]interface{}{"loan_id": loanID})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("compliance results for loan %s: %w", loanID, ErrNotFound)
	}
	raw, _ := res.Records[0].Get("execution_id")
	executionID := asString(raw)

	res, err = s.execute(ctx, resultsByExecutionQuery, map[string]interface{}{
		"loan_id":      loanID,
		"execution_id": executionID,
	})
	if err != nil {
		return nil, err
	}
	results := make([]model.ComplianceResult, 0, len(res.Records))
	for _, rec := range res.Records {
		raw, _ := rec.Get("payload")
		var r model.ComplianceResult
		if err := json.Unmarshal([]byte(asString(raw)), &r); err != nil {
			return nil, fmt.Errorf("unmarshal result payload: %w", err)
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *GraphStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
