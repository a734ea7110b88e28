package core

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/loanworks/granite/internal/config"
	"github.com/loanworks/granite/internal/core/attrs"
	"github.com/loanworks/granite/internal/core/fingerprint"
	"github.com/loanworks/granite/internal/core/grouping"
	"github.com/loanworks/granite/internal/core/model"
	"github.com/loanworks/granite/internal/core/provenance"
	"github.com/loanworks/granite/internal/core/rules"
	"github.com/loanworks/granite/internal/core/version"
	"github.com/loanworks/granite/internal/oracle"
	"github.com/loanworks/granite/internal/store"
)

// Engine runs the reconciliation pipeline per loan: parallel fingerprinting
// and classification up to a barrier, then the deterministic single-threaded
// stages (dedupe, grouping, version resolution, attribute reconciliation,
// provenance), then rule-parallel compliance. There is no shared mutable
// state across loans; the rule catalog is read-only and shared.
type Engine struct {
	Store  store.Store
	Oracle oracle.Oracle
	Config *config.Config

	grouper    *grouping.Grouper
	resolver   *version.Resolver
	reconciler *attrs.Reconciler
	builder    *provenance.Builder
	rules      *rules.Engine
}

func NewEngine(st store.Store, orc oracle.Oracle, cfg *config.Config, catalog *rules.Catalog) (*Engine, error) {
	resolver, err := version.NewResolver(cfg.Version.Precedence)
	if err != nil {
		return nil, err
	}

	specs := make([]attrs.Spec, 0, len(cfg.Attributes))
	for _, a := range cfg.Attributes {
		specs = append(specs, attrs.Spec{Name: a.Name, Unit: a.Unit, Chain: a.Chain})
	}

	return &Engine{
		Store:      st,
		Oracle:     orc,
		Config:     cfg,
		grouper:    grouping.NewGrouper(cfg.Grouping.SimilarityThreshold),
		resolver:   resolver,
		reconciler: attrs.NewReconciler(specs),
		builder: provenance.NewBuilder(provenance.Tolerance{
			AbsoluteEpsilon: cfg.Tolerance.AbsoluteEpsilon,
			PercentEpsilon:  cfg.Tolerance.PercentEpsilon,
		}),
		rules: rules.NewEngine(catalog),
	}, nil
}

// RunReconciliation executes stages 1-5 for one loan and persists the run.
// Idempotent: identical inputs produce an identical run (modulo execution id
// and timestamps), and re-running replaces the previous derived state.
func (e *Engine) RunReconciliation(ctx context.Context, loanID string) (*model.ReconciliationRun, error) {
	docs, err := e.Store.ListDocuments(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("load documents for loan %s: %w", loanID, err)
	}

	run := &model.ReconciliationRun{
		LoanID:      loanID,
		ExecutionID: uuid.New().String(),
		StartedAt:   time.Now().UTC(),
	}

	// Stage 1: fingerprint + classify, bounded-parallel across documents.
	// The barrier below guarantees grouping sees the complete, stable
	// classification set. Per-document failure degrades the document, never
	// the batch.
	e.annotateAll(ctx, docs)

	// Deterministic order for everything downstream.
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	markDuplicates(docs)

	var eligible []model.Document
	for _, d := range docs {
		switch d.Status {
		case model.DocStatusOK:
			eligible = append(eligible, d)
		case model.DocStatusDuplicate:
			run.DuplicateIDs = append(run.DuplicateIDs, d.ID)
		case model.DocStatusNeedsReview, model.DocStatusUnfingerprintable:
			run.NeedsReviewIDs = append(run.NeedsReviewIDs, d.ID)
		}
	}

	byID := make(map[string]model.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	// Stage 2: instrument grouping.
	grouped := e.grouper.Group(loanID, eligible)
	run.Conflicts = grouped.Conflicts
	for _, c := range grouped.Conflicts {
		log.Printf("grouping_conflict loan=%s document=%s fingerprint_group=%s oracle_group=%s",
			loanID, c.DocumentID, c.FingerprintGroup, c.OracleGroup)
	}

	// Stage 3: version resolution, full recompute per group.
	for _, g := range grouped.Groups {
		resolved, records := e.resolver.Resolve(g, byID)
		run.Groups = append(run.Groups, resolved)
		run.Versions = append(run.Versions, records...)
	}

	// Stage 4: attribute reconciliation over resolved masters.
	run.Attributes = e.reconciler.Reconcile(run.Groups, run.Versions, byID)

	// Stage 5: provenance DAGs. A failed derivation is fatal only to its
	// own attribute.
	masters := attrs.MastersByType(run.Groups, run.Versions, byID)
	for _, def := range e.Config.Derivations {
		authoritative, _ := run.AttributeByName(def.Attribute)
		trace := e.builder.Build(def, masters, authoritative)
		if trace.Status == model.VerificationError {
			log.Printf("verification_error loan=%s attribute=%s: %s", loanID, def.Attribute, trace.Error)
		}
		run.Traces = append(run.Traces, trace)
	}

	run.Documents = docs
	run.FinishedAt = time.Now().UTC()

	if err := e.Store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("save run for loan %s: %w", loanID, err)
	}
	return run, nil
}

// RunCompliance evaluates the catalog against the latest reconciled state
// and appends a new, never-mutated result set.
func (e *Engine) RunCompliance(ctx context.Context, loanID string) ([]model.ComplianceResult, error) {
	loan, err := e.Store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	run, err := e.Store.LatestRun(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("no reconciliation run for loan %s: %w", loanID, err)
	}

	executionID := uuid.New().String()
	results := e.rules.EvaluateAll(ctx, loan, run, executionID, time.Now().UTC())

	if err := e.Store.AppendComplianceResults(ctx, loanID, results); err != nil {
		return nil, fmt.Errorf("append compliance results for loan %s: %w", loanID, err)
	}
	return results, nil
}

// annotateAll fingerprints and classifies every document on a bounded
// worker pool sized to the oracle's rate limits, then waits for all of them.
func (e *Engine) annotateAll(ctx context.Context, docs []model.Document) {
	sem := semaphore.NewWeighted(int64(e.Config.Concurrency.Classify))

	for i := range docs {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context canceled; everything not yet annotated degrades.
			for j := i; j < len(docs); j++ {
				docs[j].Status = model.DocStatusNeedsReview
				docs[j].StatusNote = "classification canceled"
			}
			break
		}
		go func(d *model.Document) {
			defer sem.Release(1)
			e.annotate(ctx, d)
		}(&docs[i])
	}

	// Barrier: grouping needs the complete classification set.
	_ = sem.Acquire(context.Background(), int64(e.Config.Concurrency.Classify))
	sem.Release(int64(e.Config.Concurrency.Classify))
}

func (e *Engine) annotate(ctx context.Context, d *model.Document) {
	d.Status = model.DocStatusOK
	d.StatusNote = ""

	exact, perceptual, err := fingerprint.Fingerprint(*d)
	if err != nil {
		d.Status = model.DocStatusUnfingerprintable
		d.StatusNote = err.Error()
		log.Printf("fingerprint failed for document %s: %v", d.ID, err)
		return
	}
	d.ExactHash = exact
	d.PerceptualHash = perceptual

	judgment, err := e.Oracle.Classify(ctx, *d)
	if err != nil {
		// Retries are exhausted inside the oracle wrapper; the document is
		// excluded from grouping and versioning for this run.
		d.Status = model.DocStatusNeedsReview
		d.StatusNote = err.Error()
		log.Printf("classification failed for document %s: %v", d.ID, err)
		return
	}

	d.TypeLabel = judgment.TypeLabel
	d.GroupingHint = judgment.GroupingHint
	d.FinalityIndicator = judgment.FinalityIndicator
	d.HasSignature = judgment.HasSignature
	d.Fields = judgment.Fields
	d.FieldPages = judgment.FieldPages
	if date, ok := judgment.DocumentDate.AsDate(); ok {
		d.DocumentDate = &date
	}
}

// markDuplicates flags exact-hash duplicates, keeping the smallest id as
// the retained copy. Duplicates stay in the run for audit but are excluded
// from grouping. Input must be sorted by id.
func markDuplicates(docs []model.Document) {
	keeper := make(map[string]string)
	for i := range docs {
		d := &docs[i]
		if d.Status != model.DocStatusOK || d.ExactHash == "" {
			continue
		}
		if kept, ok := keeper[d.ExactHash]; ok {
			d.Status = model.DocStatusDuplicate
			d.DuplicateOf = kept
		} else {
			keeper[d.ExactHash] = d.ID
		}
	}
}
