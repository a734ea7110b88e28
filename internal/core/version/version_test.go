package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loanworks/granite/internal/core/model"
)

func defaultResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver([]string{"finality", "signature", "date", "page_count", "document_id"})
	require.NoError(t, err)
	return r
}

func group(ids ...string) model.InstrumentGroup {
	return model.InstrumentGroup{Key: "g-1", LoanID: "loan-1", DocumentIDs: ids, Status: model.GroupUnresolved}
}

func index(docs ...model.Document) map[string]model.Document {
	m := make(map[string]model.Document)
	for _, d := range docs {
		m[d.ID] = d
	}
	return m
}

func TestFinalityOrdering(t *testing.T) {
	r := defaultResolver(t)

	byID := index(
		model.Document{ID: "doc-a", FinalityIndicator: "initial"},
		model.Document{ID: "doc-b", FinalityIndicator: "preliminary"},
		model.Document{ID: "doc-c", FinalityIndicator: "final"},
	)

	resolved, records := r.Resolve(group("doc-a", "doc-b", "doc-c"), byID)

	assert.Equal(t, model.GroupResolved, resolved.Status)
	require.Len(t, records, 3)

	assert.Equal(t, "doc-c", records[0].DocumentID)
	assert.Equal(t, 0, records[0].Rank)
	assert.Equal(t, model.RoleMaster, records[0].Role)
	assert.Equal(t, "finality", records[0].Reason)

	assert.Equal(t, "doc-b", records[1].DocumentID)
	assert.Equal(t, 1, records[1].Rank)
	assert.Equal(t, model.RoleSuperseded, records[1].Role)

	assert.Equal(t, "doc-a", records[2].DocumentID)
	assert.Equal(t, 2, records[2].Rank)
	assert.Equal(t, model.RoleSuperseded, records[2].Role)
}

func TestSignatureBeatsDate(t *testing.T) {
	r := defaultResolver(t)
	signed := true
	unsigned := false
	older := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	byID := index(
		model.Document{ID: "doc-a", HasSignature: &signed, DocumentDate: &older},
		model.Document{ID: "doc-b", HasSignature: &unsigned, DocumentDate: &newer},
	)

	_, records := r.Resolve(group("doc-a", "doc-b"), byID)
	assert.Equal(t, "doc-a", records[0].DocumentID)
	assert.Equal(t, "signature", records[0].Reason)
}

func TestDateThenPageCount(t *testing.T) {
	r := defaultResolver(t)
	d := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

	byID := index(
		model.Document{ID: "doc-a", DocumentDate: &d, PageCount: 3},
		model.Document{ID: "doc-b", DocumentDate: &d, PageCount: 5},
	)

	_, records := r.Resolve(group("doc-a", "doc-b"), byID)
	assert.Equal(t, "doc-b", records[0].DocumentID)
	assert.Equal(t, "page_count", records[0].Reason)
}

func TestIDTiebreakIsStable(t *testing.T) {
	r := defaultResolver(t)

	// Comparator-equal on every criterion: the id tiebreak is arbitrary
	// but stable and recorded as the deciding criterion for audit.
	byID := index(
		model.Document{ID: "doc-b", PageCount: 2},
		model.Document{ID: "doc-a", PageCount: 2},
	)

	_, records := r.Resolve(group("doc-b", "doc-a"), byID)
	assert.Equal(t, "doc-a", records[0].DocumentID)
	assert.Equal(t, "document_id", records[0].Reason)
}

func TestSingletonIsUnique(t *testing.T) {
	r := defaultResolver(t)
	byID := index(model.Document{ID: "doc-a"})

	resolved, records := r.Resolve(group("doc-a"), byID)
	assert.Equal(t, model.GroupResolved, resolved.Status)
	require.Len(t, records, 1)
	assert.Equal(t, model.RoleUnique, records[0].Role)
	assert.Equal(t, 0, records[0].Rank)
}

func TestExactlyOneMaster(t *testing.T) {
	r := defaultResolver(t)

	byID := index(
		model.Document{ID: "doc-1", FinalityIndicator: "final"},
		model.Document{ID: "doc-2", FinalityIndicator: "final"},
		model.Document{ID: "doc-3", FinalityIndicator: "preliminary"},
		model.Document{ID: "doc-4"},
	)

	_, records := r.Resolve(group("doc-1", "doc-2", "doc-3", "doc-4"), byID)

	masters := 0
	ranks := make(map[int]bool)
	for _, rec := range records {
		if rec.Role == model.RoleMaster {
			masters++
			assert.Equal(t, 0, rec.Rank)
		}
		assert.False(t, ranks[rec.Rank], "rank %d assigned twice", rec.Rank)
		ranks[rec.Rank] = true
	}
	assert.Equal(t, 1, masters)
}

func TestResolutionDeterministicAcrossReruns(t *testing.T) {
	r := defaultResolver(t)
	signed := true
	d := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)

	byID := index(
		model.Document{ID: "doc-1", FinalityIndicator: "preliminary", PageCount: 4},
		model.Document{ID: "doc-2", HasSignature: &signed, DocumentDate: &d},
		model.Document{ID: "doc-3", FinalityIndicator: "preliminary", PageCount: 4},
	)

	_, first := r.Resolve(group("doc-1", "doc-2", "doc-3"), byID)
	_, second := r.Resolve(group("doc-3", "doc-2", "doc-1"), byID)
	assert.Equal(t, first, second)
}

func TestConfigurablePrecedence(t *testing.T) {
	// Date ranked above finality for instrument types where recency is
	// authoritative.
	r, err := NewResolver([]string{"date", "finality"})
	require.NoError(t, err)

	older := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)

	byID := index(
		model.Document{ID: "doc-a", FinalityIndicator: "final", DocumentDate: &older},
		model.Document{ID: "doc-b", FinalityIndicator: "initial", DocumentDate: &newer},
	)

	_, records := r.Resolve(group("doc-a", "doc-b"), byID)
	assert.Equal(t, "doc-b", records[0].DocumentID)
}

func TestInvalidPrecedenceRejected(t *testing.T) {
	_, err := NewResolver([]string{"finality", "vibes"})
	assert.Error(t, err)

	_, err = NewResolver([]string{"finality", "finality"})
	assert.Error(t, err)
}
