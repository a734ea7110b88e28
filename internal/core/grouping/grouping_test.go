package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loanworks/granite/internal/core/model"
)

// Perceptual hashes are crafted directly: similarity is 1 - hamming/64, so
// identical hashes score 1.0 and a hash differing in many bits scores low.
func doc(id, typeLabel, hint string, phash uint64) model.Document {
	return model.Document{
		ID:             id,
		ExactHash:      "hash-" + id,
		PerceptualHash: phash,
		TypeLabel:      typeLabel,
		GroupingHint:   hint,
		Status:         model.DocStatusOK,
	}
}

func TestGroupBySimilarity(t *testing.T) {
	g := NewGrouper(0.85)

	docs := []model.Document{
		doc("doc-1", "application_form", "", 0xFFFF000000000000),
		doc("doc-2", "application_form", "", 0xFFFF000000000001), // 1 bit off
		doc("doc-3", "appraisal", "", 0x00000000FFFFFFFF),
	}

	res := g.Group("loan-1", docs)
	require.Len(t, res.Groups, 2)
	assert.Equal(t, []string{"doc-1", "doc-2"}, res.Groups[0].DocumentIDs)
	assert.Equal(t, []string{"doc-3"}, res.Groups[1].DocumentIDs)
	assert.Empty(t, res.Conflicts)
}

func TestGroupByOracleHint(t *testing.T) {
	g := NewGrouper(0.85)

	// Dissimilar fingerprints, same oracle hint: hint clusters them.
	docs := []model.Document{
		doc("doc-1", "application_form", "urla-2024", 0xFFFF000000000000),
		doc("doc-2", "application_form", "urla-2024", 0x00000000FFFFFFFF),
	}

	res := g.Group("loan-1", docs)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "hint:urla-2024", res.Groups[0].Key)
	assert.Equal(t, []string{"doc-1", "doc-2"}, res.Groups[0].DocumentIDs)
}

func TestOracleHintWinsOverFingerprint(t *testing.T) {
	g := NewGrouper(0.85)

	// Near-identical fingerprints but the oracle asserts different
	// instruments. Oracle wins; conflict recorded for audit.
	docs := []model.Document{
		doc("doc-1", "transmittal_summary", "transmittal-a", 0xFFFF000000000000),
		doc("doc-2", "application_form", "urla-b", 0xFFFF000000000000),
	}

	res := g.Group("loan-1", docs)
	require.Len(t, res.Groups, 2)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "doc-2", res.Conflicts[0].DocumentID)
	assert.Equal(t, "doc:doc-1", res.Conflicts[0].FingerprintGroup)
	assert.Equal(t, "urla-b", res.Conflicts[0].OracleGroup)
}

func TestHintlessBridgeDoesNotMergeHintedGroups(t *testing.T) {
	g := NewGrouper(0.85)

	// doc-3 is similar to both hinted documents and would transitively chain
	// them into one cluster; the differing hints must still keep them apart.
	docs := []model.Document{
		doc("doc-1", "application_form", "form-1", 0xFFFF000000000000),
		doc("doc-2", "application_form", "form-2", 0xFFFF000000000000),
		doc("doc-3", "application_form", "", 0xFFFF000000000000),
	}

	res := g.Group("loan-1", docs)
	require.Len(t, res.Groups, 2)

	assert.Equal(t, "hint:form-1", res.Groups[0].Key)
	assert.Equal(t, []string{"doc-1", "doc-3"}, res.Groups[0].DocumentIDs)
	assert.Equal(t, "hint:form-2", res.Groups[1].Key)
	assert.Equal(t, []string{"doc-2"}, res.Groups[1].DocumentIDs)

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "doc-2", res.Conflicts[0].DocumentID)
	assert.Equal(t, "doc:doc-1", res.Conflicts[0].FingerprintGroup)
	assert.Equal(t, "form-2", res.Conflicts[0].OracleGroup)
}

func TestHintlessFollowsMostSimilarHintedNeighbor(t *testing.T) {
	g := NewGrouper(0.85)

	// doc-3's fingerprint is identical to doc-2's and one bit away from
	// doc-1's, so it lands in doc-2's partition.
	docs := []model.Document{
		doc("doc-1", "application_form", "form-1", 0xFFFF000000000000),
		doc("doc-2", "application_form", "form-2", 0xFFFF000000000001),
		doc("doc-3", "application_form", "", 0xFFFF000000000001),
	}

	res := g.Group("loan-1", docs)
	require.Len(t, res.Groups, 2)
	assert.Equal(t, []string{"doc-1"}, res.Groups[0].DocumentIDs)
	assert.Equal(t, []string{"doc-2", "doc-3"}, res.Groups[1].DocumentIDs)
}

func TestSingletonGroups(t *testing.T) {
	g := NewGrouper(0.85)
	res := g.Group("loan-1", []model.Document{doc("doc-1", "paystub", "", 0x1234)})

	require.Len(t, res.Groups, 1)
	assert.Equal(t, "doc:doc-1", res.Groups[0].Key)
	assert.Equal(t, model.GroupUnresolved, res.Groups[0].Status)
}

func TestGroupingDeterministic(t *testing.T) {
	g := NewGrouper(0.85)

	docs := []model.Document{
		doc("doc-3", "appraisal", "", 0x00000000FFFFFFFF),
		doc("doc-1", "application_form", "urla", 0xFFFF000000000000),
		doc("doc-2", "application_form", "urla", 0xFFFF000000000003),
	}
	reversed := []model.Document{docs[2], docs[1], docs[0]}

	first := g.Group("loan-1", docs)
	second := g.Group("loan-1", reversed)

	require.Equal(t, len(first.Groups), len(second.Groups))
	for i := range first.Groups {
		assert.Equal(t, first.Groups[i].Key, second.Groups[i].Key)
		assert.Equal(t, first.Groups[i].DocumentIDs, second.Groups[i].DocumentIDs)
	}
}

func TestDominantTypeLabel(t *testing.T) {
	g := NewGrouper(0.85)

	docs := []model.Document{
		doc("doc-1", "application_form", "urla", 0x1),
		doc("doc-2", "application_form", "urla", 0x2),
		doc("doc-3", "nonstandard_application", "urla", 0x3),
	}

	res := g.Group("loan-1", docs)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "application_form", res.Groups[0].TypeLabel)
}

func TestEmptyInput(t *testing.T) {
	g := NewGrouper(0.85)
	res := g.Group("loan-1", nil)
	assert.Empty(t, res.Groups)
	assert.Empty(t, res.Conflicts)
}
