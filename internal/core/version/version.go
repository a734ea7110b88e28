package version

import (
	"fmt"
	"sort"

	"github.com/loanworks/granite/internal/core/model"
)

// finalityRank orders the oracle's finality indicator: final beats
// preliminary beats initial beats unknown.
var finalityRank = map[string]int{
	"final":       3,
	"preliminary": 2,
	"initial":     1,
	"":            0,
}

var validCriteria = map[string]bool{
	"finality":    true,
	"signature":   true,
	"date":        true,
	"page_count":  true,
	"document_id": true,
}

// Resolver computes a strict total order of drafts within a group and marks
// exactly one master. The comparator precedence is configurable; the
// document id tiebreak is always last so the order is total.
type Resolver struct {
	precedence []string
}

func NewResolver(precedence []string) (*Resolver, error) {
	seen := make(map[string]bool)
	var criteria []string
	for _, c := range precedence {
		if !validCriteria[c] {
			return nil, fmt.Errorf("unknown version precedence criterion: %s", c)
		}
		if seen[c] {
			return nil, fmt.Errorf("duplicate version precedence criterion: %s", c)
		}
		seen[c] = true
		criteria = append(criteria, c)
	}
	if !seen["document_id"] {
		criteria = append(criteria, "document_id")
	}
	return &Resolver{precedence: criteria}, nil
}

// Resolve orders the group's documents and assigns roles. Re-resolution
// always recomputes the full order from scratch; nothing is incremental.
// The returned group copy is marked resolved.
func (r *Resolver) Resolve(group model.InstrumentGroup, byID map[string]model.Document) (model.InstrumentGroup, []model.VersionRecord) {
	docs := make([]model.Document, 0, len(group.DocumentIDs))
	for _, id := range group.DocumentIDs {
		if d, ok := byID[id]; ok {
			docs = append(docs, d)
		}
	}

	group.Status = model.GroupResolved

	if len(docs) == 0 {
		return group, nil
	}

	if len(docs) == 1 {
		return group, []model.VersionRecord{{
			DocumentID: docs[0].ID,
			GroupKey:   group.Key,
			Rank:       0,
			Role:       model.RoleUnique,
		}}
	}

	// deciders[i] records which criterion separated rank i from rank i+1,
	// for audit output.
	sort.SliceStable(docs, func(i, j int) bool {
		cmp, _ := r.compare(docs[i], docs[j])
		return cmp > 0
	})

	records := make([]model.VersionRecord, len(docs))
	for i, d := range docs {
		role := model.RoleSuperseded
		if i == 0 {
			role = model.RoleMaster
		}
		reason := ""
		if i+1 < len(docs) {
			_, reason = r.compare(d, docs[i+1])
		}
		records[i] = model.VersionRecord{
			DocumentID: d.ID,
			GroupKey:   group.Key,
			Rank:       i,
			Role:       role,
			Reason:     reason,
		}
	}
	return group, records
}

// compare returns >0 if a outranks b, <0 if b outranks a, following the
// configured precedence. The second return names the deciding criterion.
// The id tiebreak guarantees a nonzero result for distinct documents; it is
// arbitrary-but-stable and audit output labels it as such.
func (r *Resolver) compare(a, b model.Document) (int, string) {
	for _, criterion := range r.precedence {
		switch criterion {
		case "finality":
			if d := finalityRank[a.FinalityIndicator] - finalityRank[b.FinalityIndicator]; d != 0 {
				return d, "finality"
			}
		case "signature":
			if d := signatureRank(a) - signatureRank(b); d != 0 {
				return d, "signature"
			}
		case "date":
			ad, bd := a.DocumentDate, b.DocumentDate
			switch {
			case ad != nil && bd != nil:
				if ad.After(*bd) {
					return 1, "date"
				}
				if bd.After(*ad) {
					return -1, "date"
				}
			case ad != nil:
				return 1, "date"
			case bd != nil:
				return -1, "date"
			}
		case "page_count":
			if d := a.PageCount - b.PageCount; d != 0 {
				return d, "page_count"
			}
		case "document_id":
			if a.ID < b.ID {
				return 1, "document_id"
			}
			if a.ID > b.ID {
				return -1, "document_id"
			}
		}
	}
	return 0, ""
}

func signatureRank(d model.Document) int {
	if d.HasSignature != nil && *d.HasSignature {
		return 1
	}
	return 0
}
