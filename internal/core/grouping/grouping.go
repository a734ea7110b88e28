package grouping

import (
	"sort"

	"github.com/loanworks/granite/internal/core/fingerprint"
	"github.com/loanworks/granite/internal/core/model"
)

// Grouper clusters documents into instrument groups, seeded by perceptual
// similarity and oracle grouping hints. When the two disagree the oracle hint
// wins (it sees semantic content the fingerprint cannot), and the
// disagreement is recorded for audit.
type Grouper struct {
	SimilarityThreshold float64
}

func NewGrouper(threshold float64) *Grouper {
	return &Grouper{SimilarityThreshold: threshold}
}

type Result struct {
	Groups    []model.InstrumentGroup
	Conflicts []model.GroupingConflict
}

// Group clusters the given documents. Input must already exclude exact
// duplicates, unfingerprintable documents, and needs_review documents.
// Deterministic: identical inputs produce identical membership, with no
// randomized tie-breaks anywhere.
//
// Similarity edges form fingerprint clusters first; oracle hints then
// partition each cluster. Hint precedence holds transitively: a cluster is
// never allowed to carry two distinct hints, even when a hintless document
// bridges them, and documents sharing a hint always group together no matter
// how dissimilar their fingerprints are.
func (g *Grouper) Group(loanID string, docs []model.Document) Result {
	sorted := make([]model.Document, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byID := make(map[string]model.Document, len(sorted))
	hintOf := make(map[string]string)
	for _, d := range sorted {
		byID[d.ID] = d
		if d.GroupingHint != "" {
			hintOf[d.ID] = d.GroupingHint
		}
	}

	// Phase 1: fingerprint clusters from similarity edges alone.
	uf := newUnionFind()
	for _, d := range sorted {
		uf.add(d.ID)
	}
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if fingerprint.Similarity(sorted[i], sorted[j]) >= g.SimilarityThreshold {
				uf.union(sorted[i].ID, sorted[j].ID)
			}
		}
	}

	clusters := make(map[string][]string)
	for _, d := range sorted {
		root := uf.find(d.ID)
		clusters[root] = append(clusters[root], d.ID)
	}
	roots := make([]string, 0, len(clusters))
	for r := range clusters {
		roots = append(roots, r)
	}
	sort.Strings(roots)

	// Phase 2: assign each document its group label. Hinted documents keep
	// their hint; a hintless document in a hinted cluster follows its most
	// similar hinted neighbor (ties broken by smaller neighbor id); a cluster
	// with no hints at all keys off its smallest member. A cluster whose
	// members carry more than one hint splits, and every member separated
	// from the smallest member's partition is recorded as a conflict.
	labelOf := make(map[string]string, len(sorted))
	var conflicts []model.GroupingConflict

	for _, root := range roots {
		members := clusters[root]
		sort.Strings(members)
		clusterKey := "doc:" + members[0]

		hinted := false
		distinctHints := make(map[string]bool)
		for _, id := range members {
			if h := hintOf[id]; h != "" {
				hinted = true
				distinctHints[h] = true
			}
		}

		if !hinted {
			for _, id := range members {
				labelOf[id] = clusterKey
			}
			continue
		}

		for _, id := range members {
			h := hintOf[id]
			if h == "" {
				h = nearestHint(id, members, hintOf, byID)
			}
			labelOf[id] = "hint:" + h
		}

		if len(distinctHints) > 1 {
			ref := labelOf[members[0]]
			for _, id := range members[1:] {
				if labelOf[id] != ref {
					conflicts = append(conflicts, model.GroupingConflict{
						DocumentID:       id,
						FingerprintGroup: clusterKey,
						OracleGroup:      labelOf[id][len("hint:"):],
					})
				}
			}
		}
	}

	// Phase 3: materialize groups. Hint labels merge across fingerprint
	// clusters, so drafts sharing a hint always land together.
	byLabel := make(map[string][]string)
	for _, d := range sorted {
		label := labelOf[d.ID]
		byLabel[label] = append(byLabel[label], d.ID)
	}
	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	// Group order follows the smallest member id, not the label text.
	sort.Slice(labels, func(i, j int) bool {
		return byLabel[labels[i]][0] < byLabel[labels[j]][0]
	})

	var groups []model.InstrumentGroup
	for _, label := range labels {
		members := byLabel[label]
		groups = append(groups, model.InstrumentGroup{
			Key:         label,
			LoanID:      loanID,
			TypeLabel:   dominantType(members, byID),
			DocumentIDs: members,
			Status:      model.GroupUnresolved,
		})
	}

	return Result{Groups: groups, Conflicts: conflicts}
}

// nearestHint picks the hint of the most similar hinted cluster member,
// breaking similarity ties on the smaller neighbor id.
func nearestHint(id string, members []string, hintOf map[string]string, byID map[string]model.Document) string {
	best := ""
	bestSim := -1.0
	for _, other := range members {
		h := hintOf[other]
		if other == id || h == "" {
			continue
		}
		sim := fingerprint.Similarity(byID[id], byID[other])
		if sim > bestSim {
			bestSim = sim
			best = h
		}
	}
	return best
}

// dominantType picks the most common oracle type label among members,
// breaking count ties lexicographically.
func dominantType(memberIDs []string, byID map[string]model.Document) string {
	counts := make(map[string]int)
	for _, id := range memberIDs {
		if t := byID[id].TypeLabel; t != "" {
			counts[t]++
		}
	}
	best := ""
	bestCount := 0
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		if counts[l] > bestCount {
			best = l
			bestCount = counts[l]
		}
	}
	return best
}

type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) add(id string) {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
	}
}

func (u *unionFind) find(id string) string {
	for u.parent[id] != id {
		u.parent[id] = u.parent[u.parent[id]]
		id = u.parent[id]
	}
	return id
}

// union attaches the lexicographically larger root under the smaller one,
// keeping root selection deterministic.
func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
