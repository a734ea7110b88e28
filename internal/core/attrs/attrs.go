package attrs

import (
	"github.com/loanworks/granite/internal/core/model"
)

// Reconciler selects attribute values by walking each attribute's ordered
// fallback chain of instrument types. Only master (or unique) documents of
// resolved groups are consulted; the first tier with a non-missing value
// wins and is recorded so fallback-sourced values stay distinguishable from
// primary-sourced ones.
type Reconciler struct {
	Specs []Spec
}

type Spec struct {
	Name  string
	Unit  string
	Chain []string
}

func NewReconciler(specs []Spec) *Reconciler {
	return &Reconciler{Specs: specs}
}

// Reconcile resolves every configured attribute. An attribute no tier can
// source is returned unsourced with a missing value, never silently
// defaulted; dependent calculations and rules treat it as missing, not zero.
func (r *Reconciler) Reconcile(groups []model.InstrumentGroup, versions []model.VersionRecord, byID map[string]model.Document) []model.Attribute {
	masters := MastersByType(groups, versions, byID)

	out := make([]model.Attribute, 0, len(r.Specs))
	for _, spec := range r.Specs {
		out = append(out, r.reconcileOne(spec, masters))
	}
	return out
}

func (r *Reconciler) reconcileOne(spec Spec, masters map[string]model.Document) model.Attribute {
	for tier, docType := range spec.Chain {
		doc, ok := masters[docType]
		if !ok {
			continue
		}
		value, ok := doc.Fields[spec.Name]
		if !ok || value.IsMissing() {
			continue
		}
		page := doc.FieldPages[spec.Name]
		if page <= 0 {
			page = 1
		}
		return model.Attribute{
			Name:             spec.Name,
			Value:            value,
			Unit:             spec.Unit,
			SourceDocumentID: doc.ID,
			SourcePage:       page,
			SourceTier:       tier,
			SourceType:       docType,
		}
	}

	return model.Attribute{
		Name:      spec.Name,
		Unit:      spec.Unit,
		Value:     model.Missing(),
		Unsourced: true,
	}
}

// MastersByType maps instrument type label to its authoritative document.
// Unique documents of singleton groups count as masters for sourcing. The
// provenance builder uses the same mapping to resolve source steps.
func MastersByType(groups []model.InstrumentGroup, versions []model.VersionRecord, byID map[string]model.Document) map[string]model.Document {
	masterOfGroup := make(map[string]string)
	for _, v := range versions {
		if v.Role == model.RoleMaster || v.Role == model.RoleUnique {
			masterOfGroup[v.GroupKey] = v.DocumentID
		}
	}

	masters := make(map[string]model.Document)
	for _, g := range groups {
		if g.Status != model.GroupResolved || g.TypeLabel == "" {
			continue
		}
		id, ok := masterOfGroup[g.Key]
		if !ok {
			continue
		}
		doc, ok := byID[id]
		if !ok {
			continue
		}
		// First resolved group of a type wins; groups arrive in
		// deterministic key order.
		if _, exists := masters[g.TypeLabel]; !exists {
			masters[g.TypeLabel] = doc
		}
	}
	return masters
}
