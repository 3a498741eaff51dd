// Package review identifies versioned values awaiting human attention.
package review

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pim-core/internal/store"
)

// PendingAttribute is one attribute of an entity whose approved layer does
// not reflect its display value.
type PendingAttribute struct {
	AttributeID  string `json:"attribute_id"`
	ValueDisplay string `json:"value_display"`
	HasOverride  bool   `json:"has_override"`
}

// PendingEntity groups an entity's pending attributes. Entities with zero
// pending attributes are omitted entirely.
type PendingEntity struct {
	EntityID   string             `json:"entity_id"`
	Attributes []PendingAttribute `json:"attributes"`
}

// Resolver is a read-only query over the versioned value store.
type Resolver struct {
	repo store.Store
}

// NewResolver creates a review queue resolver.
func NewResolver(repo store.Store) *Resolver {
	return &Resolver{repo: repo}
}

// GetPendingApprovals returns all pending records grouped by entity, ordered
// by entity id and attribute id for deterministic output. Pass an empty
// entityType to scan every entity type.
func (r *Resolver) GetPendingApprovals(ctx context.Context, entityType string) ([]PendingEntity, error) {
	values, err := r.repo.ListValues(ctx, entityType)
	if err != nil {
		return nil, eris.Wrap(err, "review: list values")
	}

	byEntity := make(map[string][]PendingAttribute)
	for i := range values {
		v := &values[i]
		if !v.Pending() {
			continue
		}
		display, hasOverride := v.Display()
		byEntity[v.EntityID] = append(byEntity[v.EntityID], PendingAttribute{
			AttributeID:  v.AttributeID,
			ValueDisplay: display,
			HasOverride:  hasOverride,
		})
	}

	out := make([]PendingEntity, 0, len(byEntity))
	for entityID, attrs := range byEntity {
		sort.Slice(attrs, func(i, j int) bool { return attrs[i].AttributeID < attrs[j].AttributeID })
		out = append(out, PendingEntity{EntityID: entityID, Attributes: attrs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

// CountPendingApprovals returns the total number of pending attribute records
// across all entities, not the number of entities.
func (r *Resolver) CountPendingApprovals(ctx context.Context, entityType string) (int, error) {
	values, err := r.repo.ListValues(ctx, entityType)
	if err != nil {
		return 0, eris.Wrap(err, "review: list values")
	}

	count := 0
	for i := range values {
		if values[i].Pending() {
			count++
		}
	}
	return count, nil
}
