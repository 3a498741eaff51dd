// Package versioned implements the four-layer value lifecycle: every write
// lands in the current layer, the approval workflow promotes values into the
// approved layer, and manual overrides shadow current without replacing it.
package versioned

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pim-core/internal/model"
	"github.com/sells-group/pim-core/internal/store"
)

// Meta carries the optional metadata merged into a record on upsert. Nil
// fields are left untouched.
type Meta struct {
	Confidence      *float64
	Justification   *string
	PipelineVersion *int
	InputHash       *string
}

// Store applies the value lifecycle rules on top of the persistence layer.
// The global confidence threshold is injected from config; attributes may
// override it individually.
type Store struct {
	repo      store.Store
	threshold float64
}

// New creates a versioned value store with the given global auto-approval
// threshold.
func New(repo store.Store, confidenceThreshold float64) *Store {
	return &Store{repo: repo, threshold: confidenceThreshold}
}

// Upsert writes a new current value for the pair, creating the record when
// absent, and applies the write-time auto-approval rule for the attribute's
// review policy. A write never clears a previously approved value.
func (s *Store) Upsert(ctx context.Context, entityID, attributeID, value string, meta Meta) (*model.VersionedValue, error) {
	attr, err := s.repo.GetAttribute(ctx, attributeID)
	if err != nil {
		return nil, err
	}

	return s.repo.MutateValue(ctx, entityID, attributeID, true, func(v *model.VersionedValue) error {
		v.Current = &value
		if meta.Confidence != nil {
			v.Confidence = meta.Confidence
		}
		if meta.Justification != nil {
			v.Justification = meta.Justification
		}
		if meta.PipelineVersion != nil {
			v.PipelineVersion = meta.PipelineVersion
		}
		if meta.InputHash != nil {
			v.InputHash = meta.InputHash
		}

		switch attr.Review {
		case model.ReviewNo:
			v.Approved = &value
		case model.ReviewLowConfidence:
			if meta.Confidence != nil && *meta.Confidence >= attr.Threshold(s.threshold) {
				v.Approved = &value
			}
		case model.ReviewAlways:
			// Approval only via Approve/BulkApprove.
		}
		return nil
	})
}

// SetOverride writes the override layer only; current and approved are left
// untouched. A record is auto-created with a nil current value when the pair
// has never been written.
func (s *Store) SetOverride(ctx context.Context, entityID, attributeID, value string) (*model.VersionedValue, error) {
	return s.repo.MutateValue(ctx, entityID, attributeID, true, func(v *model.VersionedValue) error {
		v.Override = &value
		return nil
	})
}

// Approve promotes the display value (non-empty override, else current) into
// the approved layer. Idempotent. Returns NotFoundError when the pair has no
// record.
func (s *Store) Approve(ctx context.Context, entityID, attributeID string) (*model.VersionedValue, error) {
	return s.repo.MutateValue(ctx, entityID, attributeID, false, func(v *model.VersionedValue) error {
		display, _ := v.Display()
		v.Approved = &display
		return nil
	})
}

// BulkResult reports the outcome of a bulk approval.
type BulkResult struct {
	Approved int
	Failed   int
	Errors   []error
}

// BulkApprove applies Approve to each pair, best effort: one failing pair
// never aborts the others.
func (s *Store) BulkApprove(ctx context.Context, pairs []model.ValuePair) BulkResult {
	log := zap.L().With(zap.String("component", "versioned.bulk_approve"))

	var res BulkResult
	for _, p := range pairs {
		if _, err := s.Approve(ctx, p.EntityID, p.AttributeID); err != nil {
			log.Warn("approve failed",
				zap.String("entity", p.EntityID),
				zap.String("attribute", p.AttributeID),
				zap.Error(err),
			)
			res.Failed++
			res.Errors = append(res.Errors, eris.Wrapf(err, "approve %s/%s", p.EntityID, p.AttributeID))
			continue
		}
		res.Approved++
	}
	return res
}

// MarkLive records the last value confirmed as published to an external
// system. Called by the sync collaborator after a confirmed push; never
// touches the other layers.
func (s *Store) MarkLive(ctx context.Context, entityID, attributeID, value string) (*model.VersionedValue, error) {
	return s.repo.MutateValue(ctx, entityID, attributeID, false, func(v *model.VersionedValue) error {
		v.Live = &value
		return nil
	})
}

// Get returns the record for the pair, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, entityID, attributeID string) (*model.VersionedValue, error) {
	return s.repo.GetValue(ctx, entityID, attributeID)
}
