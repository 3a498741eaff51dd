package versioned

import (
	"context"

	"github.com/sells-group/pim-core/internal/catalog"
	"github.com/sells-group/pim-core/internal/model"
)

// Accessor is the typed dynamic-attribute interface over the versioned store,
// resolved by attribute key via the catalog built for one entity type.
type Accessor struct {
	catalog *catalog.Catalog
	values  *Store
}

// NewAccessor builds an accessor for one entity type.
func NewAccessor(c *catalog.Catalog, values *Store) *Accessor {
	return &Accessor{catalog: c, values: values}
}

// Set writes an attribute value by key, enforcing the attribute's editability:
// read-only attributes reject the write, overridable attributes route it into
// the override layer, and normal attributes take the plain upsert path.
func (a *Accessor) Set(ctx context.Context, entityID, attrKey, value string, meta Meta) error {
	attr := a.catalog.ByKey(attrKey)
	if attr == nil {
		return &model.NotFoundError{Kind: "attribute", ID: attrKey}
	}
	if err := attr.ValidateValue(value); err != nil {
		return err
	}

	switch attr.Editable {
	case model.EditableNo:
		return model.NewValidationError("read-only attribute: %s", attrKey)
	case model.EditableOverridable:
		_, err := a.values.SetOverride(ctx, entityID, attr.ID, value)
		return err
	default:
		_, err := a.values.Upsert(ctx, entityID, attr.ID, value, meta)
		return err
	}
}

// Get returns the display value for an attribute key, or empty string when
// the pair has never been written.
func (a *Accessor) Get(ctx context.Context, entityID, attrKey string) (string, error) {
	attr := a.catalog.ByKey(attrKey)
	if attr == nil {
		return "", &model.NotFoundError{Kind: "attribute", ID: attrKey}
	}
	v, err := a.values.Get(ctx, entityID, attr.ID)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	display, _ := v.Display()
	return display, nil
}
