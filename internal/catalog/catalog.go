// Package catalog indexes attribute definitions for one entity type and
// resolves dynamic attribute access by key without reflection.
package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/pim-core/internal/model"
)

var titleCaser = cases.Title(language.English)

// Catalog is an indexed collection of attribute definitions for one entity
// type, built once at entity-type load time.
type Catalog struct {
	entityType string
	attrs      []model.Attribute
	byID       map[string]*model.Attribute
	byKey      map[string]*model.Attribute
	outputs    map[string]*model.Attribute // pipeline id -> output attribute
}

// New builds a Catalog from attribute definitions. Attributes belonging to a
// different entity type are ignored. Attributes without a label get one
// derived from their key.
func New(entityType string, attrs []model.Attribute) *Catalog {
	c := &Catalog{
		entityType: entityType,
		byID:       make(map[string]*model.Attribute, len(attrs)),
		byKey:      make(map[string]*model.Attribute, len(attrs)),
		outputs:    make(map[string]*model.Attribute),
	}
	for _, a := range attrs {
		if a.EntityType != entityType {
			continue
		}
		if a.Label == "" {
			a.Label = titleCaser.String(strings.ReplaceAll(a.Key, "_", " "))
		}
		c.attrs = append(c.attrs, a)
	}
	for i := range c.attrs {
		a := &c.attrs[i]
		c.byID[a.ID] = a
		c.byKey[a.Key] = a
		if a.PipelineID != "" {
			c.outputs[a.PipelineID] = a
		}
	}
	return c
}

// EntityType returns the entity type the catalog was built for.
func (c *Catalog) EntityType() string {
	return c.entityType
}

// ByID returns the attribute with the given id, or nil if not found.
func (c *Catalog) ByID(id string) *model.Attribute {
	return c.byID[id]
}

// ByKey returns the attribute with the given key, or nil if not found.
func (c *Catalog) ByKey(key string) *model.Attribute {
	return c.byKey[key]
}

// OutputOf returns the output attribute owned by the given pipeline, or nil.
func (c *Catalog) OutputOf(pipelineID string) *model.Attribute {
	return c.outputs[pipelineID]
}

// All returns every attribute in the catalog.
func (c *Catalog) All() []model.Attribute {
	return c.attrs
}
