// Package importer loads entities and their initial attribute values from
// CSV and XLSX files. The first row is a header: an external_key column is
// required, every other column is matched against the attribute catalog by
// key.
package importer

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/pim-core/internal/catalog"
	"github.com/sells-group/pim-core/internal/model"
	"github.com/sells-group/pim-core/internal/store"
	"github.com/sells-group/pim-core/internal/versioned"
)

const keyColumn = "external_key"

// Result summarizes one import.
type Result struct {
	Entities int64 // entities created or updated
	Values   int   // attribute values written
	Failed   int   // cell writes rejected (validation, read-only)
}

// Importer writes imported rows through the entity accessor so editability
// and review policies apply to imported values exactly as to manual edits.
type Importer struct {
	repo   store.Store
	values *versioned.Store
	log    *zap.Logger
}

// New creates an Importer.
func New(repo store.Store, values *versioned.Store) *Importer {
	return &Importer{
		repo:   repo,
		values: values,
		log:    zap.L().With(zap.String("component", "importer")),
	}
}

// ImportCSV imports entities of the given type from CSV data.
func (im *Importer) ImportCSV(ctx context.Context, r io.Reader, entityType string) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow variable fields

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "importer: read csv")
	}
	if len(records) == 0 {
		return nil, model.NewValidationError("import file is empty")
	}
	return im.importRows(ctx, entityType, records[0], records[1:])
}

// ImportXLSX imports entities of the given type from the first sheet of an
// XLSX file.
func (im *Importer) ImportXLSX(ctx context.Context, path, entityType string) (*Result, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, model.NewValidationError("xlsx file has no sheets")
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = strings.TrimSpace(cell.String())
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return nil, model.NewValidationError("import file is empty")
	}
	return im.importRows(ctx, entityType, rows[0], rows[1:])
}

func (im *Importer) importRows(ctx context.Context, entityType string, header []string, rows [][]string) (*Result, error) {
	keyIdx := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), keyColumn) {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return nil, model.NewValidationError("import file has no %s column", keyColumn)
	}

	attrs, err := im.repo.ListAttributes(ctx, entityType)
	if err != nil {
		return nil, eris.Wrap(err, "importer: list attributes")
	}
	cat := catalog.New(entityType, attrs)
	accessor := versioned.NewAccessor(cat, im.values)

	for i, h := range header {
		h = strings.TrimSpace(h)
		if i != keyIdx && cat.ByKey(h) == nil {
			im.log.Warn("unknown attribute column skipped", zap.String("column", h))
		}
	}

	entities := make([]model.Entity, 0, len(rows))
	for _, row := range rows {
		if keyIdx >= len(row) || row[keyIdx] == "" {
			continue
		}
		entities = append(entities, model.Entity{
			ID:          uuid.NewString(),
			EntityType:  entityType,
			ExternalKey: row[keyIdx],
		})
	}
	if len(entities) == 0 {
		return nil, model.NewValidationError("import file has no rows with an %s", keyColumn)
	}

	imported, err := im.repo.ImportEntities(ctx, entities)
	if err != nil {
		return nil, eris.Wrap(err, "importer: import entities")
	}
	res := &Result{Entities: imported}

	for _, row := range rows {
		if keyIdx >= len(row) || row[keyIdx] == "" {
			continue
		}
		ent, err := im.repo.GetEntityByExternalKey(ctx, entityType, row[keyIdx])
		if err != nil {
			return res, eris.Wrapf(err, "importer: resolve entity %s", row[keyIdx])
		}

		for i, raw := range row {
			if i == keyIdx || raw == "" {
				continue
			}
			if i >= len(header) {
				break
			}
			key := strings.TrimSpace(header[i])
			if cat.ByKey(key) == nil {
				continue
			}
			if err := accessor.Set(ctx, ent.ID, key, raw, versioned.Meta{}); err != nil {
				im.log.Warn("cell write rejected",
					zap.String("entity", ent.ExternalKey),
					zap.String("attribute", key),
					zap.Error(err),
				)
				res.Failed++
				continue
			}
			res.Values++
		}
	}
	return res, nil
}
