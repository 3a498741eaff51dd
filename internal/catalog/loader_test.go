package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pim-core/internal/model"
	"github.com/sells-group/pim-core/internal/store"
)

func newLoaderStore(t *testing.T) store.Store {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "pim.db"))
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(context.Background()))
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attributes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_UpsertsAttributes(t *testing.T) {
	repo := newLoaderStore(t)

	const doc = `
attributes:
  - id: attr_color
    key: color
    entity_type: product
    data_type: select
    editable: yes
    review_policy: low_confidence
    confidence_threshold: 0.9
    options: [red, green, blue]
  - id: attr_name
    key: name
    entity_type: product
`
	attrs, err := LoadFile(context.Background(), repo, writeYAML(t, doc))
	require.NoError(t, err)
	require.Len(t, attrs, 2)

	saved, err := repo.GetAttribute(context.Background(), "attr_color")
	require.NoError(t, err)
	assert.Equal(t, model.DataTypeSelect, saved.DataType)
	assert.Equal(t, model.EditableYes, saved.Editable)
	assert.Equal(t, model.ReviewLowConfidence, saved.Review)
	require.NotNil(t, saved.ConfidenceThreshold)
	assert.Equal(t, 0.9, *saved.ConfidenceThreshold)
	assert.Equal(t, []string{"red", "green", "blue"}, saved.Options)

	// Omitted fields fall back to text / yes / no.
	name, err := repo.GetAttribute(context.Background(), "attr_name")
	require.NoError(t, err)
	assert.Equal(t, model.DataTypeText, name.DataType)
	assert.Equal(t, model.EditableYes, name.Editable)
	assert.Equal(t, model.ReviewNo, name.Review)
}

func TestLoadFile_RejectsUnknownEnum(t *testing.T) {
	repo := newLoaderStore(t)

	const doc = `
attributes:
  - id: attr_x
    key: x
    entity_type: product
    review_policy: sometimes
`
	_, err := LoadFile(context.Background(), repo, writeYAML(t, doc))
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	// Nothing was saved.
	_, err = repo.GetAttribute(context.Background(), "attr_x")
	assert.True(t, model.IsNotFound(err))
}

func TestLoadFile_SelectRequiresOptions(t *testing.T) {
	repo := newLoaderStore(t)

	const doc = `
attributes:
  - id: attr_x
    key: x
    entity_type: product
    data_type: select
`
	_, err := LoadFile(context.Background(), repo, writeYAML(t, doc))
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestLoadFile_MissingIdentity(t *testing.T) {
	repo := newLoaderStore(t)

	_, err := LoadFile(context.Background(), repo, writeYAML(t, "attributes:\n  - key: x\n"))
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}
