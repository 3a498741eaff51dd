package pipeline

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
	path := filepath.Join(t.TempDir(), "pipelines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
pipelines:
  - name: label
    entity_type: product
    output_attribute: attr_label
    modules:
      - kind: source
        settings:
          attributes: [attr_color]
      - kind: calculation
        settings:
          template: "{{attr_color}} chair"
`

func TestLoadFile_SavesPipeline(t *testing.T) {
	repo := newLoaderStore(t)
	loader := NewLoader(repo)

	pipelines, err := loader.LoadFile(context.Background(), writeYAML(t, validYAML))
	require.NoError(t, err)
	require.Len(t, pipelines, 1)

	p := pipelines[0]
	assert.Equal(t, "label", p.Name)
	assert.Equal(t, 1, p.Version)
	require.Len(t, p.Modules, 2)
	assert.Equal(t, model.ModuleSource, p.Modules[0].Kind)
	assert.Equal(t, []string{"attr_color"}, p.Modules[0].InputAttributes())

	saved, err := repo.GetPipelineByName(context.Background(), "label")
	require.NoError(t, err)
	assert.Equal(t, p.ID, saved.ID)
}

func TestLoadFile_ReloadBumpsVersion(t *testing.T) {
	repo := newLoaderStore(t)
	loader := NewLoader(repo)
	ctx := context.Background()

	first, err := loader.LoadFile(ctx, writeYAML(t, validYAML))
	require.NoError(t, err)

	second, err := loader.LoadFile(ctx, writeYAML(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, 2, second[0].Version)
}

func TestLoadFile_RejectsUnknownModuleKind(t *testing.T) {
	repo := newLoaderStore(t)
	loader := NewLoader(repo)

	const badKind = `
pipelines:
  - name: label
    entity_type: product
    output_attribute: attr_label
    modules:
      - kind: webhook
        settings: {}
`
	_, err := loader.LoadFile(context.Background(), writeYAML(t, badKind))
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestLoadFile_RejectsSelfReference(t *testing.T) {
	repo := newLoaderStore(t)
	loader := NewLoader(repo)

	const selfRef = `
pipelines:
  - name: loop
    entity_type: product
    output_attribute: attr_x
    modules:
      - kind: source
        settings:
          attributes: [attr_x]
      - kind: calculation
        settings:
          template: "t"
`
	_, err := loader.LoadFile(context.Background(), writeYAML(t, selfRef))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular")

	_, err = repo.GetPipelineByName(context.Background(), "loop")
	assert.True(t, model.IsNotFound(err))
}

func TestLoadFile_RejectsEmptyFile(t *testing.T) {
	repo := newLoaderStore(t)
	loader := NewLoader(repo)

	_, err := loader.LoadFile(context.Background(), writeYAML(t, "pipelines: []\n"))
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}
