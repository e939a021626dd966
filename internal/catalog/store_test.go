package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropforge/dropforge/internal/catalog"
	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/session"
)

var guaranteed = []loot.RarityTier{loot.TierRare, loot.TierEpic, loot.TierLegendary}

const validCaseYAML = `
id: mil-crate
price: 300
entries:
  - name: scrap
    value: 50
    weight: 70
    tier: common
  - name: pistol
    value: 200
    weight: 20
    tier: rare
  - name: rifle
    value: 900
    weight: 8
    tier: epic
  - name: railgun
    value: 5000
    weight: 2
    tier: legendary
`

func TestLoadCaseFromBytes_Valid(t *testing.T) {
	def, err := catalog.LoadCaseFromBytes([]byte(validCaseYAML), guaranteed)
	require.NoError(t, err)
	assert.Equal(t, "mil-crate", def.ID)
	assert.Equal(t, int64(300), def.Price)
	require.Len(t, def.Entries, 4)
	assert.Equal(t, loot.TierLegendary, def.Entries[3].Tier)
	assert.Equal(t, 70, def.Entries[0].DropWeight)
}

func TestLoadCaseFromBytes_InvalidYAML(t *testing.T) {
	_, err := catalog.LoadCaseFromBytes([]byte("id: [broken"), guaranteed)
	assert.Error(t, err)
}

func TestLoadCaseFromBytes_FailsValidation(t *testing.T) {
	const missingLegendary = `
id: thin-crate
price: 100
entries:
  - name: scrap
    value: 10
    weight: 1
    tier: common
`
	_, err := catalog.LoadCaseFromBytes([]byte(missingLegendary), guaranteed)
	assert.Error(t, err)
}

func TestLoadCasesFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mil.yaml"), []byte(validCaseYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))

	defs, err := catalog.LoadCasesFromDir(dir, guaranteed)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "mil-crate", defs[0].ID)
}

func TestLoadCasesFromDir_MissingDir(t *testing.T) {
	_, err := catalog.LoadCasesFromDir("/nonexistent/cases", guaranteed)
	assert.Error(t, err)
}

func TestLoadCasesFromDir_BadFileAbortsLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(validCaseYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("price: -1"), 0o644))

	_, err := catalog.LoadCasesFromDir(dir, guaranteed)
	assert.Error(t, err)
}

func TestStore_Case(t *testing.T) {
	def, err := catalog.LoadCaseFromBytes([]byte(validCaseYAML), guaranteed)
	require.NoError(t, err)
	store, err := catalog.NewStore([]loot.CaseDefinition{def})
	require.NoError(t, err)

	got, err := store.Case(context.Background(), "mil-crate")
	require.NoError(t, err)
	assert.Equal(t, def, got)

	_, err = store.Case(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrCaseNotFound)
}

func TestNewStore_RejectsDuplicateIDs(t *testing.T) {
	def, err := catalog.LoadCaseFromBytes([]byte(validCaseYAML), guaranteed)
	require.NoError(t, err)
	_, err = catalog.NewStore([]loot.CaseDefinition{def, def})
	assert.Error(t, err)
}

func TestStore_LenAndIDs(t *testing.T) {
	def, err := catalog.LoadCaseFromBytes([]byte(validCaseYAML), guaranteed)
	require.NoError(t, err)
	store, err := catalog.NewStore([]loot.CaseDefinition{def})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, []string{"mil-crate"}, store.IDs())
}
