package jurisdiction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const datasetJSON = `{
  "France": {"code": "FR", "region": "Europe", "aliases": ["lyon", "paris", "marseille"]},
  "United Kingdom": {"code": "UK", "region": "Europe", "aliases": ["london", "greater manchester"]}
}`

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jurisdictions.json")
	require.NoError(t, os.WriteFile(path, []byte(datasetJSON), 0o644))
	r, err := NewResolver(path)
	require.NoError(t, err)
	return r
}

func TestResolveByNameAndAlias(t *testing.T) {
	r := testResolver(t)

	assert.Equal(t, "FR", r.Resolve("France").Code)
	assert.Equal(t, "FR", r.Resolve("Lyon").Code)
	assert.Equal(t, "UK", r.Resolve("Greater Manchester").Code)
}

func TestResolveIsCaseAndPunctuationInsensitive(t *testing.T) {
	r := testResolver(t)

	assert.Equal(t, "FR", r.Resolve("  LYON ").Code)
	assert.Equal(t, "UK", r.Resolve("greater-manchester").Code)
}

func TestResolveFallsThroughToTokens(t *testing.T) {
	r := testResolver(t)

	info := r.Resolve("Lyon, unheard-of arrondissement")
	assert.Equal(t, "FR", info.Code)
}

func TestResolveUnknownKeepsInput(t *testing.T) {
	r := testResolver(t)

	info := r.Resolve("Atlantis")
	assert.Equal(t, "Atlantis", info.Name)
	assert.Empty(t, info.Code)

	assert.Equal(t, Info{}, r.Resolve(""))
}

func TestResolverMissingDatasetIsNotFatal(t *testing.T) {
	r, err := NewResolver(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "Lyon", r.Resolve("Lyon").Name)
}

func TestResolverBadDatasetFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jurisdictions.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
	_, err := NewResolver(path)
	assert.Error(t, err)
}
