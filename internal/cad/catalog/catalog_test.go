package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
catalog_version: "2.1"
pieces:
  - code: base_plate
    display_name: Placa Base
    discipline: structural
    category: base
    parameters:
      - {name: largo, display_name: Largo, unit: mm, type: float, default: 300, min: 50, max: 3000}
      - {name: tiene_ranuras, display_name: Ranuras, type: bool, default: false}
      - {name: largo_ranura, display_name: Largo ranura, unit: mm, type: float, default: 40, depends_on: {tiene_ranuras: true}}
      - name: material
        display_name: Material
        type: enum
        default: ASTM_A36
        options:
          - {value: ASTM_A36, label: ASTM A36}
    validation_rules:
      - {rule_id: VR-01, expression: "largo >= 100", message: Corto}
      - {rule_id: VR-02, expression: "largo <= 2000", severity: warning, message: Largo}
    bom_template:
      - {description: Chapa, material_param: material}
  - code: anchor_bolt
    display_name: Perno
    discipline: structural
    category: fasteners
  - code: pipe_flange
    display_name: Brida
    discipline: piping
    category: flanges
`

func writeCatalog(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCatalogLazyLoadAndQueries(t *testing.T) {
	c := New(writeCatalog(t, "catalog.yaml", sampleYAML))

	version, err := c.Version()
	require.NoError(t, err)
	assert.Equal(t, "2.1", version)

	pieces, err := c.Pieces()
	require.NoError(t, err)
	require.Len(t, pieces, 3)
	assert.Equal(t, "base_plate", pieces[0].Code)

	disciplines, err := c.Disciplines()
	require.NoError(t, err)
	assert.Equal(t, []string{"piping", "structural"}, disciplines)

	structural, err := c.PiecesByDiscipline("structural")
	require.NoError(t, err)
	assert.Len(t, structural, 2)

	fasteners, err := c.PiecesByCategory("structural", "fasteners")
	require.NoError(t, err)
	require.Len(t, fasteners, 1)
	assert.Equal(t, "anchor_bolt", fasteners[0].Code)

	rules, err := c.Rules("base_plate")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "VR-01", rules[0].RuleID)
	assert.Equal(t, SeverityError, rules[0].Severity)
	assert.Equal(t, SeverityWarning, rules[1].Severity)

	unknown, err := c.Rules("nope")
	require.NoError(t, err)
	assert.Empty(t, unknown)

	_, err = c.Piece("nope")
	assert.ErrorIs(t, err, ErrPieceNotFound)
}

func TestPieceDefaultsAndBOMNormalization(t *testing.T) {
	c := New(writeCatalog(t, "catalog.yml", sampleYAML))
	piece, err := c.Piece("base_plate")
	require.NoError(t, err)

	defaults := piece.Defaults()
	assert.Equal(t, 300.0, defaults["largo"])
	assert.Equal(t, false, defaults["tiene_ranuras"])
	assert.Equal(t, "ASTM_A36", defaults["material"])

	require.Len(t, piece.BOMTemplate, 1)
	item := piece.BOMTemplate[0]
	assert.Equal(t, 1, item.ItemNumber)
	assert.Equal(t, 1.0, item.Quantity)
	assert.Equal(t, "UN", item.Unit)
	require.NotNil(t, item.MaterialParam)
	assert.Equal(t, "material", *item.MaterialParam)
}

func TestParameterVisibility(t *testing.T) {
	c := New(writeCatalog(t, "catalog.yaml", sampleYAML))
	piece, err := c.Piece("base_plate")
	require.NoError(t, err)

	slot, ok := piece.Parameter("largo_ranura")
	require.True(t, ok)
	assert.False(t, slot.Visible(map[string]any{"tiene_ranuras": false}))
	assert.True(t, slot.Visible(map[string]any{"tiene_ranuras": true}))
	assert.False(t, slot.Visible(map[string]any{}))

	largo, _ := piece.Parameter("largo")
	assert.True(t, largo.Visible(nil))
}

func TestParameterCheck(t *testing.T) {
	c := New(writeCatalog(t, "catalog.yaml", sampleYAML))
	piece, err := c.Piece("base_plate")
	require.NoError(t, err)

	largo, _ := piece.Parameter("largo")
	assert.NoError(t, largo.Check(300.0))
	assert.ErrorContains(t, largo.Check(10.0), "minimum")
	assert.ErrorContains(t, largo.Check(5000), "maximum")
	assert.ErrorContains(t, largo.Check("x"), "must be a number")

	material, _ := piece.Parameter("material")
	assert.NoError(t, material.Check("ASTM_A36"))
	assert.ErrorContains(t, material.Check("S355"), "no option")

	slots, _ := piece.Parameter("tiene_ranuras")
	assert.ErrorContains(t, slots.Check(1.0), "boolean")
}

func TestReloadKeepsCacheUntilCalled(t *testing.T) {
	path := writeCatalog(t, "catalog.yaml", sampleYAML)
	c := New(path)
	_, err := c.Pieces()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("catalog_version: \"3.0\"\npieces: []\n"), 0o644))
	pieces, err := c.Pieces()
	require.NoError(t, err)
	assert.Len(t, pieces, 3, "cached catalog must survive file edits until Reload")

	require.NoError(t, c.Reload())
	pieces, err = c.Pieces()
	require.NoError(t, err)
	assert.Empty(t, pieces)
	version, _ := c.Version()
	assert.Equal(t, "3.0", version)
}

func TestReloadFailureKeepsPreviousCatalog(t *testing.T) {
	path := writeCatalog(t, "catalog.yaml", sampleYAML)
	c := New(path)
	require.NoError(t, c.Reload())

	require.NoError(t, os.WriteFile(path, []byte("pieces: [ {code: "), 0o644))
	assert.Error(t, c.Reload())

	pieces, err := c.Pieces()
	require.NoError(t, err)
	assert.Len(t, pieces, 3)
}

func TestInvalidCatalogs(t *testing.T) {
	cases := map[string]string{
		"duplicate code": "pieces:\n  - {code: a}\n  - {code: a}\n",
		"missing code":   "pieces:\n  - {display_name: x}\n",
		"unknown type":   "pieces:\n  - code: a\n    parameters:\n      - {name: x, type: int}\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			c := New(writeCatalog(t, "catalog.yaml", content))
			_, err := c.Pieces()
			assert.Error(t, err)
		})
	}

	_, err := New(filepath.Join(t.TempDir(), "missing.json")).Pieces()
	assert.ErrorContains(t, err, "read catalog")
}

func TestSampleCatalogLoads(t *testing.T) {
	c := New(filepath.Join("..", "..", "..", "configs", "piece_catalog.json"))
	piece, err := c.Piece("base_plate")
	require.NoError(t, err)
	assert.Equal(t, "Placa Base Estructural", piece.DisplayName)
	assert.Len(t, piece.ValidationRules, 7)

	for _, p := range piece.Parameters {
		assert.NoError(t, p.Check(p.DefaultValue()), p.Name)
	}
}
