package seeds

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/foodtruck-cli/internal/config"
)

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Seeds")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, v := range rowData {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "seeds.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestParseYAML_Mixed(t *testing.T) {
	data := []byte(`
seeds:
  - https://www.tacoboy.com/
  - url: https://wafflewagon.com
    name: Waffle Wagon
    region: Charleston, SC
    priority: 8
  - url: not-a-url
  - https://tacoboy.com
`)
	got, err := ParseYAML(data)
	require.NoError(t, err)
	assert.Equal(t, []Seed{
		{URL: "https://tacoboy.com"},
		{URL: "https://wafflewagon.com", Name: "Waffle Wagon", Region: "Charleston, SC", Priority: 8},
	}, got)
}

func TestParseYAML_TopLevelList(t *testing.T) {
	got, err := ParseYAML([]byte("- https://bunbros.com\n- https://curbsidekitchen.net\n"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://curbsidekitchen.net", got[1].URL)

	_, err = ParseYAML([]byte("seeds: [unterminated"))
	assert.Error(t, err)
}

func TestLoadXLSX_WithHeader(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"Name", "Website", "Priority"},
		{"Taco Boy", "https://tacoboy.com", "7"},
		{"Bun Bros", "https://bunbros.com/", "x"},
		{"", "", ""},
	})
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []Seed{
		{URL: "https://tacoboy.com", Name: "Taco Boy", Priority: 7},
		{URL: "https://bunbros.com", Name: "Bun Bros"},
	}, got)
}

func TestLoadXLSX_NoHeader(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"https://tacoboy.com", "ignored"},
		{"https://wafflewagon.com"},
	})
	got, err := LoadXLSX(path)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("seeds.csv")
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seeds:\n  - https://bunbros.com\n  - https://tacoboy.com\n"), 0o600))

	got, err := Resolve(config.SeedsConfig{Path: path, URLs: []string{"https://tacoboy.com/"}})
	require.NoError(t, err)
	assert.Equal(t, []Seed{{URL: "https://tacoboy.com"}, {URL: "https://bunbros.com"}}, got)
}
