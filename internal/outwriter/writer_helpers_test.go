package outwriter

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testConfig(t *testing.T, mode schema.OutputMode, ext string) *contract.Config {
	t.Helper()
	cfg := &contract.Config{Output: mode, Precision: 3, Workers: 2, CacheBackend: schema.NoneBackend, RunBackend: schema.NoneBackend}
	if ext != "" {
		cfg.OutputFile = filepath.Join(t.TempDir(), "out."+ext)
	}
	return cfg
}

func readOutput(t *testing.T, cfg *contract.Config) string {
	t.Helper()
	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	return string(data)
}

func readCSV(t *testing.T, cfg *contract.Config) [][]string {
	t.Helper()
	records, err := csv.NewReader(strings.NewReader(readOutput(t, cfg))).ReadAll()
	require.NoError(t, err)
	return records
}

func sampleSheets() []sheet {
	return []sheet{
		{name: "first", header: []string{"name", "value"}, rows: [][]string{{"a", "0.250"}, {"b", "12"}}},
		{name: "second", header: []string{"label"}, rows: [][]string{{"thin"}}},
	}
}

func TestRenderDispatch(t *testing.T) {
	data := map[string]int{"answer": 42}
	tests := []struct {
		name     string
		mode     schema.OutputMode
		ext      string
		contains string
	}{
		{"json", schema.JSONOut, "json", `"answer": 42`},
		{"csv", schema.CSVOut, "csv", "name,value\na,0.250\nb,12\n"},
		{"text", schema.TextOut, "txt", "plain text body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, tt.mode, tt.ext)
			err := render(cfg, data, sampleSheets, func(w io.Writer) error {
				return fprintf(w, "plain text body\n")
			})
			require.NoError(t, err)
			assert.Contains(t, readOutput(t, cfg), tt.contains)
		})
	}
}

func TestRenderParquetUnsupported(t *testing.T) {
	cfg := testConfig(t, schema.ParquetOut, "parquet")
	err := render(cfg, nil, sampleSheets, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrConfig)
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, writeXLSX(path, sampleSheets()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"first", "second"}, f.GetSheetList())

	rows, err := f.GetRows("first")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"name", "value"}, rows[0])
	assert.Equal(t, "a", rows[1][0])

	cellType, err := f.GetCellType("first", "B3")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, cellType)

	rows, err = f.GetRows("second")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"label"}, {"thin"}}, rows)
}

func TestWriteXLSXRequiresFile(t *testing.T) {
	err := writeXLSX("", sampleSheets())
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrConfig)
}

func TestWriteSheetCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSheetCSV(&buf, sampleSheets()[0]))
	assert.Equal(t, "name,value\na,0.250\nb,12\n", buf.String())
}

func TestCreateFormatters(t *testing.T) {
	fmtFloat, intFmt := createFormatters(2)
	assert.Equal(t, "0.12", fmtFloat(0.123))
	assert.Equal(t, "%d", intFmt)
}

func TestLabelAndPostureText(t *testing.T) {
	plain := &contract.Config{}
	assert.Equal(t, "thin", labelText(plain, schema.ThinLabel))
	assert.Equal(t, "cautious", postureText(plain, schema.CautiousPosture))
	assert.Equal(t, "-", postureText(plain, ""))

	colored := &contract.Config{UseColors: true}
	assert.Contains(t, labelText(colored, schema.ThinLabel), "thin")
}

func TestFormatPillarWeights(t *testing.T) {
	fmtFloat, _ := createFormatters(2)
	weights := map[schema.PillarID]float64{schema.VolatilityPillar: 0.3, schema.LiquidityPillar: 0.7}
	assert.Equal(t, "liquidity=0.70, volatility=0.30", formatPillarWeights(weights, fmtFloat))
}

func TestGetMaxTableFlagsWidth(t *testing.T) {
	tests := []struct {
		width    int
		expected int
	}{
		{40, 15},
		{100, 30},
		{400, 60},
	}
	for _, tt := range tests {
		cfg := &contract.Config{Width: tt.width}
		assert.Equal(t, tt.expected, GetMaxTableFlagsWidth(cfg))
	}
}
