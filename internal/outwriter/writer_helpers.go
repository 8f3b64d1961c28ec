package outwriter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"
	"github.com/xuri/excelize/v2"
)

// sheet is a named grid of rows shared by the CSV and XLSX writers.
type sheet struct {
	name   string
	header []string
	rows   [][]string
}

// render dispatches a report to the configured output mode.
// CSV carries the first sheet only; XLSX carries every sheet.
func render(cfg *contract.Config, data any, sheets func() []sheet, text func(io.Writer) error) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, data)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeSheetCSV(w, sheets()[0])
		}, "Wrote CSV")
	case schema.XLSXOut:
		return writeXLSX(cfg.OutputFile, sheets())
	case schema.ParquetOut:
		return fmt.Errorf("parquet output is only available for composite series: %w", schema.ErrConfig)
	default:
		return writeWithFile(cfg.OutputFile, text, "Wrote table")
	}
}

// writeWithFile handles the common pattern of opening a file, writing to it, and cleaning up.
// It accepts a writer function that takes an io.Writer and returns an error.
func writeWithFile(outputFile string, writer func(io.Writer) error, successMsg string) error {
	file, err := contract.SelectOutputFile(outputFile)
	if err != nil {
		return err
	}
	// Only close if it's not stdout
	if file != os.Stdout {
		defer func() { _ = file.Close() }()
	}

	if err := writer(file); err != nil {
		return err
	}

	if file != os.Stdout {
		fmt.Fprintf(os.Stderr, "💾 %s to %s\n", successMsg, outputFile)
	}
	return nil
}

// writeJSON is a generic JSON encoder that handles indentation consistently.
func writeJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// writeCSVWithHeader handles the common pattern of creating a CSV writer,
// writing a header, and writing data rows.
func writeCSVWithHeader(w io.Writer, header []string, writeRows func(*csv.Writer) error) error {
	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	if err := csvWriter.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	if err := writeRows(csvWriter); err != nil {
		return err
	}

	return nil
}

func writeSheetCSV(w io.Writer, s sheet) error {
	return writeCSVWithHeader(w, s.header, func(cw *csv.Writer) error {
		for _, row := range s.rows {
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
		return nil
	})
}

// writeXLSX writes each sheet into one workbook. Cells that parse as numbers
// are stored as numbers so spreadsheets can chart them directly.
func writeXLSX(outputFile string, sheets []sheet) error {
	if outputFile == "" {
		return fmt.Errorf("xlsx output requires an output file: %w", schema.ErrConfig)
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.name); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", s.name, err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", s.name, err)
		}
		if err := writeXLSXRow(f, s.name, 1, s.header); err != nil {
			return err
		}
		for r, row := range s.rows {
			if err := writeXLSXRow(f, s.name, r+2, row); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(outputFile); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	fmt.Fprintf(os.Stderr, "💾 Wrote XLSX to %s\n", outputFile)
	return nil
}

func writeXLSXRow(f *excelize.File, name string, rowNum int, values []string) error {
	for c, v := range values {
		cell, err := excelize.CoordinatesToCellName(c+1, rowNum)
		if err != nil {
			return err
		}
		var value any = v
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			value = n
		}
		if err := f.SetCellValue(name, cell, value); err != nil {
			return fmt.Errorf("failed to set %s!%s: %w", name, cell, err)
		}
	}
	return nil
}

// createFormatters creates the common formatter closures used across multiple output types.
func createFormatters(precision int) (fmtFloat func(float64) string, intFmt string) {
	numFmt := "%.*f"
	intFmt = "%d"
	fmtFloat = func(v float64) string {
		return fmt.Sprintf(numFmt, precision, v)
	}
	return fmtFloat, intFmt
}

// labelText renders a regime label for tables, colored when enabled.
func labelText(cfg *contract.Config, label schema.RegimeLabel) string {
	if cfg.UseColors {
		return contract.GetColorLabel(label)
	}
	return string(label)
}

func postureText(cfg *contract.Config, p schema.Posture) string {
	if p == "" {
		return "-"
	}
	if cfg.UseColors {
		return contract.GetPostureLabel(p)
	}
	return string(p)
}

func formatDate(r schema.CompositeReport) string {
	return r.Date.Format("2006-01-02")
}

// formatPillarWeights renders weights as "pillar=0.25, ..." in pillar order.
func formatPillarWeights(weights map[schema.PillarID]float64, fmtFloat func(float64) string) string {
	parts := make([]string, 0, len(weights))
	for _, p := range schema.SortedPillars(weights) {
		parts = append(parts, fmt.Sprintf("%s=%s", p, fmtFloat(weights[p])))
	}
	return strings.Join(parts, ", ")
}

func boolText(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func fprintf(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
