package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/huangsam/macindex/schema"
)

// Color variables for console output, from most to least capacity.
var (
	AmpleColor         = color.New(color.FgGreen, color.Bold)
	ComfortableColor   = color.New(color.FgGreen)
	ThinColor          = color.New(color.FgYellow)
	StretchedColor     = color.New(color.FgMagenta, color.Bold)
	RegimeBreakColor   = color.New(color.FgRed, color.Bold)
	IndeterminateColor = color.New(color.Faint)
)

// GetPlainLabel returns the regime label of a composite score.
// This is the core logic used for CSV, JSON, and table printing.
func GetPlainLabel(score float64) string {
	return string(schema.LabelFor(score))
}

// GetColorLabel returns a colored regime label for console output (table).
func GetColorLabel(label schema.RegimeLabel) string {
	text := string(label)
	switch label {
	case schema.AmpleLabel:
		return AmpleColor.Sprint(text)
	case schema.ComfortableLabel:
		return ComfortableColor.Sprint(text)
	case schema.ThinLabel:
		return ThinColor.Sprint(text)
	case schema.StretchedLabel:
		return StretchedColor.Sprint(text)
	case schema.RegimeBreakLabel:
		return RegimeBreakColor.Sprint(text)
	default:
		return IndeterminateColor.Sprint(text)
	}
}

// GetPostureLabel returns a colored posture for console output.
func GetPostureLabel(p schema.Posture) string {
	switch p {
	case schema.CrisisPosture:
		return RegimeBreakColor.Sprint(string(p))
	case schema.DefensivePosture:
		return StretchedColor.Sprint(string(p))
	case schema.CautiousPosture:
		return ThinColor.Sprint(string(p))
	default:
		return string(p)
	}
}

// SelectOutputFile returns the appropriate file handle for output, based on the provided
// file path. It falls back to os.Stdout when no path is given.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// GetCacheDBFilePath returns the path to the SQLite DB file for the fit cache.
func GetCacheDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".macindex_cache.db"
	}
	return filepath.Join(homeDir, ".macindex_cache.db")
}

// GetRunDBFilePath returns the path to the SQLite DB file for backtest runs.
func GetRunDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".macindex_runs.db"
	}
	return filepath.Join(homeDir, ".macindex_runs.db")
}

// TruncateText truncates a string to a maximum width with an ellipsis suffix.
func TruncateText(s string, maxWidth int) string {
	runes := []rune(s)
	if len(runes) > maxWidth && maxWidth > 3 {
		return string(runes[:maxWidth-3]) + "..."
	}
	return s
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
// Returns an error for invalid values.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}
