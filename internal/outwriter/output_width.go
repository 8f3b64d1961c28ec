// Package outwriter has output and writer logic.
package outwriter

import (
	"os"

	"github.com/huangsam/macindex/internal/contract"
	"golang.org/x/term"
)

// GetMaxTableFlagsWidth calculates the maximum width for the flags column in
// table output based on terminal width and the fixed columns of a series table.
func GetMaxTableFlagsWidth(cfg *contract.Config) int {
	var termWidth int

	// Check for absolute width override from flag/env
	if cfg.Width > 0 {
		termWidth = cfg.Width
	}

	if termWidth == 0 { // Not set by override
		detectedWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || detectedWidth <= 0 {
			// Fallback to conservative default if terminal size can't be detected
			termWidth = 80
		} else {
			termWidth = detectedWidth
		}
	}

	// Date + Score + Label + Breaches + Posture with borders/padding
	baseWidth := 60

	// Reserve space for table borders, separators, and padding
	baseWidth += 10

	available := termWidth - baseWidth
	if available < 15 {
		return 15
	}
	if available > 60 {
		return 60
	}
	return available
}
