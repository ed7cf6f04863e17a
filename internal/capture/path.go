package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// timestampLayout formats the {ts} token as YYYYMMDD_HHMMSS.
const timestampLayout = "20060102_150405"

// ExpandOutputPath substitutes the {ts} token in a path template and expands
// a leading ~ to the user's home directory.
func ExpandOutputPath(template string, now time.Time) (string, error) {
	if template == "" {
		return "", Fatalf("output path template is empty")
	}
	expanded := strings.ReplaceAll(template, "{ts}", now.Format(timestampLayout))
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
	}
	return filepath.Clean(expanded), nil
}
