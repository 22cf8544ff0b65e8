package analytics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ReportWindow is one recent-activity reporting window: platform stats report
// the number of (user, dataset) pairs active within each configured window.
type ReportWindow struct {
	Label    string
	Duration time.Duration
}

// rawWindow is the on-disk YAML shape.
type rawWindow struct {
	Label    string `yaml:"label"`
	Duration string `yaml:"duration"`
}

// DefaultWindows is used when no window directory is configured.
var DefaultWindows = []ReportWindow{
	{Label: "24h", Duration: 24 * time.Hour},
	{Label: "7d", Duration: 7 * 24 * time.Hour},
	{Label: "30d", Duration: 30 * 24 * time.Hour},
}

// LoadWindows reads report-window definitions from *.yaml files in dir.
// Each file contains exactly one window at the top level. Windows are loaded
// once at startup, with no hot reload. A missing directory yields the defaults.
func LoadWindows(dir string) ([]ReportWindow, error) {
	if dir == "" {
		return DefaultWindows, nil
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return DefaultWindows, nil
	}
	if err != nil {
		return nil, fmt.Errorf("report window dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("report window path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading report window dir: %w", err)
	}

	seen := make(map[string]bool)
	var windows []ReportWindow

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading window file %s: %w", path, err)
		}

		var raw rawWindow
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing window file %s: %w", path, err)
		}
		if raw.Label == "" {
			continue // skip empty / comment-only files
		}

		dur, err := time.ParseDuration(raw.Duration)
		if err != nil {
			return nil, fmt.Errorf("window %q: invalid duration %q: %w", raw.Label, raw.Duration, err)
		}
		if dur <= 0 {
			return nil, fmt.Errorf("window %q: duration must be > 0", raw.Label)
		}

		if seen[raw.Label] {
			return nil, fmt.Errorf("duplicate window label %q in %s", raw.Label, path)
		}
		seen[raw.Label] = true

		windows = append(windows, ReportWindow{Label: raw.Label, Duration: dur})
	}

	if len(windows) == 0 {
		return DefaultWindows, nil
	}
	return windows, nil
}
