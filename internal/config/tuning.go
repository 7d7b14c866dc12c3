package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/olegkarev/testcase-search/internal/core/dedupe"
	"github.com/olegkarev/testcase-search/internal/core/ranking"
)

// Tuning holds the scoring calibration that operators adjust without a
// redeploy. Zero-valued fields keep the built-in defaults.
type Tuning struct {
	Dedupe  dedupe.Config  `yaml:"dedupe"`
	Ranking ranking.Config `yaml:"ranking"`
}

// LoadTuning reads the calibration file at path. An empty path returns
// defaults; a missing or malformed file is an error so a typo in
// TUNING_PATH never silently falls back.
func LoadTuning(path string) (Tuning, error) {
	tuning := Tuning{
		Dedupe:  dedupe.DefaultConfig(),
		Ranking: ranking.DefaultConfig(),
	}
	if path == "" {
		return tuning, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &tuning); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	return tuning, nil
}
