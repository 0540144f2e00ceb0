package captions

import (
	"encoding/json"
	"fmt"
	"os"
)

// PlanFileName is the caption plan's filename inside an item's staging root.
const PlanFileName = "captions_plan.json"

// Plan records the grouping decisions the composer settled on so the
// document can be rebuilt later against an edited scene table. Word timing
// comes from the alignment and cue remapping from the scene rows, so the
// resolved style and advisory boundaries are the only inputs worth keeping.
type Plan struct {
	Style      string `json:"style"`
	Boundaries []int  `json:"boundaries,omitempty"`
}

// Save writes the plan as JSON to the provided path.
func (p *Plan) Save(path string) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode caption plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write caption plan %s: %w", path, err)
	}
	return nil
}

// LoadPlan reads a plan written by Save.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read caption plan %s: %w", path, err)
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode caption plan %s: %w", path, err)
	}
	return &p, nil
}
