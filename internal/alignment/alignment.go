package alignment

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Alignment is the character-by-character timing map returned by the speech
// provider. The three slices are index-aligned and immutable once stored.
type Alignment struct {
	Characters          []string  `json:"characters"`
	CharacterStartTimes []float64 `json:"character_start_times_seconds"`
	CharacterEndTimes   []float64 `json:"character_end_times_seconds"`
}

// Validate checks the equal-length contract between the three sequences.
func (a *Alignment) Validate() error {
	if a == nil {
		return fmt.Errorf("alignment is nil")
	}
	chars := len(a.Characters)
	if len(a.CharacterStartTimes) != chars || len(a.CharacterEndTimes) != chars {
		return fmt.Errorf("alignment sequences have mismatched lengths: characters=%d starts=%d ends=%d",
			chars, len(a.CharacterStartTimes), len(a.CharacterEndTimes))
	}
	return nil
}

// Len returns the number of aligned characters.
func (a *Alignment) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Characters)
}

// Text reconstructs the narration text the alignment was produced from.
func (a *Alignment) Text() string {
	if a == nil {
		return ""
	}
	return strings.Join(a.Characters, "")
}

// Duration returns the end time of the last character in seconds.
func (a *Alignment) Duration() float64 {
	if a == nil || len(a.CharacterEndTimes) == 0 {
		return 0
	}
	return a.CharacterEndTimes[len(a.CharacterEndTimes)-1]
}

// Load reads an alignment JSON document from disk and validates it.
func Load(path string) (*Alignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alignment %s: %w", path, err)
	}
	var a Alignment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode alignment %s: %w", path, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Save writes the alignment as JSON to the provided path.
func (a *Alignment) Save(path string) error {
	if err := a.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alignment: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write alignment %s: %w", path, err)
	}
	return nil
}
