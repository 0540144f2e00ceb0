package stage

import (
	"strings"

	"loom/internal/alignment"
	"loom/internal/services"
)

// LoadAlignment reads the persisted character alignment for an item.
// On failure it returns a services.ErrValidation suitable for stage Execute
// methods, since a missing or corrupt alignment means narration must rerun.
func LoadAlignment(path string) (*alignment.Alignment, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(
			services.ErrValidation, "stage", "load alignment",
			"No alignment recorded; rerun narration", nil)
	}
	align, err := alignment.Load(path)
	if err != nil {
		return nil, services.Wrap(
			services.ErrValidation, "stage", "load alignment",
			"Alignment file missing or invalid; rerun narration", err)
	}
	return align, nil
}
