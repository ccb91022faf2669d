package trainer

import (
	"github.com/radon-h2020/radon-defect-predictor/core"
)

// SelectBest returns the candidate with the highest validation score.
// Candidates must arrive in grid enumeration order; a strict greater-than
// comparison then makes the earliest combination win every tie, which
// keeps selection deterministic for identical data, seed and options.
func SelectBest(candidates []core.Candidate) (*core.Candidate, error) {
	best := -1
	for i, c := range candidates {
		if c.Failed() {
			continue
		}
		if best < 0 || c.Score > candidates[best].Score {
			best = i
		}
	}
	if best < 0 {
		return nil, core.ErrNoViableModel
	}
	return &candidates[best], nil
}
