package candidates

import (
	"context"
	"fmt"

	"BillWatch/internal/config"
	"BillWatch/internal/ports"
)

// StrategyRange generates identifiers from numeric ranges.
const StrategyRange = "range"

const defaultRangeFormat = "%s %04d"

// Range emits every identifier in each category's [From, To] range.
// Many of them will not exist upstream.
type Range struct {
	categories []config.CategoryConfig
}

var _ ports.CandidateStrategy = (*Range)(nil)

// NewRange enumerates the configured identifier ranges.
func NewRange(cfg config.CacheConfig) *Range {
	return &Range{categories: cfg.Categories}
}

func (r *Range) Name() string { return StrategyRange }

func (r *Range) Candidates(ctx context.Context, _ string) ([]string, error) {
	acc := newCollector()
	for _, cat := range r.categories {
		if err := ctx.Err(); err != nil {
			return acc.ids, err
		}
		if cat.To < cat.From {
			return acc.ids, fmt.Errorf("category %s: range %d..%d is empty", cat.ID, cat.From, cat.To)
		}
		format := cat.Format
		if format == "" {
			format = defaultRangeFormat
		}
		for n := cat.From; n <= cat.To; n++ {
			acc.add(fmt.Sprintf(format, cat.Prefix, n))
		}
	}
	return acc.ids, nil
}
