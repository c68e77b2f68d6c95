package candidates

import (
	"context"
	"fmt"
	"log/slog"

	"BillWatch/internal/config"
	"BillWatch/internal/domain"
	"BillWatch/internal/ports"
)

// StrategySearch paginates the upstream search endpoint.
const StrategySearch = "search"

// Search enumerates every record the upstream search endpoint returns for
// each configured category.
type Search struct {
	upstream   ports.Upstream
	categories []config.CategoryConfig
	pageSize   int
	maxPages   int
	logger     *slog.Logger
}

var _ ports.CandidateStrategy = (*Search)(nil)

// NewSearch builds the pagination strategy from cache settings.
func NewSearch(upstream ports.Upstream, cfg config.CacheConfig, logger *slog.Logger) *Search {
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Search{
		upstream:   upstream,
		categories: cfg.Categories,
		pageSize:   pageSize,
		maxPages:   cfg.MaxPages,
		logger:     logger.With("component", "candidates.search"),
	}
}

func (s *Search) Name() string { return StrategySearch }

// Candidates walks every category page by page. A failed page stops the
// walk and the identifiers gathered so far are returned with the error.
func (s *Search) Candidates(ctx context.Context, scope string) ([]string, error) {
	acc := newCollector()

	for _, cat := range s.categories {
		for page := 0; s.maxPages <= 0 || page < s.maxPages; page++ {
			if err := ctx.Err(); err != nil {
				return acc.ids, err
			}

			hits, err := s.upstream.Search(ctx, domain.SearchQuery{
				CategoryID: cat.ID,
				ScopeID:    scope,
				Limit:      s.pageSize,
				Offset:     page * s.pageSize,
			})
			if err != nil {
				s.logger.Warn("search page failed", "category", cat.ID, "page", page, "gathered", len(acc.ids), "error", err)
				return acc.ids, fmt.Errorf("search category %s page %d: %w", cat.ID, page, err)
			}

			added := 0
			for _, hit := range hits {
				if acc.add(hit.ID) {
					added++
				}
			}
			s.logger.Debug("search page", "category", cat.ID, "page", page, "hits", len(hits), "new", added)

			if len(hits) < s.pageSize {
				break
			}
		}
	}

	s.logger.Info("search enumeration finished", "scope", scope, "candidates", len(acc.ids))
	return acc.ids, nil
}
