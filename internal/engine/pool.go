package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
)

// MergeCandidates folds raw scout hits into a deduplicated candidate pool.
// The namespace and access-scope gate runs before any merging, so later
// stages never see an item the query is not allowed to touch. Items that
// are archived or quarantined are dropped at the same point.
//
// Per-item scores combine with max, which is monotonic: raising any
// contributing scout's score can only raise the merged score.
func MergeCandidates(ctx context.Context, hits []domain.ScoutHit, q *domain.QueryContext, meta domain.MetadataClient) ([]domain.Candidate, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(hits))
	seen := make(map[uuid.UUID]bool, len(hits))
	for _, h := range hits {
		if !seen[h.ItemID] {
			seen[h.ItemID] = true
			ids = append(ids, h.ItemID)
		}
	}

	metas, err := meta.GetBatch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch candidate metadata: %w", err)
	}

	byID := make(map[uuid.UUID]*domain.Candidate)
	order := make([]uuid.UUID, 0, len(ids))
	for _, h := range hits {
		m, ok := metas[h.ItemID]
		if !ok {
			continue
		}
		if !admits(&m, q) {
			continue
		}

		c, ok := byID[h.ItemID]
		if !ok {
			c = &domain.Candidate{ItemID: h.ItemID, Meta: m}
			byID[h.ItemID] = c
			order = append(order, h.ItemID)
		}
		if h.Score >= c.Score {
			c.Score = h.Score
			if h.Snippet != "" {
				c.Snippet = h.Snippet
			}
		}
		c.Scouts = appendScout(c.Scouts, h.Scout)
		if h.Reason != "" {
			c.Reasons = append(c.Reasons, h.Reason)
		}
	}

	out := make([]domain.Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// admits is the mandatory pre-merge gate: namespace filter, access scope,
// and lifecycle status.
func admits(m *domain.ItemMeta, q *domain.QueryContext) bool {
	if !q.AllowsNamespace(m.Namespace) {
		return false
	}
	if !domain.ScopeAllows(m.AccessScope, q.AgentID) {
		return false
	}
	return m.Status == domain.StatusActive
}

func appendScout(scouts []domain.ScoutKind, k domain.ScoutKind) []domain.ScoutKind {
	for _, s := range scouts {
		if s == k {
			return scouts
		}
	}
	return append(scouts, k)
}
