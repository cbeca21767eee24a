package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultSalience  = 0.5
	DefaultStrength  = 0.5
	DefaultDecayRate = 0.01
)

// NodeStats is the engine-owned learning record for one item, created lazily
// on first retrieval. Salience tracks retrieval utility and moves
// independently of any author-supplied belief score.
type NodeStats struct {
	ItemID          uuid.UUID  `json:"item_id"`
	Salience        float64    `json:"salience"`
	RetrievalCount  int        `json:"retrieval_count"`
	IgnoredCount    int        `json:"ignored_count"`
	MisleadingCount int        `json:"misleading_count"`
	LastRetrievedAt *time.Time `json:"last_retrieved_at,omitempty"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
	DecayRate       float64    `json:"decay_rate"`
	Strength        float64    `json:"strength"`
	// ClassPriors holds signed per-query-class adjustments, nudged by the
	// learning engine before any global salience change.
	ClassPriors map[QueryClass]float64 `json:"class_priors,omitempty"`
	// Recent retrieval tracking feeds the concept overuse penalty. The
	// counter resets whenever the window ages past 24h.
	RecentRetrievals  int        `json:"recent_retrievals"`
	RecentWindowStart *time.Time `json:"recent_window_start,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func NewNodeStats(itemID uuid.UUID) *NodeStats {
	return &NodeStats{
		ItemID:      itemID,
		Salience:    DefaultSalience,
		Strength:    DefaultStrength,
		DecayRate:   DefaultDecayRate,
		ClassPriors: map[QueryClass]float64{},
	}
}

// ClassPrior returns the signed prior for a class, zero when unset.
func (n *NodeStats) ClassPrior(class QueryClass) float64 {
	if n.ClassPriors == nil {
		return 0
	}
	return n.ClassPriors[class]
}
