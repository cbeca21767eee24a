package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StatsStore persists NodeStats. Every mutation is atomic per item row and
// clamps salience and strength to [0,1]; concurrent reinforcement of the
// same node must not lose updates.
type StatsStore interface {
	Get(ctx context.Context, itemID uuid.UUID) (*NodeStats, error)
	// GetOrCreate returns existing stats or inserts the zero-value default
	// (salience 0.5). Idempotent under concurrent callers.
	GetOrCreate(ctx context.Context, itemID uuid.UUID) (*NodeStats, error)
	// RecordRetrieval stamps last_retrieved_at and advances the 24h recent
	// retrieval window used by concept damping.
	RecordRetrieval(ctx context.Context, itemID uuid.UUID, at time.Time) error
	MarkUsed(ctx context.Context, itemID uuid.UUID, at time.Time) error
	IncrementRetrievalCount(ctx context.Context, itemID uuid.UUID) error
	IncrementIgnored(ctx context.Context, itemID uuid.UUID) error
	// IncrementMisleading returns the new misleading count so the caller can
	// apply the quarantine rule.
	IncrementMisleading(ctx context.Context, itemID uuid.UUID) (int, error)
	AdjustSalience(ctx context.Context, itemID uuid.UUID, delta float64) error
	AdjustStrength(ctx context.Context, itemID uuid.UUID, delta float64) error
	AdjustClassPrior(ctx context.Context, itemID uuid.UUID, class QueryClass, delta float64) error
	// CapSalience lowers salience to ceiling when it exceeds it.
	CapSalience(ctx context.Context, itemID uuid.UUID, ceiling float64) error
	// ApplyDecay decays salience toward floor for nodes not used since the
	// cutoff. Returns the number of rows touched.
	ApplyDecay(ctx context.Context, cutoff time.Time, floor float64) (int64, error)
}

// EdgeStore persists the typed weighted relationship graph. Edges are
// uniquely keyed by (from, to, type, namespace); upserts reinforce instead
// of duplicating, and all weight math clamps to [0,1] in a single atomic
// statement.
type EdgeStore interface {
	Upsert(ctx context.Context, e *Edge) error
	// Reinforce adds delta to the edge weight, creating the edge at delta if
	// absent. Weight clamps to [0,1].
	Reinforce(ctx context.Context, from, to uuid.UUID, typ EdgeType, ns string, delta float64, actorID string, actorKind ActorKind) error
	// RaiseFloor lifts the edge weight to at least floor, creating the edge
	// at floor if absent. Used by contradiction detection.
	RaiseFloor(ctx context.Context, from, to uuid.UUID, typ EdgeType, ns string, floor float64, actorID string, actorKind ActorKind) error
	Get(ctx context.Context, from, to uuid.UUID, typ EdgeType, ns string) (*Edge, error)
	ByNode(ctx context.Context, itemID uuid.UUID, ns string) ([]Edge, error)
	ByType(ctx context.Context, ns string, typ EdgeType) ([]Edge, error)
	// Between returns all edges whose endpoints both fall inside ids.
	Between(ctx context.Context, ids []uuid.UUID, ns string) ([]Edge, error)
	SetConflictState(ctx context.Context, id uuid.UUID, state ConflictState) error
	// PruneWeak removes edges below threshold that have not been updated
	// since cutoff. Returns the number removed.
	PruneWeak(ctx context.Context, threshold float64, cutoff time.Time) (int64, error)
}

// CoactivationStore tracks symmetric pair counts per namespace. Increment is
// atomic; implementations canonicalize key order through CanonicalPair.
type CoactivationStore interface {
	Increment(ctx context.Context, ns string, a, b uuid.UUID) error
	ByNamespace(ctx context.Context, ns string, minCount int) ([]CoactivationPair, error)
	Namespaces(ctx context.Context) ([]string, error)
}

// ReceiptStore is append-only. Receipts are never mutated or deleted.
type ReceiptStore interface {
	Append(ctx context.Context, r *Receipt) error
	Get(ctx context.Context, id uuid.UUID) (*Receipt, error)
	List(ctx context.Context, ns string, since *time.Time, limit int) ([]Receipt, error)
}

// ItemStore is the item metadata collaborator plus the two narrow mutations
// the engine is allowed: quarantining chronically misleading items and
// managing concept aggregates (find-or-create by cluster key, hypothesis
// promotion). Item content is never touched.
type ItemStore interface {
	MetadataClient
	Quarantine(ctx context.Context, itemID uuid.UUID) error
	FindConcept(ctx context.Context, ns, clusterKey string) (*ItemMeta, error)
	CreateConcept(ctx context.Context, ns, clusterKey string) (*ItemMeta, error)
	SetNoteType(ctx context.Context, itemID uuid.UUID, t NoteType) error
}
