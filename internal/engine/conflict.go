package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
	"github.com/terracehq/terrace/internal/store"
	"go.uber.org/zap"
)

// Conflict detection raises the contradicts edge to at least this weight.
const ConflictWeightFloor = 0.6

var (
	ErrConflictNotFound         = errors.New("no contradicts edge between the given items")
	ErrConflictAlreadyResolved  = errors.New("conflict is already resolved")
	ErrInvalidConflictState     = errors.New("invalid conflict resolution state")
	ErrUnattributedResolution   = errors.New("conflict resolution requires an attributed actor")
	ErrUnattributedContradicts  = errors.New("contradiction detection requires an attributed actor")
	ErrSameItemContradiction    = errors.New("an item cannot contradict itself")
)

// surfaceWorthy are the query classes for which unresolved conflicts are
// shown to the caller. Detection and storage are unconditional; only the
// display is class-gated.
var surfaceWorthy = map[domain.QueryClass]bool{
	domain.QueryClassDesign:       true,
	domain.QueryClassSynthesis:    true,
	domain.QueryClassTroubleshoot: true,
}

// ConflictService owns the contradiction workflow: detection, the state
// machine on contradicts edges, and surfacing rules.
type ConflictService struct {
	edges  domain.EdgeStore
	logger *zap.Logger
}

func NewConflictService(edges domain.EdgeStore, logger *zap.Logger) *ConflictService {
	return &ConflictService{edges: edges, logger: logger}
}

// Detect records a contradiction between two items, creating the edge at the
// weight floor or lifting an existing one up to it. The conflict state stays
// unreviewed unless already resolved.
func (s *ConflictService) Detect(ctx context.Context, from, to uuid.UUID, ns, actorID string, actorKind domain.ActorKind) error {
	if actorID == "" {
		return ErrUnattributedContradicts
	}
	if from == to {
		return ErrSameItemContradiction
	}
	if err := s.edges.RaiseFloor(ctx, from, to, domain.EdgeContradicts, ns, ConflictWeightFloor, actorID, actorKind); err != nil {
		return fmt.Errorf("record contradiction: %w", err)
	}
	s.logger.Info("contradiction recorded",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("namespace", ns))
	return nil
}

// Resolve moves a conflict out of unreviewed. Resolution is always explicit
// and attributed; resolved states are terminal.
func (s *ConflictService) Resolve(ctx context.Context, from, to uuid.UUID, ns string, state domain.ConflictState, actorID string) error {
	if actorID == "" {
		return ErrUnattributedResolution
	}
	if !state.Resolved() {
		return ErrInvalidConflictState
	}

	edge, err := s.edges.Get(ctx, from, to, domain.EdgeContradicts, ns)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrConflictNotFound
		}
		return fmt.Errorf("load conflict edge: %w", err)
	}

	current := domain.ConflictUnreviewed
	if edge.ConflictState != nil {
		current = *edge.ConflictState
	}
	if !domain.ValidConflictTransition(current, state) {
		if current.Resolved() {
			return ErrConflictAlreadyResolved
		}
		return ErrInvalidConflictState
	}

	if err := s.edges.SetConflictState(ctx, edge.ID, state); err != nil {
		return fmt.Errorf("resolve conflict: %w", err)
	}
	s.logger.Info("conflict resolved",
		zap.String("edge_id", edge.ID.String()),
		zap.String("state", string(state)),
		zap.String("actor", actorID))
	return nil
}

// Touching returns unresolved contradictions whose endpoints both fall
// inside the given id set, across the given namespaces.
func (s *ConflictService) Touching(ctx context.Context, ids []uuid.UUID, namespaces []string) ([]domain.ConflictNotice, error) {
	if len(ids) < 2 {
		return nil, nil
	}
	var notices []domain.ConflictNotice
	for _, ns := range namespaces {
		edges, err := s.edges.Between(ctx, ids, ns)
		if err != nil {
			return nil, fmt.Errorf("scan conflicts: %w", err)
		}
		for _, e := range edges {
			if e.Type != domain.EdgeContradicts {
				continue
			}
			state := domain.ConflictUnreviewed
			if e.ConflictState != nil {
				state = *e.ConflictState
			}
			if state.Resolved() {
				continue
			}
			notices = append(notices, domain.ConflictNotice{
				FromID: e.FromID,
				ToID:   e.ToID,
				State:  state,
				Weight: e.Weight,
			})
		}
	}
	return notices, nil
}

// SurfaceFor reports whether conflicts should be shown for a query class.
func SurfaceFor(class domain.QueryClass) bool {
	return surfaceWorthy[class]
}
