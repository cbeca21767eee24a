package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
	"go.uber.org/zap"
)

// Consolidation defaults.
const (
	defaultConsolidationInterval = time.Hour
	defaultSessionIdleCutoff     = 30 * time.Minute

	// Items must recur at least this often within a session before their
	// pairwise edges are reinforced.
	sessionRecurrenceFloor = 2
	sessionEdgeDelta       = 0.03

	// Graph maintenance thresholds for the pruning pass.
	pruneWeightThreshold = 0.05
	pruneStaleAfter      = 30 * 24 * time.Hour
)

var ErrSessionUnknown = errors.New("session was never observed")

// ConsolidationResult summarizes one session-boundary batch pass.
type ConsolidationResult struct {
	EdgesReinforced    int            `json:"edges_reinforced"`
	HypothesesPromoted int            `json:"hypotheses_promoted"`
	EdgesPruned        int64          `json:"edges_pruned"`
	Concepts           *ConceptResult `json:"concepts,omitempty"`
}

// Consolidator runs the session-boundary batch analog of per-event
// learning: reinforce recurring working-memory items, refresh concepts,
// promote hypotheses that were used and never contradicted, and prune the
// weakest stale edges. It also runs periodically over idle sessions as a
// background worker.
type Consolidator struct {
	sessions *SessionTracker
	stats    domain.StatsStore
	edges    domain.EdgeStore
	items    domain.ItemStore
	concepts *ConceptService
	logger   *zap.Logger

	interval time.Duration
	idleAge  time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	now      func() time.Time
}

func NewConsolidator(sessions *SessionTracker, stats domain.StatsStore, edges domain.EdgeStore, items domain.ItemStore, concepts *ConceptService, logger *zap.Logger) *Consolidator {
	return &Consolidator{
		sessions: sessions,
		stats:    stats,
		edges:    edges,
		items:    items,
		concepts: concepts,
		logger:   logger,
		interval: defaultConsolidationInterval,
		idleAge:  defaultSessionIdleCutoff,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// SetInterval sets the background worker cadence.
func (c *Consolidator) SetInterval(d time.Duration) { c.interval = d }

// Start begins the background worker, which consolidates idle sessions and
// runs concept formation on each tick.
func (c *Consolidator) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.logger.Info("consolidation worker started", zap.Duration("interval", c.interval))
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
				c.runOnce(ctx)
				cancel()
			case <-c.stopCh:
				c.logger.Info("consolidation worker stopped")
				return
			}
		}
	}()
}

// Stop halts the background worker.
func (c *Consolidator) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Consolidator) runOnce(ctx context.Context) {
	for _, sessionID := range c.sessions.Idle(c.now().Add(-c.idleAge)) {
		if _, err := c.CloseSession(ctx, sessionID); err != nil {
			c.logger.Error("session consolidation failed",
				zap.String("session_id", sessionID.String()), zap.Error(err))
		}
	}
	if _, err := c.concepts.FormConcepts(ctx); err != nil {
		c.logger.Error("concept formation failed", zap.Error(err))
	}
	if pruned, err := c.edges.PruneWeak(ctx, pruneWeightThreshold, c.now().Add(-pruneStaleAfter)); err != nil {
		c.logger.Error("edge pruning failed", zap.Error(err))
	} else if pruned > 0 {
		c.logger.Info("weak edges pruned", zap.Int64("count", pruned))
	}
}

// CloseSession drains one session's working-memory set and applies the batch
// updates. Coactivation snapshots are read without holding any store lock;
// mutations land incrementally per record.
func (c *Consolidator) CloseSession(ctx context.Context, sessionID uuid.UUID) (*ConsolidationResult, error) {
	state := c.sessions.Close(sessionID)
	if state == nil {
		return nil, ErrSessionUnknown
	}

	result := &ConsolidationResult{}
	if err := c.reinforceRecurring(ctx, state, result); err != nil {
		return nil, err
	}
	if err := c.promoteHypotheses(ctx, state, result); err != nil {
		return nil, err
	}

	concepts, err := c.concepts.FormConcepts(ctx)
	if err != nil {
		return nil, err
	}
	result.Concepts = concepts

	pruned, err := c.edges.PruneWeak(ctx, pruneWeightThreshold, c.now().Add(-pruneStaleAfter))
	if err != nil {
		return nil, fmt.Errorf("prune edges: %w", err)
	}
	result.EdgesPruned = pruned

	c.logger.Info("session consolidated",
		zap.String("session_id", sessionID.String()),
		zap.Int("edges_reinforced", result.EdgesReinforced),
		zap.Int("hypotheses_promoted", result.HypothesesPromoted),
		zap.Int64("edges_pruned", result.EdgesPruned))
	return result, nil
}

// reinforceRecurring strengthens edges among items that surfaced at least
// twice within the session.
func (c *Consolidator) reinforceRecurring(ctx context.Context, state *SessionState, result *ConsolidationResult) error {
	var recurring []uuid.UUID
	for id, count := range state.Counts {
		if count >= sessionRecurrenceFloor {
			recurring = append(recurring, id)
		}
	}
	if len(recurring) < 2 {
		return nil
	}

	metas, err := c.items.GetBatch(ctx, recurring)
	if err != nil {
		return fmt.Errorf("load recurring metadata: %w", err)
	}

	for i := 0; i < len(recurring); i++ {
		for j := i + 1; j < len(recurring); j++ {
			ma, okA := metas[recurring[i]]
			mb, okB := metas[recurring[j]]
			if !okA || !okB || ma.Namespace != mb.Namespace {
				continue
			}
			a, b := domain.CanonicalPair(recurring[i], recurring[j])
			if err := c.edges.Reinforce(ctx, a, b, domain.EdgeRelatedTo, ma.Namespace, sessionEdgeDelta, "consolidation", domain.ActorRule); err != nil {
				return fmt.Errorf("reinforce recurring pair: %w", err)
			}
			result.EdgesReinforced++
		}
	}
	return nil
}

// promoteHypotheses upgrades hypotheses that were confirmed used in the
// session and carry no unresolved contradiction.
func (c *Consolidator) promoteHypotheses(ctx context.Context, state *SessionState, result *ConsolidationResult) error {
	if len(state.Used) == 0 {
		return nil
	}
	usedIDs := make([]uuid.UUID, 0, len(state.Used))
	for id := range state.Used {
		usedIDs = append(usedIDs, id)
	}

	metas, err := c.items.GetBatch(ctx, usedIDs)
	if err != nil {
		return fmt.Errorf("load used metadata: %w", err)
	}

	for _, id := range usedIDs {
		m, ok := metas[id]
		if !ok || m.NoteType != domain.NoteHypothesis {
			continue
		}
		contradicted, err := c.hasOpenContradiction(ctx, id, m.Namespace)
		if err != nil {
			return err
		}
		if contradicted {
			continue
		}
		if err := c.items.SetNoteType(ctx, id, domain.NoteAgentFinding); err != nil {
			return fmt.Errorf("promote hypothesis %s: %w", id, err)
		}
		result.HypothesesPromoted++
		c.logger.Info("hypothesis promoted", zap.String("item", id.String()))
	}
	return nil
}

func (c *Consolidator) hasOpenContradiction(ctx context.Context, id uuid.UUID, ns string) (bool, error) {
	edges, err := c.edges.ByNode(ctx, id, ns)
	if err != nil {
		return false, fmt.Errorf("scan contradictions for %s: %w", id, err)
	}
	for _, e := range edges {
		if e.Type != domain.EdgeContradicts {
			continue
		}
		if e.ConflictState == nil || !e.ConflictState.Resolved() {
			return true, nil
		}
	}
	return false, nil
}
