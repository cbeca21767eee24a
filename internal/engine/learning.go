package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
	"github.com/terracehq/terrace/internal/store"
	"go.uber.org/zap"
)

// Learning deltas. Configuration, not law, but these defaults are the
// calibration the rest of the engine assumes.
type Tunables struct {
	UsedSalienceDelta    float64
	UsedStrengthDelta    float64
	UsedClassPriorDelta  float64
	UsedEdgeDelta        float64
	IgnoredClassPenalty  float64
	ChronicIgnoreFloor   int
	ChronicSalienceDrop  float64
	MisleadingClassDrop  float64
	MisleadingSalience   float64
	QuarantineThreshold  int
	OverlapUsedThreshold float64
}

func DefaultTunables() Tunables {
	return Tunables{
		UsedSalienceDelta:    0.02,
		UsedStrengthDelta:    0.05,
		UsedClassPriorDelta:  0.02,
		UsedEdgeDelta:        0.03,
		IgnoredClassPenalty:  0.03,
		ChronicIgnoreFloor:   5,
		ChronicSalienceDrop:  0.02,
		MisleadingClassDrop:  0.08,
		MisleadingSalience:   0.05,
		QuarantineThreshold:  3,
		OverlapUsedThreshold: 0.5,
	}
}

const contentionRetries = 3

var (
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrOutcomeEmpty    = errors.New("outcome references no receipt")
)

// OutcomeReport summarizes what one learning pass did.
type OutcomeReport struct {
	Used        []uuid.UUID `json:"used"`
	Ignored     []uuid.UUID `json:"ignored"`
	Misleading  []uuid.UUID `json:"misleading"`
	Quarantined []uuid.UUID `json:"quarantined,omitempty"`
}

// LearningService consumes post-task outcomes and feeds them back into node
// stats and the graph. It only ever runs on a completed retrieval; nothing
// here executes mid-pipeline.
type LearningService struct {
	receipts domain.ReceiptStore
	stats    domain.StatsStore
	edges    domain.EdgeStore
	items    domain.ItemStore
	sessions *SessionTracker
	logger   *zap.Logger
	tunables Tunables
	now      func() time.Time
}

func NewLearningService(receipts domain.ReceiptStore, stats domain.StatsStore, edges domain.EdgeStore, items domain.ItemStore, sessions *SessionTracker, logger *zap.Logger) *LearningService {
	return &LearningService{
		receipts: receipts,
		stats:    stats,
		edges:    edges,
		items:    items,
		sessions: sessions,
		logger:   logger,
		tunables: DefaultTunables(),
		now:      time.Now,
	}
}

// SetTunables overrides the learning deltas.
func (s *LearningService) SetTunables(t Tunables) { s.tunables = t }

// ReportOutcome classifies every item of the original retrieval into exactly
// one of used, ignored, misleading, and applies the bidirectional updates.
// Contextual (per-class) adjustments always land before any global salience
// change.
func (s *LearningService) ReportOutcome(ctx context.Context, out *domain.Outcome) (*OutcomeReport, error) {
	if out.ReceiptID == uuid.Nil {
		return nil, ErrOutcomeEmpty
	}

	receipt, err := s.receipts.Get(ctx, out.ReceiptID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("load receipt: %w", err)
	}

	classes := s.classify(receipt, out)
	report := &OutcomeReport{}

	var used []uuid.UUID
	for _, sel := range receipt.Selections {
		switch classes[sel.ItemID] {
		case domain.UsageUsed:
			used = append(used, sel.ItemID)
		case domain.UsageIgnored:
			if err := s.applyIgnored(ctx, sel.ItemID, receipt.QueryClass); err != nil {
				return nil, err
			}
			report.Ignored = append(report.Ignored, sel.ItemID)
		case domain.UsageMisleading:
			quarantined, err := s.applyMisleading(ctx, sel.ItemID, receipt.QueryClass)
			if err != nil {
				return nil, err
			}
			report.Misleading = append(report.Misleading, sel.ItemID)
			if quarantined {
				report.Quarantined = append(report.Quarantined, sel.ItemID)
			}
		}
	}

	for _, id := range used {
		if err := s.applyUsed(ctx, id, receipt.QueryClass); err != nil {
			return nil, err
		}
		report.Used = append(report.Used, id)
	}
	if err := s.reinforceUsedPairs(ctx, used); err != nil {
		return nil, err
	}
	s.sessions.MarkUsed(out.SessionID, used)

	s.logger.Info("outcome applied",
		zap.String("receipt_id", receipt.ID.String()),
		zap.Int("used", len(report.Used)),
		zap.Int("ignored", len(report.Ignored)),
		zap.Int("misleading", len(report.Misleading)),
		zap.Int("quarantined", len(report.Quarantined)))
	return report, nil
}

// classify puts each returned item in exactly one usage class. Citations win
// outright; otherwise a content-overlap heuristic decides used vs. ignored;
// explicit feedback overrides either verdict.
func (s *LearningService) classify(receipt *domain.Receipt, out *domain.Outcome) map[uuid.UUID]domain.UsageClass {
	cited := make(map[uuid.UUID]bool, len(out.Citations))
	for _, id := range out.Citations {
		cited[id] = true
	}
	feedback := make(map[uuid.UUID]domain.UsageClass, len(out.Feedback))
	for _, f := range out.Feedback {
		feedback[f.ItemID] = f.Signal
	}

	classes := make(map[uuid.UUID]domain.UsageClass, len(receipt.Selections))
	for _, sel := range receipt.Selections {
		var class domain.UsageClass
		switch {
		case cited[sel.ItemID]:
			class = domain.UsageUsed
		case snippetOverlap(out.Output, sel.Snippet) >= s.tunables.OverlapUsedThreshold:
			class = domain.UsageUsed
		default:
			class = domain.UsageIgnored
		}
		if fb, ok := feedback[sel.ItemID]; ok {
			class = fb
		}
		classes[sel.ItemID] = class
	}
	return classes
}

// applyUsed is the positive path: class prior first, then counters, global
// salience, and spaced-repetition strength.
func (s *LearningService) applyUsed(ctx context.Context, id uuid.UUID, class domain.QueryClass) error {
	t := s.tunables
	steps := []func() error{
		func() error { return s.stats.AdjustClassPrior(ctx, id, class, t.UsedClassPriorDelta) },
		func() error { return s.stats.IncrementRetrievalCount(ctx, id) },
		func() error { return s.stats.AdjustSalience(ctx, id, t.UsedSalienceDelta) },
		func() error { return s.stats.AdjustStrength(ctx, id, t.UsedStrengthDelta) },
		func() error { return s.stats.MarkUsed(ctx, id, s.now()) },
	}
	for _, step := range steps {
		if err := s.withRetry(step); err != nil {
			return fmt.Errorf("reinforce %s: %w", id, err)
		}
	}
	return nil
}

// applyIgnored nudges the class prior down; salience itself only moves under
// the chronic-ignore rule.
func (s *LearningService) applyIgnored(ctx context.Context, id uuid.UUID, class domain.QueryClass) error {
	t := s.tunables
	if err := s.withRetry(func() error { return s.stats.AdjustClassPrior(ctx, id, class, -t.IgnoredClassPenalty) }); err != nil {
		return fmt.Errorf("penalize %s: %w", id, err)
	}
	if err := s.withRetry(func() error { return s.stats.IncrementIgnored(ctx, id) }); err != nil {
		return fmt.Errorf("penalize %s: %w", id, err)
	}

	st, err := s.stats.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("read stats for %s: %w", id, err)
	}
	if st.IgnoredCount > t.ChronicIgnoreFloor && st.IgnoredCount > st.RetrievalCount {
		if err := s.withRetry(func() error { return s.stats.AdjustSalience(ctx, id, -t.ChronicSalienceDrop) }); err != nil {
			return fmt.Errorf("chronic-ignore %s: %w", id, err)
		}
	}
	return nil
}

// applyMisleading penalizes hard and quarantines the item at the threshold.
func (s *LearningService) applyMisleading(ctx context.Context, id uuid.UUID, class domain.QueryClass) (bool, error) {
	t := s.tunables
	if err := s.withRetry(func() error { return s.stats.AdjustClassPrior(ctx, id, class, -t.MisleadingClassDrop) }); err != nil {
		return false, fmt.Errorf("penalize %s: %w", id, err)
	}
	if err := s.withRetry(func() error { return s.stats.AdjustSalience(ctx, id, -t.MisleadingSalience) }); err != nil {
		return false, fmt.Errorf("penalize %s: %w", id, err)
	}

	var count int
	if err := s.withRetry(func() error {
		var err error
		count, err = s.stats.IncrementMisleading(ctx, id)
		return err
	}); err != nil {
		return false, fmt.Errorf("penalize %s: %w", id, err)
	}

	if count >= t.QuarantineThreshold {
		if err := s.items.Quarantine(ctx, id); err != nil {
			return false, fmt.Errorf("quarantine %s: %w", id, err)
		}
		s.logger.Warn("item quarantined",
			zap.String("item", id.String()),
			zap.Int("misleading_count", count))
		return true, nil
	}
	return false, nil
}

// reinforceUsedPairs strengthens a related_to edge between every pair of
// used items sharing a namespace, in canonical order so reinforcement is
// symmetric. The namespace comes from the items themselves; edges never
// cross namespaces.
func (s *LearningService) reinforceUsedPairs(ctx context.Context, used []uuid.UUID) error {
	if len(used) < 2 {
		return nil
	}
	metas, err := s.items.GetBatch(ctx, used)
	if err != nil {
		return fmt.Errorf("load used metadata: %w", err)
	}
	for i := 0; i < len(used); i++ {
		for j := i + 1; j < len(used); j++ {
			ma, okA := metas[used[i]]
			mb, okB := metas[used[j]]
			if !okA || !okB || ma.Namespace != mb.Namespace {
				continue
			}
			a, b := domain.CanonicalPair(used[i], used[j])
			err := s.withRetry(func() error {
				return s.edges.Reinforce(ctx, a, b, domain.EdgeRelatedTo, ma.Namespace, s.tunables.UsedEdgeDelta, "learning", domain.ActorRule)
			})
			if err != nil {
				return fmt.Errorf("reinforce pair %s/%s: %w", a, b, err)
			}
		}
	}
	return nil
}

// withRetry retries store contention a bounded number of times; any other
// error surfaces immediately.
func (s *LearningService) withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < contentionRetries; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, store.ErrContention) {
			return err
		}
	}
	return err
}

// snippetOverlap is the used/ignored heuristic: the fraction of meaningful
// snippet words that reappear in the produced output.
func snippetOverlap(output, snippet string) float64 {
	if output == "" || snippet == "" {
		return 0
	}
	outWords := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(output)) {
		outWords[strings.Trim(w, ".,;:!?\"'()")] = true
	}

	total, matched := 0, 0
	for _, w := range strings.Fields(strings.ToLower(snippet)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) < 4 {
			continue
		}
		total++
		if outWords[w] {
			matched++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}
