package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTopK         = 8
	DefaultScoutTimeout = 800 * time.Millisecond

	// Escalation thresholds. Low temperature alone never escalates; that is
	// the documented policy, not an oversight.
	DefaultTemperatureLow  = 0.25
	DefaultTemperatureHigh = 0.6

	scoutFanK          = 50
	graphSeedCount     = 10
	graphNeighborScore = 0.3

	// Terrace 2 retries its follow-up query at most once.
	followupConfidence = 0.5
)

var (
	ErrQueryEmpty        = errors.New("query must not be empty")
	ErrNoNamespaces      = errors.New("query must name at least one namespace")
	ErrInvalidQueryClass = errors.New("unknown query class")
)

// needsSynthesis are the classes that escalate to terrace 2 at the low
// temperature threshold.
var needsSynthesis = map[domain.QueryClass]bool{
	domain.QueryClassDesign:    true,
	domain.QueryClassSynthesis: true,
}

// RetrievalService runs the full pipeline: scout fan-out, pool merge with
// gating, graph expansion, terrace-1 ranking, coherence, optional
// exploration and terrace-2 interpretive selection, receipt append.
type RetrievalService struct {
	scouts    []domain.Scout
	explorer  domain.Scout
	links     domain.LinkClient
	items     domain.ItemStore
	stats     domain.StatsStore
	edges     domain.EdgeStore
	coact     domain.CoactivationStore
	receipts  domain.ReceiptStore
	interpret domain.InterpretiveClient
	conflicts *ConflictService
	ranker    *Ranker
	sessions  *SessionTracker
	logger    *zap.Logger

	scoutTimeout time.Duration
	tempLow      float64
	tempHigh     float64
	now          func() time.Time
}

func NewRetrievalService(
	scouts []domain.Scout,
	explorer domain.Scout,
	links domain.LinkClient,
	items domain.ItemStore,
	stats domain.StatsStore,
	edges domain.EdgeStore,
	coact domain.CoactivationStore,
	receipts domain.ReceiptStore,
	interpret domain.InterpretiveClient,
	conflicts *ConflictService,
	sessions *SessionTracker,
	logger *zap.Logger,
) *RetrievalService {
	return &RetrievalService{
		scouts:       scouts,
		explorer:     explorer,
		links:        links,
		items:        items,
		stats:        stats,
		edges:        edges,
		coact:        coact,
		receipts:     receipts,
		interpret:    interpret,
		conflicts:    conflicts,
		ranker:       NewRanker(),
		sessions:     sessions,
		logger:       logger,
		scoutTimeout: DefaultScoutTimeout,
		tempLow:      DefaultTemperatureLow,
		tempHigh:     DefaultTemperatureHigh,
		now:          time.Now,
	}
}

// SetScoutTimeout bounds each scout call during fan-out.
func (s *RetrievalService) SetScoutTimeout(d time.Duration) { s.scoutTimeout = d }

// SetThresholds overrides the escalation temperature thresholds.
func (s *RetrievalService) SetThresholds(low, high float64) {
	s.tempLow, s.tempHigh = low, high
}

// Retrieve answers one query. The pipeline is cancellable end-to-end via
// ctx; no learning mutation happens here beyond retrieval bookkeeping
// (last-retrieved stamps, coactivation counts, session tracking).
func (s *RetrievalService) Retrieve(ctx context.Context, q *domain.QueryContext) (*domain.RetrievalResult, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, ErrQueryEmpty
	}
	if len(q.Namespaces) == 0 {
		return nil, ErrNoNamespaces
	}
	if !domain.ValidQueryClass(string(q.QueryClass)) {
		return nil, ErrInvalidQueryClass
	}
	topK := q.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	// Terrace 0: concurrent fan-out, gate, merge, graph expansion.
	hits, reports := s.fanOut(ctx, q.Query, q.Namespaces, s.scouts)
	pool, err := MergeCandidates(ctx, hits, q, s.items)
	if err != nil {
		return nil, err
	}
	pool, graphReport := s.expandGraph(ctx, q, pool)
	reports = append(reports, graphReport)
	candidateCount := len(pool)

	// Terrace 1: stats-informed re-rank plus diversity.
	stats, edges, err := s.loadContext(ctx, q, pool)
	if err != nil {
		return nil, err
	}
	ranked := s.ranker.Rank(pool, stats, edges, q, s.now())
	temp := Temperature(topIDs(ranked, DefaultCoherenceTopK), edges)

	// High temperature buys one exploration round and one re-rank.
	if temp > s.tempHigh && s.explorer != nil {
		pool, ranked, temp, reports = s.explore(ctx, q, pool, reports)
	}

	conflicts, err := s.conflicts.Touching(ctx, topIDs(ranked, DefaultCoherenceTopK), q.Namespaces)
	if err != nil {
		return nil, err
	}

	// Terrace 2: expensive interpretive pass, only when the policy says so.
	terraceDepth := 1
	if s.shouldEscalate(q.QueryClass, temp, len(conflicts) > 0) && len(ranked) > 0 && s.interpret != nil {
		ranked = s.interpretiveSelect(ctx, q, ranked, temp)
		terraceDepth = 2
	}

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	selections := toSelections(ranked)

	notices := conflicts
	if !SurfaceFor(q.QueryClass) {
		notices = nil
	}

	receipt := &domain.Receipt{
		ID:             uuid.New(),
		Query:          q.Query,
		Namespaces:     q.Namespaces,
		QueryClass:     q.QueryClass,
		Temperature:    temp,
		Scouts:         reports,
		CandidateCount: candidateCount,
		RankedCount:    len(ranked),
		TerraceDepth:   terraceDepth,
		Selections:     selections,
		Conflicts:      notices,
		CreatedAt:      s.now(),
	}
	if err := s.receipts.Append(ctx, receipt); err != nil {
		return nil, fmt.Errorf("append receipt: %w", err)
	}

	s.recordRetrieval(ctx, q, ranked)

	return &domain.RetrievalResult{
		ReceiptID:    receipt.ID,
		SessionID:    q.SessionID,
		QueryClass:   q.QueryClass,
		Items:        selections,
		Temperature:  temp,
		TerraceDepth: terraceDepth,
		Conflicts:    notices,
	}, nil
}

// fanOut dispatches all scouts concurrently with a bounded per-scout
// timeout. A slow or failing scout contributes nothing and is recorded in
// the receipt as not fired; it never blocks the others.
func (s *RetrievalService) fanOut(ctx context.Context, query string, namespaces []string, scouts []domain.Scout) ([]domain.ScoutHit, []domain.ScoutReport) {
	var (
		mu      sync.Mutex
		hits    []domain.ScoutHit
		reports = make([]domain.ScoutReport, 0, len(scouts))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, sc := range scouts {
		sc := sc
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, s.scoutTimeout)
			defer cancel()

			found, err := sc.Search(cctx, query, namespaces, scoutFanK)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("scout failed", zap.String("scout", string(sc.Kind())), zap.Error(err))
				reports = append(reports, domain.ScoutReport{Kind: sc.Kind(), Error: err.Error()})
				return nil
			}
			hits = append(hits, found...)
			reports = append(reports, domain.ScoutReport{Kind: sc.Kind(), Fired: true, Hits: len(found)})
			return nil
		})
	}
	_ = g.Wait()
	return hits, reports
}

// expandGraph seeds the link collaborator with the top merged candidates and
// folds gated neighbors back into the pool at a modest baseline score.
func (s *RetrievalService) expandGraph(ctx context.Context, q *domain.QueryContext, pool []domain.Candidate) ([]domain.Candidate, domain.ScoutReport) {
	report := domain.ScoutReport{Kind: domain.ScoutGraph}
	if s.links == nil || len(pool) == 0 {
		return pool, report
	}

	inPool := make(map[uuid.UUID]bool, len(pool))
	for _, c := range pool {
		inPool[c.ItemID] = true
	}

	seeds := pool
	if len(seeds) > graphSeedCount {
		seeds = seeds[:graphSeedCount]
	}

	var discovered []uuid.UUID
	for _, seed := range seeds {
		neighbors, err := s.links.Neighbors(ctx, seed.ItemID, "both", 1)
		if err != nil {
			s.logger.Warn("graph expansion failed", zap.String("seed", seed.ItemID.String()), zap.Error(err))
			report.Error = err.Error()
			return pool, report
		}
		for _, id := range neighbors {
			if !inPool[id] {
				inPool[id] = true
				discovered = append(discovered, id)
			}
		}
	}
	report.Fired = true
	if len(discovered) == 0 {
		return pool, report
	}

	metas, err := s.items.GetBatch(ctx, discovered)
	if err != nil {
		report.Error = err.Error()
		return pool, report
	}
	for _, id := range discovered {
		m, ok := metas[id]
		if !ok || !admits(&m, q) {
			continue
		}
		pool = append(pool, domain.Candidate{
			ItemID:  id,
			Meta:    m,
			Score:   graphNeighborScore,
			Scouts:  []domain.ScoutKind{domain.ScoutGraph},
			Reasons: []string{"graph neighbor of a top candidate"},
		})
		report.Hits++
	}
	return pool, report
}

// loadContext fetches node stats (created lazily at the default salience)
// and the edges among the pool for ranking and coherence.
func (s *RetrievalService) loadContext(ctx context.Context, q *domain.QueryContext, pool []domain.Candidate) (map[uuid.UUID]*domain.NodeStats, []domain.Edge, error) {
	stats := make(map[uuid.UUID]*domain.NodeStats, len(pool))
	ids := make([]uuid.UUID, 0, len(pool))
	for _, c := range pool {
		st, err := s.stats.GetOrCreate(ctx, c.ItemID)
		if err != nil {
			return nil, nil, fmt.Errorf("load node stats: %w", err)
		}
		stats[c.ItemID] = st
		ids = append(ids, c.ItemID)
	}

	var edges []domain.Edge
	for _, ns := range q.Namespaces {
		found, err := s.edges.Between(ctx, ids, ns)
		if err != nil {
			return nil, nil, fmt.Errorf("load pool edges: %w", err)
		}
		edges = append(edges, found...)
	}
	return stats, edges, nil
}

// explore runs the exploration scout once, folds its hits into the pool, and
// re-ranks a single time.
func (s *RetrievalService) explore(ctx context.Context, q *domain.QueryContext, pool []domain.Candidate, reports []domain.ScoutReport) ([]domain.Candidate, []RankedCandidate, float64, []domain.ScoutReport) {
	extraHits, extraReports := s.fanOut(ctx, q.Query, q.Namespaces, []domain.Scout{s.explorer})
	reports = append(reports, extraReports...)

	extra, err := MergeCandidates(ctx, extraHits, q, s.items)
	if err != nil {
		s.logger.Warn("exploration merge failed", zap.Error(err))
		extra = nil
	}
	inPool := make(map[uuid.UUID]bool, len(pool))
	for _, c := range pool {
		inPool[c.ItemID] = true
	}
	for _, c := range extra {
		if !inPool[c.ItemID] {
			pool = append(pool, c)
		}
	}

	stats, edges, err := s.loadContext(ctx, q, pool)
	if err != nil {
		s.logger.Warn("exploration re-rank failed", zap.Error(err))
		stats, edges = map[uuid.UUID]*domain.NodeStats{}, nil
	}
	ranked := s.ranker.Rank(pool, stats, edges, q, s.now())
	temp := Temperature(topIDs(ranked, DefaultCoherenceTopK), edges)
	return pool, ranked, temp, reports
}

// shouldEscalate is the terrace-2 policy: contradictions touching the top
// set always escalate; otherwise escalation needs either a needs-synthesis
// class above the low threshold or any class above the high threshold.
func (s *RetrievalService) shouldEscalate(class domain.QueryClass, temp float64, conflictsTouching bool) bool {
	if conflictsTouching {
		return true
	}
	if needsSynthesis[class] && temp > s.tempLow {
		return true
	}
	return temp > s.tempHigh
}

// interpretiveSelect delegates the final narrowing to the external
// interpretive collaborator, with a single follow-up retry when its own
// confidence is low and temperature remains high. Collaborator failure
// degrades to the terrace-1 order.
func (s *RetrievalService) interpretiveSelect(ctx context.Context, q *domain.QueryContext, ranked []RankedCandidate, temp float64) []RankedCandidate {
	candidates := make([]domain.Candidate, len(ranked))
	for i, rc := range ranked {
		candidates[i] = rc.Candidate
	}

	sel, err := s.interpret.Select(ctx, q.Query, candidates)
	if err != nil {
		s.logger.Warn("interpretive selection failed, keeping terrace-1 order", zap.Error(err))
		return ranked
	}

	if sel.Confidence < followupConfidence && temp > s.tempHigh && len(sel.Followups) > 0 {
		retried := s.followUp(ctx, q, ranked, sel.Followups[0])
		if retried != nil {
			return retried
		}
	}
	return chosenSubset(ranked, sel.Chosen)
}

// followUp runs the scouts once more on the selector's refined query, merges
// the results into the working set, and asks for a final selection. One
// retry only, to bound cost.
func (s *RetrievalService) followUp(ctx context.Context, q *domain.QueryContext, ranked []RankedCandidate, followup string) []RankedCandidate {
	hits, _ := s.fanOut(ctx, followup, q.Namespaces, s.scouts)
	extra, err := MergeCandidates(ctx, hits, q, s.items)
	if err != nil {
		s.logger.Warn("follow-up merge failed", zap.Error(err))
		return nil
	}

	pool := make([]domain.Candidate, 0, len(ranked)+len(extra))
	inPool := make(map[uuid.UUID]bool, len(ranked))
	for _, rc := range ranked {
		pool = append(pool, rc.Candidate)
		inPool[rc.ItemID] = true
	}
	for _, c := range extra {
		if !inPool[c.ItemID] {
			pool = append(pool, c)
		}
	}

	stats, edges, err := s.loadContext(ctx, q, pool)
	if err != nil {
		s.logger.Warn("follow-up re-rank failed", zap.Error(err))
		return nil
	}
	reranked := s.ranker.Rank(pool, stats, edges, q, s.now())

	candidates := make([]domain.Candidate, len(reranked))
	for i, rc := range reranked {
		candidates[i] = rc.Candidate
	}
	sel, err := s.interpret.Select(ctx, followup, candidates)
	if err != nil {
		s.logger.Warn("follow-up selection failed", zap.Error(err))
		return nil
	}
	return chosenSubset(reranked, sel.Chosen)
}

// recordRetrieval stamps retrieval bookkeeping for the final set: last
// retrieved timestamps, coactivation counts for same-namespace pairs, and
// the session working-memory tracker.
func (s *RetrievalService) recordRetrieval(ctx context.Context, q *domain.QueryContext, ranked []RankedCandidate) {
	now := s.now()
	ids := make([]uuid.UUID, 0, len(ranked))
	for _, rc := range ranked {
		ids = append(ids, rc.ItemID)
		if err := s.stats.RecordRetrieval(ctx, rc.ItemID, now); err != nil {
			s.logger.Warn("record retrieval failed", zap.String("item", rc.ItemID.String()), zap.Error(err))
		}
	}
	for i := 0; i < len(ranked); i++ {
		for j := i + 1; j < len(ranked); j++ {
			if ranked[i].Meta.Namespace != ranked[j].Meta.Namespace {
				continue
			}
			if err := s.coact.Increment(ctx, ranked[i].Meta.Namespace, ranked[i].ItemID, ranked[j].ItemID); err != nil {
				s.logger.Warn("coactivation increment failed", zap.Error(err))
			}
		}
	}
	s.sessions.Observe(q.SessionID, q.Namespaces, ids)
}

func chosenSubset(ranked []RankedCandidate, chosen []uuid.UUID) []RankedCandidate {
	if len(chosen) == 0 {
		return ranked
	}
	byID := make(map[uuid.UUID]RankedCandidate, len(ranked))
	for _, rc := range ranked {
		byID[rc.ItemID] = rc
	}
	out := make([]RankedCandidate, 0, len(chosen))
	for _, id := range chosen {
		if rc, ok := byID[id]; ok {
			out = append(out, rc)
		}
	}
	if len(out) == 0 {
		return ranked
	}
	return out
}

func topIDs(ranked []RankedCandidate, k int) []uuid.UUID {
	if len(ranked) < k {
		k = len(ranked)
	}
	ids := make([]uuid.UUID, k)
	for i := 0; i < k; i++ {
		ids[i] = ranked[i].ItemID
	}
	return ids
}

func toSelections(ranked []RankedCandidate) []domain.Selection {
	out := make([]domain.Selection, 0, len(ranked))
	for _, rc := range ranked {
		out = append(out, domain.Selection{
			ItemID:  rc.ItemID,
			Score:   rc.Breakdown.FinalScore,
			Reason:  reasonFor(rc),
			Snippet: rc.Snippet,
		})
	}
	return out
}

func reasonFor(rc RankedCandidate) string {
	kinds := make([]string, len(rc.Scouts))
	for i, k := range rc.Scouts {
		kinds[i] = string(k)
	}
	b := rc.Breakdown
	return fmt.Sprintf("via %s: base %.2f, prior %.2f, graph %.2f, final %.2f",
		strings.Join(kinds, "+"), b.Base, b.TypePrior, b.GraphAffinity, b.FinalScore)
}
