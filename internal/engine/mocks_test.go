package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
	"github.com/terracehq/terrace/internal/store"
)

// --- stats ---

type mockStatsStore struct {
	mu    sync.Mutex
	stats map[uuid.UUID]*domain.NodeStats
}

func newMockStatsStore() *mockStatsStore {
	return &mockStatsStore{stats: make(map[uuid.UUID]*domain.NodeStats)}
}

func (m *mockStatsStore) Get(_ context.Context, itemID uuid.UUID) (*domain.NodeStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[itemID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *mockStatsStore) GetOrCreate(_ context.Context, itemID uuid.UUID) (*domain.NodeStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[itemID]
	if !ok {
		st = domain.NewNodeStats(itemID)
		m.stats[itemID] = st
	}
	cp := *st
	return &cp, nil
}

func (m *mockStatsStore) RecordRetrieval(_ context.Context, itemID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.ensure(itemID)
	st.LastRetrievedAt = &at
	if st.RecentWindowStart == nil || at.Sub(*st.RecentWindowStart) > 24*time.Hour {
		start := at
		st.RecentWindowStart = &start
		st.RecentRetrievals = 1
	} else {
		st.RecentRetrievals++
	}
	return nil
}

func (m *mockStatsStore) MarkUsed(_ context.Context, itemID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(itemID).LastUsedAt = &at
	return nil
}

func (m *mockStatsStore) IncrementRetrievalCount(_ context.Context, itemID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(itemID).RetrievalCount++
	return nil
}

func (m *mockStatsStore) IncrementIgnored(_ context.Context, itemID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(itemID).IgnoredCount++
	return nil
}

func (m *mockStatsStore) IncrementMisleading(_ context.Context, itemID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.ensure(itemID)
	st.MisleadingCount++
	return st.MisleadingCount, nil
}

func (m *mockStatsStore) AdjustSalience(_ context.Context, itemID uuid.UUID, delta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.ensure(itemID)
	st.Salience = domain.Clamp01(st.Salience + delta)
	return nil
}

func (m *mockStatsStore) AdjustStrength(_ context.Context, itemID uuid.UUID, delta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.ensure(itemID)
	st.Strength = domain.Clamp01(st.Strength + delta)
	return nil
}

func (m *mockStatsStore) AdjustClassPrior(_ context.Context, itemID uuid.UUID, class domain.QueryClass, delta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.ensure(itemID)
	if st.ClassPriors == nil {
		st.ClassPriors = map[domain.QueryClass]float64{}
	}
	st.ClassPriors[class] += delta
	return nil
}

func (m *mockStatsStore) CapSalience(_ context.Context, itemID uuid.UUID, ceiling float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.ensure(itemID)
	if st.Salience > ceiling {
		st.Salience = ceiling
	}
	return nil
}

func (m *mockStatsStore) ApplyDecay(_ context.Context, _ time.Time, _ float64) (int64, error) {
	return 0, nil
}

func (m *mockStatsStore) ensure(itemID uuid.UUID) *domain.NodeStats {
	st, ok := m.stats[itemID]
	if !ok {
		st = domain.NewNodeStats(itemID)
		m.stats[itemID] = st
	}
	return st
}

// --- edges ---

type edgeKey struct {
	from, to uuid.UUID
	typ      domain.EdgeType
	ns       string
}

type mockEdgeStore struct {
	mu    sync.Mutex
	edges map[edgeKey]*domain.Edge
}

func newMockEdgeStore() *mockEdgeStore {
	return &mockEdgeStore{edges: make(map[edgeKey]*domain.Edge)}
}

func (m *mockEdgeStore) Upsert(_ context.Context, e *domain.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := edgeKey{e.FromID, e.ToID, e.Type, e.Namespace}
	if existing, ok := m.edges[key]; ok {
		if e.Weight > existing.Weight {
			existing.Weight = e.Weight
		}
		existing.UpdatedAt = time.Now()
		return nil
	}
	cp := *e
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.Type == domain.EdgeContradicts && cp.ConflictState == nil {
		state := domain.ConflictUnreviewed
		cp.ConflictState = &state
	}
	m.edges[key] = &cp
	return nil
}

func (m *mockEdgeStore) Reinforce(_ context.Context, from, to uuid.UUID, typ domain.EdgeType, ns string, delta float64, actorID string, actorKind domain.ActorKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := edgeKey{from, to, typ, ns}
	e, ok := m.edges[key]
	if !ok {
		e = &domain.Edge{ID: uuid.New(), FromID: from, ToID: to, Type: typ, Namespace: ns, ActorID: actorID, ActorKind: actorKind}
		m.edges[key] = e
	}
	e.Weight = domain.Clamp01(e.Weight + delta)
	e.UpdatedAt = time.Now()
	return nil
}

func (m *mockEdgeStore) RaiseFloor(_ context.Context, from, to uuid.UUID, typ domain.EdgeType, ns string, floor float64, actorID string, actorKind domain.ActorKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := edgeKey{from, to, typ, ns}
	e, ok := m.edges[key]
	if !ok {
		e = &domain.Edge{ID: uuid.New(), FromID: from, ToID: to, Type: typ, Namespace: ns, ActorID: actorID, ActorKind: actorKind}
		m.edges[key] = e
	}
	if e.Weight < floor {
		e.Weight = domain.Clamp01(floor)
	}
	if typ == domain.EdgeContradicts && e.ConflictState == nil {
		state := domain.ConflictUnreviewed
		e.ConflictState = &state
	}
	e.UpdatedAt = time.Now()
	return nil
}

func (m *mockEdgeStore) Get(_ context.Context, from, to uuid.UUID, typ domain.EdgeType, ns string) (*domain.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.edges[edgeKey{from, to, typ, ns}]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockEdgeStore) ByNode(_ context.Context, itemID uuid.UUID, ns string) ([]domain.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Edge
	for _, e := range m.edges {
		if e.Namespace == ns && (e.FromID == itemID || e.ToID == itemID) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockEdgeStore) ByType(_ context.Context, ns string, typ domain.EdgeType) ([]domain.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Edge
	for _, e := range m.edges {
		if e.Namespace == ns && e.Type == typ {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockEdgeStore) Between(_ context.Context, ids []uuid.UUID, ns string) ([]domain.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		in[id] = true
	}
	var out []domain.Edge
	for _, e := range m.edges {
		if e.Namespace == ns && in[e.FromID] && in[e.ToID] {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockEdgeStore) SetConflictState(_ context.Context, id uuid.UUID, state domain.ConflictState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.edges {
		if e.ID == id {
			s := state
			e.ConflictState = &s
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockEdgeStore) PruneWeak(_ context.Context, threshold float64, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pruned int64
	for key, e := range m.edges {
		if e.Type == domain.EdgeContradicts {
			continue
		}
		if e.Weight < threshold && e.UpdatedAt.Before(cutoff) {
			delete(m.edges, key)
			pruned++
		}
	}
	return pruned, nil
}

func (m *mockEdgeStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.edges)
}

// --- coactivation ---

type mockCoactivationStore struct {
	mu    sync.Mutex
	pairs map[string]map[[2]uuid.UUID]int
}

func newMockCoactivationStore() *mockCoactivationStore {
	return &mockCoactivationStore{pairs: make(map[string]map[[2]uuid.UUID]int)}
}

func (m *mockCoactivationStore) Increment(_ context.Context, ns string, a, b uuid.UUID) error {
	if a == b {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	x, y := domain.CanonicalPair(a, b)
	if m.pairs[ns] == nil {
		m.pairs[ns] = make(map[[2]uuid.UUID]int)
	}
	m.pairs[ns][[2]uuid.UUID{x, y}]++
	return nil
}

func (m *mockCoactivationStore) ByNamespace(_ context.Context, ns string, minCount int) ([]domain.CoactivationPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CoactivationPair
	for key, count := range m.pairs[ns] {
		if count >= minCount {
			out = append(out, domain.CoactivationPair{Namespace: ns, ItemA: key[0], ItemB: key[1], Count: count})
		}
	}
	return out, nil
}

func (m *mockCoactivationStore) Namespaces(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for ns := range m.pairs {
		out = append(out, ns)
	}
	return out, nil
}

// --- receipts ---

type mockReceiptStore struct {
	mu       sync.Mutex
	receipts map[uuid.UUID]*domain.Receipt
}

func newMockReceiptStore() *mockReceiptStore {
	return &mockReceiptStore{receipts: make(map[uuid.UUID]*domain.Receipt)}
}

func (m *mockReceiptStore) Append(_ context.Context, r *domain.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.receipts[r.ID] = &cp
	return nil
}

func (m *mockReceiptStore) Get(_ context.Context, id uuid.UUID) (*domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockReceiptStore) List(_ context.Context, ns string, since *time.Time, limit int) ([]domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Receipt
	for _, r := range m.receipts {
		out = append(out, *r)
	}
	return out, nil
}

// --- items ---

type mockItemStore struct {
	mu       sync.Mutex
	metas    map[uuid.UUID]domain.ItemMeta
	concepts map[string]uuid.UUID
}

func newMockItemStore() *mockItemStore {
	return &mockItemStore{
		metas:    make(map[uuid.UUID]domain.ItemMeta),
		concepts: make(map[string]uuid.UUID),
	}
}

func (m *mockItemStore) add(meta domain.ItemMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metas[meta.ID] = meta
}

func (m *mockItemStore) Get(_ context.Context, itemID uuid.UUID) (*domain.ItemMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.metas[itemID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &meta, nil
}

func (m *mockItemStore) GetBatch(_ context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]domain.ItemMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]domain.ItemMeta, len(itemIDs))
	for _, id := range itemIDs {
		if meta, ok := m.metas[id]; ok {
			out[id] = meta
		}
	}
	return out, nil
}

func (m *mockItemStore) Quarantine(_ context.Context, itemID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.metas[itemID]
	if !ok {
		return store.ErrNotFound
	}
	meta.Status = domain.StatusQuarantined
	m.metas[itemID] = meta
	return nil
}

func (m *mockItemStore) FindConcept(_ context.Context, ns, clusterKey string) (*domain.ItemMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.concepts[ns+"/"+clusterKey]
	if !ok {
		return nil, store.ErrNotFound
	}
	meta := m.metas[id]
	return &meta, nil
}

func (m *mockItemStore) CreateConcept(_ context.Context, ns, clusterKey string) (*domain.ItemMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.concepts[ns+"/"+clusterKey]; ok {
		meta := m.metas[id]
		return &meta, nil
	}
	meta := domain.ItemMeta{
		ID:          uuid.New(),
		Namespace:   ns,
		AccessScope: domain.ScopeShared,
		NoteType:    domain.NoteConcept,
		Status:      domain.StatusActive,
	}
	m.metas[meta.ID] = meta
	m.concepts[ns+"/"+clusterKey] = meta.ID
	return &meta, nil
}

func (m *mockItemStore) SetNoteType(_ context.Context, itemID uuid.UUID, t domain.NoteType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.metas[itemID]
	if !ok {
		return store.ErrNotFound
	}
	meta.NoteType = t
	m.metas[itemID] = meta
	return nil
}

// --- collaborators ---

type stubScout struct {
	kind domain.ScoutKind
	hits []domain.ScoutHit
	err  error
}

func (s *stubScout) Kind() domain.ScoutKind { return s.kind }

func (s *stubScout) Search(context.Context, string, []string, int) ([]domain.ScoutHit, error) {
	return s.hits, s.err
}

type stubLinks struct {
	neighbors map[uuid.UUID][]uuid.UUID
}

func (s *stubLinks) Neighbors(_ context.Context, itemID uuid.UUID, _ string, _ int) ([]uuid.UUID, error) {
	return s.neighbors[itemID], nil
}

type stubInterpret struct {
	selection *domain.InterpretiveSelection
	err       error
	calls     int
}

func (s *stubInterpret) Select(_ context.Context, _ string, candidates []domain.Candidate) (*domain.InterpretiveSelection, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.selection != nil {
		return s.selection, nil
	}
	sel := &domain.InterpretiveSelection{Confidence: 0.9}
	for _, c := range candidates {
		sel.Chosen = append(sel.Chosen, c.ItemID)
	}
	return sel, nil
}
