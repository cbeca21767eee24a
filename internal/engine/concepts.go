package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
	"go.uber.org/zap"
)

// Concept formation defaults.
const (
	DefaultMinClusterSize = 3
	DefaultMinPairCount   = 3
	ConceptSalienceCap    = 0.85
	conceptMemberWeight   = 0.6
)

// ConceptResult summarizes one formation pass.
type ConceptResult struct {
	NamespacesScanned int         `json:"namespaces_scanned"`
	ClustersFound     int         `json:"clusters_found"`
	ConceptsCreated   int         `json:"concepts_created"`
	ConceptsRefreshed int         `json:"concepts_refreshed"`
	ConceptIDs        []uuid.UUID `json:"concept_ids,omitempty"`
}

// ConceptService turns stable coactivation clusters into concept aggregates.
// Concepts are gateways: salience is hard-capped on every write and the
// ranker damps recently overused concepts, so they co-present with members
// rather than replacing them.
type ConceptService struct {
	coact  domain.CoactivationStore
	items  domain.ItemStore
	edges  domain.EdgeStore
	stats  domain.StatsStore
	logger *zap.Logger

	MinClusterSize int
	MinPairCount   int
	SalienceCap    float64
}

func NewConceptService(coact domain.CoactivationStore, items domain.ItemStore, edges domain.EdgeStore, stats domain.StatsStore, logger *zap.Logger) *ConceptService {
	return &ConceptService{
		coact:          coact,
		items:          items,
		edges:          edges,
		stats:          stats,
		logger:         logger,
		MinClusterSize: DefaultMinClusterSize,
		MinPairCount:   DefaultMinPairCount,
		SalienceCap:    ConceptSalienceCap,
	}
}

// FormConcepts scans every namespace's coactivation records, clusters pairs
// meeting the minimum count, and finds-or-creates one concept per qualifying
// cluster. Idempotent on cluster identity: re-running over the same pairs
// refreshes rather than duplicates.
func (s *ConceptService) FormConcepts(ctx context.Context) (*ConceptResult, error) {
	namespaces, err := s.coact.Namespaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list coactivation namespaces: %w", err)
	}

	result := &ConceptResult{}
	for _, ns := range namespaces {
		result.NamespacesScanned++
		if err := s.formForNamespace(ctx, ns, result); err != nil {
			return nil, err
		}
	}
	s.logger.Info("concept formation complete",
		zap.Int("namespaces", result.NamespacesScanned),
		zap.Int("clusters", result.ClustersFound),
		zap.Int("created", result.ConceptsCreated),
		zap.Int("refreshed", result.ConceptsRefreshed))
	return result, nil
}

func (s *ConceptService) formForNamespace(ctx context.Context, ns string, result *ConceptResult) error {
	pairs, err := s.coact.ByNamespace(ctx, ns, s.MinPairCount)
	if err != nil {
		return fmt.Errorf("load coactivations for %s: %w", ns, err)
	}

	for _, cluster := range clusterPairs(ns, pairs) {
		if len(cluster.Members) < s.MinClusterSize {
			continue
		}
		result.ClustersFound++

		concept, created, err := s.findOrCreate(ctx, cluster)
		if err != nil {
			return err
		}
		if created {
			result.ConceptsCreated++
		} else {
			result.ConceptsRefreshed++
		}
		result.ConceptIDs = append(result.ConceptIDs, concept.ID)

		for _, member := range cluster.Members {
			e := &domain.Edge{
				FromID:    member,
				ToID:      concept.ID,
				Type:      domain.EdgeIsExampleOf,
				Namespace: cluster.Namespace,
				Weight:    conceptMemberWeight,
				ActorID:   "concept-formation",
				ActorKind: domain.ActorRule,
			}
			if err := s.edges.Upsert(ctx, e); err != nil {
				return fmt.Errorf("link member %s: %w", member, err)
			}
		}

		if _, err := s.stats.GetOrCreate(ctx, concept.ID); err != nil {
			return fmt.Errorf("init concept stats: %w", err)
		}
		if err := s.stats.CapSalience(ctx, concept.ID, s.SalienceCap); err != nil {
			return fmt.Errorf("cap concept salience: %w", err)
		}
	}
	return nil
}

func (s *ConceptService) findOrCreate(ctx context.Context, cluster domain.ConceptCluster) (*domain.ItemMeta, bool, error) {
	key := cluster.Key()
	if existing, err := s.items.FindConcept(ctx, cluster.Namespace, key); err == nil && existing != nil {
		return existing, false, nil
	}
	concept, err := s.items.CreateConcept(ctx, cluster.Namespace, key)
	if err != nil {
		return nil, false, fmt.Errorf("create concept for cluster %s: %w", key, err)
	}
	return concept, true, nil
}

// clusterPairs groups coactivation pairs into connected components.
func clusterPairs(ns string, pairs []domain.CoactivationPair) []domain.ConceptCluster {
	adj := make(map[uuid.UUID][]uuid.UUID)
	for _, p := range pairs {
		adj[p.ItemA] = append(adj[p.ItemA], p.ItemB)
		adj[p.ItemB] = append(adj[p.ItemB], p.ItemA)
	}

	nodes := make([]uuid.UUID, 0, len(adj))
	for id := range adj {
		nodes = append(nodes, id)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].String() < nodes[j].String() })

	visited := make(map[uuid.UUID]bool, len(adj))
	var clusters []domain.ConceptCluster
	for _, start := range nodes {
		if visited[start] {
			continue
		}
		var members []uuid.UUID
		queue := []uuid.UUID{start}
		visited[start] = true
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			members = append(members, id)
			for _, next := range adj[id] {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
		clusters = append(clusters, domain.ConceptCluster{Namespace: ns, Members: members})
	}
	return clusters
}
