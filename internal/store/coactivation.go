package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/terracehq/terrace/internal/domain"
)

type CoactivationStore struct {
	db *pgxpool.Pool
}

func NewCoactivationStore(db *pgxpool.Pool) *CoactivationStore {
	return &CoactivationStore{db: db}
}

func (s *CoactivationStore) Increment(ctx context.Context, ns string, a, b uuid.UUID) error {
	a, b = domain.CanonicalPair(a, b)
	if a == b {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO coactivations (namespace, item_a, item_b, count)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (namespace, item_a, item_b) DO UPDATE
		 SET count = coactivations.count + 1, updated_at = NOW()`,
		ns, a, b,
	)
	return err
}

func (s *CoactivationStore) ByNamespace(ctx context.Context, ns string, minCount int) ([]domain.CoactivationPair, error) {
	rows, err := s.db.Query(ctx,
		`SELECT namespace, item_a, item_b, count, updated_at
		 FROM coactivations
		 WHERE namespace = $1 AND count >= $2
		 ORDER BY count DESC`,
		ns, minCount,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []domain.CoactivationPair
	for rows.Next() {
		var p domain.CoactivationPair
		if err := rows.Scan(&p.Namespace, &p.ItemA, &p.ItemB, &p.Count, &p.UpdatedAt); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func (s *CoactivationStore) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT namespace FROM coactivations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var namespaces []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces, rows.Err()
}
