package scout

import (
	"context"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/terracehq/terrace/internal/domain"
)

const recencyHalfLife = 72.0 // hours

// RecencyScout surfaces recently touched items regardless of query terms,
// scored by exponential age decay.
type RecencyScout struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewRecencyScout(db *pgxpool.Pool) *RecencyScout {
	return &RecencyScout{db: db, now: time.Now}
}

func (s *RecencyScout) Kind() domain.ScoutKind {
	return domain.ScoutRecency
}

func (s *RecencyScout) Search(ctx context.Context, _ string, namespaces []string, k int) ([]domain.ScoutHit, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, updated_at, left(content, 240)
		 FROM items
		 WHERE namespace = ANY($1) AND status = $2
		 ORDER BY updated_at DESC
		 LIMIT $3`,
		namespaces, domain.StatusActive, k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := s.now()
	var hits []domain.ScoutHit
	for rows.Next() {
		var hit domain.ScoutHit
		var updatedAt time.Time
		if err := rows.Scan(&hit.ItemID, &updatedAt, &hit.Snippet); err != nil {
			return nil, err
		}
		ageHours := now.Sub(updatedAt).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		hit.Score = math.Exp(-math.Ln2 * ageHours / recencyHalfLife)
		hit.Scout = domain.ScoutRecency
		hit.Reason = "recently updated"
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
