package scout

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/terracehq/terrace/internal/domain"
)

// LexicalScout runs Postgres full-text search over the item content the
// external indexer keeps alongside metadata. Ranks normalize to [0,1] via
// r/(r+1) since ts_rank_cd is unbounded.
type LexicalScout struct {
	db *pgxpool.Pool
}

func NewLexicalScout(db *pgxpool.Pool) *LexicalScout {
	return &LexicalScout{db: db}
}

func (s *LexicalScout) Kind() domain.ScoutKind {
	return domain.ScoutLexical
}

func (s *LexicalScout) Search(ctx context.Context, query string, namespaces []string, k int) ([]domain.ScoutHit, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, ts_rank_cd(content_tsv, q) AS rank, left(content, 240)
		 FROM items, websearch_to_tsquery('english', $1) q
		 WHERE content_tsv @@ q
		   AND namespace = ANY($2)
		   AND status = $3
		 ORDER BY rank DESC
		 LIMIT $4`,
		query, namespaces, domain.StatusActive, k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []domain.ScoutHit
	for rows.Next() {
		var hit domain.ScoutHit
		var rank float64
		if err := rows.Scan(&hit.ItemID, &rank, &hit.Snippet); err != nil {
			return nil, err
		}
		hit.Score = rank / (rank + 1)
		hit.Scout = domain.ScoutLexical
		hit.Reason = "full-text match"
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
