package scout

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/terracehq/terrace/internal/domain"
)

// MetadataScout matches query terms against titles and tags. Scores are a
// coarse fraction of matched terms; it exists to catch items whose body text
// a lexical query misses.
type MetadataScout struct {
	db *pgxpool.Pool
}

func NewMetadataScout(db *pgxpool.Pool) *MetadataScout {
	return &MetadataScout{db: db}
}

func (s *MetadataScout) Kind() domain.ScoutKind {
	return domain.ScoutMetadata
}

func (s *MetadataScout) Search(ctx context.Context, query string, namespaces []string, k int) ([]domain.ScoutHit, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, lower(title), lower(array_to_string(tags, ' ')), left(content, 240)
		 FROM items
		 WHERE namespace = ANY($1) AND status = $2
		   AND (title ILIKE ANY($3) OR EXISTS (
		       SELECT 1 FROM unnest(tags) tag WHERE tag ILIKE ANY($3)))
		 LIMIT $4`,
		namespaces, domain.StatusActive, likePatterns(terms), k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []domain.ScoutHit
	for rows.Next() {
		var hit domain.ScoutHit
		var title, tags string
		if err := rows.Scan(&hit.ItemID, &title, &tags, &hit.Snippet); err != nil {
			return nil, err
		}
		matched := 0
		haystack := title + " " + tags
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				matched++
			}
		}
		hit.Score = float64(matched) / float64(len(terms))
		hit.Scout = domain.ScoutMetadata
		hit.Reason = "title/tag match"
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func likePatterns(terms []string) []string {
	patterns := make([]string, len(terms))
	for i, t := range terms {
		patterns[i] = "%" + t + "%"
	}
	return patterns
}
