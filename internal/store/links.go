package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LinkStore implements the structural link collaborator over the links table
// maintained by the external knowledge indexer (wiki-style document links).
type LinkStore struct {
	db *pgxpool.Pool
}

func NewLinkStore(db *pgxpool.Pool) *LinkStore {
	return &LinkStore{db: db}
}

func (s *LinkStore) Neighbors(ctx context.Context, itemID uuid.UUID, direction string, depth int) ([]uuid.UUID, error) {
	if depth <= 0 {
		depth = 1
	}

	frontier := []uuid.UUID{itemID}
	visited := map[uuid.UUID]bool{itemID: true}
	var out []uuid.UUID

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		next, err := s.step(ctx, frontier, direction)
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, id := range next {
			if visited[id] {
				continue
			}
			visited[id] = true
			out = append(out, id)
			frontier = append(frontier, id)
		}
	}
	return out, nil
}

func (s *LinkStore) step(ctx context.Context, ids []uuid.UUID, direction string) ([]uuid.UUID, error) {
	var query string
	switch direction {
	case "outgoing":
		query = `SELECT target_id FROM links WHERE source_id = ANY($1)`
	case "incoming":
		query = `SELECT source_id FROM links WHERE target_id = ANY($1)`
	default: // "both"
		query = `SELECT target_id FROM links WHERE source_id = ANY($1)
		         UNION
		         SELECT source_id FROM links WHERE target_id = ANY($1)`
	}

	rows, err := s.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
