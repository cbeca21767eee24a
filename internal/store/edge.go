package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/terracehq/terrace/internal/domain"
)

type EdgeStore struct {
	db *pgxpool.Pool
}

func NewEdgeStore(db *pgxpool.Pool) *EdgeStore {
	return &EdgeStore{db: db}
}

const edgeColumns = `id, from_id, to_id, type, namespace, weight, actor_id, actor_kind,
	 evidence, conflict_state, created_at, updated_at`

func scanEdge(row pgx.Row) (*domain.Edge, error) {
	e := &domain.Edge{}
	var state *string
	err := row.Scan(&e.ID, &e.FromID, &e.ToID, &e.Type, &e.Namespace, &e.Weight,
		&e.ActorID, &e.ActorKind, &e.Evidence, &state, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if state != nil {
		cs := domain.ConflictState(*state)
		e.ConflictState = &cs
	}
	return e, nil
}

func (s *EdgeStore) Upsert(ctx context.Context, e *domain.Edge) error {
	var state *string
	if e.ConflictState != nil {
		v := string(*e.ConflictState)
		state = &v
	}
	got, err := scanEdge(s.db.QueryRow(ctx,
		`INSERT INTO edges (from_id, to_id, type, namespace, weight, actor_id, actor_kind, evidence, conflict_state)
		 VALUES ($1, $2, $3, $4, LEAST(GREATEST($5, 0.0), 1.0), $6, $7, $8, $9)
		 ON CONFLICT (from_id, to_id, type, namespace) DO UPDATE
		 SET weight = LEAST(GREATEST(EXCLUDED.weight, edges.weight), 1.0),
		     evidence = COALESCE(EXCLUDED.evidence, edges.evidence),
		     conflict_state = COALESCE(edges.conflict_state, EXCLUDED.conflict_state),
		     updated_at = NOW()
		 RETURNING `+edgeColumns,
		e.FromID, e.ToID, e.Type, e.Namespace, e.Weight, e.ActorID, e.ActorKind, e.Evidence, state,
	))
	if err != nil {
		return err
	}
	*e = *got
	return nil
}

func (s *EdgeStore) Reinforce(ctx context.Context, from, to uuid.UUID, typ domain.EdgeType, ns string, delta float64, actorID string, actorKind domain.ActorKind) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO edges (from_id, to_id, type, namespace, weight, actor_id, actor_kind)
		 VALUES ($1, $2, $3, $4, LEAST(GREATEST($5, 0.0), 1.0), $6, $7)
		 ON CONFLICT (from_id, to_id, type, namespace) DO UPDATE
		 SET weight = LEAST(GREATEST(edges.weight + $5, 0.0), 1.0),
		     updated_at = NOW()`,
		from, to, typ, ns, delta, actorID, actorKind,
	)
	return err
}

func (s *EdgeStore) RaiseFloor(ctx context.Context, from, to uuid.UUID, typ domain.EdgeType, ns string, floor float64, actorID string, actorKind domain.ActorKind) error {
	var state *string
	if typ == domain.EdgeContradicts {
		v := string(domain.ConflictUnreviewed)
		state = &v
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO edges (from_id, to_id, type, namespace, weight, actor_id, actor_kind, conflict_state)
		 VALUES ($1, $2, $3, $4, LEAST(GREATEST($5, 0.0), 1.0), $6, $7, $8)
		 ON CONFLICT (from_id, to_id, type, namespace) DO UPDATE
		 SET weight = LEAST(GREATEST(edges.weight, $5), 1.0),
		     conflict_state = COALESCE(edges.conflict_state, EXCLUDED.conflict_state),
		     updated_at = NOW()`,
		from, to, typ, ns, floor, actorID, actorKind, state,
	)
	return err
}

func (s *EdgeStore) Get(ctx context.Context, from, to uuid.UUID, typ domain.EdgeType, ns string) (*domain.Edge, error) {
	return scanEdge(s.db.QueryRow(ctx,
		`SELECT `+edgeColumns+` FROM edges
		 WHERE from_id = $1 AND to_id = $2 AND type = $3 AND namespace = $4`,
		from, to, typ, ns,
	))
}

func (s *EdgeStore) ByNode(ctx context.Context, itemID uuid.UUID, ns string) ([]domain.Edge, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+edgeColumns+` FROM edges
		 WHERE (from_id = $1 OR to_id = $1) AND namespace = $2
		 ORDER BY weight DESC`,
		itemID, ns,
	)
	if err != nil {
		return nil, err
	}
	return collectEdges(rows)
}

func (s *EdgeStore) ByType(ctx context.Context, ns string, typ domain.EdgeType) ([]domain.Edge, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+edgeColumns+` FROM edges
		 WHERE namespace = $1 AND type = $2
		 ORDER BY weight DESC`,
		ns, typ,
	)
	if err != nil {
		return nil, err
	}
	return collectEdges(rows)
}

func (s *EdgeStore) Between(ctx context.Context, ids []uuid.UUID, ns string) ([]domain.Edge, error) {
	if len(ids) < 2 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+edgeColumns+` FROM edges
		 WHERE from_id = ANY($1) AND to_id = ANY($1) AND namespace = $2`,
		ids, ns,
	)
	if err != nil {
		return nil, err
	}
	return collectEdges(rows)
}

func (s *EdgeStore) SetConflictState(ctx context.Context, id uuid.UUID, state domain.ConflictState) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE edges SET conflict_state = $2, updated_at = NOW()
		 WHERE id = $1 AND type = $3`,
		id, state, domain.EdgeContradicts,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *EdgeStore) PruneWeak(ctx context.Context, threshold float64, cutoff time.Time) (int64, error) {
	// Contradicts edges are never pruned; unresolved conflicts must persist.
	tag, err := s.db.Exec(ctx,
		`DELETE FROM edges
		 WHERE weight < $1 AND updated_at < $2 AND type <> $3`,
		threshold, cutoff, domain.EdgeContradicts,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collectEdges(rows pgx.Rows) ([]domain.Edge, error) {
	defer rows.Close()
	var edges []domain.Edge
	for rows.Next() {
		e := domain.Edge{}
		var state *string
		if err := rows.Scan(&e.ID, &e.FromID, &e.ToID, &e.Type, &e.Namespace, &e.Weight,
			&e.ActorID, &e.ActorKind, &e.Evidence, &state, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if state != nil {
			cs := domain.ConflictState(*state)
			e.ConflictState = &cs
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
