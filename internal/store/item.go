package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/terracehq/terrace/internal/domain"
)

// ItemStore reads item metadata for gating and applies the engine's two
// permitted mutations: quarantine and concept-aggregate management. Item
// content is owned by the knowledge store and never written here.
type ItemStore struct {
	db *pgxpool.Pool
}

func NewItemStore(db *pgxpool.Pool) *ItemStore {
	return &ItemStore{db: db}
}

func (s *ItemStore) Get(ctx context.Context, itemID uuid.UUID) (*domain.ItemMeta, error) {
	m := &domain.ItemMeta{}
	err := s.db.QueryRow(ctx,
		`SELECT id, namespace, access_scope, note_type, status FROM items WHERE id = $1`,
		itemID,
	).Scan(&m.ID, &m.Namespace, &m.AccessScope, &m.NoteType, &m.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *ItemStore) GetBatch(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]domain.ItemMeta, error) {
	if len(itemIDs) == 0 {
		return map[uuid.UUID]domain.ItemMeta{}, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, namespace, access_scope, note_type, status FROM items WHERE id = ANY($1)`,
		itemIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metas := make(map[uuid.UUID]domain.ItemMeta, len(itemIDs))
	for rows.Next() {
		var m domain.ItemMeta
		if err := rows.Scan(&m.ID, &m.Namespace, &m.AccessScope, &m.NoteType, &m.Status); err != nil {
			return nil, err
		}
		metas[m.ID] = m
	}
	return metas, rows.Err()
}

func (s *ItemStore) Quarantine(ctx context.Context, itemID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE items SET status = $2, updated_at = NOW() WHERE id = $1`,
		itemID, domain.StatusQuarantined,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ItemStore) FindConcept(ctx context.Context, ns, clusterKey string) (*domain.ItemMeta, error) {
	m := &domain.ItemMeta{}
	err := s.db.QueryRow(ctx,
		`SELECT id, namespace, access_scope, note_type, status FROM items
		 WHERE namespace = $1 AND cluster_key = $2 AND note_type = $3`,
		ns, clusterKey, domain.NoteConcept,
	).Scan(&m.ID, &m.Namespace, &m.AccessScope, &m.NoteType, &m.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *ItemStore) CreateConcept(ctx context.Context, ns, clusterKey string) (*domain.ItemMeta, error) {
	m := &domain.ItemMeta{}
	// Find-or-create: the unique (namespace, cluster_key) index makes
	// concurrent formation passes idempotent on cluster identity.
	err := s.db.QueryRow(ctx,
		`INSERT INTO items (id, namespace, access_scope, note_type, status, cluster_key)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (namespace, cluster_key) DO UPDATE SET updated_at = NOW()
		 RETURNING id, namespace, access_scope, note_type, status`,
		uuid.New(), ns, domain.ScopeShared, domain.NoteConcept, domain.StatusActive, clusterKey,
	).Scan(&m.ID, &m.Namespace, &m.AccessScope, &m.NoteType, &m.Status)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *ItemStore) SetNoteType(ctx context.Context, itemID uuid.UUID, t domain.NoteType) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE items SET note_type = $2, updated_at = NOW() WHERE id = $1`,
		itemID, t,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
