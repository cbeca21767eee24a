package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/terracehq/terrace/internal/domain"
)

// ReceiptStore is append-only: inserts and reads, no UPDATE or DELETE paths.
type ReceiptStore struct {
	db *pgxpool.Pool
}

func NewReceiptStore(db *pgxpool.Pool) *ReceiptStore {
	return &ReceiptStore{db: db}
}

func (s *ReceiptStore) Append(ctx context.Context, r *domain.Receipt) error {
	scouts, err := json.Marshal(r.Scouts)
	if err != nil {
		return err
	}
	selections, err := json.Marshal(r.Selections)
	if err != nil {
		return err
	}
	conflicts, err := json.Marshal(r.Conflicts)
	if err != nil {
		return err
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO receipts (id, query, namespaces, query_class, temperature, scouts,
		                       candidate_count, ranked_count, terrace_depth, selections, conflicts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at`,
		r.ID, r.Query, r.Namespaces, r.QueryClass, r.Temperature, scouts,
		r.CandidateCount, r.RankedCount, r.TerraceDepth, selections, conflicts,
	).Scan(&r.CreatedAt)
}

func (s *ReceiptStore) Get(ctx context.Context, id uuid.UUID) (*domain.Receipt, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, query, namespaces, query_class, temperature, scouts,
		        candidate_count, ranked_count, terrace_depth, selections, conflicts, created_at
		 FROM receipts WHERE id = $1`,
		id,
	)
	r, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *ReceiptStore) List(ctx context.Context, ns string, since *time.Time, limit int) ([]domain.Receipt, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, query, namespaces, query_class, temperature, scouts,
	                 candidate_count, ranked_count, terrace_depth, selections, conflicts, created_at
	          FROM receipts WHERE 1=1`
	args := []any{}
	if ns != "" {
		args = append(args, ns)
		query += ` AND $1 = ANY(namespaces)`
	}
	if since != nil {
		args = append(args, *since)
		query += ` AND created_at >= $` + itoa(len(args))
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC LIMIT $` + itoa(len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []domain.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, *r)
	}
	return receipts, rows.Err()
}

func scanReceipt(row pgx.Row) (*domain.Receipt, error) {
	r := &domain.Receipt{}
	var scouts, selections, conflicts []byte
	err := row.Scan(&r.ID, &r.Query, &r.Namespaces, &r.QueryClass, &r.Temperature, &scouts,
		&r.CandidateCount, &r.RankedCount, &r.TerraceDepth, &selections, &conflicts, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(scouts, &r.Scouts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(selections, &r.Selections); err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		if err := json.Unmarshal(conflicts, &r.Conflicts); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
