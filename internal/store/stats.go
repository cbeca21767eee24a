package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/terracehq/terrace/internal/domain"
)

// StatsStore persists node stats in Postgres. Every mutation is a single
// UPDATE with LEAST/GREATEST clamps, so concurrent reinforcement of the same
// node cannot lose updates.
type StatsStore struct {
	db *pgxpool.Pool
}

func NewStatsStore(db *pgxpool.Pool) *StatsStore {
	return &StatsStore{db: db}
}

const statsColumns = `item_id, salience, retrieval_count, ignored_count, misleading_count,
	 last_retrieved_at, last_used_at, decay_rate, strength, class_priors,
	 recent_retrievals, recent_window_start, created_at, updated_at`

func (s *StatsStore) scanStats(row pgx.Row) (*domain.NodeStats, error) {
	n := &domain.NodeStats{}
	var priors []byte
	err := row.Scan(&n.ItemID, &n.Salience, &n.RetrievalCount, &n.IgnoredCount, &n.MisleadingCount,
		&n.LastRetrievedAt, &n.LastUsedAt, &n.DecayRate, &n.Strength, &priors,
		&n.RecentRetrievals, &n.RecentWindowStart, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(priors) > 0 {
		if err := json.Unmarshal(priors, &n.ClassPriors); err != nil {
			return nil, err
		}
	}
	if n.ClassPriors == nil {
		n.ClassPriors = map[domain.QueryClass]float64{}
	}
	return n, nil
}

func (s *StatsStore) Get(ctx context.Context, itemID uuid.UUID) (*domain.NodeStats, error) {
	return s.scanStats(s.db.QueryRow(ctx,
		`SELECT `+statsColumns+` FROM node_stats WHERE item_id = $1`, itemID))
}

func (s *StatsStore) GetOrCreate(ctx context.Context, itemID uuid.UUID) (*domain.NodeStats, error) {
	def := domain.NewNodeStats(itemID)
	return s.scanStats(s.db.QueryRow(ctx,
		`INSERT INTO node_stats (item_id, salience, decay_rate, strength, class_priors)
		 VALUES ($1, $2, $3, $4, '{}'::jsonb)
		 ON CONFLICT (item_id) DO UPDATE SET item_id = node_stats.item_id
		 RETURNING `+statsColumns,
		itemID, def.Salience, def.DecayRate, def.Strength))
}

func (s *StatsStore) RecordRetrieval(ctx context.Context, itemID uuid.UUID, at time.Time) error {
	// Reset the recent window once it ages past 24h, otherwise extend it.
	tag, err := s.db.Exec(ctx,
		`UPDATE node_stats
		 SET last_retrieved_at = $2,
		     recent_retrievals = CASE
		         WHEN recent_window_start IS NULL OR recent_window_start < $2 - INTERVAL '24 hours' THEN 1
		         ELSE recent_retrievals + 1
		     END,
		     recent_window_start = CASE
		         WHEN recent_window_start IS NULL OR recent_window_start < $2 - INTERVAL '24 hours' THEN $2
		         ELSE recent_window_start
		     END,
		     updated_at = NOW()
		 WHERE item_id = $1`,
		itemID, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *StatsStore) MarkUsed(ctx context.Context, itemID uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE node_stats SET last_used_at = $2, updated_at = NOW() WHERE item_id = $1`,
		itemID, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *StatsStore) IncrementRetrievalCount(ctx context.Context, itemID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE node_stats SET retrieval_count = retrieval_count + 1, updated_at = NOW() WHERE item_id = $1`,
		itemID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *StatsStore) IncrementIgnored(ctx context.Context, itemID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE node_stats SET ignored_count = ignored_count + 1, updated_at = NOW() WHERE item_id = $1`,
		itemID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *StatsStore) IncrementMisleading(ctx context.Context, itemID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`UPDATE node_stats SET misleading_count = misleading_count + 1, updated_at = NOW()
		 WHERE item_id = $1
		 RETURNING misleading_count`,
		itemID,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return count, nil
}

func (s *StatsStore) AdjustSalience(ctx context.Context, itemID uuid.UUID, delta float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE node_stats
		 SET salience = LEAST(GREATEST(salience + $2, 0.0), 1.0), updated_at = NOW()
		 WHERE item_id = $1`,
		itemID, delta,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *StatsStore) AdjustStrength(ctx context.Context, itemID uuid.UUID, delta float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE node_stats
		 SET strength = LEAST(GREATEST(strength + $2, 0.0), 1.0), updated_at = NOW()
		 WHERE item_id = $1`,
		itemID, delta,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *StatsStore) AdjustClassPrior(ctx context.Context, itemID uuid.UUID, class domain.QueryClass, delta float64) error {
	// jsonb_set with a computed value keeps the read-modify-write inside one
	// statement, so per-class nudges are atomic per row.
	tag, err := s.db.Exec(ctx,
		`UPDATE node_stats
		 SET class_priors = jsonb_set(
		         COALESCE(class_priors, '{}'::jsonb),
		         ARRAY[$2::text],
		         to_jsonb(COALESCE((class_priors ->> $2)::float8, 0.0) + $3)
		     ),
		     updated_at = NOW()
		 WHERE item_id = $1`,
		itemID, string(class), delta,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *StatsStore) CapSalience(ctx context.Context, itemID uuid.UUID, ceiling float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE node_stats SET salience = LEAST(salience, $2), updated_at = NOW() WHERE item_id = $1`,
		itemID, ceiling,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *StatsStore) ApplyDecay(ctx context.Context, cutoff time.Time, floor float64) (int64, error) {
	// Exponential decay on idle nodes; spaced-repetition strength slows it.
	tag, err := s.db.Exec(ctx,
		`UPDATE node_stats
		 SET salience = GREATEST(
		         salience * exp(-decay_rate * (1.0 - strength * 0.5)
		             * EXTRACT(EPOCH FROM (NOW() - COALESCE(last_used_at, created_at))) / 86400),
		         $2
		     ),
		     updated_at = NOW()
		 WHERE COALESCE(last_used_at, created_at) < $1`,
		cutoff, floor,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
