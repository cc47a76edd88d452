package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS unaccent;
CREATE TABLE IF NOT EXISTS price_charting_data (
	id           BIGSERIAL PRIMARY KEY,
	title        TEXT NOT NULL,
	console      TEXT NOT NULL,
	loose_price  NUMERIC(12,2),
	cib_price    NUMERIC(12,2),
	new_price    NUMERIC(12,2),
	sales_volume BIGINT,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (title, console)
);
CREATE INDEX IF NOT EXISTS price_charting_data_console_idx ON price_charting_data (lower(console));
`

// matchable folds a text column the way usecase.Normalize folds a query:
// accents removed, lower-cased, punctuation dropped. The search patterns
// are built from normalized queries, so both sides must agree.
func matchable(column string) string {
	return fmt.Sprintf(`regexp_replace(lower(unaccent(%s)), '[^a-z0-9[:space:]]', '', 'g')`, column)
}

// catalogColumns is the select list collectCatalogRecords scans
const catalogColumns = `console, title, loose_price::text, cib_price::text, sales_volume, new_price::text, updated_at`

var searchCandidatesSQL = `
	SELECT ` + catalogColumns + `
	FROM price_charting_data
	WHERE ` + matchable("console") + ` LIKE $1
	  AND ` + matchable("title") + ` LIKE $2
	ORDER BY id
	LIMIT $3`

const upsertSQL = `
INSERT INTO price_charting_data (title, console, loose_price, cib_price, new_price, updated_at)
VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, NOW())
ON CONFLICT (title, console)
DO UPDATE SET
	loose_price = EXCLUDED.loose_price,
	cib_price = EXCLUDED.cib_price,
	new_price = EXCLUDED.new_price,
	updated_at = EXCLUDED.updated_at`

// PoolConfig tunes the pgx connection pool. Zero values keep pgx defaults.
type PoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// PriceStore is the Postgres-backed catalog. It serves candidate lookups
// for matching and snapshot/upsert for reconciliation.
type PriceStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New connects to Postgres and returns a ready store
func New(ctx context.Context, url string, poolConfig PoolConfig, logger *zap.Logger) (*PriceStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if url == "" {
		return nil, errors.New("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	applyPoolConfig(cfg, poolConfig)

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return &PriceStore{pool: pool, logger: logger}, nil
}

func applyPoolConfig(cfg *pgxpool.Config, pc PoolConfig) {
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	if pc.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}
	if pc.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = pc.HealthCheckPeriod
	}
}

// Migrate creates the price table if it does not exist
func (s *PriceStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate price_charting_data: %w", err)
	}
	s.logger.Info("store.pg.migrated")
	return nil
}

// SearchCandidates returns up to limit records whose folded console and
// title match the patterns, in insertion order. "Pokémon Snap" is found
// by "%pokemon%snap%" and "Spider-Man" by "%spiderman%".
func (s *PriceStore) SearchCandidates(ctx context.Context, consolePattern, productPattern string, limit int) ([]domain.CatalogRecord, error) {
	rows, err := s.pool.Query(ctx, searchCandidatesSQL, consolePattern, productPattern, limit)
	if err != nil {
		s.logger.Error("store.pg.search_failed", zap.Error(err))
		return nil, err
	}
	return collectCatalogRecords(rows)
}

// Sample returns up to limit arbitrary records
func (s *PriceStore) Sample(ctx context.Context, limit int) ([]domain.CatalogRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+catalogColumns+`
		FROM price_charting_data
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return collectCatalogRecords(rows)
}

func collectCatalogRecords(rows pgx.Rows) ([]domain.CatalogRecord, error) {
	defer rows.Close()

	var records []domain.CatalogRecord
	for rows.Next() {
		var (
			rec                  domain.CatalogRecord
			loose, cib, newPrice *string
			salesVolume          *int64
			updatedAt            time.Time
		)
		if err := rows.Scan(&rec.ConsoleName, &rec.ProductName, &loose, &cib, &salesVolume, &newPrice, &updatedAt); err != nil {
			return nil, err
		}
		rec.LoosePrice = moneyFromText(loose)
		rec.CIBPrice = moneyFromText(cib)
		rec.SalesVolume = salesVolume
		rec.Extra = extraColumns(newPrice, updatedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ExistingPrices loads stored prices for the given keys. Keys with no row
// are simply absent from the result.
func (s *PriceStore) ExistingPrices(ctx context.Context, keys []domain.RecordKey) ([]domain.ExternalPriceRecord, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	titles, consoles := splitKeys(keys)

	rows, err := s.pool.Query(ctx, `
		SELECT p.title, p.console, p.loose_price::text, p.cib_price::text, p.new_price::text
		FROM price_charting_data p
		JOIN unnest($1::text[], $2::text[]) AS k(title, console)
		  ON p.title = k.title AND p.console = k.console
		ORDER BY p.id
	`, titles, consoles)
	if err != nil {
		s.logger.Error("store.pg.snapshot_failed", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var records []domain.ExternalPriceRecord
	for rows.Next() {
		var (
			rec                  domain.ExternalPriceRecord
			loose, cib, newPrice *string
		)
		if err := rows.Scan(&rec.Title, &rec.Console, &loose, &cib, &newPrice); err != nil {
			return nil, err
		}
		rec.LoosePrice = moneyFromText(loose)
		rec.CIBPrice = moneyFromText(cib)
		rec.NewPrice = moneyFromText(newPrice)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpsertPrices writes the batch in one transaction keyed on (title, console).
// Replaying a batch leaves the table unchanged apart from updated_at.
func (s *PriceStore) UpsertPrices(ctx context.Context, batch []domain.ExternalPriceRecord) error {
	if len(batch) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, rec := range batch {
			b.Queue(upsertSQL, rec.Title, rec.Console,
				moneyArg(rec.LoosePrice), moneyArg(rec.CIBPrice), moneyArg(rec.NewPrice))
		}

		br := tx.SendBatch(ctx, b)
		for i := range batch {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				s.logger.Error("store.pg.upsert_failed",
					zap.Int("index", i),
					zap.Stringer("key", batch[i].Key()),
					zap.Error(err))
				return fmt.Errorf("upsert %s: %w", batch[i].Key(), err)
			}
		}
		return br.Close()
	})
}

// Ping checks database connectivity
func (s *PriceStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool
func (s *PriceStore) Close() {
	s.pool.Close()
}

// extraColumns keeps the selected columns CatalogRecord has no field for
func extraColumns(newPrice *string, updatedAt time.Time) map[string]any {
	extra := map[string]any{"updatedAt": updatedAt}
	if m := moneyFromText(newPrice); m.Valid {
		extra["newPrice"] = m.Decimal.StringFixed(2)
	}
	return extra
}

func moneyFromText(s *string) domain.Money {
	if s == nil {
		return domain.Money{}
	}
	return domain.ParseMoney(*s)
}

// moneyArg encodes Money as numeric text, or nil for SQL NULL
func moneyArg(m domain.Money) any {
	if !m.Valid {
		return nil
	}
	return m.Decimal.String()
}

func splitKeys(keys []domain.RecordKey) (titles, consoles []string) {
	titles = make([]string, len(keys))
	consoles = make([]string, len(keys))
	for i, k := range keys {
		titles[i] = k.Title
		consoles[i] = k.Console
	}
	return titles, consoles
}
