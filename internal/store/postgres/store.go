// Package postgres serves connector records from PostgreSQL.
//
// Records live in entity_records as (entity_type, id, properties) where
// properties has the same shape as a JSON dataset item. Timeseries samples
// live in timeseries_points, one row per point.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bit-broker/examples/internal/source"
	"github.com/bit-broker/examples/internal/store"
	"github.com/bit-broker/examples/pkg/entity"
)

// Config configures the pool and the entity type served.
type Config struct {
	DSN        string
	EntityType string
	// MaxConns bounds the pool (default: 6).
	MaxConns int32
}

// Store implements store.Store over a pgx pool.
type Store struct {
	db         *pgxpool.Pool
	entityType string
	logger     *slog.Logger
}

var _ store.Store = (*Store)(nil)

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("CONNECTOR_DATABASE is required")
	}
	if cfg.EntityType == "" {
		return nil, errors.New("entity type is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = 6
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 2
	poolCfg.MaxConnIdleTime = 30 * time.Second

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewWithPool(db, cfg.EntityType, logger), nil
}

// NewWithPool reuses an existing pool.
func NewWithPool(db *pgxpool.Pool, entityType string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, entityType: entityType, logger: logger.With("store", "postgres")}
}

// Close releases the pool.
func (s *Store) Close() {
	s.db.Close()
}

// FindByID loads one record.
func (s *Store) FindByID(ctx context.Context, id string) (*entity.Record, error) {
	const stmt = `SELECT id, properties FROM entity_records WHERE entity_type=$1 AND id=$2`
	var rowID string
	var props []byte
	if err := s.db.QueryRow(ctx, stmt, s.entityType, id).Scan(&rowID, &props); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find record %s: %w", id, err)
	}
	rec, err := decodeRecord(rowID, props)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindTimeseries pushes the window into the query.
func (s *Store) FindTimeseries(ctx context.Context, id, series string, w entity.Window) ([]entity.Point, error) {
	out := make([]entity.Point, 0)
	if w.Empty() {
		return out, nil
	}

	where := []string{"entity_type = $1", "entity_id = $2", "series_id = $3"}
	args := []any{s.entityType, id, series}
	if !w.Start.IsZero() {
		args = append(args, w.Start)
		where = append(where, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if !w.End.IsZero() {
		args = append(args, w.End)
		where = append(where, fmt.Sprintf("ts < $%d", len(args)))
	}
	stmt := fmt.Sprintf(`SELECT ts, value FROM timeseries_points WHERE %s ORDER BY ts ASC`,
		strings.Join(where, " AND "))
	if w.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", w.Limit)
	}

	rows, err := s.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("find timeseries %s/%s: %w", id, series, err)
	}
	defer rows.Close()
	for rows.Next() {
		var ts time.Time
		var raw []byte
		if err := rows.Scan(&ts, &raw); err != nil {
			return nil, err
		}
		p := entity.Point{From: ts.UTC()}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p.Value); err != nil {
				return nil, fmt.Errorf("decode point value: %w", err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LoadDataset reads every record of the entity type, ordered by id, for a
// sync run. Timeseries stay in the database and are served live.
func (s *Store) LoadDataset(ctx context.Context) (*entity.Dataset, error) {
	const stmt = `SELECT id, properties FROM entity_records WHERE entity_type=$1 ORDER BY id`
	rows, err := s.db.Query(ctx, stmt, s.entityType)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	ds := &entity.Dataset{Series: entity.Series{}}
	for rows.Next() {
		var id string
		var props []byte
		if err := rows.Scan(&id, &props); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(id, props)
		if err != nil {
			return nil, err
		}
		ds.Records = append(ds.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.logger.Info("loaded records from database", "entity_type", s.entityType, "count", len(ds.Records))
	return ds, nil
}

// Load implements source.Loader.
func (s *Store) Load(ctx context.Context) (*entity.Dataset, error) {
	return s.LoadDataset(ctx)
}

// Import upserts a dataset's records and series in one transaction.
func (s *Store) Import(ctx context.Context, ds *entity.Dataset) error {
	if ds == nil {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i := range ds.Records {
		props, err := json.Marshal(source.Item(&ds.Records[i]))
		if err != nil {
			return fmt.Errorf("encode record %s: %w", ds.Records[i].ID, err)
		}
		batch.Queue(`INSERT INTO entity_records (entity_type, id, properties) VALUES ($1,$2,$3)
ON CONFLICT (entity_type, id) DO UPDATE SET properties=EXCLUDED.properties, updated_at=now()`,
			s.entityType, ds.Records[i].ID, string(props))
	}
	points := 0
	for id, byName := range ds.Series {
		for name, series := range byName {
			for _, p := range series {
				value, err := json.Marshal(p.Value)
				if err != nil {
					return fmt.Errorf("encode point %s/%s: %w", id, name, err)
				}
				batch.Queue(`INSERT INTO timeseries_points (entity_type, entity_id, series_id, ts, value) VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (entity_type, entity_id, series_id, ts) DO UPDATE SET value=EXCLUDED.value`,
					s.entityType, id, name, p.From, string(value))
				points++
			}
		}
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("import dataset: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Info("imported dataset", "entity_type", s.entityType, "records", len(ds.Records), "points", points)
	return nil
}

func decodeRecord(id string, props []byte) (entity.Record, error) {
	var item map[string]any
	if err := json.Unmarshal(props, &item); err != nil {
		return entity.Record{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	if item == nil {
		item = map[string]any{}
	}
	item["id"] = id
	return source.NormalizeItem(item)
}
