// Package pg is the Postgres implementation of store.Store on pgx. Config,
// position and run snapshots are kept as jsonb columns encoded with sonic.
package pg

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/quantfold/strata/config"
	"github.com/quantfold/strata/store"
	"github.com/quantfold/strata/types"
)

// Schema creates the tables this store needs.
const Schema = `
CREATE TABLE IF NOT EXISTS instances (
    id          BIGSERIAL PRIMARY KEY,
    user_id     BIGINT NOT NULL,
    config      JSONB  NOT NULL,
    status      TEXT   NOT NULL,
    position    JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_logs (
    id             BIGSERIAL PRIMARY KEY,
    instance_id    BIGINT NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
    status         TEXT   NOT NULL,
    action         TEXT   NOT NULL DEFAULT '',
    should_trade   BOOLEAN NOT NULL DEFAULT false,
    order_size     INT    NOT NULL DEFAULT 0,
    order_notional DOUBLE PRECISION NOT NULL DEFAULT 0,
    order_id       TEXT   NOT NULL DEFAULT '',
    error_message  TEXT   NOT NULL DEFAULT '',
    snapshot       JSONB,
    started_at     TIMESTAMPTZ NOT NULL,
    finished_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS run_logs_instance_idx ON run_logs (instance_id, started_at DESC);

CREATE TABLE IF NOT EXISTS trades (
    id            BIGSERIAL PRIMARY KEY,
    instance_id   BIGINT NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
    direction     TEXT   NOT NULL,
    size          DOUBLE PRECISION NOT NULL,
    entry_price   DOUBLE PRECISION NOT NULL,
    exit_price    DOUBLE PRECISION NOT NULL,
    entry_time    TIMESTAMPTZ NOT NULL,
    exit_time     TIMESTAMPTZ NOT NULL,
    pnl           DOUBLE PRECISION NOT NULL,
    return_pct    DOUBLE PRECISION NOT NULL,
    contract_size DOUBLE PRECISION NOT NULL,
    reason        TEXT   NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_instance_idx ON trades (instance_id, exit_time);
`

// Store is the pgx-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool against dsn and pings it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return New(pool), nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// EnsureSchema applies the DDL. Safe to run repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return errors.Wrap(err, "ensure schema")
}

func (s *Store) CreateInstance(ctx context.Context, inst *store.Instance) error {
	cfg, err := sonic.Marshal(inst.Config)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	pos, err := encodePosition(inst.Position)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	err = s.pool.QueryRow(ctx,
		`INSERT INTO instances (user_id, config, status, position, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5) RETURNING id`,
		inst.UserID, cfg, string(inst.Status), pos, now,
	).Scan(&inst.ID)
	if err != nil {
		return errors.Wrap(err, "insert instance")
	}
	inst.CreatedAt, inst.UpdatedAt = now, now
	return nil
}

func (s *Store) Instance(ctx context.Context, id int64) (*store.Instance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, config, status, position, created_at, updated_at
		 FROM instances WHERE id = $1`, id)
	inst, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(store.ErrInstanceNotFound, "id %d", id)
	}
	return inst, err
}

func (s *Store) Instances(ctx context.Context) ([]*store.Instance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, config, status, position, created_at, updated_at
		 FROM instances ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query instances")
	}
	defer rows.Close()

	var out []*store.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, errors.Wrap(rows.Err(), "iterate instances")
}

func (s *Store) UpdateInstanceStatus(ctx context.Context, id int64, status types.InstanceStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE instances SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return errors.Wrap(err, "update status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(store.ErrInstanceNotFound, "id %d", id)
	}
	return nil
}

func (s *Store) UpdateInstanceConfig(ctx context.Context, id int64, cfg config.InstanceConfig) error {
	raw, err := sonic.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE instances SET config = $2, updated_at = now() WHERE id = $1`, id, raw)
	if err != nil {
		return errors.Wrap(err, "update config")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(store.ErrInstanceNotFound, "id %d", id)
	}
	return nil
}

func (s *Store) DeleteInstance(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM instances WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete instance")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(store.ErrInstanceNotFound, "id %d", id)
	}
	return nil
}

func (s *Store) SavePosition(ctx context.Context, id int64, pos *types.OpenPosition) error {
	raw, err := encodePosition(pos)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE instances SET position = $2, updated_at = now() WHERE id = $1`, id, raw)
	if err != nil {
		return errors.Wrap(err, "save position")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(store.ErrInstanceNotFound, "id %d", id)
	}
	return nil
}

func (s *Store) AppendRunLog(ctx context.Context, entry *types.RunLogEntry) error {
	snap, err := encodeSnapshot(entry.Snapshot)
	if err != nil {
		return err
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO run_logs (instance_id, status, action, should_trade, order_size,
		                       order_notional, order_id, error_message, snapshot, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		entry.InstanceID, string(entry.Status), entry.Action, entry.ShouldTrade,
		entry.OrderSize, entry.OrderNotional, entry.OrderID, entry.ErrorMessage,
		snap, entry.StartedAt,
	).Scan(&entry.ID)
	return errors.Wrap(err, "insert run log")
}

func (s *Store) UpdateRunLog(ctx context.Context, entry *types.RunLogEntry) error {
	snap, err := encodeSnapshot(entry.Snapshot)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE run_logs SET status = $2, action = $3, should_trade = $4, order_size = $5,
		        order_notional = $6, order_id = $7, error_message = $8, snapshot = $9,
		        finished_at = $10
		 WHERE id = $1`,
		entry.ID, string(entry.Status), entry.Action, entry.ShouldTrade, entry.OrderSize,
		entry.OrderNotional, entry.OrderID, entry.ErrorMessage, snap, entry.FinishedAt)
	return errors.Wrap(err, "update run log")
}

func (s *Store) RunLogs(ctx context.Context, instanceID int64, limit int) ([]types.RunLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, instance_id, status, action, should_trade, order_size, order_notional,
		        order_id, error_message, snapshot, started_at, COALESCE(finished_at, 'epoch'::timestamptz)
		 FROM run_logs WHERE instance_id = $1 ORDER BY started_at DESC LIMIT $2`,
		instanceID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query run logs")
	}
	defer rows.Close()

	var out []types.RunLogEntry
	for rows.Next() {
		var e types.RunLogEntry
		var status string
		var snap []byte
		if err := rows.Scan(&e.ID, &e.InstanceID, &status, &e.Action, &e.ShouldTrade,
			&e.OrderSize, &e.OrderNotional, &e.OrderID, &e.ErrorMessage, &snap,
			&e.StartedAt, &e.FinishedAt); err != nil {
			return nil, errors.Wrap(err, "scan run log")
		}
		e.Status = types.RunStatus(status)
		if len(snap) > 0 {
			if err := sonic.Unmarshal(snap, &e.Snapshot); err != nil {
				return nil, errors.Wrap(err, "decode snapshot")
			}
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate run logs")
}

func (s *Store) AppendTrade(ctx context.Context, instanceID int64, tr types.Trade) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (instance_id, direction, size, entry_price, exit_price,
		                     entry_time, exit_time, pnl, return_pct, contract_size, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		instanceID, string(tr.Direction), tr.Size, tr.EntryPrice, tr.ExitPrice,
		tr.EntryTime, tr.ExitTime, tr.PnL, tr.ReturnPct, tr.ContractSize, tr.Reason)
	return errors.Wrap(err, "insert trade")
}

func (s *Store) Trades(ctx context.Context, instanceID int64) ([]types.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT direction, size, entry_price, exit_price, entry_time, exit_time,
		        pnl, return_pct, contract_size, reason
		 FROM trades WHERE instance_id = $1 ORDER BY exit_time`, instanceID)
	if err != nil {
		return nil, errors.Wrap(err, "query trades")
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		var tr types.Trade
		var dir string
		if err := rows.Scan(&dir, &tr.Size, &tr.EntryPrice, &tr.ExitPrice, &tr.EntryTime,
			&tr.ExitTime, &tr.PnL, &tr.ReturnPct, &tr.ContractSize, &tr.Reason); err != nil {
			return nil, errors.Wrap(err, "scan trade")
		}
		tr.Direction = types.Direction(dir)
		out = append(out, tr)
	}
	return out, errors.Wrap(rows.Err(), "iterate trades")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*store.Instance, error) {
	var inst store.Instance
	var status string
	var cfg, pos []byte
	if err := row.Scan(&inst.ID, &inst.UserID, &cfg, &status, &pos,
		&inst.CreatedAt, &inst.UpdatedAt); err != nil {
		return nil, err
	}
	inst.Status = types.InstanceStatus(status)
	if err := sonic.Unmarshal(cfg, &inst.Config); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if len(pos) > 0 {
		var p types.OpenPosition
		if err := sonic.Unmarshal(pos, &p); err != nil {
			return nil, errors.Wrap(err, "decode position")
		}
		inst.Position = &p
	}
	return &inst, nil
}

func encodePosition(pos *types.OpenPosition) ([]byte, error) {
	if pos == nil {
		return nil, nil
	}
	raw, err := sonic.Marshal(pos)
	return raw, errors.Wrap(err, "encode position")
}

func encodeSnapshot(snap map[string]any) ([]byte, error) {
	if snap == nil {
		return nil, nil
	}
	raw, err := sonic.Marshal(snap)
	return raw, errors.Wrap(err, "encode snapshot")
}
