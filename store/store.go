// Package store defines the persistence contract of the engine. The
// scheduler and the management surface only depend on this interface; the
// Postgres implementation lives in store/pg and an in-memory one in
// testutils.
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/quantfold/strata/config"
	"github.com/quantfold/strata/types"
)

// ErrInstanceNotFound is returned for ids that were never created or were
// deleted.
var ErrInstanceNotFound = errors.New("instance not found")

// Instance is the persisted state of one strategy instance: its immutable
// id and owner, the tunable config, the lifecycle status and the embedded
// open position (nil when flat).
type Instance struct {
	ID        int64
	UserID    int64
	Config    config.InstanceConfig
	Status    types.InstanceStatus
	Position  *types.OpenPosition
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the persistence contract.
type Store interface {
	// CreateInstance persists a new instance and assigns its ID.
	CreateInstance(ctx context.Context, inst *Instance) error
	Instance(ctx context.Context, id int64) (*Instance, error)
	// Instances lists every persisted instance, oldest first.
	Instances(ctx context.Context) ([]*Instance, error)
	UpdateInstanceStatus(ctx context.Context, id int64, status types.InstanceStatus) error
	UpdateInstanceConfig(ctx context.Context, id int64, cfg config.InstanceConfig) error
	DeleteInstance(ctx context.Context, id int64) error

	// SavePosition overwrites the embedded open position; nil clears it.
	SavePosition(ctx context.Context, id int64, pos *types.OpenPosition) error

	// AppendRunLog persists a new entry and assigns its ID.
	AppendRunLog(ctx context.Context, entry *types.RunLogEntry) error
	// UpdateRunLog rewrites the mutable fields of an existing entry.
	UpdateRunLog(ctx context.Context, entry *types.RunLogEntry) error
	RunLogs(ctx context.Context, instanceID int64, limit int) ([]types.RunLogEntry, error)

	AppendTrade(ctx context.Context, instanceID int64, trade types.Trade) error
	Trades(ctx context.Context, instanceID int64) ([]types.Trade, error)
}
