// Package scheduler runs one timer-driven loop per live strategy instance.
// Each instance is an independent goroutine owning its own ticker, ledger
// and open position; the Registry maps instance ids to handles for
// start/stop/delete. There is no global scheduler loop.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/quantfold/strata/bus"
	"github.com/quantfold/strata/config"
	"github.com/quantfold/strata/exchange"
	"github.com/quantfold/strata/ledger"
	"github.com/quantfold/strata/logger"
	"github.com/quantfold/strata/metrics"
	"github.com/quantfold/strata/risk"
	"github.com/quantfold/strata/store"
	"github.com/quantfold/strata/strategy"
	"github.com/quantfold/strata/types"
)

// ErrAlreadyRunning is returned by Start for an instance that already has a
// live runner.
var ErrAlreadyRunning = errors.New("instance already running")

// tickTimeout bounds one tick's exchange and store I/O.
const tickTimeout = 30 * time.Second

// Registry owns the live runners and the collaborators every tick needs.
type Registry struct {
	log    logger.Logger
	st     store.Store
	ex     exchange.Client
	events bus.Bus
	settle string
	creds  exchange.Credentials

	mu      sync.Mutex
	runners map[int64]*runner
}

// NewRegistry wires the collaborators. settle is the settlement currency
// used on every exchange call.
func NewRegistry(log logger.Logger, st store.Store, ex exchange.Client, events bus.Bus, settle string, creds exchange.Credentials) *Registry {
	return &Registry{
		log:     log,
		st:      st,
		ex:      ex,
		events:  events,
		settle:  settle,
		creds:   creds,
		runners: make(map[int64]*runner),
	}
}

// runner is the per-instance state machine. It owns the ticker goroutine
// and the instance's ledger; the inFlight flag implements the skip-on-
// overlap policy.
type runner struct {
	id     int64
	userID int64
	cfg    config.InstanceConfig
	led    *ledger.Ledger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inFlight sync.Mutex
	// hasPos mirrors whether the open-positions gauge counts this instance.
	// Written at start, from the tick goroutine, and after wg.Wait on stop;
	// never concurrently.
	hasPos bool
}

// Create validates, normalizes and persists a new instance. When running is
// true the instance starts immediately, which fires its first tick without
// waiting for the timer.
func (r *Registry) Create(ctx context.Context, userID int64, cfg config.InstanceConfig, running bool) (*store.Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid instance config")
	}
	if _, err := strategy.ForID(cfg.StrategyID); err != nil {
		return nil, err
	}
	inst := &store.Instance{
		UserID: userID,
		Config: cfg.Normalize(),
		Status: types.StatusStopped,
	}
	if running {
		inst.Status = types.StatusRunning
	}
	if err := r.st.CreateInstance(ctx, inst); err != nil {
		return nil, errors.Wrap(err, "persist instance")
	}
	r.log.Info("instance created",
		logger.Int64("instance_id", inst.ID),
		logger.String("strategy", cfg.StrategyID),
		logger.String("contract", cfg.Contract))
	if running {
		if err := r.start(inst); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// Start resumes a stopped instance. The first tick fires immediately.
func (r *Registry) Start(ctx context.Context, id int64) error {
	inst, err := r.st.Instance(ctx, id)
	if err != nil {
		return err
	}
	if err := r.st.UpdateInstanceStatus(ctx, id, types.StatusRunning); err != nil {
		return err
	}
	return r.start(inst)
}

func (r *Registry) start(inst *store.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runners[inst.ID]; ok {
		return errors.Wrapf(ErrAlreadyRunning, "id %d", inst.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &runner{
		id:     inst.ID,
		userID: inst.UserID,
		cfg:    inst.Config.Normalize(),
		led:    ledger.Restore(inst.Position),
		cancel: cancel,
		hasPos: inst.Position != nil,
	}
	if run.hasPos {
		metrics.PositionsOpen.Inc()
	}
	r.runners[inst.ID] = run

	run.wg.Add(1)
	go r.loop(ctx, run)
	r.events.Emit(bus.Event{Type: bus.EventStatus, InstanceID: inst.ID, UserID: inst.UserID, Payload: "running"})
	return nil
}

// Stop cancels the instance's timer and waits for any in-flight tick to
// finish writing its run log. The instance stays persisted as stopped.
func (r *Registry) Stop(ctx context.Context, id int64) error {
	r.mu.Lock()
	run, ok := r.runners[id]
	if ok {
		delete(r.runners, id)
	}
	r.mu.Unlock()

	if ok {
		run.cancel()
		run.wg.Wait()
		if run.hasPos {
			metrics.PositionsOpen.Dec()
		}
		r.events.Emit(bus.Event{Type: bus.EventStatus, InstanceID: id, UserID: run.userID, Payload: "stopped"})
	}
	return r.st.UpdateInstanceStatus(ctx, id, types.StatusStopped)
}

// Delete stops the instance first, then removes it and its history.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	if err := r.Stop(ctx, id); err != nil && !errors.Is(err, store.ErrInstanceNotFound) {
		return err
	}
	return r.st.DeleteInstance(ctx, id)
}

// StartAll resumes every instance persisted as running; called on process
// startup.
func (r *Registry) StartAll(ctx context.Context) error {
	instances, err := r.st.Instances(ctx)
	if err != nil {
		return errors.Wrap(err, "list instances")
	}
	for _, inst := range instances {
		if inst.Status != types.StatusRunning {
			continue
		}
		if err := r.start(inst); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			return err
		}
	}
	return nil
}

// Shutdown stops every runner without touching persisted statuses, so a
// restart resumes them.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	runners := make([]*runner, 0, len(r.runners))
	for id, run := range r.runners {
		runners = append(runners, run)
		delete(r.runners, id)
	}
	r.mu.Unlock()

	for _, run := range runners {
		run.cancel()
		run.wg.Wait()
		if run.hasPos {
			metrics.PositionsOpen.Dec()
		}
	}
}

// Running reports whether the instance currently has a live runner.
func (r *Registry) Running(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runners[id]
	return ok
}

// loop fires the immediate first tick, then one tick per frequency
// interval. A fire that arrives while the previous tick is still running is
// skipped and logged, never queued or run concurrently.
func (r *Registry) loop(ctx context.Context, run *runner) {
	defer run.wg.Done()

	r.fire(ctx, run)
	ticker := time.NewTicker(run.cfg.Frequency)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.fire(ctx, run)
		}
	}
}

// fire runs one tick unless the previous one is still in flight. The tick
// itself runs on a detached context so that stopping the instance never
// interrupts a tick that already started.
func (r *Registry) fire(loopCtx context.Context, run *runner) {
	if loopCtx.Err() != nil {
		return
	}
	if !run.inFlight.TryLock() {
		metrics.TicksSkipped.Inc()
		r.log.Warn("tick skipped, previous still running",
			logger.Int64("instance_id", run.id),
			logger.String("strategy", run.cfg.StrategyID))
		return
	}
	run.wg.Add(1)
	go func() {
		defer run.wg.Done()
		defer run.inFlight.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
		defer cancel()
		r.tick(ctx, run)
	}()
}

// tick is one full pipeline pass: run log open, market and account fetch,
// strategy evaluation, risk checks, optional order placement, ledger and
// position persistence, run log close, event emit. A failed tick leaves the
// open position untouched and the instance running.
func (r *Registry) tick(ctx context.Context, run *runner) {
	entry := &types.RunLogEntry{
		InstanceID: run.id,
		Status:     types.RunRunning,
		StartedAt:  time.Now().UTC(),
	}
	if err := r.st.AppendRunLog(ctx, entry); err != nil {
		r.log.Error("run log append failed", logger.Int64("instance_id", run.id), logger.Err(err))
		return
	}

	err := r.execute(ctx, run, entry)
	entry.FinishedAt = time.Now().UTC()
	if err != nil {
		entry.Status = types.RunError
		entry.ErrorMessage = err.Error()
		metrics.TicksTotal.WithLabelValues("error").Inc()
		r.log.Error("tick failed",
			logger.Int64("instance_id", run.id),
			logger.String("strategy", run.cfg.StrategyID),
			logger.Err(err))
		r.events.Emit(bus.Event{Type: bus.EventError, InstanceID: run.id, UserID: run.userID, Payload: err.Error()})
	} else {
		entry.Status = types.RunSuccess
		metrics.TicksTotal.WithLabelValues("success").Inc()
		r.events.Emit(bus.Event{Type: bus.EventRun, InstanceID: run.id, UserID: run.userID, Payload: entry.Snapshot})
	}
	if uerr := r.st.UpdateRunLog(ctx, entry); uerr != nil {
		r.log.Error("run log update failed", logger.Int64("instance_id", run.id), logger.Err(uerr))
	}
}

// execute performs the market side of a tick and fills the run log entry.
func (r *Registry) execute(ctx context.Context, run *runner, entry *types.RunLogEntry) error {
	cfg := run.cfg

	bars, err := exchange.FetchHistory(ctx, r.ex, exchange.CandleQuery{
		Settle:   r.settle,
		Contract: cfg.Contract,
		Interval: cfg.Interval,
		Limit:    historyLimit(cfg.Lookback),
	})
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return errors.New("exchange returned no bars")
	}
	price := bars[len(bars)-1].Close

	meta, err := r.ex.ContractDetail(ctx, r.settle, cfg.Contract)
	if err != nil {
		return err
	}
	spec := risk.ResolveContractSpecs(meta)

	strat, err := strategy.ForID(cfg.StrategyID)
	if err != nil {
		return err
	}
	sig := strat.Evaluate(bars, strategy.Params{
		Lookback:      cfg.Lookback,
		Threshold:     cfg.Threshold,
		BaseSize:      cfg.BaseSize,
		UseHeikinAshi: cfg.UseHeikinAshi,
	})

	entry.Action = sig.Status
	entry.Snapshot = map[string]any{
		"direction": string(sig.Direction),
		"strength":  sig.Strength,
		"raw_score": sig.RawScore,
		"status":    sig.Status,
		"price":     price,
	}
	for k, v := range sig.Diagnostics {
		entry.Snapshot["diag_"+k] = v
	}

	now := time.Now().UTC()
	if pos := run.led.Open(); pos != nil {
		if exit := risk.EvaluateRiskExit(pos.Direction, pos.EntryPrice, price, cfg.TakeProfitPct, cfg.StopLossPct, cfg.Leverage); exit != nil {
			if cfg.AutoExecute {
				if err := r.placeOrder(ctx, run, cfg, -int(pos.Direction.Sign()*pos.Size), true, entry); err != nil {
					return err
				}
			}
			trade := run.led.CloseAt(exit.Price, now, exit.Reason)
			r.recordTrade(ctx, run, trade)
			// Flush the close before any further I/O. A later failure in
			// this tick must not leave the store holding a position the
			// ledger already realized.
			if err := r.persistPosition(ctx, run); err != nil {
				return err
			}
			entry.Snapshot["exit_reason"] = exit.Reason
			entry.Snapshot["exit_roi"] = exit.ROI
			r.log.Info("risk exit",
				logger.Int64("instance_id", run.id),
				logger.String("reason", exit.Reason),
				logger.Float64("roi", exit.ROI))
		}
	}

	if !sig.Actionable() {
		return r.persistPosition(ctx, run)
	}

	acct, err := r.ex.Account(ctx, r.settle, r.creds)
	if err != nil {
		return err
	}
	sized := risk.SizePosition(sig, cfg.BaseSize, acct.Available, price, spec, cfg.Leverage)
	entry.ShouldTrade = sized.AppliedContracts > 0
	entry.OrderSize = sized.AppliedContracts
	entry.OrderNotional = sized.AppliedNotional
	if sized.AppliedContracts <= 0 {
		entry.Snapshot["sizing"] = "balance below exchange minimum"
		return r.persistPosition(ctx, run)
	}

	if cfg.AutoExecute {
		// A bare flip order would only net the exchange position toward
		// flat while the ledger flips to the full new size. Close the old
		// side first so both end up at the same exposure.
		if pos := run.led.Open(); pos != nil && pos.Direction != sig.Direction {
			if err := r.placeOrder(ctx, run, cfg, -int(pos.Direction.Sign()*pos.Size), true, entry); err != nil {
				return err
			}
		}
		signed := sized.AppliedContracts
		if sig.Direction == types.Short {
			signed = -signed
		}
		if err := r.placeOrder(ctx, run, cfg, signed, false, entry); err != nil {
			return err
		}
	}

	trade := run.led.Apply(sig.Direction, float64(sized.AppliedContracts), price, now, cfg.Leverage, spec.Multiplier)
	r.recordTrade(ctx, run, trade)
	return r.persistPosition(ctx, run)
}

// placeOrder submits one order and records the acknowledgement.
func (r *Registry) placeOrder(ctx context.Context, run *runner, cfg config.InstanceConfig, size int, reduceOnly bool, entry *types.RunLogEntry) error {
	if size == 0 {
		return nil
	}
	ack, err := r.ex.PlaceOrder(ctx, r.settle, exchange.OrderRequest{
		Contract:   cfg.Contract,
		Size:       size,
		TIF:        "ioc",
		ReduceOnly: reduceOnly,
	}, r.creds)
	if err != nil {
		return errors.Wrap(err, "place order")
	}
	entry.OrderID = ack.ID
	metrics.OrdersSubmitted.WithLabelValues(cfg.StrategyID).Inc()
	r.log.Info("order placed",
		logger.Int64("instance_id", run.id),
		logger.String("order_id", ack.ID),
		logger.Int("size", size))
	return nil
}

// recordTrade persists a realized trade and updates the metrics.
func (r *Registry) recordTrade(ctx context.Context, run *runner, trade *types.Trade) {
	if trade == nil {
		return
	}
	if err := r.st.AppendTrade(ctx, run.id, *trade); err != nil {
		r.log.Error("trade append failed", logger.Int64("instance_id", run.id), logger.Err(err))
	}
	metrics.RealizedPnL.WithLabelValues(run.cfg.StrategyID).Add(trade.PnL)
	r.log.Info("trade realized",
		logger.Int64("instance_id", run.id),
		logger.String("direction", string(trade.Direction)),
		logger.Float64("pnl", trade.PnL),
		logger.String("reason", trade.Reason))
}

// persistPosition mirrors the ledger's open position into the store and the
// open-positions gauge.
func (r *Registry) persistPosition(ctx context.Context, run *runner) error {
	pos := run.led.Open()
	if err := r.st.SavePosition(ctx, run.id, pos); err != nil {
		return errors.Wrap(err, "save position")
	}
	if open := pos != nil; open != run.hasPos {
		if open {
			metrics.PositionsOpen.Inc()
		} else {
			metrics.PositionsOpen.Dec()
		}
		run.hasPos = open
	}
	return nil
}

// historyLimit requests enough bars for the slowest indicator window plus
// slack for the strategies that stack windows.
func historyLimit(lookback int) int {
	limit := lookback*3 + 60
	if limit < 120 {
		limit = 120
	}
	return limit
}
