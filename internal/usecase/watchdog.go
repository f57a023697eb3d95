package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/tg_signal_trader/internal/config"
	"github.com/vitos/tg_signal_trader/internal/domain"
	"github.com/vitos/tg_signal_trader/internal/events"
	"go.uber.org/zap"
)

// heartbeatCheckInterval is how often Run re-examines feed liveness.
var heartbeatCheckInterval = time.Minute

// Watchdog guards the book against a dead signal feed and against positions
// the normal lifecycle can no longer manage (expired hold, drained balance).
type Watchdog struct {
	engine   *Engine
	exchange domain.Exchange
	cfg      *config.Manager
	events   *events.Emitter
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastBeat time.Time
	tripped  bool
}

func NewWatchdog(engine *Engine, ex domain.Exchange, cfg *config.Manager, em *events.Emitter, logger *zap.Logger) *Watchdog {
	return &Watchdog{
		engine:   engine,
		exchange: ex,
		cfg:      cfg,
		events:   em,
		logger:   logger,
		now:      time.Now,
		lastBeat: time.Now(),
	}
}

// Beat records feed liveness and re-arms the idle trigger.
func (w *Watchdog) Beat() {
	w.mu.Lock()
	w.lastBeat = w.now()
	w.tripped = false
	w.mu.Unlock()
}

// LastBeat reports when the feed was last seen alive.
func (w *Watchdog) LastBeat() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastBeat
}

// CheckHeartbeat flattens everything once per silence episode. The trigger
// stays latched until the next Beat, so one dead feed causes one flatten, not
// one per check interval.
func (w *Watchdog) CheckHeartbeat(ctx context.Context) {
	cfg := w.cfg.Snapshot()
	maxIdle := time.Duration(cfg.HeartbeatMaxIdleMin * float64(time.Minute))
	if maxIdle <= 0 {
		return
	}

	w.mu.Lock()
	idle := w.now().Sub(w.lastBeat)
	fire := idle > maxIdle && !w.tripped
	if fire {
		w.tripped = true
	}
	w.mu.Unlock()

	if !fire {
		return
	}

	w.logger.Warn("signal feed silent, flattening", zap.Duration("idle", idle))
	n := w.engine.FlattenAll(ctx, "heartbeat_lost", cfg.FlattenCancelsPending)
	w.events.Emit(domain.EventStatusText, map[string]any{
		"text":      "heartbeat lost, book flattened",
		"idle_sec":  idle.Seconds(),
		"flattened": n,
	})
}

// Sweep closes positions whose max hold expired and positions whose base
// balance no longer covers the tracked size (sold or withdrawn out of band).
func (w *Watchdog) Sweep(ctx context.Context) {
	cfg := w.cfg.Snapshot()
	now := w.now()

	for _, pos := range w.engine.OpenPositions() {
		if pos.State == domain.StatePending {
			continue
		}

		if pos.MaxHold > 0 && now.Sub(pos.OpenedAt) > pos.MaxHold {
			w.logger.Info("max hold expired",
				zap.String("symbol", pos.Symbol),
				zap.Duration("held", now.Sub(pos.OpenedAt)),
			)
			if err := w.engine.Flatten(ctx, pos.Symbol, "max_hold_expired", cfg.FlattenCancelsPending); err != nil {
				w.logger.Error("hold-expiry flatten failed", zap.String("symbol", pos.Symbol), zap.Error(err))
			}
			continue
		}

		free, err := w.exchange.GetFreeBalance(ctx, pos.BaseCoin)
		if err != nil {
			w.logger.Warn("balance check failed", zap.String("asset", pos.BaseCoin), zap.Error(err))
			continue
		}
		// Small tolerance for exchange fee dust on the base asset.
		if free < pos.Remaining*0.999 {
			w.logger.Warn("tracked size exceeds free balance, dropping position",
				zap.String("symbol", pos.Symbol),
				zap.Float64("remaining", pos.Remaining),
				zap.Float64("free", free),
			)
			if err := w.engine.Flatten(ctx, pos.Symbol, "balance_mismatch", cfg.FlattenCancelsPending); err != nil {
				w.logger.Error("balance-mismatch flatten failed", zap.String("symbol", pos.Symbol), zap.Error(err))
			}
		}
	}
}

// Run drives both checks until the context is cancelled. The heartbeat is
// checked every minute; the sweep runs on its own ticker at the configured
// interval, re-read after each heartbeat check so config swaps apply.
func (w *Watchdog) Run(ctx context.Context) {
	heartbeat := time.NewTicker(heartbeatCheckInterval)
	defer heartbeat.Stop()

	sweepEvery := w.sweepInterval()
	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			w.CheckHeartbeat(ctx)
			if next := w.sweepInterval(); next != sweepEvery {
				sweepEvery = next
				sweep.Reset(next)
			}
		case <-sweep.C:
			w.Sweep(ctx)
		}
	}
}

func (w *Watchdog) sweepInterval() time.Duration {
	d := time.Duration(w.cfg.Snapshot().FlattenCheckIntervalMin * float64(time.Minute))
	if d <= 0 {
		d = 10 * time.Minute
	}
	return d
}
