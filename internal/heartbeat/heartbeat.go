// Package heartbeat runs the periodic per-lane maintenance sweeps:
// re-score, promote, dedupe, and integrity scans. Each lane ticks on its
// own interval under a reentrancy lock — an overlapping tick is skipped,
// never queued.
package heartbeat

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loaf-ai/loaf/internal/atlas"
	"github.com/loaf-ai/loaf/internal/bus"
	"github.com/loaf-ai/loaf/internal/model"
	"github.com/loaf-ai/loaf/internal/rights"
)

// Default tick intervals per lane. Local churns fastest.
const (
	DefaultLocalInterval       = 15 * time.Second
	DefaultGlobalInterval      = 30 * time.Second
	DefaultMarketplaceInterval = 60 * time.Second
)

// Counts reports what one tick did.
type Counts struct {
	Skipped        bool `json:"skipped"`
	Recomputed     int  `json:"recomputed"`
	AutoPromoted   int  `json:"auto_promoted"`
	AutoDisputed   int  `json:"auto_disputed"`
	IntegrityScans int  `json:"integrity_scans"`
	FraudDetected  int  `json:"fraud_detected"`
}

// Heartbeat owns the three lane sweeps.
type Heartbeat struct {
	atlas  *atlas.Store
	rights *rights.Engine
	bus    *bus.Bus
	logger *slog.Logger

	LocalInterval       time.Duration
	GlobalInterval      time.Duration
	MarketplaceInterval time.Duration

	localBusy       atomic.Bool
	globalBusy      atomic.Bool
	marketplaceBusy atomic.Bool
}

// New wires a heartbeat with default intervals.
func New(a *atlas.Store, re *rights.Engine, b *bus.Bus, logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeat{
		atlas:               a,
		rights:              re,
		bus:                 b,
		logger:              logger,
		LocalInterval:       DefaultLocalInterval,
		GlobalInterval:      DefaultGlobalInterval,
		MarketplaceInterval: DefaultMarketplaceInterval,
	}
}

// Run ticks all three lanes until the context is cancelled.
func (h *Heartbeat) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.loop(ctx, h.LocalInterval, h.TickLocal) })
	g.Go(func() error { return h.loop(ctx, h.GlobalInterval, h.TickGlobal) })
	g.Go(func() error { return h.loop(ctx, h.MarketplaceInterval, h.TickMarketplace) })
	return g.Wait()
}

func (h *Heartbeat) loop(ctx context.Context, interval time.Duration, tick func() Counts) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			c := tick()
			if !c.Skipped {
				h.logger.Debug("heartbeat tick",
					"recomputed", c.Recomputed,
					"promoted", c.AutoPromoted,
					"disputed", c.AutoDisputed)
			}
		}
	}
}

// TickLocal recomputes scores for dirty Local DTUs.
func (h *Heartbeat) TickLocal() Counts {
	if !h.localBusy.CompareAndSwap(false, true) {
		return Counts{Skipped: true}
	}
	defer h.localBusy.Store(false)

	var c Counts
	for _, id := range h.atlas.TakeDirty(model.ScopeLocal) {
		if _, err := h.atlas.Rescore(id); err == nil {
			c.Recomputed++
		}
	}
	return c
}

// TickGlobal recomputes scores, runs the auto-promote gate over PROPOSED
// DTUs, auto-disputes on standing HIGH contradictions, and collapses
// near-duplicates.
func (h *Heartbeat) TickGlobal() Counts {
	if !h.globalBusy.CompareAndSwap(false, true) {
		return Counts{Skipped: true}
	}
	defer h.globalBusy.Store(false)

	var c Counts
	for _, id := range h.atlas.TakeDirty(model.ScopeGlobal) {
		if _, err := h.atlas.Rescore(id); err == nil {
			c.Recomputed++
		}
	}

	proposed := h.atlas.InLane(model.ScopeGlobal, func(d *model.DTU) bool {
		return d.Status == model.StatusProposed
	}, 0)
	for _, d := range proposed {
		res := h.atlas.AutoPromoteGate(d, model.ScopeGlobal)
		switch {
		case res.Pass:
			if tr, err := h.atlas.SetStatus(d.ID, res.Label, model.StatusProposed); err == nil && tr.OK && !tr.Noop {
				c.AutoPromoted++
			}
		case res.SameAsID != "":
			if err := h.atlas.MarkSameAs(d.ID, res.SameAsID); err == nil {
				h.logger.Info("collapsed duplicate", "dtu_id", d.ID, "same_as", res.SameAsID)
			}
		case failedCheck(res, "no_contradictions"):
			if tr, err := h.atlas.SetStatus(d.ID, model.StatusDisputed, model.StatusProposed); err == nil && tr.OK {
				c.AutoDisputed++
				h.bus.Emit(model.EventDisputeOpened, map[string]any{
					"dtu_id": d.ID,
					"reason": "standing_contradiction",
				}, model.EventMeta{})
			}
		}
	}
	return c
}

// TickMarketplace scans marketplace artifacts for integrity and fraud
// signals: recomputed hashes that no longer match the origin proof.
func (h *Heartbeat) TickMarketplace() Counts {
	if !h.marketplaceBusy.CompareAndSwap(false, true) {
		return Counts{Skipped: true}
	}
	defer h.marketplaceBusy.Store(false)

	var c Counts
	for _, d := range h.atlas.InLane(model.ScopeMarketplace, nil, 0) {
		c.IntegrityScans++
		ok, err := h.rights.VerifyOriginIntegrity(d)
		if err != nil {
			continue // no proof recorded yet; nothing to compare
		}
		if !ok {
			c.FraudDetected++
			if tr, serr := h.atlas.SetStatus(d.ID, model.StatusQuarantined); serr == nil && tr.OK && !tr.Noop {
				h.bus.Emit(model.EventQuarantineAdded, map[string]any{
					"dtu_id": d.ID,
					"reason": "origin_hash_mismatch",
				}, model.EventMeta{})
			}
		}
	}
	return c
}

func failedCheck(res atlas.GateResult, name string) bool {
	for _, ch := range res.Checks {
		if ch.Name == name && !ch.Pass {
			return true
		}
	}
	return false
}
