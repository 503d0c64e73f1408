// Package loaf is the public API for embedding the loaf cognition substrate.
//
// Hosts construct a Substrate and drive it directly, or let Run() own the
// heartbeat and snapshot loops:
//
//	sub, err := loaf.New(
//	    loaf.WithVersion(version),
//	    loaf.WithLogger(logger),
//	    loaf.WithLLMClient(myLLM),
//	)
//	if err != nil { ... }
//	if err := sub.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: loaf (root) imports
// internal/*, but internal/* never imports loaf (root). Public types (DTU,
// Actor, Event, ...) are standalone structs with no internal imports;
// conversion helpers (toPublicDTU, toInternalActor, ...) live here because
// this is the only file that sees both sides of the boundary.
package loaf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/loaf-ai/loaf/internal/atlas"
	"github.com/loaf-ai/loaf/internal/autogen"
	"github.com/loaf-ai/loaf/internal/budget"
	"github.com/loaf-ai/loaf/internal/bus"
	"github.com/loaf-ai/loaf/internal/chat"
	"github.com/loaf-ai/loaf/internal/config"
	"github.com/loaf-ai/loaf/internal/embedding"
	"github.com/loaf-ai/loaf/internal/federation"
	"github.com/loaf-ai/loaf/internal/governance"
	"github.com/loaf-ai/loaf/internal/heartbeat"
	"github.com/loaf-ai/loaf/internal/idclock"
	"github.com/loaf-ai/loaf/internal/llm"
	"github.com/loaf-ai/loaf/internal/mcp"
	"github.com/loaf-ai/loaf/internal/model"
	"github.com/loaf-ai/loaf/internal/persistence"
	"github.com/loaf-ai/loaf/internal/rights"
	"github.com/loaf-ai/loaf/internal/scheduler"
	"github.com/loaf-ai/loaf/internal/scope"
	"github.com/loaf-ai/loaf/internal/stability"
	"github.com/loaf-ai/loaf/internal/telemetry"
	"github.com/loaf-ai/loaf/internal/timeline"
)

// snapshotKey is the persistence key the substrate snapshot lives under.
const snapshotKey = "loaf/snapshot"

// Substrate is the assembled cognition substrate. Construct with New();
// it has no public fields — use New() options to configure it.
type Substrate struct {
	cfg     config.Config
	logger  *slog.Logger
	version string

	clock     *idclock.Clock
	bus       *bus.Bus
	atlas     *atlas.Store
	rights    *rights.Engine
	gate      *governance.Gate
	budget    *budget.Budget
	guard     *scope.Guard
	heart     *heartbeat.Heartbeat
	pipeline  *autogen.Pipeline
	monitor   *stability.Monitor
	exchange  *federation.Exchange
	chronicle *timeline.Chronicle
	chatAd    *chat.Adapter
	mcpSrv    *mcp.Server
	sched     *scheduler.Scheduler
	replay    *bus.ReplayEngine
	embedder  embedding.Provider
	persist   persistence.Store // nil when snapshots are disabled

	otelShutdown func(context.Context) error
}

// New initialises the substrate: loads configuration, wires every
// subsystem, and returns a ready Substrate. It does NOT start any
// goroutines — call Run(), or drive the operations directly.
func New(opts ...Option) (*Substrate, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.seed != "" {
		cfg.Seed = o.seed
	}
	if o.busCapacity > 0 {
		cfg.BusCapacity = o.busCapacity
	}
	if o.budgetWindow > 0 {
		cfg.BudgetWindow = o.budgetWindow
	}
	if o.budgetLimit > 0 {
		cfg.BudgetLimit = o.budgetLimit
	}
	if o.snapshotPath != "" {
		cfg.SnapshotPath = o.snapshotPath
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("loaf starting", "version", version, "seed", cfg.Seed)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, true)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Deterministic core: clock, event log, lattice.
	clock := idclock.New()
	b := bus.New(clock, cfg.BusCapacity, logger)
	store := atlas.NewStore(clock, b, logger)
	re := rights.NewEngine()
	gate := governance.NewGate(clock, logger)
	bud := budget.New(cfg.BudgetWindow, float64(cfg.BudgetLimit), nil)
	guard := scope.NewGuard(store, gate, re, b, clock, logger)

	heart := heartbeat.New(store, re, b, logger)
	heart.LocalInterval = cfg.LocalTickInterval
	heart.GlobalInterval = cfg.GlobalTickInterval
	heart.MarketplaceInterval = cfg.MarketplaceTickInterval

	// LLM client — external override takes priority over Ollama.
	var llmClient autogen.LLMClient
	switch {
	case o.llm != nil:
		llmClient = o.llm
	case cfg.OllamaURL != "":
		logger.Info("llm: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		llmClient = llm.NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel)
	default:
		logger.Info("llm: none (autogen shaping disabled)")
	}

	// Embedding provider — external override, Ollama, or noop.
	var embedder embedding.Provider
	switch {
	case o.embedder != nil:
		embedder = o.embedder
	case cfg.OllamaURL != "":
		logger.Info("embedding provider: ollama",
			"model", cfg.EmbeddingModel, "dimensions", cfg.EmbeddingDimensions)
		embedder = embedding.NewOllamaProvider(cfg.OllamaURL, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	default:
		logger.Info("embedding provider: noop")
		embedder = embedding.NewNoopProvider(cfg.EmbeddingDimensions)
	}

	pipeline := autogen.New(store, b, clock, llmClient, logger)
	monitor := stability.NewMonitor(b)
	exchange := federation.NewExchange(store, re, b, clock, logger)
	chronicle := timeline.NewChronicle(clock, b, logger)
	chatAd := chat.New(store, guard, logger)

	// MCP writes act as the local host unless an actor is supplied.
	mcpActor := &model.Actor{ID: "mcp-host", Role: model.RoleOwner, Verified: true, Scopes: []string{"*"}}
	if o.mcpActor != nil {
		mcpActor = toInternalActor(*o.mcpActor)
	}
	mcpSrv := mcp.New(chatAd, mcpActor, logger, version)

	// Snapshot store — external override, SQLite, or none.
	var persist persistence.Store
	switch {
	case o.store != nil:
		persist = o.store
	case cfg.SnapshotPath != "":
		persist, err = persistence.OpenSQLite(context.Background(), cfg.SnapshotPath)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("persistence: %w", err)
		}
		logger.Info("snapshots: sqlite", "path", cfg.SnapshotPath, "interval", cfg.SnapshotInterval)
	default:
		logger.Info("snapshots: disabled (no LOAF_SNAPSHOT_PATH)")
	}

	return &Substrate{
		cfg:          cfg,
		logger:       logger,
		version:      version,
		clock:        clock,
		bus:          b,
		atlas:        store,
		rights:       re,
		gate:         gate,
		budget:       bud,
		guard:        guard,
		heart:        heart,
		pipeline:     pipeline,
		monitor:      monitor,
		exchange:     exchange,
		chronicle:    chronicle,
		chatAd:       chatAd,
		mcpSrv:       mcpSrv,
		sched:        scheduler.New(),
		replay:       bus.NewReplayEngine(),
		embedder:     embedder,
		persist:      persist,
		otelShutdown: otelShutdown,
	}, nil
}

// Run starts the heartbeat sweeps and the snapshot loop, then blocks until
// ctx is cancelled. On return, Shutdown is called automatically — callers
// should not call Shutdown separately.
func (s *Substrate) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.heart.Run(ctx) })
	if s.persist != nil && s.cfg.SnapshotInterval > 0 {
		g.Go(func() error { return s.snapshotLoop(ctx) })
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		_ = s.Shutdown(context.Background())
		return err
	}
	return s.Shutdown(context.Background())
}

func (s *Substrate) snapshotLoop(ctx context.Context) error {
	t := time.NewTicker(s.cfg.SnapshotInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := s.SaveSnapshot(ctx); err != nil {
				s.logger.Warn("periodic snapshot failed", "error", err)
			}
		}
	}
}

// Shutdown saves a final snapshot, closes the snapshot store, and flushes
// telemetry.
func (s *Substrate) Shutdown(ctx context.Context) error {
	s.logger.Info("loaf shutting down")
	if s.persist != nil {
		if err := s.SaveSnapshot(ctx); err != nil {
			s.logger.Warn("final snapshot failed", "error", err)
		}
		if err := s.persist.Close(); err != nil {
			s.logger.Warn("snapshot store close failed", "error", err)
		}
	}
	_ = s.otelShutdown(context.Background())
	s.logger.Info("loaf stopped")
	return nil
}

// Embed generates an embedding vector through the configured provider.
// With no backend configured this returns zero vectors, not an error.
func (s *Substrate) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embedder.Embed(ctx, text)
}

// MCPServer exposes the MCP surface for hosts that serve it (stdio, SSE).
func (s *Substrate) MCPServer() *mcpserver.MCPServer {
	return s.mcpSrv.MCPServer()
}

// ── Write surface ──────────────────────────────────────────────────────────────

// admit charges the actor's admission budget for a domain and records the
// charge on the cognition log. Denial aborts the operation.
func (s *Substrate) admit(actor Actor, domain string) error {
	dec := s.budget.Consume(actor.ID, domain, 0)
	s.bus.Emit(model.EventBudgetConsumed, map[string]any{
		"domain":    domain,
		"cost":      dec.Cost,
		"allowed":   dec.Allowed,
		"remaining": dec.Remaining,
	}, model.EventMeta{ActorID: actor.ID})
	if !dec.Allowed {
		return fmt.Errorf("%w: %s resets in %s", ErrBudgetExceeded, domain, dec.ResetIn)
	}
	return nil
}

// Create writes a DTU through the guarded write surface. Local writes get
// SOFT validation; Global and Marketplace writes must satisfy the HARD
// contract.
func (s *Substrate) Create(req CreateRequest, actor Actor) (DTU, error) {
	if err := s.admit(actor, "world.write"); err != nil {
		return DTU{}, err
	}
	lane := model.Scope(req.Scope)
	if lane == "" {
		lane = model.ScopeLocal
	}
	res := s.guard.Apply(scope.OpCreate, createPayload(req), scope.WriteContext{
		Scope: lane,
		Actor: toInternalActor(actor),
	})
	if res.Err != nil {
		return DTU{}, translateErr(res.Err)
	}
	return toPublicDTU(res.DTU), nil
}

// Get returns a DTU by id.
func (s *Substrate) Get(id string) (DTU, bool) {
	d, ok := s.atlas.Get(id)
	if !ok {
		return DTU{}, false
	}
	return toPublicDTU(d), true
}

// Retrieve answers a free-text query from the local then global lanes,
// ordered by confidence then recency.
func (s *Substrate) Retrieve(query string, limit int) RetrieveResult {
	res := s.atlas.Retrieve(atlas.RetrieveLocalThenGlobal, query, limit)
	out := RetrieveResult{OK: res.OK, Total: res.Total}
	for _, d := range res.Results {
		out.Results = append(out.Results, toPublicDTU(d))
	}
	return out
}

// Link records a typed edge between two DTUs.
func (s *Substrate) Link(fromID, toID, linkType, severity string, actor Actor) error {
	if err := s.admit(actor, "world.write"); err != nil {
		return err
	}
	res := s.guard.Apply(scope.OpLink, map[string]any{
		"fromId":   fromID,
		"toId":     toID,
		"type":     linkType,
		"severity": severity,
	}, scope.WriteContext{Scope: model.ScopeLocal, Actor: toInternalActor(actor)})
	return translateErr(res.Err)
}

// Submit seals a lane-ascension request. Local DTUs target GLOBAL;
// MARKETPLACE is reachable only from GLOBAL.
func (s *Substrate) Submit(dtuID, targetScope string, actor Actor) (Submission, error) {
	if err := s.admit(actor, "canon.promote"); err != nil {
		return Submission{}, err
	}
	sub, err := s.guard.Router().CreateSubmission(dtuID, model.Scope(targetScope), toInternalActor(actor))
	if err != nil {
		return Submission{}, translateErr(err)
	}
	return toPublicSubmission(sub), nil
}

// ResolveSubmission approves or rejects a pending submission. Council-gated.
func (s *Substrate) ResolveSubmission(id string, approve bool, actor Actor) error {
	return translateErr(s.guard.Router().Resolve(id, approve, toInternalActor(actor)))
}

// GetSubmission returns a submission by id.
func (s *Substrate) GetSubmission(id string) (Submission, bool) {
	sub, ok := s.guard.Router().Submission(id)
	if !ok {
		return Submission{}, false
	}
	return toPublicSubmission(sub), true
}

// Promote runs a PROPOSED DTU through the auto-promote gate.
func (s *Substrate) Promote(dtuID, targetScope string, actor Actor) (DTU, error) {
	if err := s.admit(actor, "canon.promote"); err != nil {
		return DTU{}, err
	}
	res := s.guard.Apply(scope.OpPromote, map[string]any{"dtuId": dtuID}, scope.WriteContext{
		Scope: model.Scope(targetScope),
		Actor: toInternalActor(actor),
	})
	if res.Err != nil {
		return DTU{}, translateErr(res.Err)
	}
	return toPublicDTU(res.DTU), nil
}

// ── Federation ─────────────────────────────────────────────────────────────────

// ExportEnvelope packages a DTU for federation: artifact, provenance,
// evidence, dispute history, license, and a canonical artifact hash.
func (s *Substrate) ExportEnvelope(dtuID string, reputation float64) ([]byte, error) {
	env, err := s.exchange.Export(dtuID, reputation)
	if err != nil {
		return nil, translateErr(err)
	}
	return json.Marshal(env)
}

// ImportEnvelope lands a federation envelope in the local sandbox and
// returns the import id. The artifact stays quarantined until promoted.
func (s *Substrate) ImportEnvelope(data []byte) (string, error) {
	var env federation.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	imp, err := s.exchange.ImportEnvelope(env)
	if err != nil {
		return "", translateErr(err)
	}
	return imp.ID, nil
}

// PromoteImport lifts a sandboxed import to trusted. Privileged roles only.
func (s *Substrate) PromoteImport(importID string, actor Actor) error {
	return translateErr(s.exchange.Promote(importID, toInternalActor(actor)))
}

// ── Cognition log ──────────────────────────────────────────────────────────────

// Events queries the cognition log.
func (s *Substrate) Events(f EventFilter) []Event {
	evs := s.bus.Query(bus.Filter{
		Type:    f.Type,
		Since:   f.Since,
		Until:   f.Until,
		ActorID: f.ActorID,
		Limit:   f.Limit,
	})
	out := make([]Event, len(evs))
	for i, ev := range evs {
		out[i] = Event{Seq: ev.Seq, Type: ev.Type, Payload: ev.Payload, ActorID: ev.Meta.ActorID, TS: ev.TS}
	}
	return out
}

// Replay derives the deterministic decision stream for a log segment.
// Identical events and an identical seed always yield an identical stream.
func (s *Substrate) Replay(fromSeq, toSeq int64) ReplayStream {
	res := s.replay.Replay(s.bus.Snapshot(fromSeq, toSeq), s.cfg.Seed, s.version)
	out := ReplayStream{Seed: res.Seed, ModelVersion: res.ModelVersion}
	for _, d := range res.Decisions {
		out.Decisions = append(out.Decisions, ReplayDecision(d))
	}
	return out
}

// ── Autogen, drift, governance ─────────────────────────────────────────────────

// RunAutogen executes one self-generation run. variant is "", "dream",
// "synth", or "evolution". Charged as background work against the system
// actor.
func (s *Substrate) RunAutogen(ctx context.Context, variant string, actor Actor) (AutogenReport, error) {
	if err := s.admit(actor, "background"); err != nil {
		return AutogenReport{}, err
	}
	res := s.pipeline.Run(ctx, autogen.Variant(variant))
	return AutogenReport{
		Intent:      string(res.Target.Intent),
		DTUID:       res.DTUID,
		Mode:        string(res.Mode),
		Aborted:     res.Aborted,
		AbortReason: res.AbortReason,
		Trace:       res.Trace,
	}, nil
}

// DetectDrift runs every stability detector over the supplied signals.
// Firing detectors emit drift events on the cognition log.
func (s *Substrate) DetectDrift(sig Signals) []Alert {
	alerts := s.monitor.DetectAll(stability.Signals{
		DomainCounts:      sig.DomainCounts,
		TransferSourced:   sig.TransferSourced,
		TotalLearning:     sig.TotalLearning,
		EconomicDecisions: sig.EconomicDecisions,
		TotalDecisions:    sig.TotalDecisions,
		AttentionWeights:  sig.AttentionWeights,
	})
	out := make([]Alert, len(alerts))
	for i, a := range alerts {
		out[i] = Alert(a)
	}
	return out
}

// ReportFailure converts a real incident into a regression test, a
// constraint, and a guardrail.
func (s *Substrate) ReportFailure(kind, detail string) Hardening {
	gen := s.monitor.GenerateFromFailure(stability.Failure{
		ID:        s.clock.MintID(),
		Kind:      kind,
		Detail:    detail,
		Timestamp: s.clock.Now(),
	})
	return Hardening{
		TestID:       gen.Test.ID,
		ConstraintID: gen.Constraint.ID,
		GuardrailID:  gen.Guardrail.ID,
	}
}

// CreateRule writes a constitution rule. Privileged roles only.
func (s *Substrate) CreateRule(text string, actor Actor) (string, error) {
	rule, err := s.gate.CreateRule(toInternalActor(actor), text, model.Provenance{
		SourceType: "governance",
		SourceID:   actor.ID,
		Confidence: 1,
		CreatedAt:  s.clock.Now(),
	})
	if err != nil {
		return "", translateErr(err)
	}
	return rule.ID, nil
}

// AmendRule changes a rule's text under a supermajority vote.
func (s *Substrate) AmendRule(ruleID, newText string, votes []Vote, actor Actor) (string, error) {
	am, err := s.gate.AmendRule(toInternalActor(actor), ruleID, newText, toInternalVotes(votes))
	if err != nil {
		return "", translateErr(err)
	}
	return am.ID, nil
}

// RevertRule rolls a rule back to its previous text under a supermajority
// vote.
func (s *Substrate) RevertRule(ruleID string, votes []Vote, actor Actor) (string, error) {
	am, err := s.gate.RevertRule(toInternalActor(actor), ruleID, toInternalVotes(votes))
	if err != nil {
		return "", translateErr(err)
	}
	return am.ID, nil
}

// ── Timelines ──────────────────────────────────────────────────────────────────

// CreateTimeline opens a new timeline at version 1.
func (s *Substrate) CreateTimeline(name string, initial map[string]any) string {
	return s.chronicle.Create(name, timeline.State(initial)).ID
}

// CommitTimeline appends a new version and returns its number.
func (s *Substrate) CommitTimeline(id string, state map[string]any, note string) (int, error) {
	v, err := s.chronicle.Commit(id, timeline.State(state), note)
	if err != nil {
		return 0, translateErr(err)
	}
	return v.Number, nil
}

// ForkTimeline branches a timeline at a version and returns the fork's id.
func (s *Substrate) ForkTimeline(id string, atVersion int, name string) (string, error) {
	fork, err := s.chronicle.Fork(id, atVersion, name)
	if err != nil {
		return "", translateErr(err)
	}
	return fork.ID, nil
}

// TimelineDiff compares two versions of a timeline.
func (s *Substrate) TimelineDiff(id string, a, b int) ([]Change, error) {
	changes, err := s.chronicle.Diff(id, a, b)
	if err != nil {
		return nil, translateErr(err)
	}
	out := make([]Change, len(changes))
	for i, c := range changes {
		out[i] = Change{Key: c.Key, Kind: string(c.Kind), Before: c.Before, After: c.After}
	}
	return out, nil
}

// AddCausalEdge records that effect depends on cause.
func (s *Substrate) AddCausalEdge(cause, effect string, weight float64) {
	s.chronicle.AddEdge(cause, effect, weight)
}

// Counterfactual replays a timeline from a version with an injected state
// change, recomputing causally-downstream values. The JSON result carries
// the final state, the baseline, the divergences, and the per-key
// decisions. Same seed, same outcome.
func (s *Substrate) Counterfactual(id string, atVersion int, injection map[string]any, seed string) ([]byte, error) {
	res, err := s.chronicle.Counterfactual(id, atVersion, timeline.State(injection), seed)
	if err != nil {
		return nil, translateErr(err)
	}
	return json.Marshal(res)
}

// ── Scheduler ──────────────────────────────────────────────────────────────────

// ScheduleTask enqueues one unit of cognitive work.
func (s *Substrate) ScheduleTask(id string, priority int, background bool) {
	s.sched.Schedule(&scheduler.Task{ID: id, Priority: priority, Background: background})
	s.bus.Emit(model.EventThreadScheduled, map[string]any{
		"task_id":  id,
		"priority": priority,
	}, model.EventMeta{})
}

// DequeueTask pops the highest-priority task, or reports none available.
func (s *Substrate) DequeueTask() (string, bool) {
	t, ok := s.sched.Dequeue()
	if !ok {
		return "", false
	}
	return t.ID, true
}

// CompleteTask marks a running task done.
func (s *Substrate) CompleteTask(id string) {
	s.sched.Complete(id)
}

// ── Snapshots ──────────────────────────────────────────────────────────────────

// snapshot assembles the durable state bundle. Each subsystem marshals its
// own section.
func (s *Substrate) snapshot() (persistence.Snapshot, error) {
	dtus, links := s.atlas.Export()
	snap := persistence.Snapshot{
		TakenAt:        time.Now().UTC(),
		Seed:           s.cfg.Seed,
		SequenceCursor: s.clock.Cursor(),
		RecentHashes:   s.pipeline.RecentHashes(),
	}
	var err error
	if snap.Shards, err = json.Marshal(dtus); err != nil {
		return persistence.Snapshot{}, fmt.Errorf("snapshot shards: %w", err)
	}
	if snap.Links, err = json.Marshal(links); err != nil {
		return persistence.Snapshot{}, fmt.Errorf("snapshot links: %w", err)
	}
	if snap.ConstitutionRules, err = json.Marshal(s.gate.Rules()); err != nil {
		return persistence.Snapshot{}, fmt.Errorf("snapshot rules: %w", err)
	}
	if snap.Amendments, err = json.Marshal(s.gate.Amendments()); err != nil {
		return persistence.Snapshot{}, fmt.Errorf("snapshot amendments: %w", err)
	}
	if snap.Submissions, err = json.Marshal(s.guard.Router().Export()); err != nil {
		return persistence.Snapshot{}, fmt.Errorf("snapshot submissions: %w", err)
	}
	return snap, nil
}

// restore reinstalls a snapshot. The sequence cursor advances past the
// snapshot's so restored and new ids never collide.
func (s *Substrate) restore(snap persistence.Snapshot) error {
	var dtus map[string]map[string]*model.DTU
	if len(snap.Shards) > 0 {
		if err := json.Unmarshal(snap.Shards, &dtus); err != nil {
			return fmt.Errorf("restore shards: %w", err)
		}
	}
	var links []model.Link
	if len(snap.Links) > 0 {
		if err := json.Unmarshal(snap.Links, &links); err != nil {
			return fmt.Errorf("restore links: %w", err)
		}
	}
	s.atlas.RestoreState(dtus, links)

	var rules []model.ConstitutionRule
	if len(snap.ConstitutionRules) > 0 {
		if err := json.Unmarshal(snap.ConstitutionRules, &rules); err != nil {
			return fmt.Errorf("restore rules: %w", err)
		}
	}
	var amendments []model.Amendment
	if len(snap.Amendments) > 0 {
		if err := json.Unmarshal(snap.Amendments, &amendments); err != nil {
			return fmt.Errorf("restore amendments: %w", err)
		}
	}
	s.gate.RestoreRules(rules, amendments)

	var subs []scope.SubmissionRecord
	if len(snap.Submissions) > 0 {
		if err := json.Unmarshal(snap.Submissions, &subs); err != nil {
			return fmt.Errorf("restore submissions: %w", err)
		}
	}
	s.guard.Router().RestoreState(subs)

	s.pipeline.RestoreRecentHashes(snap.RecentHashes)
	s.clock.Advance(snap.SequenceCursor)
	if snap.Seed != "" {
		s.cfg.Seed = snap.Seed
	}
	return nil
}

// SaveSnapshot writes the current state to the snapshot store.
func (s *Substrate) SaveSnapshot(ctx context.Context) error {
	if s.persist == nil {
		return ErrNoPersistence
	}
	snap, err := s.snapshot()
	if err != nil {
		return err
	}
	return persistence.SaveSnapshot(ctx, s.persist, snapshotKey, snap)
}

// LoadSnapshot reads the stored snapshot and reinstalls it.
func (s *Substrate) LoadSnapshot(ctx context.Context) error {
	if s.persist == nil {
		return ErrNoPersistence
	}
	snap, err := persistence.LoadSnapshot(ctx, s.persist, snapshotKey)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return s.restore(snap)
}

// Stats returns a point-in-time summary.
func (s *Substrate) Stats() Stats {
	return Stats{
		Version: s.version,
		Seed:    s.cfg.Seed,
		DTUs:    s.atlas.Size(),
		Links:   len(s.atlas.AllLinks()),
		Events:  s.bus.Len(),
		Cursor:  s.clock.Cursor(),
	}
}

// ── Type converters ────────────────────────────────────────────────────────────

func toInternalActor(a Actor) *model.Actor {
	return &model.Actor{
		ID:       a.ID,
		Role:     model.Role(a.Role),
		Verified: a.Verified,
		Scopes:   a.Scopes,
	}
}

func toInternalVotes(votes []Vote) []model.Vote {
	out := make([]model.Vote, len(votes))
	for i, v := range votes {
		choice := model.VoteReject
		switch {
		case v.Abstain:
			choice = model.VoteAbstain
		case v.Approve:
			choice = model.VoteApprove
		}
		out[i] = model.Vote{ActorID: v.ActorID, Choice: choice}
	}
	return out
}

func toPublicDTU(d *model.DTU) DTU {
	if d == nil {
		return DTU{}
	}
	out := DTU{
		ID:             d.ID,
		Title:          d.Title,
		Tags:           d.Tags,
		DomainType:     d.DomainType,
		EpistemicClass: string(d.EpistemicClass),
		Lane:           string(d.Lane),
		Status:         string(d.Status),
		CreatorID:      d.CreatorID,
		Confidence:     d.Scores.Overall,
		ContentHash:    d.ContentHash,
		CreatedAt:      d.CreatedAt,
	}
	for _, c := range d.Claims {
		out.Claims = append(out.Claims, Claim{
			Type:         string(c.Type),
			Text:         c.Text,
			EvidenceTier: string(c.EvidenceTier),
			Sources:      c.Sources,
		})
	}
	return out
}

func toPublicSubmission(sub *scope.Submission) Submission {
	return Submission{
		ID:          sub.ID,
		DTUID:       sub.DTUID,
		TargetScope: string(sub.TargetScope),
		Status:      string(sub.Status()),
		PayloadHash: sub.PayloadHash,
		CreatedAt:   sub.CreatedAt,
	}
}

// createPayload maps a CreateRequest onto the guard's wire payload.
func createPayload(req CreateRequest) map[string]any {
	payload := map[string]any{"title": req.Title}
	if len(req.Tags) > 0 {
		payload["tags"] = req.Tags
	}
	if req.DomainType != "" {
		payload["domainType"] = req.DomainType
	}
	if req.EpistemicClass != "" {
		payload["epistemicClass"] = req.EpistemicClass
	}
	if len(req.Claims) > 0 {
		claims := make([]map[string]any, len(req.Claims))
		for i, c := range req.Claims {
			claims[i] = map[string]any{"type": c.Type, "text": c.Text}
			if c.EvidenceTier != "" {
				claims[i]["evidenceTier"] = c.EvidenceTier
			}
			if len(c.Sources) > 0 {
				claims[i]["sources"] = c.Sources
			}
		}
		payload["claims"] = claims
	}
	if len(req.Parents) > 0 {
		payload["lineage"] = map[string]any{"parents": req.Parents}
	}
	if req.Provenance != nil {
		payload["provenance"] = map[string]any{
			"source_type": req.Provenance.SourceType,
			"source_id":   req.Provenance.SourceID,
			"confidence":  req.Provenance.Confidence,
			"created_at":  req.Provenance.CreatedAt.Format(time.RFC3339Nano),
		}
	}
	return payload
}

// translateErr maps internal sentinels onto the public ones, preserving the
// original message.
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, atlas.ErrNotFound), errors.Is(err, timeline.ErrNotFound),
		errors.Is(err, governance.ErrRuleNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, scope.ErrDenied), errors.Is(err, federation.ErrNotPrivileged):
		return fmt.Errorf("%w: %v", ErrDenied, err)
	case errors.Is(err, scope.ErrValidation), errors.Is(err, scope.ErrBadTarget),
		errors.Is(err, federation.ErrBadEnvelope), errors.Is(err, federation.ErrHashMismatch):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		return err
	}
}
