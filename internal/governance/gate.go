// Package governance implements the fail-closed mutation gate and the
// constitution: supermajority-amended rules, an append-only amendment log,
// power-creep detection, and the frozen constants no in-process actor can
// mutate.
package governance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/loaf-ai/loaf/internal/idclock"
	"github.com/loaf-ai/loaf/internal/model"
	"github.com/loaf-ai/loaf/internal/telemetry"
)

// GatedDomains always pass through the mutation gate. Everything else
// short-circuits to allowed/ungated.
var GatedDomains = map[string]bool{
	"experience.write":   true,
	"world.write":        true,
	"transfer.write":     true,
	"canon.promote":      true,
	"economy.distribute": true,
	"macro.register":     true,
	"scheduler.modify":   true,
}

// privilegedRoles may pass the gate at all.
var privilegedRoles = map[model.Role]bool{
	model.RoleOwner:   true,
	model.RoleFounder: true,
	model.RoleAdmin:   true,
	model.RoleCouncil: true,
}

// CheckOptions modify a single gate check.
type CheckOptions struct {
	// Override allows a verified owner to bypass scope checks.
	Override bool
	// Internal marks a system-internal path; system/owner/founder actors
	// pass without scope checks.
	Internal bool
}

// CheckResult is the gate's verdict.
type CheckResult struct {
	Allowed bool           `json:"allowed"`
	Gated   bool           `json:"gated"`
	Reason  string         `json:"reason,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Gate is the single authorization point for gated mutations. Fail-closed:
// every path that does not explicitly allow, denies.
type Gate struct {
	clock  *idclock.Clock
	logger *slog.Logger
	checks metric.Int64Counter

	mu         sync.Mutex
	rules      map[string]*model.ConstitutionRule
	amendments []model.Amendment

	now func() time.Time
}

// NewGate creates a gate with an empty rule set.
func NewGate(clock *idclock.Clock, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	meter := telemetry.Meter("loaf/governance")
	checks, _ := meter.Int64Counter("loaf.gate.checks",
		metric.WithDescription("Mutation gate checks by outcome"),
	)
	return &Gate{
		clock:  clock,
		logger: logger,
		checks: checks,
		rules:  make(map[string]*model.ConstitutionRule),
		now:    time.Now,
	}
}

// SetNow overrides the time source. Test hook.
func (g *Gate) SetNow(now func() time.Time) { g.now = now }

// Check evaluates whether actor may perform action in domain.
// Non-gated domains short-circuit to allowed. For gated domains the rules
// are, in order: no actor denies; unprivileged role denies; verified-owner
// override allows; internal system path allows; otherwise the actor's
// scopes must cover the domain.
func (g *Gate) Check(actor *model.Actor, domain, action string, opts CheckOptions) CheckResult {
	res := g.evaluate(actor, domain, action, opts)
	if res.Gated {
		g.checks.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("domain", domain),
			attribute.Bool("allowed", res.Allowed),
		))
	}
	return res
}

func (g *Gate) evaluate(actor *model.Actor, domain, action string, opts CheckOptions) CheckResult {
	if !GatedDomains[domain] {
		return CheckResult{Allowed: true, Gated: false}
	}
	if actor == nil {
		return CheckResult{Allowed: false, Gated: true, Reason: "no_actor"}
	}
	if !privilegedRoles[actor.Role] && actor.Role != model.RoleSystem {
		return CheckResult{Allowed: false, Gated: true, Reason: "role_not_privileged",
			Meta: map[string]any{"role": string(actor.Role)}}
	}
	if opts.Override && actor.Role == model.RoleOwner && actor.Verified {
		return CheckResult{Allowed: true, Gated: true, Meta: map[string]any{"override": true}}
	}
	if opts.Internal {
		switch actor.Role {
		case model.RoleSystem, model.RoleOwner, model.RoleFounder:
			return CheckResult{Allowed: true, Gated: true, Meta: map[string]any{"internal": true}}
		}
	}
	if actor.Role == model.RoleSystem {
		// System actors outside an internal path get no implicit scope.
		return CheckResult{Allowed: false, Gated: true, Reason: "system_requires_internal"}
	}
	if !actor.HasScope(domain) {
		return CheckResult{Allowed: false, Gated: true, Reason: "scope_not_covered",
			Meta: map[string]any{"domain": domain}}
	}
	return CheckResult{Allowed: true, Gated: true, Meta: map[string]any{"action": action}}
}

// MandatoryMutationGate is Check for paths where a denial must abort the
// mutation. Callers treat a false Allowed as a hard stop.
func (g *Gate) MandatoryMutationGate(actor *model.Actor, domain, action string, opts CheckOptions) CheckResult {
	res := g.Check(actor, domain, action, opts)
	if !res.Allowed {
		g.logger.Warn("gate: mutation denied",
			"domain", domain, "action", action, "reason", res.Reason)
	}
	return res
}
