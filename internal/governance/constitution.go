package governance

import (
	"errors"
	"fmt"
	"time"

	"github.com/loaf-ai/loaf/internal/model"
)

// Supermajority thresholds for amendments and reverts.
const (
	MinVotes           = 3
	SupermajorityRatio = 2.0 / 3.0
)

// ErrNoSupermajority rejects a rule change without sufficient votes.
var ErrNoSupermajority = errors.New("governance: supermajority not reached")

// ErrRuleNotFound rejects operations on unknown rules.
var ErrRuleNotFound = errors.New("governance: rule not found")

// hasSupermajority requires total votes >= MinVotes and approvals/total
// >= 2/3. Abstentions count toward the total.
func hasSupermajority(votes []model.Vote) bool {
	if len(votes) < MinVotes {
		return false
	}
	approvals := 0
	for _, v := range votes {
		if v.Choice == model.VoteApprove {
			approvals++
		}
	}
	return float64(approvals)/float64(len(votes)) >= SupermajorityRatio
}

// CreateRule adds a constitution rule. Requires a privileged actor passing
// the gate on canon.promote.
func (g *Gate) CreateRule(actor *model.Actor, text string, prov model.Provenance) (*model.ConstitutionRule, error) {
	if res := g.Check(actor, "canon.promote", "create_rule", CheckOptions{}); !res.Allowed {
		return nil, fmt.Errorf("governance: create rule denied: %s", res.Reason)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	rule := &model.ConstitutionRule{
		ID:         g.clock.MintID(),
		Text:       text,
		Version:    1,
		Provenance: prov,
		Active:     true,
		CreatedAt:  g.now(),
	}
	g.rules[rule.ID] = rule
	return rule, nil
}

// AmendRule replaces a rule's text, appending to the amendment log. The
// change requires supermajority and a privileged actor.
func (g *Gate) AmendRule(actor *model.Actor, ruleID, newText string, votes []model.Vote) (*model.Amendment, error) {
	if res := g.Check(actor, "canon.promote", "amend_rule", CheckOptions{}); !res.Allowed {
		return nil, fmt.Errorf("governance: amend denied: %s", res.Reason)
	}
	if !hasSupermajority(votes) {
		return nil, ErrNoSupermajority
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	rule, ok := g.rules[ruleID]
	if !ok {
		return nil, ErrRuleNotFound
	}
	am := model.Amendment{
		ID:       g.clock.MintID(),
		RuleID:   ruleID,
		ActorID:  actor.ID,
		PrevText: rule.Text,
		NewText:  newText,
		Version:  rule.Version + 1,
		Votes:    votes,
		At:       g.now(),
	}
	rule.Text = newText
	rule.Version++
	rule.Votes = votes
	g.amendments = append(g.amendments, am)
	return &am, nil
}

// RevertRule restores the rule text prior to its latest amendment. Reverts
// are themselves amendments and need the same supermajority.
func (g *Gate) RevertRule(actor *model.Actor, ruleID string, votes []model.Vote) (*model.Amendment, error) {
	if res := g.Check(actor, "canon.promote", "revert_rule", CheckOptions{}); !res.Allowed {
		return nil, fmt.Errorf("governance: revert denied: %s", res.Reason)
	}
	if !hasSupermajority(votes) {
		return nil, ErrNoSupermajority
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	rule, ok := g.rules[ruleID]
	if !ok {
		return nil, ErrRuleNotFound
	}
	// Find the most recent amendment for this rule.
	var last *model.Amendment
	for i := len(g.amendments) - 1; i >= 0; i-- {
		if g.amendments[i].RuleID == ruleID {
			last = &g.amendments[i]
			break
		}
	}
	if last == nil {
		return nil, fmt.Errorf("governance: rule %s has no amendments to revert", ruleID)
	}
	am := model.Amendment{
		ID:       g.clock.MintID(),
		RuleID:   ruleID,
		ActorID:  actor.ID,
		PrevText: rule.Text,
		NewText:  last.PrevText,
		Version:  rule.Version + 1,
		Revert:   true,
		Votes:    votes,
		At:       g.now(),
	}
	rule.Text = last.PrevText
	rule.Version++
	g.amendments = append(g.amendments, am)
	return &am, nil
}

// Rule returns a copy of the rule.
func (g *Gate) Rule(id string) (model.ConstitutionRule, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rules[id]
	if !ok {
		return model.ConstitutionRule{}, false
	}
	return *r, true
}

// Rules returns copies of all rules.
func (g *Gate) Rules() []model.ConstitutionRule {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]model.ConstitutionRule, 0, len(g.rules))
	for _, r := range g.rules {
		out = append(out, *r)
	}
	return out
}

// Amendments returns a copy of the append-only amendment log.
func (g *Gate) Amendments() []model.Amendment {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.Amendment(nil), g.amendments...)
}

// RestoreRules reinstalls rules and amendments from a snapshot.
func (g *Gate) RestoreRules(rules []model.ConstitutionRule, amendments []model.Amendment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = make(map[string]*model.ConstitutionRule, len(rules))
	for i := range rules {
		r := rules[i]
		g.rules[r.ID] = &r
	}
	g.amendments = append([]model.Amendment(nil), amendments...)
}

// PowerCreepFlag is one suspicious pattern found by the scan.
type PowerCreepFlag struct {
	Kind    string `json:"kind"` // actor_amendment_burst | amendment_volume
	ActorID string `json:"actor_id,omitempty"`
	Count   int    `json:"count"`
	Detail  string `json:"detail"`
}

// DetectPowerCreep scans the amendment log over the trailing window and
// flags (a) any actor with >= 3 amendments and (b) more than 10 amendments
// in total.
func (g *Gate) DetectPowerCreep(window time.Duration) []PowerCreepFlag {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-window)
	perActor := make(map[string]int)
	total := 0
	for _, am := range g.amendments {
		if am.At.Before(cutoff) {
			continue
		}
		perActor[am.ActorID]++
		total++
	}

	var flags []PowerCreepFlag
	for actor, n := range perActor {
		if n >= 3 {
			flags = append(flags, PowerCreepFlag{
				Kind:    "actor_amendment_burst",
				ActorID: actor,
				Count:   n,
				Detail:  fmt.Sprintf("actor %s amended %d rules within window", actor, n),
			})
		}
	}
	if total > 10 {
		flags = append(flags, PowerCreepFlag{
			Kind:   "amendment_volume",
			Count:  total,
			Detail: fmt.Sprintf("%d amendments within window", total),
		})
	}
	return flags
}
