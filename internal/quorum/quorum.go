// Package quorum decides which majority a matter needs and whether a
// session has enough members present to deliberate.
package quorum

import (
	"errors"
	"fmt"

	"plenario/internal/config"
)

// ErrMembershipUnknown is returned when a rule depends on the full
// membership of the chamber and none is known.
var ErrMembershipUnknown = errors.New("full membership unknown")

type Votes struct {
	Yes     int
	No      int
	Abstain int
}

func (v Votes) Total() int { return v.Yes + v.No + v.Abstain }

// MatterRef carries the matter attributes rule selection depends on.
type MatterRef struct {
	Type         string
	Urgent       bool
	VetoOverride bool
}

// Resolution is either Resolved or UnresolvedUseDefault.
type Resolution interface {
	isResolution()
}

type Resolved struct {
	Rule   string
	Source string
}

type UnresolvedUseDefault struct {
	Reason string
}

func (Resolved) isResolution()             {}
func (UnresolvedUseDefault) isResolution() {}

type Evaluator struct {
	Installation config.InstallationRule
	Approval     config.ApprovalRules
}

func New(cfg *config.Config) Evaluator {
	if cfg == nil {
		cfg = config.Default()
	}
	return Evaluator{
		Installation: cfg.Quorum.Installation,
		Approval:     cfg.Quorum.Approval,
	}
}

// Resolve picks the approval rule for a matter.
func (e Evaluator) Resolve(m MatterRef, membership int) Resolution {
	source, rule := e.pick(m)
	if rule == "" {
		return UnresolvedUseDefault{Reason: "no approval rule configured"}
	}
	switch rule {
	case config.RuleSimpleMajority:
		return Resolved{Rule: rule, Source: source}
	case config.RuleAbsoluteMajority, config.RuleTwoThirds, config.RuleThreeFifths:
		if membership <= 0 {
			return UnresolvedUseDefault{Reason: fmt.Sprintf("%s requires full membership, which is unknown", rule)}
		}
		return Resolved{Rule: rule, Source: source}
	}
	return UnresolvedUseDefault{Reason: fmt.Sprintf("unknown approval rule %q from %s", rule, source)}
}

func (e Evaluator) pick(m MatterRef) (string, string) {
	if m.VetoOverride && e.Approval.VetoOverride != "" {
		return "veto_override", e.Approval.VetoOverride
	}
	if rule, ok := e.Approval.Types[m.Type]; ok && rule != "" {
		return "type:" + m.Type, rule
	}
	if m.Urgent && e.Approval.Urgent != "" {
		return "urgent", e.Approval.Urgent
	}
	return "default", e.Approval.Default
}

// Required returns the number of votes (or members) a membership-based rule needs.
func Required(rule string, membership int) int {
	switch rule {
	case config.RuleAbsoluteMajority:
		return membership/2 + 1
	case config.RuleTwoThirds:
		return (2*membership + 2) / 3
	case config.RuleThreeFifths:
		return (3*membership + 4) / 5
	case config.RuleOneThird:
		return (membership + 2) / 3
	}
	return 0
}

type Decision struct {
	Approved bool
	Detail   string
}

// Decide applies a resolved rule to the counted votes. A simple majority of
// votes cast only binds while an absolute majority of the membership is
// present; with no known membership the presence check is skipped.
func Decide(r Resolved, v Votes, membership, present int) Decision {
	if r.Rule == config.RuleSimpleMajority {
		if need := Required(config.RuleAbsoluteMajority, membership); membership > 0 && present < need {
			return Decision{
				Detail: fmt.Sprintf("simple majority (%s): %d present, %d required to deliberate", r.Source, present, need),
			}
		}
		return Decision{
			Approved: v.Yes > v.No,
			Detail:   fmt.Sprintf("simple majority (%s): %d yes vs %d no, %d abstaining", r.Source, v.Yes, v.No, v.Abstain),
		}
	}
	req := Required(r.Rule, membership)
	return Decision{
		Approved: v.Yes >= req,
		Detail:   fmt.Sprintf("%s (%s): %d yes of %d required, membership %d", r.Rule, r.Source, v.Yes, req, membership),
	}
}

// Installation is the outcome of checking whether a session may deliberate.
type Installation struct {
	Rule      string `json:"rule"`
	Required  int    `json:"required"`
	Present   int    `json:"present"`
	Shortfall int    `json:"shortfall"`
	Met       bool   `json:"met"`
}

// CheckInstallation compares present members against the installation rule.
func (e Evaluator) CheckInstallation(membership, present int) (Installation, error) {
	rule := e.Installation.Rule
	if rule == "" {
		rule = config.RuleAbsoluteMajority
	}
	var req int
	switch rule {
	case config.RuleFixed:
		req = e.Installation.Minimum
	case config.RuleAbsoluteMajority, config.RuleOneThird:
		if membership <= 0 {
			return Installation{}, ErrMembershipUnknown
		}
		req = Required(rule, membership)
	default:
		return Installation{}, fmt.Errorf("unknown installation rule %q", rule)
	}
	shortfall := req - present
	if shortfall < 0 {
		shortfall = 0
	}
	return Installation{
		Rule:      rule,
		Required:  req,
		Present:   present,
		Shortfall: shortfall,
		Met:       shortfall == 0,
	}, nil
}
