package quorum_test

import (
	"errors"
	"strings"
	"testing"

	"plenario/internal/config"
	"plenario/internal/quorum"
)

func TestRequired(t *testing.T) {
	cases := []struct {
		rule       string
		membership int
		want       int
	}{
		{config.RuleAbsoluteMajority, 9, 5},
		{config.RuleAbsoluteMajority, 10, 6},
		{config.RuleTwoThirds, 9, 6},
		{config.RuleTwoThirds, 10, 7},
		{config.RuleThreeFifths, 9, 6},
		{config.RuleThreeFifths, 10, 6},
		{config.RuleOneThird, 9, 3},
		{config.RuleOneThird, 10, 4},
	}
	for _, tc := range cases {
		if got := quorum.Required(tc.rule, tc.membership); got != tc.want {
			t.Fatalf("%s/%d: expected %d, got %d", tc.rule, tc.membership, tc.want, got)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	ev := quorum.New(config.Default())
	ev.Approval.Urgent = config.RuleAbsoluteMajority

	r, ok := ev.Resolve(quorum.MatterRef{Type: "PELO", VetoOverride: true}, 9).(quorum.Resolved)
	if !ok || r.Source != "veto_override" {
		t.Fatalf("expected veto override to win, got %+v", r)
	}
	r, ok = ev.Resolve(quorum.MatterRef{Type: "PELO", Urgent: true}, 9).(quorum.Resolved)
	if !ok || r.Rule != config.RuleTwoThirds {
		t.Fatalf("expected type rule before urgency, got %+v", r)
	}
	r, ok = ev.Resolve(quorum.MatterRef{Type: "PL", Urgent: true}, 9).(quorum.Resolved)
	if !ok || r.Source != "urgent" {
		t.Fatalf("expected urgent rule, got %+v", r)
	}
	r, ok = ev.Resolve(quorum.MatterRef{Type: "PL"}, 9).(quorum.Resolved)
	if !ok || r.Rule != config.RuleSimpleMajority {
		t.Fatalf("expected default simple majority, got %+v", r)
	}
}

func TestResolveUnresolved(t *testing.T) {
	ev := quorum.New(config.Default())
	ev.Approval.Types["MOC"] = "unanimity"

	if _, ok := ev.Resolve(quorum.MatterRef{Type: "MOC"}, 9).(quorum.UnresolvedUseDefault); !ok {
		t.Fatalf("unknown rule must be unresolved")
	}
	u, ok := ev.Resolve(quorum.MatterRef{Type: "PLC"}, 0).(quorum.UnresolvedUseDefault)
	if !ok || !strings.Contains(u.Reason, "membership") {
		t.Fatalf("absolute majority without membership must be unresolved, got %+v", u)
	}
	if _, ok := ev.Resolve(quorum.MatterRef{Type: "PL"}, 0).(quorum.Resolved); !ok {
		t.Fatalf("simple majority does not depend on membership")
	}
}

func TestDecide(t *testing.T) {
	d := quorum.Decide(quorum.Resolved{Rule: config.RuleSimpleMajority, Source: "default"}, quorum.Votes{Yes: 5, No: 2, Abstain: 1}, 9, 9)
	if !d.Approved {
		t.Fatalf("expected approval: %s", d.Detail)
	}
	d = quorum.Decide(quorum.Resolved{Rule: config.RuleSimpleMajority, Source: "default"}, quorum.Votes{Yes: 3, No: 3}, 9, 6)
	if d.Approved {
		t.Fatalf("a tie does not reach simple majority")
	}
	d = quorum.Decide(quorum.Resolved{Rule: config.RuleTwoThirds, Source: "type:PELO"}, quorum.Votes{Yes: 5, No: 0, Abstain: 4}, 9, 9)
	if d.Approved {
		t.Fatalf("5 of 9 is below two thirds: %s", d.Detail)
	}
	if !strings.Contains(d.Detail, "6 required") {
		t.Fatalf("detail should name the requirement, got %q", d.Detail)
	}
	d = quorum.Decide(quorum.Resolved{Rule: config.RuleSimpleMajority, Source: "default"}, quorum.Votes{Yes: 3, No: 1}, 9, 4)
	if d.Approved || !strings.Contains(d.Detail, "4 present, 5 required") {
		t.Fatalf("simple majority needs an absolute majority present, got %+v", d)
	}
	d = quorum.Decide(quorum.Resolved{Rule: config.RuleSimpleMajority, Source: "default"}, quorum.Votes{Yes: 3, No: 1}, 0, 4)
	if !d.Approved {
		t.Fatalf("unknown membership skips the presence check: %s", d.Detail)
	}
}

func TestCheckInstallation(t *testing.T) {
	ev := quorum.New(config.Default())
	got, err := ev.CheckInstallation(9, 3)
	if err != nil {
		t.Fatalf("installation: %v", err)
	}
	if got.Met || got.Required != 5 || got.Shortfall != 2 {
		t.Fatalf("unexpected installation %+v", got)
	}
	got, _ = ev.CheckInstallation(9, 7)
	if !got.Met || got.Shortfall != 0 {
		t.Fatalf("expected quorum met, got %+v", got)
	}
	if _, err := ev.CheckInstallation(0, 7); !errors.Is(err, quorum.ErrMembershipUnknown) {
		t.Fatalf("expected membership unknown, got %v", err)
	}
	ev.Installation = config.InstallationRule{Rule: config.RuleFixed, Minimum: 4}
	got, err = ev.CheckInstallation(0, 4)
	if err != nil || !got.Met {
		t.Fatalf("fixed rule should not need membership: %+v %v", got, err)
	}
}
