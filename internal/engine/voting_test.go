package engine_test

import (
	"errors"
	"strings"
	"testing"

	"plenario/internal/config"
	"plenario/internal/domain"
	"plenario/internal/engine"
	"plenario/internal/tally"
)

func castAll(t *testing.T, env *testEnv, sessionID, matterID string, ms []domain.Member, value domain.BallotValue) {
	t.Helper()
	for _, m := range ms {
		if _, err := env.Engine.CastBallot(env.Ctx, engine.BallotOptions{SessionID: sessionID, MatterID: matterID, MemberID: m.ID, Value: value, ActorID: m.ID}); err != nil {
			t.Fatalf("cast %s for %s: %v", value, m.ID, err)
		}
	}
}

func TestTallyAndDecide(t *testing.T) {
	env := newTestEnv(t)
	ms := env.members(t, 13)
	s, _ := env.session(t, 1)
	m, it := env.matterItem(t, s.ID, "PL", 12)
	env.open(t, s.ID)
	env.present(t, s.ID, ms[:9])
	env.start(t, s.ID, it.ID)
	if _, err := env.Engine.OpenVoting(env.Ctx, s.ID, it.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	castAll(t, env, s.ID, m.ID, ms[:5], domain.BallotYes)
	castAll(t, env, s.ID, m.ID, ms[5:7], domain.BallotNo)
	castAll(t, env, s.ID, m.ID, ms[7:8], domain.BallotAbstain)

	res, err := env.Engine.Tally(env.Ctx, s.ID, m.ID)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if res.Yes != 5 || res.No != 2 || res.Abstain != 1 || res.Total != 8 || res.Outcome != tally.Approved || res.Fallback {
		t.Fatalf("unexpected tally %+v", res)
	}

	if _, err := env.Engine.FinalizeItem(env.Ctx, engine.ItemFinalizeOptions{SessionID: s.ID, ItemID: it.ID, Outcome: domain.ItemApproved}); err != nil {
		t.Fatal(err)
	}
	got := env.matter(t, m.ID)
	if got.Status != domain.MatterApproved || got.VoteOutcome == nil || *got.VoteOutcome != "approved" || got.VoteResult == nil || got.VotedAt == nil {
		t.Fatalf("matter should record the decision, got %+v", got)
	}
}

func TestBallotReplacesEarlierVote(t *testing.T) {
	env := newTestEnv(t)
	ms := env.members(t, 3)
	s, _ := env.session(t, 1)
	m, it := env.matterItem(t, s.ID, "MOC", 1)
	env.open(t, s.ID)
	env.present(t, s.ID, ms)
	env.start(t, s.ID, it.ID)
	env.vote(t, s.ID, it.ID)

	castAll(t, env, s.ID, m.ID, ms[:1], domain.BallotYes)
	castAll(t, env, s.ID, m.ID, ms[:1], domain.BallotNo)
	res, err := env.Engine.Tally(env.Ctx, s.ID, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Yes != 0 || res.No != 1 || res.Total != 1 {
		t.Fatalf("second ballot should replace the first, got %+v", res)
	}
}

func TestCastBallotRules(t *testing.T) {
	env := newTestEnv(t)
	ms := env.members(t, 4)
	s, _ := env.session(t, 1)
	m, it := env.matterItem(t, s.ID, "PL", 2)
	env.open(t, s.ID)
	env.present(t, s.ID, ms[:3])
	if _, err := env.Engine.MarkAttendance(env.Ctx, s.ID, ms[2].ID, false, "tester"); err != nil {
		t.Fatal(err)
	}

	// not in voting yet
	_, err := env.Engine.CastBallot(env.Ctx, engine.BallotOptions{SessionID: s.ID, MatterID: m.ID, MemberID: ms[0].ID, Value: domain.BallotYes})
	validation(t, err)

	env.start(t, s.ID, it.ID)
	env.present(t, s.ID, ms[2:3])
	if _, err := env.Engine.OpenVoting(env.Ctx, s.ID, it.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.CastBallot(env.Ctx, engine.BallotOptions{SessionID: s.ID, MatterID: m.ID, MemberID: ms[3].ID, Value: domain.BallotYes})
	validation(t, err) // never marked present
	_, err = env.Engine.CastBallot(env.Ctx, engine.BallotOptions{SessionID: s.ID, MatterID: m.ID, MemberID: ms[0].ID, Value: "maybe"})
	validation(t, err)
	_, err = env.Engine.CastBallot(env.Ctx, engine.BallotOptions{SessionID: s.ID, MatterID: m.ID, MemberID: "ghost", Value: domain.BallotYes})
	var nf engine.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "member" {
		t.Fatalf("expected member not found, got %v", err)
	}
}

func TestTallyFallsBackOnUnknownRule(t *testing.T) {
	env := newTestEnv(t)
	cfg := config.Default()
	cfg.Quorum.Approval.Types["VETO"] = "unanimity"
	env.Engine.Config = cfg
	ms := env.members(t, 4)
	s, _ := env.session(t, 1)
	m, it := env.matterItem(t, s.ID, "VETO", 1)
	env.open(t, s.ID)
	env.present(t, s.ID, ms)
	env.start(t, s.ID, it.ID)
	env.vote(t, s.ID, it.ID)
	castAll(t, env, s.ID, m.ID, ms[:2], domain.BallotYes)
	castAll(t, env, s.ID, m.ID, ms[2:], domain.BallotNo)

	res, err := env.Engine.Tally(env.Ctx, s.ID, m.ID)
	if err != nil {
		t.Fatalf("tally must not fail on an unknown rule: %v", err)
	}
	if !res.Fallback || res.Outcome != tally.Tie {
		t.Fatalf("expected fallback tie, got %+v", res)
	}
}

func TestMarkAttendanceRules(t *testing.T) {
	env := newTestEnv(t)
	ms := env.members(t, 2)
	s, _ := env.session(t, 1, "Pauta")
	if _, err := env.Engine.SetMemberActive(env.Ctx, ms[1].ID, false, "tester"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.MarkAttendance(env.Ctx, s.ID, ms[1].ID, true, "tester")
	validation(t, err)
	other, err := env.Engine.RegisterMember(env.Ctx, domain.Member{Name: "Suplente", TermID: "2021-2024"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.MarkAttendance(env.Ctx, s.ID, other.ID, true, "tester")
	validation(t, err)
	a, err := env.Engine.MarkAttendance(env.Ctx, s.ID, ms[0].ID, true, "tester")
	if err != nil || !a.Present {
		t.Fatalf("mark attendance: %+v %v", a, err)
	}
	_, err = env.Engine.RegisterMember(env.Ctx, domain.Member{ID: ms[0].ID, Name: "Duplicado"}, "tester")
	validation(t, err)
}

func TestTallyCountsPresence(t *testing.T) {
	env := newTestEnv(t)
	ms := env.members(t, 5)
	s, _ := env.session(t, 1)
	m, it := env.matterItem(t, s.ID, "PL", 40)
	env.open(t, s.ID)
	env.present(t, s.ID, ms)
	env.start(t, s.ID, it.ID)
	env.vote(t, s.ID, it.ID)
	castAll(t, env, s.ID, m.ID, ms[:2], domain.BallotYes)
	castAll(t, env, s.ID, m.ID, ms[2:3], domain.BallotNo)

	res, err := env.Engine.Tally(env.Ctx, s.ID, m.ID)
	if err != nil || res.Outcome != tally.Approved {
		t.Fatalf("expected APROVADA with everyone present, got %+v %v", res, err)
	}
	for _, mem := range ms[2:] {
		if _, err := env.Engine.MarkAttendance(env.Ctx, s.ID, mem.ID, false, "tester"); err != nil {
			t.Fatal(err)
		}
	}
	res, err = env.Engine.Tally(env.Ctx, s.ID, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != tally.Rejected || !strings.Contains(res.Detail, "2 present, 3 required") {
		t.Fatalf("expected rejection below the deliberation quorum, got %+v", res)
	}
}
