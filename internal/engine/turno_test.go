package engine_test

import (
	"testing"
	"time"

	"plenario/internal/domain"
	"plenario/internal/engine"
)

func TestTwoRoundMatter(t *testing.T) {
	env := newTestEnv(t)
	ms := env.members(t, 9)
	s1, _ := env.session(t, 1)
	m, it := env.matterItem(t, s1.ID, "PELO", 1)
	if it.FinalRounds != 2 || it.CurrentRound != 1 {
		t.Fatalf("PELO should need two rounds, got %d/%d", it.CurrentRound, it.FinalRounds)
	}
	env.open(t, s1.ID)
	env.present(t, s1.ID, ms)
	env.start(t, s1.ID, it.ID)
	env.vote(t, s1.ID, it.ID)
	castAll(t, env, s1.ID, m.ID, ms[:6], domain.BallotYes)
	castAll(t, env, s1.ID, m.ID, ms[6:], domain.BallotNo)

	first, err := env.Engine.FinalizeItem(env.Ctx, engine.ItemFinalizeOptions{SessionID: s1.ID, ItemID: it.ID, Outcome: domain.ItemApproved})
	if err != nil {
		t.Fatalf("finalize first round: %v", err)
	}
	if first.Round1Result == nil || *first.Round1Result != "approved" || !first.Interstitial {
		t.Fatalf("first round should open the interstitial, got %+v", first)
	}
	if got := env.matter(t, m.ID).Status; got != domain.MatterInAgenda {
		t.Fatalf("matter waits for the second round in agenda, got %s", got)
	}
	waiting, err := env.Engine.ListInterstitialItems(env.Ctx, s1.ID)
	if err != nil || len(waiting) != 1 {
		t.Fatalf("expected one interstitial item, got %d %v", len(waiting), err)
	}

	ok, err := env.Engine.CanStartSecondRound(env.Ctx, s1.ID, it.ID)
	if err != nil || ok {
		t.Fatalf("second round must wait: %v %v", ok, err)
	}
	_, err = env.Engine.StartSecondRound(env.Ctx, s1.ID, it.ID, "", "tester")
	v := validation(t, err)
	if v.Details["interstitial_until"] == nil {
		t.Fatalf("expected interstitial detail, got %+v", v.Details)
	}
	if _, err := env.Engine.FinalizeSession(env.Ctx, s1.ID, "tester"); err != nil {
		t.Fatal(err)
	}

	env.advance(240 * time.Hour)
	if ok, _ := env.Engine.CanStartSecondRound(env.Ctx, s1.ID, it.ID); !ok {
		t.Fatalf("interstitial should be over")
	}
	s2, _ := env.session(t, 2)
	moved, err := env.Engine.StartSecondRound(env.Ctx, s1.ID, it.ID, s2.ID, "tester")
	if err != nil {
		t.Fatalf("start second round: %v", err)
	}
	if moved.CurrentRound != 2 || moved.Status != domain.ItemPending || moved.Interstitial || moved.AccumulatedSeconds != 0 {
		t.Fatalf("unexpected second round item %+v", moved)
	}
	view := env.open(t, s2.ID)
	if len(view.Items) != 1 || view.Items[0].ID != it.ID {
		t.Fatalf("item should now belong to session 2, got %+v", view.Items)
	}

	env.present(t, s2.ID, ms)
	env.start(t, s2.ID, it.ID)
	if _, err := env.Engine.OpenVoting(env.Ctx, s2.ID, it.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	castAll(t, env, s2.ID, m.ID, ms[:6], domain.BallotYes)
	res, err := env.Engine.Tally(env.Ctx, s2.ID, m.ID)
	if err != nil || res.Yes != 6 || res.No != 0 || res.Outcome != "APROVADA" {
		t.Fatalf("second round tally counts its own ballots: %+v %v", res, err)
	}
	second, err := env.Engine.FinalizeItem(env.Ctx, engine.ItemFinalizeOptions{SessionID: s2.ID, ItemID: it.ID, Outcome: domain.ItemApproved})
	if err != nil {
		t.Fatal(err)
	}
	if second.Round2Result == nil || *second.Round2Result != "approved" {
		t.Fatalf("second round result missing: %+v", second)
	}
	got := env.matter(t, m.ID)
	if got.Status != domain.MatterApproved || got.DecidedSessionID == nil || *got.DecidedSessionID != s2.ID {
		t.Fatalf("matter should be approved in session 2, got %+v", got)
	}
}

func TestFirstRoundRejectionDecides(t *testing.T) {
	env := newTestEnv(t)
	ms := env.members(t, 3)
	s, _ := env.session(t, 1)
	m, it := env.matterItem(t, s.ID, "PELO", 2)
	env.open(t, s.ID)
	env.present(t, s.ID, ms)
	env.start(t, s.ID, it.ID)
	env.vote(t, s.ID, it.ID)
	castAll(t, env, s.ID, m.ID, ms, domain.BallotNo)
	it, err := env.Engine.FinalizeItem(env.Ctx, engine.ItemFinalizeOptions{SessionID: s.ID, ItemID: it.ID, Outcome: domain.ItemRejected})
	if err != nil {
		t.Fatal(err)
	}
	if it.Interstitial || it.Round1Result == nil || *it.Round1Result != "rejected" {
		t.Fatalf("rejected first round opens no interstitial, got %+v", it)
	}
	if got := env.matter(t, m.ID).Status; got != domain.MatterRejected {
		t.Fatalf("expected rejected matter, got %s", got)
	}
	if ok, _ := env.Engine.CanStartSecondRound(env.Ctx, s.ID, it.ID); ok {
		t.Fatalf("rejected matter has no second round")
	}
}

func TestInitRounds(t *testing.T) {
	env := newTestEnv(t)
	s, _ := env.session(t, 1)
	_, it := env.matterItem(t, s.ID, "PL", 5)
	_, err := env.Engine.InitRounds(env.Ctx, s.ID, it.ID, 3, "tester")
	validation(t, err)
	it, err = env.Engine.InitRounds(env.Ctx, s.ID, it.ID, 2, "tester")
	if err != nil || !it.TwoRound() {
		t.Fatalf("init rounds: %+v %v", it, err)
	}
	_, err = env.Engine.RegisterRoundResult(env.Ctx, s.ID, it.ID, domain.ItemConcluded, "tester")
	validation(t, err)
	it, err = env.Engine.RegisterRoundResult(env.Ctx, s.ID, it.ID, domain.ItemApproved, "tester")
	if err != nil || !it.Interstitial || it.InterstitialUntil == nil {
		t.Fatalf("register round: %+v %v", it, err)
	}
	if !it.InterstitialUntil.Equal(env.now.Add(240 * time.Hour)) {
		t.Fatalf("interstitial should last 240h, got %s", it.InterstitialUntil)
	}
	_, err = env.Engine.RegisterRoundResult(env.Ctx, s.ID, it.ID, domain.ItemApproved, "tester")
	validation(t, err)
}
