package engine_test

import (
	"errors"
	"testing"
	"time"

	"plenario/internal/domain"
	"plenario/internal/engine"
	"plenario/internal/events"
	"plenario/internal/repo"
)

func TestHoldAcrossWeekend(t *testing.T) {
	env := newTestEnv(t)
	ms := env.members(t, 3)
	s, _ := env.session(t, 1)
	m, it := env.matterItem(t, s.ID, "PL", 30)
	env.open(t, s.ID)
	env.start(t, s.ID, it.ID)
	env.advance(time.Minute)

	held, err := env.Engine.RequestHold(env.Ctx, engine.HoldOptions{SessionID: s.ID, ItemID: it.ID, MemberID: ms[0].ID, ActorID: "tester"})
	if err != nil {
		t.Fatalf("request hold: %v", err)
	}
	// Friday plus two business days is Tuesday
	want := time.Date(2024, 3, 5, 14, 1, 0, 0, time.UTC)
	if held.Status != domain.ItemUnderReview || held.HoldDueAt == nil || !held.HoldDueAt.Equal(want) {
		t.Fatalf("unexpected held item %+v", held)
	}
	if held.StartedAt != nil || held.AccumulatedSeconds != 60 {
		t.Fatalf("hold should stop the clock at 60s, got %+v", held)
	}
	if got := env.matter(t, m.ID).Status; got != domain.MatterInDiscussion {
		t.Fatalf("matter should stay frozen in discussion, got %s", got)
	}
	view, _ := env.Engine.GetSessionAgenda(env.Ctx, s.ID)
	if view.Agenda.CurrentItemID != nil {
		t.Fatalf("held item must not stay current")
	}

	holds, err := env.Engine.ListHolds(env.Ctx, s.ID)
	if err != nil || len(holds) != 1 || holds[0].Overdue {
		t.Fatalf("expected one pending hold, got %+v %v", holds, err)
	}
	env.advance(5 * 24 * time.Hour)
	holds, _ = env.Engine.ListHolds(env.Ctx, s.ID)
	if len(holds) != 1 || !holds[0].Overdue {
		t.Fatalf("hold should be overdue on Wednesday, got %+v", holds)
	}

	resumed, err := env.Engine.ResumeFromHold(env.Ctx, s.ID, it.ID, "parecer devolvido", "tester")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != domain.ItemInDiscussion || resumed.StartedAt == nil || resumed.AccumulatedSeconds != 60 {
		t.Fatalf("unexpected resumed item %+v", resumed)
	}
	if _, err := env.Engine.ResumeFromHold(env.Ctx, s.ID, it.ID, "", "tester"); err == nil {
		t.Fatalf("resuming twice must fail")
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{SessionID: s.ID, Type: events.HoldRequested})
	if err != nil || len(evts) != 1 {
		t.Fatalf("expected one hold event, got %d %v", len(evts), err)
	}
}

func TestHoldRules(t *testing.T) {
	env := newTestEnv(t)
	ms := env.members(t, 1)
	s, items := env.session(t, 1, "Parecer")
	env.open(t, s.ID)

	_, err := env.Engine.RequestHold(env.Ctx, engine.HoldOptions{SessionID: s.ID, ItemID: items[0].ID, MemberID: ms[0].ID})
	validation(t, err) // pending
	env.start(t, s.ID, items[0].ID)
	_, err = env.Engine.RequestHold(env.Ctx, engine.HoldOptions{SessionID: s.ID, ItemID: items[0].ID, MemberID: "ghost"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected member not found, got %v", err)
	}
	_, err = env.Engine.RequestHold(env.Ctx, engine.HoldOptions{SessionID: s.ID, ItemID: items[0].ID})
	validation(t, err)

	held, err := env.Engine.RequestHold(env.Ctx, engine.HoldOptions{SessionID: s.ID, ItemID: items[0].ID, MemberID: ms[0].ID, LeadDays: 5})
	if err != nil {
		t.Fatal(err)
	}
	// five business days from Friday is the next Friday
	if held.HoldDueAt.Weekday() != time.Friday || held.HoldDueAt.Sub(env.now) != 7*24*time.Hour {
		t.Fatalf("unexpected due date %s", held.HoldDueAt)
	}
}
