package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"plenario/internal/config"
	"plenario/internal/db"
	"plenario/internal/domain"
	"plenario/internal/engine"
	"plenario/internal/migrate"
	"plenario/internal/repo"
)

const term = "2025-2028"

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	now    time.Time
}

// newTestEnv opens a fresh store with the clock on Friday 2024-03-01 14:00 UTC.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	env := &testEnv{
		Ctx: context.Background(),
		now: time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC),
	}
	cfg := config.Default()
	env.Engine = engine.New(conn, cfg)
	env.Engine.Now = func() time.Time { return env.now }
	if err := env.Engine.Repo.UpsertChamberConfig(env.Ctx, cfg, env.now); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.now = env.now.Add(d)
}

func (env *testEnv) members(t *testing.T, n int) []domain.Member {
	t.Helper()
	var res []domain.Member
	for i := 1; i <= n; i++ {
		m, err := env.Engine.RegisterMember(env.Ctx, domain.Member{
			ID:     fmt.Sprintf("m%02d", i),
			Name:   fmt.Sprintf("Vereador %02d", i),
			TermID: term,
		}, "tester")
		if err != nil {
			t.Fatalf("register member: %v", err)
		}
		res = append(res, m)
	}
	return res
}

func (env *testEnv) present(t *testing.T, sessionID string, ms []domain.Member) {
	t.Helper()
	for _, m := range ms {
		if _, err := env.Engine.MarkAttendance(env.Ctx, sessionID, m.ID, true, "tester"); err != nil {
			t.Fatalf("mark attendance %s: %v", m.ID, err)
		}
	}
}

// session schedules a session three days ahead with one plain item per title.
func (env *testEnv) session(t *testing.T, number int, titles ...string) (domain.Session, []domain.AgendaItem) {
	t.Helper()
	view, err := env.Engine.CreateSession(env.Ctx, engine.SessionCreateOptions{
		Number:      number,
		Year:        2024,
		TermID:      term,
		ScheduledAt: env.now.Add(72 * time.Hour),
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	var items []domain.AgendaItem
	for _, title := range titles {
		it, err := env.Engine.AddItem(env.Ctx, engine.ItemCreateOptions{SessionID: view.Session.ID, Title: title, ActorID: "tester"})
		if err != nil {
			t.Fatalf("add item: %v", err)
		}
		items = append(items, it)
	}
	return view.Session, items
}

func (env *testEnv) matterItem(t *testing.T, sessionID, matterType string, number int) (domain.Matter, domain.AgendaItem) {
	t.Helper()
	m, err := env.Engine.CreateMatter(env.Ctx, domain.Matter{Type: matterType, Number: number, Year: 2024, Title: fmt.Sprintf("%s %d/2024", matterType, number)}, "tester")
	if err != nil {
		t.Fatalf("create matter: %v", err)
	}
	it, err := env.Engine.AddItem(env.Ctx, engine.ItemCreateOptions{SessionID: sessionID, MatterID: m.ID, ActionType: domain.ActionVoting, ActorID: "tester"})
	if err != nil {
		t.Fatalf("add matter item: %v", err)
	}
	return m, it
}

func (env *testEnv) open(t *testing.T, sessionID string) domain.SessionAgenda {
	t.Helper()
	if _, err := env.Engine.ApproveAgenda(env.Ctx, sessionID, "tester", false); err != nil {
		t.Fatalf("approve agenda: %v", err)
	}
	view, err := env.Engine.StartSession(env.Ctx, sessionID, "tester")
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return view
}

func (env *testEnv) start(t *testing.T, sessionID, itemID string) domain.AgendaItem {
	t.Helper()
	it, err := env.Engine.StartItem(env.Ctx, sessionID, itemID, "tester")
	if err != nil {
		t.Fatalf("start item: %v", err)
	}
	return it
}

func (env *testEnv) vote(t *testing.T, sessionID, itemID string) domain.AgendaItem {
	t.Helper()
	it, err := env.Engine.OpenVoting(env.Ctx, sessionID, itemID, "tester")
	if err != nil {
		t.Fatalf("open voting: %v", err)
	}
	return it
}

func (env *testEnv) item(t *testing.T, id string) domain.AgendaItem {
	t.Helper()
	it, err := env.Engine.Repo.GetItem(env.Ctx, id)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	return it
}

func (env *testEnv) matter(t *testing.T, id string) domain.Matter {
	t.Helper()
	m, err := env.Engine.Repo.GetMatter(env.Ctx, id)
	if err != nil {
		t.Fatalf("get matter: %v", err)
	}
	return m
}

func validation(t *testing.T, err error) engine.ValidationError {
	t.Helper()
	var v engine.ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("expected validation error, got %v", err)
	}
	return v
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	s, items := env.session(t, 1, "Leitura da ata", "Comunicados")
	if s.Status != domain.SessionScheduled {
		t.Fatalf("expected scheduled, got %s", s.Status)
	}
	// draft agenda blocks the start
	_, err := env.Engine.StartSession(env.Ctx, s.ID, "tester")
	validation(t, err)

	view := env.open(t, s.ID)
	if view.Session.Status != domain.SessionInProgress || view.Agenda.Status != domain.AgendaInProgress {
		t.Fatalf("unexpected statuses %s/%s", view.Session.Status, view.Agenda.Status)
	}
	if view.Agenda.CurrentItemID == nil || *view.Agenda.CurrentItemID != items[0].ID {
		t.Fatalf("expected first item selected, got %v", view.Agenda.CurrentItemID)
	}
	again, err := env.Engine.StartSession(env.Ctx, s.ID, "tester")
	if err != nil {
		t.Fatalf("second start should be a no-op: %v", err)
	}
	if again.Session.Status != domain.SessionInProgress || again.Agenda.CurrentItemID == nil || *again.Agenda.CurrentItemID != items[0].ID {
		t.Fatalf("second start changed the session: %s %v", again.Session.Status, again.Agenda.CurrentItemID)
	}
	if again.Session.StartedAt == nil || !again.Session.StartedAt.Equal(*view.Session.StartedAt) {
		t.Fatalf("second start moved started_at")
	}

	if _, err := env.Engine.StartItem(env.Ctx, s.ID, items[0].ID, "tester"); err != nil {
		t.Fatalf("start item: %v", err)
	}
	env.advance(5 * time.Minute)
	view, err = env.Engine.FinalizeSession(env.Ctx, s.ID, "tester")
	if err != nil {
		t.Fatalf("finalize session: %v", err)
	}
	if view.Session.Status != domain.SessionConcluded || !view.Session.Finalized || view.Agenda.Status != domain.AgendaConcluded {
		t.Fatalf("unexpected finalize result %+v", view)
	}
	if view.Agenda.CurrentItemID != nil {
		t.Fatalf("current item must be cleared")
	}
	first := env.item(t, items[0].ID)
	if first.Status != domain.ItemPostponed || first.RealTimeSeconds == nil || *first.RealTimeSeconds != 300 {
		t.Fatalf("active item should be postponed with 300s, got %+v", first)
	}
	if second := env.item(t, items[1].ID); second.Status != domain.ItemPending {
		t.Fatalf("pending item must stay pending, got %s", second.Status)
	}
	if view.Agenda.TotalRealSeconds != 300 {
		t.Fatalf("expected total 300, got %d", view.Agenda.TotalRealSeconds)
	}

	// finalize is idempotent; cancel is not allowed anymore
	env.advance(time.Hour)
	again, err = env.Engine.FinalizeSession(env.Ctx, s.ID, "tester")
	if err != nil {
		t.Fatalf("finalize again: %v", err)
	}
	if !again.Session.FinishedAt.Equal(*view.Session.FinishedAt) {
		t.Fatalf("second finalize must not touch the session")
	}
	_, err = env.Engine.CancelSession(env.Ctx, s.ID, "late", "tester")
	validation(t, err)
}

func TestApproveAgendaPublicationLead(t *testing.T) {
	env := newTestEnv(t)
	view, err := env.Engine.CreateSession(env.Ctx, engine.SessionCreateOptions{
		Number: 7, Year: 2024, ScheduledAt: env.now.Add(24 * time.Hour), ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.ApproveAgenda(env.Ctx, view.Session.ID, "tester", false)
	validation(t, err) // empty agenda
	if _, err := env.Engine.AddItem(env.Ctx, engine.ItemCreateOptions{SessionID: view.Session.ID, Title: "Expediente", Section: domain.SectionExpediente}); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.ApproveAgenda(env.Ctx, view.Session.ID, "tester", false)
	v := validation(t, err)
	if v.Details["deadline"] == nil {
		t.Fatalf("expected deadline detail, got %+v", v.Details)
	}
	a, err := env.Engine.ApproveAgenda(env.Ctx, view.Session.ID, "tester", true)
	if err != nil || a.Status != domain.AgendaApproved || a.PublishedAt == nil {
		t.Fatalf("forced approval: %+v %v", a, err)
	}
}

func TestCreateSessionDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.session(t, 3)
	_, err := env.Engine.CreateSession(env.Ctx, engine.SessionCreateOptions{
		ID: "other", Number: 3, Year: 2024, ScheduledAt: env.now.Add(72 * time.Hour),
	})
	validation(t, err)
	_, err = env.Engine.CreateSession(env.Ctx, engine.SessionCreateOptions{Number: 4, Year: 2024, Type: "secreta", ScheduledAt: env.now})
	validation(t, err)
}

func TestCancelSessionStopsClocks(t *testing.T) {
	env := newTestEnv(t)
	s, items := env.session(t, 1, "Tribuna livre")
	env.open(t, s.ID)
	if _, err := env.Engine.StartItem(env.Ctx, s.ID, items[0].ID, "tester"); err != nil {
		t.Fatal(err)
	}
	env.advance(40 * time.Second)
	got, err := env.Engine.CancelSession(env.Ctx, s.ID, "falta de energia", "tester")
	if err != nil || got.Status != domain.SessionCancelled {
		t.Fatalf("cancel: %+v %v", got, err)
	}
	it := env.item(t, items[0].ID)
	if it.StartedAt != nil || it.AccumulatedSeconds != 40 {
		t.Fatalf("clock should be frozen at 40s, got %+v", it)
	}
	_, err = env.Engine.FinalizeSession(env.Ctx, s.ID, "tester")
	validation(t, err)
	_, err = env.Engine.StartItem(env.Ctx, s.ID, items[0].ID, "tester")
	validation(t, err)
}

func TestErrorKinds(t *testing.T) {
	env := newTestEnv(t)
	s1, items1 := env.session(t, 1, "A")
	s2, _ := env.session(t, 2, "B")
	env.open(t, s2.ID)

	_, err := env.Engine.StartSession(env.Ctx, "missing", "tester")
	var nf engine.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "session" {
		t.Fatalf("expected session not found, got %v", err)
	}
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("not found must match repo.ErrNotFound")
	}
	// an item from another session's agenda is not found in this one
	_, err = env.Engine.StartItem(env.Ctx, s2.ID, items1[0].ID, "tester")
	if !errors.As(err, &nf) || nf.Kind != "item" {
		t.Fatalf("expected item not found, got %v", err)
	}
	_, err = env.Engine.PauseItem(env.Ctx, s1.ID, "nope", "tester")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if engine.IsValidation(err) {
		t.Fatalf("not found must not be a validation error")
	}
	_, err = env.Engine.FinalizeItem(env.Ctx, engine.ItemFinalizeOptions{SessionID: s1.ID, ItemID: items1[0].ID, Outcome: "in_voting"})
	validation(t, err)
}
