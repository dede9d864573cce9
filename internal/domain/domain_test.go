package domain

import (
	"testing"
	"time"
)

func TestMatterStatusForCoversEveryItemStatus(t *testing.T) {
	cases := []struct {
		in     ItemStatus
		want   MatterStatus
		change bool
	}{
		{ItemPending, MatterInAgenda, true},
		{ItemInDiscussion, MatterInDiscussion, true},
		{ItemInVoting, MatterInVoting, true},
		{ItemApproved, MatterApproved, true},
		{ItemRejected, MatterRejected, true},
		{ItemPostponed, MatterInAgenda, true},
		{ItemWithdrawn, MatterArchived, true},
		{ItemUnderReview, "", false},
		{ItemConcluded, "", false},
		{ItemStatus("archived"), "", false},
		{ItemStatus(""), "", false},
	}
	for _, tc := range cases {
		got, ok := MatterStatusFor(tc.in)
		if got != tc.want || ok != tc.change {
			t.Fatalf("%s: expected (%q,%v), got (%q,%v)", tc.in, tc.want, tc.change, got, ok)
		}
	}
}

func TestAddBusinessDaysSkipsWeekend(t *testing.T) {
	friday := time.Date(2026, 3, 6, 15, 0, 0, 0, time.UTC)
	got := AddBusinessDays(friday, 2)
	want := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected Tuesday %s, got %s (%s)", want, got, got.Weekday())
	}
	monday := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	if got := AddBusinessDays(monday, 2); got.Weekday() != time.Wednesday {
		t.Fatalf("expected Wednesday, got %s", got.Weekday())
	}
	if got := AddBusinessDays(friday, 0); !got.Equal(friday) {
		t.Fatalf("zero lead should not move the date, got %s", got)
	}
}

func TestTimerRunFreeze(t *testing.T) {
	base := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	var it AgendaItem
	if _, ok := it.Timer().(Paused); !ok {
		t.Fatalf("new item should be paused")
	}
	it.Run(base)
	if got := it.Timer().Elapsed(base.Add(90 * time.Second)); got != 90*time.Second {
		t.Fatalf("expected 90s elapsed, got %s", got)
	}
	it.Freeze(base.Add(90 * time.Second))
	if it.StartedAt != nil || it.AccumulatedSeconds != 90 {
		t.Fatalf("unexpected frozen state %+v", it)
	}
	// time while paused does not count
	it.Run(base.Add(10 * time.Minute))
	it.Freeze(base.Add(10*time.Minute + 30*time.Second))
	if it.AccumulatedSeconds != 120 {
		t.Fatalf("expected 120s accumulated, got %d", it.AccumulatedSeconds)
	}
	it.Freeze(base.Add(time.Hour))
	if it.AccumulatedSeconds != 120 {
		t.Fatalf("freezing a paused clock must be a no-op, got %d", it.AccumulatedSeconds)
	}
}
