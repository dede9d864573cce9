package domain

import "time"

// Timer is the discussion clock of an agenda item. It is either Running or
// Paused; an item that never started is Paused with nothing accumulated.
type Timer interface {
	Elapsed(now time.Time) time.Duration
	isTimer()
}

type Running struct {
	Since  time.Time
	Before time.Duration
}

type Paused struct {
	Accumulated time.Duration
}

func (r Running) Elapsed(now time.Time) time.Duration {
	d := now.Sub(r.Since)
	if d < 0 {
		d = 0
	}
	return r.Before + d
}

func (p Paused) Elapsed(time.Time) time.Duration { return p.Accumulated }

func (Running) isTimer() {}
func (Paused) isTimer()  {}

// Timer derives the clock variant from the stored fields.
func (it AgendaItem) Timer() Timer {
	before := time.Duration(it.AccumulatedSeconds) * time.Second
	if it.StartedAt != nil {
		return Running{Since: *it.StartedAt, Before: before}
	}
	return Paused{Accumulated: before}
}

// Run starts the clock at now. Running clocks are left alone.
func (it *AgendaItem) Run(now time.Time) {
	if _, ok := it.Timer().(Running); ok {
		return
	}
	t := now
	it.StartedAt = &t
}

// Freeze folds the running segment into the accumulated total and stops the clock.
func (it *AgendaItem) Freeze(now time.Time) {
	r, ok := it.Timer().(Running)
	if !ok {
		return
	}
	it.AccumulatedSeconds = int64(r.Elapsed(now) / time.Second)
	it.StartedAt = nil
}

// SpentSeconds is the time an item contributes to the agenda total.
func (it AgendaItem) SpentSeconds() int64 {
	if it.RealTimeSeconds != nil {
		return *it.RealTimeSeconds
	}
	return it.AccumulatedSeconds
}
