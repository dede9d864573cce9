package domain

import "time"

type Session struct {
	ID          string        `json:"id"`
	Number      int           `json:"number"`
	Year        int           `json:"year"`
	Type        string        `json:"type" enum:"ordinaria,extraordinaria,solene,especial"`
	TermID      string        `json:"term_id,omitempty"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	Location    string        `json:"location,omitempty"`
	Status      SessionStatus `json:"status" enum:"scheduled,in_progress,concluded,cancelled"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	Finalized   bool          `json:"finalized"`
	CreatedAt   time.Time     `json:"created_at"`
}

type Agenda struct {
	ID               string       `json:"id"`
	SessionID        string       `json:"session_id"`
	Status           AgendaStatus `json:"status" enum:"draft,approved,in_progress,concluded"`
	CurrentItemID    *string      `json:"current_item_id,omitempty"`
	TotalRealSeconds int64        `json:"total_real_seconds"`
	PublishedAt      *time.Time   `json:"published_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

type AgendaItem struct {
	ID                 string     `json:"id"`
	AgendaID           string     `json:"agenda_id"`
	Section            Section    `json:"section" enum:"expediente,ordem_do_dia,comunicacoes,honras,outros"`
	Rank               int        `json:"rank"`
	Title              string     `json:"title"`
	MatterID           *string    `json:"matter_id,omitempty"`
	ActionType         ActionType `json:"action_type" enum:"reading,discussion,voting,announcement,tribute"`
	Status             ItemStatus `json:"status" enum:"pending,in_discussion,in_voting,under_review,approved,rejected,withdrawn,postponed,concluded"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	AccumulatedSeconds int64      `json:"accumulated_seconds"`
	RealTimeSeconds    *int64     `json:"real_time_seconds,omitempty"`
	FinalizedAt        *time.Time `json:"finalized_at,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CurrentRound       int        `json:"current_round"`
	FinalRounds        int        `json:"final_rounds"`
	Round1Result       *string    `json:"round1_result,omitempty"`
	Round2Result       *string    `json:"round2_result,omitempty"`
	Interstitial       bool       `json:"interstitial"`
	InterstitialUntil  *time.Time `json:"interstitial_until,omitempty"`
	HoldRequestedBy    *string    `json:"hold_requested_by,omitempty"`
	HoldRequestedAt    *time.Time `json:"hold_requested_at,omitempty"`
	HoldDueAt          *time.Time `json:"hold_due_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TwoRound reports whether the item goes through the turno coordinator.
func (it AgendaItem) TwoRound() bool {
	return it.FinalRounds > 1
}

// AppendNote adds a line to the item's audit notes.
func (it *AgendaItem) AppendNote(note string) {
	if note == "" {
		return
	}
	if it.Notes != "" {
		it.Notes += "\n"
	}
	it.Notes += note
}

type Matter struct {
	ID               string       `json:"id"`
	Type             string       `json:"type"`
	Number           int          `json:"number"`
	Year             int          `json:"year"`
	Title            string       `json:"title"`
	Urgent           bool         `json:"urgent"`
	VetoOverride     bool         `json:"veto_override"`
	Status           MatterStatus `json:"status" enum:"awaiting_agenda,in_agenda,in_tramitacao,in_discussion,in_voting,approved,rejected,archived"`
	VoteOutcome      *string      `json:"vote_outcome,omitempty"`
	VoteResult       *string      `json:"vote_result,omitempty"`
	VotedAt          *time.Time   `json:"voted_at,omitempty"`
	DecidedSessionID *string      `json:"decided_session_id,omitempty"`
	ReadSessionID    *string      `json:"read_session_id,omitempty"`
	ReadAt           *time.Time   `json:"read_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

type Member struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TermID    string    `json:"term_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Attendance struct {
	SessionID  string    `json:"session_id"`
	MemberID   string    `json:"member_id"`
	Present    bool      `json:"present"`
	RecordedAt time.Time `json:"recorded_at"`
}

type Ballot struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	MatterID  string      `json:"matter_id"`
	MemberID  string      `json:"member_id"`
	Round     int         `json:"round"`
	Value     BallotValue `json:"value" enum:"yes,no,abstain"`
	CastAt    time.Time   `json:"cast_at"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// SessionAgenda is the aggregate returned by session transitions.
type SessionAgenda struct {
	Session Session      `json:"session"`
	Agenda  Agenda       `json:"agenda"`
	Items   []AgendaItem `json:"items"`
}

// Hold is an item suspended for review together with its deadline state.
type Hold struct {
	Item    AgendaItem `json:"item"`
	DueAt   time.Time  `json:"due_at"`
	Overdue bool       `json:"overdue"`
}
