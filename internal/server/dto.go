package server

import (
	"time"

	"plenario/internal/domain"
	"plenario/internal/quorum"
	"plenario/internal/tally"
)

// Request payloads

type CreateSessionRequest struct {
	ID          string    `json:"id,omitempty"`
	Number      int       `json:"number" minimum:"1"`
	Year        int       `json:"year" minimum:"1900"`
	Type        string    `json:"type,omitempty" enum:"ordinaria,extraordinaria,solene,especial"`
	TermID      string    `json:"term_id,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Location    string    `json:"location,omitempty"`
}

type ApproveAgendaRequest struct {
	Force bool `json:"force,omitempty"`
}

type CancelSessionRequest struct {
	Reason string `json:"reason,omitempty"`
}

type AddItemRequest struct {
	Section    string `json:"section" enum:"expediente,ordem_do_dia,comunicacoes,honras,outros"`
	Title      string `json:"title,omitempty"`
	MatterID   string `json:"matter_id,omitempty"`
	ActionType string `json:"action_type,omitempty" enum:"reading,discussion,voting,announcement,tribute"`
}

type FinalizeItemRequest struct {
	Outcome string `json:"outcome" enum:"concluded,approved,rejected,withdrawn,postponed"`
	Notes   string `json:"notes,omitempty"`
}

type ReorderItemRequest struct {
	Direction string `json:"direction" enum:"up,down"`
}

type HoldRequest struct {
	MemberID string `json:"member_id"`
	LeadDays int    `json:"lead_days,omitempty" minimum:"0"`
}

type ResumeHoldRequest struct {
	Note string `json:"note,omitempty"`
}

type InitRoundsRequest struct {
	FinalRounds int `json:"final_rounds" minimum:"1" maximum:"2"`
}

type RoundResultRequest struct {
	Result string `json:"result" enum:"approved,rejected"`
}

type SecondRoundRequest struct {
	TargetSessionID string `json:"target_session_id,omitempty"`
}

type CreateMemberRequest struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	TermID string `json:"term_id,omitempty"`
}

type SetMemberActiveRequest struct {
	Active bool `json:"active"`
}

type CreateMatterRequest struct {
	ID           string `json:"id,omitempty"`
	Type         string `json:"type"`
	Number       int    `json:"number,omitempty"`
	Year         int    `json:"year,omitempty"`
	Title        string `json:"title"`
	Urgent       bool   `json:"urgent,omitempty"`
	VetoOverride bool   `json:"veto_override,omitempty"`
	Status       string `json:"status,omitempty" enum:"awaiting_agenda,in_agenda,in_tramitacao"`
}

type AttendanceRequest struct {
	MemberID string `json:"member_id"`
	Present  bool   `json:"present"`
}

type BallotRequest struct {
	MatterID string `json:"matter_id"`
	MemberID string `json:"member_id"`
	Value    string `json:"value" enum:"yes,no,abstain"`
}

// Response payloads

type SessionList struct {
	Items []domain.Session `json:"items"`
}

type ItemList struct {
	Items []domain.AgendaItem `json:"items"`
}

type HoldList struct {
	Items []domain.Hold `json:"items"`
}

type MemberList struct {
	Items []domain.Member `json:"items"`
}

type MatterList struct {
	Items []domain.Matter `json:"items"`
}

type AttendanceList struct {
	Items  []domain.Attendance `json:"items"`
	Quorum quorum.Installation `json:"quorum"`
}

type SecondRoundStatus struct {
	ItemID string `json:"item_id"`
	Ready  bool   `json:"ready"`
}

type TallyResponse struct {
	SessionID string       `json:"session_id"`
	MatterID  string       `json:"matter_id"`
	Result    tally.Result `json:"result"`
}

type EventList struct {
	Items      []domain.Event `json:"items"`
	NextCursor *int64         `json:"next_cursor,omitempty"`
}
