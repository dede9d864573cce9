package domain

type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in_progress"
	SessionConcluded  SessionStatus = "concluded"
	SessionCancelled  SessionStatus = "cancelled"
)

// Terminal sessions are never re-opened.
func (s SessionStatus) Terminal() bool {
	return s == SessionConcluded || s == SessionCancelled
}

type AgendaStatus string

const (
	AgendaDraft      AgendaStatus = "draft"
	AgendaApproved   AgendaStatus = "approved"
	AgendaInProgress AgendaStatus = "in_progress"
	AgendaConcluded  AgendaStatus = "concluded"
)

type ItemStatus string

const (
	ItemPending      ItemStatus = "pending"
	ItemInDiscussion ItemStatus = "in_discussion"
	ItemInVoting     ItemStatus = "in_voting"
	ItemUnderReview  ItemStatus = "under_review"
	ItemApproved     ItemStatus = "approved"
	ItemRejected     ItemStatus = "rejected"
	ItemWithdrawn    ItemStatus = "withdrawn"
	ItemPostponed    ItemStatus = "postponed"
	ItemConcluded    ItemStatus = "concluded"
)

// Active items count against the one-active-item-per-agenda rule.
func (s ItemStatus) Active() bool {
	return s == ItemInDiscussion || s == ItemInVoting
}

// Closed items were decided and cannot be finalized again.
func (s ItemStatus) Closed() bool {
	return s == ItemApproved || s == ItemRejected || s == ItemWithdrawn
}

// ParseItemOutcome accepts the statuses a finalize call may request.
func ParseItemOutcome(v string) (ItemStatus, bool) {
	switch s := ItemStatus(v); s {
	case ItemConcluded, ItemApproved, ItemRejected, ItemWithdrawn, ItemPostponed:
		return s, true
	}
	return "", false
}

type MatterStatus string

const (
	MatterAwaitingAgenda MatterStatus = "awaiting_agenda"
	MatterInAgenda       MatterStatus = "in_agenda"
	MatterInTramitacao   MatterStatus = "in_tramitacao"
	MatterInDiscussion   MatterStatus = "in_discussion"
	MatterInVoting       MatterStatus = "in_voting"
	MatterApproved       MatterStatus = "approved"
	MatterRejected       MatterStatus = "rejected"
	MatterArchived       MatterStatus = "archived"
)

// Upstream statuses are the ones a matter holds before the floor takes it up.
func (s MatterStatus) Upstream() bool {
	return s == MatterAwaitingAgenda || s == MatterInAgenda || s == MatterInTramitacao
}

func (s MatterStatus) Terminal() bool {
	return s == MatterApproved || s == MatterRejected || s == MatterArchived
}

type Section string

const (
	SectionExpediente   Section = "expediente"
	SectionOrdemDoDia   Section = "ordem_do_dia"
	SectionComunicacoes Section = "comunicacoes"
	SectionHonras       Section = "honras"
	SectionOutros       Section = "outros"
)

// Sections lists agenda sections in session order.
var Sections = []Section{SectionExpediente, SectionOrdemDoDia, SectionComunicacoes, SectionHonras, SectionOutros}

func (s Section) Order() int {
	for i, v := range Sections {
		if v == s {
			return i
		}
	}
	return -1
}

type ActionType string

const (
	ActionReading      ActionType = "reading"
	ActionDiscussion   ActionType = "discussion"
	ActionVoting       ActionType = "voting"
	ActionAnnouncement ActionType = "announcement"
	ActionTribute      ActionType = "tribute"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionReading, ActionDiscussion, ActionVoting, ActionAnnouncement, ActionTribute:
		return true
	}
	return false
}

type BallotValue string

const (
	BallotYes     BallotValue = "yes"
	BallotNo      BallotValue = "no"
	BallotAbstain BallotValue = "abstain"
)

func (v BallotValue) Valid() bool {
	return v == BallotYes || v == BallotNo || v == BallotAbstain
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)
