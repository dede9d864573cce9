// Package tally counts ballots and turns them into a formal result.
package tally

import (
	"fmt"

	"plenario/internal/domain"
	"plenario/internal/quorum"
)

type Outcome string

const (
	Approved Outcome = "APROVADA"
	Rejected Outcome = "REJEITADA"
	Tie      Outcome = "EMPATE"
)

type Result struct {
	Yes      int     `json:"sim"`
	No       int     `json:"nao"`
	Abstain  int     `json:"abstencao"`
	Total    int     `json:"total"`
	Outcome  Outcome `json:"resultado" enum:"APROVADA,REJEITADA,EMPATE"`
	Detail   string  `json:"detalhe"`
	Fallback bool    `json:"fallback,omitempty"`
}

// Count groups ballots by value.
func Count(ballots []domain.Ballot) quorum.Votes {
	var v quorum.Votes
	for _, b := range ballots {
		switch b.Value {
		case domain.BallotYes:
			v.Yes++
		case domain.BallotNo:
			v.No++
		case domain.BallotAbstain:
			v.Abstain++
		}
	}
	return v
}

// Tally applies the resolved rule to the ballots. An unresolved rule falls
// back to yes over no with abstentions ignored, and the result says so.
func Tally(ballots []domain.Ballot, res quorum.Resolution, membership, present int) Result {
	v := Count(ballots)
	r := Result{Yes: v.Yes, No: v.No, Abstain: v.Abstain, Total: v.Total()}
	switch res := res.(type) {
	case quorum.Resolved:
		d := quorum.Decide(res, v, membership, present)
		r.Outcome = Rejected
		if d.Approved {
			r.Outcome = Approved
		}
		r.Detail = d.Detail
	case quorum.UnresolvedUseDefault:
		r.Fallback = true
		switch {
		case v.Yes > v.No:
			r.Outcome = Approved
		case v.No > v.Yes:
			r.Outcome = Rejected
		default:
			r.Outcome = Tie
		}
		r.Detail = fmt.Sprintf("default rule, %s: %d yes vs %d no, %d abstaining", res.Reason, v.Yes, v.No, v.Abstain)
	default:
		panic(fmt.Sprintf("tally: unexpected resolution %T", res))
	}
	return r
}
