package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"plenario/internal/domain"
	"plenario/internal/engine"
	"plenario/internal/quorum"
	"plenario/internal/repo"
)

type sessionAgendaOutput struct {
	Body domain.SessionAgenda `json:"body"`
}

type itemOutput struct {
	Body domain.AgendaItem `json:"body"`
}

type sessionPath struct {
	Session string `path:"session" doc:"Session ID or session-{number}-{year}"`
}

type itemPath struct {
	Session string `path:"session" doc:"Session ID or session-{number}-{year}"`
	ItemID  string `path:"item_id"`
}

var transitionErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusUnprocessableEntity,
}

func registerSessions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Schedule a session with an empty draft agenda",
		DefaultStatus: http.StatusCreated,
		Errors:        transitionErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateSessionRequest `json:"body"`
	}) (*sessionAgendaOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		view, err := e.CreateSession(ctx, engine.SessionCreateOptions{
			ID:          input.Body.ID,
			Number:      input.Body.Number,
			Year:        input.Body.Year,
			Type:        input.Body.Type,
			TermID:      input.Body.TermID,
			ScheduledAt: input.Body.ScheduledAt,
			Location:    input.Body.Location,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &sessionAgendaOutput{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List sessions",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"scheduled,in_progress,concluded,cancelled"`
		Year   int    `query:"year"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body SessionList `json:"body"`
	}, error) {
		items, err := e.Repo.ListSessions(ctx, repo.SessionFilters{Status: input.Status, Year: input.Year, Limit: normalizeLimit(input.Limit)})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Session{}
		}
		return &struct {
			Body SessionList `json:"body"`
		}{Body: SessionList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{session}",
		Summary:     "Get a session with its agenda and items",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*sessionAgendaOutput, error) {
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		view, err := e.GetSessionAgenda(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &sessionAgendaOutput{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-agenda",
		Method:      http.MethodPost,
		Path:        "/sessions/{session}/agenda/approve",
		Summary:     "Approve and publish the draft agenda",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Session string                `path:"session"`
		Body    *ApproveAgendaRequest `json:"body" required:"false"`
	}) (*struct {
		Body domain.Agenda `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		force := input.Body != nil && input.Body.Force
		agenda, err := e.ApproveAgenda(ctx, id, actorID, force)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Agenda `json:"body"`
		}{Body: agenda}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{session}/start",
		Summary:     "Open a scheduled session",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *sessionPath) (*sessionAgendaOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		view, err := e.StartSession(ctx, id, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &sessionAgendaOutput{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "finalize-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{session}/finalize",
		Summary:     "Close the session and stop every running clock",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *sessionPath) (*sessionAgendaOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		view, err := e.FinalizeSession(ctx, id, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &sessionAgendaOutput{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{session}/cancel",
		Summary:     "Cancel a session",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Session string                `path:"session"`
		Body    *CancelSessionRequest `json:"body" required:"false"`
	}) (*struct {
		Body domain.Session `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		reason := ""
		if input.Body != nil {
			reason = input.Body.Reason
		}
		s, err := e.CancelSession(ctx, id, reason, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Session `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "session-quorum",
		Method:      http.MethodGet,
		Path:        "/sessions/{session}/quorum",
		Summary:     "Installation quorum as it stands",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body quorum.Installation `json:"body"`
	}, error) {
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		inst, err := e.QuorumStatus(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body quorum.Installation `json:"body"`
		}{Body: inst}, nil
	})
}

func registerItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-item",
		Method:        http.MethodPost,
		Path:          "/sessions/{session}/items",
		Summary:       "Append an item to an agenda section",
		DefaultStatus: http.StatusCreated,
		Errors:        transitionErrors,
	}, func(ctx context.Context, input *struct {
		Session string         `path:"session"`
		Body    AddItemRequest `json:"body"`
	}) (*itemOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		it, err := e.AddItem(ctx, engine.ItemCreateOptions{
			SessionID:  id,
			Section:    domain.Section(input.Body.Section),
			Title:      input.Body.Title,
			MatterID:   input.Body.MatterID,
			ActionType: domain.ActionType(input.Body.ActionType),
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/sessions/{session}/items",
		Summary:     "List agenda items in session order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Session string `path:"session"`
		Status  string `query:"status"`
		Section string `query:"section"`
	}) (*struct {
		Body ItemList `json:"body"`
	}, error) {
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		agenda, err := e.Repo.GetAgendaBySession(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListItems(ctx, repo.ItemFilters{AgendaID: agenda.ID, Status: input.Status, Section: input.Section})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.AgendaItem{}
		}
		return &struct {
			Body ItemList `json:"body"`
		}{Body: ItemList{Items: items}}, nil
	})

	simple := []struct {
		id      string
		path    string
		summary string
		run     func(ctx context.Context, sessionID, itemID, actorID string) (domain.AgendaItem, error)
	}{
		{"start-item", "/sessions/{session}/items/{item_id}/start", "Start discussing an item", e.StartItem},
		{"pause-item", "/sessions/{session}/items/{item_id}/pause", "Pause the item clock", e.PauseItem},
		{"resume-item", "/sessions/{session}/items/{item_id}/resume", "Resume a paused item", e.ResumeItem},
		{"open-voting", "/sessions/{session}/items/{item_id}/vote", "Open voting after checking quorum", e.OpenVoting},
	}
	for _, op := range simple {
		run := op.run
		huma.Register(api, huma.Operation{
			OperationID: op.id,
			Method:      http.MethodPost,
			Path:        op.path,
			Summary:     op.summary,
			Errors:      transitionErrors,
		}, func(ctx context.Context, input *itemPath) (*itemOutput, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			id, serr := resolveSession(ctx, e, input.Session)
			if serr != nil {
				return nil, serr
			}
			it, err := run(ctx, id, input.ItemID, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &itemOutput{Body: it}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "finalize-item",
		Method:      http.MethodPost,
		Path:        "/sessions/{session}/items/{item_id}/finalize",
		Summary:     "Close an item with an outcome",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Session string              `path:"session"`
		ItemID  string              `path:"item_id"`
		Body    FinalizeItemRequest `json:"body"`
	}) (*itemOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		outcome, ok := domain.ParseItemOutcome(input.Body.Outcome)
		if !ok {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid outcome", map[string]any{"outcome": input.Body.Outcome})
		}
		it, err := e.FinalizeItem(ctx, engine.ItemFinalizeOptions{
			SessionID: id,
			ItemID:    input.ItemID,
			Outcome:   outcome,
			Notes:     input.Body.Notes,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-item",
		Method:      http.MethodPost,
		Path:        "/sessions/{session}/items/{item_id}/reorder",
		Summary:     "Move an item one position within its section",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Session string             `path:"session"`
		ItemID  string             `path:"item_id"`
		Body    ReorderItemRequest `json:"body"`
	}) (*itemOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		it, err := e.ReorderItem(ctx, id, input.ItemID, domain.Direction(input.Body.Direction), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})
}

func registerHolds(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "request-hold",
		Method:      http.MethodPost,
		Path:        "/sessions/{session}/items/{item_id}/hold",
		Summary:     "Suspend an item for review (pedido de vista)",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Session string      `path:"session"`
		ItemID  string      `path:"item_id"`
		Body    HoldRequest `json:"body"`
	}) (*itemOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		it, err := e.RequestHold(ctx, engine.HoldOptions{
			SessionID: id,
			ItemID:    input.ItemID,
			MemberID:  input.Body.MemberID,
			LeadDays:  input.Body.LeadDays,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resume-hold",
		Method:      http.MethodPost,
		Path:        "/sessions/{session}/items/{item_id}/hold/resume",
		Summary:     "Bring a held item back to discussion",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Session string             `path:"session"`
		ItemID  string             `path:"item_id"`
		Body    *ResumeHoldRequest `json:"body" required:"false"`
	}) (*itemOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		note := ""
		if input.Body != nil {
			note = input.Body.Note
		}
		it, err := e.ResumeFromHold(ctx, id, input.ItemID, note, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-holds",
		Method:      http.MethodGet,
		Path:        "/sessions/{session}/holds",
		Summary:     "Items under review with their due dates",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body HoldList `json:"body"`
	}, error) {
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		holds, err := e.ListHolds(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		if holds == nil {
			holds = []domain.Hold{}
		}
		return &struct {
			Body HoldList `json:"body"`
		}{Body: HoldList{Items: holds}}, nil
	})
}

func registerRounds(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "init-rounds",
		Method:      http.MethodPost,
		Path:        "/sessions/{session}/items/{item_id}/rounds",
		Summary:     "Set how many voting rounds an item needs",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Session string            `path:"session"`
		ItemID  string            `path:"item_id"`
		Body    InitRoundsRequest `json:"body"`
	}) (*itemOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		it, err := e.InitRounds(ctx, id, input.ItemID, input.Body.FinalRounds, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "register-round-result",
		Method:      http.MethodPost,
		Path:        "/sessions/{session}/items/{item_id}/rounds/result",
		Summary:     "Record the result of the current round",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Session string             `path:"session"`
		ItemID  string             `path:"item_id"`
		Body    RoundResultRequest `json:"body"`
	}) (*itemOutput, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		it, err := e.RegisterRoundResult(ctx, id, input.ItemID, domain.ItemStatus(input.Body.Result), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "second-round-status",
		Method:      http.MethodGet,
		Path:        "/sessions/{session}/items/{item_id}/rounds/second",
		Summary:     "Whether the interstitial is over",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *itemPath) (*struct {
		Body SecondRoundStatus `json:"body"`
	}, error) {
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		ready, err := e.CanStartSecondRound(ctx, id, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SecondRoundStatus `json:"body"`
		}{Body: SecondRoundStatus{ItemID: input.ItemID, Ready: ready}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-second-round",
		Method:      http.MethodPost,
		Path:        "/sessions/{session}/items/{item_id}/rounds/second",
		Summary:     "Start the second round, optionally in another session",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Session string              `path:"session"`
		ItemID  string              `path:"item_id"`
		Body    *SecondRoundRequest `json:"body" required:"false"`
	}) (*itemOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		target := ""
		if input.Body != nil && input.Body.TargetSessionID != "" {
			if target, serr = resolveSession(ctx, e, input.Body.TargetSessionID); serr != nil {
				return nil, serr
			}
		}
		it, err := e.StartSecondRound(ctx, id, input.ItemID, target, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-interstitial",
		Method:      http.MethodGet,
		Path:        "/sessions/{session}/interstitial",
		Summary:     "Items waiting out the interstitial",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body ItemList `json:"body"`
	}, error) {
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		items, err := e.ListInterstitialItems(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.AgendaItem{}
		}
		return &struct {
			Body ItemList `json:"body"`
		}{Body: ItemList{Items: items}}, nil
	})
}
