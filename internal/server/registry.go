package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"plenario/internal/app"
	"plenario/internal/config"
	"plenario/internal/domain"
	"plenario/internal/engine"
	"plenario/internal/repo"
)

type ConfigDocument struct {
	YAML string `json:"yaml" doc:"plenario.yml contents; webhook secrets are masked on read"`
}

func registerConfig(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-config",
		Method:      http.MethodGet,
		Path:        "/config",
		Summary:     "Get the chamber config",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ConfigDocument `json:"body"`
	}, error) {
		cfg, err := e.Repo.GetChamberConfig(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		masked := *cfg
		masked.Webhooks = make([]config.WebhookConfig, len(cfg.Webhooks))
		for i, w := range cfg.Webhooks {
			if w.Secret != "" {
				w.Secret = "********"
			}
			masked.Webhooks[i] = w
		}
		data, err := masked.ToYAML()
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConfigDocument `json:"body"`
		}{Body: ConfigDocument{YAML: string(data)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-config",
		Method:      http.MethodPut,
		Path:        "/config",
		Summary:     "Replace the stored chamber config",
		Description: "Takes effect for engines created afterwards; a running server keeps the config it started with.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body ConfigDocument `json:"body"`
	}) (*struct{}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cfg, err := config.FromYAML([]byte(input.Body.YAML))
		if err != nil {
			return nil, newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
		}
		if err := e.ImportConfig(ctx, cfg, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-member",
		Method:        http.MethodPost,
		Path:          "/members",
		Summary:       "Register a member",
		DefaultStatus: http.StatusCreated,
		Errors:        transitionErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateMemberRequest `json:"body"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.RegisterMember(ctx, domain.Member{ID: input.Body.ID, Name: input.Body.Name, TermID: input.Body.TermID}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/members",
		Summary:     "List members",
	}, func(ctx context.Context, input *struct {
		TermID string `query:"term_id"`
	}) (*struct {
		Body MemberList `json:"body"`
	}, error) {
		items, err := e.Repo.ListMembers(ctx, input.TermID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Member{}
		}
		return &struct {
			Body MemberList `json:"body"`
		}{Body: MemberList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-member-active",
		Method:      http.MethodPost,
		Path:        "/members/{member_id}/active",
		Summary:     "Include or exclude a member from membership counts",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		MemberID string                 `path:"member_id"`
		Body     SetMemberActiveRequest `json:"body"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.SetMemberActive(ctx, input.MemberID, input.Body.Active, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})
}

func registerMatters(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-matter",
		Method:        http.MethodPost,
		Path:          "/matters",
		Summary:       "Register a matter (materia)",
		DefaultStatus: http.StatusCreated,
		Errors:        transitionErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateMatterRequest `json:"body"`
	}) (*struct {
		Body domain.Matter `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.CreateMatter(ctx, domain.Matter{
			ID:           input.Body.ID,
			Type:         input.Body.Type,
			Number:       input.Body.Number,
			Year:         input.Body.Year,
			Title:        input.Body.Title,
			Urgent:       input.Body.Urgent,
			VetoOverride: input.Body.VetoOverride,
			Status:       domain.MatterStatus(input.Body.Status),
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Matter `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-matters",
		Method:      http.MethodGet,
		Path:        "/matters",
		Summary:     "List matters",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Type   string `query:"type"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body MatterList `json:"body"`
	}, error) {
		items, err := e.Repo.ListMatters(ctx, repo.MatterFilters{Status: input.Status, Type: input.Type, Limit: normalizeLimit(input.Limit)})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Matter{}
		}
		return &struct {
			Body MatterList `json:"body"`
		}{Body: MatterList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-matter",
		Method:      http.MethodGet,
		Path:        "/matters/{matter_id}",
		Summary:     "Get a matter",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MatterID string `path:"matter_id"`
	}) (*struct {
		Body domain.Matter `json:"body"`
	}, error) {
		m, err := e.Repo.GetMatter(ctx, input.MatterID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(engine.NotFoundError{Kind: "matter", ID: input.MatterID})
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Matter `json:"body"`
		}{Body: m}, nil
	})
}

func registerVoting(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "mark-attendance",
		Method:      http.MethodPost,
		Path:        "/sessions/{session}/attendance",
		Summary:     "Mark a member present or absent",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Session string            `path:"session"`
		Body    AttendanceRequest `json:"body"`
	}) (*struct {
		Body domain.Attendance `json:"body"`
	}, error) {
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
		a, err := e.MarkAttendance(ctx, id, input.Body.MemberID, input.Body.Present, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Attendance `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-attendance",
		Method:      http.MethodGet,
		Path:        "/sessions/{session}/attendance",
		Summary:     "Attendance roll with the installation quorum",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body AttendanceList `json:"body"`
	}, error) {
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		items, err := e.Repo.ListAttendance(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Attendance{}
		}
		inst, err := e.QuorumStatus(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AttendanceList `json:"body"`
		}{Body: AttendanceList{Items: items, Quorum: inst}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cast-ballot",
		Method:      http.MethodPost,
		Path:        "/sessions/{session}/ballots",
		Summary:     "Cast or replace a member's vote on the matter in voting",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Session string        `path:"session"`
		Body    BallotRequest `json:"body"`
	}) (*struct {
		Body domain.Ballot `json:"body"`
	}, error) {
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
		b, err := e.CastBallot(ctx, engine.BallotOptions{
			SessionID: id,
			MatterID:  input.Body.MatterID,
			MemberID:  input.Body.MemberID,
			Value:     domain.BallotValue(input.Body.Value),
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Ballot `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "tally",
		Method:      http.MethodGet,
		Path:        "/sessions/{session}/matters/{matter_id}/tally",
		Summary:     "Count the ballots of the matter's current round",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Session  string `path:"session"`
		MatterID string `path:"matter_id"`
	}) (*struct {
		Body TallyResponse `json:"body"`
	}, error) {
		id, serr := resolveSession(ctx, e, input.Session)
		if serr != nil {
			return nil, serr
		}
		res, err := e.Tally(ctx, id, input.MatterID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TallyResponse `json:"body"`
		}{Body: TallyResponse{SessionID: id, MatterID: input.MatterID, Result: res}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Session    string `query:"session" doc:"Session ID or session-{number}-{year}"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Cursor     int64  `query:"cursor"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body EventList `json:"body"`
	}, error) {
		sessionID := ""
		if input.Session != "" {
			id, err := app.ResolveSessionRef(ctx, e.Repo, input.Session)
			if err != nil {
				return nil, handleError(err)
			}
			sessionID = id
		}
		limit := normalizeLimit(input.Limit)
		evts, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
			SessionID:  sessionID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Cursor:     input.Cursor,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		var next *int64
		if len(evts) > limit {
			evts = evts[:limit]
			last := evts[len(evts)-1].ID
			next = &last
		}
		if evts == nil {
			evts = []domain.Event{}
		}
		return &struct {
			Body EventList `json:"body"`
		}{Body: EventList{Items: evts, NextCursor: next}}, nil
	})
}
