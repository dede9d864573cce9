package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plenario/internal/domain"
	"plenario/internal/engine"
	"plenario/internal/repo"
)

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Register council members"}

	var member domain.Member
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a member for a term",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				member.Active = true
				saved, err := e.RegisterMember(ctx, member, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(saved)
			})
		},
	}
	add.Flags().StringVar(&member.ID, "id", "", "member id (generated when empty)")
	add.Flags().StringVar(&member.Name, "name", "", "member name")
	add.Flags().StringVar(&member.TermID, "term", "", "legislative term")
	_ = add.MarkFlagRequired("name")

	var term string
	list := &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				members, err := e.Repo.ListMembers(ctx, term)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := newTable("ID", "Name", "Term", "Active")
				for _, mb := range members {
					tw.AppendRow(table.Row{mb.ID, mb.Name, mb.TermID, mb.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&term, "term", "", "term filter")

	m.AddCommand(add, list, memberActiveCmd("activate", true), memberActiveCmd("deactivate", false))
	return m
}

func memberActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " MEMBER_ID",
		Short: "Toggle whether a member counts towards quorum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				saved, err := e.SetMemberActive(ctx, args[0], active, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(saved)
			})
		},
	}
}

func matterCmd() *cobra.Command {
	m := &cobra.Command{Use: "matter", Short: "Register legislative matters"}

	var matter domain.Matter
	var status string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a matter",
		RunE: func(cmd *cobra.Command, args []string) error {
			matter.Status = domain.MatterStatus(status)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				saved, err := e.CreateMatter(ctx, matter, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(saved)
			})
		},
	}
	add.Flags().StringVar(&matter.ID, "id", "", "matter id (generated when empty)")
	add.Flags().StringVar(&matter.Type, "type", "", "matter type, e.g. PL, PLC, PEC, VETO")
	add.Flags().IntVar(&matter.Number, "number", 0, "number")
	add.Flags().IntVar(&matter.Year, "year", 0, "year")
	add.Flags().StringVar(&matter.Title, "title", "", "title")
	add.Flags().BoolVar(&matter.Urgent, "urgent", false, "urgency regime")
	add.Flags().BoolVar(&matter.VetoOverride, "veto-override", false, "vote to override a veto")
	add.Flags().StringVar(&status, "status", string(domain.MatterAwaitingAgenda), "initial status")
	_ = add.MarkFlagRequired("type")
	_ = add.MarkFlagRequired("title")

	var f repo.MatterFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List matters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				matters, err := e.Repo.ListMatters(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(matters)
				}
				tw := newTable("ID", "Matter", "Title", "Status", "Result")
				for _, mt := range matters {
					tw.AppendRow(table.Row{mt.ID, fmt.Sprintf("%s %d/%d", mt.Type, mt.Number, mt.Year), mt.Title, mt.Status, deref(mt.VoteOutcome)})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.Status, "status", "", "status filter")
	list.Flags().StringVar(&f.Type, "type", "", "type filter")
	list.Flags().IntVar(&f.Limit, "limit", 50, "max matters")

	show := &cobra.Command{
		Use:   "show MATTER_ID",
		Short: "Show a matter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				mt, err := e.Repo.GetMatter(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(mt)
			})
		},
	}
	m.AddCommand(add, list, show)
	return m
}

func attendanceCmd() *cobra.Command {
	a := &cobra.Command{Use: "attendance", Short: "Record who is present"}

	var absent bool
	mark := &cobra.Command{
		Use:   "mark MEMBER_ID",
		Short: "Mark a member present (or --absent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				rec, err := e.MarkAttendance(ctx, sessionID, args[0], !absent, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	mark.Flags().BoolVar(&absent, "absent", false, "record an absence")

	list := &cobra.Command{
		Use:   "list",
		Short: "List attendance with the installation quorum",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				records, err := e.Repo.ListAttendance(ctx, sessionID)
				if err != nil {
					return err
				}
				inst, err := e.QuorumStatus(ctx, sessionID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"items": records, "quorum": inst})
				}
				tw := newTable("Member", "Present", "Recorded")
				for _, r := range records {
					tw.AppendRow(table.Row{r.MemberID, r.Present, r.RecordedAt.Format("15:04:05")})
				}
				tw.AppendFooter(table.Row{"quorum", fmt.Sprintf("%d/%d", inst.Present, inst.Required), inst.Rule})
				tw.Render()
				return nil
			})
		},
	}
	a.AddCommand(mark, list)
	return a
}

func ballotCmd() *cobra.Command {
	b := &cobra.Command{Use: "ballot", Short: "Record nominal votes"}
	var opts engine.BallotOptions
	var value string
	cast := &cobra.Command{
		Use:   "cast",
		Short: "Cast or replace a member's vote in the current round",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				opts.SessionID = sessionID
				opts.Value = domain.BallotValue(value)
				opts.ActorID = actorID()
				ballot, err := e.CastBallot(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(ballot)
			})
		},
	}
	cast.Flags().StringVar(&opts.MatterID, "matter", "", "matter under vote")
	cast.Flags().StringVar(&opts.MemberID, "member", "", "voting member")
	cast.Flags().StringVar(&value, "value", "", "yes, no or abstain")
	_ = cast.MarkFlagRequired("matter")
	_ = cast.MarkFlagRequired("member")
	_ = cast.MarkFlagRequired("value")
	b.AddCommand(cast)
	return b
}

func tallyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tally MATTER_ID",
		Short: "Count the votes on a matter under its approval rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				res, err := e.Tally(ctx, sessionID, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := newTable("Sim", "Não", "Abstenção", "Total", "Resultado")
				tw.AppendRow(table.Row{res.Yes, res.No, res.Abstain, res.Total, res.Outcome})
				tw.Render()
				if res.Detail != "" {
					fmt.Println(res.Detail)
				}
				return nil
			})
		},
	}
}
