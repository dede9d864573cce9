package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plenario/internal/app"
	"plenario/internal/domain"
	"plenario/internal/engine"
	"plenario/internal/repo"
)

func sessionCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "session",
		Short: "Manage plenary sessions",
		Long:  "Sessions go scheduled -> in_progress -> concluded; cancelled is the exit. Most commands act on --session.",
	}
	s.AddCommand(sessionCreateCmd())
	s.AddCommand(sessionListCmd())
	s.AddCommand(sessionShowCmd())
	s.AddCommand(sessionStartCmd())
	s.AddCommand(sessionFinalizeCmd())
	s.AddCommand(sessionCancelCmd())
	s.AddCommand(sessionQuorumCmd())
	return s
}

func sessionCreateCmd() *cobra.Command {
	var opts engine.SessionCreateOptions
	var at string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a session with an empty draft agenda",
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduled, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("--at must be RFC3339: %w", err)
			}
			opts.ScheduledAt = scheduled
			if opts.Year == 0 {
				opts.Year = scheduled.Year()
			}
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				view, err := e.CreateSession(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				fmt.Printf("session-%d-%d scheduled for %s (id %s)\n", view.Session.Number, view.Session.Year, view.Session.ScheduledAt.Format(time.RFC3339), view.Session.ID)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&opts.Number, "number", 0, "session number")
	cmd.Flags().IntVar(&opts.Year, "year", 0, "session year (defaults to the year of --at)")
	cmd.Flags().StringVar(&opts.Type, "type", "ordinaria", "ordinaria, extraordinaria, solene or especial")
	cmd.Flags().StringVar(&opts.TermID, "term", "", "legislative term whose members form the membership")
	cmd.Flags().StringVar(&at, "at", "", "scheduled date (RFC3339)")
	cmd.Flags().StringVar(&opts.Location, "location", "", "location")
	_ = cmd.MarkFlagRequired("number")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func sessionListCmd() *cobra.Command {
	var f repo.SessionFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListSessions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Ref", "Type", "Scheduled", "Status", "ID")
				for _, s := range items {
					tw.AppendRow(table.Row{fmt.Sprintf("session-%d-%d", s.Number, s.Year), s.Type, s.ScheduledAt.Format(time.RFC3339), s.Status, s.ID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Year, "year", 0, "year filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max sessions")
	return cmd
}

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show a session with its agenda",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				view, err := e.GetSessionAgenda(ctx, sessionID)
				if err != nil {
					return err
				}
				return printSessionAgenda(view)
			})
		},
	}
}

func sessionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Open a scheduled session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				view, err := e.StartSession(ctx, sessionID, actorID())
				if err != nil {
					return err
				}
				return printSessionAgenda(view)
			})
		},
	}
}

func sessionFinalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finalize",
		Short: "Close the session and stop every running clock",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				view, err := e.FinalizeSession(ctx, sessionID, actorID())
				if err != nil {
					return err
				}
				return printSessionAgenda(view)
			})
		},
	}
}

func sessionCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				s, err := e.CancelSession(ctx, sessionID, reason, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the event")
	return cmd
}

func sessionQuorumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quorum",
		Short: "Show the installation quorum as it stands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				inst, err := e.QuorumStatus(ctx, sessionID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(inst)
				}
				state := "met"
				if !inst.Met {
					state = fmt.Sprintf("not met, %d short", inst.Shortfall)
				}
				fmt.Printf("%s: %d present of %d required (%s)\n", inst.Rule, inst.Present, inst.Required, state)
				return nil
			})
		},
	}
}

func agendaCmd() *cobra.Command {
	a := &cobra.Command{Use: "agenda", Short: "Approve and inspect the session agenda"}
	a.AddCommand(&cobra.Command{
		Use:   "approve",
		Short: "Approve and publish the draft agenda (--force skips the publication lead)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				agenda, err := e.ApproveAgenda(ctx, sessionID, actorID(), viper.GetBool("force"))
				if err != nil {
					return err
				}
				return printJSONOrTable(agenda)
			})
		},
	})
	a.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the agenda items in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				view, err := e.GetSessionAgenda(ctx, sessionID)
				if err != nil {
					return err
				}
				return printSessionAgenda(view)
			})
		},
	})
	return a
}

func itemCmd() *cobra.Command {
	it := &cobra.Command{
		Use:   "item",
		Short: "Work through agenda items",
		Long:  "Only one item per agenda is under discussion or in voting at a time. The item clock runs while it is active.",
	}
	it.AddCommand(itemAddCmd())
	for _, action := range []struct {
		use   string
		short string
		run   func(e engine.Engine) func(ctx context.Context, sessionID, itemID, actorID string) (domain.AgendaItem, error)
	}{
		{"start", "Start discussing an item", func(e engine.Engine) func(context.Context, string, string, string) (domain.AgendaItem, error) {
			return e.StartItem
		}},
		{"pause", "Pause the item clock", func(e engine.Engine) func(context.Context, string, string, string) (domain.AgendaItem, error) {
			return e.PauseItem
		}},
		{"resume", "Resume a paused item", func(e engine.Engine) func(context.Context, string, string, string) (domain.AgendaItem, error) {
			return e.ResumeItem
		}},
		{"vote", "Open voting after checking the installation quorum", func(e engine.Engine) func(context.Context, string, string, string) (domain.AgendaItem, error) {
			return e.OpenVoting
		}},
	} {
		action := action
		it.AddCommand(&cobra.Command{
			Use:   action.use + " ITEM_ID",
			Short: action.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
					item, err := action.run(e)(ctx, sessionID, args[0], actorID())
					if err != nil {
						return err
					}
					return printItem(item)
				})
			},
		})
	}
	it.AddCommand(itemFinalizeCmd())
	it.AddCommand(itemReorderCmd())
	return it
}

func itemAddCmd() *cobra.Command {
	var opts engine.ItemCreateOptions
	var section, action string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append an item to an agenda section",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				opts.SessionID = sessionID
				opts.Section = domain.Section(section)
				opts.ActionType = domain.ActionType(action)
				opts.ActorID = actorID()
				item, err := e.AddItem(ctx, opts)
				if err != nil {
					return err
				}
				return printItem(item)
			})
		},
	}
	cmd.Flags().StringVar(&section, "section", string(domain.SectionOrdemDoDia), "expediente, ordem_do_dia, comunicacoes, honras or outros")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title (defaults to the matter title)")
	cmd.Flags().StringVar(&opts.MatterID, "matter", "", "matter carried by the item")
	cmd.Flags().StringVar(&action, "action", "", "reading, discussion, voting, announcement or tribute")
	return cmd
}

func itemFinalizeCmd() *cobra.Command {
	var outcome, notes string
	cmd := &cobra.Command{
		Use:   "finalize ITEM_ID",
		Short: "Close an item with an outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, ok := domain.ParseItemOutcome(outcome)
			if !ok {
				return fmt.Errorf("--outcome must be concluded, approved, rejected, withdrawn or postponed")
			}
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				item, err := e.FinalizeItem(ctx, engine.ItemFinalizeOptions{
					SessionID: sessionID,
					ItemID:    args[0],
					Outcome:   status,
					Notes:     notes,
					ActorID:   actorID(),
				})
				if err != nil {
					return err
				}
				return printItem(item)
			})
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", string(domain.ItemConcluded), "outcome")
	cmd.Flags().StringVar(&notes, "notes", "", "notes appended to the item")
	return cmd
}

func itemReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder ITEM_ID up|down",
		Short: "Move an item one position within its section",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				item, err := e.ReorderItem(ctx, sessionID, args[0], domain.Direction(args[1]), actorID())
				if err != nil {
					return err
				}
				return printItem(item)
			})
		},
	}
}

func vistaCmd() *cobra.Command {
	v := &cobra.Command{
		Use:   "vista",
		Short: "Hold items for review (pedido de vista)",
	}
	var member string
	var days int
	request := &cobra.Command{
		Use:   "request ITEM_ID",
		Short: "Suspend an active item for a member's review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				item, err := e.RequestHold(ctx, engine.HoldOptions{
					SessionID: sessionID,
					ItemID:    args[0],
					MemberID:  member,
					LeadDays:  days,
					ActorID:   actorID(),
				})
				if err != nil {
					return err
				}
				return printItem(item)
			})
		},
	}
	request.Flags().StringVar(&member, "member", "", "requesting member")
	request.Flags().IntVar(&days, "days", 0, "business days until due (defaults to vista.lead_days)")
	_ = request.MarkFlagRequired("member")

	var note string
	resume := &cobra.Command{
		Use:   "resume ITEM_ID",
		Short: "Bring a held item back to discussion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				item, err := e.ResumeFromHold(ctx, sessionID, args[0], note, actorID())
				if err != nil {
					return err
				}
				return printItem(item)
			})
		},
	}
	resume.Flags().StringVar(&note, "note", "", "note appended to the item")

	list := &cobra.Command{
		Use:   "list",
		Short: "Items under review with their due dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				holds, err := e.ListHolds(ctx, sessionID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(holds)
				}
				tw := newTable("Item", "Title", "Requested by", "Due", "Overdue")
				for _, h := range holds {
					tw.AppendRow(table.Row{h.Item.ID, h.Item.Title, deref(h.Item.HoldRequestedBy), h.DueAt.Format("2006-01-02 15:04"), h.Overdue})
				}
				tw.Render()
				return nil
			})
		},
	}
	v.AddCommand(request, resume, list)
	return v
}

func turnoCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "turno",
		Short: "Two-round voting",
		Long:  "Matters of the types in turnos.types are voted twice. A round-one approval opens the interstitial; the second round may run in a later session.",
	}
	t.AddCommand(&cobra.Command{
		Use:   "init ITEM_ID ROUNDS",
		Short: "Set how many voting rounds an item needs (1 or 2)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rounds, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("rounds must be a number: %w", err)
			}
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				item, err := e.InitRounds(ctx, sessionID, args[0], rounds, actorID())
				if err != nil {
					return err
				}
				return printItem(item)
			})
		},
	})
	t.AddCommand(&cobra.Command{
		Use:   "result ITEM_ID approved|rejected",
		Short: "Record the result of the current round",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				item, err := e.RegisterRoundResult(ctx, sessionID, args[0], domain.ItemStatus(args[1]), actorID())
				if err != nil {
					return err
				}
				return printItem(item)
			})
		},
	})
	t.AddCommand(&cobra.Command{
		Use:   "check ITEM_ID",
		Short: "Report whether the second round may start",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				ok, err := e.CanStartSecondRound(ctx, sessionID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"item_id": args[0], "ready": ok})
			})
		},
	})
	var target string
	second := &cobra.Command{
		Use:   "second ITEM_ID",
		Short: "Start the second round, optionally in another session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				targetID := ""
				if target != "" {
					id, err := app.ResolveSessionRef(ctx, e.Repo, target)
					if err != nil {
						return err
					}
					targetID = id
				}
				item, err := e.StartSecondRound(ctx, sessionID, args[0], targetID, actorID())
				if err != nil {
					return err
				}
				return printItem(item)
			})
		},
	}
	second.Flags().StringVar(&target, "target", "", "session that takes the second round")
	t.AddCommand(second)
	t.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "Items waiting out the interstitial",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, e engine.Engine, sessionID string) error {
				items, err := e.ListInterstitialItems(ctx, sessionID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Item", "Title", "Round 1", "Until")
				for _, it := range items {
					until := ""
					if it.InterstitialUntil != nil {
						until = it.InterstitialUntil.Format(time.RFC3339)
					}
					tw.AppendRow(table.Row{it.ID, it.Title, deref(it.Round1Result), until})
				}
				tw.Render()
				return nil
			})
		},
	})
	return t
}

func printSessionAgenda(view domain.SessionAgenda) error {
	if viper.GetBool("json") {
		return printJSON(view)
	}
	s := view.Session
	fmt.Printf("session-%d-%d [%s] %s, agenda %s, total %s\n", s.Number, s.Year, s.Type, s.Status, view.Agenda.Status, formatSeconds(view.Agenda.TotalRealSeconds))
	current := deref(view.Agenda.CurrentItemID)
	tw := newTable("", "Section", "#", "Item", "Title", "Action", "Status", "Time", "Round")
	for _, it := range view.Items {
		marker := ""
		if it.ID == current {
			marker = ">"
		}
		round := ""
		if it.TwoRound() {
			round = fmt.Sprintf("%d/%d", it.CurrentRound, it.FinalRounds)
		}
		tw.AppendRow(table.Row{marker, it.Section, it.Rank, it.ID, it.Title, it.ActionType, it.Status, formatSeconds(it.AccumulatedSeconds), round})
	}
	tw.Render()
	return nil
}

func printItem(it domain.AgendaItem) error {
	if viper.GetBool("json") {
		return printJSON(it)
	}
	fmt.Printf("%s %q %s (%s accumulated)\n", it.ID, it.Title, it.Status, formatSeconds(it.AccumulatedSeconds))
	return nil
}
