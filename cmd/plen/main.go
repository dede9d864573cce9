package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plenario/internal/app"
	"plenario/internal/config"
	"plenario/internal/db"
	"plenario/internal/engine"
	"plenario/internal/migrate"
	"plenario/internal/repo"
	"plenario/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "plen",
	Short: "Plenario CLI",
	Long: `Plenario runs the plenary session of a legislative chamber.
- Session: a scheduled sitting, ordinaria or otherwise, identified by ID or session-{number}-{year}.
- Agenda (pauta): the ordered items of a session, approved ahead of time and worked through one at a time.
- Item: one agenda entry; its clock runs while it is discussed or voted and stops on pause or hold.
- Matter (materia): a bill or proposition; its status follows the item that carries it.
- Quorum: installation quorum gates voting; approval rules come from plenario.yml.
- Vista: a member's request to hold an item for review, due after N business days.
- Turnos: matters that need two voting rounds separated by an interstitial.
- Event log: every transition, view with 'plen log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		slog.SetDefault(newLogger())
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describeError(err))
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PLENARIO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	rootCmd.PersistentFlags().StringP("session", "s", "", "session ID or session-{number}-{year}")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	for _, name := range []string{"workspace", "json", "actor-id", "force", "session", "verbose"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(matterCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(agendaCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(vistaCmd())
	rootCmd.AddCommand(turnoCmd())
	rootCmd.AddCommand(attendanceCmd())
	rootCmd.AddCommand(ballotCmd())
	rootCmd.AddCommand(tallyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func initCmd() *cobra.Command {
	var chamber string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create plenario.yml and the workspace store",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !viper.GetBool("force") {
				fmt.Printf("%s exists; keeping it (use --force to overwrite)\n", path)
			} else {
				if err := os.WriteFile(path, []byte(config.GenerateDefault(chamber)), 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", path)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fmt.Printf("workspace ready at %s (chamber %q)\n", db.Path(workspace), e.Config.Chamber.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&chamber, "chamber", "Camara Municipal", "chamber name")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect chamber config",
		Long:  "The config holds quorum and approval rules, two-round matter types, vista lead days, publication leads and webhooks. It is stored in the DB and seeded from plenario.yml on first use.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Config)
				}
				data, err := e.Config.ToYAML()
				if err != nil {
					return err
				}
				fmt.Print(string(data))
				return nil
			})
		},
	}
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the stored config from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.ImportConfig(ctx, cfg, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("imported %s\n", filePath)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if ref := viper.GetString("session"); ref != "" {
					id, err := app.ResolveSessionRef(ctx, e.Repo, ref)
					if err != nil {
						return err
					}
					f.SessionID = id
				}
				evts, err := e.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := newTable("ID", "TS", "Type", "Entity", "Actor", "Payload")
				for _, evt := range evts {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Show the store schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			applied, latest, err := migrate.CurrentVersion(conn)
			if err != nil {
				return err
			}
			return printJSONOrTable(map[string]any{"path": db.Path(workspace), "applied": applied, "latest": latest})
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the HTTP API",
		Long:  "Signs an HS256 token with PLENARIO_JWT_SECRET, using PLENARIO_JWT_ISSUER and PLENARIO_JWT_AUDIENCE.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var settings config.ServeSettings
			if err := config.ParseEnv(&settings); err != nil {
				return err
			}
			if subject == "" {
				subject = viper.GetString("actor-id")
			}
			tok, err := server.SignToken(settings.JWTSecret, subject, settings.JWTIssuer, settings.JWTAudience, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (defaults to --actor-id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var settings config.ServeSettings
			if err := config.ParseEnv(&settings); err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				settings.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				settings.BasePath = basePath
			}
			if settings.JWTSecret == "" && !settings.AllowActorHeader {
				return fmt.Errorf("PLENARIO_JWT_SECRET is required for bearer auth")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				logger := e.Logger
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: settings.BasePath,
					Auth: server.AuthConfig{
						JWTSecret:              settings.JWTSecret,
						Issuer:                 settings.JWTIssuer,
						Audience:               settings.JWTAudience,
						AllowLegacyActorHeader: settings.AllowActorHeader,
						Logger:                 logger,
					},
				})
				if err != nil {
					return err
				}
				server.StartWebhookDispatcher(ctx, e, time.Duration(settings.WebhookPollSeconds)*time.Second, logger)
				srv := &http.Server{Addr: settings.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				logger.Info("serving", "event", "http_listen", "module", "plenario/cli", "addr", settings.Addr, "base_path", settings.BasePath, "webhooks", len(e.Config.Webhooks))
				fmt.Printf("Serving Plenario API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", settings.Addr, settings.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (overrides PLENARIO_ADDR)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path (overrides PLENARIO_BASE_PATH)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveConfig(ctx, workspace, r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	e.Logger = slog.Default()
	return fn(ctx, e)
}

// withSession resolves --session before running fn.
func withSession(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		id, err := app.ResolveSessionRef(ctx, e.Repo, viper.GetString("session"))
		if err != nil {
			return err
		}
		return fn(ctx, e, id)
	})
}

func actorID() string {
	return viper.GetString("actor-id")
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

// describeError appends validation details so quorum shortfalls are visible.
func describeError(err error) string {
	var ve engine.ValidationError
	if errors.As(err, &ve) && len(ve.Details) > 0 {
		b, _ := json.Marshal(ve.Details)
		return fmt.Sprintf("%s %s", ve.Message, b)
	}
	return err.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatSeconds(s int64) string {
	return (time.Duration(s) * time.Second).String()
}
