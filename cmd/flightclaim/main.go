package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"flightclaim/internal/app"
	"flightclaim/internal/config"
	"flightclaim/internal/db"
	"flightclaim/internal/domain"
	"flightclaim/internal/engine"
	flog "flightclaim/internal/log"
	"flightclaim/internal/migrate"
	"flightclaim/internal/repo"
	"flightclaim/internal/server"
	"flightclaim/internal/wizard"
)

var rootCmd = &cobra.Command{
	Use:   "flightclaim",
	Short: "Flight compensation claim intake service",
	Long: `flightclaim runs the claim wizard API and inspects what it has collected.
- Workspace: the .flightclaim directory holding the database, stored documents and staging files.
- Config: flightclaim.yml in the workspace (or --config); missing keys fall back to defaults.
- Wizard: a step flow from journey to consent; advancing past the privacy step submits the claim.
- Fast track: an express boarding-pass upload that starts the wizard at flight selection.
- Event log: claims, wizard completions and chat sessions, view with 'flightclaim log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FLIGHTCLAIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (defaults to <workspace>/flightclaim.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(claimsCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(wizardCmd())
	rootCmd.AddCommand(authCmd())
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.Open(cmd.Context(), viper.GetString("workspace"), viper.GetString("config"))
			if err != nil {
				return err
			}
			defer rt.Close()
			cfg := rt.Config
			flog.Configure(flog.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
			logger := flog.WithComponent("serve")

			authCfg := server.AuthConfig{
				JWTSecret: viper.GetString("jwt-secret"),
				DevLogin:  cfg.Auth.DevLogin,
				TokenTTL:  cfg.Auth.TokenTTL,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("FLIGHTCLAIM_JWT_SECRET is required for admin bearer auth")
			}
			rt.Engine = rt.Engine.WithFileSigning(authCfg.JWTSecret)
			handler, err := server.New(server.Config{
				Engine:    rt.Engine,
				BasePath:  cfg.Server.BasePath,
				Auth:      authCfg,
				RateLimit: cfg.Server.RateLimit.RequestsPerMinute,
			})
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			server.StartWebhookDispatcher(cmd.Context(), rt.Engine)
			rt.Engine.StartStagingJanitor(cmd.Context(), 10*time.Minute)
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info().
				Str("addr", addr).
				Str("base_path", cfg.Server.BasePath).
				Str("sessions", cfg.Sessions.Backend).
				Msg("serving flight claim API (OpenAPI at /openapi.json, Swagger UI at /docs)")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().String("jwt-secret", "", "HMAC secret for admin tokens")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			applied, err := migrate.Migrate(cmd.Context(), conn)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("schema up to date at", db.Path(viper.GetString("workspace")))
				return nil
			}
			for _, name := range applied {
				fmt.Println("applied", name)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List embedded migrations and when each was applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			all, err := migrate.Load()
			if err != nil {
				return err
			}
			history, err := migrate.History(cmd.Context(), conn)
			if err != nil {
				return err
			}
			appliedAt := map[int]string{}
			for _, h := range history {
				appliedAt[h.Version] = h.AppliedAt
			}
			if viper.GetBool("json") {
				return printJSON(history)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Version", "Name", "Applied"})
			for _, m := range all {
				at := appliedAt[m.Version]
				if at == "" {
					at = "pending"
				}
				tw.AppendRow(table.Row{m.Version, m.Name, at})
			}
			tw.Render()
			return nil
		},
	})
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect service config",
		Long:  "Config is read from flightclaim.yml in the workspace; keys that are not set keep their defaults.",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(c)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Print the default config",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(config.GenerateDefault())
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err == nil {
				err = c.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

func claimsCmd() *cobra.Command {
	claims := &cobra.Command{Use: "claims", Short: "Inspect submitted claims"}

	var status, email string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List claims, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListClaims(ctx, repo.ClaimFilters{Status: status, Email: email, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Status", "Route", "Flight", "Date", "Problem", "Fast track", "Created"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Status, c.DepartureIATA + "-" + c.ArrivalIATA, c.FlightNumber, c.TravelDate, c.ProblemType, c.FastTrack, c.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "status filter")
	list.Flags().StringVar(&email, "email", "", "claimant email filter")
	list.Flags().IntVar(&limit, "limit", 50, "max rows")
	claims.AddCommand(list)

	claims.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a claim with its submitted payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetClaim(ctx, args[0])
				if err != nil {
					return err
				}
				var payload any
				_ = json.Unmarshal([]byte(c.PayloadJSON), &payload)
				c.PayloadJSON = ""
				return printJSON(map[string]any{"claim": c, "payload": payload})
			})
		},
	})

	claims.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count claims by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.ClaimStats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Claims"})
				for s, n := range counts {
					tw.AppendRow(table.Row{s, n})
				}
				tw.SortBy([]table.SortBy{{Name: "Status", Mode: table.Asc}})
				tw.Render()
				return nil
			})
		},
	})
	return claims
}

func chatCmd() *cobra.Command {
	chat := &cobra.Command{Use: "chat", Short: "Inspect assistant chat sessions"}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List chat sessions, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListChatSessions(ctx, limit, "", "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Visitor", "Messages", "Updated"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Visitor, s.MessageCount, s.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "max rows")
	chat.AddCommand(list)

	chat.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a chat transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.GetChatSession(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle("chat " + s.ID)
				tw.AppendHeader(table.Row{"Time", "Role", "Message"})
				for _, m := range s.Messages {
					tw.AppendRow(table.Row{m.TS, m.Role, m.Content})
				}
				tw.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: 80}})
				tw.Render()
				return nil
			})
		},
	})
	return chat
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Everything the service recorded: submitted and failed claims, wizard starts and completions, chat sessions.",
	}
	var n int
	var f repo.EventFilters
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.ListEvents(ctx, n, 0, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&f.Type, "type", "", "event type filter")
	tail.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	log.AddCommand(tail)
	return log
}

func wizardCmd() *cobra.Command {
	wz := &cobra.Command{Use: "wizard", Short: "Inspect the wizard step flow"}
	var direct, fastTrack bool
	var problem string
	plan := &cobra.Command{
		Use:   "plan",
		Short: "Print the steps a claimant visits for an itinerary shape",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := domain.ClaimDraft{IsDirect: &direct}
			if problem != "" {
				d.ProblemType = domain.ProblemType(problem)
				if !d.ProblemType.Valid() {
					return fmt.Errorf("--problem must be delayed, cancelled or refused")
				}
			}
			path := wizard.DefaultGraph.Path(d, wizard.Flags{FastTrack: fastTrack})
			if viper.GetBool("json") {
				out := make([]map[string]any, 0, len(path))
				for _, id := range path {
					out = append(out, map[string]any{"step": int(id), "name": id.Name()})
				}
				return printJSON(out)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"#", "Step", "Name"})
			for i, id := range path {
				tw.AppendRow(table.Row{i + 1, int(id), id.Name()})
			}
			tw.Render()
			return nil
		},
	}
	plan.Flags().BoolVar(&direct, "direct", true, "direct flight (false adds connection and segment steps)")
	plan.Flags().BoolVar(&fastTrack, "fast-track", false, "start from an express boarding-pass upload")
	plan.Flags().StringVar(&problem, "problem", "", "problem type: delayed, cancelled or refused")
	wz.AddCommand(plan)
	return wz
}

func authCmd() *cobra.Command {
	auth := &cobra.Command{Use: "auth", Short: "Admin tokens"}
	var actor string
	var ttl time.Duration
	token := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token signed with FLIGHTCLAIM_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("FLIGHTCLAIM_JWT_SECRET is required")
			}
			tok, exp, err := server.SignToken(secret, actor, []string{server.RoleAdmin}, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": tok, "expires_at": exp.UTC().Format(time.RFC3339)})
			}
			fmt.Println(tok)
			return nil
		},
	}
	token.Flags().StringVar(&actor, "actor-id", "local-admin", "token subject")
	token.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	auth.AddCommand(token)
	return auth
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	rt, err := app.Open(ctx, viper.GetString("workspace"), viper.GetString("config"))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
