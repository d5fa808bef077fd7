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
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"smsmock/internal/config"
	"smsmock/internal/db"
	"smsmock/internal/dispatch"
	"smsmock/internal/migrate"
	"smsmock/internal/provider"
	"smsmock/internal/render"
	"smsmock/internal/repo"
	"smsmock/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "smsmock",
	Short: "SMS Mock CLI",
	Long: `SMS Mock is a local stand-in for an external telephony provider.
It accepts Twilio-compatible message and call requests, walks each entity
through a realistic status sequence, and posts status callbacks with retries.
Configure registered and failure numbers in config.yaml to script outcomes.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load()
	viper.SetEnvPrefix("SMSMOCK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(messageCmd())
	rootCmd.AddCommand(callCmd())
	rootCmd.AddCommand(callbackCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(clearCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mock provider server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			if err := db.EnsureDir(cfg.Database.Path); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Path: cfg.Database.Path})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			p := provider.New(cfg.Twilio)
			eng, err := render.New(cfg.Provider)
			if err != nil {
				return err
			}
			dispatcher := dispatch.New(r, dispatch.Policy{
				CallbacksEnabled: cfg.Twilio.Callbacks.CallbacksEnabled(),
				StepDelay:        time.Duration(cfg.Twilio.Callbacks.DelaySecondsOrDefault()) * time.Second,
				RetryAttempts:    cfg.Twilio.Callbacks.RetryAttemptsOrDefault(),
				RetryDelay:       time.Duration(cfg.Twilio.Callbacks.RetryDelaySecondsOrDefault()) * time.Second,
				AccountSid:       cfg.Twilio.AccountSid,
			})
			handler, err := server.New(server.Config{
				Cfg:            cfg,
				Repo:           r,
				Provider:       p,
				Render:         eng,
				Dispatcher:     dispatcher,
				AdminJWTSecret: os.Getenv("SMSMOCK_JWT_SECRET"),
			})
			if err != nil {
				return err
			}
			if addr == "" {
				addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			}
			srv := &http.Server{Addr: addr, Handler: handler}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
				dispatcher.Shutdown(shutdownCtx)
			}()

			fmt.Printf("Serving SMS Mock (%s) on http://%s (dashboard at /, admin docs at /admin/docs)\n", cfg.Provider, addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func messageCmd() *cobra.Command {
	msg := &cobra.Command{Use: "message", Short: "Inspect messages"}
	msg.AddCommand(messageListCmd())
	return msg
}

func messageListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListMessages(ctx, limit, offset)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"SID", "From", "To", "Status", "Callback URL", "Updated"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.MessageSid, m.FromNumber, m.ToNumber, m.Status, derefString(m.CallbackURL), m.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func callCmd() *cobra.Command {
	call := &cobra.Command{Use: "call", Short: "Inspect calls"}
	call.AddCommand(callListCmd())
	return call
}

func callListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCalls(ctx, limit, offset)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"SID", "From", "To", "Status", "TwiML URL", "Updated"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.CallSid, c.FromNumber, c.ToNumber, c.Status, derefString(c.TwimlURL), c.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func callbackCmd() *cobra.Command {
	cb := &cobra.Command{Use: "callback", Short: "Inspect callback attempts"}
	cb.AddCommand(callbackListCmd())
	return cb
}

func callbackListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List callback delivery attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCallbackLogs(ctx, limit, offset)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Target", "Attempt", "HTTP", "Outcome", "At"})
				for _, l := range items {
					code := "-"
					if l.StatusCode != nil {
						code = fmt.Sprintf("%d", *l.StatusCode)
					}
					tw.AppendRow(table.Row{l.ID, l.TargetURL, l.AttemptNumber, code, l.Outcome, l.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				stats, err := r.Statistics(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Table", "Rows"})
				tw.AppendRow(table.Row{"messages", stats.Messages})
				tw.AppendRow(table.Row{"calls", stats.Calls})
				tw.AppendRow(table.Row{"callbacks", stats.Callbacks})
				tw.Render()
				return nil
			})
		},
	}
}

func clearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "clear {messages|calls|callbacks|all}",
		Short:     "Delete stored data",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"messages", "calls", "callbacks", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				switch args[0] {
				case "messages":
					n, err := r.ClearMessages(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("deleted %d messages\n", n)
				case "calls":
					n, err := r.ClearCalls(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("deleted %d calls\n", n)
				case "callbacks":
					n, err := r.ClearCallbacks(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("deleted %d callback attempts\n", n)
				case "all":
					counts, err := r.ClearAll(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("deleted %d messages, %d calls, %d callback attempts\n", counts.Messages, counts.Calls, counts.Callbacks)
				default:
					return fmt.Errorf("unknown target %q", args[0])
				}
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if path == "" {
				path = "config.yaml"
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			fmt.Printf("config valid (provider=%s, listen=%s:%d, db=%s)\n", cfg.Provider, cfg.Server.Host, cfg.Server.Port, cfg.Database.Path)
			return nil
		},
	}
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Path: cfg.Database.Path})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
