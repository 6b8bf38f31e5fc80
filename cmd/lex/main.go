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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"lexflow/internal/app"
	"lexflow/internal/commander"
	"lexflow/internal/config"
	"lexflow/internal/logging"
	"lexflow/internal/whatsapp"
)

var rootCmd = &cobra.Command{
	Use:   "lex",
	Short: "lexflow CLI",
	Long: `lexflow runs the WhatsApp commander of a law practice.
- Commander: a chat message goes to a language model that picks one or more tools
  (criar_prazo, criar_projeto, criar_cliente, baixar_parcela, vincular_processo,
  criar_prazo_protocolo, listar_prazos, listar_projetos); each tool runs against the
  tenant's records and its outcome is replied over WhatsApp.
- Tenant: one practice. Every record, message and API key belongs to exactly one tenant.
- Workspace: the directory holding lexflow.yml and the .lexflow store.
- Digest: a scheduled message with overdue and today's deadlines.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LEXFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "", "override log.level")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(instanceCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(commandCmd())
	rootCmd.AddCommand(deadlinesCmd())
	rootCmd.AddCommand(messagesCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(digestCmd())
	rootCmd.AddCommand(serveCmd())
}

// loadConfig reads lexflow.yml and overlays secrets from the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	overlay := func(dst *string, key string) {
		if v := strings.TrimSpace(viper.GetString(key)); v != "" {
			*dst = v
		}
	}
	overlay(&cfg.Server.JWTSecret, "jwt_secret")
	overlay(&cfg.LLM.APIKey, "llm_api_key")
	overlay(&cfg.Transcription.APIKey, "transcription_api_key")
	overlay(&cfg.WhatsApp.InstanceID, "whatsapp_instance_id")
	overlay(&cfg.WhatsApp.Token, "whatsapp_token")
	overlay(&cfg.WhatsApp.ClientToken, "whatsapp_client_token")
	overlay(&cfg.Log.Level, "log_level")
	return cfg, cfg.Validate()
}

func withApp(ctx context.Context, dryRun bool, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	defer logger.Sync()
	a, err := app.Open(ctx, cfg, app.Options{
		Workspace: viper.GetString("workspace"),
		DryRun:    dryRun,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default lexflow.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (secrets redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			redact := func(s *string) {
				if *s != "" {
					*s = "***"
				}
			}
			redact(&cfg.Server.JWTSecret)
			redact(&cfg.LLM.APIKey)
			redact(&cfg.Transcription.APIKey)
			redact(&cfg.WhatsApp.Token)
			redact(&cfg.WhatsApp.ClientToken)
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	cfgCmd.AddCommand(initCmd, showCmd)
	return cfgCmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				fmt.Println("store is up to date")
				return nil
			})
		},
	}
}

func commandCmd() *cobra.Command {
	var req commander.Request
	var dryRun bool
	var instanceID, instanceToken, clientToken string
	cmd := &cobra.Command{
		Use:   "command [message]",
		Short: "Run one message through the commander against the local store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				req.Message = args[0]
			}
			if req.Message == "" && req.AudioURL == "" {
				return errors.New("message or --audio-url required")
			}
			req.InstanceCredentials = requestCredentials(instanceID, instanceToken, clientToken)
			return withApp(cmd.Context(), dryRun, func(ctx context.Context, a *app.App) error {
				res, err := a.Commander.Handle(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				for _, reply := range res.Replies {
					fmt.Println(reply)
					fmt.Println()
				}
				if len(res.Tools) > 0 {
					fmt.Println("tools:", strings.Join(res.Tools, ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.TenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&req.UserID, "user", "", "invoking user id")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "sender phone number")
	cmd.Flags().StringVar(&req.AudioURL, "audio-url", "", "audio message URL to transcribe")
	cmd.Flags().StringVar(&req.InstanceName, "instance", "", "channel instance name")
	cmd.Flags().StringVar(&instanceID, "instance-id", "", "chat provider instance id for this request")
	cmd.Flags().StringVar(&instanceToken, "instance-token", "", "chat provider instance token for this request")
	cmd.Flags().StringVar(&clientToken, "client-token", "", "chat provider client token for this request")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "record replies without sending them")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func deadlinesCmd() *cobra.Command {
	dl := &cobra.Command{Use: "deadlines", Short: "Inspect deadlines"}
	var tenantID, filter, responsible string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List pending deadlines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				items, today, err := a.Executor.Deadlines(ctx, tenantID, filter, responsible, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"", "Due", "Title", "Responsible", "Case", "Project"})
				for _, d := range items {
					tw.AppendRow(table.Row{commander.DeadlineMarker(d.DueDate, today), commander.FormatBR(d.DueDate), d.Title, d.ResponsibleName, d.CaseNumber, d.ProjectName})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	list.Flags().StringVar(&filter, "filter", "", "hoje, vencidos, proximos_7_dias or todos")
	list.Flags().StringVar(&responsible, "responsible-id", "", "only deadlines of this user")
	list.Flags().IntVar(&limit, "limit", 0, "maximum rows (default from config)")
	_ = list.MarkFlagRequired("tenant")
	dl.AddCommand(list)
	return dl
}

func messagesCmd() *cobra.Command {
	msgs := &cobra.Command{Use: "messages", Short: "Inspect chat messages"}
	var tenantID string
	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest messages of a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.ListMessages(ctx, tenantID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"At", "Dir", "Phone", "Status", "Body"})
				for _, m := range items {
					status := m.DeliveryStatus
					if m.DeliveryError != "" {
						status += ": " + m.DeliveryError
					}
					tw.AppendRow(table.Row{m.CreatedAt, m.Direction, m.Phone, status, truncate(m.Body, 60)})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	tail.Flags().IntVarP(&n, "n", "n", 20, "number of messages")
	_ = tail.MarkFlagRequired("tenant")
	msgs.AddCommand(tail)
	return msgs
}

func eventsCmd() *cobra.Command {
	evts := &cobra.Command{Use: "events", Short: "Inspect the audit log"}
	var tenantID string
	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest audit events of a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.LatestEvents(ctx, tenantID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "At", "Type", "Entity", "Actor"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	tail.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	_ = tail.MarkFlagRequired("tenant")
	evts.AddCommand(tail)
	return evts
}

func digestCmd() *cobra.Command {
	dg := &cobra.Command{Use: "digest", Short: "Daily deadline digest"}
	var dryRun bool
	run := &cobra.Command{
		Use:   "run",
		Short: "Send the digest to every configured recipient now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), dryRun, func(ctx context.Context, a *app.App) error {
				results := a.Digest.RunNow(ctx)
				if viper.GetBool("json") {
					return printJSON(results)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Tenant", "Phone", "Status", "Error"})
				for _, r := range results {
					tw.AppendRow(table.Row{r.TenantID, r.Phone, r.Status, r.Error})
				}
				tw.Render()
				return nil
			})
		},
	}
	run.Flags().BoolVar(&dryRun, "dry-run", false, "record digests without sending them")
	dg.AddCommand(run)
	return dg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowAnonymous bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the digest scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				if cmd.Flags().Changed("addr") || a.Config.Server.Addr == "" {
					a.Config.Server.Addr = addr
				}
				if cmd.Flags().Changed("base-path") {
					a.Config.Server.BasePath = basePath
				}
				if a.Config.Server.JWTSecret == "" && !allowAnonymous {
					return fmt.Errorf("LEXFLOW_JWT_SECRET is required for bearer auth")
				}
				if allowAnonymous {
					a.Logger.Warn("serving without authentication; use only for local testing")
				}
				handler, err := a.Handler(allowAnonymous)
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: a.Config.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					a.Logger.Info("serving lexflow API",
						zap.String("addr", srv.Addr),
						zap.String("base_path", a.Config.Server.BasePath),
						zap.String("docs", "/docs"))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					if err := a.Digest.Start(gctx); err != nil {
						return err
					}
					<-gctx.Done()
					a.Digest.Stop()
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowAnonymous, "allow-anonymous", false, "accept unauthenticated requests (local testing only)")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// requestCredentials builds per-request credentials from flags when both parts are set.
func requestCredentials(instanceID, token, clientToken string) *whatsapp.Credentials {
	if instanceID == "" || token == "" {
		return nil
	}
	return &whatsapp.Credentials{InstanceID: instanceID, Token: token, ClientToken: clientToken}
}
