package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trackline/internal/audit"
	"trackline/internal/config"
	"trackline/internal/db"
	"trackline/internal/domain"
	"trackline/internal/migrate"
	"trackline/internal/repo"
	"trackline/internal/server"
	"trackline/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Trackline CLI",
	Long: `Trackline tracks client engagements as projects moving through a fixed pipeline.
Core concepts:
- Workspace: your .trackline directory holding the database; trackline.yml configures the server and automaton.
- Project: one client engagement. It sits in exactly one bucket (pipeline stage) and carries a status and a due date.
- Buckets: the fixed board columns, from "Pool" through concept and offer stages to "Projekt in Nacharbeitung".
- Automaton: 'tl run' evaluates every open project once and advances it when its due date has passed or its status matches a trigger. Each transition is appended to the workflow log.
- Templates: named mail templates; when a transition references one, the dispatch is recorded in the workflow log.
- Law firms and clerks: the clients and their contacts; the dashboard aggregates projects per firm.`,
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
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TRACKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(firmCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func runCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the workflow automaton once",
		Long:  "Evaluates every open project against the transition rules and applies at most one transition per project. Failures on single projects are counted, not fatal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cfg, err := config.Load(viper.GetString("workspace"))
				if err != nil {
					return err
				}
				runner := &workflow.Runner{
					Projects:       r,
					Templates:      r,
					Audit:          audit.Writer{DB: r.DB},
					ProjectTimeout: cfg.ProjectTimeout(),
				}
				if at != "" {
					t, err := time.Parse("2006-01-02", at)
					if err != nil {
						return fmt.Errorf("invalid --at date: %w", err)
					}
					runner.Now = func() time.Time { return t }
				}
				sum, err := runner.RunOnce(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"processed": sum.Processed,
						"failed":    sum.Failed,
						"skipped":   sum.Skipped,
						"result":    sum.Result(),
					})
				}
				fmt.Printf("Result: %s (processed=%d failed=%d skipped=%d)\n", sum.Result(), sum.Processed, sum.Failed, sum.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate rules as of this date (YYYY-MM-DD) instead of today")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectLogsCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Bucket", "Status", "Due"})
				for _, p := range items {
					due := ""
					if p.DueDate != nil {
						due = *p.DueDate
					}
					tw.AppendRow(table.Row{p.ID, p.Title, p.Bucket, p.Status, due})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Bucket, "bucket", "", "bucket filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.LawFirmID, "firm", "", "law firm filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var title, firmID, projectType, bucket, status, priority, startDate, dueDate, notes string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				now := time.Now().UTC().Format(time.RFC3339)
				p := domain.Project{
					ID:        newID(),
					Title:     title,
					Bucket:    string(domain.ParseBucket(bucket)),
					Status:    status,
					Priority:  priority,
					Notes:     notes,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if firmID != "" {
					p.LawFirmID = &firmID
				}
				if projectType != "" {
					p.ProjectType = &projectType
				}
				if startDate != "" {
					p.StartDate = &startDate
				}
				if dueDate != "" {
					p.DueDate = &dueDate
				}
				if p.Priority == "" {
					p.Priority = "normal"
				}
				if err := r.InsertProject(ctx, p); err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().StringVar(&firmID, "firm", "", "law firm id")
	cmd.Flags().StringVar(&projectType, "type", "", "project type (Selbstbucher, Auftragsbuchhaltung)")
	cmd.Flags().StringVar(&bucket, "bucket", "", "initial bucket (defaults to Pool)")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dueDate, "due-date", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var title, firmID, projectType, bucket, status, priority, startDate, dueDate, notes string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if cmd.Flags().Changed("bucket") && !domain.KnownBucket(domain.Bucket(bucket)) {
					return fmt.Errorf("invalid bucket %q", bucket)
				}
				var patch repo.ProjectPatch
				set := func(name string, dst **string, v *string) {
					if cmd.Flags().Changed(name) {
						*dst = v
					}
				}
				set("title", &patch.Title, &title)
				set("firm", &patch.LawFirmID, &firmID)
				set("type", &patch.ProjectType, &projectType)
				set("bucket", &patch.Bucket, &bucket)
				set("status", &patch.Status, &status)
				set("priority", &patch.Priority, &priority)
				set("start-date", &patch.StartDate, &startDate)
				set("due-date", &patch.DueDate, &dueDate)
				set("notes", &patch.Notes, &notes)
				if err := r.PatchProject(ctx, id, patch); err != nil {
					return err
				}
				p, err := r.GetProject(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().StringVar(&firmID, "firm", "", "law firm id (empty clears)")
	cmd.Flags().StringVar(&projectType, "type", "", "project type")
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date (empty clears)")
	cmd.Flags().StringVar(&dueDate, "due-date", "", "due date (empty clears)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteProject(ctx, args[0])
			})
		},
	}
	return cmd
}

func projectLogsCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Show a project's workflow log, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				entries, err := r.ListProjectLogs(ctx, args[0], n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Action", "Details"})
				for _, e := range entries {
					tw.AppendRow(table.Row{e.CreatedAt, e.Action, e.DetailsJSON})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	return cmd
}

func boardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the pipeline board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx, repo.ProjectFilters{})
				if err != nil {
					return err
				}
				byBucket := map[domain.Bucket][]domain.Project{}
				for _, p := range items {
					b := domain.ParseBucket(p.Bucket)
					byBucket[b] = append(byBucket[b], p)
				}
				if viper.GetBool("json") {
					out := make([]map[string]any, 0, len(domain.Buckets))
					for _, b := range domain.Buckets {
						out = append(out, map[string]any{"name": string(b), "projects": byBucket[b]})
					}
					return printJSON(out)
				}
				for _, b := range domain.Buckets {
					fmt.Printf("%s (%d)\n", b, len(byBucket[b]))
					for _, p := range byBucket[b] {
						due := ""
						if p.DueDate != nil {
							due = " due " + *p.DueDate
						}
						fmt.Printf("  - %s [%s]%s\n", p.Title, p.Status, due)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func firmCmd() *cobra.Command {
	firm := &cobra.Command{Use: "firm", Short: "Manage law firms"}
	firm.AddCommand(firmListCmd())
	firm.AddCommand(firmCreateCmd())
	firm.AddCommand(firmShowCmd())
	firm.AddCommand(firmDeleteCmd())
	firm.AddCommand(clerkCmd())
	return firm
}

func firmListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List law firms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				firms, err := r.ListLawFirms(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(firms)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Contact"})
				for _, f := range firms {
					tw.AppendRow(table.Row{f.ID, f.Name, f.ContactPerson})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func firmCreateCmd() *cobra.Command {
	var name, contact, info string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create law firm",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				f := domain.LawFirm{
					ID:            newID(),
					Name:          name,
					ContactPerson: contact,
					GeneralInfo:   info,
					CreatedAt:     time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertLawFirm(ctx, f); err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "firm name")
	cmd.Flags().StringVar(&contact, "contact", "", "contact person")
	cmd.Flags().StringVar(&info, "info", "", "general info")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func firmShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a law firm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				f, err := r.GetLawFirm(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	return cmd
}

func firmDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a law firm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteLawFirm(ctx, args[0])
			})
		},
	}
	return cmd
}

func clerkCmd() *cobra.Command {
	clerk := &cobra.Command{Use: "clerk", Short: "Manage clerks"}
	clerk.AddCommand(clerkAddCmd())
	clerk.AddCommand(clerkListCmd())
	return clerk
}

func clerkAddCmd() *cobra.Command {
	var firmID, name, email, phone string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add clerk to a law firm",
		RunE: func(cmd *cobra.Command, args []string) error {
			if firmID == "" || name == "" {
				return fmt.Errorf("--firm and --name required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetLawFirm(ctx, firmID); err != nil {
					return err
				}
				c := domain.Clerk{
					ID:        newID(),
					LawFirmID: firmID,
					Name:      name,
					Email:     email,
					Phone:     phone,
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertClerk(ctx, c); err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&firmID, "firm", "", "law firm id")
	cmd.Flags().StringVar(&name, "name", "", "clerk name")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&phone, "phone", "", "phone")
	return cmd
}

func clerkListCmd() *cobra.Command {
	var firmID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clerks of a law firm",
		RunE: func(cmd *cobra.Command, args []string) error {
			if firmID == "" {
				return fmt.Errorf("--firm required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				clerks, err := r.ListClerks(ctx, firmID)
				if err != nil {
					return err
				}
				return printJSONOrTable(clerks)
			})
		},
	}
	cmd.Flags().StringVar(&firmID, "firm", "", "law firm id")
	return cmd
}

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{Use: "template", Short: "Manage notification templates"}
	tpl.AddCommand(templateListCmd())
	tpl.AddCommand(templateCreateCmd())
	tpl.AddCommand(templateDeleteCmd())
	return tpl
}

func templateListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				templates, err := r.ListTemplates(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(templates)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Subject"})
				for _, t := range templates {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Subject})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func templateCreateCmd() *cobra.Command {
	var name, subject, body string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t := domain.Template{
					ID:      newID(),
					Name:    name,
					Subject: subject,
					Body:    body,
				}
				if err := r.InsertTemplate(ctx, t); err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "template name (exact automaton match)")
	cmd.Flags().StringVar(&subject, "subject", "", "mail subject")
	cmd.Flags().StringVar(&body, "body", "", "mail body")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func templateDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteTemplate(ctx, args[0])
			})
		},
	}
	return cmd
}

func dashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Project counts per law firm",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				summary, err := r.DashboardSummary(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(summary)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Firm", "Projects", "Open"})
				for _, s := range summary {
					tw.AppendRow(table.Row{s.LawFirmName, s.ProjectCount, s.OpenCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Workflow log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Latest workflow log entries across projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				entries, err := r.LatestLogs(ctx, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				plaintext := "tlk_" + strings.ReplaceAll(newID(), "-", "")
				k := domain.APIKey{
					ID:        newID(),
					ActorID:   viper.GetString("actor-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(plaintext),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, k); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":       k.ID,
					"actor_id": k.ActorID,
					"key":      plaintext,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			r := repo.Repo{DB: conn}
			runner := &workflow.Runner{
				Projects:       r,
				Templates:      r,
				Audit:          audit.Writer{DB: conn},
				ProjectTimeout: cfg.ProjectTimeout(),
			}
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("TRACKLINE_JWT_SECRET"),
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
			}
			if authCfg.JWTSecret == "" {
				authCfg.JWTSecret = cfg.Auth.JWTSecret
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("TRACKLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Repo:     r,
				Runner:   runner,
				BasePath: cfg.Server.BasePath,
				Auth:     authCfg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Trackline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", cfg.Server.Addr, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8484", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api/v1", "API base path")
	return cmd
}

// --- helpers ---

func newID() string {
	return uuid.New().String()
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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
