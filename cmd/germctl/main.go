// germctl is the read-only control-plane CLI for the Germinal orchestrator.
// It inspects state in the orchestrator's database; no command mutates
// anything.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gopkg.in/yaml.v3"

	"github.com/germinal-ai/germinal/internal/domain/repository"
	"github.com/germinal-ai/germinal/internal/infrastructure/config"
	"github.com/germinal-ai/germinal/internal/infrastructure/persistence"
)

const cliName = "germctl"

var (
	flagDB     string
	flagJSON   bool
	flagLimit  int
	flagStatus string
	flagSource string
	flagProj   string
	flagSearch string
	flagRole   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           cliName,
		Short:         "Inspect the Germinal orchestrator's state (read-only)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Path to the orchestrator database")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Raw JSON output")
	rootCmd.PersistentFlags().IntVar(&flagLimit, "limit", 20, "Maximum rows to show")

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "List events from the event queue",
		RunE:  runEvents,
	}
	eventsCmd.Flags().StringVar(&flagStatus, "status", "", "Filter by status (pending|processing|done|failed)")
	eventsCmd.Flags().StringVar(&flagSource, "source", "", "Filter by source")
	eventsCmd.Flags().StringVar(&flagProj, "project", "", "Filter by project id")
	eventsCmd.Flags().StringVar(&flagSearch, "search", "", "Substring match on payload")

	invocationsCmd := &cobra.Command{
		Use:   "invocations",
		Short: "List agent invocations",
		RunE:  runInvocations,
	}
	invocationsCmd.Flags().StringVar(&flagStatus, "status", "", "Filter by status (running|done|failed)")
	invocationsCmd.Flags().StringVar(&flagProj, "project", "", "Filter by project id")
	invocationsCmd.Flags().StringVar(&flagSearch, "search", "", "Substring match on response")

	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "List tool calls",
		RunE:  runTools,
	}
	toolsCmd.Flags().StringVar(&flagStatus, "status", "", "Filter by status (pending|executed|failed|denied)")
	toolsCmd.Flags().StringVar(&flagSearch, "invocation", "", "Filter by invocation id")

	historyCmd := &cobra.Command{
		Use:   "history <project-id>",
		Short: "Show conversation history for a project",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}
	historyCmd.Flags().StringVar(&flagRole, "role", "", "Filter by role (user|agent|tool)")

	approvalsCmd := &cobra.Command{
		Use:   "approvals",
		Short: "List human-approval requests",
		RunE:  runApprovals,
	}
	approvalsCmd.Flags().StringVar(&flagStatus, "response", "", "Filter by response (approved|denied|pending)")

	rootCmd.AddCommand(
		eventsCmd,
		invocationsCmd,
		toolsCmd,
		&cobra.Command{
			Use:   "projects",
			Short: "List projects and their context summaries",
			RunE:  runProjects,
		},
		historyCmd,
		approvalsCmd,
		&cobra.Command{
			Use:   "show <kind> <id>",
			Short: "Show full detail for one record (kind: event|invocation|tool|project|approval|task)",
			Args:  cobra.ExactArgs(2),
			RunE:  runShow,
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show row counts for all tables",
			RunE:  runStats,
		},
		&cobra.Command{
			Use:   "config",
			Short: "Print the effective configuration as YAML",
			RunE:  runConfig,
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openDB resolves the database path (--db > ORCHESTRATOR_DB > defaults) and
// opens a read-only connection.
func openDB() (*gorm.DB, error) {
	path := findDB()
	if path == "" {
		return nil, fmt.Errorf("database not found; use --db or set ORCHESTRATOR_DB")
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}

func findDB() string {
	candidates := []string{
		flagDB,
		os.Getenv("ORCHESTRATOR_DB"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".local", "germinal", "orchestrator.db"))
	}
	wd, _ := os.Getwd()
	candidates = append(candidates, filepath.Join(wd, "orchestrator.db"))

	for _, path := range candidates {
		if path == "" {
			continue
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// === subcommands ===

func runEvents(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	rows, err := persistence.NewGormEventRepository(db).List(context.Background(), repository.EventFilter{
		Status:    flagStatus,
		Source:    flagSource,
		ProjectID: flagProj,
		Search:    flagSearch,
		Limit:     flagLimit,
	})
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(rows)
	}
	table := newTable("ID", "SOURCE", "TYPE", "PRIO", "STATUS", "CREATED")
	for _, e := range rows {
		table.row(statusColor(string(e.Status)),
			e.ID, e.Source, e.Type, fmt.Sprint(e.Priority), string(e.Status), timestamp(e.CreatedAt))
	}
	table.flush()
	return nil
}

func runInvocations(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	rows, err := persistence.NewGormInvocationRepository(db).List(context.Background(), repository.InvocationFilter{
		Status:    flagStatus,
		ProjectID: flagProj,
		Search:    flagSearch,
		Limit:     flagLimit,
	})
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(rows)
	}
	table := newTable("ID", "AGENT", "MODEL", "STATUS", "STARTED", "RESPONSE")
	for _, inv := range rows {
		table.row(statusColor(string(inv.Status)),
			inv.ID, inv.AgentType, truncate(inv.Model, 24), string(inv.Status),
			timestamp(inv.StartedAt), truncate(inv.Response, 48))
	}
	table.flush()
	return nil
}

func runTools(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	rows, err := persistence.NewGormToolCallRepository(db).List(context.Background(), repository.ToolCallFilter{
		Status:       flagStatus,
		InvocationID: flagSearch,
		Limit:        flagLimit,
	})
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(rows)
	}
	table := newTable("ID", "TOOL", "RISK", "STATUS", "CREATED")
	for _, tc := range rows {
		table.row(statusColor(string(tc.Status)),
			tc.ID, tc.ToolName, tc.RiskLevel, string(tc.Status), timestamp(tc.CreatedAt))
	}
	table.flush()
	return nil
}

func runProjects(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	rows, err := persistence.NewGormProjectRepository(db).List(context.Background(), flagLimit)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(rows)
	}
	table := newTable("ID", "NAME", "BRIEF", "SUMMARY", "UPDATED")
	for _, p := range rows {
		table.row("", p.ID, p.Name, truncate(p.Brief, 32), truncate(p.Summary, 48), timestamp(p.UpdatedAt))
	}
	table.flush()
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	rows, err := persistence.NewGormHistoryRepository(db).ListByProject(context.Background(), args[0], repository.HistoryFilter{
		Role:  flagRole,
		Limit: flagLimit,
	})
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(rows)
	}
	table := newTable("ID", "ROLE", "CONTENT", "CREATED")
	for _, h := range rows {
		table.row("", h.ID, string(h.Role), truncate(h.Content, 64), timestamp(h.CreatedAt))
	}
	table.flush()
	return nil
}

func runApprovals(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	rows, err := persistence.NewGormApprovalRepository(db).List(context.Background(), repository.ApprovalFilter{
		Response: flagStatus,
		Limit:    flagLimit,
	})
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(rows)
	}
	table := newTable("ID", "TOOL_CALL", "RESPONSE", "CREATED", "RESPONDED")
	for _, a := range rows {
		response := string(a.Response)
		if response == "" {
			response = "pending"
		}
		responded := ""
		if a.RespondedAt != nil {
			responded = timestamp(*a.RespondedAt)
		}
		table.row(statusColor(response), a.ID, a.ToolCallID, response, timestamp(a.CreatedAt), responded)
	}
	table.flush()
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	kind, id := args[0], args[1]
	ctx := context.Background()

	var record interface{}
	switch kind {
	case "event":
		record, err = persistence.NewGormEventRepository(db).FindByID(ctx, id)
	case "invocation":
		record, err = persistence.NewGormInvocationRepository(db).FindByID(ctx, id)
	case "tool":
		record, err = persistence.NewGormToolCallRepository(db).FindByID(ctx, id)
	case "project":
		record, err = persistence.NewGormProjectRepository(db).FindByID(ctx, id)
	case "approval":
		record, err = persistence.NewGormApprovalRepository(db).FindByID(ctx, id)
	case "task":
		record, err = persistence.NewGormTaskRepository(db).FindByID(ctx, id)
	default:
		return fmt.Errorf("unknown kind %q (want event|invocation|tool|project|approval|task)", kind)
	}
	if err != nil {
		return err
	}
	return printJSON(record)
}

func runStats(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	ctx := context.Background()

	counts := []struct {
		name  string
		count func() (int64, error)
	}{
		{"events", func() (int64, error) { return persistence.NewGormEventRepository(db).Count(ctx) }},
		{"invocations", func() (int64, error) { return persistence.NewGormInvocationRepository(db).Count(ctx) }},
		{"tool_calls", func() (int64, error) { return persistence.NewGormToolCallRepository(db).Count(ctx) }},
		{"approvals", func() (int64, error) { return persistence.NewGormApprovalRepository(db).Count(ctx) }},
		{"projects", func() (int64, error) { return persistence.NewGormProjectRepository(db).Count(ctx) }},
		{"history", func() (int64, error) { return persistence.NewGormHistoryRepository(db).Count(ctx) }},
		{"tasks", func() (int64, error) { return persistence.NewGormTaskRepository(db).Count(ctx) }},
	}

	stats := map[string]int64{}
	for _, c := range counts {
		n, err := c.count()
		if err != nil {
			return err
		}
		stats[c.name] = n
	}
	if flagJSON {
		return printJSON(stats)
	}
	for _, c := range counts {
		fmt.Printf("%-12s %d\n", c.name, stats[c.name])
	}
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}
