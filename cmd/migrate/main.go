package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/andresilva/fb-mssql-migrate/internal/config"
	"github.com/andresilva/fb-mssql-migrate/internal/exitcodes"
	"github.com/andresilva/fb-mssql-migrate/internal/journal"
	"github.com/andresilva/fb-mssql-migrate/internal/logging"
	"github.com/andresilva/fb-mssql-migrate/internal/orchestrator"
	"github.com/andresilva/fb-mssql-migrate/internal/pool"
	"github.com/andresilva/fb-mssql-migrate/internal/progress"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "fb-mssql-migrate",
		Usage:   "Firebird to SQL Server bulk data migration",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to configuration file",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Value: "info",
				Usage: "Log verbosity level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "Log format: text or json",
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logging.ParseLevel(c.String("verbosity"))
			if err != nil {
				return err
			}
			logging.SetLevel(level)
			if c.String("log-format") == "json" {
				logging.SetFormat("json")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Migrate tables from the source to the destination",
				Action: runMigration,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "tables",
						Usage: "Comma-separated list of tables (default: all after filters)",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of concurrent table migrations",
					},
					&cli.BoolFlag{
						Name:  "interactive",
						Usage: "Prompt on records and constraints that need manual fixes",
					},
					&cli.BoolFlag{
						Name:  "progress-json",
						Usage: "Emit JSON progress lines on stderr for automation",
					},
				},
			},
			{
				Name:   "clear",
				Usage:  "Delete the rows of every destination table",
				Action: clearDestination,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Skip the confirmation prompt",
					},
				},
			},
			{
				Name:   "count",
				Usage:  "Compare row counts between source and destination",
				Action: countRecords,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "tables",
						Usage: "Comma-separated list of tables (default: all after filters)",
					},
				},
			},
			{
				Name:   "tables",
				Usage:  "List the source tables that would be migrated",
				Action: listTables,
			},
			{
				Name:   "test-connection",
				Usage:  "Check connectivity and report engine versions",
				Action: testConnection,
			},
			{
				Name:   "history",
				Usage:  "List recent migration runs, or details of one run",
				Action: showHistory,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run",
						Usage: "Show per-table details for a specific run ID",
					},
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "Number of runs to list",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		code := exitcodes.FromError(err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(code)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("workers") {
		cfg.Settings.Workers = c.Int("workers")
	}
	return cfg, nil
}

// sqlLogger records every executed statement at debug level.
func sqlLogger(stmt string) {
	logging.Debug("SQL: %s", stmt)
}

func openOrchestrator(ctx context.Context, cfg *config.Config) (*orchestrator.Orchestrator, error) {
	orch, err := orchestrator.New(ctx, cfg, sqlLogger)
	if err != nil {
		return nil, err
	}
	return orch, nil
}

// signalContext cancels on SIGINT/SIGTERM, also wiring the orchestrator's
// explicit cancel so workers stop between pages.
func signalContext(parent context.Context, orch *orchestrator.Orchestrator) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted. Finishing the current pages and restoring the destination...")
			orch.Cancel()
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func splitTables(arg string) []string {
	if arg == "" {
		return nil
	}
	var out []string
	for _, name := range strings.Split(arg, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func runMigration(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	orch, err := openOrchestrator(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer orch.Close()

	if c.Bool("interactive") || cfg.Settings.RepairMode == "wait" {
		con := newConsole()
		orch.SetRecordResolver(con.resolveRecord)
		orch.SetConstraintResolver(con.resolveConstraint)
	}

	if c.Bool("progress-json") {
		reporter := progress.NewJSONReporter(os.Stderr, 500*time.Millisecond)
		defer reporter.Close()
		orch.SetReporter(reporter)
	}

	ctx, cancel := signalContext(context.Background(), orch)
	defer cancel()

	summary, err := orch.Run(ctx, splitTables(c.String("tables")))
	if summary != nil && summary.ReportPath != "" {
		logging.Info("HTML report: %s", summary.ReportPath)
	}
	return err
}

func clearDestination(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if !c.Bool("yes") {
		fmt.Fprintf(os.Stderr, "This deletes every row of every table in %s. Type the database name to continue: ",
			cfg.Destination.Database)
		var answer string
		fmt.Scanln(&answer)
		if answer != cfg.Destination.Database {
			return fmt.Errorf("aborted: confirmation did not match")
		}
	}

	orch, err := openOrchestrator(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer orch.Close()

	ctx, cancel := signalContext(context.Background(), orch)
	defer cancel()

	return orch.ClearDestination(ctx)
}

func countRecords(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	orch, err := openOrchestrator(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer orch.Close()

	counts, err := orch.CountRecords(context.Background(), splitTables(c.String("tables")))
	if err != nil {
		return err
	}

	fmt.Printf("%-40s %15s %15s %10s\n", "Table", "Source", "Destination", "Match")
	for _, count := range counts {
		match := "yes"
		if count.Source != count.Destination {
			match = "NO"
		}
		fmt.Printf("%-40s %15d %15d %10s\n", count.Table, count.Source, count.Destination, match)
	}
	return nil
}

func listTables(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	orch, err := openOrchestrator(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer orch.Close()

	tables, err := orch.Tables(context.Background())
	if err != nil {
		return err
	}
	for _, table := range tables {
		fmt.Println(table)
	}
	fmt.Fprintf(os.Stderr, "%d table(s)\n", len(tables))
	return nil
}

func testConnection(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()

	src, err := pool.OpenSource(ctx, &cfg.Source, sqlLogger)
	if err != nil {
		return fmt.Errorf("source connection failed: %w", err)
	}
	defer src.Close()
	if v, err := src.Version(ctx); err == nil {
		fmt.Printf("source      %s (%s)\n", cfg.Source.Database, v)
	} else {
		fmt.Printf("source      %s (version unavailable: %v)\n", cfg.Source.Database, err)
	}

	dest, err := pool.OpenDestination(ctx, &cfg.Destination, sqlLogger)
	if err != nil {
		return fmt.Errorf("destination connection failed: %w", err)
	}
	defer dest.Close()
	if v, err := dest.Version(ctx); err == nil {
		fmt.Printf("destination %s (%s)\n", cfg.Destination.Database, v)
	} else {
		fmt.Printf("destination %s (version unavailable: %v)\n", cfg.Destination.Database, err)
	}

	if cfg.Model != nil {
		model, err := pool.OpenMetadata(ctx, cfg.Model, sqlLogger)
		if err != nil {
			return fmt.Errorf("model connection failed: %w", err)
		}
		defer model.Close()
		if v, err := model.Version(ctx); err == nil {
			fmt.Printf("model       %s (%s)\n", cfg.Model.Database, v)
		} else {
			fmt.Printf("model       %s (version unavailable: %v)\n", cfg.Model.Database, err)
		}
	}

	fmt.Println("all connections OK")
	return nil
}

func showHistory(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	jnl, err := journal.New(cfg.Settings.DataDir)
	if err != nil {
		return err
	}
	defer jnl.Close()

	if runID := c.String("run"); runID != "" {
		records, err := jnl.RunTables(runID)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Printf("No tables recorded for run %s\n", runID)
			return nil
		}
		fmt.Printf("%-40s %-10s %12s %8s %10s  %s\n", "Table", "Status", "Rows", "Fixes", "Duration", "Error")
		for _, rec := range records {
			fmt.Printf("%-40s %-10s %12d %8d %10s  %s\n",
				rec.Table, rec.Status, rec.Rows, rec.ManualFixes, rec.Duration.Round(time.Millisecond), rec.Error)
		}
		return nil
	}

	runs, err := jnl.RecentRuns(c.Int("limit"))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}
	fmt.Printf("%-10s %-20s %-20s %-10s %s\n", "Run", "Started", "Completed", "Status", "Source")
	for _, run := range runs {
		completed := "-"
		if run.CompletedAt != nil {
			completed = run.CompletedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-10s %-20s %-20s %-10s %s\n",
			run.ID, run.StartedAt.Format("2006-01-02 15:04:05"), completed, run.Status, run.Source)
	}
	return nil
}
