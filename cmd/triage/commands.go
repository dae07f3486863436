package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"bugtriage/pkg/config"
	"bugtriage/pkg/eventlog"
	"bugtriage/pkg/fixtures"
	"bugtriage/pkg/golden"
	"bugtriage/pkg/metrics"
	"bugtriage/pkg/persistence"
	"bugtriage/pkg/server"
	"bugtriage/pkg/version"
)

// DefaultGoldenFile is the golden set `triage eval` reads, relative to the project directory.
var DefaultGoldenFile = filepath.Join(config.ProjectConfigDir, "golden.yaml") //nolint:gochecknoglobals

func cmdRun(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet(env, "run", "REPORT... (or report text on stdin)")
	offline := fs.Bool("offline", false, "Use the rule-based decision-maker instead of an LLM")
	asJSON := fs.Bool("json", false, "Print the full trace as JSON")
	showTrace := fs.Bool("trace", false, "Print the execution trace")
	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck // flag errors are printed by the flag set
	}

	query := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(query) == "" {
		raw, err := io.ReadAll(env.stdin)
		if err != nil {
			return fmt.Errorf("failed to read report from stdin: %w", err)
		}
		query = string(raw)
	}
	if strings.TrimSpace(query) == "" {
		fs.Usage()
		return exitError(2)
	}

	a, err := newApp(ctx, env, appOptions{command: "run", offline: *offline})
	if err != nil {
		return err
	}
	defer a.Close()

	trace, runErr := a.orch.RunWithTrace(ctx, query)
	if trace != nil {
		switch {
		case *asJSON:
			if err := writeJSON(env.stdout, trace); err != nil {
				return err
			}
		case *showTrace:
			printTrace(env.stdout, trace)
		case trace.Output != nil:
			printOutput(env.stdout, trace.Output)
		}
		if !*asJSON {
			printUsageLine(env.stdout, a.usage, trace.RunID)
		}
	}
	if runErr != nil {
		return fmt.Errorf("triage failed: %w", runErr)
	}
	return nil
}

func cmdRepl(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet(env, "repl", "")
	offline := fs.Bool("offline", false, "Use the rule-based decision-maker instead of an LLM")
	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck // flag errors are printed by the flag set
	}

	a, err := newApp(ctx, env, appOptions{command: "repl", offline: *offline})
	if err != nil {
		return err
	}
	defer a.Close()

	lines, restore, err := newLineReader(env)
	if err != nil {
		return err
	}
	defer restore()
	return repl(ctx, a, lines)
}

func cmdEval(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet(env, "eval", "")
	file := fs.String("file", "", "Golden set YAML (default <projectdir>/"+DefaultGoldenFile+")")
	concurrency := fs.Int("concurrency", 1, "Cases evaluated in parallel")
	offline := fs.Bool("offline", false, "Use the rule-based decision-maker instead of an LLM")
	asJSON := fs.Bool("json", false, "Print the report as JSON")
	minPercent := fs.Float64("min", 0, "Exit non-zero when the pass rate is below this percentage")
	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck // flag errors are printed by the flag set
	}
	path := *file
	if path == "" {
		path = filepath.Join(env.projectDir, DefaultGoldenFile)
	}

	cases, err := golden.Load(path)
	if err != nil {
		return err //nolint:wrapcheck // golden errors name the file
	}

	a, err := newApp(ctx, env, appOptions{command: "eval", offline: *offline})
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(env.stderr, "⏳ Evaluating %d cases from %s\n", len(cases), path)
	report, err := golden.NewRunner(a.orch, *concurrency).Run(ctx, cases)
	if err != nil {
		return err //nolint:wrapcheck // already wrapped by the runner
	}
	if *asJSON {
		err = writeJSON(env.stdout, report)
	} else {
		err = report.Write(env.stdout)
	}
	if err != nil {
		return err
	}
	if report.Percent() < *minPercent {
		fmt.Fprintf(env.stderr, "❌ Pass rate %.1f%% is below %.1f%%\n", report.Percent(), *minPercent)
		return exitError(1)
	}
	return nil
}

func cmdSeed(_ context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet(env, "seed", "")
	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck // flag errors are printed by the flag set
	}
	if err := config.LoadConfig(env.projectDir); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	if err := fixtures.Seed(cfg.Data, cfg.Triage.TicketPrefix); err != nil {
		return err //nolint:wrapcheck // fixtures errors name the file
	}
	fmt.Fprintf(env.stdout, "✅ Seeded demo data in %s\n", cfg.Data.Dir)
	return nil
}

func cmdServe(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet(env, "serve", "")
	addr := fs.String("addr", "", "Listen address (default from config)")
	maxConcurrency := fs.Int("max-concurrency", 0, "Triage runs in flight (default from config)")
	offline := fs.Bool("offline", false, "Use the rule-based decision-maker instead of an LLM")
	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck // flag errors are printed by the flag set
	}

	a, err := newApp(ctx, env, appOptions{command: "serve", offline: *offline})
	if err != nil {
		return err
	}
	defer a.Close()

	if *addr == "" {
		*addr = a.cfg.Server.ListenAddr
	}
	if *maxConcurrency == 0 {
		*maxConcurrency = a.cfg.Server.MaxConcurrency
	}
	token, err := config.GetSecret(EnvAPIToken)
	if err != nil {
		fmt.Fprintf(env.stderr, "⚠️  %s is not set; the API accepts unauthenticated requests.\n", EnvAPIToken)
	}

	srv := server.New(a.orch, a.store.Ops(), server.Options{
		MaxConcurrency: *maxConcurrency,
		Token:          token,
		Gatherer:       a.registry,
	})
	fmt.Fprintf(env.stderr, "🚀 Serving the triage API on %s (max %d concurrent runs)\n", *addr, *maxConcurrency)
	return srv.ListenAndServe(ctx, *addr) //nolint:wrapcheck // already wrapped by the server
}

func cmdHistory(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet(env, "history", "")
	limit := fs.Int("n", persistence.DefaultListLimit, "Number of runs to list")
	runID := fs.String("id", "", "Show one run with its tool calls")
	status := fs.String("status", "", "Only runs with this status")
	severity := fs.String("severity", "", "Only runs with this severity")
	events := fs.Bool("events", false, "With -id, also print the run's trace events")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck // flag errors are printed by the flag set
	}
	if err := config.LoadConfig(env.projectDir); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}

	db, err := persistence.InitializeDatabase(cfg.Store.DBPath)
	if err != nil {
		return err //nolint:wrapcheck // persistence errors name the database
	}
	defer db.Close()
	ops := persistence.NewDatabaseOperations(db, "")

	if *runID != "" {
		run, err := ops.GetRun(ctx, *runID)
		if err != nil {
			return err //nolint:wrapcheck // carries ErrRunNotFound
		}
		if *asJSON {
			return writeJSON(env.stdout, run)
		}
		printRun(env.stdout, run)
		if *events {
			evs, err := eventlog.RunEvents(cfg.Trace.Dir, *runID)
			if err != nil {
				return err //nolint:wrapcheck // eventlog errors name the file
			}
			fmt.Fprintf(env.stdout, "\nEvents (%d):\n", len(evs))
			for i := range evs {
				printEvent(env.stdout, &evs[i])
			}
		}
		return nil
	}

	runs, err := ops.ListRuns(ctx, persistence.RunFilter{Status: *status, Severity: *severity, Limit: *limit})
	if err != nil {
		return err //nolint:wrapcheck // persistence errors are wrapped
	}
	if *asJSON {
		return writeJSON(env.stdout, runs)
	}
	printRunList(env.stdout, runs)

	counts, err := ops.CountByStatus(ctx)
	if err != nil {
		return err //nolint:wrapcheck // persistence errors are wrapped
	}
	if len(counts) > 0 {
		parts := make([]string, len(counts))
		for i, c := range counts {
			parts[i] = fmt.Sprintf("%s %d", c.Status, c.Count)
		}
		fmt.Fprintf(env.stdout, "\nAll runs: %s\n", strings.Join(parts, ", "))
	}
	return nil
}

func printEvent(w io.Writer, ev *eventlog.Event) {
	line := fmt.Sprintf("  %s %-9s", ev.Time.Local().Format("15:04:05.000"), ev.Kind)
	switch ev.Kind {
	case eventlog.KindState:
		line += fmt.Sprintf(" %s step=%d retry=%d", ev.State, ev.Step, ev.Retry)
	case eventlog.KindToolCall:
		line += fmt.Sprintf(" %s %s %dms", ev.Tool, argsJSON(ev.Args), ev.DurationMS)
		if ev.IsError {
			line += " (error)"
		}
	case eventlog.KindFinish:
		if ev.Output != nil {
			line += " " + ev.Output.Status + " " + ev.Output.ActionTaken
		}
		if ev.Error != "" {
			line += " error: " + ev.Error
		}
	}
	fmt.Fprintln(w, line)
}

func cmdStats(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet(env, "stats", "")
	window := fs.Duration("window", 24*time.Hour, "Trailing window to aggregate")
	url := fs.String("url", "", "Prometheus URL (default from config)")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck // flag errors are printed by the flag set
	}
	if *url == "" {
		if err := config.LoadConfig(env.projectDir); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg, err := config.GetConfig()
		if err != nil {
			return fmt.Errorf("failed to get config: %w", err)
		}
		*url = cfg.Metrics.PrometheusURL
	}

	qs, err := metrics.NewQueryService(*url)
	if err != nil {
		return err //nolint:wrapcheck // already wrapped
	}
	stats, err := qs.GetStats(ctx, *window)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", *url, err)
	}
	if *asJSON {
		return writeJSON(env.stdout, stats)
	}

	w := env.stdout
	fmt.Fprintf(w, "📊 Triage activity over the last %s\n", *window)
	fmt.Fprintf(w, "Runs: %.0f\n", stats.TotalRuns())
	for _, s := range stats.Statuses() {
		fmt.Fprintf(w, "  %-12s %.0f\n", s, stats.RunsByStatus[s])
	}
	fmt.Fprintln(w, "Tool calls:")
	for _, tool := range slices.Sorted(maps.Keys(stats.ToolCalls)) {
		fmt.Fprintf(w, "  %-12s %.0f (%.0f errors)\n", tool, stats.ToolCalls[tool], stats.ToolErrors[tool])
	}
	fmt.Fprintf(w, "p95 run duration: %.2fs\n", stats.P95Seconds)
	if len(stats.LLMTokens) > 0 {
		fmt.Fprintln(w, "LLM tokens:")
		for _, kind := range slices.Sorted(maps.Keys(stats.LLMTokens)) {
			fmt.Fprintf(w, "  %-12s %.0f\n", kind, stats.LLMTokens[kind])
		}
	}
	return nil
}

func cmdVersion(_ context.Context, env *cliEnv, _ []string) error {
	fmt.Fprintf(env.stdout, "triage %s\n", version.Version)
	fmt.Fprintf(env.stdout, "  commit: %s\n", version.Commit)
	fmt.Fprintf(env.stdout, "  built:  %s\n", version.Date)
	return nil
}
