package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"bugtriage/internal/mocks"
	"bugtriage/pkg/agent"
	llmmetrics "bugtriage/pkg/agent/middleware/metrics"
	"bugtriage/pkg/chatlog"
	"bugtriage/pkg/config"
	"bugtriage/pkg/eventlog"
	"bugtriage/pkg/issues"
	"bugtriage/pkg/logx"
	"bugtriage/pkg/metrics"
	"bugtriage/pkg/persistence"
	"bugtriage/pkg/tools"
	"bugtriage/pkg/tracker"
	"bugtriage/pkg/triage"
)

// offlineModel names the rule-based decision-maker in logs and session records.
const offlineModel = "offline-policy"

// app is a fully wired orchestrator plus the sinks observing it.
type app struct {
	cfg      config.Config
	orch     *triage.Orchestrator
	catalog  *tools.Catalog
	usage    *llmmetrics.InternalRecorder
	registry *prometheus.Registry
	store    *persistence.Store
	events   *eventlog.Writer
	logger   *logx.Logger
}

type appOptions struct {
	command string
	// offline swaps the LLM for the built-in rule-based decision-maker.
	offline bool
}

// loadProject loads the project config and unlocks the secrets file when one exists.
func loadProject(env *cliEnv) (config.Config, error) {
	if err := config.LoadConfig(env.projectDir); err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := unlockSecrets(env); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get config: %w", err)
	}
	return cfg, nil
}

// newApp wires config -> stores -> tool catalog -> decision-maker -> orchestrator, with the
// event trace, run history and Prometheus recorder attached as observers.
func newApp(ctx context.Context, env *cliEnv, opts appOptions) (*app, error) {
	cfg, err := loadProject(env)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		usage:    llmmetrics.NewInternalRecorder(),
		registry: prometheus.NewRegistry(),
		logger:   logx.NewLogger("cli"),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if a.catalog, err = newCatalog(&cfg); err != nil {
		return nil, err
	}

	dm, model, err := a.newDecisionMaker(env.stderr, opts.offline)
	if err != nil {
		return nil, err
	}

	observers := triage.Observers{metrics.NewRunRecorder(a.registry)}
	if cfg.Trace.Enabled {
		if a.events, err = eventlog.NewWriter(cfg.Trace.Dir); err != nil {
			return nil, fmt.Errorf("failed to open event trace: %w", err)
		}
		observers = append(observers, a.events)
	}
	if a.store, err = persistence.Open(ctx, cfg.Store.DBPath, opts.command, model); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	observers = append(observers, a.store)

	a.orch = triage.New(dm, a.catalog, triage.Options{
		MaxRetries:    cfg.Triage.MaxRetries,
		TicketPrefix:  cfg.Triage.TicketPrefix,
		SummaryMaxLen: cfg.Triage.SummaryMaxLen,
		RunTimeout:    cfg.Triage.RunTimeout,
		Observer:      observers,
	})
	return a, nil
}

func newCatalog(cfg *config.Config) (*tools.Catalog, error) {
	var src issues.Source
	if cfg.GitHub.Enabled {
		gh, err := issues.NewGitHubSource(config.GetGitHubToken(), cfg.GitHub.Owner, cfg.GitHub.Repo)
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub issue source: %w", err)
		}
		src = gh
	} else {
		src = issues.NewFileSource(cfg.Data.IssuesPath())
	}

	catalog, err := tools.NewTriageCatalog(cfg.Resilience.ToolTimeout,
		tracker.NewStore(cfg.Data.TicketsPath(), cfg.Triage.TicketPrefix),
		chatlog.NewStore(cfg.Data.ChatPath()),
		src)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool catalog: %w", err)
	}
	return catalog, nil
}

func (a *app) newDecisionMaker(stderr io.Writer, offline bool) (triage.DecisionMaker, string, error) {
	if offline {
		a.logger.Info("Using the offline rule-based decision-maker")
		return mocks.NewPolicyDecider(a.cfg.Triage.TicketPrefix), offlineModel, nil
	}

	if missing := config.MissingCredentials(); len(missing) == 3 {
		fmt.Fprintf(stderr, "⚠️  No provider credential found (%v). Only Ollama models will work.\n", missing)
	}

	recorder := llmmetrics.Tee(a.usage, llmmetrics.NewPrometheusRecorder(a.registry))
	client, err := agent.NewLLMClientFactory(a.cfg, recorder).CreateClient()
	if err != nil {
		return nil, "", fmt.Errorf("failed to create LLM client: %w", err)
	}
	dm := agent.NewDecider(client, a.catalog.Definitions(),
		agent.WithMaxTokens(a.cfg.Model.MaxTokens),
		agent.WithTemperature(a.cfg.Model.Temperature))
	return dm, a.cfg.Model.Name, nil
}

// Close flushes the event trace and ends the history session.
func (a *app) Close() {
	var errs []error
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Shutdown was not clean: %v", err)
	}
}
