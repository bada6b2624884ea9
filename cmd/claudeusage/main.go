package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/claudeusage/internal/cli"
	"github.com/janekbaraniewski/claudeusage/internal/config"
	"github.com/janekbaraniewski/claudeusage/internal/creds"
	"github.com/janekbaraniewski/claudeusage/internal/engine"
	"github.com/janekbaraniewski/claudeusage/internal/history"
	"github.com/janekbaraniewski/claudeusage/internal/localstats"
	"github.com/janekbaraniewski/claudeusage/internal/version"
)

func newLogger() zerolog.Logger {
	if os.Getenv("CLAUDEUSAGE_DEBUG") != "" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}
	return zerolog.New(io.Discard)
}

func newOrchestrator(cfg config.Config, log zerolog.Logger) *engine.Orchestrator {
	credStore := creds.NewStore(log)

	plan := func() string { return cfg.SubscriptionType }
	var local *localstats.Aggregator
	if cfg.ClaudeDir != "" {
		local = localstats.NewAt(cfg.ClaudeDir, plan, log)
	} else {
		local = localstats.New(plan, log)
	}

	hist := history.New(config.HistoryPath(), log)
	return engine.New(cfg, config.ConfigPath(), credStore, local, hist, log)
}

func main() {
	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Config path: %s\n", config.ConfigPath())
		os.Exit(1)
	}

	root := cobra.Command{
		Use:   "claudeusage",
		Short: "claudeusage tracks Claude rate-limit windows and local token usage from the terminal.",
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	root.AddCommand(newStatusCommand(cfg, log))
	root.AddCommand(newRunCommand(cfg, log))
	root.AddCommand(newHistoryCommand(cfg, log))
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newStatusCommand(cfg config.Config, log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Run one refresh cycle and print current usage.",
		Run: func(cmd *cobra.Command, _ []string) {
			orch := newOrchestrator(cfg, log)
			res := orch.Refresh(cmd.Context())
			fmt.Println(cli.RenderStatus(res, cfg.ShowRemaining))
			if !res.OK() {
				os.Exit(1)
			}
		},
	}
}

func newRunCommand(cfg config.Config, log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll usage continuously at the configured interval.",
		Run: func(_ *cobra.Command, _ []string) {
			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch := newOrchestrator(cfg, log)
			orch.Run(ctx)
		},
	}
}

func newHistoryCommand(cfg config.Config, log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show recent utilization samples.",
		Run: func(_ *cobra.Command, _ []string) {
			orch := newOrchestrator(cfg, log)
			fmt.Println(cli.RenderHistory(orch.History()))
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println("claudeusage " + version.String())
		},
	}
}
