package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/michaelbrown/javarena/internal/config"
	"github.com/michaelbrown/javarena/internal/explain"
	"github.com/michaelbrown/javarena/internal/llm"
	"github.com/michaelbrown/javarena/internal/logging"
	"github.com/michaelbrown/javarena/internal/sandbox"
	"github.com/michaelbrown/javarena/internal/storage"
	"github.com/michaelbrown/javarena/internal/storage/sqlite"
	"github.com/michaelbrown/javarena/internal/toolchain"
	"github.com/michaelbrown/javarena/internal/workspace"
)

// app holds the components every subcommand builds the same way.
type app struct {
	cfg        *config.Config
	log        *slog.Logger
	toolchain  *toolchain.Locator
	builder    *sandbox.Builder
	workspaces *workspace.Manager
	runner     *sandbox.Runner
}

// newApp loads config and wires the build pipeline. Client commands log
// warnings only unless --verbose is set; the server logs at the
// configured level.
func newApp(server bool) (*app, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Log.Level
	if !server {
		level = "warn"
	}
	if verboseFlag {
		level = "debug"
	}
	log := logging.New(level, os.Stderr)
	slog.SetDefault(log)

	tc := toolchain.NewLocator(toolchain.Options{
		JavaHome:   cfg.Toolchain.JavaHome,
		SearchDirs: cfg.Toolchain.SearchDirs,
	}, log)
	policy := sandbox.Policy{
		CompileTimeout: cfg.Sandbox.CompileTimeout,
		RunTimeout:     cfg.Sandbox.RunTimeout,
		SourceFile:     cfg.Sandbox.SourceFile,
		MainClass:      cfg.Sandbox.MainClass,
	}
	builder := sandbox.NewBuilder(tc, policy, log)
	workspaces := workspace.NewManager(cfg.Sandbox.WorkDir, log)

	return &app{
		cfg:        cfg,
		log:        log,
		toolchain:  tc,
		builder:    builder,
		workspaces: workspaces,
		runner:     sandbox.NewRunner(builder, workspaces, log),
	}, nil
}

func (a *app) openStore() (storage.Store, error) {
	store, err := sqlite.Open(a.cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

// reviewer returns the AI reviewer, or nil when it is disabled or has no
// API key.
func (a *app) reviewer() *explain.AIReviewer {
	rc := a.cfg.Review
	if !rc.Enabled {
		return nil
	}
	if rc.APIKey == "" {
		a.log.Warn("ai review enabled but no API key is set; using built-in explanations")
		return nil
	}
	client := llm.NewClient(rc.BaseURL, rc.APIKey, rc.Model, a.log)
	return explain.NewAIReviewer(client, rc.Timeout, a.log)
}
