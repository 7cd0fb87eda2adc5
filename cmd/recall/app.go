package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jeanpaul/recall/internal/analytics"
	"github.com/jeanpaul/recall/internal/config"
	"github.com/jeanpaul/recall/internal/memory"
	"github.com/jeanpaul/recall/internal/metrics"
	"github.com/jeanpaul/recall/internal/tokenizer"
	"github.com/jeanpaul/recall/internal/tools"
)

// app wires the store, the tool log and the facade from configuration.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *memory.FileStore
	toolLog *analytics.Log
	metrics *metrics.Metrics
	facade  *tools.Facade
}

func openApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	store, err := memory.Open(ctx, memory.Options{
		Path:           cfg.DocumentPath,
		LockTimeout:    cfg.Store.LockTimeout,
		LockRetryDelay: cfg.Store.LockRetryDelay,
		StaleAfter:     cfg.Store.StaleAfter,
		Limits:         cfg.Limits(),
		TestMode:       cfg.TestMode,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("open memory document: %w", err)
	}
	toolLog, err := analytics.OpenLog(cfg.ToolLogPath, analytics.LogOptions{
		LockTimeout:    cfg.Store.LockTimeout,
		LockRetryDelay: cfg.Store.LockRetryDelay,
		StaleAfter:     cfg.Store.StaleAfter,
		Logger:         log,
		TestMode:       cfg.TestMode,
	})
	if err != nil {
		return nil, fmt.Errorf("open tool log: %w", err)
	}

	a := &app{cfg: cfg, log: log, store: store, toolLog: toolLog}
	var observer tools.Observer
	if cfg.Server.Metrics {
		a.metrics = metrics.New()
		observer = a.metrics
	}
	a.facade = tools.New(tools.Options{
		Store:    store,
		Recorder: toolLog,
		Limits:   cfg.Limits(),
		Counter:  tokenizer.ByName(cfg.Analytics.Tokenizer, cfg.Analytics.Encoding),
		Observer: observer,
		Logger:   log,
	})
	return a, nil
}

func (a *app) summaryOptions() analytics.SummaryOptions {
	return analytics.SummaryOptions{Windows: a.cfg.Analytics.Windows, TopK: a.cfg.Analytics.TopK}
}
