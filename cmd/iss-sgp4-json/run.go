package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/komasaru/iss-sgp4-json/internal/epoch"
	"github.com/komasaru/iss-sgp4-json/internal/track"
)

// startInstant returns the local civil start time from the optional
// argument, or now.
func (a *app) startInstant(args []string, now time.Time) (epoch.Instant, error) {
	if len(args) == 0 {
		return a.pipelineConverter().LocalNow(now), nil
	}
	start, err := epoch.ParseCompact(args[0])
	if err != nil {
		return epoch.Instant{}, fmt.Errorf("start time: %w", err)
	}
	return start, nil
}

func (a *app) runTrack(cmd *cobra.Command, args []string) error {
	start, err := a.startInstant(args, time.Now())
	if err != nil {
		return err
	}

	p, err := loadPipeline(a.cfg, a.logger, true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(background(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen := track.NewGenerator(p.resolver, p.store, p.pool, a.trackConfig(), a.logger)
	doc, err := gen.Generate(ctx, start)
	if err != nil {
		return err
	}
	if a.cfg.Output == stdoutOutput {
		if err := track.WriteJSON(cmd.OutOrStdout(), doc); err != nil {
			return fmt.Errorf("writing track to stdout: %w", err)
		}
		a.logger.Info("track written", "output", "stdout", "counts", doc.Counts)
		return nil
	}
	if err := track.WriteFile(a.cfg.Output, doc); err != nil {
		return err
	}

	a.logger.Info("track written", "output", a.cfg.Output, "counts", doc.Counts)
	return nil
}

func (a *app) trackConfig() track.Config {
	return track.Config{
		NoradID:    a.cfg.NoradID,
		Days:       a.cfg.Days,
		Step:       a.cfg.Step,
		SkipErrors: a.cfg.SkipErrors,
	}
}

// background returns a context for commands that were not given one.
func background(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
