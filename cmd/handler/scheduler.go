package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rocjay1/rm-recurring/internal/handler"
	"github.com/rocjay1/rm-recurring/internal/recurring"
)

// startScheduler runs due-payment processing on an in-process cron schedule,
// for deployments without a Functions timer trigger. Overlapping ticks are
// skipped.
func startScheduler(ctx context.Context, expr string, loc *time.Location, deps *handler.Dependencies, h slog.Handler) (*cron.Cron, error) {
	logger := cron.PrintfLogger(slog.NewLogLogger(h, slog.LevelInfo))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	_, err := c.AddFunc(expr, func() {
		result, err := deps.RunDuePayments(ctx)
		switch {
		case errors.Is(err, recurring.ErrProcessorBusy):
			slog.Warn("scheduled run skipped; processor busy")
		case err != nil:
			slog.Error("scheduled run failed", "error", err)
		default:
			slog.Info("scheduled run complete", "processed", result.Processed, "errors", len(result.Errors))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid PROCESS_CRON %q: %w", expr, err)
	}

	c.Start()
	slog.Info("due-payment scheduler started", "cron", expr, "location", loc.String())
	return c, nil
}
