// Package schedule runs evidence jobs on a cron schedule or when new
// reports land in a watched directory.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ParseSchedule parses a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid schedule '%s': %w", expr, err)
	}
	return sched, nil
}

// StartAutoUpload runs job at every tick of expr until ctx is done.
// Examples: "0 18 * * *" (daily 6pm), "0 18 * * 1-5" (weekdays 6pm).
// An empty expr disables the scheduler and returns nil.
func StartAutoUpload(ctx context.Context, expr string, loc *time.Location, logger *zap.Logger, job func(context.Context)) error {
	if strings.TrimSpace(expr) == "" {
		logger.Info("auto-upload disabled (auto_upload_schedule not set)")
		return nil
	}
	sched, err := ParseSchedule(expr)
	if err != nil {
		return err
	}
	if loc == nil {
		loc = time.Local
	}
	logger.Info("auto-upload scheduled", zap.String("cron", expr))

	go runSchedule(ctx, sched, loc, logger, job, time.Now)
	return nil
}

func runSchedule(ctx context.Context, sched cron.Schedule, loc *time.Location, logger *zap.Logger, job func(context.Context), now func() time.Time) {
	for {
		current := now().In(loc)
		next := sched.Next(current)
		wait := next.Sub(current)
		logger.Info("next auto-upload",
			zap.String("at", next.Format("Mon Jan 2 15:04")),
			zap.Duration("in", wait.Round(time.Minute)))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		job(ctx)
	}
}
