// Package app wires the evidence pipeline into the evidencebot command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"evidencebot/internal/domain"
	"evidencebot/internal/schedule"
	"evidencebot/internal/upload"
	"evidencebot/internal/web"
)

func Main() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewApp returns the evidencebot CLI.
func NewApp() *cli.App {
	return &cli.App{
		Name:  "evidencebot",
		Usage: "Extract test evidence from HTML reports and attach it to Jira issues",
		Description: `Reads an HTML test execution report, finds each test entry, decides
whether it passed or failed and writes one PNG per ticket key into
<evidence_dir>/sucessos or <evidence_dir>/falhas. A failure always wins
over a pass for the same key. The evidence can then be attached to the
matching Jira issues with a verdict comment.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config.yaml",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Before: func(c *cli.Context) error {
			if p := c.String("config"); p != "" {
				return os.Setenv("CONFIG_PATH", p)
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			processCommand(),
			uploadCommand(),
			cleanCommand(),
			statusCommand(),
			watchCommand(),
			keywordsCommand(),
		},
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the auto-upload scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, overrides listen_addr",
			},
		},
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx, stop := signalContext(c.Context)
			defer stop()

			if err := rt.startScheduler(ctx); err != nil {
				return err
			}

			addr := rt.cfg.ListenAddr
			if a := c.String("addr"); a != "" {
				addr = a
			}
			controller := &web.EvidenceController{
				Runner:    rt.processor,
				Workspace: rt.workspace,
				Ledger:    rt.ledger,
				Logger:    rt.logger,
				Busy:      rt.busy,
				OnRun:     rt.notifier.RunFinished,
				OnUpload:  rt.notifier.UploadFinished,
			}
			if rt.uploader != nil {
				controller.Pusher = rt.uploader
			}
			server := web.NewServer(web.ServerConfig{
				Addr:           addr,
				MaxUploadBytes: rt.cfg.MaxUploadBytes(),
				Logger:         rt.logger,
			}, controller)
			ln, err := server.Listen()
			if err != nil {
				return err
			}
			return server.Run(ctx, ln)
		},
	}
}

func (rt *runtime) startScheduler(ctx context.Context) error {
	if rt.uploader == nil {
		if rt.cfg.AutoUploadSchedule != "" {
			rt.logger.Warn("auto-upload disabled: Jira is not configured")
		}
		return nil
	}
	return schedule.StartAutoUpload(ctx, rt.cfg.AutoUploadSchedule, rt.cfg.Location, rt.logger, rt.autoUpload)
}

// autoUpload pushes the whole workspace unless another run or upload holds
// the workspace; a skipped tick is picked up by the next one.
func (rt *runtime) autoUpload(ctx context.Context) {
	if !rt.busy.TryAcquire(1) {
		rt.logger.Warn("auto-upload skipped: another run is in progress")
		return
	}
	defer rt.busy.Release(1)
	rt.pushAll(ctx)
}

func (rt *runtime) pushAll(ctx context.Context) {
	summary, err := rt.uploader.PushAll(ctx)
	if err != nil {
		rt.logger.Error("auto-upload error", zap.Error(err))
	}
	rt.logger.Info("auto-upload complete", zap.String("summary", upload.FormatSummary(summary)))
	if summary.Processed > 0 {
		rt.notifier.UploadFinished(summary)
	}
}

func processCommand() *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "Extract evidence from an HTML report",
		ArgsUsage: "<report.html>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "naming",
				Usage: "Evidence file naming: plain ({key}.png) or suffixed ({key}_sucesso.png)",
			},
			&cli.BoolFlag{
				Name:  "no-clean",
				Usage: "Keep evidence from earlier runs",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: evidencebot process <report.html>", 2)
			}
			rt, err := newRuntime(runtimeOptions{naming: c.String("naming"), skipClean: c.Bool("no-clean")})
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx, stop := signalContext(c.Context)
			defer stop()

			run, err := rt.processor.RunFile(ctx, c.Args().First())
			if err != nil {
				return err
			}
			rt.finishRun(run)
			printRun(c.App.Writer, run)
			if run.NoEntries {
				return cli.Exit("no test entries found in report", 1)
			}
			return nil
		},
	}
}

func printRun(w io.Writer, run domain.RunResult) {
	fmt.Fprintf(w, "Run %s (%s)\n", run.RunID, run.Source)
	fmt.Fprintf(w, "  entries: %d  passed: %d  failed: %d  errors: %d\n",
		run.Stats.Entries, run.Stats.Passed, run.Stats.Failed, run.Stats.Errors)
	for _, rec := range run.Records {
		fmt.Fprintf(w, "  %-8s %s\n", rec.Outcome.Label(), rec.Path())
	}
	for _, f := range run.Failures {
		fmt.Fprintf(w, "  error    entry %d (%s) %s: %s\n", f.Index, f.TicketKey, f.Stage, f.Err)
	}
}

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Attach evidence to Jira issues",
		ArgsUsage: "[<ticket_key> <sucessos|falhas>]",
		Description: `Without arguments every PNG under sucessos/ and falhas/ is attached to
the issue named by its file. With a ticket key and a result type only that
evidence file is sent.`,
		Action: func(c *cli.Context) error {
			if c.NArg() != 0 && c.NArg() != 2 {
				return cli.Exit("usage: evidencebot upload [<ticket_key> <sucessos|falhas>]", 2)
			}
			rt, err := newRuntime(runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.requireUploader(); err != nil {
				return err
			}
			ctx, stop := signalContext(c.Context)
			defer stop()

			if c.NArg() == 2 {
				res, err := rt.uploader.PushOne(ctx, c.Args().Get(0), c.Args().Get(1))
				if errors.Is(err, upload.ErrInvalidResultType) || errors.Is(err, upload.ErrEvidenceMissing) {
					return cli.Exit(err.Error(), 2)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "%s: %s attached (id %s)\n", res.TicketKey, res.File, res.AttachmentID)
				return nil
			}

			summary, err := rt.uploader.PushAll(ctx)
			fmt.Fprintln(c.App.Writer, upload.FormatSummary(summary))
			if summary.Processed > 0 {
				rt.notifier.UploadFinished(summary)
			}
			if err != nil {
				return err
			}
			return summary.Err()
		},
	}
}

func cleanCommand() *cli.Command {
	return &cli.Command{
		Name:  "clean",
		Usage: "Remove all evidence images",
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()
			removed, err := rt.workspace.Clean()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%d evidence files removed\n", removed)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the evidence currently on disk and recent runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "runs",
				Usage: "Number of recent runs to show",
				Value: 5,
			},
		},
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			files, err := rt.workspace.List()
			if err != nil {
				return err
			}
			counts, err := rt.workspace.Status()
			if err != nil {
				return err
			}
			runs, err := rt.ledger.RecentRuns(c.Int("runs"))
			if err != nil {
				return err
			}
			return renderStatus(c.App.Writer, counts, files, runs)
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Process every HTML report written into a directory",
		ArgsUsage: "[dir]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "upload",
				Usage: "Attach the evidence to Jira after each run",
			},
		},
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			dir := rt.cfg.WatchDir
			if c.NArg() > 0 {
				dir = c.Args().First()
			}
			if dir == "" {
				return cli.Exit("no directory to watch: pass one or set watch_dir", 2)
			}
			pushAfter := c.Bool("upload")
			if pushAfter {
				if err := rt.requireUploader(); err != nil {
					return err
				}
			}
			ctx, stop := signalContext(c.Context)
			defer stop()

			if err := rt.startScheduler(ctx); err != nil {
				return err
			}
			w, err := schedule.NewWatcher(dir, rt.logger, func(ctx context.Context, path string) {
				rt.processWatched(ctx, path, pushAfter)
			})
			if err != nil {
				return err
			}
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// processWatched blocks until the workspace is free; the report is only
// skipped when ctx ends first.
func (rt *runtime) processWatched(ctx context.Context, path string, pushAfter bool) {
	if err := rt.busy.Acquire(ctx, 1); err != nil {
		rt.logger.Warn("report not processed", zap.String("file", path), zap.Error(err))
		return
	}
	defer rt.busy.Release(1)

	run, err := rt.processor.RunFile(ctx, path)
	if err != nil {
		rt.logger.Error("report processing failed", zap.String("file", path), zap.Error(err))
		return
	}
	rt.finishRun(run)
	if !pushAfter || run.NoEntries {
		return
	}
	rt.pushAll(ctx)
}
