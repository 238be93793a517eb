package cli

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/turtacn/dockpipe/internal/config"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the pipeline for every ligand library dropped into an inbox",
		Long: "Watch an inbox directory and run the pipeline in the working directory for\n" +
			"each new library matching watch.pattern, one library at a time.",
		RunE: runWatch,
	}
	addRunFlags(cmd, false)
	cmd.Flags().Float64P("pH", "p", config.DefaultPH, "protonation pH, 0 disables protonation")
	cmd.Flags().Int("complexes", 0, "assemble complexes for the top N ligands")
	cmd.Flags().String("inbox", "", "directory to watch for new libraries")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := cliCtx.Config
	log := cliCtx.Logger.Named("watch")
	ctx := cmd.Context()

	if cfg.Watch.Inbox == "" {
		return errors.InvalidParam("--inbox is required")
	}
	rc := cfg.Run
	if err := rc.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid run parameters")
	}
	inboxDir, err := filepath.Abs(cfg.Watch.Inbox)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "resolve inbox")
	}

	infra := newInfrastructure(ctx, cfg, cliCtx.Logger)
	defer infra.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "create file watcher")
	}
	defer watcher.Close()
	if err := watcher.Add(inboxDir); err != nil {
		return errors.Wrap(err, errors.ErrCodeWorkspace, "watch inbox").WithDetail(inboxDir)
	}

	ib := &inbox{
		pattern:  cfg.Watch.Pattern,
		debounce: cfg.Watch.Debounce,
		seen:     make(map[string]struct{}),
		log:      log,
		run: func(ctx context.Context, library string) error {
			p, err := infra.pipelineFor(rc)
			if err != nil {
				return err
			}
			release, err := infra.lockWorkDir(ctx, p.Workspace().Root())
			if err != nil {
				return err
			}
			defer release()
			job := rc
			job.Ligands = library
			summary, err := p.Run(ctx, job)
			infra.pushMetrics(ctx)
			if summary != nil {
				_ = PrintResult(cmd, summaryView{summary})
			}
			return err
		},
	}

	log.Info("watching inbox", logging.String("dir", inboxDir), logging.String("pattern", ib.pattern))
	return ib.loop(ctx, watcher.Events, watcher.Errors)
}

// inbox turns file events into pipeline runs.  A library is run once,
// after no event has touched it for the debounce interval, so a file still
// being copied in is not picked up early.
type inbox struct {
	pattern  string
	debounce time.Duration
	seen     map[string]struct{}
	run      func(ctx context.Context, library string) error
	log      logging.Logger
}

func (b *inbox) matches(path string) bool {
	if b.pattern == "" {
		return true
	}
	ok, err := filepath.Match(b.pattern, filepath.Base(path))
	return err == nil && ok
}

// loop consumes events until ctx ends or the event channel closes.  Runs are
// sequential; a failed run is logged and the library is not retried.
func (b *inbox) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	tick := b.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if _, done := b.seen[ev.Name]; done || !b.matches(ev.Name) {
				continue
			}
			pending[ev.Name] = time.Now()
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			b.log.Warn("watcher error", logging.Err(err))
		case now := <-ticker.C:
			for _, path := range b.due(pending, now) {
				delete(pending, path)
				b.seen[path] = struct{}{}
				b.log.Info("library received", logging.String("file", path))
				if err := b.run(ctx, path); err != nil {
					b.log.Error("run failed", logging.String("file", path), logging.Err(err))
				}
				if ctx.Err() != nil {
					return nil
				}
			}
		}
	}
}

// due returns the settled pending paths in name order.
func (b *inbox) due(pending map[string]time.Time, now time.Time) []string {
	var out []string
	for path, last := range pending {
		if now.Sub(last) >= b.debounce {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}
