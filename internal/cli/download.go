package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scenefetch/scenefetch/internal/config"
	"github.com/scenefetch/scenefetch/internal/constants"
	"github.com/scenefetch/scenefetch/internal/core"
	"github.com/scenefetch/scenefetch/internal/events"
	"github.com/scenefetch/scenefetch/internal/orchestrator"
	"github.com/scenefetch/scenefetch/internal/pathutil"
	"github.com/scenefetch/scenefetch/internal/progress"
	"github.com/scenefetch/scenefetch/internal/selector"
	"github.com/scenefetch/scenefetch/internal/storage"
	"github.com/scenefetch/scenefetch/internal/validation"
)

// downloadFlags holds the per-batch overrides of the download command.
type downloadFlags struct {
	listID        string
	idsFile       string
	mode          string
	filters       []string
	outDir        string
	dataset       string
	concurrency   int
	pollInterval  time.Duration
	maxWait       time.Duration
	mirror        string
	showPlan      bool
	noProgressBar bool
}

func newDownloadCmd() *cobra.Command {
	var f downloadFlags

	cmd := &cobra.Command{
		Use:   "download [scene-id...]",
		Short: "Download products for a batch of scenes",
		Long: `Download bundle or band products for a batch of scenes.

The scene ids are registered on a temporary working list (--list), products
are selected by --mode and --filter, and everything is requested under one
label. Downloads the service has not prepared yet are polled every
--poll-interval until --max-wait has been spent; whatever is still preparing
then is reported as abandoned.

Examples:
  scenefetch download --list batch1 LC80440342023150LGN00 LC80440352023150LGN00
  scenefetch download --list batch1 --ids-file scenes.txt --mode both --filter ST_B10_TIF --filter QA_PIXEL_TIF
  cat scenes.txt | scenefetch download --list batch1 --ids-file - --out ./tiles`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := f.apply(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ids, err := readEntityIDs(args, f.idsFile)
			if err != nil {
				return err
			}

			err = runDownload(GetContext(), cmd.OutOrStdout(), cfg, f, ids)
			if err != nil {
				describeError(cmd.ErrOrStderr(), err)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&f.listID, "list", "l", "", "Working list id for this batch (required)")
	cmd.Flags().StringVar(&f.idsFile, "ids-file", "", "File with one scene id per line (- for stdin)")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "Product selection: bundle, band, both (default from config)")
	cmd.Flags().StringSliceVarP(&f.filters, "filter", "f", nil, "Band entity id suffix to select (repeatable, caller order)")
	cmd.Flags().StringVarP(&f.outDir, "out", "o", "", "Output directory (default from config)")
	cmd.Flags().StringVar(&f.dataset, "dataset", "", "M2M dataset name (default from config)")
	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "j", 0, fmt.Sprintf("Concurrent fetches (%d-%d, default from config)", constants.MinMaxConcurrent, constants.MaxMaxConcurrent))
	cmd.Flags().DurationVar(&f.pollInterval, "poll-interval", 0, "Sleep between download-retrieve calls (default from config)")
	cmd.Flags().DurationVar(&f.maxWait, "max-wait", 0, "Polling budget before preparing downloads are abandoned (default from config)")
	cmd.Flags().StringVar(&f.mirror, "mirror", "", "Copy fetched files to object storage: none, s3, azure (default from config)")
	cmd.Flags().BoolVar(&f.showPlan, "plan", false, "Print the selected products and exit without requesting downloads")
	cmd.Flags().BoolVar(&f.noProgressBar, "no-progress", false, "Print plain progress lines instead of bars")
	_ = cmd.MarkFlagRequired("list")

	return cmd
}

// apply merges explicitly set flags into cfg.
func (f *downloadFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if err := validation.ValidateListID(f.listID); err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("mode") {
		mode, err := selector.ParseMode(f.mode)
		if err != nil {
			return err
		}
		cfg.DownloadMode = string(mode)
	}
	if flags.Changed("filter") {
		cfg.SuffixFilters = selector.CleanFilters(f.filters)
	}
	if flags.Changed("out") {
		cfg.OutputDir = f.outDir
	}
	if flags.Changed("dataset") {
		cfg.Dataset = f.dataset
	}
	if flags.Changed("concurrency") {
		cfg.MaxConcurrent = f.concurrency
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval = f.pollInterval
	}
	if flags.Changed("max-wait") {
		cfg.MaxWait = f.maxWait
	}
	if flags.Changed("mirror") {
		cfg.MirrorMode = strings.ToLower(f.mirror)
	}
	return nil
}

func runDownload(ctx context.Context, out io.Writer, cfg *config.Config, f downloadFlags, ids []string) error {
	outDir, err := pathutil.ResolveAbsolutePath(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("invalid output directory %q: %w", cfg.OutputDir, err)
	}
	cfg.OutputDir = outDir
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	mirror, err := storage.NewMirror(ctx, cfg)
	if err != nil {
		return err
	}

	var ui *progress.FetchUI
	if f.noProgressBar {
		ui = progress.NewFetchUI(&plainWriter{w: os.Stderr})
	} else {
		ui = progress.NewFetchUI(os.Stderr)
	}
	if ui.IsTerminal() {
		GetLogger().SetOutput(ui.Writer())
		defer GetLogger().SetOutput(os.Stdout)
	}

	opts := core.Options{Progress: ui}
	if mirror != nil {
		opts.Mirror = mirror
	}

	req := core.BatchRequest{ListID: f.listID, EntityIDs: ids}

	return withSession(ctx, cfg, opts, func(ctx context.Context, engine *core.Engine) error {
		if f.showPlan {
			items, err := engine.Plan(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d products selected for %d scenes (mode %s)\n", len(items), len(ids), cfg.DownloadMode)
			for _, item := range items {
				fmt.Fprintf(out, "  %-48s %-12s scene %s\n", item.EntityID, item.ProductID, item.SceneEntityID)
			}
			return nil
		}

		pollCh := engine.Events().Subscribe(events.EventPoll)
		batchCh := engine.Events().Subscribe(events.EventBatchComplete)
		watchDone := make(chan struct{})
		go func() {
			defer close(watchDone)
			progress.NewPollProgress(ui.Writer()).Watch(mergeEvents(pollCh, batchCh))
		}()

		result, err := engine.DownloadScenes(ctx, req)

		engine.Events().Unsubscribe(events.EventPoll, pollCh)
		engine.Events().Unsubscribe(events.EventBatchComplete, batchCh)
		<-watchDone
		ui.Wait()

		if result != nil {
			printSummary(out, result)
		}
		return err
	})
}

// mergeEvents forwards poll and batch events onto one channel, closing it
// when both sources are closed.
func mergeEvents(a, b <-chan events.Event) <-chan events.Event {
	out := make(chan events.Event, events.DefaultBufferSize)
	go func() {
		defer close(out)
		for a != nil || b != nil {
			select {
			case ev, ok := <-a:
				if !ok {
					a = nil
					continue
				}
				out <- ev
			case ev, ok := <-b:
				if !ok {
					b = nil
					continue
				}
				out <- ev
			}
		}
	}()
	return out
}

func printSummary(w io.Writer, res *orchestrator.BatchResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Batch %s finished in %s\n", res.Label, res.Duration.Round(time.Second))
	fmt.Fprintf(w, "  Downloaded: %d\n", len(res.Results))
	fmt.Fprintf(w, "  Retrieves:  %d\n", res.Retrieves)

	if len(res.Results) > 0 {
		bySceneCount := map[string]int{}
		for _, r := range res.Results {
			bySceneCount[r.SceneEntityID]++
		}
		scenes := make([]string, 0, len(bySceneCount))
		for s := range bySceneCount {
			scenes = append(scenes, s)
		}
		sort.Strings(scenes)
		for _, s := range scenes {
			fmt.Fprintf(w, "    %s: %d file(s)\n", s, bySceneCount[s])
		}
	}

	if len(res.Rejected) > 0 {
		fmt.Fprintf(w, "  Rejected:   %d\n", len(res.Rejected))
		for _, r := range res.Rejected {
			fmt.Fprintf(w, "    %s %s\n", r.EntityID, r.StatusText)
		}
	}
	if len(res.Abandoned) > 0 {
		fmt.Fprintf(w, "  Abandoned:  %d (still preparing when the wait budget ran out)\n", len(res.Abandoned))
		fmt.Fprintf(w, "    download ids: %s\n", strings.Join(res.Abandoned, ", "))
	}
	if len(res.Failed) > 0 {
		fmt.Fprintf(w, "  Failed:     %d\n", len(res.Failed))
		for _, fl := range res.Failed {
			fmt.Fprintf(w, "    %s after %d attempt(s): %v\n", fl.URL, fl.Attempts, fl.Err)
		}
	}
	if res.Dropped > 0 {
		fmt.Fprintf(w, "  Dropped:    %d (no matching request item)\n", res.Dropped)
	}
}

// plainWriter hides the terminal so progress falls back to line output.
type plainWriter struct {
	w io.Writer
}

func (p *plainWriter) Write(b []byte) (int, error) { return p.w.Write(b) }
