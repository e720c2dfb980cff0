package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"clipforge/internal/config"
	"clipforge/internal/enhance"
	"clipforge/internal/fastcopy"
	"clipforge/internal/logging"
	"clipforge/internal/media/ffprobe"
	"clipforge/internal/plan"
	"clipforge/internal/preflight"
	"clipforge/internal/queue"
	"clipforge/internal/report"
	"clipforge/internal/scheduler"
	"clipforge/internal/segment"
	"clipforge/internal/services/ffmpegcli"
)

func newConvertCommand(cctx *commandContext) *cobra.Command {
	var (
		segmentSpecs  []string
		cutModeFlag   string
		orderFlag     string
		formatFlag    string
		bitrateFlag   int
		losslessFlag  bool
		volumeFlag    float64
		eqFlag        string
		denoiseFlag   bool
		speedFlag     float64
		normalizeFlag bool
		outFlag       string
		templateFlag  string
		workersFlag   int
		overwriteFlag bool
		dryRunFlag    bool
	)

	cmd := &cobra.Command{
		Use:   "convert <input>...",
		Short: "Convert, cut, or enhance audio files",
		Long: `Convert audio files, optionally cutting into segments and applying
volume, equalizer, noise-reduction, tempo, and loudness-normalization
filters. Without --segment each file is converted whole. With segments,
--cut-mode merge joins them into one output and --cut-mode separate writes
one file per segment. Segments require exactly one input file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if len(args) > 1 && len(segmentSpecs) > 0 {
				return fmt.Errorf("--segment requires a single input file, got %d", len(args))
			}

			inputPaths := make([]string, 0, len(args))
			for _, arg := range args {
				inputPath, err := config.ExpandPath(arg)
				if err != nil {
					return fmt.Errorf("resolve input path: %w", err)
				}
				inputPath, err = filepath.Abs(inputPath)
				if err != nil {
					return fmt.Errorf("resolve input path: %w", err)
				}
				inputPaths = append(inputPaths, inputPath)
			}

			cutMode, err := plan.ParseCutMode(cutModeFlag)
			if err != nil {
				return err
			}
			order, ok := segment.ParseOrder(orderFlag)
			if !ok {
				return fmt.Errorf("unknown segment order %q", orderFlag)
			}

			settings, err := buildEnhanceSettings(volumeFlag, eqFlag, denoiseFlag, speedFlag, normalizeFlag)
			if err != nil {
				return err
			}

			outDir := outFlag
			if outDir == "" {
				outDir = cfg.Output.Dir
			}
			outDir, err = config.ExpandPath(outDir)
			if err != nil {
				return fmt.Errorf("resolve output dir: %w", err)
			}
			template := templateFlag
			if template == "" {
				template = cfg.Output.Template
			}

			builder := plan.Builder{Analyzer: analyzerFromConfig(cfg)}
			batchID := uuid.New().String()
			var plans []plan.JobPlan
			for _, inputPath := range inputPaths {
				src, err := ffprobe.Probe(ctx, cfg.FFprobeBinary(), inputPath)
				if err != nil {
					return fmt.Errorf("probe %s: %w", inputPath, err)
				}

				list := segment.NewList(src)
				for _, spec := range segmentSpecs {
					start, end, err := parseSegmentSpec(spec)
					if err != nil {
						return err
					}
					if _, err := list.Add(start, end); err != nil {
						return fmt.Errorf("segment %q: %w", spec, err)
					}
				}

				built, err := builder.Build(plan.Request{
					Source:   src,
					Segments: list,
					Output: plan.OutputSpec{
						Format:    strings.ToLower(formatFlag),
						Bitrate:   bitrateFlag,
						Lossless:  losslessFlag,
						Dir:       outDir,
						Template:  template,
						Overwrite: overwriteFlag || cfg.Output.Overwrite,
					},
					Enhance: settings,
					CutMode: cutMode,
					Order:   order,
					BatchID: batchID,
				})
				if err != nil {
					return err
				}
				plans = append(plans, built...)
			}

			client, err := ffmpegcli.New(
				cfg.FFmpegBinary(),
				cfg.Workers.JobTimeoutSeconds,
				ffmpegcli.WithStagingDir(cfg.Paths.StagingDir),
				ffmpegcli.WithNoiseModel(cfg.FFmpeg.NoiseModelPath),
			)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRunFlag {
				fmt.Fprintln(out, renderPlanTable(plans))
				renderCommandPreview(out, cfg.FFmpegBinary(), client, plans)
				return nil
			}

			results := preflight.RunAll(cfg)
			if !preflight.Passed(results) {
				colorize := shouldColorize(out)
				for _, result := range results {
					kind := statusOK
					if !result.Passed {
						kind = statusError
					}
					fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
				}
				return fmt.Errorf("environment checks failed; run `clipforge doctor` for details")
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}

			store, err := queue.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			if workersFlag > 0 {
				cfg.Workers.Count = workersFlag
			}
			sched := scheduler.New(cfg, store, client, logger)
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()

			batch, submitErr := sched.Submit(ctx, plans)
			if batch != nil {
				go func() {
					select {
					case <-ctx.Done():
						batch.Cancel()
					case <-batch.Done():
					}
				}()
				streamUpdates(out, batch)
			}
			if batch == nil {
				return submitErr
			}

			rep := report.FromBatch(batch)
			fmt.Fprintln(out, renderReportTable(rep))
			if rep.Status != queue.BatchCompleted {
				return fmt.Errorf("batch %s finished with %d failed and %d cancelled jobs",
					rep.BatchID, rep.Failed, rep.Cancelled)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&segmentSpecs, "segment", "s", nil, "Segment to cut as start-end (seconds or [hh:]mm:ss), repeatable")
	flags.StringVar(&cutModeFlag, "cut-mode", "merge", "How segments map to outputs: merge or separate")
	flags.StringVar(&orderFlag, "order", "chronological", "Segment ordering: chronological or index")
	flags.StringVarP(&formatFlag, "format", "f", "mp3", "Output format (mp3, aac, m4a, ogg, opus, flac, wav)")
	flags.IntVarP(&bitrateFlag, "bitrate", "b", 192, "Output bitrate in kbit/s (64-320, ignored for lossless)")
	flags.BoolVar(&losslessFlag, "lossless", false, "Treat the output format as lossless (no bitrate)")
	flags.Float64Var(&volumeFlag, "volume", 1.0, "Volume multiplier (0-2)")
	flags.StringVar(&eqFlag, "eq", "", "Equalizer gains in dB for the 10 bands, comma separated")
	flags.BoolVar(&denoiseFlag, "denoise", false, "Apply RNNoise noise reduction")
	flags.Float64Var(&speedFlag, "speed", 1.0, "Playback speed multiplier (0.25-4)")
	flags.BoolVar(&normalizeFlag, "normalize", false, "Apply loudness normalization")
	flags.StringVarP(&outFlag, "out", "o", "", "Destination directory (defaults to output.dir)")
	flags.StringVar(&templateFlag, "template", "", "Output filename template")
	flags.IntVar(&workersFlag, "workers", 0, "Worker pool size (defaults to workers.count)")
	flags.BoolVar(&overwriteFlag, "overwrite", false, "Overwrite existing output files")
	flags.BoolVar(&dryRunFlag, "dry-run", false, "Show the planned jobs without running them")

	return cmd
}

func analyzerFromConfig(cfg *config.Config) fastcopy.Analyzer {
	policy := cfg.FastCopy.Policy
	if len(policy) == 0 {
		policy = fastcopy.DefaultPolicy()
	}
	return fastcopy.Analyzer{
		Enabled: cfg.FastCopy.Enabled,
		Slack:   cfg.FastCopy.BoundarySlackSeconds,
		Policy:  policy,
	}
}

func buildEnhanceSettings(volume float64, eqSpec string, denoise bool, speed float64, normalize bool) (enhance.Settings, error) {
	settings := enhance.Neutral()
	settings.Volume = volume
	settings.NoiseReduction = denoise
	settings.Speed = speed
	settings.Normalize = normalize

	if strings.TrimSpace(eqSpec) != "" {
		gains, err := parseEQGains(eqSpec)
		if err != nil {
			return settings, err
		}
		settings.EQGains = gains
	}
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

func parseEQGains(spec string) ([enhance.BandCount]float64, error) {
	var gains [enhance.BandCount]float64
	parts := strings.Split(spec, ",")
	if len(parts) > enhance.BandCount {
		return gains, fmt.Errorf("--eq takes at most %d gains, got %d", enhance.BandCount, len(parts))
	}
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return gains, fmt.Errorf("--eq gain %q is not a number", part)
		}
		gains[i] = value
	}
	return gains, nil
}

// parseSegmentSpec parses "start-end" where each bound is either plain
// seconds ("12.5") or a clock value ("1:05", "1:02:30.5").
func parseSegmentSpec(spec string) (start, end float64, err error) {
	idx := strings.LastIndexByte(spec, '-')
	if idx <= 0 || idx == len(spec)-1 {
		return 0, 0, fmt.Errorf("segment %q must be start-end", spec)
	}
	start, err = parseTimeValue(spec[:idx])
	if err != nil {
		return 0, 0, fmt.Errorf("segment %q: %w", spec, err)
	}
	end, err = parseTimeValue(spec[idx+1:])
	if err != nil {
		return 0, 0, fmt.Errorf("segment %q: %w", spec, err)
	}
	return start, end, nil
}

func parseTimeValue(value string) (float64, error) {
	value = strings.TrimSpace(value)
	parts := strings.Split(value, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("malformed time %q", value)
	}
	var seconds float64
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("malformed time %q", value)
		}
		seconds = seconds*60 + v
	}
	return seconds, nil
}
