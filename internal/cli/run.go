package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/ambiguity-runner/internal/artifacts"
	"github.com/example/ambiguity-runner/internal/config"
	"github.com/example/ambiguity-runner/internal/engine"
	"github.com/example/ambiguity-runner/internal/events"
	"github.com/example/ambiguity-runner/internal/logger"
	"github.com/example/ambiguity-runner/internal/outcome"
	"github.com/example/ambiguity-runner/internal/pipeline"
	"github.com/example/ambiguity-runner/internal/summary"
)

func newRunCmd(loader *config.Loader) *cobra.Command {
	flags := &runtimeFlagSet{}

	cmd := &cobra.Command{
		Use:   "run [flags] FILE...",
		Short: "Run the simple and full ambiguity analysis over regex files",
		Long: `Each input file holds one regex per line. For every file the engine
first runs a fast simple analysis, then re-runs the EDA, IDA and NO IDA
buckets in full mode. Artifacts and a summary report are written to a
fresh directory under the results directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := flags.toOverrides(cmd, args)
			if err != nil {
				return err
			}

			cfg, err := loader.Load(overrides)
			if err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := ensureOutputDir(cfg.ResultsDir); err != nil {
				return err
			}

			log := logger.New(cmd.ErrOrStderr(), cfg.LogLevel)
			runner := engine.NewRunner(cfg.Engine)
			runner.Stderr = cmd.ErrOrStderr()
			runner.Logger = log
			if err := runner.EnsureBinary(); err != nil {
				return err
			}

			session := &runSession{
				cfg:      cfg,
				analyser: runner,
				emitter:  events.NewEmitter(cmd.OutOrStdout()),
				log:      log,
				progress: terminalOrNil(cmd.ErrOrStderr()),
				report:   cmd.ErrOrStderr(),
			}
			return session.runAll(cmd.Context())
		},
	}

	bindRuntimeFlags(cmd, flags)

	return cmd
}

// runSession runs the pipeline over each configured input in turn.
type runSession struct {
	cfg      config.RuntimeConfig
	analyser engine.Analyser
	emitter  *events.Emitter
	log      *slog.Logger
	// progress receives the " done/total\r" line; nil disables it.
	progress io.Writer
	// report receives the rendered summary after each successful file.
	report io.Writer
}

func (s *runSession) runAll(ctx context.Context) error {
	var errs []error
	for _, input := range s.cfg.Inputs {
		if err := s.runFile(ctx, input); err != nil {
			s.log.Error("run failed", "input", input, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", input, err))
		}
	}
	return errors.Join(errs...)
}

func (s *runSession) runFile(ctx context.Context, input string) error {
	runID := uuid.NewString()
	emitter := s.emitter.WithRun(runID)
	log := s.log.With("run", runID, "input", input)

	err := s.analyseFile(ctx, input, emitter, log)
	if err != nil {
		s.emit(emitter, events.Event{Type: events.RunFailed, Message: err.Error(), Fields: map[string]interface{}{"input": input}})
	}
	return err
}

func (s *runSession) analyseFile(ctx context.Context, input string, emitter *events.Emitter, log *slog.Logger) error {
	records, err := config.ReadRegexes(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	s.emit(emitter, events.Event{Type: events.RunStarted, Message: "Starting analysis", Fields: map[string]interface{}{
		"input":         input,
		"regexes":       len(records),
		"simpleTimeout": s.cfg.SimpleTimeout.String(),
		"fullTimeout":   s.cfg.FullTimeout.String(),
	}})

	ctrl := pipeline.New(s.analyser, pipeline.Settings{
		SimpleTimeout: s.cfg.SimpleTimeout,
		FullTimeout:   s.cfg.FullTimeout,
		Exploit:       s.cfg.Exploit,
	}, log)
	ctrl.Hooks = pipeline.Hooks{
		PassStarted: func(info pipeline.PassInfo) {
			s.emit(emitter, events.Event{Type: events.PassStarted, Fields: map[string]interface{}{
				"pass":    info.Label(),
				"regexes": info.Size,
			}})
		},
		Progress: func(info pipeline.PassInfo, done, total int) {
			if s.progress != nil {
				fmt.Fprintf(s.progress, " %d/%d\r", done, total)
			}
		},
		PassFinished: func(info pipeline.PassInfo, pass engine.Pass) {
			if s.progress != nil && info.Size > 0 {
				fmt.Fprintln(s.progress)
			}
			s.emit(emitter, events.Event{Type: events.PassFinished, Fields: passFields(info, pass)})
		},
	}

	res, err := ctrl.Run(ctx, records)
	if err != nil {
		return err
	}

	sum := summary.Build(res, input, emitter.RunID())
	store, err := artifacts.Create(s.cfg.ResultsDir, input, res.Started)
	if err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}

	paths, err := store.WriteRun(res, sum)
	for _, path := range paths {
		s.emit(emitter, events.Event{Type: events.ArtifactWritten, Fields: map[string]interface{}{"path": path}})
	}
	if err != nil {
		return fmt.Errorf("write artifacts: %w", err)
	}

	if s.report != nil {
		if err := summary.Render(s.report, sum, summary.RenderOptions{Color: logger.IsTerminal(s.report)}); err != nil {
			return fmt.Errorf("render summary: %w", err)
		}
	}

	s.emit(emitter, events.Event{Type: events.RunFinished, Message: "Analysis complete", Fields: map[string]interface{}{
		"input":     input,
		"dir":       store.Dir,
		"artifacts": len(paths),
		"elapsed":   res.Elapsed.String(),
	}})
	log.Info("run finished", "dir", store.Dir, "elapsed", res.Elapsed)
	return nil
}

func passFields(info pipeline.PassInfo, pass engine.Pass) map[string]interface{} {
	counts := make(map[string]int, len(outcome.Categories))
	for _, c := range outcome.Categories {
		counts[c.Slug()] = pass.Tally.Count(c)
	}
	fields := map[string]interface{}{
		"pass":    info.Label(),
		"regexes": info.Size,
		"counts":  counts,
	}
	if pass.Stats.RunningTime > 0 {
		fields["engineTime"] = pass.Stats.RunningTime.String()
	}
	return fields
}

// emit logs write failures instead of returning them.
func (s *runSession) emit(emitter *events.Emitter, evt events.Event) {
	if err := emitter.Emit(evt); err != nil {
		s.log.Warn("emit event", "type", evt.Type, "error", err)
	}
}
