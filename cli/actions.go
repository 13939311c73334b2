package cli

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/livevision/config"
	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/ml"
	"go.viam.com/livevision/pipeline"
	"go.viam.com/livevision/registry"
)

func loggerFor(c *cli.Context, conf logging.Config) (logging.Logger, error) {
	if c.Bool(flagDebug) {
		conf.Level = "debug"
	}
	logger, err := logging.NewLoggerFromConfig("livevision", conf)
	if err != nil {
		return nil, err
	}
	logging.ReplaceGlobal(logger)
	return logger, nil
}

// RunAction builds the configured pipeline and runs it.
func RunAction(c *cli.Context) error {
	cfg, err := config.Read(c.String(flagConfig))
	if err != nil {
		return err
	}
	logger, err := loggerFor(c, cfg.Log)
	if err != nil {
		return err
	}
	defer func() {
		//nolint:errcheck
		logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if d := c.Duration(flagDuration); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	var outMu sync.Mutex
	printf := func(format string, args ...interface{}) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(c.App.Writer, format, args...)
	}
	sink := func(pipeline.Result) {}
	if !c.Bool(flagQuiet) {
		sink = func(r pipeline.Result) { printf("%s\n", formatResult(r)) }
	}

	p, err := config.Build(ctx, cfg, sink, logger)
	if err != nil {
		return err
	}
	if err := p.Start(ctx); err != nil {
		return multierr.Combine(err, p.Close(context.Background()))
	}

	if interval := c.Duration(flagStatsInterval); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		waitDone := make(chan error, 1)
		go func() { waitDone <- p.Wait(ctx) }()
	loop:
		for {
			select {
			case <-ticker.C:
				printf("%s\n", statsTable(p.Stats()))
			case <-waitDone:
				break loop
			}
		}
	} else if err := p.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Debugw("stopped waiting", "error", err)
	}

	err = p.Close(context.Background())
	printf("%s\n", statsTable(p.Stats()))
	return err
}

func formatResult(r pipeline.Result) string {
	prefix := fmt.Sprintf("%s #%d %s", r.Source, r.Seq, r.Latency.Round(time.Microsecond))
	switch {
	case r.Err != nil:
		return fmt.Sprintf("%s error: %v", prefix, r.Err)
	case r.ClassMap != nil:
		cov := r.ClassMap.Coverage()
		names := make([]string, 0, len(cov))
		for name := range cov {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if cov[names[i]] != cov[names[j]] {
				return cov[names[i]] > cov[names[j]]
			}
			return names[i] < names[j]
		})
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%.1f%%", name, 100*cov[name]))
		}
		return fmt.Sprintf("%s %dx%d %s", prefix, r.ClassMap.Width(), r.ClassMap.Height(), strings.Join(parts, " "))
	default:
		parts := make([]string, 0, len(r.Detections))
		for _, d := range r.Detections {
			parts = append(parts, d.String())
		}
		return fmt.Sprintf("%s %d detections %s", prefix, len(r.Detections), strings.Join(parts, "; "))
	}
}

func statsTable(s pipeline.Stats) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Source", "Captured", "Delivered", "Dropped", "Read errors"})
	names := make([]string, 0, len(s.Sources))
	for name := range s.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := s.Sources[name]
		t.AppendRow(table.Row{name, st.Captured, st.Delivered, st.Dropped, st.ReadErrors})
	}
	t.AppendFooter(table.Row{"total", s.Produced, s.Delivered, s.Dropped, ""})
	summary := table.NewWriter()
	summary.AppendHeader(table.Row{"Completed", "Failed", "Busy", "Replaced", "Mean", "p50", "p95"})
	summary.AppendRow(table.Row{
		s.Completed, s.Failed, s.Stage.Rejected, s.Stage.Dropped,
		s.LatencyMean.Round(time.Microsecond), s.LatencyP50.Round(time.Microsecond), s.LatencyP95.Round(time.Microsecond),
	})
	return t.Render() + "\n" + summary.Render()
}

// ValidateAction reads a config and reports what it describes.
func ValidateAction(c *cli.Context) error {
	cfg, err := config.Read(c.String(flagConfig))
	if err != nil {
		return err
	}
	pc, err := cfg.Pipeline.ToPipeline()
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Name", "Type", "Attributes"})
	for i, s := range cfg.Sources {
		t.AppendRow(table.Row{i, s.Name, s.Type, len(s.Attributes)})
	}
	t.AppendRow(table.Row{"", "model", cfg.Model.Type, len(cfg.Model.Attributes)})
	fmt.Fprintln(c.App.Writer, t.Render())
	fmt.Fprintf(c.App.Writer, "drop_late_frames=%t busy_policy=%s\n", pc.DropLateFrames, pc.BusyPolicy)
	fmt.Fprintf(c.App.Writer, "%s is valid\n", cfg.ConfigFilePath)
	return nil
}

// LabelsAction prints the classes of a label file.
func LabelsAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one label file")
	}
	labels, err := ml.LoadLabels(c.Args().First())
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Index", "Label"})
	for i, l := range labels {
		t.AppendRow(table.Row{i, l})
	}
	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}

// TypesAction lists registered types.
func TypesAction(c *cli.Context) error {
	fmt.Fprintf(c.App.Writer, "sources: %s\n", strings.Join(registry.RegisteredSources(), ", "))
	fmt.Fprintf(c.App.Writer, "models: %s\n", strings.Join(registry.RegisteredModels(), ", "))
	return nil
}
