package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"oidbs/internal/bench"
	"oidbs/internal/cli"
	"oidbs/internal/metrics"
	"oidbs/internal/model"
	"oidbs/internal/tui"
)

// runFlags are the engine tuning knobs shared by bench and import.
type runFlags struct {
	devices         int
	stagger         time.Duration
	shutdownTimeout time.Duration
	connectTimeout  time.Duration
	connectRetries  int
	connectBackoff  time.Duration
	maxResets       int
	abortRatio      float64
	flushEvery      int

	out       string
	noHistory bool
	history   string
	live      bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.devices, "devices", "n", 10, "concurrent devices")
	cmd.Flags().DurationVar(&f.stagger, "stagger", 0, "delay between device starts during ramp-up")
	cmd.Flags().DurationVar(&f.shutdownTimeout, "shutdown-timeout", 10*time.Second, "drain timeout at run end")
	cmd.Flags().DurationVar(&f.connectTimeout, "connect-timeout", 10*time.Second, "per-attempt connect timeout")
	cmd.Flags().IntVar(&f.connectRetries, "connect-retries", 3, "connect attempts before a device fails")
	cmd.Flags().DurationVar(&f.connectBackoff, "connect-backoff", 200*time.Millisecond, "linear backoff between connect attempts")
	cmd.Flags().IntVar(&f.maxResets, "max-resets", 3, "connection resets tolerated per device")
	cmd.Flags().Float64Var(&f.abortRatio, "abort-ratio", 0.5, "failed-device fraction that aborts the run")
	cmd.Flags().IntVar(&f.flushEvery, "flush-every", 256, "samples per metrics flush")

	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write the report JSON to this path")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "do not save the run to history")
	cmd.Flags().StringVar(&f.history, "history", "", "history database path (default $HOME/.oidbs/history.db)")
	cmd.Flags().BoolVar(&f.live, "live", false, "show the live dashboard instead of plain progress")
}

func (f *runFlags) apply(cfg *bench.RunConfig) {
	cfg.Devices = f.devices
	cfg.Stagger = f.stagger
	cfg.ShutdownTimeout = f.shutdownTimeout
	cfg.ConnectTimeout = f.connectTimeout
	cfg.ConnectRetries = f.connectRetries
	cfg.ConnectBackoff = f.connectBackoff
	cfg.MaxResets = f.maxResets
	cfg.AbortRatio = f.abortRatio
	cfg.FlushEvery = f.flushEvery
}

// execute runs the benchmark headless or under the live dashboard, wired
// to SIGINT/SIGTERM for a clean drain.
func (f *runFlags) execute(cfg bench.RunConfig, reg *model.Registry) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !f.live {
		return cli.Run(ctx, cfg, reg, cli.Options{
			Out:         f.out,
			NoHistory:   f.noHistory,
			HistoryPath: f.history,
		})
	}

	report, err := tui.Run(ctx, cfg, reg)
	if report != nil {
		f.finish(report)
	}
	return err
}

func (f *runFlags) finish(report *metrics.Report) {
	if f.out != "" {
		report.WriteJSON(f.out)
	}
	if !f.noHistory {
		cli.SaveHistory(f.history, report)
	}
}
