// Command dartrun loads a graph description, optimizes it, builds an
// execution plan against a kernel library, and runs it once.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dartrt/dartrt/buildexec"
	"github.com/dartrt/dartrt/config"
	"github.com/dartrt/dartrt/device"
	"github.com/dartrt/dartrt/exec"
	"github.com/dartrt/dartrt/internal/obslog"
	"github.com/dartrt/dartrt/kernel"
	"github.com/dartrt/dartrt/mempool"
	"github.com/dartrt/dartrt/metrics"
	"github.com/dartrt/dartrt/pass"
)

var (
	flagConfigFile string
	flagKernelLib  string
	flagPasses     []string
	flagWorkers    int
	flagDAG        bool
	flagVerbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dartrun <graph.json>",
		Short:         "Run a graph through the inference runtime core",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runGraph,
	}
	root.Flags().StringVar(&flagConfigFile, "config", "", "path to a config file (overrides DART_CONFIG_FILE)")
	root.Flags().StringVar(&flagKernelLib, "kernel-lib", "", "kernel library name (overrides config)")
	root.Flags().StringSliceVar(&flagPasses, "pass", nil, "optimization passes to run, in order")
	root.Flags().IntVar(&flagWorkers, "workers", 0, "DAG-parallel worker count (overrides config)")
	root.Flags().BoolVar(&flagDAG, "dag", false, "run the executor in DAG-parallel mode instead of serial")
	root.Flags().BoolVar(&flagVerbose, "verbose", false, "enable development-mode logging")
	return root
}

func runGraph(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		return err
	}
	libName := cfg.KernelLibName
	if flagKernelLib != "" {
		libName = flagKernelLib
	}
	workers := cfg.ThreadPoolSize
	if flagWorkers > 0 {
		workers = flagWorkers
	}

	logMode := obslog.ModeProduction
	if flagVerbose {
		logMode = obslog.ModeDevelopment
	}
	logger := obslog.New(logMode)
	defer logger.Sync()

	g, err := loadGraphFile(args[0])
	if err != nil {
		return err
	}

	if len(flagPasses) > 0 {
		mgr, err := pass.NewManager(flagPasses...)
		if err != nil {
			return err
		}
		if err := mgr.Run(g); err != nil {
			return fmt.Errorf("dartrun: optimization: %w", err)
		}
	}

	lib, err := kernel.Lookup(libName)
	if err != nil {
		return fmt.Errorf("dartrun: %w", err)
	}

	runners, err := buildexec.Build(g.Nodes(), lib)
	if err != nil {
		return err
	}

	cpu := device.NewCPUAllocator()
	metricsReg := metrics.New()
	_ = mempool.New(cpu, mempool.WithLogger(logger)) // reserved for future streaming allocation; not yet consumed by a single-shot run

	mode := exec.ModeSerial
	if flagDAG {
		mode = exec.ModeDAGParallel
	}

	e := exec.New(runners, cpu,
		exec.WithMode(mode),
		exec.WithWorkers(workers),
		exec.WithLogger(logger),
		exec.WithMetrics(metricsReg),
	)

	start := time.Now()
	out, err := e.Run(context.Background())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	logger.Info("run complete",
		zap.String("kernel_lib", libName),
		zap.Duration("elapsed", elapsed),
		zap.String("output_kind", out.Kind().String()),
	)
	fmt.Println(out.String())
	return nil
}
