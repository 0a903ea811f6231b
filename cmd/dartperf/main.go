// Command dartperf benchmarks the memory pool and executor against
// synthetic workloads, reporting alloc/free cycles per second for the
// pool and runs per second and Mops/s for the executor.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/dartrt/dartrt/buildexec"
	"github.com/dartrt/dartrt/device"
	"github.com/dartrt/dartrt/exec"
	"github.com/dartrt/dartrt/graph"
	"github.com/dartrt/dartrt/kernel"
	"github.com/dartrt/dartrt/mempool"
	"github.com/dartrt/dartrt/storage"
	"github.com/dartrt/dartrt/tensor"
	"github.com/dartrt/dartrt/value"
)

var (
	flagSize    int64
	flagIter    int
	flagWorkers int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dartperf",
		Short: "Benchmark the memory pool and executor",
	}
	root.PersistentFlags().Int64Var(&flagSize, "size", 1<<20, "allocation size in bytes per iteration")
	root.PersistentFlags().IntVar(&flagIter, "iter", 10000, "number of iterations")
	root.PersistentFlags().IntVar(&flagWorkers, "workers", runtime.NumCPU(), "executor worker count for the exec subcommand")

	root.AddCommand(newMempoolCmd(), newExecCmd())
	return root
}

func printBanner(label string) {
	fmt.Printf("dartperf: %s\n", label)
	fmt.Printf("=========%s\n", repeat("=", len(label)))
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("CPUs: %d\n", runtime.NumCPU())
	fmt.Printf("Iterations: %d\n\n", flagIter)
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s[0])
	}
	return string(out)
}

func newMempoolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mempool",
		Short: "Benchmark alloc/free cycle throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("mempool alloc/free cycle")
			fmt.Printf("Allocation Size: %d bytes\n\n", flagSize)

			pool := mempool.New(device.NewCPUAllocator())
			rng := rand.New(rand.NewSource(1))

			start := time.Now()
			for i := 0; i < flagIter; i++ {
				size := flagSize
				if rng.Intn(4) == 0 {
					size = flagSize / 2
				}
				buf, err := pool.Alloc(size, false, 0)
				if err != nil {
					return fmt.Errorf("alloc at iteration %d: %w", i, err)
				}
				pool.Free(buf.Addr)
			}
			elapsed := time.Since(start)

			cyclesPerSec := float64(flagIter) / elapsed.Seconds()
			stats := pool.Stats()
			fmt.Printf("Elapsed: %v\n", elapsed)
			fmt.Printf("Cycles/sec: %.1f\n", cyclesPerSec)
			fmt.Printf("Pool stats: used=%d peak=%d alloc=%d idle=%d\n",
				stats.Used, stats.Peak, stats.Alloc, stats.Idle())
			return nil
		},
	}
}

func newExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec",
		Short: "Benchmark executor launch throughput on a synthetic add graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("executor launch throughput")
			elems := flagSize / 4
			fmt.Printf("Tensor Size: %d float32 elements\n", elems)
			fmt.Printf("Workers: %d\n\n", flagWorkers)

			lib, err := kernel.Lookup("Dummy")
			if err != nil {
				return err
			}
			cpu := device.NewCPUAllocator()

			start := time.Now()
			for i := 0; i < flagIter; i++ {
				g, err := buildAddGraph(elems, cpu)
				if err != nil {
					return fmt.Errorf("build graph at iteration %d: %w", i, err)
				}
				runners, err := buildexec.Build(g.Nodes(), lib)
				if err != nil {
					return fmt.Errorf("buildexec at iteration %d: %w", i, err)
				}
				e := exec.New(runners, cpu, exec.WithMode(exec.ModeDAGParallel), exec.WithWorkers(flagWorkers))
				if _, err := e.Run(context.Background()); err != nil {
					return fmt.Errorf("run at iteration %d: %w", i, err)
				}
			}
			elapsed := time.Since(start)

			launchesPerSec := float64(flagIter) / elapsed.Seconds()
			mops := float64(elems) * float64(flagIter) / elapsed.Seconds() / 1e6
			fmt.Printf("Elapsed: %v\n", elapsed)
			fmt.Printf("Runs/sec: %.1f\n", launchesPerSec)
			fmt.Printf("Throughput: %.2f Mops/s\n", mops)
			return nil
		},
	}
}

func buildAddGraph(elems int64, cpu storage.Allocator) (*graph.Graph, error) {
	g := graph.Begin("bench")
	p0, err := g.AddValueNode(randomTensorValue(elems, cpu))
	if err != nil {
		return nil, err
	}
	p1, err := g.AddValueNode(randomTensorValue(elems, cpu))
	if err != nil {
		return nil, err
	}
	if _, err := g.AddOpNode(graph.Add, []*graph.Node{p0, p1}); err != nil {
		return nil, err
	}
	if _, err := g.AddReturn(); err != nil {
		return nil, err
	}
	return g, nil
}

func randomTensorValue(elems int64, cpu storage.Allocator) value.Value {
	st := storage.NewOwned(elems*4, "CPU", cpu)
	if err := st.AllocateMemory(); err != nil {
		panic(err)
	}
	t := tensor.NewTensor([]int64{elems}, tensor.DTypeF32, tensor.FormatDefault, st)
	return value.NewTensor(t)
}
