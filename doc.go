// Package dartrt implements an ML inference runtime core: a graph IR,
// a dynamic device memory pool, a last-consumer-analyzed executor, a
// rewrite pass manager, a stream/event controller, and a pluggable
// kernel library interface.
//
// # Architecture Overview
//
// The runtime consists of several key components:
//
//   - graph: Node/Graph IR and its construction façade
//   - mempool: a dynamic device memory pool with stream-aware eager free
//   - pass: a node-rewrite pass manager run to a fixed point
//   - buildexec: last-consumer analysis turning a graph into a plan
//   - exec: the serial and DAG-parallel executor
//   - stream: the stream/event controller
//   - kernel: the kernel library interface
//
// # Performance Characteristics
//
//   - Ref-counted tensor storage: freed as soon as a node's last
//     consumer has run, computed ahead of execution by buildexec
//   - Dynamic pooling: device memory grows in fixed-size blocks and is
//     split/coalesced rather than allocated per tensor
//   - Bounded DAG-parallel execution: independent nodes run concurrently
//     under a worker-count cap
//
// # Basic Usage
//
//	// Run a graph description once
//	dartrun graph.json --kernel-lib Dummy --workers 4
//
//	// Benchmark the memory pool or executor
//	dartperf mempool --size 1048576 --iter 10000
//
// # Package Structure
//
//   - value, storage, tensor: the core value/storage/tensor types
//   - device: allocator implementations and registry
//   - graph, pass, buildexec, exec, stream, mempool: the runtime core
//   - kernel: the kernel library interface
//   - config, metrics, internal/obslog: the ambient stack
//   - cmd: command-line tools (dartrun, dartperf)
package dartrt
