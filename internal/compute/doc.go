// Package compute defines the boundary to the compute module and provides
// the engines that implement it.
//
// A Module owns its worker pool and any simulation state it creates; the
// driver only calls through the Module and Simulation interfaces:
//
//	mod, _ := compute.NewRegistry().New("native", compute.Options{})
//	_ = mod.Init(ctx)
//	_ = mod.InitThreadPool(ctx, 8)
//	total, _ := mod.ReduceSum(ctx, input)
//
// Two engines are registered:
//
//   - native: pure Go, goroutine worker pool, integer reduction and a
//     particle fluid solver
//   - wasm: a precompiled WebAssembly image run under wazero, one module
//     instance per worker, integer reduction only
package compute
