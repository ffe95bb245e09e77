// Package exemgo evaluates submodular set functions over a fixed ground
// set of vectors, on CPU and GPU backends, at caller-selected numeric
// precision.
//
// The engine is an evaluation oracle for greedy submodular optimization:
// drivers repeatedly score candidate sets and marginal gains, thousands per
// optimization step, and exemgo's job is to make those evaluations fast and
// numerically well-defined. Element selection itself is out of scope.
//
// # Quick Start
//
//	ground, _ := matrix.FromRows(rows) // N×d ground set
//	fn, err := exemgo.NewExemplarClustering(ground)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fn.Close()
//
//	v, _ := fn.Evaluate(candidate)                    // f(S)
//	g, _ := exemgo.MarginalGain(fn, candidate, elem)  // f(S ∪ {e}) − f(S)
//	vs, _ := exemgo.EvaluateBatch(fn, candidates)     // batched, order-preserving
//
// # Backends and Precision
//
// Device and precision are bound at construction and immutable afterwards:
//
//	fn, err := exemgo.NewExemplarClustering(ground,
//	    exemgo.WithDevice(exemgo.DeviceGPU),
//	    exemgo.WithPrecision(exemgo.PrecisionHalf),
//	)
//
// The CPU backend partitions ground-set rows across a worker pool; the GPU
// backend runs a WebGPU workgroup reduction against a device-resident copy
// of the ground set. Half precision is GPU-only; requesting it on the CPU
// backend fails at construction with ErrUnsupportedConfiguration. Results
// at different precisions diverge: arithmetic runs end to end at the
// configured width.
//
// # Contract
//
// Any set function implements Function with a single primitive, Evaluate.
// Marginal gains and batched forms are derived by package-level functions
// and can be overridden through the optional fast-path interfaces
// (BatchEvaluator, MarginalGainer, ...). ExemplarClustering overrides the
// batch and marginal-gain paths with cheaper incremental computations that
// produce the same results.
package exemgo
