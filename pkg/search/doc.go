// Package search implements the per-pass Vmin search: it drives a set of
// voltage targets through an incremental search and finds, independently for
// each target, the voltage at which a functional pattern list passes, while
// sharing one pattern list execution across all targets.
//
// # Overview
//
// One pass of the engine:
//  1. Apply each unmasked target's start voltage (masked targets are not
//     driven) and execute the pattern list.
//  2. If a retry start is configured and every unmasked target failed the
//     very first execution, discard that point, move to the retry starts and
//     execute once more. This happens at most once per pass.
//  3. For every unmasked target:
//     - passed: keep the voltage as final and mask the target
//     - failed: record the limiting pattern, then step the voltage, or mark
//     the target NotFound when the next step would pass the end limit
//  4. Repeat until every target is masked or the iteration cap is hit.
//
// # Usage
//
//	targets, err := search.BuildTargets(names, starts, ends, steps, nil)
//	eng, err := search.NewEngine(targets, executor, supply, search.DefaultConfig())
//
//	err = forcer.Scope(ctx, supply, func(ctx context.Context) error {
//		pass, err := eng.Run(ctx, mask.Mask{})
//		...
//	})
//
// # Errors
//
// Configuration problems wrap ErrConfig and are reported by NewEngine before
// any collaborator is called. Disagreements between the executor's decoded
// bits and the engine's targets wrap ErrProtocol and stop the pass. A target
// that never passes is an outcome, reported as voltage.NotFound.
//
// # See Also
//
// Package multipass partitions targets over several passes and package
// repetition re-runs whole multi-pass sequences.
package search
