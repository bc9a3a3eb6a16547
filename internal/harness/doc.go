// Package harness runs YAML-scripted reducer scenarios and compares the
// resulting state trace against golden files.
//
// A scenario is a list of journaled actions (kind plus payload) applied in
// order to an empty session state. The harness records a summary of the state
// after every step, evaluates the scenario's assertions against the trace and
// final state, and optionally snapshots the full trace with goldie.
//
// Because Reduce is pure and scenarios carry no wall-clock input, a scenario
// always produces the same trace, which is what makes golden comparison
// meaningful here.
package harness
