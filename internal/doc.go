// Package internal groups helpers that are private to goStepUp.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - digest: configured digest names mapped to hash constructors
//   - metrics: lock-free counters and latency histograms
//
// # What this package must NOT do
//
//   - Export types that appear in the public goStepUp API.
//   - Be imported by any package outside the goStepUp module.
package internal
